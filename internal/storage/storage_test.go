package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetops/internal/table"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Contains(t, ListKinds(), "memory")

	s, err := New(context.Background(), Config{Kind: "memory"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = New(context.Background(), Config{Kind: "sheets-api"})
	assert.EqualError(t, err, "unsupported storage.kind=sheets-api")
}

func TestMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := &table.Table{Name: "Leads", Columns: []string{"Email", "City"}, Rows: []table.Row{{"a@x.com"}}}
	m := NewMemory(src)

	got, err := m.ReadTable(ctx, "Leads")
	require.NoError(t, err)
	assert.Equal(t, table.Row{"a@x.com", nil}, got.Rows[0])

	// Reads are copies.
	got.Rows[0][0] = "changed"
	again, err := m.ReadTable(ctx, "Leads")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", again.Rows[0][0])

	require.NoError(t, m.AppendRows(ctx, "Leads", []table.Row{{"b@x.com", "Paris", "extra"}}))
	again, err = m.ReadTable(ctx, "Leads")
	require.NoError(t, err)
	assert.Equal(t, table.Row{"b@x.com", "Paris"}, again.Rows[1])

	require.NoError(t, m.CreateTable(ctx, "Audit", []string{"A"}))
	require.NoError(t, m.CreateTable(ctx, "Leads", []string{"ignored"}))
	names, err := m.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Leads", "Audit"}, names)

	var missing *table.MissingSourceError
	_, err = m.ReadTable(ctx, "Nope")
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Nope", missing.Name)
	assert.ErrorIs(t, m.AppendRows(ctx, "Nope", nil), table.ErrMissingSource)

	require.NoError(t, m.SetCellBackground(ctx, "Leads", []table.Cell{{Row: 1, Col: 1}}, "#ff9195"))
	assert.Equal(t, map[table.Cell]string{{Row: 1, Col: 1}: "#ff9195"}, m.Highlights("Leads"))
}

func TestReadRequired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory(table.New("Map", []string{"City", "Country"}))

	_, idx, err := ReadRequired(ctx, m, "Map", "Country", "city ")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, idx)

	_, _, err = ReadRequired(ctx, m, "Map", "City", "Region", "State")
	var cfgErr *table.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"Region", "State"}, cfgErr.Missing)
}

func TestReadTables(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory(
		table.New("A", []string{"x"}),
		table.New("B", []string{"y"}),
		table.New("C", []string{"z"}),
	)

	got, err := ReadTables(ctx, m, []string{"C", "A", "B"}, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "C", got[0].Name)
	assert.Equal(t, "A", got[1].Name)
	assert.Equal(t, "B", got[2].Name)

	_, err = ReadTables(ctx, m, []string{"A", "Missing"}, 0)
	assert.ErrorIs(t, err, table.ErrMissingSource)
}

// headerStore counts header-only reads.
type headerStore struct {
	*Memory
	calls atomic.Int32
}

func (h *headerStore) ReadHeader(ctx context.Context, name string) ([]string, error) {
	h.calls.Add(1)
	t, err := h.ReadTable(ctx, name)
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

func TestReadHeaders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory(
		table.New("A", []string{"Email", "City"}),
		table.New("B", []string{"Country"}),
	)

	got, err := ReadHeaders(ctx, m, []string{"B", "A"}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Country"}, {"Email", "City"}}, got)

	hs := &headerStore{Memory: m}
	got, err = ReadHeaders(ctx, hs, []string{"A", "B"}, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Email", "City"}, {"Country"}}, got)
	assert.EqualValues(t, 2, hs.calls.Load())

	_, err = ReadHeaders(ctx, hs, []string{"Nope"}, 1)
	assert.ErrorIs(t, err, table.ErrMissingSource)
}

func TestLoadBatches_Basic(t *testing.T) {
	t.Parallel()

	in := make(chan table.Row, 8)
	for i := 0; i < 7; i++ {
		in <- table.Row{float64(i), "x"}
	}
	close(in)

	var calls int32
	copyFn := func(_ context.Context, _ []string, rows []table.Row) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(context.Background(), nil, []string{"c1", "c2"}, in, 3, copyFn)
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "3+3+1")
}

func TestLoadBatches_ErrorPropagation(t *testing.T) {
	t.Parallel()

	in := make(chan table.Row, 5)
	for i := 0; i < 5; i++ {
		in <- table.Row{float64(i)}
	}
	close(in)

	wantErr := errors.New("copy failed")
	var batches int
	copyFn := func(_ context.Context, _ []string, rows []table.Row) (int64, error) {
		batches++
		if batches == 2 {
			return 0, wantErr
		}
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(context.Background(), nil, []string{"c"}, in, 2, copyFn)
	require.ErrorIs(t, err, wantErr)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, 2, batches)
}

func TestLoadBatches_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan table.Row)
	done := make(chan error, 1)
	go func() {
		_, err := LoadBatches(ctx, nil, []string{"c"}, in, 10, func(context.Context, []string, []table.Row) (int64, error) {
			return 0, nil
		})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("LoadBatches did not return after cancel")
	}
}

func TestLoadBatches_BadArgs(t *testing.T) {
	t.Parallel()

	_, err := LoadBatches(context.Background(), nil, nil, nil, 0, nil)
	assert.Error(t, err)
	_, err = LoadBatches(context.Background(), nil, nil, nil, 1, nil)
	assert.Error(t, err)
}

func TestCopyRows(t *testing.T) {
	t.Parallel()

	rows := []table.Row{{"a"}, {"b", "B", "extra"}, {"c", "C"}}
	var got []table.Row
	total, err := CopyRows(context.Background(), nil, []string{"k", "v"}, rows, 2,
		func(_ context.Context, _ []string, batch []table.Row) (int64, error) {
			got = append(got, batch...)
			return int64(len(batch)), nil
		})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []table.Row{{"a", nil}, {"b", "B"}, {"c", "C"}}, got)

	boom := errors.New("boom")
	_, err = CopyRows(context.Background(), nil, []string{"k"}, rows, 1,
		func(context.Context, []string, []table.Row) (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}
