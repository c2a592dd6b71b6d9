package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetops/internal/dedup"
	"sheetops/internal/kvstore"
	"sheetops/internal/storage"
	"sheetops/internal/table"
)

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := kvstore.NewMemory()
	codec := Codec{KV: kv}

	_, ok, err := codec.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	started := time.UnixMilli(1_700_000_000_123)
	in := BatchCheckpoint{
		AllHeaders:   []string{"Email", "City"},
		Cursor:       3,
		RowsCombined: 41,
		StartedAt:    started,
		RunID:        "run-1",
		SourcesHash:  HashSources([]string{"A", "B"}),
	}
	require.NoError(t, codec.Save(ctx, in))

	raw, _, _ := kv.Get(ctx, "allHeaders")
	assert.JSONEq(t, `["Email","City"]`, raw)
	raw, _, _ = kv.Get(ctx, "lastProcessedIndex")
	assert.Equal(t, "3", raw)
	raw, _, _ = kv.Get(ctx, "startTime")
	assert.Equal(t, "1700000000123", raw)

	got, ok, err := codec.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.AllHeaders, got.AllHeaders)
	assert.Equal(t, in.Cursor, got.Cursor)
	assert.Equal(t, in.RowsCombined, got.RowsCombined)
	assert.True(t, in.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, in.RunID, got.RunID)
	assert.Equal(t, in.SourcesHash, got.SourcesHash)

	require.NoError(t, codec.Delete(ctx))
	assert.Zero(t, kv.Len())
}

func TestCodec_LoadErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		key, val, want string
	}{
		{"lastProcessedIndex", "x", "invalid count"},
		{"combinedRowsCount", "-1", "invalid count"},
		{"allHeaders", "{", "decode allHeaders"},
		{"startTime", "soon", "decode startTime"},
		{"sourcesHash", "zz", "decode sourcesHash"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			kv := kvstore.NewMemory()
			require.NoError(t, kv.Set(ctx, "lastProcessedIndex", "1"))
			require.NoError(t, kv.Set(ctx, tt.key, tt.val))
			_, _, err := Codec{KV: kv}.Load(ctx)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

// failingKV fails every Get.
type failingKV struct{ kvstore.Memory }

func (*failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func TestCodec_StoreError(t *testing.T) {
	t.Parallel()
	_, _, err := Codec{KV: &failingKV{}}.Load(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

// sevenSources holds tables S0..S6; S<i> has two rows and a column unique to
// it, so the union has 8 columns.
func sevenSources() (*storage.Memory, []string) {
	var tables []*table.Table
	var names []string
	for i := 0; i < 7; i++ {
		name := fmt.Sprintf("S%d", i)
		names = append(names, name)
		tables = append(tables, &table.Table{
			Name:    name,
			Columns: []string{"Email", fmt.Sprintf("Col%d", i)},
			Rows: []table.Row{
				{fmt.Sprintf("a%d@x.com", i), "v"},
				{nil, nil},
				{fmt.Sprintf("b%d@x.com", i), nil},
			},
		})
	}
	return storage.NewMemory(tables...), names
}

func newController(s storage.Store, clock *time.Time) *Controller {
	return &Controller{
		Store:    s,
		Output:   "CombinedData",
		Now:      func() time.Time { return *clock },
		NewRunID: func() string { return "run-7" },
	}
}

func TestStep_SevenSourcesBatchOfThree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, sources := sevenSources()
	kv := kvstore.NewMemory()
	codec := Codec{KV: kv}

	clock := time.UnixMilli(1_000_000)
	c := newController(store, &clock)

	cp, done, sum, err := c.Step(ctx, codec, sources, 3)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 3, cp.Cursor)
	assert.Equal(t, 6, cp.RowsCombined)
	assert.Equal(t, []string{"S0", "S1", "S2"}, sum.Processed)
	assert.Equal(t, []string{"S3", "S4", "S5", "S6"}, sum.Pending)
	assert.Len(t, cp.AllHeaders, 8)

	stored, ok, err := codec.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, stored.Cursor)
	assert.Equal(t, "run-7", stored.RunID)

	clock = clock.Add(65 * time.Second)
	cp, done, _, err = c.Step(ctx, codec, sources, 3)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 6, cp.Cursor)

	clock = clock.Add(10 * time.Second)
	cp, done, sum, err = c.Step(ctx, codec, sources, 3)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 7, cp.Cursor)
	assert.Equal(t, 6, sum.From)
	assert.Equal(t, 7, sum.To)
	assert.Equal(t, 14, sum.RowsCombined)
	assert.Empty(t, sum.Pending)
	assert.Equal(t, 75*time.Second, sum.Elapsed)
	assert.Equal(t, "1 min 15 secs", FormatElapsed(sum.Elapsed))

	_, ok, err = codec.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "checkpoint deleted on completion")
	assert.Zero(t, kv.Len())

	out, err := store.ReadTable(ctx, "CombinedData")
	require.NoError(t, err)
	assert.Equal(t, []string{"Email", "Col0", "Col1", "Col2", "Col3", "Col4", "Col5", "Col6"}, out.Columns)
	require.Len(t, out.Rows, 14)
	assert.Equal(t, table.Row{"a6@x.com", nil, nil, nil, nil, nil, nil, "v"}, out.Rows[12])
}

func TestStep_ReplaysUnsavedBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, sources := sevenSources()
	codec := Codec{KV: kvstore.NewMemory()}
	clock := time.UnixMilli(1_000_000)
	c := newController(store, &clock)

	cp, done, _, err := c.Step(ctx, codec, sources, 3)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, 3, cp.Cursor)

	// S3..S5 are appended but the process stops before the cursor is saved.
	saved, ok, err := codec.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, sum, err := c.RunBatch(ctx, sources, 3, saved)
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Appended)

	stored, _, err := codec.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Cursor, "cursor not advanced")

	for !done {
		_, done, _, err = c.Step(ctx, codec, sources, 3)
		require.NoError(t, err)
	}

	out, err := store.ReadTable(ctx, "CombinedData")
	require.NoError(t, err)
	require.Len(t, out.Rows, 20)
	assert.Equal(t, out.Rows[6:12], out.Rows[12:18], "second batch appended twice")

	res := dedup.Deduplicate(out.Rows, 0, dedup.Policy{Winner: dedup.KeepFirst})
	assert.Equal(t, 6, res.Removed)
	assert.Equal(t, out.Rows[12:18], res.Displaced)
	assert.Len(t, res.Rows, 14)
	assert.Equal(t, append(append([]table.Row{}, out.Rows[:12]...), out.Rows[18:]...), res.Rows)
}

func TestRunBatch_FirstCallResetsOutput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, sources := sevenSources()
	require.NoError(t, store.WriteTable(ctx, &table.Table{Name: "CombinedData", Columns: []string{"Old"}, Rows: []table.Row{{"stale"}}}))

	clock := time.Now()
	c := newController(store, &clock)
	_, _, sum, err := c.RunBatch(ctx, sources, 10, BatchCheckpoint{})
	require.NoError(t, err)
	assert.Equal(t, 14, sum.Appended)

	out, err := store.ReadTable(ctx, "CombinedData")
	require.NoError(t, err)
	assert.NotContains(t, out.Columns, "Old")
	assert.Len(t, out.Rows, 14)
}

func TestRunBatch_ResumeRecreatesMissingOutput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, sources := sevenSources()
	clock := time.Now()
	c := newController(store, &clock)

	cp := BatchCheckpoint{AllHeaders: []string{"Email"}, Cursor: 5, RowsCombined: 10, StartedAt: clock, SourcesHash: HashSources(sources)}
	next, done, sum, err := c.RunBatch(ctx, sources, 3, cp)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 7, next.Cursor)
	assert.Equal(t, 14, next.RowsCombined)
	assert.Equal(t, []string{"Email"}, next.AllHeaders)
	assert.Equal(t, 5, sum.From)

	out, err := store.ReadTable(ctx, "CombinedData")
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"a5@x.com"}, {"b5@x.com"}, {"a6@x.com"}, {"b6@x.com"}}, out.Rows)
}

func TestRunBatch_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, sources := sevenSources()
	clock := time.Now()
	c := newController(store, &clock)

	_, _, _, err := c.RunBatch(ctx, sources, 0, BatchCheckpoint{})
	assert.ErrorContains(t, err, "batch size")

	_, _, _, err = c.RunBatch(ctx, append(sources, "Missing"), 3, BatchCheckpoint{})
	assert.ErrorIs(t, err, table.ErrMissingSource)
	ok, err := store.TableExists(ctx, "CombinedData")
	require.NoError(t, err)
	assert.False(t, ok, "failed header scan writes nothing")

	_, _, _, err = (&Controller{Store: store}).RunBatch(ctx, sources, 3, BatchCheckpoint{})
	assert.ErrorContains(t, err, "output table name")
}

func TestRunBatch_CursorPastEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, sources := sevenSources()
	clock := time.Now()
	c := newController(store, &clock)

	next, done, sum, err := c.RunBatch(ctx, sources[:2], 3, BatchCheckpoint{Cursor: 5, AllHeaders: []string{"Email"}, StartedAt: clock})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 2, next.Cursor)
	assert.Zero(t, sum.Appended)
}

func TestFormatElapsed(t *testing.T) {
	t.Parallel()
	tests := map[time.Duration]string{
		0:                              "0 secs",
		-time.Second:                   "0 secs",
		time.Second:                    "1 sec",
		59 * time.Second:               "59 secs",
		time.Minute:                    "1 min",
		2*time.Minute + 5*time.Second:  "2 mins 5 secs",
		61*time.Minute + 1*time.Second: "61 mins 1 sec",
		1500 * time.Millisecond:        "1 sec",
	}
	for d, want := range tests {
		assert.Equal(t, want, FormatElapsed(d), "duration %s", d)
	}
}
