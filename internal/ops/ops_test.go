package ops

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetops/internal/config"
	"sheetops/internal/kvstore"
	"sheetops/internal/metrics"
	"sheetops/internal/notify"
	"sheetops/internal/storage"
	"sheetops/internal/table"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func newRunner(t *testing.T, tables ...*table.Table) (*Runner, *storage.Memory, *notify.Recorder) {
	t.Helper()
	store := storage.NewMemory(tables...)
	rec := &notify.Recorder{}
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	r := &Runner{
		Cfg:   testConfig(t),
		Store: store,
		KV:    kvstore.NewMemory(),
		Sink:  rec,
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now: func() time.Time {
			clock = clock.Add(30 * time.Second)
			return clock
		},
		NewRunID: func() string { return "run-1" },
	}
	return r, store, rec
}

func readTable(t *testing.T, s storage.Store, name string) *table.Table {
	t.Helper()
	got, err := s.ReadTable(context.Background(), name)
	require.NoError(t, err)
	return got
}

func TestEligible(t *testing.T) {
	t.Parallel()

	names := []string{"Leads Q1", "CombinedData", "❌ Broken", "Old Leads", "Analytics", "Leads Q2", "Column_Matrix"}
	got := Eligible(names, config.DefaultExclude(), "Column_Matrix", "")
	assert.Equal(t, []string{"Leads Q1", "Leads Q2"}, got)

	got = Eligible(names, config.Exclude{Contains: []string{"LEADS"}})
	assert.Equal(t, []string{"CombinedData", "❌ Broken", "Analytics", "Column_Matrix"}, got)

	assert.Empty(t, Eligible(nil, config.DefaultExclude()))
}

type recordedMetric struct {
	name   string
	value  float64
	labels metrics.Labels
}

type recordingBackend struct {
	mu       sync.Mutex
	counters []recordedMetric
	observed []recordedMetric
}

func (b *recordingBackend) IncCounter(name string, delta float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters = append(b.counters, recordedMetric{name, delta, labels})
}

func (b *recordingBackend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observed = append(b.observed, recordedMetric{name, value, labels})
}

func (b *recordingBackend) Flush() error { return nil }

func (b *recordingBackend) counter(name string, labels metrics.Labels) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sum float64
	found := false
	for _, c := range b.counters {
		if c.name == name && assert.ObjectsAreEqual(c.labels, labels) {
			sum += c.value
			found = true
		}
	}
	return sum, found
}

// Swaps the global metrics backend; must not run in parallel.
func TestRunner_RecordsMetricsAndAlertsOnce(t *testing.T) {
	b := &recordingBackend{}
	metrics.SetBackend(b)
	t.Cleanup(metrics.Reset)

	r, _, rec := newRunner(t,
		&table.Table{Name: "Leads", Columns: []string{"Email"}, Rows: []table.Row{{"a@x.com"}, {"b@x.com"}}},
	)
	r.Cfg.Job = "leads-q3"

	_, err := r.Union(context.Background())
	require.NoError(t, err)

	n, ok := b.counter(metrics.StepTotal, metrics.Labels{"job": "leads-q3", "op": OpUnion, "status": "success"})
	require.True(t, ok)
	assert.Equal(t, 1.0, n)
	n, ok = b.counter(metrics.RowsTotal, metrics.Labels{"job": "leads-q3", "op": OpUnion, "kind": "written"})
	require.True(t, ok)
	assert.Equal(t, 2.0, n)
	require.Len(t, b.observed, 1)
	assert.Equal(t, metrics.StepDurationSeconds, b.observed[0].name)

	_, err = r.Dedup(context.Background())
	require.Error(t, err)
	_, ok = b.counter(metrics.StepTotal, metrics.Labels{"job": "leads-q3", "op": OpDedup, "status": "failure"})
	assert.True(t, ok)

	alerts := rec.Alerts()
	require.Len(t, alerts, 2)
	assert.Contains(t, alerts[0], "Combined 2 rows")
	assert.Contains(t, alerts[1], "dedup failed")
	assert.Len(t, rec.Toasts(), 2)
}

func TestRunner_NilSinkAndLogger(t *testing.T) {
	t.Parallel()
	r := &Runner{Cfg: testConfig(t), Store: storage.NewMemory()}
	res, err := r.ColumnMatrix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Column_Matrix", res.Output)
}
