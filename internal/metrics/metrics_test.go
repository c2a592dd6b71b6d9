package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

// fakeBackend records calls in memory.
type fakeBackend struct {
	mu         sync.Mutex
	counters   []counterCall
	histograms []histCall
	flushes    int
	flushErr   error
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushErr
}

// install swaps the global backend; callers must not run in parallel.
func install(t *testing.T, b Backend) {
	t.Helper()
	SetBackend(b)
	t.Cleanup(Reset)
}

func TestRecordStep(t *testing.T) {
	fb := &fakeBackend{}
	install(t, fb)

	RecordStep("leads", "geo", nil, 2*time.Second)
	RecordStep("leads", "merge", errors.New("boom"), 1500*time.Millisecond)

	require.Len(t, fb.counters, 2)
	require.Len(t, fb.histograms, 2)

	assert.Equal(t, counterCall{StepTotal, 1, Labels{"job": "leads", "op": "geo", "status": "success"}}, fb.counters[0])
	assert.Equal(t, "failure", fb.counters[1].labels["status"])
	assert.Equal(t, histCall{StepDurationSeconds, 2, Labels{"job": "leads", "op": "geo", "status": "success"}}, fb.histograms[0])
	assert.InDelta(t, 1.5, fb.histograms[1].value, 1e-9)
}

func TestRecordRowsAndBatches(t *testing.T) {
	fb := &fakeBackend{}
	install(t, fb)

	RecordRows("leads", "dedup", "removed", 4)
	RecordRows("leads", "dedup", "skipped", 0)
	RecordRows("leads", "dedup", "skipped", -1)
	RecordBatches("leads", 2)
	RecordBatches("leads", 0)

	assert.Equal(t, []counterCall{
		{RowsTotal, 4, Labels{"job": "leads", "op": "dedup", "kind": "removed"}},
		{BatchesTotal, 2, Labels{"job": "leads"}},
	}, fb.counters)
}

func TestSetBackendNilAndFlush(t *testing.T) {
	fb := &fakeBackend{flushErr: errors.New("gateway down")}
	install(t, fb)

	SetBackend(nil)
	assert.EqualError(t, Flush(), "gateway down")
	assert.Equal(t, 1, fb.flushes)

	Reset()
	assert.NoError(t, Flush())
	RecordStep("j", "op", nil, time.Millisecond)
	assert.Len(t, fb.counters, 0)
}
