package notify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := &Writer{W: &buf}

	w.Toast("hidden", "Batch", 5)
	assert.True(t, w.Alert("Combined 3 rows"))
	assert.Equal(t, "Combined 3 rows\n", buf.String())

	buf.Reset()
	w.Verbose = true
	w.Toast("Processing batch 2", "Batch", 5)
	w.Toast("untitled", "", 1)
	assert.Equal(t, "[Batch] Processing batch 2\nuntitled\n", buf.String())
}

func TestLog(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Toast("working", "Geo", 3)
	assert.True(t, l.Alert("done"))
	out := buf.String()
	assert.Contains(t, out, "msg=working title=Geo seconds=3")
	assert.Contains(t, out, "msg=done alert=true")
}

func TestMultiAndRecorder(t *testing.T) {
	t.Parallel()
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, Discard{}, b}

	m.Toast("t1", "T", 2)
	assert.True(t, m.Alert("a1"))
	assert.False(t, Multi{Discard{}}.Alert("x"))

	for _, r := range []*Recorder{a, b} {
		assert.Equal(t, []Toast{{"t1", "T", 2}}, r.Toasts())
		assert.Equal(t, []string{"a1"}, r.Alerts())
	}
}
