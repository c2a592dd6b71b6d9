package sizeband

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeadingInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   int
		wantOK bool
	}{
		{"1,001-5,000", 1001, true},
		{"10000+", 10000, true},
		{" 250 ", 250, true},
		{250.0, 250, true},
		{int64(42), 42, true},
		{"about 50", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{"99999999999999999999999", math.MaxInt, true},
	}
	for _, tt := range tests {
		got, ok := LeadingInt(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %#v", tt.in)
		assert.Equal(t, tt.want, got, "input %#v", tt.in)
	}
}

func TestLabel(t *testing.T) {
	t.Parallel()
	b := Banding{Intervals: DefaultIntervals()}

	tests := map[string]any{
		"0 - 10":        "0",
		"11 - 50":       11.0,
		"501 - 1000":    "1000",
		"40001 - 50000": "45,000",
		"50001+":        "50001",
		NA:              "n/a",
	}
	for want, in := range tests {
		assert.Equal(t, want, b.Label(in), "input %#v", in)
	}
	assert.Equal(t, "50001+", b.Label("99999999999999999999999"))
	assert.Equal(t, NA, Banding{}.Label("10"))
}

func TestPick(t *testing.T) {
	t.Parallel()
	b := Banding{Intervals: DefaultIntervals()}

	assert.Equal(t, "51 - 200", b.Pick("120", "5000"))
	assert.Equal(t, "2001 - 3000", b.Pick("  ", "2,500"))
	assert.Equal(t, "2001 - 3000", b.Pick(nil, "2,500"))
	assert.Equal(t, NA, b.Pick("many", "2,500"))
	assert.Equal(t, NA, b.Pick(nil, nil))
}

func TestIntervalsContiguous(t *testing.T) {
	t.Parallel()
	iv := DefaultIntervals()
	assert.Equal(t, 0, iv[0].Min)
	for i := 1; i < len(iv); i++ {
		assert.Equal(t, iv[i-1].Max+1, iv[i].Min, "gap before %s", iv[i].Label)
	}
	assert.Equal(t, math.MaxInt, iv[len(iv)-1].Max)
}
