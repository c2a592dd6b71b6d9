// Package sizeband maps company head counts onto fixed interval labels.
package sizeband

import (
	"math"
	"strconv"
	"strings"

	"sheetops/internal/table"
)

// NA labels values with no usable number.
const NA = "NA"

// Interval is an inclusive head-count range.
type Interval struct {
	Label    string
	Min, Max int
}

// DefaultIntervals are contiguous from 0 upward; the last one is open.
func DefaultIntervals() []Interval {
	return []Interval{
		{"0 - 10", 0, 10},
		{"11 - 50", 11, 50},
		{"51 - 200", 51, 200},
		{"201 - 500", 201, 500},
		{"501 - 1000", 501, 1000},
		{"1001 - 2000", 1001, 2000},
		{"2001 - 3000", 2001, 3000},
		{"3001 - 4000", 3001, 4000},
		{"4001 - 5000", 4001, 5000},
		{"5001 - 10000", 5001, 10000},
		{"10001 - 20000", 10001, 20000},
		{"20001 - 30000", 20001, 30000},
		{"30001 - 40000", 30001, 40000},
		{"40001 - 50000", 40001, 50000},
		{"50001+", 50001, math.MaxInt},
	}
}

// LeadingInt parses the integer a value starts with after commas and plus
// signs are removed: "1,001-5,000" is 1001, "10000+" is 10000 and
// "about 50" has none.
func LeadingInt(v any) (int, bool) {
	s := strings.NewReplacer(",", "", "+", "").Replace(table.Trimmed(v))
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Overflow: larger than any bounded interval.
		return math.MaxInt, true
	}
	return n, true
}

// Banding labels head counts.
type Banding struct {
	Intervals []Interval
}

// Label returns the interval label for v, or NA.
func (b Banding) Label(v any) string {
	n, ok := LeadingInt(v)
	if !ok {
		return NA
	}
	for _, iv := range b.Intervals {
		if n >= iv.Min && n <= iv.Max {
			return iv.Label
		}
	}
	return NA
}

// Pick labels a row by its employee count when that cell is not blank, and
// by its company size otherwise.
func (b Banding) Pick(employees, size any) string {
	if table.Trimmed(employees) != "" {
		return b.Label(employees)
	}
	return b.Label(size)
}
