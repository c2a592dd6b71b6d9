// Package dedup collapses rows that share a key column.
//
// The key of a row is trim(lowercase(cell)). Rows with the same key form a
// group and exactly one row per group survives, chosen by Policy.Winner:
//
//   - MostComplete (default): the row with the most non-blank cells; ties
//     keep the first seen
//   - KeepFirst: the earliest row
//   - KeepLast: the latest row
//
// Rows whose key is blank never take part in grouping. Policy.Blank decides
// whether they pass through untouched (BlankKeep) or are dropped (BlankDrop).
// Both modes exist because callers disagree: external merges keep them and
// lead cleaning drops them.
//
// Groups are keyed by the 128-bit xxh3 hash of the key. Survivors are emitted in the order
// their group was first seen, so output position is stable regardless of
// which member of the group won.
package dedup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"sheetops/internal/table"
)

// Winner selects one row among duplicates.
type Winner int

const (
	MostComplete Winner = iota
	KeepFirst
	KeepLast
)

func (w Winner) String() string {
	switch w {
	case KeepFirst:
		return "keep-first"
	case KeepLast:
		return "keep-last"
	default:
		return "most-complete"
	}
}

// ParseWinner accepts "most-complete", "keep-first" and "keep-last".
// Empty selects MostComplete.
func ParseWinner(s string) (Winner, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "most-complete":
		return MostComplete, nil
	case "keep-first":
		return KeepFirst, nil
	case "keep-last":
		return KeepLast, nil
	default:
		return 0, fmt.Errorf("dedup: unknown winner policy %q", s)
	}
}

// BlankMode controls rows with an empty key.
type BlankMode int

const (
	BlankKeep BlankMode = iota
	BlankDrop
)

// ParseBlankMode accepts "keep" and "drop". Empty selects BlankKeep.
func ParseBlankMode(s string) (BlankMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return BlankKeep, nil
	case "drop":
		return BlankDrop, nil
	default:
		return 0, fmt.Errorf("dedup: unknown blank-key mode %q", s)
	}
}

func (m BlankMode) String() string {
	if m == BlankDrop {
		return "drop"
	}
	return "keep"
}

// Policy bundles the winner rule and the blank-key mode.
type Policy struct {
	Winner Winner
	Blank  BlankMode
}

// Result is the outcome of Deduplicate.
type Result struct {
	Rows []table.Row
	// Removed counts keyed rows that lost to another row in their group.
	Removed int
	// BlankKeys counts rows with an empty key, kept or dropped per Policy.
	BlankKeys int
	// Displaced holds the rows counted in Removed, in input order.
	Displaced []table.Row
	// Dropped holds blank-key rows discarded under BlankDrop.
	Dropped []table.Row
}

// Key normalizes a cell for grouping.
func Key(v any) string { return strings.TrimSpace(strings.ToLower(table.Text(v))) }

type slot struct {
	index int
	score int
}

// Deduplicate groups rows by the cell at keyIdx. The input slice is not
// modified; returned rows alias the input rows.
func Deduplicate(rows []table.Row, keyIdx int, p Policy) Result {
	var res Result
	if len(rows) == 0 {
		return res
	}

	// order holds, per output position, either a group hash or a blank-key
	// passthrough row index.
	type entry struct {
		hash  xxh3.Uint128
		blank int
	}
	order := make([]entry, 0, len(rows))
	winners := make(map[xxh3.Uint128]slot, len(rows))
	var losers []int

	for i, r := range rows {
		var cell any
		if keyIdx >= 0 && keyIdx < len(r) {
			cell = r[keyIdx]
		}
		k := Key(cell)
		if k == "" {
			res.BlankKeys++
			if p.Blank == BlankKeep {
				order = append(order, entry{blank: i + 1})
			} else {
				res.Dropped = append(res.Dropped, r)
			}
			continue
		}
		h := xxh3.HashString128(k)
		cur := slot{index: i, score: table.NonBlank(r)}
		prev, exists := winners[h]
		if !exists {
			winners[h] = cur
			order = append(order, entry{hash: h})
			continue
		}
		res.Removed++
		loser := i
		switch p.Winner {
		case KeepFirst:
		case KeepLast:
			winners[h] = cur
			loser = prev.index
		default:
			if cur.score > prev.score {
				winners[h] = cur
				loser = prev.index
			}
		}
		losers = append(losers, loser)
	}
	sort.Ints(losers)
	for _, i := range losers {
		res.Displaced = append(res.Displaced, rows[i])
	}

	res.Rows = make([]table.Row, 0, len(order))
	for _, e := range order {
		if e.blank > 0 {
			res.Rows = append(res.Rows, rows[e.blank-1])
			continue
		}
		res.Rows = append(res.Rows, rows[winners[e.hash].index])
	}
	return res
}

// Table deduplicates t in place by the named key column, resolved
// case-insensitively.
func Table(t *table.Table, key string, p Policy) (Result, error) {
	i, err := t.IndexFold(key)
	if err != nil {
		return Result{}, err
	}
	res := Deduplicate(t.Rows, i, p)
	t.Rows = res.Rows
	return res, nil
}
