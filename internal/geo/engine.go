package geo

import (
	"log/slog"

	"sheetops/internal/table"
)

// HighlightColor is the background applied to corrected cells.
const HighlightColor = "#ff9195"

// Result summarizes an engine run.
type Result struct {
	Rows     int
	Changed  []table.Cell
	FixCount int
	Swapped  int
	Missing  []MissingEntry
	// States counts rows per terminal state.
	States map[State]int
}

// Engine applies Resolve to every row of a lead table.
type Engine struct {
	Index   *Index
	Columns Columns
	Gate    Gate
	// Audit collects missing entries. Nil disables the audit.
	Audit  *Audit
	Logger *slog.Logger
}

// Run resolves lead in place. Column lookup happens before any row is
// touched, so a ConfigurationError leaves lead unchanged.
func (e *Engine) Run(lead *table.Table) (Result, error) {
	log := e.Logger
	if log == nil {
		log = slog.Default()
	}
	idx, err := e.Columns.resolve(lead)
	if err != nil {
		return Result{}, err
	}

	res := Result{Rows: len(lead.Rows), States: make(map[State]int)}
	for i, r := range lead.Rows {
		in := Fields{
			City:    cell(r, idx[slotCity]),
			State:   cell(r, idx[slotState]),
			Country: cell(r, idx[slotCountry]),
			Region:  cell(r, idx[slotRegion]),
		}
		out := Resolve(e.Index, in, e.Gate)
		res.States[out.State()]++
		if out.Swapped {
			res.Swapped++
		}
		if out.Any() {
			res.FixCount++
			r = table.Fit(r, len(lead.Columns))
			vals := out.Fields.slots()
			for k, changed := range out.Changed {
				if !changed {
					continue
				}
				r[idx[k]] = vals[k]
				res.Changed = append(res.Changed, table.Cell{Row: i, Col: idx[k]})
			}
			lead.Rows[i] = r
		}
		if out.Missing != nil && e.Audit != nil {
			e.Audit.Add(*out.Missing)
		}
	}
	if e.Audit != nil {
		res.Missing = e.Audit.Entries()
	}
	log.Info("geo resolution finished",
		"table", lead.Name,
		"rows", res.Rows,
		"changed", res.FixCount,
		"swapped", res.Swapped,
		"missing", len(res.Missing),
		"gate", e.Gate.String(),
	)
	return res, nil
}
