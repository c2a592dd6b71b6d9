package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sheetops/internal/sizeband"
	"sheetops/internal/storage"
	"sheetops/internal/table"
	"sheetops/internal/titles"
)

// MatrixNameHeader heads the first column of the column matrix.
const MatrixNameHeader = "Sheet Name"

// columnAfter returns the index of name, inserting it right after the
// column at anchor when the table lacks it.
func columnAfter(t *table.Table, anchor int, name string) (int, bool, error) {
	i, err := t.IndexFold(name)
	if err == nil {
		return i, false, nil
	}
	if errors.Is(err, table.ErrAmbiguousColumn) {
		return 0, false, err
	}
	t.InsertColumn(anchor+1, name)
	return anchor + 1, true, nil
}

// setCell stores v at col and reports whether the cell changed.
func setCell(t *table.Table, row, col int, v string) bool {
	r := table.Fit(t.Rows[row], len(t.Columns))
	t.Rows[row] = r
	if table.Text(r[col]) == v {
		return false
	}
	r[col] = v
	return true
}

// TitlesResult describes a title categorization run.
type TitlesResult struct {
	Table   string
	Changed int
	// Counts holds rows per bucket, in titles.Buckets order.
	Counts map[string]int
}

func (r TitlesResult) Summary() string {
	parts := make([]string, 0, len(r.Counts))
	for _, b := range titles.Buckets() {
		parts = append(parts, fmt.Sprintf("%s: %s", b, count(r.Counts[b])))
	}
	return fmt.Sprintf("✅ %s: %s designations updated.\n%s", r.Table, count(r.Changed), strings.Join(parts, "\n"))
}

// Categorize fills the designation column from the title column, creating
// the designation column after the title column when absent.
func (r *Runner) Categorize(ctx context.Context) (res TitlesResult, err error) {
	start := r.begin(OpTitles, "Categorizing job titles...")
	defer func() { err = r.finish(OpTitles, start, res, err) }()

	cfg := r.Cfg.Titles
	t, idx, err := storage.ReadRequired(ctx, r.Store, cfg.Table, cfg.TitleColumn)
	if err != nil {
		return res, err
	}
	di, inserted, err := columnAfter(t, idx[0], cfg.DesignationColumn)
	if err != nil {
		return res, err
	}

	res = TitlesResult{Table: cfg.Table, Counts: make(map[string]int)}
	for i, row := range t.Rows {
		b := titles.Categorize(table.Text(cellAt(row, idx[0])))
		res.Counts[b]++
		if setCell(t, i, di, b) {
			res.Changed++
		}
	}
	if res.Changed == 0 && !inserted {
		return res, nil
	}
	if err := r.Store.WriteTable(ctx, t); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Table, err)
	}
	r.rows(OpTitles, "changed", res.Changed)
	return res, nil
}

// SizeResult describes a company size normalization run.
type SizeResult struct {
	Table   string
	Column  string
	Changed int
	NA      int
}

func (r SizeResult) Summary() string {
	return fmt.Sprintf("✅ %s: %s %s values updated, %s rows without a usable size.",
		r.Table, count(r.Changed), r.Column, count(r.NA))
}

// SizeBands labels each row with the interval of its employee count,
// falling back to the company size column when the count is blank.
func (r *Runner) SizeBands(ctx context.Context) (res SizeResult, err error) {
	start := r.begin(OpSize, "Normalizing company size intervals...")
	defer func() { err = r.finish(OpSize, start, res, err) }()

	cfg := r.Cfg.Size
	t, idx, err := storage.ReadRequired(ctx, r.Store, cfg.Table, cfg.EmployeesColumn, cfg.SizeColumn)
	if err != nil {
		return res, err
	}
	oi, inserted, err := columnAfter(t, idx[1], cfg.OutputColumn)
	if err != nil {
		return res, err
	}
	if inserted && idx[0] > idx[1] {
		idx[0]++
	}

	band := sizeband.Banding{Intervals: sizeband.DefaultIntervals()}
	res = SizeResult{Table: cfg.Table, Column: cfg.OutputColumn}
	for i, row := range t.Rows {
		label := band.Pick(cellAt(row, idx[0]), cellAt(row, idx[1]))
		if label == sizeband.NA {
			res.NA++
		}
		if setCell(t, i, oi, label) {
			res.Changed++
		}
	}
	if res.Changed == 0 && !inserted {
		return res, nil
	}
	if err := r.Store.WriteTable(ctx, t); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Table, err)
	}
	r.rows(OpSize, "changed", res.Changed)
	return res, nil
}

func cellAt(r table.Row, i int) any {
	if i < len(r) {
		return r[i]
	}
	return nil
}

// MatrixResult describes a column matrix run.
type MatrixResult struct {
	Output string
	Tables int
	Empty  int
}

func (r MatrixResult) Summary() string {
	return fmt.Sprintf("✅ Column matrix written to %s: %d tables listed, %d empty tables skipped.", r.Output, r.Tables, r.Empty)
}

// ColumnMatrix writes one row per eligible table: its name followed by its
// headers. Tables without headers are skipped.
func (r *Runner) ColumnMatrix(ctx context.Context) (res MatrixResult, err error) {
	start := r.begin(OpColumns, "Extracting column headers from all tables...")
	defer func() { err = r.finish(OpColumns, start, res, err) }()

	cfg := r.Cfg.Columns
	names, err := r.eligible(ctx, cfg.Exclude, cfg.Output)
	if err != nil {
		return res, err
	}
	headers, err := storage.ReadHeaders(ctx, r.Store, names, r.Cfg.Store.ReadConcurrency)
	if err != nil {
		return res, err
	}

	res.Output = cfg.Output
	width := 0
	var rows []table.Row
	for i, h := range headers {
		if len(h) == 0 {
			res.Empty++
			continue
		}
		row := make(table.Row, 0, len(h)+1)
		row = append(row, names[i])
		for _, c := range h {
			row = append(row, c)
		}
		rows = append(rows, row)
		width = max(width, len(h))
	}
	res.Tables = len(rows)

	columns := make([]string, width+1)
	columns[0] = MatrixNameHeader
	for i := 1; i <= width; i++ {
		columns[i] = fmt.Sprintf("Column %d", i)
	}
	out := table.New(cfg.Output, columns)
	for _, row := range rows {
		out.Append(row)
	}
	if err := r.Store.WriteTable(ctx, out); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Output, err)
	}
	return res, nil
}
