package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sheetops/internal/config"
	"sheetops/internal/dedup"
	"sheetops/internal/storage"
	"sheetops/internal/table"
	"sheetops/internal/union"
)

// SkipReasonHeader is appended to the lead columns in the skipped table.
const SkipReasonHeader = "Skip Reason"

func policy(d config.DedupOptions) (dedup.Policy, error) {
	w, err := dedup.ParseWinner(d.Winner)
	if err != nil {
		return dedup.Policy{}, err
	}
	b, err := dedup.ParseBlankMode(d.BlankKeys)
	if err != nil {
		return dedup.Policy{}, err
	}
	return dedup.Policy{Winner: w, Blank: b}, nil
}

// MergeResult describes an external merge.
type MergeResult struct {
	Output    string
	Sources   int
	Rows      int
	Removed   int
	BlankKeys int
	// Appended and Existing are set in append mode: rows added to the output
	// and rows skipped because their key was already present.
	Appended int
	Existing int
	Append   bool
}

func (r MergeResult) Summary() string {
	if !r.Append {
		return fmt.Sprintf("✅ Merged %d tables into %s: %s rows, %s duplicates removed.",
			r.Sources, r.Output, count(r.Rows), count(r.Removed))
	}
	return fmt.Sprintf("✅ Merged %d tables into %s: %s new rows appended, %s already present, %s duplicates removed.",
		r.Sources, r.Output, count(r.Appended), count(r.Existing), count(r.Removed))
}

// Merge unions the listed source tables, deduplicates them by key and either
// replaces the output or appends only rows whose key the output lacks.
func (r *Runner) Merge(ctx context.Context) (res MergeResult, err error) {
	start := r.begin(OpMerge, "Merging source tables...")
	defer func() { err = r.finish(OpMerge, start, res, err) }()

	cfg := r.Cfg.Merge
	sources, err := r.Cfg.MergeSources()
	if err != nil {
		return res, err
	}
	if len(sources) == 0 {
		return res, &table.ConfigurationError{Reason: errors.New("merge.sources lists no tables")}
	}
	p, err := policy(cfg.Dedup)
	if err != nil {
		return res, err
	}
	tables, err := storage.ReadTables(ctx, r.Store, sources, r.Cfg.Store.ReadConcurrency)
	if err != nil {
		return res, err
	}
	opts := union.Options{CaseInsensitive: !cfg.CaseSensitiveHeaders}
	merged := union.Combine(cfg.Output, tables, opts, true)

	res = MergeResult{Output: cfg.Output, Sources: len(sources)}
	keyIdx := -1
	if !cfg.Dedup.AllowDuplicates || !cfg.Overwrite {
		if keyIdx, err = merged.IndexFold(cfg.Dedup.Key); err != nil {
			return res, err
		}
	}
	if !cfg.Dedup.AllowDuplicates {
		d := dedup.Deduplicate(merged.Rows, keyIdx, p)
		merged.Rows = d.Rows
		res.Removed, res.BlankKeys = d.Removed, d.BlankKeys
		r.rows(OpMerge, "duplicate", d.Removed)
	}
	res.Rows = merged.Len()

	existing, err := r.readExisting(ctx, cfg.Output)
	if err != nil {
		return res, err
	}
	if cfg.Overwrite || existing == nil || existing.Width() == 0 {
		if err := r.Store.WriteTable(ctx, merged); err != nil {
			return res, fmt.Errorf("write %s: %w", cfg.Output, err)
		}
		r.rows(OpMerge, "written", merged.Len())
		return res, nil
	}

	res.Append = true
	rows, existingKeys, err := r.appendable(existing, merged, keyIdx, opts)
	if err != nil {
		return res, err
	}
	res.Appended, res.Existing = len(rows), existingKeys
	if err := r.Store.AppendRows(ctx, cfg.Output, rows); err != nil {
		return res, fmt.Errorf("append %s: %w", cfg.Output, err)
	}
	r.rows(OpMerge, "appended", len(rows))
	return res, nil
}

// readExisting returns the named table, or nil when it does not exist.
func (r *Runner) readExisting(ctx context.Context, name string) (*table.Table, error) {
	ok, err := r.Store.TableExists(ctx, name)
	if err != nil || !ok {
		return nil, err
	}
	return r.Store.ReadTable(ctx, name)
}

// appendable projects merged rows onto the columns of existing and drops
// those whose key is already present there. Rows with a blank key are always
// kept. It also returns the number of rows dropped.
func (r *Runner) appendable(existing, merged *table.Table, keyIdx int, opts union.Options) ([]table.Row, int, error) {
	outKey, err := existing.IndexFold(merged.Columns[keyIdx])
	if err != nil {
		return nil, 0, err
	}
	seen := make(map[string]struct{}, existing.Len())
	for _, row := range existing.Rows {
		if outKey < len(row) {
			if k := dedup.Key(row[outKey]); k != "" {
				seen[k] = struct{}{}
			}
		}
	}

	idx := union.SourceIndexFor(merged.Columns, existing.Columns, union.Options{CaseInsensitive: true})
	used := make(map[int]bool, len(idx))
	for _, i := range idx {
		used[i] = true
	}
	var dropped []string
	for i, c := range merged.Columns {
		if !used[i] {
			dropped = append(dropped, c)
		}
	}
	if len(dropped) > 0 {
		r.log().Warn("merge: output lacks merged columns; their values are not appended",
			"table", existing.Name, "columns", strings.Join(dropped, ", "))
	}

	var out []table.Row
	skipped := 0
	for _, row := range merged.Rows {
		if k := dedup.Key(row[keyIdx]); k != "" {
			if _, ok := seen[k]; ok {
				skipped++
				continue
			}
		}
		p, _ := union.Project(row, idx, existing.Columns, false)
		out = append(out, p)
	}
	return out, skipped, nil
}

// CleanResult describes a lead cleaning run.
type CleanResult struct {
	Output   string
	Sources  int
	Rows     int
	Removed  int
	Blank    int
	Skipped  string
	Recorded int
}

func (r CleanResult) Summary() string {
	if r.Rows == 0 {
		return "⚠️ No valid records found; nothing was written."
	}
	msg := fmt.Sprintf("✅ Cleaned %d tables into %s: %s leads, %s duplicates removed, %s rows without a key dropped.",
		r.Sources, r.Output, count(r.Rows), count(r.Removed), count(r.Blank))
	if r.Skipped != "" {
		msg += fmt.Sprintf(" %s skipped rows listed in %s.", count(r.Recorded), r.Skipped)
	}
	return msg
}

// Clean projects every eligible table onto the configured lead columns,
// mapping alias spellings and trimming values, then keeps one row per key.
// Rows with a blank key are dropped.
func (r *Runner) Clean(ctx context.Context) (res CleanResult, err error) {
	start := r.begin(OpClean, "Cleaning lead data...")
	defer func() { err = r.finish(OpClean, start, res, err) }()

	cfg := r.Cfg.Clean
	winner, err := dedup.ParseWinner(cfg.Winner)
	if err != nil {
		return res, err
	}
	aliases := make([]union.Alias, len(cfg.Columns))
	columns := make([]string, len(cfg.Columns))
	for i, c := range cfg.Columns {
		aliases[i] = union.Alias{Output: c.Output, Names: c.Aliases}
		columns[i] = c.Output
	}
	out := table.New(cfg.Output, columns)
	keyIdx, err := out.IndexFold(cfg.DedupKey)
	if err != nil {
		return res, err
	}

	sources, err := r.eligible(ctx, cfg.Exclude, cfg.Output, cfg.Skipped)
	if err != nil {
		return res, err
	}
	tables, err := storage.ReadTables(ctx, r.Store, sources, r.Cfg.Store.ReadConcurrency)
	if err != nil {
		return res, err
	}
	opts := union.Options{Aliases: aliases, Restrict: true, CaseInsensitive: true}
	var rows []table.Row
	for _, t := range tables {
		for _, row := range union.ProjectAll(t, columns, opts, true) {
			rows = append(rows, trimRow(row))
		}
	}

	d := dedup.Deduplicate(rows, keyIdx, dedup.Policy{Winner: winner, Blank: dedup.BlankDrop})
	res = CleanResult{Output: cfg.Output, Sources: len(sources), Rows: len(d.Rows), Removed: d.Removed, Blank: d.BlankKeys}
	r.rows(OpClean, "duplicate", d.Removed)
	r.rows(OpClean, "blank_key", d.BlankKeys)
	if len(d.Rows) == 0 {
		r.log().Warn("clean: no valid records", "sources", len(sources))
		return res, nil
	}

	out.Rows = d.Rows
	if err := r.Store.WriteTable(ctx, out); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Output, err)
	}
	r.rows(OpClean, "written", out.Len())

	if cfg.Skipped != "" {
		skipped := skippedTable(cfg.Skipped, columns, columns[keyIdx], d)
		if err := r.Store.WriteTable(ctx, skipped); err != nil {
			return res, fmt.Errorf("write %s: %w", cfg.Skipped, err)
		}
		res.Skipped, res.Recorded = cfg.Skipped, skipped.Len()
	}
	return res, nil
}

func trimRow(row table.Row) table.Row {
	for i, v := range row {
		if s, ok := v.(string); ok {
			row[i] = strings.TrimSpace(s)
		}
	}
	return row
}

func skippedTable(name string, columns []string, key string, d dedup.Result) *table.Table {
	t := table.New(name, append(append([]string(nil), columns...), SkipReasonHeader))
	add := func(rows []table.Row, reason string) {
		for _, row := range rows {
			t.Append(append(table.Fit(row, len(columns)), reason))
		}
	}
	add(d.Dropped, "❌ Missing "+key)
	add(d.Displaced, "⚠️ Duplicate "+key)
	return t
}

// DedupResult describes a standalone dedup.
type DedupResult struct {
	Table     string
	Rows      int
	Removed   int
	BlankKeys int
	Blank     dedup.BlankMode
}

func (r DedupResult) Summary() string {
	msg := fmt.Sprintf("✅ %s: %s duplicates removed, %s rows remain.", r.Table, count(r.Removed), count(r.Rows))
	if r.Blank == dedup.BlankDrop && r.BlankKeys > 0 {
		msg += fmt.Sprintf(" %s rows without a key dropped.", count(r.BlankKeys))
	}
	return msg
}

// Dedup deduplicates dedup.table in place.
func (r *Runner) Dedup(ctx context.Context) (res DedupResult, err error) {
	start := r.begin(OpDedup, "Removing duplicates...")
	defer func() { err = r.finish(OpDedup, start, res, err) }()

	cfg := r.Cfg.Dedup
	if strings.TrimSpace(cfg.Table) == "" {
		return res, &table.ConfigurationError{Reason: errors.New("dedup.table is not set")}
	}
	p, err := policy(cfg.Dedup)
	if err != nil {
		return res, err
	}
	t, err := r.Store.ReadTable(ctx, cfg.Table)
	if err != nil {
		return res, err
	}
	d, err := dedup.Table(t, cfg.Dedup.Key, p)
	if err != nil {
		return res, err
	}
	if err := r.Store.WriteTable(ctx, t); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Table, err)
	}
	r.rows(OpDedup, "duplicate", d.Removed)
	return DedupResult{Table: cfg.Table, Rows: t.Len(), Removed: d.Removed, BlankKeys: d.BlankKeys, Blank: p.Blank}, nil
}
