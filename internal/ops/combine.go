package ops

import (
	"context"
	"fmt"
	"strings"

	"sheetops/internal/checkpoint"
	"sheetops/internal/metrics"
	"sheetops/internal/storage"
	"sheetops/internal/union"
)

// UnionResult describes a one-pass combine.
type UnionResult struct {
	Output  string
	Sources int
	Columns int
	Rows    int
}

func (r UnionResult) Summary() string {
	return fmt.Sprintf("✅ Combined %s rows from %d tables into %s (%d columns).",
		count(r.Rows), r.Sources, r.Output, r.Columns)
}

// Union combines every eligible table into combine.output in one pass.
func (r *Runner) Union(ctx context.Context) (res UnionResult, err error) {
	start := r.begin(OpUnion, "Combining tables...")
	defer func() { err = r.finish(OpUnion, start, res, err) }()

	cfg := r.Cfg.Combine
	sources, err := r.eligible(ctx, cfg.Exclude, cfg.Output)
	if err != nil {
		return res, err
	}
	tables, err := storage.ReadTables(ctx, r.Store, sources, r.Cfg.Store.ReadConcurrency)
	if err != nil {
		return res, err
	}
	out := union.Combine(cfg.Output, tables, union.Options{}, cfg.SkipEmpty())
	if err := r.Store.WriteTable(ctx, out); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Output, err)
	}
	r.rows(OpUnion, "written", out.Len())
	return UnionResult{Output: cfg.Output, Sources: len(sources), Columns: out.Width(), Rows: out.Len()}, nil
}

// BatchResult describes one batch invocation.
type BatchResult struct {
	Step   checkpoint.Summary
	Output string
	Total  int
	Done   bool
}

func (r BatchResult) Summary() string {
	if r.Done {
		return fmt.Sprintf("✅ All %d tables combined into %s: %s rows in %s.",
			r.Total, r.Output, count(r.Step.RowsCombined), checkpoint.FormatElapsed(r.Step.Elapsed))
	}
	return fmt.Sprintf("✅ Batch %d-%d of %d done (%s rows so far).\nProcessed: %s\nPending: %s\nRun again to continue.",
		r.Step.From+1, r.Step.To, r.Total, count(r.Step.RowsCombined),
		strings.Join(r.Step.Processed, ", "), strings.Join(r.Step.Pending, ", "))
}

// Batch runs one batch of the checkpointed combine. Progress is kept in the
// Runner's KV store between invocations.
func (r *Runner) Batch(ctx context.Context) (res BatchResult, err error) {
	start := r.begin(OpBatch, "Combining next batch...")
	defer func() { err = r.finish(OpBatch, start, res, err) }()

	if r.KV == nil {
		return res, fmt.Errorf("no checkpoint store configured")
	}
	cfg := r.Cfg.Combine
	sources, err := r.eligible(ctx, cfg.Exclude, cfg.Output)
	if err != nil {
		return res, err
	}
	ctl := &checkpoint.Controller{
		Store:           r.Store,
		Output:          cfg.Output,
		KeepEmptyRows:   !cfg.SkipEmpty(),
		ReadConcurrency: r.Cfg.Store.ReadConcurrency,
		Log:             r.log(),
		Now:             r.Now,
		NewRunID:        r.NewRunID,
	}
	_, done, sum, err := ctl.Step(ctx, checkpoint.Codec{KV: r.KV}, sources, cfg.BatchSize)
	if err != nil {
		return res, err
	}
	metrics.RecordBatches(r.job(), 1)
	r.rows(OpBatch, "appended", sum.Appended)
	return BatchResult{Step: sum, Output: cfg.Output, Total: len(sources), Done: done}, nil
}
