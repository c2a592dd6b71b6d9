package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sheetops/internal/storage"
	"sheetops/internal/table"
	"sheetops/internal/union"
)

// Controller combines sources into one output table a batch at a time.
//
// Delivery is at least once: if a run dies after appending a batch but before
// the cursor is saved, the next invocation appends that batch again.
type Controller struct {
	Store  storage.Store
	Output string
	// Union tunes header matching; the zero value is exact matching.
	Union union.Options
	// KeepEmptyRows keeps source rows whose projected cells are all blank.
	KeepEmptyRows bool
	// ReadConcurrency bounds parallel reads of source tables.
	ReadConcurrency int
	Log             *slog.Logger

	// Now and NewRunID are replaceable for tests.
	Now      func() time.Time
	NewRunID func() string
}

// Summary describes one RunBatch call.
type Summary struct {
	// From and To bound the sources processed by this batch: [From, To).
	From, To int
	// Appended is the number of rows appended by this batch.
	Appended     int
	RowsCombined int
	Processed    []string
	Pending      []string
	// Elapsed is set on the final batch.
	Elapsed time.Duration
	RunID   string
}

func (c *Controller) log() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}

func (c *Controller) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Controller) runID() string {
	if c.NewRunID == nil {
		return uuid.NewString()
	}
	return c.NewRunID()
}

// RunBatch processes sources[cp.Cursor : cp.Cursor+batchSize] and returns the
// advanced checkpoint. On a fresh checkpoint it first scans every source to
// fix the header union and rewrites the output table with that header.
// done reports whether the cursor reached the end of sources; persisting or
// deleting the checkpoint is left to the caller.
func (c *Controller) RunBatch(ctx context.Context, sources []string, batchSize int, cp BatchCheckpoint) (next BatchCheckpoint, done bool, sum Summary, err error) {
	if batchSize <= 0 {
		return cp, false, Summary{}, fmt.Errorf("checkpoint: batch size must be > 0, got %d", batchSize)
	}
	if c.Output == "" {
		return cp, false, Summary{}, errors.New("checkpoint: output table name is required")
	}
	log := c.log()
	next = cp
	hash := HashSources(sources)

	if next.Fresh() {
		headers, err := storage.ReadHeaders(ctx, c.Store, sources, c.ReadConcurrency)
		if err != nil {
			return cp, false, Summary{}, fmt.Errorf("checkpoint: scan headers: %w", err)
		}
		next = BatchCheckpoint{
			AllHeaders:  union.HeaderLists(headers, c.Union),
			StartedAt:   c.now(),
			RunID:       c.runID(),
			SourcesHash: hash,
		}
		if err := c.Store.WriteTable(ctx, table.New(c.Output, next.AllHeaders)); err != nil {
			return cp, false, Summary{}, fmt.Errorf("checkpoint: reset %s: %w", c.Output, err)
		}
		log.Info("batch: header union fixed", "run_id", next.RunID, "sources", len(sources), "columns", len(next.AllHeaders))
	} else if next.SourcesHash != 0 && next.SourcesHash != hash {
		log.Warn("batch: source list changed since the run started; cursor may skip or repeat tables",
			"run_id", next.RunID, "cursor", next.Cursor, "sources", len(sources))
	}

	from := min(next.Cursor, len(sources))
	to := min(from+batchSize, len(sources))
	batch := sources[from:to]

	tables, err := storage.ReadTables(ctx, c.Store, batch, c.ReadConcurrency)
	if err != nil {
		return cp, false, Summary{}, fmt.Errorf("checkpoint: read batch: %w", err)
	}
	var rows []table.Row
	for _, t := range tables {
		if len(t.Columns) == 0 {
			continue
		}
		rows = append(rows, union.ProjectAll(t, next.AllHeaders, c.Union, !c.KeepEmptyRows)...)
	}

	if err := c.Store.CreateTable(ctx, c.Output, next.AllHeaders); err != nil {
		return cp, false, Summary{}, fmt.Errorf("checkpoint: create %s: %w", c.Output, err)
	}
	if err := c.Store.AppendRows(ctx, c.Output, rows); err != nil {
		return cp, false, Summary{}, fmt.Errorf("checkpoint: append %s: %w", c.Output, err)
	}

	next.Cursor = to
	next.RowsCombined += len(rows)
	done = next.Cursor >= len(sources)

	sum = Summary{
		From:         from,
		To:           to,
		Appended:     len(rows),
		RowsCombined: next.RowsCombined,
		Processed:    append([]string(nil), sources[:to]...),
		Pending:      append([]string(nil), sources[to:]...),
		RunID:        next.RunID,
	}
	if done {
		sum.Elapsed = c.now().Sub(next.StartedAt)
	}
	log.Info("batch: appended",
		"run_id", next.RunID, "from", from, "to", to, "rows", len(rows),
		"rows_combined", next.RowsCombined, "done", done)
	return next, done, sum, nil
}

// Step loads the stored checkpoint, runs one batch and then saves the new
// checkpoint, or deletes it when the run is done.
func (c *Controller) Step(ctx context.Context, codec Codec, sources []string, batchSize int) (BatchCheckpoint, bool, Summary, error) {
	cp, _, err := codec.Load(ctx)
	if err != nil {
		return BatchCheckpoint{}, false, Summary{}, err
	}
	next, done, sum, err := c.RunBatch(ctx, sources, batchSize, cp)
	if err != nil {
		return cp, false, Summary{}, err
	}
	if done {
		if err := codec.Delete(ctx); err != nil {
			return next, true, sum, err
		}
		return next, true, sum, nil
	}
	if err := codec.Save(ctx, next); err != nil {
		return next, false, sum, err
	}
	return next, false, sum, nil
}

// FormatElapsed renders d as "2 mins 5 secs", "1 min" or "0 secs".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	mins, secs := total/60, total%60
	out := ""
	if mins > 0 {
		out = plural(mins, "min")
		if secs > 0 {
			out += " "
		}
	}
	if secs > 0 || mins == 0 {
		out += plural(secs, "sec")
	}
	return out
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
