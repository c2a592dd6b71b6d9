package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"sheetops/internal/table"
)

// DefaultBatchSize is the number of rows per CopyFn call used by the SQL
// backends.
const DefaultBatchSize = 500

// CopyFn abstracts a backend's bulk insert. Implementations insert rows
// (aligned to columns) and return the number of rows reported as inserted.
// It must cancel promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows []table.Row) (int64, error)

// LoadBatches drains rows from in, groups them into batches of batchSize and
// calls copyFn for each non-empty batch. It returns the total reported by
// copyFn and the first error encountered. A progress line is logged at debug
// level on every successful flush.
func LoadBatches(
	ctx context.Context,
	log *slog.Logger,
	columns []string,
	in <-chan table.Row,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("storage: batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("storage: copyFn must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	var (
		total       int64
		batches     int64
		batch       = make([]table.Row, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			log.Error("loader: copy failed", "after", n, "total", total, "err", err)
			return err
		}

		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = math.Round(float64(total-lastTotal) / sinceLast.Seconds())
		}
		log.Debug("loader: batch flushed",
			"batch", batches,
			"rps", rps,
			"inserted", n,
			"total_inserted", total,
			"elapsed", now.Sub(start).Truncate(time.Millisecond),
			"since_last", sinceLast.Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastTotal = total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case row, ok := <-in:
			if !ok {
				pending := len(batch)
				if err := flush(); err != nil {
					return total, err
				}
				log.Debug("loader: input closed", "final_flush", pending, "total_inserted", total)
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// CopyRows feeds rows through LoadBatches. Each row is fitted to
// len(columns) before it reaches copyFn.
func CopyRows(
	ctx context.Context,
	log *slog.Logger,
	columns []string,
	rows []table.Row,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan table.Row, batchSize)

	g.Go(func() error {
		defer close(ch)
		for _, r := range rows {
			select {
			case ch <- table.Fit(r, len(columns)):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var total int64
	g.Go(func() error {
		n, err := LoadBatches(gctx, log, columns, ch, batchSize, copyFn)
		total = n
		return err
	})

	err := g.Wait()
	return total, err
}
