// Package ops implements the sheetops operations on top of the engines: each
// method of Runner reads its tables from a storage.Store, runs one engine and
// writes the result back.
//
// Every operation sends progress toasts and exactly one Alert, either a
// summary of its counts or the error that stopped it. Column resolution
// happens before any write, so a *table.ConfigurationError never leaves a
// partial result behind.
package ops

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sheetops/internal/config"
	"sheetops/internal/kvstore"
	"sheetops/internal/metrics"
	"sheetops/internal/notify"
	"sheetops/internal/storage"
)

// Operation names, used for metrics, logs and CLI subcommands.
const (
	OpUnion   = "union"
	OpBatch   = "batch"
	OpMerge   = "merge"
	OpClean   = "clean"
	OpDedup   = "dedup"
	OpGeo     = "geo"
	OpRegions = "regions"
	OpTitles  = "titles"
	OpSize    = "size"
	OpMaster  = "master"
	OpColumns = "columns"
)

// Runner carries the collaborators shared by every operation.
type Runner struct {
	Cfg   *config.Config
	Store storage.Store
	// KV holds batch checkpoints. Only Batch uses it.
	KV   kvstore.Store
	Sink notify.Sink
	Log  *slog.Logger

	// Now and NewRunID are replaceable for tests.
	Now      func() time.Time
	NewRunID func() string
}

// Summary is implemented by every operation result.
type Summary interface {
	Summary() string
}

func (r *Runner) log() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

func (r *Runner) sink() notify.Sink {
	if r.Sink == nil {
		return notify.Log{Logger: r.log()}
	}
	return r.Sink
}

func (r *Runner) job() string { return r.Cfg.Job }

func (r *Runner) begin(op, msg string) time.Time {
	r.sink().Toast(msg, "Processing", 5)
	r.log().Info("op: start", "op", op, "job", r.job())
	return time.Now()
}

// finish records the step and sends the closing alert. It returns err
// prefixed with op.
func (r *Runner) finish(op string, start time.Time, res Summary, err error) error {
	d := time.Since(start)
	metrics.RecordStep(r.job(), op, err, d)
	if err != nil {
		r.log().Error("op: failed", "op", op, "job", r.job(), "err", err, "elapsed", d)
		r.sink().Alert(fmt.Sprintf("❗ %s failed: %v", op, err))
		return fmt.Errorf("%s: %w", op, err)
	}
	r.log().Info("op: done", "op", op, "job", r.job(), "elapsed", d)
	r.sink().Alert(res.Summary())
	return nil
}

func (r *Runner) rows(op, kind string, n int) {
	metrics.RecordRows(r.job(), op, kind, n)
}

// Eligible filters table names through ex: exact Names are dropped, as is
// any name whose lowercase form contains one of Contains. skip names are
// dropped as well, typically the operation's own outputs.
func Eligible(names []string, ex config.Exclude, skip ...string) []string {
	drop := make(map[string]struct{}, len(ex.Names)+len(skip))
	for _, n := range ex.Names {
		drop[n] = struct{}{}
	}
	for _, n := range skip {
		if n != "" {
			drop[n] = struct{}{}
		}
	}
	var out []string
	for _, n := range names {
		if _, ok := drop[n]; ok {
			continue
		}
		if containsAny(strings.ToLower(n), ex.Contains) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func (r *Runner) eligible(ctx context.Context, ex config.Exclude, skip ...string) ([]string, error) {
	names, err := r.Store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return Eligible(names, ex, skip...), nil
}

func count(n int) string { return humanize.Comma(int64(n)) }
