package storage

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sheetops/internal/table"
)

// ReadTables reads names from s with at most limit reads in flight. The
// result is aligned to names. The first failure cancels the remaining reads
// and is returned as is, so a *table.MissingSourceError stays matchable.
func ReadTables(ctx context.Context, s Store, names []string, limit int) ([]*table.Table, error) {
	out := make([]*table.Table, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, name := range names {
		g.Go(func() error {
			t, err := s.ReadTable(gctx, name)
			if err != nil {
				return err
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// HeaderReader is implemented by stores that can read a header row without
// loading the table's rows.
type HeaderReader interface {
	ReadHeader(ctx context.Context, name string) ([]string, error)
}

// ReadHeaders returns the header row of every named table, aligned to names.
// Stores without a HeaderReader fall back to full reads.
func ReadHeaders(ctx context.Context, s Store, names []string, limit int) ([][]string, error) {
	hr, ok := s.(HeaderReader)
	if !ok {
		tables, err := ReadTables(ctx, s, names, limit)
		if err != nil {
			return nil, err
		}
		out := make([][]string, len(tables))
		for i, t := range tables {
			out[i] = t.Columns
		}
		return out, nil
	}

	out := make([][]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, name := range names {
		g.Go(func() error {
			h, err := hr.ReadHeader(gctx, name)
			if err != nil {
				return err
			}
			out[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
