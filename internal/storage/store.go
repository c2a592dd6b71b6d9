// Package storage defines the tabular store contract every operation reads
// and writes through, plus backend-agnostic helpers: a kind registry, a
// batched row loader and bounded parallel table reads.
//
// Backends register themselves from init; importing sheetops/internal/storage/all
// enables every built-in kind.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sheetops/internal/config"
	"sheetops/internal/table"
)

// Store is a named collection of tables with a header row each.
//
// ReadTable and AppendRows on an absent table return a *table.MissingSourceError.
// Row indexes in SetCellBackground count data rows from zero; the header row
// is not addressable.
type Store interface {
	ListTables(ctx context.Context) ([]string, error)
	TableExists(ctx context.Context, name string) (bool, error)
	ReadTable(ctx context.Context, name string) (*table.Table, error)
	// WriteTable replaces the table's header and rows, creating it if absent.
	WriteTable(ctx context.Context, t *table.Table) error
	// CreateTable creates an empty table with the given header. An existing
	// table is left untouched.
	CreateTable(ctx context.Context, name string, columns []string) error
	// AppendRows adds rows after the last row. Rows are padded or truncated
	// to the table's width.
	AppendRows(ctx context.Context, name string, rows []table.Row) error
	SetCellBackground(ctx context.Context, name string, cells []table.Cell, color string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Kind    string
	DSN     string
	Options config.Options
}

// Factory opens a Store for a Config.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering the same kind
// twice replaces the earlier factory.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens the Store registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Store, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	if cfg.Options == nil {
		cfg.Options = config.Options{}
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ReadRequired reads a table and checks that it carries every named column,
// matched case-insensitively. It returns the resolved indexes in name order.
func ReadRequired(ctx context.Context, s Store, name string, columns ...string) (*table.Table, []int, error) {
	t, err := s.ReadTable(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	idx, err := t.Require(columns...)
	if err != nil {
		return nil, nil, err
	}
	return t, idx, nil
}
