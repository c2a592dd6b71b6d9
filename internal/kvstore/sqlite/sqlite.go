// Package sqlite keeps checkpoint keys in a two-column SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"sheetops/internal/kvstore"
)

const tableName = "sheetops_checkpoint"

// Store is a SQLite-backed kvstore.Store.
type Store struct {
	db     *sql.DB
	prefix string
}

// Open connects to dsn and creates the key table if needed.
func Open(ctx context.Context, dsn, prefix string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("kvstore/sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore/sqlite: open: %w", err)
	}
	// :memory: databases are per-connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore/sqlite: ping: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + tableName + ` (k TEXT PRIMARY KEY, v TEXT NOT NULL)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore/sqlite: create table: %w", err)
	}
	return &Store{db: db, prefix: prefix}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	q, args, err := sq.Select("v").From(tableName).Where(sq.Eq{"k": s.prefix + key}).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("kvstore/sqlite: build get: %w", err)
	}
	var v string
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore/sqlite: get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	q, args, err := sq.Insert(tableName).
		Columns("k", "v").
		Values(s.prefix+key, value).
		Suffix("ON CONFLICT(k) DO UPDATE SET v = excluded.v").
		ToSql()
	if err != nil {
		return fmt.Errorf("kvstore/sqlite: build set: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("kvstore/sqlite: set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	q, args, err := sq.Delete(tableName).Where(sq.Eq{"k": s.prefix + key}).ToSql()
	if err != nil {
		return fmt.Errorf("kvstore/sqlite: build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("kvstore/sqlite: delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

var _ kvstore.Store = (*Store)(nil)

func init() {
	kvstore.Register("sqlite", func(ctx context.Context, cfg kvstore.Config) (kvstore.Store, error) {
		return Open(ctx, cfg.DSN, cfg.Prefix)
	})
}
