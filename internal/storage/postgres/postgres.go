// Package postgres implements storage.Store on PostgreSQL using pgx v5.
//
// The layout matches the database/sql backends: a catalog table records each
// logical table and its header, and rows live in a physical table
// sheetops_t<seq> with a _row ordinal plus text columns c0..cN. Rows are
// loaded with COPY.
//
// Options (store.options): schema (default "public"), batch_size.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetops/internal/config"
	"sheetops/internal/storage"
	"sheetops/internal/table"
)

const (
	catalogTable   = "sheetops_tables"
	highlightTable = "sheetops_highlights"
	rowColumn      = "_row"
)

// newPool is a test hook that points to pgxpool.New by default.
var newPool = pgxpool.New

// Store is a Postgres-backed storage.Store.
type Store struct {
	pool      *pgxpool.Pool
	schema    string
	sb        sq.StatementBuilderType
	batchSize int
	log       *slog.Logger
}

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return Open(ctx, cfg.DSN, cfg.Options)
	})
}

// Open connects to dsn and creates the catalog tables when missing.
func Open(ctx context.Context, dsn string, opts config.Options) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := newPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := &Store{
		pool:      pool,
		schema:    opts.String("schema", "public"),
		sb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		batchSize: opts.Int("batch_size", storage.DefaultBatchSize),
		log:       slog.Default().With("store", "postgres"),
	}
	for _, stmt := range bootstrapSQL(s.schema) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: bootstrap: %w", err)
		}
	}
	return s, nil
}

func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes each dot-separated part of name.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// splitFQN converts "schema.table" into a pgx.Identifier.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			id = append(id, p)
		}
	}
	return id
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

func bootstrapSQL(schema string) []string {
	return []string{
		"CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (tbl text PRIMARY KEY, seq bigint NOT NULL, hdr jsonb NOT NULL)",
			pgFQN(schema+"."+catalogTable)),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (tbl text NOT NULL, r integer NOT NULL, c integer NOT NULL, color text NOT NULL, PRIMARY KEY (tbl, r, c))",
			pgFQN(schema+"."+highlightTable)),
	}
}

func physName(seq int64) string { return fmt.Sprintf("sheetops_t%d", seq) }

func dataColumns(width int) []string {
	cols := make([]string, 0, width+1)
	cols = append(cols, rowColumn)
	for i := 0; i < width; i++ {
		cols = append(cols, fmt.Sprintf("c%d", i))
	}
	return cols
}

func createPhysSQL(schema string, seq int64, width int) string {
	defs := []string{pgIdent(rowColumn) + " bigint PRIMARY KEY"}
	for _, c := range dataColumns(width)[1:] {
		defs = append(defs, pgIdent(c)+" text")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", pgFQN(schema+"."+physName(seq)), strings.Join(defs, ", "))
}

func (s *Store) fqn(name string) string { return pgFQN(s.schema + "." + name) }

type entry struct {
	seq     int64
	columns []string
}

func (s *Store) lookup(ctx context.Context, q querier, name string) (entry, bool, error) {
	query, args, err := s.sb.Select("seq", "hdr").
		From(s.fqn(catalogTable)).
		Where(sq.Eq{"tbl": name}).
		ToSql()
	if err != nil {
		return entry{}, false, err
	}
	var (
		e   entry
		hdr []byte
	)
	err = q.QueryRow(ctx, query, args...).Scan(&e.seq, &hdr)
	if errors.Is(err, pgx.ErrNoRows) {
		return entry{}, false, nil
	}
	if err != nil {
		return entry{}, false, fmt.Errorf("postgres: lookup %s: %w", name, err)
	}
	if err := json.Unmarshal(hdr, &e.columns); err != nil {
		return entry{}, false, fmt.Errorf("postgres: lookup %s: header: %w", name, err)
	}
	return e, true, nil
}

func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	query, args, err := s.sb.Select("tbl").From(s.fqn(catalogTable)).OrderBy("seq").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	return names, nil
}

func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.lookup(ctx, s.pool, name)
	return ok, err
}

func (s *Store) ReadTable(ctx context.Context, name string) (*table.Table, error) {
	e, ok, err := s.lookup(ctx, s.pool, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &table.MissingSourceError{Name: name}
	}
	t := table.New(name, e.columns)
	width := len(e.columns)
	if width == 0 {
		return t, nil
	}
	query, args, err := s.sb.Select(mapIdent(dataColumns(width)[1:])...).
		From(s.fqn(physName(e.seq))).
		OrderBy(pgIdent(rowColumn)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: read %s: %w", name, err)
	}
	t.Rows, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (table.Row, error) {
		cells := make([]*string, width)
		dest := make([]any, width)
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := row.Scan(dest...); err != nil {
			return nil, err
		}
		r := make(table.Row, width)
		for i, c := range cells {
			if c != nil && *c != "" {
				r[i] = *c
			}
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: read %s: %w", name, err)
	}
	return t, nil
}

// replace (re)creates the physical table for name and records columns in the
// catalog, returning the sequence number in use.
func (s *Store) replace(ctx context.Context, tx pgx.Tx, name string, columns []string) (int64, error) {
	hdr, err := json.Marshal(append([]string{}, columns...))
	if err != nil {
		return 0, err
	}
	e, ok, err := s.lookup(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	if ok {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+s.fqn(physName(e.seq))); err != nil {
			return 0, fmt.Errorf("drop %s: %w", physName(e.seq), err)
		}
		query, args, err := s.sb.Update(s.fqn(catalogTable)).Set("hdr", string(hdr)).Where(sq.Eq{"tbl": name}).ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("update catalog: %w", err)
		}
	} else {
		query, args, err := s.sb.Insert(s.fqn(catalogTable)).
			Columns("tbl", "seq", "hdr").
			Select(s.sb.Select().
				Column(sq.Expr("?", name)).
				Column(sq.Expr("COALESCE(MAX(seq), 0) + 1")).
				Column(sq.Expr("?::jsonb", string(hdr))).
				From(s.fqn(catalogTable))).
			Suffix("RETURNING seq").
			ToSql()
		if err != nil {
			return 0, err
		}
		if err := tx.QueryRow(ctx, query, args...).Scan(&e.seq); err != nil {
			return 0, fmt.Errorf("insert catalog: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, createPhysSQL(s.schema, e.seq, len(columns))); err != nil {
		return 0, fmt.Errorf("create %s: %w", physName(e.seq), err)
	}
	return e.seq, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// copyRows COPYs rows into the physical table, numbering them from first.
func (s *Store) copyRows(ctx context.Context, tx pgx.Tx, seq int64, width int, first int64, rows []table.Row) error {
	if len(rows) == 0 {
		return nil
	}
	ident := pgx.Identifier{s.schema, physName(seq)}
	cols := dataColumns(width)
	next := first
	copyFn := func(ctx context.Context, _ []string, batch []table.Row) (int64, error) {
		values := make([][]any, len(batch))
		for i, r := range batch {
			v := make([]any, 0, width+1)
			v = append(v, next)
			next++
			for _, c := range r {
				if table.IsBlank(c) {
					v = append(v, nil)
				} else {
					v = append(v, table.Text(c))
				}
			}
			values[i] = v
		}
		return tx.CopyFrom(ctx, ident, cols, pgx.CopyFromRows(values))
	}
	_, err := storage.CopyRows(ctx, s.log, make([]string, width), rows, s.batchSize, copyFn)
	return err
}

func (s *Store) WriteTable(ctx context.Context, t *table.Table) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		seq, err := s.replace(ctx, tx, t.Name, t.Columns)
		if err != nil {
			return err
		}
		return s.copyRows(ctx, tx, seq, len(t.Columns), 0, t.Rows)
	})
	if err != nil {
		return fmt.Errorf("postgres: write %s: %w", t.Name, err)
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, name string, columns []string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, ok, err := s.lookup(ctx, tx, name)
		if err != nil || ok {
			return err
		}
		_, err = s.replace(ctx, tx, name, columns)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: create %s: %w", name, err)
	}
	return nil
}

func (s *Store) AppendRows(ctx context.Context, name string, rows []table.Row) error {
	var missing bool
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		e, ok, err := s.lookup(ctx, tx, name)
		if err != nil {
			return err
		}
		if !ok {
			missing = true
			return nil
		}
		if len(rows) == 0 {
			return nil
		}
		var next int64
		q := fmt.Sprintf("SELECT COALESCE(MAX(%s) + 1, 0) FROM %s", pgIdent(rowColumn), s.fqn(physName(e.seq)))
		if err := tx.QueryRow(ctx, q).Scan(&next); err != nil {
			return fmt.Errorf("next row: %w", err)
		}
		return s.copyRows(ctx, tx, e.seq, len(e.columns), next, rows)
	})
	if missing {
		return &table.MissingSourceError{Name: name}
	}
	if err != nil {
		return fmt.Errorf("postgres: append %s: %w", name, err)
	}
	return nil
}

func (s *Store) SetCellBackground(ctx context.Context, name string, cells []table.Cell, color string) error {
	var missing bool
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, ok, err := s.lookup(ctx, tx, name); err != nil || !ok {
			missing = !ok && err == nil
			return err
		}
		if len(cells) == 0 {
			return nil
		}
		ins := s.sb.Insert(s.fqn(highlightTable)).Columns("tbl", "r", "c", "color")
		for _, c := range cells {
			ins = ins.Values(name, c.Row, c.Col, color)
		}
		query, args, err := ins.Suffix("ON CONFLICT (tbl, r, c) DO UPDATE SET color = EXCLUDED.color").ToSql()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query, args...)
		return err
	})
	if missing {
		return &table.MissingSourceError{Name: name}
	}
	if err != nil {
		return fmt.Errorf("postgres: highlight %s: %w", name, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
