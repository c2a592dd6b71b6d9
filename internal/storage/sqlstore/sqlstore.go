// Package sqlstore implements storage.Store on database/sql engines: SQLite
// (modernc.org/sqlite), MySQL (go-sql-driver/mysql) and SQL Server
// (go-mssqldb).
//
// Logical tables are recorded in a catalog table together with their header
// row. Each logical table is stored in its own physical table
// sheetops_t<seq> holding a _row ordinal and one TEXT column per header
// (c0..cN), so arbitrary header text never has to become a SQL identifier.
// Blank cells are stored as NULL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	mssql "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"sheetops/internal/config"
	"sheetops/internal/storage"
	"sheetops/internal/table"
)

const (
	catalogTable   = "sheetops_tables"
	highlightTable = "sheetops_highlights"
	rowColumn      = "_row"
)

// openDB is a test hook for sql.Open.
var openDB = sql.Open

// Store is a database/sql-backed storage.Store.
type Store struct {
	db        *sql.DB
	d         dialect
	sb        sq.StatementBuilderType
	batchSize int
	log       *slog.Logger
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func init() {
	for kind := range dialects {
		storage.Register(kind, func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
			return Open(ctx, kind, cfg.DSN, cfg.Options)
		})
	}
}

// Open connects to dsn with the named dialect (sqlite, mysql or mssql) and
// creates the catalog tables when missing. Options: batch_size (rows per
// INSERT, default storage.DefaultBatchSize).
func Open(ctx context.Context, kind, dsn string, opts config.Options) (*Store, error) {
	d, err := lookupDialect(kind)
	if err != nil {
		return nil, err
	}
	if err := d.validateDSN(dsn); err != nil {
		return nil, fmt.Errorf("sqlstore: %s dsn: %w", kind, err)
	}
	db, err := openDB(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %s open: %w", kind, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: %s ping: %w", kind, err)
	}
	if kind == "sqlite" {
		// One writer at a time; concurrent reads still share the connection.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:        db,
		d:         d,
		sb:        sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		batchSize: opts.Int("batch_size", storage.DefaultBatchSize),
		log:       slog.Default().With("store", kind),
	}
	if err := s.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	q := s.d.quote
	stmts := []string{
		s.d.ifMissing(catalogTable, fmt.Sprintf(
			"CREATE TABLE %s (%s %s NOT NULL PRIMARY KEY, %s %s NOT NULL, %s %s NOT NULL)",
			q(catalogTable), q("tbl"), s.d.keyType, q("seq"), s.d.intType, q("hdr"), s.d.textType)),
		s.d.ifMissing(highlightTable, fmt.Sprintf(
			"CREATE TABLE %s (%s %s NOT NULL, %s %s NOT NULL, %s %s NOT NULL, %s %s NOT NULL, PRIMARY KEY (%s, %s, %s))",
			q(highlightTable), q("tbl"), s.d.keyType, q("r"), s.d.intType, q("c"), s.d.intType, q("color"), s.d.keyType,
			q("tbl"), q("r"), q("c"))),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: bootstrap: %w", err)
		}
	}
	return nil
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

type entry struct {
	seq     int64
	columns []string
}

func (s *Store) lookup(ctx context.Context, x execer, name string) (entry, bool, error) {
	query, args, err := s.sb.Select(s.d.quote("seq"), s.d.quote("hdr")).
		From(s.d.quote(catalogTable)).
		Where(sq.Eq{s.d.quote("tbl"): name}).
		ToSql()
	if err != nil {
		return entry{}, false, err
	}
	var (
		e   entry
		hdr string
	)
	err = x.QueryRowContext(ctx, query, args...).Scan(&e.seq, &hdr)
	if errors.Is(err, sql.ErrNoRows) {
		return entry{}, false, nil
	}
	if err != nil {
		return entry{}, false, fmt.Errorf("sqlstore: lookup %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(hdr), &e.columns); err != nil {
		return entry{}, false, fmt.Errorf("sqlstore: lookup %s: header: %w", name, err)
	}
	return e, true, nil
}

func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	query, args, err := s.sb.Select(s.d.quote("tbl")).
		From(s.d.quote(catalogTable)).
		OrderBy(s.d.quote("seq")).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("sqlstore: list: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.lookup(ctx, s.db, name)
	return ok, err
}

func (s *Store) ReadTable(ctx context.Context, name string) (*table.Table, error) {
	e, ok, err := s.lookup(ctx, s.db, name)
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

	query, args, err := s.sb.Select(s.d.quoteAll(dataColumns(width)[1:])...).
		From(s.d.quote(physName(e.seq))).
		OrderBy(s.d.quote(rowColumn)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: read %s: %w", name, err)
	}
	defer rows.Close()

	cells := make([]sql.NullString, width)
	dest := make([]any, width)
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sqlstore: read %s: %w", name, err)
		}
		r := make(table.Row, width)
		for i, c := range cells {
			if c.Valid && c.String != "" {
				r[i] = c.String
			}
		}
		t.Rows = append(t.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: read %s: %w", name, err)
	}
	return t, nil
}

func (s *Store) createPhys(ctx context.Context, x execer, seq int64, width int) error {
	defs := []string{fmt.Sprintf("%s %s NOT NULL PRIMARY KEY", s.d.quote(rowColumn), s.d.intType)}
	for _, c := range dataColumns(width)[1:] {
		defs = append(defs, fmt.Sprintf("%s %s NULL", s.d.quote(c), s.d.textType))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", s.d.quote(physName(seq)), strings.Join(defs, ", "))
	if _, err := x.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", physName(seq), err)
	}
	return nil
}

func (s *Store) dropPhys(ctx context.Context, x execer, seq int64) error {
	stmt := "DROP TABLE IF EXISTS " + s.d.quote(physName(seq))
	if _, err := x.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop %s: %w", physName(seq), err)
	}
	return nil
}

// replace (re)creates the physical table of name with columns and records
// the header in the catalog. It returns the sequence number in use.
func (s *Store) replace(ctx context.Context, tx *sql.Tx, name string, columns []string) (int64, error) {
	hdr, err := json.Marshal(append([]string{}, columns...))
	if err != nil {
		return 0, err
	}
	e, ok, err := s.lookup(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	q := s.d.quote
	if ok {
		if err := s.dropPhys(ctx, tx, e.seq); err != nil {
			return 0, err
		}
		query, args, err := s.sb.Update(q(catalogTable)).
			Set(q("hdr"), string(hdr)).
			Where(sq.Eq{q("tbl"): name}).
			ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("update catalog: %w", err)
		}
	} else {
		var maxSeq int64
		query, args, err := s.sb.Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", q("seq"))).From(q(catalogTable)).ToSql()
		if err != nil {
			return 0, err
		}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&maxSeq); err != nil {
			return 0, fmt.Errorf("next seq: %w", err)
		}
		e.seq = maxSeq + 1
		query, args, err = s.sb.Insert(q(catalogTable)).
			Columns(q("tbl"), q("seq"), q("hdr")).
			Values(name, e.seq, string(hdr)).
			ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("insert catalog: %w", err)
		}
	}
	if err := s.createPhys(ctx, tx, e.seq, len(columns)); err != nil {
		return 0, err
	}
	return e.seq, nil
}

func (s *Store) WriteTable(ctx context.Context, t *table.Table) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		seq, err := s.replace(ctx, tx, t.Name, t.Columns)
		if err != nil {
			return err
		}
		return s.insertRows(ctx, tx, seq, len(t.Columns), 0, t.Rows)
	})
	if err != nil {
		return fmt.Errorf("sqlstore: write %s: %w", t.Name, err)
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, name string, columns []string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, ok, err := s.lookup(ctx, tx, name)
		if err != nil || ok {
			return err
		}
		_, err = s.replace(ctx, tx, name, columns)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlstore: create %s: %w", name, err)
	}
	return nil
}

func (s *Store) AppendRows(ctx context.Context, name string, rows []table.Row) error {
	var missing bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
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
		query, args, err := s.sb.Select(fmt.Sprintf("COALESCE(MAX(%s) + 1, 0)", s.d.quote(rowColumn))).
			From(s.d.quote(physName(e.seq))).
			ToSql()
		if err != nil {
			return err
		}
		var next int64
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&next); err != nil {
			return fmt.Errorf("next row: %w", err)
		}
		return s.insertRows(ctx, tx, e.seq, len(e.columns), next, rows)
	})
	if missing {
		return &table.MissingSourceError{Name: name}
	}
	if err != nil {
		return fmt.Errorf("sqlstore: append %s: %w", name, err)
	}
	return nil
}

// cellValue maps a cell to its stored form: NULL for blanks, text otherwise.
func cellValue(v any) any {
	if table.IsBlank(v) {
		return nil
	}
	return table.Text(v)
}

func (s *Store) insertRows(ctx context.Context, tx *sql.Tx, seq int64, width int, first int64, rows []table.Row) error {
	if len(rows) == 0 {
		return nil
	}
	batch := s.batchSize
	if limit := s.d.maxParams / (width + 1); limit < batch {
		batch = limit
	}
	if batch < 1 {
		batch = 1
	}
	phys := physName(seq)
	cols := dataColumns(width)
	next := first

	copyFn := func(ctx context.Context, _ []string, rows []table.Row) (int64, error) {
		values := make([][]any, len(rows))
		for i, r := range rows {
			vals := make([]any, 0, width+1)
			vals = append(vals, next)
			next++
			for _, v := range r {
				vals = append(vals, cellValue(v))
			}
			values[i] = vals
		}
		if s.d.bulk {
			return s.bulkCopy(ctx, tx, phys, cols, values)
		}
		ins := s.sb.Insert(s.d.quote(phys)).Columns(s.d.quoteAll(cols)...)
		for _, v := range values {
			ins = ins.Values(v...)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, err
		}
		return int64(len(rows)), nil
	}
	header := make([]string, width)
	_, err := storage.CopyRows(ctx, s.log, header, rows, batch, copyFn)
	return err
}

// bulkCopy streams values through the SQL Server bulk copy API.
func (s *Store) bulkCopy(ctx context.Context, tx *sql.Tx, phys string, cols []string, values [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(phys, mssql.BulkOptions{}, cols...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i, v := range values {
		if _, err := stmt.ExecContext(ctx, v...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) SetCellBackground(ctx context.Context, name string, cells []table.Cell, color string) error {
	var missing bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, ok, err := s.lookup(ctx, tx, name)
		if err != nil {
			return err
		}
		if !ok {
			missing = true
			return nil
		}
		q := s.d.quote
		for _, c := range cells {
			del, dargs, err := s.sb.Delete(q(highlightTable)).
				Where(sq.Eq{q("tbl"): name, q("r"): c.Row, q("c"): c.Col}).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, del, dargs...); err != nil {
				return err
			}
			ins, iargs, err := s.sb.Insert(q(highlightTable)).
				Columns(q("tbl"), q("r"), q("c"), q("color")).
				Values(name, c.Row, c.Col, color).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, ins, iargs...); err != nil {
				return err
			}
		}
		return nil
	})
	if missing {
		return &table.MissingSourceError{Name: name}
	}
	if err != nil {
		return fmt.Errorf("sqlstore: highlight %s: %w", name, err)
	}
	return nil
}

// Highlights returns the cell backgrounds recorded for name.
func (s *Store) Highlights(ctx context.Context, name string) (map[table.Cell]string, error) {
	q := s.d.quote
	query, args, err := s.sb.Select(q("r"), q("c"), q("color")).
		From(q(highlightTable)).
		Where(sq.Eq{q("tbl"): name}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: highlights %s: %w", name, err)
	}
	defer rows.Close()
	out := map[table.Cell]string{}
	for rows.Next() {
		var (
			c     table.Cell
			color string
		)
		if err := rows.Scan(&c.Row, &c.Col, &color); err != nil {
			return nil, fmt.Errorf("sqlstore: highlights %s: %w", name, err)
		}
		out[c] = color
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
