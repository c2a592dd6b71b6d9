// Package csvdir implements storage.Store over a directory of CSV files, one
// file per table (<dir>/<name>.csv). The first record of a file is the
// header row.
//
// Options (store.options):
//
//	comma        field delimiter, default ","
//	encoding     utf-8 (default), windows-1252, iso-8859-1, iso-8859-2,
//	             iso-8859-15 or macintosh; applied when reading and writing
//	lazy_quotes  accept stray quotes in unquoted fields
//
// Cell backgrounds are kept in a sidecar file per table under
// <dir>/.highlights/ so the data files stay plain CSV.
package csvdir

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"sheetops/internal/config"
	"sheetops/internal/storage"
	"sheetops/internal/table"
)

const (
	ext          = ".csv"
	highlightDir = ".highlights"
	utf8BOM      = "\uFEFF"
)

// Store is a directory-backed storage.Store.
type Store struct {
	dir        string
	comma      rune
	lazyQuotes bool
	enc        encoding.Encoding // nil means UTF-8

	// mu serializes writers; readers only see renamed, complete files.
	mu sync.Mutex
}

func init() {
	storage.Register("csvdir", func(_ context.Context, cfg storage.Config) (storage.Store, error) {
		return Open(cfg.DSN, cfg.Options)
	})
}

// Open returns a Store rooted at dir, creating the directory if needed.
func Open(dir string, opts config.Options) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("csvdir: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvdir: mkdir %s: %w", dir, err)
	}
	enc, err := lookupEncoding(opts.String("encoding", ""))
	if err != nil {
		return nil, err
	}
	return &Store{
		dir:        dir,
		comma:      opts.Rune("comma", ','),
		lazyQuotes: opts.Bool("lazy_quotes", false),
		enc:        enc,
	}, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1, nil
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2, nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15, nil
	case "macintosh", "mac-roman":
		return charmap.Macintosh, nil
	default:
		return nil, fmt.Errorf("csvdir: unsupported encoding %q", name)
	}
}

func (s *Store) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("csvdir: invalid table name %q", name)
	}
	return filepath.Join(s.dir, name+ext), nil
}

func (s *Store) highlightPath(name string) string {
	return filepath.Join(s.dir, highlightDir, name+ext)
}

// ListTables returns table names sorted by name.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("csvdir: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("csvdir: stat %s: %w", name, err)
	}
}

func (s *Store) open(name string) (*os.File, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &table.MissingSourceError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("csvdir: open %s: %w", name, err)
	}
	return f, nil
}

func (s *Store) reader(r io.Reader) *csv.Reader {
	if s.enc != nil {
		r = transform.NewReader(r, s.enc.NewDecoder())
	}
	cr := csv.NewReader(r)
	cr.Comma = s.comma
	cr.LazyQuotes = s.lazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return cr
}

// normalizeHeaders strips a UTF-8 BOM from the first header and brings every
// header into NFC so visually equal names compare equal.
func normalizeHeaders(h []string) []string {
	if len(h) > 0 {
		h[0] = strings.TrimPrefix(h[0], utf8BOM)
	}
	for i, v := range h {
		h[i] = norm.NFC.String(v)
	}
	return h
}

func (s *Store) ReadTable(ctx context.Context, name string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	adviseSequential(f)

	cr := s.reader(bufio.NewReaderSize(f, 64<<10))
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return table.New(name, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("csvdir: read %s header: %w", name, err)
	}
	t := table.New(name, normalizeHeaders(header))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvdir: read %s: %w", name, err)
		}
		row := make(table.Row, len(rec))
		for i, v := range rec {
			if v != "" {
				row[i] = v
			}
		}
		t.Append(row)
	}
	return t, nil
}

// encodeRecord renders a row as CSV fields.
func encodeRecord(r table.Row, width int) []string {
	rec := make([]string, width)
	for i := 0; i < width && i < len(r); i++ {
		rec[i] = table.Text(r[i])
	}
	return rec
}

// writeRecords encodes header (when non-nil) and rows into w.
func (s *Store) writeRecords(w io.Writer, header []string, width int, rows []table.Row) error {
	var tw *transform.Writer
	if s.enc != nil {
		tw = transform.NewWriter(w, s.enc.NewEncoder())
		w = tw
	}
	cw := csv.NewWriter(w)
	cw.Comma = s.comma
	if header != nil {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := cw.Write(encodeRecord(r, width)); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}

// writeFile renders header and rows into a temp file beside the target and
// renames it into place.
func (s *Store) writeFile(target string, header []string, rows []table.Row) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*"+ext)
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var buf bytes.Buffer
	if header == nil {
		header = []string{}
	}
	if err := s.writeRecords(&buf, header, len(header), rows); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *Store) WriteTable(ctx context.Context, t *table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(t.Name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeFile(p, t.Columns, t.Rows); err != nil {
		return fmt.Errorf("csvdir: write %s: %w", t.Name, err)
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, name string, columns []string) error {
	ok, err := s.TableExists(ctx, name)
	if err != nil || ok {
		return err
	}
	return s.WriteTable(ctx, table.New(name, columns))
}

// readHeader returns the header of an existing table and whether the file
// ends with a newline.
func (s *Store) readHeader(name string) ([]string, bool, error) {
	f, err := s.open(name)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	header, err := s.reader(f).Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("csvdir: read %s header: %w", name, err)
	}
	st, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	if st.Size() == 0 {
		return header, true, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		return nil, false, err
	}
	return normalizeHeaders(header), last[0] == '\n', nil
}

// ReadHeader returns the header row of name without reading its rows.
func (s *Store) ReadHeader(ctx context.Context, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	header, _, err := s.readHeader(name)
	return header, err
}

func (s *Store) AppendRows(ctx context.Context, name string, rows []table.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	header, terminated, err := s.readHeader(name)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if len(header) == 0 {
		return fmt.Errorf("csvdir: append %s: table has no header row", name)
	}
	p, _ := s.path(name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("csvdir: append %s: %w", name, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if !terminated {
		_ = w.WriteByte('\n')
	}
	if err := s.writeRecords(w, nil, len(header), rows); err != nil {
		return fmt.Errorf("csvdir: append %s: %w", name, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("csvdir: append %s: %w", name, err)
	}
	return f.Close()
}

// Highlights returns the cell backgrounds recorded for name.
func (s *Store) Highlights(ctx context.Context, name string) (map[table.Cell]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readHighlights(name)
}

func (s *Store) readHighlights(name string) (map[table.Cell]string, error) {
	out := map[table.Cell]string{}
	f, err := os.Open(s.highlightPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csvdir: highlights %s: %w", name, err)
	}
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvdir: highlights %s: %w", name, err)
	}
	for i, rec := range recs {
		if i == 0 || len(rec) < 3 {
			continue
		}
		r, err1 := strconv.Atoi(rec[0])
		c, err2 := strconv.Atoi(rec[1])
		if err1 != nil || err2 != nil {
			continue
		}
		out[table.Cell{Row: r, Col: c}] = rec[2]
	}
	return out, nil
}

func (s *Store) SetCellBackground(ctx context.Context, name string, cells []table.Cell, color string) error {
	ok, err := s.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return &table.MissingSourceError{Name: name}
	}
	if len(cells) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.readHighlights(name)
	if err != nil {
		return err
	}
	for _, c := range cells {
		cur[c] = color
	}
	keys := make([]table.Cell, 0, len(cur))
	for c := range cur {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Row != keys[j].Row {
			return keys[i].Row < keys[j].Row
		}
		return keys[i].Col < keys[j].Col
	})

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{"row", "col", "color"})
	for _, c := range keys {
		_ = cw.Write([]string{strconv.Itoa(c.Row), strconv.Itoa(c.Col), cur[c]})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csvdir: highlights %s: %w", name, err)
	}
	p := s.highlightPath(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("csvdir: highlights %s: %w", name, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("csvdir: highlights %s: %w", name, err)
	}
	return os.Rename(tmp, p)
}

func (s *Store) Close() error { return nil }
