// Package table defines the in-memory tabular model shared by every engine:
// a Table is an ordered list of column names plus an ordered list of rows,
// and each Row holds exactly one cell per declared column.
//
// Cells are loosely typed, mirroring what a spreadsheet range yields:
//
//	nil      blank cell
//	string   text
//	float64  number (int64 and bool are accepted and rendered via Text)
//
// Rows are owned by their Table. Engines that build a new table copy cell
// values into fresh rows; they never share Row slices between tables.
package table

import (
	"strconv"
	"strings"
)

// Row is a single record aligned to Table.Columns by position.
type Row []any

// Table is a named, ordered set of columns and rows.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// New returns an empty table with a copy of columns.
func New(name string, columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Name: name, Columns: cols}
}

// Width is the number of declared columns.
func (t *Table) Width() int { return len(t.Columns) }

// Len is the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Append adds a row, padding or truncating it to the table width.
func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, Fit(r, len(t.Columns)))
}

// Normalize pads or truncates every row to the column count so the
// "one value per declared column" invariant holds after a raw load.
func (t *Table) Normalize() {
	for i, r := range t.Rows {
		t.Rows[i] = Fit(r, len(t.Columns))
	}
}

// Clone returns a deep copy of the table's structure. Cell values are
// immutable scalars, so copying the row slices is sufficient.
func (t *Table) Clone() *Table {
	out := New(t.Name, t.Columns)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		cp := make(Row, len(r))
		copy(cp, r)
		out.Rows[i] = cp
	}
	return out
}

// Fit returns r resized to exactly n cells. Missing cells are blank (nil).
func Fit(r Row, n int) Row {
	if len(r) == n {
		return r
	}
	cp := make(Row, n)
	copy(cp, r)
	return cp
}

// IsBlank reports whether v is an empty cell: nil or the empty string.
// Whitespace-only strings are NOT blank here; callers that want trimmed
// semantics use Trimmed.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// Text renders a cell as a string. Blank cells render as "".
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []byte:
		return string(t)
	default:
		return ""
	}
}

// Trimmed is Text with surrounding whitespace removed.
func Trimmed(v any) string { return strings.TrimSpace(Text(v)) }

// EmptyRow reports whether every cell of r is blank.
func EmptyRow(r Row) bool {
	for _, v := range r {
		if !IsBlank(v) {
			return false
		}
	}
	return true
}

// NonBlank counts the non-blank cells in r.
func NonBlank(r Row) int {
	n := 0
	for _, v := range r {
		if !IsBlank(v) {
			n++
		}
	}
	return n
}

// Cell addresses a single data cell by 0-based data row and column index.
// Row 0 is the first row after the header.
type Cell struct {
	Row int
	Col int
}
