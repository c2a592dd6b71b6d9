package table

import (
	"errors"
	"fmt"
	"strings"
)

// Index returns the position of the column whose header equals name exactly.
func (t *Table) Index(name string) (int, error) {
	for i, c := range t.Columns {
		if c == name {
			return i, nil
		}
	}
	return 0, &ConfigurationError{Table: t.Name, Missing: []string{name}}
}

// IndexFold resolves name against the headers, trying an exact match first
// and then a trimmed, case-insensitive match. The case-insensitive match must
// be unique.
func (t *Table) IndexFold(name string) (int, error) {
	if i, err := t.Index(name); err == nil {
		return i, nil
	}
	want := strings.ToLower(strings.TrimSpace(name))
	found := -1
	for i, c := range t.Columns {
		if strings.ToLower(strings.TrimSpace(c)) != want {
			continue
		}
		if found >= 0 {
			return 0, &ConfigurationError{
				Table:  t.Name,
				Reason: fmt.Errorf("%w: %q matches %q and %q", ErrAmbiguousColumn, name, t.Columns[found], c),
			}
		}
		found = i
	}
	if found < 0 {
		return 0, &ConfigurationError{Table: t.Name, Missing: []string{name}}
	}
	return found, nil
}

// Require resolves every name with IndexFold and returns their positions in
// order. All missing names are reported together in a single
// ConfigurationError; an ambiguous name fails immediately.
func (t *Table) Require(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	var missing []string
	for k, n := range names {
		i, err := t.IndexFold(n)
		if errors.Is(err, ErrAmbiguousColumn) {
			return nil, err
		}
		if err != nil {
			missing = append(missing, n)
			continue
		}
		idx[k] = i
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Table: t.Name, Missing: missing}
	}
	return idx, nil
}

// Has reports whether name is an exact header.
func (t *Table) Has(name string) bool {
	_, err := t.Index(name)
	return err == nil
}

// InsertColumn inserts a blank column named name at position at, shifting
// later columns right. Positions past the end append.
func (t *Table) InsertColumn(at int, name string) {
	if at < 0 {
		at = 0
	}
	if at > len(t.Columns) {
		at = len(t.Columns)
	}
	t.Columns = append(t.Columns[:at], append([]string{name}, t.Columns[at:]...)...)
	for i, r := range t.Rows {
		r = Fit(r, len(t.Columns)-1)
		nr := make(Row, 0, len(r)+1)
		nr = append(nr, r[:at]...)
		nr = append(nr, nil)
		nr = append(nr, r[at:]...)
		t.Rows[i] = nr
	}
}
