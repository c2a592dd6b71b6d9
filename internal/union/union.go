// Package union computes the ordered header union of several tables and
// re-projects their rows onto it.
//
// Headers are compared by exact string unless Options says otherwise:
//
//   - Aliases maps source headers onto canonical output names. The output
//     name itself is tried first, then each alias in declaration order,
//     both trimmed and case-insensitive.
//   - CaseInsensitive folds headers without an alias so that "Email" and
//     "EMAIL" become one column; the first-seen spelling is kept.
//   - Restrict drops every header that is not an alias output and orders the
//     result by alias declaration instead of first-seen order.
//
// Blank header cells never enter the union.
package union

import (
	"strings"

	"sheetops/internal/table"
)

// Alias declares one canonical output column and the source names that map
// onto it.
type Alias struct {
	Output string   `json:"output"`
	Names  []string `json:"aliases"`
}

// Options tunes header matching.
type Options struct {
	Aliases         []Alias
	Restrict        bool
	CaseInsensitive bool
}

func fold(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// resolver turns a raw source header into its canonical name. It keeps the
// first-seen spelling for case-insensitive matching across calls.
type resolver struct {
	opts     Options
	spelling map[string]string
}

func newResolver(opts Options) *resolver {
	return &resolver{opts: opts, spelling: make(map[string]string)}
}

// canonical returns the output name for h and whether h belongs in the union.
func (r *resolver) canonical(h string) (string, bool) {
	if strings.TrimSpace(h) == "" {
		return "", false
	}
	if len(r.opts.Aliases) > 0 {
		f := fold(h)
		for _, a := range r.opts.Aliases {
			if fold(a.Output) == f {
				return a.Output, true
			}
		}
		for _, a := range r.opts.Aliases {
			for _, n := range a.Names {
				if fold(n) == f {
					return a.Output, true
				}
			}
		}
		if r.opts.Restrict {
			return "", false
		}
	}
	if !r.opts.CaseInsensitive {
		return h, true
	}
	f := fold(h)
	if s, ok := r.spelling[f]; ok {
		return s, true
	}
	r.spelling[f] = h
	return h, true
}

// Headers returns the union of the tables' headers in first-seen order.
// With Restrict set the result is the alias outputs that appear in at least
// one table, in declaration order.
func Headers(tables []*table.Table, opts Options) []string {
	lists := make([][]string, 0, len(tables))
	for _, t := range tables {
		if t == nil {
			continue
		}
		lists = append(lists, t.Columns)
	}
	return HeaderLists(lists, opts)
}

// HeaderLists is Headers over bare header slices.
func HeaderLists(lists [][]string, opts Options) []string {
	r := newResolver(opts)
	seen := make(map[string]struct{})
	var out []string
	for _, cols := range lists {
		for _, h := range cols {
			name, ok := r.canonical(h)
			if !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	if opts.Restrict && len(opts.Aliases) > 0 {
		ordered := make([]string, 0, len(out))
		for _, a := range opts.Aliases {
			if _, ok := seen[a.Output]; ok {
				ordered = append(ordered, a.Output)
			}
		}
		return ordered
	}
	return out
}

// SourceIndex maps each canonical header to its position within one source
// table. When two source headers resolve to the same name the first wins.
func SourceIndex(headers []string, opts Options) map[string]int {
	r := newResolver(opts)
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		name, ok := r.canonical(h)
		if !ok {
			continue
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

// SourceIndexFor is SourceIndex with case-insensitive lookups resolved
// against the spelling already chosen by union. Use it when CaseInsensitive is
// set so that later sources map onto the first-seen spelling.
func SourceIndexFor(headers, union []string, opts Options) map[string]int {
	if !opts.CaseInsensitive {
		return SourceIndex(headers, opts)
	}
	byFold := make(map[string]string, len(union))
	for _, u := range union {
		if _, ok := byFold[fold(u)]; !ok {
			byFold[fold(u)] = u
		}
	}
	raw := SourceIndex(headers, opts)
	idx := make(map[string]int, len(raw))
	for name, i := range raw {
		if u, ok := byFold[fold(name)]; ok {
			name = u
		}
		if prev, dup := idx[name]; !dup || i < prev {
			idx[name] = i
		}
	}
	return idx
}

// Project re-shapes row onto union using idx. Headers missing from idx
// become blank. When skipEmpty is set and every projected cell is blank the
// row is dropped and ok is false.
func Project(row table.Row, idx map[string]int, union []string, skipEmpty bool) (out table.Row, ok bool) {
	out = make(table.Row, len(union))
	for k, h := range union {
		i, found := idx[h]
		if !found || i >= len(row) {
			continue
		}
		out[k] = row[i]
	}
	if skipEmpty && table.EmptyRow(out) {
		return nil, false
	}
	return out, true
}

// Combine unions the tables and projects every row of every table onto the
// result, in table order then row order. Tables with no columns contribute
// nothing.
func Combine(name string, tables []*table.Table, opts Options, skipEmpty bool) *table.Table {
	union := Headers(tables, opts)
	out := table.New(name, union)
	for _, t := range tables {
		if t == nil || len(t.Columns) == 0 {
			continue
		}
		out.Rows = append(out.Rows, ProjectAll(t, union, opts, skipEmpty)...)
	}
	return out
}

// ProjectAll projects every row of t onto union.
func ProjectAll(t *table.Table, union []string, opts Options, skipEmpty bool) []table.Row {
	idx := SourceIndexFor(t.Columns, union, opts)
	rows := make([]table.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if p, ok := Project(r, idx, union, skipEmpty); ok {
			rows = append(rows, p)
		}
	}
	return rows
}
