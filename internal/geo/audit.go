package geo

import (
	"strings"

	"github.com/zeebo/xxh3"

	"sheetops/internal/table"
)

// NoteHeader is the fifth column of the audit table.
const NoteHeader = "Notes"

// MissingEntry records a row that still lacks a country or region after
// every resolution step.
type MissingEntry struct {
	City    string
	State   string
	Country string
	Region  string
	Note    string
}

func newMissingEntry(f Fields) MissingEntry {
	var notes []string
	if f.Country == "" {
		notes = append(notes, "Missing Country")
	}
	if f.Region == "" {
		notes = append(notes, "Missing Region")
	}
	return MissingEntry{
		City:    f.City,
		State:   f.State,
		Country: f.Country,
		Region:  f.Region,
		Note:    strings.Join(notes, ", "),
	}
}

// Row renders the entry in audit column order.
func (e MissingEntry) Row() table.Row {
	return table.Row{e.City, e.State, e.Country, e.Region, e.Note}
}

// AuditKey is the dedup key of a 4-tuple: lowercased values joined by "||".
func AuditKey(city, state, country, region string) string {
	parts := []string{city, state, country, region}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "||")
}

// Audit deduplicates MissingEntry values within a run.
type Audit struct {
	seen    map[xxh3.Uint128]struct{}
	entries []MissingEntry
}

// NewAudit returns an empty audit.
func NewAudit() *Audit {
	return &Audit{seen: make(map[xxh3.Uint128]struct{})}
}

func (a *Audit) key(city, state, country, region string) xxh3.Uint128 {
	return xxh3.HashString128(AuditKey(city, state, country, region))
}

// Seed marks the 4-tuples of an existing audit table as already reported.
// The table's first four columns are read positionally.
func (a *Audit) Seed(t *table.Table) {
	if t == nil {
		return
	}
	for _, r := range t.Rows {
		a.seen[a.key(cell(r, 0), cell(r, 1), cell(r, 2), cell(r, 3))] = struct{}{}
	}
}

// Add records e unless its 4-tuple was seen before. It reports whether e was
// new.
func (a *Audit) Add(e MissingEntry) bool {
	k := a.key(e.City, e.State, e.Country, e.Region)
	if _, ok := a.seen[k]; ok {
		return false
	}
	a.seen[k] = struct{}{}
	a.entries = append(a.entries, e)
	return true
}

// Entries returns the new entries in the order they were added.
func (a *Audit) Entries() []MissingEntry { return a.entries }

// AuditHeaders are the audit table columns.
func (c Columns) AuditHeaders() []string {
	return []string{c.City, c.State, c.Country, c.Region, NoteHeader}
}

// AuditRows renders entries as rows.
func AuditRows(entries []MissingEntry) []table.Row {
	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		rows[i] = e.Row()
	}
	return rows
}
