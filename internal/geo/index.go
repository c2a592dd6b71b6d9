// Package geo repairs and completes the city/state/country/region fields of
// a lead table against one or more canonical mapping tables.
//
// A run has two phases. BuildIndex reads the mapping tables once and builds
// the role sets and lookup maps. Engine.Run then reduces every lead row
// through Resolve, which threads an intermediate record through role repair,
// the city-keyed fill and both region fallbacks before the row is committed
// in one step.
package geo

import (
	"strings"

	"sheetops/internal/table"
)

// Columns names the four geo columns. The same names are used in the lead
// table and in the mapping tables.
type Columns struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Region  string `json:"region"`
}

// DefaultColumns are the headers used by the lead sheets.
func DefaultColumns() Columns {
	return Columns{City: "Company City", State: "Company State", Country: "Company Country", Region: "Region"}
}

func (c Columns) names() []string { return []string{c.City, c.State, c.Country, c.Region} }

// resolve finds the four columns in t, reporting every missing one at once.
func (c Columns) resolve(t *table.Table) ([4]int, error) {
	var idx [4]int
	var missing []string
	for k, n := range c.names() {
		i, err := t.IndexFold(n)
		if err != nil {
			missing = append(missing, n)
			continue
		}
		idx[k] = i
	}
	if len(missing) > 0 {
		return idx, &table.ConfigurationError{Table: t.Name, Missing: missing}
	}
	return idx, nil
}

// Record is a canonical geo tuple. Values are trimmed.
type Record struct {
	City    string
	State   string
	Country string
	Region  string
}

// Role is the semantic field a raw value belongs to.
type Role int

const (
	RoleNone Role = iota
	RoleCity
	RoleState
	RoleCountry
)

func (r Role) String() string {
	switch r {
	case RoleCity:
		return "city"
	case RoleState:
		return "state"
	case RoleCountry:
		return "country"
	default:
		return "none"
	}
}

// Index holds everything a run needs from the mapping tables.
type Index struct {
	cities    map[string]struct{}
	states    map[string]struct{}
	countries map[string]struct{}

	byCity             map[string]Record
	countryRegion      map[string]string
	stateCountryRegion map[string]string
}

func lower(s string) string { return strings.ToLower(s) }

func stateCountryKey(state, country string) string {
	return lower(state) + "|" + lower(country)
}

// BuildIndex reads the mapping tables in order. Role sets take every
// non-blank value of their column. The city map only accepts records that
// carry both a city and a country, and the first source to mention a city
// wins. Region fallbacks keep the first region seen per country and per
// state+country pair.
func BuildIndex(mappings []*table.Table, cols Columns) (*Index, error) {
	ix := &Index{
		cities:             make(map[string]struct{}),
		states:             make(map[string]struct{}),
		countries:          make(map[string]struct{}),
		byCity:             make(map[string]Record),
		countryRegion:      make(map[string]string),
		stateCountryRegion: make(map[string]string),
	}
	for _, m := range mappings {
		idx, err := cols.resolve(m)
		if err != nil {
			return nil, err
		}
		for _, r := range m.Rows {
			rec := Record{
				City:    cell(r, idx[0]),
				State:   cell(r, idx[1]),
				Country: cell(r, idx[2]),
				Region:  cell(r, idx[3]),
			}
			ix.add(rec)
		}
	}
	return ix, nil
}

func (ix *Index) add(rec Record) {
	if rec.City != "" {
		ix.cities[lower(rec.City)] = struct{}{}
	}
	if rec.State != "" {
		ix.states[lower(rec.State)] = struct{}{}
	}
	if rec.Country != "" {
		ix.countries[lower(rec.Country)] = struct{}{}
	}
	if rec.City != "" && rec.Country != "" {
		if _, ok := ix.byCity[lower(rec.City)]; !ok {
			ix.byCity[lower(rec.City)] = rec
		}
	}
	if rec.Country != "" && rec.Region != "" {
		if _, ok := ix.countryRegion[lower(rec.Country)]; !ok {
			ix.countryRegion[lower(rec.Country)] = rec.Region
		}
	}
	if rec.State != "" && rec.Country != "" && rec.Region != "" {
		k := stateCountryKey(rec.State, rec.Country)
		if _, ok := ix.stateCountryRegion[k]; !ok {
			ix.stateCountryRegion[k] = rec.Region
		}
	}
}

// Detect classifies a raw value. Sets are tested city, state, country; the
// first hit decides.
func (ix *Index) Detect(v string) Role {
	k := lower(strings.TrimSpace(v))
	if k == "" {
		return RoleNone
	}
	if _, ok := ix.cities[k]; ok {
		return RoleCity
	}
	if _, ok := ix.states[k]; ok {
		return RoleState
	}
	if _, ok := ix.countries[k]; ok {
		return RoleCountry
	}
	return RoleNone
}

// City returns the canonical record for a city name.
func (ix *Index) City(name string) (Record, bool) {
	rec, ok := ix.byCity[lower(strings.TrimSpace(name))]
	return rec, ok
}

// CountryRegion returns the fallback region for a country.
func (ix *Index) CountryRegion(country string) (string, bool) {
	r, ok := ix.countryRegion[lower(strings.TrimSpace(country))]
	return r, ok
}

// StateCountryRegion returns the fallback region for a state within a country.
func (ix *Index) StateCountryRegion(state, country string) (string, bool) {
	r, ok := ix.stateCountryRegion[stateCountryKey(strings.TrimSpace(state), strings.TrimSpace(country))]
	return r, ok
}

// Size reports the number of canonical city records.
func (ix *Index) Size() int { return len(ix.byCity) }

func cell(r table.Row, i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return table.Trimmed(r[i])
}
