package geo

import (
	"strings"

	"sheetops/internal/table"
)

// DefaultRegionMap maps lowercased region variants onto the fixed set of
// region labels.
func DefaultRegionMap() map[string]string {
	return map[string]string{
		"africa":         "Africa",
		"apac":           "Asia-Pacific",
		"asia-pacific":   "Asia-Pacific",
		"oceania":        "Asia-Pacific",
		"emea":           "Europe",
		"europe":         "Europe",
		"latam":          "Latin America",
		"latin america":  "Latin America",
		"mena":           "MENA",
		"middle east":    "Middle East",
		"north america":  "North America",
		"southeast asia": "Southeast Asia",
	}
}

// NormalizeRegions rewrites the named column through m, whose keys are
// matched after trimming and lowercasing. Values with no entry are left as
// they are. It returns the cells it changed.
func NormalizeRegions(t *table.Table, column string, m map[string]string) ([]table.Cell, error) {
	i, err := t.IndexFold(column)
	if err != nil {
		return nil, err
	}
	folded := make(map[string]string, len(m))
	for k, v := range m {
		folded[strings.ToLower(strings.TrimSpace(k))] = v
	}
	var changed []table.Cell
	for r, row := range t.Rows {
		raw := cell(row, i)
		norm, ok := folded[strings.ToLower(raw)]
		if !ok || norm == raw {
			continue
		}
		row = table.Fit(row, len(t.Columns))
		row[i] = norm
		t.Rows[r] = row
		changed = append(changed, table.Cell{Row: r, Col: i})
	}
	return changed, nil
}
