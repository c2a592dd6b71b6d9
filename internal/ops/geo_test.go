package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetops/internal/geo"
	"sheetops/internal/table"
)

var geoHeaders = []string{"Company City", "Company State", "Company Country", "Region"}

func geoTables() []*table.Table {
	return []*table.Table{
		{
			Name:    "CityStateCountryRegionMapping",
			Columns: geoHeaders,
			Rows: []table.Row{
				{"Paris", "", "France", "Europe"},
				{"Berlin", "", "Germany", "Europe"},
			},
		},
		{
			Name:    "Lead_CleanedData",
			Columns: append([]string{"Email"}, geoHeaders...),
			Rows: []table.Row{
				{"a@x.com", "France", "", "Paris", ""},
				{"b@x.com", "Unknownville", "", "Germany", ""},
				{"c@x.com", "Springfield", "IL", "", ""},
			},
		},
	}
}

func TestGeoFix(t *testing.T) {
	t.Parallel()
	r, store, rec := newRunner(t, geoTables()...)
	ctx := context.Background()

	res, err := r.GeoFix(ctx)
	require.NoError(t, err)
	assert.Equal(t, GeoResult{
		Table: "Lead_CleanedData", Rows: 3, Changed: 2, Swapped: 1, Cells: 4,
		Flagged: 1, NewMissing: 1, Audit: "Missing_GeoMapping",
	}, res)

	lead := readTable(t, store, "Lead_CleanedData")
	assert.Equal(t, []table.Row{
		{"a@x.com", "Paris", "", "France", "Europe"},
		{"b@x.com", "Unknownville", "", "Germany", "Europe"},
		{"c@x.com", "Springfield", "IL", "", ""},
	}, lead.Rows)
	assert.Equal(t, map[table.Cell]string{
		{Row: 0, Col: 1}: geo.HighlightColor,
		{Row: 0, Col: 3}: geo.HighlightColor,
		{Row: 0, Col: 4}: geo.HighlightColor,
		{Row: 1, Col: 4}: geo.HighlightColor,
	}, store.Highlights("Lead_CleanedData"))

	audit := readTable(t, store, "Missing_GeoMapping")
	assert.Equal(t, append(append([]string(nil), geoHeaders...), geo.NoteHeader), audit.Columns)
	assert.Equal(t, []table.Row{{"Springfield", "IL", "", "", "Missing Country, Missing Region"}}, audit.Rows)

	// A second run over its own output changes nothing and reports no new
	// audit entries.
	res, err = r.GeoFix(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Changed)
	assert.Zero(t, res.Cells)
	assert.Zero(t, res.NewMissing)
	assert.Equal(t, 1, res.Flagged)
	assert.Len(t, readTable(t, store, "Missing_GeoMapping").Rows, 1)
	assert.Equal(t, lead.Rows, readTable(t, store, "Lead_CleanedData").Rows)

	alerts := rec.Alerts()
	require.Len(t, alerts, 2)
	assert.Contains(t, alerts[0], "2 of 3 rows changed (1 swapped, 4 cells corrected), 1 rows still missing")
}

func TestGeoFix_ReplaceAuditAndNoHighlight(t *testing.T) {
	t.Parallel()
	tables := append(geoTables(), &table.Table{
		Name:    "Missing_GeoMapping",
		Columns: append(append([]string(nil), geoHeaders...), geo.NoteHeader),
		Rows:    []table.Row{{"Gotham", "", "", "", "Missing Country, Missing Region"}},
	})
	r, store, _ := newRunner(t, tables...)
	off := false
	r.Cfg.Geo.Highlight.Enabled = &off
	r.Cfg.Geo.Audit.Replace = true

	_, err := r.GeoFix(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.Highlights("Lead_CleanedData"))
	audit := readTable(t, store, "Missing_GeoMapping")
	require.Len(t, audit.Rows, 1)
	assert.Equal(t, "Springfield", audit.Rows[0][0])
}

func TestGeoFix_AppendsToExistingAudit(t *testing.T) {
	t.Parallel()
	tables := append(geoTables(), &table.Table{
		Name:    "Missing_GeoMapping",
		Columns: append(append([]string(nil), geoHeaders...), geo.NoteHeader),
		Rows:    []table.Row{{"Gotham", "", "", "", "Missing Country, Missing Region"}},
	})
	r, store, _ := newRunner(t, tables...)

	res, err := r.GeoFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewMissing)
	audit := readTable(t, store, "Missing_GeoMapping")
	require.Len(t, audit.Rows, 2)
	assert.Equal(t, "Gotham", audit.Rows[0][0])
	assert.Equal(t, "Springfield", audit.Rows[1][0])
}

func TestGeoFix_MissingColumnWritesNothing(t *testing.T) {
	t.Parallel()
	tables := geoTables()
	tables[1].Columns = []string{"Email", "Company City", "Company State", "Company Country", "Area"}
	r, store, rec := newRunner(t, tables...)

	_, err := r.GeoFix(context.Background())
	require.ErrorIs(t, err, table.ErrConfiguration)

	assert.Equal(t, tables[1].Rows, readTable(t, store, "Lead_CleanedData").Rows)
	ok, err := store.TableExists(context.Background(), "Missing_GeoMapping")
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, rec.Alerts(), 1)
	assert.Contains(t, rec.Alerts()[0], "geo failed")
}

func TestGeoFix_LegacyGate(t *testing.T) {
	t.Parallel()
	r, store, _ := newRunner(t, geoTables()...)
	r.Cfg.Geo.Gate = "legacy"

	res, err := r.GeoFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Swapped)
	assert.Equal(t, "Paris", readTable(t, store, "Lead_CleanedData").Rows[0][1])

	r.Cfg.Geo.Gate = "sideways"
	_, err = r.GeoFix(context.Background())
	assert.ErrorContains(t, err, "unknown gate")
}

func TestNormalizeRegions(t *testing.T) {
	t.Parallel()
	lead := &table.Table{Name: "Lead_CleanedData", Columns: []string{"Email", "Region"}, Rows: []table.Row{
		{"a", "apac"}, {"b", "Europe"}, {"c", " EMEA "}, {"d", "Mars"},
	}}

	r, store, rec := newRunner(t, lead)
	res, err := r.NormalizeRegions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Changed)
	assert.Equal(t, []table.Row{{"a", "Asia-Pacific"}, {"b", "Europe"}, {"c", "Europe"}, {"d", "Mars"}},
		readTable(t, store, "Lead_CleanedData").Rows)
	assert.Equal(t, []string{"✅ Lead_CleanedData: 2 Region values normalized."}, rec.Alerts())

	r, store, _ = newRunner(t, lead)
	r.Cfg.Regions.Map = map[string]string{"MARS": "Outer Space"}
	res, err = r.NormalizeRegions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
	assert.Equal(t, "apac", readTable(t, store, "Lead_CleanedData").Rows[0][1])
	assert.Equal(t, "Outer Space", readTable(t, store, "Lead_CleanedData").Rows[3][1])
}

func TestMasterMapping(t *testing.T) {
	t.Parallel()
	r, store, rec := newRunner(t,
		&table.Table{Name: "CityStateCountryRegionMapping", Columns: geoHeaders, Rows: []table.Row{
			{"Paris", "", "France", "Europe"},
		}},
		&table.Table{Name: "Missing_GeoMapping", Columns: append(append([]string(nil), geoHeaders...), geo.NoteHeader), Rows: []table.Row{
			{"Paris", "", "France", "Europe", ""},
			{"Lyon", "", "France", "Europe", ""},
			{"", "", "France", "Europe", ""},
			{"", "", "Chile", "Latin America", ""},
		}},
	)

	res, err := r.MasterMapping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geo.MasterStats{Mapping: 1, Added: 2, Skipped: 2, Complete: 0}, res.MasterStats)

	got := readTable(t, store, "Master_Mapping")
	assert.Equal(t, geoHeaders, got.Columns)
	assert.Len(t, got.Rows, 3)
	assert.Contains(t, rec.Alerts()[0], "Master_Mapping built")
}

func TestMasterMapping_MissingTable(t *testing.T) {
	t.Parallel()
	r, _, _ := newRunner(t, &table.Table{Name: "CityStateCountryRegionMapping", Columns: geoHeaders})

	_, err := r.MasterMapping(context.Background())
	assert.ErrorIs(t, err, table.ErrMissingSource)
}
