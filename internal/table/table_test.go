package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlankAndText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    any
		blank bool
		text  string
	}{
		{"nil", nil, true, ""},
		{"empty string", "", true, ""},
		{"spaces are not blank", "  ", false, "  "},
		{"float integral", float64(42), false, "42"},
		{"float fraction", 1.5, false, "1.5"},
		{"int64", int64(-7), false, "-7"},
		{"bool", true, false, "true"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.blank, IsBlank(tc.in))
			assert.Equal(t, tc.text, Text(tc.in))
		})
	}
}

func TestNormalizePadsAndTruncates(t *testing.T) {
	t.Parallel()

	tb := &Table{Columns: []string{"a", "b", "c"}, Rows: []Row{{"1"}, {"1", "2", "3", "4"}}}
	tb.Normalize()
	assert.Equal(t, Row{"1", nil, nil}, tb.Rows[0])
	assert.Equal(t, Row{"1", "2", "3"}, tb.Rows[1])
}

func TestIndexFold(t *testing.T) {
	t.Parallel()

	tb := New("Leads", []string{"Email", " city ", "Country"})

	i, err := tb.IndexFold("Email")
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	i, err = tb.IndexFold("CITY")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = tb.IndexFold("Region")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"Region"}, cfgErr.Missing)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestIndexFoldAmbiguous(t *testing.T) {
	t.Parallel()

	tb := New("T", []string{"email", "EMAIL"})
	_, err := tb.IndexFold("Email")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousColumn)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRequireReportsAllMissing(t *testing.T) {
	t.Parallel()

	tb := New("Mapping", []string{"City", "Country"})
	_, err := tb.Require("City", "State", "Country", "Region")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"State", "Region"}, cfgErr.Missing)
	assert.Contains(t, err.Error(), `table "Mapping"`)
	assert.True(t, IsUserError(err))

	idx, err := tb.Require("Country", "City")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, idx)

	idx, err = tb.Require(" country", "CITY")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, idx)

	amb := &Table{Name: "T", Columns: []string{"email ", " Email"}}
	_, err = amb.Require("EMAIL", "Phone")
	assert.ErrorIs(t, err, ErrAmbiguousColumn)
}

func TestMissingSourceError(t *testing.T) {
	t.Parallel()

	err := error(&MissingSourceError{Name: "Geo"})
	assert.ErrorIs(t, err, ErrMissingSource)
	assert.True(t, IsUserError(err))
	assert.False(t, IsUserError(errors.New("boom")))
}

func TestInsertColumn(t *testing.T) {
	t.Parallel()

	tb := &Table{Columns: []string{"Name", "Title", "Email"}, Rows: []Row{{"a", "CEO", "a@x"}, {"b"}}}
	tb.InsertColumn(2, "Designation")
	assert.Equal(t, []string{"Name", "Title", "Designation", "Email"}, tb.Columns)
	assert.Equal(t, Row{"a", "CEO", nil, "a@x"}, tb.Rows[0])
	assert.Equal(t, Row{"b", nil, nil, nil}, tb.Rows[1])
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	tb := &Table{Name: "x", Columns: []string{"a"}, Rows: []Row{{"1"}}}
	cp := tb.Clone()
	cp.Rows[0][0] = "2"
	cp.Columns[0] = "b"
	assert.Equal(t, "1", tb.Rows[0][0])
	assert.Equal(t, "a", tb.Columns[0])
}

func TestEmptyRowAndNonBlank(t *testing.T) {
	t.Parallel()

	assert.True(t, EmptyRow(Row{nil, ""}))
	assert.False(t, EmptyRow(Row{nil, 0.0}))
	assert.Equal(t, 2, NonBlank(Row{"a", nil, "", 3.0}))
}
