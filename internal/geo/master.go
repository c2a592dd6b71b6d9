package geo

import (
	"strings"

	"sheetops/internal/table"
)

// MasterStats describes a BuildMaster call.
type MasterStats struct {
	Mapping  int
	Added    int
	Skipped  int
	Complete int
}

// BuildMaster merges a mapping table with a missing-audit table into a new
// master mapping with cols as headers. Every mapping row is kept. An audit
// row is added only when its 4-tuple is new; rows with neither city nor
// state additionally need a country and a region, and a country|region pair
// not yet present.
func BuildMaster(name string, mapping, missing *table.Table, cols Columns) (*table.Table, MasterStats, error) {
	var st MasterStats
	mi, err := cols.resolve(mapping)
	if err != nil {
		return nil, st, err
	}
	// The audit table is written with the same four leading columns, but
	// older sheets may carry other headers, so it is read by position.
	if len(missing.Columns) < 4 {
		return nil, st, &table.ConfigurationError{Table: missing.Name, Missing: cols.names()[len(missing.Columns):]}
	}

	out := table.New(name, cols.names())
	full := make(map[string]struct{})
	pairs := make(map[string]struct{})

	for _, r := range mapping.Rows {
		rec := Record{City: cell(r, mi[0]), State: cell(r, mi[1]), Country: cell(r, mi[2]), Region: cell(r, mi[3])}
		out.Append(recordRow(rec))
		full[AuditKey(rec.City, rec.State, rec.Country, rec.Region)] = struct{}{}
		pairs[pairKey(rec.Country, rec.Region)] = struct{}{}
		st.Mapping++
	}

	for _, r := range missing.Rows {
		rec := Record{City: cell(r, 0), State: cell(r, 1), Country: cell(r, 2), Region: cell(r, 3)}
		fk := AuditKey(rec.City, rec.State, rec.Country, rec.Region)
		if _, dup := full[fk]; dup {
			st.Skipped++
			continue
		}
		pk := pairKey(rec.Country, rec.Region)
		if rec.City == "" && rec.State == "" {
			if rec.Country == "" || rec.Region == "" {
				st.Skipped++
				continue
			}
			if _, dup := pairs[pk]; dup {
				st.Skipped++
				continue
			}
		}
		out.Append(recordRow(rec))
		full[fk] = struct{}{}
		if rec.Country != "" && rec.Region != "" {
			pairs[pk] = struct{}{}
		}
		st.Added++
	}
	for _, r := range out.Rows {
		if table.NonBlank(r) == 4 {
			st.Complete++
		}
	}
	return out, st, nil
}

func pairKey(country, region string) string {
	return strings.ToLower(country) + "|" + strings.ToLower(region)
}

func recordRow(rec Record) table.Row {
	row := table.Row{rec.City, rec.State, rec.Country, rec.Region}
	for i, v := range row {
		if v == "" {
			row[i] = nil
		}
	}
	return row
}
