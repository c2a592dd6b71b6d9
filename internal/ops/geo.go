package ops

import (
	"context"
	"fmt"

	"sheetops/internal/config"
	"sheetops/internal/geo"
	"sheetops/internal/storage"
	"sheetops/internal/table"
)

func geoColumns(c config.GeoColumns) geo.Columns {
	return geo.Columns{City: c.City, State: c.State, Country: c.Country, Region: c.Region}
}

// GeoResult describes a geo resolution run.
type GeoResult struct {
	Table   string
	Rows    int
	Changed int
	Swapped int
	Cells   int
	// Flagged counts rows still lacking a country or region; NewMissing
	// counts the audit entries written for them.
	Flagged    int
	NewMissing int
	Audit      string
}

func (r GeoResult) Summary() string {
	msg := fmt.Sprintf("✅ Geo fix on %s: %s of %s rows changed (%s swapped, %s cells corrected), %s rows still missing country or region.",
		r.Table, count(r.Changed), count(r.Rows), count(r.Swapped), count(r.Cells), count(r.Flagged))
	if r.Audit != "" {
		msg += fmt.Sprintf(" %s new entries in %s.", count(r.NewMissing), r.Audit)
	}
	return msg
}

// GeoFix repairs and completes the geo columns of geo.lead_table against
// geo.mapping_tables, highlights the corrected cells and records rows that
// stay incomplete in the audit table.
func (r *Runner) GeoFix(ctx context.Context) (res GeoResult, err error) {
	start := r.begin(OpGeo, "Fixing geo fields...")
	defer func() { err = r.finish(OpGeo, start, res, err) }()

	cfg := r.Cfg.Geo
	cols := geoColumns(cfg.Columns)
	gate, err := geo.ParseGate(cfg.Gate)
	if err != nil {
		return res, err
	}
	mappings, err := storage.ReadTables(ctx, r.Store, cfg.MappingTables, r.Cfg.Store.ReadConcurrency)
	if err != nil {
		return res, err
	}
	ix, err := geo.BuildIndex(mappings, cols)
	if err != nil {
		return res, err
	}
	lead, err := r.Store.ReadTable(ctx, cfg.LeadTable)
	if err != nil {
		return res, err
	}

	var (
		audit    *geo.Audit
		existing *table.Table
	)
	if cfg.Audit.On() {
		audit = geo.NewAudit()
		if !cfg.Audit.Replace {
			if existing, err = r.readExisting(ctx, cfg.Audit.Table); err != nil {
				return res, err
			}
			audit.Seed(existing)
		}
	}

	eng := &geo.Engine{Index: ix, Columns: cols, Gate: gate, Audit: audit, Logger: r.log()}
	out, err := eng.Run(lead)
	if err != nil {
		return res, err
	}
	res = GeoResult{
		Table:      cfg.LeadTable,
		Rows:       out.Rows,
		Changed:    out.FixCount,
		Swapped:    out.Swapped,
		Cells:      len(out.Changed),
		Flagged:    out.States[geo.StateFlaggedMissing],
		NewMissing: len(out.Missing),
	}

	if err := r.Store.WriteTable(ctx, lead); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.LeadTable, err)
	}
	r.rows(OpGeo, "changed", out.FixCount)
	r.rows(OpGeo, "swapped", out.Swapped)
	if cfg.Highlight.On() && len(out.Changed) > 0 {
		if err := r.Store.SetCellBackground(ctx, cfg.LeadTable, out.Changed, cfg.Highlight.Color); err != nil {
			return res, fmt.Errorf("highlight %s: %w", cfg.LeadTable, err)
		}
	}

	if audit == nil {
		return res, nil
	}
	rows := geo.AuditRows(out.Missing)
	if existing == nil || existing.Width() == 0 {
		t := table.New(cfg.Audit.Table, cols.AuditHeaders())
		t.Rows = rows
		err = r.Store.WriteTable(ctx, t)
	} else if len(rows) > 0 {
		err = r.Store.AppendRows(ctx, cfg.Audit.Table, rows)
	}
	if err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Audit.Table, err)
	}
	r.rows(OpGeo, "missing", len(rows))
	res.Audit = cfg.Audit.Table
	return res, nil
}

// RegionsResult describes a region normalization run.
type RegionsResult struct {
	Table   string
	Column  string
	Changed int
}

func (r RegionsResult) Summary() string {
	return fmt.Sprintf("✅ %s: %s %s values normalized.", r.Table, count(r.Changed), r.Column)
}

// NormalizeRegions maps region label variants in regions.table onto the
// fixed label set. A configured map replaces the built-in one.
func (r *Runner) NormalizeRegions(ctx context.Context) (res RegionsResult, err error) {
	start := r.begin(OpRegions, "Normalizing regions...")
	defer func() { err = r.finish(OpRegions, start, res, err) }()

	cfg := r.Cfg.Regions
	m := cfg.Map
	if len(m) == 0 {
		m = geo.DefaultRegionMap()
	}
	t, err := r.Store.ReadTable(ctx, cfg.Table)
	if err != nil {
		return res, err
	}
	changed, err := geo.NormalizeRegions(t, cfg.Column, m)
	if err != nil {
		return res, err
	}
	res = RegionsResult{Table: cfg.Table, Column: cfg.Column, Changed: len(changed)}
	if len(changed) == 0 {
		return res, nil
	}
	if err := r.Store.WriteTable(ctx, t); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Table, err)
	}
	r.rows(OpRegions, "changed", len(changed))
	return res, nil
}

// MasterResult describes master mapping generation.
type MasterResult struct {
	Output string
	geo.MasterStats
}

func (r MasterResult) Summary() string {
	return fmt.Sprintf("✅ %s built: %s mapping rows, %s added from the audit, %s skipped, %s complete rows.",
		r.Output, count(r.Mapping), count(r.Added), count(r.Skipped), count(r.Complete))
}

// MasterMapping merges the mapping table with the missing audit table into
// master.output.
func (r *Runner) MasterMapping(ctx context.Context) (res MasterResult, err error) {
	start := r.begin(OpMaster, "Building master mapping...")
	defer func() { err = r.finish(OpMaster, start, res, err) }()

	cfg := r.Cfg.Master
	tables, err := storage.ReadTables(ctx, r.Store, []string{cfg.MappingTable, cfg.MissingTable}, 2)
	if err != nil {
		return res, err
	}
	out, st, err := geo.BuildMaster(cfg.Output, tables[0], tables[1], geoColumns(r.Cfg.Geo.Columns))
	if err != nil {
		return res, err
	}
	if err := r.Store.WriteTable(ctx, out); err != nil {
		return res, fmt.Errorf("write %s: %w", cfg.Output, err)
	}
	r.rows(OpMaster, "written", out.Len())
	return MasterResult{Output: cfg.Output, MasterStats: st}, nil
}
