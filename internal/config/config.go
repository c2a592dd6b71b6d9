// Package config defines the JSON configuration model for sheetops.
//
// A config file describes which store holds the tables, where batch
// checkpoints live, and one section per operation. Every scalar can be
// overridden from the environment (SHEETOPS_*); see Load.
//
// Example (trimmed):
//
//	{
//	  "job":   "leads-q3",
//	  "store": { "kind": "csvdir", "dsn": "./sheets", "options": { "comma": ";" } },
//	  "checkpoint": { "kind": "file", "dsn": "./.sheetops/checkpoint.json" },
//	  "combine": { "output": "CombinedData", "batch_size": 5 },
//	  "geo": { "lead_table": "Lead_CleanedData", "mapping_tables": ["CityStateCountryRegionMapping"] }
//	}
package config

import "encoding/json"

// Config is the root configuration.
type Config struct {
	// Job names the run in logs, metrics and checkpoint keys.
	Job string `json:"job" env:"SHEETOPS_JOB" env-default:"sheetops"`

	Store      Store      `json:"store"`
	Checkpoint Checkpoint `json:"checkpoint"`
	Combine    Combine    `json:"combine"`
	Merge      Merge      `json:"merge"`
	Clean      Clean      `json:"clean"`
	Dedup      DedupStep  `json:"dedup"`
	Geo        Geo        `json:"geo"`
	Regions    Regions    `json:"regions"`
	Titles     Titles     `json:"titles"`
	Size       Size       `json:"size"`
	Master     Master     `json:"master"`
	Columns    Matrix     `json:"columns"`
	Log        Log        `json:"log"`
	Metrics    Metrics    `json:"metrics"`
}

// Store selects the tabular store backend.
type Store struct {
	// Kind is one of the registered storage kinds: csvdir, sqlite, mysql,
	// mssql, postgres.
	Kind string `json:"kind" env:"SHEETOPS_STORE_KIND" env-default:"csvdir"`
	// DSN is a directory for csvdir and a connection string otherwise.
	DSN string `json:"dsn" env:"SHEETOPS_STORE_DSN" env-default:"."`
	// Options is interpreted by the backend, e.g. csvdir reads
	// comma (string), encoding (string), lazy_quotes (bool).
	Options Options `json:"options"`
	// ReadConcurrency bounds parallel table reads.
	ReadConcurrency int `json:"read_concurrency" env:"SHEETOPS_STORE_READ_CONCURRENCY" env-default:"4"`
}

// Checkpoint selects the key-value store for batch progress.
type Checkpoint struct {
	Kind   string `json:"kind"   env:"SHEETOPS_CHECKPOINT_KIND"   env-default:"file"`
	DSN    string `json:"dsn"    env:"SHEETOPS_CHECKPOINT_DSN"    env-default:".sheetops/checkpoint.json"`
	Prefix string `json:"prefix" env:"SHEETOPS_CHECKPOINT_PREFIX"`
}

// Exclude filters table names out of combine runs and the column matrix.
type Exclude struct {
	// Names are excluded by exact match.
	Names []string `json:"names"`
	// Contains are excluded when the lowercased table name contains them.
	Contains []string `json:"contains"`
}

// Combine configures the union and batch subcommands.
type Combine struct {
	Output        string  `json:"output"          env:"SHEETOPS_COMBINE_OUTPUT"     env-default:"CombinedData"`
	Exclude       Exclude `json:"exclude"`
	BatchSize     int     `json:"batch_size"      env:"SHEETOPS_COMBINE_BATCH_SIZE" env-default:"5"`
	SkipEmptyRows *bool   `json:"skip_empty_rows"`
}

// SkipEmpty reports whether all-blank rows are dropped (default true).
func (c Combine) SkipEmpty() bool { return c.SkipEmptyRows == nil || *c.SkipEmptyRows }

// DedupOptions configures key-based deduplication inside a step.
type DedupOptions struct {
	Key string `json:"key"`
	// AllowDuplicates disables deduplication.
	AllowDuplicates bool `json:"allow_duplicates"`
	// Winner is most-complete (default), keep-first or keep-last.
	Winner string `json:"winner"`
	// BlankKeys is keep or drop.
	BlankKeys string `json:"blank_keys"`
}

// Merge configures the external merge.
type Merge struct {
	Sources []string `json:"sources" env:"SHEETOPS_MERGE_SOURCES" env-separator:","`
	// SourcesFile lists one source table per line; '#' starts a comment.
	SourcesFile          string       `json:"sources_file" env:"SHEETOPS_MERGE_SOURCES_FILE"`
	Output               string       `json:"output" env:"SHEETOPS_MERGE_OUTPUT" env-default:"MergedData"`
	CaseSensitiveHeaders bool         `json:"case_sensitive_headers"`
	Overwrite            bool         `json:"overwrite" env:"SHEETOPS_MERGE_OVERWRITE"`
	Dedup                DedupOptions `json:"dedup"`
}

// ColumnAlias maps source header spellings onto one output column.
type ColumnAlias struct {
	Output  string   `json:"output"`
	Aliases []string `json:"aliases"`
}

// Clean configures lead cleaning.
type Clean struct {
	Output   string        `json:"output" env:"SHEETOPS_CLEAN_OUTPUT" env-default:"Lead_CleanedData"`
	Columns  []ColumnAlias `json:"columns"`
	DedupKey string        `json:"dedup_key" env:"SHEETOPS_CLEAN_DEDUP_KEY" env-default:"Email"`
	// Winner picks among rows sharing a key; see DedupOptions.Winner.
	Winner string `json:"winner" env:"SHEETOPS_CLEAN_WINNER"`
	// Skipped names a table that receives rows dropped for a blank or
	// duplicate key. Empty disables it.
	Skipped string  `json:"skipped"`
	Exclude Exclude `json:"exclude"`
}

// DedupStep configures the standalone dedup subcommand.
type DedupStep struct {
	Table string       `json:"table" env:"SHEETOPS_DEDUP_TABLE"`
	Dedup DedupOptions `json:"dedup"`
}

// GeoColumns names the four geo columns.
type GeoColumns struct {
	City    string `json:"city"    env:"SHEETOPS_GEO_CITY"    env-default:"Company City"`
	State   string `json:"state"   env:"SHEETOPS_GEO_STATE"   env-default:"Company State"`
	Country string `json:"country" env:"SHEETOPS_GEO_COUNTRY" env-default:"Company Country"`
	Region  string `json:"region"  env:"SHEETOPS_GEO_REGION"  env-default:"Region"`
}

// Highlight controls cell backgrounds for corrected values.
type Highlight struct {
	Enabled *bool  `json:"enabled"`
	Color   string `json:"color" env:"SHEETOPS_GEO_HIGHLIGHT_COLOR" env-default:"#ff9195"`
}

// On reports whether highlighting is enabled (default true).
func (h Highlight) On() bool { return h.Enabled == nil || *h.Enabled }

// Audit controls the missing-geo audit table.
type Audit struct {
	Enabled *bool  `json:"enabled"`
	Table   string `json:"table" env:"SHEETOPS_GEO_AUDIT_TABLE" env-default:"Missing_GeoMapping"`
	// Replace clears the audit table before writing. When false, existing
	// entries are kept and only new 4-tuples are appended.
	Replace bool `json:"replace" env:"SHEETOPS_GEO_AUDIT_REPLACE"`
}

// On reports whether the audit is enabled (default true).
func (a Audit) On() bool { return a.Enabled == nil || *a.Enabled }

// Geo configures geo resolution.
type Geo struct {
	LeadTable     string     `json:"lead_table" env:"SHEETOPS_GEO_LEAD_TABLE" env-default:"Lead_CleanedData"`
	MappingTables []string   `json:"mapping_tables" env:"SHEETOPS_GEO_MAPPING_TABLES" env-separator:"," env-default:"CityStateCountryRegionMapping"`
	Columns       GeoColumns `json:"columns"`
	// Gate is misplaced (default) or the deprecated, non-idempotent legacy.
	Gate      string    `json:"gate" env:"SHEETOPS_GEO_GATE" env-default:"misplaced"`
	Highlight Highlight `json:"highlight"`
	Audit     Audit     `json:"audit"`
}

// Regions configures region label normalization.
type Regions struct {
	Table  string `json:"table"  env:"SHEETOPS_REGIONS_TABLE"  env-default:"Lead_CleanedData"`
	Column string `json:"column" env:"SHEETOPS_REGIONS_COLUMN" env-default:"Region"`
	// Map overrides the built-in variant map. Keys are matched
	// case-insensitively.
	Map map[string]string `json:"map"`
}

// Titles configures job-title categorization.
type Titles struct {
	Table             string `json:"table"              env:"SHEETOPS_TITLES_TABLE"              env-default:"Lead_CleanedData"`
	TitleColumn       string `json:"title_column"       env:"SHEETOPS_TITLES_TITLE_COLUMN"       env-default:"Title"`
	DesignationColumn string `json:"designation_column" env:"SHEETOPS_TITLES_DESIGNATION_COLUMN" env-default:"Designation"`
}

// Size configures company-size interval normalization.
type Size struct {
	Table           string `json:"table"            env:"SHEETOPS_SIZE_TABLE"            env-default:"Lead_CleanedData"`
	EmployeesColumn string `json:"employees_column" env:"SHEETOPS_SIZE_EMPLOYEES_COLUMN" env-default:"# Employees"`
	SizeColumn      string `json:"size_column"      env:"SHEETOPS_SIZE_SIZE_COLUMN"      env-default:"Size of Company"`
	OutputColumn    string `json:"output_column"    env:"SHEETOPS_SIZE_OUTPUT_COLUMN"    env-default:"Company Size Interval"`
}

// Master configures master mapping generation.
type Master struct {
	MappingTable string `json:"mapping_table" env:"SHEETOPS_MASTER_MAPPING_TABLE" env-default:"CityStateCountryRegionMapping"`
	MissingTable string `json:"missing_table" env:"SHEETOPS_MASTER_MISSING_TABLE" env-default:"Missing_GeoMapping"`
	Output       string `json:"output"        env:"SHEETOPS_MASTER_OUTPUT"        env-default:"Master_Mapping"`
}

// Matrix configures the column matrix.
type Matrix struct {
	Output  string  `json:"output" env:"SHEETOPS_COLUMNS_OUTPUT" env-default:"Column_Matrix"`
	Exclude Exclude `json:"exclude"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `json:"level"  env:"SHEETOPS_LOG_LEVEL"  env-default:"info"`
	Format string `json:"format" env:"SHEETOPS_LOG_FORMAT" env-default:"text"`
}

// Metrics selects a metrics backend: none (default), prompush or datadog.
type Metrics struct {
	Backend        string `json:"backend"         env:"SHEETOPS_METRICS_BACKEND"         env-default:"none"`
	PushgatewayURL string `json:"pushgateway_url" env:"SHEETOPS_METRICS_PUSHGATEWAY_URL"`
	DatadogAddr    string `json:"datadog_addr"    env:"SHEETOPS_METRICS_DATADOG_ADDR"    env-default:"127.0.0.1:8125"`
}

// Options fetches typed values from a free-form JSON object. Missing keys
// and values of an unexpected type yield the supplied default.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value, for delimiters.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringSlice returns a []string for an array of strings, or nil.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON decodes a missing or null object to an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
