package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "store.kind",
// "clean.columns[2].output").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	knownStores      = set("csvdir", "sqlite", "mysql", "mssql", "postgres")
	knownCheckpoints = set("memory", "file", "sqlite", "redis")
	knownWinners     = set("", "most-complete", "keep-first", "keep-last")
	knownBlankModes  = set("", "keep", "drop")
	knownGates       = set("", "misplaced", "legacy")
	knownMetrics     = set("", "none", "prompush", "datadog")
	knownLogFormats  = set("", "text", "json")
	knownLogLevels   = set("", "debug", "info", "warn", "warning", "error")
)

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

func has(m map[string]struct{}, v string) bool {
	_, ok := m[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Validate performs static checks over cfg. It does not mutate cfg.
func Validate(cfg *Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels metrics and checkpoint keys")
	}

	switch {
	case strings.TrimSpace(cfg.Store.Kind) == "":
		add(SeverityError, "store.kind", "store.kind must not be empty")
	case !has(knownStores, cfg.Store.Kind):
		add(SeverityWarning, "store.kind", "unknown store kind %q; ensure a matching implementation is registered", cfg.Store.Kind)
	}
	if strings.TrimSpace(cfg.Store.DSN) == "" {
		add(SeverityError, "store.dsn", "store.dsn must not be empty")
	}
	if cfg.Store.ReadConcurrency < 0 {
		add(SeverityError, "store.read_concurrency", "must be >= 0")
	}
	if enc := cfg.Store.Options.String("encoding", ""); enc != "" && cfg.Store.Kind != "csvdir" {
		add(SeverityWarning, "store.options.encoding", "encoding only applies to csvdir stores")
	}

	if !has(knownCheckpoints, cfg.Checkpoint.Kind) {
		add(SeverityError, "checkpoint.kind", "unknown checkpoint kind %q", cfg.Checkpoint.Kind)
	}
	if cfg.Checkpoint.Kind != "memory" && strings.TrimSpace(cfg.Checkpoint.DSN) == "" {
		add(SeverityError, "checkpoint.dsn", "checkpoint.dsn must not be empty for kind %q", cfg.Checkpoint.Kind)
	}

	if cfg.Combine.BatchSize <= 0 {
		add(SeverityError, "combine.batch_size", "must be > 0, got %d", cfg.Combine.BatchSize)
	}
	if strings.TrimSpace(cfg.Combine.Output) == "" {
		add(SeverityError, "combine.output", "output table name must not be empty")
	}

	issues = append(issues, validateDedup("merge.dedup", cfg.Merge.Dedup)...)
	issues = append(issues, validateDedup("dedup.dedup", cfg.Dedup.Dedup)...)
	if !has(knownWinners, cfg.Clean.Winner) {
		add(SeverityError, "clean.winner", "unknown winner policy %q", cfg.Clean.Winner)
	}
	for i, c := range cfg.Clean.Columns {
		if strings.TrimSpace(c.Output) == "" {
			add(SeverityError, fmt.Sprintf("clean.columns[%d].output", i), "output column must not be empty")
		}
	}
	if strings.TrimSpace(cfg.Clean.DedupKey) == "" {
		add(SeverityError, "clean.dedup_key", "dedup key must not be empty")
	}

	if !has(knownGates, cfg.Geo.Gate) {
		add(SeverityError, "geo.gate", "unknown gate %q; use misplaced or legacy", cfg.Geo.Gate)
	} else if strings.EqualFold(strings.TrimSpace(cfg.Geo.Gate), "legacy") {
		add(SeverityWarning, "geo.gate", "legacy gate is deprecated and not idempotent: a second run can move values again")
	}
	if len(cfg.Geo.MappingTables) == 0 {
		add(SeverityError, "geo.mapping_tables", "at least one mapping table is required")
	}
	gc := cfg.Geo.Columns
	for _, c := range [][2]string{
		{"city", gc.City},
		{"state", gc.State},
		{"country", gc.Country},
		{"region", gc.Region},
	} {
		if strings.TrimSpace(c[1]) == "" {
			add(SeverityError, "geo.columns."+c[0], "column name must not be empty")
		}
	}
	if cfg.Geo.Highlight.On() && !strings.HasPrefix(cfg.Geo.Highlight.Color, "#") {
		add(SeverityWarning, "geo.highlight.color", "color %q is not a #rrggbb value", cfg.Geo.Highlight.Color)
	}

	if !has(knownMetrics, cfg.Metrics.Backend) {
		add(SeverityError, "metrics.backend", "unknown metrics backend %q", cfg.Metrics.Backend)
	}
	if strings.EqualFold(cfg.Metrics.Backend, "prompush") && cfg.Metrics.PushgatewayURL == "" {
		add(SeverityError, "metrics.pushgateway_url", "prompush backend requires a pushgateway url")
	}
	if !has(knownLogFormats, cfg.Log.Format) {
		add(SeverityWarning, "log.format", "unknown log format %q; text is used", cfg.Log.Format)
	}
	if !has(knownLogLevels, cfg.Log.Level) {
		add(SeverityWarning, "log.level", "unknown log level %q; info is used", cfg.Log.Level)
	}
	return issues
}

func validateDedup(path string, d DedupOptions) []Issue {
	var issues []Issue
	if !d.AllowDuplicates && strings.TrimSpace(d.Key) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".key", Message: "dedup key must not be empty"})
	}
	if !has(knownWinners, d.Winner) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".winner", Message: fmt.Sprintf("unknown winner policy %q", d.Winner)})
	}
	if !has(knownBlankModes, d.BlankKeys) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".blank_keys", Message: fmt.Sprintf("unknown blank-key mode %q", d.BlankKeys)})
	}
	return issues
}
