package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "SHEETOPS_CONFIG"

// Load reads configuration with priority ENV > file > env-default tags.
// path wins over SHEETOPS_CONFIG. With neither set the config comes from the
// environment and defaults alone; an explicit path that does not exist is an
// error.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultExclude is the exclusion list applied when a section sets none.
func DefaultExclude() Exclude {
	return Exclude{
		Names:    []string{"CombinedData", "Analytics", "Filter_CombinedData"},
		Contains: []string{"❌", "combineddata", "old"},
	}
}

// DefaultLeadColumns are the output columns of lead cleaning with the
// source spellings accepted for each.
func DefaultLeadColumns() []ColumnAlias {
	return []ColumnAlias{
		{Output: "Email"},
		{Output: "First Name"},
		{Output: "Last Name"},
		{Output: "Title", Aliases: []string{"Job Title"}},
		{Output: "Seniority"},
		{Output: "Departments"},
		{Output: "Person Linkedin Url"},
		{Output: "Company Name", Aliases: []string{"Company"}},
		{Output: "# Employees", Aliases: []string{"Employees"}},
		{Output: "Size of Company", Aliases: []string{"Company number of employees"}},
		{Output: "Industry", Aliases: []string{"Company industry", "Company main industry"}},
		{Output: "Company City", Aliases: []string{"City"}},
		{Output: "Company State", Aliases: []string{"State"}},
		{Output: "Company Country", Aliases: []string{"Country"}},
		{Output: "Region"},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Options == nil {
		cfg.Store.Options = Options{}
	}
	empty := func(e Exclude) bool { return len(e.Names) == 0 && len(e.Contains) == 0 }
	if empty(cfg.Combine.Exclude) {
		cfg.Combine.Exclude = DefaultExclude()
	}
	if empty(cfg.Columns.Exclude) {
		cfg.Columns.Exclude = DefaultExclude()
		cfg.Columns.Exclude.Contains = append(cfg.Columns.Exclude.Contains, "missing")
	}
	if empty(cfg.Clean.Exclude) {
		cfg.Clean.Exclude = Exclude{
			Names:    []string{"CombinedData", "Analytics", "Filter_CombinedData", "All_Sheet_Columns"},
			Contains: []string{"❌"},
		}
	}
	if len(cfg.Clean.Columns) == 0 {
		cfg.Clean.Columns = DefaultLeadColumns()
	}
	if cfg.Merge.Dedup.Key == "" {
		cfg.Merge.Dedup.Key = "Email"
	}
	if cfg.Dedup.Dedup.Key == "" {
		cfg.Dedup.Dedup.Key = "Email"
	}
	if cfg.Clean.Winner == "" {
		cfg.Clean.Winner = "most-complete"
	}
}

// ReadList reads a text file of one entry per line. Blank lines and lines
// starting with '#' are skipped; order is preserved.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeSources returns Merge.Sources followed by the entries of
// Merge.SourcesFile, if set.
func (c *Config) MergeSources() ([]string, error) {
	out := append([]string(nil), c.Merge.Sources...)
	if c.Merge.SourcesFile == "" {
		return out, nil
	}
	list, err := ReadList(c.Merge.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("config: merge.sources_file: %w", err)
	}
	return append(out, list...), nil
}
