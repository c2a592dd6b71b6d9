package sqlstore

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// dialect captures what differs between the database/sql engines.
type dialect struct {
	name        string
	driver      string
	placeholder sq.PlaceholderFormat
	textType    string
	keyType     string
	intType     string
	quote       func(string) string
	// ifMissing wraps a CREATE TABLE statement so it is a no-op when the
	// table already exists.
	ifMissing   func(table, create string) string
	validateDSN func(string) error
	// bulk selects the driver's bulk copy API instead of multi-row INSERT.
	bulk bool
	// maxParams bounds the bind parameters of a single statement.
	maxParams int
}

func quoteDouble(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
func quoteBacktick(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}
func quoteBracket(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

func createIfNotExists(_ string, create string) string {
	return strings.Replace(create, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
}

var dialects = map[string]dialect{
	"sqlite": {
		name:        "sqlite",
		driver:      "sqlite",
		placeholder: sq.Question,
		textType:    "TEXT",
		keyType:     "TEXT",
		intType:     "INTEGER",
		quote:       quoteDouble,
		ifMissing:   createIfNotExists,
		validateDSN: func(dsn string) error {
			if strings.TrimSpace(dsn) == "" {
				return fmt.Errorf("DSN must not be empty")
			}
			return nil
		},
		maxParams: 32000,
	},
	"mysql": {
		name:        "mysql",
		driver:      "mysql",
		placeholder: sq.Question,
		textType:    "LONGTEXT",
		keyType:     "VARCHAR(255)",
		intType:     "BIGINT",
		quote:       quoteBacktick,
		ifMissing:   createIfNotExists,
		validateDSN: func(dsn string) error {
			_, err := mysql.ParseDSN(dsn)
			return err
		},
		maxParams: 60000,
	},
	"mssql": {
		name:        "mssql",
		driver:      "sqlserver",
		placeholder: sq.AtP,
		textType:    "NVARCHAR(MAX)",
		keyType:     "NVARCHAR(255)",
		intType:     "BIGINT",
		quote:       quoteBracket,
		ifMissing: func(table, create string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL %s", strings.ReplaceAll(table, "'", "''"), create)
		},
		validateDSN: func(dsn string) error {
			_, err := msdsn.Parse(dsn)
			return err
		},
		bulk:      true,
		maxParams: 2000,
	},
}

func lookupDialect(kind string) (dialect, error) {
	d, ok := dialects[kind]
	if !ok {
		return dialect{}, fmt.Errorf("sqlstore: unknown dialect %q", kind)
	}
	return d, nil
}

func (d dialect) quoteAll(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = d.quote(id)
	}
	return out
}
