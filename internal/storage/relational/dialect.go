// ABOUTME: SQL dialect differences between the Postgres and SQLite sinks
// ABOUTME: Covers placeholders, column types and table reset statements
package relational

import (
	"fmt"
	"strconv"
)

// Dialect names a supported relational sink
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect converts a configuration value into a Dialect
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(s)
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d, nil
}

// Validate rejects unknown dialects
func (d Dialect) Validate() error {
	switch d {
	case DialectPostgres, DialectSQLite:
		return nil
	}
	return fmt.Errorf("unsupported sink dialect %q (want postgres or sqlite)", string(d))
}

func (d Dialect) driverName() string {
	return string(d)
}

// placeholder returns the n-th (1-based) bind parameter
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d Dialect) autoIncrementKey() string {
	if d == DialectPostgres {
		return "SERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d Dialect) jsonColumn() string {
	if d == DialectPostgres {
		return "JSON DEFAULT '{}'::json"
	}
	return "TEXT DEFAULT '{}'"
}

func (d Dialect) timestampColumn() string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

// truncate empties a quoted table and resets its sequences where supported
func (d Dialect) truncate(quotedTable string) string {
	if d == DialectPostgres {
		return "TRUNCATE TABLE " + quotedTable + " RESTART IDENTITY"
	}
	return "DELETE FROM " + quotedTable
}
