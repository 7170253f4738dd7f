// ABOUTME: Relational sink connection and lifecycle management
// ABOUTME: Opens Postgres via lib/pq or SQLite via modernc.org/sqlite behind one handle
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DB wraps a relational connection pool together with its dialect
type DB struct {
	conn    *sql.DB
	dialect Dialect
	dsn     string
}

// Open opens a connection pool for the given dialect. No connection is made
// until the first statement or Ping.
func Open(dialect Dialect, dsn string) (*DB, error) {
	if err := dialect.Validate(); err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("no connection string for %s", dialect)
	}

	if dialect == DialectSQLite {
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite has a single writer; concurrent pipelines queue for it.
		conn.SetMaxOpenConns(1)
	}

	return &DB{conn: conn, dialect: dialect, dsn: dsn}, nil
}

// OpenInMemory creates an in-memory SQLite database (for testing)
func OpenInMemory() (*DB, error) {
	conn, err := sql.Open(DialectSQLite.driverName(), ":memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every pooled connection would otherwise see its own empty database.
	conn.SetMaxOpenConns(1)

	return &DB{conn: conn, dialect: DialectSQLite, dsn: ":memory:"}, nil
}

// sqliteDSN creates the parent directory of a file database and turns on
// foreign keys so attribute rows cascade with their documents.
func sqliteDSN(dsn string) (string, error) {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path != ":memory:" && path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if strings.Contains(dsn, "foreign_keys") {
		return dsn, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
}

// Ping verifies the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Dialect returns the SQL dialect of the sink
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// ExecContext executes a statement without returning rows
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a statement that returns rows
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}
