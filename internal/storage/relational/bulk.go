// ABOUTME: Multi-row INSERT statement builder shared by every sink table
// ABOUTME: Splits row sets into fixed-size batches, one statement per batch
package relational

import (
	"context"
	"fmt"
	"strings"

	"github.com/harper/brain-migrate/internal/models"
)

// DefaultBatchSize is the number of rows sent in one bulk insert
const DefaultBatchSize = 1000

// bulkInsert renders INSERT ... VALUES (...), (...) for one table
type bulkInsert struct {
	dialect Dialect
	table   string
	columns []string
	suffix  string
}

func newBulkInsert(dialect Dialect, table string, columns ...string) bulkInsert {
	return bulkInsert{dialect: dialect, table: table, columns: columns}
}

// returning appends a RETURNING clause for the given column
func (b bulkInsert) returning(column string) bulkInsert {
	b.suffix = " RETURNING " + quoteIdent(column)
	return b
}

// statement builds the SQL for rows rows
func (b bulkInsert) statement(rows int) string {
	quoted := make([]string, len(b.columns))
	for i, c := range b.columns {
		quoted[i] = quoteIdent(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", quoteIdent(b.table), strings.Join(quoted, ", "))

	n := 0
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range b.columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			n++
			sb.WriteString(b.dialect.placeholder(n))
		}
		sb.WriteByte(')')
	}
	sb.WriteString(b.suffix)
	return sb.String()
}

// exec inserts rows in batches of batchSize. Batches that completed before a
// failure stay committed.
func (b bulkInsert) exec(ctx context.Context, db *DB, batchSize int, rows [][]interface{}) (models.Summary, error) {
	var summary models.Summary
	err := forEachChunk(len(rows), batchSize, func(lo, hi int) error {
		args := flatten(rows[lo:hi])
		if _, err := db.ExecContext(ctx, b.statement(hi-lo), args...); err != nil {
			return fmt.Errorf("%w: inserting rows %d-%d into %s: %w", models.ErrWriteFailed, lo, hi-1, b.table, err)
		}
		summary = summary.Add(models.Summary{Rows: hi - lo, Batches: 1})
		return nil
	})
	return summary, err
}

// forEachChunk calls fn with consecutive [lo, hi) windows of at most size
func forEachChunk(n, size int, fn func(lo, hi int) error) error {
	if size <= 0 {
		size = DefaultBatchSize
	}
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		if err := fn(lo, hi); err != nil {
			return err
		}
	}
	return nil
}

func flatten(rows [][]interface{}) []interface{} {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		args = append(args, row...)
	}
	return args
}
