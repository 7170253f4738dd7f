// ABOUTME: Markov model sink: one table of (from, to, frequency) per model
// ABOUTME: Append only; rerunning against a filled table fails on the primary key
package relational

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harper/brain-migrate/internal/models"
)

// Default model tables for the forward and reverse chains
const (
	ForwardTable = "default_forward"
	ReverseTable = "default_reverse"
)

// MarkovStore writes transitions of one model. The table name is the model
// identity.
type MarkovStore struct {
	db        *DB
	table     string
	batchSize int
	logger    *zap.Logger
}

// NewMarkovStore creates a store for the named model table
func NewMarkovStore(db *DB, table string, batchSize int, logger *zap.Logger) (*MarkovStore, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkovStore{
		db:        db,
		table:     table,
		batchSize: batchSize,
		logger:    logger.With(zap.String("table", table)),
	}, nil
}

// Prepare creates the model table if needed. Existing rows are kept.
func (s *MarkovStore) Prepare(ctx context.Context) error {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s TEXT,
		%s TEXT,
		%s INTEGER,
		CONSTRAINT %s PRIMARY KEY (%s, %s)
	)`, quoteIdent(s.table),
		quoteIdent("from"), quoteIdent("to"), quoteIdent("frequency"),
		quoteIdent(s.table+"_pkey"), quoteIdent("from"), quoteIdent("to"))

	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("%w: creating %s: %w", models.ErrWriteFailed, s.table, err)
	}
	return nil
}

// Store inserts one batch of transitions as produced by the source scan
func (s *MarkovStore) Store(ctx context.Context, transitions []models.Transition) (models.Summary, error) {
	rows := make([][]interface{}, len(transitions))
	for i, t := range transitions {
		rows[i] = []interface{}{t.From, t.To, t.Frequency}
	}

	insert := newBulkInsert(s.db.Dialect(), s.table, "from", "to", "frequency")
	summary, err := insert.exec(ctx, s.db, s.batchSize, rows)
	if err != nil {
		return summary, err
	}

	s.logger.Debug("stored transitions", zap.Stringer("summary", summary))
	return summary, nil
}

// Count returns the number of rows in the model table
func (s *MarkovStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(s.table)).Scan(&n)
	return n, err
}
