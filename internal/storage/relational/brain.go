// ABOUTME: Brain table sink: one row per (key, type) with a JSON value
// ABOUTME: Prepare always empties the table so every run is a full replace
package relational

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/harper/brain-migrate/internal/models"
)

// BrainTable is the destination table of the brain snapshot
const BrainTable = "brain"

// BrainStore writes brain snapshots
type BrainStore struct {
	db        *DB
	batchSize int
	logger    *zap.Logger
}

// NewBrainStore creates a new BrainStore
func NewBrainStore(db *DB, batchSize int, logger *zap.Logger) *BrainStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrainStore{db: db, batchSize: batchSize, logger: logger.With(zap.String("table", BrainTable))}
}

// Prepare creates the brain table if needed and truncates it
func (s *BrainStore) Prepare(ctx context.Context) error {
	d := s.db.Dialect()
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s TEXT,
		%s TEXT,
		%s %s,
		CONSTRAINT %s PRIMARY KEY (%s, %s)
	)`, quoteIdent(BrainTable),
		quoteIdent("key"), quoteIdent("type"), quoteIdent("value"), d.jsonColumn(),
		quoteIdent(BrainTable+"_pkey"), quoteIdent("key"), quoteIdent("type"))

	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("%w: creating %s: %w", models.ErrWriteFailed, BrainTable, err)
	}
	if _, err := s.db.ExecContext(ctx, d.truncate(quoteIdent(BrainTable))); err != nil {
		return fmt.Errorf("%w: truncating %s: %w", models.ErrWriteFailed, BrainTable, err)
	}
	return nil
}

// Store inserts every entry of the snapshot. The first failed batch aborts
// the call; batches already inserted remain.
func (s *BrainStore) Store(ctx context.Context, snapshot models.BrainSnapshot) (models.Summary, error) {
	entries := snapshot.Entries()
	rows := make([][]interface{}, len(entries))
	for i, e := range entries {
		rows[i] = []interface{}{e.Key, e.Type, string(e.Value)}
	}

	insert := newBulkInsert(s.db.Dialect(), BrainTable, "key", "type", "value")
	summary, err := insert.exec(ctx, s.db, s.batchSize, rows)
	if err != nil {
		return summary, err
	}

	s.logger.Info("stored brain entries", zap.Stringer("summary", summary))
	return summary, nil
}

// Load reads the table back into a snapshot
func (s *BrainStore) Load(ctx context.Context) (models.BrainSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, %s, %s FROM %s",
		quoteIdent("key"), quoteIdent("type"), quoteIdent("value"), quoteIdent(BrainTable)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	snapshot := models.BrainSnapshot{}
	for rows.Next() {
		var key, typ, value string
		if err := rows.Scan(&key, &typ, &value); err != nil {
			return nil, err
		}
		if snapshot[typ] == nil {
			snapshot[typ] = map[string]json.RawMessage{}
		}
		snapshot[typ][key] = json.RawMessage(value)
	}
	return snapshot, rows.Err()
}
