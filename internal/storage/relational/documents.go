// ABOUTME: Document set sink: a documents table and an attributes table per set
// ABOUTME: Attribute rows are keyed by the ids the documents insert returns
package relational

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/harper/brain-migrate/internal/models"
)

// DefaultSubmitter is written into the submitter column when none is given
const DefaultSubmitter = "brain-migrate"

// DocumentSetStore writes documents of one named set
type DocumentSetStore struct {
	db         *DB
	name       string
	submitter  string
	batchSize  int
	logger     *zap.Logger
	documents  string
	attributes string
}

// NewDocumentSetStore creates a store for the named document set
func NewDocumentSetStore(db *DB, name, submitter string, batchSize int, logger *zap.Logger) (*DocumentSetStore, error) {
	if err := ValidateIdentifier(name); err != nil {
		return nil, err
	}
	if submitter == "" {
		submitter = DefaultSubmitter
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentSetStore{
		db:         db,
		name:       name,
		submitter:  submitter,
		batchSize:  batchSize,
		logger:     logger.With(zap.String("set", name)),
		documents:  name + "_documents",
		attributes: name + "_attributes",
	}, nil
}

// Tables returns the documents and attributes table names
func (s *DocumentSetStore) Tables() (documents, attributes string) {
	return s.documents, s.attributes
}

// Prepare creates both tables if needed. Existing rows are kept.
func (s *DocumentSetStore) Prepare(ctx context.Context) error {
	d := s.db.Dialect()
	documents := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s %s,
		%s TEXT NOT NULL,
		%s TEXT,
		%s %s NOT NULL,
		%s %s NOT NULL
	)`, quoteIdent(s.documents),
		quoteIdent("id"), d.autoIncrementKey(),
		quoteIdent("body"),
		quoteIdent("submitter"),
		quoteIdent("created_at"), d.timestampColumn(),
		quoteIdent("updated_at"), d.timestampColumn())

	attributes := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s INTEGER NOT NULL REFERENCES %s (%s) ON DELETE CASCADE,
		%s TEXT NOT NULL,
		%s TEXT NOT NULL,
		CONSTRAINT %s PRIMARY KEY (%s, %s, %s)
	)`, quoteIdent(s.attributes),
		quoteIdent("document_id"), quoteIdent(s.documents), quoteIdent("id"),
		quoteIdent("kind"),
		quoteIdent("value"),
		quoteIdent(s.attributes+"_pkey"), quoteIdent("document_id"), quoteIdent("kind"), quoteIdent("value"))

	if _, err := s.db.ExecContext(ctx, documents); err != nil {
		return fmt.Errorf("%w: creating %s: %w", models.ErrWriteFailed, s.documents, err)
	}
	if _, err := s.db.ExecContext(ctx, attributes); err != nil {
		return fmt.Errorf("%w: creating %s: %w", models.ErrWriteFailed, s.attributes, err)
	}
	return nil
}

// Store inserts the documents, collecting generated ids in submission order,
// then inserts one attribute row per speaker, mention and subject. When the
// attribute insert fails the documents already inserted are not removed.
func (s *DocumentSetStore) Store(ctx context.Context, docs []models.Document) (models.Summary, error) {
	ids, summary, err := s.insertDocuments(ctx, docs)
	if err != nil {
		return summary, err
	}

	var rows [][]interface{}
	for i, doc := range docs {
		for _, attr := range doc.Attributes(ids[i]) {
			rows = append(rows, []interface{}{attr.DocumentID, string(attr.Kind), attr.Value})
		}
	}

	insert := newBulkInsert(s.db.Dialect(), s.attributes, "document_id", "kind", "value")
	attrSummary, err := insert.exec(ctx, s.db, s.batchSize, rows)
	if err != nil {
		return summary, err
	}

	s.logger.Info("stored documents",
		zap.Stringer("documents", summary),
		zap.Stringer("attributes", attrSummary))
	return summary, nil
}

// insertDocuments returns the generated id of every document, index for index
func (s *DocumentSetStore) insertDocuments(ctx context.Context, docs []models.Document) ([]int64, models.Summary, error) {
	insert := newBulkInsert(s.db.Dialect(), s.documents, "body", "submitter", "created_at", "updated_at").
		returning("id")
	now := time.Now().UTC()

	ids := make([]int64, 0, len(docs))
	var summary models.Summary
	err := forEachChunk(len(docs), s.batchSize, func(lo, hi int) error {
		args := make([]interface{}, 0, (hi-lo)*4)
		for _, doc := range docs[lo:hi] {
			args = append(args, doc.Body, s.submitter, now, now)
		}

		batch, err := s.queryIDs(ctx, insert.statement(hi-lo), args)
		if err != nil {
			return fmt.Errorf("%w: inserting documents %d-%d into %s: %w", models.ErrWriteFailed, lo, hi-1, s.documents, err)
		}
		if len(batch) != hi-lo {
			return fmt.Errorf("%w: %s returned %d ids for %d documents", models.ErrWriteFailed, s.documents, len(batch), hi-lo)
		}

		ids = append(ids, inInsertOrder(batch)...)
		summary = summary.Add(models.Summary{Rows: hi - lo, Batches: 1})
		return nil
	})
	return ids, summary, err
}

// inInsertOrder sorts the ids of one multi-row insert ascending. Neither
// engine promises RETURNING rows in VALUES order, but both assign
// auto-increment ids to the rows of a single statement in VALUES order.
func inInsertOrder(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *DocumentSetStore) queryIDs(ctx context.Context, query string, args []interface{}) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of documents and attributes in the set
func (s *DocumentSetStore) Count(ctx context.Context) (documents, attributes int, err error) {
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(s.documents)).Scan(&documents); err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(s.attributes)).Scan(&attributes)
	return documents, attributes, err
}
