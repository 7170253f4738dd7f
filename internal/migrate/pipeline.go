// ABOUTME: Source -> normalize -> sink lines, one per table or document set
// ABOUTME: Each pipeline can prepare its tables, transfer, or dump to the console
package migrate

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/harper/brain-migrate/internal/models"
	"github.com/harper/brain-migrate/internal/source"
	"github.com/harper/brain-migrate/internal/storage/relational"
)

// pipeline is one independent unit of work. Errors returned by its methods
// are *PipelineError.
type pipeline interface {
	Kind() Kind
	Name() string
	Prepare(ctx context.Context) error
	Transfer(ctx context.Context) (models.Summary, error)
	Dump(ctx context.Context, d *Dumper, limit int) error
}

type base struct {
	kind   Kind
	name   string
	logger *zap.Logger
}

func (b base) Kind() Kind   { return b.kind }
func (b base) Name() string { return b.name }

func (b base) fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return &PipelineError{Kind: b.kind, Pipeline: b.name, Stage: stage, Err: err}
}

// brainPipeline moves the whole brain snapshot
type brainPipeline struct {
	base
	reader *source.BrainReader
	store  *relational.BrainStore
}

func (p *brainPipeline) Prepare(ctx context.Context) error {
	if p.store == nil {
		return p.fail(StagePrepare, ErrNoSink)
	}
	return p.fail(StagePrepare, p.store.Prepare(ctx))
}

func (p *brainPipeline) Transfer(ctx context.Context) (models.Summary, error) {
	snapshot, err := p.reader.Load(ctx)
	if err != nil {
		return models.Summary{}, p.fail(StageExtract, err)
	}
	p.logger.Info("loaded brain", zap.Int("entries", snapshot.Len()))

	summary, err := p.store.Store(ctx, snapshot)
	return summary, p.fail(StageLoad, err)
}

func (p *brainPipeline) Dump(ctx context.Context, d *Dumper, limit int) error {
	snapshot, err := p.reader.Load(ctx)
	if err != nil {
		return p.fail(StageExtract, err)
	}
	return p.fail(StageDump, d.Brain(p.name, snapshot.Truncate(limit)))
}

// markovPipeline streams one model from the source scan into its table,
// one store call per source batch.
type markovPipeline struct {
	base
	reader    *source.MarkovReader
	store     *relational.MarkovStore
	scanBatch int
}

func (p *markovPipeline) Prepare(ctx context.Context) error {
	if p.store == nil {
		return p.fail(StagePrepare, ErrNoSink)
	}
	return p.fail(StagePrepare, p.store.Prepare(ctx))
}

func (p *markovPipeline) Transfer(ctx context.Context) (models.Summary, error) {
	var written models.Summary
	read, err := p.reader.ForEachBatch(ctx, p.scanBatch, func(ctx context.Context, batch []models.Transition) error {
		summary, err := p.store.Store(ctx, batch)
		written = written.Add(summary)
		if err != nil {
			return p.fail(StageLoad, err)
		}
		p.logger.Info("stored batch",
			zap.Int("transitions", len(batch)),
			zap.Stringer("written", written))
		return nil
	})
	if err != nil {
		return written, p.fail(StageExtract, err)
	}

	p.logger.Info("scan finished", zap.Stringer("read", read), zap.Stringer("written", written))
	return written, nil
}

func (p *markovPipeline) Dump(ctx context.Context, d *Dumper, limit int) error {
	remaining := limit
	batchNo := 0
	_, err := p.reader.ForEachBatch(ctx, p.scanBatch, func(ctx context.Context, batch []models.Transition) error {
		if limit > 0 && len(batch) > remaining {
			batch = batch[:remaining]
		}
		batchNo++
		if err := d.Transitions(p.name, batchNo, batch); err != nil {
			return p.fail(StageDump, err)
		}
		if limit > 0 {
			remaining -= len(batch)
			if remaining <= 0 {
				return source.ErrStop
			}
		}
		return nil
	})
	return p.fail(StageExtract, err)
}

// documentPipeline loads one document set from a file and stores it
type documentPipeline struct {
	base
	load  func(ctx context.Context) ([]models.Document, error)
	store *relational.DocumentSetStore
}

func (p *documentPipeline) Prepare(ctx context.Context) error {
	if p.store == nil {
		return p.fail(StagePrepare, ErrNoSink)
	}
	return p.fail(StagePrepare, p.store.Prepare(ctx))
}

func (p *documentPipeline) Transfer(ctx context.Context) (models.Summary, error) {
	docs, err := p.load(ctx)
	if err != nil {
		return models.Summary{}, p.fail(StageExtract, err)
	}
	summary, err := p.store.Store(ctx, docs)
	return summary, p.fail(StageLoad, err)
}

func (p *documentPipeline) Dump(ctx context.Context, d *Dumper, limit int) error {
	docs, err := p.load(ctx)
	if err != nil {
		return p.fail(StageExtract, err)
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return p.fail(StageDump, d.Documents(p.kind, p.name, docs))
}

// brokenPipeline stands in for a pipeline that could not be built, so the
// failure is reported alongside the others instead of aborting the run.
type brokenPipeline struct {
	base
	stage Stage
	err   error
}

func (p *brokenPipeline) Prepare(context.Context) error {
	return p.fail(p.stage, p.err)
}

func (p *brokenPipeline) Transfer(context.Context) (models.Summary, error) {
	return models.Summary{}, p.fail(p.stage, p.err)
}

func (p *brokenPipeline) Dump(context.Context, *Dumper, int) error {
	return p.fail(p.stage, p.err)
}
