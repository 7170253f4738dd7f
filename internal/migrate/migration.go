// ABOUTME: Orchestrator that builds one pipeline per table and runs them
// ABOUTME: Prepares and transfers concurrently, dumps sequentially in kind order
package migrate

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harper/brain-migrate/internal/models"
	"github.com/harper/brain-migrate/internal/normalize"
	"github.com/harper/brain-migrate/internal/source"
	"github.com/harper/brain-migrate/internal/storage/relational"
)

// Bundle layout relative to Options.BundleDir
const (
	QuoteFile  = "quotes"
	LimFile    = "lim.txt"
	MappingDir = "mappings"
	RosterFile = "roster.json"
)

// Document set names of the quote kind
const (
	QuoteSet = "quote"
	LimSet   = "lim"
)

const (
	DefaultBundleDir = "bundle"
	DefaultBotName   = "hubot"
)

// MarkovModel pairs a key prefix in the source with its destination table
type MarkovModel struct {
	Prefix string
	Table  string
}

// DefaultMarkovModels are the forward and reverse chains
var DefaultMarkovModels = []MarkovModel{
	{Prefix: source.ForwardPrefix, Table: relational.ForwardTable},
	{Prefix: source.ReversePrefix, Table: relational.ReverseTable},
}

// Deps are the connection handles and collaborators a migration uses.
// DB may be nil for dump-only runs.
type Deps struct {
	KV     source.KeyValueStore
	DB     *relational.DB
	Roster *normalize.Roster
	Logger *zap.Logger
}

// Options select what a migration moves and how
type Options struct {
	Kinds        []Kind
	BrainKey     string
	BundleDir    string
	BotName      string
	Submitter    string
	ScanBatch    int
	InsertBatch  int
	Parallelism  int
	MarkovModels []MarkovModel
}

func (o *Options) applyDefaults() {
	if o.BrainKey == "" {
		o.BrainKey = source.DefaultBrainKey
	}
	if o.BundleDir == "" {
		o.BundleDir = DefaultBundleDir
	}
	if o.BotName == "" {
		o.BotName = DefaultBotName
	}
	if o.Submitter == "" {
		o.Submitter = relational.DefaultSubmitter
	}
	if o.ScanBatch <= 0 {
		o.ScanBatch = source.DefaultScanBatch
	}
	if o.InsertBatch <= 0 {
		o.InsertBatch = relational.DefaultBatchSize
	}
	if len(o.MarkovModels) == 0 {
		o.MarkovModels = DefaultMarkovModels
	}
}

// Migration runs the pipelines of one invocation
type Migration struct {
	RunID string

	deps      Deps
	opts      Options
	logger    *zap.Logger
	pipelines []pipeline

	prepared   bool
	prepareErr []error

	// document set name -> claimed by an earlier pipeline
	sets map[string]bool
}

// New builds the pipelines for the requested kinds. Problems that affect a
// single pipeline (an unreadable mappings directory, an unusable set name)
// are reported when that pipeline runs rather than returned here.
func New(deps Deps, opts Options) (*Migration, error) {
	if len(opts.Kinds) == 0 {
		return nil, fmt.Errorf("no kinds selected")
	}
	opts.applyDefaults()
	if deps.Roster == nil {
		deps.Roster = normalize.NewRoster(nil, nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	m := &Migration{
		RunID: uuid.NewString(),
		deps:  deps,
		opts:  opts,
		sets:  make(map[string]bool),
	}
	m.logger = deps.Logger.With(zap.String("run", m.RunID))

	kinds := append([]Kind(nil), opts.Kinds...)
	sort.SliceStable(kinds, func(i, j int) bool { return kinds[i].order() < kinds[j].order() })

	seen := map[Kind]bool{}
	for _, kind := range kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true

		switch kind {
		case KindBrain:
			m.pipelines = append(m.pipelines, m.brainPipeline())
		case KindMarkov:
			for _, model := range opts.MarkovModels {
				m.pipelines = append(m.pipelines, m.markovPipeline(model))
			}
		case KindQuote:
			m.pipelines = append(m.pipelines, m.quotePipelines()...)
		case KindMapping:
			m.pipelines = append(m.pipelines, m.mappingPipelines()...)
		default:
			return nil, fmt.Errorf("unknown kind %q", kind)
		}
	}
	return m, nil
}

func (m *Migration) base(kind Kind, name string) base {
	return base{
		kind:   kind,
		name:   name,
		logger: m.logger.With(zap.String("kind", string(kind)), zap.String("pipeline", name)),
	}
}

func (m *Migration) brainPipeline() pipeline {
	b := m.base(KindBrain, relational.BrainTable)
	if m.deps.KV == nil {
		return &brokenPipeline{base: b, stage: StageExtract, err: ErrNoSource}
	}
	p := &brainPipeline{base: b, reader: source.NewBrainReader(m.deps.KV, m.opts.BrainKey)}
	if m.deps.DB != nil {
		p.store = relational.NewBrainStore(m.deps.DB, m.opts.InsertBatch, b.logger)
	}
	return p
}

func (m *Migration) markovPipeline(model MarkovModel) pipeline {
	b := m.base(KindMarkov, model.Table)
	if m.deps.KV == nil {
		return &brokenPipeline{base: b, stage: StageExtract, err: ErrNoSource}
	}
	p := &markovPipeline{
		base:      b,
		reader:    source.NewMarkovReader(m.deps.KV, model.Prefix),
		scanBatch: m.opts.ScanBatch,
	}
	if m.deps.DB != nil {
		store, err := relational.NewMarkovStore(m.deps.DB, model.Table, m.opts.InsertBatch, b.logger)
		if err != nil {
			return &brokenPipeline{base: b, stage: StagePrepare, err: err}
		}
		p.store = store
	}
	return p
}

func (m *Migration) quotePipelines() []pipeline {
	quotes := source.NewDocumentFileReader(
		filepath.Join(m.opts.BundleDir, QuoteFile), source.QuoteSeparator,
		normalize.ParseQuote, m.deps.Roster, m.logger)
	lims := source.NewDocumentFileReader(
		filepath.Join(m.opts.BundleDir, LimFile), source.LimSeparator,
		normalize.NewLimParser(m.opts.BotName).Parse, m.deps.Roster, m.logger).
		WithSpeakerWarning()

	return []pipeline{
		m.documentPipeline(KindQuote, QuoteSet, quotes.Load),
		m.documentPipeline(KindQuote, LimSet, lims.Load),
	}
}

func (m *Migration) mappingPipelines() []pipeline {
	dir := filepath.Join(m.opts.BundleDir, MappingDir)
	files, err := source.ListMappingFiles(dir)
	if err != nil {
		return []pipeline{&brokenPipeline{base: m.base(KindMapping, MappingDir), stage: StageExtract, err: err}}
	}

	pipelines := make([]pipeline, 0, len(files))
	for _, f := range files {
		reader := source.NewMappingFileReader(f.Path, m.logger)
		load := func(ctx context.Context) ([]models.Document, error) {
			mapping, err := reader.Load(ctx)
			if err != nil {
				return nil, err
			}
			return source.MappingDocuments(mapping), nil
		}
		pipelines = append(pipelines, m.documentPipeline(KindMapping, f.SetName, load))
	}
	return pipelines
}

// documentPipeline builds the pipeline for one document set. Each set owns
// one table pair, so a name already claimed by an earlier pipeline (a
// mappings/quote.json, or two files folding to the same name) is refused.
func (m *Migration) documentPipeline(kind Kind, set string, load func(context.Context) ([]models.Document, error)) pipeline {
	b := m.base(kind, set)
	if m.sets[set] {
		return &brokenPipeline{base: b, stage: StagePrepare,
			err: fmt.Errorf("%w: document set %q is already in use", models.ErrInvalidIdentifier, set)}
	}
	m.sets[set] = true

	p := &documentPipeline{base: b, load: load}
	if m.deps.DB != nil {
		store, err := relational.NewDocumentSetStore(m.deps.DB, set, m.opts.Submitter, m.opts.InsertBatch, b.logger)
		if err != nil {
			return &brokenPipeline{base: b, stage: StagePrepare, err: err}
		}
		p.store = store
	}
	return p
}

// Pipelines returns "kind/name" for every pipeline in run order
func (m *Migration) Pipelines() []string {
	names := make([]string, len(m.pipelines))
	for i, p := range m.pipelines {
		names[i] = string(p.Kind()) + "/" + p.Name()
	}
	return names
}

func (m *Migration) group() *errgroup.Group {
	g := new(errgroup.Group)
	if m.opts.Parallelism > 0 {
		g.SetLimit(m.opts.Parallelism)
	}
	return g
}

// Prepare creates every destination table concurrently. All pipelines are
// prepared even when some fail; the returned error combines every failure.
func (m *Migration) Prepare(ctx context.Context) error {
	errs := make([]error, len(m.pipelines))
	g := m.group()
	for i, p := range m.pipelines {
		i, p := i, p
		g.Go(func() error {
			errs[i] = p.Prepare(ctx)
			return nil
		})
	}
	_ = g.Wait()

	m.prepared = true
	m.prepareErr = errs
	for i, err := range errs {
		if err != nil {
			m.logger.Error("prepare failed", zap.String("pipeline", m.pipelines[i].Name()), zap.Error(err))
		}
	}
	return combine(errs)
}

// Transfer runs every prepared pipeline concurrently and waits for all of
// them. Pipelines whose prepare failed are reported as failed without
// running. Prepare runs first if it has not been called.
func (m *Migration) Transfer(ctx context.Context) *Report {
	if !m.prepared {
		_ = m.Prepare(ctx)
	}

	report := newReport(m.RunID, ActionTransfer, len(m.pipelines))
	g := m.group()
	for i, p := range m.pipelines {
		if err := m.prepareErr[i]; err != nil {
			report.Results[i] = Result{Action: ActionTransfer, Kind: p.Kind(), Pipeline: p.Name(), Err: err}
			continue
		}
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			summary, err := p.Transfer(ctx)
			report.Results[i] = Result{
				Action:   ActionTransfer,
				Kind:     p.Kind(),
				Pipeline: p.Name(),
				Summary:  summary,
				Err:      err,
				Duration: time.Since(start),
			}
			if err != nil {
				m.logger.Error("pipeline failed", zap.String("pipeline", p.Name()), zap.Error(err))
			} else {
				m.logger.Info("pipeline finished", zap.String("pipeline", p.Name()), zap.Stringer("summary", summary))
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// Dump writes every pipeline's source records to w as YAML, one pipeline at
// a time in kind order. limit <= 0 dumps everything.
func (m *Migration) Dump(ctx context.Context, w io.Writer, limit int) *Report {
	report := newReport(m.RunID, ActionDump, len(m.pipelines))
	d := NewDumper(w)

	for i, p := range m.pipelines {
		start := time.Now()
		err := p.Dump(ctx, d, limit)
		report.Results[i] = Result{Action: ActionDump, Kind: p.Kind(), Pipeline: p.Name(), Err: err, Duration: time.Since(start)}
		if err != nil {
			m.logger.Error("dump failed", zap.String("pipeline", p.Name()), zap.Error(err))
		}
	}
	if err := d.Close(); err != nil {
		m.logger.Warn("closing dump output", zap.Error(err))
	}
	return report
}
