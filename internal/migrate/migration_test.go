// ABOUTME: End-to-end tests for the orchestrator against miniredis and in-memory SQLite
// ABOUTME: Covers concurrent transfer, failure aggregation, reruns and dump ordering
package migrate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/harper/brain-migrate/internal/models"
	"github.com/harper/brain-migrate/internal/normalize"
	"github.com/harper/brain-migrate/internal/source"
	"github.com/harper/brain-migrate/internal/storage/relational"
)

type fixture struct {
	mr     *miniredis.Miniredis
	kv     *source.RedisStore
	db     *relational.DB
	bundle string
	roster *normalize.Roster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := relational.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		mr:     mr,
		kv:     source.NewRedisStore(client),
		db:     db,
		bundle: t.TempDir(),
		roster: normalize.NewRoster([]string{"alice", "bob", "carol"}, map[string]string{"al": "alice"}),
	}

	require.NoError(t, mr.Set(source.DefaultBrainKey,
		`{"users":{"1":{"name":"alice"},"2":{"name":"bob"}},"karma":{"alice":5}}`))

	mr.HSet("markov:0", "hello", "2")
	mr.HSet("markov:5hello", "world", "3", "there", "1")
	mr.HSet("remarkov:5world", "hello", "3")

	f.write(t, QuoteFile, "[12:00] alice: hi @bob\n[12:01] bob: hey alice\n\n[13:00] carol: lunch?\n")
	f.write(t, LimFile, "roses are red\n- al\n---\nno name\n---\nhello\n- hubot\n")
	f.write(t, filepath.Join(MappingDir, "nicks.json"), `{"bob":"the builder","alice":"in wonderland"}`)
	f.write(t, filepath.Join(MappingDir, "broken.json"), `{"oops"`)

	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(f.bundle, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) migration(t *testing.T, kinds ...Kind) *Migration {
	t.Helper()
	m, err := New(Deps{KV: f.kv, DB: f.db, Roster: f.roster}, Options{
		Kinds:       kinds,
		BundleDir:   f.bundle,
		ScanBatch:   2,
		InsertBatch: 2,
	})
	require.NoError(t, err)
	return m
}

func resultFor(t *testing.T, r *Report, pipeline string) Result {
	t.Helper()
	for _, res := range r.Results {
		if res.Pipeline == pipeline {
			return res
		}
	}
	t.Fatalf("no result for pipeline %s", pipeline)
	return Result{}
}

func TestNew_BuildsPipelinesInKindOrder(t *testing.T) {
	f := newFixture(t)
	m := f.migration(t, KindMapping, KindQuote, KindBrain, KindMarkov, KindBrain)

	assert.Equal(t, []string{
		"brain/brain",
		"markov/default_forward",
		"markov/default_reverse",
		"quote/quote",
		"quote/lim",
		"mapping/broken",
		"mapping/nicks",
	}, m.Pipelines())
	assert.NotEmpty(t, m.RunID)
}

func TestNew_RequiresKinds(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestTransfer_AllKinds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.migration(t, AllKinds...)

	require.NoError(t, m.Prepare(ctx))
	report := m.Transfer(ctx)
	require.NoError(t, report.Err())
	assert.True(t, report.OK())

	assert.Equal(t, models.Summary{Rows: 3, Batches: 2}, resultFor(t, report, "brain").Summary)
	assert.Equal(t, 3, resultFor(t, report, "default_forward").Summary.Rows)
	assert.Equal(t, 1, resultFor(t, report, "default_reverse").Summary.Rows)
	assert.Equal(t, 2, resultFor(t, report, "quote").Summary.Rows)
	assert.Equal(t, 3, resultFor(t, report, "lim").Summary.Rows)
	assert.Equal(t, 2, resultFor(t, report, "nicks").Summary.Rows)
	assert.Equal(t, 0, resultFor(t, report, "broken").Summary.Rows)

	snapshot, err := relational.NewBrainStore(f.db, 0, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Len())

	var from string
	require.NoError(t, f.db.QueryRowContext(ctx,
		`SELECT "from" FROM "default_forward" WHERE "to" = 'hello'`).Scan(&from))
	assert.Equal(t, " ", from)

	var speakers int
	require.NoError(t, f.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM "lim_attributes" WHERE kind = 'speaker'`).Scan(&speakers))
	assert.Equal(t, 1, speakers, "alias resolves to alice, hubot is excluded")
}

func TestTransfer_FailuresAreAggregated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mr.Del(source.DefaultBrainKey)
	require.NoError(t, os.Remove(filepath.Join(f.bundle, LimFile)))

	m := f.migration(t, KindBrain, KindMarkov, KindQuote)
	require.NoError(t, m.Prepare(ctx))
	report := m.Transfer(ctx)

	failed := report.Failed()
	require.Len(t, failed, 2)
	assert.False(t, report.OK())

	for _, name := range []string{"brain", "lim"} {
		res := resultFor(t, report, name)
		var pe *PipelineError
		require.True(t, errors.As(res.Err, &pe), name)
		assert.Equal(t, StageExtract, pe.Stage)
		assert.ErrorIs(t, res.Err, models.ErrSourceUnavailable)
	}

	for _, name := range []string{"default_forward", "default_reverse", "quote"} {
		assert.NoError(t, resultFor(t, report, name).Err, name)
	}

	err := report.Err()
	assert.Contains(t, err.Error(), "brain/brain extract")
	assert.Contains(t, err.Error(), "quote/lim extract")
}

func TestTransfer_MarkovRerunFailsBrainDoesNot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.migration(t, KindBrain, KindMarkov).Transfer(ctx)
	require.NoError(t, first.Err())

	second := f.migration(t, KindBrain, KindMarkov).Transfer(ctx)
	assert.NoError(t, resultFor(t, second, "brain").Err)

	for _, name := range []string{"default_forward", "default_reverse"} {
		err := resultFor(t, second, name).Err
		var pe *PipelineError
		require.True(t, errors.As(err, &pe), name)
		assert.Equal(t, StageLoad, pe.Stage)
		assert.ErrorIs(t, err, models.ErrWriteFailed)
	}
}

func TestTransfer_WithoutSink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := New(Deps{KV: f.kv}, Options{Kinds: []Kind{KindBrain, KindQuote}, BundleDir: f.bundle})
	require.NoError(t, err)

	err = m.Prepare(ctx)
	assert.ErrorIs(t, err, ErrNoSink)

	report := m.Transfer(ctx)
	require.Len(t, report.Failed(), 3)
	for _, res := range report.Results {
		var pe *PipelineError
		require.True(t, errors.As(res.Err, &pe))
		assert.Equal(t, StagePrepare, pe.Stage)
	}
}

func TestTransfer_MissingMappingDir(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(f.bundle, MappingDir)))

	report := f.migration(t, KindMapping, KindBrain).Transfer(ctx)
	require.Len(t, report.Failed(), 1)
	res := report.Failed()[0]
	assert.Equal(t, KindMapping, res.Kind)
	assert.ErrorIs(t, res.Err, models.ErrSourceUnavailable)
}

func TestTransfer_UnsafeMappingName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, filepath.Join(MappingDir, "9lives.json"), `{"cat":"nine"}`)

	report := f.migration(t, KindMapping).Transfer(ctx)
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "9lives", failed[0].Pipeline)
	assert.ErrorIs(t, failed[0].Err, models.ErrInvalidIdentifier)
}

func TestTransfer_DuplicateSetNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, filepath.Join(MappingDir, "quote.json"), `{"zed":"not a quote"}`)
	f.write(t, filepath.Join(MappingDir, "Nick-Names.json"), `{"bob":"bobby"}`)
	f.write(t, filepath.Join(MappingDir, "nick_names.json"), `{"carol":"caz"}`)

	m := f.migration(t, KindQuote, KindMapping)
	report := m.Transfer(ctx)
	require.Error(t, report.Err())

	failed := report.Failed()
	require.Len(t, failed, 2)
	var names []string
	for _, res := range failed {
		assert.Equal(t, KindMapping, res.Kind)
		assert.ErrorIs(t, res.Err, models.ErrInvalidIdentifier)
		names = append(names, res.Pipeline)
	}
	assert.ElementsMatch(t, []string{"nick_names", "quote"}, names)

	var quotes, nicks int
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "quote_documents"`).Scan(&quotes))
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "nick_names_documents"`).Scan(&nicks))
	assert.Equal(t, 2, quotes)
	assert.Equal(t, 1, nicks)
}

func TestTransfer_BoundedParallelism(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := New(Deps{KV: f.kv, DB: f.db, Roster: f.roster}, Options{
		Kinds:       AllKinds,
		BundleDir:   f.bundle,
		Parallelism: 1,
	})
	require.NoError(t, err)
	assert.NoError(t, m.Transfer(ctx).Err())
}

func decodeSections(t *testing.T, out []byte) []dumpSection {
	t.Helper()
	dec := yaml.NewDecoder(bytes.NewReader(out))
	var sections []dumpSection
	for {
		var s dumpSection
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sections = append(sections, s)
	}
	return sections
}

func TestDump_OrderAndLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := New(Deps{KV: f.kv, Roster: f.roster}, Options{
		Kinds:     []Kind{KindQuote, KindBrain, KindMarkov},
		BundleDir: f.bundle,
		ScanBatch: 2,
	})
	require.NoError(t, err)

	var out bytes.Buffer
	report := m.Dump(ctx, &out, 1)
	require.NoError(t, report.Err())

	sections := decodeSections(t, out.Bytes())
	var order []string
	for _, s := range sections {
		order = append(order, string(s.Kind)+"/"+s.Pipeline)
		assert.Equal(t, 1, s.Count, s.Pipeline)
	}
	assert.Equal(t, []string{
		"brain/brain",
		"markov/default_forward",
		"markov/default_reverse",
		"quote/quote",
		"quote/lim",
	}, order)
}

func TestDump_NoLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := New(Deps{KV: f.kv}, Options{Kinds: []Kind{KindMarkov}, ScanBatch: 2})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, m.Dump(ctx, &out, 0).Err())

	total := 0
	for _, s := range decodeSections(t, out.Bytes()) {
		total += s.Count
	}
	assert.Equal(t, 4, total)
}

func TestDump_ReportsFailuresAndContinues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mr.Set(source.DefaultBrainKey, "not json"))

	m, err := New(Deps{KV: f.kv, Roster: f.roster}, Options{
		Kinds:     []Kind{KindBrain, KindQuote},
		BundleDir: f.bundle,
	})
	require.NoError(t, err)

	var out bytes.Buffer
	report := m.Dump(ctx, &out, 0)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, KindBrain, report.Failed()[0].Kind)
	assert.Len(t, decodeSections(t, out.Bytes()), 2)
}
