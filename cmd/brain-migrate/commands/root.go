// ABOUTME: Root CLI command: selects kinds and actions, then runs the migration
// ABOUTME: Wires config, logging, connections and the roster into migrate.Migration
package commands

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harper/brain-migrate/internal/config"
	"github.com/harper/brain-migrate/internal/migrate"
	"github.com/harper/brain-migrate/internal/normalize"
	"github.com/harper/brain-migrate/internal/source"
	"github.com/harper/brain-migrate/internal/storage/relational"
	"github.com/harper/brain-migrate/internal/util"
)

// rootOptions holds the command-line flags of one invocation
type rootOptions struct {
	verbose bool
	quiet   bool

	brain   bool
	markov  bool
	quote   bool
	mapping bool

	transfer bool
	dump     bool
	limit    int

	redisURL    string
	databaseURL string
	driver      string
	bundleDir   string
}

func (o *rootOptions) kinds() []migrate.Kind {
	selected := []struct {
		kind migrate.Kind
		on   bool
	}{
		{migrate.KindBrain, o.brain},
		{migrate.KindMarkov, o.markov},
		{migrate.KindQuote, o.quote},
		{migrate.KindMapping, o.mapping},
	}

	var kinds []migrate.Kind
	for _, s := range selected {
		if s.on {
			kinds = append(kinds, s.kind)
		}
	}
	return kinds
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "brain-migrate",
		Short: "Move a chat bot's memory from Redis into a relational database",
		Long: `brain-migrate copies a chat bot's stored memory into SQL tables.

Kinds:
  --brain    the JSON brain blob, into table "brain" (replaced on every run)
  --markov   forward and reverse Markov chains, into default_forward/default_reverse
  --quote    the quote and lim files of the bundle, as document sets "quote" and "lim"
  --mapping  every bundle/mappings/*.json file, as a document set named after the file

Actions:
  --transfer write the selected kinds to the database
  --dump     print the selected kinds as YAML (use --limit to shorten)

Settings come from BRAIN_MIGRATE_* environment variables (a .env file is
loaded when present); flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	f := cmd.Flags()
	f.BoolVar(&opts.brain, "brain", false, "select the brain blob")
	f.BoolVar(&opts.markov, "markov", false, "select the Markov chains")
	f.BoolVar(&opts.quote, "quote", false, "select the quote and lim files")
	f.BoolVar(&opts.mapping, "mapping", false, "select the mapping files")
	f.BoolVarP(&opts.transfer, "transfer", "t", false, "write selected kinds to the database")
	f.BoolVarP(&opts.dump, "dump", "d", false, "print selected kinds as YAML")
	f.IntVarP(&opts.limit, "limit", "l", 0, "maximum records per dump section (0 for all)")
	f.StringVarP(&opts.redisURL, "redis", "r", "", "Redis URL (default redis://localhost:6379/)")
	f.StringVarP(&opts.databaseURL, "pg", "p", "", "database connection string")
	f.StringVar(&opts.driver, "driver", "", "database dialect: postgres or sqlite (default postgres)")
	f.StringVar(&opts.bundleDir, "bundle", "", "bundle directory (default bundle)")

	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func runMigration(cmd *cobra.Command, opts *rootOptions) error {
	kinds := opts.kinds()
	if len(kinds) == 0 {
		return usageError(cmd, "select at least one of --brain, --markov, --quote, --mapping")
	}
	if !opts.transfer && !opts.dump {
		return usageError(cmd, "select --transfer and/or --dump")
	}
	if err := validateLimit(opts.limit); err != nil {
		return usageError(cmd, "%v", err)
	}

	_ = godotenv.Load()
	cfg := config.FromEnv()
	applyFlags(cmd, opts, cfg)

	var err error
	if opts.transfer {
		err = cfg.ValidateForTransfer()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return err
	}

	logger, err := newLogger(opts.verbose, opts.quiet, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	deps := migrate.Deps{Logger: logger}

	if needsKeyValue(kinds) {
		kv, err := connectRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = kv.Close() }()
		deps.KV = kv
	}

	if opts.transfer {
		db, err := connectDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		deps.DB = db
	}

	roster, err := normalize.LoadRoster(filepath.Join(cfg.BundleDir, migrate.RosterFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("no roster found, speakers and mentions will not be matched", zap.Error(err))
	case err != nil:
		return err
	}
	deps.Roster = roster

	m, err := migrate.New(deps, migrate.Options{
		Kinds:       kinds,
		BrainKey:    cfg.BrainKey,
		BundleDir:   cfg.BundleDir,
		BotName:     cfg.BotName,
		Submitter:   cfg.Submitter,
		ScanBatch:   cfg.ScanBatch,
		InsertBatch: cfg.InsertBatch,
	})
	if err != nil {
		return err
	}
	logger.Info("starting migration",
		zap.String("run", m.RunID),
		zap.Strings("pipelines", m.Pipelines()))

	var report *migrate.Report
	var reportOut io.Writer = cmd.OutOrStdout()
	if opts.dump {
		report = m.Dump(ctx, cmd.OutOrStdout(), opts.limit)
		reportOut = cmd.ErrOrStderr()
	}
	if opts.transfer {
		transferred := m.Transfer(ctx)
		if report == nil {
			report = transferred
		} else {
			report.Merge(transferred)
		}
	}

	if err := report.Write(reportOut); err != nil {
		return err
	}
	return report.Err()
}

// applyFlags lets explicitly set flags override the environment
func applyFlags(cmd *cobra.Command, opts *rootOptions, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("redis") {
		cfg.RedisURL = opts.redisURL
	}
	if f.Changed("pg") {
		cfg.DatabaseURL = opts.databaseURL
	}
	if f.Changed("driver") {
		cfg.Driver = opts.driver
	}
	if f.Changed("bundle") {
		cfg.BundleDir = opts.bundleDir
	}
}

func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*source.RedisStore, error) {
	client, err := source.DialRedis(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	kv := source.NewRedisStore(client)

	err = util.Retry(ctx, "redis", cfg.ConnectRetries, cfg.RetryDelay, logger, kv.Ping)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return kv, nil
}

func connectDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*relational.DB, error) {
	dialect, err := relational.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := relational.Open(dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	err = util.Retry(ctx, string(dialect), cfg.ConnectRetries, cfg.RetryDelay, logger, db.Ping)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
