// ABOUTME: Shared helpers for the CLI: logger construction and flag checks
// ABOUTME: Keeps root.go focused on wiring connections into a migration
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harper/brain-migrate/internal/migrate"
)

// errUsage marks errors caused by a bad command line
var errUsage = errors.New("usage")

func usageError(cmd *cobra.Command, format string, args ...interface{}) error {
	cmd.PrintErrln(cmd.UsageString())
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// newLogger builds the run logger. Verbose switches to the development
// encoder at debug level; quiet keeps only warnings and errors.
func newLogger(verbose, quiet bool, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	switch {
	case verbose:
		lvl = zapcore.DebugLevel
	case quiet:
		lvl = zapcore.WarnLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = !verbose

	return cfg.Build()
}

// needsKeyValue reports whether any selected kind reads from the key-value store
func needsKeyValue(kinds []migrate.Kind) bool {
	for _, k := range kinds {
		if k == migrate.KindBrain || k == migrate.KindMarkov {
			return true
		}
	}
	return false
}

// validateLimit returns error if n is negative
func validateLimit(n int) error {
	if n < 0 {
		return fmt.Errorf("limit must not be negative, got %d", n)
	}
	return nil
}
