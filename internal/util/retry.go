// ABOUTME: Retry with exponential backoff for connection setup
// ABOUTME: Used to ping the key-value source and relational sink before a run
package util

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// maxBackoff caps a single wait between attempts
const maxBackoff = 30 * time.Second

// CalculateBackoff returns exponential backoff with jitter.
// Base delay is doubled each attempt, with random jitter up to 25%.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	attempt = min(attempt, 30)

	backoff := min(baseDelay*time.Duration(1<<uint(attempt)), maxBackoff)
	if backoff < 4 {
		return backoff
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/2)) - backoff/4
	return backoff + jitter
}

// Retry calls op up to attempts times, sleeping with backoff between failures.
// It stops early when ctx is done and returns the last error from op.
func Retry(ctx context.Context, name string, attempts int, baseDelay time.Duration, logger *zap.Logger, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		wait := CalculateBackoff(baseDelay, attempt)
		logger.Warn("retrying",
			zap.String("target", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempts, err)
}
