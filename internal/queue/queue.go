// Package queue provides the job dispatch layer: retryable units of
// work that run either inline in the calling goroutine or on a shared
// worker pool, with at-least-once semantics and a bounded retry budget.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultAttempts is the retry budget applied when none is configured.
const DefaultAttempts = 3

// Job is one independently retryable unit of work. Jobs must tolerate
// re-execution after a partial run; all destination effects are
// idempotent upserts.
type Job interface {
	// ID returns a unique identifier for logging and dead-letter
	// accounting.
	ID() string

	// Describe returns a short human-readable label.
	Describe() string

	// Run performs the work. A returned error triggers a retry until
	// the budget is exhausted.
	Run(ctx context.Context) error
}

// Dispatcher schedules jobs. Submit returns a channel that receives
// the job's terminal result exactly once: nil on success, or the last
// error after the retry budget is exhausted.
type Dispatcher interface {
	Submit(ctx context.Context, job Job) <-chan error

	// Close stops accepting jobs and waits for in-flight work.
	Close()
}

// runWithRetries executes job up to attempts times with linear backoff
// between attempts. Context cancellation aborts immediately.
func runWithRetries(ctx context.Context, job Job, attempts int, backoff time.Duration, logger *slog.Logger) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = job.Run(ctx)
		if lastErr == nil {
			return nil
		}

		logger.Warn("job attempt failed",
			"job", job.ID(),
			"what", job.Describe(),
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}

	return fmt.Errorf("job %s failed after %d attempts: %w", job.ID(), attempts, lastErr)
}
