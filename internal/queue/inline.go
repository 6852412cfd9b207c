package queue

import (
	"context"
	"log/slog"
	"time"
)

// Inline runs each submitted job synchronously in the calling
// goroutine. Used for small interactive migrations and in tests.
type Inline struct {
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewInline creates a synchronous dispatcher with the given retry
// budget.
func NewInline(attempts int, logger *slog.Logger) *Inline {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{
		attempts: attempts,
		backoff:  100 * time.Millisecond,
		logger:   logger,
	}
}

// Submit runs the job to completion before returning. The returned
// channel already holds the terminal result.
func (d *Inline) Submit(ctx context.Context, job Job) <-chan error {
	result := make(chan error, 1)
	result <- runWithRetries(ctx, job, d.attempts, d.backoff, d.logger)
	close(result)
	return result
}

// Close is a no-op for the inline dispatcher.
func (d *Inline) Close() {}
