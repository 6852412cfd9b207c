package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// submission pairs a job with the channel its terminal result is
// delivered on.
type submission struct {
	ctx    context.Context
	job    Job
	result chan error
}

// Pool runs jobs on a fixed set of workers pulling from a shared
// queue. Cross-job coordination happens only through the sync state
// store and destination-side idempotency, so workers share no state.
type Pool struct {
	jobs     chan submission
	attempts int
	backoff  time.Duration
	logger   *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPool starts a dispatcher with the given number of workers and
// per-job retry budget.
func NewPool(workers, attempts int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		jobs:     make(chan submission, workers*4),
		attempts: attempts,
		backoff:  250 * time.Millisecond,
		logger:   logger,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

// Submit enqueues a job and returns the channel its terminal result
// arrives on. Blocks when every worker is busy and the queue is full,
// which bounds memory during large folder fan-outs.
func (p *Pool) Submit(ctx context.Context, job Job) <-chan error {
	result := make(chan error, 1)

	select {
	case p.jobs <- submission{ctx: ctx, job: job, result: result}:
	case <-ctx.Done():
		result <- ctx.Err()
		close(result)
	}

	return result
}

// Close stops accepting jobs and waits for in-flight work to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for sub := range p.jobs {
		sub.result <- runWithRetries(sub.ctx, sub.job, p.attempts, p.backoff, p.logger)
		close(sub.result)
	}
}
