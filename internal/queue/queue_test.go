package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	id       string
	runs     atomic.Int32
	failTill int32
	err      error
}

func (j *countingJob) ID() string       { return j.id }
func (j *countingJob) Describe() string { return "counting job" }

func (j *countingJob) Run(ctx context.Context) error {
	n := j.runs.Add(1)
	if n <= j.failTill {
		return j.err
	}
	return nil
}

func TestInlineRetriesUntilSuccess(t *testing.T) {
	d := NewInline(3, nil)
	d.backoff = 0

	job := &countingJob{id: "j1", failTill: 2, err: errors.New("transient")}
	err := <-d.Submit(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int32(3), job.runs.Load())
}

func TestInlineExhaustsRetryBudget(t *testing.T) {
	d := NewInline(3, nil)
	d.backoff = 0

	cause := errors.New("permanent")
	job := &countingJob{id: "j2", failTill: 99, err: cause}
	err := <-d.Submit(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int32(3), job.runs.Load())
}

func TestInlineCancelledContext(t *testing.T) {
	d := NewInline(3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := &countingJob{id: "j3"}
	err := <-d.Submit(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), job.runs.Load())
}

func TestPoolRunsAllJobs(t *testing.T) {
	p := NewPool(4, 1, nil)
	p.backoff = 0

	var results []<-chan error
	jobs := make([]*countingJob, 16)
	for i := range jobs {
		jobs[i] = &countingJob{id: "pool"}
		results = append(results, p.Submit(context.Background(), jobs[i]))
	}
	for _, ch := range results {
		require.NoError(t, <-ch)
	}
	p.Close()

	for _, job := range jobs {
		assert.Equal(t, int32(1), job.runs.Load())
	}
}

func TestPoolFailureDoesNotBlockSiblings(t *testing.T) {
	p := NewPool(2, 2, nil)
	p.backoff = 0
	defer p.Close()

	bad := &countingJob{id: "bad", failTill: 99, err: errors.New("broken")}
	good := &countingJob{id: "good"}

	badResult := p.Submit(context.Background(), bad)
	goodResult := p.Submit(context.Background(), good)

	assert.Error(t, <-badResult)
	assert.NoError(t, <-goodResult)
	assert.Equal(t, int32(2), bad.runs.Load())
}

func TestPoolCloseIdempotent(t *testing.T) {
	p := NewPool(1, 1, nil)
	p.Close()
	p.Close()
}
