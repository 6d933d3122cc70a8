package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan Job, 1)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		done <- job
		return nil
	}, QueueConfig{})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j1", Type: "sync", Subject: "inst-1"}))
	select {
	case job := <-done:
		assert.Equal(t, "inst-1", job.Subject)
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("job not processed")
	}
}

func TestQueueRetriesOnlyRetryableErrors(t *testing.T) {
	retryable := errors.New("registry down")
	var calls int32
	q := NewQueue("test", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return retryable
		}
		return nil
	}, QueueConfig{MaxRetries: 2, RetryDelay: 10 * time.Millisecond, RetryIf: func(err error) bool {
		return errors.Is(err, retryable)
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j1"}))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestQueueDoesNotRetryPermanentErrors(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(_ context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permission denied")
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond, RetryIf: func(error) bool { return false }})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j1"}))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "j1"}))
}
