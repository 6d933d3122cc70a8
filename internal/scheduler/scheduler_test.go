package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sirh-sync/internal/models"
)

type blockingRunner struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 4)}
}

func (r *blockingRunner) Run(ctx context.Context) (*models.RunReport, error) {
	r.calls.Add(1)
	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	now := time.Now()
	return &models.RunReport{StartedAt: now, FinishedAt: now}, nil
}

func TestTriggerRejectsConcurrentRuns(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, "@every 1h", nil)

	require.True(t, s.Trigger())
	<-runner.started
	assert.True(t, s.Running())
	assert.False(t, s.Trigger())
	assert.False(t, s.RunOnce())

	close(runner.release)
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestRunOnceLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	runner := newBlockingRunner()
	runner.err = errors.New("database down")
	close(runner.release)

	s := New(runner, "@every 1h", zap.New(core))
	assert.True(t, s.RunOnce())
	assert.Equal(t, 1, logs.FilterMessage("sync run failed").Len())
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := New(newBlockingRunner(), "not a schedule", nil)
	assert.Error(t, s.Start(context.Background()))
}

func TestStopCancelsActiveRun(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, "@every 1h", nil)
	require.NoError(t, s.Start(context.Background()))

	require.True(t, s.Trigger())
	<-runner.started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
	assert.False(t, s.Running())
}
