package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/models"
)

// Runner executes one synchronization run over every instance.
type Runner interface {
	Run(ctx context.Context) (*models.RunReport, error)
}

// Scheduler triggers the periodic roster synchronization on a cron schedule.
// At most one run is active at any time.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	spec    string
	logger  *zap.Logger
	running atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a scheduler for the given cron expression.
func New(runner Runner, spec string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		runner: runner,
		spec:   spec,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Start registers the schedule and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce() }); err != nil {
		s.cancel()
		return err
	}
	s.cron.Start()
	s.logger.Info("sync scheduler started", zap.String("schedule", s.spec))
	return nil
}

// Stop halts the cron loop, cancels any active run and waits for it.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("sync scheduler stopped")
}

// Trigger starts a run in the background. It returns false when a run is already active.
func (s *Scheduler) Trigger() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.execute()
	}()
	return true
}

// RunOnce runs synchronously and reports whether a run happened.
func (s *Scheduler) RunOnce() bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("sync run skipped, previous run still active")
		return false
	}
	defer s.running.Store(false)
	s.execute()
	return true
}

// Running reports whether a run is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) execute() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	report, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("sync run failed", zap.Error(err))
		return
	}
	if report != nil {
		s.logger.Info("sync run finished",
			zap.Int("instances", len(report.Instances)),
			zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		)
	}
}
