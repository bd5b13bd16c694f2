// Package scheduler runs batch reconciliation on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/reconcile"
)

// DefaultSpec reconciles every tank every 15 minutes.
const DefaultSpec = "@every 15m"

// Runner runs one scheduled reconciliation batch. *fuelledger.Ledger
// implements it.
type Runner interface {
	RunScheduledReconciliation(ctx context.Context) (*fuelledger.BatchResult, error)
}

// Scheduler triggers Runner on a cron expression. A run that is still in
// progress when the next tick fires makes that tick a no-op.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	spec    string
	timeout time.Duration
	logger  *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    *fuelledger.BatchResult
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSpec sets the cron expression. Standard five-field expressions and
// descriptors such as "@hourly" or "@every 5m" are accepted.
func WithSpec(spec string) Option {
	return func(s *Scheduler) { s.spec = spec }
}

// WithTimeout bounds a single batch run. Zero leaves runs unbounded.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithLocation sets the time zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.cron = cron.New(cron.WithLocation(loc)) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler for runner.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:   cron.New(),
		runner: runner,
		spec:   DefaultSpec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the job and starts the cron loop. Runs use a context
// derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		s.cancel()
		return fmt.Errorf("scheduler: invalid spec %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("reconciliation scheduler started", "spec", s.spec)
	return nil
}

// Stop stops scheduling, cancels an in-flight run, and waits for it to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-done.Done():
		s.logger.Info("reconciliation scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the most recent batch result, or nil.
func (s *Scheduler) Last() *fuelledger.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) tick() {
	if _, err := s.RunNow(s.ctx); err != nil {
		s.logger.Error("scheduled reconciliation failed", "error", err)
	}
}

// RunNow runs one batch immediately unless one is already running, in
// which case it returns (nil, nil).
func (s *Scheduler) RunNow(ctx context.Context) (*fuelledger.BatchResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("scheduled reconciliation skipped, previous run still in progress")
		return nil, nil
	}
	defer s.running.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	batch, err := s.runner.RunScheduledReconciliation(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = batch
	s.mu.Unlock()

	counts := batch.Count()
	if counts[reconcile.Major] > 0 || len(batch.Failed()) > 0 {
		s.logger.Warn("scheduled reconciliation found problems",
			"major", counts[reconcile.Major],
			"minor", counts[reconcile.Minor],
			"failed", len(batch.Failed()),
		)
	}
	return batch, nil
}
