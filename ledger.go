package fuelledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/fuelledger/cache"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/operation"
	"github.com/xraph/fuelledger/plugin"
	"github.com/xraph/fuelledger/store"
)

// Ledger is the fuel custody engine. It owns tank levels, MRN ledger
// entries, the journal, and reconciliation. Every mutation runs as one
// atomic unit serialized per tank.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config
	lookup  operation.Lookup
	status  cache.StatusCache
	locks   *tankLocks
	now     func() time.Time

	// In-flight reconciliations by tank, for AbortReconcile.
	runsMu sync.Mutex
	runs   map[string]map[*reconcileRun]struct{}

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		config:   DefaultConfig(),
		status:   cache.NewMemory(),
		locks:    newTankLocks(),
		now:      func() time.Time { return time.Now().UTC() },
		runs:     make(map[string]map[*reconcileRun]struct{}),
		stopChan: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(l *Ledger) { l.config = cfg }
}

// WithOperationLookup sets the source used to resolve related operation
// IDs. Without one, movements that reference an operation are rejected.
func WithOperationLookup(lookup operation.Lookup) Option {
	return func(l *Ledger) { l.lookup = lookup }
}

// WithStatusCache replaces the in-process status cache.
func WithStatusCache(c cache.StatusCache) Option {
	return func(l *Ledger) { l.status = c }
}

// WithClock sets the clock used for timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.config.Validate(); err != nil {
		return err
	}

	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	l.plugins.EmitInit(ctx, l)

	if mem, ok := l.status.(*cache.Memory); ok {
		l.wg.Add(1)
		go l.sweepWorker(mem)
	}

	l.logger.Info("fuel ledger started",
		"fallback_capacity", l.config.FallbackCapacity.String(),
		"minor_threshold", l.config.Thresholds.Minor.String(),
		"operation_timeout", l.config.OperationTimeout,
		"staleness_window", l.config.StalenessWindow,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop cancels in-flight reconciliations and shuts down the Ledger.
func (l *Ledger) Stop() error {
	l.stopOnce.Do(func() { close(l.stopChan) })

	l.runsMu.Lock()
	for _, runs := range l.runs {
		for run := range runs {
			run.cancel(ErrReconcileAborted)
		}
	}
	l.runsMu.Unlock()

	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// sweepWorker drops expired status cache entries once per staleness window.
func (l *Ledger) sweepWorker(mem *cache.Memory) {
	defer l.wg.Done()

	interval := l.config.StalenessWindow
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			if n := mem.Sweep(); n > 0 {
				l.logger.Debug("swept status cache", "expired", n)
			}
		}
	}
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Config returns the active configuration.
func (l *Ledger) Config() Config { return l.config }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// ──────────────────────────────────────────────────
// Atomic units
// ──────────────────────────────────────────────────

// atomically runs fn as one atomic unit covering tanks. It holds the
// per-tank locks for the whole unit, bounds it with the operation timeout,
// and retries it when the store reports a concurrent modification. fn may
// run more than once and must not leak state between attempts.
func (l *Ledger) atomically(ctx context.Context, op string, tanks []id.TankID, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.config.OperationTimeout)
	defer cancel()

	tankID := ""
	if len(tanks) > 0 {
		tankID = tanks[0].String()
	}

	unlock, err := l.locks.acquire(ctx, tanks...)
	if err != nil {
		return l.contextError(ctx, op, tankID, err)
	}
	defer unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.config.RetryInterval
	policy.MaxInterval = 8 * l.config.RetryInterval

	attempts := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := l.store.WithTx(ctx, fn)
		if err == nil || errors.Is(err, ErrConcurrentModification) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(l.config.MaxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			l.logger.Debug("retrying after conflict", "op", op, "tank_id", tankID, "attempt", attempts, "next", next, "error", err)
		}),
	)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if ctx.Err() != nil {
		return l.contextError(ctx, op, tankID, err)
	}
	if errors.Is(err, ErrConcurrentModification) {
		var cm *ConcurrentModificationError
		if !errors.As(err, &cm) {
			err = &ConcurrentModificationError{Op: op, TankID: tankID, Attempts: attempts, Err: err}
		}
	}
	return err
}

// contextError maps a context failure to the error taxonomy.
func (l *Ledger) contextError(ctx context.Context, op, tankID string, err error) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrReconcileAborted):
		return fmt.Errorf("%w: tank %s", ErrReconcileAborted, tankID)
	case errors.Is(cause, context.DeadlineExceeded):
		return &OperationTimedOutError{Op: op, TankID: tankID, Timeout: l.config.OperationTimeout, Err: err}
	case cause != nil:
		return cause
	}
	return err
}
