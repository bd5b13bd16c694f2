package fuelledger

import (
	"errors"
	"time"

	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/types"
)

// Config holds the tunables of a Ledger. Start from DefaultConfig.
type Config struct {
	// FallbackCapacity replaces a tank's declared capacity when that value
	// is outside [1, 1_000_000] liters.
	FallbackCapacity types.Quantity `json:"fallback_capacity"`

	// Tolerance bounds quantity equality and liters/kg agreement.
	Tolerance types.Tolerance `json:"tolerance"`

	// Thresholds classify reconciliation drift.
	Thresholds reconcile.Thresholds `json:"thresholds"`

	// CorrectionDirection is used when a correction request names none.
	CorrectionDirection reconcile.CorrectionDirection `json:"correction_direction"`

	// OperationTimeout bounds every operation, lock waits included.
	OperationTimeout time.Duration `json:"operation_timeout"`

	// MaxRetries is how many times an atomic unit is retried after a
	// concurrent modification.
	MaxRetries int `json:"max_retries"`

	// RetryInterval is the first backoff interval between retries.
	RetryInterval time.Duration `json:"retry_interval"`

	// ReconcileConcurrency bounds how many tanks ReconcileAll checks at once.
	ReconcileConcurrency int `json:"reconcile_concurrency"`

	// StalenessWindow is how long a reconciliation record answers status
	// queries before a recheck is forced.
	StalenessWindow time.Duration `json:"staleness_window"`

	// PageSize is the batch size used when streaming balances and legs.
	PageSize int `json:"page_size"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		FallbackCapacity:     types.Whole(24500),
		Tolerance:            types.DefaultTolerance(),
		Thresholds:           reconcile.DefaultThresholds(),
		CorrectionDirection:  reconcile.CorrectTank,
		OperationTimeout:     5 * time.Second,
		MaxRetries:           3,
		RetryInterval:        25 * time.Millisecond,
		ReconcileConcurrency: 4,
		StalenessWindow:      10 * time.Minute,
		PageSize:             100,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	var errs MultiError
	if c.FallbackCapacity.LessThan(types.Whole(1)) || c.FallbackCapacity.GreaterThan(types.Whole(1_000_000)) {
		errs.Add(ValidationError{Field: "fallback_capacity", Message: "must be within [1, 1000000] liters"})
	}
	if c.Tolerance.Epsilon.IsNegative() || c.Tolerance.Relative.IsNegative() {
		errs.Add(ValidationError{Field: "tolerance", Message: "must not be negative"})
	}
	if !c.Thresholds.Minor.IsPositive() {
		errs.Add(ValidationError{Field: "thresholds.minor", Message: "must be positive"})
	}
	if c.CorrectionDirection != reconcile.CorrectTank && c.CorrectionDirection != reconcile.CorrectLedger {
		errs.Add(ValidationError{Field: "correction_direction", Message: `must be "tank" or "ledger"`})
	}
	if c.OperationTimeout <= 0 {
		errs.Add(ValidationError{Field: "operation_timeout", Message: "must be positive"})
	}
	if c.MaxRetries < 0 {
		errs.Add(ValidationError{Field: "max_retries", Message: "must not be negative"})
	}
	if c.ReconcileConcurrency < 1 {
		errs.Add(ValidationError{Field: "reconcile_concurrency", Message: "must be at least 1"})
	}
	if c.PageSize < 1 {
		errs.Add(ValidationError{Field: "page_size", Message: "must be at least 1"})
	}
	if errs.HasErrors() {
		return errors.Join(errs.Errors...)
	}
	return nil
}
