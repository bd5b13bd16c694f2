package fuelledger

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("fuelledger: not found")
	ErrAlreadyExists = errors.New("fuelledger: already exists")
	ErrInvalidInput  = errors.New("fuelledger: invalid input")

	// Entity errors
	ErrTankNotFound   = errors.New("fuelledger: tank not found")
	ErrEntryNotFound  = errors.New("fuelledger: mrn ledger entry not found")
	ErrRecordNotFound = errors.New("fuelledger: reconciliation record not found")

	// Quantity and journal errors
	ErrInvalidQuantity = types.ErrInvalidQuantity
	ErrInvalidLeg      = journal.ErrInvalidLeg

	// Ledger consistency errors
	ErrDuplicateAllocation        = errors.New("fuelledger: duplicate allocation")
	ErrInsufficientBalance        = errors.New("fuelledger: insufficient balance")
	ErrCapacityExceeded           = errors.New("fuelledger: capacity exceeded")
	ErrPreexistingInconsistency   = errors.New("fuelledger: pre-existing inconsistency")
	ErrDanglingOperationReference = errors.New("fuelledger: dangling operation reference")

	// Reconciliation errors
	ErrNoDrift          = errors.New("fuelledger: tank is consistent, nothing to correct")
	ErrNoLedgerEntry    = errors.New("fuelledger: tank has no mrn ledger entry")
	ErrReconcileAborted = errors.New("fuelledger: reconciliation aborted")

	// Concurrency and store errors
	ErrOperationTimedOut      = errors.New("fuelledger: operation timed out")
	ErrConcurrentModification = errors.New("fuelledger: concurrent modification")
	ErrLookupUnavailable      = errors.New("fuelledger: operation lookup unavailable")
	ErrStoreClosed            = errors.New("fuelledger: store is closed")
	ErrMigrationFailed        = errors.New("fuelledger: migration failed")
)

// InvalidQuantityError is re-exported from the types package.
type InvalidQuantityError = types.InvalidQuantityError

// ValidationError represents a validation failure with details. Validation
// always happens before any atomic unit starts.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("fuelledger: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidInput) succeed.
func (e ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// DuplicateAllocationError reports an existing entry for (tank, MRN).
type DuplicateAllocationError struct {
	TankID  string `json:"tank_id"`
	MRN     string `json:"mrn"`
	EntryID string `json:"entry_id"`
}

func (e *DuplicateAllocationError) Error() string {
	return fmt.Sprintf("fuelledger: duplicate allocation: tank %s already holds mrn %s as entry %s",
		e.TankID, e.MRN, e.EntryID)
}

func (e *DuplicateAllocationError) Is(target error) bool { return target == ErrDuplicateAllocation }

// Balance scopes for InsufficientBalanceError.
const (
	ScopeEntry = "entry"
	ScopeTank  = "tank"
)

// InsufficientBalanceError reports a request larger than what remains,
// either on a ledger entry or in the tank itself.
type InsufficientBalanceError struct {
	Scope           string         `json:"scope"`
	TankID          string         `json:"tank_id"`
	EntryID         string         `json:"entry_id,omitempty"`
	MRN             string         `json:"mrn,omitempty"`
	RequestedLiters types.Quantity `json:"requested_liters"`
	AvailableLiters types.Quantity `json:"available_liters"`
	RequestedKg     types.Quantity `json:"requested_kg"`
	AvailableKg     types.Quantity `json:"available_kg"`
}

func (e *InsufficientBalanceError) Error() string {
	if e.Scope == ScopeTank {
		return fmt.Sprintf("fuelledger: insufficient balance: tank %s holds %s L, requested %s L",
			e.TankID, e.AvailableLiters, e.RequestedLiters)
	}
	return fmt.Sprintf("fuelledger: insufficient balance: mrn %s in tank %s has %s L / %s kg, requested %s L / %s kg",
		e.MRN, e.TankID, e.AvailableLiters, e.AvailableKg, e.RequestedLiters, e.RequestedKg)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// CapacityExceededError carries the positive amount by which a movement
// would overfill a tank.
type CapacityExceededError struct {
	TankID          string         `json:"tank_id"`
	CapacityLiters  types.Quantity `json:"capacity_liters"`
	CurrentLiters   types.Quantity `json:"current_liters"`
	RequestedLiters types.Quantity `json:"requested_liters"`
	ExcessLiters    types.Quantity `json:"excess_liters"`
	FallbackUsed    bool           `json:"fallback_capacity_used"`
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("fuelledger: capacity exceeded: tank %s at %s L of %s L cannot take %s L (excess %s L)",
		e.TankID, e.CurrentLiters, e.CapacityLiters, e.RequestedLiters, e.ExcessLiters)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

// PreexistingInconsistencyError reports a tank whose stored level was
// already above capacity before the request.
type PreexistingInconsistencyError struct {
	TankID         string         `json:"tank_id"`
	CapacityLiters types.Quantity `json:"capacity_liters"`
	CurrentLiters  types.Quantity `json:"current_liters"`
	OverByLiters   types.Quantity `json:"over_by_liters"`
	FallbackUsed   bool           `json:"fallback_capacity_used"`
}

func (e *PreexistingInconsistencyError) Error() string {
	return fmt.Sprintf("fuelledger: pre-existing inconsistency: tank %s already holds %s L, %s L over its %s L capacity",
		e.TankID, e.CurrentLiters, e.OverByLiters, e.CapacityLiters)
}

func (e *PreexistingInconsistencyError) Is(target error) bool {
	return target == ErrPreexistingInconsistency
}

// DanglingOperationReferenceError lists related operation IDs that do not
// resolve through the operation lookup.
type DanglingOperationReferenceError struct {
	TankID       string   `json:"tank_id"`
	OperationIDs []string `json:"operation_ids"`
}

func (e *DanglingOperationReferenceError) Error() string {
	return fmt.Sprintf("fuelledger: dangling operation reference: tank %s references unknown operations [%s]",
		e.TankID, strings.Join(e.OperationIDs, ", "))
}

func (e *DanglingOperationReferenceError) Is(target error) bool {
	return target == ErrDanglingOperationReference
}

// OperationTimedOutError reports an operation that hit its deadline. It is
// retryable and never means the operation succeeded.
type OperationTimedOutError struct {
	Op      string        `json:"op"`
	TankID  string        `json:"tank_id,omitempty"`
	Timeout time.Duration `json:"timeout"`
	Err     error         `json:"-"`
}

func (e *OperationTimedOutError) Error() string {
	return fmt.Sprintf("fuelledger: operation timed out: %s on tank %s after %s", e.Op, e.TankID, e.Timeout)
}

func (e *OperationTimedOutError) Is(target error) bool { return target == ErrOperationTimedOut }

func (e *OperationTimedOutError) Unwrap() error { return e.Err }

// ConcurrentModificationError reports a conflict that survived every retry.
type ConcurrentModificationError struct {
	Op       string `json:"op"`
	TankID   string `json:"tank_id"`
	Attempts int    `json:"attempts"`
	Err      error  `json:"-"`
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("fuelledger: concurrent modification: %s on tank %s failed after %d attempts",
		e.Op, e.TankID, e.Attempts)
}

func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}

func (e *ConcurrentModificationError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "fuelledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("fuelledger: %d errors occurred", len(e.Errors))
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns e when it holds errors, nil otherwise.
func (e MultiError) ErrOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTankNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}

// IsConflict returns true if the error reports state that contradicts the
// request, as opposed to malformed input.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateAllocation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrPreexistingInconsistency) ||
		errors.Is(err, ErrNoDrift)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOperationTimedOut) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrLookupUnavailable)
}

// slogLevelFor picks the log level for a rejected operation: caller
// mistakes are Info, conditions an operator should see are Warn.
func slogLevelFor(err error) slog.Level {
	switch {
	case errors.Is(err, ErrPreexistingInconsistency),
		errors.Is(err, ErrDanglingOperationReference),
		IsRetryable(err):
		return slog.LevelWarn
	case IsConflict(err),
		IsNotFound(err),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidLeg):
		return slog.LevelInfo
	}
	return slog.LevelError
}
