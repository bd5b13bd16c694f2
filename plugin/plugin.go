// Package plugin provides an extensible plugin system for FuelLedger.
// Plugins can hook into lifecycle and ledger events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Tank and ledger hooks
// ──────────────────────────────────────────────────

// OnTankProvisioned is called after a tank is provisioned.
type OnTankProvisioned interface {
	Plugin
	OnTankProvisioned(ctx context.Context, t *tank.Tank) error
}

// OnAllocated is called after a new MRN ledger entry is created.
type OnAllocated interface {
	Plugin
	OnAllocated(ctx context.Context, e *mrn.Entry) error
}

// OnMovementRecorded is called after a movement commits. t is the tank
// state after the movement.
type OnMovementRecorded interface {
	Plugin
	OnMovementRecorded(ctx context.Context, leg *journal.Leg, t *tank.Tank) error
}

// OnMovementRejected is called when a movement fails and nothing was written.
type OnMovementRejected interface {
	Plugin
	OnMovementRejected(ctx context.Context, tankID string, legType journal.Type, cause error) error
}

// OnTransferRecorded is called after both legs of a transfer commit.
type OnTransferRecorded interface {
	Plugin
	OnTransferRecorded(ctx context.Context, out, in *journal.Leg) error
}

// OnCapacityFallback is called when a tank's declared capacity is out of
// bounds and the fallback capacity was used instead.
type OnCapacityFallback interface {
	Plugin
	OnCapacityFallback(ctx context.Context, t *tank.Tank, fallback types.Quantity) error
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnReconciled is called after every persisted reconciliation record.
type OnReconciled interface {
	Plugin
	OnReconciled(ctx context.Context, r *reconcile.Record) error
}

// OnDriftDetected is called when a run classifies a tank MINOR or MAJOR.
type OnDriftDetected interface {
	Plugin
	OnDriftDetected(ctx context.Context, r *reconcile.Record) error
}

// OnCorrected is called after an operator correction commits.
type OnCorrected interface {
	Plugin
	OnCorrected(ctx context.Context, leg *journal.Leg, r *reconcile.Record) error
}

// OnDanglingReference is called when an audit finds legs whose related
// operation no longer resolves.
type OnDanglingReference interface {
	Plugin
	OnDanglingReference(ctx context.Context, tankID string, operationIDs []string) error
}
