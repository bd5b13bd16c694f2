package store

import (
	"context"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
)

// Store is the unified storage interface for all FuelLedger entities.
// Reads outside a transaction go through the embedded entity stores.
// Every write goes through WithTx.
type Store interface {
	tank.Store
	mrn.Store
	journal.Store
	reconcile.Store

	// WithTx runs fn inside one atomic unit. If fn returns an error, or
	// the commit fails, nothing fn wrote is visible afterwards.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the write side of a store, scoped to one atomic unit.
type Tx interface {
	// LockTank reads a tank and holds it against concurrent writers until
	// the transaction ends.
	LockTank(ctx context.Context, tankID id.TankID) (*tank.Tank, error)
	// UpdateTank writes t if its Version still matches the stored row and
	// increments Version.
	UpdateTank(ctx context.Context, t *tank.Tank) error

	GetEntry(ctx context.Context, entryID id.EntryID) (*mrn.Entry, error)
	FindEntry(ctx context.Context, tankID id.TankID, number string) (*mrn.Entry, error)
	// ListEntries returns all of a tank's entries ordered by allocation date.
	ListEntries(ctx context.Context, tankID id.TankID) ([]*mrn.Entry, error)
	CreateEntry(ctx context.Context, e *mrn.Entry) error
	// UpdateEntry writes e if its Version still matches and increments Version.
	UpdateEntry(ctx context.Context, e *mrn.Entry) error

	// AppendLeg inserts l and assigns its Sequence.
	AppendLeg(ctx context.Context, l *journal.Leg) error

	CreateRecord(ctx context.Context, r *reconcile.Record) error
}
