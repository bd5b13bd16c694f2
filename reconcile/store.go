package reconcile

import (
	"context"

	"github.com/xraph/fuelledger/id"
)

type Store interface {
	LatestRecord(ctx context.Context, tankID id.TankID) (*Record, error)
	// ListRecords returns a tank's records newest first.
	ListRecords(ctx context.Context, tankID id.TankID, opts ListOpts) ([]*Record, error)
}

type ListOpts struct {
	Classification Classification
	Limit          int
	Offset         int
}
