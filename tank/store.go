package tank

import (
	"context"

	"github.com/xraph/fuelledger/id"
)

type Store interface {
	CreateTank(ctx context.Context, t *Tank) error
	GetTank(ctx context.Context, tankID id.TankID) (*Tank, error)
	ListTanks(ctx context.Context, opts ListOpts) ([]*Tank, error)
}

type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}
