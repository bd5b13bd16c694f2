package mrn

import (
	"context"

	"github.com/xraph/fuelledger/id"
)

type Store interface {
	GetEntry(ctx context.Context, entryID id.EntryID) (*Entry, error)
	// ListEntries returns a tank's entries ordered by allocation date
	// ascending, entry ID breaking ties.
	ListEntries(ctx context.Context, tankID id.TankID, opts ListOpts) ([]*Entry, error)
	ListEntriesByMRN(ctx context.Context, number string) ([]*Entry, error)
}

type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
