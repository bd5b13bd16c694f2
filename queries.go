package fuelledger

import (
	"context"
	"iter"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
)

// ──────────────────────────────────────────────────
// Ledger queries
// ──────────────────────────────────────────────────

// Balances streams a tank's active entries in allocation order, fetching
// one page at a time. Ranging over the sequence again restarts it.
func (l *Ledger) Balances(ctx context.Context, tankID id.TankID) iter.Seq2[*mrn.Entry, error] {
	return func(yield func(*mrn.Entry, error) bool) {
		if _, err := l.store.GetTank(ctx, tankID); err != nil {
			yield(nil, err)
			return
		}
		for offset := 0; ; offset += l.config.PageSize {
			page, err := l.store.ListEntries(ctx, tankID, mrn.ListOpts{
				ActiveOnly: true,
				Limit:      l.config.PageSize,
				Offset:     offset,
			})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < l.config.PageSize {
				return
			}
		}
	}
}

// ActiveBalances returns all of a tank's active entries.
func (l *Ledger) ActiveBalances(ctx context.Context, tankID id.TankID) ([]*mrn.Entry, error) {
	return Collect(l.Balances(ctx, tankID))
}

// GetEntry retrieves a ledger entry by ID.
func (l *Ledger) GetEntry(ctx context.Context, entryID id.EntryID) (*mrn.Entry, error) {
	return l.store.GetEntry(ctx, entryID)
}

// EntriesForMRN returns every tank's entry for one MRN, spent ones included.
func (l *Ledger) EntriesForMRN(ctx context.Context, number string) ([]*mrn.Entry, error) {
	n, err := mrn.NormalizeNumber(number)
	if err != nil {
		return nil, ValidationError{Field: "mrn", Message: err.Error()}
	}
	return l.store.ListEntriesByMRN(ctx, n)
}

// Legs streams journal legs matching q in journal order. Paging is keyset
// based, so legs appended while iterating never shift the listing.
func (l *Ledger) Legs(ctx context.Context, q journal.Query) iter.Seq2[*journal.Leg, error] {
	return func(yield func(*journal.Leg, error) bool) {
		page := q
		page.Limit = l.config.PageSize
		for {
			legs, err := l.store.ListLegs(ctx, page)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, leg := range legs {
				if !yield(leg, nil) {
					return
				}
			}
			if len(legs) < page.Limit {
				return
			}
			page.After = journal.CursorOf(legs[len(legs)-1])
		}
	}
}

// LegsForTank streams a tank's legs inside r.
func (l *Ledger) LegsForTank(ctx context.Context, tankID id.TankID, r journal.TimeRange) iter.Seq2[*journal.Leg, error] {
	return l.Legs(ctx, journal.Query{TankID: tankID, Range: r})
}

// LegsForMRN streams every leg posted under an MRN, across tanks.
func (l *Ledger) LegsForMRN(ctx context.Context, number string) iter.Seq2[*journal.Leg, error] {
	n, err := mrn.NormalizeNumber(number)
	if err != nil {
		return func(yield func(*journal.Leg, error) bool) {
			yield(nil, ValidationError{Field: "mrn", Message: err.Error()})
		}
	}
	return l.Legs(ctx, journal.Query{MRN: n})
}

// VerifyOperationReferences resolves every related operation ID on the
// tank's legs inside r in one batched lookup and returns the IDs that no
// longer resolve.
func (l *Ledger) VerifyOperationReferences(ctx context.Context, tankID id.TankID, r journal.TimeRange) ([]string, error) {
	var ids []string
	for leg, err := range l.LegsForTank(ctx, tankID, r) {
		if err != nil {
			return nil, err
		}
		if leg.RelatedOperationID != "" {
			ids = append(ids, leg.RelatedOperationID)
		}
	}

	err := l.checkOperations(ctx, "verify_operations", tankID, ids...)
	if dangling, ok := err.(*DanglingOperationReferenceError); ok {
		l.logger.Warn("dangling operation references",
			"tank_id", tankID.String(),
			"operation_ids", dangling.OperationIDs,
		)
		return dangling.OperationIDs, nil
	}
	return nil, err
}

// Records lists a tank's reconciliation records, newest first.
func (l *Ledger) Records(ctx context.Context, tankID id.TankID, opts reconcile.ListOpts) ([]*reconcile.Record, error) {
	return l.store.ListRecords(ctx, tankID, opts)
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
