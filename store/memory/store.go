// Package memory is an in-process store for tests and single-node use.
// Transactions are optimistic: writes are staged and checked against the
// committed versions at commit time.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/tank"
)

type Store struct {
	mu sync.RWMutex

	// Tank storage
	tanks map[string]*tank.Tank

	// MRN ledger storage
	entries map[string]*mrn.Entry

	// Journal, in sequence order
	legs []*journal.Leg
	seq  int64

	// Reconciliation records, in insertion order
	records []*reconcile.Record

	closed bool

	// Test hooks
	commitHook  func(ctx context.Context) error
	entryFaults map[string]error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tanks:       make(map[string]*tank.Tank),
		entries:     make(map[string]*mrn.Entry),
		entryFaults: make(map[string]error),
	}
}

// OnCommit installs a hook that runs before every commit. A non-nil error
// aborts the commit and is returned from WithTx.
func (s *Store) OnCommit(hook func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = hook
}

// FailEntryReads makes every ledger read for tankID fail with err. A nil
// err clears the fault.
func (s *Store) FailEntryReads(tankID id.TankID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.entryFaults, tankID.String())
		return
	}
	s.entryFaults[tankID.String()] = err
}

// ──────────────────────────────────────────────────
// Tank Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateTank(_ context.Context, t *tank.Tank) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fuelledger.ErrStoreClosed
	}
	if _, exists := s.tanks[t.ID.String()]; exists {
		return fuelledger.ErrAlreadyExists
	}
	s.tanks[t.ID.String()] = t.Clone()
	return nil
}

func (s *Store) GetTank(_ context.Context, tankID id.TankID) (*tank.Tank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tanks[tankID.String()]; ok {
		return t.Clone(), nil
	}
	return nil, fuelledger.ErrTankNotFound
}

func (s *Store) ListTanks(_ context.Context, opts tank.ListOpts) ([]*tank.Tank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*tank.Tank
	for _, t := range s.tanks {
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		result = append(result, t.Clone())
	}
	slices.SortFunc(result, func(a, b *tank.Tank) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return page(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// MRN Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetEntry(_ context.Context, entryID id.EntryID) (*mrn.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[entryID.String()]; ok {
		return e.Clone(), nil
	}
	return nil, fuelledger.ErrEntryNotFound
}

func (s *Store) ListEntries(_ context.Context, tankID id.TankID, opts mrn.ListOpts) ([]*mrn.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.entryFaults[tankID.String()]; err != nil {
		return nil, err
	}

	var result []*mrn.Entry
	for _, e := range s.entries {
		if e.TankID.String() != tankID.String() {
			continue
		}
		if opts.ActiveOnly && !e.Active() {
			continue
		}
		result = append(result, e.Clone())
	}
	sortEntries(result)
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListEntriesByMRN(_ context.Context, number string) ([]*mrn.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*mrn.Entry
	for _, e := range s.entries {
		if e.MRN == number {
			result = append(result, e.Clone())
		}
	}
	sortEntries(result)
	return result, nil
}

// ──────────────────────────────────────────────────
// Journal Store implementation
// ──────────────────────────────────────────────────

func (s *Store) ListLegs(_ context.Context, q journal.Query) ([]*journal.Leg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*journal.Leg
	for _, l := range s.legs {
		if q.Matches(l) {
			c := *l
			result = append(result, &c)
		}
	}
	slices.SortStableFunc(result, func(a, b *journal.Leg) int {
		switch {
		case journal.Before(a, b):
			return -1
		case journal.Before(b, a):
			return 1
		}
		return 0
	})
	return page(result, 0, q.Limit), nil
}

// ──────────────────────────────────────────────────
// Reconcile Store implementation
// ──────────────────────────────────────────────────

func (s *Store) LatestRecord(_ context.Context, tankID id.TankID) (*reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *reconcile.Record
	for _, r := range s.records {
		if r.TankID.String() != tankID.String() {
			continue
		}
		if latest == nil || !r.CheckedAt.Before(latest.CheckedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, fuelledger.ErrRecordNotFound
	}
	c := *latest
	return &c, nil
}

func (s *Store) ListRecords(_ context.Context, tankID id.TankID, opts reconcile.ListOpts) ([]*reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*reconcile.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.TankID.String() != tankID.String() {
			continue
		}
		if opts.Classification != "" && r.Classification != opts.Classification {
			continue
		}
		c := *r
		result = append(result, &c)
	}
	slices.SortStableFunc(result, func(a, b *reconcile.Record) int {
		return b.CheckedAt.Compare(a.CheckedAt)
	})
	return page(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fuelledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func sortEntries(entries []*mrn.Entry) {
	slices.SortFunc(entries, func(a, b *mrn.Entry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
