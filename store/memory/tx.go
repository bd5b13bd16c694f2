package memory

import (
	"context"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/tank"
)

// tx stages every write and applies them all at commit, or none.
type tx struct {
	s *Store

	// Versions as first read, for the commit check.
	tankBase  map[string]int64
	entryBase map[string]int64

	tanks      map[string]*tank.Tank
	entries    map[string]*mrn.Entry
	newEntries map[string]bool
	legs       []*journal.Leg
	records    []*reconcile.Record
}

var _ store.Tx = (*tx)(nil)

// WithTx runs fn against a staged view of the store and commits its writes
// atomically. Version mismatches at commit report a concurrent
// modification.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{
		s:          s,
		tankBase:   make(map[string]int64),
		entryBase:  make(map[string]int64),
		tanks:      make(map[string]*tank.Tank),
		entries:    make(map[string]*mrn.Entry),
		newEntries: make(map[string]bool),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}

	s.mu.RLock()
	hook := s.commitHook
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fuelledger.ErrStoreClosed
	}

	for key, base := range t.tankBase {
		if _, staged := t.tanks[key]; !staged {
			continue
		}
		cur, ok := s.tanks[key]
		if !ok || cur.Version != base {
			return fuelledger.ErrConcurrentModification
		}
	}
	for key, e := range t.entries {
		if t.newEntries[key] {
			if _, exists := s.entries[key]; exists {
				return fuelledger.ErrConcurrentModification
			}
			for _, other := range s.entries {
				if other.TankID.String() == e.TankID.String() && other.MRN == e.MRN {
					return fuelledger.ErrConcurrentModification
				}
			}
			continue
		}
		cur, ok := s.entries[key]
		if !ok || cur.Version != t.entryBase[key] {
			return fuelledger.ErrConcurrentModification
		}
	}

	for key, tk := range t.tanks {
		s.tanks[key] = tk.Clone()
	}
	for key, e := range t.entries {
		s.entries[key] = e.Clone()
	}
	for _, l := range t.legs {
		s.seq++
		l.Sequence = s.seq
		c := *l
		s.legs = append(s.legs, &c)
	}
	for _, r := range t.records {
		c := *r
		s.records = append(s.records, &c)
	}
	return nil
}

func (t *tx) LockTank(_ context.Context, tankID id.TankID) (*tank.Tank, error) {
	key := tankID.String()
	if tk, ok := t.tanks[key]; ok {
		return tk.Clone(), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tk, ok := t.s.tanks[key]
	if !ok {
		return nil, fuelledger.ErrTankNotFound
	}
	if _, seen := t.tankBase[key]; !seen {
		t.tankBase[key] = tk.Version
	}
	return tk.Clone(), nil
}

func (t *tx) UpdateTank(_ context.Context, tk *tank.Tank) error {
	key := tk.ID.String()
	base, seen := t.tankBase[key]
	if !seen {
		return fuelledger.ErrTankNotFound
	}
	if staged, ok := t.tanks[key]; ok {
		base = staged.Version
	}
	if tk.Version != base {
		return fuelledger.ErrConcurrentModification
	}
	tk.Version++
	t.tanks[key] = tk.Clone()
	return nil
}

func (t *tx) GetEntry(_ context.Context, entryID id.EntryID) (*mrn.Entry, error) {
	key := entryID.String()
	if e, ok := t.entries[key]; ok {
		return e.Clone(), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	e, ok := t.s.entries[key]
	if !ok {
		return nil, fuelledger.ErrEntryNotFound
	}
	if err := t.s.entryFaults[e.TankID.String()]; err != nil {
		return nil, err
	}
	t.noteEntry(e)
	return e.Clone(), nil
}

func (t *tx) FindEntry(ctx context.Context, tankID id.TankID, number string) (*mrn.Entry, error) {
	entries, err := t.ListEntries(ctx, tankID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.MRN == number {
			return e, nil
		}
	}
	return nil, fuelledger.ErrEntryNotFound
}

func (t *tx) ListEntries(_ context.Context, tankID id.TankID) ([]*mrn.Entry, error) {
	tk := tankID.String()

	t.s.mu.RLock()
	if err := t.s.entryFaults[tk]; err != nil {
		t.s.mu.RUnlock()
		return nil, err
	}
	merged := make(map[string]*mrn.Entry)
	for key, e := range t.s.entries {
		if e.TankID.String() == tk {
			t.noteEntry(e)
			merged[key] = e
		}
	}
	t.s.mu.RUnlock()

	for key, e := range t.entries {
		if e.TankID.String() == tk {
			merged[key] = e
		}
	}

	result := make([]*mrn.Entry, 0, len(merged))
	for _, e := range merged {
		result = append(result, e.Clone())
	}
	sortEntries(result)
	return result, nil
}

// noteEntry records the committed version of e the first time the tx sees it.
func (t *tx) noteEntry(e *mrn.Entry) {
	key := e.ID.String()
	if _, seen := t.entryBase[key]; !seen {
		t.entryBase[key] = e.Version
	}
}

func (t *tx) CreateEntry(_ context.Context, e *mrn.Entry) error {
	key := e.ID.String()
	if _, ok := t.entries[key]; ok {
		return fuelledger.ErrAlreadyExists
	}
	t.s.mu.RLock()
	_, exists := t.s.entries[key]
	t.s.mu.RUnlock()
	if exists {
		return fuelledger.ErrAlreadyExists
	}
	for _, other := range t.entries {
		if other.TankID.String() == e.TankID.String() && other.MRN == e.MRN {
			return fuelledger.ErrAlreadyExists
		}
	}

	e.Version = 1
	t.entries[key] = e.Clone()
	t.newEntries[key] = true
	return nil
}

func (t *tx) UpdateEntry(_ context.Context, e *mrn.Entry) error {
	key := e.ID.String()
	base, seen := t.entryBase[key]
	if staged, ok := t.entries[key]; ok {
		base, seen = staged.Version, true
	}
	if !seen {
		return fuelledger.ErrEntryNotFound
	}
	if e.Version != base {
		return fuelledger.ErrConcurrentModification
	}
	e.Version++
	t.entries[key] = e.Clone()
	return nil
}

func (t *tx) AppendLeg(_ context.Context, l *journal.Leg) error {
	t.legs = append(t.legs, l)
	return nil
}

func (t *tx) CreateRecord(_ context.Context, r *reconcile.Record) error {
	t.records = append(t.records, r)
	return nil
}
