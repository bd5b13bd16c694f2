package fuelledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/operation"
	"github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/store/memory"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLedger(t *testing.T, opts ...fuelledger.Option) (*fuelledger.Ledger, *memory.Store) {
	t.Helper()
	s := memory.New()
	l := fuelledger.New(s, append([]fuelledger.Option{fuelledger.WithLogger(quietLogger())}, opts...)...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l, s
}

func provision(t *testing.T, l *fuelledger.Ledger, capacity, current string) *tank.Tank {
	t.Helper()
	tk := &tank.Tank{
		Name:           "Tank",
		Kind:           tank.KindFixed,
		CapacityLiters: types.MustQuantity(capacity),
		CurrentLiters:  types.MustQuantity(current),
		Density:        types.MustDensity("0.8"),
	}
	if err := l.ProvisionTank(context.Background(), tk); err != nil {
		t.Fatal(err)
	}
	return tk
}

func allocate(t *testing.T, l *fuelledger.Ledger, tankID fuelledger.ID, number, liters string) {
	t.Helper()
	if _, err := l.Allocate(context.Background(), fuelledger.AllocateInput{
		TankID: tankID, MRN: number, Liters: types.MustQuantity(liters),
	}); err != nil {
		t.Fatal(err)
	}
}

// setLevel changes a tank level behind the ledger's back, the way a
// dipstick reading or a sensor feed would.
func setLevel(t *testing.T, s *memory.Store, tankID fuelledger.ID, liters string) {
	t.Helper()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		tk, err := tx.LockTank(ctx, tankID)
		if err != nil {
			return err
		}
		tk.CurrentLiters = types.MustQuantity(liters)
		tk.CurrentKg, _ = types.ToKg(tk.CurrentLiters, tk.Density)
		return tx.UpdateTank(ctx, tk)
	})
	if err != nil {
		t.Fatal(err)
	}
}

// assertInStep checks that a tank's level equals the sum of its balances.
func assertInStep(t *testing.T, l *fuelledger.Ledger, tankID fuelledger.ID) {
	t.Helper()
	ctx := context.Background()
	tk, err := l.GetTank(ctx, tankID)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := l.ActiveBalances(ctx, tankID)
	if err != nil {
		t.Fatal(err)
	}
	var sum types.Quantity
	for _, e := range entries {
		sum = sum.Add(e.RemainingLiters)
	}
	if !sum.Within(tk.CurrentLiters, types.DefaultTolerance().Epsilon) {
		t.Fatalf("ledger %s L out of step with tank %s L", sum, tk.CurrentLiters)
	}
}

func countLegs(t *testing.T, l *fuelledger.Ledger, tankID fuelledger.ID) int {
	t.Helper()
	legs, err := fuelledger.Collect(l.LegsForTank(context.Background(), tankID, journal.TimeRange{}))
	if err != nil {
		t.Fatal(err)
	}
	return len(legs)
}

func TestMovementKeepsLedgerAndTankInStep(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	tk := provision(t, l, "24500", "10000")
	allocate(t, l, tk.ID, "MRN1", "10000")

	steps := []struct {
		typ    journal.Type
		mrn    string
		liters string
	}{
		{journal.TypeRefill, "MRN2", "5000.5"},
		{journal.TypeFueling, "MRN1", "1234.567"},
		{journal.TypeDrain, "MRN2", "0.5"},
		{journal.TypeRefill, "MRN1", "999.999"},
		{journal.TypeFueling, "MRN2", "5000"},
		{journal.TypeTransferIn, "MRN3", "42"},
	}
	for i, step := range steps {
		if _, err := l.Movement(ctx, fuelledger.MovementInput{
			TankID: tk.ID, Type: step.typ, MRN: step.mrn, Liters: types.MustQuantity(step.liters),
		}); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		assertInStep(t, l, tk.ID)
	}
	if n := countLegs(t, l, tk.ID); n != len(steps) {
		t.Errorf("expected one leg per movement, got %d", n)
	}
}

func TestMovementIsAtomicUnderFault(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	tk := provision(t, l, "24500", "20000")
	allocate(t, l, tk.ID, "BA1111111111111111", "20000")

	boom := errors.New("disk on fire")
	s.OnCommit(func(context.Context) error { return boom })

	_, err := l.Movement(ctx, fuelledger.MovementInput{
		TankID: tk.ID, Type: journal.TypeFueling, MRN: "BA1111111111111111", Liters: types.Whole(3000),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected fault, got %v", err)
	}

	s.OnCommit(nil)
	after, _ := l.GetTank(ctx, tk.ID)
	if !after.CurrentLiters.Equal(types.Whole(20000)) {
		t.Errorf("tank changed despite rollback: %s", after.CurrentLiters)
	}
	entries, _ := l.ActiveBalances(ctx, tk.ID)
	if !entries[0].RemainingLiters.Equal(types.Whole(20000)) {
		t.Errorf("ledger changed despite rollback: %s", entries[0].RemainingLiters)
	}
	if n := countLegs(t, l, tk.ID); n != 0 {
		t.Errorf("orphaned legs: %d", n)
	}
}

func TestMovementValidation(t *testing.T) {
	l, _ := newLedger(t)
	tk := provision(t, l, "24500", "0")

	tests := []struct {
		name   string
		in     fuelledger.MovementInput
		target error
	}{
		{"missing tank", fuelledger.MovementInput{Type: journal.TypeRefill, MRN: "X1", Liters: types.Whole(1)}, fuelledger.ErrInvalidInput},
		{"missing mrn", fuelledger.MovementInput{TankID: tk.ID, Type: journal.TypeRefill, Liters: types.Whole(1)}, fuelledger.ErrInvalidInput},
		{"bad mrn", fuelledger.MovementInput{TankID: tk.ID, Type: journal.TypeRefill, MRN: "no spaces", Liters: types.Whole(1)}, fuelledger.ErrInvalidInput},
		{"unknown type", fuelledger.MovementInput{TankID: tk.ID, Type: "SPILL", MRN: "X1", Liters: types.Whole(1)}, fuelledger.ErrInvalidInput},
		{"correction type", fuelledger.MovementInput{TankID: tk.ID, Type: journal.TypeCorrection, MRN: "X1", Liters: types.Whole(1)}, fuelledger.ErrInvalidInput},
		{"zero liters", fuelledger.MovementInput{TankID: tk.ID, Type: journal.TypeRefill, MRN: "X1"}, fuelledger.ErrInvalidQuantity},
		{"negative kg", fuelledger.MovementInput{TankID: tk.ID, Type: journal.TypeRefill, MRN: "X1", Liters: types.Whole(1), Kg: types.Whole(-1)}, fuelledger.ErrInvalidQuantity},
		{"kg off density", fuelledger.MovementInput{TankID: tk.ID, Type: journal.TypeRefill, MRN: "X1", Liters: types.Whole(1000), Kg: types.Whole(900)}, fuelledger.ErrInvalidQuantity},
		{"nil tank", fuelledger.MovementInput{TankID: fuelledger.ID{}, Type: journal.TypeRefill, MRN: "X1", Liters: types.Whole(1)}, fuelledger.ErrInvalidInput},
		{"outbound unknown mrn", fuelledger.MovementInput{TankID: tk.ID, Type: journal.TypeDrain, MRN: "NOPE", Liters: types.Whole(1)}, fuelledger.ErrEntryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Movement(context.Background(), tt.in)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}
	if n := countLegs(t, l, tk.ID); n != 0 {
		t.Errorf("rejected movements wrote %d legs", n)
	}
}

func TestMovementNormalizesMRN(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	tk := provision(t, l, "24500", "0")

	if _, err := l.Movement(ctx, fuelledger.MovementInput{
		TankID: tk.ID, Type: journal.TypeRefill, MRN: "  ba1111111111111111 ", Liters: types.Whole(10),
	}); err != nil {
		t.Fatal(err)
	}
	entries, err := l.EntriesForMRN(ctx, "BA1111111111111111")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].MRN != "BA1111111111111111" {
		t.Fatalf("expected normalized entry, got %+v", entries)
	}
}

func TestConsumeInsufficientLeavesStateUnchanged(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	tk := provision(t, l, "24500", "500")
	entry, err := l.Allocate(ctx, fuelledger.AllocateInput{TankID: tk.ID, MRN: "MRN1", Liters: types.Whole(500)})
	if err != nil {
		t.Fatal(err)
	}

	_, err = l.Consume(ctx, fuelledger.ConsumeInput{EntryID: entry.ID, Liters: types.MustQuantity("500.001")})
	var ib *fuelledger.InsufficientBalanceError
	if !errors.As(err, &ib) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if !ib.RequestedLiters.Equal(types.MustQuantity("500.001")) || !ib.AvailableLiters.Equal(types.Whole(500)) {
		t.Errorf("unexpected detail %+v", ib)
	}

	got, _ := l.GetEntry(ctx, entry.ID)
	if !got.RemainingLiters.Equal(types.Whole(500)) {
		t.Errorf("balance changed: %s", got.RemainingLiters)
	}
	tkAfter, _ := l.GetTank(ctx, tk.ID)
	if !tkAfter.CurrentLiters.Equal(types.Whole(500)) {
		t.Errorf("tank changed: %s", tkAfter.CurrentLiters)
	}

	// Draining exactly what is left succeeds and spends the entry fully.
	res, err := l.Consume(ctx, fuelledger.ConsumeInput{EntryID: entry.ID, Liters: types.Whole(500)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Leg.Type != journal.TypeDrain || res.Entry.Active() {
		t.Errorf("expected spent entry via DRAIN, got %s active=%v", res.Leg.Type, res.Entry.Active())
	}
}

func TestCapacity(t *testing.T) {
	tests := []struct {
		name         string
		capacity     string
		current      string
		refill       string
		wantExcess   string
		wantFallback bool
	}{
		{"declared capacity", "24500", "24000", "1000", "500.000", false},
		{"zero capacity uses fallback", "0", "24000", "600", "100.000", true},
		{"huge capacity uses fallback", "2000000", "24000", "600", "100.000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newLedger(t)
			ctx := context.Background()
			tk := provision(t, l, tt.capacity, tt.current)
			allocate(t, l, tk.ID, "MRN1", tt.current)

			_, err := l.Movement(ctx, fuelledger.MovementInput{
				TankID: tk.ID, Type: journal.TypeRefill, MRN: "MRN1", Liters: types.MustQuantity(tt.refill),
			})
			var ce *fuelledger.CapacityExceededError
			if !errors.As(err, &ce) {
				t.Fatalf("expected CapacityExceededError, got %v", err)
			}
			if ce.ExcessLiters.String() != tt.wantExcess {
				t.Errorf("excess: got %s, want %s", ce.ExcessLiters, tt.wantExcess)
			}
			if ce.FallbackUsed != tt.wantFallback {
				t.Errorf("fallback used: got %v", ce.FallbackUsed)
			}
			if !ce.ExcessLiters.IsPositive() {
				t.Error("excess must be positive")
			}
			assertInStep(t, l, tk.ID)

			// Filling exactly to capacity is allowed.
			room := l.EffectiveCapacity(tk).Sub(types.MustQuantity(tt.current))
			if _, err := l.Movement(ctx, fuelledger.MovementInput{
				TankID: tk.ID, Type: journal.TypeRefill, MRN: "MRN1", Liters: room,
			}); err != nil {
				t.Fatalf("fill to capacity: %v", err)
			}
		})
	}
}

func TestPreexistingInconsistency(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	tk := provision(t, l, "1000", "1500")
	allocate(t, l, tk.ID, "MRN1", "1500")

	_, err := l.Movement(ctx, fuelledger.MovementInput{
		TankID: tk.ID, Type: journal.TypeRefill, MRN: "MRN1", Liters: types.Whole(10),
	})
	var pe *fuelledger.PreexistingInconsistencyError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PreexistingInconsistencyError, got %v", err)
	}
	if errors.Is(err, fuelledger.ErrCapacityExceeded) {
		t.Error("pre-existing inconsistency must not read as capacity exceeded")
	}
	if !pe.OverByLiters.Equal(types.Whole(500)) {
		t.Errorf("over by: got %s", pe.OverByLiters)
	}

	// Drawing fuel out of an overfull tank is still allowed.
	if _, err := l.Movement(ctx, fuelledger.MovementInput{
		TankID: tk.ID, Type: journal.TypeDrain, MRN: "MRN1", Liters: types.Whole(600),
	}); err != nil {
		t.Fatalf("drain from overfull tank: %v", err)
	}
}

func TestAllocate(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	tk := provision(t, l, "24500", "5000")
	allocate(t, l, tk.ID, "MRN1", "3000")

	t.Run("duplicate", func(t *testing.T) {
		_, err := l.Allocate(ctx, fuelledger.AllocateInput{TankID: tk.ID, MRN: "mrn1", Liters: types.Whole(1)})
		var dup *fuelledger.DuplicateAllocationError
		if !errors.As(err, &dup) || dup.MRN != "MRN1" {
			t.Fatalf("expected DuplicateAllocationError, got %v", err)
		}
	})

	t.Run("more than unbacked fuel", func(t *testing.T) {
		_, err := l.Allocate(ctx, fuelledger.AllocateInput{TankID: tk.ID, MRN: "MRN2", Liters: types.MustQuantity("2000.5")})
		var ib *fuelledger.InsufficientBalanceError
		if !errors.As(err, &ib) || ib.Scope != fuelledger.ScopeTank {
			t.Fatalf("expected tank-scoped InsufficientBalanceError, got %v", err)
		}
		if !ib.AvailableLiters.Equal(types.Whole(2000)) {
			t.Errorf("available: got %s", ib.AvailableLiters)
		}
		if !ib.AvailableKg.Equal(types.Whole(1600)) {
			t.Errorf("available kg: got %s", ib.AvailableKg)
		}
	})

	t.Run("nil tank", func(t *testing.T) {
		_, err := l.Allocate(ctx, fuelledger.AllocateInput{TankID: fuelledger.ID{}, MRN: "MRN3", Liters: types.Whole(1)})
		if !errors.Is(err, fuelledger.ErrInvalidInput) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("allocation does not move fuel", func(t *testing.T) {
		got, _ := l.GetTank(ctx, tk.ID)
		if !got.CurrentLiters.Equal(types.Whole(5000)) {
			t.Errorf("tank level changed: %s", got.CurrentLiters)
		}
		if n := countLegs(t, l, tk.ID); n != 0 {
			t.Errorf("allocation wrote %d legs", n)
		}
	})
}

func TestAllocateReusesDrainedEntry(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	tk := provision(t, l, "24500", "3000")
	first, err := l.Allocate(ctx, fuelledger.AllocateInput{TankID: tk.ID, MRN: "BA1111111111111111", Liters: types.Whole(3000)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Movement(ctx, fuelledger.MovementInput{
		TankID: tk.ID, Type: journal.TypeFueling, MRN: "BA1111111111111111", Liters: types.Whole(3000),
	}); err != nil {
		t.Fatal(err)
	}
	setLevel(t, s, tk.ID, "1000")

	again, err := l.Allocate(ctx, fuelledger.AllocateInput{TankID: tk.ID, MRN: "BA1111111111111111", Liters: types.Whole(1000)})
	if err != nil {
		t.Fatalf("allocate on drained entry: %v", err)
	}
	if again.ID.String() != first.ID.String() {
		t.Errorf("expected entry %s to be reused, got %s", first.ID, again.ID)
	}
	if !again.RemainingLiters.Equal(types.Whole(1000)) || !again.RemainingKg.Equal(types.Whole(800)) {
		t.Errorf("remaining: got %s L / %s kg", again.RemainingLiters, again.RemainingKg)
	}
	if !again.InitialLiters.Equal(types.Whole(4000)) {
		t.Errorf("initial: got %s", again.InitialLiters)
	}

	_, err = l.Allocate(ctx, fuelledger.AllocateInput{TankID: tk.ID, MRN: "BA1111111111111111", Liters: types.Whole(1)})
	var dup *fuelledger.DuplicateAllocationError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateAllocationError once the entry holds fuel again, got %v", err)
	}
}

func TestDanglingOperationReference(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown operation", func(t *testing.T) {
		l, _ := newLedger(t, fuelledger.WithOperationLookup(operation.NewStatic()))
		tk := provision(t, l, "24500", "1000")
		allocate(t, l, tk.ID, "MRN1", "1000")

		_, err := l.Movement(ctx, fuelledger.MovementInput{
			TankID: tk.ID, Type: journal.TypeFueling, MRN: "MRN1", Liters: types.Whole(100), RelatedOperationID: "op-missing",
		})
		var de *fuelledger.DanglingOperationReferenceError
		if !errors.As(err, &de) || len(de.OperationIDs) != 1 || de.OperationIDs[0] != "op-missing" {
			t.Fatalf("expected DanglingOperationReferenceError, got %v", err)
		}
		assertInStep(t, l, tk.ID)
	})

	t.Run("lookup down", func(t *testing.T) {
		down := operation.LookupFunc(func(context.Context, []string) (map[string]*operation.Operation, error) {
			return nil, errors.New("connection refused")
		})
		l, _ := newLedger(t, fuelledger.WithOperationLookup(down))
		tk := provision(t, l, "24500", "1000")
		allocate(t, l, tk.ID, "MRN1", "1000")

		_, err := l.Movement(ctx, fuelledger.MovementInput{
			TankID: tk.ID, Type: journal.TypeFueling, MRN: "MRN1", Liters: types.Whole(100), RelatedOperationID: "op-1",
		})
		if !errors.Is(err, fuelledger.ErrLookupUnavailable) || !fuelledger.IsRetryable(err) {
			t.Fatalf("expected retryable ErrLookupUnavailable, got %v", err)
		}
	})

	t.Run("no lookup configured", func(t *testing.T) {
		l, _ := newLedger(t)
		tk := provision(t, l, "24500", "1000")
		allocate(t, l, tk.ID, "MRN1", "1000")

		_, err := l.Movement(ctx, fuelledger.MovementInput{
			TankID: tk.ID, Type: journal.TypeFueling, MRN: "MRN1", Liters: types.Whole(100), RelatedOperationID: "op-1",
		})
		if !errors.Is(err, fuelledger.ErrLookupUnavailable) {
			t.Fatalf("expected ErrLookupUnavailable, got %v", err)
		}
	})
}

func TestVerifyOperationReferences(t *testing.T) {
	ctx := context.Background()
	ops := operation.NewStatic(
		&operation.Operation{ID: "op-1"},
		&operation.Operation{ID: "op-2"},
	)
	var calls atomic.Int32
	lookup := operation.LookupFunc(func(ctx context.Context, ids []string) (map[string]*operation.Operation, error) {
		calls.Add(1)
		return ops.GetOperations(ctx, ids)
	})

	l, _ := newLedger(t, fuelledger.WithOperationLookup(lookup))
	tk := provision(t, l, "24500", "1000")
	allocate(t, l, tk.ID, "MRN1", "1000")
	for _, op := range []string{"op-1", "op-2", "op-1"} {
		if _, err := l.Movement(ctx, fuelledger.MovementInput{
			TankID: tk.ID, Type: journal.TypeFueling, MRN: "MRN1", Liters: types.Whole(10), RelatedOperationID: op,
		}); err != nil {
			t.Fatal(err)
		}
	}

	// op-2 disappears from the upstream system.
	ops = operation.NewStatic(&operation.Operation{ID: "op-1"})
	calls.Store(0)

	missing, err := l.VerifyOperationReferences(ctx, tk.ID, journal.TimeRange{})
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0] != "op-2" {
		t.Errorf("missing: got %v", missing)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one batched lookup, got %d", calls.Load())
	}
}

func TestTransfer(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	hydrant := provision(t, l, "24500", "10000")
	allocate(t, l, hydrant.ID, "MRN1", "10000")

	truck := &tank.Tank{
		Name: "Truck 7", Kind: tank.KindMobile,
		CapacityLiters: types.Whole(8000), Density: types.MustDensity("0.8"),
	}
	if err := l.ProvisionTank(ctx, truck); err != nil {
		t.Fatal(err)
	}

	res, err := l.Transfer(ctx, fuelledger.TransferInput{
		FromTankID: hydrant.ID, ToTankID: truck.ID, MRN: "MRN1", Liters: types.Whole(6000),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Out.TransferID != res.In.TransferID || res.Out.TransferID.IsNil() {
		t.Error("legs must share a transfer id")
	}
	if res.Out.FixedEntryID.IsNil() || res.In.MobileEntryID.IsNil() {
		t.Error("legs must reference the entry column matching the tank kind")
	}
	if !res.From.CurrentLiters.Equal(types.Whole(4000)) || !res.To.CurrentLiters.Equal(types.Whole(6000)) {
		t.Errorf("levels: from %s, to %s", res.From.CurrentLiters, res.To.CurrentLiters)
	}
	assertInStep(t, l, hydrant.ID)
	assertInStep(t, l, truck.ID)

	// The truck cannot take another 3000 L; neither side changes.
	_, err = l.Transfer(ctx, fuelledger.TransferInput{
		FromTankID: hydrant.ID, ToTankID: truck.ID, MRN: "MRN1", Liters: types.Whole(3000),
	})
	if !errors.Is(err, fuelledger.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	from, _ := l.GetTank(ctx, hydrant.ID)
	if !from.CurrentLiters.Equal(types.Whole(4000)) {
		t.Errorf("source changed after failed transfer: %s", from.CurrentLiters)
	}

	legs, err := fuelledger.Collect(l.LegsForMRN(ctx, "MRN1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(legs) != 2 {
		t.Errorf("expected 2 legs under MRN1, got %d", len(legs))
	}

	if _, err := l.Transfer(ctx, fuelledger.TransferInput{
		FromTankID: hydrant.ID, ToTankID: hydrant.ID, MRN: "MRN1", Liters: types.Whole(1),
	}); !errors.Is(err, fuelledger.ErrInvalidInput) {
		t.Errorf("self transfer: expected validation error, got %v", err)
	}
}

func TestConcurrentMovementsOnOneTank(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	tk := provision(t, l, "24500", "1000")
	allocate(t, l, tk.ID, "MRN1", "1000")

	const workers = 40
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Movement(ctx, fuelledger.MovementInput{
				TankID: tk.ID, Type: journal.TypeFueling, MRN: "MRN1", Liters: types.MustQuantity("12.5"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	got, _ := l.GetTank(ctx, tk.ID)
	if !got.CurrentLiters.Equal(types.Whole(500)) {
		t.Errorf("tank level: got %s, want 500", got.CurrentLiters)
	}
	assertInStep(t, l, tk.ID)
	if n := countLegs(t, l, tk.ID); n != workers {
		t.Errorf("expected %d legs, got %d", workers, n)
	}
}

func TestConflictsAreRetried(t *testing.T) {
	cfg := fuelledger.DefaultConfig()
	cfg.RetryInterval = time.Millisecond
	cfg.MaxRetries = 3

	t.Run("transient", func(t *testing.T) {
		l, s := newLedger(t, fuelledger.WithConfig(cfg))
		tk := provision(t, l, "24500", "100")
		allocate(t, l, tk.ID, "MRN1", "100")

		var n atomic.Int32
		s.OnCommit(func(context.Context) error {
			if n.Add(1) <= 2 {
				return fuelledger.ErrConcurrentModification
			}
			return nil
		})
		if _, err := l.Movement(context.Background(), fuelledger.MovementInput{
			TankID: tk.ID, Type: journal.TypeDrain, MRN: "MRN1", Liters: types.Whole(10),
		}); err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if n.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", n.Load())
		}
	})

	t.Run("persistent", func(t *testing.T) {
		l, s := newLedger(t, fuelledger.WithConfig(cfg))
		tk := provision(t, l, "24500", "100")
		allocate(t, l, tk.ID, "MRN1", "100")

		s.OnCommit(func(context.Context) error { return fuelledger.ErrConcurrentModification })
		_, err := l.Movement(context.Background(), fuelledger.MovementInput{
			TankID: tk.ID, Type: journal.TypeDrain, MRN: "MRN1", Liters: types.Whole(10),
		})
		var cm *fuelledger.ConcurrentModificationError
		if !errors.As(err, &cm) {
			t.Fatalf("expected ConcurrentModificationError, got %v", err)
		}
		if cm.Attempts != 4 || !fuelledger.IsRetryable(err) {
			t.Errorf("attempts %d, retryable %v", cm.Attempts, fuelledger.IsRetryable(err))
		}
	})
}

func TestOperationTimeout(t *testing.T) {
	cfg := fuelledger.DefaultConfig()
	cfg.OperationTimeout = 50 * time.Millisecond
	l, s := newLedger(t, fuelledger.WithConfig(cfg))
	tk := provision(t, l, "24500", "100")
	allocate(t, l, tk.ID, "MRN1", "100")

	s.OnCommit(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	_, err := l.Movement(context.Background(), fuelledger.MovementInput{
		TankID: tk.ID, Type: journal.TypeDrain, MRN: "MRN1", Liters: types.Whole(10),
	})
	var te *fuelledger.OperationTimedOutError
	if !errors.As(err, &te) {
		t.Fatalf("expected OperationTimedOutError, got %v", err)
	}
	if te.Op != "movement" || !fuelledger.IsRetryable(err) {
		t.Errorf("unexpected detail %+v", te)
	}

	s.OnCommit(nil)
	got, _ := l.GetTank(context.Background(), tk.ID)
	if !got.CurrentLiters.Equal(types.Whole(100)) {
		t.Errorf("timed-out movement changed the tank: %s", got.CurrentLiters)
	}
}

func TestOperationLookupTimeout(t *testing.T) {
	cfg := fuelledger.DefaultConfig()
	cfg.OperationTimeout = 50 * time.Millisecond
	stalled := operation.LookupFunc(func(ctx context.Context, _ []string) (map[string]*operation.Operation, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	l, _ := newLedger(t, fuelledger.WithConfig(cfg), fuelledger.WithOperationLookup(stalled))
	tk := provision(t, l, "24500", "100")
	allocate(t, l, tk.ID, "MRN1", "100")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	_, err := l.Movement(ctx, fuelledger.MovementInput{
		TankID: tk.ID, Type: journal.TypeFueling, MRN: "MRN1", Liters: types.Whole(10), RelatedOperationID: "op-1",
	})
	if !errors.Is(err, fuelledger.ErrOperationTimedOut) {
		t.Fatalf("expected ErrOperationTimedOut, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("lookup ran for %s, past the operation timeout", elapsed)
	}
}

func TestLegsPaging(t *testing.T) {
	cfg := fuelledger.DefaultConfig()
	cfg.PageSize = 2
	base := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, fuelledger.WithConfig(cfg))
	ctx := context.Background()
	tk := provision(t, l, "24500", "0")

	for i := 0; i < 5; i++ {
		if _, err := l.Movement(ctx, fuelledger.MovementInput{
			TankID: tk.ID, Type: journal.TypeRefill, MRN: "MRN1", Liters: types.Whole(int64(i + 1)),
			// Same timestamp for the middle legs: sequence breaks the tie.
			OccurredAt: base.Add(time.Duration(min(i, 2)) * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}
	}

	seq := l.LegsForTank(ctx, tk.ID, journal.TimeRange{})
	for pass := 0; pass < 2; pass++ {
		legs, err := fuelledger.Collect(seq)
		if err != nil {
			t.Fatal(err)
		}
		if len(legs) != 5 {
			t.Fatalf("pass %d: expected 5 legs, got %d", pass, len(legs))
		}
		for i, leg := range legs {
			if !leg.Liters.Equal(types.Whole(int64(i + 1))) {
				t.Errorf("pass %d: leg %d out of order: %s", pass, i, leg.Liters)
			}
		}
	}

	windowed, err := fuelledger.Collect(l.LegsForTank(ctx, tk.ID, journal.TimeRange{
		From: base.Add(time.Minute), To: base.Add(2 * time.Minute),
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(windowed) != 1 {
		t.Errorf("half-open window: expected 1 leg, got %d", len(windowed))
	}

	var seen int
	for range l.Balances(ctx, tk.ID) {
		seen++
		break
	}
	if seen != 1 {
		t.Error("early break should stop the iterator")
	}
}

func TestProvisionTankValidation(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	tests := []struct {
		name string
		tk   *tank.Tank
	}{
		{"no name", &tank.Tank{Kind: tank.KindFixed, Density: types.MustDensity("0.8")}},
		{"bad kind", &tank.Tank{Name: "T", Kind: "barge", Density: types.MustDensity("0.8")}},
		{"no density", &tank.Tank{Name: "T", Kind: tank.KindFixed}},
		{"negative level", &tank.Tank{Name: "T", Kind: tank.KindFixed, Density: types.MustDensity("0.8"), CurrentLiters: types.Whole(-1)}},
		{"kg off density", &tank.Tank{Name: "T", Kind: tank.KindFixed, Density: types.MustDensity("0.8"),
			CurrentLiters: types.Whole(1000), CurrentKg: types.Whole(700)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := l.ProvisionTank(ctx, tt.tk); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
