package fuelledger

import (
	"context"
	"strings"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// ──────────────────────────────────────────────────
// Tank state
// ──────────────────────────────────────────────────

// ProvisionTank registers a tank. Its stored capacity is kept as given,
// even when out of bounds, so that a corrupt value stays visible; the
// fallback capacity applies whenever it is used.
func (l *Ledger) ProvisionTank(ctx context.Context, t *tank.Tank) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return ValidationError{Field: "name", Message: "is required"}
	}
	if !t.Kind.Valid() {
		return ValidationError{Field: "kind", Message: `must be "fixed" or "mobile"`}
	}
	if !t.Density.IsPositive() {
		return &InvalidQuantityError{Field: "density", Value: t.Density.String(), Reason: "density must be positive"}
	}
	if t.CurrentLiters.IsNegative() {
		return &InvalidQuantityError{Field: "current_liters", Value: t.CurrentLiters.String(), Reason: "must not be negative"}
	}
	if t.CurrentKg.IsZero() && t.CurrentLiters.IsPositive() {
		kg, err := types.ToKg(t.CurrentLiters, t.Density)
		if err != nil {
			return err
		}
		t.CurrentKg = kg
	}
	if !types.ConsistentKg(t.CurrentLiters, t.CurrentKg, t.Density, l.config.Tolerance) {
		return &InvalidQuantityError{Field: "current_kg", Value: t.CurrentKg.String(), Reason: "does not match liters at the tank density"}
	}

	if t.ID.IsNil() {
		t.ID = id.NewTankID()
	}
	t.Entity = types.NewEntityAt(l.now())
	t.Version = 0

	if !t.CapacityValid() {
		l.logger.Warn("provisioned tank with out-of-range capacity",
			"tank_id", t.ID.String(),
			"capacity_liters", t.CapacityLiters.String(),
			"fallback_capacity", l.config.FallbackCapacity.String(),
		)
	}

	if err := l.store.CreateTank(ctx, t); err != nil {
		return err
	}

	l.plugins.EmitTankProvisioned(ctx, t)
	return nil
}

// GetTank retrieves a tank by ID.
func (l *Ledger) GetTank(ctx context.Context, tankID id.TankID) (*tank.Tank, error) {
	return l.store.GetTank(ctx, tankID)
}

// ListTanks lists tanks.
func (l *Ledger) ListTanks(ctx context.Context, opts tank.ListOpts) ([]*tank.Tank, error) {
	return l.store.ListTanks(ctx, opts)
}

// EffectiveCapacity returns the capacity checks run against for t.
func (l *Ledger) EffectiveCapacity(t *tank.Tank) types.Quantity {
	c, _ := t.EffectiveCapacity(l.config.FallbackCapacity)
	return c
}

// levelChange is the outcome of applying a delta to a tank.
type levelChange struct {
	capacity     types.Quantity
	fallbackUsed bool
}

// applyLevel is the single place tank levels change. It enforces the
// capacity bound and the non-negative bound, then mutates t.
func (l *Ledger) applyLevel(t *tank.Tank, deltaLiters, deltaKg types.Quantity) (levelChange, error) {
	capacity, fallback := t.EffectiveCapacity(l.config.FallbackCapacity)
	change := levelChange{capacity: capacity, fallbackUsed: fallback}

	next := t.CurrentLiters.Add(deltaLiters)
	nextKg := t.CurrentKg.Add(deltaKg)

	if deltaLiters.IsPositive() {
		if t.CurrentLiters.GreaterThan(capacity) {
			return change, &PreexistingInconsistencyError{
				TankID:         t.ID.String(),
				CapacityLiters: capacity,
				CurrentLiters:  t.CurrentLiters,
				OverByLiters:   t.CurrentLiters.Sub(capacity),
				FallbackUsed:   fallback,
			}
		}
		if next.GreaterThan(capacity) {
			return change, &CapacityExceededError{
				TankID:          t.ID.String(),
				CapacityLiters:  capacity,
				CurrentLiters:   t.CurrentLiters,
				RequestedLiters: deltaLiters,
				ExcessLiters:    next.Sub(capacity),
				FallbackUsed:    fallback,
			}
		}
	}

	if next.IsNegative() || nextKg.IsNegative() {
		return change, &InsufficientBalanceError{
			Scope:           ScopeTank,
			TankID:          t.ID.String(),
			RequestedLiters: deltaLiters.Abs(),
			AvailableLiters: t.CurrentLiters,
			RequestedKg:     deltaKg.Abs(),
			AvailableKg:     t.CurrentKg,
		}
	}

	t.CurrentLiters, t.CurrentKg = next, nextKg
	t.Touch(l.now())
	return change, nil
}

// warnFallback reports use of the fallback capacity.
func (l *Ledger) warnFallback(ctx context.Context, t *tank.Tank) {
	l.logger.Warn("tank capacity out of range, using fallback",
		"tank_id", t.ID.String(),
		"capacity_liters", t.CapacityLiters.String(),
		"fallback_capacity", l.config.FallbackCapacity.String(),
	)
	l.plugins.EmitCapacityFallback(ctx, t, l.config.FallbackCapacity)
}
