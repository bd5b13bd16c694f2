package fuelledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// TankResult is the outcome of reconciling one tank in a batch.
type TankResult struct {
	TankID id.TankID         `json:"tank_id"`
	Record *reconcile.Record `json:"record,omitempty"`
	Err    error             `json:"-"`
	Error  string            `json:"error,omitempty"`
}

// BatchResult collects per-tank outcomes of ReconcileAll. One tank failing
// never stops the others.
type BatchResult struct {
	Trigger    reconcile.Trigger `json:"trigger"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Results    []TankResult      `json:"results"`
}

// Failed returns the results that ended in an error.
func (b *BatchResult) Failed() []TankResult {
	var out []TankResult
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many tanks landed in each classification.
func (b *BatchResult) Count() map[reconcile.Classification]int {
	counts := make(map[reconcile.Classification]int, 3)
	for _, r := range b.Results {
		if r.Record != nil {
			counts[r.Record.Classification]++
		}
	}
	return counts
}

// CorrectionInput asks for an operator-approved correction of a drifting
// tank.
type CorrectionInput struct {
	TankID     id.TankID                     `json:"tank_id"`
	OperatorID string                        `json:"operator_id"`
	Reason     string                        `json:"reason"`
	Direction  reconcile.CorrectionDirection `json:"direction,omitempty"`
}

// CorrectionResult is the correction leg and the record that carries it.
type CorrectionResult struct {
	Leg    *journal.Leg      `json:"leg"`
	Record *reconcile.Record `json:"record"`
	Tank   *tank.Tank        `json:"tank"`
}

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

// Reconcile compares a tank's level with the sum of its ledger entries,
// classifies the drift, and stores the record. It never changes the tank
// or the ledger.
func (l *Ledger) Reconcile(ctx context.Context, tankID id.TankID) (*reconcile.Record, error) {
	return l.reconcile(ctx, tankID, reconcile.TriggerManual)
}

// ReconcileAll reconciles every tank on a bounded worker pool.
func (l *Ledger) ReconcileAll(ctx context.Context) (*BatchResult, error) {
	return l.reconcileAll(ctx, reconcile.TriggerBatch)
}

// RunScheduledReconciliation is ReconcileAll as started by the scheduler.
func (l *Ledger) RunScheduledReconciliation(ctx context.Context) (*BatchResult, error) {
	return l.reconcileAll(ctx, reconcile.TriggerScheduled)
}

// AbortReconcile cancels every in-flight reconciliation of tankID. Each
// run returns ErrReconcileAborted and leaves nothing behind. It reports
// whether any run was found.
func (l *Ledger) AbortReconcile(tankID id.TankID) bool {
	l.runsMu.Lock()
	defer l.runsMu.Unlock()
	runs := l.runs[tankID.String()]
	for run := range runs {
		run.cancel(ErrReconcileAborted)
	}
	return len(runs) > 0
}

func (l *Ledger) reconcile(ctx context.Context, tankID id.TankID, trigger reconcile.Trigger) (*reconcile.Record, error) {
	if tankID.IsNil() {
		return nil, ValidationError{Field: "tank_id", Message: "is required"}
	}

	ctx, done := l.track(ctx, tankID)
	defer done()

	var rec *reconcile.Record
	err := l.atomically(ctx, "reconcile", []id.TankID{tankID}, func(ctx context.Context, tx store.Tx) error {
		rec = nil

		t, err := tx.LockTank(ctx, tankID)
		if err != nil {
			return err
		}
		snap, _, err := l.snapshot(ctx, tx, t)
		if err != nil {
			return err
		}

		r := &reconcile.Record{
			ID:        id.NewRecordID(),
			TankID:    t.ID,
			CheckedAt: l.now(),
			Trigger:   trigger,
		}
		snap.Grade(r, l.config.Thresholds)

		// A run cancelled before commit must not store its record.
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		if err := tx.CreateRecord(ctx, r); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrReconcileAborted) {
			l.logger.Info("reconciliation aborted", "tank_id", tankID.String())
		} else {
			l.logger.Error("reconciliation failed", "tank_id", tankID.String(), "trigger", string(trigger), "error", err)
		}
		return nil, err
	}

	l.logRecord(ctx, rec)
	if err := l.status.Set(ctx, rec, l.config.StalenessWindow); err != nil {
		l.logger.Warn("status cache write failed", "tank_id", rec.TankID.String(), "error", err)
	}
	l.plugins.EmitReconciled(ctx, rec)
	return rec, nil
}

// reconcileRun is one abortable reconciliation.
type reconcileRun struct {
	cancel context.CancelCauseFunc
}

// track registers an abortable run for tankID.
func (l *Ledger) track(ctx context.Context, tankID id.TankID) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	run := &reconcileRun{cancel: cancel}
	key := tankID.String()

	l.runsMu.Lock()
	if l.runs[key] == nil {
		l.runs[key] = make(map[*reconcileRun]struct{})
	}
	l.runs[key][run] = struct{}{}
	l.runsMu.Unlock()

	return ctx, func() {
		l.runsMu.Lock()
		delete(l.runs[key], run)
		if len(l.runs[key]) == 0 {
			delete(l.runs, key)
		}
		l.runsMu.Unlock()
		cancel(nil)
	}
}

func (l *Ledger) reconcileAll(ctx context.Context, trigger reconcile.Trigger) (*BatchResult, error) {
	batch := &BatchResult{Trigger: trigger, StartedAt: l.now()}

	var tanks []*tank.Tank
	for offset := 0; ; offset += l.config.PageSize {
		page, err := l.store.ListTanks(ctx, tank.ListOpts{Limit: l.config.PageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("fuelledger: list tanks for reconciliation: %w", err)
		}
		tanks = append(tanks, page...)
		if len(page) < l.config.PageSize {
			break
		}
	}

	batch.Results = make([]TankResult, len(tanks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.ReconcileConcurrency)

	for i, t := range tanks {
		g.Go(func() error {
			rec, err := l.reconcile(gctx, t.ID, trigger)
			res := TankResult{TankID: t.ID, Record: rec, Err: err}
			if err != nil {
				res.Error = err.Error()
			}
			batch.Results[i] = res
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	batch.FinishedAt = l.now()
	counts := batch.Count()
	l.logger.Info("reconciliation batch finished",
		"trigger", string(trigger),
		"tanks", len(tanks),
		"consistent", counts[reconcile.Consistent],
		"minor", counts[reconcile.Minor],
		"major", counts[reconcile.Major],
		"failed", len(batch.Failed()),
		"elapsed", batch.FinishedAt.Sub(batch.StartedAt),
	)
	return batch, nil
}

// snapshot reads the expected and actual level of a locked tank. The
// entries are returned in allocation order.
func (l *Ledger) snapshot(ctx context.Context, tx store.Tx, t *tank.Tank) (reconcile.Snapshot, []*mrn.Entry, error) {
	entries, err := tx.ListEntries(ctx, t.ID)
	if err != nil {
		return reconcile.Snapshot{}, nil, fmt.Errorf("fuelledger: read ledger of tank %s: %w", t.ID, err)
	}

	var expL, expKg types.Quantity
	for _, e := range entries {
		if !e.Active() {
			continue
		}
		expL = expL.Add(e.RemainingLiters)
		expKg = expKg.Add(e.RemainingKg)
	}

	capacity, _ := t.EffectiveCapacity(l.config.FallbackCapacity)
	return reconcile.Snapshot{
		ExpectedLiters: expL,
		ExpectedKg:     expKg,
		ActualLiters:   t.CurrentLiters,
		ActualKg:       t.CurrentKg,
		Capacity:       capacity,
		Density:        t.Density,
	}, entries, nil
}

func (l *Ledger) logRecord(ctx context.Context, r *reconcile.Record) {
	level := slog.LevelInfo
	switch r.Classification {
	case reconcile.Minor:
		level = slog.LevelWarn
	case reconcile.Major:
		level = slog.LevelError
	}
	l.logger.Log(ctx, level, "tank reconciled",
		"tank_id", r.TankID.String(),
		"record_id", r.ID.String(),
		"classification", string(r.Classification),
		"drift_liters", r.DriftLiters.String(),
		"drift_kg", r.DriftKg.String(),
		"relative_drift", r.RelativeDrift.String(),
		"trigger", string(r.Trigger),
	)
}

// ──────────────────────────────────────────────────
// Corrections
// ──────────────────────────────────────────────────

// Correct removes a tank's drift with one RECONCILIATION_CORRECTION leg.
// Direction "tank" moves the tank level to the ledger total; "ledger"
// moves one ledger entry so the total matches the tank. The correction
// and its record commit together.
func (l *Ledger) Correct(ctx context.Context, in CorrectionInput) (*CorrectionResult, error) {
	in.OperatorID = strings.TrimSpace(in.OperatorID)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.TankID.IsNil() {
		return nil, ValidationError{Field: "tank_id", Message: "is required"}
	}
	if in.OperatorID == "" {
		return nil, ValidationError{Field: "operator_id", Message: "corrections require an operator"}
	}
	if in.Reason == "" {
		return nil, ValidationError{Field: "reason", Message: "corrections require a reason"}
	}
	if in.Direction == "" {
		in.Direction = l.config.CorrectionDirection
	}
	if in.Direction != reconcile.CorrectTank && in.Direction != reconcile.CorrectLedger {
		return nil, ValidationError{Field: "direction", Message: `must be "tank" or "ledger"`}
	}

	prev, err := l.store.LatestRecord(ctx, in.TankID)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	var res *CorrectionResult
	err = l.atomically(ctx, "correct", []id.TankID{in.TankID}, func(ctx context.Context, tx store.Tx) error {
		res = nil

		t, err := tx.LockTank(ctx, in.TankID)
		if err != nil {
			return err
		}
		snap, entries, err := l.snapshot(ctx, tx, t)
		if err != nil {
			return err
		}

		rec := &reconcile.Record{
			ID:         id.NewRecordID(),
			TankID:     t.ID,
			CheckedAt:  l.now(),
			Trigger:    reconcile.TriggerCorrection,
			Direction:  in.Direction,
			OperatorID: in.OperatorID,
			Reason:     in.Reason,
		}
		snap.Grade(rec, l.config.Thresholds)
		if rec.Classification == reconcile.Consistent {
			return ErrNoDrift
		}
		if prev != nil {
			rec.ResolvesRecordID = prev.ID
		}

		leg, err := l.correctionLeg(ctx, tx, t, entries, snap, in)
		if err != nil {
			return err
		}
		if err := tx.AppendLeg(ctx, leg); err != nil {
			return err
		}

		rec.CorrectionLegID = leg.ID
		if err := tx.CreateRecord(ctx, rec); err != nil {
			return err
		}
		res = &CorrectionResult{Leg: leg, Record: rec, Tank: t}
		return nil
	})
	if err != nil {
		l.logger.Log(ctx, slogLevelFor(err), "correction rejected",
			"tank_id", in.TankID.String(),
			"operator_id", in.OperatorID,
			"error", err,
		)
		return nil, err
	}

	l.logger.Warn("tank corrected",
		"tank_id", res.Tank.ID.String(),
		"operator_id", in.OperatorID,
		"direction", string(in.Direction),
		"drift_liters", res.Record.DriftLiters.String(),
		"drift_kg", res.Record.DriftKg.String(),
		"leg_id", res.Leg.ID.String(),
		"reason", in.Reason,
	)
	l.invalidateStatus(ctx, res.Tank.ID)
	l.plugins.EmitCorrected(ctx, res.Leg, res.Record)
	return res, nil
}

// correctionLeg applies the correction to the tank or to one ledger entry
// and builds the leg that records it.
func (l *Ledger) correctionLeg(ctx context.Context, tx store.Tx, t *tank.Tank, entries []*mrn.Entry, snap reconcile.Snapshot, in CorrectionInput) (*journal.Leg, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: tank %s", ErrNoLedgerEntry, t.ID)
	}

	driftL, driftKg := snap.DriftLiters(), snap.DriftKg()
	if (driftL.IsPositive() && driftKg.IsNegative()) || (driftL.IsNegative() && driftKg.IsPositive()) {
		return nil, ValidationError{Field: "drift", Message: fmt.Sprintf(
			"liters drift %s and kg drift %s disagree in sign; check the tank density", driftL, driftKg)}
	}

	// The tank holds more than the ledger when either side drifts up;
	// a kg-only drift decides the direction when liters agree.
	surplus := driftL.IsPositive() || (driftL.IsZero() && driftKg.IsPositive())

	leg := &journal.Leg{
		ID:         id.NewLegID(),
		Type:       journal.TypeCorrection,
		TankID:     t.ID,
		Liters:     driftL.Abs(),
		Kg:         driftKg.Abs(),
		OperatorID: in.OperatorID,
		Reason:     in.Reason,
		OccurredAt: l.now(),
		CreatedAt:  l.now(),
	}

	var entry *mrn.Entry
	switch in.Direction {
	case reconcile.CorrectTank:
		// The tank holds driftL too much; move it back to the ledger total.
		leg.Target = journal.TargetTank
		leg.Direction = journal.DirectionIn
		if surplus {
			leg.Direction = journal.DirectionOut
		}
		entry = entries[len(entries)-1]
		if _, err := l.applyLevel(t, driftL.Neg(), driftKg.Neg()); err != nil {
			return nil, err
		}
		if err := tx.UpdateTank(ctx, t); err != nil {
			return nil, err
		}

	case reconcile.CorrectLedger:
		// The ledger holds driftL too little; add it to one entry.
		leg.Target = journal.TargetLedger
		if surplus {
			leg.Direction = journal.DirectionIn
			entry = entries[len(entries)-1]
		} else {
			leg.Direction = journal.DirectionOut
			entry = pickEntryFor(entries, leg.Liters, leg.Kg)
			if entry == nil {
				largest := largestEntry(entries)
				return nil, &InsufficientBalanceError{
					Scope:           ScopeEntry,
					TankID:          t.ID.String(),
					EntryID:         largest.ID.String(),
					MRN:             largest.MRN,
					RequestedLiters: leg.Liters,
					AvailableLiters: largest.RemainingLiters,
					RequestedKg:     leg.Kg,
					AvailableKg:     largest.RemainingKg,
				}
			}
		}
		entry.RemainingLiters = entry.RemainingLiters.Add(driftL)
		entry.RemainingKg = entry.RemainingKg.Add(driftKg)
		entry.Touch(l.now())
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return nil, err
		}
	}

	leg.MRN = entry.MRN
	leg.SetEntry(t.Kind, entry.ID)
	if err := leg.Validate(); err != nil {
		return nil, err
	}
	return leg, nil
}

// pickEntryFor returns the most recently allocated entry able to give up
// liters and kg, or nil.
func pickEntryFor(entries []*mrn.Entry, liters, kg types.Quantity) *mrn.Entry {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.RemainingLiters.LessThan(liters) && !e.RemainingKg.LessThan(kg) {
			return e
		}
	}
	return nil
}

func largestEntry(entries []*mrn.Entry) *mrn.Entry {
	best := entries[0]
	for _, e := range entries[1:] {
		if e.RemainingLiters.GreaterThan(best.RemainingLiters) {
			best = e
		}
	}
	return best
}
