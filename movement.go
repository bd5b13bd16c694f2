package fuelledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/operation"
	"github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// MovementInput describes one physical fuel movement on one tank.
type MovementInput struct {
	TankID id.TankID    `json:"tank_id"`
	Type   journal.Type `json:"type"`
	// MRN selects the ledger entry. Inbound movements create the entry when
	// the tank does not hold the MRN yet.
	MRN string `json:"mrn,omitempty"`
	// EntryID selects the ledger entry directly and takes precedence over MRN.
	EntryID id.EntryID     `json:"entry_id"`
	Liters  types.Quantity `json:"liters"`
	// Kg is derived from the tank density when zero.
	Kg                 types.Quantity `json:"kg"`
	RelatedOperationID string         `json:"related_operation_id,omitempty"`
	OperatorID         string         `json:"operator_id,omitempty"`
	OccurredAt         time.Time      `json:"occurred_at"`
}

// AllocateInput declares fuel already in a tank under a new MRN.
type AllocateInput struct {
	TankID id.TankID      `json:"tank_id"`
	MRN    string         `json:"mrn"`
	Liters types.Quantity `json:"liters"`
	Kg     types.Quantity `json:"kg"`
}

// ConsumeInput draws fuel from one ledger entry.
type ConsumeInput struct {
	EntryID id.EntryID `json:"entry_id"`
	// Type defaults to FUELING when a related operation is given and to
	// DRAIN otherwise.
	Type               journal.Type   `json:"type,omitempty"`
	Liters             types.Quantity `json:"liters"`
	Kg                 types.Quantity `json:"kg"`
	RelatedOperationID string         `json:"related_operation_id,omitempty"`
	OperatorID         string         `json:"operator_id,omitempty"`
	OccurredAt         time.Time      `json:"occurred_at"`
}

// TransferInput moves fuel under one MRN from one tank to another.
type TransferInput struct {
	FromTankID id.TankID      `json:"from_tank_id"`
	ToTankID   id.TankID      `json:"to_tank_id"`
	MRN        string         `json:"mrn"`
	Liters     types.Quantity `json:"liters"`
	Kg         types.Quantity `json:"kg"`
	OperatorID string         `json:"operator_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// TransferResult holds both legs of a transfer and the resulting tanks.
type TransferResult struct {
	TransferID id.TransferID `json:"transfer_id"`
	Out        *journal.Leg  `json:"out"`
	In         *journal.Leg  `json:"in"`
	From       *tank.Tank    `json:"from"`
	To         *tank.Tank    `json:"to"`
}

// MovementResult is the leg written by a movement and the state it left.
type MovementResult struct {
	Leg   *journal.Leg `json:"leg"`
	Entry *mrn.Entry   `json:"entry"`
	Tank  *tank.Tank   `json:"tank"`
}

// ──────────────────────────────────────────────────
// Movements
// ──────────────────────────────────────────────────

// Movement records one fuel movement. The tank level, the ledger entry,
// and the journal leg change together or not at all.
func (l *Ledger) Movement(ctx context.Context, in MovementInput) (*MovementResult, error) {
	if err := validateMovement(&in); err != nil {
		return nil, err
	}
	if err := l.checkOperations(ctx, "movement", in.TankID, in.RelatedOperationID); err != nil {
		l.rejected(ctx, in.TankID, in.Type, err)
		return nil, err
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = l.now()
	}

	var (
		res      *MovementResult
		fallback *tank.Tank
		created  bool
	)
	err := l.atomically(ctx, "movement", []id.TankID{in.TankID}, func(ctx context.Context, tx store.Tx) error {
		res, fallback, created = nil, nil, false

		t, err := tx.LockTank(ctx, in.TankID)
		if err != nil {
			return err
		}
		p, err := l.post(ctx, tx, t, posting{
			typ:        in.Type,
			mrn:        in.MRN,
			entryID:    in.EntryID,
			liters:     in.Liters,
			kg:         in.Kg,
			relatedOp:  in.RelatedOperationID,
			operatorID: in.OperatorID,
			occurredAt: in.OccurredAt,
		})
		if p != nil && p.change.fallbackUsed {
			fallback = t.Clone()
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateTank(ctx, t); err != nil {
			return err
		}
		res, created = &MovementResult{Leg: p.leg, Entry: p.entry, Tank: t}, p.created
		return nil
	})

	if fallback != nil {
		l.warnFallback(ctx, fallback)
	}
	if err != nil {
		l.rejected(ctx, in.TankID, in.Type, err)
		return nil, err
	}

	if created {
		l.plugins.EmitAllocated(ctx, res.Entry)
	}
	l.recorded(ctx, res.Leg, res.Tank)
	return res, nil
}

// Consume draws fuel from a ledger entry, defaulting the movement type
// from whether an aircraft operation is referenced.
func (l *Ledger) Consume(ctx context.Context, in ConsumeInput) (*MovementResult, error) {
	if in.EntryID.IsNil() {
		return nil, ValidationError{Field: "entry_id", Message: "is required"}
	}
	if in.Type == "" {
		in.Type = journal.TypeDrain
		if strings.TrimSpace(in.RelatedOperationID) != "" {
			in.Type = journal.TypeFueling
		}
	}
	if dir, _ := in.Type.Direction(); dir != journal.DirectionOut {
		return nil, ValidationError{Field: "type", Message: "consumption must be an outbound movement"}
	}

	e, err := l.store.GetEntry(ctx, in.EntryID)
	if err != nil {
		return nil, err
	}

	return l.Movement(ctx, MovementInput{
		TankID:             e.TankID,
		Type:               in.Type,
		EntryID:            e.ID,
		Liters:             in.Liters,
		Kg:                 in.Kg,
		RelatedOperationID: in.RelatedOperationID,
		OperatorID:         in.OperatorID,
		OccurredAt:         in.OccurredAt,
	})
}

// Allocate declares that fuel already in the tank is held under a new MRN.
// It creates the ledger entry and leaves the tank level unchanged. A tank
// holds each MRN at most once while it has a balance; later receipts
// under the same MRN go through Movement. A drained entry is reused.
func (l *Ledger) Allocate(ctx context.Context, in AllocateInput) (*mrn.Entry, error) {
	if in.TankID.IsNil() {
		return nil, ValidationError{Field: "tank_id", Message: "is required"}
	}
	number, err := mrn.NormalizeNumber(in.MRN)
	if err != nil {
		return nil, ValidationError{Field: "mrn", Message: err.Error()}
	}
	if !in.Liters.IsPositive() {
		return nil, &InvalidQuantityError{Field: "liters", Value: in.Liters.String(), Reason: "must be positive"}
	}
	if in.Kg.IsNegative() {
		return nil, &InvalidQuantityError{Field: "kg", Value: in.Kg.String(), Reason: "must not be negative"}
	}

	var entry *mrn.Entry
	err = l.atomically(ctx, "allocate", []id.TankID{in.TankID}, func(ctx context.Context, tx store.Tx) error {
		entry = nil

		t, err := tx.LockTank(ctx, in.TankID)
		if err != nil {
			return err
		}

		existing, err := tx.FindEntry(ctx, t.ID, number)
		switch {
		case err == nil && existing.Active():
			return &DuplicateAllocationError{TankID: t.ID.String(), MRN: number, EntryID: existing.ID.String()}
		case err == nil:
			// A drained entry is refilled in place; (tank, mrn) stays unique.
		case IsNotFound(err):
			existing = nil
		default:
			return err
		}

		kg, err := l.resolveKg(in.Liters, in.Kg, t.Density)
		if err != nil {
			return err
		}

		entries, err := tx.ListEntries(ctx, t.ID)
		if err != nil {
			return err
		}
		var backed, backedKg types.Quantity
		for _, e := range entries {
			backed = backed.Add(e.RemainingLiters)
			backedKg = backedKg.Add(e.RemainingKg)
		}
		unbacked := t.CurrentLiters.Sub(backed)
		if in.Liters.GreaterThan(unbacked.Add(l.config.Tolerance.Epsilon)) {
			return &InsufficientBalanceError{
				Scope:           ScopeTank,
				TankID:          t.ID.String(),
				MRN:             number,
				RequestedLiters: in.Liters,
				AvailableLiters: unbacked,
				RequestedKg:     kg,
				AvailableKg:     t.CurrentKg.Sub(backedKg),
			}
		}

		if existing != nil {
			existing.InitialLiters = existing.InitialLiters.Add(in.Liters)
			existing.InitialKg = existing.InitialKg.Add(kg)
			existing.RemainingLiters = existing.RemainingLiters.Add(in.Liters)
			existing.RemainingKg = existing.RemainingKg.Add(kg)
			existing.Touch(l.now())
			if err := tx.UpdateEntry(ctx, existing); err != nil {
				return err
			}
			entry = existing
			return nil
		}

		e := &mrn.Entry{
			Entity:          types.NewEntityAt(l.now()),
			ID:              id.NewEntryID(),
			TankID:          t.ID,
			TankKind:        t.Kind,
			MRN:             number,
			InitialLiters:   in.Liters,
			InitialKg:       kg,
			RemainingLiters: in.Liters,
			RemainingKg:     kg,
		}
		if err := tx.CreateEntry(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		l.logger.Info("allocation rejected", "tank_id", in.TankID.String(), "mrn", number, "error", err)
		return nil, err
	}

	l.logger.Info("mrn allocated",
		"tank_id", entry.TankID.String(),
		"mrn", entry.MRN,
		"entry_id", entry.ID.String(),
		"liters", entry.InitialLiters.String(),
		"kg", entry.InitialKg.String(),
	)
	l.plugins.EmitAllocated(ctx, entry)
	l.invalidateStatus(ctx, entry.TankID)
	return entry, nil
}

// Transfer moves fuel under one MRN between two tanks. Both legs share a
// transfer ID and commit together. Tanks are locked in ID order.
func (l *Ledger) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	if in.FromTankID.IsNil() || in.ToTankID.IsNil() {
		return nil, ValidationError{Field: "tank_id", Message: "source and destination are required"}
	}
	if in.FromTankID.String() == in.ToTankID.String() {
		return nil, ValidationError{Field: "to_tank_id", Message: "must differ from the source tank"}
	}
	number, err := mrn.NormalizeNumber(in.MRN)
	if err != nil {
		return nil, ValidationError{Field: "mrn", Message: err.Error()}
	}
	if !in.Liters.IsPositive() {
		return nil, &InvalidQuantityError{Field: "liters", Value: in.Liters.String(), Reason: "must be positive"}
	}
	if in.Kg.IsNegative() {
		return nil, &InvalidQuantityError{Field: "kg", Value: in.Kg.String(), Reason: "must not be negative"}
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = l.now()
	}

	var (
		res       *TransferResult
		fallbacks []*tank.Tank
	)
	err = l.atomically(ctx, "transfer", []id.TankID{in.FromTankID, in.ToTankID}, func(ctx context.Context, tx store.Tx) error {
		res, fallbacks = nil, nil
		transferID := id.NewTransferID()

		from, err := tx.LockTank(ctx, in.FromTankID)
		if err != nil {
			return err
		}
		to, err := tx.LockTank(ctx, in.ToTankID)
		if err != nil {
			return err
		}

		out, err := l.post(ctx, tx, from, posting{
			typ:        journal.TypeTransferOut,
			mrn:        number,
			liters:     in.Liters,
			kg:         in.Kg,
			transferID: transferID,
			operatorID: in.OperatorID,
			occurredAt: in.OccurredAt,
		})
		if out != nil && out.change.fallbackUsed {
			fallbacks = append(fallbacks, from.Clone())
		}
		if err != nil {
			return err
		}

		// Mass is conserved across the transfer.
		inbound, err := l.post(ctx, tx, to, posting{
			typ:        journal.TypeTransferIn,
			mrn:        number,
			liters:     in.Liters,
			kg:         out.leg.Kg,
			transferID: transferID,
			operatorID: in.OperatorID,
			occurredAt: in.OccurredAt,
			kgFixed:    true,
		})
		if inbound != nil && inbound.change.fallbackUsed {
			fallbacks = append(fallbacks, to.Clone())
		}
		if err != nil {
			return err
		}

		if err := tx.UpdateTank(ctx, from); err != nil {
			return err
		}
		if err := tx.UpdateTank(ctx, to); err != nil {
			return err
		}

		res = &TransferResult{TransferID: transferID, Out: out.leg, In: inbound.leg, From: from, To: to}
		return nil
	})

	for _, t := range fallbacks {
		l.warnFallback(ctx, t)
	}
	if err != nil {
		l.rejected(ctx, in.FromTankID, journal.TypeTransferOut, err)
		return nil, err
	}

	l.logger.Info("transfer recorded",
		"transfer_id", res.TransferID.String(),
		"from_tank_id", res.From.ID.String(),
		"to_tank_id", res.To.ID.String(),
		"mrn", number,
		"liters", res.Out.Liters.String(),
		"kg", res.Out.Kg.String(),
	)
	l.plugins.EmitTransferRecorded(ctx, res.Out, res.In)
	l.invalidateStatus(ctx, res.From.ID)
	l.invalidateStatus(ctx, res.To.ID)
	return res, nil
}

// ──────────────────────────────────────────────────
// Posting
// ──────────────────────────────────────────────────

type posting struct {
	typ        journal.Type
	mrn        string
	entryID    id.EntryID
	liters     types.Quantity
	kg         types.Quantity
	kgFixed    bool
	relatedOp  string
	transferID id.TransferID
	operatorID string
	occurredAt time.Time

	leg     *journal.Leg
	entry   *mrn.Entry
	created bool
	change  levelChange
}

// post applies one movement to a locked tank and its ledger entry and
// appends the leg. The caller writes the tank. A non-nil posting is
// returned alongside a capacity error so the caller sees fallback use.
func (l *Ledger) post(ctx context.Context, tx store.Tx, t *tank.Tank, p posting) (*posting, error) {
	dir, _ := p.typ.Direction()

	kg := p.kg
	if !p.kgFixed {
		var err error
		if kg, err = l.resolveKg(p.liters, p.kg, t.Density); err != nil {
			return nil, err
		}
	}

	entry, created, err := l.entryFor(ctx, tx, t, p, dir)
	if err != nil {
		return nil, err
	}

	if dir == journal.DirectionIn {
		if created {
			entry.InitialLiters, entry.InitialKg = p.liters, kg
		}
		entry.RemainingLiters = entry.RemainingLiters.Add(p.liters)
		entry.RemainingKg = entry.RemainingKg.Add(kg)
	} else {
		kg = l.snapKg(entry, p.liters, kg)
		if p.liters.GreaterThan(entry.RemainingLiters) || kg.GreaterThan(entry.RemainingKg) {
			return nil, &InsufficientBalanceError{
				Scope:           ScopeEntry,
				TankID:          t.ID.String(),
				EntryID:         entry.ID.String(),
				MRN:             entry.MRN,
				RequestedLiters: p.liters,
				AvailableLiters: entry.RemainingLiters,
				RequestedKg:     kg,
				AvailableKg:     entry.RemainingKg,
			}
		}
		entry.RemainingLiters = entry.RemainingLiters.Sub(p.liters)
		entry.RemainingKg = entry.RemainingKg.Sub(kg)
	}
	entry.Touch(l.now())

	deltaL, deltaKg := p.liters, kg
	if dir == journal.DirectionOut {
		deltaL, deltaKg = deltaL.Neg(), deltaKg.Neg()
	}
	change, err := l.applyLevel(t, deltaL, deltaKg)
	p.change = change
	if err != nil {
		return &p, err
	}

	leg := &journal.Leg{
		ID:                 id.NewLegID(),
		Type:               p.typ,
		Direction:          dir,
		TankID:             t.ID,
		MRN:                entry.MRN,
		Liters:             p.liters,
		Kg:                 kg,
		RelatedOperationID: p.relatedOp,
		TransferID:         p.transferID,
		OperatorID:         p.operatorID,
		OccurredAt:         p.occurredAt,
		CreatedAt:          l.now(),
	}
	leg.SetEntry(t.Kind, entry.ID)
	if err := leg.Validate(); err != nil {
		return &p, err
	}

	if created {
		err = tx.CreateEntry(ctx, entry)
	} else {
		err = tx.UpdateEntry(ctx, entry)
	}
	if err != nil {
		return &p, err
	}
	if err := tx.AppendLeg(ctx, leg); err != nil {
		return &p, err
	}

	p.leg, p.entry, p.created = leg, entry, created
	return &p, nil
}

// entryFor resolves the ledger entry a movement posts to, creating one for
// inbound movements under an MRN the tank does not hold yet.
func (l *Ledger) entryFor(ctx context.Context, tx store.Tx, t *tank.Tank, p posting, dir journal.Direction) (*mrn.Entry, bool, error) {
	if !p.entryID.IsNil() {
		e, err := tx.GetEntry(ctx, p.entryID)
		if err != nil {
			return nil, false, err
		}
		if e.TankID.String() != t.ID.String() {
			return nil, false, ValidationError{Field: "entry_id", Message: "entry belongs to another tank"}
		}
		return e, false, nil
	}

	e, err := tx.FindEntry(ctx, t.ID, p.mrn)
	if err == nil {
		return e, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}
	if dir == journal.DirectionOut {
		return nil, false, fmt.Errorf("%w: tank %s holds no fuel under mrn %s", ErrEntryNotFound, t.ID, p.mrn)
	}

	return &mrn.Entry{
		Entity:   types.NewEntityAt(l.now()),
		ID:       id.NewEntryID(),
		TankID:   t.ID,
		TankKind: t.Kind,
		MRN:      p.mrn,
	}, true, nil
}

// resolveKg derives kg from liters when absent and otherwise checks that
// the two agree at the tank density.
func (l *Ledger) resolveKg(liters, kg types.Quantity, d types.Density) (types.Quantity, error) {
	if kg.IsZero() {
		return types.ToKg(liters, d)
	}
	if !types.ConsistentKg(liters, kg, d, l.config.Tolerance) {
		return types.Quantity{}, &InvalidQuantityError{
			Field:  "kg",
			Value:  kg.String(),
			Reason: fmt.Sprintf("does not match %s L at density %s", liters, d),
		}
	}
	return kg, nil
}

// snapKg makes a draw of an entry's full liters also take its full kg when
// the two differ only by conversion rounding, so no mass is stranded.
func (l *Ledger) snapKg(e *mrn.Entry, liters, kg types.Quantity) types.Quantity {
	if !liters.Equal(e.RemainingLiters) {
		return kg
	}
	slack := types.NewQuantity(e.RemainingKg.Decimal().Mul(l.config.Tolerance.Relative)).Add(l.config.Tolerance.Epsilon)
	if kg.Within(e.RemainingKg, slack) {
		return e.RemainingKg
	}
	return kg
}

// checkOperations resolves related operation IDs in one batched lookup,
// bounded by the operation timeout.
func (l *Ledger) checkOperations(ctx context.Context, op string, tankID id.TankID, ids ...string) error {
	ids = operation.Dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	if l.lookup == nil {
		return fmt.Errorf("%w: no operation lookup configured", ErrLookupUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.OperationTimeout)
	defer cancel()

	found, err := l.lookup.GetOperations(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return l.contextError(ctx, op, tankID.String(), err)
		}
		return fmt.Errorf("%w: %w", ErrLookupUnavailable, err)
	}
	if missing := operation.Missing(ids, found); len(missing) > 0 {
		l.plugins.EmitDanglingReference(ctx, tankID.String(), missing)
		return &DanglingOperationReferenceError{TankID: tankID.String(), OperationIDs: missing}
	}
	return nil
}

func validateMovement(in *MovementInput) error {
	if in.TankID.IsNil() {
		return ValidationError{Field: "tank_id", Message: "is required"}
	}
	if !in.Type.Valid() {
		return ValidationError{Field: "type", Message: fmt.Sprintf("unknown movement type %q", in.Type)}
	}
	if in.Type == journal.TypeCorrection {
		return ValidationError{Field: "type", Message: "corrections are made through Correct"}
	}
	if !in.Liters.IsPositive() {
		return &InvalidQuantityError{Field: "liters", Value: in.Liters.String(), Reason: "must be positive"}
	}
	if in.Kg.IsNegative() {
		return &InvalidQuantityError{Field: "kg", Value: in.Kg.String(), Reason: "must not be negative"}
	}
	if in.EntryID.IsNil() || in.MRN != "" {
		number, err := mrn.NormalizeNumber(in.MRN)
		if err != nil {
			return ValidationError{Field: "mrn", Message: err.Error()}
		}
		in.MRN = number
	}
	in.RelatedOperationID = strings.TrimSpace(in.RelatedOperationID)
	in.OperatorID = strings.TrimSpace(in.OperatorID)
	return nil
}

func (l *Ledger) recorded(ctx context.Context, leg *journal.Leg, t *tank.Tank) {
	l.logger.Info("movement recorded",
		"tank_id", t.ID.String(),
		"leg_id", leg.ID.String(),
		"type", string(leg.Type),
		"mrn", leg.MRN,
		"liters", leg.Liters.String(),
		"kg", leg.Kg.String(),
		"tank_liters", t.CurrentLiters.String(),
	)
	l.plugins.EmitMovementRecorded(ctx, leg, t)
	l.invalidateStatus(ctx, t.ID)
}

func (l *Ledger) rejected(ctx context.Context, tankID id.TankID, typ journal.Type, err error) {
	level := slogLevelFor(err)
	l.logger.Log(ctx, level, "movement rejected",
		"tank_id", tankID.String(),
		"type", string(typ),
		"error", err,
	)
	l.plugins.EmitMovementRejected(ctx, tankID.String(), typ, err)
}

func (l *Ledger) invalidateStatus(ctx context.Context, tankID id.TankID) {
	if err := l.status.Invalidate(ctx, tankID); err != nil {
		l.logger.Warn("status cache invalidation failed", "tank_id", tankID.String(), "error", err)
	}
}
