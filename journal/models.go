package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// ErrInvalidLeg is returned when a leg violates a journal invariant.
var ErrInvalidLeg = errors.New("fuelledger: invalid journal leg")

type Type string

const (
	TypeRefill      Type = "REFILL"
	TypeFueling     Type = "FUELING"
	TypeTransferIn  Type = "TRANSFER_IN"
	TypeTransferOut Type = "TRANSFER_OUT"
	TypeDrain       Type = "DRAIN"
	TypeCorrection  Type = "RECONCILIATION_CORRECTION"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Target names the side a leg adjusts. Movements adjust both the tank and
// the ledger entry; corrections adjust exactly one.
type Target string

const (
	TargetBoth   Target = ""
	TargetTank   Target = "tank"
	TargetLedger Target = "ledger"
)

// Valid reports whether t is a known leg type.
func (t Type) Valid() bool {
	switch t {
	case TypeRefill, TypeFueling, TypeTransferIn, TypeTransferOut, TypeDrain, TypeCorrection:
		return true
	}
	return false
}

// Direction returns the fixed direction of t. Corrections have none.
func (t Type) Direction() (Direction, bool) {
	switch t {
	case TypeRefill, TypeTransferIn:
		return DirectionIn, true
	case TypeFueling, TypeTransferOut, TypeDrain:
		return DirectionOut, true
	}
	return "", false
}

// Leg is one immutable journal row.
type Leg struct {
	ID                 id.LegID       `json:"id"`
	Sequence           int64          `json:"sequence"`
	Type               Type           `json:"type"`
	Direction          Direction      `json:"direction"`
	TankID             id.TankID      `json:"tank_id"`
	MRN                string         `json:"mrn"`
	FixedEntryID       id.EntryID     `json:"fixed_entry_id"`
	MobileEntryID      id.EntryID     `json:"mobile_entry_id"`
	Liters             types.Quantity `json:"liters"`
	Kg                 types.Quantity `json:"kg"`
	RelatedOperationID string         `json:"related_operation_id,omitempty"`
	TransferID         id.TransferID  `json:"transfer_id"`
	Target             Target         `json:"target,omitempty"`
	OperatorID         string         `json:"operator_id,omitempty"`
	Reason             string         `json:"reason,omitempty"`
	OccurredAt         time.Time      `json:"occurred_at"`
	CreatedAt          time.Time      `json:"created_at"`
}

// SetEntry points the leg at entryID through the reference column that
// matches the tank kind.
func (l *Leg) SetEntry(kind tank.Kind, entryID id.EntryID) {
	l.FixedEntryID, l.MobileEntryID = id.Nil, id.Nil
	if kind == tank.KindMobile {
		l.MobileEntryID = entryID
		return
	}
	l.FixedEntryID = entryID
}

// EntryID returns whichever ledger entry reference is set.
func (l *Leg) EntryID() id.EntryID {
	if !l.FixedEntryID.IsNil() {
		return l.FixedEntryID
	}
	return l.MobileEntryID
}

// Validate checks the structural invariants of a leg before it is appended.
func (l *Leg) Validate() error {
	if !l.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidLeg, l.Type)
	}
	if want, fixed := l.Type.Direction(); fixed && l.Direction != want {
		return fmt.Errorf("%w: %s legs must be %q, got %q", ErrInvalidLeg, l.Type, want, l.Direction)
	}
	if l.Direction != DirectionIn && l.Direction != DirectionOut {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidLeg, l.Direction)
	}
	if l.FixedEntryID.IsNil() == l.MobileEntryID.IsNil() {
		return fmt.Errorf("%w: exactly one of fixed or mobile entry reference must be set", ErrInvalidLeg)
	}
	if l.TankID.IsNil() {
		return fmt.Errorf("%w: tank reference is required", ErrInvalidLeg)
	}
	if l.Liters.IsNegative() || l.Kg.IsNegative() {
		return fmt.Errorf("%w: quantities are magnitudes and must not be negative", ErrInvalidLeg)
	}
	if l.Type == TypeCorrection {
		if l.OperatorID == "" {
			return fmt.Errorf("%w: corrections require an operator", ErrInvalidLeg)
		}
		if l.Target != TargetTank && l.Target != TargetLedger {
			return fmt.Errorf("%w: corrections must target the tank or the ledger", ErrInvalidLeg)
		}
	} else if l.Target != TargetBoth {
		return fmt.Errorf("%w: only corrections may target one side", ErrInvalidLeg)
	}
	return nil
}

// TimeRange bounds legs by OccurredAt. Zero bounds are open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls in [From, To).
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Before reports whether a sorts before b in journal order: OccurredAt
// ascending, Sequence breaking ties.
func Before(a, b *Leg) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.Before(b.OccurredAt)
	}
	return a.Sequence < b.Sequence
}
