package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/types"
)

type Classification string

const (
	Consistent Classification = "CONSISTENT"
	Minor      Classification = "MINOR"
	Major      Classification = "MAJOR"
)

// Trigger records what started a reconciliation run.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerScheduled  Trigger = "scheduled"
	TriggerBatch      Trigger = "batch"
	TriggerCorrection Trigger = "correction"
	TriggerStatus     Trigger = "status"
)

// CorrectionDirection selects which side a correction moves.
type CorrectionDirection string

const (
	// CorrectTank moves the tank level to the ledger total.
	CorrectTank CorrectionDirection = "tank"
	// CorrectLedger moves the ledger total to the tank level.
	CorrectLedger CorrectionDirection = "ledger"
)

// Record is the immutable result of one reconciliation run.
type Record struct {
	ID               id.RecordID         `json:"id"`
	TankID           id.TankID           `json:"tank_id"`
	CheckedAt        time.Time           `json:"checked_at"`
	ExpectedLiters   types.Quantity      `json:"expected_liters"`
	ExpectedKg       types.Quantity      `json:"expected_kg"`
	ActualLiters     types.Quantity      `json:"actual_liters"`
	ActualKg         types.Quantity      `json:"actual_kg"`
	DriftLiters      types.Quantity      `json:"drift_liters"`
	DriftKg          types.Quantity      `json:"drift_kg"`
	RelativeDrift    decimal.Decimal     `json:"relative_drift"`
	CapacityLiters   types.Quantity      `json:"capacity_liters"`
	Classification   Classification      `json:"classification"`
	Trigger          Trigger             `json:"trigger"`
	Direction        CorrectionDirection `json:"direction,omitempty"`
	OperatorID       string              `json:"operator_id,omitempty"`
	Reason           string              `json:"reason,omitempty"`
	CorrectionLegID  id.LegID            `json:"correction_leg_id"`
	ResolvesRecordID id.RecordID         `json:"resolves_record_id"`
}

// Resolved reports whether the record carries a correction.
func (r *Record) Resolved() bool { return !r.CorrectionLegID.IsNil() }
