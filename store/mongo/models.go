package mongo

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// ==================== Tank models ====================

type tankModel struct {
	grove.BaseModel `grove:"table:fuelledger_tanks"`

	ID           string            `grove:"id,pk"         bson:"_id"`
	Name         string            `grove:"name"          bson:"name"`
	Kind         string            `grove:"kind"          bson:"kind"`
	CapacityML   int64             `grove:"capacity_ml"   bson:"capacity_ml"`
	CurrentML    int64             `grove:"current_ml"    bson:"current_ml"`
	CurrentG     int64             `grove:"current_g"     bson:"current_g"`
	DensityMicro int64             `grove:"density_micro" bson:"density_micro"`
	Version      int64             `grove:"version"       bson:"version"`
	Metadata     map[string]string `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt    time.Time         `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"    bson:"updated_at"`
}

func toTankModel(t *tank.Tank) *tankModel {
	return &tankModel{
		ID:           t.ID.String(),
		Name:         t.Name,
		Kind:         string(t.Kind),
		CapacityML:   t.CapacityLiters.Milli(),
		CurrentML:    t.CurrentLiters.Milli(),
		CurrentG:     t.CurrentKg.Milli(),
		DensityMicro: t.Density.Micro(),
		Version:      t.Version,
		Metadata:     t.Metadata,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fromTankModel(m *tankModel) (*tank.Tank, error) {
	tankID, err := id.ParseTankID(m.ID)
	if err != nil {
		return nil, err
	}
	return &tank.Tank{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:             tankID,
		Name:           m.Name,
		Kind:           tank.Kind(m.Kind),
		CapacityLiters: types.FromMilli(m.CapacityML),
		CurrentLiters:  types.FromMilli(m.CurrentML),
		CurrentKg:      types.FromMilli(m.CurrentG),
		Density:        types.DensityFromMicro(m.DensityMicro),
		Version:        m.Version,
		Metadata:       m.Metadata,
	}, nil
}

// ==================== MRN entry models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:fuelledger_mrn_entries"`

	ID          string    `grove:"id,pk"        bson:"_id"`
	TankID      string    `grove:"tank_id"      bson:"tank_id"`
	TankKind    string    `grove:"tank_kind"    bson:"tank_kind"`
	MRN         string    `grove:"mrn"          bson:"mrn"`
	InitialML   int64     `grove:"initial_ml"   bson:"initial_ml"`
	InitialG    int64     `grove:"initial_g"    bson:"initial_g"`
	RemainingML int64     `grove:"remaining_ml" bson:"remaining_ml"`
	RemainingG  int64     `grove:"remaining_g"  bson:"remaining_g"`
	Version     int64     `grove:"version"      bson:"version"`
	CreatedAt   time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"   bson:"updated_at"`
}

func toEntryModel(e *mrn.Entry) *entryModel {
	return &entryModel{
		ID:          e.ID.String(),
		TankID:      e.TankID.String(),
		TankKind:    string(e.TankKind),
		MRN:         e.MRN,
		InitialML:   e.InitialLiters.Milli(),
		InitialG:    e.InitialKg.Milli(),
		RemainingML: e.RemainingLiters.Milli(),
		RemainingG:  e.RemainingKg.Milli(),
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromEntryModel(m *entryModel) (*mrn.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	tankID, err := id.ParseTankID(m.TankID)
	if err != nil {
		return nil, err
	}
	return &mrn.Entry{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:              entryID,
		TankID:          tankID,
		TankKind:        tank.Kind(m.TankKind),
		MRN:             m.MRN,
		InitialLiters:   types.FromMilli(m.InitialML),
		InitialKg:       types.FromMilli(m.InitialG),
		RemainingLiters: types.FromMilli(m.RemainingML),
		RemainingKg:     types.FromMilli(m.RemainingG),
		Version:         m.Version,
	}, nil
}

func fromEntryModels(models []entryModel) ([]*mrn.Entry, error) {
	result := make([]*mrn.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Journal models ====================

// legModel.Sequence comes from the counters collection, not the driver.
type legModel struct {
	grove.BaseModel `grove:"table:fuelledger_journal"`

	ID                 string    `grove:"id,pk"                bson:"_id"`
	Sequence           int64     `grove:"sequence"             bson:"sequence"`
	Type               string    `grove:"type"                 bson:"type"`
	Direction          string    `grove:"direction"            bson:"direction"`
	TankID             string    `grove:"tank_id"              bson:"tank_id"`
	MRN                string    `grove:"mrn"                  bson:"mrn"`
	FixedEntryID       string    `grove:"fixed_entry_id"       bson:"fixed_entry_id,omitempty"`
	MobileEntryID      string    `grove:"mobile_entry_id"      bson:"mobile_entry_id,omitempty"`
	LitersML           int64     `grove:"liters_ml"            bson:"liters_ml"`
	KgG                int64     `grove:"kg_g"                 bson:"kg_g"`
	RelatedOperationID string    `grove:"related_operation_id" bson:"related_operation_id,omitempty"`
	TransferID         string    `grove:"transfer_id"          bson:"transfer_id,omitempty"`
	Target             string    `grove:"target"               bson:"target,omitempty"`
	OperatorID         string    `grove:"operator_id"          bson:"operator_id,omitempty"`
	Reason             string    `grove:"reason"               bson:"reason,omitempty"`
	OccurredAt         time.Time `grove:"occurred_at"          bson:"occurred_at"`
	CreatedAt          time.Time `grove:"created_at"           bson:"created_at"`
}

func toLegModel(l *journal.Leg) *legModel {
	return &legModel{
		ID:                 l.ID.String(),
		Sequence:           l.Sequence,
		Type:               string(l.Type),
		Direction:          string(l.Direction),
		TankID:             l.TankID.String(),
		MRN:                l.MRN,
		FixedEntryID:       l.FixedEntryID.String(),
		MobileEntryID:      l.MobileEntryID.String(),
		LitersML:           l.Liters.Milli(),
		KgG:                l.Kg.Milli(),
		RelatedOperationID: l.RelatedOperationID,
		TransferID:         l.TransferID.String(),
		Target:             string(l.Target),
		OperatorID:         l.OperatorID,
		Reason:             l.Reason,
		OccurredAt:         l.OccurredAt,
		CreatedAt:          l.CreatedAt,
	}
}

func fromLegModel(m *legModel) (*journal.Leg, error) {
	legID, err := id.ParseLegID(m.ID)
	if err != nil {
		return nil, err
	}
	tankID, err := id.ParseTankID(m.TankID)
	if err != nil {
		return nil, err
	}
	fixed, err := parseOptionalID(m.FixedEntryID, id.PrefixEntry)
	if err != nil {
		return nil, err
	}
	mobile, err := parseOptionalID(m.MobileEntryID, id.PrefixEntry)
	if err != nil {
		return nil, err
	}
	transferID, err := parseOptionalID(m.TransferID, id.PrefixTransfer)
	if err != nil {
		return nil, err
	}
	return &journal.Leg{
		ID:                 legID,
		Sequence:           m.Sequence,
		Type:               journal.Type(m.Type),
		Direction:          journal.Direction(m.Direction),
		TankID:             tankID,
		MRN:                m.MRN,
		FixedEntryID:       fixed,
		MobileEntryID:      mobile,
		Liters:             types.FromMilli(m.LitersML),
		Kg:                 types.FromMilli(m.KgG),
		RelatedOperationID: m.RelatedOperationID,
		TransferID:         transferID,
		Target:             journal.Target(m.Target),
		OperatorID:         m.OperatorID,
		Reason:             m.Reason,
		OccurredAt:         m.OccurredAt.UTC(),
		CreatedAt:          m.CreatedAt.UTC(),
	}, nil
}

// ==================== Reconciliation models ====================

type recordModel struct {
	grove.BaseModel `grove:"table:fuelledger_reconciliations"`

	ID               string    `grove:"id,pk"              bson:"_id"`
	Seq              int64     `grove:"seq"                bson:"seq"`
	TankID           string    `grove:"tank_id"            bson:"tank_id"`
	CheckedAt        time.Time `grove:"checked_at"         bson:"checked_at"`
	ExpectedML       int64     `grove:"expected_ml"        bson:"expected_ml"`
	ExpectedG        int64     `grove:"expected_g"         bson:"expected_g"`
	ActualML         int64     `grove:"actual_ml"          bson:"actual_ml"`
	ActualG          int64     `grove:"actual_g"           bson:"actual_g"`
	DriftML          int64     `grove:"drift_ml"           bson:"drift_ml"`
	DriftG           int64     `grove:"drift_g"            bson:"drift_g"`
	RelativeDrift    string    `grove:"relative_drift"     bson:"relative_drift"`
	CapacityML       int64     `grove:"capacity_ml"        bson:"capacity_ml"`
	Classification   string    `grove:"classification"     bson:"classification"`
	Trigger          string    `grove:"run_trigger"        bson:"run_trigger"`
	Direction        string    `grove:"direction"          bson:"direction,omitempty"`
	OperatorID       string    `grove:"operator_id"        bson:"operator_id,omitempty"`
	Reason           string    `grove:"reason"             bson:"reason,omitempty"`
	CorrectionLegID  string    `grove:"correction_leg_id"  bson:"correction_leg_id,omitempty"`
	ResolvesRecordID string    `grove:"resolves_record_id" bson:"resolves_record_id,omitempty"`
}

func toRecordModel(r *reconcile.Record) *recordModel {
	return &recordModel{
		ID:               r.ID.String(),
		TankID:           r.TankID.String(),
		CheckedAt:        r.CheckedAt,
		ExpectedML:       r.ExpectedLiters.Milli(),
		ExpectedG:        r.ExpectedKg.Milli(),
		ActualML:         r.ActualLiters.Milli(),
		ActualG:          r.ActualKg.Milli(),
		DriftML:          r.DriftLiters.Milli(),
		DriftG:           r.DriftKg.Milli(),
		RelativeDrift:    r.RelativeDrift.String(),
		CapacityML:       r.CapacityLiters.Milli(),
		Classification:   string(r.Classification),
		Trigger:          string(r.Trigger),
		Direction:        string(r.Direction),
		OperatorID:       r.OperatorID,
		Reason:           r.Reason,
		CorrectionLegID:  r.CorrectionLegID.String(),
		ResolvesRecordID: r.ResolvesRecordID.String(),
	}
}

func fromRecordModel(m *recordModel) (*reconcile.Record, error) {
	recordID, err := id.ParseRecordID(m.ID)
	if err != nil {
		return nil, err
	}
	tankID, err := id.ParseTankID(m.TankID)
	if err != nil {
		return nil, err
	}
	rel := decimal.Zero
	if m.RelativeDrift != "" {
		if rel, err = decimal.NewFromString(m.RelativeDrift); err != nil {
			return nil, err
		}
	}
	legID, err := parseOptionalID(m.CorrectionLegID, id.PrefixLeg)
	if err != nil {
		return nil, err
	}
	resolves, err := parseOptionalID(m.ResolvesRecordID, id.PrefixRecord)
	if err != nil {
		return nil, err
	}
	return &reconcile.Record{
		ID:               recordID,
		TankID:           tankID,
		CheckedAt:        m.CheckedAt.UTC(),
		ExpectedLiters:   types.FromMilli(m.ExpectedML),
		ExpectedKg:       types.FromMilli(m.ExpectedG),
		ActualLiters:     types.FromMilli(m.ActualML),
		ActualKg:         types.FromMilli(m.ActualG),
		DriftLiters:      types.FromMilli(m.DriftML),
		DriftKg:          types.FromMilli(m.DriftG),
		RelativeDrift:    rel,
		CapacityLiters:   types.FromMilli(m.CapacityML),
		Classification:   reconcile.Classification(m.Classification),
		Trigger:          reconcile.Trigger(m.Trigger),
		Direction:        reconcile.CorrectionDirection(m.Direction),
		OperatorID:       m.OperatorID,
		Reason:           m.Reason,
		CorrectionLegID:  legID,
		ResolvesRecordID: resolves,
	}, nil
}

func parseOptionalID(s string, prefix id.Prefix) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.ParseWithPrefix(s, prefix)
}
