package sqlite

import (
	"encoding/json"
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

// Same integer encoding as the postgres store; metadata is JSON text and
// journal and record rows are keyed by their rowid sequence.

// ==================== Tank models ====================

type tankModel struct {
	grove.BaseModel `grove:"table:fuelledger_tanks"`

	ID           string    `grove:"id,pk"`
	Name         string    `grove:"name"`
	Kind         string    `grove:"kind"`
	CapacityML   int64     `grove:"capacity_ml"`
	CurrentML    int64     `grove:"current_ml"`
	CurrentG     int64     `grove:"current_g"`
	DensityMicro int64     `grove:"density_micro"`
	Version      int64     `grove:"version"`
	Metadata     string    `grove:"metadata"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func toTankModel(t *tank.Tank) *tankModel {
	md := "{}"
	if len(t.Metadata) > 0 {
		raw, _ := json.Marshal(t.Metadata) //nolint:errcheck // map[string]string always marshals
		md = string(raw)
	}
	return &tankModel{
		ID:           t.ID.String(),
		Name:         t.Name,
		Kind:         string(t.Kind),
		CapacityML:   t.CapacityLiters.Milli(),
		CurrentML:    t.CurrentLiters.Milli(),
		CurrentG:     t.CurrentKg.Milli(),
		DensityMicro: t.Density.Micro(),
		Version:      t.Version,
		Metadata:     md,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fromTankModel(m *tankModel) (*tank.Tank, error) {
	tankID, err := id.ParseTankID(m.ID)
	if err != nil {
		return nil, err
	}
	var md map[string]string
	if m.Metadata != "" && m.Metadata != "{}" {
		if err := json.Unmarshal([]byte(m.Metadata), &md); err != nil {
			return nil, err
		}
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
		Metadata:       md,
	}, nil
}

// ==================== MRN entry models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:fuelledger_mrn_entries"`

	ID          string    `grove:"id,pk"`
	TankID      string    `grove:"tank_id"`
	TankKind    string    `grove:"tank_kind"`
	MRN         string    `grove:"mrn"`
	InitialML   int64     `grove:"initial_ml"`
	InitialG    int64     `grove:"initial_g"`
	RemainingML int64     `grove:"remaining_ml"`
	RemainingG  int64     `grove:"remaining_g"`
	Version     int64     `grove:"version"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
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

// ==================== Journal models ====================

type legModel struct {
	grove.BaseModel `grove:"table:fuelledger_journal"`

	ID                 string    `grove:"id"`
	Sequence           int64     `grove:"sequence,pk,autoincrement"`
	Type               string    `grove:"type"`
	Direction          string    `grove:"direction"`
	TankID             string    `grove:"tank_id"`
	MRN                string    `grove:"mrn"`
	FixedEntryID       *string   `grove:"fixed_entry_id"`
	MobileEntryID      *string   `grove:"mobile_entry_id"`
	LitersML           int64     `grove:"liters_ml"`
	KgG                int64     `grove:"kg_g"`
	RelatedOperationID string    `grove:"related_operation_id"`
	TransferID         string    `grove:"transfer_id"`
	Target             string    `grove:"target"`
	OperatorID         string    `grove:"operator_id"`
	Reason             string    `grove:"reason"`
	OccurredAt         time.Time `grove:"occurred_at"`
	CreatedAt          time.Time `grove:"created_at"`
}

func toLegModel(l *journal.Leg) *legModel {
	return &legModel{
		ID:                 l.ID.String(),
		Sequence:           l.Sequence,
		Type:               string(l.Type),
		Direction:          string(l.Direction),
		TankID:             l.TankID.String(),
		MRN:                l.MRN,
		FixedEntryID:       nullableID(l.FixedEntryID),
		MobileEntryID:      nullableID(l.MobileEntryID),
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
	fixed, err := parseNullableID(m.FixedEntryID, id.PrefixEntry)
	if err != nil {
		return nil, err
	}
	mobile, err := parseNullableID(m.MobileEntryID, id.PrefixEntry)
	if err != nil {
		return nil, err
	}
	var transferID id.TransferID
	if m.TransferID != "" {
		if transferID, err = id.ParseTransferID(m.TransferID); err != nil {
			return nil, err
		}
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

	ID               string    `grove:"id"`
	Seq              int64     `grove:"seq,pk,autoincrement"`
	TankID           string    `grove:"tank_id"`
	CheckedAt        time.Time `grove:"checked_at"`
	ExpectedML       int64     `grove:"expected_ml"`
	ExpectedG        int64     `grove:"expected_g"`
	ActualML         int64     `grove:"actual_ml"`
	ActualG          int64     `grove:"actual_g"`
	DriftML          int64     `grove:"drift_ml"`
	DriftG           int64     `grove:"drift_g"`
	RelativeDrift    string    `grove:"relative_drift"`
	CapacityML       int64     `grove:"capacity_ml"`
	Classification   string    `grove:"classification"`
	Trigger          string    `grove:"run_trigger"`
	Direction        string    `grove:"direction"`
	OperatorID       string    `grove:"operator_id"`
	Reason           string    `grove:"reason"`
	CorrectionLegID  string    `grove:"correction_leg_id"`
	ResolvesRecordID string    `grove:"resolves_record_id"`
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
	rel, err := decimal.NewFromString(m.RelativeDrift)
	if err != nil {
		return nil, err
	}
	var legID id.LegID
	if m.CorrectionLegID != "" {
		if legID, err = id.ParseLegID(m.CorrectionLegID); err != nil {
			return nil, err
		}
	}
	var resolves id.RecordID
	if m.ResolvesRecordID != "" {
		if resolves, err = id.ParseRecordID(m.ResolvesRecordID); err != nil {
			return nil, err
		}
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

// ==================== Helpers ====================

func nullableID(v id.ID) *string {
	if v.IsNil() {
		return nil
	}
	s := v.String()
	return &s
}

func parseNullableID(s *string, prefix id.Prefix) (id.ID, error) {
	if s == nil || *s == "" {
		return id.Nil, nil
	}
	return id.ParseWithPrefix(*s, prefix)
}
