package fuelledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/types"
)

// Status answers "is this tank consistent" from the most recent
// reconciliation that is still fresh.
type Status struct {
	TankID         id.TankID                `json:"tank_id"`
	Classification reconcile.Classification `json:"classification"`
	ExpectedLiters types.Quantity           `json:"expected_liters"`
	ActualLiters   types.Quantity           `json:"actual_liters"`
	DriftLiters    types.Quantity           `json:"drift_liters"`
	DriftKg        types.Quantity           `json:"drift_kg"`
	RelativeDrift  decimal.Decimal          `json:"relative_drift"`
	CheckedAt      time.Time                `json:"checked_at"`
	RecordID       id.RecordID              `json:"record_id"`
	// Source is "cache", "record", or "recheck".
	Source string `json:"source"`
}

// Status sources.
const (
	SourceCache   = "cache"
	SourceRecord  = "record"
	SourceRecheck = "recheck"
)

func statusOf(r *reconcile.Record, source string) *Status {
	return &Status{
		TankID:         r.TankID,
		Classification: r.Classification,
		ExpectedLiters: r.ExpectedLiters,
		ActualLiters:   r.ActualLiters,
		DriftLiters:    r.DriftLiters,
		DriftKg:        r.DriftKg,
		RelativeDrift:  r.RelativeDrift,
		CheckedAt:      r.CheckedAt,
		RecordID:       r.ID,
		Source:         source,
	}
}

// ──────────────────────────────────────────────────
// Consistency queries
// ──────────────────────────────────────────────────

// StatusForTank returns the tank's consistency. A record younger than the
// staleness window is served as is; otherwise the tank is reconciled
// again. Records that carry a correction describe the drift before the
// correction and always force a recheck.
func (l *Ledger) StatusForTank(ctx context.Context, tankID id.TankID) (*Status, error) {
	if tankID.IsNil() {
		return nil, ValidationError{Field: "tank_id", Message: "is required"}
	}

	if rec, err := l.status.Get(ctx, tankID); err == nil && l.fresh(rec) {
		return statusOf(rec, SourceCache), nil
	}

	rec, err := l.store.LatestRecord(ctx, tankID)
	switch {
	case err == nil && l.fresh(rec):
		_ = l.status.Set(ctx, rec, l.config.StalenessWindow-l.now().Sub(rec.CheckedAt)) //nolint:errcheck // cache fill is best-effort
		return statusOf(rec, SourceRecord), nil
	case err != nil && !IsNotFound(err):
		return nil, err
	}

	rec, err = l.reconcile(ctx, tankID, reconcile.TriggerStatus)
	if err != nil {
		return nil, err
	}
	return statusOf(rec, SourceRecheck), nil
}

// ForceRecheck reconciles the tank now regardless of staleness.
func (l *Ledger) ForceRecheck(ctx context.Context, tankID id.TankID) (*Status, error) {
	rec, err := l.reconcile(ctx, tankID, reconcile.TriggerManual)
	if err != nil {
		return nil, err
	}
	return statusOf(rec, SourceRecheck), nil
}

func (l *Ledger) fresh(r *reconcile.Record) bool {
	if r == nil || r.Resolved() {
		return false
	}
	return l.now().Sub(r.CheckedAt) < l.config.StalenessWindow
}
