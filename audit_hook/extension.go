// Package audithook bridges fuel ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/plugin"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnTankProvisioned   = (*Extension)(nil)
	_ plugin.OnAllocated         = (*Extension)(nil)
	_ plugin.OnMovementRecorded  = (*Extension)(nil)
	_ plugin.OnMovementRejected  = (*Extension)(nil)
	_ plugin.OnTransferRecorded  = (*Extension)(nil)
	_ plugin.OnCapacityFallback  = (*Extension)(nil)
	_ plugin.OnReconciled        = (*Extension)(nil)
	_ plugin.OnDriftDetected     = (*Extension)(nil)
	_ plugin.OnCorrected         = (*Extension)(nil)
	_ plugin.OnDanglingReference = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Tank hooks
// ──────────────────────────────────────────────────

// OnTankProvisioned implements plugin.OnTankProvisioned.
func (e *Extension) OnTankProvisioned(ctx context.Context, t *tank.Tank) error {
	return e.record(ctx, ActionTankProvisioned, SeverityInfo, OutcomeSuccess,
		ResourceTank, t.ID.String(), CategoryInventory, nil,
		"name", t.Name,
		"kind", string(t.Kind),
		"capacity_liters", t.CapacityLiters.String(),
	)
}

// OnCapacityFallback implements plugin.OnCapacityFallback.
func (e *Extension) OnCapacityFallback(ctx context.Context, t *tank.Tank, fallback types.Quantity) error {
	return e.record(ctx, ActionCapacityFallback, SeverityWarning, OutcomeSuccess,
		ResourceTank, t.ID.String(), CategoryIntegrity, nil,
		"declared_liters", t.CapacityLiters.String(),
		"fallback_liters", fallback.String(),
	)
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnAllocated implements plugin.OnAllocated.
func (e *Extension) OnAllocated(ctx context.Context, en *mrn.Entry) error {
	return e.record(ctx, ActionMRNAllocated, SeverityInfo, OutcomeSuccess,
		ResourceMRNEntry, en.ID.String(), CategoryInventory, nil,
		"tank_id", en.TankID.String(),
		"mrn", en.MRN,
		"initial_liters", en.InitialLiters.String(),
		"initial_kg", en.InitialKg.String(),
	)
}

// OnMovementRecorded implements plugin.OnMovementRecorded.
func (e *Extension) OnMovementRecorded(ctx context.Context, leg *journal.Leg, t *tank.Tank) error {
	return e.record(ctx, ActionMovementRecorded, SeverityInfo, OutcomeSuccess,
		ResourceLeg, leg.ID.String(), CategoryMovement, nil,
		"tank_id", leg.TankID.String(),
		"mrn", leg.MRN,
		"type", string(leg.Type),
		"liters", leg.Liters.String(),
		"kg", leg.Kg.String(),
		"tank_liters", t.CurrentLiters.String(),
	)
}

// OnMovementRejected implements plugin.OnMovementRejected.
func (e *Extension) OnMovementRejected(ctx context.Context, tankID string, legType journal.Type, cause error) error {
	return e.record(ctx, ActionMovementRejected, SeverityWarning, OutcomeFailure,
		ResourceTank, tankID, CategoryMovement, cause,
		"type", string(legType),
	)
}

// OnTransferRecorded implements plugin.OnTransferRecorded.
func (e *Extension) OnTransferRecorded(ctx context.Context, out, in *journal.Leg) error {
	return e.record(ctx, ActionTransferRecorded, SeverityInfo, OutcomeSuccess,
		ResourceTransfer, out.TransferID.String(), CategoryMovement, nil,
		"source_tank_id", out.TankID.String(),
		"destination_tank_id", in.TankID.String(),
		"mrn", out.MRN,
		"liters", out.Liters.String(),
		"kg", out.Kg.String(),
	)
}

// OnDanglingReference implements plugin.OnDanglingReference.
func (e *Extension) OnDanglingReference(ctx context.Context, tankID string, operationIDs []string) error {
	return e.record(ctx, ActionOperationDangling, SeverityWarning, OutcomeFailure,
		ResourceTank, tankID, CategoryIntegrity, nil,
		"operation_ids", operationIDs,
	)
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnReconciled implements plugin.OnReconciled.
func (e *Extension) OnReconciled(ctx context.Context, r *reconcile.Record) error {
	return e.record(ctx, ActionReconciliationRecorded, SeverityInfo, OutcomeSuccess,
		ResourceReconciliation, r.ID.String(), CategoryReconciliation, nil,
		recordFields(r)...,
	)
}

// OnDriftDetected implements plugin.OnDriftDetected.
func (e *Extension) OnDriftDetected(ctx context.Context, r *reconcile.Record) error {
	severity := SeverityWarning
	if r.Classification == reconcile.Major {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionDriftDetected, severity, OutcomeSuccess,
		ResourceReconciliation, r.ID.String(), CategoryReconciliation, nil,
		recordFields(r)...,
	)
}

// OnCorrected implements plugin.OnCorrected.
func (e *Extension) OnCorrected(ctx context.Context, leg *journal.Leg, r *reconcile.Record) error {
	return e.record(ctx, ActionCorrectionApplied, SeverityWarning, OutcomeSuccess,
		ResourceLeg, leg.ID.String(), CategoryReconciliation, nil,
		"tank_id", leg.TankID.String(),
		"direction", string(r.Direction),
		"operator_id", r.OperatorID,
		"reason", r.Reason,
		"liters", leg.Liters.String(),
		"kg", leg.Kg.String(),
		"record_id", r.ID.String(),
	)
}

func recordFields(r *reconcile.Record) []any {
	return []any{
		"tank_id", r.TankID.String(),
		"classification", string(r.Classification),
		"trigger", string(r.Trigger),
		"drift_liters", r.DriftLiters.String(),
		"drift_kg", r.DriftKg.String(),
		"relative_drift", r.RelativeDrift.String(),
	}
}

// record builds and sends an audit event if the action is enabled.
// Recorder failures are logged and never propagated.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
