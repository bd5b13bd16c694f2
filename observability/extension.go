// Package observability provides a metrics extension for the fuel ledger
// that records event counts and drift sizes through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/plugin"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnTankProvisioned   = (*MetricsExtension)(nil)
	_ plugin.OnAllocated         = (*MetricsExtension)(nil)
	_ plugin.OnMovementRecorded  = (*MetricsExtension)(nil)
	_ plugin.OnMovementRejected  = (*MetricsExtension)(nil)
	_ plugin.OnTransferRecorded  = (*MetricsExtension)(nil)
	_ plugin.OnCapacityFallback  = (*MetricsExtension)(nil)
	_ plugin.OnReconciled        = (*MetricsExtension)(nil)
	_ plugin.OnDriftDetected     = (*MetricsExtension)(nil)
	_ plugin.OnCorrected         = (*MetricsExtension)(nil)
	_ plugin.OnDanglingReference = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger-wide event metrics.
// Register it as a ledger plugin to track fuel movements and drift.
type MetricsExtension struct {
	factory MetricFactory

	// Tank metrics
	TanksProvisioned  Counter
	CapacityFallbacks Counter

	// Ledger metrics
	Allocations       Counter
	MovementsRecorded Counter
	MovementsRejected Counter
	MovementLiters    Histogram
	TransfersRecorded Counter
	DanglingRefs      Counter

	// Reconciliation metrics
	ReconcileConsistent Counter
	ReconcileMinor      Counter
	ReconcileMajor      Counter
	DriftDetected       Counter
	RelativeDrift       Histogram
	Corrections         Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		TanksProvisioned:  factory.Counter("fuelledger.tank.provisioned"),
		CapacityFallbacks: factory.Counter("fuelledger.tank.capacity_fallback"),

		Allocations:       factory.Counter("fuelledger.mrn.allocated"),
		MovementsRecorded: factory.Counter("fuelledger.movement.recorded"),
		MovementsRejected: factory.Counter("fuelledger.movement.rejected"),
		MovementLiters:    factory.Histogram("fuelledger.movement.liters"),
		TransfersRecorded: factory.Counter("fuelledger.transfer.recorded"),
		DanglingRefs:      factory.Counter("fuelledger.operation.dangling"),

		ReconcileConsistent: factory.Counter("fuelledger.reconcile.consistent"),
		ReconcileMinor:      factory.Counter("fuelledger.reconcile.minor"),
		ReconcileMajor:      factory.Counter("fuelledger.reconcile.major"),
		DriftDetected:       factory.Counter("fuelledger.reconcile.drift_detected"),
		RelativeDrift:       factory.Histogram("fuelledger.reconcile.relative_drift"),
		Corrections:         factory.Counter("fuelledger.correction.applied"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnTankProvisioned implements plugin.OnTankProvisioned.
func (m *MetricsExtension) OnTankProvisioned(_ context.Context, _ *tank.Tank) error {
	m.TanksProvisioned.Inc()
	return nil
}

// OnCapacityFallback implements plugin.OnCapacityFallback.
func (m *MetricsExtension) OnCapacityFallback(_ context.Context, _ *tank.Tank, _ types.Quantity) error {
	m.CapacityFallbacks.Inc()
	return nil
}

// OnAllocated implements plugin.OnAllocated.
func (m *MetricsExtension) OnAllocated(_ context.Context, _ *mrn.Entry) error {
	m.Allocations.Inc()
	return nil
}

// OnMovementRecorded implements plugin.OnMovementRecorded.
func (m *MetricsExtension) OnMovementRecorded(_ context.Context, leg *journal.Leg, _ *tank.Tank) error {
	m.MovementsRecorded.Inc()
	m.MovementLiters.Observe(leg.Liters.Decimal().InexactFloat64())
	return nil
}

// OnMovementRejected implements plugin.OnMovementRejected.
func (m *MetricsExtension) OnMovementRejected(_ context.Context, _ string, _ journal.Type, _ error) error {
	m.MovementsRejected.Inc()
	return nil
}

// OnTransferRecorded implements plugin.OnTransferRecorded.
func (m *MetricsExtension) OnTransferRecorded(_ context.Context, _, _ *journal.Leg) error {
	m.TransfersRecorded.Inc()
	return nil
}

// OnDanglingReference implements plugin.OnDanglingReference.
func (m *MetricsExtension) OnDanglingReference(_ context.Context, _ string, operationIDs []string) error {
	m.DanglingRefs.Add(float64(len(operationIDs)))
	return nil
}

// OnReconciled implements plugin.OnReconciled.
func (m *MetricsExtension) OnReconciled(_ context.Context, r *reconcile.Record) error {
	switch r.Classification {
	case reconcile.Consistent:
		m.ReconcileConsistent.Inc()
	case reconcile.Minor:
		m.ReconcileMinor.Inc()
	case reconcile.Major:
		m.ReconcileMajor.Inc()
	}
	m.RelativeDrift.Observe(r.RelativeDrift.InexactFloat64())
	return nil
}

// OnDriftDetected implements plugin.OnDriftDetected.
func (m *MetricsExtension) OnDriftDetected(_ context.Context, _ *reconcile.Record) error {
	m.DriftDetected.Inc()
	return nil
}

// OnCorrected implements plugin.OnCorrected.
func (m *MetricsExtension) OnCorrected(_ context.Context, _ *journal.Leg, _ *reconcile.Record) error {
	m.Corrections.Inc()
	return nil
}
