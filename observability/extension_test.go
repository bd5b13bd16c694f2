package observability_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/observability"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

func TestReconcileCountersByClassification(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	ctx := context.Background()

	for _, c := range []reconcile.Classification{reconcile.Consistent, reconcile.Major, reconcile.Major} {
		_ = m.OnReconciled(ctx, &reconcile.Record{ID: id.NewRecordID(), Classification: c, RelativeDrift: decimal.RequireFromString("0.012")})
	}

	if got := testutil.ToFloat64(m.ReconcileMajor.(prometheus.Counter)); got != 2 {
		t.Errorf("major = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ReconcileConsistent.(prometheus.Counter)); got != 1 {
		t.Errorf("consistent = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(reg, "fuelledger_reconcile_relative_drift"); n != 1 {
		t.Errorf("relative drift histogram not exported, count = %d", n)
	}
}

func TestMovementMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	ctx := context.Background()
	tk := &tank.Tank{ID: id.NewTankID()}

	_ = m.OnMovementRecorded(ctx, &journal.Leg{Liters: types.Whole(500)}, tk)
	_ = m.OnMovementRejected(ctx, tk.ID.String(), journal.TypeFueling, nil)
	_ = m.OnDanglingReference(ctx, tk.ID.String(), []string{"op-1", "op-2"})

	if got := testutil.ToFloat64(m.MovementsRecorded.(prometheus.Counter)); got != 1 {
		t.Errorf("recorded = %v", got)
	}
	if got := testutil.ToFloat64(m.MovementsRejected.(prometheus.Counter)); got != 1 {
		t.Errorf("rejected = %v", got)
	}
	if got := testutil.ToFloat64(m.DanglingRefs.(prometheus.Counter)); got != 2 {
		t.Errorf("dangling = %v", got)
	}
}

func TestFactoriesShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := observability.NewPrometheusFactory(reg).Counter("fuelledger.movement.recorded")
	b := observability.NewPrometheusFactory(reg).Counter("fuelledger.movement.recorded")

	a.Inc()
	b.Inc()
	if got := testutil.ToFloat64(a.(prometheus.Counter)); got != 2 {
		t.Errorf("shared counter = %v, want 2", got)
	}
}
