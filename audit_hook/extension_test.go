package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	audithook "github.com/xraph/fuelledger/audit_hook"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/plugin"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (m *memRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *memRecorder) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Action
	}
	return out
}

func newRegistry(t *testing.T, p plugin.Plugin) *plugin.Registry {
	t.Helper()
	r := plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestDriftEventsCarrySeverity(t *testing.T) {
	rec := &memRecorder{}
	r := newRegistry(t, audithook.New(rec))
	ctx := context.Background()

	r.EmitReconciled(ctx, &reconcile.Record{
		ID:             id.NewRecordID(),
		TankID:         id.NewTankID(),
		Classification: reconcile.Consistent,
		RelativeDrift:  decimal.Zero,
	})
	r.EmitReconciled(ctx, &reconcile.Record{
		ID:             id.NewRecordID(),
		TankID:         id.NewTankID(),
		Classification: reconcile.Major,
		DriftLiters:    types.Whole(-300),
		RelativeDrift:  decimal.RequireFromString("0.0122"),
	})

	got := rec.actions()
	want := []string{
		audithook.ActionReconciliationRecorded,
		audithook.ActionReconciliationRecorded,
		audithook.ActionDriftDetected,
	}
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("actions = %v, want %v", got, want)
		}
	}

	drift := rec.events[2]
	if drift.Severity != audithook.SeverityCritical {
		t.Errorf("MAJOR drift severity = %q", drift.Severity)
	}
	if drift.Metadata["drift_liters"] != "-300.000" {
		t.Errorf("drift_liters = %v", drift.Metadata["drift_liters"])
	}
}

func TestRejectedMovementRecordsCause(t *testing.T) {
	rec := &memRecorder{}
	r := newRegistry(t, audithook.New(rec))

	r.EmitMovementRejected(context.Background(), "tank_1", journal.TypeFueling, errors.New("insufficient fuel"))

	if len(rec.events) != 1 {
		t.Fatalf("expected one event, got %d", len(rec.events))
	}
	evt := rec.events[0]
	if evt.Outcome != audithook.OutcomeFailure || evt.Reason != "insufficient fuel" || evt.ResourceID != "tank_1" {
		t.Errorf("unexpected event: %+v", evt)
	}
	if evt.Metadata["type"] != string(journal.TypeFueling) {
		t.Errorf("type metadata = %v", evt.Metadata["type"])
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	tk := &tank.Tank{ID: id.NewTankID(), Kind: tank.KindFixed, CapacityLiters: types.Whole(0)}

	enabledOnly := &memRecorder{}
	ext := audithook.New(enabledOnly, audithook.WithEnabledActions(audithook.ActionCapacityFallback))
	_ = ext.OnTankProvisioned(ctx, tk)
	_ = ext.OnCapacityFallback(ctx, tk, types.Whole(24500))
	if got := enabledOnly.actions(); len(got) != 1 || got[0] != audithook.ActionCapacityFallback {
		t.Errorf("enabled filter: %v", got)
	}

	disabled := &memRecorder{}
	ext = audithook.New(disabled, audithook.WithDisabledActions(audithook.ActionTankProvisioned))
	_ = ext.OnTankProvisioned(ctx, tk)
	_ = ext.OnCapacityFallback(ctx, tk, types.Whole(24500))
	if got := disabled.actions(); len(got) != 1 || got[0] != audithook.ActionCapacityFallback {
		t.Errorf("disabled filter: %v", got)
	}
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := ext.OnDanglingReference(context.Background(), "tank_1", []string{"op-1"})
	if err != nil {
		t.Fatalf("recorder failure leaked: %v", err)
	}
}
