package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
)

type recorder struct {
	name string

	mu        sync.Mutex
	movements int
	drifts    int
	recs      int
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnMovementRecorded(context.Context, *journal.Leg, *tank.Tank) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movements++
	return nil
}

func (r *recorder) OnReconciled(context.Context, *reconcile.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs++
	return nil
}

func (r *recorder) OnDriftDetected(context.Context, *reconcile.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drifts++
	return errors.New("drift sink unavailable")
}

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnMovementRecorded(ctx context.Context, _ *journal.Leg, _ *tank.Tank) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(&recorder{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&recorder{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 plugin, got %d", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Error("Get returned unexpected result")
	}
}

func TestImplementedInterfaces(t *testing.T) {
	got := implementedInterfaces(&recorder{name: "a"})
	want := map[string]bool{"OnMovementRecorded": true, "OnReconciled": true, "OnDriftDetected": true}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("unexpected interface %s", name)
		}
	}
}

func TestEmitReconciledDispatchesDrift(t *testing.T) {
	r := quietRegistry()
	rec := &recorder{name: "rec"}
	_ = r.Register(rec)

	ctx := context.Background()
	r.EmitReconciled(ctx, &reconcile.Record{Classification: reconcile.Consistent})
	r.EmitReconciled(ctx, &reconcile.Record{Classification: reconcile.Major})

	if rec.recs != 2 {
		t.Errorf("OnReconciled calls: got %d, want 2", rec.recs)
	}
	if rec.drifts != 1 {
		t.Errorf("OnDriftDetected calls: got %d, want 1", rec.drifts)
	}
}

func TestSlowPluginIsBounded(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	_ = r.Register(slowPlugin{})
	rec := &recorder{name: "rec"}
	_ = r.Register(rec)

	start := time.Now()
	r.EmitMovementRecorded(context.Background(), &journal.Leg{}, &tank.Tank{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emit blocked for %s", elapsed)
	}
	if rec.movements != 1 {
		t.Errorf("later plugins must still run, got %d calls", rec.movements)
	}
}
