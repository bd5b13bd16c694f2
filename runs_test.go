package fuelledger

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/fuelledger/id"
)

func TestAbortReconcileCancelsEveryRun(t *testing.T) {
	l := &Ledger{runs: make(map[string]map[*reconcileRun]struct{})}
	tankID := id.NewTankID()
	other := id.NewTankID()

	first, doneFirst := l.track(context.Background(), tankID)
	second, doneSecond := l.track(context.Background(), tankID)
	unrelated, doneUnrelated := l.track(context.Background(), other)
	defer doneUnrelated()

	if !l.AbortReconcile(tankID) {
		t.Fatal("expected in-flight runs")
	}
	for i, ctx := range []context.Context{first, second} {
		if !errors.Is(context.Cause(ctx), ErrReconcileAborted) {
			t.Errorf("run %d: cause %v", i, context.Cause(ctx))
		}
	}
	if unrelated.Err() != nil {
		t.Error("run on another tank was cancelled")
	}

	doneFirst()
	if !l.AbortReconcile(tankID) {
		t.Error("second run must stay registered after the first finishes")
	}
	doneSecond()
	if l.AbortReconcile(tankID) {
		t.Error("finished runs must be unregistered")
	}
	if _, ok := l.runs[tankID.String()]; ok {
		t.Error("empty run set left behind")
	}
}
