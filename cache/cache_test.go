package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/types"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemory().WithClock(func() time.Time { return now })

	tankID := id.NewTankID()
	rec := &reconcile.Record{ID: id.NewRecordID(), TankID: tankID, Classification: reconcile.Minor,
		DriftLiters: types.Whole(12)}

	if _, err := c.Get(ctx, tankID); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := c.Set(ctx, rec, 10*time.Minute); err != nil {
		t.Fatal(err)
	}

	got, err := c.Get(ctx, tankID)
	if err != nil {
		t.Fatalf("expected hit, got %v", err)
	}
	if got.Classification != reconcile.Minor || !got.DriftLiters.Equal(types.Whole(12)) {
		t.Errorf("unexpected record %+v", got)
	}

	got.Classification = reconcile.Major
	again, _ := c.Get(ctx, tankID)
	if again.Classification != reconcile.Minor {
		t.Error("cache returned a shared record")
	}

	now = now.Add(10 * time.Minute)
	if _, err := c.Get(ctx, tankID); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss at expiry, got %v", err)
	}
	if n := c.Sweep(); n != 1 || c.Len() != 0 {
		t.Errorf("sweep removed %d, %d left", n, c.Len())
	}
}

func TestMemoryInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	rec := &reconcile.Record{ID: id.NewRecordID(), TankID: id.NewTankID()}

	_ = c.Set(ctx, rec, time.Minute)
	if err := c.Invalidate(ctx, rec.TankID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, rec.TankID); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss after invalidate, got %v", err)
	}

	_ = c.Set(ctx, rec, 0)
	if c.Len() != 0 {
		t.Error("zero ttl should not cache")
	}
}
