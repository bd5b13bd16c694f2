package fuelledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/fuelledger/id"
)

func TestTankLocksSerialize(t *testing.T) {
	k := newTankLocks()
	tankID := id.NewTankID()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.acquire(context.Background(), tankID)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected one holder at a time, saw %d", maxSeen)
	}
	if n := k.held(); n != 0 {
		t.Errorf("expected no lock entries after release, got %d", n)
	}
}

func TestTankLocksOpposingOrder(t *testing.T) {
	k := newTankLocks()
	a, b := id.NewTankID(), id.NewTankID()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := k.acquire(context.Background(), a, b)
			if err == nil {
				release()
			}
		}()
		go func() {
			defer wg.Done()
			release, err := k.acquire(context.Background(), b, a)
			if err == nil {
				release()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock acquiring tanks in opposing order")
	}
}

func TestTankLocksHonorContext(t *testing.T) {
	k := newTankLocks()
	tankID := id.NewTankID()

	release, err := k.acquire(context.Background(), tankID)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.acquire(ctx, tankID); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	release()
	if n := k.held(); n != 0 {
		t.Errorf("waiter left its entry behind: %d", n)
	}
}

func TestTankLocksDuplicateIDs(t *testing.T) {
	k := newTankLocks()
	tankID := id.NewTankID()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := k.acquire(ctx, tankID, tankID)
	if err != nil {
		t.Fatalf("locking the same tank twice in one call must not self-deadlock: %v", err)
	}
	release()
}
