package fuelledger

import (
	"context"
	"slices"
	"sync"

	"github.com/xraph/fuelledger/id"
)

// tankLocks serializes work per tank inside one process. Waiting honors
// the caller's context, so a stuck holder turns into a timeout instead of
// a hang. Store-level row locks cover other processes.
type tankLocks struct {
	mu    sync.Mutex
	locks map[string]*tankLock
}

type tankLock struct {
	ch   chan struct{}
	refs int
}

func newTankLocks() *tankLocks {
	return &tankLocks{locks: make(map[string]*tankLock)}
}

// acquire locks every tank in ids, always in ascending ID order, and
// returns a func that releases them.
func (k *tankLocks) acquire(ctx context.Context, ids ...id.TankID) (func(), error) {
	keys := make([]string, 0, len(ids))
	for _, tid := range ids {
		keys = append(keys, tid.String())
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.unlock(held[i])
		}
	}
	for _, key := range keys {
		if err := k.lock(ctx, key); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (k *tankLocks) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &tankLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.mu.Lock()
		k.drop(key, l)
		k.mu.Unlock()
		return ctx.Err()
	}
}

func (k *tankLocks) unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l := k.locks[key]
	<-l.ch
	k.drop(key, l)
}

// drop must be called with k.mu held.
func (k *tankLocks) drop(key string, l *tankLock) {
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// held returns how many tanks currently have a holder or waiter.
func (k *tankLocks) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
