// Package cache holds the consistency status cache consulted before a
// tank is re-reconciled.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/reconcile"
)

// ErrMiss is returned by Get when no fresh record is cached.
var ErrMiss = errors.New("fuelledger: status cache miss")

// StatusCache stores the latest reconciliation record per tank.
type StatusCache interface {
	Get(ctx context.Context, tankID id.TankID) (*reconcile.Record, error)
	Set(ctx context.Context, r *reconcile.Record, ttl time.Duration) error
	Invalidate(ctx context.Context, tankID id.TankID) error
}

type item struct {
	record  *reconcile.Record
	expires time.Time
}

// Memory is an in-process StatusCache with per-entry expiry.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

var _ StatusCache = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]item), now: time.Now}
}

// WithClock replaces the clock used for expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, tankID id.TankID) (*reconcile.Record, error) {
	m.mu.RLock()
	it, ok := m.items[tankID.String()]
	m.mu.RUnlock()
	if !ok || !m.now().Before(it.expires) {
		return nil, ErrMiss
	}
	r := *it.record
	return &r, nil
}

func (m *Memory) Set(_ context.Context, r *reconcile.Record, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c := *r
	m.mu.Lock()
	m.items[r.TankID.String()] = item{record: &c, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, tankID id.TankID) error {
	m.mu.Lock()
	delete(m.items, tankID.String())
	m.mu.Unlock()
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, it := range m.items {
		if !now.Before(it.expires) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Nop never caches anything.
type Nop struct{}

var _ StatusCache = Nop{}

func (Nop) Get(context.Context, id.TankID) (*reconcile.Record, error)   { return nil, ErrMiss }
func (Nop) Set(context.Context, *reconcile.Record, time.Duration) error { return nil }
func (Nop) Invalidate(context.Context, id.TankID) error                 { return nil }
