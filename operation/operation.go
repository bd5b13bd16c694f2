// Package operation describes the external fueling-operation records that
// journal legs may reference, and the batched lookup used to resolve them.
package operation

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/fuelledger/types"
)

// Operation is a business fueling operation owned by an external system.
type Operation struct {
	ID                   string         `json:"id"`
	AircraftRegistration string         `json:"aircraft_registration"`
	DateTime             time.Time      `json:"date_time"`
	Liters               types.Quantity `json:"quantity_liters"`
	Kg                   types.Quantity `json:"quantity_kg"`
}

// Lookup resolves operations in one batched call. IDs that do not exist
// are absent from the returned map; that is not an error.
type Lookup interface {
	GetOperations(ctx context.Context, ids []string) (map[string]*Operation, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, ids []string) (map[string]*Operation, error)

// GetOperations implements Lookup.
func (f LookupFunc) GetOperations(ctx context.Context, ids []string) (map[string]*Operation, error) {
	return f(ctx, ids)
}

// Static is an in-memory Lookup, used in tests and single-process setups.
type Static struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewStatic creates a Static lookup seeded with ops.
func NewStatic(ops ...*Operation) *Static {
	s := &Static{ops: make(map[string]*Operation, len(ops))}
	for _, op := range ops {
		s.ops[op.ID] = op
	}
	return s
}

// Put adds or replaces an operation.
func (s *Static) Put(op *Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ID] = op
}

// GetOperations implements Lookup.
func (s *Static) GetOperations(_ context.Context, ids []string) (map[string]*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]*Operation, len(ids))
	for _, opID := range ids {
		if op, ok := s.ops[opID]; ok {
			found[opID] = op
		}
	}
	return found, nil
}

// Dedupe drops empty and repeated IDs, keeping first-seen order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, opID := range ids {
		if opID == "" {
			continue
		}
		if _, ok := seen[opID]; ok {
			continue
		}
		seen[opID] = struct{}{}
		out = append(out, opID)
	}
	return out
}

// Missing returns the IDs of ids that found does not contain.
func Missing(ids []string, found map[string]*Operation) []string {
	var missing []string
	for _, opID := range Dedupe(ids) {
		if _, ok := found[opID]; !ok {
			missing = append(missing, opID)
		}
	}
	return missing
}
