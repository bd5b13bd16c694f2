package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit              []OnInit
	onShutdown          []OnShutdown
	onTankProvisioned   []OnTankProvisioned
	onAllocated         []OnAllocated
	onMovementRecorded  []OnMovementRecorded
	onMovementRejected  []OnMovementRejected
	onTransferRecorded  []OnTransferRecorded
	onCapacityFallback  []OnCapacityFallback
	onReconciled        []OnReconciled
	onDriftDetected     []OnDriftDetected
	onCorrected         []OnCorrected
	onDanglingReference []OnDanglingReference
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: 5 * time.Second,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout bounds how long a single hook call may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnTankProvisioned); ok {
		r.onTankProvisioned = append(r.onTankProvisioned, v)
	}
	if v, ok := p.(OnAllocated); ok {
		r.onAllocated = append(r.onAllocated, v)
	}
	if v, ok := p.(OnMovementRecorded); ok {
		r.onMovementRecorded = append(r.onMovementRecorded, v)
	}
	if v, ok := p.(OnMovementRejected); ok {
		r.onMovementRejected = append(r.onMovementRejected, v)
	}
	if v, ok := p.(OnTransferRecorded); ok {
		r.onTransferRecorded = append(r.onTransferRecorded, v)
	}
	if v, ok := p.(OnCapacityFallback); ok {
		r.onCapacityFallback = append(r.onCapacityFallback, v)
	}
	if v, ok := p.(OnReconciled); ok {
		r.onReconciled = append(r.onReconciled, v)
	}
	if v, ok := p.(OnDriftDetected); ok {
		r.onDriftDetected = append(r.onDriftDetected, v)
	}
	if v, ok := p.(OnCorrected); ok {
		r.onCorrected = append(r.onCorrected, v)
	}
	if v, ok := p.(OnDanglingReference); ok {
		r.onDanglingReference = append(r.onDanglingReference, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnTankProvisioned", reflect.TypeOf((*OnTankProvisioned)(nil)).Elem()},
	{"OnAllocated", reflect.TypeOf((*OnAllocated)(nil)).Elem()},
	{"OnMovementRecorded", reflect.TypeOf((*OnMovementRecorded)(nil)).Elem()},
	{"OnMovementRejected", reflect.TypeOf((*OnMovementRejected)(nil)).Elem()},
	{"OnTransferRecorded", reflect.TypeOf((*OnTransferRecorded)(nil)).Elem()},
	{"OnCapacityFallback", reflect.TypeOf((*OnCapacityFallback)(nil)).Elem()},
	{"OnReconciled", reflect.TypeOf((*OnReconciled)(nil)).Elem()},
	{"OnDriftDetected", reflect.TypeOf((*OnDriftDetected)(nil)).Elem()},
	{"OnCorrected", reflect.TypeOf((*OnCorrected)(nil)).Elem()},
	{"OnDanglingReference", reflect.TypeOf((*OnDanglingReference)(nil)).Elem()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every hook in hooks, logging failures. Hook errors
// never propagate: plugins observe the ledger, they do not veto it.
func emit[T Plugin](ctx context.Context, r *Registry, event string, hooks []T, call func(T) error) {
	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error { return call(h) }); err != nil {
			r.logger.Warn("plugin "+event+" failed",
				"plugin", h.Name(),
				"error", err,
			)
		}
	}
}

func snapshot[T any](r *Registry, hooks *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *hooks
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l interface{}) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, l)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitTankProvisioned notifies OnTankProvisioned hooks.
func (r *Registry) EmitTankProvisioned(ctx context.Context, t *tank.Tank) {
	emit(ctx, r, "OnTankProvisioned", snapshot(r, &r.onTankProvisioned), func(p OnTankProvisioned) error {
		return p.OnTankProvisioned(ctx, t)
	})
}

// EmitAllocated notifies OnAllocated hooks.
func (r *Registry) EmitAllocated(ctx context.Context, e *mrn.Entry) {
	emit(ctx, r, "OnAllocated", snapshot(r, &r.onAllocated), func(p OnAllocated) error {
		return p.OnAllocated(ctx, e)
	})
}

// EmitMovementRecorded notifies OnMovementRecorded hooks.
func (r *Registry) EmitMovementRecorded(ctx context.Context, leg *journal.Leg, t *tank.Tank) {
	emit(ctx, r, "OnMovementRecorded", snapshot(r, &r.onMovementRecorded), func(p OnMovementRecorded) error {
		return p.OnMovementRecorded(ctx, leg, t)
	})
}

// EmitMovementRejected notifies OnMovementRejected hooks.
func (r *Registry) EmitMovementRejected(ctx context.Context, tankID string, legType journal.Type, cause error) {
	emit(ctx, r, "OnMovementRejected", snapshot(r, &r.onMovementRejected), func(p OnMovementRejected) error {
		return p.OnMovementRejected(ctx, tankID, legType, cause)
	})
}

// EmitTransferRecorded notifies OnTransferRecorded hooks.
func (r *Registry) EmitTransferRecorded(ctx context.Context, out, in *journal.Leg) {
	emit(ctx, r, "OnTransferRecorded", snapshot(r, &r.onTransferRecorded), func(p OnTransferRecorded) error {
		return p.OnTransferRecorded(ctx, out, in)
	})
}

// EmitCapacityFallback notifies OnCapacityFallback hooks.
func (r *Registry) EmitCapacityFallback(ctx context.Context, t *tank.Tank, fallback types.Quantity) {
	emit(ctx, r, "OnCapacityFallback", snapshot(r, &r.onCapacityFallback), func(p OnCapacityFallback) error {
		return p.OnCapacityFallback(ctx, t, fallback)
	})
}

// EmitReconciled notifies OnReconciled hooks, then OnDriftDetected hooks
// when the record is not CONSISTENT.
func (r *Registry) EmitReconciled(ctx context.Context, rec *reconcile.Record) {
	emit(ctx, r, "OnReconciled", snapshot(r, &r.onReconciled), func(p OnReconciled) error {
		return p.OnReconciled(ctx, rec)
	})
	if rec.Classification == reconcile.Consistent {
		return
	}
	emit(ctx, r, "OnDriftDetected", snapshot(r, &r.onDriftDetected), func(p OnDriftDetected) error {
		return p.OnDriftDetected(ctx, rec)
	})
}

// EmitCorrected notifies OnCorrected hooks.
func (r *Registry) EmitCorrected(ctx context.Context, leg *journal.Leg, rec *reconcile.Record) {
	emit(ctx, r, "OnCorrected", snapshot(r, &r.onCorrected), func(p OnCorrected) error {
		return p.OnCorrected(ctx, leg, rec)
	})
}

// EmitDanglingReference notifies OnDanglingReference hooks.
func (r *Registry) EmitDanglingReference(ctx context.Context, tankID string, operationIDs []string) {
	emit(ctx, r, "OnDanglingReference", snapshot(r, &r.onDanglingReference), func(p OnDanglingReference) error {
		return p.OnDanglingReference(ctx, tankID, operationIDs)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the movement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
