// Package natspub publishes ledger events to NATS subjects as JSON.
//
// Subjects are "<prefix>.<event>", for example "fuelledger.drift.detected".
// Publishing is fire-and-forget: a failed publish is logged by the plugin
// registry and never affects the movement that produced the event.
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/plugin"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

var (
	_ plugin.Plugin              = (*Publisher)(nil)
	_ plugin.OnShutdown          = (*Publisher)(nil)
	_ plugin.OnTankProvisioned   = (*Publisher)(nil)
	_ plugin.OnAllocated         = (*Publisher)(nil)
	_ plugin.OnMovementRecorded  = (*Publisher)(nil)
	_ plugin.OnMovementRejected  = (*Publisher)(nil)
	_ plugin.OnTransferRecorded  = (*Publisher)(nil)
	_ plugin.OnCapacityFallback  = (*Publisher)(nil)
	_ plugin.OnReconciled        = (*Publisher)(nil)
	_ plugin.OnDriftDetected     = (*Publisher)(nil)
	_ plugin.OnCorrected         = (*Publisher)(nil)
	_ plugin.OnDanglingReference = (*Publisher)(nil)
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "fuelledger"

// Event subject suffixes.
const (
	EventTankProvisioned  = "tank.provisioned"
	EventCapacityFallback = "tank.capacity_fallback"
	EventAllocated        = "mrn.allocated"
	EventMovementRecorded = "movement.recorded"
	EventMovementRejected = "movement.rejected"
	EventTransferRecorded = "transfer.recorded"
	EventReconciled       = "reconcile.recorded"
	EventDriftDetected    = "drift.detected"
	EventCorrected        = "correction.applied"
	EventDangling         = "operation.dangling"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Publisher is a ledger plugin that forwards events to NATS.
type Publisher struct {
	conn   Conn
	owned  *nats.Conn
	prefix string
	now    func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = prefix }
}

// WithClock sets the clock used to stamp envelopes.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// New creates a Publisher over an existing connection. The caller keeps
// ownership of conn.
func New(conn Conn, opts ...Option) *Publisher {
	p := &Publisher{conn: conn, prefix: DefaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials url and returns a Publisher that closes the connection on
// ledger shutdown.
func Connect(url, name string, opts ...Option) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("natspub: connect: %w", err)
	}
	p := New(nc, opts...)
	p.owned = nc
	return p, nil
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "nats-publisher" }

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	err := p.conn.FlushTimeout(2 * time.Second)
	if p.owned != nil {
		p.owned.Close()
	}
	return err
}

func (p *Publisher) publish(event string, data any) error {
	payload, err := json.Marshal(Envelope{Event: event, OccurredAt: p.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("natspub: marshal %s: %w", event, err)
	}
	if err := p.conn.Publish(p.prefix+"."+event, payload); err != nil {
		return fmt.Errorf("natspub: publish %s: %w", event, err)
	}
	return nil
}

// OnTankProvisioned implements plugin.OnTankProvisioned.
func (p *Publisher) OnTankProvisioned(_ context.Context, t *tank.Tank) error {
	return p.publish(EventTankProvisioned, t)
}

// OnCapacityFallback implements plugin.OnCapacityFallback.
func (p *Publisher) OnCapacityFallback(_ context.Context, t *tank.Tank, fallback types.Quantity) error {
	return p.publish(EventCapacityFallback, map[string]any{
		"tank_id":         t.ID.String(),
		"declared_liters": t.CapacityLiters,
		"fallback_liters": fallback,
	})
}

// OnAllocated implements plugin.OnAllocated.
func (p *Publisher) OnAllocated(_ context.Context, e *mrn.Entry) error {
	return p.publish(EventAllocated, e)
}

// OnMovementRecorded implements plugin.OnMovementRecorded.
func (p *Publisher) OnMovementRecorded(_ context.Context, leg *journal.Leg, t *tank.Tank) error {
	return p.publish(EventMovementRecorded, map[string]any{
		"leg":          leg,
		"tank_liters":  t.CurrentLiters,
		"tank_kg":      t.CurrentKg,
		"tank_version": t.Version,
	})
}

// OnMovementRejected implements plugin.OnMovementRejected.
func (p *Publisher) OnMovementRejected(_ context.Context, tankID string, legType journal.Type, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return p.publish(EventMovementRejected, map[string]any{
		"tank_id": tankID,
		"type":    legType,
		"error":   msg,
	})
}

// OnTransferRecorded implements plugin.OnTransferRecorded.
func (p *Publisher) OnTransferRecorded(_ context.Context, out, in *journal.Leg) error {
	return p.publish(EventTransferRecorded, map[string]any{
		"out": out,
		"in":  in,
	})
}

// OnReconciled implements plugin.OnReconciled.
func (p *Publisher) OnReconciled(_ context.Context, r *reconcile.Record) error {
	return p.publish(EventReconciled, r)
}

// OnDriftDetected implements plugin.OnDriftDetected.
func (p *Publisher) OnDriftDetected(_ context.Context, r *reconcile.Record) error {
	return p.publish(EventDriftDetected, r)
}

// OnCorrected implements plugin.OnCorrected.
func (p *Publisher) OnCorrected(_ context.Context, leg *journal.Leg, r *reconcile.Record) error {
	return p.publish(EventCorrected, map[string]any{
		"leg":    leg,
		"record": r,
	})
}

// OnDanglingReference implements plugin.OnDanglingReference.
func (p *Publisher) OnDanglingReference(_ context.Context, tankID string, operationIDs []string) error {
	return p.publish(EventDangling, map[string]any{
		"tank_id":       tankID,
		"operation_ids": operationIDs,
	})
}
