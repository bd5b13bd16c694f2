package natspub_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/plugin/natspub"
	"github.com/xraph/fuelledger/reconcile"
	"github.com/xraph/fuelledger/types"
)

type msg struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu      sync.Mutex
	msgs    []msg
	failing error
	flushed bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing != nil {
		return c.failing
	}
	c.msgs = append(c.msgs, msg{subject, data})
	return nil
}

func (c *fakeConn) FlushTimeout(time.Duration) error {
	c.flushed = true
	return nil
}

var at = time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)

func TestDriftPublishedUnderPrefix(t *testing.T) {
	conn := &fakeConn{}
	p := natspub.New(conn, natspub.WithPrefix("ops.fuel"), natspub.WithClock(func() time.Time { return at }))

	rec := &reconcile.Record{
		ID:             id.NewRecordID(),
		TankID:         id.NewTankID(),
		Classification: reconcile.Major,
		DriftLiters:    types.Whole(-300),
		RelativeDrift:  decimal.RequireFromString("0.012"),
	}
	if err := p.OnDriftDetected(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	if len(conn.msgs) != 1 || conn.msgs[0].subject != "ops.fuel.drift.detected" {
		t.Fatalf("unexpected messages: %+v", conn.msgs)
	}

	var env struct {
		Event      string          `json:"event"`
		OccurredAt time.Time       `json:"occurred_at"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(conn.msgs[0].data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Event != natspub.EventDriftDetected || !env.OccurredAt.Equal(at) {
		t.Errorf("envelope header: %+v", env)
	}

	var got reconcile.Record
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Classification != reconcile.Major || !got.DriftLiters.Equal(types.Whole(-300)) {
		t.Errorf("record payload: %+v", got)
	}
}

func TestTransferCarriesBothLegs(t *testing.T) {
	conn := &fakeConn{}
	p := natspub.New(conn)
	xfer := id.NewTransferID()

	out := &journal.Leg{ID: id.NewLegID(), Type: journal.TypeTransferOut, TransferID: xfer, Liters: types.Whole(100)}
	in := &journal.Leg{ID: id.NewLegID(), Type: journal.TypeTransferIn, TransferID: xfer, Liters: types.Whole(100)}
	if err := p.OnTransferRecorded(context.Background(), out, in); err != nil {
		t.Fatal(err)
	}

	if conn.msgs[0].subject != natspub.DefaultPrefix+"."+natspub.EventTransferRecorded {
		t.Fatalf("subject = %q", conn.msgs[0].subject)
	}
	var env struct {
		Data struct {
			Out journal.Leg `json:"out"`
			In  journal.Leg `json:"in"`
		} `json:"data"`
	}
	if err := json.Unmarshal(conn.msgs[0].data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Data.Out.Type != journal.TypeTransferOut || env.Data.In.Type != journal.TypeTransferIn {
		t.Errorf("legs: %+v", env.Data)
	}
}

func TestPublishFailureIsReturned(t *testing.T) {
	conn := &fakeConn{failing: errors.New("nats: connection closed")}
	p := natspub.New(conn)

	err := p.OnDanglingReference(context.Background(), "tank_1", []string{"op-1"})
	if err == nil {
		t.Fatal("expected publish error")
	}

	if err := p.OnShutdown(context.Background()); err != nil || !conn.flushed {
		t.Errorf("shutdown flush: err=%v flushed=%v", err, conn.flushed)
	}
}
