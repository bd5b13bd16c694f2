package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	fuelstore "github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/tank"
)

// mongoTx runs the write side of one unit inside a multi-document
// transaction. Tank and entry updates are conditional on their version.
type mongoTx struct {
	tx *mongodriver.MongoTx
}

var _ fuelstore.Tx = (*mongoTx)(nil)

// WithTx runs fn in a session transaction, aborting it when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx fuelstore.Tx) error) error {
	raw, err := s.mdb.GroveTx(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("fuelledger/mongo: begin: %w", err)
	}
	tx, ok := raw.(*mongodriver.MongoTx)
	if !ok {
		return fmt.Errorf("fuelledger/mongo: unexpected transaction type %T", raw)
	}

	if err := fn(ctx, &mongoTx{tx: tx}); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the unit error wins
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	return nil
}

func (t *mongoTx) LockTank(ctx context.Context, tankID id.TankID) (*tank.Tank, error) {
	var m tankModel
	err := t.tx.NewFind(&m).
		Filter(bson.M{"_id": tankID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fuelledger.ErrTankNotFound
		}
		return nil, mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	return fromTankModel(&m)
}

func (t *mongoTx) UpdateTank(ctx context.Context, tk *tank.Tank) error {
	m := toTankModel(tk)
	m.Version = tk.Version + 1
	m.UpdatedAt = now()

	res, err := t.tx.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": tk.Version}).
		Exec(ctx)
	if err != nil {
		return mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	if res.MatchedCount() == 0 {
		return fuelledger.ErrConcurrentModification
	}
	tk.Version = m.Version
	tk.UpdatedAt = m.UpdatedAt
	return nil
}

func (t *mongoTx) GetEntry(ctx context.Context, entryID id.EntryID) (*mrn.Entry, error) {
	var m entryModel
	err := t.tx.NewFind(&m).
		Filter(bson.M{"_id": entryID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fuelledger.ErrEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(&m)
}

func (t *mongoTx) FindEntry(ctx context.Context, tankID id.TankID, number string) (*mrn.Entry, error) {
	var m entryModel
	err := t.tx.NewFind(&m).
		Filter(bson.M{"tank_id": tankID.String(), "mrn": number}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fuelledger.ErrEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(&m)
}

func (t *mongoTx) ListEntries(ctx context.Context, tankID id.TankID) ([]*mrn.Entry, error) {
	var models []entryModel
	err := t.tx.NewFind(&models).
		Filter(bson.M{"tank_id": tankID.String()}).
		Sort(entryOrder).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromEntryModels(models)
}

func (t *mongoTx) CreateEntry(ctx context.Context, e *mrn.Entry) error {
	m := toEntryModel(e)
	m.Version = 1
	if _, err := t.tx.NewInsert(m).Exec(ctx); err != nil {
		return mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	e.Version = 1
	return nil
}

func (t *mongoTx) UpdateEntry(ctx context.Context, e *mrn.Entry) error {
	m := toEntryModel(e)
	m.Version = e.Version + 1
	m.UpdatedAt = now()

	res, err := t.tx.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": e.Version}).
		Exec(ctx)
	if err != nil {
		return mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	if res.MatchedCount() == 0 {
		return fuelledger.ErrConcurrentModification
	}
	e.Version = m.Version
	e.UpdatedAt = m.UpdatedAt
	return nil
}

func (t *mongoTx) AppendLeg(ctx context.Context, l *journal.Leg) error {
	seq, err := t.nextSeq(ctx, colJournal)
	if err != nil {
		return err
	}
	m := toLegModel(l)
	m.Sequence = seq
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	if _, err := t.tx.NewInsert(m).Exec(ctx); err != nil {
		return mapWriteErr(err, fuelledger.ErrAlreadyExists)
	}
	l.Sequence = seq
	l.CreatedAt = m.CreatedAt
	return nil
}

func (t *mongoTx) CreateRecord(ctx context.Context, r *reconcile.Record) error {
	seq, err := t.nextSeq(ctx, colRecords)
	if err != nil {
		return err
	}
	m := toRecordModel(r)
	m.Seq = seq
	_, err = t.tx.NewInsert(m).Exec(ctx)
	return mapWriteErr(err, fuelledger.ErrAlreadyExists)
}

type counterDoc struct {
	Value int64 `bson:"value"`
}

// nextSeq increments the named counter inside the transaction. Two units
// racing for the counter conflict and one of them retries.
func (t *mongoTx) nextSeq(ctx context.Context, name string) (int64, error) {
	var c counterDoc
	err := t.tx.DB().Collection(colCounters).FindOneAndUpdate(
		t.tx.SessionContext(ctx),
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	return c.Value, nil
}
