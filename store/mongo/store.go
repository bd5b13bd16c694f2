package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	fuelstore "github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/tank"
)

// Collection name constants.
const (
	colTanks    = "fuelledger_tanks"
	colEntries  = "fuelledger_mrn_entries"
	colJournal  = "fuelledger_journal"
	colRecords  = "fuelledger_reconciliations"
	colCounters = "fuelledger_counters"
)

// compile-time interface check
var _ fuelstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. Writes need a
// replica set or sharded cluster because every unit runs in a transaction.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all fuelledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: fuelledger/mongo: migrate %s indexes: %w", fuelledger.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Tank Store ====================

func (s *Store) CreateTank(ctx context.Context, t *tank.Tank) error {
	m := toTankModel(t)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("fuelledger/mongo: create tank: %w", mapWriteErr(err, fuelledger.ErrAlreadyExists))
	}
	return nil
}

func (s *Store) GetTank(ctx context.Context, tankID id.TankID) (*tank.Tank, error) {
	var m tankModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": tankID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fuelledger.ErrTankNotFound
		}
		return nil, fmt.Errorf("fuelledger/mongo: get tank: %w", err)
	}
	return fromTankModel(&m)
}

func (s *Store) ListTanks(ctx context.Context, opts tank.ListOpts) ([]*tank.Tank, error) {
	var models []tankModel

	filter := bson.M{}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fuelledger/mongo: list tanks: %w", err)
	}

	result := make([]*tank.Tank, len(models))
	for i := range models {
		t, err := fromTankModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== MRN Entry Store ====================

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*mrn.Entry, error) {
	var m entryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": entryID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fuelledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("fuelledger/mongo: get entry: %w", err)
	}
	return fromEntryModel(&m)
}

func (s *Store) ListEntries(ctx context.Context, tankID id.TankID, opts mrn.ListOpts) ([]*mrn.Entry, error) {
	var models []entryModel

	filter := bson.M{"tank_id": tankID.String()}
	if opts.ActiveOnly {
		filter["$or"] = bson.A{
			bson.M{"remaining_ml": bson.M{"$gt": 0}},
			bson.M{"remaining_g": bson.M{"$gt": 0}},
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(entryOrder)

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fuelledger/mongo: list entries: %w", err)
	}
	return fromEntryModels(models)
}

func (s *Store) ListEntriesByMRN(ctx context.Context, number string) ([]*mrn.Entry, error) {
	var models []entryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"mrn": number}).
		Sort(entryOrder).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fuelledger/mongo: list entries by mrn: %w", err)
	}
	return fromEntryModels(models)
}

var entryOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// ==================== Journal Store ====================

func (s *Store) ListLegs(ctx context.Context, jq journal.Query) ([]*journal.Leg, error) {
	var models []legModel

	filter := bson.M{}
	if !jq.TankID.IsNil() {
		filter["tank_id"] = jq.TankID.String()
	}
	if jq.MRN != "" {
		filter["mrn"] = jq.MRN
	}
	occurred := bson.M{}
	if !jq.Range.From.IsZero() {
		occurred["$gte"] = jq.Range.From
	}
	if !jq.Range.To.IsZero() {
		occurred["$lt"] = jq.Range.To
	}
	if len(occurred) > 0 {
		filter["occurred_at"] = occurred
	}
	if jq.After != nil {
		filter["$or"] = bson.A{
			bson.M{"occurred_at": bson.M{"$gt": jq.After.OccurredAt}},
			bson.M{"occurred_at": jq.After.OccurredAt, "sequence": bson.M{"$gt": jq.After.Sequence}},
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "sequence", Value: 1}})
	if jq.Limit > 0 {
		q = q.Limit(int64(jq.Limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fuelledger/mongo: list legs: %w", err)
	}

	result := make([]*journal.Leg, len(models))
	for i := range models {
		l, err := fromLegModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

// ==================== Reconciliation Store ====================

var recordOrder = bson.D{{Key: "checked_at", Value: -1}, {Key: "seq", Value: -1}}

func (s *Store) LatestRecord(ctx context.Context, tankID id.TankID) (*reconcile.Record, error) {
	var m recordModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tank_id": tankID.String()}).
		Sort(recordOrder).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fuelledger.ErrRecordNotFound
		}
		return nil, fmt.Errorf("fuelledger/mongo: latest record: %w", err)
	}
	return fromRecordModel(&m)
}

func (s *Store) ListRecords(ctx context.Context, tankID id.TankID, opts reconcile.ListOpts) ([]*reconcile.Record, error) {
	var models []recordModel

	filter := bson.M{"tank_id": tankID.String()}
	if opts.Classification != "" {
		filter["classification"] = string(opts.Classification)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(recordOrder)
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fuelledger/mongo: list records: %w", err)
	}

	result := make([]*reconcile.Record, len(models))
	for i := range models {
		r, err := fromRecordModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// writeConflictCode is the server code for a transaction write conflict.
const writeConflictCode = 112

// mapWriteErr translates driver errors from a write into store sentinels.
// Duplicate keys become onConflict.
func mapWriteErr(err error, onConflict error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", onConflict, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(writeConflictCode) || se.HasErrorLabel("TransientTransactionError")) {
		return fmt.Errorf("%w: %w", fuelledger.ErrConcurrentModification, err)
	}
	return err
}

// migrationIndexes returns the index definitions for all fuelledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTanks: {
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colEntries: {
			{
				Keys:    bson.D{{Key: "tank_id", Value: 1}, {Key: "mrn", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "mrn", Value: 1}}},
			{Keys: bson.D{{Key: "tank_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colJournal: {
			{
				Keys:    bson.D{{Key: "sequence", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tank_id", Value: 1}, {Key: "occurred_at", Value: 1}, {Key: "sequence", Value: 1}}},
			{Keys: bson.D{{Key: "mrn", Value: 1}, {Key: "occurred_at", Value: 1}, {Key: "sequence", Value: 1}}},
		},
		colRecords: {
			{Keys: bson.D{{Key: "tank_id", Value: 1}, {Key: "checked_at", Value: -1}, {Key: "seq", Value: -1}}},
		},
	}
}
