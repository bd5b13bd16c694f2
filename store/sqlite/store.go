package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	fuelstore "github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/tank"
)

// compile-time interface check
var _ fuelstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("fuelledger/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: fuelledger/sqlite: %w", fuelledger.ErrMigrationFailed, err)
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return mapWriteErr(err, fuelledger.ErrAlreadyExists)
}

func (s *Store) GetTank(ctx context.Context, tankID id.TankID) (*tank.Tank, error) {
	m := new(tankModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", tankID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fuelledger.ErrTankNotFound
		}
		return nil, err
	}
	return fromTankModel(m)
}

func (s *Store) ListTanks(ctx context.Context, opts tank.ListOpts) ([]*tank.Tank, error) {
	var models []tankModel
	q := s.sdb.NewSelect(&models)

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	m := new(entryModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", entryID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fuelledger.ErrEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(m)
}

func (s *Store) ListEntries(ctx context.Context, tankID id.TankID, opts mrn.ListOpts) ([]*mrn.Entry, error) {
	var models []entryModel
	q := s.sdb.NewSelect(&models).Where("tank_id = ?", tankID.String())

	if opts.ActiveOnly {
		q = q.Where("(remaining_ml > 0 OR remaining_g > 0)")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromEntryModels(models)
}

func (s *Store) ListEntriesByMRN(ctx context.Context, number string) ([]*mrn.Entry, error) {
	var models []entryModel
	err := s.sdb.NewSelect(&models).
		Where("mrn = ?", number).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromEntryModels(models)
}

func fromEntryModels(models []entryModel) ([]*mrn.Entry, error) {
	result := make([]*mrn.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Journal Store ====================

func (s *Store) ListLegs(ctx context.Context, jq journal.Query) ([]*journal.Leg, error) {
	var models []legModel
	q := s.sdb.NewSelect(&models)

	if !jq.TankID.IsNil() {
		q = q.Where("tank_id = ?", jq.TankID.String())
	}
	if jq.MRN != "" {
		q = q.Where("mrn = ?", jq.MRN)
	}
	if !jq.Range.From.IsZero() {
		q = q.Where("occurred_at >= ?", jq.Range.From.UTC())
	}
	if !jq.Range.To.IsZero() {
		q = q.Where("occurred_at < ?", jq.Range.To.UTC())
	}
	if jq.After != nil {
		at := jq.After.OccurredAt.UTC()
		q = q.Where("(occurred_at > ? OR (occurred_at = ? AND sequence > ?))", at, at, jq.After.Sequence)
	}
	if jq.Limit > 0 {
		q = q.Limit(jq.Limit)
	}
	q = q.OrderExpr("occurred_at ASC, sequence ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

func (s *Store) LatestRecord(ctx context.Context, tankID id.TankID) (*reconcile.Record, error) {
	m := new(recordModel)
	err := s.sdb.NewSelect(m).
		Where("tank_id = ?", tankID.String()).
		OrderExpr("checked_at DESC, seq DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fuelledger.ErrRecordNotFound
		}
		return nil, err
	}
	return fromRecordModel(m)
}

func (s *Store) ListRecords(ctx context.Context, tankID id.TankID, opts reconcile.ListOpts) ([]*reconcile.Record, error) {
	var models []recordModel
	q := s.sdb.NewSelect(&models).Where("tank_id = ?", tankID.String())

	if opts.Classification != "" {
		q = q.Where("classification = ?", string(opts.Classification))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("checked_at DESC, seq DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

func now() time.Time {
	return time.Now().UTC()
}
