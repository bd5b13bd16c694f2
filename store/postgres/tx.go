package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/journal"
	"github.com/xraph/fuelledger/mrn"
	"github.com/xraph/fuelledger/reconcile"
	fuelstore "github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/tank"
)

// pgTx runs the write side of one unit inside a READ COMMITTED transaction.
// Tanks are held with SELECT ... FOR UPDATE; entries are guarded by their
// version column.
type pgTx struct {
	tx *pgdriver.PgTx
}

var _ fuelstore.Tx = (*pgTx)(nil)

// WithTx runs fn in a database transaction. The transaction is rolled back
// when fn fails and committed otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx fuelstore.Tx) error) error {
	tx, err := s.pg.BeginTxQuery(ctx, &driver.TxOptions{IsolationLevel: driver.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("fuelledger/postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	return nil
}

func (t *pgTx) LockTank(ctx context.Context, tankID id.TankID) (*tank.Tank, error) {
	m := new(tankModel)
	err := t.tx.NewSelect(m).
		Where("id = $1", tankID.String()).
		ForUpdate().
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fuelledger.ErrTankNotFound
		}
		return nil, mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	return fromTankModel(m)
}

func (t *pgTx) UpdateTank(ctx context.Context, tk *tank.Tank) error {
	m := toTankModel(tk)
	m.Version = tk.Version + 1
	m.UpdatedAt = now()
	res, err := t.tx.NewUpdate(m).
		Where("id = ?", m.ID).
		Where("version = ?", tk.Version).
		Exec(ctx)
	if err != nil {
		return mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fuelledger.ErrConcurrentModification
	}
	tk.Version = m.Version
	tk.UpdatedAt = m.UpdatedAt
	return nil
}

func (t *pgTx) GetEntry(ctx context.Context, entryID id.EntryID) (*mrn.Entry, error) {
	m := new(entryModel)
	err := t.tx.NewSelect(m).
		Where("id = $1", entryID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fuelledger.ErrEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(m)
}

func (t *pgTx) FindEntry(ctx context.Context, tankID id.TankID, number string) (*mrn.Entry, error) {
	m := new(entryModel)
	err := t.tx.NewSelect(m).
		Where("tank_id = $1", tankID.String()).
		Where("mrn = $2", number).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fuelledger.ErrEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(m)
}

func (t *pgTx) ListEntries(ctx context.Context, tankID id.TankID) ([]*mrn.Entry, error) {
	var models []entryModel
	err := t.tx.NewSelect(&models).
		Where("tank_id = $1", tankID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromEntryModels(models)
}

// CreateEntry inserts e at version 1. A unique violation here means another
// unit allocated the same declaration to the tank after our read.
func (t *pgTx) CreateEntry(ctx context.Context, e *mrn.Entry) error {
	m := toEntryModel(e)
	m.Version = 1
	if _, err := t.tx.NewInsert(m).Exec(ctx); err != nil {
		return mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	e.Version = 1
	return nil
}

func (t *pgTx) UpdateEntry(ctx context.Context, e *mrn.Entry) error {
	m := toEntryModel(e)
	m.Version = e.Version + 1
	m.UpdatedAt = now()
	res, err := t.tx.NewUpdate(m).
		Where("id = ?", m.ID).
		Where("version = ?", e.Version).
		Exec(ctx)
	if err != nil {
		return mapWriteErr(err, fuelledger.ErrConcurrentModification)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fuelledger.ErrConcurrentModification
	}
	e.Version = m.Version
	e.UpdatedAt = m.UpdatedAt
	return nil
}

func (t *pgTx) AppendLeg(ctx context.Context, l *journal.Leg) error {
	m := toLegModel(l)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	if err := t.tx.NewInsert(m).Returning("sequence").Scan(ctx, &m.Sequence); err != nil {
		return mapWriteErr(err, fuelledger.ErrAlreadyExists)
	}
	l.Sequence = m.Sequence
	l.CreatedAt = m.CreatedAt
	return nil
}

func (t *pgTx) CreateRecord(ctx context.Context, r *reconcile.Record) error {
	m := toRecordModel(r)
	_, err := t.tx.NewInsert(m).Exec(ctx)
	return mapWriteErr(err, fuelledger.ErrAlreadyExists)
}
