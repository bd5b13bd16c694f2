package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the FuelLedger store (SQLite).
var Migrations = migrate.NewGroup("fuelledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_fuelledger_tanks",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fuelledger_tanks (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    kind          TEXT NOT NULL DEFAULT 'fixed',
    capacity_ml   INTEGER NOT NULL DEFAULT 0,
    current_ml    INTEGER NOT NULL DEFAULT 0,
    current_g     INTEGER NOT NULL DEFAULT 0,
    density_micro INTEGER NOT NULL DEFAULT 0,
    version       INTEGER NOT NULL DEFAULT 0,
    metadata      TEXT NOT NULL DEFAULT '{}',
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_fuelledger_tanks_kind ON fuelledger_tanks (kind, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fuelledger_tanks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fuelledger_mrn_entries",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fuelledger_mrn_entries (
    id           TEXT PRIMARY KEY,
    tank_id      TEXT NOT NULL REFERENCES fuelledger_tanks (id),
    tank_kind    TEXT NOT NULL DEFAULT 'fixed',
    mrn          TEXT NOT NULL,
    initial_ml   INTEGER NOT NULL DEFAULT 0,
    initial_g    INTEGER NOT NULL DEFAULT 0,
    remaining_ml INTEGER NOT NULL DEFAULT 0 CHECK (remaining_ml >= 0),
    remaining_g  INTEGER NOT NULL DEFAULT 0 CHECK (remaining_g >= 0),
    version      INTEGER NOT NULL DEFAULT 1,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fuelledger_entries_tank_mrn ON fuelledger_mrn_entries (tank_id, mrn);
CREATE INDEX IF NOT EXISTS idx_fuelledger_entries_mrn ON fuelledger_mrn_entries (mrn);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fuelledger_mrn_entries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fuelledger_journal",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fuelledger_journal (
    sequence             INTEGER PRIMARY KEY AUTOINCREMENT,
    id                   TEXT NOT NULL UNIQUE,
    type                 TEXT NOT NULL,
    direction            TEXT NOT NULL,
    tank_id              TEXT NOT NULL REFERENCES fuelledger_tanks (id),
    mrn                  TEXT NOT NULL DEFAULT '',
    fixed_entry_id       TEXT REFERENCES fuelledger_mrn_entries (id),
    mobile_entry_id      TEXT REFERENCES fuelledger_mrn_entries (id),
    liters_ml            INTEGER NOT NULL DEFAULT 0 CHECK (liters_ml >= 0),
    kg_g                 INTEGER NOT NULL DEFAULT 0 CHECK (kg_g >= 0),
    related_operation_id TEXT NOT NULL DEFAULT '',
    transfer_id          TEXT NOT NULL DEFAULT '',
    target               TEXT NOT NULL DEFAULT '',
    operator_id          TEXT NOT NULL DEFAULT '',
    reason               TEXT NOT NULL DEFAULT '',
    occurred_at          TIMESTAMP NOT NULL,
    created_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK ((fixed_entry_id IS NULL) <> (mobile_entry_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_fuelledger_journal_tank ON fuelledger_journal (tank_id, occurred_at, sequence);
CREATE INDEX IF NOT EXISTS idx_fuelledger_journal_mrn ON fuelledger_journal (mrn, occurred_at, sequence);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fuelledger_journal`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fuelledger_reconciliations",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fuelledger_reconciliations (
    seq                INTEGER PRIMARY KEY AUTOINCREMENT,
    id                 TEXT NOT NULL UNIQUE,
    tank_id            TEXT NOT NULL REFERENCES fuelledger_tanks (id),
    checked_at         TIMESTAMP NOT NULL,
    expected_ml        INTEGER NOT NULL DEFAULT 0,
    expected_g         INTEGER NOT NULL DEFAULT 0,
    actual_ml          INTEGER NOT NULL DEFAULT 0,
    actual_g           INTEGER NOT NULL DEFAULT 0,
    drift_ml           INTEGER NOT NULL DEFAULT 0,
    drift_g            INTEGER NOT NULL DEFAULT 0,
    relative_drift     TEXT NOT NULL DEFAULT '0',
    capacity_ml        INTEGER NOT NULL DEFAULT 0,
    classification     TEXT NOT NULL,
    run_trigger        TEXT NOT NULL DEFAULT '',
    direction          TEXT NOT NULL DEFAULT '',
    operator_id        TEXT NOT NULL DEFAULT '',
    reason             TEXT NOT NULL DEFAULT '',
    correction_leg_id  TEXT NOT NULL DEFAULT '',
    resolves_record_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_fuelledger_recon_tank ON fuelledger_reconciliations (tank_id, checked_at, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fuelledger_reconciliations`)
				return err
			},
		},
	)
}
