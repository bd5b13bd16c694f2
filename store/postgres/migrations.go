package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the FuelLedger store.
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
    capacity_ml   BIGINT NOT NULL DEFAULT 0,
    current_ml    BIGINT NOT NULL DEFAULT 0,
    current_g     BIGINT NOT NULL DEFAULT 0,
    density_micro BIGINT NOT NULL DEFAULT 0,
    version       BIGINT NOT NULL DEFAULT 0,
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    initial_ml   BIGINT NOT NULL DEFAULT 0,
    initial_g    BIGINT NOT NULL DEFAULT 0,
    remaining_ml BIGINT NOT NULL DEFAULT 0 CHECK (remaining_ml >= 0),
    remaining_g  BIGINT NOT NULL DEFAULT 0 CHECK (remaining_g >= 0),
    version      BIGINT NOT NULL DEFAULT 1,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fuelledger_entries_tank_mrn ON fuelledger_mrn_entries (tank_id, mrn);
CREATE INDEX IF NOT EXISTS idx_fuelledger_entries_mrn ON fuelledger_mrn_entries (mrn);
CREATE INDEX IF NOT EXISTS idx_fuelledger_entries_active ON fuelledger_mrn_entries (tank_id, created_at)
    WHERE remaining_ml > 0 OR remaining_g > 0;
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
    id                   TEXT PRIMARY KEY,
    sequence             BIGSERIAL NOT NULL UNIQUE,
    type                 TEXT NOT NULL,
    direction            TEXT NOT NULL,
    tank_id              TEXT NOT NULL REFERENCES fuelledger_tanks (id),
    mrn                  TEXT NOT NULL DEFAULT '',
    fixed_entry_id       TEXT REFERENCES fuelledger_mrn_entries (id),
    mobile_entry_id      TEXT REFERENCES fuelledger_mrn_entries (id),
    liters_ml            BIGINT NOT NULL DEFAULT 0 CHECK (liters_ml >= 0),
    kg_g                 BIGINT NOT NULL DEFAULT 0 CHECK (kg_g >= 0),
    related_operation_id TEXT NOT NULL DEFAULT '',
    transfer_id          TEXT NOT NULL DEFAULT '',
    target               TEXT NOT NULL DEFAULT '',
    operator_id          TEXT NOT NULL DEFAULT '',
    reason               TEXT NOT NULL DEFAULT '',
    occurred_at          TIMESTAMPTZ NOT NULL,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK ((fixed_entry_id IS NULL) <> (mobile_entry_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_fuelledger_journal_tank ON fuelledger_journal (tank_id, occurred_at, sequence);
CREATE INDEX IF NOT EXISTS idx_fuelledger_journal_mrn ON fuelledger_journal (mrn, occurred_at, sequence);
CREATE INDEX IF NOT EXISTS idx_fuelledger_journal_transfer ON fuelledger_journal (transfer_id) WHERE transfer_id != '';
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
    id                 TEXT PRIMARY KEY,
    seq                BIGSERIAL NOT NULL,
    tank_id            TEXT NOT NULL REFERENCES fuelledger_tanks (id),
    checked_at         TIMESTAMPTZ NOT NULL,
    expected_ml        BIGINT NOT NULL DEFAULT 0,
    expected_g         BIGINT NOT NULL DEFAULT 0,
    actual_ml          BIGINT NOT NULL DEFAULT 0,
    actual_g           BIGINT NOT NULL DEFAULT 0,
    drift_ml           BIGINT NOT NULL DEFAULT 0,
    drift_g            BIGINT NOT NULL DEFAULT 0,
    relative_drift     TEXT NOT NULL DEFAULT '0',
    capacity_ml        BIGINT NOT NULL DEFAULT 0,
    classification     TEXT NOT NULL,
    run_trigger        TEXT NOT NULL DEFAULT '',
    direction          TEXT NOT NULL DEFAULT '',
    operator_id        TEXT NOT NULL DEFAULT '',
    reason             TEXT NOT NULL DEFAULT '',
    correction_leg_id  TEXT NOT NULL DEFAULT '',
    resolves_record_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_fuelledger_recon_tank ON fuelledger_reconciliations (tank_id, checked_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_fuelledger_recon_class ON fuelledger_reconciliations (tank_id, classification);
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
