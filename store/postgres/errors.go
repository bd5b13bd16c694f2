package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/fuelledger"
)

// PostgreSQL error codes the store translates.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapWriteErr translates driver errors from a write into store sentinels.
// Unique violations become onConflict so callers can choose between
// "already exists" and "lost a race".
func mapWriteErr(err error, onConflict error) error {
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", onConflict, err)
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %w", fuelledger.ErrConcurrentModification, err)
	}
	return err
}
