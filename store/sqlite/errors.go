package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/fuelledger"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// sqliteCode returns the extended result code carried by err, or 0.
func sqliteCode(err error) int {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// mapWriteErr translates driver errors from a write into store sentinels.
// Unique and primary key violations become onConflict.
func mapWriteErr(err error, onConflict error) error {
	if err == nil {
		return nil
	}
	code := sqliteCode(err)
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %w", onConflict, err)
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", fuelledger.ErrConcurrentModification, err)
	}
	return err
}
