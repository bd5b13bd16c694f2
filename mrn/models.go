package mrn

import (
	"errors"
	"strings"
	"unicode"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

// MaxNumberLength bounds a customs declaration number.
const MaxNumberLength = 35

var errBadNumber = errors.New("customs declaration number must be 1 to 35 letters or digits")

// Entry is the remaining balance of one customs declaration in one tank.
type Entry struct {
	types.Entity
	ID              id.EntryID     `json:"id"`
	TankID          id.TankID      `json:"tank_id"`
	TankKind        tank.Kind      `json:"tank_kind"`
	MRN             string         `json:"mrn"`
	InitialLiters   types.Quantity `json:"initial_liters"`
	InitialKg       types.Quantity `json:"initial_kg"`
	RemainingLiters types.Quantity `json:"remaining_liters"`
	RemainingKg     types.Quantity `json:"remaining_kg"`
	Version         int64          `json:"version"`
}

// Active reports whether any fuel remains under the entry.
func (e *Entry) Active() bool {
	return e.RemainingLiters.IsPositive() || e.RemainingKg.IsPositive()
}

// Clone returns a copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// NormalizeNumber trims and upper-cases a declaration number and checks
// that it is alphanumeric.
func NormalizeNumber(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || len(s) > MaxNumberLength {
		return "", errBadNumber
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return "", errBadNumber
		}
	}
	return s, nil
}
