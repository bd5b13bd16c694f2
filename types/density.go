package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity is returned for negative quantities, non-positive
// densities and malformed numbers.
var ErrInvalidQuantity = errors.New("fuelledger: invalid quantity")

// InvalidQuantityError carries the offending value. It matches ErrInvalidQuantity.
type InvalidQuantityError struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (e *InvalidQuantityError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("fuelledger: invalid quantity %q: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("fuelledger: invalid quantity for %s (%s): %s", e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidQuantity) succeed.
func (e *InvalidQuantityError) Is(target error) bool { return target == ErrInvalidQuantity }

// DensityScale is the number of fractional digits kept for densities.
const DensityScale = 6

// Density is an operational density in kilograms per liter.
type Density struct {
	d decimal.Decimal
}

// NewDensity rounds d to DensityScale digits.
func NewDensity(d decimal.Decimal) Density {
	return Density{d: d.Round(DensityScale)}
}

// ParseDensity parses a decimal string such as "0.8".
func ParseDensity(s string) (Density, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Density{}, &InvalidQuantityError{Field: "density", Value: s, Reason: "not a decimal number"}
	}
	return NewDensity(d), nil
}

// MustDensity is like ParseDensity but panics on error.
func MustDensity(s string) Density {
	d, err := ParseDensity(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DensityFromMicro builds a density from millionths of a kg/L.
func DensityFromMicro(m int64) Density { return Density{d: decimal.New(m, -DensityScale)} }

// Micro returns the density in millionths of a kg/L.
func (d Density) Micro() int64 { return d.d.Shift(DensityScale).Round(0).IntPart() }

// Decimal returns the underlying decimal value.
func (d Density) Decimal() decimal.Decimal { return d.d }

// IsPositive reports whether the density is usable for conversion.
func (d Density) IsPositive() bool { return d.d.IsPositive() }

// String formats the density with DensityScale digits.
func (d Density) String() string { return d.d.StringFixed(DensityScale) }

// MarshalJSON encodes d as a JSON number.
func (d Density) MarshalJSON() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (d *Density) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*d = Density{}
		return nil
	}
	parsed, err := ParseDensity(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
