// Package types provides the quantity and density value types used across FuelLedger.
package types

import (
	"bytes"

	"github.com/shopspring/decimal"
)

// QuantityScale is the number of fractional digits kept for every quantity.
// Liters are tracked to the milliliter and kilograms to the gram.
const QuantityScale = 3

// Quantity is an amount of fuel in liters or kilograms.
// All arithmetic is fixed-point; binary floating point is never used.
//
// The zero value is a valid zero quantity.
type Quantity struct {
	d decimal.Decimal
}

// NewQuantity rounds d to QuantityScale digits.
func NewQuantity(d decimal.Decimal) Quantity {
	return Quantity{d: d.Round(QuantityScale)}
}

// ParseQuantity parses a decimal string such as "3000" or "2373.702".
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, &InvalidQuantityError{Value: s, Reason: "not a decimal number"}
	}
	return NewQuantity(d), nil
}

// MustQuantity is like ParseQuantity but panics on error. Use for constants.
func MustQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

// Whole returns a quantity of n whole units.
func Whole(n int64) Quantity { return Quantity{d: decimal.NewFromInt(n)} }

// FromMilli builds a quantity from thousandths of a unit, the storage representation.
func FromMilli(m int64) Quantity { return Quantity{d: decimal.New(m, -QuantityScale)} }

// Milli returns the quantity in thousandths of a unit.
func (q Quantity) Milli() int64 { return q.d.Shift(QuantityScale).Round(0).IntPart() }

// Decimal returns the underlying decimal value.
func (q Quantity) Decimal() decimal.Decimal { return q.d }

// Add returns q + o.
func (q Quantity) Add(o Quantity) Quantity { return Quantity{d: q.d.Add(o.d)} }

// Sub returns q - o.
func (q Quantity) Sub(o Quantity) Quantity { return Quantity{d: q.d.Sub(o.d)} }

// Neg returns -q.
func (q Quantity) Neg() Quantity { return Quantity{d: q.d.Neg()} }

// Abs returns |q|.
func (q Quantity) Abs() Quantity { return Quantity{d: q.d.Abs()} }

// Cmp compares q and o, returning -1, 0 or +1.
func (q Quantity) Cmp(o Quantity) int { return q.d.Cmp(o.d) }

// Equal reports exact equality.
func (q Quantity) Equal(o Quantity) bool { return q.d.Equal(o.d) }

// IsZero reports whether q is exactly zero.
func (q Quantity) IsZero() bool { return q.d.IsZero() }

// IsNegative reports whether q < 0.
func (q Quantity) IsNegative() bool { return q.d.IsNegative() }

// IsPositive reports whether q > 0.
func (q Quantity) IsPositive() bool { return q.d.IsPositive() }

// GreaterThan reports whether q > o.
func (q Quantity) GreaterThan(o Quantity) bool { return q.d.GreaterThan(o.d) }

// LessThan reports whether q < o.
func (q Quantity) LessThan(o Quantity) bool { return q.d.LessThan(o.d) }

// Within reports whether |q - o| <= eps.
func (q Quantity) Within(o Quantity, eps Quantity) bool {
	return q.d.Sub(o.d).Abs().LessThanOrEqual(eps.d)
}

// Ratio returns q / of rounded to six digits. A zero divisor yields zero.
func (q Quantity) Ratio(of Quantity) decimal.Decimal {
	if of.d.IsZero() {
		return decimal.Zero
	}
	return q.d.DivRound(of.d, 6)
}

// String formats q with exactly QuantityScale fractional digits.
func (q Quantity) String() string { return q.d.StringFixed(QuantityScale) }

// MarshalJSON encodes q as a JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*q = Quantity{}
		return nil
	}
	parsed, err := ParseQuantity(string(data))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Sum adds all quantities.
func Sum(qs ...Quantity) Quantity {
	var total Quantity
	for _, q := range qs {
		total = total.Add(q)
	}
	return total
}
