package types

import "github.com/shopspring/decimal"

// ToKg converts liters to kilograms at density d.
func ToKg(liters Quantity, d Density) (Quantity, error) {
	if err := checkConversion("liters", liters, d); err != nil {
		return Quantity{}, err
	}
	return NewQuantity(liters.d.Mul(d.d)), nil
}

// ToLiters converts kilograms to liters at density d.
func ToLiters(kg Quantity, d Density) (Quantity, error) {
	if err := checkConversion("kg", kg, d); err != nil {
		return Quantity{}, err
	}
	return Quantity{d: kg.d.DivRound(d.d, QuantityScale)}, nil
}

func checkConversion(field string, q Quantity, d Density) error {
	if !d.IsPositive() {
		return &InvalidQuantityError{Field: "density", Value: d.String(), Reason: "density must be positive"}
	}
	if q.IsNegative() {
		return &InvalidQuantityError{Field: field, Value: q.String(), Reason: "must not be negative"}
	}
	return nil
}

// Tolerance bounds equality checks between quantities.
type Tolerance struct {
	// Epsilon is the absolute slack for "equal" comparisons.
	Epsilon Quantity `json:"epsilon"`
	// Relative is the fractional slack allowed between recorded kg and
	// liters × density.
	Relative decimal.Decimal `json:"relative"`
}

// DefaultTolerance is 0.001 absolute and 0.5% relative.
func DefaultTolerance() Tolerance {
	return Tolerance{
		Epsilon:  MustQuantity("0.001"),
		Relative: decimal.RequireFromString("0.005"),
	}
}

// ConsistentKg reports whether kg agrees with liters × d within tol.
func ConsistentKg(liters, kg Quantity, d Density, tol Tolerance) bool {
	want, err := ToKg(liters, d)
	if err != nil {
		return false
	}
	slack := NewQuantity(want.d.Abs().Mul(tol.Relative)).Add(tol.Epsilon)
	return kg.Within(want, slack)
}
