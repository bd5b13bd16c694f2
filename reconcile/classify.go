package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/fuelledger/types"
)

// Thresholds configures drift classification.
type Thresholds struct {
	// Epsilon is the largest absolute drift still classified CONSISTENT.
	Epsilon types.Quantity `json:"epsilon"`
	// Minor is the relative drift (fraction of capacity) below which a
	// discrepancy is MINOR. At or above it the discrepancy is MAJOR.
	Minor decimal.Decimal `json:"minor"`
}

// DefaultThresholds is 0.001 L absolute and 1% of capacity.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Epsilon: types.MustQuantity("0.001"),
		Minor:   decimal.RequireFromString("0.01"),
	}
}

// Classify grades drift against capacity and returns the relative drift.
func Classify(drift, capacity types.Quantity, th Thresholds) (Classification, decimal.Decimal) {
	abs := drift.Abs()
	rel := abs.Ratio(capacity)
	if !abs.GreaterThan(th.Epsilon) {
		return Consistent, rel
	}
	if !capacity.IsPositive() {
		return Major, rel
	}
	if abs.Decimal().LessThan(capacity.Decimal().Mul(th.Minor)) {
		return Minor, rel
	}
	return Major, rel
}

// Snapshot is the expected and actual level of a tank at one instant.
type Snapshot struct {
	ExpectedLiters types.Quantity
	ExpectedKg     types.Quantity
	ActualLiters   types.Quantity
	ActualKg       types.Quantity
	Capacity       types.Quantity
	// Density converts Capacity to kilograms for grading kg drift.
	Density types.Density
}

// DriftLiters returns actual minus expected liters.
func (s Snapshot) DriftLiters() types.Quantity { return s.ActualLiters.Sub(s.ExpectedLiters) }

// DriftKg returns actual minus expected kilograms.
func (s Snapshot) DriftKg() types.Quantity { return s.ActualKg.Sub(s.ExpectedKg) }

// CapacityKg returns the capacity at the snapshot density, or zero when
// the density is unusable.
func (s Snapshot) CapacityKg() types.Quantity {
	kg, err := types.ToKg(s.Capacity, s.Density)
	if err != nil {
		return types.Quantity{}
	}
	return kg
}

// Grade fills a record's computed fields from s. Liters and kilograms are
// graded independently and the worse classification wins.
func (s Snapshot) Grade(r *Record, th Thresholds) {
	r.ExpectedLiters, r.ExpectedKg = s.ExpectedLiters, s.ExpectedKg
	r.ActualLiters, r.ActualKg = s.ActualLiters, s.ActualKg
	r.DriftLiters, r.DriftKg = s.DriftLiters(), s.DriftKg()
	r.CapacityLiters = s.Capacity

	byLiters, relLiters := Classify(r.DriftLiters, s.Capacity, th)
	byKg, relKg := Classify(r.DriftKg, s.CapacityKg(), th)

	r.Classification = Worse(byLiters, byKg)
	r.RelativeDrift = decimal.Max(relLiters, relKg)
}

// Worse returns the more severe of a and b.
func Worse(a, b Classification) Classification {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

func (c Classification) severity() int {
	switch c {
	case Major:
		return 2
	case Minor:
		return 1
	default:
		return 0
	}
}
