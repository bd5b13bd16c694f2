package tank

import (
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/types"
)

type Kind string

const (
	KindFixed  Kind = "fixed"
	KindMobile Kind = "mobile"
)

// Valid reports whether k is a known tank kind.
func (k Kind) Valid() bool {
	return k == KindFixed || k == KindMobile
}

// Declared capacities outside [MinCapacity, MaxCapacity] are treated as corrupt.
var (
	MinCapacity = types.Whole(1)
	MaxCapacity = types.Whole(1_000_000)
)

type Tank struct {
	types.Entity
	ID             id.TankID         `json:"id"`
	Name           string            `json:"name"`
	Kind           Kind              `json:"kind"`
	CapacityLiters types.Quantity    `json:"capacity_liters"`
	CurrentLiters  types.Quantity    `json:"current_liters"`
	CurrentKg      types.Quantity    `json:"current_kg"`
	Density        types.Density     `json:"density"`
	Version        int64             `json:"version"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CapacityValid reports whether the declared capacity lies within
// [MinCapacity, MaxCapacity].
func (t *Tank) CapacityValid() bool {
	return !t.CapacityLiters.LessThan(MinCapacity) && !t.CapacityLiters.GreaterThan(MaxCapacity)
}

// EffectiveCapacity returns the declared capacity, or fallback when the
// declared value is out of bounds. The second result reports whether the
// fallback was used.
func (t *Tank) EffectiveCapacity(fallback types.Quantity) (types.Quantity, bool) {
	if t.CapacityValid() {
		return t.CapacityLiters, false
	}
	return fallback, true
}

// Clone returns a deep copy of t.
func (t *Tank) Clone() *Tank {
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
