package fuelledger

import "github.com/xraph/fuelledger/types"

// Re-export common types for convenience so users don't have to import types package.

// Quantity is re-exported from types package.
type Quantity = types.Quantity

// Density is re-exported from types package.
type Density = types.Density

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export quantity constructors
var (
	Whole         = types.Whole
	MustQuantity  = types.MustQuantity
	ParseQuantity = types.ParseQuantity
	MustDensity   = types.MustDensity
	ParseDensity  = types.ParseDensity
	ToKg          = types.ToKg
	ToLiters      = types.ToLiters
	Sum           = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
