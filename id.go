package fuelledger

import "github.com/xraph/fuelledger/id"

// ID is the primary identifier type for all FuelLedger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
