// Package fuelledger tracks aviation fuel under customs declarations (MRNs)
// across fixed and mobile tanks.
//
// FuelLedger is designed as a library, not a service. Import it directly into
// your Go application, or run cmd/fuelledgerd for an HTTP front end. It
// provides:
//
//   - Exact decimal liters and kilograms with density conversion
//   - An MRN ledger with one balance per declaration per tank
//   - An append-only journal of every physical movement
//   - Capacity enforcement with a fallback for corrupt tank data
//   - Reconciliation of tank levels against the ledger, with operator
//     corrections
//   - A consistency status service backed by a staleness cache
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/fuelledger"
//	    "github.com/xraph/fuelledger/store/postgres"
//	)
//
//	db, err := grove.Open(pgdriver.New(), databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := fuelledger.New(postgres.New(db))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// A tank holds fuel at a reference density. Fuel in a tank is accounted for
// by ledger entries, one per MRN:
//
//	entry, err := l.Allocate(ctx, fuelledger.AllocateInput{
//	    TankID: tankID,
//	    MRN:    "BA1111111111111111",
//	    Liters: fuelledger.Whole(3000),
//	})
//
// Every movement writes one journal leg and changes the tank level and the
// entry balance together:
//
//	res, err := l.Movement(ctx, fuelledger.MovementInput{
//	    TankID:             tankID,
//	    Type:               journal.TypeFueling,
//	    MRN:                "BA1111111111111111",
//	    Liters:             fuelledger.Whole(3000),
//	    RelatedOperationID: "op-42",
//	})
//
// Reconciliation compares the tank level with the sum of its entries and
// classifies the drift as CONSISTENT, MINOR (under 1% of capacity), or
// MAJOR:
//
//	rec, err := l.Reconcile(ctx, tankID)
//
// # Quantities
//
// Liters and kilograms are decimals fixed at three places; density has six.
// Arithmetic never goes through floating point, so long runs of small
// movements do not accumulate rounding error.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	tank_01h2xcejqtf2nbrexx3vqjhp41  // Tank ID
//	mrn_01h2xcejqtf2nbrexx3vqjhp41   // Ledger entry ID
//	leg_01h455vb4pex5vsknk084sn02q   // Journal leg ID
package fuelledger
