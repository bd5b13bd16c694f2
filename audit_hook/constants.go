package audithook

// Action constants for audit events.
const (
	// Tank actions
	ActionTankProvisioned  = "tank.provisioned"
	ActionCapacityFallback = "capacity.fallback"

	// Ledger actions
	ActionMRNAllocated      = "mrn.allocated"
	ActionMovementRecorded  = "movement.recorded"
	ActionMovementRejected  = "movement.rejected"
	ActionTransferRecorded  = "transfer.recorded"
	ActionOperationDangling = "operation.dangling"

	// Reconciliation actions
	ActionReconciliationRecorded = "reconciliation.recorded"
	ActionDriftDetected          = "drift.detected"
	ActionCorrectionApplied      = "correction.applied"
)

// Resource constants for audit events.
const (
	ResourceTank           = "tank"
	ResourceMRNEntry       = "mrn_entry"
	ResourceLeg            = "journal_leg"
	ResourceTransfer       = "transfer"
	ResourceReconciliation = "reconciliation"
)

// Category constants for audit events.
const (
	CategoryInventory      = "inventory"
	CategoryMovement       = "movement"
	CategoryReconciliation = "reconciliation"
	CategoryIntegrity      = "integrity"
)

// Severity constants for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
