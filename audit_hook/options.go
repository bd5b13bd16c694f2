package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions restricts auditing to the named actions. Without
// it every action is recorded.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = actionSet(actions)
	}
}

// WithDisabledActions records everything except the named actions.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = actionSet(allActions())
		}
		for _, a := range actions {
			delete(e.enabled, a)
		}
	}
}

func actionSet(actions []string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}

// allActions lists every action the extension emits.
func allActions() []string {
	return []string{
		ActionTankProvisioned,
		ActionCapacityFallback,
		ActionMRNAllocated,
		ActionMovementRecorded,
		ActionMovementRejected,
		ActionTransferRecorded,
		ActionOperationDangling,
		ActionReconciliationRecorded,
		ActionDriftDetected,
		ActionCorrectionApplied,
	}
}
