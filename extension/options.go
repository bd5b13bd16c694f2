package extension

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/grove"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/plugin"
	"github.com/xraph/fuelledger/store"
)

// Option configures the fuel ledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store from an already opened grove database.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.db = db
	}
}

// WithLedgerOption passes a fuelledger.Option through to the ledger.
func WithLedgerOption(opt fuelledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, fuelledger.WithPlugin(p))
	}
}

// WithPrometheus registers the metrics plugin against reg. A nil reg uses
// the default registerer.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(e *Extension) {
		e.metricsReg = reg
		e.metrics = true
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableScheduler turns off periodic reconciliation.
func WithDisableScheduler() Option {
	return func(e *Extension) { e.config.DisableScheduler = true }
}

// WithBasePath sets the URL prefix for fuel ledger routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithReconcileSpec sets the cron expression for scheduled reconciliation.
func WithReconcileSpec(spec string) Option {
	return func(e *Extension) { e.config.ReconcileSpec = spec }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension will auto-construct the appropriate store backend (postgres/sqlite/mongo)
// based on the grove driver type. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}

// WithLogger sets the structured logger for the ledger, its routes and
// the scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}
