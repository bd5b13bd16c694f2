// Package extension provides the Forge extension adapter for the fuel ledger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with automatic dependency discovery,
// DI registration, route mounting, scheduled reconciliation, and
// lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.fuelledger" or
// "fuelledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/fuelledger"
	"github.com/xraph/fuelledger/api"
	"github.com/xraph/fuelledger/observability"
	"github.com/xraph/fuelledger/operator"
	"github.com/xraph/fuelledger/scheduler"
	"github.com/xraph/fuelledger/store"
	"github.com/xraph/fuelledger/store/memory"
	"github.com/xraph/fuelledger/store/mongo"
	"github.com/xraph/fuelledger/store/postgres"
	"github.com/xraph/fuelledger/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "fuelledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "MRN-level aviation fuel custody ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the fuel ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	ledger     *fuelledger.Ledger
	sched      *scheduler.Scheduler
	store      store.Store
	db         *grove.DB
	useGrove   bool
	logger     *slog.Logger
	metrics    bool
	metricsReg prometheus.Registerer
	ledgerOpts []fuelledger.Option
}

// New creates a new fuel ledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Ledger() *fuelledger.Ledger { return e.ledger }

// Scheduler returns the reconciliation scheduler, or nil when disabled.
func (e *Extension) Scheduler() *scheduler.Scheduler { return e.sched }

// Register implements [forge.Extension]. It loads configuration, resolves
// the store, builds the ledger, registers it in the DI container, and
// mounts the HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.resolveStore(fapp); err != nil {
		return err
	}

	l := fuelledger.New(e.store, e.buildLedgerOpts()...)
	e.ledger = l

	if !e.config.DisableScheduler {
		e.sched = scheduler.New(l,
			scheduler.WithSpec(e.config.ReconcileSpec),
			scheduler.WithTimeout(e.config.ReconcileTimeout),
			scheduler.WithLogger(e.logger),
		)
	}

	if err := vessel.Provide(fapp.Container(), func() (*fuelledger.Ledger, error) {
		return e.ledger, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}

	h := api.New(l,
		api.WithLogger(e.logger),
		api.WithBasePath(e.config.BasePath),
		api.WithOperatorConfig(operator.Config{
			Secret:      []byte(e.config.OperatorSecret),
			TrustHeader: e.config.TrustOperatorHeader,
			Issuer:      e.config.OperatorIssuer,
		}),
	)
	if err := fapp.Router().Handle(e.config.BasePath, h.Router()); err != nil {
		return fmt.Errorf("fuelledger: mount routes: %w", err)
	}
	return nil
}

// resolveStore picks the store: an explicit one, a grove database passed
// in or found in the container, or the in-memory store.
func (e *Extension) resolveStore(fapp forge.App) error {
	if e.store != nil {
		return nil
	}

	if e.db == nil && e.useGrove {
		var (
			db  *grove.DB
			err error
		)
		if e.config.GroveDatabase != "" {
			db, err = vessel.InjectNamed[*grove.DB](fapp.Container(), e.config.GroveDatabase)
		} else {
			db, err = vessel.Inject[*grove.DB](fapp.Container())
		}
		if err != nil {
			return fmt.Errorf("fuelledger: resolve grove database %q: %w", e.config.GroveDatabase, err)
		}
		e.db = db
	}

	if e.db == nil {
		e.Logger().Warn("fuelledger: no store configured, using in-memory store")
		e.store = memory.New()
		return nil
	}

	s, err := StoreFor(e.db)
	if err != nil {
		return err
	}
	e.store = s
	return nil
}

// StoreFor builds the store backend matching the grove driver of db.
func StoreFor(db *grove.DB) (store.Store, error) {
	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("fuelledger: unsupported grove driver %q", name)
	}
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.ledger == nil {
		return errors.New("fuelledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.ledger.Start(ctx); err != nil {
			return err
		}
	}

	if e.sched != nil {
		if err := e.sched.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	defer e.MarkStopped()

	var errs []error
	if e.sched != nil {
		errs = append(errs, e.sched.Stop(ctx))
	}
	if e.ledger != nil {
		errs = append(errs, e.ledger.Stop())
	}
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("fuelledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs fuelledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []fuelledger.Option {
	opts := make([]fuelledger.Option, 0, len(e.ledgerOpts)+3)

	cfg := fuelledger.DefaultConfig()
	cfg.OperationTimeout = e.config.OperationTimeout
	cfg.StalenessWindow = e.config.StalenessWindow
	cfg.ReconcileConcurrency = e.config.ReconcileConcurrency

	opts = append(opts, fuelledger.WithLogger(e.logger), fuelledger.WithConfig(cfg))

	if e.metrics {
		factory := observability.NewPrometheusFactory(e.metricsReg)
		opts = append(opts, fuelledger.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	// Pass-through options come last so they can override the above.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("fuelledger: configuration is required but not found in config files; " +
				"ensure 'extensions.fuelledger' or 'fuelledger' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	if e.config.GroveDatabase != "" {
		e.useGrove = true
	}

	e.Logger().Debug("fuelledger: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_scheduler", e.config.DisableScheduler),
		forge.F("base_path", e.config.BasePath),
		forge.F("reconcile_spec", e.config.ReconcileSpec),
		forge.F("operation_timeout", e.config.OperationTimeout),
		forge.F("staleness_window", e.config.StalenessWindow),
		forge.F("grove_database", e.config.GroveDatabase),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.fuelledger", "fuelledger"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("fuelledger: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("fuelledger: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.ReconcileSpec == "" {
		cfg.ReconcileSpec = defaults.ReconcileSpec
	}
	if cfg.ReconcileTimeout == 0 {
		cfg.ReconcileTimeout = defaults.ReconcileTimeout
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.StalenessWindow == 0 {
		cfg.StalenessWindow = defaults.StalenessWindow
	}
	if cfg.ReconcileConcurrency == 0 {
		cfg.ReconcileConcurrency = defaults.ReconcileConcurrency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableScheduler {
		yamlConfig.DisableScheduler = true
	}
	if programmaticConfig.TrustOperatorHeader {
		yamlConfig.TrustOperatorHeader = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.ReconcileSpec == "" {
		yamlConfig.ReconcileSpec = programmaticConfig.ReconcileSpec
	}
	if yamlConfig.GroveDatabase == "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}
	if yamlConfig.OperatorSecret == "" {
		yamlConfig.OperatorSecret = programmaticConfig.OperatorSecret
	}
	if yamlConfig.OperatorIssuer == "" {
		yamlConfig.OperatorIssuer = programmaticConfig.OperatorIssuer
	}

	if yamlConfig.ReconcileTimeout == 0 {
		yamlConfig.ReconcileTimeout = programmaticConfig.ReconcileTimeout
	}
	if yamlConfig.OperationTimeout == 0 {
		yamlConfig.OperationTimeout = programmaticConfig.OperationTimeout
	}
	if yamlConfig.StalenessWindow == 0 {
		yamlConfig.StalenessWindow = programmaticConfig.StalenessWindow
	}
	if yamlConfig.ReconcileConcurrency == 0 {
		yamlConfig.ReconcileConcurrency = programmaticConfig.ReconcileConcurrency
	}

	return e.mergeWithDefaults(yamlConfig)
}
