package extension

import "time"

// Config holds the fuel ledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.fuelledger" or "fuelledger" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableScheduler turns off periodic reconciliation.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler"`

	// BasePath is the URL prefix for fuel ledger routes (default: "/fuelledger").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// ReconcileSpec is the cron expression for scheduled reconciliation
	// of every tank (default: "@every 15m").
	ReconcileSpec string `json:"reconcile_spec" mapstructure:"reconcile_spec" yaml:"reconcile_spec"`

	// ReconcileTimeout bounds one scheduled run (default: 5m).
	ReconcileTimeout time.Duration `json:"reconcile_timeout" mapstructure:"reconcile_timeout" yaml:"reconcile_timeout"`

	// OperationTimeout bounds every ledger operation (default: 5s).
	OperationTimeout time.Duration `json:"operation_timeout" mapstructure:"operation_timeout" yaml:"operation_timeout"`

	// StalenessWindow is how long a reconciliation record answers status
	// queries (default: 10m).
	StalenessWindow time.Duration `json:"staleness_window" mapstructure:"staleness_window" yaml:"staleness_window"`

	// ReconcileConcurrency bounds parallel tank checks (default: 4).
	ReconcileConcurrency int `json:"reconcile_concurrency" mapstructure:"reconcile_concurrency" yaml:"reconcile_concurrency"`

	// TrustOperatorHeader accepts X-Operator-ID without a token. Only for
	// deployments behind an authenticating proxy.
	TrustOperatorHeader bool `json:"trust_operator_header" mapstructure:"trust_operator_header" yaml:"trust_operator_header"`

	// OperatorSecret is the HMAC key for operator bearer tokens.
	OperatorSecret string `json:"operator_secret" mapstructure:"operator_secret" yaml:"operator_secret"`

	// OperatorIssuer, when set, must match the token issuer.
	OperatorIssuer string `json:"operator_issuer" mapstructure:"operator_issuer" yaml:"operator_issuer"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and auto-constructs
	// the appropriate store based on the driver type (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:             "/fuelledger",
		ReconcileSpec:        "@every 15m",
		ReconcileTimeout:     5 * time.Minute,
		OperationTimeout:     5 * time.Second,
		StalenessWindow:      10 * time.Minute,
		ReconcileConcurrency: 4,
	}
}
