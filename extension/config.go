package extension

import "time"

// Store drivers understood by Config.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the imprint extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.imprint" or "imprint" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Currency is the settlement currency (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// Custodian is the account id that stands for the ledger itself.
	// A fresh one is generated when empty.
	Custodian string `json:"custodian" mapstructure:"custodian" yaml:"custodian"`

	// HookTimeout bounds each plugin and receive hook call (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// Driver selects the store backend when no store is set
	// programmatically: memory, sqlite, postgres or mongo (default: memory).
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string for the sqlite, postgres and mongo drivers.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the MongoDB database name (default: "imprint").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:    "usd",
		HookTimeout: 5 * time.Second,
		Driver:      DriverMemory,
		Database:    "imprint",
	}
}
