package extension

import (
	"time"

	"github.com/xraph/imprint"
	"github.com/xraph/imprint/plugin"
	"github.com/xraph/imprint/store"
)

// Option configures the imprint Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine. It takes precedence over
// the configured driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes an imprint.Option through to the underlying engine.
func WithLedgerOption(opt imprint.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, imprint.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithCurrency sets the settlement currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithCustodian sets the custodian account id.
func WithCustodian(custodian string) Option {
	return func(e *Extension) { e.config.Custodian = custodian }
}

// WithHookTimeout bounds each plugin and receive hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HookTimeout = d }
}

// WithDriver selects the store backend and its connection string.
func WithDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Driver = driver
		e.config.DSN = dsn
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
