// Package extension provides the Forge extension adapter for imprint.
//
// It implements the forge.Extension interface to integrate the edition
// ledger into a Forge application with store selection, DI registration
// and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.imprint" or "imprint" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/imprint"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/store"
	"github.com/xraph/imprint/store/driver"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "imprint"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Custodial edition ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// openTimeout bounds connecting to a configured store backend.
const openTimeout = 10 * time.Second

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the imprint ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *imprint.Ledger
	store      store.Store
	ledgerOpts []imprint.Option
}

// New creates a new imprint Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *imprint.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// opens the store, initializes the ledger and registers it in the DI
// container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		defer cancel()

		s, err := driver.Open(ctx, e.config.Driver, e.config.DSN, e.config.Database)
		if err != nil {
			return fmt.Errorf("imprint: open %s store: %w", e.config.Driver, err)
		}
		e.store = s
	}

	opts, err := e.buildLedgerOpts()
	if err != nil {
		return err
	}

	e.engine = imprint.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*imprint.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("imprint: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("imprint: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs imprint.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() ([]imprint.Option, error) {
	opts := make([]imprint.Option, 0, len(e.ledgerOpts)+4)

	opts = append(opts,
		imprint.WithCurrency(e.config.Currency),
		imprint.WithHookTimeout(e.config.HookTimeout),
	)

	if e.config.Custodian != "" {
		custodian, err := id.ParseAccountID(e.config.Custodian)
		if err != nil {
			return nil, fmt.Errorf("imprint: invalid custodian %q: %w", e.config.Custodian, err)
		}
		opts = append(opts, imprint.WithCustodian(custodian))
	}

	if e.config.DisableMigrate {
		opts = append(opts, imprint.WithoutMigrate())
	}

	// Pass-through options win over config-derived ones.
	opts = append(opts, e.ledgerOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("imprint: configuration is required but not found in config files; " +
				"ensure 'extensions.imprint' or 'imprint' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("imprint: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("currency", e.config.Currency),
		forge.F("hook_timeout", e.config.HookTimeout),
		forge.F("driver", e.config.Driver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.imprint", "imprint"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("imprint: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("imprint: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.Currency, programmaticConfig.Currency)
	fill(&yamlConfig.Custodian, programmaticConfig.Custodian)
	fill(&yamlConfig.Driver, programmaticConfig.Driver)
	fill(&yamlConfig.DSN, programmaticConfig.DSN)
	fill(&yamlConfig.Database, programmaticConfig.Database)

	if yamlConfig.HookTimeout == 0 && programmaticConfig.HookTimeout != 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
