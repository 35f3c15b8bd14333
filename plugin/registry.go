package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/id"
)

// DefaultTimeout bounds a single plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It caches each plugin under every hook interface it implements.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit            []OnInit
	onShutdown        []OnShutdown
	onPublished       []OnPublished
	onBought          []OnBought
	onSupplyIncreased []OnSupplyIncreased
	onPriceUpdated    []OnPriceUpdated
	onURIUpdated      []OnURIUpdated
	onReceive         []OnReceive
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPublished); ok {
		r.onPublished = append(r.onPublished, v)
	}
	if v, ok := p.(OnBought); ok {
		r.onBought = append(r.onBought, v)
	}
	if v, ok := p.(OnSupplyIncreased); ok {
		r.onSupplyIncreased = append(r.onSupplyIncreased, v)
	}
	if v, ok := p.(OnPriceUpdated); ok {
		r.onPriceUpdated = append(r.onPriceUpdated, v)
	}
	if v, ok := p.(OnURIUpdated); ok {
		r.onURIUpdated = append(r.onURIUpdated, v)
	}
	if v, ok := p.(OnReceive); ok {
		r.onReceive = append(r.onReceive, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns the hook interfaces implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnPublished)(nil)).Elem(), "OnPublished")
	checkInterface(reflect.TypeOf((*OnBought)(nil)).Elem(), "OnBought")
	checkInterface(reflect.TypeOf((*OnSupplyIncreased)(nil)).Elem(), "OnSupplyIncreased")
	checkInterface(reflect.TypeOf((*OnPriceUpdated)(nil)).Elem(), "OnPriceUpdated")
	checkInterface(reflect.TypeOf((*OnURIUpdated)(nil)).Elem(), "OnURIUpdated")
	checkInterface(reflect.TypeOf((*OnReceive)(nil)).Elem(), "OnReceive")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func(ctx context.Context) error {
			return p.OnInit(ctx, ledger)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func(ctx context.Context) error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// Emit dispatches a committed notification to the plugins registered for its
// kind. Plugin failures are logged and never affect the committed operation.
func (r *Registry) Emit(ctx context.Context, evt *event.Event) {
	type call struct {
		name string
		fn   func(context.Context) error
	}

	r.mu.RLock()
	var calls []call
	switch evt.Kind {
	case event.KindPublished:
		for _, p := range r.onPublished {
			calls = append(calls, call{p.Name(), func(ctx context.Context) error { return p.OnPublished(ctx, evt) }})
		}
	case event.KindBought:
		for _, p := range r.onBought {
			calls = append(calls, call{p.Name(), func(ctx context.Context) error { return p.OnBought(ctx, evt) }})
		}
	case event.KindSupplyIncreased:
		for _, p := range r.onSupplyIncreased {
			calls = append(calls, call{p.Name(), func(ctx context.Context) error { return p.OnSupplyIncreased(ctx, evt) }})
		}
	case event.KindPriceUpdated:
		for _, p := range r.onPriceUpdated {
			calls = append(calls, call{p.Name(), func(ctx context.Context) error { return p.OnPriceUpdated(ctx, evt) }})
		}
	case event.KindURIUpdated:
		for _, p := range r.onURIUpdated {
			calls = append(calls, call{p.Name(), func(ctx context.Context) error { return p.OnURIUpdated(ctx, evt) }})
		}
	}
	r.mu.RUnlock()

	for _, c := range calls {
		if err := r.callWithTimeout(ctx, c.name, c.fn); err != nil {
			r.logger.Warn("plugin notification failed",
				"plugin", c.name,
				"kind", string(evt.Kind),
				"edition_id", evt.EditionID,
				"error", err,
			)
		}
	}
}

// Receive runs every receive hook for a pending purchase and stops at the
// first rejection, returning the rejecting plugin's name with its error.
func (r *Registry) Receive(ctx context.Context, buyer id.ID, editionID, amount uint64) (string, error) {
	r.mu.RLock()
	hooks := r.onReceive
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func(ctx context.Context) error {
			return h.OnReceive(ctx, buyer, editionID, amount)
		}); err != nil {
			return h.Name(), err
		}
	}
	return "", nil
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger. The function runs under a child of
// ctx that is cancelled once the call returns or times out, so a hook left
// running after its timeout sees ctx.Done and cannot act for the operation.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func(context.Context) error) error {
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- fn(hctx)
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
