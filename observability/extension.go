// Package observability provides a metrics extension for imprint that records
// ledger event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnInit            = (*MetricsExtension)(nil)
	_ plugin.OnShutdown        = (*MetricsExtension)(nil)
	_ plugin.OnPublished       = (*MetricsExtension)(nil)
	_ plugin.OnBought          = (*MetricsExtension)(nil)
	_ plugin.OnSupplyIncreased = (*MetricsExtension)(nil)
	_ plugin.OnPriceUpdated    = (*MetricsExtension)(nil)
	_ plugin.OnURIUpdated      = (*MetricsExtension)(nil)
	_ plugin.OnReceive         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// Gauge interface for metric gauges.
type Gauge interface {
	Set(float64)
	Add(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// MetricsExtension records ledger-wide metrics.
// Register it as a ledger plugin to track publishing and sales.
type MetricsExtension struct {
	factory MetricFactory

	// Lifecycle
	Running Gauge

	// Edition metrics
	EditionsPublished Counter
	SupplyIncreases   Counter
	UnitsMinted       Counter
	PriceUpdates      Counter
	URIUpdates        Counter

	// Settlement metrics
	PurchasesAttempted Counter
	PurchasesSettled   Counter
	UnitsSold          Counter
	PurchaseSize       Histogram
	UnitPrice          Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		Running: factory.Gauge("imprint.ledger.running"),

		EditionsPublished: factory.Counter("imprint.edition.published"),
		SupplyIncreases:   factory.Counter("imprint.edition.supply_increased"),
		UnitsMinted:       factory.Counter("imprint.edition.units_minted"),
		PriceUpdates:      factory.Counter("imprint.edition.price_updated"),
		URIUpdates:        factory.Counter("imprint.edition.uri_updated"),

		PurchasesAttempted: factory.Counter("imprint.purchase.attempted"),
		PurchasesSettled:   factory.Counter("imprint.purchase.settled"),
		UnitsSold:          factory.Counter("imprint.purchase.units_sold"),
		PurchaseSize:       factory.Histogram("imprint.purchase.size"),
		UnitPrice:          factory.Histogram("imprint.purchase.unit_price"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	m.Running.Set(1)
	return nil
}

// OnShutdown implements plugin.OnShutdown.
func (m *MetricsExtension) OnShutdown(_ context.Context) error {
	m.Running.Set(0)
	return nil
}

// ──────────────────────────────────────────────────
// Edition hooks
// ──────────────────────────────────────────────────

// OnPublished implements plugin.OnPublished.
func (m *MetricsExtension) OnPublished(_ context.Context, evt *event.Event) error {
	m.EditionsPublished.Inc()
	m.UnitsMinted.Add(float64(evt.Amount))
	return nil
}

// OnSupplyIncreased implements plugin.OnSupplyIncreased.
func (m *MetricsExtension) OnSupplyIncreased(_ context.Context, evt *event.Event) error {
	m.SupplyIncreases.Inc()
	m.UnitsMinted.Add(float64(evt.Amount))
	return nil
}

// OnPriceUpdated implements plugin.OnPriceUpdated.
func (m *MetricsExtension) OnPriceUpdated(_ context.Context, _ *event.Event) error {
	m.PriceUpdates.Inc()
	return nil
}

// OnURIUpdated implements plugin.OnURIUpdated.
func (m *MetricsExtension) OnURIUpdated(_ context.Context, _ *event.Event) error {
	m.URIUpdates.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnReceive implements plugin.OnReceive. It never rejects.
func (m *MetricsExtension) OnReceive(_ context.Context, _ id.ID, _, _ uint64) error {
	m.PurchasesAttempted.Inc()
	return nil
}

// OnBought implements plugin.OnBought.
func (m *MetricsExtension) OnBought(_ context.Context, evt *event.Event) error {
	m.PurchasesSettled.Inc()
	m.UnitsSold.Add(float64(evt.Amount))
	m.PurchaseSize.Observe(float64(evt.Amount))
	m.UnitPrice.Observe(float64(evt.UnitPrice))
	return nil
}
