package observability

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory backed by a Prometheus registerer.
// Dots in metric names become underscores. Asking twice for the same name
// returns the same collector.
type PrometheusFactory struct {
	reg     prometheus.Registerer
	buckets []float64

	mu         sync.Mutex
	collectors map[string]prometheus.Collector
}

// PrometheusOption configures a PrometheusFactory.
type PrometheusOption func(*PrometheusFactory)

// WithBuckets sets the histogram buckets. Defaults to prometheus.DefBuckets.
func WithBuckets(buckets ...float64) PrometheusOption {
	return func(f *PrometheusFactory) {
		f.buckets = buckets
	}
}

// NewPrometheusFactory creates a factory that registers into reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusFactory(reg prometheus.Registerer, opts ...PrometheusOption) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := &PrometheusFactory{
		reg:        reg,
		buckets:    prometheus.DefBuckets,
		collectors: make(map[string]prometheus.Collector),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	return register(f, name, func(n string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: n, Help: helpText(name)})
	})
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	return register(f, name, func(n string) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{Name: n, Help: helpText(name), Buckets: f.buckets})
	})
}

// Gauge implements MetricFactory.
func (f *PrometheusFactory) Gauge(name string) Gauge {
	return register(f, name, func(n string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: n, Help: helpText(name)})
	})
}

func register[C prometheus.Collector](f *PrometheusFactory, name string, build func(string) C) C {
	n := metricName(name)

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.collectors[n].(C); ok {
		return c
	}

	c := build(n)
	if err := f.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				c = existing
			}
		}
	}
	f.collectors[n] = c
	return c
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func helpText(name string) string {
	return "imprint metric " + name
}
