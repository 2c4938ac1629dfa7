package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics adapts the "name + key:value tags" metric calls onto
// prometheus collectors. Collectors are registered lazily on first use of a
// name; the label-name set of that first call is fixed for the name from then
// on, which matches how every call site in this codebase uses tags.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &PrometheusMetrics{
		registry: registry,
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) Increment(name string, tags ...string) {
	labels := parseTags(tags)
	m.mu.Lock()
	counter, ok := m.counters[name]
	if !ok {
		counter = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: sanitizeName(name) + "_total"},
			labelNames(labels),
		)
		m.registry.MustRegister(counter)
		m.counters[name] = counter
	}
	m.mu.Unlock()

	counter.With(labels).Inc()
}

func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...string) {
	labels := parseTags(tags)
	m.mu.Lock()
	gauge, ok := m.gauges[name]
	if !ok {
		gauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: sanitizeName(name)},
			labelNames(labels),
		)
		m.registry.MustRegister(gauge)
		m.gauges[name] = gauge
	}
	m.mu.Unlock()

	gauge.With(labels).Set(value)
}

func parseTags(tags []string) prometheus.Labels {
	labels := make(prometheus.Labels, len(tags))
	for _, tag := range tags {
		key, value, found := strings.Cut(tag, ":")
		if !found {
			value = "true"
		}
		labels[sanitizeName(key)] = value
	}
	return labels
}

func labelNames(labels prometheus.Labels) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	return names
}

func sanitizeName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(name)
}
