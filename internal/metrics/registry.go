// Package metrics exposes engine telemetry as Prometheus metrics. A Registry
// implements events.Sink, so it can sit next to the event log behind
// events.Multi.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the engine
type Registry struct {
	// Tick Metrics
	TicksTotal        prometheus.Counter
	TickDuration      prometheus.Histogram
	EnergyTotal       prometheus.Gauge
	ActiveNodes       prometheus.Gauge
	FrontierRatio     prometheus.Gauge
	StridesTotal      prometheus.Counter
	TransferredTotal  prometheus.Counter
	DissipatedTotal   prometheus.Counter
	DecayedTotal      prometheus.Counter
	ConservationError prometheus.Gauge
	StrengthenedTotal prometheus.Counter
	HighwaysTotal     prometheus.Counter
	StimuliTotal      *prometheus.CounterVec

	// Control Metrics
	SpectralRadius      prometheus.Gauge
	PowerIterations     prometheus.Histogram
	DecayRate           prometheus.Gauge
	Alpha               prometheus.Gauge
	SafetyState         *prometheus.GaugeVec
	SafeModeActive      prometheus.Gauge
	ViolationsTotal     *prometheus.CounterVec
	SafeModeTransitions *prometheus.CounterVec

	registry *prometheus.Registry
	mu       sync.Mutex
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initTickMetrics()
	r.initControlMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
