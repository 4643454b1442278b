package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initControlMetrics() {
	r.SpectralRadius = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "substrate_spectral_radius",
			Help: "Last sampled spectral radius of the transition operator",
		},
	)

	r.PowerIterations = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "substrate_power_iterations",
			Help:    "Power iterations used per spectral radius sample",
			Buckets: []float64{1, 5, 10, 20, 30, 50, 100},
		},
	)

	r.DecayRate = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "substrate_decay_rate",
			Help: "Current activation decay rate knob",
		},
	)

	r.Alpha = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "substrate_alpha",
			Help: "Current redistribution share knob",
		},
	)

	r.SafetyState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "substrate_safety_state",
			Help: "1 for the current criticality safety state, 0 otherwise",
		},
		[]string{"state"},
	)

	r.SafeModeActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "substrate_safe_mode",
			Help: "Whether safe mode is active (1 = active, 0 = normal)",
		},
	)

	r.ViolationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_tripwire_violations_total",
			Help: "Tripwire violations by type",
		},
		[]string{"tripwire"},
	)

	r.SafeModeTransitions = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_safe_mode_transitions_total",
			Help: "Safe-mode transitions by direction",
		},
		[]string{"direction"},
	)
}
