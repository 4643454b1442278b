package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTickMetrics() {
	r.TicksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "substrate_ticks_total",
			Help: "Total number of completed ticks",
		},
	)

	r.TickDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "substrate_tick_duration_seconds",
			Help:    "Wall time spent inside a tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)

	r.EnergyTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "substrate_energy_total",
			Help: "Sum of node energy at the end of the last tick",
		},
	)

	r.ActiveNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "substrate_active_nodes",
			Help: "Nodes at or above threshold in the last tick",
		},
	)

	r.FrontierRatio = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "substrate_frontier_ratio",
			Help: "Active nodes as a fraction of all nodes",
		},
	)

	r.StridesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "substrate_strides_total",
			Help: "Total number of executed strides",
		},
	)

	r.TransferredTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "substrate_energy_transferred_total",
			Help: "Energy moved out of source nodes by strides",
		},
	)

	r.DissipatedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "substrate_energy_dissipated_total",
			Help: "Energy lost to stickiness during transfer",
		},
	)

	r.DecayedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "substrate_energy_decayed_total",
			Help: "Energy removed by the activation decay clock",
		},
	)

	r.ConservationError = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "substrate_conservation_error",
			Help: "Staged energy change not explained by dissipation in the last tick",
		},
	)

	r.StrengthenedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "substrate_links_strengthened_total",
			Help: "Total number of Hebbian link updates",
		},
	)

	r.HighwaysTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "substrate_highways_total",
			Help: "Links that crossed the highway weight threshold",
		},
	)

	r.StimuliTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "substrate_stimuli_total",
			Help: "Stimuli drained at tick boundaries",
		},
		[]string{"result"},
	)
}
