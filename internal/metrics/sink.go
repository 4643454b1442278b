package metrics

import (
	"context"

	"github.com/nvandessel/substrate/internal/criticality"
	"github.com/nvandessel/substrate/internal/engine"
	"github.com/nvandessel/substrate/internal/events"
	"github.com/nvandessel/substrate/internal/safemode"
)

var _ events.Sink = (*Registry)(nil)

var safetyStates = []criticality.SafetyState{
	criticality.SafetyDying,
	criticality.SafetySubcritical,
	criticality.SafetyCritical,
	criticality.SafetySupercritical,
}

// Publish updates metrics from an engine event. Unknown kinds are ignored.
// It never fails.
func (r *Registry) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Kind {
	case events.KindTickSummary:
		switch s := e.Payload.(type) {
		case engine.Summary:
			r.recordSummary(&s)
		case *engine.Summary:
			r.recordSummary(s)
		}
	case events.KindCriticality:
		if st, ok := e.Payload.(criticality.State); ok {
			r.recordCriticality(st)
		}
	case events.KindViolation:
		if v, ok := e.Payload.(safemode.Violation); ok {
			r.ViolationsTotal.WithLabelValues(v.Type.String()).Inc()
		}
	case events.KindSafeModeEnter:
		r.SafeModeTransitions.WithLabelValues("enter").Inc()
		r.SafeModeActive.Set(1)
	case events.KindSafeModeExit:
		r.SafeModeTransitions.WithLabelValues("exit").Inc()
		r.SafeModeActive.Set(0)
	}
	return nil
}

func (r *Registry) recordSummary(s *engine.Summary) {
	r.TicksTotal.Inc()
	r.TickDuration.Observe(s.Duration.Seconds())
	r.EnergyTotal.Set(s.Energy)
	r.ActiveNodes.Set(float64(s.Active))
	r.FrontierRatio.Set(s.Frontier)
	r.StridesTotal.Add(float64(s.Strides))
	r.TransferredTotal.Add(nonNegative(s.Transferred))
	r.DissipatedTotal.Add(nonNegative(s.Dissipated))
	r.DecayedTotal.Add(nonNegative(s.EnergyDecayed))
	r.ConservationError.Set(s.ConservationError)
	r.StrengthenedTotal.Add(float64(s.Strengthened))
	r.HighwaysTotal.Add(float64(s.NewHighways))
	r.StimuliTotal.WithLabelValues("applied").Add(float64(s.Stimuli - s.StimulusErrors))
	r.StimuliTotal.WithLabelValues("dropped").Add(float64(s.StimulusErrors))
	r.DecayRate.Set(s.Knobs.Delta)
	r.Alpha.Set(s.Knobs.Alpha)
	if s.SafeMode {
		r.SafeModeActive.Set(1)
	} else {
		r.SafeModeActive.Set(0)
	}
}

func (r *Registry) recordCriticality(st criticality.State) {
	r.SpectralRadius.Set(st.Rho)
	r.PowerIterations.Observe(float64(st.Iterations))
	r.DecayRate.Set(st.Knobs.Delta)
	r.Alpha.Set(st.Knobs.Alpha)
	for _, s := range safetyStates {
		v := 0.0
		if s == st.Safety {
			v = 1
		}
		r.SafetyState.WithLabelValues(s.String()).Set(v)
	}
}

// nonNegative guards counters, which panic on negative additions.
func nonNegative(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}
