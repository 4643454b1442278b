package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nvandessel/substrate/internal/criticality"
	"github.com/nvandessel/substrate/internal/engine"
	"github.com/nvandessel/substrate/internal/events"
	"github.com/nvandessel/substrate/internal/safemode"
)

func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	m, ok := c.(prometheus.Metric)
	if !ok {
		t.Fatalf("%T is not a single metric", c)
	}
	var metric dto.Metric
	if err := m.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	switch {
	case metric.Counter != nil:
		return metric.Counter.GetValue()
	case metric.Gauge != nil:
		return metric.Gauge.GetValue()
	case metric.Histogram != nil:
		return float64(metric.Histogram.GetSampleCount())
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func publish(t *testing.T, r *Registry, kind events.Kind, payload any) {
	t.Helper()
	if err := r.Publish(context.Background(), events.New(kind, 1, time.Now(), payload)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.TicksTotal == nil || r.SpectralRadius == nil || r.ViolationsTotal == nil {
		t.Error("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestPublish_Summary(t *testing.T) {
	r := NewRegistry()
	s := engine.Summary{
		Tick:           3,
		Duration:       2 * time.Millisecond,
		Stimuli:        3,
		StimulusErrors: 1,
		Active:         4,
		Frontier:       0.25,
		Energy:         1.5,
		Strides:        6,
		Transferred:    0.4,
		Dissipated:     0.1,
		EnergyDecayed:  0.05,
		Strengthened:   2,
		Knobs:          criticality.Knobs{Delta: 0.04, Alpha: 0.1},
		SafeMode:       true,
	}
	publish(t, r, events.KindTickSummary, s)
	publish(t, r, events.KindTickSummary, &s)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"ticks", r.TicksTotal, 2},
		{"tick duration samples", r.TickDuration, 2},
		{"energy", r.EnergyTotal, 1.5},
		{"active", r.ActiveNodes, 4},
		{"frontier", r.FrontierRatio, 0.25},
		{"strides", r.StridesTotal, 12},
		{"transferred", r.TransferredTotal, 0.8},
		{"strengthened", r.StrengthenedTotal, 4},
		{"decay rate", r.DecayRate, 0.04},
		{"safe mode", r.SafeModeActive, 1},
		{"applied stimuli", r.StimuliTotal.WithLabelValues("applied"), 4},
		{"dropped stimuli", r.StimuliTotal.WithLabelValues("dropped"), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := value(t, tt.c); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestPublish_NegativeDeltasIgnored(t *testing.T) {
	r := NewRegistry()
	publish(t, r, events.KindTickSummary, engine.Summary{Transferred: -1e-15, EnergyDecayed: -1})
	if got := value(t, r.TransferredTotal); got != 0 {
		t.Errorf("transferred = %v, want 0", got)
	}
}

func TestPublish_Criticality(t *testing.T) {
	r := NewRegistry()
	publish(t, r, events.KindCriticality, criticality.State{
		Rho:        1.25,
		Safety:     criticality.SafetySupercritical,
		Iterations: 12,
		Knobs:      criticality.Knobs{Delta: 0.05, Alpha: 0.12},
	})

	if got := value(t, r.SpectralRadius); got != 1.25 {
		t.Errorf("rho = %v, want 1.25", got)
	}
	if got := value(t, r.SafetyState.WithLabelValues("supercritical")); got != 1 {
		t.Errorf("supercritical = %v, want 1", got)
	}
	if got := value(t, r.SafetyState.WithLabelValues("critical")); got != 0 {
		t.Errorf("critical = %v, want 0", got)
	}
	if got := value(t, r.Alpha); got != 0.12 {
		t.Errorf("alpha = %v, want 0.12", got)
	}
}

func TestPublish_SafeMode(t *testing.T) {
	r := NewRegistry()
	publish(t, r, events.KindViolation, safemode.Violation{Type: safemode.TripwireFrontier})
	publish(t, r, events.KindViolation, safemode.Violation{Type: safemode.TripwireFrontier})
	publish(t, r, events.KindSafeModeEnter, &safemode.Transition{To: safemode.StateSafeMode})

	if got := value(t, r.ViolationsTotal.WithLabelValues("frontier")); got != 2 {
		t.Errorf("frontier violations = %v, want 2", got)
	}
	if got := value(t, r.SafeModeActive); got != 1 {
		t.Errorf("safe mode = %v, want 1", got)
	}

	publish(t, r, events.KindSafeModeExit, &safemode.Transition{To: safemode.StateNormal})
	if got := value(t, r.SafeModeActive); got != 0 {
		t.Errorf("safe mode after exit = %v, want 0", got)
	}
	if got := value(t, r.SafeModeTransitions.WithLabelValues("exit")); got != 1 {
		t.Errorf("exit transitions = %v, want 1", got)
	}
}

func TestPublish_IgnoresUnknown(t *testing.T) {
	r := NewRegistry()
	publish(t, r, events.KindStride, "not a record")
	publish(t, r, events.KindTickSummary, "wrong payload")
	if got := value(t, r.TicksTotal); got != 0 {
		t.Errorf("ticks = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	publish(t, r, events.KindTickSummary, engine.Summary{Energy: 2})

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"substrate_ticks_total 1", "substrate_energy_total 2"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition missing %q", name)
		}
	}
}
