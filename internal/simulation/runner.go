package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/substrate/internal/engine"
	"github.com/nvandessel/substrate/internal/events"
)

// errSinkDown is returned by the sink on ticks where the scenario fails it.
var errSinkDown = errors.New("simulation: sink unavailable")

// controlKinds are retained when a scenario does not keep every event.
var controlKinds = map[events.Kind]bool{
	events.KindCriticality:     true,
	events.KindViolation:       true,
	events.KindSafeModeEnter:   true,
	events.KindSafeModeExit:    true,
	events.KindStimulusDropped: true,
}

// Clock is a manually advanced time source shared by the engine and its
// safe-mode controller.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Runner orchestrates multi-tick simulation experiments against a real
// engine on a virtual clock.
type Runner struct {
	logger *slog.Logger
	sink   events.Sink
	start  time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger handed to the engine.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithSink adds a sink that receives every event alongside the result buffer.
func WithSink(s events.Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// NewRunner creates a simulation runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the scenario and returns the collected results. A cancelled
// ctx stops the run between ticks and returns the ticks completed so far.
func (r *Runner) Run(ctx context.Context, scenario Scenario) (SimulationResult, error) {
	// Phase 1: Build the graph.
	g, err := scenario.Seed.Build()
	if err != nil {
		return SimulationResult{}, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	// Phase 2: Configure the engine.
	p := engine.DefaultParams()
	if scenario.Params != nil {
		p = scenario.Params.Clone()
	}
	p.Telemetry.BackgroundSampling = false

	clock := NewClock(r.start)
	buf := events.NewBuffer(0)
	var current uint64
	sink := events.SinkFunc(func(ctx context.Context, e events.Event) error {
		if scenario.FailPublish != nil && scenario.FailPublish(current) {
			return errSinkDown
		}
		if scenario.KeepEvents || controlKinds[e.Kind] {
			_ = buf.Publish(ctx, e)
		}
		if r.sink != nil {
			return r.sink.Publish(ctx, e)
		}
		return nil
	})

	opts := []engine.Option{engine.WithSink(sink), engine.WithClock(clock.Now)}
	if r.logger != nil {
		opts = append(opts, engine.WithLogger(r.logger))
	}
	e, err := engine.New(g, p, opts...)
	if err != nil {
		return SimulationResult{}, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	result := SimulationResult{Engine: e, Events: buf}

	// Phase 3: Run ticks.
	for i := 0; i < scenario.Ticks; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		current = uint64(i + 1)
		if scenario.BeforeTick != nil {
			scenario.BeforeTick(current, e)
		}
		if scenario.Stimuli != nil {
			for _, s := range scenario.Stimuli(current) {
				if err := e.Inject(s); err != nil {
					return result, fmt.Errorf("scenario %s: tick %d: %w", scenario.Name, current, err)
				}
			}
		}
		sum, err := e.Tick(ctx)
		if err != nil {
			return result, fmt.Errorf("scenario %s: tick %d: %w", scenario.Name, current, err)
		}
		result.Ticks = append(result.Ticks, r.snapshot(i, sum, e))
		clock.Advance(e.Params().Params.Tick)
	}
	return result, nil
}

// snapshot captures energies and link weights after a tick.
func (r *Runner) snapshot(index int, sum *engine.Summary, e *engine.Engine) TickResult {
	g := e.Graph()
	tr := TickResult{
		Index:       index,
		Summary:     *sum,
		Energies:    make(map[string]float64, g.Len()),
		LinkWeights: make(map[string]float64, g.LinkCount()),
	}
	for _, n := range g.Nodes() {
		tr.Energies[n.ID] = n.Energy
	}
	for _, l := range g.Links() {
		tr.LinkWeights[LinkKey(l.Source, l.Target, l.Type)] = l.Weight
	}
	return tr
}

// MustRun runs the scenario with a fresh runner and fails the test on error.
func MustRun(t *testing.T, scenario Scenario) SimulationResult {
	t.Helper()
	result, err := NewRunner().Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("MustRun(%s): %v", scenario.Name, err)
	}
	return result
}

// FormatTickDebug returns a debug string for a tick result.
func FormatTickDebug(tr TickResult) string {
	var b strings.Builder
	s := tr.Summary
	fmt.Fprintf(&b, "Tick %d: active=%d energy=%.6f strides=%d rho=%.4f safe_mode=%t\n",
		s.Tick, s.Active, s.Energy, s.Strides, s.Rho, s.SafeMode)
	for id, v := range tr.Energies {
		fmt.Fprintf(&b, "  node %s: energy=%.6f\n", id, v)
	}
	for k, v := range tr.LinkWeights {
		fmt.Fprintf(&b, "  link %s: weight=%.6f\n", k, v)
	}
	return b.String()
}
