// Package engine runs the substrate tick loop.
//
// One tick drains queued stimuli and parameter updates, computes adaptive
// thresholds, runs stride diffusion, checks conservation, applies the staged
// deltas, decays energy and weights, strengthens sub-threshold links,
// samples criticality, evaluates tripwires and publishes telemetry, in that
// order. Ticks never overlap: a tick requested while another is in flight
// fails with ErrTickInProgress.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvandessel/substrate/internal/criticality"
	"github.com/nvandessel/substrate/internal/events"
	"github.com/nvandessel/substrate/internal/graph"
	"github.com/nvandessel/substrate/internal/ratelimit"
	"github.com/nvandessel/substrate/internal/safemode"
	"github.com/nvandessel/substrate/internal/threshold"
	"github.com/nvandessel/substrate/internal/vecmath"
)

var (
	// ErrTickInProgress is returned when Tick is called while another tick runs.
	ErrTickInProgress = errors.New("engine: tick in progress")

	// ErrInvalidStimulus is returned for non-positive or non-finite energy.
	ErrInvalidStimulus = errors.New("engine: invalid stimulus")

	// ErrQueueFull is returned when the stimulus queue is at its limit.
	ErrQueueFull = errors.New("engine: stimulus queue full")
)

// Stimulus adds energy to a node at the next tick boundary.
type Stimulus struct {
	NodeID string  `json:"node_id"`
	Energy float64 `json:"energy"`
}

// StimulusError reports a stimulus that could not be applied.
type StimulusError struct {
	Stimulus Stimulus
	Err      error
}

func (e *StimulusError) Error() string {
	return fmt.Sprintf("stimulus for %q: %v", e.Stimulus.NodeID, e.Err)
}

func (e *StimulusError) Unwrap() error { return e.Err }

// signals are the external inputs sampled once per tick.
type signals struct {
	coherence  float64
	goal       []float32
	affect     *graph.Affect
	wmHeadroom *float64
	loadDelta  float64
}

// Engine owns a graph and advances it tick by tick.
type Engine struct {
	graph   *graph.Graph
	logger  *slog.Logger
	sink    events.Sink
	nowFunc func() time.Time

	// tickMu serializes ticks; Tick acquires it with TryLock.
	tickMu sync.Mutex

	// mu guards the queues, the base parameters and the signals.
	mu      sync.Mutex
	base    Params
	stimuli []Stimulus
	updates []func(*Params)
	sig     signals

	params atomic.Pointer[Effective]
	last   atomic.Pointer[Summary]
	tick   atomic.Uint64

	// Owned by the tick goroutine.
	noise   *threshold.Tracker
	ctrl    *criticality.Controller
	safe    *safemode.Controller
	sampler *criticality.Sampler
	strides *ratelimit.Limiter
	lastRho float64
	hasRho  bool
	late    *PublishOutcome
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSink sets the telemetry sink.
func WithSink(s events.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithClock replaces time.Now, for tests and simulation.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.nowFunc = now
		}
	}
}

// New creates an engine over g. p is validated and copied.
func New(g *graph.Graph, p Params, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, errors.New("engine: nil graph")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid params: %w", err)
	}
	e := &Engine{
		graph:   g,
		logger:  slog.New(slog.DiscardHandler),
		sink:    events.Nop,
		nowFunc: time.Now,
		base:    p.Clone(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.params.Store(Resolve(e.base, nil))
	e.noise = threshold.NewTracker(p.Threshold)
	e.ctrl = criticality.NewController(p.Criticality, criticality.Knobs{
		Delta: p.Decay.Activation.BaseRate,
		Alpha: p.Alpha,
	})
	e.safe = safemode.New(p.SafeMode, e.nowFunc)
	e.strides = newStrideLimiter(p.Telemetry, e.nowFunc)
	return e, nil
}

// newStrideLimiter samples stride records per source node.
func newStrideLimiter(cfg TelemetryConfig, now func() time.Time) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(cfg.StrideRate, cfg.StrideBurst)
	l.SetClock(now)
	return l
}

// Graph returns the engine's graph. It must only be modified between ticks
// by the goroutine that drives them.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Inject queues a stimulus for the next tick. Node existence is checked when
// the queue is drained.
func (e *Engine) Inject(s Stimulus) error {
	if s.Energy <= 0 || math.IsNaN(s.Energy) || math.IsInf(s.Energy, 0) {
		return fmt.Errorf("%w: energy %v for %q", ErrInvalidStimulus, s.Energy, s.NodeID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.stimuli) >= e.base.Telemetry.QueueLimit {
		return ErrQueueFull
	}
	e.stimuli = append(e.stimuli, s)
	return nil
}

// Update queues a parameter change. fn runs on a copy of the base
// parameters at the next tick boundary; the result is validated and
// swapped in atomically, or rejected as a whole.
func (e *Engine) Update(fn func(*Params)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates = append(e.updates, fn)
}

// SetCoherence sets the coherence signal C ∈ [0,1] used for mode labels.
func (e *Engine) SetCoherence(c float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sig.coherence = math.Max(0, math.Min(1, c))
}

// SetGoal sets the current goal embedding, stored as a unit-length copy.
// Nil clears it.
func (e *Engine) SetGoal(v []float32) {
	var goal []float32
	if v != nil {
		goal = append([]float32(nil), v...)
		vecmath.Normalize(goal)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sig.goal = goal
}

// SetAffect sets the current affective state. Nil clears it.
func (e *Engine) SetAffect(a *graph.Affect) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a == nil {
		e.sig.affect = nil
		return
	}
	cp := *a
	e.sig.affect = &cp
}

// SetWMHeadroom sets the free working-memory fraction. Nil clears it.
func (e *Engine) SetWMHeadroom(h *float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h == nil {
		e.sig.wmHeadroom = nil
		return
	}
	v := *h
	e.sig.wmHeadroom = &v
}

// SetLoad sets the relative compute overload used for load shedding.
func (e *Engine) SetLoad(delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sig.loadDelta = delta
}

// Params returns the effective parameters of the current tick.
func (e *Engine) Params() *Effective { return e.params.Load() }

// Status is a point-in-time view of the engine. It is safe to call from any
// goroutine.
type Status struct {
	Tick     uint64            `json:"tick"`
	Pending  int               `json:"pending_stimuli"`
	SafeMode safemode.Status   `json:"safe_mode"`
	Last     *Summary          `json:"last,omitempty"`
	Knobs    criticality.Knobs `json:"knobs"`
}

// Status returns the engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	pending := len(e.stimuli)
	e.mu.Unlock()

	s := Status{
		Tick:     e.tick.Load(),
		Pending:  pending,
		SafeMode: e.safe.Status(),
		Last:     e.last.Load(),
	}
	if s.Last != nil {
		s.Knobs = s.Last.Knobs
	}
	return s
}

// Reset clears all dynamic state: node energies, noise statistics,
// controller history, safe mode and pending stimuli. Weights are kept. It
// waits for an in-flight tick.
func (e *Engine) Reset() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	e.stimuli = nil
	base := e.base
	e.mu.Unlock()

	for _, n := range e.graph.Nodes() {
		n.Energy = 0
		n.Threshold = 0
	}
	e.noise.Reset()
	e.ctrl.Reset()
	e.ctrl.SetKnobs(criticality.Knobs{Delta: base.Decay.Activation.BaseRate, Alpha: base.Alpha})
	e.safe.Reset()
	e.params.Store(Resolve(base, nil))
	e.tick.Store(0)
	e.last.Store(nil)
	e.lastRho, e.hasRho = 0, false
	e.late = nil
}
