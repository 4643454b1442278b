package simulation

import (
	"fmt"

	"github.com/nvandessel/substrate/internal/engine"
	"github.com/nvandessel/substrate/internal/events"
	"github.com/nvandessel/substrate/internal/graph"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name  string
	Seed  graph.Seed
	Ticks int

	// Params, when non-nil, replaces engine.DefaultParams. Background
	// sampling is always off so every tick is deterministic.
	Params *engine.Params

	// Stimuli, when non-nil, is called before each tick with the number of
	// the tick about to run (starting at 1).
	Stimuli func(tick uint64) []engine.Stimulus

	// BeforeTick, when non-nil, is called before each tick. Use it to set
	// signals or queue parameter updates.
	BeforeTick func(tick uint64, e *engine.Engine)

	// FailPublish, when non-nil, makes the event sink fail on ticks for
	// which it returns true.
	FailPublish func(tick uint64) bool

	// KeepEvents retains the full event stream in the result.
	KeepEvents bool
}

// TickResult captures the outcome of a single tick.
type TickResult struct {
	Index       int
	Summary     engine.Summary
	Energies    map[string]float64 // node ID → energy after the tick
	LinkWeights map[string]float64 // LinkKey → weight after the tick
}

// SimulationResult captures all ticks and the final engine state.
type SimulationResult struct {
	Ticks  []TickResult
	Engine *engine.Engine
	Events *events.Buffer
}

// Graph returns the simulated graph.
func (r SimulationResult) Graph() *graph.Graph {
	return r.Engine.Graph()
}

// Last returns the final tick, or the zero value when no tick ran.
func (r SimulationResult) Last() TickResult {
	if len(r.Ticks) == 0 {
		return TickResult{}
	}
	return r.Ticks[len(r.Ticks)-1]
}

// LinkKey builds the canonical map key for a link.
func LinkKey(src, tgt string, typ graph.LinkType) string {
	return fmt.Sprintf("%s->%s:%s", src, tgt, typ)
}
