package simulation_test

import (
	"testing"

	"github.com/nvandessel/substrate/internal/engine"
	"github.com/nvandessel/substrate/internal/graph"
	"github.com/nvandessel/substrate/internal/simulation"
)

// TestHebbianSubThreshold validates that a pair of nodes holding faint,
// sub-threshold energy strengthens the link between them.
//
// Setup:
//   - n0→n1 at weight 0.2
//   - both nodes stimulated once with 0.02, below the initial θ ≈ 0.033
//   - no later stimuli, so every later tick is quiet and θ tracks the noise
//
// Expected: the link weight rises on every tick and stays within [0, 1].
func TestHebbianSubThreshold(t *testing.T) {
	result := simulation.MustRun(t, simulation.Scenario{
		Name:  "hebbian-sub-threshold",
		Seed:  simulation.Chain(2, 0.2),
		Ticks: 30,
		Stimuli: func(tick uint64) []engine.Stimulus {
			if tick != 1 {
				return nil
			}
			return []engine.Stimulus{{NodeID: "n0", Energy: 0.02}, {NodeID: "n1", Energy: 0.02}}
		},
	})

	for i, tr := range result.Ticks {
		if tr.Summary.Active != 0 {
			t.Fatalf("tick index %d: %d active nodes, want 0\n%s", i, tr.Summary.Active, simulation.FormatTickDebug(tr))
		}
		if tr.Summary.Strengthened != 1 {
			t.Errorf("tick index %d: strengthened %d links, want 1", i, tr.Summary.Strengthened)
		}
	}
	simulation.AssertWeightIncreased(t, result, "n0", "n1", graph.LinkRelatesTo, 0, 29)
	simulation.AssertWeightBounded(t, result, 0, 1)
}

// TestHebbianActivePairUntouched validates that co-activity of two nodes
// above threshold does not strengthen their link.
func TestHebbianActivePairUntouched(t *testing.T) {
	result := simulation.MustRun(t, simulation.Scenario{
		Name:  "hebbian-active-pair",
		Seed:  simulation.Chain(2, 0.2),
		Ticks: 30,
		Stimuli: func(uint64) []engine.Stimulus {
			return []engine.Stimulus{{NodeID: "n0", Energy: 1}, {NodeID: "n1", Energy: 1}}
		},
	})

	simulation.AssertWeightUnchanged(t, result, "n0", "n1", graph.LinkRelatesTo, 0, 29)
	if w := simulation.MaxWeight(result, "n0", "n1", graph.LinkRelatesTo); w != 0.2 {
		t.Errorf("max weight = %f, want 0.2", w)
	}
}
