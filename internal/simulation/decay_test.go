package simulation_test

import (
	"math"
	"testing"

	"github.com/nvandessel/substrate/internal/graph"
	"github.com/nvandessel/substrate/internal/simulation"
)

// TestDecayHalfLifeByType validates the activation clock per node type:
// a memory node decays at half the rate of a concept node.
func TestDecayHalfLifeByType(t *testing.T) {
	result := simulation.MustRun(t, simulation.Scenario{
		Name: "decay-by-type",
		Seed: graph.Seed{Nodes: []graph.NodeSpec{
			{ID: "concept", Type: graph.NodeConcept, Energy: 1},
			{ID: "memory", Type: graph.NodeMemory, Energy: 1},
		}},
		Ticks:  20,
		Params: simulation.PlainParams(),
	})

	last := result.Last()
	tests := []struct {
		id   string
		want float64
	}{
		{"concept", math.Exp(-0.03 * 20)},
		{"memory", math.Exp(-0.015 * 20)},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := last.Energies[tt.id]; math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("energy = %.12f, want %.12f", got, tt.want)
			}
			simulation.AssertEnergyMonotone(t, result, tt.id, 0)
		})
	}
}

// TestDecayEnergyFloor validates that decay never pushes a node below the
// floor and leaves nodes already below it alone.
func TestDecayEnergyFloor(t *testing.T) {
	result := simulation.MustRun(t, simulation.Scenario{
		Name: "decay-floor",
		Seed: graph.Seed{Nodes: []graph.NodeSpec{
			{ID: "below", Energy: 0.0005},
			{ID: "near", Energy: 0.00101},
		}},
		Ticks:  10,
		Params: simulation.PlainParams(),
	})

	for _, tr := range result.Ticks {
		if got := tr.Energies["below"]; got != 0.0005 {
			t.Errorf("tick %d: below = %g, want untouched 0.0005", tr.Summary.Tick, got)
		}
		if got := tr.Energies["near"]; got != 0.001 {
			t.Errorf("tick %d: near = %g, want the floor 0.001", tr.Summary.Tick, got)
		}
	}
}
