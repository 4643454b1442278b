package simulation_test

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nvandessel/substrate/internal/engine"
	"github.com/nvandessel/substrate/internal/simulation"
)

// conserved reports whether every tick of the run kept its energy books
// balanced and every node non-negative.
func conserved(result simulation.SimulationResult) bool {
	for _, tr := range result.Ticks {
		s := tr.Summary
		if math.IsNaN(s.ConservationError) || math.Abs(s.ConservationError) > 1e-9 || s.Clamped > 0 {
			return false
		}
		for _, e := range tr.Energies {
			if e < 0 || math.IsNaN(e) {
				return false
			}
		}
	}
	return true
}

func TestRandomGraphInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("energy conserved and non-negative", prop.ForAll(
		func(seed uint64, n, degree int, energy float64) bool {
			result, err := simulation.NewRunner().Run(context.Background(), simulation.Scenario{
				Name:  "random",
				Seed:  simulation.Random(seed, n, degree),
				Ticks: 20,
				Stimuli: func(tick uint64) []engine.Stimulus {
					return []engine.Stimulus{{NodeID: simulation.NodeID(int(tick) % n), Energy: energy}}
				},
			})
			return err == nil && conserved(result)
		},
		gen.UInt64(),
		gen.IntRange(2, 30),
		gen.IntRange(1, 4),
		gen.Float64Range(0.01, 2),
	))

	properties.Property("weights stay in [0, 1]", prop.ForAll(
		func(seed uint64, n int) bool {
			result, err := simulation.NewRunner().Run(context.Background(), simulation.Scenario{
				Name:  "random-weights",
				Seed:  simulation.Random(seed, n, 3),
				Ticks: 20,
				Stimuli: func(tick uint64) []engine.Stimulus {
					return []engine.Stimulus{{NodeID: simulation.NodeID(int(tick) % n), Energy: 0.02}}
				},
			})
			if err != nil {
				return false
			}
			for _, tr := range result.Ticks {
				for _, w := range tr.LinkWeights {
					if w < 0 || w > 1 {
						return false
					}
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(2, 30),
	))

	properties.TestingRun(t)
}
