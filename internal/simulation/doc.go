// Package simulation provides a multi-tick harness for validating the
// emergent dynamics of the tick engine.
//
// The simulation exercises the real Engine, diffusion, decay, strengthening,
// criticality controller and safe-mode controller with no mocks. Scenarios
// are Go builders that construct a seed graph, schedule stimuli and run a
// configurable number of ticks on a virtual clock, capturing energy and
// weight snapshots for property-based assertions.
//
// Usage:
//
//	func TestHebbianGating(t *testing.T) {
//	    result := simulation.MustRun(t, simulation.Scenario{
//	        Name:    "hebbian-gating",
//	        Seed:    simulation.Chain(3, 0.2),
//	        Ticks:   50,
//	        Stimuli: simulation.Pulse("n0", 0.02, 1),
//	    })
//	    simulation.AssertWeightIncreased(t, result, "n0", "n1", graph.LinkRelatesTo, 0, 49)
//	}
package simulation
