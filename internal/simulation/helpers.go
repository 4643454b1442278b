package simulation

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/substrate/internal/engine"
	"github.com/nvandessel/substrate/internal/graph"
)

// NodeID returns the ID the builders give the i-th node.
func NodeID(i int) string {
	return fmt.Sprintf("n%d", i)
}

// Isolated builds n concept nodes with no links.
func Isolated(n int) graph.Seed {
	var s graph.Seed
	for i := 0; i < n; i++ {
		s.Nodes = append(s.Nodes, graph.NodeSpec{ID: NodeID(i)})
	}
	return s
}

// Chain builds n nodes linked n0→n1→…→n(n-1) with the given weight.
func Chain(n int, weight float64) graph.Seed {
	s := Isolated(n)
	for i := 0; i+1 < n; i++ {
		s.Links = append(s.Links, graph.LinkSpec{Source: NodeID(i), Target: NodeID(i + 1), Weight: weight})
	}
	return s
}

// Ring builds a directed cycle of n nodes. logWeight sets the ease of every
// link and so the gain of the transition operator.
func Ring(n int, weight, logWeight float64) graph.Seed {
	s := Isolated(n)
	for i := 0; i < n; i++ {
		s.Links = append(s.Links, graph.LinkSpec{
			Source:    NodeID(i),
			Target:    NodeID((i + 1) % n),
			Weight:    weight,
			LogWeight: logWeight,
		})
	}
	return s
}

// Random builds a reproducible graph of n nodes with about degree outgoing
// links each. Node types cycle through every type; link weights and log
// weights are drawn uniformly from [0.05, 0.95] and [−1, 1]. Roughly one
// link in ten is suppressive.
func Random(seed uint64, n, degree int) graph.Seed {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	types := graph.NodeTypes()
	var s graph.Seed
	for i := 0; i < n; i++ {
		s.Nodes = append(s.Nodes, graph.NodeSpec{
			ID:        NodeID(i),
			Type:      types[i%len(types)],
			LogWeight: rng.Float64()*2 - 1,
		})
	}
	if n < 2 {
		return s
	}
	seen := make(map[[2]int]bool)
	for i := 0; i < n; i++ {
		for k := 0; k < degree; k++ {
			j := rng.IntN(n)
			if j == i || seen[[2]int{i, j}] {
				continue
			}
			seen[[2]int{i, j}] = true
			typ := graph.LinkRelatesTo
			if rng.IntN(10) == 0 {
				typ = graph.LinkSuppresses
			}
			s.Links = append(s.Links, graph.LinkSpec{
				Source:    NodeID(i),
				Target:    NodeID(j),
				Type:      typ,
				Weight:    0.05 + 0.9*rng.Float64(),
				LogWeight: rng.Float64()*2 - 1,
			})
		}
	}
	return s
}

// Pulse injects energy into id on every tick divisible by every.
func Pulse(id string, energy float64, every uint64) func(uint64) []engine.Stimulus {
	if every == 0 {
		every = 1
	}
	return func(tick uint64) []engine.Stimulus {
		if tick%every != 0 {
			return nil
		}
		return []engine.Stimulus{{NodeID: id, Energy: energy}}
	}
}

// Once injects energy into id on the first tick only.
func Once(id string, energy float64) func(uint64) []engine.Stimulus {
	return func(tick uint64) []engine.Stimulus {
		if tick != 1 {
			return nil
		}
		return []engine.Stimulus{{NodeID: id, Energy: energy}}
	}
}

// PlainParams returns default parameters with stickiness, emotion gates,
// resistance and consolidation switched off, so energy moves and decays by
// the bare formulas.
func PlainParams() *engine.Params {
	p := engine.DefaultParams()
	p.Diffusion.Stickiness.Enabled = false
	p.Diffusion.Gates.Enabled = false
	p.Decay.Resistance.Enabled = false
	p.Decay.Consolidation.Enabled = false
	return &p
}
