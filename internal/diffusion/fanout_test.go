package diffusion

import (
	"fmt"
	"testing"

	"github.com/nvandessel/substrate/internal/graph"
)

func hub(t *testing.T, degree int) (*graph.Graph, *graph.Node) {
	t.Helper()
	g := graph.New()
	src := mustNode(t, g, graph.Node{ID: "hub", Energy: 1.0})
	for i := 0; i < degree; i++ {
		id := fmt.Sprintf("leaf-%02d", i)
		mustNode(t, g, graph.Node{ID: id})
		mustLink(t, g, graph.Link{ID: id, Source: "hub", Target: id, Weight: float64(i+1) / float64(degree+1)})
	}
	return g, src
}

func TestFanout_TopK(t *testing.T) {
	cfg := DefaultFanoutConfig()
	low := 0.1
	high := 0.9

	tests := []struct {
		name     string
		degree   int
		headroom *float64
		strategy Strategy
		k        int
	}{
		{name: "hub selective", degree: 50, strategy: Selective, k: 5},
		{name: "hub under wm pressure", degree: 50, headroom: &low, strategy: Selective, k: 3},
		{name: "hub with headroom", degree: 50, headroom: &high, strategy: Selective, k: 5},
		{name: "upper band edge", degree: 10, strategy: Balanced, k: 5},
		{name: "balanced odd", degree: 7, strategy: Balanced, k: 4},
		{name: "lower band edge", degree: 3, strategy: Balanced, k: 2},
		{name: "balanced pressure floor", degree: 4, headroom: &low, strategy: Balanced, k: 2},
		{name: "exhaustive", degree: 2, strategy: Exhaustive, k: 2},
		{name: "pressure never exceeds degree", degree: 1, headroom: &low, strategy: Exhaustive, k: 1},
		{name: "no links", degree: 0, strategy: Exhaustive, k: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, k := cfg.TopK(tt.degree, tt.headroom)
			if strategy != tt.strategy || k != tt.k {
				t.Errorf("TopK(%d) = (%s, %d), want (%s, %d)", tt.degree, strategy, k, tt.strategy, tt.k)
			}
		})
	}
}

func TestFanout_PressureNeverRaisesK(t *testing.T) {
	low := 0.1
	cfg := DefaultFanoutConfig()
	cfg.Low = 2

	_, relaxed := cfg.TopK(2, nil)
	if relaxed != 1 {
		t.Fatalf("k without pressure = %d, want 1", relaxed)
	}
	for _, degree := range []int{2, 3, 4, 12, 50} {
		_, base := cfg.TopK(degree, nil)
		_, pressed := cfg.TopK(degree, &low)
		if pressed > base {
			t.Errorf("degree %d: k under pressure = %d, above %d without", degree, pressed, base)
		}
	}
}

func TestFanout_SingleCandidate(t *testing.T) {
	cfg := DefaultFanoutConfig()
	cfg.SingleCandidate = true
	for _, d := range []int{1, 2, 5, 50} {
		if _, k := cfg.TopK(d, nil); k != 1 {
			t.Errorf("degree %d: k = %d, want 1", d, k)
		}
	}
}

func TestReduce_KeepsHeaviestInAdjacencyOrder(t *testing.T) {
	_, src := hub(t, 50)
	kept := Reduce(Candidates(src), 5)
	if len(kept) != 5 {
		t.Fatalf("kept %d, want 5", len(kept))
	}
	for i, l := range kept {
		want := fmt.Sprintf("leaf-%02d", 45+i)
		if l.ID != want {
			t.Errorf("kept[%d] = %s, want %s", i, l.ID, want)
		}
	}
}

func TestStep_HubRetainsAtMostTopK(t *testing.T) {
	g, src := hub(t, 50)
	var evaluated int
	_, err := Step(g, []*graph.Node{src}, plainConfig(), Context{
		Alpha:  0.1,
		DT:     1.0,
		Record: func(StrideRecord) { evaluated++ },
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if evaluated > DefaultFanoutConfig().SelectiveTopK {
		t.Errorf("evaluated %d candidates, want at most %d", evaluated, DefaultFanoutConfig().SelectiveTopK)
	}
}

func TestStep_LowDegreeRetainsAll(t *testing.T) {
	g, src := hub(t, 2)
	var evaluated int
	_, err := Step(g, []*graph.Node{src}, plainConfig(), Context{
		Alpha:  0.1,
		DT:     1.0,
		Record: func(StrideRecord) { evaluated++ },
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if evaluated != 2 {
		t.Errorf("evaluated %d candidates, want 2", evaluated)
	}
}

func TestCost_GatesBoundedAndNeutral(t *testing.T) {
	cfg := DefaultConfig()
	src := &graph.Node{ID: "s"}
	tgt := &graph.Node{ID: "t"}
	l := &graph.Link{Source: "s", Target: "t"}

	b := Cost(cfg, src, tgt, l, Context{})
	if b.Resonance != 1 || b.Complementarity != 1 || b.Total != 1 {
		t.Errorf("missing affect should be neutral, got %+v", b)
	}

	aligned := graph.Affect{0.9, 0.4}
	opposed := graph.Affect{-0.9, -0.4}
	l.Affect = &aligned
	b = Cost(cfg, src, tgt, l, Context{Affect: &aligned})
	if b.Resonance >= 1 || b.Resonance < cfg.Gates.ResonanceMin {
		t.Errorf("aligned resonance = %f, want in [%f, 1)", b.Resonance, cfg.Gates.ResonanceMin)
	}
	if b.Complementarity != 1 {
		t.Errorf("aligned complementarity = %f, want 1", b.Complementarity)
	}

	l.Affect = &opposed
	b = Cost(cfg, src, tgt, l, Context{Affect: &aligned})
	if b.Resonance <= 1 || b.Resonance > cfg.Gates.ResonanceMax {
		t.Errorf("opposed resonance = %f, want in (1, %f]", b.Resonance, cfg.Gates.ResonanceMax)
	}
	if b.Complementarity >= 1 || b.Complementarity < cfg.Gates.ComplementMin {
		t.Errorf("opposed complementarity = %f, want in [%f, 1)", b.Complementarity, cfg.Gates.ComplementMin)
	}
}

func TestStickiness(t *testing.T) {
	cfg := DefaultStickinessConfig()
	tests := []struct {
		name string
		node graph.Node
		lo   float64
		hi   float64
	}{
		{name: "memory", node: graph.Node{Type: graph.NodeMemory}, lo: 0.9, hi: 0.9},
		{name: "task", node: graph.Node{Type: graph.NodeTask}, lo: 0.3, hi: 0.3},
		{name: "consolidated memory clips to max", node: graph.Node{Type: graph.NodeMemory, Consolidated: true}, lo: 1.0, hi: 1.0},
		{name: "default", node: graph.Node{Type: graph.NodeConcept}, lo: 0.6, hi: 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.Of(&tt.node)
			if got < tt.lo-1e-12 || got > tt.hi+1e-12 {
				t.Errorf("Of() = %f, want in [%f, %f]", got, tt.lo, tt.hi)
			}
		})
	}

	cfg.Enabled = false
	if got := cfg.Of(&graph.Node{Type: graph.NodeTask}); got != 1 {
		t.Errorf("disabled stickiness = %f, want 1", got)
	}
}
