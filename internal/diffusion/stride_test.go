package diffusion

import (
	"fmt"
	"math"
	"testing"

	"github.com/nvandessel/substrate/internal/graph"
)

// plainConfig disables every optional modulation.
func plainConfig() Config {
	cfg := DefaultConfig()
	cfg.Stickiness.Enabled = false
	cfg.Gates.Enabled = false
	cfg.Split.Enabled = false
	return cfg
}

func mustNode(t *testing.T, g *graph.Graph, n graph.Node) *graph.Node {
	t.Helper()
	stored, err := g.AddNode(n)
	if err != nil {
		t.Fatalf("AddNode(%s): %v", n.ID, err)
	}
	return stored
}

func mustLink(t *testing.T, g *graph.Graph, l graph.Link) *graph.Link {
	t.Helper()
	stored, err := g.AddLink(l)
	if err != nil {
		t.Fatalf("AddLink(%s->%s): %v", l.Source, l.Target, err)
	}
	return stored
}

func TestStep_TwoNodeScenario(t *testing.T) {
	g := graph.New()
	a := mustNode(t, g, graph.Node{ID: "a", Energy: 1.0})
	mustNode(t, g, graph.Node{ID: "b", Energy: 0.5})
	mustLink(t, g, graph.Link{ID: "ab", Source: "a", Target: "b", Weight: 1.0})

	res, err := Step(g, []*graph.Node{a}, plainConfig(), Context{Alpha: 0.1, DT: 1.0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	// ease = exp(0) = 1, so ΔE = 1.0 · 1 · 0.1 · 1.0
	want := 0.1
	if got := stagedDelta(res.Staging, "a"); math.Abs(got+want) > 1e-12 {
		t.Errorf("delta(a) = %f, want %f", got, -want)
	}
	if got := stagedDelta(res.Staging, "b"); math.Abs(got-want) > 1e-12 {
		t.Errorf("delta(b) = %f, want %f", got, want)
	}
	if ce := res.Staging.ConservationError(); math.Abs(ce) > 1e-12 {
		t.Errorf("conservation error = %g, want ~0", ce)
	}

	// Nothing is applied until Apply.
	if a.Energy != 1.0 {
		t.Errorf("source energy mutated before Apply: %f", a.Energy)
	}
	if _, err := res.Staging.Apply(g); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	b, _ := g.Node("b")
	if math.Abs(a.Energy-0.9) > 1e-12 || math.Abs(b.Energy-0.6) > 1e-12 {
		t.Errorf("after apply E = [%f, %f], want [0.9, 0.6]", a.Energy, b.Energy)
	}
	l, _ := g.Link("ab")
	if l.Traversals != 1 || math.Abs(l.FlowTotal-want) > 1e-12 {
		t.Errorf("boundary counters = (%d, %f), want (1, %f)", l.Traversals, l.FlowTotal, want)
	}
}

func TestStep_SourceAndTargetSameTick(t *testing.T) {
	g := graph.New()
	a := mustNode(t, g, graph.Node{ID: "a", Energy: 1.0})
	b := mustNode(t, g, graph.Node{ID: "b", Energy: 0.5})
	mustLink(t, g, graph.Link{Source: "a", Target: "b", Weight: 1.0})
	mustLink(t, g, graph.Link{Source: "b", Target: "a", Weight: 1.0})

	res, err := Step(g, []*graph.Node{a, b}, plainConfig(), Context{Alpha: 0.1, DT: 1.0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	// a sends 0.1 and receives 0.05; b sends 0.05 and receives 0.1.
	if got := stagedDelta(res.Staging, "a"); math.Abs(got+0.05) > 1e-12 {
		t.Errorf("delta(a) = %f, want -0.05", got)
	}
	if got := stagedDelta(res.Staging, "b"); math.Abs(got-0.05) > 1e-12 {
		t.Errorf("delta(b) = %f, want 0.05", got)
	}
	if res.Strides != 2 {
		t.Errorf("Strides = %d, want 2", res.Strides)
	}
}

func TestStep_StickinessDissipation(t *testing.T) {
	g := graph.New()
	a := mustNode(t, g, graph.Node{ID: "a", Energy: 1.0})
	mustNode(t, g, graph.Node{ID: "task", Type: graph.NodeTask})
	mustLink(t, g, graph.Link{Source: "a", Target: "task", Weight: 1.0})

	cfg := plainConfig()
	cfg.Stickiness = DefaultStickinessConfig()

	res, err := Step(g, []*graph.Node{a}, cfg, Context{Alpha: 0.1, DT: 1.0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	tgt, _ := g.Node("task")
	s := cfg.Stickiness.Of(tgt)
	wantDissipated := (1 - s) * 0.1
	if math.Abs(res.Dissipated()-wantDissipated) > 1e-12 {
		t.Errorf("Dissipated = %f, want %f", res.Dissipated(), wantDissipated)
	}
	if math.Abs(stagedDelta(res.Staging, "task")-s*0.1) > 1e-12 {
		t.Errorf("target retained %f, want %f", stagedDelta(res.Staging, "task"), s*0.1)
	}
	if ce := res.Staging.ConservationError(); math.Abs(ce) > 1e-12 {
		t.Errorf("conservation error = %g", ce)
	}
	if res.Staging.NetDelta() > 0 {
		t.Error("net delta positive: energy created")
	}
}

func TestStep_TransferCappedAtSourceEnergy(t *testing.T) {
	g := graph.New()
	a := mustNode(t, g, graph.Node{ID: "a", Energy: 0.4})
	mustNode(t, g, graph.Node{ID: "b"})
	mustLink(t, g, graph.Link{Source: "a", Target: "b", Weight: 1.0, LogWeight: 2})

	res, err := Step(g, []*graph.Node{a}, plainConfig(), Context{Alpha: 0.3, DT: 1.0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	// ease·α·dt = e²·0.3 > 1, so the whole source energy moves.
	if got := stagedDelta(res.Staging, "a"); math.Abs(got+0.4) > 1e-12 {
		t.Errorf("delta(a) = %f, want -0.4", got)
	}
	ar, err := res.Staging.Apply(g)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ar.Clamped != 0 || a.Energy < 0 {
		t.Errorf("energy went negative: clamped=%d E=%f", ar.Clamped, a.Energy)
	}
}

func TestStep_MinCostLinkChosen(t *testing.T) {
	g := graph.New()
	a := mustNode(t, g, graph.Node{ID: "a", Energy: 1.0})
	mustNode(t, g, graph.Node{ID: "far"})
	mustNode(t, g, graph.Node{ID: "near"})
	mustLink(t, g, graph.Link{ID: "to-far", Source: "a", Target: "far", Weight: 0.5, LogWeight: -1})
	mustLink(t, g, graph.Link{ID: "to-near", Source: "a", Target: "near", Weight: 0.5, LogWeight: 1})

	var records []StrideRecord
	res, err := Step(g, []*graph.Node{a}, plainConfig(), Context{
		Alpha:  0.1,
		DT:     1.0,
		Record: func(r StrideRecord) { records = append(records, r) },
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if stagedDelta(res.Staging, "near") <= 0 || stagedDelta(res.Staging, "far") != 0 {
		t.Errorf("expected transfer to near only, got near=%f far=%f", stagedDelta(res.Staging, "near"), stagedDelta(res.Staging, "far"))
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	for _, r := range records {
		if r.Chosen != (r.LinkID == "to-near") {
			t.Errorf("record %s chosen=%v", r.LinkID, r.Chosen)
		}
	}
}

func TestStep_TiesBreakByAdjacencyOrder(t *testing.T) {
	g := graph.New()
	a := mustNode(t, g, graph.Node{ID: "a", Energy: 1.0})
	mustNode(t, g, graph.Node{ID: "x"})
	mustNode(t, g, graph.Node{ID: "y"})
	mustLink(t, g, graph.Link{Source: "a", Target: "x", Weight: 0.5})
	mustLink(t, g, graph.Link{Source: "a", Target: "y", Weight: 0.5})

	res, err := Step(g, []*graph.Node{a}, plainConfig(), Context{Alpha: 0.1, DT: 1.0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if stagedDelta(res.Staging, "x") <= 0 || stagedDelta(res.Staging, "y") != 0 {
		t.Errorf("tie should go to first link: x=%f y=%f", stagedDelta(res.Staging, "x"), stagedDelta(res.Staging, "y"))
	}
}

func TestStep_GoalAffinityLowersCost(t *testing.T) {
	g := graph.New()
	a := mustNode(t, g, graph.Node{ID: "a", Energy: 1.0})
	mustNode(t, g, graph.Node{ID: "off", Embedding: []float32{0, 1}})
	mustNode(t, g, graph.Node{ID: "on", Embedding: []float32{1, 0}})
	mustLink(t, g, graph.Link{Source: "a", Target: "off", Weight: 0.5})
	mustLink(t, g, graph.Link{Source: "a", Target: "on", Weight: 0.5})

	res, err := Step(g, []*graph.Node{a}, plainConfig(), Context{Alpha: 0.1, DT: 1.0, Goal: []float32{1, 0}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if stagedDelta(res.Staging, "on") <= 0 {
		t.Error("goal-aligned target should be chosen")
	}
}

func TestStep_SuppressiveLinksNotTraversed(t *testing.T) {
	g := graph.New()
	a := mustNode(t, g, graph.Node{ID: "a", Energy: 1.0})
	mustNode(t, g, graph.Node{ID: "b"})
	mustLink(t, g, graph.Link{Source: "a", Target: "b", Type: graph.LinkSuppresses, Weight: 1.0, LogWeight: 2})

	res, err := Step(g, []*graph.Node{a}, plainConfig(), Context{Alpha: 0.1, DT: 1.0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Strides != 0 || res.Staging.Len() != 0 {
		t.Errorf("suppressive link should carry no energy, got %d strides", res.Strides)
	}
}

func TestStep_TopKSplit(t *testing.T) {
	g := graph.New()
	a := mustNode(t, g, graph.Node{ID: "a", Energy: 1.0})
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("t%d", i)
		mustNode(t, g, graph.Node{ID: id})
		mustLink(t, g, graph.Link{Source: "a", Target: id, Weight: 0.5, LogWeight: float64(i) * 0.1})
	}

	cfg := plainConfig()
	cfg.Split = SplitConfig{Enabled: true, K: 3, Temperature: 1.0}

	res, err := Step(g, []*graph.Node{a}, cfg, Context{Alpha: 0.1, DT: 1.0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	// Out-degree 4 is in the balanced band, so fanout keeps 2 links and the
	// split spreads over both.
	if res.Strides != 2 {
		t.Fatalf("Strides = %d, want 2", res.Strides)
	}
	if ce := res.Staging.ConservationError(); math.Abs(ce) > 1e-12 {
		t.Errorf("conservation error = %g", ce)
	}
}

func TestSoftmax(t *testing.T) {
	w := Softmax([]float64{1, 2, 3}, 1.0)
	var sum float64
	for _, x := range w {
		sum += x
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("weights sum to %f", sum)
	}
	if !(w[0] > w[1] && w[1] > w[2]) {
		t.Errorf("lower cost should get more weight: %v", w)
	}

	for _, tc := range []struct {
		name  string
		costs []float64
		temp  float64
	}{
		{"zero temperature", []float64{1, 2}, 0},
		{"nan cost", []float64{math.NaN(), 1}, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := Softmax(tc.costs, tc.temp)
			for _, x := range w {
				if x != 0.5 {
					t.Errorf("expected uniform fallback, got %v", w)
				}
			}
		})
	}
}

func TestApply_ClampsNegative(t *testing.T) {
	g := graph.New()
	mustNode(t, g, graph.Node{ID: "a", Energy: 0.1})
	mustNode(t, g, graph.Node{ID: "b"})
	l := mustLink(t, g, graph.Link{Source: "a", Target: "b", Weight: 1})

	s := NewStaging()
	s.Transfer(l, 0.3, 1.0)
	res, err := s.Apply(g)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	a, _ := g.Node("a")
	if res.Clamped != 1 || a.Energy != 0 || math.Abs(res.ClampedEnergy-0.2) > 1e-12 {
		t.Errorf("clamp result = %+v, E(a) = %f", res, a.Energy)
	}
}

func stagedDelta(s *Staging, id string) float64 {
	return s.deltas[id]
}
