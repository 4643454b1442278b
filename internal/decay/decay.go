// Package decay implements the two forgetting clocks of the substrate.
//
// The activation clock runs every tick and removes a fraction of each node's
// energy. The weight clock runs on a much slower cadence and lowers the log
// weight of nodes and links. Resistance and consolidation slow the
// activation clock for well-connected or important nodes.
package decay

import (
	"math"

	"github.com/nvandessel/substrate/internal/graph"
)

// Config holds parameters for both decay clocks.
type Config struct {
	Activation    ActivationConfig    `yaml:"activation" json:"activation"`
	Weight        WeightConfig        `yaml:"weight" json:"weight"`
	Resistance    ResistanceConfig    `yaml:"resistance" json:"resistance"`
	Consolidation ConsolidationConfig `yaml:"consolidation" json:"consolidation"`
}

// ActivationConfig configures energy decay.
type ActivationConfig struct {
	// BaseRate is the initial per-second rate δ. The criticality controller
	// moves it at runtime. Default: 0.03.
	BaseRate float64 `yaml:"base_rate" json:"base_rate" validate:"gt=0"`

	// Multipliers scale δ per node type.
	Multipliers graph.NodeTypeTable `yaml:"multipliers" json:"multipliers"`

	// EnergyFloor is the lowest energy decay will leave a node at.
	// Default: 0.001.
	EnergyFloor float64 `yaml:"energy_floor" json:"energy_floor" validate:"gte=0"`
}

// WeightConfig configures log-weight decay.
type WeightConfig struct {
	// BaseRate is the per-second rate. Default: 1e-6.
	BaseRate float64 `yaml:"base_rate" json:"base_rate" validate:"gte=0"`

	NodeMultipliers graph.NodeTypeTable `yaml:"node_multipliers" json:"node_multipliers"`
	LinkMultipliers graph.LinkTypeTable `yaml:"link_multipliers" json:"link_multipliers"`

	// Floor and Ceiling bound log weights. Defaults: −5 and 2.
	Floor   float64 `yaml:"floor" json:"floor"`
	Ceiling float64 `yaml:"ceiling" json:"ceiling" validate:"gtefield=Floor"`

	// Every is the cadence in ticks. Default: 60.
	Every int `yaml:"every" json:"every" validate:"gte=1"`
}

// DefaultConfig returns the default decay configuration.
func DefaultConfig() Config {
	act := graph.FillNodeTable(1.0)
	act.Set(graph.NodeMemory, 0.5)
	act.Set(graph.NodeEpisodicMemory, 0.25)
	act.Set(graph.NodeTask, 5.0)
	act.Set(graph.NodeGoal, 0.5)
	act.Set(graph.NodeEvent, 2.5)
	act.Set(graph.NodePerson, 0.5)
	act.Set(graph.NodeDocument, 0.75)
	act.Set(graph.NodePrinciple, 0.5)
	act.Set(graph.NodePersonalValue, 0.5)
	act.Set(graph.NodeRealization, 1.5)

	wn := graph.FillNodeTable(1.0)
	wn.Set(graph.NodeMemory, 0.5)
	wn.Set(graph.NodeEpisodicMemory, 0.25)
	wn.Set(graph.NodeTask, 3.0)
	wn.Set(graph.NodeGoal, 0.5)
	wn.Set(graph.NodeEvent, 2.0)
	wn.Set(graph.NodePerson, 0.3)
	wn.Set(graph.NodeDocument, 0.7)
	wn.Set(graph.NodeMechanism, 0.8)
	wn.Set(graph.NodePrinciple, 0.3)
	wn.Set(graph.NodePersonalValue, 0.3)
	wn.Set(graph.NodeRealization, 1.5)

	return Config{
		Activation: ActivationConfig{
			BaseRate:    0.03,
			Multipliers: act,
			EnergyFloor: 0.001,
		},
		Weight: WeightConfig{
			BaseRate:        1e-6,
			NodeMultipliers: wn,
			LinkMultipliers: graph.FillLinkTable(1.0),
			Floor:           -5,
			Ceiling:         2,
			Every:           60,
		},
		Resistance:    DefaultResistanceConfig(),
		Consolidation: DefaultConsolidationConfig(),
	}
}

// Input carries the per-tick values the clocks need.
type Input struct {
	// Rate is the current activation rate δ (per second).
	Rate float64
	// DT is the tick duration in seconds.
	DT float64
	// Tick is the tick counter; the weight clock runs when Tick is a
	// multiple of Weight.Every.
	Tick uint64
	// Active reports whether a node is above threshold. It feeds the goal
	// term of consolidation and may be nil.
	Active func(*graph.Node) bool
}

// Metrics summarizes one decay pass.
type Metrics struct {
	Rate         float64 `json:"rate"`
	NodesDecayed int     `json:"nodes_decayed"`
	EnergyBefore float64 `json:"energy_before"`
	EnergyAfter  float64 `json:"energy_after"`
	EnergyLost   float64 `json:"energy_lost"`

	WeightDecayApplied bool `json:"weight_decay_applied"`
	NodesWeightDecayed int  `json:"nodes_weight_decayed"`
	LinksWeightDecayed int  `json:"links_weight_decayed"`

	// Half-lives in seconds, keyed by node type name.
	ActivationHalfLives map[string]float64 `json:"activation_half_lives"`
	WeightHalfLives     map[string]float64 `json:"weight_half_lives,omitempty"`
}

// HalfLife returns ln 2 / rate, or +Inf for a non-positive rate.
func HalfLife(rate float64) float64 {
	if rate <= 0 {
		return math.Inf(1)
	}
	return math.Ln2 / rate
}

// EffectiveRate is the activation rate after resistance r ≥ 1 and
// consolidation c ∈ [0,1): rate/r·(1−c).
func EffectiveRate(rate, r, c float64) float64 {
	return rate / math.Max(1, r) * (1 - clamp(c, 0, 1))
}

// Factor returns the multiplicative decay factor over dt:
// exp(−(rate/r)·dt)^(1−c).
func Factor(rate, r, c, dt float64) float64 {
	return math.Exp(-EffectiveRate(rate, r, c) * dt)
}

// Run applies activation decay to every node and, on cadence, weight decay
// to every node and link.
func Run(g *graph.Graph, cfg Config, in Input) Metrics {
	m := Metrics{
		Rate:                in.Rate,
		ActivationHalfLives: cfg.ActivationHalfLives(in.Rate),
	}
	floor := cfg.Activation.EnergyFloor

	for _, n := range g.Nodes() {
		before := n.Energy
		m.EnergyBefore += before
		if before < floor || before == 0 {
			m.EnergyAfter += before
			continue
		}

		rate := in.Rate * cfg.Activation.Multipliers.Get(n.Type)
		r := cfg.Resistance.Of(n)
		c := cfg.Consolidation.Of(g, n, in.Active)
		after := math.Max(floor, before*Factor(rate, r, c, in.DT))
		if after != before {
			m.NodesDecayed++
		}
		n.Energy = after
		m.EnergyAfter += after
	}
	m.EnergyLost = m.EnergyBefore - m.EnergyAfter

	every := max(1, cfg.Weight.Every)
	if in.Tick > 0 && in.Tick%uint64(every) == 0 {
		m.WeightDecayApplied = true
		m.NodesWeightDecayed, m.LinksWeightDecayed = DecayWeights(g, cfg.Weight, float64(every)*in.DT)
		m.WeightHalfLives = cfg.WeightHalfLives()
	}
	return m
}

// DecayWeights lowers log weights by rate·dt and clamps them into
// [Floor, Ceiling]. It returns how many nodes and links changed.
func DecayWeights(g *graph.Graph, cfg WeightConfig, dt float64) (nodes, links int) {
	for _, n := range g.Nodes() {
		next := clamp(n.LogWeight-cfg.BaseRate*cfg.NodeMultipliers.Get(n.Type)*dt, cfg.Floor, cfg.Ceiling)
		if next != n.LogWeight {
			n.LogWeight = next
			nodes++
		}
	}
	for _, l := range g.Links() {
		next := clamp(l.LogWeight-cfg.BaseRate*cfg.LinkMultipliers.Get(l.Type)*dt, cfg.Floor, cfg.Ceiling)
		if next != l.LogWeight {
			l.LogWeight = next
			links++
		}
	}
	return nodes, links
}

// ActivationHalfLives returns the unmodulated activation half-life per node
// type at rate δ. Types that do not decay are omitted.
func (c Config) ActivationHalfLives(delta float64) map[string]float64 {
	return halfLives(delta, c.Activation.Multipliers)
}

// WeightHalfLives returns the time for a node's ease to halve, per type.
func (c Config) WeightHalfLives() map[string]float64 {
	return halfLives(c.Weight.BaseRate, c.Weight.NodeMultipliers)
}

func halfLives(base float64, mult graph.NodeTypeTable) map[string]float64 {
	out := make(map[string]float64, graph.NumNodeTypes)
	for _, t := range graph.NodeTypes() {
		if h := HalfLife(base * mult.Get(t)); !math.IsInf(h, 0) {
			out[t.String()] = h
		}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
