package decay

import (
	"math"

	"github.com/nvandessel/substrate/internal/graph"
)

// ResistanceConfig slows decay for central, bridging and durable node types.
type ResistanceConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// DegreeGain·tanh(degree/DegreeScale). Defaults: 0.1 and 20.
	DegreeGain  float64 `yaml:"degree_gain" json:"degree_gain" validate:"gte=0"`
	DegreeScale float64 `yaml:"degree_scale" json:"degree_scale" validate:"gt=0"`

	// BridgeGain·min(1, (groups−1)/BridgeScale) for nodes in several
	// clusters. Defaults: 0.15 and 5.
	BridgeGain  float64 `yaml:"bridge_gain" json:"bridge_gain" validate:"gte=0"`
	BridgeScale float64 `yaml:"bridge_scale" json:"bridge_scale" validate:"gt=0"`

	Types graph.NodeTypeTable `yaml:"types" json:"types"`

	// Max caps the combined factor. Default: 1.5.
	Max float64 `yaml:"max" json:"max" validate:"gte=1"`
}

// DefaultResistanceConfig returns the default resistance (enabled).
func DefaultResistanceConfig() ResistanceConfig {
	types := graph.FillNodeTable(1.0)
	types.Set(graph.NodeMemory, 1.2)
	types.Set(graph.NodeEpisodicMemory, 1.25)
	types.Set(graph.NodePrinciple, 1.15)
	types.Set(graph.NodePersonalValue, 1.15)
	return ResistanceConfig{
		Enabled:     true,
		DegreeGain:  0.1,
		DegreeScale: 20,
		BridgeGain:  0.15,
		BridgeScale: 5,
		Types:       types,
		Max:         1.5,
	}
}

// Of returns r ∈ [1, Max] for n, or 1 when disabled.
func (c ResistanceConfig) Of(n *graph.Node) float64 {
	if !c.Enabled {
		return 1
	}
	degree := float64(len(n.Out()) + len(n.In()))
	rDeg := 1 + c.DegreeGain*math.Tanh(degree/c.DegreeScale)

	groups := 0
	for _, l := range n.Out() {
		if l.Type.Grouping() {
			groups++
		}
	}
	rBridge := 1.0
	if groups > 1 {
		rBridge = 1 + c.BridgeGain*math.Min(1, float64(groups-1)/c.BridgeScale)
	}

	rType := math.Max(1, c.Types.Get(n.Type))
	return math.Min(c.Max, rDeg*rBridge*rType)
}

// ConsolidationConfig slows decay for nodes that are being rehearsed, carry
// strong affect, or serve an active goal.
type ConsolidationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// RetrievalBoost·WMPresence. Default: 0.3.
	RetrievalBoost float64 `yaml:"retrieval_boost" json:"retrieval_boost" validate:"gte=0"`

	// Above AffectThreshold, AffectBoost·(|A|−t)/(1−t), capped at AffectBoost.
	// Defaults: 0.7 and 0.4.
	AffectThreshold float64 `yaml:"affect_threshold" json:"affect_threshold" validate:"gte=0,lt=1"`
	AffectBoost     float64 `yaml:"affect_boost" json:"affect_boost" validate:"gte=0"`

	// GoalBoost applies when the node links to an active goal. Default: 0.5.
	GoalBoost float64 `yaml:"goal_boost" json:"goal_boost" validate:"gte=0"`

	// Max caps c below 1 so decay never stops. Default: 0.8.
	Max float64 `yaml:"max" json:"max" validate:"gte=0,lt=1"`
}

// DefaultConsolidationConfig returns the default consolidation (enabled).
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
		Enabled:         true,
		RetrievalBoost:  0.3,
		AffectThreshold: 0.7,
		AffectBoost:     0.4,
		GoalBoost:       0.5,
		Max:             0.8,
	}
}

// Of returns c ∈ [0, Max] for n, or 0 when disabled. active may be nil.
func (c ConsolidationConfig) Of(g *graph.Graph, n *graph.Node, active func(*graph.Node) bool) float64 {
	if !c.Enabled {
		return 0
	}
	total := c.RetrievalBoost * clamp(n.WMPresence, 0, 1)

	if n.Affect != nil {
		mag := n.Affect.Magnitude()
		if mag > c.AffectThreshold {
			total += clamp(c.AffectBoost*(mag-c.AffectThreshold)/(1-c.AffectThreshold), 0, c.AffectBoost)
		}
	}

	if active != nil && servesActiveGoal(g, n, active) {
		total += c.GoalBoost
	}
	return clamp(total, 0, c.Max)
}

func servesActiveGoal(g *graph.Graph, n *graph.Node, active func(*graph.Node) bool) bool {
	for _, l := range n.Out() {
		switch l.Type {
		case graph.LinkRelatesTo, graph.LinkEnables, graph.LinkRequires:
		default:
			continue
		}
		tgt, err := g.Node(l.Target)
		if err != nil || tgt.Type != graph.NodeGoal {
			continue
		}
		if active(tgt) {
			return true
		}
	}
	return false
}
