package diffusion

import (
	"math"

	"github.com/nvandessel/substrate/internal/graph"
)

// StickinessConfig sets the fraction of an incoming transfer a target keeps.
// The rest dissipates.
type StickinessConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Types is the base stickiness per node type.
	Types graph.NodeTypeTable `yaml:"types" json:"types"`

	// ConsolidatedBoost is added for consolidated nodes. Default: 0.2.
	ConsolidatedBoost float64 `yaml:"consolidated_boost" json:"consolidated_boost" validate:"gte=0"`

	// CentralityGain·tanh(degree/CentralityScale) is added for hubs.
	// Defaults: 0.1 and 20.
	CentralityGain  float64 `yaml:"centrality_gain" json:"centrality_gain" validate:"gte=0"`
	CentralityScale float64 `yaml:"centrality_scale" json:"centrality_scale" validate:"gt=0"`

	// Min and Max clip the result. Defaults: 0.1 and 1.0.
	Min float64 `yaml:"min" json:"min" validate:"gt=0,lte=1"`
	Max float64 `yaml:"max" json:"max" validate:"gtefield=Min,lte=1"`
}

// DefaultStickinessConfig returns the default stickiness table (enabled).
func DefaultStickinessConfig() StickinessConfig {
	types := graph.FillNodeTable(0.6)
	types.Set(graph.NodeMemory, 0.9)
	types.Set(graph.NodeEpisodicMemory, 0.9)
	types.Set(graph.NodePrinciple, 0.85)
	types.Set(graph.NodePersonalValue, 0.85)
	types.Set(graph.NodeTask, 0.3)
	types.Set(graph.NodeEvent, 0.4)
	return StickinessConfig{
		Enabled:           true,
		Types:             types,
		ConsolidatedBoost: 0.2,
		CentralityGain:    0.1,
		CentralityScale:   20,
		Min:               0.1,
		Max:               1.0,
	}
}

// Of returns the stickiness of n in [Min, Max], or 1 when disabled.
func (c StickinessConfig) Of(n *graph.Node) float64 {
	if !c.Enabled {
		return 1
	}
	s := c.Types.Get(n.Type)
	if n.Consolidated {
		s += c.ConsolidatedBoost
	}
	degree := float64(len(n.Out()) + len(n.In()))
	s += c.CentralityGain * math.Tanh(degree/c.CentralityScale)
	return clamp(s, c.Min, c.Max)
}
