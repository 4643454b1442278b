package diffusion

import (
	"math"

	"github.com/nvandessel/substrate/internal/graph"
	"github.com/nvandessel/substrate/internal/vecmath"
)

// GateConfig configures the emotion gates that modulate traversal cost.
type GateConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Resonance multiplier clamp(exp(−ResonanceLambda·cos), ResonanceMin, ResonanceMax).
	// Aligned affect makes a link cheaper. Defaults: 0.6, [0.6, 1.6].
	ResonanceLambda float64 `yaml:"resonance_lambda" json:"resonance_lambda" validate:"gte=0"`
	ResonanceMin    float64 `yaml:"resonance_min" json:"resonance_min" validate:"gt=0"`
	ResonanceMax    float64 `yaml:"resonance_max" json:"resonance_max" validate:"gtefield=ResonanceMin"`

	// Complementarity multiplier clamp(exp(−ComplementLambda·max(0,−cos)·g_int·g_ctx), ...).
	// Opposed affect makes a link cheaper. Defaults: 0.8, [0.7, 1.5].
	ComplementLambda float64 `yaml:"complement_lambda" json:"complement_lambda" validate:"gte=0"`
	ComplementMin    float64 `yaml:"complement_min" json:"complement_min" validate:"gt=0"`
	ComplementMax    float64 `yaml:"complement_max" json:"complement_max" validate:"gtefield=ComplementMin"`

	// ContextGate scales complementarity by how much the current context
	// calls for regulation. Default: 1.
	ContextGate float64 `yaml:"context_gate" json:"context_gate" validate:"gte=0,lte=1"`
}

// DefaultGateConfig returns the default emotion gates (enabled).
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Enabled:          true,
		ResonanceLambda:  0.6,
		ResonanceMin:     0.6,
		ResonanceMax:     1.6,
		ComplementLambda: 0.8,
		ComplementMin:    0.7,
		ComplementMax:    1.5,
		ContextGate:      1.0,
	}
}

// CostBreakdown records how a link's traversal cost was formed.
type CostBreakdown struct {
	Ease            float64 `json:"ease"`
	EaseCost        float64 `json:"ease_cost"`
	GoalAffinity    float64 `json:"goal_affinity"`
	Resonance       float64 `json:"resonance"`
	Complementarity float64 `json:"complementarity"`
	Total           float64 `json:"total"`
}

// EffectiveEase returns exp of the link's log weight clamped to [lo, hi].
func EffectiveEase(l *graph.Link, lo, hi float64) float64 {
	lw := l.LogWeight
	if math.IsNaN(lw) {
		lw = 0
	}
	return math.Exp(math.Max(lo, math.Min(hi, lw)))
}

// Cost evaluates the traversal cost of l from src to tgt:
// (1/ease − goal_affinity) × resonance × complementarity.
func Cost(cfg Config, src, tgt *graph.Node, l *graph.Link, sc Context) CostBreakdown {
	ease := EffectiveEase(l, cfg.MinLogWeight, cfg.MaxLogWeight)
	b := CostBreakdown{
		Ease:            ease,
		EaseCost:        1 / ease,
		Resonance:       1,
		Complementarity: 1,
	}
	if len(sc.Goal) > 0 && len(tgt.Embedding) > 0 {
		b.GoalAffinity = vecmath.CosineSimilarity(tgt.Embedding, sc.Goal)
	}

	if cfg.Gates.Enabled {
		state := sc.Affect
		if state == nil {
			state = src.Affect
		}
		linkAffect := l.Affect
		if linkAffect == nil {
			linkAffect = tgt.Affect
		}
		b.Resonance, b.Complementarity = cfg.Gates.multipliers(state, linkAffect)
	}

	b.Total = (b.EaseCost - b.GoalAffinity) * b.Resonance * b.Complementarity
	return b
}

// multipliers returns neutral values when either vector is missing or zero.
func (g GateConfig) multipliers(state, link *graph.Affect) (res, comp float64) {
	if state == nil || link == nil {
		return 1, 1
	}
	intensity := state.Magnitude()
	if intensity == 0 || link.Magnitude() == 0 {
		return 1, 1
	}
	cos := vecmath.Cosine(state[:], link[:])

	res = clamp(math.Exp(-g.ResonanceLambda*cos), g.ResonanceMin, g.ResonanceMax)
	opposition := math.Max(0, -cos)
	comp = clamp(math.Exp(-g.ComplementLambda*opposition*math.Min(1, intensity)*g.ContextGate), g.ComplementMin, g.ComplementMax)
	return res, comp
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
