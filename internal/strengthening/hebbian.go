// Package strengthening applies the gated Hebbian rule to link weights.
//
// A link is strengthened only while both of its endpoints carry energy but
// are still below their activation thresholds. Links between nodes that are
// already active are left alone: reinforcing links that already dominate the
// flow feeds back on itself and runs away.
package strengthening

import (
	"math"

	"github.com/nvandessel/substrate/internal/graph"
)

// Config configures gated Hebbian learning.
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// LearningRate (eta). Default: 0.01.
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate" validate:"gte=0"`

	// Epsilon is the energy an endpoint must exceed to count as present.
	// Default: 0.001.
	Epsilon float64 `yaml:"epsilon" json:"epsilon" validate:"gte=0"`

	// MinWeight and MaxWeight clamp the result; MaxWeight is also the
	// saturation point w_max. Defaults: 0 and 1.
	MinWeight float64 `yaml:"min_weight" json:"min_weight" validate:"gte=0,lte=1"`
	MaxWeight float64 `yaml:"max_weight" json:"max_weight" validate:"gtfield=MinWeight,lte=1"`

	// HighwayThreshold marks a link as an established highway. Default: 0.7.
	HighwayThreshold float64 `yaml:"highway_threshold" json:"highway_threshold" validate:"gte=0,lte=1"`

	AffectiveMemory AffectiveMemoryConfig `yaml:"affective_memory" json:"affective_memory"`
}

// AffectiveMemoryConfig scales learning by the affect carried by the
// endpoints: 1 + Gain·mean(|A_src|, |A_tgt|), clipped to [Min, Max].
type AffectiveMemoryConfig struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	Gain    float64 `yaml:"gain" json:"gain" validate:"gte=0"`
	Min     float64 `yaml:"min" json:"min" validate:"gt=0"`
	Max     float64 `yaml:"max" json:"max" validate:"gtefield=Min"`
}

// DefaultConfig returns the default strengthening configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		LearningRate:     0.01,
		Epsilon:          0.001,
		MinWeight:        0.0,
		MaxWeight:        1.0,
		HighwayThreshold: 0.7,
		AffectiveMemory: AffectiveMemoryConfig{
			Gain: 0.3,
			Min:  0.6,
			Max:  1.3,
		},
	}
}

// Metrics summarizes one strengthening pass.
type Metrics struct {
	Strengthened int `json:"strengthened"`
	// SkippedActive counts links with an endpoint at or above threshold.
	SkippedActive int     `json:"skipped_active"`
	TotalDelta    float64 `json:"total_delta"`
	MeanDelta     float64 `json:"mean_delta"`
	MaxDelta      float64 `json:"max_delta"`
	NewHighways   int     `json:"new_highways"`
}

// Update returns the new weight after one Hebbian step:
// w + η·E_src·E_tgt·(1 − w/w_max)·mult, clamped into [MinWeight, MaxWeight].
func Update(w, eSrc, eTgt, mult float64, cfg Config) float64 {
	headroom := 1.0
	if cfg.MaxWeight > 0 {
		headroom = 1 - w/cfg.MaxWeight
	}
	dw := cfg.LearningRate * eSrc * eTgt * headroom * mult
	return clampWeight(w+dw, cfg.MinWeight, cfg.MaxWeight)
}

// Eligible reports whether both endpoints are in (ε, θ).
func Eligible(src, tgt *graph.Node, epsilon float64) bool {
	return quiet(src, epsilon) && quiet(tgt, epsilon)
}

func quiet(n *graph.Node, epsilon float64) bool {
	return n.Energy > epsilon && n.Energy < n.Threshold
}

// AffectMultiplier returns the affective memory multiplier, or 1 when disabled.
func (c AffectiveMemoryConfig) AffectMultiplier(src, tgt *graph.Node) float64 {
	if !c.Enabled {
		return 1
	}
	var sum float64
	for _, n := range []*graph.Node{src, tgt} {
		if n.Affect != nil {
			sum += math.Min(1, n.Affect.Magnitude())
		}
	}
	return clampWeight(1+c.Gain*sum/2, c.Min, c.Max)
}

// Run strengthens every eligible traversable link. Node thresholds must be
// current for this tick.
func Run(g *graph.Graph, cfg Config) Metrics {
	var m Metrics
	if !cfg.Enabled {
		return m
	}
	for _, l := range g.Links() {
		if !l.Type.Traversable() {
			continue
		}
		src, err := g.Node(l.Source)
		if err != nil {
			continue
		}
		tgt, err := g.Node(l.Target)
		if err != nil {
			continue
		}
		if src.Energy <= cfg.Epsilon || tgt.Energy <= cfg.Epsilon {
			continue
		}
		if !Eligible(src, tgt, cfg.Epsilon) {
			m.SkippedActive++
			continue
		}

		before := l.Weight
		after := Update(before, src.Energy, tgt.Energy, cfg.AffectiveMemory.AffectMultiplier(src, tgt), cfg)
		dw := after - before
		if dw <= 0 {
			continue
		}
		l.Weight = after
		m.Strengthened++
		m.TotalDelta += dw
		m.MaxDelta = math.Max(m.MaxDelta, dw)
		if before < cfg.HighwayThreshold && after >= cfg.HighwayThreshold {
			m.NewHighways++
		}
	}
	if m.Strengthened > 0 {
		m.MeanDelta = m.TotalDelta / float64(m.Strengthened)
	}
	return m
}

// clampWeight restricts a weight to [min, max]. NaN and Inf map to min.
func clampWeight(w, min, max float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return min
	}
	if w < min {
		return min
	}
	if w > max {
		return max
	}
	return w
}
