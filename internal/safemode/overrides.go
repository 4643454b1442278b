package safemode

import "time"

// Overrides is the conservative parameter set applied while in SAFE_MODE.
// The engine layers it over the base parameters in a single swap.
type Overrides struct {
	// AlphaMultiplier scales redistribution. Default: 0.3.
	AlphaMultiplier float64 `yaml:"alpha_multiplier" json:"alpha_multiplier" validate:"gt=0,lte=1"`

	// DTCap bounds the tick duration. Default: 1s.
	DTCap time.Duration `yaml:"dt_cap" json:"dt_cap" validate:"gte=0"`

	SingleCandidate        bool `yaml:"single_candidate" json:"single_candidate"`
	DisableSplit           bool `yaml:"disable_split" json:"disable_split"`
	DisableConsolidation   bool `yaml:"disable_consolidation" json:"disable_consolidation"`
	DisableResistance      bool `yaml:"disable_resistance" json:"disable_resistance"`
	DisableStickiness      bool `yaml:"disable_stickiness" json:"disable_stickiness"`
	DisableEmotionGates    bool `yaml:"disable_emotion_gates" json:"disable_emotion_gates"`
	DisableModes           bool `yaml:"disable_modes" json:"disable_modes"`
	DisableAffectiveMemory bool `yaml:"disable_affective_memory" json:"disable_affective_memory"`

	// TelemetrySampleAll emits every stride record instead of a sample.
	TelemetrySampleAll bool `yaml:"telemetry_sample_all" json:"telemetry_sample_all"`
}

// DefaultOverrides returns the default safe-mode overrides.
func DefaultOverrides() Overrides {
	return Overrides{
		AlphaMultiplier:        0.3,
		DTCap:                  time.Second,
		SingleCandidate:        true,
		DisableSplit:           true,
		DisableConsolidation:   true,
		DisableResistance:      true,
		DisableStickiness:      true,
		DisableEmotionGates:    true,
		DisableModes:           true,
		DisableAffectiveMemory: true,
		TelemetrySampleAll:     true,
	}
}

// CapDT returns dt limited by DTCap. A zero cap leaves dt unchanged.
func (o Overrides) CapDT(dt time.Duration) time.Duration {
	if o.DTCap > 0 && dt > o.DTCap {
		return o.DTCap
	}
	return dt
}
