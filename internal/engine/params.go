package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nvandessel/substrate/internal/criticality"
	"github.com/nvandessel/substrate/internal/decay"
	"github.com/nvandessel/substrate/internal/diffusion"
	"github.com/nvandessel/substrate/internal/safemode"
	"github.com/nvandessel/substrate/internal/strengthening"
	"github.com/nvandessel/substrate/internal/threshold"
)

// validate is shared; validator caches struct metadata.
var validate = validator.New()

// Params is the complete parameter set of the tick engine. It is passed in
// explicitly, copied on update and never shared mutably.
type Params struct {
	// Tick is the tick interval; its length in seconds is Δt. Default: 1s.
	Tick time.Duration `yaml:"tick" json:"tick" validate:"gt=0"`

	// Alpha is the initial redistribution share per tick. The criticality
	// controller may move it when the dual lever is on. Default: 0.1.
	Alpha float64 `yaml:"alpha" json:"alpha" validate:"gt=0,lte=1"`

	// Task selects the criticality target from Criticality.TaskTargets.
	Task string `yaml:"task" json:"task"`

	Threshold     threshold.Config        `yaml:"threshold" json:"threshold"`
	Diffusion     diffusion.Config        `yaml:"diffusion" json:"diffusion"`
	Decay         decay.Config            `yaml:"decay" json:"decay"`
	Strengthening strengthening.Config    `yaml:"strengthening" json:"strengthening"`
	Criticality   criticality.Config      `yaml:"criticality" json:"criticality"`
	SafeMode      safemode.Config         `yaml:"safe_mode" json:"safe_mode"`
	Tripwires     safemode.TripwireConfig `yaml:"tripwires" json:"tripwires"`
	Telemetry     TelemetryConfig         `yaml:"telemetry" json:"telemetry"`
}

// TelemetryConfig controls which events the engine emits.
type TelemetryConfig struct {
	// Strides enables per-candidate stride records.
	Strides bool `yaml:"strides" json:"strides"`

	// StrideRate and StrideBurst sample stride records per source node.
	// Defaults: 2/s and 5.
	StrideRate  float64 `yaml:"stride_rate" json:"stride_rate" validate:"gt=0"`
	StrideBurst int     `yaml:"stride_burst" json:"stride_burst" validate:"gte=1"`

	// QueueLimit bounds pending stimuli. Default: 4096.
	QueueLimit int `yaml:"queue_limit" json:"queue_limit" validate:"gte=1"`

	// BackgroundSampling computes ρ off the tick goroutine during Run.
	BackgroundSampling bool `yaml:"background_sampling" json:"background_sampling"`
}

// DefaultParams returns the default engine parameters.
func DefaultParams() Params {
	return Params{
		Tick:          time.Second,
		Alpha:         0.1,
		Threshold:     threshold.DefaultConfig(),
		Diffusion:     diffusion.DefaultConfig(),
		Decay:         decay.DefaultConfig(),
		Strengthening: strengthening.DefaultConfig(),
		Criticality:   criticality.DefaultConfig(),
		SafeMode:      safemode.DefaultConfig(),
		Tripwires:     safemode.DefaultTripwireConfig(),
		Telemetry: TelemetryConfig{
			Strides:            true,
			StrideRate:         2,
			StrideBurst:        5,
			QueueLimit:         4096,
			BackgroundSampling: true,
		},
	}
}

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	out := p
	if p.Criticality.TaskTargets != nil {
		out.Criticality.TaskTargets = make(map[string]float64, len(p.Criticality.TaskTargets))
		for k, v := range p.Criticality.TaskTargets {
			out.Criticality.TaskTargets[k] = v
		}
	}
	return out
}

// Validate checks struct tags and cross-field constraints.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return formatValidationError(err)
	}
	c := p.Criticality
	if d := p.Decay.Activation.BaseRate; d < c.DeltaMin || d > c.DeltaMax {
		return fmt.Errorf("decay.activation.base_rate: %g outside criticality bounds [%g, %g]", d, c.DeltaMin, c.DeltaMax)
	}
	if p.Alpha < c.AlphaMin || p.Alpha > c.AlphaMax {
		return fmt.Errorf("alpha: %g outside criticality bounds [%g, %g]", p.Alpha, c.AlphaMin, c.AlphaMax)
	}
	if p.Diffusion.Fanout.MinTopK > p.Diffusion.Fanout.SelectiveTopK {
		return fmt.Errorf("diffusion.fanout.min_topk: %d exceeds selective_topk %d", p.Diffusion.Fanout.MinTopK, p.Diffusion.Fanout.SelectiveTopK)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, e := range verrs {
		if e.Param() != "" {
			return fmt.Errorf("%s: must satisfy %s=%s, got %v", e.Namespace(), e.Tag(), e.Param(), e.Value())
		}
		return fmt.Errorf("%s: validation failed (%s)", e.Namespace(), e.Tag())
	}
	return err
}

// Effective is the parameter set a tick actually runs with: the base
// parameters with the safe-mode overrides layered on top.
type Effective struct {
	Params Params `json:"params"`

	// Step is the Δt the energy math uses. It is Params.Tick capped by the
	// safe-mode overrides; Params.Tick stays the tick cadence.
	Step time.Duration `json:"step"`

	// AlphaMultiplier scales the α knob. 1 outside safe mode.
	AlphaMultiplier float64 `json:"alpha_multiplier"`
	// Modes enables criticality mode classification.
	Modes bool `json:"modes"`
	// SampleAllStrides bypasses stride record sampling.
	SampleAllStrides bool `json:"sample_all_strides"`
	// SafeMode reports whether overrides are in force.
	SafeMode bool `json:"safe_mode"`
}

// Resolve layers o over base. A nil o yields the base parameters.
func Resolve(base Params, o *safemode.Overrides) *Effective {
	e := &Effective{
		Params:          base.Clone(),
		Step:            base.Tick,
		AlphaMultiplier: 1,
		Modes:           true,
	}
	if o == nil {
		return e
	}
	p := &e.Params
	e.SafeMode = true
	e.AlphaMultiplier = o.AlphaMultiplier
	e.Step = o.CapDT(base.Tick)
	if o.SingleCandidate {
		p.Diffusion.Fanout.SingleCandidate = true
	}
	if o.DisableSplit {
		p.Diffusion.Split.Enabled = false
	}
	if o.DisableStickiness {
		p.Diffusion.Stickiness.Enabled = false
	}
	if o.DisableEmotionGates {
		p.Diffusion.Gates.Enabled = false
	}
	if o.DisableConsolidation {
		p.Decay.Consolidation.Enabled = false
	}
	if o.DisableResistance {
		p.Decay.Resistance.Enabled = false
	}
	if o.DisableAffectiveMemory {
		p.Strengthening.AffectiveMemory.Enabled = false
	}
	e.Modes = !o.DisableModes
	e.SampleAllStrides = o.TelemetrySampleAll
	return e
}

// DT returns Δt in seconds.
func (e *Effective) DT() float64 {
	return e.Step.Seconds()
}
