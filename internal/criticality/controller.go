package criticality

import (
	"math"
	"time"
)

// Knobs are the two parameters the controller steers.
type Knobs struct {
	// Delta is the activation decay rate δ per second.
	Delta float64 `json:"delta"`
	// Alpha is the per-tick redistribution share α.
	Alpha float64 `json:"alpha"`
}

// Config configures the criticality controller.
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Target ρ and the tolerance band around it. Defaults: 1.0 and 0.1.
	Target    float64 `yaml:"target" json:"target" validate:"gt=0"`
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"gte=0"`

	// Kp is the proportional gain on δ. Default: 0.05.
	Kp float64 `yaml:"kp" json:"kp" validate:"gte=0"`

	// DualLever also moves α with gain KAlpha. Default: off, 0.02.
	DualLever bool    `yaml:"dual_lever" json:"dual_lever"`
	KAlpha    float64 `yaml:"k_alpha" json:"k_alpha" validate:"gte=0"`

	DeltaMin float64 `yaml:"delta_min" json:"delta_min" validate:"gt=0"`
	DeltaMax float64 `yaml:"delta_max" json:"delta_max" validate:"gtfield=DeltaMin"`
	AlphaMin float64 `yaml:"alpha_min" json:"alpha_min" validate:"gte=0"`
	AlphaMax float64 `yaml:"alpha_max" json:"alpha_max" validate:"gtfield=AlphaMin,lte=1"`

	// SampleEvery is the sampling cadence in ticks. Default: 5.
	SampleEvery int `yaml:"sample_every" json:"sample_every" validate:"gte=1"`

	// Window is the length of the ρ history. Default: 20.
	Window int `yaml:"window" json:"window" validate:"gte=2"`

	PID PIDConfig `yaml:"pid" json:"pid"`

	// TaskTargets overrides Target per task context.
	TaskTargets map[string]float64 `yaml:"task_targets" json:"task_targets" validate:"dive,gt=0"`

	// SampleTimeout bounds one background estimate. Default: 50ms.
	SampleTimeout time.Duration `yaml:"sample_timeout" json:"sample_timeout" validate:"gt=0"`

	Power PowerConfig `yaml:"power" json:"power"`
}

// PIDConfig adds integral and derivative terms to the δ update.
type PIDConfig struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	Ki      float64 `yaml:"ki" json:"ki" validate:"gte=0"`
	Kd      float64 `yaml:"kd" json:"kd" validate:"gte=0"`
	// IntegralClip bounds the accumulated error. Default: 1.
	IntegralClip float64 `yaml:"integral_clip" json:"integral_clip" validate:"gt=0"`
}

// DefaultConfig returns the default criticality configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Target:      1.0,
		Tolerance:   0.1,
		Kp:          0.05,
		KAlpha:      0.02,
		DeltaMin:    0.001,
		DeltaMax:    0.2,
		AlphaMin:    0.05,
		AlphaMax:    0.3,
		SampleEvery: 5,
		Window:      20,
		PID: PIDConfig{
			Ki:           0.01,
			Kd:           0.02,
			IntegralClip: 1.0,
		},
		TaskTargets: map[string]float64{
			"explore":     1.05,
			"implement":   0.95,
			"consolidate": 0.85,
			"rest":        0.70,
		},
		SampleTimeout: 50 * time.Millisecond,
		Power:         DefaultPowerConfig(),
	}
}

// TargetFor returns the ρ target for a task context.
func (c Config) TargetFor(task string) float64 {
	if t, ok := c.TaskTargets[task]; ok {
		return t
	}
	return c.Target
}

// State is the controller's view after a sample.
type State struct {
	Tick        uint64      `json:"tick"`
	Rho         float64     `json:"rho"`
	Target      float64     `json:"target"`
	Error       float64     `json:"error"`
	Knobs       Knobs       `json:"knobs"`
	Adjusted    bool        `json:"adjusted"`
	Safety      SafetyState `json:"safety"`
	Mode        Mode        `json:"mode"`
	Variance    float64     `json:"variance"`
	Oscillation float64     `json:"oscillation"`
	OutOfBand   int         `json:"out_of_band"`
	Iterations  int         `json:"iterations"`
	Converged   bool        `json:"converged"`
}

// Controller adjusts the knobs from ρ samples. It is not safe for
// concurrent use; the tick goroutine owns it.
type Controller struct {
	cfg   Config
	knobs Knobs

	history  []float64
	next     int
	filled   bool
	integral float64
	prevErr  float64
	hasPrev  bool
	outBand  int
	last     State
}

// NewController creates a controller starting from k, clamped into bounds.
func NewController(cfg Config, k Knobs) *Controller {
	c := &Controller{cfg: cfg}
	c.SetConfig(cfg)
	c.knobs = c.clampKnobs(k)
	return c
}

// SetConfig replaces the configuration. The ρ history is kept if the window
// length is unchanged.
func (c *Controller) SetConfig(cfg Config) {
	if cfg.Window != len(c.history) {
		c.history = make([]float64, max(2, cfg.Window))
		c.next, c.filled = 0, false
	}
	c.cfg = cfg
	c.knobs = c.clampKnobs(c.knobs)
}

// Knobs returns the current knobs.
func (c *Controller) Knobs() Knobs { return c.knobs }

// SetKnobs overrides the knobs, clamped into bounds.
func (c *Controller) SetKnobs(k Knobs) { c.knobs = c.clampKnobs(k) }

// Last returns the state after the most recent sample.
func (c *Controller) Last() State { return c.last }

// Reset clears history and controller memory. Knobs are kept.
func (c *Controller) Reset() {
	c.history = make([]float64, max(2, c.cfg.Window))
	c.next, c.filled = 0, false
	c.integral, c.prevErr, c.hasPrev = 0, 0, false
	c.outBand = 0
	c.last = State{}
}

// Observe feeds one estimate into the controller and returns the new state.
// Knobs move only when |ρ − target| exceeds the tolerance. coherence feeds
// the mode classification; modes are skipped when classifyModes is false.
func (c *Controller) Observe(tick uint64, est Estimate, task string, coherence float64, classifyModes bool) State {
	target := c.cfg.TargetFor(task)
	err := est.Rho - target

	c.push(est.Rho)

	s := State{
		Tick:       tick,
		Rho:        est.Rho,
		Target:     target,
		Error:      err,
		Safety:     SafetyFor(est.Rho),
		Mode:       ModeUnknown,
		Iterations: est.Iterations,
		Converged:  est.Converged,
	}
	if classifyModes {
		s.Mode = ClassifyMode(est.Rho, coherence)
	}

	if math.Abs(err) > c.cfg.Tolerance {
		c.outBand++
		if c.cfg.Enabled {
			c.adjust(err)
			s.Adjusted = true
		}
	} else {
		c.outBand = 0
	}
	c.prevErr, c.hasPrev = err, true

	s.Knobs = c.knobs
	s.OutOfBand = c.outBand
	s.Variance, s.Oscillation = c.windowStats(target)
	c.last = s
	return s
}

func (c *Controller) adjust(err float64) {
	u := c.cfg.Kp * err
	if c.cfg.PID.Enabled {
		c.integral = clamp(c.integral+err, -c.cfg.PID.IntegralClip, c.cfg.PID.IntegralClip)
		u += c.cfg.PID.Ki * c.integral
		if c.hasPrev {
			u += c.cfg.PID.Kd * (err - c.prevErr)
		}
	}
	k := c.knobs
	k.Delta += u
	if c.cfg.DualLever {
		k.Alpha -= c.cfg.KAlpha * err
	}
	c.knobs = c.clampKnobs(k)
}

func (c *Controller) clampKnobs(k Knobs) Knobs {
	if c.cfg.DeltaMax > 0 {
		k.Delta = clamp(k.Delta, c.cfg.DeltaMin, c.cfg.DeltaMax)
	}
	if c.cfg.AlphaMax > 0 {
		k.Alpha = clamp(k.Alpha, c.cfg.AlphaMin, c.cfg.AlphaMax)
	}
	return k
}

func (c *Controller) push(rho float64) {
	c.history[c.next] = rho
	c.next = (c.next + 1) % len(c.history)
	if c.next == 0 {
		c.filled = true
	}
}

// window returns the history oldest first.
func (c *Controller) window() []float64 {
	if !c.filled {
		return c.history[:c.next]
	}
	out := make([]float64, 0, len(c.history))
	out = append(out, c.history[c.next:]...)
	return append(out, c.history[:c.next]...)
}

// windowStats returns the variance of ρ and the fraction of consecutive
// samples whose error changed sign.
func (c *Controller) windowStats(target float64) (variance, oscillation float64) {
	w := c.window()
	if len(w) < 2 {
		return 0, 0
	}
	var mean float64
	for _, v := range w {
		mean += v
	}
	mean /= float64(len(w))
	for _, v := range w {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(w))

	flips := 0
	for i := 1; i < len(w); i++ {
		a, b := w[i-1]-target, w[i]-target
		if a*b < 0 {
			flips++
		}
	}
	return variance, float64(flips) / float64(len(w))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
