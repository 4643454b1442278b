// Package threshold computes the adaptive activation threshold for each node.
//
// The base threshold is μ + z·σ over quiescent energy samples, which fixes
// the false-positive activation rate. It is raised by modulation factors
// that are each ≥ 1: a criticality guard when the system runs supercritical,
// load shedding under compute overload, and a safety factor driven by the
// criticality safety state.
package threshold

import (
	"math"
)

// Config holds parameters for threshold computation.
type Config struct {
	// ZAlpha is the z-score for the target false-positive rate.
	// Default: 1.28 (about 10% false positives).
	ZAlpha float64 `yaml:"z_alpha" json:"z_alpha" validate:"gte=0"`

	// Kappa is the sigmoid steepness of the soft activation test.
	// Default: 10.
	Kappa float64 `yaml:"kappa" json:"kappa" validate:"gt=0"`

	// EMAAlpha is the smoothing factor for noise statistics.
	// Default: 0.1.
	EMAAlpha float64 `yaml:"ema_alpha" json:"ema_alpha" validate:"gt=0,lte=1"`

	// InitialMu and InitialSigma are used before a node has any sample.
	// InitialSigma is also the σ assigned on the first sample.
	InitialMu    float64 `yaml:"initial_mu" json:"initial_mu" validate:"gte=0"`
	InitialSigma float64 `yaml:"initial_sigma" json:"initial_sigma" validate:"gte=0"`

	// Floor is the minimum threshold, so a silent node is never active at zero energy.
	// Default: 0.001.
	Floor float64 `yaml:"floor" json:"floor" validate:"gte=0"`

	// CriticalityGuard enables 1 + LambdaRho·max(0, ρ−1).
	CriticalityGuard bool    `yaml:"criticality_guard" json:"criticality_guard"`
	LambdaRho        float64 `yaml:"lambda_rho" json:"lambda_rho" validate:"gte=0"`

	// LoadShedding enables 1 + LambdaLoad·max(0, load_delta).
	LoadShedding bool    `yaml:"load_shedding" json:"load_shedding"`
	LambdaLoad   float64 `yaml:"lambda_load" json:"lambda_load" validate:"gte=0"`

	// SafetyGuard enables max(1, safety multiplier).
	SafetyGuard bool `yaml:"safety_guard" json:"safety_guard"`
}

// DefaultConfig returns the default threshold configuration.
func DefaultConfig() Config {
	return Config{
		ZAlpha:           1.28,
		Kappa:            10.0,
		EMAAlpha:         0.1,
		InitialMu:        0.02,
		InitialSigma:     0.01,
		Floor:            0.001,
		CriticalityGuard: true,
		LambdaRho:        0.5,
		LoadShedding:     true,
		LambdaLoad:       0.3,
		SafetyGuard:      true,
	}
}

// Modulation carries the system-level signals that raise the threshold.
type Modulation struct {
	// Rho is the last sampled spectral radius.
	Rho float64
	// LoadDelta is the relative compute overload; positive means over budget.
	LoadDelta float64
	// SafetyMultiplier comes from the criticality safety state; values below
	// 1 are ignored.
	SafetyMultiplier float64
}

// Neutral returns a modulation that leaves the base threshold unchanged.
func Neutral() Modulation {
	return Modulation{Rho: 1, SafetyMultiplier: 1}
}

// Base returns μ + z·σ.
func Base(mu, sigma, z float64) float64 {
	return mu + z*math.Max(0, sigma)
}

// Factors returns the individual modulation factors. Disabled factors are 1.
func (c Config) Factors(m Modulation) (rho, load, safety float64) {
	rho, load, safety = 1, 1, 1
	if c.CriticalityGuard && finite(m.Rho) {
		rho = 1 + c.LambdaRho*math.Max(0, m.Rho-1)
	}
	if c.LoadShedding && finite(m.LoadDelta) {
		load = 1 + c.LambdaLoad*math.Max(0, m.LoadDelta)
	}
	if c.SafetyGuard && finite(m.SafetyMultiplier) {
		safety = math.Max(1, m.SafetyMultiplier)
	}
	return rho, load, safety
}

// Compute returns the modulated threshold for the given noise statistics.
func (c Config) Compute(stats NoiseStats, m Modulation) float64 {
	base := math.Max(c.Floor, Base(stats.Mu, stats.Sigma, c.ZAlpha))
	fr, fl, fs := c.Factors(m)
	return base * fr * fl * fs
}

// Soft returns sigmoid(κ(E−θ)), a graded activation in (0,1).
func Soft(energy, theta, kappa float64) float64 {
	return 1.0 / (1.0 + math.Exp(-kappa*(energy-theta)))
}

// Hard is the canonical activation predicate: E ≥ θ.
func Hard(energy, theta float64) bool {
	return energy >= theta
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
