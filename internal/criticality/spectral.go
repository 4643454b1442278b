package criticality

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrDegenerate is returned when power iteration produces a non-finite or
// zero vector.
var ErrDegenerate = errors.New("criticality: degenerate iteration")

// PowerConfig holds configuration for power iteration.
type PowerConfig struct {
	// MaxIterations is the maximum number of power iteration steps. Default: 50.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations" validate:"gte=1"`

	// Tolerance is the convergence threshold on successive ρ estimates.
	// Default: 1e-6.
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"gt=0"`
}

// DefaultPowerConfig returns the default power iteration configuration.
func DefaultPowerConfig() PowerConfig {
	return PowerConfig{
		MaxIterations: 50,
		Tolerance:     1e-6,
	}
}

// Estimate is the result of one spectral radius computation.
type Estimate struct {
	Rho        float64 `json:"rho"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
}

// SpectralRadius estimates ρ(T) by power iteration from a uniform start.
// ctx is checked between iterations. An estimate that has not converged
// after MaxIterations is still returned, with Converged false.
//
// Algorithm:
//  1. x = 1/√N for every row
//  2. y = T·x, ρ = ‖y‖
//  3. x = y/‖y‖, repeat until |ρ − ρ_prev| < Tolerance
func SpectralRadius(ctx context.Context, op *Operator, k Knobs, dt float64, cfg PowerConfig) (Estimate, error) {
	n := op.Len()
	if n == 0 {
		return Estimate{}, ErrEmptyOperator
	}

	x := make([]float64, n)
	y := make([]float64, n)
	start := 1 / math.Sqrt(float64(n))
	for i := range x {
		x[i] = start
	}

	var est Estimate
	prev := math.NaN()
	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return est, fmt.Errorf("spectral radius after %d iterations: %w", est.Iterations, err)
		}
		op.Apply(y, x, k, dt)

		norm := 0.0
		for _, v := range y {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
			return est, ErrDegenerate
		}

		est.Rho = norm
		est.Iterations = iter
		for i := range y {
			x[i] = y[i] / norm
		}
		if math.Abs(norm-prev) < cfg.Tolerance {
			est.Converged = true
			break
		}
		prev = norm
	}
	return est, nil
}
