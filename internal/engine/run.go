package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nvandessel/substrate/internal/criticality"
	"github.com/nvandessel/substrate/internal/logging"
)

// Run ticks on the configured interval until ctx is done. When background
// sampling is enabled, ρ is computed on a sampler goroutine that Run owns.
// A tick that finds another in flight is skipped. Run returns nil when ctx
// is cancelled and the first tick error otherwise.
func (e *Engine) Run(ctx context.Context) error {
	p := e.Params().Params
	if p.Telemetry.BackgroundSampling {
		s := criticality.NewSampler(p.Criticality.Power, p.Criticality.SampleTimeout)
		s.Start(ctx)
		e.setSampler(s)
		defer func() {
			e.setSampler(nil)
			_ = s.Close()
		}()
	}

	interval := p.Tick
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("engine started", "interval", interval, "nodes", e.graph.Len(), "background_sampling", p.Telemetry.BackgroundSampling)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped", "tick", e.tick.Load())
			return nil
		case <-ticker.C:
		}

		sum, err := e.Tick(ctx)
		switch {
		case errors.Is(err, ErrTickInProgress):
			e.logger.Debug("tick skipped, previous tick still running")
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return err
		}
		e.logger.Log(ctx, levelFor(sum), "tick",
			"tick", sum.Tick,
			"active", sum.Active,
			"energy", sum.Energy,
			"strides", sum.Strides,
			"rho", sum.Rho,
			"safe_mode", sum.SafeMode,
		)

		if next := e.Params().Params.Tick; next != interval {
			interval = next
			ticker.Reset(interval)
			e.logger.Info("tick interval changed", "interval", interval)
		}
	}
}

func (e *Engine) setSampler(s *criticality.Sampler) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.sampler = s
}

// levelFor logs quiet ticks at trace level and ticks with violations as warnings.
func levelFor(s *Summary) slog.Level {
	if s.Violations > 0 {
		return slog.LevelWarn
	}
	if s.Sampled {
		return slog.LevelDebug
	}
	return logging.LevelTrace
}
