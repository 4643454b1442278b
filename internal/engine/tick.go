package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nvandessel/substrate/internal/criticality"
	"github.com/nvandessel/substrate/internal/decay"
	"github.com/nvandessel/substrate/internal/diffusion"
	"github.com/nvandessel/substrate/internal/events"
	"github.com/nvandessel/substrate/internal/graph"
	"github.com/nvandessel/substrate/internal/safemode"
	"github.com/nvandessel/substrate/internal/strengthening"
	"github.com/nvandessel/substrate/internal/threshold"
)

// strideIdle is how long a source may go without a stride record before
// its sampling bucket is dropped.
const strideIdle = 10 * time.Minute

// Summary is the per-tick report published as tick.summary.
//
// The summary returned by Tick also carries the publish outcome:
// PublishErrors, the observability violation and SafeMode after any
// transition it caused. The published copy is sent before that outcome is
// known, so subscribers receive it in the next tick's PriorPublish.
type Summary struct {
	Tick     uint64        `json:"tick"`
	At       time.Time     `json:"at"`
	DT       float64       `json:"dt"`
	Duration time.Duration `json:"duration"`

	Stimuli        int `json:"stimuli"`
	StimulusErrors int `json:"stimulus_errors,omitempty"`
	UpdatesApplied int `json:"updates_applied,omitempty"`
	UpdateErrors   int `json:"update_errors,omitempty"`

	Nodes    int     `json:"nodes"`
	Active   int     `json:"active"`
	Frontier float64 `json:"frontier"`
	Energy   float64 `json:"energy"`

	Strides           int     `json:"strides"`
	Evaluated         int     `json:"evaluated"`
	Transferred       float64 `json:"transferred"`
	Dissipated        float64 `json:"dissipated"`
	ConservationError float64 `json:"conservation_error"`
	Clamped           int     `json:"clamped,omitempty"`

	EnergyDecayed float64 `json:"energy_decayed"`
	WeightDecay   bool    `json:"weight_decay,omitempty"`

	Strengthened int `json:"strengthened"`
	NewHighways  int `json:"new_highways,omitempty"`

	Sampled bool    `json:"sampled"`
	Rho     float64 `json:"rho"`
	Safety  string  `json:"safety,omitempty"`
	// Knobs are the controller knobs after this tick's adjustment.
	Knobs criticality.Knobs `json:"knobs"`

	SafeMode      bool `json:"safe_mode"`
	Violations    int  `json:"violations"`
	PublishErrors int  `json:"publish_errors,omitempty"`

	PriorPublish *PublishOutcome `json:"prior_publish,omitempty"`
}

// PublishOutcome is a tick's publish result that its own published summary
// could not include. It is set only when publishing failed or changed the
// safe-mode state.
type PublishOutcome struct {
	Tick     uint64 `json:"tick"`
	Errors   int    `json:"errors"`
	SafeMode bool   `json:"safe_mode"`
}

// tickState carries one tick's intermediate results.
type tickState struct {
	tick    uint64
	at      time.Time
	sum     *Summary
	pending []events.Event
}

func (t *tickState) emit(kind events.Kind, payload any) {
	t.pending = append(t.pending, events.New(kind, t.tick, t.at, payload))
}

// Tick runs one full tick. ctx is checked only before the tick starts; a
// started tick always completes.
func (e *Engine) Tick(ctx context.Context) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !e.tickMu.TryLock() {
		return nil, ErrTickInProgress
	}
	defer e.tickMu.Unlock()

	started := time.Now()
	t := &tickState{tick: e.tick.Load() + 1, at: e.nowFunc()}
	t.sum = &Summary{Tick: t.tick, At: t.at, PriorPublish: e.late}
	e.late = nil

	// Phase 1: drain queues at the boundary.
	stimuli, sig := e.drain(t)
	eff := e.params.Load()
	p := eff.Params
	dt := eff.DT()
	knobs := e.ctrl.Knobs()
	t.sum.DT = dt
	e.applyStimuli(t, stimuli)

	// Phase 2: thresholds and the active frontier.
	active := e.thresholds(p.Threshold, sig, len(stimuli) == 0)
	nodes := e.graph.Len()
	t.sum.Nodes = nodes
	t.sum.Active = len(active)
	if nodes > 0 {
		t.sum.Frontier = float64(len(active)) / float64(nodes)
	}

	// Phase 3: diffusion.
	sc := diffusion.Context{
		Alpha:      knobs.Alpha * eff.AlphaMultiplier,
		DT:         dt,
		Goal:       sig.goal,
		Affect:     sig.affect,
		WMHeadroom: sig.wmHeadroom,
	}
	if p.Telemetry.Strides {
		// One sampling decision per source and tick, so a source's
		// candidate records are emitted together or not at all.
		sampled := make(map[string]bool)
		sc.Record = func(r diffusion.StrideRecord) {
			keep, seen := sampled[r.Source]
			if !seen {
				keep = eff.SampleAllStrides || e.strides.Allow(r.Source)
				sampled[r.Source] = keep
			}
			if keep {
				t.emit(events.KindStride, r)
			}
		}
	}
	res, err := diffusion.Step(e.graph, active, p.Diffusion, sc)
	if err != nil {
		return nil, fmt.Errorf("tick %d: diffusion: %w", t.tick, err)
	}
	t.sum.Strides = res.Strides
	t.sum.Evaluated = res.Evaluated
	t.sum.Transferred = res.Transferred
	t.sum.Dissipated = res.Dissipated()

	// Phase 4: conservation check on the staged deltas.
	var violations []safemode.Violation
	cerr := res.Staging.ConservationError()
	t.sum.ConservationError = cerr
	if math.Abs(cerr) > p.Tripwires.ConservationEpsilon || math.IsNaN(cerr) {
		violations = append(violations, safemode.Violation{
			Type:      safemode.TripwireConservation,
			Tick:      t.tick,
			Value:     cerr,
			Threshold: p.Tripwires.ConservationEpsilon,
			Message:   fmt.Sprintf("staged energy changed by %.6g beyond stickiness loss", cerr),
		})
	}

	// Phase 5: apply.
	ar, err := res.Staging.Apply(e.graph)
	if err != nil {
		return nil, fmt.Errorf("tick %d: apply: %w", t.tick, err)
	}
	t.sum.Clamped = ar.Clamped
	if ar.Clamped > 0 {
		violations = append(violations, safemode.Violation{
			Type:    safemode.TripwireConservation,
			Tick:    t.tick,
			Value:   -ar.ClampedEnergy,
			Message: fmt.Sprintf("%d nodes would have gone negative", ar.Clamped),
		})
	}

	// Phase 6: decay.
	dm := decay.Run(e.graph, p.Decay, decay.Input{
		Rate: knobs.Delta,
		DT:   dt,
		Tick: t.tick,
		Active: func(n *graph.Node) bool {
			return threshold.Hard(n.Energy, n.Threshold)
		},
	})
	t.sum.EnergyDecayed = dm.EnergyLost
	t.sum.WeightDecay = dm.WeightDecayApplied
	t.emit(events.KindDecay, dm)
	if dm.WeightDecayApplied {
		e.prune(t)
	}

	// Phase 7: strengthening.
	sm := strengthening.Run(e.graph, p.Strengthening)
	t.sum.Strengthened = sm.Strengthened
	t.sum.NewHighways = sm.NewHighways
	t.emit(events.KindStrengthening, sm)

	// Phase 8: criticality.
	critViolation, sampled := e.sampleCriticality(ctx, t, eff, sc.Alpha, sig.coherence)

	// Phase 9: tripwires.
	if critViolation != nil {
		violations = append(violations, *critViolation)
	}
	if t.sum.Frontier > p.Tripwires.FrontierFraction {
		violations = append(violations, safemode.Violation{
			Type:      safemode.TripwireFrontier,
			Tick:      t.tick,
			Value:     t.sum.Frontier,
			Threshold: p.Tripwires.FrontierFraction,
			Message:   fmt.Sprintf("%d of %d nodes active", len(active), nodes),
		})
	}
	e.evaluateTripwires(t, violations, sampled)
	t.sum.Violations = len(violations)
	t.sum.Energy = e.graph.TotalEnergy()
	t.sum.SafeMode = e.safe.Active()
	t.sum.Knobs = e.ctrl.Knobs()

	// Phase 10: publish.
	e.tick.Store(t.tick)
	t.sum.Duration = time.Since(started)
	t.emit(events.KindTickSummary, *t.sum)
	e.publish(ctx, t)
	e.last.Store(t.sum)
	return t.sum, nil
}

func (e *Engine) drain(t *tickState) ([]Stimulus, signals) {
	e.mu.Lock()
	stimuli := e.stimuli
	e.stimuli = nil
	updates := e.updates
	e.updates = nil
	sig := e.sig

	var changed bool
	prev := e.base
	if len(updates) > 0 {
		next := e.base.Clone()
		for _, fn := range updates {
			fn(&next)
		}
		if err := next.Validate(); err != nil {
			t.sum.UpdateErrors = len(updates)
			e.logger.Error("rejected parameter update", "tick", t.tick, "error", err)
		} else {
			e.base = next
			t.sum.UpdatesApplied = len(updates)
			changed = true
		}
	}
	base := e.base
	e.mu.Unlock()

	if changed {
		e.applyBase(prev, base)
	}
	return stimuli, sig
}

// applyBase pushes new base parameters into the components.
func (e *Engine) applyBase(prev, base Params) {
	e.noise.SetConfig(base.Threshold)
	e.ctrl.SetConfig(base.Criticality)
	if prev.Decay.Activation.BaseRate != base.Decay.Activation.BaseRate || prev.Alpha != base.Alpha {
		e.ctrl.SetKnobs(criticality.Knobs{Delta: base.Decay.Activation.BaseRate, Alpha: base.Alpha})
	}
	e.safe.SetConfig(base.SafeMode)
	if prev.Telemetry.StrideRate != base.Telemetry.StrideRate || prev.Telemetry.StrideBurst != base.Telemetry.StrideBurst {
		e.strides = newStrideLimiter(base.Telemetry, e.nowFunc)
	}
	e.params.Store(Resolve(base, e.safe.Overrides()))
	e.logger.Info("parameters updated")
}

// prune drops per-node bookkeeping that has gone stale: stride buckets idle
// past strideIdle and noise statistics of nodes no longer in the graph, so
// a node re-added under the same ID starts from the initial statistics.
func (e *Engine) prune(t *tickState) {
	buckets := e.strides.Prune(strideIdle)
	stats := e.noise.Retain(func(id string) bool {
		_, err := e.graph.Node(id)
		return err == nil
	})
	if buckets > 0 || stats > 0 {
		e.logger.Debug("pruned node state", "tick", t.tick,
			"stride_buckets", buckets, "noise_stats", stats,
			"tracked_sources", e.strides.Len(), "tracked_nodes", e.noise.Len())
	}
}

func (e *Engine) applyStimuli(t *tickState, stimuli []Stimulus) {
	t.sum.Stimuli = len(stimuli)
	for _, s := range stimuli {
		n, err := e.graph.Node(s.NodeID)
		if err != nil {
			t.sum.StimulusErrors++
			serr := &StimulusError{Stimulus: s, Err: err}
			e.logger.Warn("dropped stimulus", "tick", t.tick, "error", serr)
			t.emit(events.KindStimulusDropped, map[string]any{
				"node_id": s.NodeID,
				"energy":  s.Energy,
				"error":   serr.Error(),
			})
			continue
		}
		n.Energy += s.Energy
	}
}

// thresholds sets every node's θ for this tick and returns the nodes with
// E ≥ θ in graph order.
func (e *Engine) thresholds(cfg threshold.Config, sig signals, quiet bool) []*graph.Node {
	mod := threshold.Neutral()
	mod.LoadDelta = sig.loadDelta
	if e.hasRho {
		mod.Rho = e.lastRho
		mod.SafetyMultiplier = criticality.SafetyFor(e.lastRho).ThresholdMultiplier()
	}

	var active []*graph.Node
	for _, n := range e.graph.Nodes() {
		n.Threshold = cfg.Compute(e.noise.Stats(n.ID), mod)
		if threshold.Hard(n.Energy, n.Threshold) {
			active = append(active, n)
		}
		e.noise.Observe(n.ID, n.Energy, quiet)
	}
	return active
}

// sampleCriticality submits or computes a ρ sample on cadence and feeds any
// finished sample to the controller. It returns a criticality violation, if
// any, and whether a sample was observed this tick.
func (e *Engine) sampleCriticality(ctx context.Context, t *tickState, eff *Effective, alpha, coherence float64) (*safemode.Violation, bool) {
	p := eff.Params
	cc := p.Criticality
	var sample criticality.Sample
	var have bool

	if cc.SampleEvery > 0 && t.tick%uint64(cc.SampleEvery) == 0 && e.graph.Len() > 0 {
		lo, hi := p.Diffusion.MinLogWeight, p.Diffusion.MaxLogWeight
		snap := criticality.Snapshot{
			Tick: t.tick,
			Op: criticality.BuildOperator(e.graph, func(l *graph.Link) float64 {
				return diffusion.EffectiveEase(l, lo, hi)
			}),
			Knobs: criticality.Knobs{Delta: e.ctrl.Knobs().Delta, Alpha: alpha},
			DT:    eff.DT(),
		}
		if e.sampler != nil {
			if e.sampler.Submit(snap) {
				e.logger.Debug("criticality sample superseded", "tick", t.tick)
			}
		} else {
			sample, have = e.sampleNow(ctx, snap, cc)
		}
	}
	if e.sampler != nil {
		sample, have = e.sampler.Take()
	}
	if !have {
		return nil, false
	}
	if sample.Err != nil {
		e.logger.Warn("criticality sample failed, holding knobs", "tick", t.tick, "sample_tick", sample.Tick, "error", sample.Err)
		return nil, false
	}

	st := e.ctrl.Observe(sample.Tick, sample.Estimate, p.Task, coherence, eff.Modes)
	e.lastRho, e.hasRho = st.Rho, true
	t.sum.Sampled = true
	t.sum.Rho = st.Rho
	t.sum.Safety = st.Safety.String()
	t.emit(events.KindCriticality, st)
	if st.Adjusted {
		e.logger.Debug("criticality adjusted", "tick", t.tick, "rho", st.Rho, "delta", st.Knobs.Delta, "alpha", st.Knobs.Alpha)
	}

	tw := p.Tripwires
	if st.Rho < tw.RhoMin || st.Rho > tw.RhoMax {
		limit := tw.RhoMax
		if st.Rho < tw.RhoMin {
			limit = tw.RhoMin
		}
		return &safemode.Violation{
			Type:      safemode.TripwireCriticality,
			Tick:      t.tick,
			Value:     st.Rho,
			Threshold: limit,
			Message:   fmt.Sprintf("rho %.4f outside [%g, %g]", st.Rho, tw.RhoMin, tw.RhoMax),
		}, true
	}
	return nil, true
}

func (e *Engine) sampleNow(ctx context.Context, snap criticality.Snapshot, cc criticality.Config) (criticality.Sample, bool) {
	if cc.SampleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), cc.SampleTimeout)
		defer cancel()
	}
	start := time.Now()
	est, err := criticality.SpectralRadius(ctx, snap.Op, snap.Knobs, snap.DT, cc.Power)
	return criticality.Sample{Tick: snap.Tick, Estimate: est, Err: err, Took: time.Since(start)}, true
}

// evaluateTripwires records violations and compliance with the safe-mode
// controller and applies any resulting transition.
func (e *Engine) evaluateTripwires(t *tickState, violations []safemode.Violation, sampled bool) {
	failed := make(map[safemode.TripwireType]bool, len(violations))
	var transitions []*safemode.Transition
	for _, v := range violations {
		v.At = t.at
		failed[v.Type] = true
		t.emit(events.KindViolation, v)
		e.logger.Warn("tripwire violation", "tick", t.tick, "tripwire", v.Type.String(), "value", v.Value, "message", v.Message)
		if tr := e.safe.RecordViolation(v); tr != nil {
			transitions = append(transitions, tr)
		}
	}
	checked := []safemode.TripwireType{safemode.TripwireConservation, safemode.TripwireFrontier}
	if sampled {
		checked = append(checked, safemode.TripwireCriticality)
	}
	for _, tw := range checked {
		if failed[tw] {
			continue
		}
		if tr := e.safe.RecordCompliance(tw); tr != nil {
			transitions = append(transitions, tr)
		}
	}
	if tr := e.safe.Evaluate(); tr != nil {
		transitions = append(transitions, tr)
	}
	for _, tr := range transitions {
		e.transition(t, tr)
	}
}

// transition swaps the effective parameters for a safe-mode change.
func (e *Engine) transition(t *tickState, tr *safemode.Transition) {
	e.mu.Lock()
	base := e.base
	e.mu.Unlock()
	e.params.Store(Resolve(base, e.safe.Overrides()))

	if tr.To == safemode.StateSafeMode {
		e.logger.Warn("entering safe mode", "tick", t.tick, "reason", tr.Reason)
		t.emit(events.KindSafeModeEnter, tr)
		return
	}
	e.logger.Info("leaving safe mode", "tick", t.tick, "reason", tr.Reason)
	t.emit(events.KindSafeModeExit, tr)
}

// publish sends the tick's events. Any failure is an observability
// violation; transitions it causes are published best effort.
func (e *Engine) publish(ctx context.Context, t *tickState) {
	ctx = context.WithoutCancel(ctx)
	var failures int
	var firstErr error
	for _, ev := range t.pending {
		if err := e.sink.Publish(ctx, ev); err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	t.sum.PublishErrors = failures
	t.pending = nil

	var tr *safemode.Transition
	if failures > 0 {
		e.logger.Error("telemetry publish failed", "tick", t.tick, "failures", failures, "error", firstErr)
		v := safemode.Violation{
			Type:    safemode.TripwireObservability,
			At:      t.at,
			Tick:    t.tick,
			Value:   float64(failures),
			Message: firstErr.Error(),
		}
		t.sum.Violations++
		t.emit(events.KindViolation, v)
		tr = e.safe.RecordViolation(v)
	} else {
		tr = e.safe.RecordCompliance(safemode.TripwireObservability)
	}
	if tr != nil {
		e.transition(t, tr)
		t.sum.SafeMode = e.safe.Active()
	}
	if failures > 0 || tr != nil {
		e.late = &PublishOutcome{Tick: t.tick, Errors: failures, SafeMode: t.sum.SafeMode}
	}
	for _, ev := range t.pending {
		if err := e.sink.Publish(ctx, ev); err != nil {
			e.logger.Error("telemetry publish failed", "tick", t.tick, "kind", string(ev.Kind), "error", err)
		}
	}
}
