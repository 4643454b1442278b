package simulation

import (
	"math"
	"testing"

	"github.com/nvandessel/substrate/internal/events"
	"github.com/nvandessel/substrate/internal/graph"
	"github.com/nvandessel/substrate/internal/safemode"
)

// AssertConserved asserts that no tick staged an energy change beyond
// stickiness loss larger than eps and that no node had to be clamped.
func AssertConserved(t *testing.T, result SimulationResult, eps float64) {
	t.Helper()
	for _, tr := range result.Ticks {
		s := tr.Summary
		if math.Abs(s.ConservationError) > eps || math.IsNaN(s.ConservationError) {
			t.Errorf("AssertConserved: tick %d: conservation error %g exceeds %g", s.Tick, s.ConservationError, eps)
		}
		if s.Clamped > 0 {
			t.Errorf("AssertConserved: tick %d: %d nodes clamped", s.Tick, s.Clamped)
		}
	}
}

// AssertNonNegative asserts that every node energy stays ≥ 0 on every tick.
func AssertNonNegative(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, tr := range result.Ticks {
		for id, e := range tr.Energies {
			if e < 0 || math.IsNaN(e) {
				t.Errorf("AssertNonNegative: tick %d: node %s energy %g", tr.Summary.Tick, id, e)
			}
		}
	}
}

// AssertWeightBounded asserts that all link weights in all ticks fall
// within [min, max].
func AssertWeightBounded(t *testing.T, result SimulationResult, min, max float64) {
	t.Helper()
	for _, tr := range result.Ticks {
		for key, w := range tr.LinkWeights {
			if w < min || w > max {
				t.Errorf("AssertWeightBounded: tick %d: link %s weight %.6f not in [%.4f, %.4f]", tr.Summary.Tick, key, w, min, max)
			}
		}
	}
}

// AssertWeightIncreased asserts that a specific link weight is higher after
// tick index to than after tick index from.
func AssertWeightIncreased(t *testing.T, result SimulationResult, src, tgt string, typ graph.LinkType, from, to int) {
	t.Helper()
	wFrom, wTo, ok := weightsAt(t, result, src, tgt, typ, from, to)
	if ok && wTo <= wFrom {
		t.Errorf("AssertWeightIncreased: link %s weight did not increase: tick %d=%.6f, tick %d=%.6f", LinkKey(src, tgt, typ), from, wFrom, to, wTo)
	}
}

// AssertWeightUnchanged asserts that a link weight is the same after tick
// index to as after tick index from.
func AssertWeightUnchanged(t *testing.T, result SimulationResult, src, tgt string, typ graph.LinkType, from, to int) {
	t.Helper()
	wFrom, wTo, ok := weightsAt(t, result, src, tgt, typ, from, to)
	if ok && wTo != wFrom {
		t.Errorf("AssertWeightUnchanged: link %s weight changed: tick %d=%.6f, tick %d=%.6f", LinkKey(src, tgt, typ), from, wFrom, to, wTo)
	}
}

func weightsAt(t *testing.T, result SimulationResult, src, tgt string, typ graph.LinkType, from, to int) (float64, float64, bool) {
	t.Helper()
	key := LinkKey(src, tgt, typ)
	if from < 0 || to >= len(result.Ticks) {
		t.Errorf("weightsAt: tick range [%d, %d] outside %d ticks", from, to, len(result.Ticks))
		return 0, 0, false
	}
	wFrom, okFrom := result.Ticks[from].LinkWeights[key]
	wTo, okTo := result.Ticks[to].LinkWeights[key]
	if !okFrom || !okTo {
		t.Errorf("weightsAt: link %s not found", key)
		return 0, 0, false
	}
	return wFrom, wTo, true
}

// AssertEnergyMonotone asserts that a node's energy never rises between
// consecutive ticks from tick index after onward.
func AssertEnergyMonotone(t *testing.T, result SimulationResult, nodeID string, after int) {
	t.Helper()
	for i := max(after, 0) + 1; i < len(result.Ticks); i++ {
		prev, cur := result.Ticks[i-1].Energies[nodeID], result.Ticks[i].Energies[nodeID]
		if cur > prev+1e-15 {
			t.Errorf("AssertEnergyMonotone: node %s rose from %.9f to %.9f at tick index %d", nodeID, prev, cur, i)
		}
	}
}

// AssertRhoWithin asserts that every ρ sample taken from tick index after
// onward lies within [lo, hi].
func AssertRhoWithin(t *testing.T, result SimulationResult, lo, hi float64, after int) {
	t.Helper()
	samples := 0
	for i := max(after, 0); i < len(result.Ticks); i++ {
		s := result.Ticks[i].Summary
		if !s.Sampled {
			continue
		}
		samples++
		if s.Rho < lo || s.Rho > hi {
			t.Errorf("AssertRhoWithin: tick %d: rho %.4f not in [%.4f, %.4f]", s.Tick, s.Rho, lo, hi)
		}
	}
	if samples == 0 {
		t.Errorf("AssertRhoWithin: no samples after tick index %d", after)
	}
}

// AssertSafeModeEntered asserts that safe mode was entered at least once.
// A non-nil tripwire also requires the first entry to name it.
func AssertSafeModeEntered(t *testing.T, result SimulationResult, tripwire *safemode.TripwireType) {
	t.Helper()
	enters := result.Events.OfKind(events.KindSafeModeEnter)
	if len(enters) == 0 {
		t.Error("AssertSafeModeEntered: safe mode never entered")
		return
	}
	if tripwire == nil {
		return
	}
	tr, ok := enters[0].Payload.(*safemode.Transition)
	if !ok || tr.Tripwire == nil || *tr.Tripwire != *tripwire {
		t.Errorf("AssertSafeModeEntered: first entry %+v, want tripwire %s", enters[0].Payload, tripwire)
	}
}

// AssertNeverSafeMode asserts that safe mode was never entered.
func AssertNeverSafeMode(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, tr := range result.Ticks {
		if tr.Summary.SafeMode {
			t.Errorf("AssertNeverSafeMode: safe mode active at tick %d", tr.Summary.Tick)
			return
		}
	}
}

// FirstTick returns the index of the first tick whose summary satisfies
// pred, or -1.
func FirstTick(result SimulationResult, pred func(TickResult) bool) int {
	for i, tr := range result.Ticks {
		if pred(tr) {
			return i
		}
	}
	return -1
}

// MaxWeight returns the maximum weight for a specific link across all ticks.
func MaxWeight(result SimulationResult, src, tgt string, typ graph.LinkType) float64 {
	key := LinkKey(src, tgt, typ)
	max := math.Inf(-1)
	for _, tr := range result.Ticks {
		if w, ok := tr.LinkWeights[key]; ok && w > max {
			max = w
		}
	}
	return max
}

// variance computes the population variance of a float64 slice.
func variance(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	sum := 0.0
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(vals))
}

// RhoVariance returns the variance of the ρ samples in the last n ticks.
func RhoVariance(result SimulationResult, n int) float64 {
	var rhos []float64
	for i := max(0, len(result.Ticks)-n); i < len(result.Ticks); i++ {
		if s := result.Ticks[i].Summary; s.Sampled {
			rhos = append(rhos, s.Rho)
		}
	}
	return variance(rhos)
}
