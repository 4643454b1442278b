package threshold

import "math"

// NoiseStats are the running statistics of a node's quiescent energy.
type NoiseStats struct {
	Mu      float64 `json:"mu"`
	Sigma   float64 `json:"sigma"`
	Samples int     `json:"samples"`
}

// Tracker maintains noise statistics per node. It is owned by the tick loop
// and not safe for concurrent use.
type Tracker struct {
	cfg   Config
	stats map[string]*NoiseStats
}

// NewTracker creates a tracker using cfg's EMA and initial values.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:   cfg,
		stats: make(map[string]*NoiseStats),
	}
}

// SetConfig swaps the configuration. Existing statistics are kept.
func (t *Tracker) SetConfig(cfg Config) {
	t.cfg = cfg
}

// Stats returns the statistics for a node, or the configured initial values
// if the node has not been sampled.
func (t *Tracker) Stats(nodeID string) NoiseStats {
	if s, ok := t.stats[nodeID]; ok {
		return *s
	}
	return NoiseStats{Mu: t.cfg.InitialMu, Sigma: t.cfg.InitialSigma}
}

// Observe folds an energy sample into the node's statistics. Samples taken
// while a stimulus is present are discarded so that the threshold is not
// contaminated by the activity it gates. Non-finite samples are ignored.
func (t *Tracker) Observe(nodeID string, energy float64, quiet bool) {
	if !quiet || math.IsNaN(energy) || math.IsInf(energy, 0) {
		return
	}
	s, ok := t.stats[nodeID]
	if !ok {
		t.stats[nodeID] = &NoiseStats{Mu: energy, Sigma: t.cfg.InitialSigma, Samples: 1}
		return
	}
	a := t.cfg.EMAAlpha
	s.Mu = a*energy + (1-a)*s.Mu
	s.Sigma = a*math.Abs(energy-s.Mu) + (1-a)*s.Sigma
	s.Samples++
}

// Retain drops the statistics of every node for which keep returns false
// and reports how many were dropped.
func (t *Tracker) Retain(keep func(nodeID string) bool) int {
	n := 0
	for id := range t.stats {
		if !keep(id) {
			delete(t.stats, id)
			n++
		}
	}
	return n
}

// Reset clears all statistics.
func (t *Tracker) Reset() {
	t.stats = make(map[string]*NoiseStats)
}

// Len returns the number of tracked nodes.
func (t *Tracker) Len() int {
	return len(t.stats)
}
