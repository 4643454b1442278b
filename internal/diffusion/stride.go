// Package diffusion moves activation energy along the graph one stride per
// active node per tick.
//
// Each active node prunes its outgoing links with a fanout strategy, scores
// the survivors with a traversal cost, and stages a transfer along the
// cheapest link (or splits it over the K cheapest). Transfers are staged and
// applied together, so diffusion is conservative except for the stickiness
// leak, which is tracked.
package diffusion

import (
	"math"
	"sort"

	"github.com/nvandessel/substrate/internal/graph"
)

// Config holds parameters for stride diffusion.
type Config struct {
	// MinTransfer is the smallest transfer worth staging. Default: 1e-9.
	MinTransfer float64 `yaml:"min_transfer" json:"min_transfer" validate:"gte=0"`

	// MinLogWeight and MaxLogWeight bound the log weight used for ease.
	// Defaults: −5 and 2.
	MinLogWeight float64 `yaml:"min_log_weight" json:"min_log_weight"`
	MaxLogWeight float64 `yaml:"max_log_weight" json:"max_log_weight" validate:"gtefield=MinLogWeight"`

	Fanout     FanoutConfig     `yaml:"fanout" json:"fanout"`
	Stickiness StickinessConfig `yaml:"stickiness" json:"stickiness"`
	Gates      GateConfig       `yaml:"gates" json:"gates"`
	Split      SplitConfig      `yaml:"split" json:"split"`
}

// SplitConfig configures the optional top-K energy split.
type SplitConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// K is the number of lowest-cost links to split over. Default: 3.
	K int `yaml:"k" json:"k" validate:"gte=1"`
	// Temperature of the softmax over −cost/T. Default: 1.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"gt=0"`
}

// DefaultConfig returns the default diffusion configuration.
func DefaultConfig() Config {
	return Config{
		MinTransfer:  1e-9,
		MinLogWeight: -5,
		MaxLogWeight: 2,
		Fanout:       DefaultFanoutConfig(),
		Stickiness:   DefaultStickinessConfig(),
		Gates:        DefaultGateConfig(),
		Split:        SplitConfig{K: 3, Temperature: 1.0},
	}
}

// Context carries the per-tick inputs of a diffusion step.
type Context struct {
	// Alpha is the redistribution share α_tick.
	Alpha float64
	// DT is the tick duration in seconds.
	DT float64

	// Goal is the current goal embedding, if any.
	Goal []float32
	// Affect is the current affective state, if any. Nodes fall back to
	// their own affect when nil.
	Affect *graph.Affect
	// WMHeadroom is the free working-memory fraction, if known.
	WMHeadroom *float64

	// Record, when set, receives every candidate evaluated.
	Record func(StrideRecord)
}

// StrideRecord is the forensic record of one evaluated candidate link.
type StrideRecord struct {
	Source   string        `json:"source"`
	Target   string        `json:"target"`
	LinkID   string        `json:"link_id"`
	Strategy string        `json:"strategy"`
	Cost     CostBreakdown `json:"cost"`
	Chosen   bool          `json:"chosen"`
	Fraction float64       `json:"fraction,omitempty"`
	Transfer float64       `json:"transfer,omitempty"`
	Retained float64       `json:"retained,omitempty"`
}

// Result summarizes a diffusion step.
type Result struct {
	Staging *Staging
	// Strides counts staged transfers.
	Strides int
	// Sources counts active nodes that staged at least one transfer.
	Sources     int
	Evaluated   int
	Transferred float64
	Retained    float64
}

// Dissipated returns the energy lost to stickiness.
func (r *Result) Dissipated() float64 {
	return r.Staging.Dissipated()
}

type scored struct {
	link *graph.Link
	tgt  *graph.Node
	cost CostBreakdown
}

// Step stages one stride for every active node. The graph is read but not
// modified; call Staging.Apply to commit.
func Step(g *graph.Graph, active []*graph.Node, cfg Config, sc Context) (*Result, error) {
	res := &Result{Staging: NewStaging()}
	if sc.Alpha <= 0 || sc.DT <= 0 {
		return res, nil
	}

	for _, src := range active {
		if src.Energy <= cfg.MinTransfer {
			continue
		}
		cands := Candidates(src)
		strategy, k := cfg.Fanout.TopK(len(cands), sc.WMHeadroom)
		cands = Reduce(cands, k)
		if len(cands) == 0 {
			continue
		}

		evals := make([]scored, 0, len(cands))
		for _, l := range cands {
			tgt, err := g.Node(l.Target)
			if err != nil {
				return nil, err
			}
			evals = append(evals, scored{link: l, tgt: tgt, cost: Cost(cfg, src, tgt, l, sc)})
		}
		res.Evaluated += len(evals)

		fractions := choose(evals, cfg.Split)

		// Requested transfer per link, scaled down if it would exceed E_src.
		requested := make([]float64, len(evals))
		var total float64
		for i, f := range fractions {
			if f == 0 {
				continue
			}
			requested[i] = src.Energy * evals[i].cost.Ease * sc.Alpha * sc.DT * f
			total += requested[i]
		}
		scale := 1.0
		if total > src.Energy {
			scale = src.Energy / total
		}

		staged := false
		for i, ev := range evals {
			rec := StrideRecord{
				Source:   src.ID,
				Target:   ev.tgt.ID,
				LinkID:   ev.link.ID,
				Strategy: strategy.String(),
				Cost:     ev.cost,
				Chosen:   fractions[i] > 0,
				Fraction: fractions[i],
			}
			amount := requested[i] * scale
			if rec.Chosen && amount > cfg.MinTransfer {
				s := cfg.Stickiness.Of(ev.tgt)
				res.Staging.Transfer(ev.link, amount, s)
				rec.Transfer = amount
				rec.Retained = s * amount
				res.Strides++
				res.Transferred += amount
				res.Retained += rec.Retained
				staged = true
			}
			if sc.Record != nil {
				sc.Record(rec)
			}
		}
		if staged {
			res.Sources++
		}
	}
	return res, nil
}

// choose returns per-candidate transfer fractions summing to 1.
func choose(evals []scored, split SplitConfig) []float64 {
	fractions := make([]float64, len(evals))
	if !split.Enabled || split.K <= 1 || len(evals) == 1 {
		best := 0
		for i := 1; i < len(evals); i++ {
			if evals[i].cost.Total < evals[best].cost.Total {
				best = i
			}
		}
		fractions[best] = 1
		return fractions
	}

	idx := make([]int, len(evals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return evals[idx[a]].cost.Total < evals[idx[b]].cost.Total
	})
	k := min(split.K, len(idx))
	costs := make([]float64, k)
	for i := 0; i < k; i++ {
		costs[i] = evals[idx[i]].cost.Total
	}
	for i, w := range Softmax(costs, split.Temperature) {
		fractions[idx[i]] = w
	}
	return fractions
}

// Softmax returns weights ∝ exp(−cost/T). It falls back to uniform weights
// when the temperature is not positive or the result is not finite.
func Softmax(costs []float64, temperature float64) []float64 {
	out := make([]float64, len(costs))
	if len(costs) == 0 {
		return out
	}
	uniform := func() []float64 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	if temperature <= 0 {
		return uniform()
	}

	// Shift by the minimum cost for numerical stability.
	lo := math.Inf(1)
	for _, c := range costs {
		lo = math.Min(lo, c)
	}
	var sum float64
	for i, c := range costs {
		out[i] = math.Exp(-(c - lo) / temperature)
		sum += out[i]
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return uniform()
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
