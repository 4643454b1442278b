package diffusion

import (
	"math"
	"sort"

	"github.com/nvandessel/substrate/internal/graph"
)

// Strategy is the fanout pruning strategy chosen from a node's out-degree.
type Strategy int

const (
	// Exhaustive keeps every candidate (low degree).
	Exhaustive Strategy = iota
	// Balanced keeps half the candidates (middle band).
	Balanced
	// Selective keeps the top-K candidates by raw weight (hubs).
	Selective
)

func (s Strategy) String() string {
	switch s {
	case Exhaustive:
		return "exhaustive"
	case Balanced:
		return "balanced"
	case Selective:
		return "selective"
	default:
		return "unknown"
	}
}

// FanoutConfig bounds how many outgoing links a node considers per stride.
type FanoutConfig struct {
	// Low and High delimit the balanced band of out-degree.
	// Defaults: 3 and 10.
	Low  int `yaml:"low" json:"low" validate:"gte=1"`
	High int `yaml:"high" json:"high" validate:"gtefield=Low"`

	// SelectiveTopK is K for hubs above High. Default: 5.
	SelectiveTopK int `yaml:"selective_topk" json:"selective_topk" validate:"gte=1"`

	// MinTopK floors K under working-memory pressure. Default: 2.
	MinTopK int `yaml:"min_topk" json:"min_topk" validate:"gte=1"`

	// WMPressureThreshold is the headroom below which K shrinks by
	// WMReduction. Defaults: 0.2 and 0.6.
	WMPressureThreshold float64 `yaml:"wm_pressure_threshold" json:"wm_pressure_threshold" validate:"gte=0,lte=1"`
	WMReduction         float64 `yaml:"wm_reduction" json:"wm_reduction" validate:"gt=0,lte=1"`

	// SingleCandidate forces K = 1 regardless of degree.
	SingleCandidate bool `yaml:"single_candidate" json:"single_candidate"`
}

// DefaultFanoutConfig returns the default fanout bounds.
func DefaultFanoutConfig() FanoutConfig {
	return FanoutConfig{
		Low:                 3,
		High:                10,
		SelectiveTopK:       5,
		MinTopK:             2,
		WMPressureThreshold: 0.2,
		WMReduction:         0.6,
	}
}

// Strategy returns the strategy for a node with the given out-degree.
func (c FanoutConfig) Strategy(degree int) Strategy {
	switch {
	case degree > c.High:
		return Selective
	case degree >= c.Low:
		return Balanced
	default:
		return Exhaustive
	}
}

// TopK returns the strategy and number of candidates to keep. A nil
// wmHeadroom means no working-memory signal is available.
func (c FanoutConfig) TopK(degree int, wmHeadroom *float64) (Strategy, int) {
	if degree <= 0 {
		return Exhaustive, 0
	}
	strategy := c.Strategy(degree)
	var k int
	switch strategy {
	case Selective:
		k = c.SelectiveTopK
	case Balanced:
		k = max(1, int(math.Round(float64(degree)/2)))
	default:
		k = degree
	}

	if wmHeadroom != nil && *wmHeadroom < c.WMPressureThreshold {
		// Pressure only shrinks K; MinTopK floors the shrink.
		k = min(k, max(c.MinTopK, int(float64(k)*c.WMReduction)))
	}
	if c.SingleCandidate {
		strategy, k = Selective, 1
	}
	return strategy, min(k, degree)
}

// Reduce keeps the k links with the highest raw weight. The result keeps
// the adjacency order of links so that cost ties resolve to the link seen
// first.
func Reduce(links []*graph.Link, k int) []*graph.Link {
	if k >= len(links) {
		return links
	}
	if k <= 0 {
		return nil
	}

	idx := make([]int, len(links))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return links[idx[a]].Weight > links[idx[b]].Weight
	})
	keep := idx[:k]
	sort.Ints(keep)

	out := make([]*graph.Link, k)
	for i, j := range keep {
		out[i] = links[j]
	}
	return out
}

// Candidates returns the traversable outgoing links of n.
func Candidates(n *graph.Node) []*graph.Link {
	out := n.Out()
	cands := make([]*graph.Link, 0, len(out))
	for _, l := range out {
		if l.Type.Traversable() {
			cands = append(cands, l)
		}
	}
	return cands
}
