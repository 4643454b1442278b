package diffusion

import (
	"github.com/nvandessel/substrate/internal/graph"
)

// Staging accumulates the energy deltas of one tick so that a node that is
// both a source and a target sees consistent accounting. Nothing touches the
// graph until Apply.
type Staging struct {
	deltas     map[string]float64
	order      []string
	flows      []flow
	dissipated float64
}

type flow struct {
	link   *graph.Link
	amount float64
}

// NewStaging creates an empty staging area.
func NewStaging() *Staging {
	return &Staging{deltas: make(map[string]float64)}
}

func (s *Staging) add(id string, d float64) {
	if _, ok := s.deltas[id]; !ok {
		s.order = append(s.order, id)
	}
	s.deltas[id] += d
}

// Transfer stages amount leaving src and stickiness·amount arriving at tgt.
// The remainder is counted as dissipated.
func (s *Staging) Transfer(l *graph.Link, amount, stickiness float64) {
	retained := stickiness * amount
	s.add(l.Source, -amount)
	s.add(l.Target, retained)
	s.dissipated += amount - retained
	s.flows = append(s.flows, flow{link: l, amount: amount})
}

// Len returns the number of nodes with a staged delta.
func (s *Staging) Len() int {
	return len(s.order)
}

// NetDelta returns Σ staged deltas. With stickiness disabled it is zero up
// to rounding; otherwise it equals −Dissipated.
func (s *Staging) NetDelta() float64 {
	var sum float64
	for _, id := range s.order {
		sum += s.deltas[id]
	}
	return sum
}

// Dissipated returns the energy lost to stickiness this tick.
func (s *Staging) Dissipated() float64 {
	return s.dissipated
}

// ConservationError returns NetDelta + Dissipated: any energy created or
// destroyed other than through the sanctioned stickiness leak.
func (s *Staging) ConservationError() float64 {
	return s.NetDelta() + s.dissipated
}

// roundingTolerance absorbs the residue of a source that sends its whole
// energy split over several links.
const roundingTolerance = 1e-12

// ApplyResult reports what happened when staged deltas were applied.
type ApplyResult struct {
	Applied int
	// Clamped counts nodes whose energy would have gone negative.
	Clamped       int
	ClampedEnergy float64
}

// Apply adds every staged delta to the graph and updates the boundary
// counters of traversed links. A result below zero is clamped to zero and
// reported; that indicates a conservation fault, never normal operation.
func (s *Staging) Apply(g *graph.Graph) (ApplyResult, error) {
	var res ApplyResult
	for _, id := range s.order {
		n, err := g.Node(id)
		if err != nil {
			return res, err
		}
		e := n.Energy + s.deltas[id]
		if e < 0 {
			if e < -roundingTolerance {
				res.Clamped++
				res.ClampedEnergy += -e
			}
			e = 0
		}
		n.Energy = e
		res.Applied++
	}
	for _, f := range s.flows {
		f.link.Traversals++
		f.link.FlowTotal += f.amount
	}
	return res, nil
}
