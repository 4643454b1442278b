// Package criticality estimates how close the substrate is to the edge of
// stability and steers the decay and redistribution knobs toward it.
//
// The one-tick linearized dynamics are
//
//	T = (1 − δ·Δt)·[(1 − α)·I + α·P̃ᵀ]
//
// where P̃_ij = (w_ij / Σ_j w_ij)·ease_ij over traversable links. The
// spectral radius ρ(T) is estimated by power iteration: ρ < 1 means activity
// dies out, ρ > 1 means it grows.
package criticality

import (
	"errors"

	"github.com/nvandessel/substrate/internal/graph"
)

// ErrEmptyOperator is returned when an operator has no rows.
var ErrEmptyOperator = errors.New("criticality: empty operator")

// Operator is the redistribution matrix P̃ in compressed sparse row form.
// It is an immutable snapshot, so it can be handed to another goroutine.
type Operator struct {
	ids    []string
	rowPtr []int
	cols   []int
	vals   []float64
}

// EaseFunc returns the ease of a link. Nil means graph.Link.Ease.
type EaseFunc func(*graph.Link) float64

// BuildOperator snapshots the redistribution operator of g. Rows without
// outgoing weight keep their energy through a self-loop.
func BuildOperator(g *graph.Graph, ease EaseFunc) *Operator {
	if ease == nil {
		ease = (*graph.Link).Ease
	}
	nodes := g.Nodes()
	index := make(map[string]int, len(nodes))
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
		ids[i] = n.ID
	}

	op := &Operator{
		ids:    ids,
		rowPtr: make([]int, 1, len(nodes)+1),
	}
	for i, n := range nodes {
		var total float64
		for _, l := range n.Out() {
			if l.Type.Traversable() && l.Weight > 0 {
				total += l.Weight
			}
		}
		if total <= 0 {
			op.cols = append(op.cols, i)
			op.vals = append(op.vals, 1)
			op.rowPtr = append(op.rowPtr, len(op.cols))
			continue
		}
		for _, l := range n.Out() {
			if !l.Type.Traversable() || l.Weight <= 0 {
				continue
			}
			j, ok := index[l.Target]
			if !ok {
				continue
			}
			op.cols = append(op.cols, j)
			op.vals = append(op.vals, l.Weight/total*ease(l))
		}
		op.rowPtr = append(op.rowPtr, len(op.cols))
	}
	return op
}

// Len returns the number of rows.
func (o *Operator) Len() int { return len(o.ids) }

// Apply writes y = T·x for the given knobs and tick duration. x and y must
// have length Len and must not alias.
func (o *Operator) Apply(y, x []float64, k Knobs, dt float64) {
	retain := 1 - k.Delta*dt
	if retain < 0 {
		retain = 0
	}
	for i := range y {
		y[i] = (1 - k.Alpha) * x[i]
	}
	// P̃ᵀ·x scatters each row's value to its targets.
	for i := range o.ids {
		xi := x[i]
		if xi == 0 {
			continue
		}
		for p := o.rowPtr[i]; p < o.rowPtr[i+1]; p++ {
			y[o.cols[p]] += k.Alpha * o.vals[p] * xi
		}
	}
	for i := range y {
		y[i] *= retain
	}
}
