// Package graph holds the substrate the tick engine runs over: typed nodes
// carrying scalar energy and directed links carrying learned weights.
//
// The graph is pure storage plus structural queries. It holds no energy
// logic and is not safe for concurrent use; the engine owns it for the
// duration of a tick.
package graph

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ErrNotFound is returned (wrapped in a *ReferenceError) when a node or link
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when adding a node or link whose ID already exists.
var ErrDuplicate = errors.New("already exists")

// ReferenceError reports a reference to a node or link that is absent.
type ReferenceError struct {
	Kind string // "node" or "link"
	ID   string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("graph: %s %q not found", e.Kind, e.ID)
}

// Unwrap lets errors.Is match ErrNotFound.
func (e *ReferenceError) Unwrap() error {
	return ErrNotFound
}

// Affect is a two-dimensional (valence, arousal) vector.
type Affect [2]float64

// Magnitude returns the Euclidean norm of the vector.
func (a Affect) Magnitude() float64 {
	return math.Hypot(a[0], a[1])
}

// Node is a unit of the substrate.
type Node struct {
	ID        string
	Type      NodeType
	Energy    float64
	Threshold float64
	LogWeight float64

	// Affect and Embedding are optional and supplied externally.
	Affect    *Affect
	Embedding []float32

	// WMPresence is the recent working-memory presence in [0,1], maintained
	// by the working-set collaborator.
	WMPresence   float64
	Consolidated bool

	out []*Link
	in  []*Link
}

// Out returns the outgoing links in insertion order. The slice must not be
// modified.
func (n *Node) Out() []*Link { return n.out }

// In returns the incoming links in insertion order. The slice must not be
// modified.
func (n *Node) In() []*Link { return n.in }

// Link is a directed, typed connection between two nodes.
type Link struct {
	ID     string
	Source string
	Target string
	Type   LinkType

	// Weight in [0,1] is the structural strength updated by strengthening.
	Weight float64
	// LogWeight is the ease of traversal used by diffusion and weight decay.
	LogWeight float64

	Affect *Affect

	// Boundary counters, updated when diffusion transfers energy along the link.
	Traversals int64
	FlowTotal  float64
}

// Ease returns exp(LogWeight).
func (l *Link) Ease() float64 {
	return math.Exp(l.LogWeight)
}

// Graph is a directed multigraph of nodes and links. Iteration order over
// nodes and links is insertion order.
type Graph struct {
	nodes     map[string]*Node
	links     map[string]*Link
	nodeOrder []*Node
	linkOrder []*Link
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		links: make(map[string]*Link),
	}
}

// AddNode inserts a copy of n and returns the stored node.
func (g *Graph) AddNode(n Node) (*Node, error) {
	if n.ID == "" {
		return nil, fmt.Errorf("graph: node ID is required")
	}
	if !n.Type.Valid() {
		return nil, fmt.Errorf("graph: node %q: invalid type %d", n.ID, int(n.Type))
	}
	if _, exists := g.nodes[n.ID]; exists {
		return nil, fmt.Errorf("graph: node %q: %w", n.ID, ErrDuplicate)
	}
	if math.IsNaN(n.Energy) || math.IsInf(n.Energy, 0) || n.Energy < 0 {
		return nil, fmt.Errorf("graph: node %q: energy must be finite and non-negative, got %f", n.ID, n.Energy)
	}
	if math.IsNaN(n.LogWeight) || math.IsInf(n.LogWeight, 0) {
		return nil, fmt.Errorf("graph: node %q: log weight must be finite", n.ID)
	}

	stored := n
	stored.out = nil
	stored.in = nil
	g.nodes[stored.ID] = &stored
	g.nodeOrder = append(g.nodeOrder, &stored)
	return &stored, nil
}

// AddLink inserts a copy of l and returns the stored link. An empty ID is
// replaced with a generated one. Both endpoints must already exist.
func (g *Graph) AddLink(l Link) (*Link, error) {
	src, ok := g.nodes[l.Source]
	if !ok {
		return nil, &ReferenceError{Kind: "node", ID: l.Source}
	}
	tgt, ok := g.nodes[l.Target]
	if !ok {
		return nil, &ReferenceError{Kind: "node", ID: l.Target}
	}
	if !l.Type.Valid() {
		return nil, fmt.Errorf("graph: link %s->%s: invalid type %d", l.Source, l.Target, int(l.Type))
	}
	if math.IsNaN(l.Weight) || l.Weight < 0 || l.Weight > 1 {
		return nil, fmt.Errorf("graph: link weight must be in [0.0, 1.0], got %f", l.Weight)
	}
	if math.IsNaN(l.LogWeight) || math.IsInf(l.LogWeight, 0) {
		return nil, fmt.Errorf("graph: link %s->%s: log weight must be finite", l.Source, l.Target)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if _, exists := g.links[l.ID]; exists {
		return nil, fmt.Errorf("graph: link %q: %w", l.ID, ErrDuplicate)
	}

	stored := l
	g.links[stored.ID] = &stored
	g.linkOrder = append(g.linkOrder, &stored)
	src.out = append(src.out, &stored)
	tgt.in = append(tgt.in, &stored)
	return &stored, nil
}

// RemoveNode deletes a node and every link incident to it.
func (g *Graph) RemoveNode(id string) error {
	n, ok := g.nodes[id]
	if !ok {
		return &ReferenceError{Kind: "node", ID: id}
	}

	incident := make(map[string]struct{}, len(n.out)+len(n.in))
	for _, l := range n.out {
		incident[l.ID] = struct{}{}
	}
	for _, l := range n.in {
		incident[l.ID] = struct{}{}
	}
	for lid := range incident {
		if err := g.RemoveLink(lid); err != nil {
			return fmt.Errorf("graph: remove node %q: %w", id, err)
		}
	}

	delete(g.nodes, id)
	g.nodeOrder = removeNode(g.nodeOrder, n)
	return nil
}

// RemoveLink deletes a link and detaches it from both endpoints.
func (g *Graph) RemoveLink(id string) error {
	l, ok := g.links[id]
	if !ok {
		return &ReferenceError{Kind: "link", ID: id}
	}
	if src, ok := g.nodes[l.Source]; ok {
		src.out = removeLink(src.out, l)
	}
	if tgt, ok := g.nodes[l.Target]; ok {
		tgt.in = removeLink(tgt.in, l)
	}
	delete(g.links, id)
	g.linkOrder = removeLink(g.linkOrder, l)
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, &ReferenceError{Kind: "node", ID: id}
	}
	return n, nil
}

// Link returns the link with the given ID.
func (g *Graph) Link(id string) (*Link, error) {
	l, ok := g.links[id]
	if !ok {
		return nil, &ReferenceError{Kind: "link", ID: id}
	}
	return l, nil
}

// Nodes returns all nodes in insertion order. The slice must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodeOrder }

// Links returns all links in insertion order. The slice must not be modified.
func (g *Graph) Links() []*Link { return g.linkOrder }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodeOrder) }

// LinkCount returns the number of links.
func (g *Graph) LinkCount() int { return len(g.linkOrder) }

// OutDegree returns the number of outgoing links of a node.
func (g *Graph) OutDegree(id string) (int, error) {
	n, err := g.Node(id)
	if err != nil {
		return 0, err
	}
	return len(n.out), nil
}

// InDegree returns the number of incoming links of a node.
func (g *Graph) InDegree(id string) (int, error) {
	n, err := g.Node(id)
	if err != nil {
		return 0, err
	}
	return len(n.in), nil
}

// Degree returns the total number of links incident to a node.
func (g *Graph) Degree(id string) (int, error) {
	n, err := g.Node(id)
	if err != nil {
		return 0, err
	}
	return len(n.out) + len(n.in), nil
}

// TotalEnergy sums the energy of every node.
func (g *Graph) TotalEnergy() float64 {
	var total float64
	for _, n := range g.nodeOrder {
		total += n.Energy
	}
	return total
}

func removeLink(s []*Link, l *Link) []*Link {
	for i, x := range s {
		if x == l {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

func removeNode(s []*Node, n *Node) []*Node {
	for i, x := range s {
		if x == n {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}
