package graph

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML shape of a graph seed file.
//
//	nodes:
//	  - id: a
//	    type: memory
//	    energy: 0.5
//	links:
//	  - source: a
//	    target: b
//	    type: relates_to
//	    weight: 0.8
type Seed struct {
	Nodes []NodeSpec `yaml:"nodes" json:"nodes"`
	Links []LinkSpec `yaml:"links" json:"links"`
}

// NodeSpec describes one node of a seed file.
type NodeSpec struct {
	ID           string    `yaml:"id" json:"id"`
	Type         NodeType  `yaml:"type" json:"type"`
	Energy       float64   `yaml:"energy" json:"energy"`
	LogWeight    float64   `yaml:"log_weight" json:"log_weight"`
	Affect       []float64 `yaml:"affect,omitempty" json:"affect,omitempty"`
	Embedding    []float32 `yaml:"embedding,omitempty" json:"embedding,omitempty"`
	WMPresence   float64   `yaml:"wm_presence" json:"wm_presence"`
	Consolidated bool      `yaml:"consolidated" json:"consolidated"`
}

// LinkSpec describes one link of a seed file.
type LinkSpec struct {
	ID        string    `yaml:"id,omitempty" json:"id,omitempty"`
	Source    string    `yaml:"source" json:"source"`
	Target    string    `yaml:"target" json:"target"`
	Type      LinkType  `yaml:"type" json:"type"`
	Weight    float64   `yaml:"weight" json:"weight"`
	LogWeight float64   `yaml:"log_weight" json:"log_weight"`
	Affect    []float64 `yaml:"affect,omitempty" json:"affect,omitempty"`
}

// Build creates a graph from the seed, failing on the first invalid entry.
func (s Seed) Build() (*Graph, error) {
	g := New()
	for i, ns := range s.Nodes {
		affect, err := toAffect(ns.Affect)
		if err != nil {
			return nil, fmt.Errorf("graph: seed node %d (%s): %w", i, ns.ID, err)
		}
		if _, err := g.AddNode(Node{
			ID:           ns.ID,
			Type:         ns.Type,
			Energy:       ns.Energy,
			LogWeight:    ns.LogWeight,
			Affect:       affect,
			Embedding:    ns.Embedding,
			WMPresence:   ns.WMPresence,
			Consolidated: ns.Consolidated,
		}); err != nil {
			return nil, fmt.Errorf("graph: seed node %d: %w", i, err)
		}
	}
	for i, ls := range s.Links {
		affect, err := toAffect(ls.Affect)
		if err != nil {
			return nil, fmt.Errorf("graph: seed link %d (%s->%s): %w", i, ls.Source, ls.Target, err)
		}
		if _, err := g.AddLink(Link{
			ID:        ls.ID,
			Source:    ls.Source,
			Target:    ls.Target,
			Type:      ls.Type,
			Weight:    ls.Weight,
			LogWeight: ls.LogWeight,
			Affect:    affect,
		}); err != nil {
			return nil, fmt.Errorf("graph: seed link %d: %w", i, err)
		}
	}
	return g, nil
}

// ReadSeed decodes a seed document from r. Unknown keys are rejected.
func ReadSeed(r io.Reader) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Seed{}, fmt.Errorf("graph: decode seed: %w", err)
	}
	return s, nil
}

// ReadSeedFile reads a seed document from disk.
func ReadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("graph: open seed file: %w", err)
	}
	defer f.Close()
	return ReadSeed(f)
}

// LoadYAML decodes a seed document from r and builds the graph.
func LoadYAML(r io.Reader) (*Graph, error) {
	s, err := ReadSeed(r)
	if err != nil {
		return nil, err
	}
	return s.Build()
}

// LoadFile reads a seed file from disk and builds the graph.
func LoadFile(path string) (*Graph, error) {
	s, err := ReadSeedFile(path)
	if err != nil {
		return nil, err
	}
	return s.Build()
}

func toAffect(v []float64) (*Affect, error) {
	switch len(v) {
	case 0:
		return nil, nil
	case 2:
		a := Affect{v[0], v[1]}
		return &a, nil
	default:
		return nil, fmt.Errorf("affect must have 2 components, got %d", len(v))
	}
}
