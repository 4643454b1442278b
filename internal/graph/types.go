package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeType tags a node with its semantic kind. The set is closed; per-type
// parameters are stored in a NodeTypeTable indexed by NodeType.
type NodeType int

const (
	NodeConcept NodeType = iota
	NodeMemory
	NodeEpisodicMemory
	NodeTask
	NodeGoal
	NodeEvent
	NodePerson
	NodeDocument
	NodeMechanism
	NodePrinciple
	NodeRealization
	NodePersonalValue

	numNodeTypes
)

// NumNodeTypes is the number of defined node types.
const NumNodeTypes = int(numNodeTypes)

var nodeTypeNames = [NumNodeTypes]string{
	NodeConcept:        "concept",
	NodeMemory:         "memory",
	NodeEpisodicMemory: "episodic_memory",
	NodeTask:           "task",
	NodeGoal:           "goal",
	NodeEvent:          "event",
	NodePerson:         "person",
	NodeDocument:       "document",
	NodeMechanism:      "mechanism",
	NodePrinciple:      "principle",
	NodeRealization:    "realization",
	NodePersonalValue:  "personal_value",
}

// NodeTypes returns every defined node type in declaration order.
func NodeTypes() []NodeType {
	out := make([]NodeType, NumNodeTypes)
	for i := range out {
		out[i] = NodeType(i)
	}
	return out
}

// Valid reports whether t is a defined node type.
func (t NodeType) Valid() bool {
	return t >= 0 && t < numNodeTypes
}

func (t NodeType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// ParseNodeType maps a name such as "memory" or "Episodic_Memory" to a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range nodeTypeNames {
		if n == name {
			return NodeType(i), nil
		}
	}
	return 0, fmt.Errorf("graph: unknown node type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t NodeType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("graph: invalid node type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *NodeType) UnmarshalText(b []byte) error {
	v, err := ParseNodeType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// LinkType tags a link with its relation kind.
type LinkType int

const (
	LinkRelatesTo LinkType = iota
	LinkEnables
	LinkAssociates
	LinkMemberOf
	LinkBelongsTo
	LinkRequires
	// LinkSuppresses is the only inhibitory relation. It is never traversed
	// by diffusion and never strengthened.
	LinkSuppresses

	numLinkTypes
)

// NumLinkTypes is the number of defined link types.
const NumLinkTypes = int(numLinkTypes)

var linkTypeNames = [NumLinkTypes]string{
	LinkRelatesTo:  "relates_to",
	LinkEnables:    "enables",
	LinkAssociates: "associates",
	LinkMemberOf:   "member_of",
	LinkBelongsTo:  "belongs_to",
	LinkRequires:   "requires",
	LinkSuppresses: "suppresses",
}

// Valid reports whether t is a defined link type.
func (t LinkType) Valid() bool {
	return t >= 0 && t < numLinkTypes
}

func (t LinkType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("LinkType(%d)", int(t))
	}
	return linkTypeNames[t]
}

// Traversable reports whether energy may flow along links of this type.
func (t LinkType) Traversable() bool {
	return t != LinkSuppresses
}

// Grouping reports whether the link marks membership of a cluster.
func (t LinkType) Grouping() bool {
	return t == LinkMemberOf || t == LinkBelongsTo
}

// ParseLinkType maps a name such as "relates_to" to a LinkType.
func ParseLinkType(s string) (LinkType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range linkTypeNames {
		if n == name {
			return LinkType(i), nil
		}
	}
	return 0, fmt.Errorf("graph: unknown link type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t LinkType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("graph: invalid link type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *LinkType) UnmarshalText(b []byte) error {
	v, err := ParseLinkType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// NodeTypeTable holds one float64 per node type. In YAML and JSON it is a map
// keyed by type name; types missing from the map keep their current value,
// so decoding over a default table only overrides what is listed.
type NodeTypeTable [NumNodeTypes]float64

// FillNodeTable returns a table with every entry set to v.
func FillNodeTable(v float64) NodeTypeTable {
	var t NodeTypeTable
	for i := range t {
		t[i] = v
	}
	return t
}

// Get returns the value for typ.
func (t NodeTypeTable) Get(typ NodeType) float64 {
	return t[typ]
}

// Set assigns the value for typ.
func (t *NodeTypeTable) Set(typ NodeType, v float64) {
	t[typ] = v
}

func (t NodeTypeTable) asMap() map[string]float64 {
	m := make(map[string]float64, NumNodeTypes)
	for i, v := range t {
		m[nodeTypeNames[i]] = v
	}
	return m
}

func (t *NodeTypeTable) fromMap(m map[string]float64) error {
	for name, v := range m {
		typ, err := ParseNodeType(name)
		if err != nil {
			return err
		}
		t[typ] = v
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t NodeTypeTable) MarshalYAML() (any, error) {
	return t.asMap(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *NodeTypeTable) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]float64
	if err := value.Decode(&m); err != nil {
		return fmt.Errorf("graph: decode node type table: %w", err)
	}
	return t.fromMap(m)
}

// MarshalJSON implements json.Marshaler.
func (t NodeTypeTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.asMap())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *NodeTypeTable) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("graph: decode node type table: %w", err)
	}
	return t.fromMap(m)
}

// LinkTypeTable holds one float64 per link type, encoded like NodeTypeTable.
type LinkTypeTable [NumLinkTypes]float64

// FillLinkTable returns a table with every entry set to v.
func FillLinkTable(v float64) LinkTypeTable {
	var t LinkTypeTable
	for i := range t {
		t[i] = v
	}
	return t
}

// Get returns the value for typ.
func (t LinkTypeTable) Get(typ LinkType) float64 {
	return t[typ]
}

// Set assigns the value for typ.
func (t *LinkTypeTable) Set(typ LinkType, v float64) {
	t[typ] = v
}

func (t LinkTypeTable) asMap() map[string]float64 {
	m := make(map[string]float64, NumLinkTypes)
	for i, v := range t {
		m[linkTypeNames[i]] = v
	}
	return m
}

func (t *LinkTypeTable) fromMap(m map[string]float64) error {
	for name, v := range m {
		typ, err := ParseLinkType(name)
		if err != nil {
			return err
		}
		t[typ] = v
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t LinkTypeTable) MarshalYAML() (any, error) {
	return t.asMap(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *LinkTypeTable) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]float64
	if err := value.Decode(&m); err != nil {
		return fmt.Errorf("graph: decode link type table: %w", err)
	}
	return t.fromMap(m)
}

// MarshalJSON implements json.Marshaler.
func (t LinkTypeTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.asMap())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *LinkTypeTable) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("graph: decode link type table: %w", err)
	}
	return t.fromMap(m)
}
