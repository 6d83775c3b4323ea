package gradegraph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the operation a node performs.
type Kind string

const (
	KindSource     Kind = "source"
	KindSink       Kind = "sink"
	KindAddition   Kind = "addition"
	KindAverage    Kind = "average"
	KindMax        Kind = "max"
	KindMinPoints  Kind = "minpoints"
	KindRequire    Kind = "require"
	KindRound      Kind = "round"
	KindStepper    Kind = "stepper"
	KindSubstitute Kind = "substitute"
)

// Kinds lists every node kind the engine understands.
var Kinds = []Kind{
	KindSource, KindSink, KindAddition, KindAverage, KindMax,
	KindMinPoints, KindRequire, KindRound, KindStepper, KindSubstitute,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// FanIn reports whether nodes of this kind take one input per connected edge.
func (k Kind) FanIn() bool {
	switch k {
	case KindAddition, KindAverage, KindMax, KindRequire, KindSubstitute:
		return true
	}
	return false
}

// PerHandleOutput reports whether nodes of this kind produce one output per
// input handle instead of a single scalar.
func (k Kind) PerHandleOutput() bool {
	return k == KindRequire || k == KindSubstitute
}

// Role distinguishes the groups of input slots on a fan-in node.
type Role uint8

const (
	// RoleNone marks the implicit slot of single-input/single-output kinds.
	RoleNone Role = iota
	RoleInput
	RoleExercise
	RoleSubstitute
)

var roleNames = map[Role]string{
	RoleNone:       "",
	RoleInput:      "input",
	RoleExercise:   "exercise",
	RoleSubstitute: "substitute",
}

func (r Role) String() string { return roleNames[r] }

// Handle is a named input or output slot on a node.
// Its text form is "<role>-<index>", e.g. "exercise-2".
type Handle struct {
	Role  Role
	Index int
}

// In returns the i-th generic fan-in handle.
func In(i int) Handle { return Handle{Role: RoleInput, Index: i} }

// Exercise returns the i-th exercise handle of a Substitute node.
func Exercise(i int) Handle { return Handle{Role: RoleExercise, Index: i} }

// Spare returns the i-th substitute handle of a Substitute node.
func Spare(i int) Handle { return Handle{Role: RoleSubstitute, Index: i} }

// IsZero reports whether h is the implicit single slot.
func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) String() string {
	if h.IsZero() {
		return ""
	}
	return h.Role.String() + "-" + strconv.Itoa(h.Index)
}

// Less orders handles by role, then index. This is the declaration order
// used wherever handle order matters.
func (h Handle) Less(o Handle) bool {
	if h.Role != o.Role {
		return h.Role < o.Role
	}
	return h.Index < o.Index
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(b []byte) error {
	parsed, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle parses the text form of a handle. The empty string is the
// implicit slot.
func ParseHandle(s string) (Handle, error) {
	if s == "" {
		return Handle{}, nil
	}
	i := strings.LastIndexByte(s, '-')
	if i <= 0 {
		return Handle{}, fmt.Errorf("gradegraph: malformed handle %q", s)
	}
	var role Role
	switch s[:i] {
	case "input":
		role = RoleInput
	case "exercise":
		role = RoleExercise
	case "substitute":
		role = RoleSubstitute
	default:
		return Handle{}, fmt.Errorf("gradegraph: unknown handle role in %q", s)
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil || idx < 0 {
		return Handle{}, fmt.Errorf("gradegraph: bad handle index in %q", s)
	}
	return Handle{Role: role, Index: idx}, nil
}

// Node is a vertex of a grading graph.
// Handles lists declared fan-in slots; a declared handle with no edge is
// disconnected. Edges add their target handles implicitly.
type Node struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Title    string   `json:"title,omitempty"`
	Handles  []Handle `json:"handles,omitempty"`
	Settings Settings `json:"settings,omitempty"`
}

// Edge carries a value from a source node's output into a target node's input.
// Handles are nil for the implicit slot.
type Edge struct {
	ID           string  `json:"id,omitempty"`
	Source       string  `json:"source"`
	SourceHandle *Handle `json:"sourceHandle,omitempty"`
	Target       string  `json:"target"`
	TargetHandle *Handle `json:"targetHandle,omitempty"`
}

func (e Edge) sourceHandle() Handle {
	if e.SourceHandle == nil {
		return Handle{}
	}
	return *e.SourceHandle
}

func (e Edge) targetHandle() Handle {
	if e.TargetHandle == nil {
		return Handle{}
	}
	return *e.TargetHandle
}

// Graph is the authored description of a grading model.
// It is never mutated by evaluation.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Sink returns the graph's sink node id, or "" if there is none.
func (g *Graph) Sink() string {
	for _, n := range g.Nodes {
		if n.Kind == KindSink {
			return n.ID
		}
	}
	return ""
}

// SourceIDs returns the ids of all Source nodes in declaration order.
func (g *Graph) SourceIDs() []string {
	var ids []string
	for _, n := range g.Nodes {
		if n.Kind == KindSource {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		n.Handles = append([]Handle(nil), n.Handles...)
		if n.Settings != nil {
			n.Settings = n.Settings.clone()
		}
		out.Nodes[i] = n
	}
	for i, e := range g.Edges {
		if e.SourceHandle != nil {
			h := *e.SourceHandle
			e.SourceHandle = &h
		}
		if e.TargetHandle != nil {
			h := *e.TargetHandle
			e.TargetHandle = &h
		}
		out.Edges[i] = e
	}
	return out
}

// nodeDoc is the wire shape of a node. Settings are inline when a node is
// sent on its own and lifted into the graph-level settings map otherwise.
type nodeDoc struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	Title    string          `json:"title,omitempty"`
	Handles  []Handle        `json:"handles,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

func (n Node) doc() nodeDoc {
	return nodeDoc{ID: n.ID, Kind: n.Kind, Title: n.Title, Handles: n.Handles}
}

// encodeSettings returns the JSON form of n's settings, or nil if it has none.
func (n Node) encodeSettings() (json.RawMessage, error) {
	if n.Settings == nil {
		return nil, nil
	}
	raw, err := json.Marshal(n.Settings)
	if err != nil {
		return nil, fmt.Errorf("gradegraph: encode settings of %s: %w", n.ID, err)
	}
	return raw, nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	d := n.doc()
	raw, err := n.encodeSettings()
	if err != nil {
		return nil, err
	}
	d.Settings = raw
	return json.Marshal(d)
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var d nodeDoc
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	*n = Node{ID: d.ID, Kind: d.Kind, Title: d.Title, Handles: d.Handles}
	if len(d.Settings) == 0 || string(d.Settings) == "null" {
		return nil
	}
	s, err := DecodeSettings(d.Kind, d.Settings)
	if err != nil {
		return fmt.Errorf("gradegraph: decode settings of %s: %w", d.ID, err)
	}
	n.Settings = s
	return nil
}

// graphDoc is the persisted document shape:
// {nodes: [...], edges: [...], settings: {nodeId: {...}}}.
type graphDoc struct {
	Nodes    []nodeDoc                  `json:"nodes"`
	Edges    []Edge                     `json:"edges"`
	Settings map[string]json.RawMessage `json:"settings,omitempty"`
}

func (g Graph) MarshalJSON() ([]byte, error) {
	doc := graphDoc{
		Nodes: make([]nodeDoc, 0, len(g.Nodes)),
		Edges: g.Edges,
	}
	if doc.Edges == nil {
		doc.Edges = []Edge{}
	}
	for _, n := range g.Nodes {
		doc.Nodes = append(doc.Nodes, n.doc())
		raw, err := n.encodeSettings()
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		if doc.Settings == nil {
			doc.Settings = make(map[string]json.RawMessage)
		}
		doc.Settings[n.ID] = raw
	}
	return json.Marshal(doc)
}

// UnmarshalJSON accepts settings both inline on nodes and in the
// graph-level settings map; the map wins when both are present.
func (g *Graph) UnmarshalJSON(b []byte) error {
	var doc struct {
		Nodes    []Node                     `json:"nodes"`
		Edges    []Edge                     `json:"edges"`
		Settings map[string]json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		raw, ok := doc.Settings[n.ID]
		if !ok {
			continue
		}
		s, err := DecodeSettings(n.Kind, raw)
		if err != nil {
			return fmt.Errorf("gradegraph: decode settings of %s: %w", n.ID, err)
		}
		n.Settings = s
	}
	g.Nodes = doc.Nodes
	g.Edges = doc.Edges
	return nil
}
