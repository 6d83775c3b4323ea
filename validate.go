package gradegraph

import (
	"fmt"
	"slices"
)

// Validate checks the structural invariants of g and every node's settings.
// A graph that passes Validate can always be compiled into a Program.
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))
	sinks := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if err := n.Validate(); err != nil {
			return err
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, n.ID)
		}
		seen[n.ID] = true
		if n.Kind == KindSink {
			sinks++
		}
	}
	if sinks != 1 {
		return fmt.Errorf("%w: expected exactly one sink, found %d", ErrInvalidGraph, sinks)
	}
	if err := g.validateEdges(); err != nil {
		return err
	}
	return validateAcyclic(g.Nodes, g.Edges)
}

// Validate checks a single node in isolation: id, kind, declared handles and
// settings.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("%w: node without id", ErrInvalidGraph)
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("%w: node %s has unknown kind %q", ErrInvalidGraph, n.ID, n.Kind)
	}
	for _, h := range n.Handles {
		if !legalInput(n.Kind, h) {
			return fmt.Errorf("%w: node %s (%s) cannot declare handle %q", ErrInvalidGraph, n.ID, n.Kind, h)
		}
	}
	if n.Settings == nil {
		return nil
	}
	if n.Settings.Kind() != n.Kind {
		return fmt.Errorf("%w: node %s is %s but has %s settings", ErrInvalidSettings, n.ID, n.Kind, n.Settings.Kind())
	}
	if err := n.Settings.Validate(); err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}
	return nil
}

// legalInput reports whether h may be an input slot on a node of kind k.
func legalInput(k Kind, h Handle) bool {
	switch k {
	case KindSubstitute:
		return h.Role == RoleExercise || h.Role == RoleSubstitute
	case KindAddition, KindAverage, KindMax, KindRequire:
		return h.Role == RoleInput
	}
	return h.IsZero()
}

type nodeEnd struct {
	node   string
	handle Handle
}

func (g *Graph) validateEdges() error {
	kinds := make(map[string]Kind, len(g.Nodes))
	handles := make(map[string][]Handle)
	for _, n := range g.Nodes {
		kinds[n.ID] = n.Kind
		handles[n.ID] = append(handles[n.ID], n.Handles...)
	}

	incoming := make(map[nodeEnd]bool)
	fanout := make(map[nodeEnd]map[string]bool)
	edgeIDs := make(map[string]bool)
	for _, e := range g.Edges {
		if e.ID != "" {
			if edgeIDs[e.ID] {
				return fmt.Errorf("%w: duplicate edge id %q", ErrInvalidEdge, e.ID)
			}
			edgeIDs[e.ID] = true
		}
		src, ok := kinds[e.Source]
		if !ok {
			return fmt.Errorf("%w: edge source %q", ErrNodeNotFound, e.Source)
		}
		dst, ok := kinds[e.Target]
		if !ok {
			return fmt.Errorf("%w: edge target %q", ErrNodeNotFound, e.Target)
		}
		if e.Source == e.Target {
			return fmt.Errorf("%w: %s connects to itself", ErrInvalidEdge, e.Source)
		}
		if dst == KindSource {
			return fmt.Errorf("%w: source node %s cannot have inputs", ErrInvalidEdge, e.Target)
		}
		if src == KindSink {
			return fmt.Errorf("%w: sink node %s cannot have outputs", ErrInvalidEdge, e.Source)
		}

		th := e.targetHandle()
		if dst.FanIn() && th.IsZero() {
			return fmt.Errorf("%w: edge into %s (%s) needs a target handle", ErrInvalidEdge, e.Target, dst)
		}
		if !legalInput(dst, th) {
			return fmt.Errorf("%w: %s (%s) has no input handle %q", ErrInvalidEdge, e.Target, dst, th)
		}
		in := nodeEnd{e.Target, th}
		if incoming[in] {
			return fmt.Errorf("%w: input %s of %s is already connected", ErrInvalidEdge, th, e.Target)
		}
		incoming[in] = true
		if !th.IsZero() {
			handles[e.Target] = append(handles[e.Target], th)
		}

		out := nodeEnd{e.Source, e.sourceHandle()}
		if fanout[out] == nil {
			fanout[out] = make(map[string]bool)
		}
		if fanout[out][e.Target] {
			return fmt.Errorf("%w: output %s of %s already feeds %s", ErrInvalidEdge, out.handle, e.Source, e.Target)
		}
		fanout[out][e.Target] = true
	}

	// Per-handle outputs must name an input slot of their node.
	for _, e := range g.Edges {
		src := kinds[e.Source]
		sh := e.sourceHandle()
		if !src.PerHandleOutput() {
			if !sh.IsZero() {
				return fmt.Errorf("%w: %s (%s) has a single output, got handle %q", ErrInvalidEdge, e.Source, src, sh)
			}
			continue
		}
		if sh.IsZero() || !slices.Contains(handles[e.Source], sh) {
			return fmt.Errorf("%w: %s (%s) has no output handle %q", ErrInvalidEdge, e.Source, src, sh)
		}
	}
	return nil
}

// validateAcyclic checks that the edges don't form a cycle using DFS.
func validateAcyclic(nodes []Node, edges []Edge) error {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int)
	for _, n := range nodes {
		state[n.ID] = unvisited
	}
	// Also include nodes referenced only in edges.
	for _, e := range edges {
		if _, ok := state[e.Source]; !ok {
			state[e.Source] = unvisited
		}
		if _, ok := state[e.Target]; !ok {
			state[e.Target] = unvisited
		}
	}

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visiting
		for _, next := range adj[id] {
			switch state[next] {
			case visiting:
				return true
			case unvisited:
				if dfs(next) {
					return true
				}
			}
		}
		state[id] = visited
		return false
	}

	for id, s := range state {
		if s == unvisited {
			if dfs(id) {
				return ErrCyclicGraph
			}
		}
	}

	return nil
}

// CheckConnection reports why e cannot be added to g, or nil if it can.
// Editors call this before persisting a new edge.
func (g *Graph) CheckConnection(e Edge) error {
	next := Graph{Nodes: g.Nodes, Edges: append(slices.Clone(g.Edges), e)}
	if err := next.validateEdges(); err != nil {
		return err
	}
	return validateAcyclic(next.Nodes, next.Edges)
}

// IsValidConnection reports whether e can be added to g without breaking
// any structural invariant.
func IsValidConnection(e Edge, g *Graph) bool {
	return g.CheckConnection(e) == nil
}

// IsAcyclicAfterAdding reports whether g stays acyclic once e is added.
func IsAcyclicAfterAdding(e Edge, g *Graph) bool {
	return validateAcyclic(g.Nodes, append(slices.Clone(g.Edges), e)) == nil
}
