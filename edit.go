package gradegraph

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// AddNode appends n to g. If n has no settings it gets the defaults for its
// kind. The graph must stay valid.
func (g *Graph) AddNode(n Node) error {
	if _, ok := g.Node(n.ID); ok {
		return fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, n.ID)
	}
	if n.Settings == nil {
		n.Settings = DefaultSettings(n.Kind)
	}
	next := g.Clone()
	next.Nodes = append(next.Nodes, n)
	if err := next.Validate(); err != nil {
		return err
	}
	*g = *next
	return nil
}

// UpdateNode replaces the node with n.ID. Its kind may change only if the
// graph stays valid.
func (g *Graph) UpdateNode(n Node) error {
	next := g.Clone()
	cur, ok := next.Node(n.ID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, n.ID)
	}
	if n.Settings == nil {
		n.Settings = DefaultSettings(n.Kind)
	}
	*cur = n
	if err := next.Validate(); err != nil {
		return err
	}
	*g = *next
	return nil
}

// RemoveNode deletes a node and every edge touching it. Slots the node fed
// on Require and Substitute nodes stay declared as disconnected handles.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.Node(id); !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	next := g.Clone()
	next.Nodes = slices.DeleteFunc(next.Nodes, func(n Node) bool { return n.ID == id })
	var removed []Edge
	next.Edges = slices.DeleteFunc(next.Edges, func(e Edge) bool {
		if e.Source == id || e.Target == id {
			removed = append(removed, e)
			return true
		}
		return false
	})
	next.keepHandles(removed)
	if err := next.Validate(); err != nil {
		return err
	}
	*g = *next
	return nil
}

// AddEdge appends e to g after checking it with CheckConnection.
func (g *Graph) AddEdge(e Edge) error {
	if err := g.CheckConnection(e); err != nil {
		return err
	}
	g.Edges = append(g.Edges, e)
	return nil
}

// RemoveEdge deletes the edge with the given id. If it fed a Require or
// Substitute node, its target slot stays declared as a disconnected handle.
func (g *Graph) RemoveEdge(id string) error {
	i := slices.IndexFunc(g.Edges, func(e Edge) bool { return e.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrEdgeNotFound, id)
	}
	next := g.Clone()
	next.keepHandles(g.Edges[i : i+1])
	next.Edges = slices.Delete(next.Edges, i, i+1)
	if err := next.validateEdges(); err != nil {
		return err
	}
	*g = *next
	return nil
}

// keepHandles declares the target slots of removed edges on nodes with
// per-handle outputs, so edges leaving those slots remain valid.
func (g *Graph) keepHandles(removed []Edge) {
	for _, e := range removed {
		th := e.targetHandle()
		if th.IsZero() {
			continue
		}
		n, ok := g.Node(e.Target)
		if !ok || !n.Kind.PerHandleOutput() || slices.Contains(n.Handles, th) {
			continue
		}
		n.Handles = append(n.Handles, th)
	}
}

// FillIDs gives every node and edge without an id a random UUID.
func (g *Graph) FillIDs() {
	for i := range g.Nodes {
		if g.Nodes[i].ID == "" {
			g.Nodes[i].ID = uuid.NewString()
		}
	}
	for i := range g.Edges {
		if g.Edges[i].ID == "" {
			g.Edges[i].ID = uuid.NewString()
		}
	}
}
