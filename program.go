package gradegraph

import (
	"fmt"
	"slices"
)

// Program is a validated graph compiled into an arena of nodes addressed by
// integer index. It is immutable and safe for concurrent use; every
// evaluation allocates its own frame.
type Program struct {
	nodes   []compiledNode
	index   map[string]int
	sources []int
	sinks   []int
	// order is one valid topological order, computed once for batch replay.
	order []int
	// width is the number of value slots a frame needs.
	width int
	diags []Diagnostic
}

type compiledNode struct {
	id       string
	kind     Kind
	settings Settings
	// handles are the input slots of fan-in kinds in declaration order.
	handles   []Handle
	connected []bool
	// in and out are offsets into a frame's slots for this node's per-handle
	// inputs and outputs. out is -1 for scalar-output kinds.
	in, out int
	// weights is parallel to handles for Average nodes.
	weights  []float64
	links    []link
	indegree int
}

// link delivers one output of a node into one input of another.
// from and slot are -1 for the implicit single slot.
type link struct {
	target int
	slot   int
	from   int
}

// Compile validates g and compiles it for evaluation.
func Compile(g *Graph) (*Program, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return compile(g)
}

// compile builds the arena for a graph whose nodes and edges are known to
// be well formed. Cycles are still detected while ordering.
func compile(g *Graph) (*Program, error) {
	p := &Program{
		nodes: make([]compiledNode, len(g.Nodes)),
		index: make(map[string]int, len(g.Nodes)),
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		p.index[n.ID] = i
		p.nodes[i] = compiledNode{
			id:       n.ID,
			kind:     n.Kind,
			settings: settingsOf(n),
			handles:  slices.Clone(n.Handles),
			out:      -1,
		}
		switch n.Kind {
		case KindSource:
			p.sources = append(p.sources, i)
		case KindSink:
			p.sinks = append(p.sinks, i)
		}
	}

	// Collect every fan-in slot, declared or connected.
	for _, e := range g.Edges {
		cn := &p.nodes[p.index[e.Target]]
		cn.indegree++
		if th := e.targetHandle(); !th.IsZero() && !slices.Contains(cn.handles, th) {
			cn.handles = append(cn.handles, th)
		}
	}
	for i := range p.nodes {
		cn := &p.nodes[i]
		slices.SortFunc(cn.handles, func(a, b Handle) int {
			switch {
			case a.Less(b):
				return -1
			case b.Less(a):
				return 1
			}
			return 0
		})
		cn.handles = slices.Compact(cn.handles)
		cn.connected = make([]bool, len(cn.handles))
		cn.in = p.width
		p.width += len(cn.handles)
		if cn.kind.PerHandleOutput() {
			cn.out = p.width
			p.width += len(cn.handles)
		}
	}

	for _, e := range g.Edges {
		src := &p.nodes[p.index[e.Source]]
		dstIdx := p.index[e.Target]
		dst := &p.nodes[dstIdx]
		l := link{target: dstIdx, slot: -1, from: -1}
		if th := e.targetHandle(); !th.IsZero() {
			l.slot = slices.Index(dst.handles, th)
			dst.connected[l.slot] = true
		}
		if src.kind.PerHandleOutput() {
			l.from = slices.Index(src.handles, e.sourceHandle())
		}
		src.links = append(src.links, l)
	}

	for i := range p.nodes {
		if p.nodes[i].kind == KindAverage {
			p.compileWeights(&p.nodes[i])
		}
	}

	order, err := p.topoOrder()
	if err != nil {
		return nil, err
	}
	p.order = order
	return p, nil
}

func (p *Program) compileWeights(cn *compiledNode) {
	s := cn.settings.(*AverageSettings)
	cn.weights = make([]float64, len(cn.handles))
	for i, h := range cn.handles {
		cn.weights[i] = s.Weights[h]
	}
	stale := make([]Handle, 0)
	for h := range s.Weights {
		if i := slices.Index(cn.handles, h); i < 0 || !cn.connected[i] {
			stale = append(stale, h)
		}
	}
	slices.SortFunc(stale, func(a, b Handle) int {
		if a.Less(b) {
			return -1
		}
		return 1
	})
	for _, h := range stale {
		p.diags = append(p.diags, Diagnostic{
			Code:   UnknownHandleReference,
			Node:   cn.id,
			Handle: h,
		})
	}
}

// topoOrder runs Kahn's algorithm once over the arena.
func (p *Program) topoOrder() ([]int, error) {
	remaining := make([]int, len(p.nodes))
	ready := make([]int, 0, len(p.nodes))
	for i := range p.nodes {
		remaining[i] = p.nodes[i].indegree
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]int, 0, len(p.nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)
		for _, l := range p.nodes[i].links {
			remaining[l.target]--
			if remaining[l.target] == 0 {
				ready = append(ready, l.target)
			}
		}
	}
	if len(order) != len(p.nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes unresolved", ErrCyclicGraph, len(p.nodes)-len(order), len(p.nodes))
	}
	return order, nil
}

// Diagnostics returns the recoverable problems found while compiling, such
// as Average weights configured for handles that are not connected.
func (p *Program) Diagnostics() []Diagnostic {
	return slices.Clone(p.diags)
}

// SourceIDs returns the ids of the program's Source nodes.
func (p *Program) SourceIDs() []string {
	ids := make([]string, len(p.sources))
	for i, idx := range p.sources {
		ids[i] = p.nodes[idx].id
	}
	return ids
}

// Sink returns the id of the program's Sink node.
func (p *Program) Sink() string {
	return p.nodes[p.sinks[0]].id
}
