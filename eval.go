package gradegraph

import (
	"fmt"
	"slices"
)

// DiagnosticCode names a recoverable problem noticed during compilation or
// evaluation. Diagnostics never abort an evaluation.
type DiagnosticCode string

const (
	// UnknownHandleReference: settings name a handle that is not connected.
	// The entry is ignored.
	UnknownHandleReference DiagnosticCode = "unknown_handle_reference"
	// MissingSourceValue: no value was supplied for a Source node; 0 is used.
	MissingSourceValue DiagnosticCode = "missing_source_value"
)

// Diagnostic is a recoverable problem noticed while compiling or
// evaluating; it never changes the result.
type Diagnostic struct {
	Code   DiagnosticCode `json:"code"`
	Node   string         `json:"node"`
	Handle Handle         `json:"handle,omitzero"`
}

func (d Diagnostic) String() string {
	if d.Handle.IsZero() {
		return fmt.Sprintf("%s: %s", d.Code, d.Node)
	}
	return fmt.Sprintf("%s: %s/%s", d.Code, d.Node, d.Handle)
}

// Grade is the reported outcome of a graph: its Sink value, and whether a
// node demanded that the whole evaluation fail.
type Grade struct {
	Value    float64 `json:"value"`
	FullFail bool    `json:"fullFail"`
}

// Result is the settled state of one evaluation.
type Result struct {
	Values      Values       `json:"values,omitempty"`
	Grade       Grade        `json:"grade"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Evaluate compiles g and evaluates it once for the given Source values.
// Sources without a value default to 0.
func Evaluate(g *Graph, sources map[string]float64) (*Result, error) {
	p, err := Compile(g)
	if err != nil {
		return nil, err
	}
	return p.Evaluate(sources)
}

// Evaluate runs one topological pass over p for the given Source values.
func (p *Program) Evaluate(sources map[string]float64) (*Result, error) {
	return p.evaluate(sources, popFront)
}

func popFront([]int) int { return 0 }

// evaluate is the Kahn-style pass. pick chooses which ready node runs next;
// any choice yields the same result.
func (p *Program) evaluate(sources map[string]float64, pick func(ready []int) int) (*Result, error) {
	f := p.newFrame()
	diags := p.seed(f, sources)

	remaining := make([]int, len(p.nodes))
	ready := make([]int, 0, len(p.nodes))
	for i := range p.nodes {
		remaining[i] = p.nodes[i].indegree
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}

	resolved := 0
	for len(ready) > 0 {
		k := pick(ready)
		i := ready[k]
		ready[k] = ready[len(ready)-1]
		ready = ready[:len(ready)-1]

		p.step(f, i)
		resolved++
		for _, l := range p.nodes[i].links {
			remaining[l.target]--
			if remaining[l.target] == 0 {
				ready = append(ready, l.target)
			}
		}
	}
	if resolved != len(p.nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes unresolved", ErrCyclicGraph, len(p.nodes)-resolved, len(p.nodes))
	}

	p.settle(f)
	return &Result{
		Values:      p.materialize(f),
		Grade:       p.grade(f),
		Diagnostics: diags,
	}, nil
}

// seed writes the caller's Source values into f. The returned diagnostics
// start with the program's compile-time ones.
func (p *Program) seed(f *frame, sources map[string]float64) []Diagnostic {
	var diags []Diagnostic
	if len(p.diags) > 0 {
		diags = slices.Clone(p.diags)
	}
	for _, i := range p.sources {
		v, ok := sources[p.nodes[i].id]
		if !ok {
			diags = append(diags, Diagnostic{Code: MissingSourceValue, Node: p.nodes[i].id})
		}
		f.nodes[i].source = v
	}
	return diags
}

// step calculates node i and delivers its outputs along its links.
func (p *Program) step(f *frame, i int) {
	cn := &p.nodes[i]
	st := &f.nodes[i]
	cn.calculate(f, st)

	for _, l := range cn.links {
		v := st.value
		if l.from >= 0 {
			v = f.slots[cn.out+l.from]
		}
		dst := &p.nodes[l.target]
		if l.slot < 0 {
			f.nodes[l.target].source = v.OrZero()
			continue
		}
		if !dst.kind.PerHandleOutput() {
			// Arithmetic kinds treat Fail as 0.
			v = Num(v.OrZero())
		}
		f.slots[dst.in+l.slot] = v
	}
}

// settle applies the fullFail policy: if any node raised fullFail, every
// Sink in the graph reports 0 regardless of reachability.
func (p *Program) settle(f *frame) {
	fullFail := false
	for i := range f.nodes {
		if f.nodes[i].fullFail {
			fullFail = true
			break
		}
	}
	if !fullFail {
		return
	}
	for _, i := range p.sinks {
		f.nodes[i].value = Num(0)
		f.nodes[i].fullFail = true
	}
}

func (p *Program) grade(f *frame) Grade {
	st := f.nodes[p.sinks[0]]
	return Grade{Value: st.value.OrZero(), FullFail: st.fullFail}
}

// materialize converts the frame into one NodeValue per node.
func (p *Program) materialize(f *frame) Values {
	out := make(Values, len(p.nodes))
	for i := range p.nodes {
		cn := &p.nodes[i]
		st := f.nodes[i]
		switch cn.kind {
		case KindSource:
			out[cn.id] = SourceValue{Source: st.source, Value: st.value, FullFail: st.fullFail}
		case KindSink:
			out[cn.id] = SinkValue{Source: st.source, Value: st.value.OrZero(), FullFail: st.fullFail}
		case KindAddition:
			out[cn.id] = AdditionValue{Sources: sourcesOf(cn, f), Value: st.value.OrZero()}
		case KindAverage:
			out[cn.id] = AverageValue{Sources: sourcesOf(cn, f), Value: st.value.OrZero()}
		case KindMax:
			out[cn.id] = MaxValue{Sources: sourcesOf(cn, f), Value: st.value.OrZero()}
		case KindMinPoints:
			out[cn.id] = MinPointsValue{Source: st.source, Value: st.value, FullFail: st.fullFail}
		case KindRequire:
			out[cn.id] = RequireValue{Sources: sourcesOf(cn, f), Values: valuesOf(cn, f), FullFail: st.fullFail}
		case KindRound:
			out[cn.id] = RoundValue{Source: st.source, Value: st.value.OrZero()}
		case KindStepper:
			out[cn.id] = StepperValue{Source: st.source, Value: st.value.OrZero()}
		case KindSubstitute:
			out[cn.id] = SubstituteValue{Sources: sourcesOf(cn, f), Values: valuesOf(cn, f)}
		default:
			panic("gradegraph: unhandled node kind " + string(cn.kind))
		}
	}
	return out
}

func sourcesOf(cn *compiledNode, f *frame) map[Handle]Input {
	in := f.inputs(cn)
	m := make(map[Handle]Input, len(cn.handles))
	for i, h := range cn.handles {
		m[h] = Input{IsConnected: cn.connected[i], Value: in[i]}
	}
	return m
}

// valuesOf returns the per-handle outputs of connected handles only.
func valuesOf(cn *compiledNode, f *frame) map[Handle]Value {
	out := f.outputs(cn)
	m := make(map[Handle]Value, len(cn.handles))
	for i, h := range cn.handles {
		if cn.connected[i] {
			m[h] = out[i]
		}
	}
	return m
}

// Sink returns the Sink's NodeValue from r.
func (r *Result) Sink() (SinkValue, bool) {
	for _, v := range r.Values {
		if s, ok := v.(SinkValue); ok {
			return s, true
		}
	}
	return SinkValue{}, false
}
