package gradegraph

import (
	"fmt"
	"math"
	"slices"
)

// Template selects the starting shape of a new grading model.
type Template string

const (
	TemplateNone     Template = "none"
	TemplateAddition Template = "addition"
	TemplateAverage  Template = "average"
)

// SinkID is the id templates give the Sink node.
const SinkID = "final-grade"

// SourceRef names one input of a new grading model: a task or, for a final
// model, a course part.
type SourceRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// templateIDs are the node ids templates use besides the sources.
var templateIDs = []string{SinkID, string(TemplateAddition), string(TemplateAverage), "stepper"}

// NewGraph builds the initial graph for a grading model over sources.
// The addition and average templates combine every source and convert the
// result to a grade from 0 to 5 with a Stepper; they need at least one
// source. Source ids must not reuse the template's own node ids.
func NewGraph(t Template, sinkTitle string, sources []SourceRef) (*Graph, error) {
	g := &Graph{Nodes: []Node{{ID: SinkID, Kind: KindSink, Title: sinkTitle}}}
	for _, s := range sources {
		if slices.Contains(templateIDs, s.ID) {
			return nil, fmt.Errorf("%w: source id %q is reserved by the template", ErrInvalidGraph, s.ID)
		}
		g.Nodes = append(g.Nodes, Node{
			ID:       s.ID,
			Kind:     KindSource,
			Title:    s.Title,
			Settings: &SourceSettings{OnFailSetting: OnFailFullFail},
		})
	}

	switch t {
	case TemplateNone, "":
		return g, nil
	case TemplateAddition, TemplateAverage:
		if len(sources) == 0 {
			return nil, fmt.Errorf("%w: template %q needs at least one source", ErrInvalidGraph, t)
		}
	default:
		return nil, fmt.Errorf("%w: unknown template %q", ErrInvalidGraph, t)
	}

	middle := Node{ID: string(t), Kind: KindAddition, Title: "Addition"}
	if t == TemplateAverage {
		weights := make(map[Handle]float64, len(sources))
		for i := range sources {
			weights[In(i)] = math.Round(100/float64(len(sources))*10) / 10
		}
		middle = Node{
			ID:       string(t),
			Kind:     KindAverage,
			Title:    "Average",
			Settings: &AverageSettings{Weights: weights, PercentageMode: true},
		}
	}
	g.Nodes = append(g.Nodes, middle)
	for i, s := range sources {
		g.Edges = append(g.Edges, connect(s.ID, nil, middle.ID, ptr(In(i))))
	}

	middlePoints := []float64{1.7, 3.3, 5, 6.7, 8.3}
	if t == TemplateAddition {
		for i := range middlePoints {
			middlePoints[i] = math.Round(float64((i+1)*10*len(sources))/6*10) / 10
		}
	}
	g.Nodes = append(g.Nodes, Node{
		ID:    "stepper",
		Kind:  KindStepper,
		Title: "Convert to grade",
		Settings: &StepperSettings{
			NumSteps:     6,
			MiddlePoints: middlePoints,
			OutputValues: []StepOutput{Step(0), Step(1), Step(2), Step(3), Step(4), Step(5)},
		},
	})
	g.Edges = append(g.Edges,
		connect(middle.ID, nil, "stepper", nil),
		connect("stepper", nil, SinkID, nil),
	)
	return g, nil
}

func connect(source string, sh *Handle, target string, th *Handle) Edge {
	id := fmt.Sprintf("%s:%s-%s:%s", source, sh.orEmpty(), target, th.orEmpty())
	return Edge{ID: id, Source: source, SourceHandle: sh, Target: target, TargetHandle: th}
}

func (h *Handle) orEmpty() string {
	if h == nil {
		return ""
	}
	return h.String()
}

func ptr[T any](v T) *T { return &v }
