package gradegraph

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepperBoundaries(t *testing.T) {
	g := chain(node("step", KindStepper, &StepperSettings{
		NumSteps:     3,
		MiddlePoints: []float64{5, 10},
		OutputValues: []StepOutput{Step(0), Step(1), Step(2)},
	}))

	tests := []struct {
		in   float64
		want float64
	}{
		{in: -3, want: 0},
		{in: 5, want: 0},
		{in: 5.0001, want: 1},
		{in: 10, want: 1},
		{in: 15, want: 2},
	}
	for _, tt := range tests {
		res, err := Evaluate(g, map[string]float64{"in": tt.in})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Grade.Value, "input %v", tt.in)
	}
}

func TestStepperSamePassesInputThrough(t *testing.T) {
	g := chain(node("step", KindStepper, &StepperSettings{
		NumSteps:     2,
		MiddlePoints: []float64{4},
		OutputValues: []StepOutput{Step(0), Same},
	}))
	res, err := Evaluate(g, map[string]float64{"in": 7.5})
	require.NoError(t, err)
	assert.Equal(t, StepperValue{Source: 7.5, Value: 7.5}, res.Values["step"])
}

func TestRound(t *testing.T) {
	tests := []struct {
		mode Rounding
		in   float64
		want float64
	}{
		{RoundUp, 2.1, 3},
		{RoundUp, -2.5, -2},
		{RoundDown, 2.9, 2},
		{RoundDown, -2.1, -3},
		{RoundClosest, 2.5, 3},
		{RoundClosest, 2.49, 2},
		{RoundClosest, -2.5, -2},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			g := chain(node("round", KindRound, &RoundSettings{RoundingSetting: tt.mode}))
			res, err := Evaluate(g, map[string]float64{"in": tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Grade.Value, "input %v", tt.in)
		})
	}
}

// requireGraph feeds three threshold sources through a Require node into an
// Addition.
func requireGraph(s *RequireSettings) *Graph {
	return &Graph{
		Nodes: []Node{
			thresholdSource("a", 1), thresholdSource("b", 1), thresholdSource("c", 1),
			node("req", KindRequire, s),
			node("sum", KindAddition, nil),
			sink(),
		},
		Edges: []Edge{
			wire("a", "req", In(0)),
			wire("b", "req", In(1)),
			wire("c", "req", In(2)),
			wireFrom("req", In(0), "sum", In(0)),
			wireFrom("req", In(1), "sum", In(1)),
			wireFrom("req", In(2), "sum", In(2)),
			wire("sum", "sink", Handle{}),
		},
	}
}

func TestRequireWithinLimitPassesThrough(t *testing.T) {
	g := requireGraph(&RequireSettings{NumFail: 1, OnFailSetting: OnFailFail})
	res, err := Evaluate(g, map[string]float64{"a": 0, "b": 5, "c": 5})
	require.NoError(t, err)

	req := res.Values["req"].(RequireValue)
	assert.Equal(t, map[Handle]Value{In(0): Fail, In(1): Num(5), In(2): Num(5)}, req.Values)
	assert.False(t, req.FullFail)
	assert.Equal(t, Grade{Value: 10}, res.Grade)
}

func TestRequireOverLimitFailsEveryOutput(t *testing.T) {
	g := requireGraph(&RequireSettings{NumFail: 1, OnFailSetting: OnFailFail})
	res, err := Evaluate(g, map[string]float64{"a": 0, "b": 0, "c": 5})
	require.NoError(t, err)

	req := res.Values["req"].(RequireValue)
	assert.Equal(t, map[Handle]Value{In(0): Fail, In(1): Fail, In(2): Fail}, req.Values)
	assert.Equal(t, Grade{Value: 0}, res.Grade)
}

func TestRequireFullFail(t *testing.T) {
	g := requireGraph(&RequireSettings{NumFail: 0, OnFailSetting: OnFailFullFail})
	res, err := Evaluate(g, map[string]float64{"a": 0, "b": 5, "c": 5})
	require.NoError(t, err)

	req := res.Values["req"].(RequireValue)
	assert.True(t, req.FullFail)
	// Outputs are untouched; the flag alone fails the evaluation.
	assert.Equal(t, Num(5), req.Values[In(1)])
	assert.Equal(t, Grade{Value: 0, FullFail: true}, res.Grade)
	assert.Equal(t, SinkValue{Source: 10, Value: 0, FullFail: true}, res.Values["sink"])
}

func TestSubstitute(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			thresholdSource("e0", 5), thresholdSource("e1", 5), thresholdSource("s0", 5),
			node("sub", KindSubstitute, &SubstituteSettings{MaxSubstitutions: 5, SubstituteValues: []float64{6, 7}}),
			node("sum", KindAddition, nil),
			sink(),
		},
		Edges: []Edge{
			wire("e0", "sub", Exercise(0)),
			wire("e1", "sub", Exercise(1)),
			wire("s0", "sub", Spare(0)),
			wireFrom("sub", Exercise(0), "sum", In(0)),
			wireFrom("sub", Exercise(1), "sum", In(1)),
			wire("sum", "sink", Handle{}),
		},
	}
	res, err := Evaluate(g, map[string]float64{"e0": 0, "e1": 8, "s0": 9})
	require.NoError(t, err)

	sub := res.Values["sub"].(SubstituteValue)
	assert.Equal(t, map[Handle]Value{
		Exercise(0): Num(6),
		Exercise(1): Num(8),
		Spare(0):    Fail,
	}, sub.Values)
	assert.Equal(t, 14.0, res.Grade.Value)
}

func TestSubstituteLimitedBySparesAndMax(t *testing.T) {
	build := func(limit int) *Graph {
		return &Graph{
			Nodes: []Node{
				thresholdSource("e0", 5), thresholdSource("e1", 5), thresholdSource("e2", 5),
				thresholdSource("s0", 5), thresholdSource("s1", 5),
				node("sub", KindSubstitute, &SubstituteSettings{MaxSubstitutions: limit}),
				sink(),
			},
			Edges: []Edge{
				wire("e0", "sub", Exercise(0)),
				wire("e1", "sub", Exercise(1)),
				wire("e2", "sub", Exercise(2)),
				wire("s0", "sub", Spare(0)),
				wire("s1", "sub", Spare(1)),
			},
		}
	}
	// Three failed exercises, one usable spare.
	sources := map[string]float64{"e0": 0, "e1": 0, "e2": 0, "s0": 0, "s1": 9}

	res, err := Evaluate(build(5), sources)
	require.NoError(t, err)
	assert.Equal(t, map[Handle]Value{
		Exercise(0): Num(0),
		Exercise(1): Fail,
		Exercise(2): Fail,
		Spare(0):    Fail,
		Spare(1):    Fail,
	}, res.Values["sub"].(SubstituteValue).Values)

	res, err = Evaluate(build(0), sources)
	require.NoError(t, err)
	assert.Equal(t, map[Handle]Value{
		Exercise(0): Fail,
		Exercise(1): Fail,
		Exercise(2): Fail,
		Spare(0):    Fail,
		Spare(1):    Num(9),
	}, res.Values["sub"].(SubstituteValue).Values)
}

func TestAdditionIgnoresDisconnectedHandles(t *testing.T) {
	sum := node("sum", KindAddition, nil)
	sum.Handles = []Handle{In(5)}
	g := &Graph{
		Nodes: []Node{source("a"), source("b"), sum, sink()},
		Edges: []Edge{
			wire("a", "sum", In(0)),
			wire("b", "sum", In(1)),
			wire("sum", "sink", Handle{}),
		},
	}
	res, err := Evaluate(g, map[string]float64{"a": 2.5, "b": 4})
	require.NoError(t, err)

	got := res.Values["sum"].(AdditionValue)
	assert.Equal(t, 6.5, got.Value)
	assert.Equal(t, Input{IsConnected: false}, got.Sources[In(5)])
	assert.Equal(t, Input{IsConnected: true, Value: Num(4)}, got.Sources[In(1)])
}

func TestAdditionWithoutInputsIsZero(t *testing.T) {
	g := &Graph{
		Nodes: []Node{node("sum", KindAddition, nil), sink()},
		Edges: []Edge{wire("sum", "sink", Handle{})},
	}
	res, err := Evaluate(g, nil)
	require.NoError(t, err)
	assert.Equal(t, AdditionValue{Sources: map[Handle]Input{}, Value: 0}, res.Values["sum"])
	assert.Equal(t, Grade{}, res.Grade)
}

func TestAdditionTreatsFailAsZero(t *testing.T) {
	g := &Graph{
		Nodes: []Node{thresholdSource("a", 5), source("b"), node("sum", KindAddition, nil), sink()},
		Edges: []Edge{
			wire("a", "sum", In(0)),
			wire("b", "sum", In(1)),
			wire("sum", "sink", Handle{}),
		},
	}
	res, err := Evaluate(g, map[string]float64{"a": 3, "b": 4})
	require.NoError(t, err)
	assert.Equal(t, Fail, res.Values["a"].(SourceValue).Value)
	assert.Equal(t, 4.0, res.Grade.Value)
}

func averageGraph(s *AverageSettings) *Graph {
	return &Graph{
		Nodes: []Node{source("a"), source("b"), node("avg", KindAverage, s), sink()},
		Edges: []Edge{
			wire("a", "avg", In(0)),
			wire("b", "avg", In(1)),
			wire("avg", "sink", Handle{}),
		},
	}
}

func TestAverage(t *testing.T) {
	tests := []struct {
		name    string
		weights map[Handle]float64
		want    float64
	}{
		{"weighted", map[Handle]float64{In(0): 1, In(1): 3}, 5.5},
		{"percentages", map[Handle]float64{In(0): 50, In(1): 50}, 7},
		{"missing weight counts as zero", map[Handle]float64{In(0): 2}, 10},
		{"no weights", nil, 0},
		{"all weights zero", map[Handle]float64{In(0): 0, In(1): 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(averageGraph(&AverageSettings{Weights: tt.weights}), map[string]float64{"a": 10, "b": 4})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Grade.Value, 1e-9)
			assert.Empty(t, res.Diagnostics)
		})
	}
}

func TestAverageIgnoresStaleWeights(t *testing.T) {
	g := averageGraph(&AverageSettings{Weights: map[Handle]float64{In(0): 1, In(1): 1, In(7): 100}})
	p, err := Compile(g)
	require.NoError(t, err)
	assert.Equal(t, []Diagnostic{{Code: UnknownHandleReference, Node: "avg", Handle: In(7)}}, p.Diagnostics())

	res, err := p.Evaluate(map[string]float64{"a": 10, "b": 4})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.Grade.Value)
	assert.Equal(t, p.Diagnostics(), res.Diagnostics)
}

func TestMax(t *testing.T) {
	g := &Graph{
		Nodes: []Node{source("a"), source("b"), node("max", KindMax, &MaxSettings{MinValue: 3}), sink()},
		Edges: []Edge{
			wire("a", "max", In(0)),
			wire("b", "max", In(1)),
			wire("max", "sink", Handle{}),
		},
	}
	res, err := Evaluate(g, map[string]float64{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Grade.Value)

	res, err = Evaluate(g, map[string]float64{"a": 1, "b": 7})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.Grade.Value)
}

func TestMinPoints(t *testing.T) {
	t.Run("fail", func(t *testing.T) {
		g := chain(node("min", KindMinPoints, &MinPointsSettings{MinPoints: 5, OnFailSetting: OnFailFail}))
		res, err := Evaluate(g, map[string]float64{"in": 4})
		require.NoError(t, err)
		assert.Equal(t, MinPointsValue{Source: 4, Value: Fail}, res.Values["min"])
		assert.Equal(t, Grade{Value: 0}, res.Grade)
	})

	t.Run("fullfail", func(t *testing.T) {
		g := chain(node("min", KindMinPoints, &MinPointsSettings{MinPoints: 5, OnFailSetting: OnFailFullFail}))
		res, err := Evaluate(g, map[string]float64{"in": 4})
		require.NoError(t, err)
		assert.Equal(t, MinPointsValue{Source: 4, Value: Num(4), FullFail: true}, res.Values["min"])
		assert.Equal(t, Grade{Value: 0, FullFail: true}, res.Grade)
	})

	t.Run("pass", func(t *testing.T) {
		g := chain(node("min", KindMinPoints, &MinPointsSettings{MinPoints: 5, OnFailSetting: OnFailFullFail}))
		res, err := Evaluate(g, map[string]float64{"in": 5})
		require.NoError(t, err)
		assert.Equal(t, Grade{Value: 5}, res.Grade)
	})
}

func TestFullFailReachesUnrelatedBranch(t *testing.T) {
	// The failing exam is not upstream of the sink.
	g := &Graph{
		Nodes: []Node{
			source("hw"),
			{ID: "exam", Kind: KindSource, Settings: &SourceSettings{MinPoints: ptr(10.0), OnFailSetting: OnFailFullFail}},
			sink(),
		},
		Edges: []Edge{wire("hw", "sink", Handle{})},
	}
	res, err := Evaluate(g, map[string]float64{"hw": 9, "exam": 2})
	require.NoError(t, err)
	assert.Equal(t, Grade{Value: 0, FullFail: true}, res.Grade)
	assert.True(t, res.Values["exam"].(SourceValue).FullFail)
}

func TestMissingSourceDefaultsToZero(t *testing.T) {
	g := &Graph{
		Nodes: []Node{source("a"), source("b"), node("sum", KindAddition, nil), sink()},
		Edges: []Edge{
			wire("a", "sum", In(0)),
			wire("b", "sum", In(1)),
			wire("sum", "sink", Handle{}),
		},
	}
	res, err := Evaluate(g, map[string]float64{"a": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Grade.Value)
	assert.Equal(t, []Diagnostic{{Code: MissingSourceValue, Node: "b"}}, res.Diagnostics)
}

func TestMixedGraph(t *testing.T) {
	res, err := Evaluate(mixedGraph(), map[string]float64{
		"ex0": 10, "ex1": 2, "ex2": 8, "spare": 9, "project": 6, "exam": 5,
	})
	require.NoError(t, err)

	assert.Equal(t, AdditionValue{
		Sources: map[Handle]Input{
			In(0): {IsConnected: true, Value: Num(10)},
			In(1): {IsConnected: true, Value: Num(5)},
			In(2): {IsConnected: true, Value: Num(8)},
			In(3): {IsConnected: true, Value: Num(5)},
		},
		Value: 28,
	}, res.Values["total"])
	assert.Equal(t, 22.5, res.Values["avg"].(AverageValue).Value)
	assert.Equal(t, Grade{Value: 23}, res.Grade)
	assert.Empty(t, res.Diagnostics)
	assert.Len(t, res.Values, len(mixedGraph().Nodes))
}

func TestEvaluationIsOrderIndependent(t *testing.T) {
	p, err := Compile(mixedGraph())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for _, sources := range []map[string]float64{
		{"ex0": 10, "ex1": 2, "ex2": 8, "spare": 9, "project": 6, "exam": 5},
		{"ex0": 1, "ex1": 2, "ex2": 3, "spare": 1, "project": 30, "exam": 5},
		{"ex0": 9, "ex1": 9, "ex2": 9, "spare": 9, "project": 1, "exam": 1},
	} {
		want, err := p.Evaluate(sources)
		require.NoError(t, err)
		for range 20 {
			got, err := p.evaluate(sources, func(ready []int) int { return rng.Intn(len(ready)) })
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("result depends on evaluation order (-want +got):\n%s", diff)
			}
		}
	}
}

func TestEvaluateIsPure(t *testing.T) {
	g := mixedGraph()
	before := g.Clone()
	sources := map[string]float64{"ex0": 10, "ex1": 2, "ex2": 8, "spare": 9, "project": 6, "exam": 5}

	first, err := Evaluate(g, sources)
	require.NoError(t, err)
	second, err := Evaluate(g, sources)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated evaluation differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(before, g); diff != "" {
		t.Fatalf("evaluation mutated the graph (-before +after):\n%s", diff)
	}
}

func TestEvaluateRejectsCycle(t *testing.T) {
	g := &Graph{
		Nodes: []Node{source("a"), node("x", KindAddition, nil), node("y", KindRound, nil), sink()},
		Edges: []Edge{
			wire("a", "x", In(0)),
			wire("x", "y", Handle{}),
			wire("y", "x", In(1)),
			wire("y", "sink", Handle{}),
		},
	}
	_, err := Evaluate(g, nil)
	assert.ErrorIs(t, err, ErrCyclicGraph)
}

func TestKahnPassDetectsCycle(t *testing.T) {
	g := &Graph{
		Nodes: []Node{source("a"), node("x", KindAddition, nil), node("y", KindRound, nil), sink()},
		Edges: []Edge{
			wire("a", "x", In(0)),
			wire("x", "y", Handle{}),
			wire("y", "x", In(1)),
			wire("y", "sink", Handle{}),
		},
	}
	_, err := compile(g)
	assert.ErrorIs(t, err, ErrCyclicGraph)

	// Close the loop on an already ordered arena.
	g.Edges = slices.Delete(g.Edges, 2, 3)
	p, err := compile(g)
	require.NoError(t, err)
	x, y := p.index["x"], p.index["y"]
	p.nodes[y].links = append(p.nodes[y].links, link{target: x, slot: -1, from: -1})
	p.nodes[x].indegree++

	_, err = p.topoOrder()
	assert.ErrorIs(t, err, ErrCyclicGraph)
	_, err = p.evaluate(map[string]float64{"a": 1}, popFront)
	assert.ErrorIs(t, err, ErrCyclicGraph)
	_, err = p.Evaluate(nil)
	assert.ErrorIs(t, err, ErrCyclicGraph)
}

func TestResultSink(t *testing.T) {
	res, err := Evaluate(chain(node("r", KindRound, nil)), map[string]float64{"in": 1.4})
	require.NoError(t, err)
	s, ok := res.Sink()
	require.True(t, ok)
	assert.Equal(t, SinkValue{Source: 1, Value: 1}, s)
}
