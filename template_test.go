package gradegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var threeSources = []SourceRef{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}, {ID: "c", Title: "C"}}

func TestNewGraphNone(t *testing.T) {
	g, err := NewGraph(TemplateNone, "Grade", threeSources)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 4)
	assert.Empty(t, g.Edges)
	assert.Equal(t, SinkID, g.Sink())
	assert.Equal(t, []string{"a", "b", "c"}, g.SourceIDs())
	require.NoError(t, g.Validate())
}

func TestNewGraphAddition(t *testing.T) {
	g, err := NewGraph(TemplateAddition, "Grade", threeSources)
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	step, ok := g.Node("stepper")
	require.True(t, ok)
	assert.Equal(t, []float64{5, 10, 15, 20, 25}, step.Settings.(*StepperSettings).MiddlePoints)

	res, err := Evaluate(g, map[string]float64{"a": 10, "b": 6, "c": 0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Grade.Value)
}

func TestNewGraphAverage(t *testing.T) {
	g, err := NewGraph(TemplateAverage, "Grade", threeSources)
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	avg, ok := g.Node("average")
	require.True(t, ok)
	s := avg.Settings.(*AverageSettings)
	assert.True(t, s.PercentageMode)
	assert.Equal(t, map[Handle]float64{In(0): 33.3, In(1): 33.3, In(2): 33.3}, s.Weights)

	tests := []struct {
		sources map[string]float64
		want    float64
	}{
		{map[string]float64{"a": 10, "b": 10, "c": 10}, 5},
		{map[string]float64{"a": 5, "b": 5, "c": 5}, 2},
		{map[string]float64{"a": 1, "b": 1, "c": 1}, 0},
	}
	for _, tt := range tests {
		res, err := Evaluate(g, tt.sources)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Grade.Value, "%v", tt.sources)
	}
}

func TestNewGraphUnknownTemplate(t *testing.T) {
	_, err := NewGraph(Template("median"), "Grade", threeSources)
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestNewGraphRejects(t *testing.T) {
	tests := []struct {
		name     string
		template Template
		sources  []SourceRef
	}{
		{"addition without sources", TemplateAddition, nil},
		{"average without sources", TemplateAverage, []SourceRef{}},
		{"source named like the sink", TemplateNone, []SourceRef{{ID: SinkID}}},
		{"source named like the stepper", TemplateAddition, []SourceRef{{ID: "a"}, {ID: "stepper"}}},
		{"source named like the combiner", TemplateAverage, []SourceRef{{ID: "average"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.template, "Grade", tt.sources)
			assert.ErrorIs(t, err, ErrInvalidGraph)
		})
	}

	g, err := NewGraph(TemplateNone, "Grade", nil)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 1)
}
