package gradegraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is either a number of points or the Fail sentinel, meaning the
// branch it flows through did not meet a local threshold.
type Value struct {
	Points float64
	Failed bool
}

// Num returns a numeric value.
func Num(p float64) Value { return Value{Points: p} }

// Fail is the local failure sentinel.
var Fail = Value{Failed: true}

// OrZero returns the points of v, or 0 if v is Fail.
func (v Value) OrZero() float64 {
	if v.Failed {
		return 0
	}
	return v.Points
}

func (v Value) String() string {
	if v.Failed {
		return "fail"
	}
	return strconv.FormatFloat(v.Points, 'g', -1, 64)
}

var failJSON = []byte(`"fail"`)

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Failed {
		return failJSON, nil
	}
	return json.Marshal(v.Points)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, failJSON) {
		*v = Fail
		return nil
	}
	var p float64
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("gradegraph: value must be a number or \"fail\": %w", err)
	}
	*v = Num(p)
	return nil
}

// Input is the state of one fan-in slot.
type Input struct {
	IsConnected bool  `json:"isConnected"`
	Value       Value `json:"value"`
}

// NodeValue is the settled runtime state of one node after evaluation.
// It is implemented by exactly one struct per Kind.
type NodeValue interface {
	Kind() Kind
	nodeValue()
}

// SourceValue is the state of a Source node: the raw points and the value
// after its optional threshold.
type SourceValue struct {
	Source   float64
	Value    Value
	FullFail bool
}

// SinkValue is the final grade of a model. FullFail is set when any node
// raised a full failure, in which case Value is 0.
type SinkValue struct {
	Source   float64
	Value    float64
	FullFail bool
}

// AdditionValue is the sum over the connected slots of an Addition node.
type AdditionValue struct {
	Sources map[Handle]Input
	Value   float64
}

// AverageValue is the weighted average over the connected slots of an
// Average node.
type AverageValue struct {
	Sources map[Handle]Input
	Value   float64
}

// MaxValue is the largest connected input of a Max node, floored at its
// minValue.
type MaxValue struct {
	Sources map[Handle]Input
	Value   float64
}

// MinPointsValue is the state of a MinPoints threshold.
type MinPointsValue struct {
	Source   float64
	Value    Value
	FullFail bool
}

// RequireValue holds one output per slot of a Require node.
type RequireValue struct {
	Sources  map[Handle]Input
	Values   map[Handle]Value
	FullFail bool
}

// RoundValue is the input of a Round node and its rounded value.
type RoundValue struct {
	Source float64
	Value  float64
}

// StepperValue maps its input to the output of the step it falls in.
type StepperValue struct {
	Source float64
	Value  float64
}

// SubstituteValue holds one output per exercise and substitute slot.
type SubstituteValue struct {
	Sources map[Handle]Input
	Values  map[Handle]Value
}

func (SourceValue) Kind() Kind     { return KindSource }
func (SinkValue) Kind() Kind       { return KindSink }
func (AdditionValue) Kind() Kind   { return KindAddition }
func (AverageValue) Kind() Kind    { return KindAverage }
func (MaxValue) Kind() Kind        { return KindMax }
func (MinPointsValue) Kind() Kind  { return KindMinPoints }
func (RequireValue) Kind() Kind    { return KindRequire }
func (RoundValue) Kind() Kind      { return KindRound }
func (StepperValue) Kind() Kind    { return KindStepper }
func (SubstituteValue) Kind() Kind { return KindSubstitute }

func (SourceValue) nodeValue()     {}
func (SinkValue) nodeValue()       {}
func (AdditionValue) nodeValue()   {}
func (AverageValue) nodeValue()    {}
func (MaxValue) nodeValue()        {}
func (MinPointsValue) nodeValue()  {}
func (RequireValue) nodeValue()    {}
func (RoundValue) nodeValue()      {}
func (StepperValue) nodeValue()    {}
func (SubstituteValue) nodeValue() {}

// nodeValueJSON is the tagged wire shape shared by every NodeValue.
type nodeValueJSON struct {
	Type     Kind             `json:"type"`
	Source   *float64         `json:"source,omitempty"`
	Sources  map[Handle]Input `json:"sources,omitempty"`
	Value    any              `json:"value,omitempty"`
	Values   map[Handle]Value `json:"values,omitempty"`
	FullFail *bool            `json:"fullFail,omitempty"`
}

func scalarJSON(k Kind, source float64, value any, fullFail *bool) ([]byte, error) {
	return json.Marshal(nodeValueJSON{Type: k, Source: &source, Value: value, FullFail: fullFail})
}

func (v SourceValue) MarshalJSON() ([]byte, error) {
	return scalarJSON(KindSource, v.Source, v.Value, &v.FullFail)
}

func (v SinkValue) MarshalJSON() ([]byte, error) {
	return scalarJSON(KindSink, v.Source, v.Value, &v.FullFail)
}

func (v MinPointsValue) MarshalJSON() ([]byte, error) {
	return scalarJSON(KindMinPoints, v.Source, v.Value, &v.FullFail)
}

func (v RoundValue) MarshalJSON() ([]byte, error) {
	return scalarJSON(KindRound, v.Source, v.Value, nil)
}

func (v StepperValue) MarshalJSON() ([]byte, error) {
	return scalarJSON(KindStepper, v.Source, v.Value, nil)
}

func (v AdditionValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeValueJSON{Type: KindAddition, Sources: v.Sources, Value: v.Value})
}

func (v AverageValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeValueJSON{Type: KindAverage, Sources: v.Sources, Value: v.Value})
}

func (v MaxValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeValueJSON{Type: KindMax, Sources: v.Sources, Value: v.Value})
}

func (v RequireValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeValueJSON{Type: KindRequire, Sources: v.Sources, Values: v.Values, FullFail: &v.FullFail})
}

func (v SubstituteValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeValueJSON{Type: KindSubstitute, Sources: v.Sources, Values: v.Values})
}

// Values maps node ids to their settled state.
type Values map[string]NodeValue
