package gradegraph

import "math"

// nodeState is the scalar runtime state of one node within a frame.
type nodeState struct {
	source   float64
	value    Value
	fullFail bool
}

// frame holds the runtime state of every node for one evaluation.
// slots backs the per-handle inputs and outputs of fan-in nodes.
type frame struct {
	nodes []nodeState
	slots []Value
}

func (p *Program) newFrame() *frame {
	return &frame{
		nodes: make([]nodeState, len(p.nodes)),
		slots: make([]Value, p.width),
	}
}

func (f *frame) reset() {
	clear(f.nodes)
	clear(f.slots)
}

// inputs returns the per-handle inputs of cn, parallel to cn.handles.
func (f *frame) inputs(cn *compiledNode) []Value {
	return f.slots[cn.in : cn.in+len(cn.handles)]
}

// outputs returns the per-handle outputs of cn, parallel to cn.handles.
func (f *frame) outputs(cn *compiledNode) []Value {
	return f.slots[cn.out : cn.out+len(cn.handles)]
}

// calculate runs the calculation rule for cn's kind. It reads only cn's
// inputs and writes only cn's outputs.
func (cn *compiledNode) calculate(f *frame, st *nodeState) {
	switch cn.kind {
	case KindSource:
		calcSource(cn.settings.(*SourceSettings), st)
	case KindSink:
		st.value = Num(st.source)
	case KindAddition:
		calcAddition(cn, f.inputs(cn), st)
	case KindAverage:
		calcAverage(cn, f.inputs(cn), st)
	case KindMax:
		calcMax(cn, f.inputs(cn), st)
	case KindMinPoints:
		s := cn.settings.(*MinPointsSettings)
		calcThreshold(st, s.MinPoints, s.OnFailSetting)
	case KindRequire:
		calcRequire(cn, f.inputs(cn), f.outputs(cn), st)
	case KindRound:
		calcRound(cn.settings.(*RoundSettings), st)
	case KindStepper:
		calcStepper(cn.settings.(*StepperSettings), st)
	case KindSubstitute:
		calcSubstitute(cn, f.inputs(cn), f.outputs(cn))
	default:
		panic("gradegraph: unhandled node kind " + string(cn.kind))
	}
}

func calcSource(s *SourceSettings, st *nodeState) {
	if s.MinPoints == nil {
		st.value = Num(st.source)
		return
	}
	calcThreshold(st, *s.MinPoints, s.OnFailSetting)
}

// calcThreshold passes the input through unless it is below minPoints, in
// which case the onFail policy applies.
func calcThreshold(st *nodeState, minPoints float64, onFail OnFail) {
	st.value = Num(st.source)
	if st.source >= minPoints {
		return
	}
	if onFail == OnFailFullFail {
		st.fullFail = true
	} else {
		st.value = Fail
	}
}

func calcAddition(cn *compiledNode, in []Value, st *nodeState) {
	sum := 0.0
	for i, v := range in {
		if cn.connected[i] {
			sum += v.OrZero()
		}
	}
	st.value = Num(sum)
}

func calcAverage(cn *compiledNode, in []Value, st *nodeState) {
	var valueSum, weightSum float64
	for i, v := range in {
		if !cn.connected[i] {
			continue
		}
		valueSum += cn.weights[i] * v.OrZero()
		weightSum += cn.weights[i]
	}
	if weightSum == 0 {
		st.value = Num(0)
		return
	}
	st.value = Num(valueSum / weightSum)
}

func calcMax(cn *compiledNode, in []Value, st *nodeState) {
	m := cn.settings.(*MaxSettings).MinValue
	for i, v := range in {
		if cn.connected[i] {
			m = math.Max(m, v.OrZero())
		}
	}
	st.value = Num(m)
}

func calcRequire(cn *compiledNode, in, out []Value, st *nodeState) {
	s := cn.settings.(*RequireSettings)
	numFail := 0
	for i, v := range in {
		if !cn.connected[i] {
			continue
		}
		out[i] = v
		if v.Failed {
			numFail++
		}
	}
	if numFail <= s.NumFail {
		return
	}
	if s.OnFailSetting == OnFailFullFail {
		st.fullFail = true
		return
	}
	for i := range out {
		if cn.connected[i] {
			out[i] = Fail
		}
	}
}

func calcRound(s *RoundSettings, st *nodeState) {
	var r float64
	switch s.RoundingSetting {
	case RoundUp:
		r = math.Ceil(st.source)
	case RoundDown:
		r = math.Floor(st.source)
	default:
		// Halves round towards positive infinity.
		r = math.Floor(st.source + 0.5)
	}
	st.value = Num(r)
}

func calcStepper(s *StepperSettings, st *nodeState) {
	step := len(s.MiddlePoints)
	for i, mid := range s.MiddlePoints {
		if st.source <= mid {
			step = i
			break
		}
	}
	if o := s.OutputValues[step]; !o.Same {
		st.value = Num(o.Points)
		return
	}
	st.value = Num(st.source)
}

func calcSubstitute(cn *compiledNode, in, out []Value) {
	s := cn.settings.(*SubstituteSettings)
	spares, failed := 0, 0
	for i, v := range in {
		if !cn.connected[i] {
			continue
		}
		switch cn.handles[i].Role {
		case RoleSubstitute:
			if !v.Failed {
				spares++
			}
		case RoleExercise:
			if v.Failed {
				failed++
			}
		}
	}
	n := min(spares, failed, s.MaxSubstitutions)
	toFill, toSpend := n, n

	exercise := -1
	for i, v := range in {
		h := cn.handles[i]
		if h.Role == RoleExercise {
			exercise++
		}
		if !cn.connected[i] {
			continue
		}
		out[i] = v
		switch h.Role {
		case RoleExercise:
			if v.Failed && toFill > 0 {
				toFill--
				out[i] = Num(substituteValue(s, exercise))
			}
		case RoleSubstitute:
			if !v.Failed && toSpend > 0 {
				toSpend--
				out[i] = Fail
			}
		}
	}
}

// substituteValue returns the replacement for the i-th exercise handle, or 0
// when none is configured.
func substituteValue(s *SubstituteSettings, i int) float64 {
	if i < len(s.SubstituteValues) {
		return s.SubstituteValues[i]
	}
	return 0
}
