package gradegraph

// Small constructors shared by the package tests.

func hp(h Handle) *Handle {
	if h.IsZero() {
		return nil
	}
	return &h
}

// wire connects src's single output to dst's slot th.
func wire(src, dst string, th Handle) Edge {
	return connect(src, nil, dst, hp(th))
}

// wireFrom connects src's per-handle output sh to dst's slot th.
func wireFrom(src string, sh Handle, dst string, th Handle) Edge {
	return connect(src, hp(sh), dst, hp(th))
}

func source(id string) Node {
	return Node{ID: id, Kind: KindSource}
}

// thresholdSource is a Source that turns values below limit into Fail.
func thresholdSource(id string, limit float64) Node {
	return Node{ID: id, Kind: KindSource, Settings: &SourceSettings{MinPoints: &limit, OnFailSetting: OnFailFail}}
}

func sink() Node {
	return Node{ID: "sink", Kind: KindSink}
}

func node(id string, k Kind, s Settings) Node {
	return Node{ID: id, Kind: k, Settings: s}
}

// chain returns src -> n -> sink for a single-input kind.
func chain(n Node) *Graph {
	return &Graph{
		Nodes: []Node{source("in"), n, sink()},
		Edges: []Edge{wire("in", n.ID, Handle{}), wire(n.ID, "sink", Handle{})},
	}
}

// mixedGraph exercises every kind: three exercises with a substitute,
// a required exam, an averaged project and a stepped final grade.
//
//	ex0..ex2, spare -> subst -> require -> total(add) -> avg -> round -> stepper -> sink
//	project -> max -> avg
//	exam -> minpoints -> total
func mixedGraph() *Graph {
	return &Graph{
		Nodes: []Node{
			thresholdSource("ex0", 5),
			thresholdSource("ex1", 5),
			thresholdSource("ex2", 5),
			thresholdSource("spare", 5),
			source("project"),
			source("exam"),
			node("subst", KindSubstitute, &SubstituteSettings{MaxSubstitutions: 1, SubstituteValues: []float64{5, 5, 5}}),
			node("require", KindRequire, &RequireSettings{NumFail: 1, OnFailSetting: OnFailFail}),
			node("total", KindAddition, nil),
			node("max", KindMax, &MaxSettings{MinValue: 2}),
			node("examMin", KindMinPoints, &MinPointsSettings{MinPoints: 4, OnFailSetting: OnFailFullFail}),
			node("avg", KindAverage, &AverageSettings{Weights: map[Handle]float64{In(0): 3, In(1): 1}}),
			node("round", KindRound, &RoundSettings{RoundingSetting: RoundClosest}),
			node("stepper", KindStepper, &StepperSettings{
				NumSteps:     3,
				MiddlePoints: []float64{10, 20},
				OutputValues: []StepOutput{Step(0), Step(1), Same},
			}),
			sink(),
		},
		Edges: []Edge{
			wire("ex0", "subst", Exercise(0)),
			wire("ex1", "subst", Exercise(1)),
			wire("ex2", "subst", Exercise(2)),
			wire("spare", "subst", Spare(0)),
			wireFrom("subst", Exercise(0), "require", In(0)),
			wireFrom("subst", Exercise(1), "require", In(1)),
			wireFrom("subst", Exercise(2), "require", In(2)),
			wireFrom("require", In(0), "total", In(0)),
			wireFrom("require", In(1), "total", In(1)),
			wireFrom("require", In(2), "total", In(2)),
			wire("exam", "examMin", Handle{}),
			wire("examMin", "total", In(3)),
			wire("project", "max", In(0)),
			wire("total", "avg", In(0)),
			wire("max", "avg", In(1)),
			wire("avg", "round", Handle{}),
			wire("round", "stepper", Handle{}),
			wire("stepper", "sink", Handle{}),
		},
	}
}
