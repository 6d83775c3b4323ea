package gradegraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Settings holds the kind-specific configuration of a node.
// Each Kind that is configurable has exactly one Settings struct.
type Settings interface {
	Kind() Kind
	// Validate rejects settings that can never be evaluated meaningfully.
	Validate() error
	clone() Settings
}

// OnFail selects what a threshold node does when its threshold is missed.
type OnFail string

const (
	// OnFailFullFail marks the whole evaluation as failed.
	OnFailFullFail OnFail = "fullfail"
	// OnFailFail replaces the outgoing value(s) with the Fail sentinel.
	OnFailFail OnFail = "fail"
)

func (o *OnFail) UnmarshalText(b []byte) error {
	switch string(b) {
	case "fullfail", "coursefail":
		*o = OnFailFullFail
	case "fail":
		*o = OnFailFail
	default:
		return fmt.Errorf("%w: unknown onFailSetting %q", ErrInvalidSettings, b)
	}
	return nil
}

// Rounding selects the rounding direction of a Round node.
type Rounding string

const (
	RoundUp      Rounding = "round-up"
	RoundClosest Rounding = "round-closest"
	RoundDown    Rounding = "round-down"
)

func (r *Rounding) UnmarshalText(b []byte) error {
	switch Rounding(b) {
	case RoundUp, RoundClosest, RoundDown:
		*r = Rounding(b)
	default:
		return fmt.Errorf("%w: unknown roundingSetting %q", ErrInvalidSettings, b)
	}
	return nil
}

// StepOutput is one output slot of a Stepper: a fixed number, or Same to
// pass the input through.
type StepOutput struct {
	Points float64
	Same   bool
}

// Step returns a fixed step output.
func Step(p float64) StepOutput { return StepOutput{Points: p} }

// Same passes the Stepper's input through unchanged.
var Same = StepOutput{Same: true}

var sameJSON = []byte(`"same"`)

func (o StepOutput) MarshalJSON() ([]byte, error) {
	if o.Same {
		return sameJSON, nil
	}
	return json.Marshal(o.Points)
}

func (o *StepOutput) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, sameJSON) {
		*o = Same
		return nil
	}
	var p float64
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("%w: output value must be a number or \"same\"", ErrInvalidSettings)
	}
	*o = Step(p)
	return nil
}

// SourceSettings configures an optional minimum on a Source node.
type SourceSettings struct {
	// MinPoints is nil when the source has no threshold.
	MinPoints     *float64 `json:"minPoints"`
	OnFailSetting OnFail   `json:"onFailSetting"`
}

// AverageSettings weights the slots of an Average node. A slot without a
// weight counts with weight 0.
type AverageSettings struct {
	Weights        map[Handle]float64 `json:"weights"`
	PercentageMode bool               `json:"percentageMode"`
}

// MaxSettings sets the smallest value a Max node outputs.
type MaxSettings struct {
	MinValue float64 `json:"minValue"`
}

// MinPointsSettings configures a MinPoints threshold.
type MinPointsSettings struct {
	MinPoints     float64 `json:"minPoints"`
	OnFailSetting OnFail  `json:"onFailSetting"`
}

// RequireSettings allows up to NumFail failed inputs before OnFailSetting
// applies.
type RequireSettings struct {
	NumFail       int    `json:"numFail"`
	OnFailSetting OnFail `json:"onFailSetting"`
}

// RoundSettings selects the rounding direction of a Round node.
type RoundSettings struct {
	RoundingSetting Rounding `json:"roundingSetting"`
}

// StepperSettings splits the input range at MiddlePoints into NumSteps
// steps; OutputValues has one entry per step.
type StepperSettings struct {
	NumSteps     int          `json:"numSteps"`
	MiddlePoints []float64    `json:"middlePoints"`
	OutputValues []StepOutput `json:"outputValues"`
}

// SubstituteSettings limits how many failed exercises may be replaced by
// substitute slots.
type SubstituteSettings struct {
	MaxSubstitutions int       `json:"maxSubstitutions"`
	SubstituteValues []float64 `json:"substituteValues"`
}

func (*SourceSettings) Kind() Kind     { return KindSource }
func (*AverageSettings) Kind() Kind    { return KindAverage }
func (*MaxSettings) Kind() Kind        { return KindMax }
func (*MinPointsSettings) Kind() Kind  { return KindMinPoints }
func (*RequireSettings) Kind() Kind    { return KindRequire }
func (*RoundSettings) Kind() Kind      { return KindRound }
func (*StepperSettings) Kind() Kind    { return KindStepper }
func (*SubstituteSettings) Kind() Kind { return KindSubstitute }

func validOnFail(o OnFail) error {
	if o != OnFailFullFail && o != OnFailFail {
		return fmt.Errorf("%w: unknown onFailSetting %q", ErrInvalidSettings, o)
	}
	return nil
}

func (s *SourceSettings) Validate() error {
	if s.MinPoints == nil {
		return nil
	}
	return validOnFail(s.OnFailSetting)
}

func (s *AverageSettings) Validate() error {
	for h, w := range s.Weights {
		if w < 0 {
			return fmt.Errorf("%w: negative weight %v on %s", ErrInvalidSettings, w, h)
		}
	}
	return nil
}

func (s *MaxSettings) Validate() error { return nil }

func (s *MinPointsSettings) Validate() error { return validOnFail(s.OnFailSetting) }

func (s *RequireSettings) Validate() error {
	if s.NumFail < 0 {
		return fmt.Errorf("%w: numFail must not be negative", ErrInvalidSettings)
	}
	return validOnFail(s.OnFailSetting)
}

func (s *RoundSettings) Validate() error {
	switch s.RoundingSetting {
	case RoundUp, RoundClosest, RoundDown:
		return nil
	}
	return fmt.Errorf("%w: unknown roundingSetting %q", ErrInvalidSettings, s.RoundingSetting)
}

func (s *StepperSettings) Validate() error {
	if s.NumSteps < 1 {
		return fmt.Errorf("%w: numSteps must be at least 1", ErrInvalidSettings)
	}
	if len(s.MiddlePoints) != s.NumSteps-1 {
		return fmt.Errorf("%w: %d steps need %d middle points, got %d",
			ErrInvalidSettings, s.NumSteps, s.NumSteps-1, len(s.MiddlePoints))
	}
	if len(s.OutputValues) != s.NumSteps {
		return fmt.Errorf("%w: %d steps need %d output values, got %d",
			ErrInvalidSettings, s.NumSteps, s.NumSteps, len(s.OutputValues))
	}
	for i := 1; i < len(s.MiddlePoints); i++ {
		if s.MiddlePoints[i] <= s.MiddlePoints[i-1] {
			return fmt.Errorf("%w: middle points must be strictly increasing", ErrInvalidSettings)
		}
	}
	return nil
}

func (s *SubstituteSettings) Validate() error {
	if s.MaxSubstitutions < 0 {
		return fmt.Errorf("%w: maxSubstitutions must not be negative", ErrInvalidSettings)
	}
	return nil
}

func (s *SourceSettings) clone() Settings {
	c := *s
	if s.MinPoints != nil {
		p := *s.MinPoints
		c.MinPoints = &p
	}
	return &c
}

func (s *AverageSettings) clone() Settings {
	c := *s
	c.Weights = maps.Clone(s.Weights)
	return &c
}

func (s *MaxSettings) clone() Settings       { c := *s; return &c }
func (s *MinPointsSettings) clone() Settings { c := *s; return &c }
func (s *RequireSettings) clone() Settings   { c := *s; return &c }
func (s *RoundSettings) clone() Settings     { c := *s; return &c }

func (s *StepperSettings) clone() Settings {
	c := *s
	c.MiddlePoints = slices.Clone(s.MiddlePoints)
	c.OutputValues = slices.Clone(s.OutputValues)
	return &c
}

func (s *SubstituteSettings) clone() Settings {
	c := *s
	c.SubstituteValues = slices.Clone(s.SubstituteValues)
	return &c
}

// DefaultSettings returns the settings a freshly created node of kind k
// starts with, or nil for kinds that have none.
func DefaultSettings(k Kind) Settings {
	switch k {
	case KindSource:
		return &SourceSettings{OnFailSetting: OnFailFullFail}
	case KindAverage:
		return &AverageSettings{Weights: map[Handle]float64{}}
	case KindMax:
		return &MaxSettings{}
	case KindMinPoints:
		return &MinPointsSettings{OnFailSetting: OnFailFullFail}
	case KindRequire:
		return &RequireSettings{OnFailSetting: OnFailFullFail}
	case KindRound:
		return &RoundSettings{RoundingSetting: RoundClosest}
	case KindStepper:
		return &StepperSettings{NumSteps: 1, OutputValues: []StepOutput{Same}}
	case KindSubstitute:
		return &SubstituteSettings{}
	}
	return nil
}

// DecodeSettings decodes raw JSON into the Settings struct for kind k.
func DecodeSettings(k Kind, raw json.RawMessage) (Settings, error) {
	s := DefaultSettings(k)
	if s == nil {
		// Kinds without settings ignore whatever was stored.
		return nil, nil
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

// settingsOf returns n's settings, falling back to the defaults for its kind.
func settingsOf(n *Node) Settings {
	if n.Settings != nil {
		return n.Settings
	}
	return DefaultSettings(n.Kind)
}
