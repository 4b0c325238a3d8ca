package action

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-xr/engine/device"
)

// MaxChainLength caps the number of steps a transform chain may take.
const MaxChainLength = 4

// Thresholds above which a float input reads as pressed.
const (
	ThresholdMinusOneToOne float32 = 0.2
	ThresholdZeroToOne     float32 = 0.7
)

// TransformKind is one step of the input transform algebra.
type TransformKind int

const (
	TransformIdentity TransformKind = iota
	TransformVec2GetX
	TransformVec2GetY
	TransformThreshold
	TransformBoolToVec1
)

func (k TransformKind) String() string {
	switch k {
	case TransformIdentity:
		return "identity"
	case TransformVec2GetX:
		return "vec2_get_x"
	case TransformVec2GetY:
		return "vec2_get_y"
	case TransformThreshold:
		return "threshold"
	case TransformBoolToVec1:
		return "bool_to_vec1"
	}
	return fmt.Sprintf("TransformKind(%d)", int(k))
}

// Transform is a single step adapting an input value to the next shape.
type Transform struct {
	Kind TransformKind
	// Result is the value shape after this step.
	Result device.InputType

	Threshold float32
	Invert    bool

	True  float32
	False float32
}

func (t Transform) String() string {
	switch t.Kind {
	case TransformThreshold:
		if t.Invert {
			return fmt.Sprintf("threshold(<=%.2f)", t.Threshold)
		}
		return fmt.Sprintf("threshold(>%.2f)", t.Threshold)
	case TransformBoolToVec1:
		return fmt.Sprintf("bool_to_vec1(%g,%g)", t.True, t.False)
	}
	return t.Kind.String()
}

func (t Transform) apply(v device.InputValue) device.InputValue {
	switch t.Kind {
	case TransformVec2GetX:
		return device.InputValue{Vec1: v.Vec2[0]}
	case TransformVec2GetY:
		return device.InputValue{Vec1: v.Vec2[1]}
	case TransformThreshold:
		pressed := v.Vec1 > t.Threshold
		if t.Invert {
			pressed = !pressed
		}
		return device.InputValue{Boolean: pressed}
	case TransformBoolToVec1:
		if v.Boolean {
			return device.InputValue{Vec1: t.True}
		}
		return device.InputValue{Vec1: t.False}
	}
	return v
}

// Chain is an ordered list of transforms from a raw device input to an action value.
type Chain []Transform

// Apply runs the chain on a raw input value.
//
// Parameters:
//   - v: the device value
//
// Returns:
//   - device.InputValue: the action value, only the field of the result shape is set
func (c Chain) Apply(v device.InputValue) device.InputValue {
	for _, t := range c {
		v = t.apply(v)
	}
	return v
}

// Result returns the value shape the chain produces.
func (c Chain) Result() device.InputType {
	if len(c) == 0 {
		return device.InputTypeBoolean
	}
	return c[len(c)-1].Result
}

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, t := range c {
		parts[i] = t.String()
	}
	return strings.Join(parts, " -> ")
}

// accepts reports whether a value of shape in can be returned for an action of type typ as is.
func accepts(typ ActionType, in device.InputType) bool {
	switch typ {
	case ActionTypeBoolean:
		return in == device.InputTypeBoolean
	case ActionTypeFloat:
		return in == device.InputTypeVec1ZeroToOne || in == device.InputTypeVec1MinusOneToOne
	case ActionTypeVector2f:
		return in == device.InputTypeVec2MinusOneToOne
	case ActionTypePose:
		return in == device.InputTypePose
	}
	return false
}

// BuildChain finds the transforms turning an input of one shape into an action value.
// A vec2 input only feeds a scalar action through a binding path ending in /x or /y.
//
// Parameters:
//   - in: the raw input shape
//   - typ: the action type
//   - boundPath: the suggested binding path the input was reached through
//
// Returns:
//   - Chain: the transforms, a single identity step when no conversion is needed
//   - error: non-nil when no chain exists
func BuildChain(in device.InputType, typ ActionType, boundPath string) (Chain, error) {
	if typ == ActionTypeVibrationOutput {
		return nil, fmt.Errorf("vibration actions have no input chain")
	}
	if in == device.InputTypePose || in == device.InputTypeHandTracking || typ == ActionTypePose {
		if accepts(typ, in) {
			return Chain{{Kind: TransformIdentity, Result: in}}, nil
		}
		return nil, fmt.Errorf("cannot bind %s input to %s action", in, typ)
	}

	var chain Chain
	cur := in
	for !accepts(typ, cur) {
		if len(chain) == MaxChainLength {
			return nil, fmt.Errorf("no chain from %s to %s within %d steps", in, typ, MaxChainLength)
		}
		var step Transform
		switch {
		case cur == device.InputTypeVec2MinusOneToOne:
			switch {
			case strings.HasSuffix(boundPath, "/x"):
				step = Transform{Kind: TransformVec2GetX, Result: device.InputTypeVec1MinusOneToOne}
			case strings.HasSuffix(boundPath, "/y"):
				step = Transform{Kind: TransformVec2GetY, Result: device.InputTypeVec1MinusOneToOne}
			default:
				return nil, fmt.Errorf("no component of vec2 %s selected for %s action", boundPath, typ)
			}
		case cur == device.InputTypeVec1MinusOneToOne && typ == ActionTypeBoolean:
			step = Transform{Kind: TransformThreshold, Result: device.InputTypeBoolean, Threshold: ThresholdMinusOneToOne}
		case cur == device.InputTypeVec1ZeroToOne && typ == ActionTypeBoolean:
			step = Transform{Kind: TransformThreshold, Result: device.InputTypeBoolean, Threshold: ThresholdZeroToOne}
		case cur == device.InputTypeBoolean && typ == ActionTypeFloat:
			step = Transform{Kind: TransformBoolToVec1, Result: device.InputTypeVec1ZeroToOne, True: 1, False: 0}
		default:
			return nil, fmt.Errorf("cannot convert %s input to %s action", cur, typ)
		}
		chain = append(chain, step)
		cur = step.Result
	}

	if len(chain) == 0 {
		chain = Chain{{Kind: TransformIdentity, Result: in}}
	}
	return chain, nil
}
