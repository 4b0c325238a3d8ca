package action

import (
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/chewxy/math32"
)

// Sample is the transformed value of one active input bound to a subaction path.
type Sample struct {
	Value     device.InputValue
	Timestamp int64
}

// CombinePolicy decides the state of a subaction path when more than one bound input is active.
type CombinePolicy interface {
	// Select picks or merges the samples of the active inputs.
	//
	// Parameters:
	//   - typ: the action type, which decides how values compare
	//   - samples: at least one sample, ordered by binding preference
	//
	// Returns:
	//   - Sample: the value the subaction path reports
	Select(typ ActionType, samples []Sample) Sample
}

// FirstActive reports the first active input and ignores the rest.
type FirstActive struct{}

func (FirstActive) Select(_ ActionType, samples []Sample) Sample {
	return samples[0]
}

// Strongest reports the most actuated input: any pressed boolean, the float with the largest
// magnitude, or the longest vector. Ties keep the earlier sample.
type Strongest struct{}

func (Strongest) Select(typ ActionType, samples []Sample) Sample {
	best := samples[0]
	for _, s := range samples[1:] {
		if stronger(typ, s.Value, best.Value) {
			best = s
		}
	}
	return best
}

func stronger(typ ActionType, a, b device.InputValue) bool {
	switch typ {
	case ActionTypeBoolean:
		return a.Boolean && !b.Boolean
	case ActionTypeFloat:
		return math32.Abs(a.Vec1) > math32.Abs(b.Vec1)
	case ActionTypeVector2f:
		return a.Vec2.Dot(a.Vec2) > b.Vec2.Dot(b.Vec2)
	}
	return false
}
