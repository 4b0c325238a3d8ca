package action

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/handle"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
)

// state is the value an action reports for one subaction path, or for the any roll-up.
type state struct {
	value     device.InputValue
	active    bool
	changed   bool
	timestamp int64
}

// next derives the state following last when the reported value becomes v. The change
// time only moves when the value changes on an already active path.
func (last state) next(v device.InputValue, ts int64) state {
	s := state{value: v, active: true, timestamp: ts}
	if last.active {
		if v != last.value {
			s.changed = true
		} else {
			s.timestamp = last.timestamp
		}
	}
	return s
}

type inputSource struct {
	dev   device.Device
	input device.InputName
	chain Chain
}

type outputSource struct {
	dev    device.Device
	output device.OutputName
}

// subactionCache holds the bound sources and current state of one action on one subaction path.
type subactionCache struct {
	inputs  []inputSource
	outputs []outputSource
	bound   []path.ID

	current      state
	stopOutputNs int64
	samples      []Sample
}

func (c *subactionCache) hasBindings() bool {
	return len(c.inputs) > 0 || len(c.outputs) > 0
}

// update refreshes the state of a selected path from its sources.
func (c *subactionCache) update(log *slog.Logger, nowNs int64, typ ActionType, policy CombinePolicy) {
	if len(c.outputs) > 0 {
		c.current.active = true
		if c.stopOutputNs > 0 && c.stopOutputNs < nowNs {
			c.stopOutput(log)
		}
	}
	if len(c.inputs) == 0 {
		return
	}

	c.samples = c.samples[:0]
	for _, src := range c.inputs {
		in, ok := src.dev.FindInput(src.input)
		if !ok || !in.Active {
			continue
		}
		c.samples = append(c.samples, Sample{Value: src.chain.Apply(in.Value), Timestamp: in.Timestamp})
	}
	if len(c.samples) == 0 {
		c.current = state{}
		return
	}

	if typ == ActionTypePose {
		c.current.active = true
		return
	}
	s := policy.Select(typ, c.samples)
	c.current = c.current.next(s.Value, s.Timestamp)
}

// deselect silences a path that was not requested in this sync.
func (c *subactionCache) deselect(log *slog.Logger) {
	if c.stopOutputNs > 0 {
		c.stopOutput(log)
	}
	c.current = state{}
}

func (c *subactionCache) applyOutput(log *slog.Logger, stopNs int64, v device.OutputValue) {
	c.stopOutputNs = stopNs
	for _, o := range c.outputs {
		if err := o.dev.SetOutput(o.output, v); err != nil {
			log.Warn("set output failed", "device", o.dev.Name(), "output", o.output, "error", err)
		}
	}
}

func (c *subactionCache) stopOutput(log *slog.Logger) {
	c.applyOutput(log, 0, device.OutputValue{})
}

// actionAttachment is the session side of one action.
type actionAttachment struct {
	ref    *handle.RefCell[*actionData]
	caches [path.SubactionCount]subactionCache
	any    state
}

func (aa *actionAttachment) update(log *slog.Logger, nowNs int64, selected path.SubactionSet, policy CombinePolicy) {
	d := aa.ref.Value()
	for _, kind := range path.Subactions {
		c := &aa.caches[kind]
		if selected.Any || selected.Has(kind) {
			c.update(log, nowNs, d.typ, policy)
		} else {
			c.deselect(log)
		}
	}
	aa.any = aa.combineAny(d.typ)
}

// combineAny rolls the per-path states up: OR for booleans, the largest float, the longest
// vector, and plain activity for poses and outputs.
func (aa *actionAttachment) combineAny(typ ActionType) state {
	var best *state
	bestFloat := float32(-2)
	bestLen := float32(-1)
	for kind := range aa.caches {
		c := &aa.caches[kind].current
		if !c.active {
			continue
		}
		switch typ {
		case ActionTypeBoolean:
			if best == nil || c.value.Boolean && !best.value.Boolean {
				best = c
			}
		case ActionTypeFloat:
			if c.value.Vec1 > bestFloat {
				bestFloat = c.value.Vec1
				best = c
			}
		case ActionTypeVector2f:
			if l := c.value.Vec2.Dot(c.value.Vec2); l > bestLen {
				bestLen = l
				best = c
			}
		default:
			if best == nil {
				best = c
			}
		}
	}
	if best == nil {
		return state{}
	}
	if typ == ActionTypePose || typ == ActionTypeVibrationOutput {
		return state{active: true}
	}
	return aa.any.next(best.value, best.timestamp)
}

// stateFor returns the state reported for a selection: the roll-up for any, else the one path.
func (aa *actionAttachment) stateFor(sel path.SubactionSet) state {
	if sel.Any {
		return aa.any
	}
	if kinds := sel.Kinds(); len(kinds) > 0 {
		return aa.caches[kinds[0]].current
	}
	return state{}
}

// kindsFor lists the paths a selection addresses: every path for any, else the one given.
func kindsFor(sel path.SubactionSet) []path.Subaction {
	if sel.Any {
		return path.Subactions[:]
	}
	return sel.Kinds()
}
