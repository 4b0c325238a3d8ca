package compositor

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/profiler"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/target"
)

// CompositorBuilderOption is a functional option applied to a compositor during construction via NewCompositor.
type CompositorBuilderOption func(*compositor)

// WithClock shares the runtime clock with the compositor and the target it creates.
//
// Parameters:
//   - ts: the runtime clock
//
// Returns:
//   - CompositorBuilderOption: a function that applies the clock to a compositor
func WithClock(ts *common.TimeState) CompositorBuilderOption {
	return func(c *compositor) {
		c.clock = ts
	}
}

// WithHMD sets the head-mounted display whose views are rendered. Defaults to the
// process-wide simulated headset.
//
// Parameters:
//   - hmd: a device with HMD parts
//
// Returns:
//   - CompositorBuilderOption: a function that applies the device to a compositor
func WithHMD(hmd device.Device) CompositorBuilderOption {
	return func(c *compositor) {
		c.hmd = hmd
	}
}

// WithIPD overrides the configured interpupillary distance.
//
// Parameters:
//   - meters: the eye separation, values of zero or below are ignored
//
// Returns:
//   - CompositorBuilderOption: a function that applies the IPD to a compositor
func WithIPD(meters float32) CompositorBuilderOption {
	return func(c *compositor) {
		if meters > 0 {
			c.ipd = meters
		}
	}
}

// WithTarget uses an existing target that already passed InitPre instead of creating one.
//
// Parameters:
//   - t: the target
//
// Returns:
//   - CompositorBuilderOption: a function that applies the target to a compositor
func WithTarget(t target.Target) CompositorBuilderOption {
	return func(c *compositor) {
		c.target = t
	}
}

// WithTargetMode overrides the configured target backend.
//
// Parameters:
//   - mode: the backend selection
//
// Returns:
//   - CompositorBuilderOption: a function that applies the mode to a compositor
func WithTargetMode(mode config.TargetMode) CompositorBuilderOption {
	return func(c *compositor) {
		c.targetMode = mode
	}
}

// WithTargetOptions appends options passed to the target factory.
//
// Parameters:
//   - opts: the target options
//
// Returns:
//   - CompositorBuilderOption: a function that applies the options to a compositor
func WithTargetOptions(opts ...target.TargetBuilderOption) CompositorBuilderOption {
	return func(c *compositor) {
		c.targetOpts = append(c.targetOpts, opts...)
	}
}

// WithRenderer replaces the layer renderer.
//
// Parameters:
//   - r: the renderer; the compositor destroys it on Close
//
// Returns:
//   - CompositorBuilderOption: a function that applies the renderer to a compositor
func WithRenderer(r renderer.Renderer) CompositorBuilderOption {
	return func(c *compositor) {
		c.renderer = r
	}
}

// WithProfiler replaces the frame timing profiler.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - CompositorBuilderOption: a function that applies the profiler to a compositor
func WithProfiler(p *profiler.Profiler) CompositorBuilderOption {
	return func(c *compositor) {
		c.profiler = p
	}
}
