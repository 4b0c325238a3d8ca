package engine

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/compositor"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/session"
)

// InstanceBuilderOption is a functional option for configuring an Instance.
// Use the With* functions to create options that are applied directly to the instance.
type InstanceBuilderOption func(*instance)

// WithConfig uses cfg instead of loading the configuration. The process logger is left alone.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithConfig(cfg config.Config) InstanceBuilderOption {
	return func(i *instance) {
		i.cfg = &cfg
	}
}

// WithClock sets the runtime clock shared by the instance's devices and sessions.
//
// Parameters:
//   - ts: the clock, a fresh one starting now if unset
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithClock(ts *common.TimeState) InstanceBuilderOption {
	return func(i *instance) {
		i.clock = ts
	}
}

// WithPaths sets the path registry.
func WithPaths(reg path.Registry) InstanceBuilderOption {
	return func(i *instance) {
		i.paths = reg
	}
}

// WithHMD replaces the default simulated headset.
//
// Parameters:
//   - hmd: the headset
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithHMD(hmd device.SimulatedHMD) InstanceBuilderOption {
	return func(i *instance) {
		i.hmd = hmd
	}
}

// WithControllers replaces the default left and right simulated controllers.
//
// Parameters:
//   - left: the controller bound to /user/hand/left
//   - right: the controller bound to /user/hand/right
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithControllers(left, right device.SimulatedController) InstanceBuilderOption {
	return func(i *instance) {
		i.left = left
		i.right = right
	}
}

// WithControllerProfile sets the interaction profile the default controllers emulate.
//
// Parameters:
//   - profilePath: a built-in profile, the simple controller if unset
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithControllerProfile(profilePath string) InstanceBuilderOption {
	return func(i *instance) {
		i.profile = profilePath
	}
}

// WithSessionOptions appends options to every session the instance creates.
func WithSessionOptions(opts ...session.SessionBuilderOption) InstanceBuilderOption {
	return func(i *instance) {
		i.sessionOpts = append(i.sessionOpts, opts...)
	}
}

// WithCompositorOptions appends options to the compositor of every session the instance creates.
//
// Parameters:
//   - opts: compositor options, such as a headless target mode for tests
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithCompositorOptions(opts ...compositor.CompositorBuilderOption) InstanceBuilderOption {
	return func(i *instance) {
		i.compOpts = append(i.compOpts, opts...)
	}
}
