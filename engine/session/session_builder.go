package session

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/action"
	"github.com/Carmen-Shannon/oxy-xr/engine/compositor"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/handle"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
)

// SessionBuilderOption is a functional option applied to a session during construction via New.
type SessionBuilderOption func(*session)

// WithHMD sets the head-mounted display the session renders to and reads the head pose from.
//
// Parameters:
//   - hmd: a device with HMD parts, the shared default HMD if unset
//
// Returns:
//   - SessionBuilderOption: a function that applies the HMD to a session
func WithHMD(hmd device.Device) SessionBuilderOption {
	return func(s *session) {
		s.hmd = hmd
	}
}

// WithDevice attaches an input device to a top-level user path.
//
// Parameters:
//   - kind: the subaction path the device serves
//   - dev: the device
//
// Returns:
//   - SessionBuilderOption: a function that registers the device with a session
func WithDevice(kind path.Subaction, dev device.Device) SessionBuilderOption {
	return func(s *session) {
		s.devices[kind] = dev
	}
}

// WithActionContext sets the instance action context whose sets the session may attach.
//
// Parameters:
//   - ctx: the action context
//
// Returns:
//   - SessionBuilderOption: a function that applies the context to a session
func WithActionContext(ctx action.Context) SessionBuilderOption {
	return func(s *session) {
		s.actx = ctx
	}
}

// WithEventQueue sets the queue session events are pushed to, normally the instance's.
//
// Parameters:
//   - q: the event queue
//
// Returns:
//   - SessionBuilderOption: a function that applies the queue to a session
func WithEventQueue(q *Queue) SessionBuilderOption {
	return func(s *session) {
		s.events = q
	}
}

// WithClock sets the runtime clock.
//
// Parameters:
//   - ts: the time state shared with the instance
//
// Returns:
//   - SessionBuilderOption: a function that applies the clock to a session
func WithClock(ts *common.TimeState) SessionBuilderOption {
	return func(s *session) {
		s.clock = ts
	}
}

// WithHeadless runs the session without a compositor. Frames are paced by a fake pacer at the
// configured frame period and swapchains cannot be created.
//
// Parameters:
//   - headless: true for a headless session
//
// Returns:
//   - SessionBuilderOption: a function that applies the mode to a session
func WithHeadless(headless bool) SessionBuilderOption {
	return func(s *session) {
		s.headless = headless
	}
}

// WithCompositor uses an already running compositor. The session does not close it.
//
// Parameters:
//   - c: the compositor
//
// Returns:
//   - SessionBuilderOption: a function that applies the compositor to a session
func WithCompositor(c compositor.Compositor) SessionBuilderOption {
	return func(s *session) {
		s.comp = c
	}
}

// WithCompositorOptions passes options to the compositor the session creates.
//
// Parameters:
//   - opts: compositor options, applied after the session's clock and HMD
//
// Returns:
//   - SessionBuilderOption: a function that records the options
func WithCompositorOptions(opts ...compositor.CompositorBuilderOption) SessionBuilderOption {
	return func(s *session) {
		s.compOpts = append(s.compOpts, opts...)
	}
}

// WithHandles registers the session and the swapchains and spaces it creates in a handle table.
//
// Parameters:
//   - table: the handle table
//   - parent: the owning instance handle
//
// Returns:
//   - SessionBuilderOption: a function that applies the table to a session
func WithHandles(table handle.Table, parent handle.ID) SessionBuilderOption {
	return func(s *session) {
		s.handles = table
		s.parent = parent
	}
}

// WithDestroyHandler sets a callback run once the session is destroyed.
func WithDestroyHandler(fn func(Session)) SessionBuilderOption {
	return func(s *session) {
		s.onDestroy = fn
	}
}
