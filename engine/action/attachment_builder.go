package action

import (
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
)

// AttachmentBuilderOption is a functional option applied to an attachment during construction via NewAttachment.
type AttachmentBuilderOption func(*attachment)

// WithDevice assigns the device serving a top-level user path.
//
// Parameters:
//   - kind: the subaction path the device serves
//   - dev: the device, nil to leave the path unserved
//
// Returns:
//   - AttachmentBuilderOption: a function that applies the device to an attachment
func WithDevice(kind path.Subaction, dev device.Device) AttachmentBuilderOption {
	return func(a *attachment) {
		if kind >= 0 && kind < path.SubactionCount {
			a.devices[kind] = dev
		}
	}
}

// WithNow sets the clock used for input refresh timestamps and haptic stop times.
//
// Parameters:
//   - now: returns the current runtime time in nanoseconds
//
// Returns:
//   - AttachmentBuilderOption: a function that applies the clock to an attachment
func WithNow(now func() int64) AttachmentBuilderOption {
	return func(a *attachment) {
		a.now = now
	}
}

// WithFocus sets the query deciding whether the session may receive input. Unfocused syncs
// report every action inactive.
//
// Parameters:
//   - focused: reports the session focus
//
// Returns:
//   - AttachmentBuilderOption: a function that applies the query to an attachment
func WithFocus(focused func() bool) AttachmentBuilderOption {
	return func(a *attachment) {
		a.focused = focused
	}
}

// WithCombinePolicy replaces the FirstActive policy for paths with several active inputs.
//
// Parameters:
//   - p: the policy
//
// Returns:
//   - AttachmentBuilderOption: a function that applies the policy to an attachment
func WithCombinePolicy(p CombinePolicy) AttachmentBuilderOption {
	return func(a *attachment) {
		if p != nil {
			a.policy = p
		}
	}
}

// WithProfileChangedHandler registers a callback run after Attach selects at least one
// interaction profile.
//
// Parameters:
//   - fn: the callback, called without locks held
//
// Returns:
//   - AttachmentBuilderOption: a function that applies the callback to an attachment
func WithProfileChangedHandler(fn func()) AttachmentBuilderOption {
	return func(a *attachment) {
		a.onProfileChanged = fn
	}
}

// WithWorkers sets how many devices are refreshed in parallel during a sync.
//
// Parameters:
//   - n: the worker count, values below one are ignored
//
// Returns:
//   - AttachmentBuilderOption: a function that applies the worker count to an attachment
func WithWorkers(n int) AttachmentBuilderOption {
	return func(a *attachment) {
		if n > 0 {
			a.workers = n
		}
	}
}
