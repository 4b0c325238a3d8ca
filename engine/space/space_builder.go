package space

import "github.com/Carmen-Shannon/oxy-xr/engine/device"

// ResolverBuilderOption is a functional option applied to a resolver during construction via NewResolver.
type ResolverBuilderOption func(*deviceResolver)

// WithHead sets the device whose head pose input drives the view space.
//
// Parameters:
//   - dev: the HMD device, nil leaves the view space untracked
//
// Returns:
//   - ResolverBuilderOption: a function that applies the device to a resolver
func WithHead(dev device.Device) ResolverBuilderOption {
	return func(r *deviceResolver) {
		r.head = dev
	}
}

// WithPoseSource sets where action spaces find their pose inputs, normally the session's action attachment.
//
// Parameters:
//   - src: the pose source
//
// Returns:
//   - ResolverBuilderOption: a function that applies the pose source to a resolver
func WithPoseSource(src PoseSource) ResolverBuilderOption {
	return func(r *deviceResolver) {
		r.poses = src
	}
}

// SpaceBuilderOption is a functional option applied to a space during construction via
// NewReferenceSpace or NewActionSpace.
type SpaceBuilderOption func(*space)

// WithDestroyHandler sets a function run once when the space is destroyed, normally the removal
// of its handle from the session's handle table.
//
// Parameters:
//   - fn: the handler
//
// Returns:
//   - SpaceBuilderOption: a function that applies the handler to a space
func WithDestroyHandler(fn func() error) SpaceBuilderOption {
	return func(s *space) {
		s.onDestroy = fn
	}
}
