package action

import (
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
)

// ContextBuilderOption is a functional option applied to a context during construction via NewContext.
type ContextBuilderOption func(*actionContext)

// WithPaths shares the instance path registry with the context.
//
// Parameters:
//   - reg: the path registry
//
// Returns:
//   - ContextBuilderOption: a function that applies the registry to a context
func WithPaths(reg path.Registry) ContextBuilderOption {
	return func(c *actionContext) {
		c.paths = reg
	}
}

// WithProfiles replaces the built-in interaction profiles. The order is the fallback
// preference used when a device's own profile has no suggestions.
//
// Parameters:
//   - profiles: the profiles
//
// Returns:
//   - ContextBuilderOption: a function that applies the profiles to a context
func WithProfiles(profiles []*device.Profile) ContextBuilderOption {
	return func(c *actionContext) {
		c.profiles = profiles
	}
}
