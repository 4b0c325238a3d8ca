package device

type HMDBuilderOption func(*simulatedHMDImpl)

// WithMotion sets the starting motion model.
//
// Parameters:
//   - m: the motion model
//
// Returns:
//   - HMDBuilderOption: a function that sets the motion model
func WithMotion(m Motion) HMDBuilderOption {
	return func(h *simulatedHMDImpl) {
		h.motion = m
	}
}

// WithClock sets the runtime clock used to clamp extrapolation and drive the motion model.
// It should be the instance's time source so device timestamps agree with frame timing.
//
// Parameters:
//   - clock: returns the current runtime time in nanoseconds
//
// Returns:
//   - HMDBuilderOption: a function that sets the clock
func WithClock(clock func() int64) HMDBuilderOption {
	return func(h *simulatedHMDImpl) {
		h.clock = clock
	}
}

// WithScreen replaces the panel and rebuilds both views.
//
// Parameters:
//   - width, height: full panel size in pixels, both eyes side by side
//   - frameIntervalNs: nominal refresh interval
//   - hFovDeg: per-eye horizontal field of view in degrees
//
// Returns:
//   - HMDBuilderOption: a function that sets the panel
func WithScreen(width, height uint32, frameIntervalNs int64, hFovDeg float32) HMDBuilderOption {
	return func(h *simulatedHMDImpl) {
		h.parts = splitSideBySide(width, height, frameIntervalNs, hFovDeg)
	}
}

// WithBlendModes replaces the supported environment blend modes, most preferred first.
//
// Parameters:
//   - modes: the blend modes
//
// Returns:
//   - HMDBuilderOption: a function that sets the blend modes
func WithBlendModes(modes ...BlendMode) HMDBuilderOption {
	return func(h *simulatedHMDImpl) {
		h.parts.BlendModes = modes
	}
}

// WithPanotools enables radial polynomial lens distortion.
//
// Parameters:
//   - values: the lens model coefficients
//
// Returns:
//   - HMDBuilderOption: a function that enables the lens model
func WithPanotools(values PanotoolsValues) HMDBuilderOption {
	return func(h *simulatedHMDImpl) {
		v := values
		h.panotools = &v
		h.parts.Distortion = DistortionPanotools
	}
}

// WithHMDName overrides the device name.
//
// Parameters:
//   - name: the device name
//
// Returns:
//   - HMDBuilderOption: a function that sets the name
func WithHMDName(name string) HMDBuilderOption {
	return func(h *simulatedHMDImpl) {
		h.name = name
	}
}
