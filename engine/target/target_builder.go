package target

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/pacer"
)

// targetOptions collects the options shared by every backend.
type targetOptions struct {
	clock         func() int64
	framePeriodNs int64
	imageCount    int
	pacer         pacer.Pacer
	gpu           *GPU
	fallbackGPU   bool

	staticPrediction bool
	predictionNs     int64

	title         string
	width, height int
	onKey         func(key int, pressed bool)
	onClose       func()

	leaser    Leaser
	modeIndex int
}

func defaultOptions() *targetOptions {
	return &targetOptions{
		clock:         common.NewTimeState().Now,
		framePeriodNs: common.SecondNs / 60,
		imageCount:    3,
		title:         "oxy-xr",
		width:         1280,
		height:        720,
		modeIndex:     -1,
	}
}

// TargetBuilderOption is a functional option applied to a target during construction.
type TargetBuilderOption func(*targetOptions)

// WithClock sets the runtime clock used for timing feedback.
//
// Parameters:
//   - clock: returns the current runtime time in nanoseconds
//
// Returns:
//   - TargetBuilderOption: a function that sets the clock
func WithClock(clock func() int64) TargetBuilderOption {
	return func(o *targetOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithStaticPrediction replaces feedback-driven display prediction with a fixed
// present-to-display offset.
//
// Parameters:
//   - offsetNs: the offset added to each desired present time
//
// Returns:
//   - TargetBuilderOption: a function that enables static prediction
func WithStaticPrediction(offsetNs int64) TargetBuilderOption {
	return func(o *targetOptions) {
		o.staticPrediction = true
		o.predictionNs = offsetNs
	}
}

// WithFramePeriod sets the nominal refresh interval for targets that cannot query the display.
//
// Parameters:
//   - periodNs: the refresh interval in nanoseconds
//
// Returns:
//   - TargetBuilderOption: a function that sets the period
func WithFramePeriod(periodNs int64) TargetBuilderOption {
	return func(o *targetOptions) {
		if periodNs > 0 {
			o.framePeriodNs = periodNs
		}
	}
}

// WithImageCount sets the number of framebuffer images. Values below 2 are raised to 2.
//
// Parameters:
//   - count: the ring size
//
// Returns:
//   - TargetBuilderOption: a function that sets the ring size
func WithImageCount(count int) TargetBuilderOption {
	return func(o *targetOptions) {
		o.imageCount = max(count, 2)
	}
}

// WithPacer replaces the backend's default pacer.
//
// Parameters:
//   - p: the pacer
//
// Returns:
//   - TargetBuilderOption: a function that sets the pacer
func WithPacer(p pacer.Pacer) TargetBuilderOption {
	return func(o *targetOptions) {
		o.pacer = p
	}
}

// WithGPU gives a headless target a device to allocate its images on.
//
// Parameters:
//   - gpu: the device
//
// Returns:
//   - TargetBuilderOption: a function that sets the device
func WithGPU(gpu *GPU) TargetBuilderOption {
	return func(o *targetOptions) {
		o.gpu = gpu
	}
}

// WithFallbackAdapter requests the software adapter on surface targets.
func WithFallbackAdapter() TargetBuilderOption {
	return func(o *targetOptions) {
		o.fallbackGPU = true
	}
}

// WithWindow sets the title and initial size of the preview window.
//
// Parameters:
//   - title: the window title
//   - width: initial width in pixels
//   - height: initial height in pixels
//
// Returns:
//   - TargetBuilderOption: a function that sets the window parameters
func WithWindow(title string, width, height int) TargetBuilderOption {
	return func(o *targetOptions) {
		o.title = common.Coalesce(title, o.title)
		o.width = common.Coalesce(width, o.width)
		o.height = common.Coalesce(height, o.height)
	}
}

// WithKeyHandler receives key events from the window thread, drained on UpdateTimings.
//
// Parameters:
//   - fn: called with the GLFW key code and whether it was pressed
//
// Returns:
//   - TargetBuilderOption: a function that sets the handler
func WithKeyHandler(fn func(key int, pressed bool)) TargetBuilderOption {
	return func(o *targetOptions) {
		o.onKey = fn
	}
}

// WithCloseHandler is called when the user closes the window.
//
// Parameters:
//   - fn: the handler
//
// Returns:
//   - TargetBuilderOption: a function that sets the handler
func WithCloseHandler(fn func()) TargetBuilderOption {
	return func(o *targetOptions) {
		o.onClose = fn
	}
}

// WithLeaser sets how direct targets find and take over a display.
//
// Parameters:
//   - l: the leaser
//
// Returns:
//   - TargetBuilderOption: a function that sets the leaser
func WithLeaser(l Leaser) TargetBuilderOption {
	return func(o *targetOptions) {
		o.leaser = l
	}
}

// WithModeIndex pins the display mode of a direct target; -1 selects automatically.
//
// Parameters:
//   - index: the mode index
//
// Returns:
//   - TargetBuilderOption: a function that sets the index
func WithModeIndex(index int) TargetBuilderOption {
	return func(o *targetOptions) {
		o.modeIndex = index
	}
}

// fakePacer builds the feedback-free pacer, honoring a static prediction offset.
func (o *targetOptions) fakePacer(periodNs int64) pacer.Pacer {
	var opts []pacer.FakeBuilderOption
	if o.staticPrediction {
		opts = append(opts, pacer.WithFakePresentOffset(o.predictionNs))
	}
	return pacer.NewFakePacer(periodNs, o.clock(), opts...)
}
