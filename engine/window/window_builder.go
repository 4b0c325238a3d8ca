package window

// WindowBuilderOption is a functional option for configuring an engineWindow.
// Use the With* functions to create options.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the window title displayed in the title bar.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSizeLimits bounds the size the user can resize the window to. Negative values leave a
// bound unset.
//
// Parameters:
//   - minWidth: minimum width in pixels
//   - minHeight: minimum height in pixels
//   - maxWidth: maximum width in pixels
//   - maxHeight: maximum height in pixels
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSizeLimits(minWidth, minHeight, maxWidth, maxHeight int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.minWidth = minWidth
		w.minHeight = minHeight
		w.maxWidth = maxWidth
		w.maxHeight = maxHeight
	}
}

// WithSize sets the initial window size.
//
// Parameters:
//   - width: initial width in pixels
//   - height: initial height in pixels
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.width = width
		w.height = height
	}
}

// WithFullscreen opens the window fullscreen on a monitor in the given video mode.
//
// Parameters:
//   - monitor: the monitor index as reported by Monitors
//   - mode: the video mode to switch the monitor to
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithFullscreen(monitor int, mode VideoMode) WindowBuilderOption {
	return func(w *engineWindow) {
		w.monitor = monitor
		w.videoMode = mode
		w.width = mode.Width
		w.height = mode.Height
	}
}

// WithEventQueueSize sets how many events may wait for the compositor before new ones are dropped.
//
// Parameters:
//   - size: the queue capacity
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithEventQueueSize(size int) WindowBuilderOption {
	return func(w *engineWindow) {
		if size > 0 {
			w.queueSize = size
		}
	}
}
