// Package window owns the desktop window used by windowed and direct targets.
// Every GLFW call runs on one locked OS thread that also pumps platform events; input and
// resize events reach the compositor through a bounded queue so API threads never block on
// the message pump.
package window

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// EventKind identifies a window event.
type EventKind int

const (
	EventKey EventKind = iota
	EventResize
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventKey:
		return "key"
	case EventResize:
		return "resize"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is one message from the window thread.
type Event struct {
	Kind EventKind
	// Key is the GLFW key code of a key event.
	Key int
	// Pressed is false for key releases.
	Pressed bool
	// Width and Height are the new framebuffer size of a resize event.
	Width, Height int
}

// Window provides a platform window and its event queue.
type Window interface {
	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Events returns the queue of window events. The channel is closed by Close.
	//
	// Returns:
	//   - <-chan Event: the event queue
	Events() <-chan Event

	// Dropped returns how many events were discarded because the queue was full.
	Dropped() uint64

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// Width returns the current framebuffer width in pixels.
	Width() int

	// Height returns the current framebuffer height in pixels.
	Height() int
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	mu  *sync.Mutex
	log *slog.Logger

	title string

	maxWidth  int
	maxHeight int
	minWidth  int
	minHeight int

	width  int
	height int

	// monitor is the index of the monitor to go fullscreen on, -1 for a normal window.
	monitor   int
	videoMode VideoMode

	queueSize int
	events    chan Event
	dropped   atomic.Uint64
	closed    bool

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any
}

var _ Window = &engineWindow{}

// NewWindow creates a window on the window thread.
// Applies default values first, then each option in order.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the created window
//   - error: error if GLFW could not be initialized or the window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		mu:        &sync.Mutex{},
		log:       common.ComponentLogger("window"),
		title:     "oxy-xr",
		maxWidth:  -1,
		maxHeight: -1,
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
		monitor:   -1,
		queueSize: 256,
	}
	for _, opt := range options {
		opt(w)
	}
	w.events = make(chan Event, w.queueSize)

	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("failed to create platform window: %w", err)
	}
	w.log.Info("created window", "title", w.title, "width", w.width, "height", w.height, "monitor", w.monitor)
	return w, nil
}

// push queues an event from the window thread without blocking it.
func (w *engineWindow) push(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- e:
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("window event queue full, dropping events", "kind", e.Kind)
		}
	}
}

func (w *engineWindow) setSize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width = width
	w.height = height
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) Events() <-chan Event {
	return w.events
}

func (w *engineWindow) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()
	return platformCloseWindow(w)
}

func (w *engineWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *engineWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}
