package window

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// pollInterval bounds how long the window thread sleeps in the platform event wait before it
// services queued calls, in seconds.
const pollInterval = 0.005

var errThreadStopped = errors.New("window thread is not running")

// glfwThread is the single OS thread GLFW is initialized on. It runs while at least one
// window or monitor query holds a reference.
type glfwThread struct {
	mu      *sync.Mutex
	calls   chan func()
	running bool
	users   int
}

var thread = &glfwThread{mu: &sync.Mutex{}}

func (t *glfwThread) acquire() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		calls := make(chan func(), 16)
		ready := make(chan error, 1)
		go t.loop(calls, ready)
		if err := <-ready; err != nil {
			return fmt.Errorf("failed to initialize GLFW: %w", err)
		}
		t.calls = calls
		t.running = true
	}
	t.users++
	return nil
}

func (t *glfwThread) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.users > 0 {
		t.users--
	}
	if t.users > 0 || !t.running {
		return
	}
	t.running = false
	// A nil call terminates GLFW and ends the loop.
	t.calls <- nil
}

// do runs fn on the window thread and waits for it.
func (t *glfwThread) do(fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return errThreadStopped
	}
	done := make(chan struct{})
	t.calls <- func() {
		defer close(done)
		fn()
	}
	<-done
	return nil
}

// loop is the window-message thread. Callbacks registered on windows run here, inside
// WaitEventsTimeout.
//
// GLFW reference: https://www.glfw.org/docs/latest/intro_guide.html#thread_safety
func (t *glfwThread) loop(calls chan func(), ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := glfw.Init(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	for {
		for drained := false; !drained; {
			select {
			case fn := <-calls:
				if fn == nil {
					glfw.Terminate()
					return
				}
				fn()
			default:
				drained = true
			}
		}
		// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#WaitEventsTimeout
		glfw.WaitEventsTimeout(pollInterval)
	}
}

// glfwWindow holds the GLFW-specific window state.
type glfwWindow struct {
	window  *glfw.Window
	running atomic.Bool
}

// newPlatformWindow creates the GLFW window with input callbacks and stores it as the internal window.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
// go-gl/glfw: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw
func newPlatformWindow(w *engineWindow) error {
	if err := thread.acquire(); err != nil {
		return err
	}

	var createErr error
	err := thread.do(func() {
		glfw.DefaultWindowHints()
		// WebGPU provides its own graphics API, so disable OpenGL context creation.
		// Reference: https://www.glfw.org/docs/latest/window_guide.html#window_hints_ctx
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

		var monitor *glfw.Monitor
		if w.monitor >= 0 {
			monitors := glfw.GetMonitors()
			if w.monitor >= len(monitors) {
				createErr = fmt.Errorf("monitor %d not found, %d connected", w.monitor, len(monitors))
				return
			}
			monitor = monitors[w.monitor]
			glfw.WindowHint(glfw.RefreshRate, w.videoMode.RefreshHz)
		}

		win, err := glfw.CreateWindow(w.width, w.height, w.title, monitor, nil)
		if err != nil {
			createErr = fmt.Errorf("failed to create GLFW window: %w", err)
			return
		}
		if monitor == nil {
			win.SetSizeLimits(limit(w.minWidth), limit(w.minHeight), limit(w.maxWidth), limit(w.maxHeight))
		}

		gw := &glfwWindow{window: win}
		gw.running.Store(true)
		w.internalWindow = gw

		// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Window.SetKeyCallback
		win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
			switch action {
			case glfw.Press:
				w.push(Event{Kind: EventKey, Key: int(key), Pressed: true})
			case glfw.Release:
				w.push(Event{Kind: EventKey, Key: int(key), Pressed: false})
			}
		})

		// Use framebuffer size callback for pixel-accurate resize events.
		// On high-DPI displays (e.g., macOS Retina), framebuffer size differs from window size.
		// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Window.SetFramebufferSizeCallback
		win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
			w.setSize(width, height)
			w.push(Event{Kind: EventResize, Width: width, Height: height})
		})

		win.SetCloseCallback(func(_ *glfw.Window) {
			gw.running.Store(false)
			w.push(Event{Kind: EventClose})
		})

		// Update stored dimensions to reflect actual framebuffer size (may differ from requested on high-DPI).
		w.setSize(win.GetFramebufferSize())
	})
	if err == nil {
		err = createErr
	}
	if err != nil {
		thread.release()
		return err
	}
	return nil
}

func limit(v int) int {
	if v < 0 {
		return glfw.DontCare
	}
	return v
}

// platformGetSurfaceDescriptor creates a platform-appropriate wgpu.SurfaceDescriptor from the GLFW window.
// Uses the wgpuglfw bridge package which has per-platform implementations (Windows, X11, Wayland, macOS).
//
// Reference: https://pkg.go.dev/github.com/cogentcore/webgpu/wgpuglfw#GetSurfaceDescriptor
func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	gw, ok := w.internalWindow.(*glfwWindow)
	if !ok || !gw.running.Load() {
		return nil
	}
	var desc *wgpu.SurfaceDescriptor
	if err := thread.do(func() { desc = wgpuglfw.GetSurfaceDescriptor(gw.window) }); err != nil {
		return nil
	}
	return desc
}

// platformIsRunningCheck returns whether the GLFW window is still active.
func platformIsRunningCheck(w *engineWindow) bool {
	gw, ok := w.internalWindow.(*glfwWindow)
	return ok && gw.running.Load()
}

// platformCloseWindow destroys the GLFW window on the window thread and drops the thread
// reference, terminating GLFW when it was the last one.
func platformCloseWindow(w *engineWindow) error {
	gw, ok := w.internalWindow.(*glfwWindow)
	if !ok {
		return fmt.Errorf("window is not initialized")
	}
	gw.running.Store(false)
	err := thread.do(func() {
		gw.window.SetShouldClose(true)
		gw.window.Destroy()
	})
	thread.release()
	return err
}
