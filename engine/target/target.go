// Package target owns the compositor's presentation surface: a ring of framebuffer images,
// the semaphores that order rendering and presentation, and the pacer that predicts when
// the next image reaches the display.
//
// Three backends implement Target: a desktop window, a direct-mode display taken over
// exclusively, and a headless target that simulates a display's vsync.
package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/pacer"
	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/sync/semaphore"
)

// ErrOutOfDate means the surface no longer matches the display. The caller recreates the
// images with CreateImages before the next Acquire.
var ErrOutOfDate = errors.New("target: surface out of date")

// ErrNotReady is returned when an operation needs a state the target has not reached.
var ErrNotReady = errors.New("target: not ready")

// State is the target lifecycle.
type State int

const (
	StateUninitialized State = iota
	StatePreGPUInitialized
	StatePostGPUInitialized
	StateRunning
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePreGPUInitialized:
		return "pre-gpu-initialized"
	case StatePostGPUInitialized:
		return "post-gpu-initialized"
	case StateRunning:
		return "running"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// ColorSpace of the presented images.
type ColorSpace int

const (
	ColorSpaceSRGBNonlinear ColorSpace = iota
)

// ImageCreateInfo describes the framebuffer ring.
type ImageCreateInfo struct {
	Width, Height uint32
	Format        wgpu.TextureFormat
	ColorSpace    ColorSpace
	Usage         wgpu.TextureUsage
	PresentMode   wgpu.PresentMode
}

// Image is one framebuffer of the ring. Texture and View are nil on targets without a GPU.
type Image struct {
	Index   uint32
	Texture *wgpu.Texture
	View    *wgpu.TextureView
	Extent  common.Extent2D
	Format  wgpu.TextureFormat
}

// PresentInfo describes one present.
type PresentInfo struct {
	Index   uint32
	FrameID int64
	// TimelineValue is the render-complete value the image's rendering signals.
	TimelineValue    uint64
	DesiredPresentNs int64
	PresentSlopNs    int64
}

// Target is a presentation backend.
type Target interface {
	// Name returns a short backend name for logs.
	Name() string

	// State returns the lifecycle state.
	State() State

	// InitPre acquires the display and creates the GPU device and surface.
	//
	// Parameters:
	//   - ctx: cancels initialization
	//
	// Returns:
	//   - error: the wrapped result.ErrIncompatibleDisplay when exclusive access is refused,
	//     or any other initialization failure
	InitPre(ctx context.Context) error

	// InitPost records the initial framebuffer size once the GPU is up.
	//
	// Parameters:
	//   - width: framebuffer width in pixels
	//   - height: framebuffer height in pixels
	//
	// Returns:
	//   - error: ErrNotReady if InitPre did not succeed
	InitPost(width, height uint32) error

	// CheckReady reports whether the surface exists and can be presented to.
	CheckReady() bool

	// CreateImages destroys any existing ring and creates a new one.
	//
	// Parameters:
	//   - info: the requested ring; backends may pick a supported format instead
	//
	// Returns:
	//   - error: error if the ring could not be created
	CreateImages(info ImageCreateInfo) error

	// HasImages reports whether a ring exists.
	HasImages() bool

	Images() []Image
	Extent() common.Extent2D
	Format() wgpu.TextureFormat

	// Acquire blocks until a framebuffer image is free and returns its index.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//
	// Returns:
	//   - uint32: the image index
	//   - error: ErrOutOfDate when the ring must be recreated, ctx.Err() on cancellation
	Acquire(ctx context.Context) (uint32, error)

	// Present waits for the render-complete timeline to reach info.TimelineValue and hands
	// the image to the display.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//   - info: which image and when it should be shown
	//
	// Returns:
	//   - error: ErrOutOfDate when the surface was lost
	Present(ctx context.Context, info PresentInfo) error

	// UpdateTimings drains present feedback and platform events into the pacer.
	UpdateTimings() error

	// Pacer returns the pacer fed by this target.
	Pacer() pacer.Pacer

	// RenderComplete returns the timeline the renderer signals when an image is drawn.
	RenderComplete() *Timeline

	// GPU returns the device images live on, nil for targets without a GPU.
	GPU() *GPU

	// Presents returns how many images were presented.
	Presents() uint64

	// Destroy releases the ring, surface, device and display. Idempotent.
	Destroy()
}

// targetBase holds the state every backend shares.
type targetBase struct {
	mu  *sync.Mutex
	log *slog.Logger

	name  string
	state State
	opts  *targetOptions

	pacer          pacer.Pacer
	renderComplete *Timeline

	images []Image
	extent common.Extent2D
	format wgpu.TextureFormat
	next   uint32
	// free counts framebuffer images that may be acquired; present returns them.
	free        *semaphore.Weighted
	outstanding int
	presents    uint64
}

func newTargetBase(name string, opts *targetOptions) *targetBase {
	return &targetBase{
		mu:             &sync.Mutex{},
		log:            common.ComponentLogger("target").With("backend", name),
		name:           name,
		opts:           opts,
		renderComplete: NewTimeline(),
	}
}

func (b *targetBase) Name() string { return b.name }

func (b *targetBase) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *targetBase) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.Debug("state change", "from", b.state, "to", s)
	b.state = s
}

func (b *targetBase) InitPost(width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StatePreGPUInitialized {
		return fmt.Errorf("init post in state %v: %w", b.state, ErrNotReady)
	}
	if b.extent.Width == 0 || b.extent.Height == 0 {
		b.extent = common.Extent2D{Width: int32(width), Height: int32(height)}
	}
	b.state = StatePostGPUInitialized
	return nil
}

func (b *targetBase) HasImages() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.images) > 0
}

func (b *targetBase) Images() []Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Image, len(b.images))
	copy(out, b.images)
	return out
}

func (b *targetBase) Extent() common.Extent2D {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.extent
}

func (b *targetBase) Format() wgpu.TextureFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format
}

func (b *targetBase) Pacer() pacer.Pacer { return b.pacer }

func (b *targetBase) RenderComplete() *Timeline { return b.renderComplete }

func (b *targetBase) Presents() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presents
}

// claim blocks on a free image and returns the next index of the ring.
func (b *targetBase) claim(ctx context.Context) (uint32, error) {
	b.mu.Lock()
	if b.state != StateRunning || len(b.images) == 0 {
		b.mu.Unlock()
		return 0, fmt.Errorf("acquire in state %v: %w", b.state, ErrNotReady)
	}
	free := b.free
	b.mu.Unlock()

	if err := free.Acquire(ctx, 1); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if free != b.free {
		// The ring was recreated while waiting.
		free.Release(1)
		return 0, ErrOutOfDate
	}
	b.outstanding++
	idx := b.next
	b.next = (b.next + 1) % uint32(len(b.images))
	return idx, nil
}

// presented returns an image slot to the free pool.
func (b *targetBase) presented() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presents++
	if b.outstanding > 0 {
		b.outstanding--
		b.free.Release(1)
	}
}

// resetRing installs a new ring. inFlight is how many images may be acquired at once.
func (b *targetBase) resetRing(images []Image, extent common.Extent2D, format wgpu.TextureFormat, inFlight int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images = images
	b.extent = extent
	b.format = format
	b.next = 0
	b.outstanding = 0
	b.free = semaphore.NewWeighted(int64(inFlight))
	b.state = StateRunning
}

func (b *targetBase) validIndex(i uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(i) < len(b.images)
}
