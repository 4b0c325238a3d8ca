package target

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

// surfaceTarget presents through a WebGPU surface on a window. The windowed and direct
// backends differ only in how they obtain the window and the refresh period.
//
// A surface hands out one texture at a time, so the ring keeps its slots but only one image
// is ever acquired.
type surfaceTarget struct {
	*targetBase

	// open returns the window to present on and the display refresh interval, 0 if unknown.
	open   func(ctx context.Context) (window.Window, int64, error)
	closer func() error

	win         window.Window
	gpu         *GPU
	alphaMode   wgpu.CompositeAlphaMode
	presentMode wgpu.PresentMode
	outOfDate   atomic.Bool

	acquired    *wgpu.Texture
	acquiredIdx uint32
}

func (t *surfaceTarget) InitPre(ctx context.Context) error {
	if s := t.State(); s != StateUninitialized {
		return fmt.Errorf("init pre in state %v: %w", s, ErrNotReady)
	}

	win, periodNs, err := t.open(ctx)
	if err != nil {
		return err
	}
	desc := win.SurfaceDescriptor()
	if desc == nil {
		t.closeWindow(win)
		return fmt.Errorf("window closed before a surface could be created")
	}

	gpu, err := NewGPU(desc, t.opts.fallbackGPU)
	if err != nil {
		t.closeWindow(win)
		return fmt.Errorf("create gpu: %w", err)
	}

	periodNs = common.Coalesce(periodNs, t.opts.framePeriodNs)
	p := t.opts.pacer
	if p == nil {
		p = t.opts.fakePacer(periodNs)
	}

	t.mu.Lock()
	t.win = win
	t.gpu = gpu
	t.pacer = p
	t.extent = common.Extent2D{Width: int32(win.Width()), Height: int32(win.Height())}
	t.mu.Unlock()

	t.setState(StatePreGPUInitialized)
	t.log.Info("surface target initialized", "width", win.Width(), "height", win.Height(), "period_ns", periodNs)
	return nil
}

func (t *surfaceTarget) closeWindow(win window.Window) {
	if t.closer != nil {
		if err := t.closer(); err != nil {
			t.log.Warn("releasing display failed", "error", err)
		}
		return
	}
	if err := win.Close(); err != nil {
		t.log.Warn("closing window failed", "error", err)
	}
}

func (t *surfaceTarget) CheckReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gpu != nil && t.gpu.Surface != nil && t.win != nil && t.win.IsRunning() &&
		(t.state == StatePostGPUInitialized || t.state == StateRunning)
}

func (t *surfaceTarget) CreateImages(info ImageCreateInfo) error {
	if !t.CheckReady() {
		return fmt.Errorf("create images: %w", ErrNotReady)
	}
	t.dropAcquired()

	width, height := info.Width, info.Height
	if w, h := t.win.Width(), t.win.Height(); w > 0 && h > 0 {
		// The window size wins; it changes with resizes.
		width, height = uint32(w), uint32(h)
	}

	gpu := t.gpu
	caps := gpu.Surface.GetCapabilities(gpu.Adapter)
	if len(caps.Formats) == 0 {
		return fmt.Errorf("surface reports no formats")
	}
	format := caps.Formats[0]
	if slices.Contains(caps.Formats, info.Format) {
		format = info.Format
	}
	presentMode := wgpu.PresentModeFifo
	if info.PresentMode != 0 && slices.Contains(caps.PresentModes, info.PresentMode) {
		presentMode = info.PresentMode
	}
	alpha := selectCompositeAlpha(caps.AlphaModes)
	usage := info.Usage
	if usage == 0 {
		usage = wgpu.TextureUsageRenderAttachment
	}

	gpu.Lock()
	gpu.Surface.Configure(gpu.Adapter, gpu.Device, &wgpu.SurfaceConfiguration{
		Usage:       usage,
		Format:      format,
		Width:       width,
		Height:      height,
		PresentMode: presentMode,
		AlphaMode:   alpha,
	})
	gpu.Unlock()

	t.mu.Lock()
	t.alphaMode = alpha
	t.presentMode = presentMode
	t.mu.Unlock()

	extent := common.Extent2D{Width: int32(width), Height: int32(height)}
	images := make([]Image, t.opts.imageCount)
	for i := range images {
		images[i] = Image{Index: uint32(i), Extent: extent, Format: format}
	}
	t.resetRing(images, extent, format, 1)
	t.outOfDate.Store(false)

	t.log.Debug("configured surface", "format", format, "width", width, "height", height, "present_mode", presentMode, "alpha", alpha)
	return nil
}

func (t *surfaceTarget) Acquire(ctx context.Context) (uint32, error) {
	if t.outOfDate.Load() {
		return 0, ErrOutOfDate
	}
	idx, err := t.claim(ctx)
	if err != nil {
		return 0, err
	}

	t.gpu.Lock()
	tex, err := t.gpu.Surface.GetCurrentTexture()
	t.gpu.Unlock()
	if err != nil {
		t.outOfDate.Store(true)
		t.presented()
		t.log.Debug("surface texture unavailable", "error", err)
		return 0, ErrOutOfDate
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		t.presented()
		return 0, fmt.Errorf("create surface view: %w", err)
	}

	t.mu.Lock()
	t.images[idx].Texture = tex
	t.images[idx].View = view
	t.acquired = tex
	t.acquiredIdx = idx
	t.mu.Unlock()
	return idx, nil
}

// dropAcquired releases a surface texture that was acquired but never presented.
func (t *surfaceTarget) dropAcquired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.acquired == nil {
		return
	}
	img := &t.images[t.acquiredIdx]
	releaseImage(*img)
	img.Texture, img.View = nil, nil
	t.acquired = nil
}

func (t *surfaceTarget) Present(ctx context.Context, info PresentInfo) error {
	t.mu.Lock()
	if t.acquired == nil || info.Index != t.acquiredIdx {
		t.mu.Unlock()
		return fmt.Errorf("present of image %d that is not acquired: %w", info.Index, ErrNotReady)
	}
	t.mu.Unlock()

	if err := t.renderComplete.Wait(ctx, info.TimelineValue); err != nil {
		return err
	}

	t.gpu.Lock()
	t.gpu.Surface.Present()
	t.gpu.Unlock()
	now := t.opts.clock()

	t.dropAcquired()
	t.presented()
	// Without present feedback the completion of Present is the best vblank estimate.
	t.pacer.UpdateVblank(now)
	return nil
}

func (t *surfaceTarget) UpdateTimings() error {
	win := t.win
	if win == nil {
		return nil
	}
	for {
		select {
		case e, ok := <-win.Events():
			if !ok {
				return nil
			}
			t.handleEvent(e)
		default:
			return nil
		}
	}
}

func (t *surfaceTarget) handleEvent(e window.Event) {
	switch e.Kind {
	case window.EventKey:
		if t.opts.onKey != nil {
			t.opts.onKey(e.Key, e.Pressed)
		}
	case window.EventResize:
		t.log.Debug("window resized", "width", e.Width, "height", e.Height)
		if e.Width > 0 && e.Height > 0 {
			t.outOfDate.Store(true)
		}
	case window.EventClose:
		t.log.Info("window closed by user")
		if t.opts.onClose != nil {
			t.opts.onClose()
		}
	}
}

func (t *surfaceTarget) GPU() *GPU { return t.gpu }

func (t *surfaceTarget) Destroy() {
	if t.State() == StateTornDown {
		return
	}
	t.dropAcquired()
	t.gpu.Release()
	if t.win != nil {
		t.closeWindow(t.win)
	}
	t.setState(StateTornDown)
}

// NewWindowed creates a target that presents to a desktop window.
//
// Parameters:
//   - options: functional options to configure the target
//
// Returns:
//   - Target: the target, uninitialized
func NewWindowed(options ...TargetBuilderOption) Target {
	opts := defaultOptions()
	for _, option := range options {
		option(opts)
	}
	t := &surfaceTarget{targetBase: newTargetBase("window", opts)}
	t.open = func(context.Context) (window.Window, int64, error) {
		win, err := window.NewWindow(
			window.WithTitle(opts.title),
			window.WithSize(opts.width, opts.height),
		)
		return win, 0, err
	}
	return t
}

// NewDirect creates a target that takes exclusive control of a display through a Leaser.
// It picks the available connector with the lowest id and its best mode, and paces at that
// mode's refresh rate.
//
// Parameters:
//   - options: functional options to configure the target
//
// Returns:
//   - Target: the target, uninitialized
func NewDirect(options ...TargetBuilderOption) Target {
	opts := defaultOptions()
	for _, option := range options {
		option(opts)
	}
	if opts.leaser == nil {
		opts.leaser = NewMonitorLeaser()
	}
	t := &surfaceTarget{targetBase: newTargetBase("direct", opts)}
	t.open = func(context.Context) (window.Window, int64, error) {
		connectors, err := opts.leaser.Connectors()
		if err != nil {
			return nil, 0, incompatible("list displays: %v", err)
		}
		conn, err := SelectConnector(connectors)
		if err != nil {
			return nil, 0, err
		}
		idx, err := SelectDisplayMode(conn.Modes, opts.modeIndex)
		if err != nil {
			return nil, 0, incompatible("display %q: %v", conn.Name, err)
		}
		mode := conn.Modes[idx]
		t.log.Info("leasing display", "connector", conn.ID, "name", conn.Name,
			"width", mode.Width, "height", mode.Height, "refresh_mhz", mode.RefreshMHz)

		lease, err := opts.leaser.Lease(conn, mode)
		if err != nil {
			return nil, 0, incompatible("lease %q: %v", conn.Name, err)
		}
		t.closer = lease.Close
		return lease.Window(), FrameIntervalNs(mode.RefreshMHz), nil
	}
	return t
}
