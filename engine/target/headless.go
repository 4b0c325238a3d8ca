package target

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/pacer"
	"github.com/cogentcore/webgpu/wgpu"
)

// presentRecord is the feedback a display would report for one present.
type presentRecord struct {
	frameID    int64
	desiredNs  int64
	actualNs   int64
	earliestNs int64
	marginNs   int64
	whenNs     int64
}

// headlessTarget simulates a display refreshing on a fixed vsync grid. Every present latches
// at the first vsync at or after both the submit time and the desired present time less its
// slop, and that feedback drives a display-timing pacer. Images live on an offscreen device
// when one is supplied, otherwise only their bookkeeping exists.
type headlessTarget struct {
	*targetBase

	gpu          *GPU
	vsyncStartNs int64
	pending      []presentRecord
	lastVblankNs int64
}

// NewHeadless creates a headless target.
//
// Parameters:
//   - options: functional options to configure the target
//
// Returns:
//   - Target: the target, uninitialized
func NewHeadless(options ...TargetBuilderOption) Target {
	opts := defaultOptions()
	for _, option := range options {
		option(opts)
	}
	return &headlessTarget{
		targetBase: newTargetBase("headless", opts),
		gpu:        opts.gpu,
	}
}

func (t *headlessTarget) InitPre(context.Context) error {
	if s := t.State(); s != StateUninitialized {
		return fmt.Errorf("init pre in state %v: %w", s, ErrNotReady)
	}
	now := t.opts.clock()
	t.mu.Lock()
	t.vsyncStartNs = now
	t.pacer = t.opts.pacer
	if t.pacer == nil && t.opts.staticPrediction {
		t.pacer = t.opts.fakePacer(t.opts.framePeriodNs)
	} else if t.pacer == nil {
		t.pacer = pacer.NewDisplayTimingPacer(t.opts.framePeriodNs)
	}
	t.extent = common.Extent2D{Width: int32(t.opts.width), Height: int32(t.opts.height)}
	t.mu.Unlock()

	t.setState(StatePreGPUInitialized)
	t.log.Info("headless target initialized", "period_ns", t.opts.framePeriodNs)
	return nil
}

func (t *headlessTarget) CheckReady() bool {
	s := t.State()
	return s == StatePostGPUInitialized || s == StateRunning
}

func (t *headlessTarget) CreateImages(info ImageCreateInfo) error {
	if !t.CheckReady() {
		return fmt.Errorf("create images: %w", ErrNotReady)
	}
	if info.Width == 0 || info.Height == 0 {
		return fmt.Errorf("create images: zero extent %dx%d", info.Width, info.Height)
	}
	t.releaseImages()

	extent := common.Extent2D{Width: int32(info.Width), Height: int32(info.Height)}
	images := make([]Image, t.opts.imageCount)
	for i := range images {
		images[i] = Image{Index: uint32(i), Extent: extent, Format: info.Format}
		if t.gpu == nil {
			continue
		}
		tex, view, err := createOffscreenImage(t.gpu, info, i)
		if err != nil {
			for _, img := range images[:i] {
				releaseImage(img)
			}
			return err
		}
		images[i].Texture = tex
		images[i].View = view
	}

	t.resetRing(images, extent, info.Format, len(images))
	t.log.Debug("created images", "count", len(images), "width", info.Width, "height", info.Height, "gpu", t.gpu != nil)
	return nil
}

func createOffscreenImage(gpu *GPU, info ImageCreateInfo, i int) (*wgpu.Texture, *wgpu.TextureView, error) {
	usage := info.Usage
	if usage == 0 {
		usage = wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc
	}
	tex, err := gpu.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label: fmt.Sprintf("Headless Framebuffer %d", i),
		Size: wgpu.Extent3D{
			Width:              info.Width,
			Height:             info.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        info.Format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create framebuffer %d: %w", i, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("create framebuffer view %d: %w", i, err)
	}
	return tex, view, nil
}

func releaseImage(img Image) {
	if img.View != nil {
		img.View.Release()
	}
	if img.Texture != nil {
		img.Texture.Release()
	}
}

func (t *headlessTarget) releaseImages() {
	t.mu.Lock()
	images := t.images
	t.images = nil
	t.mu.Unlock()
	for _, img := range images {
		releaseImage(img)
	}
}

func (t *headlessTarget) Acquire(ctx context.Context) (uint32, error) {
	return t.claim(ctx)
}

// nextVsync returns the first vsync at or after ns.
func (t *headlessTarget) nextVsync(ns int64) int64 {
	period := t.opts.framePeriodNs
	if ns <= t.vsyncStartNs {
		return t.vsyncStartNs
	}
	k := (ns - t.vsyncStartNs + period - 1) / period
	return t.vsyncStartNs + k*period
}

func (t *headlessTarget) Present(ctx context.Context, info PresentInfo) error {
	if !t.validIndex(info.Index) {
		return fmt.Errorf("present of image %d: %w", info.Index, ErrNotReady)
	}
	if err := t.renderComplete.Wait(ctx, info.TimelineValue); err != nil {
		return err
	}

	now := t.opts.clock()
	t.mu.Lock()
	earliest := t.nextVsync(now)
	actual := t.nextVsync(max(now, info.DesiredPresentNs-info.PresentSlopNs))
	t.pending = append(t.pending, presentRecord{
		frameID:    info.FrameID,
		desiredNs:  info.DesiredPresentNs,
		actualNs:   actual,
		earliestNs: earliest,
		marginNs:   actual - now,
		whenNs:     now,
	})
	t.lastVblankNs = actual
	t.mu.Unlock()

	t.presented()
	return nil
}

func (t *headlessTarget) UpdateTimings() error {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	last := t.lastVblankNs
	t.mu.Unlock()

	for _, r := range pending {
		t.pacer.Info(r.frameID, r.desiredNs, r.actualNs, r.earliestNs, r.marginNs, r.whenNs)
	}
	if last > 0 {
		t.pacer.UpdateVblank(last)
	}
	return nil
}

func (t *headlessTarget) GPU() *GPU { return t.gpu }

func (t *headlessTarget) Destroy() {
	if t.State() == StateTornDown {
		return
	}
	t.releaseImages()
	t.setState(StateTornDown)
}
