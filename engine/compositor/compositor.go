// Package compositor runs the per-session compositor thread. It owns the presentation
// target and the layer renderer, paces application frames against the target's display
// timing and turns committed layers into presented framebuffer images.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/pacer"
	"github.com/Carmen-Shannon/oxy-xr/engine/profiler"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/Carmen-Shannon/oxy-xr/engine/target"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// FocusState is how visible the session's frames are to the user.
type FocusState int

const (
	FocusHidden FocusState = iota
	FocusVisible
	FocusFocused
)

func (f FocusState) String() string {
	switch f {
	case FocusHidden:
		return "hidden"
	case FocusVisible:
		return "visible"
	case FocusFocused:
		return "focused"
	}
	return fmt.Sprintf("FocusState(%d)", int(f))
}

// FrameTiming is what WaitFrame hands to the application.
type FrameTiming struct {
	FrameID                  int64
	PredictedDisplayNs       int64
	PredictedDisplayPeriodNs int64
}

// lifecycle follows a session from creation to full focus. Focus is granted one step per poll
// once the first frame was committed.
type lifecycle int

const (
	lifecycleReady lifecycle = iota
	lifecyclePrepared
	lifecycleCommitted
	lifecycleVisible
	lifecycleFocused
)

// frameJob is one committed frame handed to the compositor thread.
type frameJob struct {
	ctx       context.Context
	frameID   int64
	displayNs int64
	layers    []renderer.Layer
	held      []heldImage
	reply     chan error
}

// compositor is the implementation of the Compositor interface.
type compositor struct {
	mu  *sync.Mutex
	log *slog.Logger

	clock    *common.TimeState
	hmd      device.Device
	ipd      float32
	periodNs int64

	target     target.Target
	targetMode config.TargetMode
	targetOpts []target.TargetBuilderOption
	imageInfo  target.ImageCreateInfo
	renderer   renderer.Renderer
	appPacer   pacer.AppPacer
	profiler   *profiler.Profiler

	state lifecycle

	// Slot being assembled between LayerBegin and LayerCommit.
	slotFrameID   int64
	slotDisplayNs int64
	slotBlend     device.BlendMode
	slotLayers    []renderer.Layer
	slotHeld      []heldImage
	slotOpen      bool

	jobs          chan frameJob
	quitChannel   chan struct{}
	quitOnce      sync.Once
	group         *errgroup.Group
	timelineValue uint64
	recreate      bool
	lastPlan      renderer.FramePlan
}

// Compositor composites one session's frames onto the head-mounted display.
//
// Application frames follow WaitFrame, BeginFrame, then LayerBegin, LayerSubmit per layer and
// LayerCommit, or DiscardFrame instead of the layer calls. Present and timing feedback happen
// on the compositor thread.
type Compositor interface {
	// BeginSession prepares the compositor for a running session.
	//
	// Returns:
	//   - error: CallOrderInvalid if a session is already running
	BeginSession() error

	// EndSession returns the compositor to the ready state and drops its focus.
	EndSession() error

	// WaitFrame blocks until the application should start its next frame.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//
	// Returns:
	//   - FrameTiming: the frame id and its predicted display time
	//   - error: ctx.Err() when cancelled, SessionLost once closed
	WaitFrame(ctx context.Context) (FrameTiming, error)

	// BeginFrame marks that the application started rendering a frame.
	//
	// Parameters:
	//   - frameID: a frame returned by WaitFrame
	//
	// Returns:
	//   - error: SessionLost once closed
	BeginFrame(frameID int64) error

	// DiscardFrame drops a begun frame that will never be committed.
	//
	// Parameters:
	//   - frameID: the frame
	//
	// Returns:
	//   - error: SessionLost once closed
	DiscardFrame(frameID int64) error

	// LayerBegin opens the layer list of a frame, dropping any list left uncommitted.
	//
	// Parameters:
	//   - frameID: the frame
	//   - displayTimeNs: the display time the application rendered for
	//   - blend: the environment blend mode of the frame
	//
	// Returns:
	//   - error: SessionLost once closed
	LayerBegin(frameID, displayTimeNs int64, blend device.BlendMode) error

	// LayerSubmit appends a layer to the open list and holds its images.
	//
	// Parameters:
	//   - layer: the layer
	//
	// Returns:
	//   - error: CallOrderInvalid without LayerBegin, LayerLimitExceeded past MaxLayers,
	//     HandleInvalid if an image cannot be resolved
	LayerSubmit(layer Layer) error

	// LayerCommit hands the open list to the compositor thread and waits until it is presented.
	// A frame without layers is not rendered and nothing is presented for it.
	//
	// Parameters:
	//   - ctx: cancels the wait for the compositor thread
	//
	// Returns:
	//   - error: CallOrderInvalid without LayerBegin, SessionLost when the target failed
	LayerCommit(ctx context.Context) error

	// CreateSwapchain allocates a client swapchain on the renderer's device.
	//
	// Parameters:
	//   - info: the swapchain description
	//
	// Returns:
	//   - swapchain.Swapchain: the swapchain
	//   - error: SwapchainFormatUnsupported or any validation error from swapchain.New
	CreateSwapchain(info swapchain.CreateInfo) (swapchain.Swapchain, error)

	// SupportedFormats lists the client swapchain formats in preference order.
	SupportedFormats() []swapchain.Format

	// Focus returns the current focus state.
	Focus() FocusState

	// PollFocus advances focus by one step after the first commit.
	//
	// Returns:
	//   - FocusState: the new state
	//   - bool: true if the state changed
	PollFocus() (FocusState, bool)

	// Target returns the presentation target.
	Target() target.Target

	// LastPlan returns the draw plan of the last presented frame.
	LastPlan() renderer.FramePlan

	// Close drains the compositor thread and releases the renderer and target. Idempotent.
	//
	// Returns:
	//   - error: an error the compositor thread terminated with
	Close() error
}

var _ Compositor = &compositor{}

// NewCompositor creates the target, renderer and pacers and starts the compositor thread.
//
// Parameters:
//   - ctx: carries the runtime config and cancels target initialization
//   - options: functional options to configure the compositor
//
// Returns:
//   - Compositor: the running compositor
//   - error: IncompatibleDisplay if a direct display was refused, InitializationFailed for
//     any other target or renderer failure
func NewCompositor(ctx context.Context, options ...CompositorBuilderOption) (Compositor, error) {
	cfg := config.FromContext(ctx)
	c := &compositor{
		mu:          &sync.Mutex{},
		log:         common.ComponentLogger("compositor"),
		ipd:         cfg.IPDMeters(),
		periodNs:    int64(cfg.FramePeriod),
		targetMode:  cfg.Target,
		jobs:        make(chan frameJob),
		quitChannel: make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.clock == nil {
		c.clock = common.NewTimeState()
	}
	if c.hmd == nil {
		c.hmd = device.DefaultHMD()
	}
	parts := c.hmd.HMD()
	if parts == nil {
		return nil, result.Errorf(result.InitializationFailed, "device %s is not a head-mounted display", c.hmd.Name())
	}
	if parts.Screen.NominalFrameIntervalNs > 0 {
		c.periodNs = parts.Screen.NominalFrameIntervalNs
	}
	if c.periodNs <= 0 {
		c.periodNs = common.SecondNs / 60
	}
	if c.profiler == nil {
		c.profiler = profiler.NewProfiler()
	}

	if err := c.initTarget(ctx, cfg, parts); err != nil {
		return nil, err
	}
	if c.renderer == nil {
		c.renderer = renderer.NewRenderer(renderer.WithGPU(c.target.GPU()))
	}
	c.appPacer = pacer.NewAppPacer()
	c.appPacer.Info(0, c.periodNs, 0)

	c.group = &errgroup.Group{}
	c.group.Go(c.run)

	c.log.Info("compositor started",
		"target", c.target.Name(),
		"width", c.imageInfo.Width,
		"height", c.imageInfo.Height,
		"period_ns", c.periodNs)
	return c, nil
}

// initTarget creates the target unless one was supplied, then brings it to running.
func (c *compositor) initTarget(ctx context.Context, cfg config.Config, parts *device.HMDParts) error {
	if c.target == nil {
		opts := []target.TargetBuilderOption{
			target.WithClock(c.clock.Now),
			target.WithFramePeriod(c.periodNs),
			target.WithWindow(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height),
			target.WithModeIndex(cfg.DirectModeIndex),
		}
		if !cfg.DynamicPrediction {
			opts = append(opts, target.WithStaticPrediction(int64(cfg.StaticPrediction())))
		}
		opts = append(opts, c.targetOpts...)
		t, err := target.New(ctx, c.targetMode, opts...)
		if err != nil {
			if result.Code(err) == result.IncompatibleDisplay {
				return err
			}
			return result.Errorf(result.InitializationFailed, "create target: %v", err)
		}
		c.target = t
	}

	w, h := parts.Screen.WidthPixels, parts.Screen.HeightPixels
	if err := c.target.InitPost(w, h); err != nil {
		c.target.Destroy()
		return result.Errorf(result.InitializationFailed, "init target: %v", err)
	}
	c.imageInfo = target.ImageCreateInfo{
		Width:       w,
		Height:      h,
		Format:      wgpu.TextureFormatBGRA8UnormSrgb,
		ColorSpace:  target.ColorSpaceSRGBNonlinear,
		Usage:       wgpu.TextureUsageRenderAttachment,
		PresentMode: wgpu.PresentModeFifo,
	}
	if err := c.target.CreateImages(c.imageInfo); err != nil {
		c.target.Destroy()
		return result.Errorf(result.InitializationFailed, "create target images: %v", err)
	}
	return nil
}

func (c *compositor) closed() bool {
	select {
	case <-c.quitChannel:
		return true
	default:
		return false
	}
}

func errLost() error {
	return result.Errorf(result.SessionLost, "compositor is closed")
}

func (c *compositor) BeginSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != lifecycleReady {
		return result.Errorf(result.CallOrderInvalid, "compositor session already begun")
	}
	c.state = lifecyclePrepared
	return nil
}

func (c *compositor) EndSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = lifecycleReady
	c.dropSlotLocked()
	return nil
}

func (c *compositor) WaitFrame(ctx context.Context) (FrameTiming, error) {
	if c.closed() {
		return FrameTiming{}, errLost()
	}
	if err := ctx.Err(); err != nil {
		return FrameTiming{}, err
	}
	p := c.appPacer.Predict(c.clock.Now())

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() { close(done) })
	defer stop()
	woke := common.SleepUntil(c.clock.ToMonotonic(p.WakeUpNs), done)

	c.appPacer.MarkPoint(pacer.PointWakeUp, p.FrameID, c.clock.Now())
	if !woke {
		c.appPacer.MarkDiscarded(p.FrameID, c.clock.Now())
		return FrameTiming{}, ctx.Err()
	}
	return FrameTiming{
		FrameID:                  p.FrameID,
		PredictedDisplayNs:       p.PredictedDisplayNs,
		PredictedDisplayPeriodNs: p.PredictedDisplayPeriodNs,
	}, nil
}

func (c *compositor) BeginFrame(frameID int64) error {
	if c.closed() {
		return errLost()
	}
	c.appPacer.MarkPoint(pacer.PointBegin, frameID, c.clock.Now())
	return nil
}

func (c *compositor) DiscardFrame(frameID int64) error {
	if c.closed() {
		return errLost()
	}
	c.appPacer.MarkDiscarded(frameID, c.clock.Now())
	return nil
}

func (c *compositor) LayerBegin(frameID, displayTimeNs int64, blend device.BlendMode) error {
	if c.closed() {
		return errLost()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropSlotLocked()
	c.slotFrameID = frameID
	c.slotDisplayNs = displayTimeNs
	c.slotBlend = blend
	c.slotOpen = true
	return nil
}

// dropSlotLocked releases every image held by an uncommitted layer list.
func (c *compositor) dropSlotLocked() {
	unholdAll(c.slotHeld)
	c.slotHeld = nil
	c.slotLayers = nil
	c.slotOpen = false
}

func (c *compositor) LayerSubmit(layer Layer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.slotOpen {
		return result.Errorf(result.CallOrderInvalid, "layer submitted without layer begin")
	}
	if len(c.slotLayers) >= renderer.MaxLayers {
		return result.Errorf(result.LayerLimitExceeded, "more than %d layers", renderer.MaxLayers)
	}
	rl, held, err := layer.resolve()
	if err != nil {
		return err
	}
	c.slotLayers = append(c.slotLayers, rl)
	c.slotHeld = append(c.slotHeld, held...)
	return nil
}

func (c *compositor) LayerCommit(ctx context.Context) error {
	c.mu.Lock()
	if !c.slotOpen {
		c.mu.Unlock()
		return result.Errorf(result.CallOrderInvalid, "layer commit without layer begin")
	}
	job := frameJob{
		ctx:       ctx,
		frameID:   c.slotFrameID,
		displayNs: c.slotDisplayNs,
		layers:    c.slotLayers,
		held:      c.slotHeld,
		reply:     make(chan error, 1),
	}
	c.slotLayers, c.slotHeld, c.slotOpen = nil, nil, false
	if c.state == lifecyclePrepared {
		c.state = lifecycleCommitted
	}
	c.mu.Unlock()

	now := c.clock.Now()
	c.appPacer.MarkDelivered(job.frameID, now, job.displayNs)

	if len(job.layers) == 0 {
		c.appPacer.MarkGPUDone(job.frameID, now)
		c.log.Debug("discarded frame without layers", "frame_id", job.frameID)
	}

	select {
	case c.jobs <- job:
	case <-c.quitChannel:
		unholdAll(job.held)
		return errLost()
	case <-ctx.Done():
		unholdAll(job.held)
		return ctx.Err()
	}
	return <-job.reply
}

func (c *compositor) CreateSwapchain(info swapchain.CreateInfo) (swapchain.Swapchain, error) {
	if c.closed() {
		return nil, errLost()
	}
	if !info.Format.Supported() {
		return nil, result.Errorf(result.SwapchainFormatUnsupported, "format %v", info.Format)
	}
	return swapchain.New(info, swapchain.WithAllocator(c.renderer.ImageAllocator()))
}

func (c *compositor) SupportedFormats() []swapchain.Format {
	return swapchain.SupportedFormats()
}

func (c *compositor) Focus() FocusState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focusLocked()
}

func (c *compositor) focusLocked() FocusState {
	switch c.state {
	case lifecycleVisible:
		return FocusVisible
	case lifecycleFocused:
		return FocusFocused
	}
	return FocusHidden
}

func (c *compositor) PollFocus() (FocusState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case lifecycleCommitted:
		c.state = lifecycleVisible
	case lifecycleVisible:
		c.state = lifecycleFocused
	default:
		return c.focusLocked(), false
	}
	c.log.Debug("focus changed", "focus", c.focusLocked())
	return c.focusLocked(), true
}

func (c *compositor) Target() target.Target {
	return c.target
}

func (c *compositor) LastPlan() renderer.FramePlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPlan
}

func (c *compositor) Close() error {
	var err error
	c.quitOnce.Do(func() {
		close(c.quitChannel)
		err = c.group.Wait()

		c.mu.Lock()
		c.dropSlotLocked()
		c.mu.Unlock()

		c.renderer.Destroy()
		c.target.Destroy()
		c.log.Info("compositor closed", "presents", c.target.Presents())
	})
	return err
}

// run is the compositor thread. It renders committed frames and drains timing feedback
// between frames until the quit channel is closed.
func (c *compositor) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("compositor thread recovered from panic", "panic", r)
			err = fmt.Errorf("compositor thread panic: %v", r)
		}
	}()

	ticker := time.NewTicker(time.Duration(c.periodNs))
	defer ticker.Stop()

	for {
		select {
		case <-c.quitChannel:
			return nil
		case job := <-c.jobs:
			if len(job.layers) == 0 {
				c.profiler.Discard()
				job.reply <- nil
				continue
			}
			job.reply <- c.renderFrame(job)
		case <-ticker.C:
			if err := c.target.UpdateTimings(); err != nil {
				c.log.Warn("update timings failed", "error", err)
			}
		}
	}
}

// renderFrame draws one committed frame into a target image and presents it.
func (c *compositor) renderFrame(job frameJob) error {
	defer unholdAll(job.held)

	if c.recreate {
		if err := c.target.CreateImages(c.imageInfo); err != nil {
			return result.Errorf(result.SessionLost, "recreate target images: %v", err)
		}
		c.recreate = false
	}

	pc := c.target.Pacer()
	wake := c.clock.Now()
	pred := pc.Predict(wake)
	pc.MarkPoint(pacer.PointWakeUp, pred.FrameID, wake)

	if err := c.setViews(job.displayNs); err != nil {
		return result.Errorf(result.SessionLost, "view poses: %v", err)
	}
	if err := c.renderer.SetLayers(job.layers); err != nil {
		return result.Errorf(result.LayerLimitExceeded, "%v", err)
	}

	begin := c.clock.Now()
	pc.MarkPoint(pacer.PointBegin, pred.FrameID, begin)

	idx, err := c.target.Acquire(job.ctx)
	if errors.Is(err, target.ErrOutOfDate) {
		c.log.Debug("target out of date, skipping frame", "frame_id", job.frameID)
		c.recreate = true
		c.appPacer.MarkGPUDone(job.frameID, c.clock.Now())
		return nil
	}
	if err != nil {
		return fatal("acquire target image", err)
	}
	img := c.target.Images()[idx]

	plan, drawErr := c.renderer.Draw(job.ctx, renderer.TargetImage{View: img.View, Extent: img.Extent, Format: img.Format})
	c.timelineValue++
	c.target.RenderComplete().Signal(c.timelineValue)
	submit := c.clock.Now()
	pc.MarkPoint(pacer.PointSubmit, pred.FrameID, submit)

	presentErr := c.target.Present(job.ctx, target.PresentInfo{
		Index:            idx,
		FrameID:          pred.FrameID,
		TimelineValue:    c.timelineValue,
		DesiredPresentNs: pred.DesiredPresentNs,
		PresentSlopNs:    pred.PresentSlopNs,
	})
	if errors.Is(presentErr, target.ErrOutOfDate) {
		c.recreate = true
		presentErr = nil
	}

	done := c.clock.Now()
	pc.InfoGPU(pred.FrameID, begin, submit, done)
	if err := c.target.UpdateTimings(); err != nil {
		c.log.Warn("update timings failed", "error", err)
	}
	c.appPacer.MarkGPUDone(job.frameID, done)

	stats := pc.Stats()
	c.appPacer.Info(pred.PredictedDisplayNs, pred.PredictedDisplayPeriodNs, stats.CompTimeNs)
	c.profiler.Tick(stats)

	c.mu.Lock()
	c.lastPlan = plan
	c.mu.Unlock()

	if drawErr != nil {
		return result.Errorf(result.SessionLost, "%v", drawErr)
	}
	if presentErr != nil {
		return fatal(fmt.Sprintf("present frame %d", job.frameID), presentErr)
	}
	return nil
}

// fatal turns a target failure into a session loss. Cancellation of the committing call is
// passed through unchanged.
func fatal(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return result.Errorf(result.SessionLost, "%s: %v", what, err)
}

// setViews feeds the renderer both eyes at the frame's display time. World-space layers are
// placed relative to the tracking origin.
func (c *compositor) setViews(displayNs int64) error {
	head, fovs, poses, err := c.hmd.GetViewPoses(mgl32.Vec3{c.ipd, 0, 0}, displayNs, 2)
	if err != nil {
		return err
	}
	for eye := 0; eye < 2; eye++ {
		world := head.Pose.Compose(poses[eye])
		if err := c.renderer.SetViews(eye, fovs[eye], poses[eye], world); err != nil {
			return err
		}
	}
	return nil
}
