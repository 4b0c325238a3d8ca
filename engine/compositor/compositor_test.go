package compositor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/Carmen-Shannon/oxy-xr/engine/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPeriodNs = 5 * common.MillisecondNs

func newTestCompositor(t *testing.T) Compositor {
	t.Helper()
	hmd := device.NewSimulatedHMD(device.WithScreen(64, 32, testPeriodNs, 90))
	c, err := NewCompositor(context.Background(),
		WithHMD(hmd),
		WithTargetMode(config.TargetHeadless),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testSwapchain(t *testing.T, c Compositor) swapchain.Swapchain {
	t.Helper()
	sc, err := c.CreateSwapchain(swapchain.CreateInfo{
		Usage:       swapchain.UsageColorAttachment | swapchain.UsageSampled,
		Format:      swapchain.FormatR8G8B8A8Srgb,
		SampleCount: 1,
		Width:       32,
		Height:      32,
		FaceCount:   1,
		ArraySize:   1,
		MipCount:    1,
	})
	require.NoError(t, err)
	t.Cleanup(sc.Destroy)
	return sc
}

func projection(sc swapchain.Swapchain, index uint32) Layer {
	ref := ImageRef{
		Swapchain: sc,
		Index:     index,
		Rect:      common.Rect2D{Extent: common.Extent2D{Width: 32, Height: 32}},
	}
	return Layer{
		Layer: renderer.Layer{Type: renderer.LayerProjection, Visibility: renderer.VisibleBoth},
		Color: [2]ImageRef{ref, ref},
	}
}

func TestRenderLoopPresentsOncePerFrame(t *testing.T) {
	c := newTestCompositor(t)
	require.NoError(t, c.BeginSession())
	sc := testSwapchain(t, c)
	ctx := context.Background()

	lastDisplay := int64(0)
	for want := int64(1); want <= 3; want++ {
		ft, err := c.WaitFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, ft.FrameID)
		assert.Greater(t, ft.PredictedDisplayNs, lastDisplay)
		lastDisplay = ft.PredictedDisplayNs

		require.NoError(t, c.BeginFrame(ft.FrameID))
		require.NoError(t, c.LayerBegin(ft.FrameID, ft.PredictedDisplayNs, device.BlendModeOpaque))
		require.NoError(t, c.LayerSubmit(projection(sc, 0)))
		require.NoError(t, c.LayerCommit(ctx))
		assert.Equal(t, uint64(want), c.Target().Presents())
	}

	plan := c.LastPlan()
	assert.Equal(t, 1, plan.Layers)
	require.Len(t, plan.Eyes[0].Draws, 1)
	require.Len(t, plan.Eyes[1].Draws, 1)
	assert.Equal(t, renderer.LayerProjection, plan.Eyes[0].Draws[0].Key.Type)
}

func TestCommitWithoutLayersPresentsNothing(t *testing.T) {
	c := newTestCompositor(t)
	require.NoError(t, c.BeginSession())
	ctx := context.Background()

	ft, err := c.WaitFrame(ctx)
	require.NoError(t, err)
	require.NoError(t, c.BeginFrame(ft.FrameID))
	require.NoError(t, c.LayerBegin(ft.FrameID, ft.PredictedDisplayNs, device.BlendModeOpaque))
	require.NoError(t, c.LayerCommit(ctx))

	assert.Equal(t, uint64(0), c.Target().Presents())
	assert.True(t, c.LastPlan().Empty())
}

func TestCommittedImagesAreUnheld(t *testing.T) {
	c := newTestCompositor(t)
	require.NoError(t, c.BeginSession())
	sc := testSwapchain(t, c)
	ctx := context.Background()

	idx, err := sc.Acquire()
	require.NoError(t, err)

	ft, err := c.WaitFrame(ctx)
	require.NoError(t, err)
	require.NoError(t, c.BeginFrame(ft.FrameID))
	require.NoError(t, c.LayerBegin(ft.FrameID, ft.PredictedDisplayNs, device.BlendModeOpaque))
	require.NoError(t, c.LayerSubmit(projection(sc, idx)))
	require.NoError(t, c.LayerCommit(ctx))

	// A still held image would make the client wait time out.
	res, err := sc.Wait(ctx, int64(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, result.Success, res)
	require.NoError(t, sc.Release())
}

func TestFocusAdvancesAfterFirstCommit(t *testing.T) {
	c := newTestCompositor(t)

	focus, changed := c.PollFocus()
	assert.False(t, changed)
	assert.Equal(t, FocusHidden, focus)

	require.NoError(t, c.BeginSession())
	assert.ErrorIs(t, c.BeginSession(), result.ErrCallOrderInvalid)
	_, changed = c.PollFocus()
	assert.False(t, changed)

	require.NoError(t, c.LayerBegin(1, 0, device.BlendModeOpaque))
	require.NoError(t, c.LayerCommit(context.Background()))

	focus, changed = c.PollFocus()
	assert.True(t, changed)
	assert.Equal(t, FocusVisible, focus)
	focus, changed = c.PollFocus()
	assert.True(t, changed)
	assert.Equal(t, FocusFocused, focus)
	focus, changed = c.PollFocus()
	assert.False(t, changed)
	assert.Equal(t, FocusFocused, c.Focus())
	assert.Equal(t, FocusFocused, focus)

	require.NoError(t, c.EndSession())
	assert.Equal(t, FocusHidden, c.Focus())
}

func TestLayerSubmitValidation(t *testing.T) {
	c := newTestCompositor(t)
	sc := testSwapchain(t, c)

	assert.ErrorIs(t, c.LayerSubmit(projection(sc, 0)), result.ErrCallOrderInvalid)
	assert.ErrorIs(t, c.LayerCommit(context.Background()), result.ErrCallOrderInvalid)

	require.NoError(t, c.LayerBegin(1, 0, device.BlendModeOpaque))
	assert.ErrorIs(t, c.LayerSubmit(Layer{Layer: renderer.Layer{Type: renderer.LayerQuad}}), result.ErrHandleInvalid)
	assert.Error(t, c.LayerSubmit(projection(sc, 7)))

	for i := 0; i < renderer.MaxLayers; i++ {
		require.NoError(t, c.LayerSubmit(projection(sc, 0)))
	}
	assert.ErrorIs(t, c.LayerSubmit(projection(sc, 0)), result.ErrLayerLimitExceeded)
}

func TestCreateSwapchainRejectsUnknownFormat(t *testing.T) {
	c := newTestCompositor(t)
	_, err := c.CreateSwapchain(swapchain.CreateInfo{
		Format: swapchain.Format(999), SampleCount: 1, Width: 4, Height: 4, FaceCount: 1, ArraySize: 1, MipCount: 1,
	})
	assert.ErrorIs(t, err, result.ErrSwapchainFormatUnsupported)
	assert.NotEmpty(t, c.SupportedFormats())
}

func TestWaitFrameHonorsContext(t *testing.T) {
	c := newTestCompositor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.WaitFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newTestCompositor(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.WaitFrame(context.Background())
	assert.ErrorIs(t, err, result.ErrSessionLost)
	assert.ErrorIs(t, c.BeginFrame(1), result.ErrSessionLost)
	assert.ErrorIs(t, c.LayerBegin(1, 0, device.BlendModeOpaque), result.ErrSessionLost)
}

// failingTarget is a headless target whose acquire or present can be made to fail.
type failingTarget struct {
	target.Target
	acquireErr error
	presentErr error
}

func (f *failingTarget) Acquire(ctx context.Context) (uint32, error) {
	if f.acquireErr != nil {
		return 0, f.acquireErr
	}
	return f.Target.Acquire(ctx)
}

func (f *failingTarget) Present(ctx context.Context, info target.PresentInfo) error {
	if f.presentErr != nil {
		return f.presentErr
	}
	return f.Target.Present(ctx, info)
}

func commitOneFrame(t *testing.T, c Compositor, sc swapchain.Swapchain) error {
	t.Helper()
	ctx := context.Background()
	ft, err := c.WaitFrame(ctx)
	require.NoError(t, err)
	require.NoError(t, c.BeginFrame(ft.FrameID))
	require.NoError(t, c.LayerBegin(ft.FrameID, ft.PredictedDisplayNs, device.BlendModeOpaque))
	require.NoError(t, c.LayerSubmit(projection(sc, 0)))
	return c.LayerCommit(ctx)
}

func TestTargetFailureLosesSession(t *testing.T) {
	deviceLost := errors.New("device lost")
	cases := map[string]*failingTarget{
		"acquire": {acquireErr: deviceLost},
		"present": {presentErr: deviceLost},
	}
	for name, ft := range cases {
		t.Run(name, func(t *testing.T) {
			inner := target.NewHeadless(target.WithFramePeriod(testPeriodNs))
			require.NoError(t, inner.InitPre(context.Background()))
			ft.Target = inner

			hmd := device.NewSimulatedHMD(device.WithScreen(64, 32, testPeriodNs, 90))
			c, err := NewCompositor(context.Background(), WithHMD(hmd), WithTarget(ft))
			require.NoError(t, err)
			t.Cleanup(func() { _ = c.Close() })
			require.NoError(t, c.BeginSession())

			err = commitOneFrame(t, c, testSwapchain(t, c))
			assert.ErrorIs(t, err, result.ErrSessionLost)
			assert.Contains(t, err.Error(), "device lost")
		})
	}
}
