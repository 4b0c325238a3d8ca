package target

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/pacer"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const period = common.SecondNs / 60

func TestFrameIntervalNs(t *testing.T) {
	assert.Equal(t, int64(16_666_666), FrameIntervalNs(60_000))
	assert.Equal(t, int64(11_111_111), FrameIntervalNs(90_000))
	assert.Equal(t, int64(0), FrameIntervalNs(0))
}

func TestSelectDisplayMode(t *testing.T) {
	modes := []DisplayMode{
		{Width: 1920, Height: 1080, RefreshMHz: 60_000},
		{Width: 2560, Height: 1440, RefreshMHz: 60_000},
		{Width: 2560, Height: 1440, RefreshMHz: 90_000},
		{Width: 1280, Height: 720, RefreshMHz: 144_000},
	}

	idx, err := SelectDisplayMode(modes, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, idx, "most pixels, then highest refresh")

	idx, err = SelectDisplayMode(modes, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	_, err = SelectDisplayMode(modes, 4)
	assert.Error(t, err)
	_, err = SelectDisplayMode(nil, -1)
	assert.Error(t, err)
}

func TestSelectAlphaMode(t *testing.T) {
	tests := []struct {
		supported PlaneAlpha
		want      PlaneAlpha
	}{
		{PlaneAlphaOpaque | PlaneAlphaGlobal | PlaneAlphaPerPixel | PlaneAlphaPerPixelPremultiplied, PlaneAlphaPerPixelPremultiplied},
		{PlaneAlphaOpaque | PlaneAlphaGlobal | PlaneAlphaPerPixel, PlaneAlphaPerPixel},
		{PlaneAlphaOpaque | PlaneAlphaGlobal, PlaneAlphaGlobal},
		{PlaneAlphaOpaque, PlaneAlphaOpaque},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectAlphaMode(tt.supported))
	}

	assert.Equal(t, wgpu.CompositeAlphaModePremultiplied,
		selectCompositeAlpha([]wgpu.CompositeAlphaMode{wgpu.CompositeAlphaModeOpaque, wgpu.CompositeAlphaModePremultiplied}))
	assert.Equal(t, wgpu.CompositeAlphaModeOpaque,
		selectCompositeAlpha([]wgpu.CompositeAlphaMode{wgpu.CompositeAlphaModeOpaque}))
}

func TestSelectConnectorPicksLowestAvailable(t *testing.T) {
	conns := []Connector{
		{ID: 7, Available: true},
		{ID: 2, Available: false},
		{ID: 4, Available: true},
	}
	c, err := SelectConnector(conns)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), c.ID)

	_, err = SelectConnector([]Connector{{ID: 1}})
	assert.True(t, errors.Is(err, result.ErrIncompatibleDisplay))
}

type fakeLeaser struct {
	connectors []Connector
	leaseErr   error
	leased     []uint32
}

func (f *fakeLeaser) Connectors() ([]Connector, error) { return f.connectors, nil }

func (f *fakeLeaser) Lease(c Connector, _ DisplayMode) (Lease, error) {
	f.leased = append(f.leased, c.ID)
	return nil, f.leaseErr
}

func TestDirectTargetReportsIncompatibleDisplay(t *testing.T) {
	ctx := context.Background()

	none := &fakeLeaser{connectors: []Connector{{ID: 0, Name: "desktop"}}}
	err := NewDirect(WithLeaser(none)).InitPre(ctx)
	assert.True(t, errors.Is(err, result.ErrIncompatibleDisplay))

	refused := &fakeLeaser{
		connectors: []Connector{
			{ID: 3, Available: true, Modes: []DisplayMode{{Width: 2160, Height: 1200, RefreshMHz: 90_000}}},
			{ID: 1, Available: true, Modes: []DisplayMode{{Width: 2160, Height: 1200, RefreshMHz: 90_000}}},
		},
		leaseErr: errors.New("lease denied"),
	}
	err = NewDirect(WithLeaser(refused)).InitPre(ctx)
	assert.True(t, errors.Is(err, result.ErrIncompatibleDisplay))
	assert.Equal(t, []uint32{1}, refused.leased, "the lowest connector id is leased")
}

func TestTimeline(t *testing.T) {
	tl := NewTimeline()
	assert.True(t, tl.Signal(2))
	assert.False(t, tl.Signal(1), "timelines never go backwards")
	assert.Equal(t, uint64(2), tl.Value())
	require.NoError(t, tl.Wait(context.Background(), 2))

	done := make(chan error, 1)
	go func() { done <- tl.Wait(context.Background(), 3) }()
	tl.Signal(3)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not observe signal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tl.Wait(ctx, 10), context.DeadlineExceeded)
}

type infoRecord struct {
	frameID, desired, actual, earliest, margin int64
}

type recordingPacer struct {
	pacer.Pacer
	infos  []infoRecord
	vblank int64
}

func (r *recordingPacer) Info(frameID, desired, actual, earliest, margin, _ int64) {
	r.infos = append(r.infos, infoRecord{frameID, desired, actual, earliest, margin})
}

func (r *recordingPacer) UpdateVblank(ns int64) { r.vblank = ns }

func newTestHeadless(t *testing.T, now *int64, p pacer.Pacer) Target {
	t.Helper()
	tg := NewHeadless(
		WithClock(func() int64 { return *now }),
		WithFramePeriod(period),
		WithImageCount(3),
		WithPacer(p),
	)
	require.NoError(t, tg.InitPre(context.Background()))
	require.NoError(t, tg.InitPost(1280, 720))
	require.True(t, tg.CheckReady())
	require.NoError(t, tg.CreateImages(ImageCreateInfo{Width: 1280, Height: 720, Format: wgpu.TextureFormatRGBA8UnormSrgb}))
	return tg
}

func TestHeadlessSimulatedVsync(t *testing.T) {
	now := common.SecondNs
	rec := &recordingPacer{Pacer: pacer.NewFakePacer(period, now)}
	tg := newTestHeadless(t, &now, rec)
	ctx := context.Background()

	assert.Equal(t, StateRunning, tg.State())
	assert.Len(t, tg.Images(), 3)
	assert.Nil(t, tg.GPU())

	idx, err := tg.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)

	now += 5 * common.MillisecondNs
	tg.RenderComplete().Signal(1)
	desired := common.SecondNs + 2*period
	require.NoError(t, tg.Present(ctx, PresentInfo{Index: idx, FrameID: 7, TimelineValue: 1, DesiredPresentNs: desired}))
	assert.Equal(t, uint64(1), tg.Presents())

	require.NoError(t, tg.UpdateTimings())
	require.Len(t, rec.infos, 1)
	got := rec.infos[0]
	assert.Equal(t, int64(7), got.frameID)
	assert.Equal(t, desired, got.actual, "latched at the desired vsync")
	assert.Equal(t, common.SecondNs+period, got.earliest)
	assert.Equal(t, desired-now, got.margin)
	assert.Equal(t, desired, rec.vblank)

	// Drained feedback is not reported twice.
	require.NoError(t, tg.UpdateTimings())
	assert.Len(t, rec.infos, 1)
}

func TestHeadlessLatePresentSlipsToNextVsync(t *testing.T) {
	now := common.SecondNs
	rec := &recordingPacer{Pacer: pacer.NewFakePacer(period, now)}
	tg := newTestHeadless(t, &now, rec)
	ctx := context.Background()

	idx, err := tg.Acquire(ctx)
	require.NoError(t, err)
	desired := common.SecondNs + period
	now = desired + common.MillisecondNs
	require.NoError(t, tg.Present(ctx, PresentInfo{Index: idx, FrameID: 1, DesiredPresentNs: desired}))
	require.NoError(t, tg.UpdateTimings())

	require.Len(t, rec.infos, 1)
	assert.Equal(t, common.SecondNs+2*period, rec.infos[0].actual)
}

func TestHeadlessAcquireBlocksWhenRingIsFull(t *testing.T) {
	now := common.SecondNs
	tg := newTestHeadless(t, &now, pacer.NewFakePacer(period, now))
	ctx := context.Background()

	for want := range uint32(3) {
		idx, err := tg.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, idx)
	}

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err := tg.Acquire(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tg.Present(ctx, PresentInfo{Index: 0}))
	idx, err := tg.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx, "the ring wraps")
}

func TestHeadlessPresentWaitsForRenderComplete(t *testing.T) {
	now := common.SecondNs
	tg := newTestHeadless(t, &now, pacer.NewFakePacer(period, now))

	idx, err := tg.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = tg.Present(ctx, PresentInfo{Index: idx, TimelineValue: 5})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(0), tg.Presents())
}

func TestHeadlessLifecycleErrors(t *testing.T) {
	tg := NewHeadless()
	assert.Equal(t, StateUninitialized, tg.State())
	assert.ErrorIs(t, tg.InitPost(1, 1), ErrNotReady)
	assert.ErrorIs(t, tg.CreateImages(ImageCreateInfo{Width: 1, Height: 1}), ErrNotReady)
	_, err := tg.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, tg.InitPre(context.Background()))
	assert.Error(t, tg.InitPre(context.Background()))
	require.NoError(t, tg.InitPost(640, 480))
	assert.Error(t, tg.CreateImages(ImageCreateInfo{}))

	tg.Destroy()
	tg.Destroy()
	assert.Equal(t, StateTornDown, tg.State())
}

func TestFactoryHeadless(t *testing.T) {
	tg, err := New(context.Background(), config.TargetHeadless, WithFramePeriod(period))
	require.NoError(t, err)
	assert.Equal(t, "headless", tg.Name())
	assert.Equal(t, StatePreGPUInitialized, tg.State())
	assert.NotNil(t, tg.Pacer())
	tg.Destroy()

	_, err = New(context.Background(), "bogus")
	assert.Error(t, err)
}

func TestHeadlessStaticPrediction(t *testing.T) {
	now := func() int64 { return common.SecondNs }
	dynamic := NewHeadless(WithClock(now), WithFramePeriod(period))
	require.NoError(t, dynamic.InitPre(context.Background()))
	t.Cleanup(dynamic.Destroy)

	offset := 20 * common.MillisecondNs
	static := NewHeadless(WithClock(now), WithFramePeriod(period), WithStaticPrediction(offset))
	require.NoError(t, static.InitPre(context.Background()))
	t.Cleanup(static.Destroy)

	p := static.Pacer().Predict(now())
	assert.Equal(t, offset, p.PredictedDisplayNs-p.DesiredPresentNs)
	assert.Equal(t, offset, static.Pacer().Stats().PresentOffsetNs)
	assert.NotEqual(t, offset, dynamic.Pacer().Stats().PresentOffsetNs)
}
