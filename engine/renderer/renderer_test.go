package renderer

import (
	"context"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	plans    []FramePlan
	err      error
	released bool
}

func (f *fakeBackend) EnsurePipeline(PipelineKey, wgpu.TextureFormat) error { return nil }

func (f *fakeBackend) Render(_ context.Context, _ TargetImage, plan *FramePlan) error {
	if f.err != nil {
		return f.err
	}
	f.plans = append(f.plans, *plan)
	return nil
}

func (f *fakeBackend) Allocator() swapchain.ImageAllocator { return swapchain.NewMemoryAllocator() }

func (f *fakeBackend) Release() { f.released = true }

func testImage(t *testing.T, w, h uint32) swapchain.Image {
	t.Helper()
	imgs, err := swapchain.NewMemoryAllocator().Allocate(swapchain.CreateInfo{
		Format:    swapchain.FormatR8G8B8A8Srgb,
		Width:     w,
		Height:    h,
		FaceCount: 1,
		ArraySize: 1,
		MipCount:  1,
	}, 1)
	require.NoError(t, err)
	return imgs[0]
}

func fullRect(w, h int32) common.Rect2D {
	return common.Rect2D{Extent: common.Extent2D{Width: w, Height: h}}
}

func testViews() [2]EyeView {
	fov := common.SymmetricFov(math32.Pi/2, math32.Pi/2)
	return [2]EyeView{
		{Fov: fov, EyePose: common.IdentityPose(), WorldPose: common.IdentityPose()},
		{Fov: fov, EyePose: common.IdentityPose(), WorldPose: common.IdentityPose()},
	}
}

func projectionLayer(img swapchain.Image) Layer {
	sub := SubImage{Image: img, Rect: fullRect(64, 64)}
	return Layer{Type: LayerProjection, Visibility: VisibleBoth, Sub: [2]SubImage{sub, sub}}
}

func quadLayer(img swapchain.Image, z float32, flags LayerFlags) Layer {
	return Layer{
		Type:       LayerQuad,
		Flags:      flags,
		Visibility: VisibleBoth,
		Sub:        [2]SubImage{{Image: img, Rect: fullRect(64, 64)}},
		Pose:       common.Pose{Orientation: mgl32.QuatIdent(), Position: mgl32.Vec3{0, 0, z}},
		Size:       mgl32.Vec2{1, 1},
	}
}

func TestBuildPlanProjectionCoversClipSpace(t *testing.T) {
	img := testImage(t, 64, 64)
	plan := BuildPlan(testViews(), []Layer{projectionLayer(img)})

	assert.Equal(t, 1, plan.Layers)
	for eye := range 2 {
		require.Len(t, plan.Eyes[eye].Draws, 1)
		d := plan.Eyes[eye].Draws[0]
		assert.Equal(t, eye, d.Eye)
		assert.Equal(t, mgl32.Diag4(mgl32.Vec4{2, 2, 1, 1}), d.Uniform.MVP)
		assert.Equal(t, mgl32.Vec2{0, 0}, d.Uniform.RectOffset)
		assert.Equal(t, mgl32.Vec2{1, 1}, d.Uniform.RectExtent)
		assert.Equal(t, GeometryQuad, d.Geometry.Kind)
	}
}

func TestBuildPlanSkipsHiddenEye(t *testing.T) {
	img := testImage(t, 64, 64)
	l := quadLayer(img, -2, 0)
	l.Visibility = VisibleRight

	plan := BuildPlan(testViews(), []Layer{l})
	assert.Empty(t, plan.Eyes[0].Draws)
	assert.Len(t, plan.Eyes[1].Draws, 1)
	assert.False(t, plan.Empty())

	l.Visibility = 0
	plan = BuildPlan(testViews(), []Layer{l})
	assert.True(t, plan.Empty())
}

func TestBuildPlanKeepsSubmissionOrder(t *testing.T) {
	img := testImage(t, 64, 64)
	layers := []Layer{projectionLayer(img), quadLayer(img, -2, 0), quadLayer(img, -3, LayerBlendSourceAlpha)}
	plan := BuildPlan(testViews(), layers)
	for eye := range 2 {
		require.Len(t, plan.Eyes[eye].Draws, 3)
		for i, d := range plan.Eyes[eye].Draws {
			assert.Equal(t, i, d.Layer)
		}
	}
}

func TestBuildPlanQuadWorldAndViewSpace(t *testing.T) {
	img := testImage(t, 64, 64)
	views := testViews()
	// The eyes stand one meter to the right in the world.
	for eye := range 2 {
		views[eye].WorldPose = common.Pose{Orientation: mgl32.QuatIdent(), Position: mgl32.Vec3{1, 0, 0}}
	}

	world := BuildPlan(views, []Layer{quadLayer(img, -2, 0)})
	center := world.Eyes[0].Draws[0].Uniform.MVP.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 2, center.W(), 1e-5)
	assert.InDelta(t, -1, center.X(), 1e-5)

	viewSpace := BuildPlan(views, []Layer{quadLayer(img, -2, LayerViewSpace)})
	center = viewSpace.Eyes[0].Draws[0].Uniform.MVP.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 2, center.W(), 1e-5)
	assert.InDelta(t, 0, center.X(), 1e-5)

	corner := viewSpace.Eyes[0].Draws[0].Uniform.MVP.Mul4x1(mgl32.Vec4{0.5, 0.5, 0, 1})
	assert.InDelta(t, 0.25, corner.X()/corner.W(), 1e-5)
	assert.InDelta(t, 0.25, corner.Y()/corner.W(), 1e-5)
}

func TestBuildPlanNormalizesRect(t *testing.T) {
	img := testImage(t, 100, 50)
	l := Layer{
		Type:       LayerQuad,
		Flags:      LayerFlipY,
		Visibility: VisibleBoth,
		Sub: [2]SubImage{{
			Image:      img,
			Rect:       common.Rect2D{Offset: common.Offset2D{X: 50}, Extent: common.Extent2D{Width: 50, Height: 50}},
			ArrayIndex: 0,
		}},
		Pose: common.IdentityPose(),
		Size: mgl32.Vec2{1, 1},
	}
	d := BuildPlan(testViews(), []Layer{l}).Eyes[1].Draws[0]
	assert.Equal(t, mgl32.Vec2{0.5, 0}, d.Uniform.RectOffset)
	assert.Equal(t, mgl32.Vec2{0.5, 1}, d.Uniform.RectExtent)
	assert.Equal(t, uint32(1), d.Uniform.FlipY)
}

func TestBuildPlanBlendKeys(t *testing.T) {
	img := testImage(t, 64, 64)
	cases := []struct {
		flags           LayerFlags
		blend           BlendMode
		unpremultiplied uint32
	}{
		{0, BlendOpaque, 0},
		{LayerBlendSourceAlpha, BlendPremultiplied, 0},
		{LayerBlendSourceAlpha | LayerUnpremultipliedAlpha, BlendUnpremultiplied, 1},
		{LayerUnpremultipliedAlpha, BlendOpaque, 0},
	}
	for _, c := range cases {
		d := BuildPlan(testViews(), []Layer{quadLayer(img, -1, c.flags)}).Eyes[0].Draws[0]
		assert.Equal(t, c.blend, d.Key.Blend, "flags %b", c.flags)
		assert.Equal(t, c.unpremultiplied, d.Uniform.Unpremultiplied)
		assert.Equal(t, LayerQuad, d.Key.Type)
	}
}

func TestBuildPlanDepthKey(t *testing.T) {
	color := testImage(t, 64, 64)
	depth := testImage(t, 64, 64)
	l := projectionLayer(color)
	l.Type = LayerProjectionDepth
	l.Depth = [2]*SubImage{{Image: depth, Rect: fullRect(64, 64)}, {Image: depth, Rect: fullRect(64, 64)}}

	d := BuildPlan(testViews(), []Layer{l}).Eyes[0].Draws[0]
	assert.True(t, d.Key.Depth)
	require.NotNil(t, d.Depth)
	assert.Equal(t, depth, d.Depth.Image)
	assert.Equal(t, "projection_depth/opaque/depth", d.Key.String())

	l.Depth[1] = nil
	d = BuildPlan(testViews(), []Layer{l}).Eyes[0].Draws[0]
	assert.False(t, d.Key.Depth)
	assert.Nil(t, d.Depth)
}

func TestBuildPlanCylinderAndEquirect(t *testing.T) {
	img := testImage(t, 64, 64)
	cyl := quadLayer(img, 0, 0)
	cyl.Type = LayerCylinder
	cyl.CentralAngle = math32.Pi / 2
	cyl.AspectRatio = 2

	eq := quadLayer(img, 0, 0)
	eq.Type = LayerEquirect2
	eq.CentralHorizontalAngle = math32.Pi
	eq.UpperVerticalAngle = 0.5
	eq.LowerVerticalAngle = -0.5
	eq.Radius = 3

	plan := BuildPlan(testViews(), []Layer{cyl, eq})
	draws := plan.Eyes[0].Draws
	require.Len(t, draws, 2)
	assert.Equal(t, Geometry{Kind: GeometryCylinder, CentralAngle: math32.Pi / 2, AspectRatio: 2}, draws[0].Geometry)
	assert.Equal(t, mgl32.Diag4(mgl32.Vec4{2, 2, 1, 1}), draws[1].Uniform.MVP)
	assert.Equal(t, mgl32.Vec4{math32.Pi, 0.5, -0.5, 3}, draws[1].Uniform.Params)
	assert.NotEqual(t, mgl32.Ident4(), draws[1].Uniform.InvVP)

	assert.ElementsMatch(t, []PipelineKey{
		{Type: LayerCylinder, Blend: BlendOpaque},
		{Type: LayerEquirect2, Blend: BlendOpaque},
	}, plan.Keys())
}

func TestRendererPlanMatchesBuildPlan(t *testing.T) {
	img := testImage(t, 64, 64)
	layers := []Layer{
		projectionLayer(img),
		quadLayer(img, -1, LayerBlendSourceAlpha),
		quadLayer(img, -2, LayerViewSpace),
		quadLayer(img, -3, 0),
		quadLayer(img, -4, LayerFlipY),
	}
	views := testViews()

	r := NewRenderer(WithWorkers(3))
	defer r.Destroy()
	for eye := range 2 {
		require.NoError(t, r.SetViews(eye, views[eye].Fov, views[eye].EyePose, views[eye].WorldPose))
	}
	require.NoError(t, r.SetLayers(layers))

	assert.Equal(t, BuildPlan(views, layers), r.Plan())
}

func TestRendererRejectsBadInput(t *testing.T) {
	r := NewRenderer()
	defer r.Destroy()

	assert.Error(t, r.SetViews(2, common.Fov{}, common.IdentityPose(), common.IdentityPose()))
	assert.Error(t, r.SetViews(0, common.Fov{}, common.Pose{}, common.IdentityPose()))
	assert.Error(t, r.SetLayers(make([]Layer, MaxLayers+1)))
	assert.NoError(t, r.SetLayers(make([]Layer, MaxLayers)))
}

func TestRendererDrawUsesBackend(t *testing.T) {
	img := testImage(t, 64, 64)
	fb := &fakeBackend{}
	r := NewRenderer(WithBackend(fb))

	require.NoError(t, r.SetLayers([]Layer{projectionLayer(img)}))
	target := TargetImage{View: &wgpu.TextureView{}, Extent: common.Extent2D{Width: 128, Height: 64}}
	plan, err := r.Draw(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, fb.plans, 1)
	assert.Equal(t, plan, fb.plans[0])

	// No framebuffer: plan only.
	_, err = r.Draw(context.Background(), TargetImage{})
	require.NoError(t, err)
	assert.Len(t, fb.plans, 1)

	fb.err = errors.New("device lost")
	_, err = r.Draw(context.Background(), target)
	assert.ErrorIs(t, err, fb.err)

	r.Destroy()
	assert.True(t, fb.released)
}

func TestRendererImageAllocatorWithoutGPU(t *testing.T) {
	r := NewRenderer()
	defer r.Destroy()
	imgs, err := r.ImageAllocator().Allocate(swapchain.CreateInfo{
		Format: swapchain.FormatB8G8R8A8Unorm, Width: 4, Height: 4, FaceCount: 1, ArraySize: 2, MipCount: 1,
	}, 2)
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.IsType(t, &swapchain.MemoryImage{}, imgs[0])
	assert.Equal(t, uint32(2), imgs[0].ArraySize())
}

func TestQuadMesh(t *testing.T) {
	m := QuadMesh()
	assert.Len(t, m.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)
	assert.Equal(t, [2]float32{0, 1}, m.Vertices[0].UV)
}

func TestCylinderMesh(t *testing.T) {
	m, err := CylinderMesh(math32.Pi/2, 2, 8)
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 18)
	assert.Len(t, m.Indices, 48)

	// The arc is centered straight ahead on the unit circle.
	mid := m.Vertices[8].Position
	assert.InDelta(t, 0, mid[0], 1e-6)
	assert.InDelta(t, -1, mid[2], 1e-6)
	assert.InDelta(t, math32.Pi/8, mid[1], 1e-6)

	_, err = CylinderMesh(0, 1, 8)
	assert.Error(t, err)
	_, err = CylinderMesh(7, 1, 8)
	assert.Error(t, err)
	_, err = CylinderMesh(1, 0, 8)
	assert.Error(t, err)
	_, err = CylinderMesh(1, 1, 0)
	assert.Error(t, err)
}

func TestShaderKind(t *testing.T) {
	assert.Equal(t, shader.KindLayer, shaderKind(PipelineKey{Type: LayerQuad}))
	assert.Equal(t, shader.KindLayer, shaderKind(PipelineKey{Type: LayerProjectionDepth}))
	assert.Equal(t, shader.KindProjectionDepth, shaderKind(PipelineKey{Type: LayerProjectionDepth, Depth: true}))
	assert.Equal(t, shader.KindCube, shaderKind(PipelineKey{Type: LayerCube}))
	assert.Equal(t, shader.KindEquirect1, shaderKind(PipelineKey{Type: LayerEquirect1}))
}

func TestImageUsage(t *testing.T) {
	base := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst
	assert.Equal(t, base, imageUsage(swapchain.UsageSampled))
	assert.Equal(t, base|wgpu.TextureUsageRenderAttachment, imageUsage(swapchain.UsageColorAttachment))
	assert.Equal(t, base|wgpu.TextureUsageCopySrc|wgpu.TextureUsageStorageBinding,
		imageUsage(swapchain.UsageTransferSrc|swapchain.UsageUnorderedAccess))
}
