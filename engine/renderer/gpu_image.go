package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/Carmen-Shannon/oxy-xr/engine/target"
	"github.com/cogentcore/webgpu/wgpu"
)

// GPUImage is a swapchain image backed by a texture on the compositor's device. Clients
// render into Texture; the compositor samples View.
type GPUImage struct {
	mu      *sync.Mutex
	extent  common.Extent2D
	layers  uint32
	format  swapchain.Format
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

var _ swapchain.Image = &GPUImage{}

func (g *GPUImage) Extent() common.Extent2D { return g.extent }

func (g *GPUImage) ArraySize() uint32 { return g.layers }

func (g *GPUImage) Format() swapchain.Format { return g.format }

// Texture returns the backing texture, nil after Release.
func (g *GPUImage) Texture() *wgpu.Texture {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.texture
}

// View returns the sampling view: a 2D array view, or a cube view for six-face images.
func (g *GPUImage) View() *wgpu.TextureView {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view
}

func (g *GPUImage) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.view != nil {
		g.view.Release()
		g.view = nil
	}
	if g.texture != nil {
		g.texture.Release()
		g.texture = nil
	}
}

type gpuAllocator struct {
	gpu *target.GPU
}

var _ swapchain.ImageAllocator = &gpuAllocator{}

// imageUsage maps swapchain usage bits onto texture usage. Every image is sampled by the compositor.
func imageUsage(u swapchain.Usage) wgpu.TextureUsage {
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst
	if u&(swapchain.UsageColorAttachment|swapchain.UsageDepthStencilAttachment) != 0 {
		usage |= wgpu.TextureUsageRenderAttachment
	}
	if u&swapchain.UsageUnorderedAccess != 0 {
		usage |= wgpu.TextureUsageStorageBinding
	}
	if u&swapchain.UsageTransferSrc != 0 {
		usage |= wgpu.TextureUsageCopySrc
	}
	return usage
}

func (a *gpuAllocator) Allocate(info swapchain.CreateInfo, count int) ([]swapchain.Image, error) {
	layers := info.ArraySize * info.FaceCount
	desc := &wgpu.TextureDescriptor{
		Label: "Swapchain Image",
		Size: wgpu.Extent3D{
			Width:              info.Width,
			Height:             info.Height,
			DepthOrArrayLayers: layers,
		},
		MipLevelCount: info.MipCount,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        info.Format.WGPU(),
		Usage:         imageUsage(info.Usage),
	}
	viewDesc := &wgpu.TextureViewDescriptor{
		Format:          desc.Format,
		Dimension:       wgpu.TextureViewDimension2DArray,
		MipLevelCount:   info.MipCount,
		ArrayLayerCount: layers,
		Aspect:          wgpu.TextureAspectAll,
	}
	if info.FaceCount == 6 {
		viewDesc.Dimension = wgpu.TextureViewDimensionCube
	}
	if info.Format.IsDepth() {
		viewDesc.Aspect = wgpu.TextureAspectDepthOnly
	}

	a.gpu.Lock()
	defer a.gpu.Unlock()

	out := make([]swapchain.Image, 0, count)
	fail := func(err error) ([]swapchain.Image, error) {
		for _, img := range out {
			img.Release()
		}
		return nil, err
	}
	for i := range count {
		tex, err := a.gpu.Device.CreateTexture(desc)
		if err != nil {
			return fail(fmt.Errorf("swapchain image %d: %w", i, err))
		}
		view, err := tex.CreateView(viewDesc)
		if err != nil {
			tex.Release()
			return fail(fmt.Errorf("swapchain image %d view: %w", i, err))
		}
		out = append(out, &GPUImage{
			mu:      &sync.Mutex{},
			extent:  common.Extent2D{Width: int32(info.Width), Height: int32(info.Height)},
			layers:  layers,
			format:  info.Format,
			texture: tex,
			view:    view,
		})
	}
	return out, nil
}
