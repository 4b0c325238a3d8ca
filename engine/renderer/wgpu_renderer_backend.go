package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/Carmen-Shannon/oxy-xr/engine/target"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	bindingUniform = 0
	bindingSampler = 1
	bindingColor   = 2
	bindingDepth   = 3
)

type pipelineCacheKey struct {
	key    PipelineKey
	format wgpu.TextureFormat
}

// slotKey identifies the uniform buffer and bind group of one layer in one eye.
type slotKey struct {
	layer, eye int
}

// upload is a texture holding the contents of a host memory image.
type upload struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
	frame   uint64
}

type wgpuRendererBackendImpl struct {
	mu  *sync.Mutex
	log *slog.Logger
	gpu *target.GPU

	cylinderSegments int

	pipelines map[pipelineCacheKey]pipeline.Pipeline
	meshes    map[Geometry]bind_group_provider.BindGroupProvider
	slots     map[slotKey]bind_group_provider.BindGroupProvider
	uploads   map[*swapchain.MemoryImage]*upload
	sampler   *wgpu.Sampler

	depthTexture *wgpu.Texture
	depthView    *wgpu.TextureView
	depthExtent  common.Extent2D

	// writes are the uniform updates of the frame being recorded.
	writes []bind_group_provider.UniformWrite
	frame  uint64
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(gpu *target.GPU, cylinderSegments int) *wgpuRendererBackendImpl {
	return &wgpuRendererBackendImpl{
		mu:               &sync.Mutex{},
		log:              common.ComponentLogger("renderer.wgpu"),
		gpu:              gpu,
		cylinderSegments: cylinderSegments,
		pipelines:        make(map[pipelineCacheKey]pipeline.Pipeline),
		meshes:           make(map[Geometry]bind_group_provider.BindGroupProvider),
		slots:            make(map[slotKey]bind_group_provider.BindGroupProvider),
		uploads:          make(map[*swapchain.MemoryImage]*upload),
	}
}

// shaderKind picks the layer program for a pipeline key.
func shaderKind(key PipelineKey) shader.Kind {
	switch key.Type {
	case LayerEquirect1:
		return shader.KindEquirect1
	case LayerEquirect2:
		return shader.KindEquirect2
	case LayerCube:
		return shader.KindCube
	case LayerProjectionDepth:
		if key.Depth {
			return shader.KindProjectionDepth
		}
	}
	return shader.KindLayer
}

func (b *wgpuRendererBackendImpl) Allocator() swapchain.ImageAllocator {
	return &gpuAllocator{gpu: b.gpu}
}

func (b *wgpuRendererBackendImpl) EnsurePipeline(key PipelineKey, format wgpu.TextureFormat) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gpu.Lock()
	defer b.gpu.Unlock()
	_, err := b.ensurePipeline(key, format)
	return err
}

// ensurePipeline compiles and caches a pipeline. Callers hold b.mu and the GPU lock.
func (b *wgpuRendererBackendImpl) ensurePipeline(key PipelineKey, format wgpu.TextureFormat) (pipeline.Pipeline, error) {
	ck := pipelineCacheKey{key: key, format: format}
	if p, ok := b.pipelines[ck]; ok {
		return p, nil
	}

	s, err := shader.Load(shaderKind(key))
	if err != nil {
		return nil, err
	}
	p := pipeline.NewPipeline(key.String(), s,
		pipeline.WithColorFormat(format),
		pipeline.WithBlendEnabled(key.Blend != BlendOpaque),
		pipeline.WithDepthWriteEnabled(key.Depth),
	)

	device := b.gpu.Device
	module, err := device.CreateShaderModule(s.Module())
	if err != nil {
		return nil, fmt.Errorf("shader module %s: %w", s.Key(), err)
	}
	bgl, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   key.String(),
		Entries: s.BindGroupLayoutEntries(),
	})
	if err != nil {
		module.Release()
		return nil, fmt.Errorf("bind group layout %s: %w", key, err)
	}
	layout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            key.String(),
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		bgl.Release()
		module.Release()
		return nil, fmt.Errorf("pipeline layout %s: %w", key, err)
	}
	rp, err := device.CreateRenderPipeline(p.Descriptor(module, layout))
	if err != nil {
		layout.Release()
		bgl.Release()
		module.Release()
		return nil, fmt.Errorf("render pipeline %s: %w", key, err)
	}
	p.SetCompiled(module, bgl, layout, rp)
	b.pipelines[ck] = p
	b.log.Debug("compiled pipeline", "key", key.String(), "format", format)
	return p, nil
}

func (b *wgpuRendererBackendImpl) ensureSampler() error {
	if b.sampler != nil {
		return nil
	}
	var staging common.SamplerStagingData
	samp, err := b.gpu.Device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Layer Sampler",
		AddressModeU:  common.Coalesce(staging.AddressModeU, wgpu.AddressModeClampToEdge),
		AddressModeV:  common.Coalesce(staging.AddressModeV, wgpu.AddressModeClampToEdge),
		AddressModeW:  common.Coalesce(staging.AddressModeW, wgpu.AddressModeClampToEdge),
		MagFilter:     common.Coalesce(staging.MagFilter, wgpu.FilterModeLinear),
		MinFilter:     common.Coalesce(staging.MinFilter, wgpu.FilterModeLinear),
		MipmapFilter:  common.Coalesce(staging.MipmapFilter, wgpu.MipmapFilterModeLinear),
		LodMinClamp:   common.Coalesce(staging.LodMinClamp, 0.0),
		LodMaxClamp:   common.Coalesce(staging.LodMaxClamp, 32.0),
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}
	b.sampler = samp
	return nil
}

func (b *wgpuRendererBackendImpl) ensureDepth(extent common.Extent2D) error {
	if b.depthView != nil && b.depthExtent == extent {
		return nil
	}
	b.releaseDepth()
	tex, err := b.gpu.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Compositor Depth",
		Size: wgpu.Extent3D{
			Width:              uint32(extent.Width),
			Height:             uint32(extent.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        pipeline.DepthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return err
	}
	b.depthTexture, b.depthView, b.depthExtent = tex, view, extent
	return nil
}

func (b *wgpuRendererBackendImpl) releaseDepth() {
	if b.depthView != nil {
		b.depthView.Release()
		b.depthView = nil
	}
	if b.depthTexture != nil {
		b.depthTexture.Release()
		b.depthTexture = nil
	}
}

// mesh returns the vertex and index buffers of a geometry, uploading them on first use.
func (b *wgpuRendererBackendImpl) mesh(g Geometry) (bind_group_provider.BindGroupProvider, error) {
	if m, ok := b.meshes[g]; ok {
		return m, nil
	}
	data := QuadMesh()
	if g.Kind == GeometryCylinder {
		var err error
		if data, err = CylinderMesh(g.CentralAngle, g.AspectRatio, b.cylinderSegments); err != nil {
			return nil, err
		}
	}

	vertexData := common.SliceToBytes(data.Vertices)
	indexData := common.SliceToBytes(data.Indices)
	device, queue := b.gpu.Device, b.gpu.Queue
	vb, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Layer Mesh Vertex Buffer",
		Size:  uint64(len(vertexData)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	ib, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Layer Mesh Index Buffer",
		Size:  uint64(len(indexData)),
		Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		vb.Release()
		return nil, err
	}
	queue.WriteBuffer(vb, 0, vertexData)
	queue.WriteBuffer(ib, 0, indexData)

	m := bind_group_provider.NewBindGroupProvider(fmt.Sprintf("mesh %d", g.Kind))
	m.SetMesh(vb, ib, len(data.Indices))
	b.meshes[g] = m
	return m, nil
}

// slot returns the uniform buffer holder of a draw, creating it on first use.
func (b *wgpuRendererBackendImpl) slot(d *Draw) (bind_group_provider.BindGroupProvider, error) {
	k := slotKey{layer: d.Layer, eye: d.Eye}
	if s, ok := b.slots[k]; ok {
		return s, nil
	}
	buf, err := b.gpu.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: fmt.Sprintf("Layer %d Eye %d Uniform", d.Layer, d.Eye),
		Size:  uint64(len(common.StructToBytes(&d.Uniform))),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	s := bind_group_provider.NewBindGroupProvider(
		fmt.Sprintf("layer %d eye %d", d.Layer, d.Eye),
		bind_group_provider.WithBuffer(bindingUniform, buf),
		bind_group_provider.WithSampler(bindingSampler, b.sampler),
	)
	b.slots[k] = s
	return s, nil
}

// view returns the sampling view of a sub-image, uploading host memory images once per frame.
func (b *wgpuRendererBackendImpl) view(img *SubImage) (*wgpu.TextureView, error) {
	switch im := img.Image.(type) {
	case *GPUImage:
		if v := im.View(); v != nil {
			return v, nil
		}
		return nil, fmt.Errorf("swapchain image was released")
	case *swapchain.MemoryImage:
		return b.upload(im)
	case nil:
		return nil, fmt.Errorf("layer has no image")
	default:
		return nil, fmt.Errorf("unsupported image type %T", img.Image)
	}
}

func (b *wgpuRendererBackendImpl) upload(im *swapchain.MemoryImage) (*wgpu.TextureView, error) {
	u, ok := b.uploads[im]
	if ok && u.frame == b.frame {
		return u.view, nil
	}
	pixels := im.Pixels()
	if pixels == nil {
		return nil, fmt.Errorf("swapchain image was released")
	}
	if im.Format() == swapchain.FormatD24UnormS8Uint {
		return nil, fmt.Errorf("depth format %v cannot be uploaded from host memory", im.Format())
	}

	ext := im.Extent()
	size := wgpu.Extent3D{
		Width:              uint32(ext.Width),
		Height:             uint32(ext.Height),
		DepthOrArrayLayers: im.ArraySize(),
	}
	if !ok {
		tex, err := b.gpu.Device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         "Layer Upload",
			Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
			Dimension:     wgpu.TextureDimension2D,
			Size:          size,
			Format:        im.Format().WGPU(),
			MipLevelCount: 1,
			SampleCount:   1,
		})
		if err != nil {
			return nil, err
		}
		viewDesc := &wgpu.TextureViewDescriptor{
			Format:          im.Format().WGPU(),
			Dimension:       wgpu.TextureViewDimension2DArray,
			MipLevelCount:   1,
			ArrayLayerCount: im.ArraySize(),
			Aspect:          wgpu.TextureAspectAll,
		}
		if im.ArraySize() == 6 {
			viewDesc.Dimension = wgpu.TextureViewDimensionCube
		}
		view, err := tex.CreateView(viewDesc)
		if err != nil {
			tex.Release()
			return nil, err
		}
		u = &upload{texture: tex, view: view}
		b.uploads[im] = u
	}

	b.gpu.Queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  u.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(ext.Width) * im.Format().BytesPerPixel(),
			RowsPerImage: uint32(ext.Height),
		},
		&size,
	)
	u.frame = b.frame
	return u.view, nil
}

// pruneUploads drops textures of memory images that were released by their swapchain.
func (b *wgpuRendererBackendImpl) pruneUploads() {
	for im, u := range b.uploads {
		if im.Pixels() != nil {
			continue
		}
		u.view.Release()
		u.texture.Release()
		delete(b.uploads, im)
	}
}

// bind makes sure the slot's bind group references the draw's images.
func (b *wgpuRendererBackendImpl) bind(s bind_group_provider.BindGroupProvider, p pipeline.Pipeline, d *Draw) error {
	views := make(map[int]*wgpu.TextureView, 2)
	color, err := b.view(&d.Image)
	if err != nil {
		return fmt.Errorf("layer %d: %w", d.Layer, err)
	}
	views[bindingColor] = color
	if d.Depth != nil {
		depth, err := b.view(d.Depth)
		if err != nil {
			return fmt.Errorf("layer %d depth: %w", d.Layer, err)
		}
		views[bindingDepth] = depth
	}
	if s.Bound(views) {
		return nil
	}

	entries := []wgpu.BindGroupEntry{
		{Binding: bindingUniform, Buffer: s.Buffer(bindingUniform), Offset: 0, Size: wgpu.WholeSize},
		{Binding: bindingSampler, Sampler: s.Sampler(bindingSampler)},
		{Binding: bindingColor, TextureView: color},
	}
	if depth, ok := views[bindingDepth]; ok {
		entries = append(entries, wgpu.BindGroupEntry{Binding: bindingDepth, TextureView: depth})
	}
	bg, err := b.gpu.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   s.Label() + " Bind Group",
		Layout:  p.BindGroupLayout(),
		Entries: entries,
	})
	if err != nil {
		return err
	}
	s.SetBindGroup(bg)
	s.SetTextureView(bindingColor, color)
	if depth, ok := views[bindingDepth]; ok {
		s.SetTextureView(bindingDepth, depth)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) Render(ctx context.Context, t TargetImage, plan *FramePlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.View == nil {
		return fmt.Errorf("render target has no view")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.gpu.Lock()
	defer b.gpu.Unlock()
	b.frame++
	b.writes = b.writes[:0]

	if err := b.ensureSampler(); err != nil {
		return err
	}
	if err := b.ensureDepth(t.Extent); err != nil {
		return err
	}

	encoder, err := b.gpu.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "Compositor Frame"})
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "Compositor Pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       t.View,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})

	half := uint32(t.Extent.Width) / 2
	height := uint32(t.Extent.Height)
	var drawErr error
	for eye := range 2 {
		x := uint32(eye) * half
		pass.SetViewport(float32(x), 0, float32(half), float32(height), 0, 1)
		pass.SetScissorRect(x, 0, half, height)
		for i := range plan.Eyes[eye].Draws {
			if drawErr = b.draw(pass, t.Format, &plan.Eyes[eye].Draws[i]); drawErr != nil {
				break
			}
		}
		if drawErr != nil {
			break
		}
	}
	pass.End()
	pass.Release()
	if drawErr != nil {
		return drawErr
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer cmd.Release()
	if err := ctx.Err(); err != nil {
		return err
	}
	b.flushWrites()
	b.gpu.Queue.Submit(cmd)
	b.pruneUploads()
	return nil
}

func (b *wgpuRendererBackendImpl) draw(pass *wgpu.RenderPassEncoder, format wgpu.TextureFormat, d *Draw) error {
	p, err := b.ensurePipeline(d.Key, format)
	if err != nil {
		return err
	}
	m, err := b.mesh(d.Geometry)
	if err != nil {
		return err
	}
	s, err := b.slot(d)
	if err != nil {
		return err
	}
	if err := b.bind(s, p, d); err != nil {
		return err
	}
	b.writes = append(b.writes, bind_group_provider.UniformWrite{
		Provider: s,
		Binding:  bindingUniform,
		Data:     common.StructToBytes(&d.Uniform),
		Layer:    d.Layer,
	})

	pass.SetPipeline(p.RenderPipeline())
	pass.SetBindGroup(0, s.BindGroup(), nil)
	pass.SetVertexBuffer(0, m.VertexBuffer(), 0, wgpu.WholeSize)
	pass.SetIndexBuffer(m.IndexBuffer(), wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	pass.DrawIndexed(uint32(m.IndexCount()), 1, 0, 0, 0)
	return nil
}

// flushWrites queues the frame's uniform updates ahead of its command buffer.
func (b *wgpuRendererBackendImpl) flushWrites() {
	n := bind_group_provider.FlushWrites(b.gpu.Queue, b.writes)
	b.log.Log(context.Background(), common.LevelTrace, "uniforms flushed", "frame", b.frame, "writes", n, "recorded", len(b.writes))
	b.writes = b.writes[:0]
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gpu.Lock()
	defer b.gpu.Unlock()

	for k, s := range b.slots {
		s.Release()
		delete(b.slots, k)
	}
	for k, m := range b.meshes {
		m.Release()
		delete(b.meshes, k)
	}
	for k, p := range b.pipelines {
		p.Release()
		delete(b.pipelines, k)
	}
	for im, u := range b.uploads {
		u.view.Release()
		u.texture.Release()
		delete(b.uploads, im)
	}
	if b.sampler != nil {
		b.sampler.Release()
		b.sampler = nil
	}
	b.releaseDepth()
}
