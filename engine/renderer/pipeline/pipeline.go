package pipeline

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// DepthFormat is the depth attachment format of every compositor pass.
const DepthFormat = wgpu.TextureFormatDepth24Plus

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	mu *sync.Mutex
	// key is the unique identifier for this pipeline, used for caching and lookups
	key    string
	shader shader.Shader

	colorFormat wgpu.TextureFormat
	sampleCount uint32

	depthWriteEnabled bool
	blendEnabled      bool
	cullMode          wgpu.CullMode
	topology          wgpu.PrimitiveTopology
	frontFace         wgpu.FrontFace
	writeMask         wgpu.ColorWriteMask
	blendState        *wgpu.BlendState

	// GPU objects, nil until SetCompiled.
	module          *wgpu.ShaderModule
	bindGroupLayout *wgpu.BindGroupLayout
	pipelineLayout  *wgpu.PipelineLayout
	renderPipeline  *wgpu.RenderPipeline
}

// Pipeline is one compositor render pipeline: a layer program plus its fixed-function state.
// The description is pure data; the GPU objects are attached once the backend compiles it.
type Pipeline interface {
	// Key returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	Key() string

	// Shader returns the layer program the pipeline runs.
	Shader() shader.Shader

	// ColorFormat returns the format of the color attachment the pipeline renders into.
	ColorFormat() wgpu.TextureFormat

	// DepthWriteEnabled reports whether the pipeline writes the depth attachment.
	DepthWriteEnabled() bool

	// BlendEnabled reports whether the pipeline blends over the color attachment.
	BlendEnabled() bool

	// BlendState returns the blend state used when blending is enabled.
	//
	// Returns:
	//   - *wgpu.BlendState: the blend state, or nil if blending is disabled
	BlendState() *wgpu.BlendState

	// Descriptor builds the render pipeline descriptor from the description and the given
	// module and layout.
	//
	// Parameters:
	//   - module: the compiled shader module
	//   - layout: the pipeline layout holding bind group 0
	//
	// Returns:
	//   - *wgpu.RenderPipelineDescriptor: the descriptor
	Descriptor(module *wgpu.ShaderModule, layout *wgpu.PipelineLayout) *wgpu.RenderPipelineDescriptor

	// SetCompiled attaches the GPU objects created from the description. The pipeline owns them afterwards.
	//
	// Parameters:
	//   - module: the shader module
	//   - bgl: the layout of bind group 0
	//   - layout: the pipeline layout
	//   - rp: the render pipeline
	SetCompiled(module *wgpu.ShaderModule, bgl *wgpu.BindGroupLayout, layout *wgpu.PipelineLayout, rp *wgpu.RenderPipeline)

	// RenderPipeline returns the compiled pipeline, or nil before SetCompiled.
	RenderPipeline() *wgpu.RenderPipeline

	// BindGroupLayout returns the layout of bind group 0, or nil before SetCompiled.
	BindGroupLayout() *wgpu.BindGroupLayout

	// Release frees the compiled GPU objects. The description stays usable.
	Release()
}

var _ Pipeline = &pipeline{}

// PremultipliedBlend composites premultiplied color over the destination.
func PremultipliedBlend() *wgpu.BlendState {
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}
}

// NewPipeline is the entry point to create a new Pipeline.
//
// Parameters:
//   - key: the unique key for this pipeline
//   - s: the layer program
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified configuration
func NewPipeline(key string, s shader.Shader, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		mu:          &sync.Mutex{},
		key:         key,
		shader:      s,
		colorFormat: wgpu.TextureFormatBGRA8UnormSrgb,
		sampleCount: 1,
		cullMode:    wgpu.CullModeNone,
		topology:    wgpu.PrimitiveTopologyTriangleList,
		frontFace:   wgpu.FrontFaceCCW,
		writeMask:   wgpu.ColorWriteMaskAll,
		blendState:  PremultipliedBlend(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Key() string {
	return p.key
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) ColorFormat() wgpu.TextureFormat {
	return p.colorFormat
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) BlendState() *wgpu.BlendState {
	if !p.blendEnabled {
		return nil
	}
	return p.blendState
}

func (p *pipeline) Descriptor(module *wgpu.ShaderModule, layout *wgpu.PipelineLayout) *wgpu.RenderPipelineDescriptor {
	target := wgpu.ColorTargetState{
		Format:    p.colorFormat,
		WriteMask: p.writeMask,
		Blend:     p.BlendState(),
	}
	depthCompare := wgpu.CompareFunctionAlways
	return &wgpu.RenderPipelineDescriptor{
		Label:  p.key + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: p.shader.VertexEntryPoint(),
			Buffers:    []wgpu.VertexBufferLayout{p.shader.VertexLayout()},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: p.shader.FragmentEntryPoint(),
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.topology,
			FrontFace: p.frontFace,
			CullMode:  p.cullMode,
		},
		Multisample: wgpu.MultisampleState{
			Count: p.sampleCount,
			Mask:  0xFFFFFFFF,
		},
		// Layers are painted in submission order, so depth is never tested, only recorded.
		DepthStencil: &wgpu.DepthStencilState{
			Format:            DepthFormat,
			DepthWriteEnabled: p.depthWriteEnabled,
			DepthCompare:      depthCompare,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
	}
}

func (p *pipeline) SetCompiled(module *wgpu.ShaderModule, bgl *wgpu.BindGroupLayout, layout *wgpu.PipelineLayout, rp *wgpu.RenderPipeline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.module, p.bindGroupLayout, p.pipelineLayout, p.renderPipeline = module, bgl, layout, rp
}

func (p *pipeline) RenderPipeline() *wgpu.RenderPipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderPipeline
}

func (p *pipeline) BindGroupLayout() *wgpu.BindGroupLayout {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindGroupLayout
}

func (p *pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	if p.pipelineLayout != nil {
		p.pipelineLayout.Release()
		p.pipelineLayout = nil
	}
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
		p.bindGroupLayout = nil
	}
	if p.module != nil {
		p.module.Release()
		p.module = nil
	}
}
