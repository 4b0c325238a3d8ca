package pipeline

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorOpaque(t *testing.T) {
	s, err := shader.Load(shader.KindLayer)
	require.NoError(t, err)

	p := NewPipeline("quad/opaque", s, WithColorFormat(wgpu.TextureFormatRGBA8Unorm))
	assert.Equal(t, "quad/opaque", p.Key())
	assert.False(t, p.BlendEnabled())
	assert.Nil(t, p.BlendState())

	desc := p.Descriptor(nil, nil)
	assert.Equal(t, "vs_main", desc.Vertex.EntryPoint)
	require.Len(t, desc.Vertex.Buffers, 1)
	assert.Equal(t, uint64(20), desc.Vertex.Buffers[0].ArrayStride)
	require.Len(t, desc.Fragment.Targets, 1)
	assert.Equal(t, wgpu.TextureFormatRGBA8Unorm, desc.Fragment.Targets[0].Format)
	assert.Nil(t, desc.Fragment.Targets[0].Blend)
	assert.Equal(t, DepthFormat, desc.DepthStencil.Format)
	assert.False(t, desc.DepthStencil.DepthWriteEnabled)
	assert.Equal(t, wgpu.CompareFunctionAlways, desc.DepthStencil.DepthCompare)
	assert.Equal(t, uint32(1), desc.Multisample.Count)
}

func TestDescriptorBlendedDepth(t *testing.T) {
	s, err := shader.Load(shader.KindProjectionDepth)
	require.NoError(t, err)

	p := NewPipeline("projection_depth/premultiplied/depth", s,
		WithBlendEnabled(true),
		WithDepthWriteEnabled(true),
		WithSampleCount(0),
	)
	desc := p.Descriptor(nil, nil)
	blend := desc.Fragment.Targets[0].Blend
	require.NotNil(t, blend)
	assert.Equal(t, wgpu.BlendFactorOne, blend.Color.SrcFactor)
	assert.Equal(t, wgpu.BlendFactorOneMinusSrcAlpha, blend.Color.DstFactor)
	assert.True(t, desc.DepthStencil.DepthWriteEnabled)
	assert.Equal(t, uint32(1), desc.Multisample.Count)
}

func TestReleaseBeforeCompile(t *testing.T) {
	s, err := shader.Load(shader.KindCube)
	require.NoError(t, err)
	p := NewPipeline("cube/opaque", s)
	assert.Nil(t, p.RenderPipeline())
	assert.NotPanics(t, p.Release)
}
