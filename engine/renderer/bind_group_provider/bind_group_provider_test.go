package bind_group_provider

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
)

func TestBoundRequiresBindGroup(t *testing.T) {
	p := NewBindGroupProvider("slot")
	assert.Equal(t, "slot", p.Label())
	assert.False(t, p.Bound(map[int]*wgpu.TextureView{}))
}

func TestBoundComparesViews(t *testing.T) {
	p := NewBindGroupProvider("slot").(*bindGroupProvider)
	a, b := &wgpu.TextureView{}, &wgpu.TextureView{}
	p.bindGroup = &wgpu.BindGroup{}
	p.SetTextureView(2, a)

	assert.True(t, p.Bound(map[int]*wgpu.TextureView{2: a}))
	assert.False(t, p.Bound(map[int]*wgpu.TextureView{2: b}))
	assert.False(t, p.Bound(map[int]*wgpu.TextureView{2: a, 3: b}))
}

func TestReleaseForgetsBorrowed(t *testing.T) {
	p := NewBindGroupProvider("mesh")
	p.SetTextureView(2, &wgpu.TextureView{})
	p.SetSampler(1, &wgpu.Sampler{})
	p.Release()
	assert.Nil(t, p.TextureView(2))
	assert.Nil(t, p.Sampler(1))
	assert.Nil(t, p.BindGroup())
	assert.Zero(t, p.IndexCount())
}
