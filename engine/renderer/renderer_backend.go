package renderer

import (
	"context"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based compositing backend.
	BackendTypeWGPU RendererBackendType = iota
)

// TargetImage is the framebuffer a frame is composited into. The left eye fills the left
// half and the right eye the right half.
type TargetImage struct {
	View   *wgpu.TextureView
	Extent common.Extent2D
	Format wgpu.TextureFormat
}

// RendererBackend records a FramePlan into GPU commands.
type RendererBackend interface {
	// EnsurePipeline compiles the pipeline for key if it is not cached.
	//
	// Parameters:
	//   - key: the pipeline to compile
	//   - format: the color attachment format
	//
	// Returns:
	//   - error: an error if the shader or pipeline could not be created
	EnsurePipeline(key PipelineKey, format wgpu.TextureFormat) error

	// Render draws plan into target and submits the commands.
	//
	// Parameters:
	//   - ctx: cancels before submission
	//   - t: the framebuffer
	//   - plan: the frame's draws
	//
	// Returns:
	//   - error: an error if any draw could not be recorded
	Render(ctx context.Context, t TargetImage, plan *FramePlan) error

	// Allocator returns the allocator for client swapchain images on the backend's device.
	Allocator() swapchain.ImageAllocator

	// Release frees every cached GPU object.
	Release()
}
