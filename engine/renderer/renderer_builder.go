package renderer

import (
	"github.com/Carmen-Shannon/oxy-xr/engine/target"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithGPU composites on the given device. Without it the renderer only plans frames.
//
// Parameters:
//   - gpu: the device bundle shared with the target
//
// Returns:
//   - RendererBuilderOption: a function that applies the GPU option to a renderer
func WithGPU(gpu *target.GPU) RendererBuilderOption {
	return func(r *renderer) {
		r.gpu = gpu
	}
}

// WithWorkers sets how many workers plan layers in parallel.
//
// Parameters:
//   - n: the worker count, values below 1 are ignored
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker count to a renderer
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithBackend replaces the GPU backend, typically with a recording fake.
//
// Parameters:
//   - b: the backend
//
// Returns:
//   - RendererBuilderOption: a function that applies the backend to a renderer
func WithBackend(b RendererBackend) RendererBuilderOption {
	return func(r *renderer) {
		r.backend = b
	}
}

// WithCylinderSegments sets how finely cylinder layers are tessellated.
//
// Parameters:
//   - n: the segment count, values below 1 are ignored
//
// Returns:
//   - RendererBuilderOption: a function that applies the segment count to a renderer
func WithCylinderSegments(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.cylinderSegments = n
		}
	}
}
