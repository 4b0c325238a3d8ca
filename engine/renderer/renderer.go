// Package renderer composites a frame's layers into the target framebuffer. Layer planning
// (matrices, uniforms, pipeline selection) is pure CPU work and runs on a worker pool; the
// backend records the plan into GPU commands.
package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/Carmen-Shannon/oxy-xr/engine/target"
)

// defaultFov is the horizontal and vertical angle of an eye before SetViews, 90 degrees.
const defaultFov float32 = 1.5707964

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu  *sync.Mutex
	log *slog.Logger

	views  [2]EyeView
	layers []Layer

	backendType      RendererBackendType
	backend          RendererBackend
	gpu              *target.GPU
	workers          int
	pool             worker.DynamicWorkerPool
	cylinderSegments int
	taskID           int
}

// Renderer composites layers for both eyes of the head-mounted display.
//
// One frame goes SetViews (per eye), SetLayers, then Draw. The renderer keeps the last
// views and layers, so redrawing an unchanged frame is Draw alone.
type Renderer interface {
	// SetViews sets where one eye looks from for the next draw.
	//
	// Parameters:
	//   - eye: 0 for the left eye, 1 for the right
	//   - fov: the eye's field of view
	//   - eyePose: the eye relative to the head
	//   - worldPose: the eye in the compositor's base space
	//
	// Returns:
	//   - error: an error if eye is out of range or a pose is invalid
	SetViews(eye int, fov common.Fov, eyePose, worldPose common.Pose) error

	// SetLayers replaces the layers of the next draw, in submission order.
	//
	// Parameters:
	//   - layers: the layers, at most MaxLayers
	//
	// Returns:
	//   - error: an error if there are too many layers
	SetLayers(layers []Layer) error

	// Plan computes the draws of the current views and layers without touching the GPU.
	//
	// Returns:
	//   - FramePlan: the draws of both eyes
	Plan() FramePlan

	// Draw plans the frame and records it into the target image. Without a GPU only the
	// plan is produced.
	//
	// Parameters:
	//   - ctx: cancels the draw before submission
	//   - t: the framebuffer to draw into
	//
	// Returns:
	//   - FramePlan: the plan that was drawn
	//   - error: an error if the backend failed to record or submit the frame
	Draw(ctx context.Context, t TargetImage) (FramePlan, error)

	// ImageAllocator returns the allocator client swapchains should use: device textures
	// when the renderer has a GPU, host memory otherwise.
	ImageAllocator() swapchain.ImageAllocator

	// Destroy releases the worker pool and every GPU object.
	Destroy()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the provided options.
//
// Parameters:
//   - options: a variadic list of RendererBuilderOption functions to configure the renderer
//
// Returns:
//   - Renderer: the renderer
func NewRenderer(options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:               &sync.Mutex{},
		log:              common.ComponentLogger("renderer"),
		backendType:      BackendTypeWGPU,
		workers:          min(runtime.NumCPU(), 4),
		cylinderSegments: DefaultCylinderSegments,
	}
	for i := range r.views {
		r.views[i] = EyeView{
			Fov:       common.SymmetricFov(defaultFov, defaultFov),
			EyePose:   common.IdentityPose(),
			WorldPose: common.IdentityPose(),
		}
	}
	for _, opt := range options {
		opt(r)
	}
	if r.backend == nil && r.gpu != nil && r.gpu.Device != nil {
		r.backend = newWGPURendererBackend(r.gpu, r.cylinderSegments)
	}
	r.pool = worker.NewDynamicWorkerPool(r.workers, 2*MaxLayers, time.Second)
	return r
}

func (r *renderer) SetViews(eye int, fov common.Fov, eyePose, worldPose common.Pose) error {
	if eye < 0 || eye > 1 {
		return fmt.Errorf("eye index %d out of range", eye)
	}
	if !eyePose.IsValid() || !worldPose.IsValid() {
		return fmt.Errorf("eye %d has an invalid pose", eye)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[eye] = EyeView{Fov: fov, EyePose: eyePose, WorldPose: worldPose}
	return nil
}

func (r *renderer) SetLayers(layers []Layer) error {
	if len(layers) > MaxLayers {
		return fmt.Errorf("%d layers exceed the limit of %d", len(layers), MaxLayers)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers[:0], layers...)
	return nil
}

func (r *renderer) Plan() FramePlan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.planLocked()
}

// planLocked plans every layer on the worker pool and assembles the results in submission order.
func (r *renderer) planLocked() FramePlan {
	eyes := [2]eyeMatrices{newEyeMatrices(r.views[0]), newEyeMatrices(r.views[1])}
	planned := make([][2]*Draw, len(r.layers))
	if len(r.layers) < 2 {
		for i := range r.layers {
			planned[i] = planLayer(&eyes, i, &r.layers[i])
		}
		return assemblePlan(&eyes, planned)
	}

	var wg sync.WaitGroup
	for i := range r.layers {
		wg.Add(1)
		idx := i
		r.taskID++
		r.pool.SubmitTask(worker.Task{
			ID: r.taskID,
			Do: func() (any, error) {
				defer wg.Done()
				planned[idx] = planLayer(&eyes, idx, &r.layers[idx])
				return nil, nil
			},
		})
	}
	wg.Wait()
	return assemblePlan(&eyes, planned)
}

func (r *renderer) Draw(ctx context.Context, t TargetImage) (FramePlan, error) {
	r.mu.Lock()
	plan := r.planLocked()
	backend := r.backend
	r.mu.Unlock()

	if backend == nil || t.View == nil {
		return plan, nil
	}
	if err := backend.Render(ctx, t, &plan); err != nil {
		r.log.Warn("frame render failed", "layers", plan.Layers, "error", err)
		return plan, fmt.Errorf("render frame: %w", err)
	}
	return plan, nil
}

func (r *renderer) ImageAllocator() swapchain.ImageAllocator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backend != nil {
		return r.backend.Allocator()
	}
	return swapchain.NewMemoryAllocator()
}

func (r *renderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil {
		r.pool.Stop()
		r.pool = nil
	}
	if r.backend != nil {
		r.backend.Release()
		r.backend = nil
	}
	r.layers = nil
}
