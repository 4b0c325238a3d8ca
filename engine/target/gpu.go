package target

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// GPU is the WebGPU device shared by a target and the layer renderer drawing into it.
type GPU struct {
	mu *sync.Mutex

	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	// Surface is nil for offscreen devices.
	Surface *wgpu.Surface
}

// NewGPU creates a WebGPU instance, adapter and device. When surfaceDescriptor is not nil the
// adapter is chosen to be compatible with the surface created from it.
//
// Parameters:
//   - surfaceDescriptor: platform surface to present to, or nil for an offscreen device
//   - forceFallbackAdapter: request the software adapter
//
// Returns:
//   - *GPU: the device bundle
//   - error: error if no adapter or device is available
func NewGPU(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool) (*GPU, error) {
	g := &GPU{
		mu:       &sync.Mutex{},
		Instance: wgpu.CreateInstance(nil),
	}
	if surfaceDescriptor != nil {
		g.Surface = g.Instance.CreateSurface(surfaceDescriptor)
	}

	a, err := g.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    g.Surface,
	})
	if err != nil {
		g.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	g.Adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Compositor Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		g.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	g.Device = d
	g.Queue = d.GetQueue()
	return g, nil
}

// Lock serializes queue submissions between the renderer and the target.
func (g *GPU) Lock() { g.mu.Lock() }

// Unlock releases Lock.
func (g *GPU) Unlock() { g.mu.Unlock() }

// Release frees every object in the bundle. Safe on a partially created bundle.
func (g *GPU) Release() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Queue != nil {
		g.Queue.Release()
		g.Queue = nil
	}
	if g.Device != nil {
		g.Device.Release()
		g.Device = nil
	}
	if g.Adapter != nil {
		g.Adapter.Release()
		g.Adapter = nil
	}
	if g.Surface != nil {
		g.Surface.Release()
		g.Surface = nil
	}
	if g.Instance != nil {
		g.Instance.Release()
		g.Instance = nil
	}
}
