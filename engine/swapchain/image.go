package swapchain

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

// Image is one client-writable image of a swapchain. The compositor samples it once the
// client releases it.
type Image interface {
	// Extent returns the image size in pixels.
	Extent() common.Extent2D

	// ArraySize returns the number of array layers.
	ArraySize() uint32

	// Format returns the image format.
	Format() Format

	// Release frees the image's backing storage. Releasing twice is a no-op.
	Release()
}

// ImageAllocator creates the backing images of a swapchain. The renderer provides a GPU
// allocator; headless sessions and tests use NewMemoryAllocator.
type ImageAllocator interface {
	// Allocate creates count images described by info.
	//
	// Parameters:
	//   - info: the validated swapchain create info
	//   - count: the number of images to create
	//
	// Returns:
	//   - []Image: the images, len(count)
	//   - error: an error if any image could not be created; no images leak on failure
	Allocate(info CreateInfo, count int) ([]Image, error)
}

// MemoryImage is an image backed by host memory. Layers are stored back to back, rows tightly packed.
type MemoryImage struct {
	mu       *sync.Mutex
	extent   common.Extent2D
	layers   uint32
	format   Format
	pixels   []byte
	released bool
}

var _ Image = &MemoryImage{}

func (m *MemoryImage) Extent() common.Extent2D { return m.extent }

func (m *MemoryImage) ArraySize() uint32 { return m.layers }

func (m *MemoryImage) Format() Format { return m.format }

// Pixels returns the image storage. The slice is nil after Release.
func (m *MemoryImage) Pixels() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pixels
}

func (m *MemoryImage) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pixels = nil
	m.released = true
}

type memoryAllocator struct{}

var _ ImageAllocator = memoryAllocator{}

// NewMemoryAllocator returns an allocator that keeps image contents in host memory.
//
// Returns:
//   - ImageAllocator: the allocator
func NewMemoryAllocator() ImageAllocator {
	return memoryAllocator{}
}

func (memoryAllocator) Allocate(info CreateInfo, count int) ([]Image, error) {
	layers := info.ArraySize * info.FaceCount
	size := uint64(info.Width) * uint64(info.Height) * uint64(layers) * uint64(info.Format.BytesPerPixel())
	if size == 0 {
		return nil, fmt.Errorf("empty image %dx%d with %d layers", info.Width, info.Height, layers)
	}

	out := make([]Image, 0, count)
	for range count {
		out = append(out, &MemoryImage{
			mu:     &sync.Mutex{},
			extent: common.Extent2D{Width: int32(info.Width), Height: int32(info.Height)},
			layers: layers,
			format: info.Format,
			pixels: make([]byte, size),
		})
	}
	return out, nil
}
