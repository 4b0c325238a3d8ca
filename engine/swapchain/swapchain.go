// Package swapchain implements the client-facing ring of images the application renders into.
// Each image is ready, acquired or waited; the most recently released image is what the
// compositor samples.
package swapchain

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"golang.org/x/sync/semaphore"
)

// MaxImages is the largest image count a swapchain may have.
const MaxImages = 8

// InfiniteTimeout makes Wait block until the image is renderable.
const InfiniteTimeout int64 = math.MaxInt64

type ImageState int

const (
	ImageReady ImageState = iota
	ImageAcquired
	ImageWaited
)

func (s ImageState) String() string {
	switch s {
	case ImageReady:
		return "ready"
	case ImageAcquired:
		return "acquired"
	case ImageWaited:
		return "waited"
	default:
		return "unknown"
	}
}

// Usage is a bitmask of how the client intends to use the images.
type Usage uint32

const (
	UsageColorAttachment Usage = 1 << iota
	UsageDepthStencilAttachment
	UsageUnorderedAccess
	UsageTransferSrc
	UsageTransferDst
	UsageSampled
	UsageMutableFormat
)

// CreateFlags modify swapchain behavior.
type CreateFlags uint32

const (
	CreateProtectedContent CreateFlags = 1 << iota
	// CreateStatic swapchains have a single image that is acquired exactly once.
	CreateStatic
)

// CreateInfo describes a swapchain.
type CreateInfo struct {
	CreateFlags CreateFlags
	Usage       Usage
	Format      Format
	SampleCount uint32
	Width       uint32
	Height      uint32
	FaceCount   uint32
	ArraySize   uint32
	MipCount    uint32
}

// IsStatic reports whether the swapchain is created static.
func (c CreateInfo) IsStatic() bool {
	return c.CreateFlags&CreateStatic != 0
}

// Validate checks info against the formats and shapes the runtime supports.
//
// Returns:
//   - error: SwapchainFormatUnsupported for an unknown format, ValidationFailure for a bad shape
func (c CreateInfo) Validate() error {
	if !c.Format.Supported() {
		return result.Errorf(result.SwapchainFormatUnsupported, "format %v", c.Format)
	}
	if c.CreateFlags&CreateProtectedContent != 0 {
		return result.Errorf(result.FeatureUnsupported, "protected content swapchains")
	}
	switch {
	case c.Width == 0 || c.Height == 0:
		return result.Errorf(result.ValidationFailure, "zero sized swapchain %dx%d", c.Width, c.Height)
	case c.FaceCount != 1 && c.FaceCount != 6:
		return result.Errorf(result.ValidationFailure, "face count %d must be 1 or 6", c.FaceCount)
	case c.ArraySize == 0:
		return result.Errorf(result.ValidationFailure, "array size must be at least 1")
	case c.MipCount == 0:
		return result.Errorf(result.ValidationFailure, "mip count must be at least 1")
	case c.SampleCount > 1:
		return result.Errorf(result.FeatureUnsupported, "sample count %d", c.SampleCount)
	}
	return nil
}

// Swapchain is a ring of client-writable images.
// A single swapchain must not be used concurrently by several client threads; Hold and Unhold
// may be called by the compositor at any time.
type Swapchain interface {
	// Acquire claims the next ready image.
	//
	// Returns:
	//   - uint32: the index of the acquired image
	//   - error: CallOrderInvalid if no image is ready or a static swapchain was already acquired
	Acquire() (uint32, error)

	// Wait blocks until the oldest acquired image is renderable and marks it waited.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//   - timeoutNs: how long to wait, InfiniteTimeout to wait forever
	//
	// Returns:
	//   - result.Result: Success, or TimeoutExpired with no state change
	//   - error: CallOrderInvalid if an image is already waited or none is acquired
	Wait(ctx context.Context, timeoutNs int64) (result.Result, error)

	// Release hands the waited image back to the ring; it becomes the released image.
	//
	// Returns:
	//   - error: CallOrderInvalid if no image is waited
	Release() error

	// ReleasedIndex returns the most recently released image.
	//
	// Returns:
	//   - uint32: the image index
	//   - bool: false if nothing was released yet
	ReleasedIndex() (uint32, bool)

	// ImageState returns the state of image i, ImageReady for an out of range index.
	ImageState(i uint32) ImageState

	// Image returns image i.
	//
	// Parameters:
	//   - i: the image index
	//
	// Returns:
	//   - Image: the image
	//   - error: ValidationFailure for an out of range index, HandleInvalid once destroyed
	Image(i uint32) (Image, error)

	Images() []Image
	Info() CreateInfo

	// Hold marks image i in use by the compositor. The client's Wait on it blocks until the
	// matching Unhold. Holds nest.
	//
	// Returns:
	//   - bool: false if the index is out of range or the swapchain is destroyed
	Hold(i uint32) bool

	// Unhold drops a hold taken with Hold.
	Unhold(i uint32)

	// Destroy releases every image. Images still held are released on their last Unhold.
	Destroy()
}

type swapchainImpl struct {
	mu  *sync.Mutex
	log *slog.Logger

	info      CreateInfo
	count     int
	allocator ImageAllocator

	images []Image
	states []ImageState
	busy   []*semaphore.Weighted
	holds  []int

	// acquired holds acquired indices oldest first.
	acquired     []uint32
	waited       int
	released     int
	next         uint32
	acquiredOnce bool
	destroyed    bool
	imagesFreed  []bool
}

var _ Swapchain = &swapchainImpl{}

// New validates info and allocates the images.
//
// Parameters:
//   - info: the swapchain description
//   - options: functional options to configure the swapchain
//
// Returns:
//   - Swapchain: the swapchain
//   - error: a validation error from CreateInfo.Validate, LimitReached for a bad image count,
//     RuntimeFailure if the allocator fails
func New(info CreateInfo, options ...SwapchainBuilderOption) (Swapchain, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	s := &swapchainImpl{
		mu:        &sync.Mutex{},
		log:       common.ComponentLogger("swapchain"),
		info:      info,
		count:     3,
		allocator: NewMemoryAllocator(),
		waited:    -1,
		released:  -1,
	}

	for _, option := range options {
		option(s)
	}

	if info.IsStatic() {
		s.count = 1
	}
	if s.count < 1 || s.count > MaxImages {
		return nil, result.Errorf(result.LimitReached, "image count %d outside 1..%d", s.count, MaxImages)
	}

	images, err := s.allocator.Allocate(info, s.count)
	if err != nil {
		return nil, result.Errorf(result.RuntimeFailure, "allocating %d images: %v", s.count, err)
	}
	s.images = images
	s.states = make([]ImageState, len(images))
	s.holds = make([]int, len(images))
	s.imagesFreed = make([]bool, len(images))
	s.busy = make([]*semaphore.Weighted, len(images))
	for i := range s.busy {
		s.busy[i] = semaphore.NewWeighted(1)
	}

	s.log.Debug("created swapchain", "format", info.Format, "width", info.Width, "height", info.Height, "images", len(images))
	return s, nil
}

func (s *swapchainImpl) Acquire() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return 0, result.ErrHandleInvalid
	}
	if s.info.IsStatic() && s.acquiredOnce {
		return 0, result.Errorf(result.CallOrderInvalid, "static swapchain already acquired")
	}

	n := uint32(len(s.images))
	for step := range n {
		i := (s.next + step) % n
		if s.states[i] != ImageReady {
			continue
		}
		s.states[i] = ImageAcquired
		s.acquired = append(s.acquired, i)
		s.next = (i + 1) % n
		s.acquiredOnce = true
		return i, nil
	}
	return 0, result.Errorf(result.CallOrderInvalid, "all %d images are acquired", n)
}

func (s *swapchainImpl) Wait(ctx context.Context, timeoutNs int64) (result.Result, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return result.Success, result.ErrHandleInvalid
	}
	if s.waited >= 0 {
		s.mu.Unlock()
		return result.Success, result.Errorf(result.CallOrderInvalid, "image %d is already waited", s.waited)
	}
	if len(s.acquired) == 0 {
		s.mu.Unlock()
		return result.Success, result.Errorf(result.CallOrderInvalid, "no image is acquired")
	}
	idx := s.acquired[0]
	busy := s.busy[idx]
	s.mu.Unlock()

	if !s.waitRenderable(ctx, busy, timeoutNs) {
		if err := ctx.Err(); err != nil {
			return result.Success, err
		}
		return result.TimeoutExpired, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return result.Success, result.ErrHandleInvalid
	}
	s.acquired = s.acquired[1:]
	s.states[idx] = ImageWaited
	s.waited = int(idx)
	return result.Success, nil
}

// waitRenderable blocks until the compositor holds no reference to the image.
func (s *swapchainImpl) waitRenderable(ctx context.Context, busy *semaphore.Weighted, timeoutNs int64) bool {
	if timeoutNs <= 0 {
		if !busy.TryAcquire(1) {
			return false
		}
		busy.Release(1)
		return true
	}

	waitCtx := ctx
	if timeoutNs != InfiniteTimeout {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutNs))
		defer cancel()
	}
	if err := busy.Acquire(waitCtx, 1); err != nil {
		return false
	}
	busy.Release(1)
	return true
}

func (s *swapchainImpl) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return result.ErrHandleInvalid
	}
	if s.waited < 0 {
		return result.Errorf(result.CallOrderInvalid, "no image is waited")
	}
	s.states[s.waited] = ImageReady
	s.released = s.waited
	s.waited = -1
	return nil
}

func (s *swapchainImpl) ReleasedIndex() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released < 0 {
		return 0, false
	}
	return uint32(s.released), true
}

func (s *swapchainImpl) ImageState(i uint32) ImageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(i) >= len(s.states) {
		return ImageReady
	}
	return s.states[i]
}

func (s *swapchainImpl) Image(i uint32) (Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, result.ErrHandleInvalid
	}
	if int(i) >= len(s.images) {
		return nil, result.Errorf(result.ValidationFailure, "image index %d out of %d", i, len(s.images))
	}
	return s.images[i], nil
}

func (s *swapchainImpl) Images() []Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Image, len(s.images))
	copy(out, s.images)
	return out
}

func (s *swapchainImpl) Info() CreateInfo {
	return s.info
}

func (s *swapchainImpl) Hold(i uint32) bool {
	s.mu.Lock()
	if s.destroyed || int(i) >= len(s.images) {
		s.mu.Unlock()
		return false
	}
	s.holds[i]++
	first := s.holds[i] == 1
	busy := s.busy[i]
	s.mu.Unlock()

	if first {
		// A client Wait only holds the semaphore for an instant.
		_ = busy.Acquire(context.Background(), 1)
	}
	return true
}

func (s *swapchainImpl) Unhold(i uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(i) >= len(s.holds) || s.holds[i] == 0 {
		s.log.Warn("unbalanced unhold", "image", i)
		return
	}
	s.holds[i]--
	if s.holds[i] > 0 {
		return
	}
	s.busy[i].Release(1)
	if s.destroyed {
		s.freeImage(int(i))
	}
}

func (s *swapchainImpl) freeImage(i int) {
	if s.imagesFreed[i] {
		return
	}
	s.images[i].Release()
	s.imagesFreed[i] = true
}

func (s *swapchainImpl) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true
	for i := range s.images {
		if s.holds[i] == 0 {
			s.freeImage(i)
		}
	}
	s.log.Debug("destroyed swapchain", "images", len(s.images))
}
