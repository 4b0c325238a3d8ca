package swapchain

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Format is a swapchain image format, numbered as the Vulkan format it corresponds to.
type Format int64

const (
	FormatR8G8B8A8Unorm  Format = 37
	FormatR8G8B8A8Srgb   Format = 43
	FormatB8G8R8A8Unorm  Format = 44
	FormatB8G8R8A8Srgb   Format = 50
	FormatD32Sfloat      Format = 126
	FormatD24UnormS8Uint Format = 129
)

type formatInfo struct {
	name  string
	wgpu  wgpu.TextureFormat
	depth bool
}

var formats = map[Format]formatInfo{
	FormatR8G8B8A8Srgb:   {"R8G8B8A8_SRGB", wgpu.TextureFormatRGBA8UnormSrgb, false},
	FormatR8G8B8A8Unorm:  {"R8G8B8A8_UNORM", wgpu.TextureFormatRGBA8Unorm, false},
	FormatB8G8R8A8Srgb:   {"B8G8R8A8_SRGB", wgpu.TextureFormatBGRA8UnormSrgb, false},
	FormatB8G8R8A8Unorm:  {"B8G8R8A8_UNORM", wgpu.TextureFormatBGRA8Unorm, false},
	FormatD24UnormS8Uint: {"D24_UNORM_S8_UINT", wgpu.TextureFormatDepth24PlusStencil8, true},
	FormatD32Sfloat:      {"D32_SFLOAT", wgpu.TextureFormatDepth32Float, true},
}

// SupportedFormats returns the formats clients may create swapchains with, preferred first.
//
// Returns:
//   - []Format: the supported formats
func SupportedFormats() []Format {
	return []Format{
		FormatR8G8B8A8Srgb,
		FormatR8G8B8A8Unorm,
		FormatB8G8R8A8Srgb,
		FormatB8G8R8A8Unorm,
		FormatD24UnormS8Uint,
		FormatD32Sfloat,
	}
}

// Supported reports whether f can back a swapchain.
func (f Format) Supported() bool {
	_, ok := formats[f]
	return ok
}

// IsDepth reports whether f is a depth or depth-stencil format.
func (f Format) IsDepth() bool {
	return formats[f].depth
}

// IsSRGB reports whether sampling f applies the sRGB transfer function.
func (f Format) IsSRGB() bool {
	return f == FormatR8G8B8A8Srgb || f == FormatB8G8R8A8Srgb
}

// WGPU returns the matching texture format, or TextureFormatUndefined for unsupported formats.
func (f Format) WGPU() wgpu.TextureFormat {
	if info, ok := formats[f]; ok {
		return info.wgpu
	}
	return wgpu.TextureFormatUndefined
}

// BytesPerPixel returns the texel size of f, or 0 for unsupported formats.
func (f Format) BytesPerPixel() uint32 {
	if f.Supported() {
		return 4
	}
	return 0
}

func (f Format) String() string {
	if info, ok := formats[f]; ok {
		return info.name
	}
	return fmt.Sprintf("Format(%d)", int64(f))
}
