// package common contains plain data types and helpers shared by every runtime package.
// They are not interface-wrapped structs, just plain structs that express commonly used data-types.
package common

import "github.com/cogentcore/webgpu/wgpu"

// Offset2D is an integer pixel offset.
type Offset2D struct {
	X, Y int32
}

// Extent2D is an integer pixel size.
type Extent2D struct {
	Width, Height int32
}

// Rect2D is a pixel rectangle inside an image.
type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

// Fits reports whether r lies entirely inside an image of the given size and has a positive area.
//
// Parameters:
//   - width: image width in pixels
//   - height: image height in pixels
//
// Returns:
//   - bool: true if the rectangle is non-empty and inside the image
func (r Rect2D) Fits(width, height uint32) bool {
	if r.Offset.X < 0 || r.Offset.Y < 0 || r.Extent.Width <= 0 || r.Extent.Height <= 0 {
		return false
	}
	return int64(r.Offset.X)+int64(r.Extent.Width) <= int64(width) &&
		int64(r.Offset.Y)+int64(r.Extent.Height) <= int64(height)
}

// NormalizedRect is a sub-rectangle in texture coordinates, [0, 1] on both axes.
type NormalizedRect struct {
	X, Y, W, H float32
}

// Normalize converts a pixel rectangle into texture coordinates for an image of the given size.
func (r Rect2D) Normalize(width, height uint32) NormalizedRect {
	return NormalizedRect{
		X: float32(r.Offset.X) / float32(width),
		Y: float32(r.Offset.Y) / float32(height),
		W: float32(r.Extent.Width) / float32(width),
		H: float32(r.Extent.Height) / float32(height),
	}
}

// SamplerStagingData holds the configuration for a sampler binding pending GPU creation.
// Zero fields fall back to linear filtering with clamp-to-edge addressing.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range.
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail.
	LodMinClamp, LodMaxClamp float32
}
