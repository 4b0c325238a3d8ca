package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxLayers is the most layers one frame may carry.
const MaxLayers = 16

// LayerType identifies the geometry a layer is composited with.
type LayerType int

const (
	LayerProjection LayerType = iota
	LayerProjectionDepth
	LayerQuad
	LayerCube
	LayerCylinder
	LayerEquirect1
	LayerEquirect2
)

func (t LayerType) String() string {
	switch t {
	case LayerProjection:
		return "projection"
	case LayerProjectionDepth:
		return "projection_depth"
	case LayerQuad:
		return "quad"
	case LayerCube:
		return "cube"
	case LayerCylinder:
		return "cylinder"
	case LayerEquirect1:
		return "equirect1"
	case LayerEquirect2:
		return "equirect2"
	}
	return fmt.Sprintf("LayerType(%d)", int(t))
}

// IsProjection reports whether the layer carries a full stereo view per eye.
func (t LayerType) IsProjection() bool {
	return t == LayerProjection || t == LayerProjectionDepth
}

// LayerFlags are the composition flags of a layer.
type LayerFlags uint32

const (
	// LayerBlendSourceAlpha blends the layer over what is behind it using its alpha channel.
	LayerBlendSourceAlpha LayerFlags = 1 << iota
	// LayerUnpremultipliedAlpha marks color channels that are not multiplied by alpha.
	LayerUnpremultipliedAlpha
	// LayerViewSpace places the layer relative to the eyes instead of the world.
	LayerViewSpace
	// LayerFlipY samples the image bottom-up.
	LayerFlipY
)

// Has reports whether every bit of mask is set.
func (f LayerFlags) Has(mask LayerFlags) bool {
	return f&mask == mask
}

// EyeVisibility is a bitmask of the eyes a layer is drawn for.
type EyeVisibility uint32

const (
	VisibleLeft EyeVisibility = 1 << iota
	VisibleRight

	VisibleBoth = VisibleLeft | VisibleRight
)

// Visible reports whether the bit for eye is set.
func (v EyeVisibility) Visible(eye int) bool {
	return v&(1<<eye) != 0
}

// SubImage references the region of a client swapchain image a layer samples.
type SubImage struct {
	Image      swapchain.Image
	Rect       common.Rect2D
	ArrayIndex uint32
}

// Layer is one compositing element of a frame, already validated and resolved to images.
// Sub holds the left and right eye images; mono layers repeat the same image.
type Layer struct {
	Type       LayerType
	Flags      LayerFlags
	Visibility EyeVisibility

	Sub   [2]SubImage
	Depth [2]*SubImage

	// Pose places quad, cylinder, equirect and cube layers. Unused for projection layers.
	Pose common.Pose

	// Size is the quad's width and height in meters.
	Size mgl32.Vec2

	// Radius of cylinder and equirect layers; 0 means infinitely far away.
	Radius float32
	// CentralAngle is the cylinder's horizontal arc in radians.
	CentralAngle float32
	// AspectRatio is the cylinder's width over height.
	AspectRatio float32

	// Scale and Bias map equirect1 texture coordinates.
	Scale mgl32.Vec2
	Bias  mgl32.Vec2

	// CentralHorizontalAngle, UpperVerticalAngle and LowerVerticalAngle bound equirect2 layers.
	CentralHorizontalAngle float32
	UpperVerticalAngle     float32
	LowerVerticalAngle     float32
}

// Eyes returns how many eye images the layer distinguishes.
func (l *Layer) Eyes() int {
	if l.Type.IsProjection() {
		return 2
	}
	return 1
}

// Image returns the sub-image sampled for eye.
func (l *Layer) Image(eye int) SubImage {
	if l.Type.IsProjection() {
		return l.Sub[eye]
	}
	return l.Sub[0]
}
