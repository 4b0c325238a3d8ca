package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// NearPlane and FarPlane bound the compositor's projection.
	NearPlane float32 = 0.05
	FarPlane  float32 = 100

	// infiniteRadius stands in for a zero cylinder radius, which means infinitely far.
	infiniteRadius float32 = FarPlane / 2
)

// BlendMode is how a layer's color is combined with the layers below it.
type BlendMode int

const (
	BlendOpaque BlendMode = iota
	BlendPremultiplied
	BlendUnpremultiplied
)

func (b BlendMode) String() string {
	switch b {
	case BlendOpaque:
		return "opaque"
	case BlendPremultiplied:
		return "premultiplied"
	case BlendUnpremultiplied:
		return "unpremultiplied"
	}
	return fmt.Sprintf("BlendMode(%d)", int(b))
}

// blendModeOf derives the blend mode from a layer's flags.
func blendModeOf(flags LayerFlags) BlendMode {
	switch {
	case !flags.Has(LayerBlendSourceAlpha):
		return BlendOpaque
	case flags.Has(LayerUnpremultipliedAlpha):
		return BlendUnpremultiplied
	default:
		return BlendPremultiplied
	}
}

// PipelineKey identifies one cached render pipeline.
type PipelineKey struct {
	Type  LayerType
	Blend BlendMode
	Depth bool
}

func (k PipelineKey) String() string {
	if k.Depth {
		return fmt.Sprintf("%s/%s/depth", k.Type, k.Blend)
	}
	return fmt.Sprintf("%s/%s", k.Type, k.Blend)
}

// GeometryKind selects the vertex geometry of a draw.
type GeometryKind int

const (
	// GeometryQuad is the unit quad; full-screen layers scale it to clip space.
	GeometryQuad GeometryKind = iota
	GeometryCylinder
)

// Geometry is the mesh a draw uses. Cylinders are cached by their arc parameters.
type Geometry struct {
	Kind         GeometryKind
	CentralAngle float32
	AspectRatio  float32
}

// LayerUniform is the per-layer, per-eye uniform block. Its layout matches the
// LayerUniform struct of the layer shaders.
type LayerUniform struct {
	MVP mgl32.Mat4
	// InvVP maps clip space back to a view direction for equirect and cube layers.
	InvVP      mgl32.Mat4
	RectOffset mgl32.Vec2
	RectExtent mgl32.Vec2
	Params     mgl32.Vec4
	Params2    mgl32.Vec4

	FlipY           uint32
	Unpremultiplied uint32
	ArrayIndex      uint32
	_               uint32
}

// EyeView is where one eye looks from.
type EyeView struct {
	Fov common.Fov
	// EyePose is the eye relative to the head, used for view-space layers.
	EyePose common.Pose
	// WorldPose is the eye in the compositor's base space, used for world-space layers.
	WorldPose common.Pose
}

// Draw is one layer drawn into one eye.
type Draw struct {
	Layer    int
	Eye      int
	Key      PipelineKey
	Geometry Geometry
	Image    SubImage
	Depth    *SubImage
	Uniform  LayerUniform
}

// EyePlan is everything drawn into one eye, in submission order.
type EyePlan struct {
	Projection mgl32.Mat4
	WorldVP    mgl32.Mat4
	EyeVP      mgl32.Mat4
	Draws      []Draw
}

// FramePlan is the CPU side of a compositor frame.
type FramePlan struct {
	Eyes   [2]EyePlan
	Layers int
}

// Empty reports whether nothing is drawn into either eye.
func (p *FramePlan) Empty() bool {
	return len(p.Eyes[0].Draws) == 0 && len(p.Eyes[1].Draws) == 0
}

// Keys returns the distinct pipelines the plan uses.
func (p *FramePlan) Keys() []PipelineKey {
	seen := make(map[PipelineKey]struct{})
	var keys []PipelineKey
	for _, eye := range p.Eyes {
		for _, d := range eye.Draws {
			if _, ok := seen[d.Key]; ok {
				continue
			}
			seen[d.Key] = struct{}{}
			keys = append(keys, d.Key)
		}
	}
	return keys
}

// eyeMatrices holds the matrices shared by every layer drawn into one eye.
type eyeMatrices struct {
	proj      mgl32.Mat4
	worldView mgl32.Mat4
	eyeView   mgl32.Mat4
	worldVP   mgl32.Mat4
	eyeVP     mgl32.Mat4
}

func newEyeMatrices(v EyeView) eyeMatrices {
	m := eyeMatrices{
		proj:      common.ProjectionFromFov(v.Fov, NearPlane, FarPlane),
		worldView: v.WorldPose.ViewMatrix(),
		eyeView:   v.EyePose.ViewMatrix(),
	}
	m.worldVP = m.proj.Mul4(m.worldView)
	m.eyeVP = m.proj.Mul4(m.eyeView)
	return m
}

// clipScale maps the unit quad onto the whole of clip space.
var clipScale = mgl32.Scale3D(2, 2, 1)

func stripTranslation(m mgl32.Mat4) mgl32.Mat4 {
	m[12], m[13], m[14] = 0, 0, 0
	return m
}

// planLayer builds the draws of one layer for both eyes. A nil entry means the layer is
// not visible to that eye.
func planLayer(eyes *[2]eyeMatrices, idx int, l *Layer) [2]*Draw {
	var out [2]*Draw
	blend := blendModeOf(l.Flags)
	depth := l.Type == LayerProjectionDepth && l.Depth[0] != nil && l.Depth[1] != nil

	for eye := range 2 {
		if !l.Visibility.Visible(eye) {
			continue
		}
		m := &eyes[eye]
		vp, view := m.worldVP, m.worldView
		if l.Flags.Has(LayerViewSpace) {
			vp, view = m.eyeVP, m.eyeView
		}

		img := l.Image(eye)
		d := &Draw{
			Layer:    idx,
			Eye:      eye,
			Key:      PipelineKey{Type: l.Type, Blend: blend, Depth: depth},
			Geometry: Geometry{Kind: GeometryQuad},
			Image:    img,
		}
		if depth {
			d.Depth = l.Depth[eye]
		}

		u := &d.Uniform
		u.InvVP = mgl32.Ident4()
		u.RectOffset, u.RectExtent = normalizedRect(img)
		u.ArrayIndex = img.ArrayIndex
		if l.Flags.Has(LayerFlipY) {
			u.FlipY = 1
		}
		if blend == BlendUnpremultiplied {
			u.Unpremultiplied = 1
		}

		switch l.Type {
		case LayerProjection, LayerProjectionDepth:
			// Projection images already cover the eye's whole view.
			u.MVP = clipScale
		case LayerQuad:
			model := l.Pose.Matrix().Mul4(mgl32.Scale3D(l.Size.X(), l.Size.Y(), 1))
			u.MVP = vp.Mul4(model)
		case LayerCylinder:
			r := l.Radius
			if r <= 0 {
				r = infiniteRadius
			}
			model := l.Pose.Matrix().Mul4(mgl32.Scale3D(r, r, r))
			u.MVP = vp.Mul4(model)
			d.Geometry = Geometry{Kind: GeometryCylinder, CentralAngle: l.CentralAngle, AspectRatio: l.AspectRatio}
		case LayerEquirect1, LayerEquirect2, LayerCube:
			u.MVP = clipScale
			rot := l.Pose.Orientation.Normalize().Mat4()
			u.InvVP = m.proj.Mul4(stripTranslation(view)).Mul4(rot).Inv()
			switch l.Type {
			case LayerEquirect1:
				u.Params = mgl32.Vec4{l.Scale.X(), l.Scale.Y(), l.Bias.X(), l.Bias.Y()}
				u.Params2 = mgl32.Vec4{l.Radius, 0, 0, 0}
			case LayerEquirect2:
				u.Params = mgl32.Vec4{l.CentralHorizontalAngle, l.UpperVerticalAngle, l.LowerVerticalAngle, l.Radius}
			}
		}
		out[eye] = d
	}
	return out
}

// normalizedRect converts a sub-image rectangle into texture coordinates.
func normalizedRect(img SubImage) (mgl32.Vec2, mgl32.Vec2) {
	if img.Image == nil {
		return mgl32.Vec2{0, 0}, mgl32.Vec2{1, 1}
	}
	ext := img.Image.Extent()
	n := img.Rect.Normalize(uint32(ext.Width), uint32(ext.Height))
	return mgl32.Vec2{n.X, n.Y}, mgl32.Vec2{n.W, n.H}
}

// BuildPlan computes the draws of a frame: per eye it picks the world or eye view-projection
// for every layer, computes the layer's MVP and uniform, and skips layers hidden from that eye.
// Layers keep their submission order within each eye.
//
// Parameters:
//   - views: the left and right eye views
//   - layers: the frame's layers in submission order
//
// Returns:
//   - FramePlan: the draws of both eyes
func BuildPlan(views [2]EyeView, layers []Layer) FramePlan {
	eyes := [2]eyeMatrices{newEyeMatrices(views[0]), newEyeMatrices(views[1])}
	planned := make([][2]*Draw, len(layers))
	for i := range layers {
		planned[i] = planLayer(&eyes, i, &layers[i])
	}
	return assemblePlan(&eyes, planned)
}

func assemblePlan(eyes *[2]eyeMatrices, planned [][2]*Draw) FramePlan {
	plan := FramePlan{Layers: len(planned)}
	for eye := range 2 {
		ep := &plan.Eyes[eye]
		ep.Projection = eyes[eye].proj
		ep.WorldVP = eyes[eye].worldVP
		ep.EyeVP = eyes[eye].eyeVP
		for _, draws := range planned {
			if d := draws[eye]; d != nil {
				ep.Draws = append(ep.Draws, *d)
			}
		}
	}
	return plan
}
