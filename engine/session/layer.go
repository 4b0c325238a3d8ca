package session

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/compositor"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/space"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/go-gl/mathgl/mgl32"
)

// Eye selects which eyes a mono layer is shown to, numbered as the client API does.
type Eye int

const (
	EyeBoth Eye = iota
	EyeLeft
	EyeRight
)

func (e Eye) mask() (renderer.EyeVisibility, bool) {
	switch e {
	case EyeBoth:
		return renderer.VisibleBoth, true
	case EyeLeft:
		return renderer.VisibleLeft, true
	case EyeRight:
		return renderer.VisibleRight, true
	}
	return 0, false
}

// SubImage references a region of the image last released from a client swapchain.
type SubImage struct {
	Swapchain  swapchain.Swapchain
	Rect       common.Rect2D
	ArrayIndex uint32
}

// ProjectionView is one eye of a projection layer.
type ProjectionView struct {
	Pose     common.Pose
	Fov      common.Fov
	SubImage SubImage
	// Depth is the matching depth image of projection-depth layers.
	Depth *SubImage
}

// Layer is a composition layer as submitted with EndFrame.
type Layer struct {
	Type  renderer.LayerType
	Flags renderer.LayerFlags
	// Space is the space Pose and projection view poses are expressed in.
	Space space.Space

	// Views holds the two eyes of projection layers.
	Views []ProjectionView

	// Eye, SubImage and Pose describe every other layer type.
	Eye      Eye
	SubImage SubImage
	Pose     common.Pose

	Size                   mgl32.Vec2
	Radius                 float32
	CentralAngle           float32
	AspectRatio            float32
	Scale                  mgl32.Vec2
	Bias                   mgl32.Vec2
	CentralHorizontalAngle float32
	UpperVerticalAngle     float32
	LowerVerticalAngle     float32
}

// FrameEndInfo is what the application hands over with EndFrame.
type FrameEndInfo struct {
	DisplayTimeNs int64
	BlendMode     device.BlendMode
	Layers        []Layer
}

// imageRef validates a sub-image against its swapchain and resolves the released image.
func imageRef(si SubImage, what string) (compositor.ImageRef, error) {
	if si.Swapchain == nil {
		return compositor.ImageRef{}, result.Errorf(result.HandleInvalid, "%s references no swapchain", what)
	}
	idx, ok := si.Swapchain.ReleasedIndex()
	if !ok {
		return compositor.ImageRef{}, result.Errorf(result.LayerInvalid, "%s swapchain has no released image", what)
	}
	info := si.Swapchain.Info()
	if !si.Rect.Fits(info.Width, info.Height) {
		return compositor.ImageRef{}, result.Errorf(result.SwapchainRectInvalid,
			"%s rect %+v does not fit a %dx%d image", what, si.Rect, info.Width, info.Height)
	}
	if si.ArrayIndex >= info.ArraySize {
		return compositor.ImageRef{}, result.Errorf(result.ValidationFailure,
			"%s array index %d, swapchain has %d layers", what, si.ArrayIndex, info.ArraySize)
	}
	return compositor.ImageRef{
		Swapchain:  si.Swapchain,
		Index:      idx,
		Rect:       si.Rect,
		ArrayIndex: si.ArrayIndex,
	}, nil
}

// placement returns where a layer sits: relative to the eyes when its space is the view space,
// else located into the world space at the display time.
type placement func(sp space.Space, pose common.Pose) (common.Pose, bool, error)

// convert validates one layer and turns it into the compositor's form.
func convert(l Layer, place placement) (compositor.Layer, error) {
	out := compositor.Layer{Layer: renderer.Layer{
		Type:                   l.Type,
		Flags:                  l.Flags,
		Size:                   l.Size,
		Radius:                 l.Radius,
		CentralAngle:           l.CentralAngle,
		AspectRatio:            l.AspectRatio,
		Scale:                  l.Scale,
		Bias:                   l.Bias,
		CentralHorizontalAngle: l.CentralHorizontalAngle,
		UpperVerticalAngle:     l.UpperVerticalAngle,
		LowerVerticalAngle:     l.LowerVerticalAngle,
	}}
	if l.Type < renderer.LayerProjection || l.Type > renderer.LayerEquirect2 {
		return compositor.Layer{}, result.Errorf(result.LayerInvalid, "unknown layer type %v", l.Type)
	}
	if l.Space == nil || l.Space.Destroyed() {
		return compositor.Layer{}, result.Errorf(result.HandleInvalid, "%v layer has no live space", l.Type)
	}

	if l.Type.IsProjection() {
		if len(l.Views) != 2 {
			return compositor.Layer{}, result.Errorf(result.ValidationFailure, "projection layer has %d views, want 2", len(l.Views))
		}
		out.Visibility = renderer.VisibleBoth
		for eye, v := range l.Views {
			if !v.Pose.IsValid() {
				return compositor.Layer{}, result.Errorf(result.PoseInvalid, "projection view %d pose", eye)
			}
			ref, err := imageRef(v.SubImage, "projection view")
			if err != nil {
				return compositor.Layer{}, err
			}
			out.Color[eye] = ref
			if l.Type != renderer.LayerProjectionDepth {
				continue
			}
			if v.Depth == nil {
				return compositor.Layer{}, result.Errorf(result.ValidationFailure, "projection view %d has no depth image", eye)
			}
			dref, err := imageRef(*v.Depth, "depth")
			if err != nil {
				return compositor.Layer{}, err
			}
			if !dref.Swapchain.Info().Format.IsDepth() {
				return compositor.Layer{}, result.Errorf(result.ValidationFailure, "depth swapchain format %v", dref.Swapchain.Info().Format)
			}
			out.Depth[eye] = &dref
		}
		_, viewSpace, err := place(l.Space, common.IdentityPose())
		if err != nil {
			return compositor.Layer{}, err
		}
		if viewSpace {
			out.Flags |= renderer.LayerViewSpace
		}
		return out, nil
	}

	vis, ok := l.Eye.mask()
	if !ok {
		return compositor.Layer{}, result.Errorf(result.ValidationFailure, "eye visibility %d", l.Eye)
	}
	out.Visibility = vis
	if !l.Pose.IsValid() {
		return compositor.Layer{}, result.Errorf(result.PoseInvalid, "%v layer pose", l.Type)
	}
	ref, err := imageRef(l.SubImage, l.Type.String())
	if err != nil {
		return compositor.Layer{}, err
	}
	if l.Type == renderer.LayerCube && ref.Swapchain.Info().FaceCount != 6 {
		return compositor.Layer{}, result.Errorf(result.ValidationFailure, "cube layer swapchain has %d faces", ref.Swapchain.Info().FaceCount)
	}
	out.Color[0] = ref

	pose, viewSpace, err := place(l.Space, l.Pose)
	if err != nil {
		return compositor.Layer{}, err
	}
	out.Pose = pose
	if viewSpace {
		out.Flags |= renderer.LayerViewSpace
	}
	return out, nil
}
