package compositor

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
)

// ImageRef points at one image of a client swapchain.
type ImageRef struct {
	Swapchain  swapchain.Swapchain
	Index      uint32
	Rect       common.Rect2D
	ArrayIndex uint32
}

// Layer is a layer as handed over by the session: the geometry and flags of a renderer
// layer plus the swapchain images it samples. Sub and Depth of the embedded renderer layer
// are filled in on submit.
type Layer struct {
	renderer.Layer

	// Color holds the left and right images; mono layers only use Color[0].
	Color [2]ImageRef
	// Depth holds optional per-eye depth images of projection-depth layers.
	Depth [2]*ImageRef
}

// heldImage is a swapchain image the compositor keeps from the client until it is drawn.
type heldImage struct {
	sc    swapchain.Swapchain
	index uint32
}

// resolve turns the layer's image references into renderer sub-images, holding every
// image it touches. On failure nothing stays held.
func (l *Layer) resolve() (renderer.Layer, []heldImage, error) {
	out := l.Layer
	var held []heldImage
	fail := func(err error) (renderer.Layer, []heldImage, error) {
		unholdAll(held)
		return renderer.Layer{}, nil, err
	}

	hold := func(ref ImageRef) (swapchain.Image, error) {
		if ref.Swapchain == nil {
			return nil, result.Errorf(result.HandleInvalid, "layer references no swapchain")
		}
		img, err := ref.Swapchain.Image(ref.Index)
		if err != nil {
			return nil, err
		}
		if !ref.Swapchain.Hold(ref.Index) {
			return nil, result.Errorf(result.HandleInvalid, "swapchain image %d is gone", ref.Index)
		}
		held = append(held, heldImage{sc: ref.Swapchain, index: ref.Index})
		return img, nil
	}

	for eye := 0; eye < l.Eyes(); eye++ {
		ref := l.Color[eye]
		img, err := hold(ref)
		if err != nil {
			return fail(err)
		}
		out.Sub[eye] = renderer.SubImage{Image: img, Rect: ref.Rect, ArrayIndex: ref.ArrayIndex}

		if d := l.Depth[eye]; d != nil && l.Type == renderer.LayerProjectionDepth {
			dimg, err := hold(*d)
			if err != nil {
				return fail(err)
			}
			out.Depth[eye] = &renderer.SubImage{Image: dimg, Rect: d.Rect, ArrayIndex: d.ArrayIndex}
		}
	}
	if l.Eyes() == 1 {
		out.Sub[1] = out.Sub[0]
	}
	return out, held, nil
}

func unholdAll(held []heldImage) {
	for _, h := range held {
		h.sc.Unhold(h.index)
	}
}
