package engine

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/session"
)

// FormFactor is the kind of device a system is requested for.
type FormFactor int

const (
	FormFactorHeadMountedDisplay FormFactor = 1
	FormFactorHandheldDisplay    FormFactor = 2
)

func (f FormFactor) String() string {
	switch f {
	case FormFactorHeadMountedDisplay:
		return "head_mounted_display"
	case FormFactorHandheldDisplay:
		return "handheld_display"
	}
	return fmt.Sprintf("FormFactor(%d)", int(f))
}

// SystemID identifies a system. The runtime exposes exactly one.
type SystemID uint64

// SystemHMD is the id of the head-mounted display system.
const SystemHMD SystemID = 1

const (
	systemVendorID          = 42
	maxSwapchainImageExtent = 16384
)

// SystemProperties describes a system's graphics limits and tracking capabilities.
type SystemProperties struct {
	SystemID                SystemID
	VendorID                uint32
	SystemName              string
	MaxSwapchainImageWidth  uint32
	MaxSwapchainImageHeight uint32
	MaxLayerCount           uint32
	OrientationTracking     bool
	PositionTracking        bool
}

// ViewConfigurationProperties describes a view configuration.
type ViewConfigurationProperties struct {
	ViewConfigurationType session.ViewConfigurationType
	FovMutable            bool
}

// ViewConfigurationView is the recommended and maximum render size of one view.
type ViewConfigurationView struct {
	RecommendedImageRectWidth       uint32
	MaxImageRectWidth               uint32
	RecommendedImageRectHeight      uint32
	MaxImageRectHeight              uint32
	RecommendedSwapchainSampleCount uint32
	MaxSwapchainSampleCount         uint32
}

func checkSystem(sys SystemID) error {
	if sys != SystemHMD {
		return result.Errorf(result.SystemInvalid, "system %d", sys)
	}
	return nil
}

func checkViewConfiguration(viewConfig session.ViewConfigurationType) error {
	if viewConfig != session.ViewConfigurationPrimaryStereo {
		return result.Errorf(result.ViewConfigurationTypeUnsupported, "view configuration %v", viewConfig)
	}
	return nil
}

func (i *instance) GetSystem(formFactor FormFactor) (SystemID, error) {
	if err := i.checkLive(); err != nil {
		return 0, err
	}
	if formFactor != FormFactorHeadMountedDisplay {
		return 0, result.Errorf(result.FormFactorUnsupported, "form factor %v", formFactor)
	}
	return SystemHMD, nil
}

func (i *instance) SystemProperties(sys SystemID) (SystemProperties, error) {
	if err := checkSystem(sys); err != nil {
		return SystemProperties{}, err
	}
	head, err := i.hmd.GetTrackedPose(device.HeadPoseInput, i.clock.Now())
	if err != nil {
		return SystemProperties{}, fmt.Errorf("head pose: %w", err)
	}
	return SystemProperties{
		SystemID:                sys,
		VendorID:                systemVendorID,
		SystemName:              i.hmd.Name(),
		MaxSwapchainImageWidth:  maxSwapchainImageExtent,
		MaxSwapchainImageHeight: maxSwapchainImageExtent,
		MaxLayerCount:           renderer.MaxLayers,
		OrientationTracking:     true,
		PositionTracking:        head.Flags&common.RelationPositionTracked != 0,
	}, nil
}

func (i *instance) EnumerateEnvironmentBlendModes(sys SystemID, viewConfig session.ViewConfigurationType, dst []device.BlendMode) (int, error) {
	if err := checkSystem(sys); err != nil {
		return 0, err
	}
	if err := checkViewConfiguration(viewConfig); err != nil {
		return 0, err
	}
	return result.TwoCall(dst, i.hmd.HMD().BlendModes)
}

func (i *instance) EnumerateViewConfigurations(sys SystemID, dst []session.ViewConfigurationType) (int, error) {
	if err := checkSystem(sys); err != nil {
		return 0, err
	}
	return result.TwoCall(dst, []session.ViewConfigurationType{session.ViewConfigurationPrimaryStereo})
}

func (i *instance) ViewConfigurationProperties(sys SystemID, viewConfig session.ViewConfigurationType) (ViewConfigurationProperties, error) {
	if err := checkSystem(sys); err != nil {
		return ViewConfigurationProperties{}, err
	}
	if err := checkViewConfiguration(viewConfig); err != nil {
		return ViewConfigurationProperties{}, err
	}
	return ViewConfigurationProperties{ViewConfigurationType: viewConfig}, nil
}

func (i *instance) EnumerateViewConfigurationViews(sys SystemID, viewConfig session.ViewConfigurationType, dst []ViewConfigurationView) (int, error) {
	if err := checkSystem(sys); err != nil {
		return 0, err
	}
	if err := checkViewConfiguration(viewConfig); err != nil {
		return 0, err
	}
	parts := i.hmd.HMD()
	views := make([]ViewConfigurationView, len(parts.Views))
	for n, v := range parts.Views {
		views[n] = ViewConfigurationView{
			RecommendedImageRectWidth:       uint32(v.Display.Width),
			MaxImageRectWidth:               uint32(v.Display.Width),
			RecommendedImageRectHeight:      uint32(v.Display.Height),
			MaxImageRectHeight:              uint32(v.Display.Height),
			RecommendedSwapchainSampleCount: 1,
			MaxSwapchainSampleCount:         1,
		}
	}
	return result.TwoCall(dst, views)
}
