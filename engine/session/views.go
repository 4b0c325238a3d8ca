package session

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/space"
	"github.com/go-gl/mathgl/mgl32"
)

// ViewConfigurationType identifies a view configuration, numbered as the client API does.
type ViewConfigurationType int32

const (
	ViewConfigurationPrimaryMono   ViewConfigurationType = 1
	ViewConfigurationPrimaryStereo ViewConfigurationType = 2
)

// StereoViewCount is the number of views of the primary stereo configuration.
const StereoViewCount = 2

func (v ViewConfigurationType) String() string {
	switch v {
	case ViewConfigurationPrimaryMono:
		return "primary_mono"
	case ViewConfigurationPrimaryStereo:
		return "primary_stereo"
	}
	return fmt.Sprintf("ViewConfigurationType(%d)", int32(v))
}

// ViewLocateInfo selects what LocateViews reports.
type ViewLocateInfo struct {
	ViewConfigurationType ViewConfigurationType
	DisplayTimeNs         int64
	// Space is the space the view poses are expressed in.
	Space space.Space
}

// View is the pose and field of view of one eye.
type View struct {
	Pose common.Pose
	Fov  common.Fov
}

// ViewState carries the validity and tracking flags of located views.
type ViewState struct {
	Flags common.RelationFlags
}

const viewStateMask = common.RelationOrientationValid | common.RelationPositionValid |
	common.RelationOrientationTracked | common.RelationPositionTracked

func (s *session) LocateViews(info ViewLocateInfo, dst []View) (ViewState, int, error) {
	s.mu.Lock()
	err := s.checkLiveLocked()
	s.mu.Unlock()
	if err != nil {
		return ViewState{}, 0, err
	}
	if info.ViewConfigurationType != ViewConfigurationPrimaryStereo {
		return ViewState{}, 0, result.Errorf(result.ViewConfigurationTypeUnsupported, "view configuration %v", info.ViewConfigurationType)
	}
	if info.DisplayTimeNs <= 0 {
		return ViewState{}, 0, result.Errorf(result.TimeInvalid, "display time %d is not positive", info.DisplayTimeNs)
	}
	if info.Space == nil || info.Space.Destroyed() {
		return ViewState{}, 0, result.Errorf(result.HandleInvalid, "space is null or destroyed")
	}
	if len(dst) == 0 {
		return ViewState{}, StereoViewCount, nil
	}

	_, fovs, eyes, err := s.hmd.GetViewPoses(mgl32.Vec3{s.cfg.IPDMeters(), 0, 0}, info.DisplayTimeNs, StereoViewCount)
	if err != nil {
		return ViewState{}, 0, fmt.Errorf("get view poses: %w", err)
	}
	rel, err := space.Locate(s.view, info.Space, info.DisplayTimeNs, s.resolver)
	if err != nil {
		return ViewState{}, 0, err
	}

	views := make([]View, StereoViewCount)
	for i := range views {
		views[i] = View{Pose: rel.Pose.Compose(eyes[i]), Fov: fovs[i]}
		if s.cfg.DebugViews {
			s.log.Info("view located", "eye", i, "at", info.DisplayTimeNs,
				"position", views[i].Pose.Position, "orientation", views[i].Pose.Orientation)
		}
	}
	n, err := result.TwoCall(dst, views)
	if err != nil {
		return ViewState{}, n, err
	}
	state := ViewState{Flags: rel.Flags & viewStateMask}
	s.log.Log(context.Background(), common.LevelTrace, "views located", "flags", state.Flags)
	return state, n, nil
}
