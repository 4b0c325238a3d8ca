package session

import (
	"context"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/compositor"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/space"
)

func (s *session) WaitFrame(ctx context.Context) (FrameState, error) {
	if err := s.frameSlot.Acquire(ctx, 1); err != nil {
		return FrameState{}, err
	}
	held := true
	defer func() {
		if held {
			s.frameSlot.Release(1)
		}
	}()

	s.mu.Lock()
	if err := s.checkLiveLocked(); err != nil {
		s.mu.Unlock()
		return FrameState{}, err
	}
	if !s.running {
		s.mu.Unlock()
		return FrameState{}, result.Errorf(result.SessionNotRunning, "session is not running")
	}
	comp, fake := s.comp, s.pacer
	s.mu.Unlock()

	var timing compositor.FrameTiming
	if comp != nil {
		t, err := comp.WaitFrame(ctx)
		if err != nil {
			s.mu.Lock()
			s.lostLocked(err)
			s.mu.Unlock()
			return FrameState{}, err
		}
		timing = t
	} else {
		p := fake.Predict(s.clock.Now())
		if !common.SleepUntil(s.clock.ToMonotonic(p.WakeUpNs), ctx.Done()) {
			return FrameState{}, ctx.Err()
		}
		timing = compositor.FrameTiming{
			FrameID:                  p.FrameID,
			PredictedDisplayNs:       p.PredictedDisplayNs,
			PredictedDisplayPeriodNs: p.PredictedDisplayPeriodNs,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return FrameState{}, result.Errorf(result.SessionNotRunning, "session stopped during wait")
	}
	s.waitedID = timing.FrameID
	s.waitPending = true
	held = false
	if s.state == StateReady {
		s.pushStateLocked(StateSynchronized)
	}

	s.log.Log(ctx, common.LevelTrace, "frame waited", "frame", timing.FrameID, "display_ns", timing.PredictedDisplayNs)
	return FrameState{
		PredictedDisplayTimeNs:   timing.PredictedDisplayNs,
		PredictedDisplayPeriodNs: timing.PredictedDisplayPeriodNs,
		ShouldRender:             s.state == StateVisible || s.state == StateFocused,
	}, nil
}

func (s *session) BeginFrame() (result.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return result.Success, err
	}
	if !s.running {
		return result.Success, result.Errorf(result.SessionNotRunning, "session is not running")
	}
	if !s.waitPending {
		return result.Success, result.Errorf(result.CallOrderInvalid, "begin frame without a waited frame")
	}

	res := result.Success
	if s.begunID != 0 {
		s.log.Debug("discarding begun frame", "frame", s.begunID)
		if s.comp != nil {
			if err := s.comp.DiscardFrame(s.begunID); err != nil {
				s.lostLocked(err)
				return result.Success, err
			}
		}
		res = result.FrameDiscarded
	}

	s.begunID = s.waitedID
	s.waitPending = false
	s.frameSlot.Release(1)
	if s.comp != nil {
		if err := s.comp.BeginFrame(s.begunID); err != nil {
			s.lostLocked(err)
			return result.Success, err
		}
	}
	s.log.Log(context.Background(), common.LevelTrace, "frame begun", "frame", s.begunID)
	return res, nil
}

func (s *session) EndFrame(ctx context.Context, info FrameEndInfo) error {
	s.mu.Lock()
	if err := s.checkLiveLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.running {
		s.mu.Unlock()
		return result.Errorf(result.SessionNotRunning, "session is not running")
	}
	if s.begunID == 0 {
		s.mu.Unlock()
		return result.Errorf(result.CallOrderInvalid, "end frame without a begun frame")
	}
	if info.DisplayTimeNs <= 0 {
		s.mu.Unlock()
		return result.Errorf(result.TimeInvalid, "display time %d is not positive", info.DisplayTimeNs)
	}
	if !s.hmd.HMD().SupportsBlendMode(info.BlendMode) {
		s.mu.Unlock()
		return result.Errorf(result.EnvironmentBlendModeUnsupported, "blend mode %v", info.BlendMode)
	}

	if len(info.Layers) > renderer.MaxLayers {
		s.mu.Unlock()
		return result.Errorf(result.LayerLimitExceeded, "%d layers, at most %d", len(info.Layers), renderer.MaxLayers)
	}
	place := func(sp space.Space, pose common.Pose) (common.Pose, bool, error) {
		if sp.Kind() == space.KindReference && sp.ReferenceType() == space.ReferenceView {
			return sp.Offset().Compose(pose), true, nil
		}
		rel, err := space.Locate(sp, s.world, info.DisplayTimeNs, s.resolver)
		if err != nil {
			return common.Pose{}, false, err
		}
		return rel.Pose.Compose(pose), false, nil
	}
	layers := make([]compositor.Layer, 0, len(info.Layers))
	for i, l := range info.Layers {
		cl, err := convert(l, place)
		if err != nil {
			s.mu.Unlock()
			s.log.Debug("layer rejected", "index", i, "error", err)
			return err
		}
		layers = append(layers, cl)
	}

	if s.comp == nil {
		s.endedID, s.begunID = s.begunID, 0
		s.committed = true
		s.mu.Unlock()
		return nil
	}

	id := s.begunID
	s.endedID, s.begunID = id, 0
	comp := s.comp
	s.mu.Unlock()

	err := s.submit(ctx, comp, id, info, layers)
	if err != nil {
		s.mu.Lock()
		s.lostLocked(err)
		s.mu.Unlock()
	}
	return err
}

// submit hands a validated frame to the compositor.
func (s *session) submit(ctx context.Context, comp compositor.Compositor, id int64, info FrameEndInfo, layers []compositor.Layer) error {
	if err := comp.LayerBegin(id, info.DisplayTimeNs, info.BlendMode); err != nil {
		return err
	}
	for _, l := range layers {
		if err := comp.LayerSubmit(l); err != nil {
			return err
		}
	}
	if err := comp.LayerCommit(ctx); err != nil {
		return err
	}
	s.log.Log(ctx, common.LevelTrace, "frame ended", "frame", id, "layers", len(layers))
	return nil
}
