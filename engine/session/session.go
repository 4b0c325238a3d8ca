// Package session implements the session state machine that sits between the client API and
// the compositor: lifecycle, the wait/begin/end frame handshake, end-frame layer validation,
// view location, and the session side of spaces, swapchains and actions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/action"
	"github.com/Carmen-Shannon/oxy-xr/engine/compositor"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/handle"
	"github.com/Carmen-Shannon/oxy-xr/engine/pacer"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/space"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// State is the session state reported to the client, numbered as the client API does.
type State int

const (
	StateUnknown State = iota
	StateIdle
	StateReady
	StateSynchronized
	StateVisible
	StateFocused
	StateStopping
	StateLossPending
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateSynchronized:
		return "synchronized"
	case StateVisible:
		return "visible"
	case StateFocused:
		return "focused"
	case StateStopping:
		return "stopping"
	case StateLossPending:
		return "loss_pending"
	case StateExiting:
		return "exiting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is one client session on the head-mounted display.
//
// All methods are safe for concurrent use, but at most one WaitFrame may be in flight.
type Session interface {
	// ID returns the session identifier carried by its events.
	ID() uuid.UUID

	// Handle returns the session's handle, NullID when created without a handle table.
	Handle() handle.ID

	// State returns the last state reported to the client.
	State() State

	// Headless reports whether the session runs without a compositor.
	Headless() bool

	// Begin starts the session.
	//
	// Parameters:
	//   - viewConfig: the view configuration the application renders, primary stereo only
	//
	// Returns:
	//   - error: ViewConfigurationTypeUnsupported, SessionRunning or SessionNotReady
	Begin(viewConfig ViewConfigurationType) error

	// End stops a session that was asked to stop.
	//
	// Returns:
	//   - error: SessionNotRunning or SessionNotStopping
	End() error

	// RequestExit moves a running session to stopping; End then leads to exiting.
	//
	// Returns:
	//   - error: SessionNotRunning
	RequestExit() error

	// Destroy ends the session and releases its compositor, swapchains and attachment.
	// Idempotent.
	//
	// Returns:
	//   - error: an error the compositor or a child handle failed with
	Destroy() error

	// WaitFrame blocks until the application should start its next frame. It does not return
	// again until the frame it handed out was begun.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//
	// Returns:
	//   - FrameState: the predicted display time, period and whether to render
	//   - error: SessionNotRunning, SessionLost or ctx.Err()
	WaitFrame(ctx context.Context) (FrameState, error)

	// BeginFrame starts rendering the frame of the last WaitFrame.
	//
	// Returns:
	//   - result.Result: FrameDiscarded when a begun frame was dropped for this one
	//   - error: SessionNotRunning or CallOrderInvalid without a preceding WaitFrame
	BeginFrame() (result.Result, error)

	// EndFrame validates the submitted layers and hands them to the compositor atomically.
	// A frame that fails validation stays begun.
	//
	// Parameters:
	//   - ctx: cancels the wait for the compositor
	//   - info: display time, blend mode and layers
	//
	// Returns:
	//   - error: CallOrderInvalid, TimeInvalid, EnvironmentBlendModeUnsupported,
	//     LayerLimitExceeded, LayerInvalid, SwapchainRectInvalid, PoseInvalid,
	//     ValidationFailure, HandleInvalid or SessionLost
	EndFrame(ctx context.Context, info FrameEndInfo) error

	// PollEvent advances focus by at most one step and pops the oldest queued event.
	//
	// Returns:
	//   - Event: the event
	//   - bool: false when no event is waiting
	PollEvent() (Event, bool)

	// LocateViews returns the eye poses and fields of view at a display time, using the
	// two-call idiom.
	//
	// Parameters:
	//   - info: view configuration, display time and base space
	//   - dst: the caller buffer, empty to query the count
	//
	// Returns:
	//   - ViewState: validity and tracking flags shared by all views
	//   - int: the number of views
	//   - error: ViewConfigurationTypeUnsupported, TimeInvalid, HandleInvalid or SizeInsufficient
	LocateViews(info ViewLocateInfo, dst []View) (ViewState, int, error)

	// CreateSwapchain creates a client swapchain on the compositor.
	//
	// Parameters:
	//   - info: the swapchain description
	//
	// Returns:
	//   - swapchain.Swapchain: the swapchain
	//   - error: ValidationFailure on headless sessions, or a creation error
	CreateSwapchain(info swapchain.CreateInfo) (swapchain.Swapchain, error)

	// EnumerateSwapchainFormats lists the supported formats with the two-call idiom.
	// Headless sessions support none.
	EnumerateSwapchainFormats(dst []swapchain.Format) (int, error)

	// CreateReferenceSpace creates a reference space.
	CreateReferenceSpace(typ space.ReferenceType, offset common.Pose) (space.Space, error)

	// CreateActionSpace creates a space following a pose action.
	//
	// Parameters:
	//   - act: a pose action
	//   - subaction: a subaction path the action was created with, or the null path
	//   - offset: the pose of the space relative to the action pose
	//
	// Returns:
	//   - space.Space: the space
	//   - error: HandleInvalid, ActionTypeMismatch, PathUnsupported or PoseInvalid
	CreateActionSpace(act action.Action, subaction path.ID, offset common.Pose) (space.Space, error)

	// LocateSpace locates one space in another at a time.
	//
	// Parameters:
	//   - s: the space to locate
	//   - base: the space to express the result in
	//   - atNs: the runtime time
	//
	// Returns:
	//   - common.Relation: the located relation
	//   - error: HandleInvalid once the session or either space is destroyed, or TimeInvalid
	LocateSpace(s, base space.Space, atNs int64) (common.Relation, error)

	// AttachActionSets attaches action sets to the session, making them immutable.
	AttachActionSets(sets []action.ActionSet) error

	// SyncActions refreshes devices and action states.
	SyncActions(active []action.ActiveSet) (result.Result, error)

	// Actions returns the session's action attachment for state queries and haptics.
	Actions() action.Attachment

	// Compositor returns the session's compositor, nil for headless sessions.
	Compositor() compositor.Compositor
}

// FrameState is what WaitFrame returns to the application.
type FrameState struct {
	PredictedDisplayTimeNs   int64
	PredictedDisplayPeriodNs int64
	ShouldRender             bool
}

// session is the implementation of the Session interface.
type session struct {
	mu  *sync.Mutex
	log *slog.Logger
	id  uuid.UUID
	cfg config.Config

	clock    *common.TimeState
	hmd      device.Device
	devices  map[path.Subaction]device.Device
	actx     action.Context
	events   *Queue
	headless bool

	comp     compositor.Compositor
	compOpts []compositor.CompositorBuilderOption
	ownsComp bool
	actions  action.Attachment
	resolver space.Resolver
	view     space.Space
	world    space.Space

	handles   handle.Table
	parent    handle.ID
	handle    handle.ID
	onDestroy func(Session)

	state         State
	running       bool
	exitRequested bool
	destroyed     bool
	focused       atomic.Bool

	// Headless sessions have no compositor to grant focus, so it is stepped here.
	headlessFocus compositor.FocusState
	committed     bool
	pacer         pacer.Pacer

	// frameSlot is held from WaitFrame until the matching BeginFrame.
	frameSlot   *semaphore.Weighted
	waitPending bool
	waitedID    int64
	begunID     int64
	endedID     int64

	swapchains []swapchain.Swapchain
}

var _ Session = &session{}

// New creates a session in the ready state and queues its idle and ready events.
//
// Parameters:
//   - ctx: carries the runtime config and cancels compositor start-up
//   - options: functional options to configure the session
//
// Returns:
//   - Session: the session
//   - error: InitializationFailed if the compositor cannot start, or a handle table error
func New(ctx context.Context, options ...SessionBuilderOption) (Session, error) {
	s := &session{
		mu:        &sync.Mutex{},
		log:       common.ComponentLogger("session"),
		id:        uuid.New(),
		cfg:       config.FromContext(ctx),
		devices:   make(map[path.Subaction]device.Device),
		frameSlot: semaphore.NewWeighted(1),
	}
	for _, option := range options {
		option(s)
	}
	if s.clock == nil {
		s.clock = common.NewTimeState()
	}
	if s.hmd == nil {
		s.hmd = device.DefaultHMD()
	}
	if s.hmd.HMD() == nil {
		return nil, result.Errorf(result.InitializationFailed, "device %s is not a head-mounted display", s.hmd.Name())
	}
	if s.events == nil {
		s.events = NewQueue(DefaultQueueCapacity)
	}
	if s.actx == nil {
		s.actx = action.NewContext()
	}

	if s.headless {
		period := int64(s.cfg.FramePeriod)
		if period <= 0 {
			period = common.SecondNs / 60
		}
		var opts []pacer.FakeBuilderOption
		if !s.cfg.DynamicPrediction {
			opts = append(opts, pacer.WithFakePresentOffset(int64(s.cfg.StaticPrediction())))
		}
		s.pacer = pacer.NewFakePacer(period, s.clock.Now(), opts...)
	} else if s.comp == nil {
		opts := append([]compositor.CompositorBuilderOption{
			compositor.WithClock(s.clock),
			compositor.WithHMD(s.hmd),
		}, s.compOpts...)
		comp, err := compositor.NewCompositor(ctx, opts...)
		if err != nil {
			return nil, err
		}
		s.comp = comp
		s.ownsComp = true
	}

	attachOpts := []action.AttachmentBuilderOption{
		action.WithNow(s.clock.Now),
		action.WithFocus(s.focused.Load),
		action.WithProfileChangedHandler(s.profileChanged),
	}
	for kind, dev := range s.devices {
		attachOpts = append(attachOpts, action.WithDevice(kind, dev))
	}
	s.actions = action.NewAttachment(s.actx, attachOpts...)
	s.resolver = space.NewResolver(space.WithHead(s.hmd), space.WithPoseSource(s.actions))
	s.view, _ = space.NewReferenceSpace(space.ReferenceView, common.IdentityPose())
	s.world, _ = space.NewReferenceSpace(space.ReferenceLocal, common.IdentityPose())

	if s.handles != nil {
		id, err := s.handles.Create(handle.KindSession, s.parent, s, s.teardown)
		if err != nil {
			s.release()
			return nil, err
		}
		s.handle = id
	}

	s.mu.Lock()
	s.pushStateLocked(StateIdle)
	s.pushStateLocked(StateReady)
	s.mu.Unlock()

	s.log.Info("session created", "id", s.id, "headless", s.headless, "hmd", s.hmd.Name())
	return s, nil
}

func (s *session) ID() uuid.UUID                     { return s.id }
func (s *session) Handle() handle.ID                 { return s.handle }
func (s *session) Headless() bool                    { return s.headless }
func (s *session) Actions() action.Attachment        { return s.actions }
func (s *session) Compositor() compositor.Compositor { return s.comp }

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// pushStateLocked records a state change and queues its event. Caller must hold the mutex.
func (s *session) pushStateLocked(st State) {
	s.log.Debug("session state changed", "id", s.id, "from", s.state, "to", st)
	s.state = st
	s.focused.Store(st == StateFocused)
	s.events.Push(Event{
		Type:    EventSessionStateChanged,
		Session: s.id,
		TimeNs:  s.clock.Now(),
		State:   st,
	})
}

func (s *session) profileChanged() {
	s.events.Push(Event{Type: EventInteractionProfileChanged, Session: s.id, TimeNs: s.clock.Now()})
}

// checkLiveLocked fails once the session is destroyed. Caller must hold the mutex.
func (s *session) checkLiveLocked() error {
	if s.destroyed {
		return result.Errorf(result.HandleInvalid, "session %s is destroyed", s.id)
	}
	return nil
}

func (s *session) Begin(viewConfig ViewConfigurationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return err
	}
	if viewConfig != ViewConfigurationPrimaryStereo {
		return result.Errorf(result.ViewConfigurationTypeUnsupported, "view configuration %v", viewConfig)
	}
	if s.running {
		return result.Errorf(result.SessionRunning, "session is already running")
	}
	if s.state != StateReady {
		return result.Errorf(result.SessionNotReady, "session is %s", s.state)
	}
	if s.comp != nil {
		if err := s.comp.BeginSession(); err != nil {
			return err
		}
	}
	s.running = true
	s.exitRequested = false
	s.waitedID, s.begunID, s.endedID = 0, 0, 0
	s.log.Info("session begun", "id", s.id, "view_configuration", viewConfig)
	return nil
}

func (s *session) RequestExit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return err
	}
	if !s.running {
		return result.Errorf(result.SessionNotRunning, "session is not running")
	}
	if s.state == StateStopping {
		return nil
	}
	if s.state == StateFocused {
		s.pushStateLocked(StateVisible)
	}
	if s.state == StateVisible || s.state == StateReady {
		s.pushStateLocked(StateSynchronized)
	}
	s.pushStateLocked(StateStopping)
	s.exitRequested = true
	return nil
}

func (s *session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return err
	}
	if !s.running {
		return result.Errorf(result.SessionNotRunning, "session is not running")
	}
	if s.state != StateStopping {
		return result.Errorf(result.SessionNotStopping, "session is %s", s.state)
	}
	if s.comp != nil {
		if err := s.comp.EndSession(); err != nil {
			return err
		}
	}
	if s.waitPending {
		s.waitPending = false
		s.frameSlot.Release(1)
	}
	s.running = false
	s.committed = false
	s.headlessFocus = compositor.FocusHidden
	s.waitedID, s.begunID, s.endedID = 0, 0, 0

	s.pushStateLocked(StateIdle)
	if s.exitRequested {
		s.pushStateLocked(StateExiting)
	} else {
		s.pushStateLocked(StateReady)
	}
	s.log.Info("session ended", "id", s.id, "exiting", s.exitRequested)
	return nil
}

func (s *session) Destroy() error {
	if s.handles != nil && s.handle != handle.NullID {
		return s.handles.Destroy(s.handle)
	}
	return s.teardown()
}

// teardown is the session's handle destructor. Child handles are gone by the time it runs.
func (s *session) teardown() error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.running = false
	s.state = StateExiting
	s.focused.Store(false)
	if s.waitPending {
		s.waitPending = false
		s.frameSlot.Release(1)
	}
	s.mu.Unlock()

	err := s.release()
	s.events.Drop(s.id)
	if s.onDestroy != nil {
		s.onDestroy(s)
	}
	s.log.Info("session destroyed", "id", s.id)
	return err
}

// release frees everything the session owns.
func (s *session) release() error {
	s.actions.Close()
	for _, sc := range s.swapchains {
		sc.Destroy()
	}
	s.swapchains = nil
	if s.comp != nil && s.ownsComp {
		if err := s.comp.Close(); err != nil {
			return fmt.Errorf("close compositor: %w", err)
		}
	}
	return nil
}

func (s *session) PollEvent() (Event, bool) {
	s.mu.Lock()
	s.pollFocusLocked()
	s.mu.Unlock()
	return s.events.Pop()
}

// pollFocusLocked moves a synchronized session to visible and then focused as the compositor
// grants focus, one state per call. Caller must hold the mutex.
func (s *session) pollFocusLocked() {
	if !s.running || s.destroyed {
		return
	}
	var focus compositor.FocusState
	if s.comp != nil {
		focus, _ = s.comp.PollFocus()
	} else {
		if s.committed && s.headlessFocus < compositor.FocusFocused {
			s.headlessFocus++
		}
		focus = s.headlessFocus
	}

	switch {
	case s.state == StateSynchronized && focus >= compositor.FocusVisible:
		s.pushStateLocked(StateVisible)
	case s.state == StateVisible && focus == compositor.FocusFocused:
		s.pushStateLocked(StateFocused)
	}
}

// lostLocked reports a compositor loss to the client once. Caller must hold the mutex.
func (s *session) lostLocked(err error) {
	if errors.Is(err, result.ErrSessionLost) && s.state != StateLossPending {
		s.log.Error("session lost", "id", s.id, "error", err)
		s.pushStateLocked(StateLossPending)
	}
}

func (s *session) CreateSwapchain(info swapchain.CreateInfo) (swapchain.Swapchain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return nil, err
	}
	if s.headless {
		return nil, result.Errorf(result.ValidationFailure, "headless sessions cannot create swapchains")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	sc, err := s.comp.CreateSwapchain(info)
	if err != nil {
		return nil, err
	}
	if s.handles != nil {
		if _, err := s.handles.Create(handle.KindSwapchain, s.handle, sc, func() error { sc.Destroy(); return nil }); err != nil {
			sc.Destroy()
			return nil, err
		}
	}
	s.swapchains = append(s.swapchains, sc)
	return sc, nil
}

func (s *session) EnumerateSwapchainFormats(dst []swapchain.Format) (int, error) {
	if s.comp == nil {
		return result.TwoCall[swapchain.Format](dst, nil)
	}
	return result.TwoCall(dst, s.comp.SupportedFormats())
}

func (s *session) CreateReferenceSpace(typ space.ReferenceType, offset common.Pose) (space.Space, error) {
	var id handle.ID
	sp, err := space.NewReferenceSpace(typ, offset, s.spaceDestroyHandler(&id))
	if err != nil {
		return nil, err
	}
	if err := s.registerSpace(sp, &id); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *session) CreateActionSpace(act action.Action, subaction path.ID, offset common.Pose) (space.Space, error) {
	if act == nil || act.Destroyed() {
		return nil, result.Errorf(result.HandleInvalid, "action is null or destroyed")
	}
	if act.Type() != action.ActionTypePose {
		return nil, result.Errorf(result.ActionTypeMismatch, "action %q is %s, not pose", act.Name(), act.Type())
	}
	sel := path.AllSubactions()
	if subaction != path.NullID {
		kind, ok := s.actx.Paths().Classify(subaction)
		if !ok || !act.Subactions().Has(kind) {
			return nil, result.Errorf(result.PathUnsupported, "action %q was not created with subaction path %d", act.Name(), subaction)
		}
		sel = path.SubactionSet{}.With(kind)
	}
	var id handle.ID
	sp, err := space.NewActionSpace(act.Key(), sel, offset, s.spaceDestroyHandler(&id))
	if err != nil {
		return nil, err
	}
	if err := s.registerSpace(sp, &id); err != nil {
		return nil, err
	}
	return sp, nil
}

// spaceDestroyHandler removes a space's handle from the table once registerSpace has filled
// in id.
func (s *session) spaceDestroyHandler(id *handle.ID) space.SpaceBuilderOption {
	return space.WithDestroyHandler(func() error {
		if s.handles == nil || *id == handle.NullID {
			return nil
		}
		return s.handles.Destroy(*id)
	})
}

func (s *session) registerSpace(sp space.Space, id *handle.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return err
	}
	if s.handles == nil {
		return nil
	}
	created, err := s.handles.Create(handle.KindSpace, s.handle, sp, sp.Destroy)
	if err != nil {
		return err
	}
	*id = created
	return nil
}

func (s *session) LocateSpace(sp, base space.Space, atNs int64) (common.Relation, error) {
	s.mu.Lock()
	err := s.checkLiveLocked()
	s.mu.Unlock()
	if err != nil {
		return common.Relation{}, err
	}
	return space.Locate(sp, base, atNs, s.resolver)
}

func (s *session) AttachActionSets(sets []action.ActionSet) error {
	s.mu.Lock()
	err := s.checkLiveLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.actions.Attach(sets)
}

func (s *session) SyncActions(active []action.ActiveSet) (result.Result, error) {
	s.mu.Lock()
	err := s.checkLiveLocked()
	s.mu.Unlock()
	if err != nil {
		return result.Success, err
	}
	return s.actions.Sync(active)
}
