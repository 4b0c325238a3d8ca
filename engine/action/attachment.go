package action

import (
	"context"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/handle"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/go-gl/mathgl/mgl32"
)

// ActiveSet names an action set to synchronize and the subaction path to select in it.
// A null path selects every path.
type ActiveSet struct {
	Set       ActionSet
	Subaction path.ID
}

// BooleanState is the state of a boolean action.
type BooleanState struct {
	CurrentState         bool
	ChangedSinceLastSync bool
	LastChangeTime       int64
	IsActive             bool
}

// FloatState is the state of a float action.
type FloatState struct {
	CurrentState         float32
	ChangedSinceLastSync bool
	LastChangeTime       int64
	IsActive             bool
}

// Vector2fState is the state of a two-dimensional action.
type Vector2fState struct {
	CurrentState         mgl32.Vec2
	ChangedSinceLastSync bool
	LastChangeTime       int64
	IsActive             bool
}

// PoseState is the state of a pose action.
type PoseState struct {
	IsActive bool
}

// Attachment binds the action sets of one session to the session's devices.
type Attachment interface {
	// Attach binds action sets to the session. It may be called once; afterwards every attached
	// set is immutable.
	//
	// Parameters:
	//   - sets: the action sets, at least one, no duplicates
	//
	// Returns:
	//   - error: ActionSetsAlreadyAttached on a second call, ValidationFailure on an empty or
	//     duplicated list
	Attach(sets []ActionSet) error

	// Attached reports whether Attach succeeded.
	Attached() bool

	// Sync refreshes every device once and updates the state of all attached actions. Sets not
	// named in active report inactive until the next sync that names them.
	//
	// Parameters:
	//   - active: the sets and subaction paths to select
	//
	// Returns:
	//   - result.Result: SessionNotFocused when the session cannot receive input, else Success
	//   - error: ActionSetNotAttached or PathUnsupported
	Sync(active []ActiveSet) (result.Result, error)

	// GetBoolean returns the state of a boolean action.
	//
	// Parameters:
	//   - a: the action
	//   - subaction: a subaction path the action was created with, or the null path for the roll-up
	//
	// Returns:
	//   - BooleanState: the state
	//   - error: ActionSetNotAttached, ActionTypeMismatch or PathUnsupported
	GetBoolean(a Action, subaction path.ID) (BooleanState, error)

	// GetFloat returns the state of a float action.
	GetFloat(a Action, subaction path.ID) (FloatState, error)

	// GetVector2f returns the state of a two-dimensional action.
	GetVector2f(a Action, subaction path.ID) (Vector2fState, error)

	// GetPose reports whether a pose action has an active source.
	GetPose(a Action, subaction path.ID) (PoseState, error)

	// ApplyHaptic starts a vibration on every output bound to the action on the selected paths.
	//
	// Parameters:
	//   - a: a vibration action
	//   - subaction: the path to vibrate, or the null path for all
	//   - v: the vibration; a duration of zero or below lasts until the next sync
	//
	// Returns:
	//   - error: ActionSetNotAttached, ActionTypeMismatch or PathUnsupported
	ApplyHaptic(a Action, subaction path.ID, v device.OutputValue) error

	// StopHaptic silences the outputs bound to the action on the selected paths.
	StopHaptic(a Action, subaction path.ID) error

	// CurrentProfile returns the interaction profile selected for a top-level user path.
	//
	// Parameters:
	//   - topLevel: a top-level user path such as /user/hand/left
	//
	// Returns:
	//   - path.ID: the profile path, or the null path if none is selected
	//   - error: ActionSetNotAttached before Attach, PathUnsupported for other paths
	CurrentProfile(topLevel path.ID) (path.ID, error)

	// EnumerateBoundSources lists the binding paths an action resolved to, using the two-call idiom.
	//
	// Parameters:
	//   - a: the action
	//   - dst: the caller buffer, empty to query the count
	//
	// Returns:
	//   - int: the number of sources
	//   - error: ActionSetNotAttached or SizeInsufficient
	EnumerateBoundSources(a Action, dst []path.ID) (int, error)

	// PoseInput returns the device and pose input backing a pose action, preferring head, left,
	// right, gamepad and user in that order among the active selected paths.
	//
	// Parameters:
	//   - actionKey: the action key
	//   - sel: the subaction selection
	//
	// Returns:
	//   - device.Device: the device
	//   - device.InputName: the pose input
	//   - bool: false if no selected path is active
	PoseInput(actionKey uint32, sel path.SubactionSet) (device.Device, device.InputName, bool)

	// Close silences all outputs and drops the attached action data.
	Close()
}

// Subaction paths in the order pose sources are preferred.
var posePriority = []path.Subaction{path.SubactionHead, path.SubactionLeft, path.SubactionRight, path.SubactionGamepad, path.SubactionUser}

type attachment struct {
	mu  *sync.Mutex
	log *slog.Logger
	ctx Context

	devices    [path.SubactionCount]device.Device
	profiles   [path.SubactionCount]*device.Profile
	profileIDs [path.SubactionCount]path.ID

	now              func() int64
	focused          func() bool
	policy           CombinePolicy
	onProfileChanged func()

	pool    worker.DynamicWorkerPool
	workers int
	taskID  int

	attached bool
	closed   bool
	sets     map[uint32]*handle.RefCell[*setData]
	actions  map[uint32]*actionAttachment
	order    []*actionAttachment
}

var _ Attachment = &attachment{}

// NewAttachment creates the attachment of one session.
//
// Parameters:
//   - ctx: the instance action context
//   - options: functional options to configure the attachment
//
// Returns:
//   - Attachment: the attachment, not yet attached
func NewAttachment(ctx Context, options ...AttachmentBuilderOption) Attachment {
	clock := common.NewTimeState()
	a := &attachment{
		mu:      &sync.Mutex{},
		log:     common.ComponentLogger("action"),
		ctx:     ctx,
		now:     clock.Now,
		focused: func() bool { return true },
		policy:  FirstActive{},
		workers: min(runtime.NumCPU(), int(path.SubactionCount)),
		sets:    make(map[uint32]*handle.RefCell[*setData]),
		actions: make(map[uint32]*actionAttachment),
	}
	for _, option := range options {
		option(a)
	}
	a.pool = worker.NewDynamicWorkerPool(a.workers, int(path.SubactionCount), time.Second)
	return a
}

func (a *attachment) Attach(sets []ActionSet) error {
	if len(sets) == 0 {
		return result.Errorf(result.ValidationFailure, "no action sets to attach")
	}
	for i, s := range sets {
		if s == nil {
			return result.Errorf(result.HandleInvalid, "action set %d is null", i)
		}
		if s.Destroyed() {
			return result.Errorf(result.HandleInvalid, "action set %q is destroyed", s.Name())
		}
		if slices.Index(sets, s) != i {
			return result.Errorf(result.ValidationFailure, "action set %q listed twice", s.Name())
		}
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return result.Errorf(result.HandleInvalid, "attachment is closed")
	}
	if a.attached {
		a.mu.Unlock()
		return result.Errorf(result.ActionSetsAlreadyAttached, "session already has attached action sets")
	}

	for _, kind := range path.Subactions {
		a.selectProfile(kind)
	}

	for _, s := range sets {
		ref := s.data()
		ref.Value().attached.Store(true)
		a.sets[ref.Value().key] = ref.Retain()
		for _, act := range s.Actions() {
			aa := &actionAttachment{ref: act.data().Retain()}
			a.bind(aa)
			a.actions[aa.ref.Value().key] = aa
			a.order = append(a.order, aa)
		}
	}
	a.attached = true

	changed := false
	for _, p := range a.profiles {
		changed = changed || p != nil
	}
	notify := a.onProfileChanged
	a.mu.Unlock()

	if changed && notify != nil {
		notify()
	}
	return nil
}

// selectProfile picks the profile of the device serving kind: the device's own profile when the
// application suggested bindings for it, else the first suggested profile the device can serve.
// Caller must hold the mutex.
func (a *attachment) selectProfile(kind path.Subaction) {
	dev := a.devices[kind]
	if dev == nil {
		return
	}
	user := kind.String()

	var chosen *device.Profile
	if pref := dev.PreferredProfile(); pref != "" && a.ctx.HasSuggestions(pref) {
		if p, ok := a.ctx.LookupProfile(pref); ok && slices.Contains(p.UserPaths, user) {
			chosen = p
		}
	}
	if chosen == nil {
		for _, p := range a.ctx.Profiles() {
			if slices.Contains(p.UserPaths, user) && a.ctx.HasSuggestions(p.Path) && serves(dev, p, user) {
				chosen = p
				break
			}
		}
	}
	if chosen == nil {
		a.log.Debug("no interaction profile", "user_path", user, "device", dev.Name())
		return
	}

	id, err := a.ctx.Paths().GetOrCreate(chosen.Path)
	if err != nil {
		a.log.Warn("profile path rejected", "profile", chosen.Path, "error", err)
		return
	}
	a.profiles[kind] = chosen
	a.profileIDs[kind] = id
	a.log.Info("interaction profile selected", "user_path", user, "device", dev.Name(), "profile", chosen.Path)
}

// serves reports whether dev exposes any input or output the profile lists for user.
func serves(dev device.Device, p *device.Profile, user string) bool {
	for _, in := range p.InputsFor(user) {
		if _, ok := dev.FindInput(in.Name); ok {
			return true
		}
	}
	for _, out := range p.OutputsFor(user) {
		if dev.FindOutput(out.Name) {
			return true
		}
	}
	return false
}

// bind resolves the suggested bindings of an action on every path it allows. Caller must hold the mutex.
func (a *attachment) bind(aa *actionAttachment) {
	d := aa.ref.Value()
	for _, kind := range path.Subactions {
		if !d.subactions.Any && !d.subactions.Has(kind) {
			continue
		}
		prof, dev := a.profiles[kind], a.devices[kind]
		if prof == nil || dev == nil {
			continue
		}
		c := &aa.caches[kind]
		for _, bp := range a.ctx.SuggestedBindings(prof.Path, d.key) {
			if a.bindPath(c, d, kind, prof, dev, bp) {
				c.bound = append(c.bound, a.ctx.Paths().Lookup(bp))
			}
		}
		if c.hasBindings() {
			a.log.Debug("action bound", "action", d.name, "user_path", kind, "inputs", len(c.inputs), "outputs", len(c.outputs))
		}
	}
}

func (a *attachment) bindPath(c *subactionCache, d *actionData, kind path.Subaction, prof *device.Profile, dev device.Device, bp string) bool {
	user := kind.String()
	found := false
	var inputs []inputSource
	for _, b := range prof.FindBindings(bp) {
		if b.SubactionPath != user {
			continue
		}
		if d.typ == ActionTypeVibrationOutput {
			if b.IsOutput() && dev.FindOutput(b.Output) {
				c.outputs = append(c.outputs, outputSource{dev: dev, output: b.Output})
				found = true
			}
			continue
		}
		if b.IsOutput() {
			continue
		}
		if _, ok := dev.FindInput(b.Input); !ok {
			continue
		}
		chain, err := BuildChain(b.InputType, d.typ, bp)
		if err != nil {
			a.log.Debug("binding candidate rejected", "action", d.name, "binding", bp, "input", b.Input, "error", err)
			continue
		}
		inputs = append(inputs, inputSource{dev: dev, input: b.Input, chain: chain})
	}

	// Inputs that need fewer conversions win the single-source policy.
	slices.SortStableFunc(inputs, func(x, y inputSource) int { return len(x.chain) - len(y.chain) })
	for _, in := range inputs {
		a.log.Log(context.Background(), common.LevelTrace, "input bound", "action", d.name, "binding", bp, "input", in.input, "chain", in.chain.String())
	}
	c.inputs = append(c.inputs, inputs...)

	if !found && len(inputs) == 0 {
		a.log.Info("binding dropped", "action", d.name, "binding", bp, "device", dev.Name())
		return false
	}
	return true
}

func (a *attachment) Attached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached
}

// selection classifies a single subaction path; the null path selects everything.
func (a *attachment) selection(id path.ID) (path.SubactionSet, error) {
	if id == path.NullID {
		return path.AllSubactions(), nil
	}
	kind, ok := a.ctx.Paths().Classify(id)
	if !ok {
		s, _ := a.ctx.Paths().String(id)
		return path.SubactionSet{}, result.Errorf(result.PathUnsupported, "%q is not a top-level user path", s)
	}
	return path.SubactionSet{}.With(kind), nil
}

func (a *attachment) Sync(active []ActiveSet) (result.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.attached {
		return result.Success, result.Errorf(result.ActionSetNotAttached, "no action sets attached")
	}
	selected := make(map[uint32]path.SubactionSet, len(active))
	for _, as := range active {
		if as.Set == nil {
			return result.Success, result.Errorf(result.HandleInvalid, "active action set is null")
		}
		if as.Set.Destroyed() {
			return result.Success, result.Errorf(result.HandleInvalid, "action set %q is destroyed", as.Set.Name())
		}
		key := as.Set.Key()
		if _, ok := a.sets[key]; !ok {
			return result.Success, result.Errorf(result.ActionSetNotAttached, "action set %q is not attached", as.Set.Name())
		}
		sel, err := a.selection(as.Subaction)
		if err != nil {
			return result.Success, err
		}
		selected[key] = selected[key].Or(sel)
	}

	now := a.now()
	a.refreshDevices(now)

	focused := a.focused()
	for _, aa := range a.order {
		sel := selected[aa.ref.Value().setKey]
		if !focused {
			sel = path.SubactionSet{}
		}
		aa.update(a.log, now, sel, a.policy)
	}

	if !focused {
		return result.SessionNotFocused, nil
	}
	return result.Success, nil
}

// refreshDevices reads every attached device once at the same timestamp, in parallel when
// there are several. Caller must hold the mutex.
func (a *attachment) refreshDevices(nowNs int64) {
	var devs []device.Device
	for _, d := range a.devices {
		if d != nil && !slices.Contains(devs, d) {
			devs = append(devs, d)
		}
	}

	update := func(d device.Device) {
		if err := d.UpdateInputs(nowNs); err != nil {
			a.log.Warn("device input refresh failed", "device", d.Name(), "error", err)
		}
	}
	if len(devs) < 2 || a.pool == nil {
		for _, d := range devs {
			update(d)
		}
		return
	}

	var wg sync.WaitGroup
	for _, d := range devs {
		wg.Add(1)
		dev := d
		a.taskID++
		a.pool.SubmitTask(worker.Task{
			ID: a.taskID,
			Do: func() (any, error) {
				defer wg.Done()
				update(dev)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// lookup resolves an attached action of the wanted type and the selection a subaction path makes.
// Caller must hold the mutex.
func (a *attachment) lookup(act Action, want ActionType, subaction path.ID) (*actionAttachment, path.SubactionSet, error) {
	if act == nil {
		return nil, path.SubactionSet{}, result.Errorf(result.HandleInvalid, "action is null")
	}
	if act.Destroyed() {
		return nil, path.SubactionSet{}, result.Errorf(result.HandleInvalid, "action %q or its set is destroyed", act.Name())
	}
	aa, ok := a.actions[act.Key()]
	if !ok {
		return nil, path.SubactionSet{}, result.Errorf(result.ActionSetNotAttached, "action %q is not attached to this session", act.Name())
	}
	d := aa.ref.Value()
	if want != 0 && d.typ != want {
		return nil, path.SubactionSet{}, result.Errorf(result.ActionTypeMismatch, "action %q is %s, not %s", d.name, d.typ, want)
	}
	sel, err := a.selection(subaction)
	if err != nil {
		return nil, path.SubactionSet{}, err
	}
	if !sel.Any {
		if kind := sel.Kinds()[0]; !d.subactions.Has(kind) {
			return nil, path.SubactionSet{}, result.Errorf(result.PathUnsupported, "action %q was not created with %s", d.name, kind)
		}
	}
	return aa, sel, nil
}

func (a *attachment) GetBoolean(act Action, subaction path.ID) (BooleanState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	aa, sel, err := a.lookup(act, ActionTypeBoolean, subaction)
	if err != nil {
		return BooleanState{}, err
	}
	s := aa.stateFor(sel)
	return BooleanState{
		CurrentState:         s.value.Boolean,
		ChangedSinceLastSync: s.changed,
		LastChangeTime:       s.timestamp,
		IsActive:             s.active,
	}, nil
}

func (a *attachment) GetFloat(act Action, subaction path.ID) (FloatState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	aa, sel, err := a.lookup(act, ActionTypeFloat, subaction)
	if err != nil {
		return FloatState{}, err
	}
	s := aa.stateFor(sel)
	return FloatState{
		CurrentState:         s.value.Vec1,
		ChangedSinceLastSync: s.changed,
		LastChangeTime:       s.timestamp,
		IsActive:             s.active,
	}, nil
}

func (a *attachment) GetVector2f(act Action, subaction path.ID) (Vector2fState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	aa, sel, err := a.lookup(act, ActionTypeVector2f, subaction)
	if err != nil {
		return Vector2fState{}, err
	}
	s := aa.stateFor(sel)
	return Vector2fState{
		CurrentState:         s.value.Vec2,
		ChangedSinceLastSync: s.changed,
		LastChangeTime:       s.timestamp,
		IsActive:             s.active,
	}, nil
}

func (a *attachment) GetPose(act Action, subaction path.ID) (PoseState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	aa, sel, err := a.lookup(act, ActionTypePose, subaction)
	if err != nil {
		return PoseState{}, err
	}
	for _, kind := range kindsFor(sel) {
		if aa.caches[kind].current.active {
			return PoseState{IsActive: true}, nil
		}
	}
	return PoseState{}, nil
}

func (a *attachment) ApplyHaptic(act Action, subaction path.ID, v device.OutputValue) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	aa, sel, err := a.lookup(act, ActionTypeVibrationOutput, subaction)
	if err != nil {
		return err
	}

	now := a.now()
	stop := now
	if v.DurationNs > 0 {
		stop = now + v.DurationNs
	}
	for _, kind := range kindsFor(sel) {
		if c := &aa.caches[kind]; len(c.outputs) > 0 {
			c.applyOutput(a.log, stop, v)
		}
	}
	return nil
}

func (a *attachment) StopHaptic(act Action, subaction path.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	aa, sel, err := a.lookup(act, ActionTypeVibrationOutput, subaction)
	if err != nil {
		return err
	}
	for _, kind := range kindsFor(sel) {
		if c := &aa.caches[kind]; len(c.outputs) > 0 {
			c.stopOutput(a.log)
		}
	}
	return nil
}

func (a *attachment) CurrentProfile(topLevel path.ID) (path.ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.attached {
		return path.NullID, result.Errorf(result.ActionSetNotAttached, "no action sets attached")
	}
	kind, ok := a.ctx.Paths().Classify(topLevel)
	if !ok {
		s, _ := a.ctx.Paths().String(topLevel)
		return path.NullID, result.Errorf(result.PathUnsupported, "%q is not a top-level user path", s)
	}
	return a.profileIDs[kind], nil
}

func (a *attachment) EnumerateBoundSources(act Action, dst []path.ID) (int, error) {
	a.mu.Lock()
	if !a.attached {
		a.mu.Unlock()
		return 0, result.Errorf(result.ActionSetNotAttached, "no action sets attached")
	}
	aa, _, err := a.lookup(act, 0, path.NullID)
	if err != nil {
		a.mu.Unlock()
		return 0, err
	}
	var sources []path.ID
	for kind := range aa.caches {
		for _, id := range aa.caches[kind].bound {
			if id != path.NullID && !slices.Contains(sources, id) {
				sources = append(sources, id)
			}
		}
	}
	a.mu.Unlock()
	return result.TwoCall(dst, sources)
}

func (a *attachment) PoseInput(actionKey uint32, sel path.SubactionSet) (device.Device, device.InputName, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	aa, ok := a.actions[actionKey]
	if !ok || aa.ref.Value().typ != ActionTypePose {
		return nil, "", false
	}
	for _, kind := range posePriority {
		c := &aa.caches[kind]
		if !(sel.Any || sel.Has(kind)) || !c.current.active || len(c.inputs) == 0 {
			continue
		}
		return c.inputs[0].dev, c.inputs[0].input, true
	}
	return nil, "", false
}

func (a *attachment) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true

	for _, aa := range a.order {
		for kind := range aa.caches {
			if c := &aa.caches[kind]; c.stopOutputNs > 0 {
				c.stopOutput(a.log)
			}
		}
		aa.ref.Release()
	}
	for _, ref := range a.sets {
		ref.Release()
	}
	a.order = nil
	a.actions = make(map[uint32]*actionAttachment)
	a.sets = make(map[uint32]*handle.RefCell[*setData])
	a.attached = false

	if a.pool != nil {
		a.pool.Stop()
		a.pool = nil
	}
}
