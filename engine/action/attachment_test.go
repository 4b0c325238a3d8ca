package action

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rig is an action context with simulated controllers on both hands and a settable clock.
type rig struct {
	ctx   Context
	reg   path.Registry
	now   int64
	left  device.SimulatedController
	right device.SimulatedController
	set   ActionSet
}

func newRig(t *testing.T, profile string) *rig {
	t.Helper()
	left, err := device.NewSimulatedController(profile, "/user/hand/left")
	require.NoError(t, err)
	right, err := device.NewSimulatedController(profile, "/user/hand/right")
	require.NoError(t, err)

	ctx := NewContext()
	set, err := ctx.CreateActionSet("gameplay", "Gameplay", 0)
	require.NoError(t, err)
	return &rig{ctx: ctx, reg: ctx.Paths(), now: common.SecondNs, left: left, right: right, set: set}
}

func (r *rig) hands() []path.ID {
	return []path.ID{r.reg.SubactionID(path.SubactionLeft), r.reg.SubactionID(path.SubactionRight)}
}

func (r *rig) action(t *testing.T, name string, typ ActionType) Action {
	t.Helper()
	a, err := r.set.CreateAction(name, name, typ, r.hands())
	require.NoError(t, err)
	return a
}

func (r *rig) suggest(t *testing.T, profile string, pairs map[Action][]string) {
	t.Helper()
	var bindings []SuggestedBinding
	for a, paths := range pairs {
		for _, p := range paths {
			bindings = append(bindings, SuggestedBinding{Action: a, Binding: mustPath(t, r.reg, p)})
		}
	}
	require.NoError(t, r.ctx.SuggestBindings(mustPath(t, r.reg, profile), bindings))
}

func (r *rig) attach(t *testing.T, options ...AttachmentBuilderOption) Attachment {
	t.Helper()
	opts := append([]AttachmentBuilderOption{
		WithDevice(path.SubactionLeft, r.left),
		WithDevice(path.SubactionRight, r.right),
		WithNow(func() int64 { return r.now }),
	}, options...)
	a := NewAttachment(r.ctx, opts...)
	t.Cleanup(a.Close)
	require.NoError(t, a.Attach([]ActionSet{r.set}))
	return a
}

func (r *rig) sync(t *testing.T, a Attachment) {
	t.Helper()
	res, err := a.Sync([]ActiveSet{{Set: r.set}})
	require.NoError(t, err)
	require.Equal(t, result.Success, res)
}

func (r *rig) leftPath(s string) path.ID {
	return r.reg.Lookup("/user/hand/left" + s)
}

func TestAttachMakesSetsImmutable(t *testing.T) {
	r := newRig(t, simpleProfile)
	r.action(t, "alpha", ActionTypeBoolean)
	a := r.attach(t)

	assert.True(t, r.set.Attached())
	_, err := r.set.CreateAction("beta", "beta", ActionTypeBoolean, nil)
	assert.ErrorIs(t, err, result.ErrActionSetsAlreadyAttached)
	assert.ErrorIs(t, a.Attach([]ActionSet{r.set}), result.ErrActionSetsAlreadyAttached)
}

func TestAttachValidation(t *testing.T) {
	r := newRig(t, simpleProfile)
	a := NewAttachment(r.ctx)
	defer a.Close()

	assert.ErrorIs(t, a.Attach(nil), result.ErrValidationFailure)
	assert.ErrorIs(t, a.Attach([]ActionSet{r.set, r.set}), result.ErrValidationFailure)
	_, err := a.Sync([]ActiveSet{{Set: r.set}})
	assert.ErrorIs(t, err, result.ErrActionSetNotAttached)
	_, err = a.CurrentProfile(r.reg.SubactionID(path.SubactionLeft))
	assert.ErrorIs(t, err, result.ErrActionSetNotAttached)
}

func TestSyncWithoutInputChangeIsUnchanged(t *testing.T) {
	r := newRig(t, simpleProfile)
	sel := r.action(t, "select", ActionTypeBoolean)
	r.suggest(t, simpleProfile, map[Action][]string{
		sel: {"/user/hand/left/input/select/click", "/user/hand/right/input/select/click"},
	})
	a := r.attach(t)

	r.sync(t, a)
	first, err := a.GetBoolean(sel, path.NullID)
	require.NoError(t, err)
	assert.True(t, first.IsActive)
	assert.False(t, first.ChangedSinceLastSync)
	assert.False(t, first.CurrentState)

	r.now += common.MillisecondNs
	r.sync(t, a)
	second, err := a.GetBoolean(sel, path.NullID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	clickName, ok := r.left.InputFor("input/select/click")
	require.True(t, ok)
	require.NoError(t, r.left.SetBool(clickName, true))
	r.now += common.MillisecondNs
	r.sync(t, a)

	left, err := a.GetBoolean(sel, r.reg.SubactionID(path.SubactionLeft))
	require.NoError(t, err)
	assert.True(t, left.CurrentState)
	assert.True(t, left.ChangedSinceLastSync)
	assert.Equal(t, r.now, left.LastChangeTime)

	right, err := a.GetBoolean(sel, r.reg.SubactionID(path.SubactionRight))
	require.NoError(t, err)
	assert.False(t, right.CurrentState)
	assert.False(t, right.ChangedSinceLastSync)

	rollup, err := a.GetBoolean(sel, path.NullID)
	require.NoError(t, err)
	assert.True(t, rollup.CurrentState)
	assert.True(t, rollup.ChangedSinceLastSync)

	changedAt := r.now
	r.now += common.MillisecondNs
	r.sync(t, a)
	left, err = a.GetBoolean(sel, r.reg.SubactionID(path.SubactionLeft))
	require.NoError(t, err)
	assert.True(t, left.CurrentState)
	assert.False(t, left.ChangedSinceLastSync)
	assert.Equal(t, changedAt, left.LastChangeTime)
}

func TestActiveMatchesDeviceActivity(t *testing.T) {
	r := newRig(t, simpleProfile)
	sel := r.action(t, "select", ActionTypeBoolean)
	aim := r.action(t, "aim", ActionTypePose)
	r.suggest(t, simpleProfile, map[Action][]string{
		sel: {"/user/hand/left/input/select/click"},
		aim: {"/user/hand/left/input/aim/pose", "/user/hand/right/input/aim/pose"},
	})
	a := r.attach(t)
	r.sync(t, a)

	leftID, rightID := r.reg.SubactionID(path.SubactionLeft), r.reg.SubactionID(path.SubactionRight)
	s, err := a.GetBoolean(sel, leftID)
	require.NoError(t, err)
	assert.True(t, s.IsActive)
	s, err = a.GetBoolean(sel, rightID)
	require.NoError(t, err)
	assert.False(t, s.IsActive, "no binding on the right hand")

	p, err := a.GetPose(aim, path.NullID)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	dev, input, ok := a.PoseInput(aim.Key(), path.SubactionSet{}.With(path.SubactionRight))
	require.True(t, ok)
	assert.Equal(t, r.right, dev)
	assert.Equal(t, device.InputName("simple_aim_pose"), input)

	r.left.SetActive(false)
	r.now += common.MillisecondNs
	r.sync(t, a)
	s, err = a.GetBoolean(sel, leftID)
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	p, err = a.GetPose(aim, leftID)
	require.NoError(t, err)
	assert.False(t, p.IsActive)
	p, err = a.GetPose(aim, path.NullID)
	require.NoError(t, err)
	assert.True(t, p.IsActive, "the right hand is still tracked")
}

func TestUnselectedSetsReportInactive(t *testing.T) {
	r := newRig(t, simpleProfile)
	sel := r.action(t, "select", ActionTypeBoolean)
	r.suggest(t, simpleProfile, map[Action][]string{
		sel: {"/user/hand/left/input/select/click", "/user/hand/right/input/select/click"},
	})
	a := r.attach(t)

	res, err := a.Sync([]ActiveSet{{Set: r.set, Subaction: r.reg.SubactionID(path.SubactionRight)}})
	require.NoError(t, err)
	assert.Equal(t, result.Success, res)

	s, err := a.GetBoolean(sel, r.reg.SubactionID(path.SubactionLeft))
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	s, err = a.GetBoolean(sel, r.reg.SubactionID(path.SubactionRight))
	require.NoError(t, err)
	assert.True(t, s.IsActive)

	res, err = a.Sync(nil)
	require.NoError(t, err)
	assert.Equal(t, result.Success, res)
	s, err = a.GetBoolean(sel, path.NullID)
	require.NoError(t, err)
	assert.False(t, s.IsActive)

	_, err = a.Sync([]ActiveSet{{Set: r.set, Subaction: mustPath(t, r.reg, "/user/hand/left/input")}})
	assert.ErrorIs(t, err, result.ErrPathUnsupported)

	other, err := r.ctx.CreateActionSet("menu", "Menu", 0)
	require.NoError(t, err)
	_, err = a.Sync([]ActiveSet{{Set: other}})
	assert.ErrorIs(t, err, result.ErrActionSetNotAttached)
}

func TestSyncWhileUnfocused(t *testing.T) {
	r := newRig(t, simpleProfile)
	sel := r.action(t, "select", ActionTypeBoolean)
	r.suggest(t, simpleProfile, map[Action][]string{sel: {"/user/hand/left/input/select/click"}})
	focused := false
	a := r.attach(t, WithFocus(func() bool { return focused }))

	res, err := a.Sync([]ActiveSet{{Set: r.set}})
	require.NoError(t, err)
	assert.Equal(t, result.SessionNotFocused, res)
	s, err := a.GetBoolean(sel, path.NullID)
	require.NoError(t, err)
	assert.False(t, s.IsActive)

	focused = true
	r.sync(t, a)
	s, err = a.GetBoolean(sel, path.NullID)
	require.NoError(t, err)
	assert.True(t, s.IsActive)
}

func TestGetterErrors(t *testing.T) {
	r := newRig(t, simpleProfile)
	sel := r.action(t, "select", ActionTypeBoolean)
	free, err := r.set.CreateAction("free", "Free", ActionTypeBoolean, nil)
	require.NoError(t, err)
	a := r.attach(t)
	r.sync(t, a)

	_, err = a.GetFloat(sel, path.NullID)
	assert.ErrorIs(t, err, result.ErrActionTypeMismatch)
	_, err = a.GetBoolean(sel, r.reg.SubactionID(path.SubactionHead))
	assert.ErrorIs(t, err, result.ErrPathUnsupported)
	_, err = a.GetBoolean(free, r.reg.SubactionID(path.SubactionLeft))
	assert.ErrorIs(t, err, result.ErrPathUnsupported, "created without subaction paths")
	_, err = a.GetBoolean(nil, path.NullID)
	assert.ErrorIs(t, err, result.ErrHandleInvalid)

	detached, err := r.ctx.CreateActionSet("menu", "Menu", 0)
	require.NoError(t, err)
	orphan, err := detached.CreateAction("open", "Open", ActionTypeBoolean, nil)
	require.NoError(t, err)
	_, err = a.GetBoolean(orphan, path.NullID)
	assert.ErrorIs(t, err, result.ErrActionSetNotAttached)
	assert.ErrorIs(t, a.ApplyHaptic(sel, path.NullID, device.OutputValue{Amplitude: 1}), result.ErrActionTypeMismatch)
}

func TestActionDataOutlivesHandle(t *testing.T) {
	r := newRig(t, simpleProfile)
	sel := r.action(t, "select", ActionTypeBoolean)
	menu := r.action(t, "menu", ActionTypeBoolean)
	r.suggest(t, simpleProfile, map[Action][]string{
		sel:  {"/user/hand/left/input/select/click"},
		menu: {"/user/hand/left/input/menu/click"},
	})
	a := r.attach(t)

	sel.Destroy()
	assert.True(t, sel.Destroyed())
	r.sync(t, a)
	_, err := a.GetBoolean(sel, path.NullID)
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
	_, err = a.EnumerateBoundSources(sel, nil)
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
	s, err := a.GetBoolean(menu, path.NullID)
	require.NoError(t, err, "the rest of the set keeps working")
	assert.True(t, s.IsActive)

	r.set.Destroy()
	assert.True(t, menu.Destroyed(), "destroying the set destroys its actions")
	_, err = a.GetBoolean(menu, path.NullID)
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
	_, err = a.Sync([]ActiveSet{{Set: r.set}})
	assert.ErrorIs(t, err, result.ErrHandleInvalid)

	// The attachment still owns the data of the destroyed handles.
	res, err := a.Sync(nil)
	require.NoError(t, err)
	assert.Equal(t, result.Success, res)
}

func TestFloatFromVec2Component(t *testing.T) {
	r := newRig(t, viveProfile)
	x := r.action(t, "steer", ActionTypeFloat)
	look := r.action(t, "look", ActionTypeVector2f)
	trigger := r.action(t, "throttle", ActionTypeFloat)
	r.suggest(t, viveProfile, map[Action][]string{
		x:       {"/user/hand/left/input/trackpad/x"},
		look:    {"/user/hand/left/input/trackpad"},
		trigger: {"/user/hand/left/input/trigger/value", "/user/hand/right/input/trigger/value"},
	})
	a := r.attach(t)

	pad, ok := r.left.InputFor("input/trackpad")
	require.True(t, ok)
	require.NoError(t, r.left.SetVec2(pad, mgl32.Vec2{0.5, -0.25}))
	require.NoError(t, r.left.SetFloat("vive_trigger_value", 0.3))
	require.NoError(t, r.right.SetFloat("vive_trigger_value", 0.8))
	r.sync(t, a)

	f, err := a.GetFloat(x, path.NullID)
	require.NoError(t, err)
	assert.True(t, f.IsActive)
	assert.InDelta(t, 0.5, f.CurrentState, 1e-6)

	v, err := a.GetVector2f(look, path.NullID)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec2{0.5, -0.25}, v.CurrentState)

	f, err = a.GetFloat(trigger, path.NullID)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, f.CurrentState, 1e-6, "the roll-up reports the largest value")
	f, err = a.GetFloat(trigger, r.reg.SubactionID(path.SubactionLeft))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, f.CurrentState, 1e-6)
}

func TestParentPathAggregation(t *testing.T) {
	for _, tt := range []struct {
		name   string
		policy CombinePolicy
		want   bool
	}{
		{"first active reports the click", FirstActive{}, false},
		{"strongest reports any press", Strongest{}, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, viveProfile)
			pad := r.action(t, "pad", ActionTypeBoolean)
			r.suggest(t, viveProfile, map[Action][]string{pad: {"/user/hand/left/input/trackpad"}})
			a := r.attach(t, WithCombinePolicy(tt.policy))

			touch, ok := r.left.InputFor("input/trackpad/touch")
			require.True(t, ok)
			require.NoError(t, r.left.SetBool(touch, true))
			r.sync(t, a)

			s, err := a.GetBoolean(pad, path.NullID)
			require.NoError(t, err)
			assert.True(t, s.IsActive)
			assert.Equal(t, tt.want, s.CurrentState)

			n, err := a.EnumerateBoundSources(pad, nil)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestHapticStop(t *testing.T) {
	r := newRig(t, simpleProfile)
	buzz := r.action(t, "buzz", ActionTypeVibrationOutput)
	r.suggest(t, simpleProfile, map[Action][]string{buzz: {"/user/hand/right/output/haptic"}})
	r.now = 0
	a := r.attach(t)
	r.sync(t, a)

	rightID := r.reg.SubactionID(path.SubactionRight)
	require.NoError(t, a.ApplyHaptic(buzz, rightID, device.OutputValue{Amplitude: 1, FrequencyHz: 160, DurationNs: 200 * common.MillisecondNs}))
	cache := &a.(*attachment).actions[buzz.Key()].caches[path.SubactionRight]
	assert.Equal(t, int64(200*common.MillisecondNs), cache.stopOutputNs)

	r.now = 50 * common.MillisecondNs
	require.NoError(t, a.StopHaptic(buzz, rightID))

	log := r.right.OutputLog()
	require.Len(t, log, 2)
	assert.Equal(t, device.OutputName("simple_vibration"), log[1].Name)
	assert.True(t, log[1].Value.IsZero())
	assert.Zero(t, cache.stopOutputNs)
	assert.Empty(t, r.left.OutputLog())
}

func TestHapticExpiresOnSync(t *testing.T) {
	r := newRig(t, simpleProfile)
	buzz := r.action(t, "buzz", ActionTypeVibrationOutput)
	r.suggest(t, simpleProfile, map[Action][]string{
		buzz: {"/user/hand/left/output/haptic", "/user/hand/right/output/haptic"},
	})
	a := r.attach(t)

	require.NoError(t, a.ApplyHaptic(buzz, path.NullID, device.OutputValue{Amplitude: 0.5, DurationNs: 10 * common.MillisecondNs}))
	require.Len(t, r.left.OutputLog(), 1)
	require.Len(t, r.right.OutputLog(), 1)

	r.now += 5 * common.MillisecondNs
	r.sync(t, a)
	assert.Len(t, r.left.OutputLog(), 1, "still running")

	r.now += 10 * common.MillisecondNs
	r.sync(t, a)
	log := r.left.OutputLog()
	require.Len(t, log, 2)
	assert.True(t, log[1].Value.IsZero())

	r.sync(t, a)
	assert.Len(t, r.left.OutputLog(), 2, "a stopped output is not silenced again")
}

func TestCurrentProfileAndBoundSources(t *testing.T) {
	r := newRig(t, simpleProfile)
	sel := r.action(t, "select", ActionTypeBoolean)
	r.suggest(t, simpleProfile, map[Action][]string{
		sel: {"/user/hand/left/input/select/click", "/user/hand/right/input/select"},
	})
	notified := 0
	a := r.attach(t, WithProfileChangedHandler(func() { notified++ }))
	assert.Equal(t, 1, notified)

	got, err := a.CurrentProfile(r.reg.SubactionID(path.SubactionLeft))
	require.NoError(t, err)
	assert.Equal(t, r.reg.Lookup(simpleProfile), got)
	got, err = a.CurrentProfile(r.reg.SubactionID(path.SubactionGamepad))
	require.NoError(t, err)
	assert.Equal(t, path.NullID, got, "no gamepad device")
	_, err = a.CurrentProfile(mustPath(t, r.reg, "/user/hand"))
	assert.ErrorIs(t, err, result.ErrPathUnsupported)

	n, err := a.EnumerateBoundSources(sel, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = a.EnumerateBoundSources(sel, make([]path.ID, 1))
	assert.ErrorIs(t, err, result.ErrSizeInsufficient)
	buf := make([]path.ID, 2)
	n, err = a.EnumerateBoundSources(sel, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, r.leftPath("/input/select/click"), buf[0])
}

func TestNoSuggestionsSelectsNoProfile(t *testing.T) {
	r := newRig(t, simpleProfile)
	r.action(t, "select", ActionTypeBoolean)
	notified := false
	a := r.attach(t, WithProfileChangedHandler(func() { notified = true }))
	assert.False(t, notified)

	got, err := a.CurrentProfile(r.reg.SubactionID(path.SubactionLeft))
	require.NoError(t, err)
	assert.Equal(t, path.NullID, got)
}
