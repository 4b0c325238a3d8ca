package device

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	simplePath = "/interaction_profiles/khr/simple_controller"
	indexPath  = "/interaction_profiles/valve/index_controller"
	touchPath  = "/interaction_profiles/oculus/touch_controller"
)

func TestBuiltinProfilesLoad(t *testing.T) {
	profiles := Profiles()
	require.Len(t, profiles, 9)
	for _, p := range profiles {
		assert.NotEmpty(t, p.Bindings, p.Path)
	}
	_, ok := LookupProfile("/interaction_profiles/acme/unknown")
	assert.False(t, ok)
}

func TestSimpleProfileParentPaths(t *testing.T) {
	p, ok := LookupProfile(simplePath)
	require.True(t, ok)

	b, ok := p.FindBinding("/user/hand/left/input/select")
	require.True(t, ok)
	assert.Equal(t, InputName("simple_select_click"), b.Input)
	assert.Equal(t, []string{"/user/hand/left/input/select/click", "/user/hand/left/input/select"}, b.Paths)

	b, ok = p.FindBinding("/user/hand/right/input/aim")
	require.True(t, ok)
	assert.Equal(t, InputTypePose, b.InputType)

	b, ok = p.FindBinding("/user/hand/right/output/haptic")
	require.True(t, ok)
	assert.True(t, b.IsOutput())

	_, ok = p.FindBinding("/user/gamepad/input/select/click")
	assert.False(t, ok)
}

func TestIndexProfileExpansion(t *testing.T) {
	p, ok := LookupProfile(indexPath)
	require.True(t, ok)

	// The first component claiming a parent path keeps it.
	b, ok := p.FindBinding("/user/hand/left/input/trigger")
	require.True(t, ok)
	assert.Equal(t, InputName("index_trigger_click"), b.Input)

	b, ok = p.FindBinding("/user/hand/left/input/trigger/value")
	require.True(t, ok)
	assert.Equal(t, []string{"/user/hand/left/input/trigger/value"}, b.Paths)

	b, ok = p.FindBinding("/user/hand/left/input/thumbstick/y")
	require.True(t, ok)
	assert.Equal(t, InputTypeVec2MinusOneToOne, b.InputType)
	assert.Len(t, b.Paths, 3)

	b, ok = p.FindBinding("/user/hand/left/input/thumbstick/click")
	require.True(t, ok)
	assert.Equal(t, []string{"/user/hand/left/input/thumbstick/click"}, b.Paths, "suffix-only component")

	inputs := p.InputsFor("/user/hand/right")
	assert.Len(t, inputs, 19)
	assert.Equal(t, []Output{{Name: "index_haptic"}}, p.OutputsFor("/user/hand/right"))
}

func TestFindBindingsRollsUpParentPath(t *testing.T) {
	p, ok := LookupProfile(indexPath)
	require.True(t, ok)

	var names []InputName
	for _, b := range p.FindBindings("/user/hand/left/input/trackpad") {
		names = append(names, b.Input)
	}
	assert.Equal(t, []InputName{"index_trackpad", "index_trackpad_force", "index_trackpad_touch"}, names)

	got := p.FindBindings("/user/hand/left/input/trigger/value")
	require.Len(t, got, 1)
	assert.Equal(t, InputName("index_trigger_value"), got[0].Input)

	assert.Empty(t, p.FindBindings("/user/hand/left/input/nothing"))
}

func TestTouchProfilePerSideComponents(t *testing.T) {
	p, ok := LookupProfile(touchPath)
	require.True(t, ok)

	_, ok = p.FindBinding("/user/hand/left/input/x/click")
	assert.True(t, ok)
	_, ok = p.FindBinding("/user/hand/right/input/x/click")
	assert.False(t, ok)
	_, ok = p.FindBinding("/user/hand/right/input/a/click")
	assert.True(t, ok)
}

func TestLoadProfilesRejectsBadEntries(t *testing.T) {
	_, err := LoadProfiles([]byte("- path: /bad\n  user_paths: [/user/head]\n"))
	assert.Error(t, err)

	_, err = LoadProfiles([]byte(`
- path: /interaction_profiles/acme/x
  user_paths: [/user/head]
  components:
    - {path: input/a/click, type: bool}
`))
	assert.Error(t, err, "component without input or output")

	_, err = LoadProfiles([]byte(`
- path: /interaction_profiles/acme/x
  user_paths: [/user/head]
  components:
    - {path: input/a/click, input: a, type: banana}
`))
	assert.Error(t, err, "unknown input type")
}

func TestSimulatedControllerStagesUntilUpdate(t *testing.T) {
	c, err := NewSimulatedController(simplePath, "/user/hand/left")
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeLeftHandController, c.Type())
	assert.Equal(t, simplePath, c.PreferredProfile())

	sel, ok := c.InputFor("input/select/click")
	require.True(t, ok)
	require.NoError(t, c.SetBool(sel, true))

	in, _ := c.FindInput(sel)
	assert.False(t, in.Value.Boolean, "staged values are not visible before UpdateInputs")

	require.NoError(t, c.UpdateInputs(100))
	in, _ = c.FindInput(sel)
	assert.True(t, in.Value.Boolean)
	assert.True(t, in.Active)
	assert.Equal(t, int64(100), in.Timestamp)

	require.NoError(t, c.UpdateInputs(200))
	in, _ = c.FindInput(sel)
	assert.Equal(t, int64(100), in.Timestamp, "unchanged inputs keep their timestamp")

	assert.ErrorIs(t, c.SetFloat(sel, 0.5), ErrUnknownInput)
	assert.ErrorIs(t, c.SetBool("nope", true), ErrUnknownInput)
}

func TestSimulatedControllerClampsAndPoses(t *testing.T) {
	c, err := NewSimulatedController(indexPath, "/user/hand/right")
	require.NoError(t, err)

	require.NoError(t, c.SetFloat("index_trigger_value", 3))
	require.NoError(t, c.SetVec2("index_thumbstick", mgl32.Vec2{-4, 0.5}))
	require.NoError(t, c.UpdateInputs(1))

	in, _ := c.FindInput("index_trigger_value")
	assert.Equal(t, float32(1), in.Value.Vec1)
	in, _ = c.FindInput("index_thumbstick")
	assert.Equal(t, mgl32.Vec2{-1, 0.5}, in.Value.Vec2)

	rel, err := c.GetTrackedPose("index_grip_pose", 1)
	require.NoError(t, err)
	assert.True(t, rel.Flags.Has(common.RelationPoseValid))

	c.SetActive(false)
	require.NoError(t, c.UpdateInputs(2))
	in, _ = c.FindInput("index_grip_pose")
	assert.False(t, in.Active)
	rel, err = c.GetTrackedPose("index_grip_pose", 2)
	require.NoError(t, err)
	assert.Zero(t, rel.Flags)

	_, err = c.GetTrackedPose("index_trigger_value", 2)
	assert.ErrorIs(t, err, ErrUnknownInput)
}

func TestSimulatedControllerOutputs(t *testing.T) {
	c, err := NewSimulatedController(simplePath, "/user/hand/right")
	require.NoError(t, err)

	require.NoError(t, c.SetOutput("simple_vibration", OutputValue{Amplitude: 0.5, DurationNs: 10}))
	require.NoError(t, c.SetOutput("simple_vibration", OutputValue{}))
	assert.ErrorIs(t, c.SetOutput("missing", OutputValue{}), ErrUnknownOutput)

	log := c.OutputLog()
	require.Len(t, log, 2)
	assert.False(t, log[0].Value.IsZero())
	assert.True(t, log[1].Value.IsZero())
}

func TestNewSimulatedControllerErrors(t *testing.T) {
	_, err := NewSimulatedController("/interaction_profiles/acme/unknown", "/user/hand/left")
	assert.Error(t, err)
	_, err = NewSimulatedController(simplePath, "/user/gamepad")
	assert.Error(t, err)
}

func TestSimulatedHMDViews(t *testing.T) {
	now := int64(common.SecondNs)
	h := NewSimulatedHMD(WithClock(func() int64 { return now }))

	parts := h.HMD()
	require.NotNil(t, parts)
	assert.Equal(t, int32(1280), parts.Views[0].Display.Width)
	assert.Equal(t, int32(1280), parts.Views[1].Viewport.Offset.X)
	assert.True(t, parts.SupportsBlendMode(BlendModeOpaque))
	assert.False(t, parts.SupportsBlendMode(BlendModeAdditive))

	head, fovs, poses, err := h.GetViewPoses(mgl32.Vec3{0.063, 0, 0}, now, 2)
	require.NoError(t, err)
	assert.True(t, head.Flags.Has(common.RelationPoseValid|common.RelationPoseTracked))
	assert.InDelta(t, common.DefaultHeadHeight, head.Pose.Position.Y(), 1e-6)
	require.Len(t, fovs, 2)
	assert.InDelta(t, mgl32.DegToRad(85)/2, fovs[0].AngleRight, 1e-5)
	assert.InDelta(t, -0.0315, poses[0].Position.X(), 1e-6)
	assert.InDelta(t, 0.0315, poses[1].Position.X(), 1e-6)

	_, _, _, err = h.GetViewPoses(mgl32.Vec3{}, now, 3)
	assert.Error(t, err)
}

func TestSimulatedHMDClampsExtrapolation(t *testing.T) {
	now := int64(common.SecondNs)
	h := NewSimulatedHMD(WithClock(func() int64 { return now }), WithMotion(MotionRotate))

	far, err := h.GetTrackedPose(HeadPoseInput, now+common.SecondNs)
	require.NoError(t, err)
	limit, err := h.GetTrackedPose(HeadPoseInput, now+MaxPredictionNs)
	require.NoError(t, err)
	assert.InDelta(t, limit.Pose.Orientation.W, far.Pose.Orientation.W, 1e-6)

	// 100 ms at 0.5 rad/s is a 0.05 rad yaw.
	assert.InDelta(t, math32.Cos(0.025), limit.Pose.Orientation.W, 1e-5)
	assert.Equal(t, mgl32.Vec3{0, rotateSpeed, 0}, limit.AngularVelocity)

	_, err = h.GetTrackedPose("simple_aim_pose", now)
	assert.ErrorIs(t, err, ErrUnknownInput)
}

func TestDistortion(t *testing.T) {
	h := NewSimulatedHMD()
	tri, ok := h.ComputeDistortion(0, 0.25, 0.75)
	assert.True(t, ok)
	assert.Equal(t, mgl32.Vec2{0.25, 0.75}, tri.G)

	h = NewSimulatedHMD(WithPanotools(PanotoolsValues{
		K:               [4]float32{1, 0.5, 0, 0},
		AberrationScale: [3]float32{0.99, 1, 1.01},
		LensCenter:      [2]mgl32.Vec2{{0.5, 0.5}, {0.5, 0.5}},
	}))
	assert.Equal(t, DistortionPanotools, h.HMD().Distortion)

	tri, ok = h.ComputeDistortion(1, 0.5, 0.5)
	assert.True(t, ok)
	assert.Equal(t, mgl32.Vec2{0.5, 0.5}, tri.R, "the lens center does not move")

	tri, ok = h.ComputeDistortion(1, 0.7, 0.5)
	assert.True(t, ok)
	// r2 = 0.04, d = 1.02
	assert.InDelta(t, 0.5+0.2*1.02, tri.G.X(), 1e-6)
	assert.Less(t, tri.R.X(), tri.G.X())
	assert.Greater(t, tri.B.X(), tri.G.X())

	_, ok = h.ComputeDistortion(0, 1, 1)
	assert.False(t, ok)
}

func TestKeyboardDriver(t *testing.T) {
	left, err := NewSimulatedController(simplePath, "/user/hand/left")
	require.NoError(t, err)
	right, err := NewSimulatedController(simplePath, "/user/hand/right")
	require.NoError(t, err)
	hmd := NewSimulatedHMD()
	exits := 0

	kb := NewKeyboardDriver(
		WithLeftController(left),
		WithRightController(right),
		WithHeadset(hmd),
		WithExitHandler(func() { exits++ }),
	)

	assert.True(t, kb.HandleKey(common.KeySpace, true))
	require.NoError(t, left.UpdateInputs(1))
	require.NoError(t, right.UpdateInputs(1))
	in, _ := left.FindInput("simple_select_click")
	assert.True(t, in.Value.Boolean)
	in, _ = right.FindInput("simple_select_click")
	assert.True(t, in.Value.Boolean)

	assert.True(t, kb.HandleKey(common.KeyL, true))
	assert.False(t, right.Active())
	assert.True(t, kb.HandleKey(common.KeyL, false))
	assert.False(t, right.Active(), "release does not toggle")

	assert.True(t, kb.HandleKey(common.Key3, true))
	assert.Equal(t, MotionWobble, hmd.Motion())

	assert.True(t, kb.HandleKey(common.KeyEsc, true))
	assert.Equal(t, 1, exits)

	assert.False(t, kb.HandleKey(999, true))
}
