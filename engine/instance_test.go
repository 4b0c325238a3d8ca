package engine

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPeriodNs = 5 * common.MillisecondNs

func testConfig() config.Config {
	cfg := config.Default()
	cfg.FramePeriod = time.Duration(testPeriodNs)
	cfg.Target = config.TargetHeadless
	cfg.NoPrinting = true
	return cfg
}

func newInstance(t *testing.T, extensions ...string) Instance {
	t.Helper()
	clock := common.NewTimeState()
	hmd := device.NewSimulatedHMD(
		device.WithScreen(64, 32, testPeriodNs, 90),
		device.WithMotion(device.MotionStationary),
		device.WithClock(clock.Now),
	)
	inst, err := NewInstance(InstanceCreateInfo{
		ApplicationName:   "instance-test",
		APIVersion:        CurrentAPIVersion,
		EnabledExtensions: extensions,
	}, WithConfig(testConfig()), WithClock(clock), WithHMD(hmd))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Destroy() })
	return inst
}

func drainInstance(inst Instance) []session.State {
	var states []session.State
	for {
		e, res := inst.PollEvent()
		if res == result.EventUnavailable {
			return states
		}
		if e.Type == session.EventSessionStateChanged {
			states = append(states, e.State)
		}
	}
}

func TestNewInstanceValidation(t *testing.T) {
	cases := []struct {
		name string
		info InstanceCreateInfo
		want error
	}{
		{"empty application name", InstanceCreateInfo{}, result.ErrNameInvalid},
		{"unsupported major version", InstanceCreateInfo{ApplicationName: "app", APIVersion: MakeVersion(2, 0, 0)}, result.ErrAPIVersionUnsupported},
		{"unknown extension", InstanceCreateInfo{ApplicationName: "app", EnabledExtensions: []string{"XR_EXT_nope"}}, result.ErrExtensionNotPresent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInstance(tc.info, WithConfig(testConfig()))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestVersion(t *testing.T) {
	v := MakeVersion(1, 2, 3)
	assert.Equal(t, uint32(1), v.Major())
	assert.Equal(t, uint32(2), v.Minor())
	assert.Equal(t, uint32(3), v.Patch())
	assert.Equal(t, "1.2.3", v.String())
}

func TestEnumerateInstanceExtensions(t *testing.T) {
	n, err := EnumerateInstanceExtensions(nil)
	require.NoError(t, err)
	require.Equal(t, len(supportedExtensions), n)

	_, err = EnumerateInstanceExtensions(make([]ExtensionProperties, 1))
	assert.ErrorIs(t, err, result.ErrSizeInsufficient)

	props := make([]ExtensionProperties, n)
	_, err = EnumerateInstanceExtensions(props)
	require.NoError(t, err)
	names := make([]string, n)
	for i, p := range props {
		names[i] = p.Name
	}
	assert.Contains(t, names, ExtHeadless)
	assert.Contains(t, names, ExtConvertTimespecTime)

	n, err = EnumerateAPILayers(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSystemQueries(t *testing.T) {
	inst := newInstance(t)

	_, err := inst.GetSystem(FormFactorHandheldDisplay)
	assert.ErrorIs(t, err, result.ErrFormFactorUnsupported)
	sys, err := inst.GetSystem(FormFactorHeadMountedDisplay)
	require.NoError(t, err)

	_, err = inst.SystemProperties(sys + 1)
	assert.ErrorIs(t, err, result.ErrSystemInvalid)
	props, err := inst.SystemProperties(sys)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), props.VendorID)
	assert.Equal(t, uint32(16), props.MaxLayerCount)
	assert.Equal(t, uint32(16384), props.MaxSwapchainImageWidth)
	assert.True(t, props.OrientationTracking)

	n, err := inst.EnumerateViewConfigurations(sys, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	cfgs := make([]session.ViewConfigurationType, n)
	_, err = inst.EnumerateViewConfigurations(sys, cfgs)
	require.NoError(t, err)
	assert.Equal(t, session.ViewConfigurationPrimaryStereo, cfgs[0])

	_, err = inst.ViewConfigurationProperties(sys, session.ViewConfigurationPrimaryMono)
	assert.ErrorIs(t, err, result.ErrViewConfigurationType)

	modes := make([]device.BlendMode, 4)
	n, err = inst.EnumerateEnvironmentBlendModes(sys, session.ViewConfigurationPrimaryStereo, modes)
	require.NoError(t, err)
	assert.Equal(t, []device.BlendMode{device.BlendModeOpaque}, modes[:n])

	views := make([]ViewConfigurationView, 2)
	n, err = inst.EnumerateViewConfigurationViews(sys, session.ViewConfigurationPrimaryStereo, views)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	assert.Equal(t, uint32(32), views[0].RecommendedImageRectWidth, "each eye gets half the panel")
	assert.Equal(t, uint32(32), views[0].RecommendedImageRectHeight)
	assert.Equal(t, uint32(1), views[1].MaxSwapchainSampleCount)
}

func TestCreateSessionLimits(t *testing.T) {
	inst := newInstance(t)
	ctx := context.Background()

	_, err := inst.CreateSession(ctx, SessionCreateInfo{SystemID: 7, Binding: BindingVulkan})
	assert.ErrorIs(t, err, result.ErrSystemInvalid)
	_, err = inst.CreateSession(ctx, SessionCreateInfo{SystemID: SystemHMD, Binding: BindingNone})
	assert.ErrorIs(t, err, result.ErrGraphicsDeviceInvalid, "headless needs the extension")

	s, err := inst.CreateSession(ctx, SessionCreateInfo{SystemID: SystemHMD, Binding: BindingVulkan})
	require.NoError(t, err)
	_, err = inst.CreateSession(ctx, SessionCreateInfo{SystemID: SystemHMD, Binding: BindingVulkan})
	assert.ErrorIs(t, err, result.ErrLimitReached)

	require.NoError(t, s.Destroy())
	s, err = inst.CreateSession(ctx, SessionCreateInfo{SystemID: SystemHMD, Binding: BindingVulkan})
	require.NoError(t, err, "destroying the session frees the slot")
	assert.Contains(t, inst.Handles().Children(inst.Handle()), s.Handle())
}

func TestHeadlessSessionEvents(t *testing.T) {
	inst := newInstance(t, ExtHeadless)
	s, err := inst.CreateSession(context.Background(), SessionCreateInfo{SystemID: SystemHMD, Binding: BindingNone})
	require.NoError(t, err)
	assert.True(t, s.Headless())

	assert.Equal(t, []session.State{session.StateIdle, session.StateReady}, drainInstance(inst))
	_, res := inst.PollEvent()
	assert.Equal(t, result.EventUnavailable, res)
}

func TestEscapeRequestsExit(t *testing.T) {
	inst := newInstance(t, ExtHeadless)
	s, err := inst.CreateSession(context.Background(), SessionCreateInfo{SystemID: SystemHMD, Binding: BindingNone})
	require.NoError(t, err)
	require.NoError(t, s.Begin(session.ViewConfigurationPrimaryStereo))
	drainInstance(inst)

	inst.(*instance).handleKey(common.KeyEsc, true)
	states := drainInstance(inst)
	require.NotEmpty(t, states)
	assert.Equal(t, session.StateStopping, states[len(states)-1])

	require.NoError(t, s.End())
	assert.Equal(t, []session.State{session.StateIdle, session.StateExiting}, drainInstance(inst))
}

func TestPaths(t *testing.T) {
	inst := newInstance(t)
	id, err := inst.StringToPath("/user/hand/left")
	require.NoError(t, err)
	assert.NotEqual(t, path.NullID, id)

	again, err := inst.StringToPath("/user/hand/left")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	s, err := inst.PathToString(id)
	require.NoError(t, err)
	assert.Equal(t, "/user/hand/left", s)

	_, err = inst.StringToPath("no/leading/slash")
	assert.ErrorIs(t, err, result.ErrPathFormatInvalid)
}

func TestTimeConversion(t *testing.T) {
	plain := newInstance(t)
	_, err := plain.ConvertTimeToTimespec(plain.Now())
	assert.ErrorIs(t, err, result.ErrFunctionUnsupported)

	inst := newInstance(t, ExtConvertTimespecTime)
	now := inst.Now()
	ts, err := inst.ConvertTimeToTimespec(now)
	require.NoError(t, err)
	back, err := inst.ConvertTimespecToTime(ts)
	require.NoError(t, err)
	assert.Equal(t, now, back)

	_, err = inst.ConvertTimeToTimespec(0)
	assert.ErrorIs(t, err, result.ErrTimeInvalid)
	_, err = inst.ConvertTimespecToTime(common.Timespec{})
	assert.ErrorIs(t, err, result.ErrTimeInvalid)
}

func TestDestroyCascades(t *testing.T) {
	inst := newInstance(t)
	s, err := inst.CreateSession(context.Background(), SessionCreateInfo{SystemID: SystemHMD, Binding: BindingVulkan})
	require.NoError(t, err)
	_, err = inst.CreateActionSet("gameplay", "Gameplay", 0)
	require.NoError(t, err)
	require.Equal(t, 3, inst.Handles().Live())

	require.NoError(t, inst.Destroy())
	assert.Zero(t, inst.Handles().Live())
	assert.Equal(t, session.StateExiting, s.State())

	_, err = inst.CreateSession(context.Background(), SessionCreateInfo{SystemID: SystemHMD, Binding: BindingVulkan})
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
	_, err = inst.StringToPath("/user/head")
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
	require.NoError(t, inst.Destroy(), "destroy is idempotent")
}
