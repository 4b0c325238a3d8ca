package engine

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/session"
	"github.com/Carmen-Shannon/oxy-xr/engine/space"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalEntrypoints(t *testing.T) {
	fn, err := GetInstanceProcAddr(nil, "xrEnumerateInstanceExtensionProperties")
	require.NoError(t, err)
	enumerate, ok := fn.(func([]ExtensionProperties) (int, error))
	require.True(t, ok)
	n, err := enumerate(nil)
	require.NoError(t, err)
	assert.Equal(t, len(supportedExtensions), n)

	_, err = GetInstanceProcAddr(nil, "xrCreateSession")
	assert.ErrorIs(t, err, result.ErrFunctionUnsupported, "instance functions need an instance")
}

func TestInstanceEntrypoints(t *testing.T) {
	inst := newInstance(t, ExtHeadless)

	fn, err := GetInstanceProcAddr(inst, "xrCreateSession")
	require.NoError(t, err)
	create, ok := fn.(func(context.Context, SessionCreateInfo) (session.Session, error))
	require.True(t, ok)
	s, err := create(context.Background(), SessionCreateInfo{SystemID: SystemHMD, Binding: BindingNone})
	require.NoError(t, err)

	fn, err = inst.GetProcAddr("xrBeginSession")
	require.NoError(t, err)
	begin, ok := fn.(func(session.Session, session.ViewConfigurationType) error)
	require.True(t, ok)
	require.NoError(t, begin(s, session.ViewConfigurationPrimaryStereo))

	fn, err = inst.GetProcAddr("xrAcquireSwapchainImage")
	require.NoError(t, err)
	_, ok = fn.(func(swapchain.Swapchain) (uint32, error))
	assert.True(t, ok)

	fn, err = inst.GetProcAddr("xrGetInstanceProcAddr")
	require.NoError(t, err)
	_, ok = fn.(func(Instance, string) (any, error))
	assert.True(t, ok)
}

func TestEntrypointsOfDisabledExtensions(t *testing.T) {
	plain := newInstance(t)
	_, err := plain.GetProcAddr("xrConvertTimeToTimespecTimeKHR")
	assert.ErrorIs(t, err, result.ErrFunctionUnsupported)
	_, err = plain.GetProcAddr("xrCreateHandTrackerEXT")
	assert.ErrorIs(t, err, result.ErrFunctionUnsupported)

	inst := newInstance(t, ExtConvertTimespecTime)
	fn, err := inst.GetProcAddr("xrConvertTimeToTimespecTimeKHR")
	require.NoError(t, err)
	convert, ok := fn.(func(int64) (common.Timespec, error))
	require.True(t, ok)
	ts, err := convert(inst.Now())
	require.NoError(t, err)
	assert.Positive(t, ts.Nano())
}

func TestDebugEntrypointsLogsEachCall(t *testing.T) {
	var buf bytes.Buffer
	common.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { common.SetLogger(nil) })

	cfg := testConfig()
	cfg.DebugEntrypoints = true
	inst, err := NewInstance(InstanceCreateInfo{ApplicationName: "dispatch-test"}, WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Destroy() })

	fn, err := inst.GetProcAddr("xrStringToPath")
	require.NoError(t, err)
	toPath, ok := fn.(func(string) (path.ID, error))
	require.True(t, ok, "the logging wrapper keeps the function type")
	assert.NotContains(t, buf.String(), "entrypoint called")

	for range 2 {
		_, err = toPath("/user/head")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, strings.Count(buf.String(), "name=xrStringToPath"))

	fn, err = GetInstanceProcAddr(inst, "xrCreateInstance")
	require.NoError(t, err)
	_, ok = fn.(func(InstanceCreateInfo, ...InstanceBuilderOption) (Instance, error))
	assert.True(t, ok)
}

func TestDestroySpaceEntrypoint(t *testing.T) {
	inst := newInstance(t, ExtHeadless)
	s, err := inst.CreateSession(context.Background(), SessionCreateInfo{SystemID: SystemHMD, Binding: BindingNone})
	require.NoError(t, err)
	sp, err := s.CreateReferenceSpace(space.ReferenceLocal, common.IdentityPose())
	require.NoError(t, err)

	fn, err := inst.GetProcAddr("xrDestroySpace")
	require.NoError(t, err)
	destroy, ok := fn.(func(space.Space) error)
	require.True(t, ok)
	require.NoError(t, destroy(sp))
	_, err = s.LocateSpace(sp, sp, inst.Now())
	assert.ErrorIs(t, err, result.ErrHandleInvalid)
}
