// Package engine is the runtime's client-facing entry point: instance creation, system queries,
// session creation, the event queue, path interning, time conversion, loader negotiation and
// entrypoint dispatch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/action"
	"github.com/Carmen-Shannon/oxy-xr/engine/compositor"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/handle"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/session"
	"github.com/Carmen-Shannon/oxy-xr/engine/target"
	"github.com/google/uuid"
)

// Version packs a major, minor and patch version the way the client API does.
type Version uint64

// MakeVersion builds a Version.
func MakeVersion(major, minor, patch uint32) Version {
	return Version(uint64(major&0xffff)<<48 | uint64(minor&0xffff)<<32 | uint64(patch))
}

func (v Version) Major() uint32 { return uint32(v >> 48 & 0xffff) }
func (v Version) Minor() uint32 { return uint32(v >> 32 & 0xffff) }
func (v Version) Patch() uint32 { return uint32(v & 0xffffffff) }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// CurrentAPIVersion is the client API version the runtime implements.
var CurrentAPIVersion = MakeVersion(1, 0, 34)

const (
	RuntimeName    = "oxy-xr"
	RuntimeVersion = "0.3.0"
)

// Extension names the runtime can enable.
const (
	ExtConvertTimespecTime       = "XR_KHR_convert_timespec_time"
	ExtHeadless                  = "XR_MND_headless"
	ExtCompositionLayerDepth     = "XR_KHR_composition_layer_depth"
	ExtCompositionLayerCube      = "XR_KHR_composition_layer_cube"
	ExtCompositionLayerCylinder  = "XR_KHR_composition_layer_cylinder"
	ExtCompositionLayerEquirect  = "XR_KHR_composition_layer_equirect"
	ExtCompositionLayerEquirect2 = "XR_KHR_composition_layer_equirect2"
)

// ExtensionProperties describes one supported extension.
type ExtensionProperties struct {
	Name    string
	Version uint32
}

var supportedExtensions = []ExtensionProperties{
	{Name: ExtConvertTimespecTime, Version: 1},
	{Name: ExtHeadless, Version: 2},
	{Name: ExtCompositionLayerDepth, Version: 6},
	{Name: ExtCompositionLayerCube, Version: 8},
	{Name: ExtCompositionLayerCylinder, Version: 4},
	{Name: ExtCompositionLayerEquirect, Version: 3},
	{Name: ExtCompositionLayerEquirect2, Version: 1},
}

// EnumerateInstanceExtensions lists the supported extensions with the two-call idiom.
//
// Parameters:
//   - dst: the caller buffer, empty to query the count
//
// Returns:
//   - int: the number of extensions
//   - error: SizeInsufficient if dst is non-empty but too small
func EnumerateInstanceExtensions(dst []ExtensionProperties) (int, error) {
	return result.TwoCall(dst, supportedExtensions)
}

// EnumerateAPILayers lists the API layers the runtime ships, which is none.
func EnumerateAPILayers(dst []string) (int, error) {
	return result.TwoCall[string](dst, nil)
}

// InstanceCreateInfo is what the application passes to NewInstance.
type InstanceCreateInfo struct {
	ApplicationName    string
	ApplicationVersion uint32
	EngineName         string
	EngineVersion      uint32
	APIVersion         Version
	EnabledExtensions  []string
}

// InstanceProperties identifies the runtime.
type InstanceProperties struct {
	RuntimeName    string
	RuntimeVersion string
	APIVersion     Version
}

// GraphicsBinding is the graphics API an application renders with.
type GraphicsBinding int

const (
	// BindingNone requests a headless session and needs the headless extension.
	BindingNone GraphicsBinding = iota
	BindingOpenGLXlib
	BindingOpenGLES
	BindingVulkan
	BindingVulkan2
	BindingD3D11
	BindingD3D12
	BindingWin32EGL
	BindingAndroid
)

func (b GraphicsBinding) String() string {
	switch b {
	case BindingNone:
		return "none"
	case BindingOpenGLXlib:
		return "opengl_xlib"
	case BindingOpenGLES:
		return "opengl_es"
	case BindingVulkan:
		return "vulkan"
	case BindingVulkan2:
		return "vulkan2"
	case BindingD3D11:
		return "d3d11"
	case BindingD3D12:
		return "d3d12"
	case BindingWin32EGL:
		return "win32_egl"
	case BindingAndroid:
		return "android"
	}
	return fmt.Sprintf("GraphicsBinding(%d)", int(b))
}

// SessionCreateInfo is what the application passes to CreateSession.
type SessionCreateInfo struct {
	SystemID SystemID
	Binding  GraphicsBinding
}

// Instance is the runtime as seen by one application.
type Instance interface {
	// ID returns the instance identifier used in logs.
	ID() uuid.UUID

	// Handle returns the root handle every other handle of the instance descends from.
	Handle() handle.ID

	// Handles returns the instance's handle table.
	Handles() handle.Table

	// Config returns the configuration captured at creation.
	Config() config.Config

	// Properties identifies the runtime.
	Properties() InstanceProperties

	// ExtensionEnabled reports whether the application enabled an extension.
	ExtensionEnabled(name string) bool

	// GetSystem returns the system of a form factor.
	//
	// Parameters:
	//   - formFactor: the requested form factor, only head-mounted displays exist
	//
	// Returns:
	//   - SystemID: the system
	//   - error: FormFactorUnsupported
	GetSystem(formFactor FormFactor) (SystemID, error)

	// SystemProperties describes a system.
	SystemProperties(sys SystemID) (SystemProperties, error)

	// EnumerateEnvironmentBlendModes lists the blend modes of a view configuration, most
	// preferred first, with the two-call idiom.
	EnumerateEnvironmentBlendModes(sys SystemID, viewConfig session.ViewConfigurationType, dst []device.BlendMode) (int, error)

	// EnumerateViewConfigurations lists the view configurations with the two-call idiom.
	EnumerateViewConfigurations(sys SystemID, dst []session.ViewConfigurationType) (int, error)

	// ViewConfigurationProperties describes a view configuration.
	ViewConfigurationProperties(sys SystemID, viewConfig session.ViewConfigurationType) (ViewConfigurationProperties, error)

	// EnumerateViewConfigurationViews lists the per-view render sizes with the two-call idiom.
	EnumerateViewConfigurationViews(sys SystemID, viewConfig session.ViewConfigurationType, dst []ViewConfigurationView) (int, error)

	// CreateSession creates the instance's session. Only one session may exist at a time.
	//
	// Parameters:
	//   - ctx: cancels compositor start-up
	//   - info: the system and graphics binding
	//
	// Returns:
	//   - session.Session: the session in the ready state
	//   - error: SystemInvalid, LimitReached, GraphicsDeviceInvalid without a binding or the
	//     headless extension, or a compositor start-up error
	CreateSession(ctx context.Context, info SessionCreateInfo) (session.Session, error)

	// PollEvent pops the oldest queued event.
	//
	// Returns:
	//   - session.Event: the event
	//   - result.Result: Success, or EventUnavailable when the queue is empty
	PollEvent() (session.Event, result.Result)

	// StringToPath interns a path string.
	StringToPath(s string) (path.ID, error)

	// PathToString returns the string of an interned path.
	PathToString(id path.ID) (string, error)

	// CreateActionSet creates an action set owned by the instance.
	CreateActionSet(name, localizedName string, priority uint32) (action.ActionSet, error)

	// SuggestInteractionProfileBindings records suggested bindings for an interaction profile.
	SuggestInteractionProfileBindings(profile path.ID, bindings []action.SuggestedBinding) error

	// ConvertTimespecToTime converts a CLOCK_MONOTONIC timespec to runtime time.
	//
	// Returns:
	//   - int64: the runtime time
	//   - error: FunctionUnsupported without the timespec extension, TimeInvalid for times
	//     before the instance's epoch
	ConvertTimespecToTime(ts common.Timespec) (int64, error)

	// ConvertTimeToTimespec converts runtime time to a CLOCK_MONOTONIC timespec.
	ConvertTimeToTimespec(t int64) (common.Timespec, error)

	// Now returns the current runtime time.
	Now() int64

	// GetProcAddr resolves an entrypoint by name.
	//
	// Parameters:
	//   - name: the entrypoint name, such as xrCreateSession
	//
	// Returns:
	//   - any: the function, bound to the instance where it takes one
	//   - error: FunctionUnsupported for unknown names or disabled extensions
	GetProcAddr(name string) (any, error)

	// Destroy destroys the session, action sets and every other handle of the instance.
	Destroy() error
}

// instance is the implementation of the Instance interface.
type instance struct {
	mu  *sync.Mutex
	log *slog.Logger
	id  uuid.UUID
	cfg *config.Config

	info       InstanceCreateInfo
	extensions map[string]bool

	clock   *common.TimeState
	handles handle.Table
	handle  handle.ID
	paths   path.Registry
	actions action.Context
	events  *session.Queue

	hmd      device.SimulatedHMD
	left     device.SimulatedController
	right    device.SimulatedController
	profile  string
	keyboard device.KeyboardDriver

	session     session.Session
	sessionOpts []session.SessionBuilderOption
	compOpts    []compositor.CompositorBuilderOption
	trapped     bool
	destroyed   bool
}

var _ Instance = &instance{}

// NewInstance creates an instance. Unless an option supplies one, the configuration is loaded
// from the environment and the optional config file, and the process logger is replaced by one
// built from it.
//
// Parameters:
//   - info: application identity, API version and extensions
//   - options: functional options to configure the instance
//
// Returns:
//   - Instance: the instance
//   - error: NameInvalid, APIVersionUnsupported, ExtensionNotPresent, or InitializationFailed
//     if the configuration cannot be loaded
func NewInstance(info InstanceCreateInfo, options ...InstanceBuilderOption) (Instance, error) {
	i := &instance{
		mu:         &sync.Mutex{},
		id:         uuid.New(),
		info:       info,
		extensions: make(map[string]bool),
		profile:    "/interaction_profiles/khr/simple_controller",
	}
	for _, option := range options {
		option(i)
	}
	if i.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, result.Errorf(result.InitializationFailed, "load config: %v", err)
		}
		i.cfg = &cfg
		common.SetLogger(cfg.NewLogger())
	}
	i.log = common.ComponentLogger("instance")

	if info.ApplicationName == "" {
		return nil, result.Errorf(result.NameInvalid, "application name is empty")
	}
	if info.APIVersion != 0 && info.APIVersion.Major() != CurrentAPIVersion.Major() {
		return nil, result.Errorf(result.APIVersionUnsupported, "api version %s, runtime implements %s", info.APIVersion, CurrentAPIVersion)
	}
	for _, ext := range info.EnabledExtensions {
		if !supported(ext) {
			return nil, result.Errorf(result.ExtensionNotPresent, "extension %s is not supported", ext)
		}
		i.extensions[ext] = true
	}

	if i.cfg.BreakOnError {
		result.SetTrap(func(e *result.Error) {
			i.log.Error("runtime error", "code", e.Code, "message", e.Msg, "stack", string(debug.Stack()))
		})
		i.trapped = true
	}

	if i.clock == nil {
		i.clock = common.NewTimeState()
	}
	if i.paths == nil {
		i.paths = path.NewRegistry()
	}
	i.actions = action.NewContext(action.WithPaths(i.paths))
	i.events = session.NewQueue(session.DefaultQueueCapacity)

	if err := i.initDevices(); err != nil {
		return nil, err
	}

	i.handles = handle.NewTable()
	id, err := i.handles.Create(handle.KindInstance, handle.NullID, i, i.teardown)
	if err != nil {
		return nil, err
	}
	i.handle = id

	i.log.Info("instance created",
		"id", i.id,
		"application", info.ApplicationName,
		"engine", info.EngineName,
		"api_version", info.APIVersion,
		"extensions", info.EnabledExtensions)
	return i, nil
}

func supported(name string) bool {
	for _, e := range supportedExtensions {
		if e.Name == name {
			return true
		}
	}
	return false
}

// initDevices creates the simulated headset and controllers plus the keyboard driver that
// feeds them from the preview window.
func (i *instance) initDevices() error {
	if i.hmd == nil {
		i.hmd = device.NewSimulatedHMD(device.WithClock(i.clock.Now))
	}
	var err error
	if i.left == nil {
		if i.left, err = device.NewSimulatedController(i.profile, "/user/hand/left"); err != nil {
			return result.Errorf(result.InitializationFailed, "left controller: %v", err)
		}
	}
	if i.right == nil {
		if i.right, err = device.NewSimulatedController(i.profile, "/user/hand/right"); err != nil {
			return result.Errorf(result.InitializationFailed, "right controller: %v", err)
		}
	}
	i.keyboard = device.NewKeyboardDriver(
		device.WithLeftController(i.left),
		device.WithRightController(i.right),
		device.WithHeadset(i.hmd),
		device.WithExitHandler(i.requestExit),
	)
	return nil
}

func (i *instance) ID() uuid.UUID         { return i.id }
func (i *instance) Handle() handle.ID     { return i.handle }
func (i *instance) Handles() handle.Table { return i.handles }
func (i *instance) Config() config.Config { return *i.cfg }
func (i *instance) Now() int64            { return i.clock.Now() }

func (i *instance) Properties() InstanceProperties {
	return InstanceProperties{RuntimeName: RuntimeName, RuntimeVersion: RuntimeVersion, APIVersion: CurrentAPIVersion}
}

func (i *instance) ExtensionEnabled(name string) bool {
	return i.extensions[name]
}

func (i *instance) checkLive() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return result.Errorf(result.HandleInvalid, "instance is destroyed")
	}
	return nil
}

func (i *instance) CreateSession(ctx context.Context, info SessionCreateInfo) (session.Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return nil, result.Errorf(result.HandleInvalid, "instance is destroyed")
	}
	if err := checkSystem(info.SystemID); err != nil {
		return nil, err
	}
	if i.session != nil {
		return nil, result.Errorf(result.LimitReached, "instance already has session %s", i.session.ID())
	}
	headless := info.Binding == BindingNone
	if headless && !i.extensions[ExtHeadless] {
		return nil, result.Errorf(result.GraphicsDeviceInvalid, "no graphics binding and %s is not enabled", ExtHeadless)
	}

	opts := []session.SessionBuilderOption{
		session.WithClock(i.clock),
		session.WithHMD(i.hmd),
		session.WithDevice(path.SubactionLeft, i.left),
		session.WithDevice(path.SubactionRight, i.right),
		session.WithActionContext(i.actions),
		session.WithEventQueue(i.events),
		session.WithHeadless(headless),
		session.WithHandles(i.handles, i.handle),
		session.WithDestroyHandler(i.sessionDestroyed),
		session.WithCompositorOptions(compositor.WithTargetOptions(
			target.WithKeyHandler(i.handleKey),
			target.WithCloseHandler(i.requestExit),
		)),
	}
	if len(i.compOpts) > 0 {
		opts = append(opts, session.WithCompositorOptions(i.compOpts...))
	}
	opts = append(opts, i.sessionOpts...)

	s, err := session.New(config.WithContext(ctx, *i.cfg), opts...)
	if err != nil {
		return nil, err
	}
	i.session = s
	i.log.Info("session created", "session", s.ID(), "binding", info.Binding)
	return s, nil
}

func (i *instance) sessionDestroyed(s session.Session) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.session == s {
		i.session = nil
	}
}

func (i *instance) currentSession() session.Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session
}

func (i *instance) handleKey(key int, pressed bool) {
	if i.keyboard.HandleKey(key, pressed) {
		i.log.Debug("key handled", "key", key, "pressed", pressed)
	}
}

// requestExit asks the running session to stop, as when the preview window is closed.
func (i *instance) requestExit() {
	s := i.currentSession()
	if s == nil {
		return
	}
	if err := s.RequestExit(); err != nil {
		i.log.Warn("exit request ignored", "session", s.ID(), "error", err)
	}
}

func (i *instance) PollEvent() (session.Event, result.Result) {
	var (
		e  session.Event
		ok bool
	)
	if s := i.currentSession(); s != nil {
		e, ok = s.PollEvent()
	} else {
		e, ok = i.events.Pop()
	}
	if !ok {
		return session.Event{}, result.EventUnavailable
	}
	return e, result.Success
}

func (i *instance) StringToPath(s string) (path.ID, error) {
	if err := i.checkLive(); err != nil {
		return path.NullID, err
	}
	return i.paths.GetOrCreate(s)
}

func (i *instance) PathToString(id path.ID) (string, error) {
	if err := i.checkLive(); err != nil {
		return "", err
	}
	return i.paths.String(id)
}

func (i *instance) CreateActionSet(name, localizedName string, priority uint32) (action.ActionSet, error) {
	if err := i.checkLive(); err != nil {
		return nil, err
	}
	set, err := i.actions.CreateActionSet(name, localizedName, priority)
	if err != nil {
		return nil, err
	}
	if _, err := i.handles.Create(handle.KindActionSet, i.handle, set, func() error { set.Destroy(); return nil }); err != nil {
		set.Destroy()
		return nil, err
	}
	return set, nil
}

func (i *instance) SuggestInteractionProfileBindings(profile path.ID, bindings []action.SuggestedBinding) error {
	if err := i.checkLive(); err != nil {
		return err
	}
	return i.actions.SuggestBindings(profile, bindings)
}

func (i *instance) ConvertTimespecToTime(ts common.Timespec) (int64, error) {
	if !i.extensions[ExtConvertTimespecTime] {
		return 0, result.Errorf(result.FunctionUnsupported, "%s is not enabled", ExtConvertTimespecTime)
	}
	t := i.clock.FromTimespec(ts)
	if t <= 0 {
		return 0, result.Errorf(result.TimeInvalid, "timespec %d.%09d is before the runtime epoch", ts.Sec, ts.Nsec)
	}
	return t, nil
}

func (i *instance) ConvertTimeToTimespec(t int64) (common.Timespec, error) {
	if !i.extensions[ExtConvertTimespecTime] {
		return common.Timespec{}, result.Errorf(result.FunctionUnsupported, "%s is not enabled", ExtConvertTimespecTime)
	}
	if t <= 0 {
		return common.Timespec{}, result.Errorf(result.TimeInvalid, "time %d is not positive", t)
	}
	return i.clock.ToTimespec(t), nil
}

func (i *instance) Destroy() error {
	return i.handles.Destroy(i.handle)
}

// teardown is the instance's handle destructor; sessions and action sets are already gone.
func (i *instance) teardown() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return nil
	}
	i.destroyed = true
	i.session = nil
	if i.trapped {
		result.SetTrap(nil)
	}
	i.log.Info("instance destroyed", "id", i.id, "paths", i.paths.Len())
	return nil
}
