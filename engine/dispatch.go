package engine

import (
	"reflect"

	"github.com/Carmen-Shannon/oxy-xr/engine/action"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/Carmen-Shannon/oxy-xr/engine/session"
	"github.com/Carmen-Shannon/oxy-xr/engine/space"
	"github.com/Carmen-Shannon/oxy-xr/engine/swapchain"
)

// globalEntrypoints resolve without an instance.
var globalEntrypoints = map[string]any{
	"xrCreateInstance":                       NewInstance,
	"xrEnumerateInstanceExtensionProperties": EnumerateInstanceExtensions,
	"xrEnumerateApiLayerProperties":          EnumerateAPILayers,
}

// entrypoint is one resolvable function. Entries with ext set resolve only when that extension
// is enabled on the instance.
type entrypoint struct {
	ext     string
	resolve func(i *instance) any
}

func bound(fn any) func(*instance) any {
	return func(*instance) any { return fn }
}

var instanceEntrypoints = map[string]entrypoint{
	"xrDestroyInstance":                   {resolve: func(i *instance) any { return i.Destroy }},
	"xrGetInstanceProperties":             {resolve: func(i *instance) any { return i.Properties }},
	"xrPollEvent":                         {resolve: func(i *instance) any { return i.PollEvent }},
	"xrStringToPath":                      {resolve: func(i *instance) any { return i.StringToPath }},
	"xrPathToString":                      {resolve: func(i *instance) any { return i.PathToString }},
	"xrGetSystem":                         {resolve: func(i *instance) any { return i.GetSystem }},
	"xrGetSystemProperties":               {resolve: func(i *instance) any { return i.SystemProperties }},
	"xrEnumerateEnvironmentBlendModes":    {resolve: func(i *instance) any { return i.EnumerateEnvironmentBlendModes }},
	"xrEnumerateViewConfigurations":       {resolve: func(i *instance) any { return i.EnumerateViewConfigurations }},
	"xrGetViewConfigurationProperties":    {resolve: func(i *instance) any { return i.ViewConfigurationProperties }},
	"xrEnumerateViewConfigurationViews":   {resolve: func(i *instance) any { return i.EnumerateViewConfigurationViews }},
	"xrCreateSession":                     {resolve: func(i *instance) any { return i.CreateSession }},
	"xrCreateActionSet":                   {resolve: func(i *instance) any { return i.CreateActionSet }},
	"xrSuggestInteractionProfileBindings": {resolve: func(i *instance) any { return i.SuggestInteractionProfileBindings }},
	"xrConvertTimespecTimeToTimeKHR":      {ext: ExtConvertTimespecTime, resolve: func(i *instance) any { return i.ConvertTimespecToTime }},
	"xrConvertTimeToTimespecTimeKHR":      {ext: ExtConvertTimespecTime, resolve: func(i *instance) any { return i.ConvertTimeToTimespec }},
	"xrDestroySession":                    {resolve: bound(session.Session.Destroy)},
	"xrBeginSession":                      {resolve: bound(session.Session.Begin)},
	"xrEndSession":                        {resolve: bound(session.Session.End)},
	"xrRequestExitSession":                {resolve: bound(session.Session.RequestExit)},
	"xrWaitFrame":                         {resolve: bound(session.Session.WaitFrame)},
	"xrBeginFrame":                        {resolve: bound(session.Session.BeginFrame)},
	"xrEndFrame":                          {resolve: bound(session.Session.EndFrame)},
	"xrLocateViews":                       {resolve: bound(session.Session.LocateViews)},
	"xrEnumerateSwapchainFormats":         {resolve: bound(session.Session.EnumerateSwapchainFormats)},
	"xrCreateSwapchain":                   {resolve: bound(session.Session.CreateSwapchain)},
	"xrDestroySwapchain":                  {resolve: bound(swapchain.Swapchain.Destroy)},
	"xrEnumerateSwapchainImages":          {resolve: bound(swapchain.Swapchain.Images)},
	"xrAcquireSwapchainImage":             {resolve: bound(swapchain.Swapchain.Acquire)},
	"xrWaitSwapchainImage":                {resolve: bound(swapchain.Swapchain.Wait)},
	"xrReleaseSwapchainImage":             {resolve: bound(swapchain.Swapchain.Release)},
	"xrEnumerateReferenceSpaces":          {resolve: bound(space.EnumerateReferenceSpaces)},
	"xrCreateReferenceSpace":              {resolve: bound(session.Session.CreateReferenceSpace)},
	"xrCreateActionSpace":                 {resolve: bound(session.Session.CreateActionSpace)},
	"xrLocateSpace":                       {resolve: bound(session.Session.LocateSpace)},
	"xrDestroySpace":                      {resolve: bound(space.Space.Destroy)},
	"xrDestroyActionSet":                  {resolve: bound(action.ActionSet.Destroy)},
	"xrCreateAction":                      {resolve: bound(action.ActionSet.CreateAction)},
	"xrDestroyAction":                     {resolve: bound(action.Action.Destroy)},
	"xrAttachSessionActionSets":           {resolve: bound(session.Session.AttachActionSets)},
	"xrSyncActions":                       {resolve: bound(session.Session.SyncActions)},
	"xrGetActionStateBoolean":             {resolve: bound(action.Attachment.GetBoolean)},
	"xrGetActionStateFloat":               {resolve: bound(action.Attachment.GetFloat)},
	"xrGetActionStateVector2f":            {resolve: bound(action.Attachment.GetVector2f)},
	"xrGetActionStatePose":                {resolve: bound(action.Attachment.GetPose)},
	"xrApplyHapticFeedback":               {resolve: bound(action.Attachment.ApplyHaptic)},
	"xrStopHapticFeedback":                {resolve: bound(action.Attachment.StopHaptic)},
	"xrGetCurrentInteractionProfile":      {resolve: bound(action.Attachment.CurrentProfile)},
	"xrEnumerateBoundSourcesForAction":    {resolve: bound(action.Attachment.EnumerateBoundSources)},
}

// GetInstanceProcAddr resolves an entrypoint by name. It is the resolver handed to the loader.
//
// Parameters:
//   - inst: the instance, or nil for the global entrypoints
//   - name: the entrypoint name
//
// Returns:
//   - any: the function
//   - error: FunctionUnsupported for unknown names or entrypoints of disabled extensions,
//     HandleInvalid for instances this runtime did not create
func GetInstanceProcAddr(inst Instance, name string) (any, error) {
	if inst == nil {
		if fn, ok := globalEntrypoints[name]; ok {
			return fn, nil
		}
		return nil, result.Errorf(result.FunctionUnsupported, "%s needs an instance", name)
	}
	i, ok := inst.(*instance)
	if !ok {
		return nil, result.Errorf(result.HandleInvalid, "foreign instance")
	}
	return i.GetProcAddr(name)
}

func (i *instance) GetProcAddr(name string) (any, error) {
	fn, err := i.resolve(name)
	if err != nil || !i.cfg.DebugEntrypoints {
		return fn, err
	}
	return i.traced(name, fn), nil
}

func (i *instance) resolve(name string) (any, error) {
	if fn, ok := globalEntrypoints[name]; ok {
		return fn, nil
	}
	if name == "xrGetInstanceProcAddr" {
		return GetInstanceProcAddr, nil
	}
	e, ok := instanceEntrypoints[name]
	if !ok {
		return nil, result.Errorf(result.FunctionUnsupported, "%s", name)
	}
	if e.ext != "" && !i.extensions[e.ext] {
		return nil, result.Errorf(result.FunctionUnsupported, "%s needs %s", name, e.ext)
	}
	return e.resolve(i), nil
}

// traced wraps fn in a function of the same type that logs every call by name.
func (i *instance) traced(name string, fn any) any {
	v := reflect.ValueOf(fn)
	return reflect.MakeFunc(v.Type(), func(args []reflect.Value) []reflect.Value {
		i.log.Info("entrypoint called", "name", name)
		if v.Type().IsVariadic() {
			return v.CallSlice(args)
		}
		return v.Call(args)
	}).Interface()
}
