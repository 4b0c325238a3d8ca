// Package result defines the runtime's result codes and the typed error carried by every
// client-facing failure.
package result

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Result is a client-visible result code. Negative values are failures.
type Result int32

// Success codes.
const (
	Success                Result = 0
	TimeoutExpired         Result = 1
	SessionLossPending     Result = 3
	EventUnavailable       Result = 4
	SpaceBoundsUnavailable Result = 7
	SessionNotFocused      Result = 8
	FrameDiscarded         Result = 9
)

// Failure codes.
const (
	ValidationFailure                Result = -1
	RuntimeFailure                   Result = -2
	OutOfMemory                      Result = -3
	APIVersionUnsupported            Result = -4
	InitializationFailed             Result = -6
	FunctionUnsupported              Result = -7
	FeatureUnsupported               Result = -8
	ExtensionNotPresent              Result = -9
	LimitReached                     Result = -10
	SizeInsufficient                 Result = -11
	HandleInvalid                    Result = -12
	InstanceLost                     Result = -13
	SessionRunning                   Result = -14
	SessionNotRunning                Result = -16
	SessionLost                      Result = -17
	SystemInvalid                    Result = -18
	PathInvalid                      Result = -19
	PathCountExceeded                Result = -20
	PathFormatInvalid                Result = -21
	PathUnsupported                  Result = -22
	LayerInvalid                     Result = -23
	LayerLimitExceeded               Result = -24
	SwapchainRectInvalid             Result = -25
	SwapchainFormatUnsupported       Result = -26
	ActionTypeMismatch               Result = -27
	SessionNotReady                  Result = -28
	SessionNotStopping               Result = -29
	TimeInvalid                      Result = -30
	ReferenceSpaceUnsupported        Result = -31
	FormFactorUnsupported            Result = -34
	FormFactorUnavailable            Result = -35
	APILayerNotPresent               Result = -36
	CallOrderInvalid                 Result = -37
	GraphicsDeviceInvalid            Result = -38
	PoseInvalid                      Result = -39
	IndexOutOfRange                  Result = -40
	ViewConfigurationTypeUnsupported Result = -41
	EnvironmentBlendModeUnsupported  Result = -42
	NameDuplicated                   Result = -44
	NameInvalid                      Result = -45
	ActionSetNotAttached             Result = -46
	ActionSetsAlreadyAttached        Result = -47
	LocalizedNameDuplicated          Result = -48
	LocalizedNameInvalid             Result = -49

	// IncompatibleDisplay is runtime-internal: the display server refused exclusive access.
	// It is reported to clients as InitializationFailed.
	IncompatibleDisplay Result = -1000
)

var names = map[Result]string{
	Success:                          "XR_SUCCESS",
	TimeoutExpired:                   "XR_TIMEOUT_EXPIRED",
	SessionLossPending:               "XR_SESSION_LOSS_PENDING",
	EventUnavailable:                 "XR_EVENT_UNAVAILABLE",
	SpaceBoundsUnavailable:           "XR_SPACE_BOUNDS_UNAVAILABLE",
	SessionNotFocused:                "XR_SESSION_NOT_FOCUSED",
	FrameDiscarded:                   "XR_FRAME_DISCARDED",
	ValidationFailure:                "XR_ERROR_VALIDATION_FAILURE",
	RuntimeFailure:                   "XR_ERROR_RUNTIME_FAILURE",
	OutOfMemory:                      "XR_ERROR_OUT_OF_MEMORY",
	APIVersionUnsupported:            "XR_ERROR_API_VERSION_UNSUPPORTED",
	InitializationFailed:             "XR_ERROR_INITIALIZATION_FAILED",
	FunctionUnsupported:              "XR_ERROR_FUNCTION_UNSUPPORTED",
	FeatureUnsupported:               "XR_ERROR_FEATURE_UNSUPPORTED",
	ExtensionNotPresent:              "XR_ERROR_EXTENSION_NOT_PRESENT",
	LimitReached:                     "XR_ERROR_LIMIT_REACHED",
	SizeInsufficient:                 "XR_ERROR_SIZE_INSUFFICIENT",
	HandleInvalid:                    "XR_ERROR_HANDLE_INVALID",
	InstanceLost:                     "XR_ERROR_INSTANCE_LOST",
	SessionRunning:                   "XR_ERROR_SESSION_RUNNING",
	SessionNotRunning:                "XR_ERROR_SESSION_NOT_RUNNING",
	SessionLost:                      "XR_ERROR_SESSION_LOST",
	SystemInvalid:                    "XR_ERROR_SYSTEM_INVALID",
	PathInvalid:                      "XR_ERROR_PATH_INVALID",
	PathCountExceeded:                "XR_ERROR_PATH_COUNT_EXCEEDED",
	PathFormatInvalid:                "XR_ERROR_PATH_FORMAT_INVALID",
	PathUnsupported:                  "XR_ERROR_PATH_UNSUPPORTED",
	LayerInvalid:                     "XR_ERROR_LAYER_INVALID",
	LayerLimitExceeded:               "XR_ERROR_LAYER_LIMIT_EXCEEDED",
	SwapchainRectInvalid:             "XR_ERROR_SWAPCHAIN_RECT_INVALID",
	SwapchainFormatUnsupported:       "XR_ERROR_SWAPCHAIN_FORMAT_UNSUPPORTED",
	ActionTypeMismatch:               "XR_ERROR_ACTION_TYPE_MISMATCH",
	SessionNotReady:                  "XR_ERROR_SESSION_NOT_READY",
	SessionNotStopping:               "XR_ERROR_SESSION_NOT_STOPPING",
	TimeInvalid:                      "XR_ERROR_TIME_INVALID",
	ReferenceSpaceUnsupported:        "XR_ERROR_REFERENCE_SPACE_UNSUPPORTED",
	FormFactorUnsupported:            "XR_ERROR_FORM_FACTOR_UNSUPPORTED",
	FormFactorUnavailable:            "XR_ERROR_FORM_FACTOR_UNAVAILABLE",
	APILayerNotPresent:               "XR_ERROR_API_LAYER_NOT_PRESENT",
	CallOrderInvalid:                 "XR_ERROR_CALL_ORDER_INVALID",
	GraphicsDeviceInvalid:            "XR_ERROR_GRAPHICS_DEVICE_INVALID",
	PoseInvalid:                      "XR_ERROR_POSE_INVALID",
	IndexOutOfRange:                  "XR_ERROR_INDEX_OUT_OF_RANGE",
	ViewConfigurationTypeUnsupported: "XR_ERROR_VIEW_CONFIGURATION_TYPE_UNSUPPORTED",
	EnvironmentBlendModeUnsupported:  "XR_ERROR_ENVIRONMENT_BLEND_MODE_UNSUPPORTED",
	NameDuplicated:                   "XR_ERROR_NAME_DUPLICATED",
	NameInvalid:                      "XR_ERROR_NAME_INVALID",
	ActionSetNotAttached:             "XR_ERROR_ACTIONSET_NOT_ATTACHED",
	ActionSetsAlreadyAttached:        "XR_ERROR_ACTIONSETS_ALREADY_ATTACHED",
	LocalizedNameDuplicated:          "XR_ERROR_LOCALIZED_NAME_DUPLICATED",
	LocalizedNameInvalid:             "XR_ERROR_LOCALIZED_NAME_INVALID",
	IncompatibleDisplay:              "XRT_ERROR_INCOMPATIBLE_DISPLAY",
}

func (r Result) String() string {
	if n, ok := names[r]; ok {
		return n
	}
	return fmt.Sprintf("XR_UNKNOWN_RESULT_%d", int32(r))
}

// Failed reports whether r is a failure code.
func (r Result) Failed() bool {
	return r < 0
}

// Error is a failure carrying a result code and a human-readable message.
type Error struct {
	Code Result
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidationFailure          = &Error{Code: ValidationFailure}
	ErrRuntimeFailure             = &Error{Code: RuntimeFailure}
	ErrInitializationFailed       = &Error{Code: InitializationFailed}
	ErrFunctionUnsupported        = &Error{Code: FunctionUnsupported}
	ErrFeatureUnsupported         = &Error{Code: FeatureUnsupported}
	ErrExtensionNotPresent        = &Error{Code: ExtensionNotPresent}
	ErrLimitReached               = &Error{Code: LimitReached}
	ErrSizeInsufficient           = &Error{Code: SizeInsufficient}
	ErrHandleInvalid              = &Error{Code: HandleInvalid}
	ErrSessionRunning             = &Error{Code: SessionRunning}
	ErrSessionNotRunning          = &Error{Code: SessionNotRunning}
	ErrSessionNotReady            = &Error{Code: SessionNotReady}
	ErrSessionNotStopping         = &Error{Code: SessionNotStopping}
	ErrSessionLost                = &Error{Code: SessionLost}
	ErrPathInvalid                = &Error{Code: PathInvalid}
	ErrPathFormatInvalid          = &Error{Code: PathFormatInvalid}
	ErrPathUnsupported            = &Error{Code: PathUnsupported}
	ErrLayerInvalid               = &Error{Code: LayerInvalid}
	ErrLayerLimitExceeded         = &Error{Code: LayerLimitExceeded}
	ErrSwapchainRectInvalid       = &Error{Code: SwapchainRectInvalid}
	ErrSwapchainFormatUnsupported = &Error{Code: SwapchainFormatUnsupported}
	ErrActionTypeMismatch         = &Error{Code: ActionTypeMismatch}
	ErrTimeInvalid                = &Error{Code: TimeInvalid}
	ErrReferenceSpaceUnsupported  = &Error{Code: ReferenceSpaceUnsupported}
	ErrCallOrderInvalid           = &Error{Code: CallOrderInvalid}
	ErrPoseInvalid                = &Error{Code: PoseInvalid}
	ErrIndexOutOfRange            = &Error{Code: IndexOutOfRange}
	ErrNameDuplicated             = &Error{Code: NameDuplicated}
	ErrNameInvalid                = &Error{Code: NameInvalid}
	ErrLocalizedNameDuplicated    = &Error{Code: LocalizedNameDuplicated}
	ErrLocalizedNameInvalid       = &Error{Code: LocalizedNameInvalid}
	ErrActionSetNotAttached       = &Error{Code: ActionSetNotAttached}
	ErrActionSetsAlreadyAttached  = &Error{Code: ActionSetsAlreadyAttached}
	ErrIncompatibleDisplay        = &Error{Code: IncompatibleDisplay}
	ErrTimeoutExpired             = &Error{Code: TimeoutExpired}
	ErrGraphicsDeviceInvalid      = &Error{Code: GraphicsDeviceInvalid}
	ErrSystemInvalid              = &Error{Code: SystemInvalid}
	ErrFormFactorUnsupported      = &Error{Code: FormFactorUnsupported}
	ErrAPIVersionUnsupported      = &Error{Code: APIVersionUnsupported}
	ErrEnvironmentBlendMode       = &Error{Code: EnvironmentBlendModeUnsupported}
	ErrViewConfigurationType      = &Error{Code: ViewConfigurationTypeUnsupported}
)

var trap atomic.Pointer[func(*Error)]

// SetTrap installs a hook invoked for every error created by Errorf, except
// FunctionUnsupported which is part of normal entrypoint probing. Pass nil to remove it.
//
// Parameters:
//   - fn: the hook, or nil
func SetTrap(fn func(*Error)) {
	if fn == nil {
		trap.Store(nil)
		return
	}
	trap.Store(&fn)
}

// Errorf builds an *Error with a formatted message.
//
// Parameters:
//   - code: the result code
//   - format: fmt-style format string
//   - args: format arguments
//
// Returns:
//   - error: the new *Error
func Errorf(code Result, format string, args ...any) error {
	e := &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
	if code != FunctionUnsupported {
		if fn := trap.Load(); fn != nil {
			(*fn)(e)
		}
	}
	return e
}

// Code extracts the result code from err. A nil error is Success and errors that carry no
// code are RuntimeFailure.
//
// Parameters:
//   - err: the error to inspect
//
// Returns:
//   - Result: the result code
func Code(err error) Result {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RuntimeFailure
}

// ClientCode maps runtime-internal codes to the code a client may observe.
func ClientCode(err error) Result {
	c := Code(err)
	if c == IncompatibleDisplay {
		return InitializationFailed
	}
	return c
}
