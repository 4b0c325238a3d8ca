// Package device describes the capability surface the runtime needs from tracked hardware:
// poses, inputs, outputs, display parameters and lens distortion. Drivers are out of tree;
// the simulated devices in this package back tests, headless sessions and the preview window.
package device

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// Errors returned by device implementations.
var (
	ErrUnknownInput  = errors.New("device: unknown input")
	ErrUnknownOutput = errors.New("device: unknown output")
	ErrNotSupported  = errors.New("device: capability not supported")
)

// DeviceType classifies what a device is, which decides the top-level user path it serves.
type DeviceType int

const (
	DeviceTypeHMD DeviceType = iota
	DeviceTypeLeftHandController
	DeviceTypeRightHandController
	DeviceTypeGamepad
	DeviceTypeGenericTracker
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeHMD:
		return "hmd"
	case DeviceTypeLeftHandController:
		return "left_hand_controller"
	case DeviceTypeRightHandController:
		return "right_hand_controller"
	case DeviceTypeGamepad:
		return "gamepad"
	case DeviceTypeGenericTracker:
		return "generic_tracker"
	}
	return fmt.Sprintf("DeviceType(%d)", int(t))
}

// InputType is the raw value shape an input produces.
type InputType int

const (
	InputTypeBoolean InputType = iota
	InputTypeVec1ZeroToOne
	InputTypeVec1MinusOneToOne
	InputTypeVec2MinusOneToOne
	InputTypePose
	InputTypeHandTracking
)

var inputTypeNames = map[InputType]string{
	InputTypeBoolean:           "bool",
	InputTypeVec1ZeroToOne:     "value",
	InputTypeVec1MinusOneToOne: "axis",
	InputTypeVec2MinusOneToOne: "vec2",
	InputTypePose:              "pose",
	InputTypeHandTracking:      "hand",
}

func (t InputType) String() string {
	if s, ok := inputTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("InputType(%d)", int(t))
}

// ParseInputType maps the short names used by the profile table to an InputType.
//
// Parameters:
//   - s: one of bool, value, axis, vec2, pose, hand
//
// Returns:
//   - InputType: the parsed type
//   - error: non-nil for an unknown name
func ParseInputType(s string) (InputType, error) {
	for t, name := range inputTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("device: unknown input type %q", s)
}

// UnmarshalYAML decodes an input type from its short name.
func (t *InputType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseInputType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// InputName identifies one input on a device, e.g. "index_trigger_value".
type InputName string

// OutputName identifies one output on a device, e.g. "index_haptic".
type OutputName string

// HeadPoseInput is the pose input every HMD exposes.
const HeadPoseInput InputName = "generic_head_pose"

// InputValue is the union of the raw value shapes. Only the field matching the input type is meaningful.
type InputValue struct {
	Boolean bool
	Vec1    float32
	Vec2    mgl32.Vec2
}

// Input is the last sampled state of a device input.
type Input struct {
	Name      InputName
	Type      InputType
	Active    bool
	Timestamp int64
	Value     InputValue
}

// Output describes a device output such as a vibration motor.
type Output struct {
	Name OutputName
}

// OutputValue is a vibration command. A zero amplitude silences the output.
type OutputValue struct {
	FrequencyHz float32
	Amplitude   float32
	DurationNs  int64
}

// IsZero reports whether the value silences the output.
func (v OutputValue) IsZero() bool {
	return v.Amplitude == 0
}

// BlendMode is an environment blend mode an HMD supports, numbered as the client API does.
type BlendMode int

const (
	BlendModeOpaque     BlendMode = 1
	BlendModeAdditive   BlendMode = 2
	BlendModeAlphaBlend BlendMode = 3
)

func (b BlendMode) String() string {
	switch b {
	case BlendModeOpaque:
		return "opaque"
	case BlendModeAdditive:
		return "additive"
	case BlendModeAlphaBlend:
		return "alpha_blend"
	}
	return fmt.Sprintf("BlendMode(%d)", int(b))
}

// DistortionModel names the lens correction an HMD needs.
type DistortionModel int

const (
	DistortionNone DistortionModel = iota
	DistortionPanotools
)

// Screen is the physical panel of an HMD.
type Screen struct {
	WidthPixels            uint32
	HeightPixels           uint32
	NominalFrameIntervalNs int64
}

// View is one eye's share of the panel.
type View struct {
	// Viewport is the region of the panel this eye is scanned out to.
	Viewport common.Rect2D
	// Display is the recommended render size for this eye.
	Display common.Extent2D
	Fov     common.Fov
}

// HMDParts holds the static display description of a head-mounted device.
type HMDParts struct {
	Screen     Screen
	Views      [2]View
	BlendModes []BlendMode
	Distortion DistortionModel
}

// SupportsBlendMode reports whether mode is listed in the HMD's blend modes.
func (h *HMDParts) SupportsBlendMode(mode BlendMode) bool {
	for _, b := range h.BlendModes {
		if b == mode {
			return true
		}
	}
	return false
}

// DistortionTriplet holds the sample coordinates of the red, green and blue channels
// for one output texel.
type DistortionTriplet struct {
	R, G, B mgl32.Vec2
}

// HandJointCount is the number of joints in a tracked hand.
const HandJointCount = 26

// HandJoint is one tracked joint of a hand.
type HandJoint struct {
	Relation common.Relation
	Radius   float32
}

// HandJointSet is the full joint set of one hand at a point in time.
type HandJointSet struct {
	Joints   [HandJointCount]HandJoint
	HandPose common.Relation
	Active   bool
}

// Device is the capability interface every tracked device implements.
// Implementations are safe for concurrent use.
type Device interface {
	// Name returns the human readable device name.
	//
	// Returns:
	//   - string: the device name
	Name() string

	// Serial returns the device serial string.
	//
	// Returns:
	//   - string: the serial
	Serial() string

	// Type returns what kind of device this is.
	//
	// Returns:
	//   - DeviceType: the device type
	Type() DeviceType

	// Inputs returns a snapshot of every input as of the last UpdateInputs.
	//
	// Returns:
	//   - []Input: copied input states
	Inputs() []Input

	// FindInput returns the current state of a named input.
	//
	// Parameters:
	//   - name: the input to look up
	//
	// Returns:
	//   - Input: the input state
	//   - bool: false if the device has no such input
	FindInput(name InputName) (Input, bool)

	// Outputs returns the outputs the device exposes.
	//
	// Returns:
	//   - []Output: the outputs
	Outputs() []Output

	// FindOutput reports whether the device has the named output.
	//
	// Parameters:
	//   - name: the output to look up
	//
	// Returns:
	//   - bool: true if the output exists
	FindOutput(name OutputName) bool

	// UpdateInputs samples every input, stamping changed values with nowNs.
	//
	// Parameters:
	//   - nowNs: the runtime timestamp of this refresh
	//
	// Returns:
	//   - error: non-nil if the device could not be read
	UpdateInputs(nowNs int64) error

	// GetTrackedPose returns the pose of a pose input at the given time.
	// Extrapolation into the future is clamped and the returned flags describe what is known.
	//
	// Parameters:
	//   - name: a pose input name
	//   - atNs: the runtime timestamp to predict for
	//
	// Returns:
	//   - common.Relation: the pose relative to the tracking origin
	//   - error: ErrUnknownInput if the input does not exist or is not a pose
	GetTrackedPose(name InputName, atNs int64) (common.Relation, error)

	// GetHandTracking returns the joint set of a hand tracking input.
	//
	// Parameters:
	//   - name: a hand tracking input name
	//   - atNs: the runtime timestamp to predict for
	//
	// Returns:
	//   - HandJointSet: the joints
	//   - int64: the timestamp the joints are valid at
	//   - error: ErrNotSupported if the device has no hand tracking
	GetHandTracking(name InputName, atNs int64) (HandJointSet, int64, error)

	// SetOutput drives a named output. A zero amplitude silences it.
	//
	// Parameters:
	//   - name: the output name
	//   - value: the vibration command
	//
	// Returns:
	//   - error: ErrUnknownOutput if the output does not exist
	SetOutput(name OutputName, value OutputValue) error

	// GetViewPoses returns the head relation plus per-view FOVs and eye poses in head space.
	//
	// Parameters:
	//   - eyeRelation: the vector between the eyes, normally (ipd, 0, 0)
	//   - atNs: the runtime timestamp to predict for
	//   - viewCount: number of views requested
	//
	// Returns:
	//   - common.Relation: the head relation
	//   - []common.Fov: one FOV per view
	//   - []common.Pose: one eye pose per view, relative to the head
	//   - error: ErrNotSupported on non-HMD devices
	GetViewPoses(eyeRelation mgl32.Vec3, atNs int64, viewCount int) (common.Relation, []common.Fov, []common.Pose, error)

	// ComputeDistortion maps an output texel coordinate to per-channel source coordinates.
	//
	// Parameters:
	//   - view: the eye index
	//   - u, v: output texture coordinates in [0, 1]
	//
	// Returns:
	//   - DistortionTriplet: source coordinates for red, green and blue
	//   - bool: false if the coordinates fall outside the lens
	ComputeDistortion(view int, u, v float32) (DistortionTriplet, bool)

	// HMD returns the display description, or nil on devices that are not head-mounted.
	//
	// Returns:
	//   - *HMDParts: the display description or nil
	HMD() *HMDParts

	// PreferredProfile returns the interaction profile path the device natively matches.
	//
	// Returns:
	//   - string: the interaction profile path, empty if none
	PreferredProfile() string
}
