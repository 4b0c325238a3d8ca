package device

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/go-gl/mathgl/mgl32"
)

// OutputEvent records one SetOutput call on a simulated controller.
type OutputEvent struct {
	Name  OutputName
	Value OutputValue
}

// SimulatedController is a controller whose inputs are set programmatically.
// Values written with the setters become visible on the next UpdateInputs.
type SimulatedController interface {
	Device

	// SubactionPath returns the top-level user path the controller serves.
	//
	// Returns:
	//   - string: e.g. /user/hand/left
	SubactionPath() string

	// InputFor resolves a component path of the controller's profile to an input name.
	//
	// Parameters:
	//   - component: the path below the user path, e.g. input/select/click
	//
	// Returns:
	//   - InputName: the input backing the component
	//   - bool: false if the profile has no such input component
	InputFor(component string) (InputName, bool)

	// SetBool stages a boolean input value.
	//
	// Parameters:
	//   - name: the input
	//   - v: the value
	//
	// Returns:
	//   - error: ErrUnknownInput if the input is missing or not boolean
	SetBool(name InputName, v bool) error

	// SetFloat stages a one-dimensional input value. The value is clamped to the input's range.
	//
	// Parameters:
	//   - name: the input
	//   - v: the value
	//
	// Returns:
	//   - error: ErrUnknownInput if the input is missing or not a float
	SetFloat(name InputName, v float32) error

	// SetVec2 stages a two-dimensional input value, each component clamped to [-1, 1].
	//
	// Parameters:
	//   - name: the input
	//   - v: the value
	//
	// Returns:
	//   - error: ErrUnknownInput if the input is missing or not a vec2
	SetVec2(name InputName, v mgl32.Vec2) error

	// SetActive marks every input active or inactive, as when a controller connects or drops out.
	//
	// Parameters:
	//   - active: the new state
	SetActive(active bool)

	// Active reports the staged connection state.
	//
	// Returns:
	//   - bool: true if the controller is connected
	Active() bool

	// SetPose moves the controller grip and aim pose relative to the tracking origin.
	//
	// Parameters:
	//   - pose: the new pose
	SetPose(pose common.Pose)

	// OutputLog returns every SetOutput call since creation, oldest first.
	//
	// Returns:
	//   - []OutputEvent: the recorded calls
	OutputLog() []OutputEvent
}

type simulatedControllerImpl struct {
	deviceBase

	subactionPath string
	prof          *Profile

	active  bool
	pose    common.Pose
	pending map[InputName]InputValue
	log     []OutputEvent
}

var _ SimulatedController = &simulatedControllerImpl{}

// NewSimulatedController creates a controller exposing every input and output of a built-in
// interaction profile for one user path.
//
// Parameters:
//   - profilePath: the interaction profile to emulate
//   - subactionPath: the user path the controller serves, e.g. /user/hand/right
//   - options: functional options to configure the controller
//
// Returns:
//   - SimulatedController: the controller, active and at its default pose
//   - error: non-nil if the profile is unknown or does not cover subactionPath
func NewSimulatedController(profilePath, subactionPath string, options ...ControllerBuilderOption) (SimulatedController, error) {
	prof, ok := LookupProfile(profilePath)
	if !ok {
		return nil, fmt.Errorf("device: unknown interaction profile %s", profilePath)
	}
	inputs := prof.InputsFor(subactionPath)
	outputs := prof.OutputsFor(subactionPath)
	if len(inputs) == 0 && len(outputs) == 0 {
		return nil, fmt.Errorf("device: profile %s has no bindings for %s", profilePath, subactionPath)
	}

	typ, pose := controllerDefaults(subactionPath)
	c := &simulatedControllerImpl{
		deviceBase:    newDeviceBase(prof.LocalizedName+" (simulated)", "sim-"+subactionPath, typ),
		subactionPath: subactionPath,
		prof:          prof,
		active:        true,
		pose:          pose,
		pending:       make(map[InputName]InputValue, len(inputs)),
	}
	c.profile = prof.Path
	c.inputs = inputs
	c.outputs = outputs

	for _, option := range options {
		option(c)
	}
	return c, nil
}

func controllerDefaults(subactionPath string) (DeviceType, common.Pose) {
	pose := common.IdentityPose()
	switch subactionPath {
	case "/user/hand/left":
		pose.Position = mgl32.Vec3{-0.2, 1.3, -0.5}
		return DeviceTypeLeftHandController, pose
	case "/user/hand/right":
		pose.Position = mgl32.Vec3{0.2, 1.3, -0.5}
		return DeviceTypeRightHandController, pose
	case "/user/head":
		pose.Position = mgl32.Vec3{0, common.DefaultHeadHeight, 0}
		return DeviceTypeGenericTracker, pose
	}
	pose.Position = mgl32.Vec3{0, 1.0, -0.3}
	return DeviceTypeGamepad, pose
}

func (c *simulatedControllerImpl) SubactionPath() string {
	return c.subactionPath
}

func (c *simulatedControllerImpl) InputFor(component string) (InputName, bool) {
	b, ok := c.prof.FindBinding(c.subactionPath + "/" + component)
	if !ok || b.IsOutput() {
		return "", false
	}
	return b.Input, true
}

// stage validates the input type and records the value. Caller must not hold the mutex.
func (c *simulatedControllerImpl) stage(name InputName, v InputValue, accept ...InputType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.inputIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownInput, name)
	}
	for _, t := range accept {
		if c.inputs[i].Type == t {
			c.pending[name] = v
			return nil
		}
	}
	return fmt.Errorf("%w: %s is %s", ErrUnknownInput, name, c.inputs[i].Type)
}

func (c *simulatedControllerImpl) SetBool(name InputName, v bool) error {
	return c.stage(name, InputValue{Boolean: v}, InputTypeBoolean)
}

func (c *simulatedControllerImpl) SetFloat(name InputName, v float32) error {
	in, ok := c.FindInput(name)
	if ok && in.Type == InputTypeVec1ZeroToOne {
		v = common.Clamp(v, 0, 1)
	} else {
		v = common.Clamp(v, -1, 1)
	}
	return c.stage(name, InputValue{Vec1: v}, InputTypeVec1ZeroToOne, InputTypeVec1MinusOneToOne)
}

func (c *simulatedControllerImpl) SetVec2(name InputName, v mgl32.Vec2) error {
	v = mgl32.Vec2{common.Clamp(v[0], -1, 1), common.Clamp(v[1], -1, 1)}
	return c.stage(name, InputValue{Vec2: v}, InputTypeVec2MinusOneToOne)
}

func (c *simulatedControllerImpl) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
}

func (c *simulatedControllerImpl) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *simulatedControllerImpl) SetPose(pose common.Pose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pose = pose
}

func (c *simulatedControllerImpl) UpdateInputs(nowNs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.inputs {
		in := &c.inputs[i]
		if in.Active != c.active {
			in.Active = c.active
			in.Timestamp = nowNs
		}
		if v, ok := c.pending[in.Name]; ok {
			if v != in.Value {
				in.Value = v
				in.Timestamp = nowNs
			}
			delete(c.pending, in.Name)
		}
	}
	return nil
}

func (c *simulatedControllerImpl) GetTrackedPose(name InputName, _ int64) (common.Relation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.inputIndex(name)
	if i < 0 || c.inputs[i].Type != InputTypePose {
		return common.Relation{}, fmt.Errorf("%w: %s", ErrUnknownInput, name)
	}
	if !c.active {
		return common.Relation{Pose: common.IdentityPose()}, nil
	}
	return common.Relation{
		Pose:  c.pose,
		Flags: common.RelationPoseValid | common.RelationPoseTracked,
	}, nil
}

func (c *simulatedControllerImpl) SetOutput(name OutputName, value OutputValue) error {
	if !c.FindOutput(name) {
		return fmt.Errorf("%w: %s", ErrUnknownOutput, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, OutputEvent{Name: name, Value: value})
	return nil
}

func (c *simulatedControllerImpl) OutputLog() []OutputEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OutputEvent, len(c.log))
	copy(out, c.log)
	return out
}
