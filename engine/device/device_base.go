package device

import (
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/go-gl/mathgl/mgl32"
)

// deviceBase carries the bookkeeping shared by the simulated devices.
// Embedders override the capabilities they actually have.
type deviceBase struct {
	mu *sync.Mutex

	name    string
	serial  string
	typ     DeviceType
	profile string

	inputs  []Input
	outputs []Output
}

func newDeviceBase(name, serial string, typ DeviceType) deviceBase {
	return deviceBase{
		mu:     &sync.Mutex{},
		name:   name,
		serial: serial,
		typ:    typ,
	}
}

func (d *deviceBase) Name() string {
	return d.name
}

func (d *deviceBase) Serial() string {
	return d.serial
}

func (d *deviceBase) Type() DeviceType {
	return d.typ
}

func (d *deviceBase) PreferredProfile() string {
	return d.profile
}

func (d *deviceBase) Inputs() []Input {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.inputs)
}

func (d *deviceBase) FindInput(name InputName) (Input, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.inputIndex(name); i >= 0 {
		return d.inputs[i], true
	}
	return Input{}, false
}

// inputIndex returns the slot of name or -1. Caller must hold the mutex.
func (d *deviceBase) inputIndex(name InputName) int {
	for i := range d.inputs {
		if d.inputs[i].Name == name {
			return i
		}
	}
	return -1
}

func (d *deviceBase) Outputs() []Output {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.outputs)
}

func (d *deviceBase) FindOutput(name OutputName) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.outputs {
		if o.Name == name {
			return true
		}
	}
	return false
}

func (d *deviceBase) GetHandTracking(InputName, int64) (HandJointSet, int64, error) {
	return HandJointSet{}, 0, ErrNotSupported
}

func (d *deviceBase) GetViewPoses(mgl32.Vec3, int64, int) (common.Relation, []common.Fov, []common.Pose, error) {
	return common.Relation{}, nil, nil, ErrNotSupported
}

func (d *deviceBase) ComputeDistortion(_ int, u, v float32) (DistortionTriplet, bool) {
	uv := mgl32.Vec2{u, v}
	return DistortionTriplet{R: uv, G: uv, B: uv}, true
}

func (d *deviceBase) HMD() *HMDParts {
	return nil
}
