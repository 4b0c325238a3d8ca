package device

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Motion selects the synthetic head movement of a simulated HMD.
type Motion int

const (
	MotionStationary Motion = iota
	MotionRotate
	MotionWobble
)

func (m Motion) String() string {
	switch m {
	case MotionStationary:
		return "stationary"
	case MotionRotate:
		return "rotate"
	case MotionWobble:
		return "wobble"
	}
	return fmt.Sprintf("Motion(%d)", int(m))
}

// MaxPredictionNs is how far into the future a simulated device extrapolates a pose.
// Requests beyond it are answered for now + MaxPredictionNs.
const MaxPredictionNs int64 = 100 * common.MillisecondNs

const (
	rotateSpeed     float32 = 0.5 // rad/s around +Y
	wobbleYaw       float32 = 0.2 // rad
	wobbleSway      float32 = 0.1 // m
	wobbleBob       float32 = 0.05
	defaultHFovDeg  float32 = 85
	defaultFrameNs          = common.SecondNs / 60
	defaultScreenW  uint32  = 2560
	defaultScreenH  uint32  = 1440
	simulatedSerial         = "sim-hmd-0"
)

// PanotoolsValues parameterizes a radial polynomial lens model.
// The distortion factor for squared radius r2 is K[0] + r2*(K[1] + r2*(K[2] + r2*K[3])),
// and each color channel is further scaled by its entry in AberrationScale.
type PanotoolsValues struct {
	K               [4]float32
	AberrationScale [3]float32
	// LensCenter is the per-eye optical center in normalized view coordinates.
	LensCenter [2]mgl32.Vec2
}

// SimulatedHMD is a head-mounted display driven by a synthetic motion model.
type SimulatedHMD interface {
	Device

	// SetMotion switches the synthetic motion model.
	//
	// Parameters:
	//   - m: the new motion
	SetMotion(m Motion)

	// Motion returns the active motion model.
	//
	// Returns:
	//   - Motion: the motion model
	Motion() Motion
}

type simulatedHMDImpl struct {
	deviceBase

	clock   func() int64
	startNs int64
	motion  Motion

	parts     HMDParts
	panotools *PanotoolsValues
}

var _ SimulatedHMD = &simulatedHMDImpl{}

// NewSimulatedHMD creates a simulated headset with a side-by-side panel split into two views.
//
// Parameters:
//   - options: functional options to configure the headset
//
// Returns:
//   - SimulatedHMD: the headset
func NewSimulatedHMD(options ...HMDBuilderOption) SimulatedHMD {
	ts := common.NewTimeState()
	h := &simulatedHMDImpl{
		deviceBase: newDeviceBase("Simulated HMD", simulatedSerial, DeviceTypeHMD),
		clock:      ts.Now,
		motion:     MotionStationary,
	}
	h.inputs = []Input{{Name: HeadPoseInput, Type: InputTypePose, Active: true}}
	h.parts = splitSideBySide(defaultScreenW, defaultScreenH, defaultFrameNs, defaultHFovDeg)

	for _, option := range options {
		option(h)
	}
	h.startNs = h.clock()
	return h
}

// splitSideBySide divides a panel into two equal views with a symmetric horizontal FOV.
// The vertical FOV follows from the per-eye aspect ratio.
func splitSideBySide(w, h uint32, intervalNs int64, hFovDeg float32) HMDParts {
	eyeW := w / 2
	hFov := mgl32.DegToRad(hFovDeg)
	vFov := 2 * math32.Atan(math32.Tan(hFov/2)*float32(h)/float32(eyeW))

	parts := HMDParts{
		Screen:     Screen{WidthPixels: w, HeightPixels: h, NominalFrameIntervalNs: intervalNs},
		BlendModes: []BlendMode{BlendModeOpaque},
		Distortion: DistortionNone,
	}
	for i := range parts.Views {
		parts.Views[i] = View{
			Viewport: common.Rect2D{
				Offset: common.Offset2D{X: int32(uint32(i) * eyeW)},
				Extent: common.Extent2D{Width: int32(eyeW), Height: int32(h)},
			},
			Display: common.Extent2D{Width: int32(eyeW), Height: int32(h)},
			Fov:     common.SymmetricFov(hFov, vFov),
		}
	}
	return parts
}

func (h *simulatedHMDImpl) SetMotion(m Motion) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.motion = m
	common.ComponentLogger("device").Debug("simulated hmd motion changed", "motion", m)
}

func (h *simulatedHMDImpl) Motion() Motion {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.motion
}

func (h *simulatedHMDImpl) HMD() *HMDParts {
	return &h.parts
}

func (h *simulatedHMDImpl) UpdateInputs(nowNs int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.inputs {
		h.inputs[i].Active = true
		h.inputs[i].Timestamp = nowNs
	}
	return nil
}

func (h *simulatedHMDImpl) SetOutput(name OutputName, _ OutputValue) error {
	return fmt.Errorf("%w: %s", ErrUnknownOutput, name)
}

func (h *simulatedHMDImpl) GetTrackedPose(name InputName, atNs int64) (common.Relation, error) {
	if name != HeadPoseInput {
		return common.Relation{}, fmt.Errorf("%w: %s", ErrUnknownInput, name)
	}

	h.mu.Lock()
	motion := h.motion
	h.mu.Unlock()

	if limit := h.clock() + MaxPredictionNs; atNs > limit {
		atNs = limit
	}
	t := float32(atNs-h.startNs) / float32(common.SecondNs)
	return headRelation(motion, t), nil
}

// headRelation evaluates a motion model t seconds after the device started.
func headRelation(m Motion, t float32) common.Relation {
	rel := common.FixedRelation(common.Pose{
		Orientation: mgl32.QuatIdent(),
		Position:    mgl32.Vec3{0, common.DefaultHeadHeight, 0},
	})

	switch m {
	case MotionRotate:
		rel.Pose.Orientation = mgl32.QuatRotate(rotateSpeed*t, mgl32.Vec3{0, 1, 0})
		rel.AngularVelocity = mgl32.Vec3{0, rotateSpeed, 0}
	case MotionWobble:
		sin, cos := math32.Sin(t), math32.Cos(t)
		sin2, cos2 := math32.Sin(2*t), math32.Cos(2*t)
		rel.Pose.Orientation = mgl32.QuatRotate(wobbleYaw*sin, mgl32.Vec3{0, 1, 0})
		rel.Pose.Position = mgl32.Vec3{wobbleSway * sin, common.DefaultHeadHeight + wobbleBob*sin2, 0}
		rel.AngularVelocity = mgl32.Vec3{0, wobbleYaw * cos, 0}
		rel.LinearVelocity = mgl32.Vec3{wobbleSway * cos, 2 * wobbleBob * cos2, 0}
	}
	return rel
}

func (h *simulatedHMDImpl) GetViewPoses(eyeRelation mgl32.Vec3, atNs int64, viewCount int) (common.Relation, []common.Fov, []common.Pose, error) {
	if viewCount < 1 || viewCount > len(h.parts.Views) {
		return common.Relation{}, nil, nil, fmt.Errorf("device: %d views requested, hmd has %d", viewCount, len(h.parts.Views))
	}

	head, err := h.GetTrackedPose(HeadPoseInput, atNs)
	if err != nil {
		return common.Relation{}, nil, nil, err
	}

	fovs := make([]common.Fov, viewCount)
	poses := make([]common.Pose, viewCount)
	half := eyeRelation.Mul(0.5)
	for i := 0; i < viewCount; i++ {
		fovs[i] = h.parts.Views[i].Fov
		offset := half
		if i == 0 {
			offset = half.Mul(-1)
		}
		poses[i] = common.Pose{Orientation: mgl32.QuatIdent(), Position: offset}
	}
	return head, fovs, poses, nil
}

func (h *simulatedHMDImpl) ComputeDistortion(view int, u, v float32) (DistortionTriplet, bool) {
	if h.panotools == nil || view < 0 || view >= len(h.parts.Views) {
		return h.deviceBase.ComputeDistortion(view, u, v)
	}
	return panotoolsDistortion(h.panotools, view, u, v)
}

// panotoolsDistortion applies the radial polynomial around the view's lens center.
// The result is reported as outside the lens when the green sample leaves [0, 1].
func panotoolsDistortion(p *PanotoolsValues, view int, u, v float32) (DistortionTriplet, bool) {
	center := p.LensCenter[view]
	delta := mgl32.Vec2{u, v}.Sub(center)
	r2 := delta.Dot(delta)
	d := p.K[0] + r2*(p.K[1]+r2*(p.K[2]+r2*p.K[3]))

	var out [3]mgl32.Vec2
	for c := range out {
		out[c] = center.Add(delta.Mul(d * p.AberrationScale[c]))
	}
	g := out[1]
	inside := g[0] >= 0 && g[0] <= 1 && g[1] >= 0 && g[1] <= 1
	return DistortionTriplet{R: out[0], G: out[1], B: out[2]}, inside
}

var (
	defaultHMDOnce sync.Once
	defaultHMD     SimulatedHMD
)

// DefaultHMD returns a process-wide stationary simulated headset used when no other HMD is configured.
//
// Returns:
//   - SimulatedHMD: the shared headset
func DefaultHMD() SimulatedHMD {
	defaultHMDOnce.Do(func() {
		defaultHMD = NewSimulatedHMD()
	})
	return defaultHMD
}
