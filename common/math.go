package common

import (
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// RelationFlags marks which parts of a Relation carry meaningful data.
type RelationFlags uint32

const (
	RelationOrientationValid RelationFlags = 1 << iota
	RelationPositionValid
	RelationLinearVelocityValid
	RelationAngularVelocityValid
	RelationOrientationTracked
	RelationPositionTracked
)

const (
	// RelationPoseValid is set when both orientation and position are valid.
	RelationPoseValid = RelationOrientationValid | RelationPositionValid
	// RelationPoseTracked is set when both orientation and position are actively tracked.
	RelationPoseTracked = RelationOrientationTracked | RelationPositionTracked
	// RelationAll has every flag set and is used for fixed origins such as the stage.
	RelationAll = RelationPoseValid | RelationPoseTracked | RelationLinearVelocityValid | RelationAngularVelocityValid
)

// Has reports whether every bit of mask is set.
func (f RelationFlags) Has(mask RelationFlags) bool {
	return f&mask == mask
}

// DefaultHeadHeight is the standing eye height in meters used when no position is known.
const DefaultHeadHeight float32 = 1.6

// Pose is a rigid transform: rotate by Orientation, then translate by Position.
type Pose struct {
	Orientation mgl32.Quat
	Position    mgl32.Vec3
}

// IdentityPose returns the pose with identity orientation at the origin.
func IdentityPose() Pose {
	return Pose{Orientation: mgl32.QuatIdent()}
}

// Compose returns p ∘ inner, the transform that applies inner first and then p.
//
// Parameters:
//   - inner: the pose expressed in p's space
//
// Returns:
//   - Pose: inner expressed in the space p is expressed in
func (p Pose) Compose(inner Pose) Pose {
	return Pose{
		Orientation: p.Orientation.Mul(inner.Orientation).Normalize(),
		Position:    p.Position.Add(p.Orientation.Rotate(inner.Position)),
	}
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	inv := p.Orientation.Conjugate()
	return Pose{
		Orientation: inv,
		Position:    inv.Rotate(p.Position.Mul(-1)),
	}
}

// TransformPoint maps a point from p's local space into its parent space.
func (p Pose) TransformPoint(v mgl32.Vec3) mgl32.Vec3 {
	return p.Position.Add(p.Orientation.Rotate(v))
}

// Matrix returns the column-major model matrix T·R for the pose.
func (p Pose) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(p.Position.X(), p.Position.Y(), p.Position.Z()).Mul4(p.Orientation.Normalize().Mat4())
}

// ViewMatrix returns the inverse of the model matrix, used to view the world from p.
func (p Pose) ViewMatrix() mgl32.Mat4 {
	return p.Inverse().Matrix()
}

// IsValid reports whether every component is finite and the orientation is a unit quaternion
// within a tolerance of 1%.
func (p Pose) IsValid() bool {
	vals := [7]float32{
		p.Orientation.W, p.Orientation.V[0], p.Orientation.V[1], p.Orientation.V[2],
		p.Position[0], p.Position[1], p.Position[2],
	}
	for _, v := range vals {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return math32.Abs(p.Orientation.Len()-1) <= 0.01
}

// Relation is a pose with optional velocities and validity flags.
type Relation struct {
	Pose            Pose
	LinearVelocity  mgl32.Vec3
	AngularVelocity mgl32.Vec3
	Flags           RelationFlags
}

// FixedRelation returns a fully valid, fully tracked, motionless relation at pose p.
func FixedRelation(p Pose) Relation {
	return Relation{Pose: p, Flags: RelationAll}
}

// Compose returns r ∘ inner. Flags are combined with a strict conjunction so a bit survives
// only when set on both operands.
//
// Parameters:
//   - inner: the relation expressed in r's space
//
// Returns:
//   - Relation: inner expressed in the space r is expressed in
func (r Relation) Compose(inner Relation) Relation {
	out := Relation{
		Pose:  r.Pose.Compose(inner.Pose),
		Flags: r.Flags & inner.Flags,
	}
	if out.Flags.Has(RelationAngularVelocityValid) {
		out.AngularVelocity = r.AngularVelocity.Add(r.Pose.Orientation.Rotate(inner.AngularVelocity))
	}
	if out.Flags.Has(RelationLinearVelocityValid) {
		lever := r.Pose.Orientation.Rotate(inner.Pose.Position)
		out.LinearVelocity = r.LinearVelocity.
			Add(r.Pose.Orientation.Rotate(inner.LinearVelocity)).
			Add(r.AngularVelocity.Cross(lever))
	}
	return out
}

// Inverse returns the relation of r's parent space as seen from r. Flags are preserved.
func (r Relation) Inverse() Relation {
	inv := r.Pose.Inverse()
	out := Relation{Pose: inv, Flags: r.Flags}
	if r.Flags.Has(RelationAngularVelocityValid) {
		out.AngularVelocity = inv.Orientation.Rotate(r.AngularVelocity.Mul(-1))
	}
	if r.Flags.Has(RelationLinearVelocityValid) {
		v := r.LinearVelocity.Mul(-1)
		if r.Flags.Has(RelationAngularVelocityValid) {
			// The parent origin sits at -p relative to r, so r's spin drags it along.
			v = v.Add(r.AngularVelocity.Cross(r.Pose.Position))
		}
		out.LinearVelocity = inv.Orientation.Rotate(v)
	}
	return out
}

// Fov holds the four half-angles, in radians, of an asymmetric view frustum.
// Left and down are normally negative.
type Fov struct {
	AngleLeft  float32
	AngleRight float32
	AngleUp    float32
	AngleDown  float32
}

// SymmetricFov builds a Fov from total horizontal and vertical angles in radians.
func SymmetricFov(horizontal, vertical float32) Fov {
	return Fov{
		AngleLeft:  -horizontal / 2,
		AngleRight: horizontal / 2,
		AngleUp:    vertical / 2,
		AngleDown:  -vertical / 2,
	}
}

// ProjectionFromFov builds a column-major projection matrix mapping depth to [0, 1].
//
// Parameters:
//   - fov: the asymmetric frustum angles
//   - near: near plane distance (positive)
//   - far: far plane distance (greater than near)
//
// Returns:
//   - mgl32.Mat4: the projection matrix
func ProjectionFromFov(fov Fov, near, far float32) mgl32.Mat4 {
	tanLeft := math32.Tan(fov.AngleLeft)
	tanRight := math32.Tan(fov.AngleRight)
	tanDown := math32.Tan(fov.AngleDown)
	tanUp := math32.Tan(fov.AngleUp)

	w := tanRight - tanLeft
	h := tanUp - tanDown

	var m mgl32.Mat4
	m[0] = 2 / w
	m[5] = 2 / h
	m[8] = (tanRight + tanLeft) / w
	m[9] = (tanUp + tanDown) / h
	m[10] = -far / (far - near)
	m[11] = -1
	m[14] = -(far * near) / (far - near)
	return m
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice using unsafe.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct to reinterpret
//
// Returns:
//   - []byte: byte slice view of the struct's memory
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}
