// Package space implements reference and action spaces and locates one space in another.
//
// Every space resolves to an origin in the tracking origin's frame plus the offset pose the
// application gave when creating it. The stage and local origins coincide with the tracking
// origin; the view origin follows the head; an action space follows the pose input bound to
// its action.
package space

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
	"github.com/go-gl/mathgl/mgl32"
)

// ReferenceType identifies a reference space. The values are the OpenXR enumerants.
type ReferenceType int32

const (
	ReferenceView        ReferenceType = 1
	ReferenceLocal       ReferenceType = 2
	ReferenceStage       ReferenceType = 3
	ReferenceUnbounded   ReferenceType = 1000038000
	ReferenceCombinedEye ReferenceType = 1000121000
	ReferenceLocalFloor  ReferenceType = 1000426000
)

// SupportedReferenceTypes lists the reference spaces sessions can create, in enumeration order.
var SupportedReferenceTypes = []ReferenceType{ReferenceView, ReferenceLocal, ReferenceStage}

func (t ReferenceType) String() string {
	switch t {
	case ReferenceView:
		return "view"
	case ReferenceLocal:
		return "local"
	case ReferenceStage:
		return "stage"
	case ReferenceUnbounded:
		return "unbounded"
	case ReferenceCombinedEye:
		return "combined_eye"
	case ReferenceLocalFloor:
		return "local_floor"
	}
	return fmt.Sprintf("ReferenceType(%d)", int32(t))
}

// Supported reports whether sessions can create the reference space.
func (t ReferenceType) Supported() bool {
	switch t {
	case ReferenceView, ReferenceLocal, ReferenceStage:
		return true
	}
	return false
}

// Kind tells reference spaces and action spaces apart.
type Kind int

const (
	KindReference Kind = iota
	KindAction
)

// Space is an immutable coordinate frame created by a session.
type Space interface {
	// Kind reports whether this is a reference or an action space.
	//
	// Returns:
	//   - Kind: the space kind
	Kind() Kind

	// ReferenceType returns the reference space type, zero for action spaces.
	//
	// Returns:
	//   - ReferenceType: the type
	ReferenceType() ReferenceType

	// ActionKey returns the key of the pose action an action space follows.
	//
	// Returns:
	//   - uint32: the action key, zero for reference spaces
	ActionKey() uint32

	// Subactions returns the subaction selection of an action space.
	//
	// Returns:
	//   - path.SubactionSet: the selection, any for the null path
	Subactions() path.SubactionSet

	// Offset returns the pose of the space relative to its origin.
	//
	// Returns:
	//   - common.Pose: the offset
	Offset() common.Pose

	// Destroy marks the space dead and runs its destroy handler. Idempotent.
	//
	// Returns:
	//   - error: the error the destroy handler failed with
	Destroy() error

	// Destroyed reports whether Destroy was called.
	Destroyed() bool
}

type space struct {
	kind       Kind
	ref        ReferenceType
	actionKey  uint32
	subactions path.SubactionSet
	offset     common.Pose

	destroyed atomic.Bool
	onDestroy func() error
}

var _ Space = &space{}

// NewReferenceSpace creates a reference space.
//
// Parameters:
//   - typ: the reference space type
//   - offset: the pose of the space in its reference frame
//   - options: functional options to configure the space
//
// Returns:
//   - Space: the space
//   - error: ReferenceSpaceUnsupported for types other than view, local and stage,
//     PoseInvalid for a non-finite or non-unit offset
func NewReferenceSpace(typ ReferenceType, offset common.Pose, options ...SpaceBuilderOption) (Space, error) {
	if !typ.Supported() {
		return nil, result.Errorf(result.ReferenceSpaceUnsupported, "reference space %s is not supported", typ)
	}
	if !offset.IsValid() {
		return nil, result.Errorf(result.PoseInvalid, "reference space offset is not a valid pose")
	}
	return newSpace(&space{kind: KindReference, ref: typ, offset: offset}, options), nil
}

// NewActionSpace creates a space following the pose of an action.
//
// Parameters:
//   - actionKey: the key of a pose action
//   - subactions: the subaction selection
//   - offset: the pose of the space relative to the action pose
//   - options: functional options to configure the space
//
// Returns:
//   - Space: the space
//   - error: PoseInvalid for a non-finite or non-unit offset
func NewActionSpace(actionKey uint32, subactions path.SubactionSet, offset common.Pose, options ...SpaceBuilderOption) (Space, error) {
	if !offset.IsValid() {
		return nil, result.Errorf(result.PoseInvalid, "action space offset is not a valid pose")
	}
	return newSpace(&space{kind: KindAction, actionKey: actionKey, subactions: subactions, offset: offset}, options), nil
}

func newSpace(s *space, options []SpaceBuilderOption) *space {
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *space) Kind() Kind                    { return s.kind }
func (s *space) ReferenceType() ReferenceType  { return s.ref }
func (s *space) ActionKey() uint32             { return s.actionKey }
func (s *space) Subactions() path.SubactionSet { return s.subactions }
func (s *space) Offset() common.Pose           { return s.offset }
func (s *space) Destroyed() bool               { return s.destroyed.Load() }

func (s *space) Destroy() error {
	if !s.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	if s.onDestroy != nil {
		return s.onDestroy()
	}
	return nil
}

func (s *space) String() string {
	if s.kind == KindAction {
		return fmt.Sprintf("action(%d)", s.actionKey)
	}
	return s.ref.String()
}

// Resolver supplies the time-varying origins spaces are located against.
type Resolver interface {
	// HeadRelation returns the head pose in the tracking origin at a time.
	//
	// Parameters:
	//   - atNs: the runtime time
	//
	// Returns:
	//   - common.Relation: the head relation
	//   - error: non-nil if the head cannot be queried
	HeadRelation(atNs int64) (common.Relation, error)

	// ActionRelation returns the pose source of a pose action in the tracking origin at a time.
	//
	// Parameters:
	//   - actionKey: the pose action
	//   - sel: the subaction selection of the action space
	//   - atNs: the runtime time
	//
	// Returns:
	//   - common.Relation: the relation, with no flags set when the action has no active source
	//   - error: non-nil if the device query fails
	ActionRelation(actionKey uint32, sel path.SubactionSet, atNs int64) (common.Relation, error)
}

// PoseSource finds the device input backing a pose action.
type PoseSource interface {
	PoseInput(actionKey uint32, sel path.SubactionSet) (device.Device, device.InputName, bool)
}

type deviceResolver struct {
	log   *slog.Logger
	head  device.Device
	poses PoseSource
}

var _ Resolver = &deviceResolver{}

// NewResolver creates a resolver reading the head from an HMD device and action poses through
// a pose source.
//
// Parameters:
//   - options: functional options to configure the resolver
//
// Returns:
//   - Resolver: the resolver
func NewResolver(options ...ResolverBuilderOption) Resolver {
	r := &deviceResolver{log: common.ComponentLogger("space")}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *deviceResolver) HeadRelation(atNs int64) (common.Relation, error) {
	if r.head == nil {
		return common.Relation{}, nil
	}
	return r.head.GetTrackedPose(device.HeadPoseInput, atNs)
}

func (r *deviceResolver) ActionRelation(actionKey uint32, sel path.SubactionSet, atNs int64) (common.Relation, error) {
	if r.poses == nil {
		return common.Relation{}, nil
	}
	dev, input, ok := r.poses.PoseInput(actionKey, sel)
	if !ok {
		r.log.Log(context.Background(), common.LevelTrace, "no active pose source", "action", actionKey)
		return common.Relation{}, nil
	}
	return dev.GetTrackedPose(input, atNs)
}

// origin returns the relation of the space's origin to the tracking origin.
func origin(s Space, atNs int64, res Resolver) (common.Relation, error) {
	if s.Kind() == KindAction {
		return res.ActionRelation(s.ActionKey(), s.Subactions(), atNs)
	}
	if s.ReferenceType() == ReferenceView {
		return res.HeadRelation(atNs)
	}
	return common.FixedRelation(common.IdentityPose()), nil
}

// Locate returns the pose of space expressed in base at a time. Validity and tracking flags
// survive only when every relation on the path carries them. An invalid orientation is
// reported as identity and an invalid position as the default standing head position.
//
// Parameters:
//   - s: the space to locate
//   - base: the space to express the result in
//   - atNs: the runtime time, must be positive
//   - res: the resolver supplying head and action poses
//
// Returns:
//   - common.Relation: the located relation
//   - error: TimeInvalid for a time of zero or below, HandleInvalid for a null or destroyed
//     space, or a device query failure
func Locate(s, base Space, atNs int64, res Resolver) (common.Relation, error) {
	if atNs <= 0 {
		return common.Relation{}, result.Errorf(result.TimeInvalid, "locate time %d is not positive", atNs)
	}
	if s == nil || base == nil {
		return common.Relation{}, result.Errorf(result.HandleInvalid, "space is null")
	}
	if s.Destroyed() || base.Destroyed() {
		return common.Relation{}, result.Errorf(result.HandleInvalid, "space is destroyed")
	}

	so, err := origin(s, atNs, res)
	if err != nil {
		return common.Relation{}, fmt.Errorf("locate %v: %w", s, err)
	}
	bo, err := origin(base, atNs, res)
	if err != nil {
		return common.Relation{}, fmt.Errorf("locate base %v: %w", base, err)
	}

	// base.offset⁻¹ ∘ base.origin⁻¹ ∘ space.origin ∘ space.offset
	rel := common.FixedRelation(base.Offset()).Inverse().
		Compose(bo.Inverse()).
		Compose(so).
		Compose(common.FixedRelation(s.Offset()))

	if !rel.Flags.Has(common.RelationOrientationValid) {
		rel.Pose.Orientation = mgl32.QuatIdent()
		rel.Flags &^= common.RelationOrientationTracked | common.RelationAngularVelocityValid
		rel.AngularVelocity = mgl32.Vec3{}
	}
	if !rel.Flags.Has(common.RelationPositionValid) {
		rel.Pose.Position = mgl32.Vec3{0, common.DefaultHeadHeight, 0}
		rel.Flags &^= common.RelationPositionTracked | common.RelationLinearVelocityValid
		rel.LinearVelocity = mgl32.Vec3{}
	}

	common.ComponentLogger("space").Log(context.Background(), common.LevelTrace, "space located",
		"space", s, "base", base, "at", atNs,
		"position", rel.Pose.Position, "flags", rel.Flags)
	return rel, nil
}

// EnumerateReferenceSpaces reports the supported reference space types with the two-call idiom.
//
// Parameters:
//   - dst: the caller buffer, empty to query the count
//
// Returns:
//   - int: the number of supported types
//   - error: SizeInsufficient if dst is non-empty but too small
func EnumerateReferenceSpaces(dst []ReferenceType) (int, error) {
	return result.TwoCall(dst, SupportedReferenceTypes)
}
