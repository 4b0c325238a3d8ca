package path

// Subaction is one of the top-level user paths an action may be filtered by.
type Subaction int

const (
	SubactionUser Subaction = iota
	SubactionHead
	SubactionLeft
	SubactionRight
	SubactionGamepad

	// SubactionCount is the number of concrete subaction kinds.
	SubactionCount
)

// Subactions lists every concrete kind in the order state is gathered: user, head, left,
// right, gamepad.
var Subactions = [SubactionCount]Subaction{SubactionUser, SubactionHead, SubactionLeft, SubactionRight, SubactionGamepad}

var subactionPaths = [SubactionCount]string{
	SubactionUser:    "/user",
	SubactionHead:    "/user/head",
	SubactionLeft:    "/user/hand/left",
	SubactionRight:   "/user/hand/right",
	SubactionGamepad: "/user/gamepad",
}

func (s Subaction) String() string {
	if s >= 0 && s < SubactionCount {
		return subactionPaths[s]
	}
	return "unknown"
}

// SubactionSet is a set of subaction kinds plus the "any" flag that stands for the
// unfiltered roll-up.
type SubactionSet struct {
	Any  bool
	bits uint8
}

// AllSubactions has the any flag and every kind set.
func AllSubactions() SubactionSet {
	return SubactionSet{Any: true, bits: 1<<SubactionCount - 1}
}

// With returns a copy of s with kind added.
func (s SubactionSet) With(kind Subaction) SubactionSet {
	s.bits |= 1 << kind
	return s
}

// Has reports whether kind is in the set.
func (s SubactionSet) Has(kind Subaction) bool {
	return s.bits&(1<<kind) != 0
}

// Or returns the union of two sets.
func (s SubactionSet) Or(o SubactionSet) SubactionSet {
	return SubactionSet{Any: s.Any || o.Any, bits: s.bits | o.bits}
}

// Empty reports whether no flag at all is set.
func (s SubactionSet) Empty() bool {
	return !s.Any && s.bits == 0
}

// Kinds returns the concrete kinds in the set in gathering order.
func (s SubactionSet) Kinds() []Subaction {
	var out []Subaction
	for _, k := range Subactions {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}
