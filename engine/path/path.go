// Package path interns path strings into stable opaque IDs.
package path

import (
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/engine/result"
)

// ID is an interned path. The zero value is the null path.
type ID uint64

// NullID is the reserved null path.
const NullID ID = 0

// GamepadAlias is an alternate spelling of /user/gamepad that classifies as the gamepad subaction.
const GamepadAlias = "/user/hand/gamepad"

// MaxLength is the longest accepted path string in bytes, excluding the terminator.
const MaxLength = 255

// Registry interns path strings for the lifetime of an instance.
type Registry interface {
	// GetOrCreate interns s and returns its ID. Interning the same string twice returns the same ID
	// and takes an additional reference.
	//
	// Parameters:
	//   - s: a well-formed path string
	//
	// Returns:
	//   - ID: the interned path
	//   - error: PathFormatInvalid if s is malformed
	GetOrCreate(s string) (ID, error)

	// Lookup returns the ID for s without creating it.
	//
	// Parameters:
	//   - s: the path string
	//
	// Returns:
	//   - ID: the interned path, or NullID if s is not interned
	Lookup(s string) ID

	// String returns the string an ID was interned from.
	//
	// Parameters:
	//   - id: the path
	//
	// Returns:
	//   - string: the path string
	//   - error: PathInvalid if id is null or unknown
	String(id ID) (string, error)

	// Retain takes an additional reference on id.
	Retain(id ID)

	// Release drops a reference on id. Paths stay interned for the registry lifetime so IDs
	// remain stable; the count is informational.
	Release(id ID)

	// Refs returns the current reference count of id.
	Refs(id ID) int

	// Attach associates an arbitrary value with id, e.g. a binding table for an interaction profile.
	Attach(id ID, v any)

	// Attached returns the value associated with id by Attach.
	Attached(id ID) (any, bool)

	// Classify returns the subaction kind an ID names, if it is one of the reserved top-level
	// user paths.
	//
	// Returns:
	//   - Subaction: the kind
	//   - bool: false if id is not a reserved subaction path
	Classify(id ID) (Subaction, bool)

	// SubactionID returns the interned ID of a reserved subaction path.
	SubactionID(kind Subaction) ID

	// Len returns the number of interned paths.
	Len() int
}

type entry struct {
	id        ID
	str       string
	refs      int
	attached  any
	subaction Subaction
	reserved  bool
}

type registry struct {
	mu       *sync.RWMutex
	byString map[string]*entry
	byID     []*entry

	subactions [SubactionCount]ID
}

var _ Registry = &registry{}

// NewRegistry creates a registry with the reserved user paths pre-interned.
//
// Returns:
//   - Registry: the new registry
func NewRegistry() Registry {
	r := &registry{
		mu:       &sync.RWMutex{},
		byString: make(map[string]*entry),
		byID:     []*entry{nil},
	}
	for _, kind := range Subactions {
		e := r.insert(subactionPaths[kind])
		e.reserved = true
		e.subaction = kind
		r.subactions[kind] = e.id
	}
	alias := r.insert(GamepadAlias)
	alias.reserved = true
	alias.subaction = SubactionGamepad
	return r
}

func (r *registry) insert(s string) *entry {
	e := &entry{id: ID(len(r.byID)), str: s, refs: 1}
	r.byID = append(r.byID, e)
	r.byString[s] = e
	return e
}

func (r *registry) GetOrCreate(s string) (ID, error) {
	if err := Validate(s); err != nil {
		return NullID, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byString[s]; ok {
		e.refs++
		return e.id, nil
	}
	return r.insert(s).id, nil
}

func (r *registry) Lookup(s string) ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byString[s]; ok {
		return e.id
	}
	return NullID
}

func (r *registry) get(id ID) *entry {
	if id == NullID || int(id) >= len(r.byID) {
		return nil
	}
	return r.byID[id]
}

func (r *registry) String(id ID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.get(id)
	if e == nil {
		return "", result.Errorf(result.PathInvalid, "path 0x%x is not interned", uint64(id))
	}
	return e.str, nil
}

func (r *registry) Retain(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.get(id); e != nil {
		e.refs++
	}
}

func (r *registry) Release(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.get(id); e != nil && e.refs > 0 {
		e.refs--
	}
}

func (r *registry) Refs(id ID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.get(id); e != nil {
		return e.refs
	}
	return 0
}

func (r *registry) Attach(id ID, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.get(id); e != nil {
		e.attached = v
	}
}

func (r *registry) Attached(id ID) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.get(id); e != nil && e.attached != nil {
		return e.attached, true
	}
	return nil, false
}

func (r *registry) Classify(id ID) (Subaction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.get(id); e != nil && e.reserved {
		return e.subaction, true
	}
	return 0, false
}

func (r *registry) SubactionID(kind Subaction) ID {
	return r.subactions[kind]
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID) - 1
}

// Validate checks that s is a well-formed absolute path: it starts with '/', has no empty
// or dot-only segments, no trailing '/', and only lowercase letters, digits, '-', '_' and '.'.
//
// Parameters:
//   - s: the path string
//
// Returns:
//   - error: PathFormatInvalid describing the first problem found, or nil
func Validate(s string) error {
	if s == "" || s[0] != '/' {
		return result.Errorf(result.PathFormatInvalid, "path %q must start with '/'", s)
	}
	if len(s) > MaxLength {
		return result.Errorf(result.PathFormatInvalid, "path longer than %d bytes", MaxLength)
	}
	for _, seg := range strings.Split(s[1:], "/") {
		if seg == "" {
			return result.Errorf(result.PathFormatInvalid, "path %q has an empty segment", s)
		}
		if strings.Trim(seg, ".") == "" {
			return result.Errorf(result.PathFormatInvalid, "path %q has a dot-only segment", s)
		}
		for _, c := range seg {
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '.') {
				return result.Errorf(result.PathFormatInvalid, "path %q has invalid character %q", s, c)
			}
		}
	}
	return nil
}
