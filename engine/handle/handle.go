// Package handle implements the tagged handle table every client-visible object lives in.
package handle

import (
	"errors"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/engine/result"
)

// ID is an opaque client handle. The zero value is the null handle.
type ID uint64

// NullID is the null handle.
const NullID ID = 0

// MaxChildren is the per-parent child capacity.
const MaxChildren = 256

// Kind tags the object a handle refers to.
type Kind int

const (
	KindInstance Kind = iota + 1
	KindSession
	KindSpace
	KindActionSet
	KindAction
	KindSwapchain
	KindMessenger
	KindHandTracker
)

func (k Kind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindSession:
		return "session"
	case KindSpace:
		return "space"
	case KindActionSet:
		return "action set"
	case KindAction:
		return "action"
	case KindSwapchain:
		return "swapchain"
	case KindMessenger:
		return "debug messenger"
	case KindHandTracker:
		return "hand tracker"
	}
	return "unknown"
}

// State is the lifecycle state of a handle.
type State int

const (
	StateUninitialized State = iota
	StateLive
	StateDestroyed
)

// Destructor releases the resources behind a handle. It runs after all children are destroyed.
type Destructor func() error

// Table allocates handles, tracks the parent/child graph and runs destructors post-order.
type Table interface {
	// Create registers obj under a new handle.
	//
	// Parameters:
	//   - kind: the object kind
	//   - parent: the owning handle, or NullID for roots
	//   - obj: the object the handle resolves to
	//   - destroy: destructor run when the handle is destroyed, may be nil
	//
	// Returns:
	//   - ID: the new handle
	//   - error: HandleInvalid if parent is not live, LimitReached if parent has MaxChildren children
	Create(kind Kind, parent ID, obj any, destroy Destructor) (ID, error)

	// Get resolves a live handle of the expected kind.
	//
	// Parameters:
	//   - id: the handle
	//   - kind: the expected kind
	//
	// Returns:
	//   - any: the object
	//   - error: HandleInvalid if id is unknown, not live or of another kind
	Get(id ID, kind Kind) (any, error)

	// Destroy destroys id and all of its descendants, children first. Destroying a handle that
	// is already destroyed is a no-op.
	//
	// Returns:
	//   - error: the joined destructor errors, or HandleInvalid if id was never allocated
	Destroy(id ID) error

	// State returns the lifecycle state of id; unknown handles report StateUninitialized.
	State(id ID) State

	// Children returns the live children of id in creation order.
	Children(id ID) []ID

	// Parent returns the parent of id.
	Parent(id ID) ID

	// Live returns the number of live handles.
	Live() int
}

type node struct {
	kind     Kind
	parent   ID
	children []ID
	obj      any
	destroy  Destructor
	state    State
}

type table struct {
	mu    *sync.Mutex
	nodes map[ID]*node
	next  ID
	live  int
}

var _ Table = &table{}

// NewTable creates an empty handle table.
//
// Returns:
//   - Table: the new table
func NewTable() Table {
	return &table{
		mu:    &sync.Mutex{},
		nodes: make(map[ID]*node),
	}
}

func (t *table) Create(kind Kind, parent ID, obj any, destroy Destructor) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var p *node
	if parent != NullID {
		p = t.nodes[parent]
		if p == nil || p.state != StateLive {
			return NullID, result.Errorf(result.HandleInvalid, "parent handle 0x%x is not live", uint64(parent))
		}
		if len(p.children) >= MaxChildren {
			return NullID, result.Errorf(result.LimitReached, "%s 0x%x already has %d children", p.kind, uint64(parent), MaxChildren)
		}
	}

	t.next++
	id := t.next
	t.nodes[id] = &node{
		kind:     kind,
		parent:   parent,
		children: make([]ID, 0, 4),
		obj:      obj,
		destroy:  destroy,
		state:    StateLive,
	}
	if p != nil {
		p.children = append(p.children, id)
	}
	t.live++
	return id, nil
}

func (t *table) Get(id ID, kind Kind) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.nodes[id]
	if n == nil || n.state != StateLive {
		return nil, result.Errorf(result.HandleInvalid, "%s handle 0x%x is not live", kind, uint64(id))
	}
	if n.kind != kind {
		return nil, result.Errorf(result.HandleInvalid, "handle 0x%x is a %s, not a %s", uint64(id), n.kind, kind)
	}
	return n.obj, nil
}

func (t *table) Destroy(id ID) error {
	t.mu.Lock()
	n := t.nodes[id]
	if n == nil {
		t.mu.Unlock()
		return result.Errorf(result.HandleInvalid, "handle 0x%x was never allocated", uint64(id))
	}
	if n.state == StateDestroyed {
		t.mu.Unlock()
		return nil
	}

	var order []*node
	t.collect(id, &order)
	for _, d := range order {
		d.state = StateDestroyed
		d.children = nil
		t.live--
	}
	if p := t.nodes[n.parent]; p != nil {
		p.children = removeID(p.children, id)
	}
	t.mu.Unlock()

	// Destructors run outside the lock so they may look up sibling handles.
	var errs []error
	for _, d := range order {
		if d.destroy != nil {
			if err := d.destroy(); err != nil {
				errs = append(errs, err)
			}
		}
		d.obj = nil
	}
	return errors.Join(errs...)
}

// collect appends id's subtree in post-order, newest children first.
func (t *table) collect(id ID, out *[]*node) {
	n := t.nodes[id]
	for i := len(n.children) - 1; i >= 0; i-- {
		if c := t.nodes[n.children[i]]; c != nil && c.state == StateLive {
			t.collect(n.children[i], out)
		}
	}
	*out = append(*out, n)
}

func (t *table) State(id ID) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.nodes[id]; n != nil {
		return n.state
	}
	return StateUninitialized
}

func (t *table) Children(id ID) []ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.nodes[id]
	if n == nil {
		return nil
	}
	out := make([]ID, len(n.children))
	copy(out, n.children)
	return out
}

func (t *table) Parent(id ID) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.nodes[id]; n != nil {
		return n.parent
	}
	return NullID
}

func (t *table) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func removeID(ids []ID, id ID) []ID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
