// Package action implements action sets, suggested bindings and the per-session attachment
// that turns abstract client actions into device input and output.
package action

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/handle"
	"github.com/Carmen-Shannon/oxy-xr/engine/path"
	"github.com/Carmen-Shannon/oxy-xr/engine/result"
)

// MaxNameLength is the longest accepted action or action set name in bytes.
const MaxNameLength = 63

// ActionType is the value shape of an action, numbered as the client API does.
type ActionType int

const (
	ActionTypeBoolean         ActionType = 1
	ActionTypeFloat           ActionType = 2
	ActionTypeVector2f        ActionType = 3
	ActionTypePose            ActionType = 4
	ActionTypeVibrationOutput ActionType = 100
)

func (t ActionType) String() string {
	switch t {
	case ActionTypeBoolean:
		return "boolean"
	case ActionTypeFloat:
		return "float"
	case ActionTypeVector2f:
		return "vector2f"
	case ActionTypePose:
		return "pose"
	case ActionTypeVibrationOutput:
		return "vibration"
	}
	return fmt.Sprintf("ActionType(%d)", int(t))
}

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionTypeBoolean, ActionTypeFloat, ActionTypeVector2f, ActionTypePose, ActionTypeVibrationOutput:
		return true
	}
	return false
}

// SuggestedBinding pairs an action with one binding path of an interaction profile.
type SuggestedBinding struct {
	Action  Action
	Binding path.ID
}

// Context owns the action sets and suggested bindings of one instance.
type Context interface {
	// CreateActionSet creates an action set. Names are unique per instance.
	//
	// Parameters:
	//   - name: the set name, lowercase letters, digits, '-', '_' and '.'
	//   - localizedName: the human readable name, non-empty
	//   - priority: the set priority, higher wins on conflicting bindings
	//
	// Returns:
	//   - ActionSet: the new set
	//   - error: NameInvalid, LocalizedNameInvalid, NameDuplicated or LocalizedNameDuplicated
	CreateActionSet(name, localizedName string, priority uint32) (ActionSet, error)

	// SuggestBindings replaces the suggested bindings of one interaction profile.
	//
	// Parameters:
	//   - profile: the interaction profile path
	//   - bindings: the action to binding path pairs
	//
	// Returns:
	//   - error: PathUnsupported for an unknown profile or binding path, ActionSetsAlreadyAttached
	//     if an action belongs to an attached set
	SuggestBindings(profile path.ID, bindings []SuggestedBinding) error

	// SuggestedBindings returns the binding paths suggested for an action under a profile.
	//
	// Parameters:
	//   - profilePath: the interaction profile path string
	//   - actionKey: the action key
	//
	// Returns:
	//   - []string: the binding paths in suggestion order
	SuggestedBindings(profilePath string, actionKey uint32) []string

	// HasSuggestions reports whether any binding was suggested for a profile.
	HasSuggestions(profilePath string) bool

	// Profiles returns the interaction profiles the runtime understands, in preference order.
	Profiles() []*device.Profile

	// LookupProfile returns a profile by path.
	LookupProfile(profilePath string) (*device.Profile, bool)

	// Paths returns the path registry the context resolves paths with.
	Paths() path.Registry
}

// ActionSet is a named group of actions that is attached to a session as a whole.
type ActionSet interface {
	// CreateAction creates an action in the set.
	//
	// Parameters:
	//   - name: the action name, unique within the set
	//   - localizedName: the human readable name, unique within the set
	//   - typ: the action type
	//   - subactionPaths: the top-level user paths the action may be filtered by, empty for none
	//
	// Returns:
	//   - Action: the new action
	//   - error: ActionSetsAlreadyAttached once the set is attached, a name error, or
	//     PathUnsupported for a subaction path that is not a top-level user path
	CreateAction(name, localizedName string, typ ActionType, subactionPaths []path.ID) (Action, error)

	Key() uint32
	Name() string
	LocalizedName() string
	Priority() uint32

	// Attached reports whether the set was attached to a session and is therefore immutable.
	Attached() bool

	// Actions returns the live actions in creation order.
	Actions() []Action

	// Destroy destroys the set and its actions. Sessions the set is attached to keep its data.
	Destroy()

	// Destroyed reports whether Destroy was called.
	Destroyed() bool

	data() *handle.RefCell[*setData]
}

// Action is one client action.
type Action interface {
	Key() uint32
	Name() string
	LocalizedName() string
	Type() ActionType

	// Subactions returns the subaction paths the action was created with. Any is set when
	// none were given.
	Subactions() path.SubactionSet

	// Set returns the owning action set.
	Set() ActionSet

	// Destroy frees the action's name. Attachments keep its data.
	Destroy()

	// Destroyed reports whether the action or its set was destroyed.
	Destroyed() bool

	data() *handle.RefCell[*actionData]
}

type setData struct {
	key       uint32
	name      string
	localized string
	priority  uint32
	attached  atomic.Bool
}

type actionData struct {
	key        uint32
	setKey     uint32
	name       string
	localized  string
	typ        ActionType
	subactions path.SubactionSet
}

type actionContext struct {
	mu       *sync.Mutex
	log      *slog.Logger
	paths    path.Registry
	profiles []*device.Profile

	setNames     map[string]bool
	setLocalized map[string]bool
	// suggested maps a profile path to the binding paths of each action key.
	suggested map[string]map[uint32][]string

	nextKey atomic.Uint32
}

var _ Context = &actionContext{}

// NewContext creates the action context of an instance.
//
// Parameters:
//   - options: functional options to configure the context
//
// Returns:
//   - Context: the new context
func NewContext(options ...ContextBuilderOption) Context {
	c := &actionContext{
		mu:           &sync.Mutex{},
		log:          common.ComponentLogger("action"),
		setNames:     make(map[string]bool),
		setLocalized: make(map[string]bool),
		suggested:    make(map[string]map[uint32][]string),
	}
	for _, option := range options {
		option(c)
	}
	if c.paths == nil {
		c.paths = path.NewRegistry()
	}
	if c.profiles == nil {
		c.profiles = device.Profiles()
	}
	return c
}

// ValidateName checks an action or action set name.
//
// Parameters:
//   - name: the name
//
// Returns:
//   - error: NameInvalid describing the problem, or nil
func ValidateName(name string) error {
	if name == "" {
		return result.Errorf(result.NameInvalid, "name is empty")
	}
	if len(name) > MaxNameLength {
		return result.Errorf(result.NameInvalid, "name %q is longer than %d bytes", name, MaxNameLength)
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '.') {
			return result.Errorf(result.NameInvalid, "name %q has invalid character %q", name, c)
		}
	}
	return nil
}

// ClassifySubactionPaths turns a client subaction path list into a set. An empty list
// yields a set with only Any set.
//
// Parameters:
//   - reg: the registry the IDs were interned in
//   - ids: the subaction paths
//
// Returns:
//   - path.SubactionSet: the classified set
//   - error: PathUnsupported for a null, duplicated or non top-level path
func ClassifySubactionPaths(reg path.Registry, ids []path.ID) (path.SubactionSet, error) {
	if len(ids) == 0 {
		return path.SubactionSet{Any: true}, nil
	}
	var set path.SubactionSet
	for _, id := range ids {
		kind, ok := reg.Classify(id)
		if !ok {
			s, _ := reg.String(id)
			return path.SubactionSet{}, result.Errorf(result.PathUnsupported, "%q is not a top-level user path", s)
		}
		if set.Has(kind) {
			return path.SubactionSet{}, result.Errorf(result.PathUnsupported, "subaction path %s listed twice", kind)
		}
		set = set.With(kind)
	}
	return set, nil
}

func (c *actionContext) CreateActionSet(name, localizedName string, priority uint32) (ActionSet, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if localizedName == "" {
		return nil, result.Errorf(result.LocalizedNameInvalid, "action set %q has an empty localized name", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setNames[name] {
		return nil, result.Errorf(result.NameDuplicated, "action set %q already exists", name)
	}
	if c.setLocalized[localizedName] {
		return nil, result.Errorf(result.LocalizedNameDuplicated, "action set localized name %q already exists", localizedName)
	}
	c.setNames[name] = true
	c.setLocalized[localizedName] = true

	d := &setData{key: c.nextKey.Add(1), name: name, localized: localizedName, priority: priority}
	s := &actionSet{
		mu:        &sync.Mutex{},
		ctx:       c,
		ref:       handle.NewRefCell(d, nil),
		names:     make(map[string]*action),
		localized: make(map[string]bool),
	}
	c.log.Debug("action set created", "name", name, "key", d.key)
	return s, nil
}

func (c *actionContext) releaseSetNames(name, localized string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.setNames, name)
	delete(c.setLocalized, localized)
}

func (c *actionContext) SuggestBindings(profile path.ID, bindings []SuggestedBinding) error {
	profileStr, err := c.paths.String(profile)
	if err != nil {
		return err
	}
	prof, ok := c.LookupProfile(profileStr)
	if !ok {
		return result.Errorf(result.PathUnsupported, "interaction profile %s is not supported", profileStr)
	}
	if len(bindings) == 0 {
		return result.Errorf(result.ValidationFailure, "no bindings suggested for %s", profileStr)
	}

	table := make(map[uint32][]string, len(bindings))
	for _, b := range bindings {
		if b.Action == nil || b.Action.Destroyed() {
			return result.Errorf(result.HandleInvalid, "suggested binding without a live action")
		}
		if b.Action.Set().Attached() {
			return result.Errorf(result.ActionSetsAlreadyAttached, "action %q belongs to an attached set", b.Action.Name())
		}
		bp, err := c.paths.String(b.Binding)
		if err != nil {
			return err
		}
		if len(prof.FindBindings(bp)) == 0 {
			return result.Errorf(result.PathUnsupported, "%s is not a binding of %s", bp, profileStr)
		}
		key := b.Action.Key()
		if !slices.Contains(table[key], bp) {
			table[key] = append(table[key], bp)
		}
	}

	c.mu.Lock()
	c.suggested[profileStr] = table
	c.mu.Unlock()
	c.log.Debug("bindings suggested", "profile", profileStr, "count", len(bindings))
	return nil
}

func (c *actionContext) SuggestedBindings(profilePath string, actionKey uint32) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.suggested[profilePath][actionKey])
}

func (c *actionContext) HasSuggestions(profilePath string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.suggested[profilePath]) > 0
}

func (c *actionContext) Profiles() []*device.Profile {
	return c.profiles
}

func (c *actionContext) LookupProfile(profilePath string) (*device.Profile, bool) {
	for _, p := range c.profiles {
		if p.Path == profilePath {
			return p, true
		}
	}
	return nil, false
}

func (c *actionContext) Paths() path.Registry {
	return c.paths
}

type actionSet struct {
	mu  *sync.Mutex
	ctx *actionContext
	ref *handle.RefCell[*setData]

	names     map[string]*action
	localized map[string]bool
	order     []*action
	destroyed bool
}

var _ ActionSet = &actionSet{}

func (s *actionSet) CreateAction(name, localizedName string, typ ActionType, subactionPaths []path.ID) (Action, error) {
	d := s.ref.Value()
	if d.attached.Load() {
		return nil, result.Errorf(result.ActionSetsAlreadyAttached, "action set %q is attached", d.name)
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if localizedName == "" {
		return nil, result.Errorf(result.LocalizedNameInvalid, "action %q has an empty localized name", name)
	}
	if !typ.Valid() {
		return nil, result.Errorf(result.ValidationFailure, "action %q has unknown type %d", name, int(typ))
	}
	subs, err := ClassifySubactionPaths(s.ctx.paths, subactionPaths)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, result.Errorf(result.HandleInvalid, "action set %q is destroyed", d.name)
	}
	if _, ok := s.names[name]; ok {
		return nil, result.Errorf(result.NameDuplicated, "action %q already exists in %q", name, d.name)
	}
	if s.localized[localizedName] {
		return nil, result.Errorf(result.LocalizedNameDuplicated, "localized name %q already exists in %q", localizedName, d.name)
	}

	a := &action{
		set: s,
		ref: handle.NewRefCell(&actionData{
			key:        s.ctx.nextKey.Add(1),
			setKey:     d.key,
			name:       name,
			localized:  localizedName,
			typ:        typ,
			subactions: subs,
		}, nil),
	}
	s.names[name] = a
	s.localized[localizedName] = true
	s.order = append(s.order, a)
	return a, nil
}

func (s *actionSet) removeAction(a *action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := a.ref.Value()
	if s.names[d.name] == a {
		delete(s.names, d.name)
		delete(s.localized, d.localized)
	}
	s.order = slices.DeleteFunc(s.order, func(o *action) bool { return o == a })
}

func (s *actionSet) Key() uint32           { return s.ref.Value().key }
func (s *actionSet) Name() string          { return s.ref.Value().name }
func (s *actionSet) LocalizedName() string { return s.ref.Value().localized }
func (s *actionSet) Priority() uint32      { return s.ref.Value().priority }
func (s *actionSet) Attached() bool        { return s.ref.Value().attached.Load() }

func (s *actionSet) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Action, len(s.order))
	for i, a := range s.order {
		out[i] = a
	}
	return out
}

func (s *actionSet) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *actionSet) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	actions := slices.Clone(s.order)
	s.mu.Unlock()

	for _, a := range actions {
		a.Destroy()
	}
	d := s.ref.Value()
	s.ctx.releaseSetNames(d.name, d.localized)
	s.ref.Release()
}

func (s *actionSet) data() *handle.RefCell[*setData] {
	return s.ref
}

type action struct {
	set       *actionSet
	ref       *handle.RefCell[*actionData]
	once      sync.Once
	destroyed atomic.Bool
}

var _ Action = &action{}

func (a *action) Key() uint32                   { return a.ref.Value().key }
func (a *action) Name() string                  { return a.ref.Value().name }
func (a *action) LocalizedName() string         { return a.ref.Value().localized }
func (a *action) Type() ActionType              { return a.ref.Value().typ }
func (a *action) Subactions() path.SubactionSet { return a.ref.Value().subactions }
func (a *action) Set() ActionSet                { return a.set }

func (a *action) Destroyed() bool {
	return a.destroyed.Load() || a.set.Destroyed()
}

func (a *action) Destroy() {
	a.once.Do(func() {
		a.destroyed.Store(true)
		a.set.removeAction(a)
		a.ref.Release()
	})
}

func (a *action) data() *handle.RefCell[*actionData] {
	return a.ref
}
