package device

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

// Suffixes whose parent path is also accepted as a binding path.
var strippableSuffixes = []string{"/value", "/click", "/touch", "/pose", "/x", "/y"}

type componentEntry struct {
	Path       string     `yaml:"path"`
	Name       string     `yaml:"name"`
	Input      InputName  `yaml:"input"`
	Output     OutputName `yaml:"output"`
	Type       InputType  `yaml:"type"`
	SuffixOnly bool       `yaml:"suffix_only"`
	UserPaths  []string   `yaml:"user_paths"`
}

type profileEntry struct {
	Path          string           `yaml:"path"`
	LocalizedName string           `yaml:"localized_name"`
	Device        string           `yaml:"device"`
	UserPaths     []string         `yaml:"user_paths"`
	Components    []componentEntry `yaml:"components"`
}

// Binding is one expanded row of a profile table: every path in Paths, under SubactionPath,
// resolves to the same device input or output.
type Binding struct {
	SubactionPath string
	LocalizedName string
	// Paths holds the full binding paths, canonical first.
	Paths     []string
	Input     InputName
	InputType InputType
	Output    OutputName
}

// IsOutput reports whether the binding drives an output rather than reading an input.
func (b *Binding) IsOutput() bool {
	return b.Output != ""
}

// Matches reports whether p is one of the binding's paths.
func (b *Binding) Matches(p string) bool {
	return slices.Contains(b.Paths, p)
}

// Profile is an interaction profile with its bindings expanded per user path.
type Profile struct {
	Path          string
	LocalizedName string
	// DeviceKind is hand, head or gamepad.
	DeviceKind string
	UserPaths  []string
	Bindings   []Binding
}

// FindBinding returns the binding that accepts the full path p.
//
// Parameters:
//   - path: a full binding path such as /user/hand/left/input/select/click
//
// Returns:
//   - *Binding: the matching binding
//   - bool: false if no binding accepts p
func (p *Profile) FindBinding(path string) (*Binding, bool) {
	for i := range p.Bindings {
		if p.Bindings[i].Matches(path) {
			return &p.Bindings[i], true
		}
	}
	return nil, false
}

// FindBindings returns every binding a suggested path resolves to: the bindings accepting
// the path itself, then those whose component path only differs from it by one of the
// strippable suffixes. This rolls .../trackpad up from .../trackpad/click and .../trackpad/touch.
//
// Parameters:
//   - path: a full binding path
//
// Returns:
//   - []*Binding: the matching bindings in table order, exact matches first
func (p *Profile) FindBindings(path string) []*Binding {
	var exact, parents []*Binding
	for i := range p.Bindings {
		b := &p.Bindings[i]
		if b.Matches(path) {
			exact = append(exact, b)
			continue
		}
		if parent, ok := stripSuffix(b.Paths[0]); ok && parent == path {
			parents = append(parents, b)
		}
	}
	return append(exact, parents...)
}

// BindingsFor returns the bindings under one user path, in table order.
func (p *Profile) BindingsFor(subactionPath string) []*Binding {
	var out []*Binding
	for i := range p.Bindings {
		if p.Bindings[i].SubactionPath == subactionPath {
			out = append(out, &p.Bindings[i])
		}
	}
	return out
}

// InputsFor returns the distinct inputs a device serving subactionPath must expose
// to satisfy the profile, in table order.
func (p *Profile) InputsFor(subactionPath string) []Input {
	seen := map[InputName]bool{}
	var out []Input
	for _, b := range p.BindingsFor(subactionPath) {
		if b.IsOutput() || seen[b.Input] {
			continue
		}
		seen[b.Input] = true
		out = append(out, Input{Name: b.Input, Type: b.InputType})
	}
	return out
}

// OutputsFor returns the distinct outputs under subactionPath.
func (p *Profile) OutputsFor(subactionPath string) []Output {
	seen := map[OutputName]bool{}
	var out []Output
	for _, b := range p.BindingsFor(subactionPath) {
		if !b.IsOutput() || seen[b.Output] {
			continue
		}
		seen[b.Output] = true
		out = append(out, Output{Name: b.Output})
	}
	return out
}

// LoadProfiles decodes and expands a YAML profile table.
//
// Parameters:
//   - data: the YAML document, a list of profiles
//
// Returns:
//   - []*Profile: the expanded profiles in document order
//   - error: non-nil on malformed YAML or an invalid entry
func LoadProfiles(data []byte) ([]*Profile, error) {
	var entries []profileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("device: decode profiles: %w", err)
	}

	profiles := make([]*Profile, 0, len(entries))
	for _, e := range entries {
		p, err := expandProfile(e)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func expandProfile(e profileEntry) (*Profile, error) {
	if !strings.HasPrefix(e.Path, "/interaction_profiles/") {
		return nil, fmt.Errorf("device: profile path %q is not under /interaction_profiles", e.Path)
	}
	if len(e.UserPaths) == 0 {
		return nil, fmt.Errorf("device: profile %s has no user paths", e.Path)
	}

	p := &Profile{
		Path:          e.Path,
		LocalizedName: e.LocalizedName,
		DeviceKind:    e.Device,
		UserPaths:     e.UserPaths,
	}

	for _, up := range e.UserPaths {
		claimed := map[string]bool{}
		for _, c := range e.Components {
			if len(c.UserPaths) > 0 && !slices.Contains(c.UserPaths, up) {
				continue
			}
			if (c.Input == "") == (c.Output == "") {
				return nil, fmt.Errorf("device: profile %s component %s needs exactly one of input or output", e.Path, c.Path)
			}

			full := up + "/" + c.Path
			b := Binding{
				SubactionPath: up,
				LocalizedName: c.Name,
				Input:         c.Input,
				InputType:     c.Type,
				Output:        c.Output,
			}

			switch {
			case c.Output != "":
				b.Paths = []string{full}
			case c.Type == InputTypeVec2MinusOneToOne:
				b.Paths = []string{full, full + "/x", full + "/y"}
			default:
				b.Paths = []string{full}
				if !c.SuffixOnly {
					if parent, ok := stripSuffix(full); ok && !claimed[parent] {
						b.Paths = append(b.Paths, parent)
					}
				}
			}

			for _, bp := range b.Paths {
				claimed[bp] = true
			}
			p.Bindings = append(p.Bindings, b)
		}
	}
	return p, nil
}

func stripSuffix(p string) (string, bool) {
	for _, s := range strippableSuffixes {
		if strings.HasSuffix(p, s) {
			return strings.TrimSuffix(p, s), true
		}
	}
	return p, false
}

var builtinProfiles = sync.OnceValue(func() []*Profile {
	profiles, err := LoadProfiles(profilesYAML)
	if err != nil {
		panic(err)
	}
	return profiles
})

// Profiles returns the interaction profiles compiled into the runtime.
//
// Returns:
//   - []*Profile: the built-in profiles; callers must not modify them
func Profiles() []*Profile {
	return builtinProfiles()
}

// LookupProfile returns the built-in profile with the given path.
//
// Parameters:
//   - path: the interaction profile path
//
// Returns:
//   - *Profile: the profile
//   - bool: false if the runtime does not know the profile
func LookupProfile(path string) (*Profile, bool) {
	for _, p := range builtinProfiles() {
		if p.Path == path {
			return p, true
		}
	}
	return nil, false
}
