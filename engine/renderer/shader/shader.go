// Package shader holds the WGSL programs the layer renderer composites with. Every program
// shares the vertex stage and uniform block in common.wgsl and adds one fragment stage.
package shader

import (
	"embed"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed wgsl/*.wgsl
var sources embed.FS

// Kind selects a layer program.
type Kind int

const (
	// KindLayer samples a 2D array texture through the mesh's texture coordinates. Projection,
	// quad and cylinder layers use it.
	KindLayer Kind = iota
	// KindProjectionDepth is KindLayer plus writing the client's depth.
	KindProjectionDepth
	KindEquirect1
	KindEquirect2
	KindCube
)

var files = map[Kind]string{
	KindLayer:           "wgsl/layer.wgsl",
	KindProjectionDepth: "wgsl/projection_depth.wgsl",
	KindEquirect1:       "wgsl/equirect1.wgsl",
	KindEquirect2:       "wgsl/equirect2.wgsl",
	KindCube:            "wgsl/cube.wgsl",
}

func (k Kind) String() string {
	switch k {
	case KindLayer:
		return "layer"
	case KindProjectionDepth:
		return "projection_depth"
	case KindEquirect1:
		return "equirect1"
	case KindEquirect2:
		return "equirect2"
	case KindCube:
		return "cube"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// shader is the implementation of the Shader interface.
type shader struct {
	kind             Kind
	source           string
	vertexEntry      string
	fragmentEntry    string
	bindGroupEntries []wgpu.BindGroupLayoutEntry
	vertexLayout     wgpu.VertexBufferLayout
}

// Shader is one linked WGSL program with the layouts reflected from its source.
type Shader interface {
	// Key returns a unique label for the program.
	Key() string

	Kind() Kind

	// Source returns the complete WGSL source, common stage included.
	Source() string

	// VertexEntryPoint and FragmentEntryPoint return the entry point names.
	VertexEntryPoint() string
	FragmentEntryPoint() string

	// BindGroupLayoutEntries returns the entries of bind group 0, sorted by binding.
	//
	// Returns:
	//   - []wgpu.BindGroupLayoutEntry: the entries, visible to both stages
	BindGroupLayoutEntries() []wgpu.BindGroupLayoutEntry

	// VertexLayout returns the layout of the single vertex buffer.
	VertexLayout() wgpu.VertexBufferLayout

	// HasBinding reports whether the program declares a binding.
	HasBinding(binding uint32) bool

	// Module returns a shader module descriptor for the program.
	Module() *wgpu.ShaderModuleDescriptor
}

var _ Shader = &shader{}

var cache = struct {
	mu      sync.Mutex
	shaders map[Kind]Shader
}{shaders: make(map[Kind]Shader)}

// Load returns the program of a kind, reflecting it on first use.
//
// Parameters:
//   - kind: the program to load
//
// Returns:
//   - Shader: the program
//   - error: error if the kind is unknown or its source cannot be reflected
func Load(kind Kind) (Shader, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if s, ok := cache.shaders[kind]; ok {
		return s, nil
	}

	file, ok := files[kind]
	if !ok {
		return nil, fmt.Errorf("shader: unknown kind %v", kind)
	}
	common, err := sources.ReadFile("wgsl/common.wgsl")
	if err != nil {
		return nil, err
	}
	stage, err := sources.ReadFile(file)
	if err != nil {
		return nil, err
	}
	s, err := newShader(kind, string(common)+"\n"+string(stage))
	if err != nil {
		return nil, fmt.Errorf("shader %v: %w", kind, err)
	}
	cache.shaders[kind] = s
	return s, nil
}

func newShader(kind Kind, source string) (*shader, error) {
	s := &shader{kind: kind, source: source}
	clean := stripComments(source)

	s.vertexEntry = parseEntryPoint(clean, "vertex")
	s.fragmentEntry = parseEntryPoint(clean, "fragment")
	if s.vertexEntry == "" || s.fragmentEntry == "" {
		return nil, fmt.Errorf("missing vertex or fragment entry point")
	}

	entries, err := parseBindings(clean, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment)
	if err != nil {
		return nil, err
	}
	s.bindGroupEntries = entries

	layout, err := parseVertexInputs(clean, s.vertexEntry)
	if err != nil {
		return nil, err
	}
	s.vertexLayout = layout
	return s, nil
}

func (s *shader) Key() string {
	return "layer_shader_" + s.kind.String()
}

func (s *shader) Kind() Kind {
	return s.kind
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) VertexEntryPoint() string {
	return s.vertexEntry
}

func (s *shader) FragmentEntryPoint() string {
	return s.fragmentEntry
}

func (s *shader) BindGroupLayoutEntries() []wgpu.BindGroupLayoutEntry {
	return s.bindGroupEntries
}

func (s *shader) VertexLayout() wgpu.VertexBufferLayout {
	return s.vertexLayout
}

func (s *shader) HasBinding(binding uint32) bool {
	for _, e := range s.bindGroupEntries {
		if e.Binding == binding {
			return true
		}
	}
	return false
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return &wgpu.ShaderModuleDescriptor{
		Label: s.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.source,
		},
	}
}
