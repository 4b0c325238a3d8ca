package shader

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

var (
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	entryPattern = regexp.MustCompile(`@(vertex|fragment|compute)\s+fn\s+(\w+)`)
	bindPattern  = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(<[^>]*>)?\s+(\w+)\s*:\s*([^;]+);`)
	locPattern   = regexp.MustCompile(`@location\((\d+)\)\s*(\w+)\s*:\s*([\w<>]+)`)
)

// vertexFormats maps WGSL vertex input types to their format and byte size.
var vertexFormats = map[string]struct {
	format wgpu.VertexFormat
	size   uint64
}{
	"f32":       {wgpu.VertexFormatFloat32, 4},
	"vec2<f32>": {wgpu.VertexFormatFloat32x2, 8},
	"vec2f":     {wgpu.VertexFormatFloat32x2, 8},
	"vec3<f32>": {wgpu.VertexFormatFloat32x3, 12},
	"vec3f":     {wgpu.VertexFormatFloat32x3, 12},
	"vec4<f32>": {wgpu.VertexFormatFloat32x4, 16},
	"vec4f":     {wgpu.VertexFormatFloat32x4, 16},
	"u32":       {wgpu.VertexFormatUint32, 4},
}

// textureBindings maps WGSL texture types to their binding layout.
var textureBindings = map[string]wgpu.TextureBindingLayout{
	"texture_2d<f32>":        {SampleType: wgpu.TextureSampleTypeFloat, ViewDimension: wgpu.TextureViewDimension2D},
	"texture_2d_array<f32>":  {SampleType: wgpu.TextureSampleTypeFloat, ViewDimension: wgpu.TextureViewDimension2DArray},
	"texture_cube<f32>":      {SampleType: wgpu.TextureSampleTypeFloat, ViewDimension: wgpu.TextureViewDimensionCube},
	"texture_depth_2d":       {SampleType: wgpu.TextureSampleTypeDepth, ViewDimension: wgpu.TextureViewDimension2D},
	"texture_depth_2d_array": {SampleType: wgpu.TextureSampleTypeDepth, ViewDimension: wgpu.TextureViewDimension2DArray},
}

func stripComments(source string) string {
	return lineComment.ReplaceAllString(source, "")
}

// parseEntryPoint returns the name of the first function marked with @stage.
func parseEntryPoint(source, stage string) string {
	for _, m := range entryPattern.FindAllStringSubmatch(source, -1) {
		if m[1] == stage {
			return m[2]
		}
	}
	return ""
}

// parseBindings reflects the resource declarations of bind group 0.
func parseBindings(source string, visibility wgpu.ShaderStage) ([]wgpu.BindGroupLayoutEntry, error) {
	var entries []wgpu.BindGroupLayoutEntry
	for _, m := range bindPattern.FindAllStringSubmatch(source, -1) {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		if group != 0 {
			return nil, fmt.Errorf("binding %s uses group %d, only group 0 is supported", m[4], group)
		}
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    uint32(binding),
			Visibility: visibility,
		}
		addrSpace := strings.TrimSpace(strings.Trim(m[3], "<>"))
		typ := strings.Join(strings.Fields(m[5]), "")

		switch {
		case addrSpace == "uniform":
			entry.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
		case strings.HasPrefix(addrSpace, "storage"):
			entry.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}
		case typ == "sampler":
			entry.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
		default:
			tex, ok := textureBindings[typ]
			if !ok {
				return nil, fmt.Errorf("binding %s has unsupported type %q", m[4], typ)
			}
			entry.Texture = tex
		}
		if slices.ContainsFunc(entries, func(e wgpu.BindGroupLayoutEntry) bool { return e.Binding == entry.Binding }) {
			return nil, fmt.Errorf("binding %d declared twice", binding)
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b wgpu.BindGroupLayoutEntry) int { return int(a.Binding) - int(b.Binding) })
	return entries, nil
}

// parseVertexInputs builds a tightly packed vertex buffer layout from the @location
// parameters of the vertex entry point.
func parseVertexInputs(source, entry string) (wgpu.VertexBufferLayout, error) {
	start := strings.Index(source, "fn "+entry+"(")
	if start < 0 {
		return wgpu.VertexBufferLayout{}, fmt.Errorf("vertex entry %q not found", entry)
	}
	params := source[start+len("fn "+entry+"("):]
	// The signature ends at the body; @location attributes carry their own parentheses.
	if end := strings.Index(params, "{"); end >= 0 {
		params = params[:end]
	}

	layout := wgpu.VertexBufferLayout{StepMode: wgpu.VertexStepModeVertex}
	for _, m := range locPattern.FindAllStringSubmatch(params, -1) {
		loc, _ := strconv.Atoi(m[1])
		f, ok := vertexFormats[m[3]]
		if !ok {
			return wgpu.VertexBufferLayout{}, fmt.Errorf("vertex input %s has unsupported type %q", m[2], m[3])
		}
		layout.Attributes = append(layout.Attributes, wgpu.VertexAttribute{
			Format:         f.format,
			Offset:         layout.ArrayStride,
			ShaderLocation: uint32(loc),
		})
		layout.ArrayStride += f.size
	}
	if len(layout.Attributes) == 0 {
		return wgpu.VertexBufferLayout{}, fmt.Errorf("vertex entry %q has no inputs", entry)
	}
	return layout, nil
}
