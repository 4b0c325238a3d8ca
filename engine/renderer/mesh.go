package renderer

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Vertex is the layout every layer mesh shares: position then texture coordinate.
type Vertex struct {
	Position [3]float32
	UV       [2]float32
}

// Mesh is indexed triangle-list geometry.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// DefaultCylinderSegments is how many segments a cylinder arc is tessellated into.
const DefaultCylinderSegments = 64

// QuadMesh returns the unit quad centered on the origin in the XY plane, facing +Z.
// Texture coordinates run top-left (0, 0) to bottom-right (1, 1).
func QuadMesh() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Position: [3]float32{-0.5, -0.5, 0}, UV: [2]float32{0, 1}},
			{Position: [3]float32{0.5, -0.5, 0}, UV: [2]float32{1, 1}},
			{Position: [3]float32{0.5, 0.5, 0}, UV: [2]float32{1, 0}},
			{Position: [3]float32{-0.5, 0.5, 0}, UV: [2]float32{0, 0}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// CylinderMesh tessellates the inside of a unit-radius cylinder arc centered on -Z.
// The arc's height is chosen so its width over height equals aspectRatio.
//
// Parameters:
//   - centralAngle: the horizontal arc in radians, in (0, 2π]
//   - aspectRatio: arc length over height, greater than 0
//   - segments: how many quads make up the arc, at least 1
//
// Returns:
//   - Mesh: the arc geometry
//   - error: error if any parameter is out of range
func CylinderMesh(centralAngle, aspectRatio float32, segments int) (Mesh, error) {
	if !(centralAngle > 0) || centralAngle > 2*math32.Pi {
		return Mesh{}, fmt.Errorf("cylinder central angle %v out of range", centralAngle)
	}
	if !(aspectRatio > 0) {
		return Mesh{}, fmt.Errorf("cylinder aspect ratio %v must be positive", aspectRatio)
	}
	if segments < 1 {
		return Mesh{}, fmt.Errorf("cylinder needs at least one segment, got %d", segments)
	}

	halfHeight := centralAngle / aspectRatio / 2
	mesh := Mesh{
		Vertices: make([]Vertex, 0, 2*(segments+1)),
		Indices:  make([]uint32, 0, 6*segments),
	}
	for i := 0; i <= segments; i++ {
		u := float32(i) / float32(segments)
		theta := (u - 0.5) * centralAngle
		x, z := math32.Sin(theta), -math32.Cos(theta)
		mesh.Vertices = append(mesh.Vertices,
			Vertex{Position: [3]float32{x, halfHeight, z}, UV: [2]float32{u, 0}},
			Vertex{Position: [3]float32{x, -halfHeight, z}, UV: [2]float32{u, 1}},
		)
	}
	for i := range uint32(segments) {
		top, bottom := 2*i, 2*i+1
		nextTop, nextBottom := top+2, bottom+2
		mesh.Indices = append(mesh.Indices, bottom, nextBottom, nextTop, bottom, nextTop, top)
	}
	return mesh, nil
}
