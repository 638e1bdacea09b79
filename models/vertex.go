// Package models loads the static mesh drawn by the renderer and describes its
// vertex layout to Vulkan.
package models

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"github.com/xlab/linmath"
)

// Vertex is one vertex of the mesh as read by the vertex shaders.
type Vertex struct {
	Pos      linmath.Vec3
	Color    linmath.Vec3
	TexCoord linmath.Vec2
	Normal   linmath.Vec3
}

// VertexSize is the stride of the vertex buffer.
func VertexSize() uint32 {
	return uint32(unsafe.Sizeof(Vertex{}))
}

// BindingDescription describes the single per vertex binding.
func BindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    VertexSize(),
		InputRate: vk.VertexInputRateVertex,
	}
}

// AttributeDescriptions returns the attributes at shader locations 0 to 3:
// position, color, texture coordinates and normal.
func AttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.TexCoord)),
		},
		{
			Binding:  0,
			Location: 3,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Normal)),
		},
	}
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Empty returns true when there is nothing to draw.
func (m *Mesh) Empty() bool {
	return len(m.Vertices) == 0 || len(m.Indices) == 0
}

// meshBuilder de-duplicates vertices while a mesh is assembled.
type meshBuilder struct {
	mesh   Mesh
	unique map[Vertex]uint32
}

func newMeshBuilder() *meshBuilder {
	return &meshBuilder{unique: make(map[Vertex]uint32)}
}

func (b *meshBuilder) add(v Vertex) {
	index, ok := b.unique[v]
	if !ok {
		index = uint32(len(b.mesh.Vertices))
		b.unique[v] = index
		b.mesh.Vertices = append(b.mesh.Vertices, v)
	}
	b.mesh.Indices = append(b.mesh.Indices, index)
}
