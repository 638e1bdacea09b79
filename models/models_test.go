package models

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	. "github.com/onsi/gomega"
	"github.com/xlab/linmath"
)

func TestVertexLayout(t *testing.T) {
	g := NewWithT(t)

	g.Expect(VertexSize()).To(BeEquivalentTo(44))
	g.Expect(BindingDescription().Stride).To(Equal(VertexSize()))

	attrs := AttributeDescriptions()
	g.Expect(attrs).To(HaveLen(4))
	for i, attr := range attrs {
		g.Expect(attr.Location).To(BeEquivalentTo(i))
		g.Expect(attr.Offset).To(BeNumerically("<", VertexSize()))
	}
	g.Expect(attrs[3].Offset).To(BeEquivalentTo(unsafe.Offsetof(Vertex{}.Normal)))
}

const quadOBJ = `
v -1 0 -1
v 1 0 -1
v 1 0 1
v -1 0 1
vt 0 0
vt 1 0
vt 1 1
vt 0 1
f 4/4 3/3 2/2 1/1
`

func TestLoadOBJ(t *testing.T) {
	g := NewWithT(t)

	mesh, err := LoadOBJ(strings.NewReader(quadOBJ), 2)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(mesh.Vertices).To(HaveLen(4), "shared corners are de-duplicated")
	g.Expect(mesh.Indices).To(HaveLen(6))

	for _, v := range mesh.Vertices {
		g.Expect(v.Normal[1]).To(BeNumerically("~", 1, 1e-6))
		g.Expect(v.Pos[0]*v.Pos[0]).To(BeNumerically("~", 4, 1e-6))
	}

	g.Expect(mesh.Vertices[0].TexCoord).To(Equal(linmath.Vec2{0, 0}), "V is flipped")
}

func TestLoadOBJWithoutFaces(t *testing.T) {
	g := NewWithT(t)

	_, err := LoadOBJ(strings.NewReader("v 0 0 0\n"), 1)
	g.Expect(err).To(HaveOccurred())
}

func TestCubes(t *testing.T) {
	g := NewWithT(t)

	floor := Cubes(0)
	g.Expect(floor.Vertices).To(HaveLen(24))
	g.Expect(floor.Indices).To(HaveLen(36))

	mesh := Cubes(3)
	g.Expect(mesh.Indices).To(HaveLen(36 * 10))
	g.Expect(mesh.Empty()).To(BeFalse())

	for _, idx := range mesh.Indices {
		g.Expect(int(idx)).To(BeNumerically("<", len(mesh.Vertices)))
	}

	// Every triangle winds counter clockwise around its normal.
	for i := 0; i < len(mesh.Indices); i += 3 {
		a := mgl32.Vec3(mesh.Vertices[mesh.Indices[i]].Pos)
		b := mgl32.Vec3(mesh.Vertices[mesh.Indices[i+1]].Pos)
		c := mgl32.Vec3(mesh.Vertices[mesh.Indices[i+2]].Pos)
		n := mgl32.Vec3(mesh.Vertices[mesh.Indices[i]].Normal)

		g.Expect(b.Sub(a).Cross(c.Sub(a)).Dot(n)).To(BeNumerically(">", 0))
	}
}
