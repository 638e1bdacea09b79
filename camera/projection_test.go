package camera

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	. "github.com/onsi/gomega"
)

func TestProjectionFlipsY(t *testing.T) {
	tests := []struct {
		name   string
		fovDeg float32
		aspect float32
	}{
		{name: "default", fovDeg: FieldOfView, aspect: 1.5},
		{name: "square", fovDeg: FieldOfView, aspect: 1},
		{name: "portrait", fovDeg: 60, aspect: 0.5},
		{name: "ultra wide", fovDeg: 90, aspect: 32.0 / 9.0},
		{name: "narrow", fovDeg: 10, aspect: 4.0 / 3.0},
		{name: "wide angle", fovDeg: 120, aspect: 16.0 / 9.0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := NewWithT(t)

			fov := mgl32.DegToRad(test.fovDeg)
			gl := mgl32.Perspective(fov, test.aspect, Near, Far)
			vkProj := Projection(fov, test.aspect, Near, Far)

			g.Expect(vkProj.At(1, 1)).To(BeNumerically("~", -gl.At(1, 1), 1e-5))
			g.Expect(vkProj.At(0, 0)).To(BeNumerically("~", gl.At(0, 0), 1e-5))

			// A point above the view axis ends up in the upper half of the
			// screen, which is negative Y in Vulkan clip space.
			clip := vkProj.Mul4x1(mgl32.Vec4{0, 1, -5, 1})
			g.Expect(clip.Y() / clip.W()).To(BeNumerically("<", 0))

			clip = vkProj.Mul4x1(mgl32.Vec4{0, -1, -5, 1})
			g.Expect(clip.Y() / clip.W()).To(BeNumerically(">", 0))
		})
	}
}

// expectMat4Near compares matrices element by element with an absolute
// tolerance.
func expectMat4Near(g *WithT, got, want mgl32.Mat4, tolerance float64) {
	for i := range want {
		g.ExpectWithOffset(1, got[i]).To(
			BeNumerically("~", want[i], tolerance),
			"element %d of\n%v\nexpected\n%v", i, got, want,
		)
	}
}

func TestProjectionDepthRange(t *testing.T) {
	g := NewWithT(t)

	proj := Projection(mgl32.DegToRad(FieldOfView), 1, Near, Far)

	near := proj.Mul4x1(mgl32.Vec4{0, 0, -Near, 1})
	far := proj.Mul4x1(mgl32.Vec4{0, 0, -Far, 1})
	mid := proj.Mul4x1(mgl32.Vec4{0, 0, -10, 1})

	g.Expect(near.Z() / near.W()).To(BeNumerically("~", 0, 1e-5))
	g.Expect(far.Z() / far.W()).To(BeNumerically("~", 1, 1e-5))
	g.Expect(mid.Z() / mid.W()).To(And(
		BeNumerically(">", 0),
		BeNumerically("<", 1),
	))
}

func TestNewUbo(t *testing.T) {
	g := NewWithT(t)

	view := mgl32.LookAtV(mgl32.Vec3{1.5, 1.5, 1.5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	ubo := NewUbo(view, mgl32.Vec3{1.5, 1.5, 1.5}, 1024, 768)

	g.Expect(ubo.View).To(Equal(view))
	expectMat4Near(g, ubo.ProjView, ubo.Proj.Mul4(view), 1e-6)
	g.Expect(ubo.Proj.At(1, 1)).To(BeNumerically("<", 0))
	g.Expect(ubo.Position).To(Equal(mgl32.Vec3{1.5, 1.5, 1.5}))

	g.Expect(func() { NewUbo(view, mgl32.Vec3{}, 10, 0) }).NotTo(Panic())
}

func TestCameraView(t *testing.T) {
	g := NewWithT(t)

	eye := mgl32.Vec3{1.5, 1.5, 1.5}
	c := New(eye, LookRotation(eye, mgl32.Vec3{}))

	expected := mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	expectMat4Near(g, c.View(), expected, 1e-4)
}

func TestCameraMove(t *testing.T) {
	g := NewWithT(t)

	c := New(mgl32.Vec3{0, 0, 5}, mgl32.QuatIdent())
	c.MoveSpeed = 5
	c.Move(mgl32.Vec3{0, 0, -1}, 1)

	for i := range c.Position {
		g.Expect(c.Position[i]).To(BeNumerically("~", 0, 1e-4), "%v", c.Position)
	}

	before := c.Position
	c.Move(mgl32.Vec3{}, 1)
	g.Expect(c.Position).To(Equal(before))
}

func TestCameraRotateKeepsUnitQuaternion(t *testing.T) {
	g := NewWithT(t)

	c := New(mgl32.Vec3{0, 0, 5}, mgl32.QuatIdent())
	for range 100 {
		c.Rotate(1, 0.5, 0.016)
	}
	g.Expect(c.Rotation.Len()).To(BeNumerically("~", 1, 1e-4))
}
