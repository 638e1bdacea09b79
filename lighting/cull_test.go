package lighting

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	. "github.com/onsi/gomega"
	"github.com/xlab/linmath"

	"github.com/ironsmile/vulkan-forwardplus-go/camera"
)

// testProjView looks at the origin from (0, 0, 5) with a square viewport.
func testProjView() mgl32.Mat4 {
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := camera.Projection(mgl32.DegToRad(camera.FieldOfView), 1, camera.Near, camera.Far)
	return proj.Mul4(view)
}

func smallLight(x, y, z, radius float32) PointLight {
	l := NewPointLight(linmath.Vec3{x, y, z})
	l.Radius = radius
	return l
}

func TestCullTwoByTwoTiles(t *testing.T) {
	lights := []PointLight{
		smallLight(1, 1, 0, 0.3),   // upper right on screen
		smallLight(-1, -1, 0, 0.3), // lower left on screen
		smallLight(20, 0, 0, 1),    // outside of the view
	}

	projView := testProjView()

	// Depth of a wall through the origin facing the camera.
	clip := projView.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	wall := UniformDepth(clip.Z() / clip.W())

	cases := []struct {
		depth DepthSource
		opts  CullOptions
	}{
		{depth: UniformDepth(1), opts: CullOptions{}},
		{depth: wall, opts: CullOptions{DepthBounds: true}},
	}

	for _, c := range cases {
		g := NewWithT(t)

		records := Cull(lights, projView, 32, 32, c.depth, c.opts)
		g.Expect(records).To(HaveLen(4))

		g.Expect(records[0].Lights()).To(BeEmpty(), "top left")
		g.Expect(records[1].Lights()).To(Equal([]uint32{0}), "top right")
		g.Expect(records[2].Lights()).To(Equal([]uint32{1}), "bottom left")
		g.Expect(records[3].Lights()).To(BeEmpty(), "bottom right")
	}
}

func TestCullLightOnTileCorner(t *testing.T) {
	g := NewWithT(t)

	lights := []PointLight{smallLight(0, 0, 0, 0.5)}
	records := Cull(lights, testProjView(), 32, 32, nil, CullOptions{})

	for i, rec := range records {
		g.Expect(rec.Lights()).To(Equal([]uint32{0}), "tile %d", i)
	}
}

func TestCullDepthBoundsRejectsHiddenLights(t *testing.T) {
	g := NewWithT(t)

	projView := testProjView()

	// Geometry one unit in front of the camera covers the whole screen.
	clip := projView.Mul4x1(mgl32.Vec4{0, 0, 4, 1})
	depth := UniformDepth(clip.Z() / clip.W())

	lights := []PointLight{
		smallLight(1, 1, 0, 0.3),
		smallLight(0.2, 0.2, 4, 0.3),
	}

	records := Cull(lights, projView, 32, 32, depth, CullOptions{DepthBounds: true})
	g.Expect(records[1].Lights()).To(Equal([]uint32{1}))

	records = Cull(lights, projView, 32, 32, depth, CullOptions{})
	g.Expect(records[1].Lights()).To(Equal([]uint32{0, 1}))
}

func TestCullBehindCamera(t *testing.T) {
	g := NewWithT(t)

	lights := []PointLight{smallLight(0, 0, 10, 1)}
	records := Cull(lights, testProjView(), 32, 32, nil, CullOptions{})
	for _, rec := range records {
		g.Expect(rec.Count).To(BeZero())
	}
}

func TestCullTruncatesFullTiles(t *testing.T) {
	g := NewWithT(t)

	lights := make([]PointLight, 70)
	for i := range lights {
		lights[i] = smallLight(1, 1, 0, 0.1)
	}

	records := Cull(lights, testProjView(), 32, 32, nil, CullOptions{})
	g.Expect(records[1].Count).To(BeEquivalentTo(MaxPointLightPerTile))
	g.Expect(records[1].Lights()[MaxPointLightPerTile-1]).To(BeEquivalentTo(MaxPointLightPerTile - 1))
	g.Expect(records[0].Count).To(BeZero())
}

func TestCullPartialTiles(t *testing.T) {
	g := NewWithT(t)

	lights := []PointLight{smallLight(0, 0, 0, 50)}
	records := Cull(lights, testProjView(), 33, 17, nil, CullOptions{})
	g.Expect(records).To(HaveLen(3 * 2))
	for _, rec := range records {
		g.Expect(rec.Lights()).To(Equal([]uint32{0}))
	}
}
