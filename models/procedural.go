package models

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/linmath"
)

// Cubes returns a floor with a grid of n x n boxes standing on it. It is drawn
// when a scene has no model file.
func Cubes(n int) Mesh {
	b := newMeshBuilder()

	floor := float32(16)
	addBox(b, mgl32.Vec3{0, -0.55, 0}, mgl32.Vec3{floor, 0.05, floor}, linmath.Vec3{0.8, 0.8, 0.8})

	if n <= 0 {
		return b.mesh
	}

	spacing := 2 * floor / float32(n+1)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := -floor + spacing*float32(i+1)
			z := -floor + spacing*float32(j+1)
			height := 0.5 + float32((i*7+j*3)%5)*0.5

			addBox(
				b,
				mgl32.Vec3{x, -0.5 + height, z},
				mgl32.Vec3{0.5, height, 0.5},
				linmath.Vec3{1, 1, 1},
			)
		}
	}

	return b.mesh
}

var boxFaces = []struct {
	normal, u, v mgl32.Vec3
}{
	{normal: mgl32.Vec3{1, 0, 0}, u: mgl32.Vec3{0, 0, -1}, v: mgl32.Vec3{0, 1, 0}},
	{normal: mgl32.Vec3{-1, 0, 0}, u: mgl32.Vec3{0, 0, 1}, v: mgl32.Vec3{0, 1, 0}},
	{normal: mgl32.Vec3{0, 1, 0}, u: mgl32.Vec3{1, 0, 0}, v: mgl32.Vec3{0, 0, -1}},
	{normal: mgl32.Vec3{0, -1, 0}, u: mgl32.Vec3{1, 0, 0}, v: mgl32.Vec3{0, 0, 1}},
	{normal: mgl32.Vec3{0, 0, 1}, u: mgl32.Vec3{1, 0, 0}, v: mgl32.Vec3{0, 1, 0}},
	{normal: mgl32.Vec3{0, 0, -1}, u: mgl32.Vec3{-1, 0, 0}, v: mgl32.Vec3{0, 1, 0}},
}

// addBox appends an axis aligned box with outward facing, counter clockwise
// faces.
func addBox(b *meshBuilder, center, half mgl32.Vec3, color linmath.Vec3) {
	corners := [4]struct{ su, sv float32 }{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	for _, face := range boxFaces {
		var quad [4]Vertex
		for i, c := range corners {
			offset := face.normal.Add(face.u.Mul(c.su)).Add(face.v.Mul(c.sv))
			pos := center.Add(mgl32.Vec3{
				offset[0] * half[0],
				offset[1] * half[1],
				offset[2] * half[2],
			})

			quad[i] = Vertex{
				Pos:      linmath.Vec3(pos),
				Color:    color,
				TexCoord: linmath.Vec2{(c.su + 1) / 2, (1 - c.sv) / 2},
				Normal:   linmath.Vec3(face.normal),
			}
		}

		b.add(quad[0])
		b.add(quad[1])
		b.add(quad[2])
		b.add(quad[2])
		b.add(quad[3])
		b.add(quad[0])
	}
}
