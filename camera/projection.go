// Package camera builds the view and projection matrices shared by every
// shader stage.
package camera

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// FieldOfView is the vertical field of view in degrees.
	FieldOfView = 45

	// Near and Far are the clip plane distances.
	Near = 0.5
	Far  = 100
)

// vulkanClip converts OpenGL clip space into Vulkan clip space: depth is
// remapped from [-1, 1] to [0, 1] and Y points down.
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Projection returns a right handed perspective projection for Vulkan. fovY
// is in radians.
func Projection(fovY, aspect, near, far float32) mgl32.Mat4 {
	return vulkanClip.Mul4(mgl32.Perspective(fovY, aspect, near, far))
}

// Ubo is the camera uniform buffer shared by the vertex, fragment and compute
// stages. Its layout follows std140.
type Ubo struct {
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	ProjView mgl32.Mat4
	Position mgl32.Vec3
	_        float32
}

// UboSize is the size of Ubo in bytes.
const UboSize = 3*64 + 16

var (
	_ [UboSize - unsafe.Sizeof(Ubo{})]struct{}
	_ [unsafe.Sizeof(Ubo{}) - UboSize]struct{}
)

// NewUbo computes the camera uniforms for a viewport of width x height
// pixels. A zero height is treated as one to keep the aspect ratio finite.
func NewUbo(view mgl32.Mat4, position mgl32.Vec3, width, height uint32) Ubo {
	aspect := float32(width) / float32(max(height, 1))
	proj := Projection(mgl32.DegToRad(FieldOfView), aspect, Near, Far)

	return Ubo{
		View:     view,
		Proj:     proj,
		ProjView: proj.Mul4(view),
		Position: position,
	}
}
