package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a free flying camera. Rotation turns camera space into world
// space, the camera looks down its local -Z axis.
type Camera struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat

	// MoveSpeed is in world units per second.
	MoveSpeed float32

	// RotationSpeed is in radians per second.
	RotationSpeed float32
}

// New returns a camera at position with the given orientation.
func New(position mgl32.Vec3, rotation mgl32.Quat) *Camera {
	return &Camera{
		Position:      position,
		Rotation:      rotation.Normalize(),
		MoveSpeed:     10,
		RotationSpeed: math.Pi,
	}
}

// LookRotation returns the orientation of a camera at position which looks
// at target with world +Y up.
func LookRotation(position, target mgl32.Vec3) mgl32.Quat {
	if target.ApproxEqual(position) {
		return mgl32.QuatIdent()
	}

	view := mgl32.LookAtV(position, target, mgl32.Vec3{0, 1, 0})
	return mgl32.Mat4ToQuat(view.Mat3().Transpose().Mat4()).Normalize()
}

// LookAt turns the camera toward target.
func (c *Camera) LookAt(target mgl32.Vec3) {
	c.Rotation = LookRotation(c.Position, target)
}

// View returns the world to camera transformation.
func (c *Camera) View() mgl32.Mat4 {
	rot := c.Rotation.Inverse().Mat4()
	return rot.Mul4(mgl32.Translate3D(-c.Position[0], -c.Position[1], -c.Position[2]))
}

// Move translates the camera along a direction given in camera space, for
// example {0, 0, -1} is forward.
func (c *Camera) Move(dir mgl32.Vec3, dt float32) {
	if dir.Len() == 0 {
		return
	}
	world := c.Rotation.Rotate(dir.Normalize())
	c.Position = c.Position.Add(world.Mul(c.MoveSpeed * dt))
}

// Rotate applies yaw around the world Y axis and pitch around the camera's X
// axis. Both are in units of RotationSpeed * dt.
func (c *Camera) Rotate(yaw, pitch, dt float32) {
	yawQ := mgl32.QuatRotate(yaw*c.RotationSpeed*dt, mgl32.Vec3{0, 1, 0})
	pitchQ := mgl32.QuatRotate(pitch*c.RotationSpeed*dt, mgl32.Vec3{1, 0, 0})
	c.Rotation = yawQ.Mul(c.Rotation).Mul(pitchQ).Normalize()
}
