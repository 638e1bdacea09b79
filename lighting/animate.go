package lighting

import (
	"math"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"github.com/xlab/linmath"
)

// DriftSpeed is how many world units per second lights rise.
const DriftSpeed = 3

// minColorLength keeps randomly coloured lights from being too dark.
const minColorLength = 0.8

// Bounds is an axis aligned box in world space which lights live in.
type Bounds struct {
	Min linmath.Vec3
	Max linmath.Vec3
}

// DefaultBounds is the light volume of the default scene.
var DefaultBounds = Bounds{
	Min: linmath.Vec3{-15, -5, -5},
	Max: linmath.Vec3{15, 20, 5},
}

// Contains reports whether p is inside the box, borders included.
func (b Bounds) Contains(p linmath.Vec3) bool {
	for i := range p {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Drift moves lights up by DriftSpeed*dt. Lights which leave the top of the
// bounds are moved down by the height of the box.
func Drift(lights []PointLight, dt float32, bounds Bounds) {
	height := bounds.Max[1] - bounds.Min[1]

	for i := range lights {
		y := lights[i].Pos[1] + DriftSpeed*dt
		if y > bounds.Max[1] && height > 0 {
			y -= height
		}
		lights[i].Pos[1] = y
	}
}

// RandomLights returns n lights placed uniformly inside bounds. Colours are
// drawn until their length is at least 0.8 so that every light is visible.
func RandomLights(rng *rand.Rand, n int, bounds Bounds, radius float32) ([]PointLight, error) {
	if n < 0 || n > MaxPointLightCount {
		return nil, errors.Wrapf(ErrTooManyLights, "requested %d lights", n)
	}

	lights := make([]PointLight, 0, n)
	for range n {
		var pos linmath.Vec3
		for i := range pos {
			pos[i] = bounds.Min[i] + rng.Float32()*(bounds.Max[i]-bounds.Min[i])
		}

		light := NewPointLight(pos)
		light.Radius = radius
		light.Intensity = randomColor(rng)

		lights = append(lights, light)
	}

	return lights, nil
}

func randomColor(rng *rand.Rand) linmath.Vec3 {
	for {
		color := linmath.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
		length := math.Sqrt(float64(
			color[0]*color[0] + color[1]*color[1] + color[2]*color[2],
		))
		if length >= minColorLength {
			return color
		}
	}
}
