package lighting

import (
	"github.com/go-gl/mathgl/mgl32"
)

// DepthSource gives the depth pre-pass value of a pixel in the [0, 1] range.
type DepthSource interface {
	DepthAt(x, y int) float32
}

// UniformDepth is a depth buffer where every pixel has the same value.
type UniformDepth float32

// DepthAt implements DepthSource.
func (d UniformDepth) DepthAt(x, y int) float32 {
	return float32(d)
}

// DepthFunc adapts a function to DepthSource.
type DepthFunc func(x, y int) float32

// DepthAt implements DepthSource.
func (f DepthFunc) DepthAt(x, y int) float32 {
	return f(x, y)
}

// CullOptions changes how tiles are tested against lights.
type CullOptions struct {
	// DepthBounds limits each tile frustum to the minimum and maximum depth of
	// its pixels. Without it the whole near to far range is used.
	DepthBounds bool
}

// Cull assigns lights to screen tiles the way the light culling shader does.
//
// Every tile gets a frustum whose side planes pass through the tile's borders
// in normalized device coordinates. The planes are extracted from projView so
// they are in world space. A light is kept when its sphere is not completely
// behind any of the planes. Only the first MaxPointLightPerTile lights are
// stored for a tile.
func Cull(
	lights []PointLight,
	projView mgl32.Mat4,
	width, height uint32,
	depth DepthSource,
	opts CullOptions,
) []TileRecord {
	tilesX, tilesY := TileCounts(width, height)
	records := make([]TileRecord, int(tilesX)*int(tilesY))

	rows := [4]mgl32.Vec4{projView.Row(0), projView.Row(1), projView.Row(2), projView.Row(3)}

	for ty := uint32(0); ty < tilesY; ty++ {
		for tx := uint32(0); tx < tilesX; tx++ {
			x0, x1 := tx*TileSize, min((tx+1)*TileSize, width)
			y0, y1 := ty*TileSize, min((ty+1)*TileSize, height)

			minDepth, maxDepth := float32(0), float32(1)
			if opts.DepthBounds && depth != nil {
				minDepth, maxDepth = tileDepthRange(depth, x0, x1, y0, y1)
			}

			planes := tileFrustum(
				rows,
				ndc(x0, width), ndc(x1, width),
				ndc(y0, height), ndc(y1, height),
				minDepth, maxDepth,
			)

			record := &records[ty*tilesX+tx]
			for i, light := range lights {
				if !sphereInside(planes, light) {
					continue
				}
				if !record.add(uint32(i)) {
					break
				}
			}
		}
	}

	return records
}

// ndc maps a pixel border to normalized device coordinates.
func ndc(pixel, size uint32) float32 {
	return 2*float32(pixel)/float32(size) - 1
}

func tileDepthRange(depth DepthSource, x0, x1, y0, y1 uint32) (float32, float32) {
	minDepth, maxDepth := float32(1), float32(0)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			d := depth.DepthAt(int(x), int(y))
			minDepth = min(minDepth, d)
			maxDepth = max(maxDepth, d)
		}
	}
	return minDepth, maxDepth
}

// tileFrustum returns six planes (a, b, c, d) with normals pointing into the
// volume bounded by ndc x in [left, right], y in [top, bottom] and depth in
// [near, far].
func tileFrustum(rows [4]mgl32.Vec4, left, right, top, bottom, near, far float32) [6]mgl32.Vec4 {
	planes := [6]mgl32.Vec4{
		rows[0].Sub(rows[3].Mul(left)),
		rows[3].Mul(right).Sub(rows[0]),
		rows[1].Sub(rows[3].Mul(top)),
		rows[3].Mul(bottom).Sub(rows[1]),
		rows[2].Sub(rows[3].Mul(near)),
		rows[3].Mul(far).Sub(rows[2]),
	}

	for i, p := range planes {
		if l := p.Vec3().Len(); l > 0 {
			planes[i] = p.Mul(1 / l)
		}
	}
	return planes
}

func sphereInside(planes [6]mgl32.Vec4, light PointLight) bool {
	center := mgl32.Vec3{light.Pos[0], light.Pos[1], light.Pos[2]}
	for _, p := range planes {
		if p.Vec3().Dot(center)+p[3] < -light.Radius {
			return false
		}
	}
	return true
}
