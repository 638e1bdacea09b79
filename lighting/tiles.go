// Package lighting holds the host side of forward-plus light culling: the tile
// grid, the GPU memory layout of point lights and per-tile light lists, light
// animation and a CPU implementation of the culling shader.
package lighting

const (
	// TileSize is the width and height of a screen tile in pixels. It has to
	// match the local work group size of the light culling shader.
	TileSize = 16

	// MaxPointLightCount is the capacity of the point light buffer.
	MaxPointLightCount = 1000

	// MaxPointLightPerTile is how many light indices fit in one tile record.
	// Lights beyond this number are dropped without notice.
	MaxPointLightPerTile = 63
)

// TileCounts returns the number of tiles needed to cover a viewport. Partial
// tiles on the right and bottom edges are counted as whole ones.
func TileCounts(width, height uint32) (x, y uint32) {
	return tiles(width), tiles(height)
}

func tiles(pixels uint32) uint32 {
	if pixels == 0 {
		return 0
	}
	return (pixels-1)/TileSize + 1
}

// VisibilityBufferSize returns the size in bytes of the light visibility
// buffer for a viewport.
func VisibilityBufferSize(width, height uint32) uint64 {
	x, y := TileCounts(width, height)
	return uint64(x) * uint64(y) * TileRecordSize
}
