// Package renderer drives a forward-plus frame: a depth pre-pass, light
// culling on the compute queue and the main shading pass, plus the ordered
// rebuild of every extent dependent GPU object when the window changes.
//
// The GPU work itself is done by a Backend. The renderer owns the frame state
// machine, the light animation and the camera uniforms.
package renderer

import (
	"unsafe"

	"github.com/ironsmile/vulkan-forwardplus-go/lighting"
)

// Extent is a size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Empty returns true when either dimension is zero, for example while the
// window is minimized.
func (e Extent) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// Tiles returns the light culling tile grid covering the extent.
func (e Extent) Tiles() (x, y uint32) {
	return lighting.TileCounts(e.Width, e.Height)
}

// Status is the outcome of acquiring or presenting a swapchain image.
type Status int

const (
	// StatusSuccess means the swapchain matches the surface.
	StatusSuccess Status = iota

	// StatusSuboptimal means the image can still be used but the swapchain
	// should be rebuilt.
	StatusSuboptimal

	// StatusOutOfDate means the swapchain can no longer be used.
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	default:
		return "unknown"
	}
}

// Debug views selectable with ChangeDebugViewIndex.
const (
	DebugViewShaded = iota
	DebugViewHeatmapOverShaded
	DebugViewHeatmap
	DebugViewDepth
	DebugViewNormals

	// DebugViewCount is the number of debug views.
	DebugViewCount
)

var debugViewNames = [DebugViewCount]string{
	"shaded",
	"shaded with light heat map",
	"light heat map",
	"depth",
	"normals",
}

// DebugViewName returns a human readable name of a debug view index.
func DebugViewName(index int) string {
	if index < 0 || index >= DebugViewCount {
		return "unknown"
	}
	return debugViewNames[index]
}

// PushConstants is pushed to the fragment stage of the main pass and the
// compute stage of light culling. Both see it at offset zero.
type PushConstants struct {
	ViewportSize   [2]int32
	TileNums       [2]int32
	DebugViewIndex int32
}

// PushConstantsSize is the size of PushConstants in bytes.
const PushConstantsSize = 20

var (
	_ [PushConstantsSize - unsafe.Sizeof(PushConstants{})]struct{}
	_ [unsafe.Sizeof(PushConstants{}) - PushConstantsSize]struct{}
)

// NewPushConstants returns the push constants for an extent and debug view.
func NewPushConstants(extent Extent, debugView int) PushConstants {
	tx, ty := extent.Tiles()
	return PushConstants{
		ViewportSize:   [2]int32{int32(extent.Width), int32(extent.Height)},
		TileNums:       [2]int32{int32(tx), int32(ty)},
		DebugViewIndex: int32(debugView),
	}
}
