package lighting

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/xlab/linmath"

	"github.com/ironsmile/vulkan-forwardplus-go/unsafer"
)

const (
	// DefaultRadius is the radius of a light created with NewPointLight.
	DefaultRadius = 5

	// PointLightSize is the std430 size of one light in the storage buffer.
	PointLightSize = 32

	// LightBufferHeaderSize is the space before the first light. The light
	// count is stored in its first four bytes.
	LightBufferHeaderSize = 16

	// LightBufferSize is the size of the point light storage buffer.
	LightBufferSize = LightBufferHeaderSize + PointLightSize*MaxPointLightCount
)

// ErrTooManyLights is returned when more than MaxPointLightCount lights are
// given for upload.
var ErrTooManyLights = errors.Newf("more than %d point lights", MaxPointLightCount)

// PointLight is a light as seen by the culling and shading shaders.
type PointLight struct {
	Pos       linmath.Vec3
	Radius    float32
	Intensity linmath.Vec3
	_         float32
}

var (
	_ [PointLightSize - unsafe.Sizeof(PointLight{})]struct{}
	_ [unsafe.Sizeof(PointLight{}) - PointLightSize]struct{}
)

// NewPointLight returns a white light with the default radius at pos.
func NewPointLight(pos linmath.Vec3) PointLight {
	return PointLight{
		Pos:       pos,
		Radius:    DefaultRadius,
		Intensity: linmath.Vec3{1, 1, 1},
	}
}

// Pack writes lights into dst using the point light buffer layout: the count
// in a 16 byte header followed by the lights. dst must be large enough to
// hold the header and all lights.
func Pack(dst []byte, lights []PointLight) error {
	if len(lights) > MaxPointLightCount {
		return errors.Wrapf(ErrTooManyLights, "packing %d lights", len(lights))
	}

	need := LightBufferHeaderSize + PointLightSize*len(lights)
	if len(dst) < need {
		return errors.Newf("light buffer too small: %d bytes, need %d", len(dst), need)
	}

	clear(dst[:LightBufferHeaderSize])
	binary.LittleEndian.PutUint32(dst, uint32(len(lights)))
	copy(dst[LightBufferHeaderSize:], unsafer.SliceToBytes(lights))

	return nil
}

// Unpack reads lights written by Pack.
func Unpack(src []byte) ([]PointLight, error) {
	if len(src) < LightBufferHeaderSize {
		return nil, errors.Newf("light buffer too small: %d bytes", len(src))
	}

	count := int(binary.LittleEndian.Uint32(src))
	if count > MaxPointLightCount {
		return nil, errors.Wrapf(ErrTooManyLights, "buffer holds %d lights", count)
	}

	need := LightBufferHeaderSize + PointLightSize*count
	if len(src) < need {
		return nil, errors.Newf("light buffer truncated: %d bytes, need %d", len(src), need)
	}

	lights := make([]PointLight, count)
	copy(unsafer.SliceToBytes(lights), src[LightBufferHeaderSize:need])

	return lights, nil
}
