package lighting

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/gomega"
	"github.com/xlab/linmath"
)

func TestNewPointLightDefaults(t *testing.T) {
	g := NewWithT(t)

	l := NewPointLight(linmath.Vec3{1, 2, 3})
	g.Expect(l.Radius).To(BeEquivalentTo(5))
	g.Expect(l.Intensity).To(Equal(linmath.Vec3{1, 1, 1}))
	g.Expect(LightBufferSize).To(Equal(32016))
}

func TestPackUnpackRoundTrip(t *testing.T) {
	g := NewWithT(t)

	rng := rand.New(rand.NewPCG(1, 2))
	lights, err := RandomLights(rng, 200, DefaultBounds, 5)
	g.Expect(err).NotTo(HaveOccurred())

	buf := make([]byte, LightBufferSize)
	g.Expect(Pack(buf, lights)).To(Succeed())
	g.Expect(binary.LittleEndian.Uint32(buf)).To(BeEquivalentTo(200))
	g.Expect(buf[4:LightBufferHeaderSize]).To(Equal(make([]byte, 12)))

	first := buf[LightBufferHeaderSize:]
	g.Expect(math.Float32frombits(binary.LittleEndian.Uint32(first[12:]))).To(BeEquivalentTo(5),
		"radius follows the position")

	out, err := Unpack(buf)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(out).To(Equal(lights))
}

func TestPackLimits(t *testing.T) {
	g := NewWithT(t)

	tooMany := make([]PointLight, MaxPointLightCount+1)
	err := Pack(make([]byte, LightBufferSize+PointLightSize), tooMany)
	g.Expect(errors.Is(err, ErrTooManyLights)).To(BeTrue())

	g.Expect(Pack(make([]byte, 20), make([]PointLight, 1))).NotTo(Succeed())

	out, err := Unpack(make([]byte, LightBufferHeaderSize))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(out).To(BeEmpty())

	bad := make([]byte, LightBufferHeaderSize)
	binary.LittleEndian.PutUint32(bad, 2)
	_, err = Unpack(bad)
	g.Expect(err).To(HaveOccurred())
}

func TestRandomLights(t *testing.T) {
	g := NewWithT(t)

	rng := rand.New(rand.NewPCG(7, 7))
	lights, err := RandomLights(rng, MaxPointLightCount, DefaultBounds, 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(lights).To(HaveLen(MaxPointLightCount))

	for _, l := range lights {
		g.Expect(DefaultBounds.Contains(l.Pos)).To(BeTrue())
		g.Expect(l.Radius).To(BeEquivalentTo(2))

		c := l.Intensity
		g.Expect(c[0]*c[0] + c[1]*c[1] + c[2]*c[2]).To(BeNumerically(">=", 0.64))
	}

	_, err = RandomLights(rng, MaxPointLightCount+1, DefaultBounds, 2)
	g.Expect(errors.Is(err, ErrTooManyLights)).To(BeTrue())
}

func TestDrift(t *testing.T) {
	g := NewWithT(t)

	lights := []PointLight{
		NewPointLight(linmath.Vec3{0, 0, 0}),
		NewPointLight(linmath.Vec3{1, 19.5, 2}),
	}
	Drift(lights, 0.5, DefaultBounds)

	g.Expect(lights[0].Pos).To(Equal(linmath.Vec3{0, 1.5, 0}))
	g.Expect(lights[1].Pos[1]).To(BeNumerically("~", 21-25, 1e-5))
	g.Expect(lights[1].Pos[0]).To(BeEquivalentTo(1))
	g.Expect(lights[1].Pos[2]).To(BeEquivalentTo(2))
}

func TestDecodeVisibility(t *testing.T) {
	g := NewWithT(t)

	buf := make([]byte, 2*TileRecordSize)
	binary.LittleEndian.PutUint32(buf[TileRecordSize:], 2)
	binary.LittleEndian.PutUint32(buf[TileRecordSize+4:], 11)
	binary.LittleEndian.PutUint32(buf[TileRecordSize+8:], 42)

	records, err := DecodeVisibility(buf, 2, 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(records[0].Lights()).To(BeEmpty())
	g.Expect(records[1].Lights()).To(Equal([]uint32{11, 42}))

	_, err = DecodeVisibility(buf, 2, 2)
	g.Expect(err).To(HaveOccurred())
}
