package unsafer

import (
	"encoding/binary"
	"testing"

	. "github.com/onsi/gomega"
)

func TestSliceToBytes(t *testing.T) {
	g := NewWithT(t)

	words := []uint32{1, 0xdeadbeef}
	b := SliceToBytes(words)
	g.Expect(b).To(HaveLen(8))
	g.Expect(binary.LittleEndian.Uint32(b[4:])).To(BeEquivalentTo(0xdeadbeef))

	words[0] = 42
	g.Expect(binary.LittleEndian.Uint32(b)).To(BeEquivalentTo(42), "no copy is made")

	g.Expect(SliceToBytes([]float32{})).To(BeEmpty())
}

func TestStructToBytes(t *testing.T) {
	g := NewWithT(t)

	v := struct {
		A uint32
		B float32
	}{A: 3}
	g.Expect(StructToBytes(&v)).To(HaveLen(8))
	g.Expect(StructToBytes[uint64](nil)).To(BeEmpty())
}

func TestSliceBytesToUint32(t *testing.T) {
	g := NewWithT(t)

	code := []byte{0x03, 0x02, 0x23, 0x07, 0xff}
	words := SliceBytesToUint32(code)
	g.Expect(words).To(HaveLen(1))
	g.Expect(words[0]).To(BeEquivalentTo(0x07230203))
	g.Expect(SliceBytesToUint32(nil)).To(BeEmpty())
}
