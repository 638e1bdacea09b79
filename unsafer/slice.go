// Package unsafer contains zero-copy conversions used when handing Go memory to
// the GPU driver.
package unsafer

import (
	"unsafe"
)

// SliceToBytes interprets an arbitrary input slice as a byte slice.
//
// Note that the returned slice points to the same underlying data in memory. It
// does not make a copy.
func SliceToBytes[T any](input []T) []byte {
	if len(input) == 0 {
		return []byte{}
	}

	size := int(unsafe.Sizeof(input[0])) * len(input)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(input))), size)
}

// StructToBytes returns the memory of the value pointed to by input as a byte
// slice. The same aliasing rules as in SliceToBytes apply.
func StructToBytes[T any](input *T) []byte {
	if input == nil {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(input)), unsafe.Sizeof(*input))
}

// SliceBytesToUint32 views SPIR-V bytecode as a slice of 32bit words. Trailing
// bytes which do not form a whole word are dropped.
func SliceBytesToUint32(code []byte) []uint32 {
	if len(code) < 4 {
		return []uint32{}
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(code))), len(code)/4)
}
