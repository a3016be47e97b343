package db

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
)

// Codec converts the values of a SpinedDB to and from their on-disk form
type Codec[T any] interface {
	// Append appends the encoding of v to dst
	Append(dst []byte, v T) []byte

	// Decode decodes one value; b is owned by the caller afterwards
	Decode(b []byte) (T, error)

	// Clone returns a copy of v that is safe to hand out to callers
	Clone(v T) T

	// Size estimates the in-memory size of v in bytes
	Size(v T) int
}

// --------------------------------------------------------------------------
// Byte records
// --------------------------------------------------------------------------

// BytesCodec stores raw byte slices
type BytesCodec struct{}

func (BytesCodec) Append(dst []byte, v []byte) []byte { return append(dst, v...) }

func (BytesCodec) Decode(b []byte) ([]byte, error) { return bytes.Clone(b), nil }

func (BytesCodec) Clone(v []byte) []byte { return bytes.Clone(v) }

func (BytesCodec) Size(v []byte) int { return len(v) }

// --------------------------------------------------------------------------
// Single nids
// --------------------------------------------------------------------------

// Int32Codec stores one int32 per slot
type Int32Codec struct{}

func (Int32Codec) Append(dst []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(v))
}

func (Int32Codec) Decode(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("int32 slot of %d bytes", len(b))
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (Int32Codec) Clone(v int32) int32 { return v }

func (Int32Codec) Size(int32) int { return 4 }

// --------------------------------------------------------------------------
// Sorted nid sets
// --------------------------------------------------------------------------

// Int32SetCodec stores a sorted, duplicate free list of int32 per slot
type Int32SetCodec struct{}

func (Int32SetCodec) Append(dst []byte, v []int32) []byte {
	for _, n := range v {
		dst = binary.BigEndian.AppendUint32(dst, uint32(n))
	}
	return dst
}

func (Int32SetCodec) Decode(b []byte) ([]int32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("int32 set slot of %d bytes", len(b))
	}
	v := make([]int32, len(b)/4)
	for i := range v {
		v[i] = int32(binary.BigEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func (Int32SetCodec) Clone(v []int32) []int32 { return slices.Clone(v) }

func (Int32SetCodec) Size(v []int32) int { return 4 * len(v) }

// InsertSorted returns a copy of set with n added, keeping the set sorted.
// The input is not modified.
func InsertSorted(set []int32, n int32) []int32 {
	i, found := slices.BinarySearch(set, n)
	if found {
		return set
	}
	out := make([]int32, 0, len(set)+1)
	out = append(out, set[:i]...)
	out = append(out, n)
	return append(out, set[i:]...)
}

// RemoveSorted returns a copy of set without n. The input is not modified.
func RemoveSorted(set []int32, n int32) []int32 {
	i, found := slices.BinarySearch(set, n)
	if !found {
		return set
	}
	out := make([]int32, 0, len(set)-1)
	out = append(out, set[:i]...)
	return append(out, set[i+1:]...)
}
