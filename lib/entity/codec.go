package entity

import (
	"encoding/binary"
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// Big-endian append helpers
// --------------------------------------------------------------------------

func putInt32(b []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

func putInt64(b []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v))
}

func putFloat32(b []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(v))
}

func putBytes(b []byte, v []byte) []byte {
	b = putInt32(b, int32(len(v)))
	return append(b, v...)
}

// --------------------------------------------------------------------------
// Reader with sticky error
// --------------------------------------------------------------------------

// reader decodes big-endian values and remembers the first out-of-bounds access.
// Callers check err once after a sequence of reads.
type reader struct {
	buf []byte
	pos int
	err error
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedRecord, n, r.pos, len(r.buf)-r.pos)
		return false
	}
	return true
}

func (r *reader) byte() byte {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) int32() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v
}

func (r *reader) int64() int64 {
	if !r.need(8) {
		return 0
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v
}

func (r *reader) float32() float32 {
	return math.Float32frombits(uint32(r.int32()))
}

func (r *reader) bytes() []byte {
	n := int(r.int32())
	if !r.need(n) {
		return nil
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+n])
	r.pos += n
	return v
}

// count reads a non-negative element count bounded by the remaining bytes
func (r *reader) count(minElemSize int) int {
	n := int(r.int32())
	if r.err != nil {
		return 0
	}
	if n < 0 || n*minElemSize > len(r.buf)-r.pos {
		r.err = fmt.Errorf("%w: invalid element count %d at offset %d", ErrMalformedRecord, n, r.pos-4)
		return 0
	}
	return n
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

// done fails if unread bytes remain
func (r *reader) done() error {
	if r.err == nil && r.pos != len(r.buf) {
		r.err = fmt.Errorf("%w: %d trailing bytes", ErrMalformedRecord, len(r.buf)-r.pos)
	}
	return r.err
}
