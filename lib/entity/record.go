package entity

import (
	"encoding/binary"
	"fmt"
)

// --------------------------------------------------------------------------
// Record framing
// --------------------------------------------------------------------------

const (
	// token + nid + primary uuid + extra uuid count + version count
	minHeaderSize = 1 + 4 + 16 + 4 + 4

	// token + stamp nid + status + author + module + path
	minVersionSize = 1 + 4 + 1 + 4 + 4 + 4

	// token + status + time + author + module + path
	stampVersionSize = 1 + 1 + 8 + 4 + 4 + 4
)

// Record is the framed form of a binary record:
//
//	[arrayCount:int32] then arrayCount times [length:int32][bytes]
//
// Array 0 is the header, the remaining arrays are versions. The header ends with
// the version count, which must equal arrayCount-1.
//
// The arrays of a parsed record alias the input buffer.
type Record struct {
	Header   []byte
	Versions [][]byte
}

// ParseRecord frames b into header and version arrays and validates the tokens,
// the minimal array sizes and the embedded version count.
func ParseRecord(b []byte) (Record, error) {
	r := newReader(b)

	arrayCount := r.count(4)
	if r.err != nil {
		return Record{}, r.err
	}
	if arrayCount < 1 {
		return Record{}, fmt.Errorf("%w: record without header", ErrMalformedRecord)
	}

	arrays := make([][]byte, arrayCount)
	for i := range arrays {
		n := int(r.int32())
		if !r.need(n) {
			return Record{}, r.err
		}
		arrays[i] = b[r.pos : r.pos+n : r.pos+n]
		r.pos += n
	}
	if err := r.done(); err != nil {
		return Record{}, err
	}

	rec := Record{Header: arrays[0], Versions: arrays[1:]}
	if err := rec.validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (rec Record) validate() error {
	h := rec.Header
	if len(h) < minHeaderSize {
		return fmt.Errorf("%w: header of %d bytes", ErrMalformedRecord, len(h))
	}
	token, err := ParseToken(h[0])
	if err != nil {
		return err
	}
	if !token.IsChronology() {
		return fmt.Errorf("%w: header carries version token %s", ErrMalformedRecord, token)
	}
	if declared := headerVersionCount(h); int(declared) != len(rec.Versions) {
		return fmt.Errorf("%w: header declares %d versions, record has %d", ErrMalformedRecord, declared, len(rec.Versions))
	}

	for i, v := range rec.Versions {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty version array %d", ErrMalformedRecord, i)
		}
		vt, err := ParseToken(v[0])
		if err != nil {
			return err
		}
		if vt != token.VersionToken() {
			return fmt.Errorf("%w: %s version inside %s", ErrMalformedRecord, vt, token)
		}
		if vt == StampVersionToken && len(v) != stampVersionSize {
			return fmt.Errorf("%w: stamp version of %d bytes", ErrMalformedRecord, len(v))
		}
		if vt != StampVersionToken && len(v) < minVersionSize {
			return fmt.Errorf("%w: version of %d bytes", ErrMalformedRecord, len(v))
		}
	}
	return nil
}

// Token returns the chronology token of the record
func (rec Record) Token() FormatToken { return FormatToken(rec.Header[0]) }

// Nid returns the nid stored in the header
func (rec Record) Nid() int32 { return int32(binary.BigEndian.Uint32(rec.Header[1:5])) }

// Bytes encodes the record; the header's version count is rewritten to match.
func (rec Record) Bytes() []byte {
	return EncodeRecord(rec.Header, rec.Versions)
}

// EncodeRecord frames a header and version arrays. The header's trailing
// version count is replaced by len(versions).
func EncodeRecord(header []byte, versions [][]byte) []byte {
	size := 4 + 4 + len(header)
	for _, v := range versions {
		size += 4 + len(v)
	}

	out := make([]byte, 0, size)
	out = putInt32(out, int32(1+len(versions)))
	out = putInt32(out, int32(len(header)))
	out = append(out, header[:len(header)-4]...)
	out = putInt32(out, int32(len(versions)))
	for _, v := range versions {
		out = putBytes(out, v)
	}
	return out
}

// VersionStampNid returns the stamp nid of a non-stamp version array
func VersionStampNid(v []byte) int32 {
	return int32(binary.BigEndian.Uint32(v[1:5]))
}

func headerVersionCount(h []byte) int32 {
	return int32(binary.BigEndian.Uint32(h[len(h)-4:]))
}
