package entity

import (
	"fmt"
)

// Version is one decoded version array.
//
// Non-stamp versions carry their stamp nid plus an inline copy of the stamp's
// status, author, module and path, so filters can run without loading the
// stamp. Time is only part of the encoding for stamp versions; for other
// versions it is zero until a resolver fills it from the stamp record.
type Version struct {
	Token    FormatToken
	StampNid int32

	Status Status
	Time   int64
	Author int32
	Module int32
	Path   int32

	// pattern versions only
	Pattern *PatternDefinition

	// semantic versions only
	Fields []Field
}

// NewConceptVersion creates a concept version written under stamp
func NewConceptVersion(stampNid int32, stamp Stamp) Version {
	return newVersion(ConceptVersionToken, stampNid, stamp)
}

// NewPatternVersion creates a pattern version written under stamp
func NewPatternVersion(stampNid int32, stamp Stamp, def PatternDefinition) Version {
	v := newVersion(PatternVersionToken, stampNid, stamp)
	v.Pattern = &def
	return v
}

// NewSemanticVersion creates a semantic version written under stamp
func NewSemanticVersion(stampNid int32, stamp Stamp, fields ...Field) Version {
	v := newVersion(SemanticVersionToken, stampNid, stamp)
	v.Fields = fields
	return v
}

// NewStampVersion creates the version array of a stamp chronology
func NewStampVersion(stamp Stamp) Version {
	return Version{
		Token:  StampVersionToken,
		Status: stamp.Status,
		Time:   stamp.Time,
		Author: stamp.Author,
		Module: stamp.Module,
		Path:   stamp.Path,
	}
}

func newVersion(token FormatToken, stampNid int32, stamp Stamp) Version {
	return Version{
		Token:    token,
		StampNid: stampNid,
		Status:   stamp.Status,
		Time:     stamp.Time,
		Author:   stamp.Author,
		Module:   stamp.Module,
		Path:     stamp.Path,
	}
}

// Stamp returns the stamp values carried by the version
func (v Version) Stamp() Stamp {
	return Stamp{Status: v.Status, Time: v.Time, Author: v.Author, Module: v.Module, Path: v.Path}
}

// WithStamp returns a copy of v carrying the values of s. The stamp nid is kept.
func (v Version) WithStamp(s Stamp) Version {
	v.Status, v.Time, v.Author, v.Module, v.Path = s.Status, s.Time, s.Author, s.Module, s.Path
	return v
}

// DecodeVersion decodes a version array
func DecodeVersion(b []byte) (Version, error) {
	r := newReader(b)

	token, err := ParseToken(r.byte())
	if r.err != nil {
		return Version{}, r.err
	}
	if err != nil {
		return Version{}, err
	}
	if token.IsChronology() {
		return Version{}, fmt.Errorf("%w: version carries chronology token %s", ErrMalformedRecord, token)
	}

	v := Version{Token: token}
	if token == StampVersionToken {
		v.Status = Status(r.byte())
		v.Time = r.int64()
	} else {
		v.StampNid = r.int32()
		v.Status = Status(r.byte())
	}
	v.Author = r.int32()
	v.Module = r.int32()
	v.Path = r.int32()

	switch token {
	case PatternVersionToken:
		def, err := decodePattern(r)
		if err != nil {
			return Version{}, err
		}
		v.Pattern = &def
	case SemanticVersionToken:
		if v.Fields, err = decodeFields(r); err != nil {
			return Version{}, err
		}
	}

	if err := r.done(); err != nil {
		return Version{}, err
	}
	if !v.Status.Valid() {
		return Version{}, fmt.Errorf("%w: status %d", ErrMalformedRecord, byte(v.Status))
	}
	return v, nil
}

// Encode writes the version array
func (v Version) Encode() []byte {
	out := make([]byte, 0, stampVersionSize)
	out = append(out, byte(v.Token))
	if v.Token == StampVersionToken {
		out = append(out, byte(v.Status))
		out = putInt64(out, v.Time)
	} else {
		out = putInt32(out, v.StampNid)
		out = append(out, byte(v.Status))
	}
	out = putInt32(out, v.Author)
	out = putInt32(out, v.Module)
	out = putInt32(out, v.Path)

	switch v.Token {
	case PatternVersionToken:
		def := PatternDefinition{}
		if v.Pattern != nil {
			def = *v.Pattern
		}
		out = encodePattern(out, def)
	case SemanticVersionToken:
		out = encodeFields(out, v.Fields)
	}
	return out
}

func (v Version) String() string {
	if v.Token == StampVersionToken {
		return fmt.Sprintf("%s{%s}", v.Token, v.Stamp())
	}
	s := fmt.Sprintf("%s{stamp:%d %s a:%d m:%d p:%d", v.Token, v.StampNid, v.Status, v.Author, v.Module, v.Path)
	if v.Pattern != nil {
		s += fmt.Sprintf(" meaning:%d purpose:%d fields:%d", v.Pattern.Meaning, v.Pattern.Purpose, len(v.Pattern.Fields))
	}
	if len(v.Fields) > 0 {
		s += fmt.Sprintf(" %v", v.Fields)
	}
	return s + "}"
}
