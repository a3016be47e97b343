package entity

import (
	"fmt"
	"slices"
)

// --------------------------------------------------------------------------
// Semantic fields
// --------------------------------------------------------------------------

// FieldType is the tag byte written in front of every semantic field value
type FieldType byte

const (
	FieldBool FieldType = iota + 1
	FieldInt
	FieldLong
	FieldFloat
	FieldString
	FieldBytes
	FieldNid
	FieldInstant
	FieldPosition
	FieldNidList
)

func (t FieldType) String() string {
	switch t {
	case FieldBool:
		return "Bool"
	case FieldInt:
		return "Int"
	case FieldLong:
		return "Long"
	case FieldFloat:
		return "Float"
	case FieldString:
		return "String"
	case FieldBytes:
		return "Bytes"
	case FieldNid:
		return "Nid"
	case FieldInstant:
		return "Instant"
	case FieldPosition:
		return "Position"
	case FieldNidList:
		return "NidList"
	default:
		return fmt.Sprintf("FieldType(%d)", byte(t))
	}
}

// Field is one tagged value of a semantic version. Only the member matching
// Type is meaningful:
//
//   - Bool: Bool
//   - Int, Nid: Int
//   - Long, Instant: Long
//   - Float: Float
//   - String: Str
//   - Bytes: Bytes
//   - Position: Position
//   - NidList: Nids
type Field struct {
	Type     FieldType
	Bool     bool
	Int      int32
	Long     int64
	Float    float32
	Str      string
	Bytes    []byte
	Position StampPosition
	Nids     []int32
}

func BoolField(v bool) Field { return Field{Type: FieldBool, Bool: v} }
func IntField(v int32) Field { return Field{Type: FieldInt, Int: v} }
func LongField(v int64) Field { return Field{Type: FieldLong, Long: v} }
func FloatField(v float32) Field { return Field{Type: FieldFloat, Float: v} }
func StringField(v string) Field { return Field{Type: FieldString, Str: v} }
func BytesField(v []byte) Field { return Field{Type: FieldBytes, Bytes: v} }
func NidField(nid int32) Field { return Field{Type: FieldNid, Int: nid} }
func InstantField(millis int64) Field { return Field{Type: FieldInstant, Long: millis} }
func PositionField(p StampPosition) Field { return Field{Type: FieldPosition, Position: p} }
func NidListField(nids ...int32) Field { return Field{Type: FieldNidList, Nids: nids} }

// Equal compares the meaningful members of two fields
func (f Field) Equal(o Field) bool {
	if f.Type != o.Type {
		return false
	}
	switch f.Type {
	case FieldBool:
		return f.Bool == o.Bool
	case FieldInt, FieldNid:
		return f.Int == o.Int
	case FieldLong, FieldInstant:
		return f.Long == o.Long
	case FieldFloat:
		return f.Float == o.Float
	case FieldString:
		return f.Str == o.Str
	case FieldBytes:
		return slices.Equal(f.Bytes, o.Bytes)
	case FieldPosition:
		return f.Position == o.Position
	case FieldNidList:
		return slices.Equal(f.Nids, o.Nids)
	}
	return false
}

func (f Field) String() string {
	switch f.Type {
	case FieldBool:
		return fmt.Sprintf("%t", f.Bool)
	case FieldInt:
		return fmt.Sprintf("%d", f.Int)
	case FieldNid:
		return fmt.Sprintf("nid:%d", f.Int)
	case FieldLong:
		return fmt.Sprintf("%d", f.Long)
	case FieldInstant:
		return "t:" + formatTime(f.Long)
	case FieldFloat:
		return fmt.Sprintf("%g", f.Float)
	case FieldString:
		return fmt.Sprintf("%q", f.Str)
	case FieldBytes:
		return fmt.Sprintf("%d bytes", len(f.Bytes))
	case FieldPosition:
		return f.Position.String()
	case FieldNidList:
		return fmt.Sprintf("nids:%v", f.Nids)
	}
	return f.Type.String()
}

func encodeFields(out []byte, fields []Field) []byte {
	out = putInt32(out, int32(len(fields)))
	for _, f := range fields {
		out = append(out, byte(f.Type))
		switch f.Type {
		case FieldBool:
			if f.Bool {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		case FieldInt, FieldNid:
			out = putInt32(out, f.Int)
		case FieldLong, FieldInstant:
			out = putInt64(out, f.Long)
		case FieldFloat:
			out = putFloat32(out, f.Float)
		case FieldString:
			out = putBytes(out, []byte(f.Str))
		case FieldBytes:
			out = putBytes(out, f.Bytes)
		case FieldPosition:
			out = putInt32(out, f.Position.PathNid)
			out = putInt64(out, f.Position.Time)
		case FieldNidList:
			out = putInt32(out, int32(len(f.Nids)))
			for _, nid := range f.Nids {
				out = putInt32(out, nid)
			}
		}
	}
	return out
}

func decodeFields(r *reader) ([]Field, error) {
	// every field has at least its tag and a one byte value
	n := r.count(2)
	fields := make([]Field, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		f := Field{Type: FieldType(r.byte())}
		switch f.Type {
		case FieldBool:
			f.Bool = r.byte() != 0
		case FieldInt, FieldNid:
			f.Int = r.int32()
		case FieldLong, FieldInstant:
			f.Long = r.int64()
		case FieldFloat:
			f.Float = r.float32()
		case FieldString:
			f.Str = string(r.bytes())
		case FieldBytes:
			f.Bytes = r.bytes()
		case FieldPosition:
			f.Position.PathNid = r.int32()
			f.Position.Time = r.int64()
		case FieldNidList:
			m := r.count(4)
			f.Nids = make([]int32, m)
			for j := range f.Nids {
				f.Nids[j] = r.int32()
			}
		default:
			if r.err == nil {
				return nil, fmt.Errorf("%w: field type %d", ErrUnknownFormat, byte(f.Type))
			}
		}
		fields = append(fields, f)
	}
	if r.err != nil {
		return nil, r.err
	}
	return fields, nil
}

// --------------------------------------------------------------------------
// Pattern definitions
// --------------------------------------------------------------------------

// FieldDefinition describes one field of the semantics conforming to a pattern
type FieldDefinition struct {
	Meaning  int32
	Purpose  int32
	DataType int32
	Index    int32
}

// PatternDefinition is the payload of a pattern version
type PatternDefinition struct {
	Meaning int32
	Purpose int32
	Fields  []FieldDefinition
}

func encodePattern(out []byte, p PatternDefinition) []byte {
	out = putInt32(out, p.Meaning)
	out = putInt32(out, p.Purpose)
	out = putInt32(out, int32(len(p.Fields)))
	for _, fd := range p.Fields {
		out = putInt32(out, fd.Meaning)
		out = putInt32(out, fd.Purpose)
		out = putInt32(out, fd.DataType)
		out = putInt32(out, fd.Index)
	}
	return out
}

func decodePattern(r *reader) (PatternDefinition, error) {
	p := PatternDefinition{Meaning: r.int32(), Purpose: r.int32()}
	n := r.count(16)
	p.Fields = make([]FieldDefinition, n)
	for i := range p.Fields {
		p.Fields[i] = FieldDefinition{
			Meaning:  r.int32(),
			Purpose:  r.int32(),
			DataType: r.int32(),
			Index:    r.int32(),
		}
	}
	return p, r.err
}
