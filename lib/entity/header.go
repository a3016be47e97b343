package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// Header is the decoded array 0 of a record
type Header struct {
	Token FormatToken
	Nid   int32

	// UUIDs holds the primary identifier first, aliases after it
	UUIDs []uuid.UUID

	// semantic chronologies only
	PatternNid    int32
	ReferencedNid int32

	VersionCount int32
}

// NewConceptHeader creates the header of a concept chronology
func NewConceptHeader(nid int32, ids ...uuid.UUID) Header {
	return Header{Token: ConceptChronologyToken, Nid: nid, UUIDs: ids}
}

// NewPatternHeader creates the header of a pattern chronology
func NewPatternHeader(nid int32, ids ...uuid.UUID) Header {
	return Header{Token: PatternChronologyToken, Nid: nid, UUIDs: ids}
}

// NewSemanticHeader creates the header of a semantic chronology. referencedNid is
// the component the semantic annotates; it is the citation recorded in the index.
func NewSemanticHeader(nid, patternNid, referencedNid int32, ids ...uuid.UUID) Header {
	return Header{
		Token:         SemanticChronologyToken,
		Nid:           nid,
		UUIDs:         ids,
		PatternNid:    patternNid,
		ReferencedNid: referencedNid,
	}
}

// NewStampHeader creates the header of a stamp chronology
func NewStampHeader(nid int32, ids ...uuid.UUID) Header {
	return Header{Token: StampChronologyToken, Nid: nid, UUIDs: ids}
}

// DecodeHeader decodes a header array
func DecodeHeader(b []byte) (Header, error) {
	r := newReader(b)

	token, err := ParseToken(r.byte())
	if r.err != nil {
		return Header{}, r.err
	}
	if err != nil {
		return Header{}, err
	}
	if !token.IsChronology() {
		return Header{}, fmt.Errorf("%w: header carries version token %s", ErrMalformedRecord, token)
	}

	h := Header{Token: token}
	h.Nid = r.int32()

	primary := readUUID(r)
	extra := r.count(16)
	h.UUIDs = make([]uuid.UUID, 0, 1+extra)
	h.UUIDs = append(h.UUIDs, primary)
	for i := 0; i < extra; i++ {
		h.UUIDs = append(h.UUIDs, readUUID(r))
	}

	if token == SemanticChronologyToken {
		h.PatternNid = r.int32()
		h.ReferencedNid = r.int32()
	}
	h.VersionCount = r.int32()

	if err := r.done(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Encode writes the header array
func (h Header) Encode() []byte {
	out := make([]byte, 0, minHeaderSize+16*len(h.UUIDs)+8)
	out = append(out, byte(h.Token))
	out = putInt32(out, h.Nid)

	primary := uuid.Nil
	if len(h.UUIDs) > 0 {
		primary = h.UUIDs[0]
	}
	out = append(out, primary[:]...)

	extra := 0
	if len(h.UUIDs) > 1 {
		extra = len(h.UUIDs) - 1
	}
	out = putInt32(out, int32(extra))
	for _, id := range h.UUIDs[min(1, len(h.UUIDs)):] {
		out = append(out, id[:]...)
	}

	if h.Token == SemanticChronologyToken {
		out = putInt32(out, h.PatternNid)
		out = putInt32(out, h.ReferencedNid)
	}
	return putInt32(out, h.VersionCount)
}

// PrimaryUUID returns the first identifier or uuid.Nil
func (h Header) PrimaryUUID() uuid.UUID {
	if len(h.UUIDs) == 0 {
		return uuid.Nil
	}
	return h.UUIDs[0]
}

// UnionUUIDs returns a copy of h whose identifier set also contains ids.
// The primary identifier of h is kept, new aliases are appended in order.
func (h Header) UnionUUIDs(ids []uuid.UUID) Header {
	seen := make(map[uuid.UUID]struct{}, len(h.UUIDs)+len(ids))
	merged := make([]uuid.UUID, 0, len(h.UUIDs)+len(ids))
	for _, list := range [][]uuid.UUID{h.UUIDs, ids} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	h.UUIDs = merged
	return h
}

func readUUID(r *reader) uuid.UUID {
	var id uuid.UUID
	if !r.need(16) {
		return id
	}
	copy(id[:], r.buf[r.pos:r.pos+16])
	r.pos += 16
	return id
}
