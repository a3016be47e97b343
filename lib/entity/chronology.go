package entity

import (
	"bytes"
	"fmt"
	"slices"
)

// Chronology is the decoded history of one nid
type Chronology struct {
	Header   Header
	Versions []Version
}

// NewChronology bundles a header and its versions
func NewChronology(h Header, versions ...Version) Chronology {
	return Chronology{Header: h, Versions: versions}
}

// DecodeChronology decodes a complete binary record
func DecodeChronology(b []byte) (Chronology, error) {
	rec, err := ParseRecord(b)
	if err != nil {
		return Chronology{}, err
	}
	h, err := DecodeHeader(rec.Header)
	if err != nil {
		return Chronology{}, err
	}
	c := Chronology{Header: h, Versions: make([]Version, len(rec.Versions))}
	for i, raw := range rec.Versions {
		if c.Versions[i], err = DecodeVersion(raw); err != nil {
			return Chronology{}, fmt.Errorf("version %d of nid %d: %w", i, h.Nid, err)
		}
	}
	return c, nil
}

// Bytes encodes the chronology. Versions are written in canonical
// (byte-lexicographic) order, the version count is taken from len(Versions).
func (c Chronology) Bytes() []byte {
	arrays := make([][]byte, len(c.Versions))
	for i, v := range c.Versions {
		arrays[i] = v.Encode()
	}
	slices.SortFunc(arrays, bytes.Compare)

	h := c.Header
	h.VersionCount = int32(len(arrays))
	return EncodeRecord(h.Encode(), arrays)
}

// Nid returns the nid of the chronology
func (c Chronology) Nid() int32 { return c.Header.Nid }

// Token returns the chronology token of the header
func (c Chronology) Token() FormatToken { return c.Header.Token }

// IsStamp reports whether the chronology describes a stamp
func (c Chronology) IsStamp() bool { return c.Header.Token == StampChronologyToken }

// StampNids returns the distinct stamp nids referenced by non-stamp versions
func (c Chronology) StampNids() []int32 {
	nids := make([]int32, 0, len(c.Versions))
	for _, v := range c.Versions {
		if v.Token != StampVersionToken && !slices.Contains(nids, v.StampNid) {
			nids = append(nids, v.StampNid)
		}
	}
	return nids
}

// CurrentStamp returns the effective value of a stamp chronology. A stamp is
// rewritten in place on commit and cancel, but merged records may still carry
// several stamp versions: a canceled version wins, then the committed version
// with the highest time, then an uncommitted one.
func (c Chronology) CurrentStamp() (Stamp, bool) {
	if !c.IsStamp() || len(c.Versions) == 0 {
		return Stamp{}, false
	}

	var (
		current Stamp
		found   bool
	)
	for _, v := range c.Versions {
		s := v.Stamp()
		switch {
		case s.IsCanceled():
			return s, true
		case !found:
			current, found = s, true
		case current.IsUncommitted():
			current = s
		case !s.IsUncommitted() && s.Time > current.Time:
			current = s
		}
	}
	return current, found
}

func (c Chronology) String() string {
	return fmt.Sprintf("%s{nid:%d uuids:%v versions:%d}", c.Header.Token, c.Header.Nid, c.Header.UUIDs, len(c.Versions))
}
