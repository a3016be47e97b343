package merge

import (
	"bytes"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("merge")

var (
	// ErrMalformedRecord is returned when either side cannot be parsed, or the
	// two sides do not describe the same chronology
	ErrMalformedRecord = entity.ErrMalformedRecord

	// ErrUnknownFormat is returned for a format token outside the closed set
	ErrUnknownFormat = entity.ErrUnknownFormat
)

// CanceledStamps tells the merger which stamps belong to canceled transactions.
// Versions written under such a stamp are dropped during merge.
type CanceledStamps interface {
	IsCanceled(stampNid int32) bool
}

// Stats are cumulative counters of a Merger
type Stats struct {
	Merges         uint64
	FastPath       uint64
	Consolidations uint64
	Collected      uint64
}

// Merger combines two records of the same nid into one canonical record.
//
// Thread-safety: a Merger has no mutable state apart from its counters and
// may be shared by any number of goroutines.
type Merger struct {
	canceled CanceledStamps

	merges         atomic.Uint64
	fastPath       atomic.Uint64
	consolidations atomic.Uint64
	collected      atomic.Uint64
}

// NewMerger creates a merger. canceled may be nil, in which case no versions
// are garbage collected.
func NewMerger(canceled CanceledStamps) *Merger {
	return &Merger{canceled: canceled}
}

// Stats returns a snapshot of the merger's counters
func (m *Merger) Stats() Stats {
	return Stats{
		Merges:         m.merges.Load(),
		FastPath:       m.fastPath.Load(),
		Consolidations: m.consolidations.Load(),
		Collected:      m.collected.Load(),
	}
}

// --------------------------------------------------------------------------
// Merge
// --------------------------------------------------------------------------

// Merge combines existing and incoming into the canonical record of nid.
//
// A nil side returns the other side unchanged, byte-identical sides return
// existing. Otherwise the versions of both sides are united: stamp versions are
// deduplicated by content, other versions by stamp nid with incoming winning.
// Diverging headers are consolidated, versions written under canceled stamps are
// dropped and the surviving versions are written in byte-lexicographic order.
//
// Any malformed input fails the whole merge; no partial result is returned.
func (m *Merger) Merge(nid int32, existing, incoming []byte) ([]byte, error) {
	m.merges.Add(1)

	if existing == nil {
		return incoming, nil
	}
	if incoming == nil {
		return existing, nil
	}
	if bytes.Equal(existing, incoming) {
		m.fastPath.Add(1)
		return existing, nil
	}

	old, err := parse(nid, existing, "existing")
	if err != nil {
		return nil, err
	}
	neu, err := parse(nid, incoming, "incoming")
	if err != nil {
		return nil, err
	}
	if old.Token() != neu.Token() {
		err := fmt.Errorf("%w: nid %d is %s, incoming record is %s", ErrMalformedRecord, nid, old.Token(), neu.Token())
		Logger.Errorf("merge aborted: %v", err)
		return nil, err
	}

	header, err := m.consolidateHeaders(old.Header, neu.Header)
	if err != nil {
		return nil, err
	}

	versions := m.uniteVersions(old.Versions, neu.Versions)
	slices.SortFunc(versions, bytes.Compare)

	return entity.EncodeRecord(header, versions), nil
}

func parse(nid int32, b []byte, side string) (entity.Record, error) {
	rec, err := entity.ParseRecord(b)
	if err != nil {
		Logger.Errorf("merge aborted, %s record of nid %d: %v", side, nid, err)
		return entity.Record{}, fmt.Errorf("%s record: %w", side, err)
	}
	if rec.Nid() != nid {
		err := fmt.Errorf("%w: %s record carries nid %d, expected %d", ErrMalformedRecord, side, rec.Nid(), nid)
		Logger.Errorf("merge aborted: %v", err)
		return entity.Record{}, err
	}
	return rec, nil
}

// uniteVersions returns the union of both version sets without versions of
// canceled stamps
func (m *Merger) uniteVersions(old, neu [][]byte) [][]byte {
	byStamp := make(map[int32][]byte, len(old)+len(neu))
	byContent := make(map[string][]byte)

	for _, side := range [][][]byte{old, neu} {
		for _, v := range side {
			if entity.FormatToken(v[0]) == entity.StampVersionToken {
				byContent[string(v)] = v
				continue
			}
			// later sides overwrite: one version per stamp
			byStamp[entity.VersionStampNid(v)] = v
		}
	}

	versions := make([][]byte, 0, len(byStamp)+len(byContent))
	for _, v := range byContent {
		versions = append(versions, v)
	}
	for stampNid, v := range byStamp {
		if m.canceled != nil && m.canceled.IsCanceled(stampNid) {
			m.collected.Add(1)
			continue
		}
		versions = append(versions, v)
	}
	return versions
}

// consolidateHeaders returns the header to write. Headers that only differ in
// their version count are equal; otherwise the identifier sets are united,
// keeping the primary identifier of the existing side, and the type fields of
// the incoming side are used.
func (m *Merger) consolidateHeaders(old, neu []byte) ([]byte, error) {
	if bytes.Equal(old[:len(old)-4], neu[:len(neu)-4]) {
		return old, nil
	}
	m.consolidations.Add(1)

	oh, err := entity.DecodeHeader(old)
	if err != nil {
		return nil, fmt.Errorf("existing header: %w", err)
	}
	nh, err := entity.DecodeHeader(neu)
	if err != nil {
		return nil, fmt.Errorf("incoming header: %w", err)
	}

	merged := nh
	merged.UUIDs = oh.UnionUUIDs(nh.UUIDs).UUIDs
	if oh.Token == entity.SemanticChronologyToken && oh.ReferencedNid != nh.ReferencedNid {
		Logger.Warningf("semantic %d changes referenced component from %d to %d", oh.Nid, oh.ReferencedNid, nh.ReferencedNid)
	}
	return merged.Encode(), nil
}
