package index

import (
	"github.com/ValentinKolb/tks/lib/db"
	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("index")

// --------------------------------------------------------------------------
// Index structure
// --------------------------------------------------------------------------

// Index holds the secondary indexes of a store:
//
//   - citations: referenced nid -> sorted nids of the semantics annotating it
//     (persisted in citingComponentsMap)
//   - pattern of: semantic nid -> its pattern nid (persisted in patternNidMap)
//   - pattern members: pattern nid -> semantic nids (memory only)
//   - type members: chronology token -> nids (memory only)
//
// All entries are derived from chronology headers, so the index can always be
// rebuilt from a scan of the record map.
//
// Thread-safety: all methods may be called concurrently. Updates for one nid
// must be applied in merge order; the store holds the lock of the nid across
// the merge and the update.
type Index struct {
	citing    db.SpinedDB[[]int32]
	patternOf db.SpinedDB[int32]

	members *xsync.MapOf[int32, *NidSet]
	types   *xsync.MapOf[entity.FormatToken, *NidSet]
}

// New creates an index on the given maps. The in-memory sets are empty until
// Rebuild or Update is called.
func New(citing db.SpinedDB[[]int32], patternOf db.SpinedDB[int32]) *Index {
	return &Index{
		citing:    citing,
		patternOf: patternOf,
		members:   xsync.NewMapOf[int32, *NidSet](),
		types:     xsync.NewMapOf[entity.FormatToken, *NidSet](),
	}
}

func (ix *Index) set(m *xsync.MapOf[int32, *NidSet], key int32) *NidSet {
	s, _ := m.LoadOrCompute(key, func() *NidSet { return NewNidSet() })
	return s
}

func (ix *Index) typeSet(token entity.FormatToken) *NidSet {
	s, _ := ix.types.LoadOrCompute(token, func() *NidSet { return NewNidSet() })
	return s
}

// --------------------------------------------------------------------------
// Write path
// --------------------------------------------------------------------------

// Update records the header of a chronology after a successful merge. previous
// is the header stored before the merge (nil for a new nid); citations and
// pattern membership that changed with the merge are moved.
func (ix *Index) Update(previous *entity.Header, current entity.Header) error {
	ix.typeSet(current.Token).Add(current.Nid)

	if current.Token != entity.SemanticChronologyToken {
		return nil
	}

	if previous != nil && previous.Token == entity.SemanticChronologyToken {
		if previous.ReferencedNid != current.ReferencedNid {
			if err := ix.removeCitation(previous.ReferencedNid, current.Nid); err != nil {
				return err
			}
		}
		if previous.PatternNid != current.PatternNid {
			ix.set(ix.members, previous.PatternNid).Remove(current.Nid)
		}
	}

	if _, err := ix.citing.Accumulate(current.ReferencedNid, func(old []int32, _ bool) ([]int32, bool, error) {
		return db.InsertSorted(old, current.Nid), false, nil
	}); err != nil {
		return err
	}
	if err := ix.patternOf.Put(current.Nid, current.PatternNid); err != nil {
		return err
	}
	ix.set(ix.members, current.PatternNid).Add(current.Nid)
	return nil
}

// Remove deletes every entry the header contributed. Citations held by other
// semantics against the nid are kept.
func (ix *Index) Remove(h entity.Header) error {
	if s, ok := ix.types.Load(h.Token); ok {
		s.Remove(h.Nid)
	}
	if h.Token != entity.SemanticChronologyToken {
		return nil
	}

	var result *multierror.Error
	if err := ix.removeCitation(h.ReferencedNid, h.Nid); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := ix.patternOf.Remove(h.Nid); err != nil {
		result = multierror.Append(result, err)
	}
	if s, ok := ix.members.Load(h.PatternNid); ok {
		s.Remove(h.Nid)
	}
	return result.ErrorOrNil()
}

// DropCitations removes the citation list of a referenced nid
func (ix *Index) DropCitations(referencedNid int32) error {
	_, err := ix.citing.Remove(referencedNid)
	return err
}

func (ix *Index) removeCitation(referencedNid, semanticNid int32) error {
	_, err := ix.citing.Accumulate(referencedNid, func(old []int32, loaded bool) ([]int32, bool, error) {
		if !loaded {
			return old, true, nil
		}
		next := db.RemoveSorted(old, semanticNid)
		return next, len(next) == 0, nil
	})
	return err
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// CitingNids returns the semantics annotating nid in ascending order
func (ix *Index) CitingNids(nid int32) ([]int32, error) {
	nids, _, err := ix.citing.Get(nid)
	return nids, err
}

// PatternOf returns the pattern of a semantic
func (ix *Index) PatternOf(semanticNid int32) (int32, bool, error) {
	return ix.patternOf.Get(semanticNid)
}

// SemanticNidsOfPattern returns the semantics conforming to pattern in ascending order
func (ix *Index) SemanticNidsOfPattern(patternNid int32) []int32 {
	if s, ok := ix.members.Load(patternNid); ok {
		return s.Slice()
	}
	return nil
}

// NidsOfType returns the nids of all chronologies with the given header token
func (ix *Index) NidsOfType(token entity.FormatToken) []int32 {
	if s, ok := ix.types.Load(token.ChronologyToken()); ok {
		return s.Slice()
	}
	return nil
}

// CountOfType returns the number of chronologies with the given header token
func (ix *Index) CountOfType(token entity.FormatToken) int {
	if s, ok := ix.types.Load(token.ChronologyToken()); ok {
		return s.Len()
	}
	return 0
}

// --------------------------------------------------------------------------
// Rebuild and persistence
// --------------------------------------------------------------------------

// Rebuild clears all sets and both persisted maps and feeds every header
// produced by scan through Update. scan may call its callback concurrently.
func (ix *Index) Rebuild(scan func(fn func(h entity.Header) error) error) error {
	ix.members.Clear()
	ix.types.Clear()

	// persisted entries may name records that no longer exist
	var result *multierror.Error
	if err := clearMap(ix.citing); err != nil {
		result = multierror.Append(result, err)
	}
	if err := clearMap(ix.patternOf); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		Logger.Errorf("clearing index maps failed: %v", err)
		return err
	}

	if err := scan(func(h entity.Header) error {
		return ix.Update(nil, h)
	}); err != nil {
		Logger.Errorf("index rebuild failed: %v", err)
		return err
	}

	Logger.Infof("index rebuilt: %d concepts, %d patterns, %d semantics, %d stamps",
		ix.CountOfType(entity.ConceptChronologyToken),
		ix.CountOfType(entity.PatternChronologyToken),
		ix.CountOfType(entity.SemanticChronologyToken),
		ix.CountOfType(entity.StampChronologyToken))
	return nil
}

// clearMap removes every value of m
func clearMap[T any](m db.SpinedDB[T]) error {
	var nids []int32
	if err := m.ForEach(func(nid int32, _ T) bool {
		nids = append(nids, nid)
		return true
	}); err != nil {
		return err
	}
	for _, nid := range nids {
		if _, err := m.Remove(nid); err != nil {
			return err
		}
	}
	return nil
}

// Save persists the citation and pattern maps
func (ix *Index) Save() error {
	var result *multierror.Error
	if err := ix.citing.Save(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := ix.patternOf.Save(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Close saves and closes both maps
func (ix *Index) Close() error {
	var result *multierror.Error
	if err := ix.citing.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := ix.patternOf.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
