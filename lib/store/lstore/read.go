package lstore

import (
	"fmt"

	"github.com/ValentinKolb/tks/lib/common"
	"github.com/ValentinKolb/tks/lib/coordinate"
	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/ValentinKolb/tks/lib/store"
)

// --------------------------------------------------------------------------
// Read path
// --------------------------------------------------------------------------

func (s *storeImpl) Get(nid int32) ([]byte, bool, error) {
	record, ok, err := s.records.Get(nid)
	return record, ok, store.WrapError(store.RetCIO, err, "reading nid %d", nid)
}

func (s *storeImpl) Chronology(nid int32) (entity.Chronology, bool, error) {
	record, ok, err := s.Get(nid)
	if err != nil || !ok {
		return entity.Chronology{}, false, err
	}
	c, err := entity.DecodeChronology(record)
	if err != nil {
		return entity.Chronology{}, false, store.WrapError(store.RetCConsistency, err, "decoding nid %d", nid)
	}
	return c, true, nil
}

// chronology is Chronology for callers that need the record to exist
func (s *storeImpl) chronology(nid int32) (entity.Chronology, error) {
	c, ok, err := s.Chronology(nid)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, store.NewError(store.RetCNotFound, fmt.Sprintf("no record for nid %d", nid))
	}
	return c, nil
}

func (s *storeImpl) StampFor(stampNid int32) (entity.Stamp, bool, error) {
	c, ok, err := s.Chronology(stampNid)
	if err != nil || !ok {
		return entity.Stamp{}, false, err
	}
	if !c.IsStamp() {
		return entity.Stamp{}, false, store.NewError(store.RetCConsistency, fmt.Sprintf("nid %d is a %s, not a stamp", stampNid, c.Token()))
	}
	st, ok := c.CurrentStamp()
	return st, ok, nil
}

func (s *storeImpl) Latest(nid int32, coord coordinate.Coordinate) (entity.Version, bool, error) {
	c, ok, err := s.Chronology(nid)
	if err != nil || !ok {
		return entity.Version{}, false, err
	}
	v, found, err := s.resolver.Latest(c, coord)
	return v, found, store.WrapError(store.RetCConsistency, err, "resolving nid %d at %s", nid, coord)
}

func (s *storeImpl) Visible(nid int32, coord coordinate.Coordinate) ([]entity.Version, error) {
	c, ok, err := s.Chronology(nid)
	if err != nil || !ok {
		return nil, err
	}
	versions, err := s.resolver.Visible(c, coord)
	return versions, store.WrapError(store.RetCIO, err, "resolving nid %d at %s", nid, coord)
}

func (s *storeImpl) CitingNids(nid int32) ([]int32, error) {
	nids, err := s.index.CitingNids(nid)
	return nids, store.WrapError(store.RetCIO, err, "reading citations of nid %d", nid)
}

func (s *storeImpl) SemanticNidsOfPattern(patternNid int32) []int32 {
	return s.index.SemanticNidsOfPattern(patternNid)
}

func (s *storeImpl) NidsOfType(token entity.FormatToken) []int32 {
	return s.index.NidsOfType(token)
}

func (s *storeImpl) IsCanceled(stampNid int32) bool {
	return s.canceled.IsCanceled(stampNid)
}

func (s *storeImpl) ForEach(fn func(nid int32, record []byte) bool) error {
	return store.WrapError(store.RetCIO, s.records.ForEach(fn), "scanning records")
}

// --------------------------------------------------------------------------
// Path origins
// --------------------------------------------------------------------------

func (s *storeImpl) isPathOrigin(h entity.Header) bool {
	return s.cfg.PathOriginPatternNid != common.NoPathOriginPattern &&
		h.Token == entity.SemanticChronologyToken &&
		h.PatternNid == s.cfg.PathOriginPatternNid
}

// loadPaths reads the origins of every path from the semantics of the
// configured path origin pattern
func (s *storeImpl) loadPaths() error {
	if s.cfg.PathOriginPatternNid == common.NoPathOriginPattern {
		return nil
	}

	paths := make(map[int32]bool)
	for _, nid := range s.index.SemanticNidsOfPattern(s.cfg.PathOriginPatternNid) {
		c, ok, err := s.Chronology(nid)
		if err != nil {
			return err
		}
		if ok {
			paths[c.Header.ReferencedNid] = true
		}
	}
	for path := range paths {
		if err := s.refreshPath(path); err != nil {
			return err
		}
	}
	Logger.Infof("loaded origins of %d paths", len(paths))
	return nil
}

// refreshPath replaces the origins of pathNid with the positions carried by
// the newest committed version of every origin semantic referencing it
func (s *storeImpl) refreshPath(pathNid int32) error {
	citing, err := s.index.CitingNids(pathNid)
	if err != nil {
		return err
	}

	var origins []entity.StampPosition
	for _, nid := range citing {
		c, ok, err := s.Chronology(nid)
		if err != nil {
			return err
		}
		if !ok || !s.isPathOrigin(c.Header) {
			continue
		}
		v, found, err := s.newestVersion(c)
		if err != nil {
			return err
		}
		if found {
			origins = append(origins, coordinate.OriginsFromFields(v.Fields)...)
		}
	}
	s.paths.SetOrigins(pathNid, origins...)
	return nil
}

// newestVersion returns the committed version with the highest stamp time,
// ignoring paths and modules. Origins have to be known before any path can
// be resolved, so the resolver cannot be used here.
func (s *storeImpl) newestVersion(c entity.Chronology) (entity.Version, bool, error) {
	var (
		newest entity.Version
		found  bool
	)
	for _, v := range c.Versions {
		st, ok, err := s.StampFor(v.StampNid)
		if err != nil {
			return newest, false, err
		}
		if !ok || st.IsCanceled() || st.IsUncommitted() || s.canceled.IsCanceled(v.StampNid) {
			continue
		}
		if !found || st.Time > newest.Time {
			newest, found = v.WithStamp(st), true
		}
	}
	return newest, found, nil
}
