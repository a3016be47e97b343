package lstore

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/ValentinKolb/tks/lib/store"
)

// --------------------------------------------------------------------------
// Administrative repair
// --------------------------------------------------------------------------

// None of these operations notify journal writers or the search indexer.

// Erase removes the record of nid from the records and every index entry it
// contributed, including its own citation. Citations other semantics hold
// against nid are kept; MergeThenErase moves them.
func (s *storeImpl) Erase(nid int32) error {
	unlock := s.lockNid(nid)
	defer unlock()

	var previous *entity.Header
	if _, err := s.records.Accumulate(nid, func(old []byte, loaded bool) ([]byte, bool, error) {
		previous = nil
		if loaded {
			h, err := headerOf(old)
			if err != nil {
				// an undecodable record can still be erased
				Logger.Warningf("erasing undecodable record of nid %d: %v", nid, err)
				return nil, true, nil
			}
			previous = &h
		}
		return nil, true, nil
	}); err != nil {
		return store.WrapError(store.RetCIO, err, "erasing nid %d", nid)
	}

	if previous != nil {
		if err := s.index.Remove(*previous); err != nil {
			return store.WrapError(store.RetCIO, err, "removing nid %d from the index", nid)
		}
		if s.isPathOrigin(*previous) {
			if err := s.refreshPath(previous.ReferencedNid); err != nil {
				Logger.Warningf("refreshing origins of path %d: %v", previous.ReferencedNid, err)
			}
		}
	}
	s.metrics.repairs.Inc()
	Logger.Infof("erased nid %d", nid)
	return nil
}

// PutRaw replaces the record of nid without merging
func (s *storeImpl) PutRaw(nid int32, record []byte) error {
	rec, err := entity.ParseRecord(record)
	if err != nil {
		return store.WrapError(store.RetCConsistency, err, "parsing record")
	}
	if rec.Nid() != nid {
		return store.NewError(store.RetCConsistency, fmt.Sprintf("record of nid %d put at nid %d", rec.Nid(), nid))
	}

	incoming := bytes.Clone(record)
	unlock := s.lockNid(nid)
	defer unlock()

	var previous *entity.Header
	if _, err := s.records.Accumulate(nid, func(old []byte, loaded bool) ([]byte, bool, error) {
		previous = nil
		if loaded {
			if h, err := headerOf(old); err == nil {
				previous = &h
			}
		}
		return incoming, false, nil
	}); err != nil {
		return store.WrapError(store.RetCIO, err, "putting nid %d", nid)
	}

	if err := s.afterWrite(previous, incoming); err != nil {
		return err
	}
	s.metrics.repairs.Inc()
	return nil
}

// MergeThenErase merges the chronology of eraseNid into intoNid. Semantics
// citing eraseNid are rewritten to cite intoNid, the identities of eraseNid
// move to intoNid and eraseNid is erased.
func (s *storeImpl) MergeThenErase(eraseNid, intoNid int32) error {
	if eraseNid == intoNid {
		return store.NewError(store.RetCConsistency, fmt.Sprintf("cannot merge nid %d into itself", eraseNid))
	}

	c, err := s.chronology(eraseNid)
	if err != nil {
		return err
	}
	c.Header.Nid = intoNid
	if _, err := s.mergeAndIndex(intoNid, c.Bytes()); err != nil {
		return err
	}

	citing, err := s.index.CitingNids(eraseNid)
	if err != nil {
		return store.WrapError(store.RetCIO, err, "reading citations of nid %d", eraseNid)
	}
	for _, semanticNid := range citing {
		if err := s.retarget(semanticNid, eraseNid, intoNid); err != nil {
			return err
		}
	}
	if err := s.index.DropCitations(eraseNid); err != nil {
		return store.WrapError(store.RetCIO, err, "dropping citations of nid %d", eraseNid)
	}

	if err := s.registry.Remap(eraseNid, intoNid); err != nil {
		return store.WrapError(store.RetCConsistency, err, "moving identities of nid %d", eraseNid)
	}
	if err := s.Erase(eraseNid); err != nil {
		return err
	}
	Logger.Infof("merged nid %d into %d, moved %d citations", eraseNid, intoNid, len(citing))
	return nil
}

// retarget rewrites the referenced component of a semantic
func (s *storeImpl) retarget(semanticNid, from, to int32) error {
	unlock := s.lockNid(semanticNid)
	defer unlock()

	var previous *entity.Header
	record, err := s.records.Accumulate(semanticNid, func(old []byte, loaded bool) ([]byte, bool, error) {
		previous = nil
		if !loaded {
			return nil, true, nil
		}
		c, err := entity.DecodeChronology(old)
		if err != nil {
			return nil, false, err
		}
		if c.Header.Token != entity.SemanticChronologyToken || c.Header.ReferencedNid != from {
			return old, false, nil
		}
		h := c.Header
		previous = &h
		c.Header.ReferencedNid = to
		return c.Bytes(), false, nil
	})
	if err != nil {
		return store.WrapError(store.RetCConsistency, err, "retargeting semantic %d", semanticNid)
	}
	if previous == nil {
		return nil
	}
	return s.afterWrite(previous, record)
}
