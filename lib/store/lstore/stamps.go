package lstore

import (
	"fmt"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/ValentinKolb/tks/lib/store"
	"github.com/google/uuid"
)

// The store is the stamp store of its transactions and its recovery supervisor.

// StampNid registers the uuid of a new stamp
func (s *storeImpl) StampNid(id uuid.UUID) (int32, error) {
	return s.NidFor(id)
}

// WriteStamp writes the chronology of a new stamp
func (s *storeImpl) WriteStamp(nid int32, id uuid.UUID, st entity.Stamp) error {
	c := entity.NewChronology(entity.NewStampHeader(nid, id), entity.NewStampVersion(st))
	return s.Write(c.Bytes(), entity.ActivityLocalEdit)
}

// StampNids returns the nids of all stamp chronologies
func (s *storeImpl) StampNids() []int32 {
	return s.index.NidsOfType(entity.StampChronologyToken)
}

// RewriteStamp replaces the versions of a stamp chronology with a single
// version carrying st. A canceled stamp joins the canceled set before the
// rewrite, so merges racing with it already drop its versions.
func (s *storeImpl) RewriteStamp(nid int32, st entity.Stamp) error {
	if st.IsCanceled() {
		s.canceled.Add(nid)
	}
	_, _, err := s.rewriteStamp(nid, func(entity.Stamp) (entity.Stamp, bool) {
		return st, true
	})
	return err
}

// CancelUncommitted rewrites the stamp nid as canceled unless it was committed
// or canceled in the meantime. The check and the rewrite are one accumulation,
// so a concurrent commit is never overwritten.
func (s *storeImpl) CancelUncommitted(nid int32) (entity.Stamp, bool, error) {
	st, changed, err := s.rewriteStamp(nid, func(current entity.Stamp) (entity.Stamp, bool) {
		if !current.IsUncommitted() {
			return current, false
		}
		return current.Canceled(), true
	})
	if changed {
		s.canceled.Add(nid)
	}
	return st, changed, err
}

// rewriteStamp replaces the stamp chronology of nid with a single version
// computed by fn from the current value. fn returns false to keep the record.
func (s *storeImpl) rewriteStamp(nid int32, fn func(current entity.Stamp) (entity.Stamp, bool)) (entity.Stamp, bool, error) {
	var (
		found   bool
		changed bool
		result  entity.Stamp
	)
	record, err := s.records.Accumulate(nid, func(old []byte, loaded bool) ([]byte, bool, error) {
		changed = false
		if found = loaded; !loaded {
			return nil, true, nil
		}
		c, err := entity.DecodeChronology(old)
		if err != nil {
			return nil, false, err
		}
		if !c.IsStamp() {
			return nil, false, fmt.Errorf("nid %d is a %s", nid, c.Token())
		}
		current, _ := c.CurrentStamp()
		next, ok := fn(current)
		if result = next; !ok {
			return old, false, nil
		}
		changed = true
		return entity.NewChronology(c.Header, entity.NewStampVersion(next)).Bytes(), false, nil
	})
	if err != nil {
		return result, false, store.WrapError(store.RetCConsistency, err, "rewriting stamp %d", nid)
	}
	if !found {
		return result, false, store.NewError(store.RetCNotFound, fmt.Sprintf("no stamp with nid %d", nid))
	}
	if !changed {
		return result, false, nil
	}

	activity := entity.ActivityLocalEdit
	if result.IsCanceled() {
		activity = entity.ActivityDataRepair
	} else if err := s.loadPaths(); err != nil {
		// origins written under this stamp become visible with the commit
		Logger.Warningf("reloading path origins after commit of stamp %d: %v", nid, err)
	}
	s.notify(record, activity)
	return result, true, nil
}
