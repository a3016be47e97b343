package lstore

import (
	"bytes"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/ValentinKolb/tks/lib/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// notification is one merged record waiting for delivery to the collaborators
type notification struct {
	record   []byte
	activity entity.ActivityKind
}

// --------------------------------------------------------------------------
// Write path
// --------------------------------------------------------------------------

func (s *storeImpl) NidFor(uuids ...uuid.UUID) (int32, error) {
	nid, err := s.registry.NidFor(uuids...)
	return nid, store.WrapError(store.RetCConsistency, err, "identity of %v", uuids)
}

func (s *storeImpl) WriteChronology(c entity.Chronology, activity entity.ActivityKind) error {
	return s.Write(c.Bytes(), activity)
}

// Write merges record into the stored chronology of its nid.
//
// Thread-safety: Write may be called concurrently. Writes of the same nid are
// merged, so none is lost; their index updates are serialized by a striped
// lock keyed by nid.
func (s *storeImpl) Write(record []byte, activity entity.ActivityKind) error {
	if s.closed.Load() {
		return store.NewError(store.RetCInternalError, "store is closed")
	}

	rec, err := entity.ParseRecord(record)
	if err != nil {
		return store.WrapError(store.RetCConsistency, err, "parsing record")
	}
	// the merge fast path stores the incoming slice as is
	merged, err := s.mergeAndIndex(rec.Nid(), bytes.Clone(record))
	if err != nil {
		return err
	}
	s.notify(merged, activity)
	return nil
}

// mergeAndIndex merges incoming into nid and updates the indexes while holding
// the lock of nid, so index updates of one nid are applied in merge order
func (s *storeImpl) mergeAndIndex(nid int32, incoming []byte) ([]byte, error) {
	unlock := s.lockNid(nid)
	defer unlock()

	merged, previous, err := s.merge(nid, incoming)
	if err != nil {
		return nil, err
	}
	if err := s.afterWrite(previous, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// lockNid locks the stripe of nid and returns its unlock function. Callers
// must not hold another stripe.
func (s *storeImpl) lockNid(nid int32) func() {
	mu := &s.nidLocks[uint32(nid)%nidLockStripes]
	mu.Lock()
	return mu.Unlock
}

// merge accumulates incoming into the slot of nid and returns the installed
// record together with the header stored before
func (s *storeImpl) merge(nid int32, incoming []byte) ([]byte, *entity.Header, error) {
	var (
		previous *entity.Header
		attempts int
	)
	merged, err := s.records.Accumulate(nid, func(old []byte, loaded bool) ([]byte, bool, error) {
		attempts++
		previous = nil
		if loaded {
			h, err := headerOf(old)
			if err != nil {
				return nil, false, err
			}
			previous = &h
		}
		out, err := s.merger.Merge(nid, old, incoming)
		return out, false, err
	})
	if attempts > 1 {
		s.metrics.retries.Add(attempts - 1)
	}
	if err != nil {
		return nil, nil, store.WrapError(store.RetCConsistency, err, "merging nid %d", nid)
	}
	s.metrics.writes.Inc()
	s.metrics.recordBytes.Update(float64(len(merged)))
	return merged, previous, nil
}

// afterWrite updates the indexes for a record that replaced previous
func (s *storeImpl) afterWrite(previous *entity.Header, record []byte) error {
	current, err := headerOf(record)
	if err != nil {
		return store.WrapError(store.RetCInternalError, err, "decoding merged header")
	}
	if err := s.index.Update(previous, current); err != nil {
		return store.WrapError(store.RetCIO, err, "indexing nid %d", current.Nid)
	}
	if s.isPathOrigin(current) || (previous != nil && s.isPathOrigin(*previous)) {
		if err := s.refreshPath(current.ReferencedNid); err != nil {
			Logger.Warningf("refreshing origins of path %d: %v", current.ReferencedNid, err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Notification
// --------------------------------------------------------------------------

func (s *storeImpl) notify(record []byte, activity entity.ActivityKind) {
	if len(s.journals) == 0 {
		if _, noop := s.indexer.(store.NoopIndexer); noop {
			return
		}
	}
	if !s.events.Push(notification{record: record, activity: activity}) {
		Logger.Warningf("store is closing, dropped notification of %s write", activity)
	}
}

// dispatch delivers notifications to the journal writers and then to the search
// indexer, one at a time in the order they were queued. Failures are logged
// and counted; they never undo the write.
func (s *storeImpl) dispatch() {
	defer close(s.dispatching)

	for n := range s.events.Recv() {
		s.deliver(n)
		s.events.Ack()
	}
}

func (s *storeImpl) deliver(n notification) {
	c, err := entity.DecodeChronology(n.record)
	if err != nil {
		s.metrics.notifyErrors.Inc()
		Logger.Errorf("cannot decode record for notification: %v", err)
		return
	}
	for _, w := range s.journals {
		if err := w.Write(c, n.activity); err != nil {
			s.metrics.notifyErrors.Inc()
			Logger.Errorf("journal write of nid %d failed: %v", c.Nid(), err)
		}
	}
	if err := s.indexer.Index(c); err != nil {
		s.metrics.notifyErrors.Inc()
		Logger.Errorf("search index update of nid %d failed: %v", c.Nid(), err)
	}
	s.metrics.notified.Inc()
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// headerOf decodes the header of a binary record
func headerOf(record []byte) (entity.Header, error) {
	rec, err := entity.ParseRecord(record)
	if err != nil {
		return entity.Header{}, err
	}
	h, err := entity.DecodeHeader(rec.Header)
	if err != nil {
		return entity.Header{}, errors.Wrap(err, "decoding header")
	}
	return h, nil
}
