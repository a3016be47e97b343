package index

import (
	"sync"

	"github.com/weaviate/sroar"
)

// nids are stored with the sign bit flipped, so the bitmap order is the nid order
const nidOffset = 0x80000000

func toKey(nid int32) uint64   { return uint64(uint32(nid) ^ nidOffset) }
func fromKey(key uint64) int32 { return int32(uint32(key) ^ nidOffset) }

// NidSet is a compressed set of nids backed by a roaring bitmap.
//
// Thread-safety: all methods are safe for concurrent use. Readers share a
// read lock, writers are serialized.
type NidSet struct {
	mu sync.RWMutex
	bm *sroar.Bitmap
}

// NewNidSet creates a set holding nids
func NewNidSet(nids ...int32) *NidSet {
	s := &NidSet{bm: sroar.NewBitmap()}
	for _, nid := range nids {
		s.bm.Set(toKey(nid))
	}
	return s
}

// Add inserts nid and reports whether it was absent before
func (s *NidSet) Add(nid int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bm.Set(toKey(nid))
}

// Remove deletes nid and reports whether it was present
func (s *NidSet) Remove(nid int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bm.Remove(toKey(nid))
}

// Contains reports whether nid is in the set
func (s *NidSet) Contains(nid int32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.Contains(toKey(nid))
}

// Len returns the number of nids in the set
func (s *NidSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.GetCardinality()
}

// Slice returns the nids of the set in ascending order
func (s *NidSet) Slice() []int32 {
	s.mu.RLock()
	keys := s.bm.ToArray()
	s.mu.RUnlock()

	nids := make([]int32, len(keys))
	for i, k := range keys {
		nids[i] = fromKey(k)
	}
	return nids
}

// Clear removes all nids
func (s *NidSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bm = sroar.NewBitmap()
}
