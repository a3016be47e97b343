package internal

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// --------------------------------------------------------------------------
// Event Types are used to signal spine state changes to the flusher
// --------------------------------------------------------------------------

type EventType int

const (
	EventTDirty   EventType = iota // a clean spine received its first write
	EventTFlushed                  // a spine was written by Save
)

func (e EventType) String() string {
	switch e {
	case EventTDirty:
		return "Dirty"
	case EventTFlushed:
		return "Flushed"
	default:
		return "Unknown"
	}
}

type Event struct {
	Type  EventType
	Spine int
	At    int64 // unix nanos
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Spine: %d}", e.Type, e.Spine)
}

// --------------------------------------------------------------------------
// Nid addressing
// --------------------------------------------------------------------------

// nids are shifted into unsigned space so the first nid maps to spine 0
const nidOffset = 0x80000000

// Location returns the spine index and the slot within the spine for nid
func Location(nid int32, spineSize int) (spine, slot int) {
	u := uint32(nid) ^ nidOffset
	return int(u / uint32(spineSize)), int(u % uint32(spineSize))
}

// NidAt is the inverse of Location
func NidAt(spine, slot, spineSize int) int32 {
	u := uint32(spine)*uint32(spineSize) + uint32(slot)
	return int32(u ^ nidOffset)
}

// --------------------------------------------------------------------------
// Spine Type (partition of the nid space)
// --------------------------------------------------------------------------

// Slot is the immutable content of one array position. Writers replace the
// whole slot with a compare-and-swap, they never modify it.
type Slot[T any] struct {
	Value T
}

// Spine is a fixed-size array of slots backed by one file.
//
// The slots are loaded from disk once, guarded by Gate, and stay in memory.
// Gate also serializes flushes of this spine; slot access itself is lock-free.
type Spine[T any] struct {
	Index int
	Slots []atomic.Pointer[Slot[T]]
	Gate  *semaphore.Weighted

	loaded atomic.Bool
	dirty  atomic.Bool
	count  atomic.Int64
}

// NewSpine creates an empty, not yet loaded spine
func NewSpine[T any](index, size int) *Spine[T] {
	return &Spine[T]{
		Index: index,
		Slots: make([]atomic.Pointer[Slot[T]], size),
		Gate:  semaphore.NewWeighted(1),
	}
}

// Loaded reports whether the spine's file content was read
func (s *Spine[T]) Loaded() bool { return s.loaded.Load() }

// MarkLoaded flags the spine as read; must be called while holding Gate
func (s *Spine[T]) MarkLoaded() { s.loaded.Store(true) }

// MarkDirty flags the spine as modified. It reports whether the spine was
// clean before, i.e. whether this is the first write since the last flush.
func (s *Spine[T]) MarkDirty() bool { return s.dirty.CompareAndSwap(false, true) }

// TakeDirty clears the dirty flag and reports whether it was set.
// A writer racing with a flush sets the flag again after the flush snapshot.
func (s *Spine[T]) TakeDirty() bool { return s.dirty.CompareAndSwap(true, false) }

// IsDirty reports whether the spine has unflushed writes
func (s *Spine[T]) IsDirty() bool { return s.dirty.Load() }

// AddCount adjusts the number of occupied slots
func (s *Spine[T]) AddCount(delta int64) { s.count.Add(delta) }

// Count returns the number of occupied slots
func (s *Spine[T]) Count() int64 { return s.count.Load() }
