// Package spine implements a persistent sparse array indexed by nid (a SpinedDB).
// It provides a complete implementation of the db.SpinedDB interface with a focus
// on lock-free slot access, lazy loading and crash-safe persistence.
//
// The package focuses on:
//   - Lock-free concurrent access through per-slot compare-and-swap
//   - Partitioning the nid space into fixed-size spines that are loaded on first use
//   - Crash-safe spine files written via temporary file, fsync and rename
//   - Integrity checks of every spine file with a blake3 checksum
//   - Optional zstd compression and background flushing of dirty spines
//
// Key Components:
//
//   - spinedImpl: The central structure implementing db.SpinedDB. It owns the map of
//     loaded spines, the spine count and the background flusher. Values are
//     converted to and from bytes by a db.Codec, so the same engine stores raw
//     records, nid-to-nid mappings and sorted nid sets.
//
//   - Spine: A fixed-size array of atomically swapped slot pointers. A slot is
//     either empty (nil) or points to an immutable Slot value. Writers never
//     modify a Slot; they build a new one and install it with CompareAndSwap.
//     Each spine also carries a gate (a weighted semaphore of size one) that
//     serializes loading and flushing of that spine.
//
//   - spineFile: Encodes and decodes the files of one directory.
//
// Internal Mechanisms:
//
//   - Addressing: A nid is mapped to unsigned space by flipping the sign bit.
//     spine index = u / spineSize and slot = u % spineSize. The first nid of the
//     registry therefore lives in spine 0, slot 1.
//
//   - Accumulate: The read-modify-write primitive. It loads the slot, calls the
//     accumulate function with the current value and tries to install the result.
//     If another writer swapped the slot in between, the function is called again
//     with the new value. Only writers of the same slot ever retry; the number of
//     retries is reported by GetInfo.
//
//   - Dirty tracking: The first write to a clean spine marks it dirty and, when a
//     flush interval is configured, pushes an event to the flusher. Save clears the
//     dirty flag before taking its snapshot, so a write racing with the snapshot
//     marks the spine dirty again and is picked up by the next Save.
//
//   - Persistence Format: Each spine is stored in its own file "spine-<index>":
//     1. Magic number "TKSSPINE" to identify the file format
//     2. Version number (currently 1) and a flags byte (bit 0: zstd body)
//     3. The body: the slot count of the spine, the number of occupied slots and
//     for each occupied slot its index, the value length and the value bytes
//     4. A blake3-256 checksum of the body as stored
//     The file "count" records the number of spines in use. Spine files found on
//     disk beyond the recorded count are still picked up on open.
//     Note: Save does not lock the database. It produces a fuzzy snapshot that is
//     consistent per spine, not across spines.
//
// Background Flusher:
//
//   - When Options.FlushInterval is set, a single goroutine owns a heap of dirty
//     spines ordered by the time they became dirty. It is fed through a lock-free
//     event queue and never shares the heap, so it needs no locks.
//
//   - On every tick the flusher writes all spines that have been dirty for longer
//     than the interval and then updates the count file. A spine that was flushed
//     by an explicit Save is removed from the heap, unless it was written again.
//
// Thread-safety: All methods of the returned SpinedDB may be called concurrently.
// A directory must only be opened by one instance at a time.
package spine
