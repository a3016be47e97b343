// Package identity implements the identity registry of a tKS store: the
// mapping between the stable uuids naming a component and the dense int32 nid
// used as key by every other package.
//
// Nids are allocated from a persisted counter starting at math.MinInt32+1 and
// are never reused. One component may carry several uuids (aliases); all of
// them map to the same nid. NidFor enforces this: it refuses a set of uuids
// that already map to different nids with ErrIdentityConflict, while
// Consolidate repairs such a state by picking the smallest nid as canonical.
//
// Persistence:
//   - uuidNidMap.db: a bbolt file with one bucket of 16 byte uuid -> 4 byte nid pairs
//   - nextNidKeyFile: the next nid to allocate as decimal text
//
// Only mappings created since the last Save are written. The pairs are loaded
// into xsync maps by a background goroutine started in Open; lookups wait for
// it through a latch that is closed exactly once.
package identity
