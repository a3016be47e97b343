// Package store defines the store context of the terminology knowledge store:
// the IStore interface, the collaborators notified of writes and the unified
// error type.
//
// The package focuses on:
//   - A single interface (IStore) for identity, write, read and repair operations
//   - Constructor-injected collaborators instead of global registries
//   - Standardized error reporting with typed return codes
//
// Key Components:
//
//   - IStore Interface: The operations of one data directory. Writes merge a
//     binary record into the stored chronology of its nid; reads return raw
//     records, decoded chronologies or the version visible at a STAMP coordinate.
//     Administrative repair operations bypass the merge and are not journaled.
//
//   - Error System: Every failing operation returns an *Error carrying a RetCode
//     (Consistency, IO, Startup, NotFound, UnsupportedOperation, InternalError)
//     and the underlying cause. Sentinel errors of the leaf packages, like
//     identity.ErrIdentityConflict or coordinate.ErrAmbiguousLatest, stay
//     reachable with errors.Is.
//
//   - SearchIndexer: An external full-text index notified after the journal
//     writers for every merged chronology. NoopIndexer is used when none is set.
//
// Implementations:
//
//	- Local Store (lstore): The store backed by a directory of spined maps and a
//	  bbolt identity file. Available in the
//	  "github.com/ValentinKolb/tks/lib/store/lstore" package.
package store
