// Package merge implements the structural merge of two binary records of the same nid.
//
// Writers never replace a record. They hand the record they want to add to the
// store, which accumulates it into the existing record with Merger.Merge. The
// merge works on the framed arrays of the record (see package entity) and only
// decodes headers when they have to be consolidated.
//
// Algorithm:
//  1. a nil side returns the other side unchanged
//  2. byte-identical sides return the existing record
//  3. both sides are framed and validated; differing nids or chronology types fail
//  4. stamp versions are deduplicated by content, other versions by stamp nid
//     (the incoming side wins, so there is never more than one version per stamp)
//  5. diverging headers are consolidated: the identifier sets are united
//  6. versions written under a canceled stamp are dropped; the stamp's own
//     record is kept as the audit trail
//  7. versions are sorted byte-lexicographically
//  8. the record is re-encoded with the corrected version count
//
// Properties:
//   - Merge(nid, x, Merge(nid, x, y)) == Merge(nid, x, y)
//   - Merge(nid, x, y) and Merge(nid, y, x) contain the same versions as long
//     as x and y do not carry different versions for the same stamp
//
// Malformed input is fatal: Merge returns ErrMalformedRecord or ErrUnknownFormat
// and the caller must abort the write.
package merge
