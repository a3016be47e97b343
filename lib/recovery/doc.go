// Package recovery implements the recovery supervisor of a tKS store.
//
// Stamps are written with the uncommitted time sentinel and only receive a
// real time when their transaction commits. A process that stops with open
// transactions leaves such stamps behind. The supervisor scans every stamp on
// open (after the identity preload finished) and once more on close:
//
//   - an uncommitted stamp that no open transaction claims is rewritten in
//     place as canceled (status Canceled, time sentinel "canceled"); the
//     store checks and rewrites in one step, so a transaction committing
//     while the supervisor looks at its stamp keeps its commit
//   - every canceled stamp is added to the CanceledSet
//
// The CanceledSet implements merge.CanceledStamps; versions written under a
// canceled stamp are dropped by the next merge of their chronology, while the
// stamp record itself stays as the audit trail.
package recovery
