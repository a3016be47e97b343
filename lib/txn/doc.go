// Package txn implements transactions that own stamps.
//
// A transaction creates its stamps with the uncommitted time sentinel. While
// the transaction is open the stamps are claimed, so the recovery supervisor
// leaves them alone. Commit rewrites every stamp with the commit time, Cancel
// rewrites them as canceled; both release the claims.
//
// Core Functionality:
//   - Stamp creation with a claim held by the transaction
//   - Commit and cancel that rewrite the stamp records in place
//   - Claim lookup for the recovery supervisor (Manager.Claims)
//
// Implementation Approach:
//
//	Stamps are written through the StampStore interface, which the store
//	implements. The stamp nid is registered and claimed before the stamp
//	record is written, so there is no window in which a recovery run sees an
//	uncommitted stamp nobody claims.
//
//	Claims are not persisted. A process that dies with open transactions
//	leaves uncommitted stamps behind; the next start cancels them.
//
// Usage Example:
//
//	t := store.Transactions().Begin("import")
//	stampNid, err := t.NewStamp(entity.StatusActive, authorNid, moduleNid, pathNid)
//	if err != nil {
//	    // Handle error
//	}
//
//	// write versions under stampNid
//	// ...
//
//	if err := t.Commit(time.Now().UnixMilli()); err != nil {
//	    // Handle error
//	}
//
// Thread Safety:
//
//	The manager and its transactions are safe for concurrent use. The methods
//	of one transaction are serialized.
package txn
