// Package lstore implements the store context of one data directory based on the
// store.IStore interface. It wires the identity registry, three spined maps, the
// merge engine, the citation and pattern index, the coordinate resolver, the
// transaction manager and the recovery supervisor into one object; there is no
// global state, several stores can be open in one process.
//
// Directory Layout:
//
//	<dataDir>/uuidNidMap.db           uuid to nid pairs (bbolt)
//	<dataDir>/nextNidKeyFile          nid allocation counter (text)
//	<dataDir>/byteArrayMap/           binary chronology records, one per nid
//	<dataDir>/patternNidMap/          pattern nid of every semantic
//	<dataDir>/citingComponentsMap/    sorted semantic nids citing a component
//
// Write Path:
//
//   - Write parses the incoming record and accumulates it into the slot of its
//     nid with merge.Merger.Merge. Concurrent writers of the same nid retry the
//     merge against the value that won; writers of other nids never wait.
//
//   - After the slot was installed, the header stored before and the merged
//     header are handed to the index, which moves citations and pattern
//     membership. Origin semantics of paths also refresh the path graph.
//
//   - Finally the merged record is queued for notification. A single dispatcher
//     goroutine delivers the queue, in order, to every journal.Writer and then
//     to the store.SearchIndexer. Delivery failures are logged and counted but
//     never undo a write. Sync waits until the queue is drained. Each queued
//     record is the complete merged chronology, so a collaborator that receives
//     two writes of one nid out of order still ends up with all versions.
//
// Startup:
//
//   - Open opens the registry and the spined maps; a failure here is fatal.
//   - The index is rebuilt from a parallel scan of all records. The persisted
//     citation and pattern maps are cleared first, so entries of lost records
//     do not survive.
//   - Once the identity preload finished, the recovery supervisor cancels every
//     uncommitted stamp no transaction claims and fills the canceled set the
//     merge engine consults.
//   - If StoreConfig.PathOriginPatternNid is set, path origins are read from the
//     semantics of that pattern.
//
// Failures of the last three steps are logged and reported in Info.StartupErr;
// the store stays available for byte-level operations.
//
// Stamps and Transactions:
//
//	The store is the txn.StampStore of its transaction manager and the
//	recovery.StampStore of its supervisor. A stamp is rewritten in place on
//	commit and cancel; a canceled stamp joins the canceled set before its record
//	is rewritten, so merges from then on drop the versions written under it.
//
// Administrative Repair:
//
//	Erase, PutRaw and MergeThenErase bypass the merge (PutRaw) or remove data
//	(Erase, MergeThenErase) and are not journaled.
//
// Metrics:
//
//	Every store owns a VictoriaMetrics set (see WithMetricsSet) with write,
//	merge, retry and notification counters and a histogram of merged record
//	sizes; WriteMetrics renders it in Prometheus text format.
//
// Usage Example:
//
//	cfg := common.DefaultStoreConfig("/var/lib/tks")
//	st, err := lstore.Open(cfg, lstore.WithJournal(writer))
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	t := st.Begin("import")
//	stampNid, err := t.NewStamp(entity.StatusActive, author, module, path)
//	...
//	err = st.WriteChronology(chronology, entity.ActivityLocalEdit)
//	err = t.Commit(time.Now().UnixMilli())
//
//	v, found, err := st.Latest(nid, coordinate.Latest(path))
//
// Thread Safety:
//
//	All methods may be called concurrently. The merge and the index update of
//	one nid run under a striped lock keyed by nid. Close must be called exactly once
//	after all other calls returned; further calls to Close are no-ops.
package lstore
