// Package journal implements change-set journals. Every successful merge of
// a store is handed to its journal writers together with the activity that
// caused it; a FileWriter appends these writes as msgpack entries, and Replay
// reads them back, e.g. to load a change set into another store.
package journal
