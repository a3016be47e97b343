package store

import (
	"fmt"
	"io"

	"github.com/ValentinKolb/tks/lib/coordinate"
	"github.com/ValentinKolb/tks/lib/db"
	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/ValentinKolb/tks/lib/merge"
	"github.com/ValentinKolb/tks/lib/recovery"
	"github.com/ValentinKolb/tks/lib/txn"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the store context of one data directory. It owns the identity
// registry, the spined maps, the indexes and the collaborators that are
// notified of writes.
//
// Operations that fail return an *Error; errors of the leaf packages stay
// reachable with errors.Is through Unwrap.
type IStore interface {

	// --------------------------------------------------------------------------
	// Identity
	// --------------------------------------------------------------------------

	// NidFor returns the nid of a component identified by uuids, allocating one if needed.
	NidFor(uuids ...uuid.UUID) (nid int32, err error)

	// --------------------------------------------------------------------------
	// Write path
	// --------------------------------------------------------------------------

	// Write merges a binary record into the stored chronology of its nid, updates
	// the indexes and notifies journal writers and the search indexer.
	Write(record []byte, activity entity.ActivityKind) (err error)

	// WriteChronology encodes c and writes it like Write.
	WriteChronology(c entity.Chronology, activity entity.ActivityKind) (err error)

	// Begin starts a transaction whose stamps are protected from recovery until it finishes.
	Begin(name string) (t *txn.Transaction)

	// --------------------------------------------------------------------------
	// Read path
	// --------------------------------------------------------------------------

	// Get returns the raw record of nid.
	Get(nid int32) (record []byte, loaded bool, err error)

	// Chronology returns the decoded record of nid.
	Chronology(nid int32) (c entity.Chronology, loaded bool, err error)

	// StampFor returns the current value of a stamp.
	StampFor(stampNid int32) (s entity.Stamp, loaded bool, err error)

	// Latest resolves the latest version of nid visible at coord.
	Latest(nid int32, coord coordinate.Coordinate) (v entity.Version, found bool, err error)

	// Visible returns every version of nid visible at coord.
	Visible(nid int32, coord coordinate.Coordinate) (versions []entity.Version, err error)

	// CitingNids returns the semantics that reference nid, in ascending order.
	CitingNids(nid int32) (nids []int32, err error)

	// SemanticNidsOfPattern returns the semantics written with patternNid.
	SemanticNidsOfPattern(patternNid int32) (nids []int32)

	// NidsOfType returns the nids of all chronologies of a format.
	NidsOfType(token entity.FormatToken) (nids []int32)

	// IsCanceled reports whether a stamp belongs to a canceled transaction.
	IsCanceled(stampNid int32) (canceled bool)

	// ForEach calls fn for every record in ascending nid order until fn returns false.
	ForEach(fn func(nid int32, record []byte) bool) (err error)

	// --------------------------------------------------------------------------
	// Administrative repair (not journaled)
	// --------------------------------------------------------------------------

	// Erase removes the record of nid and every index entry it contributed.
	Erase(nid int32) (err error)

	// PutRaw replaces the record of nid without merging.
	PutRaw(nid int32, record []byte) (err error)

	// MergeThenErase merges the chronology of eraseNid into intoNid, moves every
	// citation and identity of eraseNid to intoNid and erases eraseNid.
	MergeThenErase(eraseNid, intoNid int32) (err error)

	// Recover cancels abandoned uncommitted stamps and refreshes the canceled set.
	Recover() (report recovery.Report, err error)

	// --------------------------------------------------------------------------
	// Lifecycle
	// --------------------------------------------------------------------------

	// GetInfo returns statistics of the store and its maps.
	GetInfo() (info Info)

	// WriteMetrics writes the store metrics in Prometheus text format.
	WriteMetrics(w io.Writer)

	// Sync blocks until every write notification issued so far was delivered.
	Sync() (err error)

	// Save persists the registry, the spined maps and buffered journal entries.
	Save() (err error)

	// Close runs a final recovery pass, saves and releases all resources.
	Close() (err error)
}

// Info summarizes the state of a store
type Info struct {
	DataDir     string
	Identities  int
	NextNid     int64
	Concepts    int
	Patterns    int
	Semantics   int
	Stamps      int
	Canceled    int
	OpenTxns    int
	Merge       merge.Stats
	Notified    uint64
	NotifyFails uint64
	Records     db.DatabaseInfo
	Citing      db.DatabaseInfo
	PatternOf   db.DatabaseInfo
	StartupErr  string
}

// --------------------------------------------------------------------------
// Collaborators
// --------------------------------------------------------------------------

// SearchIndexer is notified of every merged chronology after the journal writers
type SearchIndexer interface {
	Index(c entity.Chronology) error
}

// NoopIndexer is the SearchIndexer used when none is configured
type NoopIndexer struct{}

func (NoopIndexer) Index(entity.Chronology) error { return nil }

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and the underlying cause.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the cause
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new Error with the given code around err. A nil err returns nil.
func WrapError(code RetCode, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the store.
	RetCConsistency                         // 3: Malformed data or conflicting state.
	RetCIO                                  // 4: Reading or writing a file failed.
	RetCStartup                             // 5: The store could not be (fully) opened.
	RetCNotFound                            // 6: The nid holds no record.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCConsistency:
		return "Consistency"
	case RetCIO:
		return "IO"
	case RetCStartup:
		return "Startup"
	case RetCNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}
