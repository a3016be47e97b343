package db

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplSpine Implementation = "spine"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureGet             Feature = 1 << iota // Support for Get operations
	FeaturePut                                 // Support for Put operations
	FeatureRemove                              // Support for Remove operations
	FeatureAccumulate                          // Support for atomic Accumulate operations
	FeatureForEach                             // Support for sequential full scans
	FeatureForEachParallel                     // Support for partition-parallel full scans
	FeatureSave                                // Support for Save operations
	FeatureBackgroundFlush                     // Dirty partitions are flushed without an explicit Save
	FeatureCompression                         // Partition files are compressed
)

func (f Feature) String() string {
	switch f {
	case FeatureGet:
		return "Get"
	case FeaturePut:
		return "Put"
	case FeatureRemove:
		return "Remove"
	case FeatureAccumulate:
		return "Accumulate"
	case FeatureForEach:
		return "ForEach"
	case FeatureForEachParallel:
		return "ForEachParallel"
	case FeatureSave:
		return "Save"
	case FeatureBackgroundFlush:
		return "BackgroundFlush"
	case FeatureCompression:
		return "Compression"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Entries           int            `json:"entries"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// AccumulateFunc computes the new value of a slot from its current value.
// Returning delete=true removes the slot. A non-nil error aborts the
// accumulation and leaves the slot unchanged.
//
// The function may be called more than once when other writers interfere and
// must not modify old.
type AccumulateFunc[T any] func(old T, loaded bool) (value T, delete bool, err error)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// SpinedDB is a persistent sparse array indexed by nid. The nid space is split
// into fixed-size partitions ("spines"), each backed by its own file, loaded
// wholesale on first access and kept in memory afterwards.
//
// Methods that may have to load a spine from disk return an error for I/O
// failures. Implementations can vary in their feature support, which can be
// queried with SupportsFeature.
type SpinedDB[T any] interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put stores value for nid, replacing any existing value.
	Put(nid int32, value T) error

	// Remove deletes the value of nid. It reports whether a value existed.
	Remove(nid int32) (bool, error)

	// Accumulate atomically replaces the value of nid with the result of fn.
	// Concurrent accumulations of the same nid are retried until one of them
	// installs its result on an unchanged slot; accumulations of other nids
	// never block each other. It returns the installed value.
	Accumulate(nid int32, fn AccumulateFunc[T]) (T, error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for nid.
	// The boolean return value indicates whether a value was found.
	Get(nid int32) (value T, loaded bool, err error)

	// ForEach calls fn for every stored value in ascending nid order until fn returns false.
	ForEach(fn func(nid int32, value T) bool) error

	// ForEachParallel calls fn for every stored value. Spines are processed in
	// parallel, values within one spine sequentially. The first error returned by
	// fn stops the scan.
	ForEachParallel(fn func(nid int32, value T) error) error

	// SpineCount returns the number of spines that hold (or held) values.
	SpineCount() int

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save writes all dirty spines to disk. It may run concurrently with writes;
	// values written during Save may or may not be part of the flushed state.
	Save() error

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close flushes dirty spines and stops background work.
	Close() (err error)
}
