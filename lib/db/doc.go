// Package db provides a standardized interface for nid-indexed storage engines.
// It defines the SpinedDB interface that allows for consistent interaction
// with persistent sparse arrays while abstracting implementation details.
//
// The package focuses on:
//   - A unified interface for slot operations keyed by nid
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//   - Comprehensive metadata reporting
//
// Key Components:
//
//   - SpinedDB Interface: The core interface that all engines must satisfy.
//     It provides methods for basic operations (Put, Get, Remove), the atomic
//     read-modify-write operation Accumulate, full scans (ForEach, ForEachParallel),
//     metadata retrieval (GetInfo) and persistence (Save, Close).
//
//   - Codec: Converts slot values to and from their on-disk form. BytesCodec stores
//     raw records, Int32Codec single nids and Int32SetCodec sorted nid sets.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on database state. Note: For most implementations all
//     size statistics will be estimated since a precise calculation can be
//     expensive.
//
// Nid addressing:
//   - Nids are signed 32-bit integers handed out from math.MinInt32+1 upwards.
//     Engines shift them into unsigned space, so the first nids land in spine 0
//     and a densely used nid range maps to densely used spines.
//
// Note on Accumulate:
//   - Accumulate is the only primitive for read-modify-write. The function may run more
//     than once and must be free of side effects other than capturing its inputs; the
//     last invocation is the one whose result was installed.
//
// Related Packages:
//
// The engines/spine package (github.com/ValentinKolb/tks/lib/db/engines/spine) implements
// SpinedDB on a directory of checksummed spine files with lock-free slot access,
// lazy spine loading and an optional background flusher.
//
// The util package (github.com/ValentinKolb/tks/lib/db/util) provides complementary
// tools for engine implementations:
//   - MapHeap: A priority queue with key access, ordering dirty spines by age
//   - LockFreeMPSC: A lock-free multi-producer single-consumer queue for events
//
// The testing package (github.com/ValentinKolb/tks/lib/db/testing) provides
// standardized tests and benchmarks for implementations of the db.SpinedDB interface.
//   - RunSpinedDBTests: Runs a standardized test suite to validate implementations
//   - RunSpinedDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
