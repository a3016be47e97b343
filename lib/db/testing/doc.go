// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.SpinedDB interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the SpinedDB interface
//     contract, including copy semantics, lost-update freedom of Accumulate and persistence
//     across Save and reopen
//   - benchmark: Performance tests for measuring throughput of common database operations
//
// The suite stores raw records ([]byte values) and opens every database in a fresh
// temporary directory. Implementations only run the tests whose features they advertise.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(dir string) (db.SpinedDB[[]byte], error) {
//		return NewMySpinedDB(dir)
//	}
//
//	// Running the standard test suite
//	dbtesting.RunSpinedDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunSpinedDBBenchmarks(b, "MyDatabase", factory)
package testing
