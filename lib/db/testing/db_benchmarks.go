package testing

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/tks/lib/db"
)

// RunSpinedDBBenchmarks runs all benchmarks for a SpinedDB implementation
func RunSpinedDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, open(b, factory, b.TempDir()))
	})

	b.Run("PutExisting", func(b *testing.B) {
		benchmarkPutExisting(b, open(b, factory, b.TempDir()))
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, open(b, factory, b.TempDir()))
	})

	b.Run("AccumulateContended", func(b *testing.B) {
		benchmarkAccumulateContended(b, open(b, factory, b.TempDir()))
	})

	b.Run("ForEachParallel", func(b *testing.B) {
		benchmarkForEachParallel(b, open(b, factory, b.TempDir()))
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, open(b, factory, b.TempDir()))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Put with fresh nids
func benchmarkPut(b *testing.B, database db.SpinedDB[[]byte]) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	var next atomic.Int32
	value := []byte("benchmark-record-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Put(firstNid+next.Add(1), value)
		}
	})
}

// Benchmark for Put on nids that already hold a value
func benchmarkPutExisting(b *testing.B, database db.SpinedDB[[]byte]) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	const numNids = 10000
	for i := 0; i < numNids; i++ {
		database.Put(int32(firstNid+i), []byte(fmt.Sprintf("value-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Put(int32(firstNid+counter%numNids), []byte("updated"))
			counter++
		}
	})
}

// Benchmark for Get
func benchmarkGet(b *testing.B, database db.SpinedDB[[]byte]) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet)

	const numNids = 10000
	for i := 0; i < numNids; i++ {
		database.Put(int32(firstNid+i), []byte(fmt.Sprintf("value-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(int32(firstNid + counter%numNids))
			counter++
		}
	})
}

// Benchmark for Accumulate with all goroutines on a few nids
func benchmarkAccumulateContended(b *testing.B, database db.SpinedDB[[]byte]) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureAccumulate)

	increment := func(old []byte, _ bool) ([]byte, bool, error) {
		next := make([]byte, 1)
		if len(old) > 0 {
			next[0] = old[0] + 1
		}
		return next, false, nil
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Accumulate(int32(firstNid+counter%4), increment)
			counter++
		}
	})
}

// Benchmark for a full parallel scan
func benchmarkForEachParallel(b *testing.B, database db.SpinedDB[[]byte]) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureForEachParallel)

	const numNids = 100000
	for i := 0; i < numNids; i++ {
		database.Put(int32(firstNid+i), []byte{byte(i)})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var visited atomic.Int64
		database.ForEachParallel(func(int32, []byte) error {
			visited.Add(1)
			return nil
		})
		if visited.Load() != numNids {
			b.Fatalf("visited %d of %d nids", visited.Load(), numNids)
		}
	}
}

// Benchmark for Save and reopening a saved directory
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	const numNids = 50000

	fill := func(database db.SpinedDB[[]byte], round int) {
		for i := 0; i < numNids; i++ {
			database.Put(int32(firstNid+i), []byte(fmt.Sprintf("value-%d-%d", round, i)))
		}
	}

	b.Run("Save", func(b *testing.B) {
		database := open(b, factory, b.TempDir())
		b.Cleanup(func() {
			database.Close()
		})
		requireFeature(b, database, db.FeaturePut|db.FeatureSave)

		for i := 0; i < b.N; i++ {
			b.StopTimer()
			fill(database, i)
			b.StartTimer()
			if err := database.Save(); err != nil {
				b.Fatalf("Save failed: %v", err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		dir := b.TempDir()
		database := open(b, factory, dir)
		requireFeature(b, database, db.FeaturePut|db.FeatureSave|db.FeatureForEach)
		fill(database, 0)
		database.Close()

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			reopened := open(b, factory, dir)
			// spines load lazily, a scan touches all of them
			reopened.ForEach(func(int32, []byte) bool { return true })
			b.StopTimer()
			reopened.Close()
			b.StartTimer()
		}
	})
}

// Benchmark for a mix of reads and writes
func benchmarkMixedUsage(b *testing.B, database db.SpinedDB[[]byte]) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet|db.FeatureRemove)

	const numNids = 10000
	for i := 0; i < numNids; i++ {
		database.Put(int32(firstNid+i), []byte(fmt.Sprintf("value-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			nid := int32(firstNid + r.Intn(numNids))
			switch op := r.Intn(10); {
			case op < 7:
				database.Get(nid)
			case op < 9:
				database.Put(nid, []byte("mixed"))
			default:
				database.Remove(nid)
			}
		}
	})
}
