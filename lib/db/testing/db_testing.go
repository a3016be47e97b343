package testing

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/tks/lib/db"
)

// DBFactory opens a SpinedDB storing raw records in dir. Opening the same dir
// again must return the state persisted by Save or Close.
type DBFactory func(dir string) (db.SpinedDB[[]byte], error)

// firstNid is the first nid handed out by the identity registry
const firstNid = math.MinInt32 + 1

// RunSpinedDBTests runs a comprehensive test suite for a SpinedDB implementation.
func RunSpinedDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, open(t, factory, t.TempDir()))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, open(t, factory, t.TempDir()))
		})

		t.Run("Accumulate", func(t *testing.T) {
			testAccumulate(t, open(t, factory, t.TempDir()))
		})

		t.Run("ConcurrentAccumulate", func(t *testing.T) {
			testConcurrentAccumulate(t, open(t, factory, t.TempDir()))
		})

		t.Run("ForEach", func(t *testing.T) {
			testForEach(t, open(t, factory, t.TempDir()))
		})

		t.Run("ForEachParallel", func(t *testing.T) {
			testForEachParallel(t, open(t, factory, t.TempDir()))
		})

		t.Run("SaveReopen", func(t *testing.T) {
			testSaveReopen(t, factory)
		})

		t.Run("SaveDuringWrites", func(t *testing.T) {
			testSaveDuringWrites(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, open(t, factory, t.TempDir()))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func open(t testing.TB, factory DBFactory, dir string) db.SpinedDB[[]byte] {
	t.Helper()
	database, err := factory(dir)
	if err != nil {
		t.Fatalf("opening database in %s: %v", dir, err)
	}
	return database
}

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.SpinedDB[[]byte], feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustGet(t testing.TB, database db.SpinedDB[[]byte], nid int32) ([]byte, bool) {
	t.Helper()
	v, ok, err := database.Get(nid)
	if err != nil {
		t.Fatalf("Get(%d) failed: %v", nid, err)
	}
	return v, ok
}

func mustPut(t testing.TB, database db.SpinedDB[[]byte], nid int32, v []byte) {
	t.Helper()
	if err := database.Put(nid, v); err != nil {
		t.Fatalf("Put(%d) failed: %v", nid, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.SpinedDB[[]byte]) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	nid := int32(firstNid + 7)
	value1 := []byte("record-1")
	value2 := []byte("record-2")

	mustPut(t, database, nid, value1)
	result, exists := mustGet(t, database, nid)
	if !exists {
		t.Errorf("Expected nid %d to exist after Put", nid)
	}
	if !bytes.Equal(result, value1) {
		t.Errorf("Expected value %s, got %s", value1, result)
	}

	mustPut(t, database, nid, value2)
	result, _ = mustGet(t, database, nid)
	if !bytes.Equal(result, value2) {
		t.Errorf("Expected value %s, got %s", value2, result)
	}

	if _, exists = mustGet(t, database, nid+1); exists {
		t.Errorf("Expected unset nid to return exists=false")
	}

	// values handed in and out are copies
	value2[0] = 'X'
	result, _ = mustGet(t, database, nid)
	result[1] = 'Y'
	again, _ := mustGet(t, database, nid)
	if !bytes.Equal(again, []byte("record-2")) {
		t.Errorf("stored value was modified through a caller's slice: %s", again)
	}
}

func testRemove(t *testing.T, database db.SpinedDB[[]byte]) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureRemove)

	nid := int32(firstNid)
	mustPut(t, database, nid, []byte("value"))

	existed, err := database.Remove(nid)
	if err != nil || !existed {
		t.Errorf("Remove of existing nid returned (%t, %v)", existed, err)
	}
	if _, exists := mustGet(t, database, nid); exists {
		t.Errorf("Expected nid %d to not exist after Remove", nid)
	}

	existed, err = database.Remove(nid)
	if err != nil || existed {
		t.Errorf("Remove of missing nid returned (%t, %v)", existed, err)
	}
}

func testAccumulate(t *testing.T, database db.SpinedDB[[]byte]) {
	defer database.Close()

	requireFeature(t, database, db.FeatureAccumulate|db.FeatureGet)

	nid := int32(firstNid + 3)
	appendByte := func(b byte) db.AccumulateFunc[[]byte] {
		return func(old []byte, loaded bool) ([]byte, bool, error) {
			next := make([]byte, 0, len(old)+1)
			next = append(next, old...)
			return append(next, b), false, nil
		}
	}

	for _, b := range []byte("abc") {
		if _, err := database.Accumulate(nid, appendByte(b)); err != nil {
			t.Fatalf("Accumulate failed: %v", err)
		}
	}
	if result, _ := mustGet(t, database, nid); string(result) != "abc" {
		t.Errorf("Expected abc, got %s", result)
	}

	// an error leaves the slot untouched
	_, err := database.Accumulate(nid, func([]byte, bool) ([]byte, bool, error) {
		return nil, false, fmt.Errorf("rejected")
	})
	if err == nil {
		t.Errorf("Expected the accumulate error to be returned")
	}
	if result, _ := mustGet(t, database, nid); string(result) != "abc" {
		t.Errorf("Expected abc after failed accumulate, got %s", result)
	}

	// delete through accumulate
	if _, err := database.Accumulate(nid, func(old []byte, _ bool) ([]byte, bool, error) {
		return old, true, nil
	}); err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	if _, exists := mustGet(t, database, nid); exists {
		t.Errorf("Expected nid to be deleted by accumulate")
	}
}

func testConcurrentAccumulate(t *testing.T, database db.SpinedDB[[]byte]) {
	defer database.Close()

	requireFeature(t, database, db.FeatureAccumulate|db.FeatureGet)

	const (
		writers   = 16
		perWriter = 200
	)
	nid := int32(firstNid + 11)

	var (
		wg    sync.WaitGroup
		calls atomic.Int64
	)
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := database.Accumulate(nid, func(old []byte, _ bool) ([]byte, bool, error) {
					calls.Add(1)
					next := make([]byte, len(old)+1)
					copy(next, old)
					next[len(old)] = byte(w)
					return next, false, nil
				})
				if err != nil {
					t.Errorf("Accumulate failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	result, _ := mustGet(t, database, nid)
	if len(result) != writers*perWriter {
		t.Errorf("Expected %d accumulated bytes, got %d (lost updates)", writers*perWriter, len(result))
	}
	if calls.Load() < writers*perWriter {
		t.Errorf("accumulate function called %d times, expected at least %d", calls.Load(), writers*perWriter)
	}
}

func testForEach(t *testing.T, database db.SpinedDB[[]byte]) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureForEach)

	nids := []int32{firstNid + 50000, firstNid, firstNid + 1, firstNid + 20481}
	for _, nid := range nids {
		mustPut(t, database, nid, []byte(fmt.Sprintf("v%d", nid)))
	}

	var seen []int32
	err := database.ForEach(func(nid int32, value []byte) bool {
		if string(value) != fmt.Sprintf("v%d", nid) {
			t.Errorf("nid %d carries %s", nid, value)
		}
		seen = append(seen, nid)
		return true
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}

	sorted := append([]int32(nil), nids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if fmt.Sprint(seen) != fmt.Sprint(sorted) {
		t.Errorf("Expected ascending %v, got %v", sorted, seen)
	}

	// early stop
	visited := 0
	_ = database.ForEach(func(int32, []byte) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("ForEach should stop after fn returns false, visited %d", visited)
	}
}

func testForEachParallel(t *testing.T, database db.SpinedDB[[]byte]) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureForEachParallel)

	const n = 5000
	for i := 0; i < n; i++ {
		mustPut(t, database, int32(firstNid+i*7), []byte{byte(i)})
	}

	var (
		mu   sync.Mutex
		seen = make(map[int32]bool, n)
	)
	err := database.ForEachParallel(func(nid int32, _ []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if seen[nid] {
			t.Errorf("nid %d visited twice", nid)
		}
		seen[nid] = true
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachParallel failed: %v", err)
	}
	if len(seen) != n {
		t.Errorf("Expected %d visited nids, got %d", n, len(seen))
	}

	stop := fmt.Errorf("stop")
	if err := database.ForEachParallel(func(int32, []byte) error { return stop }); err != stop {
		t.Errorf("Expected the scan error to be returned, got %v", err)
	}
}

func testSaveReopen(t *testing.T, factory DBFactory) {
	dir := t.TempDir()
	database := open(t, factory, dir)

	requireFeature(t, database, db.FeaturePut|db.FeatureSave)

	const n = 3000
	for i := 0; i < n; i++ {
		mustPut(t, database, int32(firstNid+i), []byte(fmt.Sprintf("record-%d", i)))
	}
	if _, err := database.Remove(firstNid + 5); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := database.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	spines := database.SpineCount()
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := open(t, factory, dir)
	defer reopened.Close()

	if reopened.SpineCount() != spines {
		t.Errorf("Expected %d spines after reopen, got %d", spines, reopened.SpineCount())
	}
	for i := 0; i < n; i++ {
		result, exists := mustGet(t, reopened, int32(firstNid+i))
		if i == 5 {
			if exists {
				t.Errorf("removed nid is back after reopen")
			}
			continue
		}
		if !bytes.Equal(result, []byte(fmt.Sprintf("record-%d", i))) {
			t.Fatalf("nid %d: expected record-%d, got %q", firstNid+i, i, result)
		}
	}
}

func testSaveDuringWrites(t *testing.T, factory DBFactory) {
	dir := t.TempDir()
	database := open(t, factory, dir)

	requireFeature(t, database, db.FeaturePut|db.FeatureSave)

	const n = 2000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			if err := database.Put(int32(firstNid+i), []byte{byte(i), byte(i >> 8)}); err != nil {
				t.Errorf("Put failed: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		if err := database.Save(); err != nil {
			t.Errorf("Save during writes failed: %v", err)
		}
	}
	<-done

	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := open(t, factory, dir)
	defer reopened.Close()
	for i := 0; i < n; i++ {
		result, _ := mustGet(t, reopened, int32(firstNid+i))
		if !bytes.Equal(result, []byte{byte(i), byte(i >> 8)}) {
			t.Fatalf("nid %d lost after concurrent save", firstNid+i)
		}
	}
}

func testEdgeCases(t *testing.T, database db.SpinedDB[[]byte]) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	mustPut(t, database, firstNid, []byte{})
	if result, exists := mustGet(t, database, firstNid); !exists || len(result) != 0 {
		t.Errorf("Expected empty value to be stored, got (%v, %t)", result, exists)
	}

	mustPut(t, database, 0, []byte("zero"))
	mustPut(t, database, -1, []byte("minus-one"))
	if result, _ := mustGet(t, database, 0); string(result) != "zero" {
		t.Errorf("nid 0: got %q", result)
	}
	if result, _ := mustGet(t, database, -1); string(result) != "minus-one" {
		t.Errorf("nid -1: got %q", result)
	}

	large := bytes.Repeat([]byte{0xab}, 1<<20)
	mustPut(t, database, firstNid+1, large)
	if result, _ := mustGet(t, database, firstNid+1); !bytes.Equal(result, large) {
		t.Errorf("large value was not stored correctly")
	}
}
