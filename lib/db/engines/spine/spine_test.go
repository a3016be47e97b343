package spine

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/tks/lib/db"
	"github.com/ValentinKolb/tks/lib/db/engines/spine/internal"
	"github.com/pkg/errors"
	"go.uber.org/goleak"
)

const firstNid = math.MinInt32 + 1

func openBytes(t *testing.T, opts Options) db.SpinedDB[[]byte] {
	t.Helper()
	sdb, err := NewSpinedDB[[]byte](opts, db.BytesCodec{})
	if err != nil {
		t.Fatalf("NewSpinedDB failed: %v", err)
	}
	return sdb
}

func TestLocation(t *testing.T) {
	tests := []struct {
		nid       int32
		spineSize int
		spine     int
		slot      int
	}{
		{math.MinInt32, 10240, 0, 0},
		{firstNid, 10240, 0, 1},
		{firstNid + 10239, 10240, 1, 0},
		{-1, 1 << 16, 1<<15 - 1, 1<<16 - 1},
		{0, 1 << 16, 1 << 15, 0},
		{math.MaxInt32, 10, 429496729, 5},
	}

	for _, tt := range tests {
		spine, slot := internal.Location(tt.nid, tt.spineSize)
		if spine != tt.spine || slot != tt.slot {
			t.Errorf("Location(%d, %d) = (%d, %d), want (%d, %d)", tt.nid, tt.spineSize, spine, slot, tt.spine, tt.slot)
		}
		if nid := internal.NidAt(spine, slot, tt.spineSize); nid != tt.nid {
			t.Errorf("NidAt(%d, %d, %d) = %d, want %d", spine, slot, tt.spineSize, nid, tt.nid)
		}
	}
}

func TestSpineFiles(t *testing.T) {
	dir := t.TempDir()
	sdb := openBytes(t, Options{Dir: dir, SpineSize: 8})

	for i := 0; i < 20; i++ {
		if err := sdb.Put(int32(firstNid+i), []byte{byte(i)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// nids firstNid..firstNid+19 occupy u = 1..20, i.e. spines 0, 1 and 2
	for _, name := range []string{"spine-0", "spine-1", "spine-2", "count"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "spine-3")); !os.IsNotExist(err) {
		t.Errorf("spine-3 should not exist")
	}
	raw, _ := os.ReadFile(filepath.Join(dir, "count"))
	if string(bytes.TrimSpace(raw)) != "3" {
		t.Errorf("count file = %q, want 3", raw)
	}
}

func TestCompressionReadableWithoutFlag(t *testing.T) {
	dir := t.TempDir()
	value := bytes.Repeat([]byte("terminology "), 500)

	sdb := openBytes(t, Options{Dir: dir, Compress: true})
	if err := sdb.Put(firstNid, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "spine-0"))
	if err != nil {
		t.Fatalf("stat spine-0: %v", err)
	}
	if info.Size() >= int64(len(value)) {
		t.Errorf("compressed spine has %d bytes for a %d byte value", info.Size(), len(value))
	}

	reopened := openBytes(t, Options{Dir: dir})
	defer reopened.Close()
	got, ok, err := reopened.Get(firstNid)
	if err != nil || !ok || !bytes.Equal(got, value) {
		t.Errorf("Get after reopen without compression = (%d bytes, %t, %v)", len(got), ok, err)
	}
}

func TestChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	sdb := openBytes(t, DefaultOptions(dir))
	if err := sdb.Put(firstNid, []byte("intact")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	path := filepath.Join(dir, "spine-0")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading spine-0: %v", err)
	}
	raw[headerSize+10] ^= 0xff
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing spine-0: %v", err)
	}

	reopened := openBytes(t, DefaultOptions(dir))
	defer reopened.Close()
	if _, _, err := reopened.Get(firstNid); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
}

func TestSpineSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	sdb := openBytes(t, Options{Dir: dir, SpineSize: 16})
	if err := sdb.Put(firstNid, []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := openBytes(t, Options{Dir: dir, SpineSize: 32})
	defer reopened.Close()
	if _, _, err := reopened.Get(firstNid); err == nil {
		t.Errorf("expected an error when reading a spine written with another size")
	}
}

func TestLostCountFile(t *testing.T) {
	dir := t.TempDir()
	sdb := openBytes(t, Options{Dir: dir, SpineSize: 4})
	for i := 0; i < 10; i++ {
		if err := sdb.Put(int32(firstNid+i), []byte{byte(i)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "count")); err != nil {
		t.Fatalf("removing count file: %v", err)
	}

	reopened := openBytes(t, Options{Dir: dir, SpineSize: 4})
	defer reopened.Close()
	if reopened.SpineCount() != 3 {
		t.Errorf("SpineCount = %d, want 3", reopened.SpineCount())
	}
	visited := 0
	_ = reopened.ForEach(func(int32, []byte) bool {
		visited++
		return true
	})
	if visited != 10 {
		t.Errorf("visited %d nids, want 10", visited)
	}
}

func TestBackgroundFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	sdb := openBytes(t, Options{Dir: dir, SpineSize: 16, FlushInterval: 10 * time.Millisecond})

	if !sdb.SupportsFeature(db.FeatureBackgroundFlush) {
		t.Fatalf("expected background flush to be supported")
	}
	if err := sdb.Put(firstNid, []byte("flushed in background")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for sdb.GetInfo().Metadata.(*Metadata).Flushes == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("spine-0 was not flushed in the background")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := os.Stat(filepath.Join(dir, "spine-0")); err != nil {
		t.Errorf("expected spine-0 after background flush: %v", err)
	}

	if err := sdb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// a second close is a no-op
	if err := sdb.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

// Loading spines records their latency; that must not start any goroutine
// outliving the database.
func TestLoadStatisticsStopWithClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	sdb := openBytes(t, Options{Dir: dir, SpineSize: 16})
	if err := sdb.Put(firstNid, []byte("value")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	sdb = openBytes(t, Options{Dir: dir, SpineSize: 16})
	if _, ok, err := sdb.Get(firstNid); err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if loads := sdb.GetInfo().Metadata.(*Metadata).Loads; loads != 1 {
		t.Errorf("Loads = %d, want 1", loads)
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestGetInfo(t *testing.T) {
	sdb := openBytes(t, Options{Dir: t.TempDir(), SpineSize: 32, Compress: true})
	defer sdb.Close()

	for i := 0; i < 100; i++ {
		if err := sdb.Put(int32(firstNid+i), make([]byte, 10)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	info := sdb.GetInfo()
	if info.DbType != db.ImplSpine {
		t.Errorf("DbType = %s", info.DbType)
	}
	if info.Entries != 100 {
		t.Errorf("Entries = %d, want 100", info.Entries)
	}
	if info.SizeBytes != 1000 {
		t.Errorf("SizeBytes = %d, want 1000", info.SizeBytes)
	}
	meta := info.Metadata.(*Metadata)
	if meta.LoadedSpines != 4 || meta.DirtySpines != 4 {
		t.Errorf("unexpected spine statistics %+v", meta)
	}
	if !sdb.SupportsFeature(db.FeatureCompression | db.FeatureAccumulate) {
		t.Errorf("expected compression and accumulate to be supported")
	}
	if sdb.SupportsFeature(db.FeatureBackgroundFlush) {
		t.Errorf("background flush is disabled without a flush interval")
	}
}

func TestInt32SetValues(t *testing.T) {
	dir := t.TempDir()
	sdb, err := NewSpinedDB[[]int32](Options{Dir: dir, SpineSize: 16}, db.Int32SetCodec{})
	if err != nil {
		t.Fatalf("NewSpinedDB failed: %v", err)
	}

	add := func(n int32) db.AccumulateFunc[[]int32] {
		return func(old []int32, _ bool) ([]int32, bool, error) {
			return db.InsertSorted(old, n), false, nil
		}
	}
	for _, n := range []int32{firstNid + 9, firstNid + 2, firstNid + 5, firstNid + 2} {
		if _, err := sdb.Accumulate(firstNid, add(n)); err != nil {
			t.Fatalf("Accumulate failed: %v", err)
		}
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSpinedDB[[]int32](Options{Dir: dir, SpineSize: 16}, db.Int32SetCodec{})
	if err != nil {
		t.Fatalf("NewSpinedDB failed: %v", err)
	}
	defer reopened.Close()

	got, _, err := reopened.Get(firstNid)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := []int32{firstNid + 2, firstNid + 5, firstNid + 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
