package spine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/tks/lib/db"
	"github.com/ValentinKolb/tks/lib/db/engines/spine/internal"
	"github.com/ValentinKolb/tks/lib/db/util"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("spine")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultSpineSize   = 10240 // Default number of slots per spine
	samplesPerSpine    = 100   // Slots sampled per spine by GetInfo
	histogramReservoir = 1028  // Reservoir of the value size histogram
)

// --------------------------------------------------------------------------
// Core spine database structure
// --------------------------------------------------------------------------

// spinedImpl implements db.SpinedDB on a directory of spine files
type spinedImpl[T any] struct {
	opts  Options
	codec db.Codec[T]
	file  *spineFile

	spines         *xsync.MapOf[int, *internal.Spine[T]]
	spineCount     atomic.Int64 // highest spine index that received data + 1
	persistedCount atomic.Int64 // spine count recorded in the count file
	countMu        sync.Mutex

	// background flusher
	events      *util.LockFreeMPSC[internal.Event]
	flusherDone chan struct{}
	closed      atomic.Bool

	// statistics
	loadTimer    gometrics.Timer
	loads        atomic.Uint64
	flushes      atomic.Uint64
	flushedBytes atomic.Uint64
	retries      atomic.Uint64
}

// Options configures a spined database
type Options struct {
	Dir           string        // Directory holding the spine files and the count file
	SpineSize     int           // Number of slots per spine (0 = default: 10240)
	Workers       int           // Parallelism of ForEachParallel and Save (0 = one per spine)
	FlushInterval time.Duration // Flush spines dirty for longer than this in the background (0 = only on Save)
	Compress      bool          // Compress spine files with zstd
}

// DefaultOptions returns the default options for dir
func DefaultOptions(dir string) Options {
	return Options{
		Dir:       dir,
		SpineSize: defaultSpineSize,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewSpinedDB opens (or creates) the spined database in opts.Dir. Spines are
// loaded lazily on first access.
//
// Thread-safety: This function is not thread-safe; a directory must only be
// opened by one instance at a time.
func NewSpinedDB[T any](opts Options, codec db.Codec[T]) (db.SpinedDB[T], error) {
	if opts.SpineSize <= 0 {
		opts.SpineSize = defaultSpineSize
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", opts.Dir)
	}

	file, err := newSpineFile(opts.Dir, opts.Compress)
	if err != nil {
		return nil, err
	}

	count, err := file.readCount()
	if err != nil {
		file.close()
		return nil, err
	}
	// spine files written after the last count update are still picked up
	onDisk, err := highestSpineFile(opts.Dir)
	if err != nil {
		file.close()
		return nil, err
	}
	if onDisk+1 > count {
		Logger.Warningf("%s: count file lists %d spines, found spine-%d", opts.Dir, count, onDisk)
		count = onDisk + 1
	}

	newDB := &spinedImpl[T]{
		opts:      opts,
		codec:     codec,
		file:      file,
		spines:    xsync.NewMapOf[int, *internal.Spine[T]](),
		// a timer with a meter would register with the process wide meter arbiter
		loadTimer: gometrics.NewCustomTimer(gometrics.NewHistogram(gometrics.NewUniformSample(histogramReservoir)), gometrics.NilMeter{}),
	}
	newDB.spineCount.Store(int64(count))
	newDB.persistedCount.Store(int64(count))

	if opts.FlushInterval > 0 {
		newDB.events = util.NewLockFreeMPSC[internal.Event]()
		newDB.flusherDone = make(chan struct{})
		go newDB.flusher()
	}

	Logger.Debugf("opened %s with %d spines", opts.Dir, count)
	return newDB, nil
}

func highestSpineFile(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return -1, errors.Wrapf(err, "listing %s", dir)
	}
	highest := -1
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, spineFilePrefix) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		if i, err := strconv.Atoi(strings.TrimPrefix(name, spineFilePrefix)); err == nil && i > highest {
			highest = i
		}
	}
	return highest, nil
}

// --------------------------------------------------------------------------
// Spine access
// --------------------------------------------------------------------------

// spine returns the spine with the given index, loading it on first access.
//
// Thread-safety: concurrent callers for the same spine wait on its gate; only
// one of them reads the file.
func (sdb *spinedImpl[T]) spine(index int) (*internal.Spine[T], error) {
	s, _ := sdb.spines.LoadOrCompute(index, func() *internal.Spine[T] {
		return internal.NewSpine[T](index, sdb.opts.SpineSize)
	})
	if s.Loaded() {
		return s, nil
	}

	if err := s.Gate.Acquire(context.Background(), 1); err != nil {
		return nil, err
	}
	defer s.Gate.Release(1)

	// another goroutine may have loaded it while we waited
	if s.Loaded() {
		return s, nil
	}

	start := time.Now()
	entries, err := sdb.file.read(index, sdb.opts.SpineSize)
	if err != nil {
		Logger.Errorf("%s: loading spine %d failed: %v", sdb.opts.Dir, index, err)
		return nil, err
	}
	for _, e := range entries {
		v, err := sdb.codec.Decode(e.value)
		if err != nil {
			err = errors.Wrapf(err, "spine %d slot %d", index, e.slot)
			Logger.Errorf("%s: loading spine %d failed: %v", sdb.opts.Dir, index, err)
			return nil, err
		}
		s.Slots[e.slot].Store(&internal.Slot[T]{Value: v})
	}
	s.AddCount(int64(len(entries)))
	s.MarkLoaded()

	sdb.loadTimer.UpdateSince(start)
	sdb.loads.Add(1)
	return s, nil
}

// markDirty flags the spine for flushing and records it as in use
func (sdb *spinedImpl[T]) markDirty(s *internal.Spine[T]) {
	for {
		c := sdb.spineCount.Load()
		if int64(s.Index) < c || sdb.spineCount.CompareAndSwap(c, int64(s.Index)+1) {
			break
		}
	}

	if s.MarkDirty() && sdb.events != nil {
		sdb.events.Push(internal.Event{Type: internal.EventTDirty, Spine: s.Index, At: time.Now().UnixNano()})
	}
}

// --------------------------------------------------------------------------
// SpinedDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put stores value for nid, replacing any existing value.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *spinedImpl[T]) Put(nid int32, value T) error {
	valueCopy := sdb.codec.Clone(value)
	_, err := sdb.Accumulate(nid, func(T, bool) (T, bool, error) {
		return valueCopy, false, nil
	})
	return err
}

// Remove deletes the value of nid.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *spinedImpl[T]) Remove(nid int32) (bool, error) {
	var existed bool
	_, err := sdb.Accumulate(nid, func(old T, loaded bool) (T, bool, error) {
		existed = loaded
		return old, true, nil
	})
	return existed, err
}

// Accumulate installs fn(old) in the slot of nid with a compare-and-swap loop.
// If another writer replaced the slot between reading it and installing the
// result, fn is called again with the new value.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Only accumulations of the same nid interfere with each other.
func (sdb *spinedImpl[T]) Accumulate(nid int32, fn db.AccumulateFunc[T]) (T, error) {
	var zero T

	spineIndex, slotIndex := internal.Location(nid, sdb.opts.SpineSize)
	s, err := sdb.spine(spineIndex)
	if err != nil {
		return zero, err
	}
	slot := &s.Slots[slotIndex]

	for {
		current := slot.Load()

		var (
			old    T
			loaded = current != nil
		)
		if loaded {
			old = current.Value
		}

		value, del, err := fn(old, loaded)
		if err != nil {
			return zero, err
		}

		var next *internal.Slot[T]
		if !del {
			next = &internal.Slot[T]{Value: value}
		} else if !loaded {
			// nothing to delete
			return zero, nil
		}

		if slot.CompareAndSwap(current, next) {
			switch {
			case !loaded && next != nil:
				s.AddCount(1)
			case loaded && next == nil:
				s.AddCount(-1)
			}
			sdb.markDirty(s)

			if del {
				return zero, nil
			}
			return sdb.codec.Clone(value), nil
		}

		sdb.retries.Add(1)
	}
}

// --------------------------------------------------------------------------
// SpinedDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves the value of nid.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (sdb *spinedImpl[T]) Get(nid int32) (T, bool, error) {
	var zero T

	spineIndex, slotIndex := internal.Location(nid, sdb.opts.SpineSize)
	if int64(spineIndex) >= sdb.spineCount.Load() {
		return zero, false, nil
	}

	s, err := sdb.spine(spineIndex)
	if err != nil {
		return zero, false, err
	}

	current := s.Slots[slotIndex].Load()
	if current == nil {
		return zero, false, nil
	}
	return sdb.codec.Clone(current.Value), true, nil
}

// ForEach visits all values in ascending nid order.
// Values are passed without copying and must not be modified.
//
// Thread-safety: This method is thread-safe. Writes running concurrently may
// or may not be observed.
func (sdb *spinedImpl[T]) ForEach(fn func(nid int32, value T) bool) error {
	count := int(sdb.spineCount.Load())
	for i := 0; i < count; i++ {
		s, err := sdb.spine(i)
		if err != nil {
			return err
		}
		for slot := range s.Slots {
			if current := s.Slots[slot].Load(); current != nil {
				if !fn(internal.NidAt(i, slot, sdb.opts.SpineSize), current.Value) {
					return nil
				}
			}
		}
	}
	return nil
}

// ForEachParallel visits all values with one task per spine on the worker pool.
// Values are passed without copying and must not be modified.
//
// Thread-safety: This method is thread-safe; fn is called concurrently.
func (sdb *spinedImpl[T]) ForEachParallel(fn func(nid int32, value T) error) error {
	count := int(sdb.spineCount.Load())

	var (
		g      errgroup.Group
		failed atomic.Bool
	)
	if sdb.opts.Workers > 0 {
		g.SetLimit(sdb.opts.Workers)
	}

	for i := 0; i < count; i++ {
		if failed.Load() {
			break
		}
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			s, err := sdb.spine(i)
			if err != nil {
				failed.Store(true)
				return err
			}
			for slot := range s.Slots {
				current := s.Slots[slot].Load()
				if current == nil {
					continue
				}
				if err := fn(internal.NidAt(i, slot, sdb.opts.SpineSize), current.Value); err != nil {
					failed.Store(true)
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// SpineCount returns the number of spines in use
func (sdb *spinedImpl[T]) SpineCount() int {
	return int(sdb.spineCount.Load())
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// flush writes one spine if it is dirty.
//
// Thread-safety: flushes of the same spine are serialized by its gate. Writes
// are not blocked; a write racing with the snapshot marks the spine dirty again.
func (sdb *spinedImpl[T]) flush(s *internal.Spine[T]) error {
	if err := s.Gate.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer s.Gate.Release(1)

	if !s.TakeDirty() {
		return nil
	}

	entries := make([]spineEntry, 0, s.Count())
	for slot := range s.Slots {
		if current := s.Slots[slot].Load(); current != nil {
			entries = append(entries, spineEntry{
				slot:  uint32(slot),
				value: sdb.codec.Append(nil, current.Value),
			})
		}
	}

	n, err := sdb.file.write(s.Index, sdb.opts.SpineSize, entries)
	if err != nil {
		Logger.Errorf("%s: flushing spine %d failed: %v", sdb.opts.Dir, s.Index, err)
		sdb.markDirty(s)
		return err
	}

	sdb.flushes.Add(1)
	sdb.flushedBytes.Add(uint64(n))
	if sdb.events != nil {
		sdb.events.Push(internal.Event{Type: internal.EventTFlushed, Spine: s.Index})
	}
	return nil
}

// Save flushes all dirty spines in parallel and updates the count file.
// Errors of individual spines are collected; the remaining spines are still written.
//
// Thread-safety: This function allows concurrent operations with all other functions.
// It does not produce a consistent cut across spines.
func (sdb *spinedImpl[T]) Save() error {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		result *multierror.Error
	)
	if sdb.opts.Workers > 0 {
		g.SetLimit(sdb.opts.Workers)
	}

	sdb.spines.Range(func(_ int, s *internal.Spine[T]) bool {
		if !s.IsDirty() {
			return true
		}
		g.Go(func() error {
			if err := sdb.flush(s); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
		return true
	})
	_ = g.Wait()

	if err := sdb.saveCount(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (sdb *spinedImpl[T]) saveCount() error {
	sdb.countMu.Lock()
	defer sdb.countMu.Unlock()

	count := sdb.spineCount.Load()
	if count == sdb.persistedCount.Load() {
		return nil
	}
	if err := sdb.file.writeCount(int(count)); err != nil {
		return err
	}
	sdb.persistedCount.Store(count)
	return nil
}

// --------------------------------------------------------------------------
// Background flusher
// --------------------------------------------------------------------------

// flusher writes spines that stayed dirty for longer than the flush interval.
// It owns the heap of dirty spines exclusively and is fed through the event queue.
// WARNING: this method must only be started by NewSpinedDB
func (sdb *spinedImpl[T]) flusher() {
	defer close(sdb.flusherDone)

	interval := sdb.opts.FlushInterval
	dirty := util.NewMapHeap[int]()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		endLoop := false
		for !endLoop {
			select {
			case event, ok := <-sdb.events.Recv():
				if !ok {
					return
				}
				switch event.Type {
				case internal.EventTDirty:
					dirty.AddItemIfAbsent(event.Spine, event.At)
				case internal.EventTFlushed:
					// a write after the flush keeps the spine scheduled
					if s, ok := sdb.spines.Load(event.Spine); ok && !s.IsDirty() {
						dirty.RemoveByKey(event.Spine)
					}
				default:
					panic(fmt.Sprintf("unknown event %s", event))
				}

			case <-timer.C:
				endLoop = true
			}
		}

		deadline := time.Now().Add(-interval).UnixNano()
		for {
			item, exists := dirty.Peek()
			if !exists || item.Priority > deadline {
				break
			}
			dirty.RemoveByKey(item.Key)

			if s, ok := sdb.spines.Load(item.Key); ok {
				if err := sdb.flush(s); err != nil {
					Logger.Warningf("%s: background flush of spine %d failed, retrying later", sdb.opts.Dir, item.Key)
				}
			}
		}
		if err := sdb.saveCount(); err != nil {
			Logger.Warningf("%s: %v", sdb.opts.Dir, err)
		}

		timer.Reset(interval)
	}
}

// --------------------------------------------------------------------------
// SpinedDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// Metadata is the implementation specific part of db.DatabaseInfo
type Metadata struct {
	Dir               string  `json:"dir"`
	SpineSize         int     `json:"spine_size"`
	SpineCount        int     `json:"spine_count"`
	LoadedSpines      int     `json:"loaded_spines"`
	DirtySpines       int     `json:"dirty_spines"`
	Loads             uint64  `json:"loads"`
	LoadMeanMillis    float64 `json:"load_mean_ms"`
	LoadP99Millis     float64 `json:"load_p99_ms"`
	Flushes           uint64  `json:"flushes"`
	FlushedBytes      uint64  `json:"flushed_bytes"`
	AccumulateRetries uint64  `json:"accumulate_retries"`
	ValueSizeMedian   float64 `json:"value_size_median"`
	ValueSizeP95      float64 `json:"value_size_p95"`
	Info              string  `json:"info"`
}

// GetInfo returns statistics about the loaded part of the database
func (sdb *spinedImpl[T]) GetInfo() db.DatabaseInfo {
	sizes := gometrics.NewHistogram(gometrics.NewUniformSample(histogramReservoir))

	var (
		entries int64
		loaded  int
		dirty   int
	)
	sdb.spines.Range(func(_ int, s *internal.Spine[T]) bool {
		if !s.Loaded() {
			return true
		}
		loaded++
		if s.IsDirty() {
			dirty++
		}
		entries += s.Count()

		sampled := 0
		for slot := range s.Slots {
			if sampled >= samplesPerSpine {
				break
			}
			if current := s.Slots[slot].Load(); current != nil {
				sizes.Update(int64(sdb.codec.Size(current.Value)))
				sampled++
			}
		}
		return true
	})

	snapshot := sizes.Snapshot()
	timer := sdb.loadTimer.Snapshot()

	meta := &Metadata{
		Dir:               sdb.opts.Dir,
		SpineSize:         sdb.opts.SpineSize,
		SpineCount:        sdb.SpineCount(),
		LoadedSpines:      loaded,
		DirtySpines:       dirty,
		Loads:             sdb.loads.Load(),
		LoadMeanMillis:    timer.Mean() / float64(time.Millisecond),
		LoadP99Millis:     timer.Percentile(0.99) / float64(time.Millisecond),
		Flushes:           sdb.flushes.Load(),
		FlushedBytes:      sdb.flushedBytes.Load(),
		AccumulateRetries: sdb.retries.Load(),
		ValueSizeMedian:   snapshot.Percentile(0.5),
		ValueSizeP95:      snapshot.Percentile(0.95),
		Info:              "Entries and SizeBytes only cover loaded spines; sizes are estimated from samples.",
	}

	features := []db.Feature{
		db.FeatureGet, db.FeaturePut, db.FeatureRemove, db.FeatureAccumulate,
		db.FeatureForEach, db.FeatureForEachParallel, db.FeatureSave,
	}
	if sdb.opts.FlushInterval > 0 {
		features = append(features, db.FeatureBackgroundFlush)
	}
	if sdb.opts.Compress {
		features = append(features, db.FeatureCompression)
	}

	return db.DatabaseInfo{
		SizeBytes:         int(snapshot.Mean() * float64(entries)),
		Entries:           int(entries),
		DbType:            db.ImplSpine,
		SupportedFeatures: features,
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (sdb *spinedImpl[T]) SupportsFeature(feature db.Feature) bool {
	supported := db.FeatureGet |
		db.FeaturePut |
		db.FeatureRemove |
		db.FeatureAccumulate |
		db.FeatureForEach |
		db.FeatureForEachParallel |
		db.FeatureSave
	if sdb.opts.FlushInterval > 0 {
		supported |= db.FeatureBackgroundFlush
	}
	if sdb.opts.Compress {
		supported |= db.FeatureCompression
	}
	return supported&feature == feature
}

// Close flushes all dirty spines and stops the background flusher.
// Calling Close more than once is a no-op.
func (sdb *spinedImpl[T]) Close() error {
	if !sdb.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := sdb.Save()

	if sdb.events != nil {
		sdb.events.Close()
		<-sdb.flusherDone
	}
	sdb.loadTimer.Stop()
	sdb.file.close()

	if err != nil {
		return errors.Wrapf(err, "closing %s", filepath.Base(sdb.opts.Dir))
	}
	return nil
}
