package identity

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	bolt "go.etcd.io/bbolt"
)

var Logger = logger.GetLogger("identity")

const (
	// MapFileName is the bbolt file holding the uuid -> nid pairs
	MapFileName = "uuidNidMap.db"

	// NextNidFileName is the plain text file holding the next nid to allocate
	NextNidFileName = "nextNidKeyFile"

	bucketName = "uuidNid"
)

var (
	// ErrIdentityConflict is returned when the uuids of one component already
	// map to two or more different nids
	ErrIdentityConflict = errors.New("identity conflict")

	// ErrNotReady is returned when the preload of the registry failed
	ErrNotReady = errors.New("identity registry not available")

	// ErrNidsExhausted is returned when the nid space is used up
	ErrNidsExhausted = errors.New("nid space exhausted")

	// ErrNoIdentity is returned when NidFor is called without uuids
	ErrNoIdentity = errors.New("no uuid given")
)

// --------------------------------------------------------------------------
// Registry structure
// --------------------------------------------------------------------------

// Registry maps component uuids to nids and back.
//
// The mappings are loaded from disk in the background when the registry is
// opened. Every lookup waits for that preload, so callers never see a false
// "unknown" during startup.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	dir    string
	boltDB *bolt.DB

	uuidToNid  *xsync.MapOf[uuid.UUID, int32]
	nidToUUIDs *xsync.MapOf[int32, []uuid.UUID]
	dirty      *xsync.MapOf[uuid.UUID, int32] // mappings not yet written to boltDB

	bindMu     sync.Mutex   // serializes new and moved bindings
	next       atomic.Int64 // next nid to allocate
	savedNext  atomic.Int64
	saveMu     sync.Mutex
	ready      chan struct{}
	preloadErr error
	closed     atomic.Bool
}

// Open opens the registry stored in dir and starts the background preload.
// It fails only if the files cannot be opened; preload errors surface as
// ErrNotReady from the lookup methods.
func Open(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}

	next, err := readNextNid(filepath.Join(dir, NextNidFileName))
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, MapFileName)
	boltDB, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", path)
	}
	err = boltDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return errors.Wrap(err, "create bucket")
	})
	if err != nil {
		boltDB.Close()
		return nil, err
	}

	r := &Registry{
		dir:        dir,
		boltDB:     boltDB,
		uuidToNid:  xsync.NewMapOf[uuid.UUID, int32](),
		nidToUUIDs: xsync.NewMapOf[int32, []uuid.UUID](),
		dirty:      xsync.NewMapOf[uuid.UUID, int32](),
		ready:      make(chan struct{}),
	}
	r.next.Store(next)
	r.savedNext.Store(next)

	go r.preload()
	return r, nil
}

// preload reads all persisted pairs into memory and releases the latch
func (r *Registry) preload() {
	defer close(r.ready)

	var (
		count  int
		maxNid = int64(entity.InvalidNid)
	)
	err := r.boltDB.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			if len(k) != 16 || len(v) != 4 {
				return fmt.Errorf("invalid pair in %s: key %d bytes, value %d bytes", MapFileName, len(k), len(v))
			}
			id, _ := uuid.FromBytes(k)
			nid := int32(binary.BigEndian.Uint32(v))
			r.uuidToNid.Store(id, nid)
			r.addUUID(nid, id)
			if int64(nid) > maxNid {
				maxNid = int64(nid)
			}
			count++
			return nil
		})
	})
	if err != nil {
		r.preloadErr = errors.Wrap(err, "preloading identities")
		Logger.Errorf("%v", r.preloadErr)
		return
	}

	// the counter file may lag behind the map after a crash
	if maxNid+1 > r.next.Load() {
		Logger.Warningf("%s is behind the highest mapped nid %d, advancing", NextNidFileName, maxNid)
		r.next.Store(maxNid + 1)
	}
	Logger.Infof("preloaded %d identities, next nid %d", count, r.next.Load())
}

// Ready returns a channel that is closed once the preload finished
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

// await blocks until the preload finished
func (r *Registry) await() error {
	<-r.ready
	if r.preloadErr != nil {
		return errors.Wrap(ErrNotReady, r.preloadErr.Error())
	}
	return nil
}

// --------------------------------------------------------------------------
// Allocation and lookup
// --------------------------------------------------------------------------

func (r *Registry) allocate() (int32, error) {
	nid := r.next.Add(1) - 1
	if nid > math.MaxInt32 {
		return entity.InvalidNid, ErrNidsExhausted
	}
	return int32(nid), nil
}

func (r *Registry) addUUID(nid int32, id uuid.UUID) {
	r.nidToUUIDs.Compute(nid, func(old []uuid.UUID, _ bool) ([]uuid.UUID, bool) {
		if slices.Contains(old, id) {
			return old, false
		}
		return append(slices.Clone(old), id), false
	})
}

func (r *Registry) removeUUID(nid int32, id uuid.UUID) {
	r.nidToUUIDs.Compute(nid, func(old []uuid.UUID, _ bool) ([]uuid.UUID, bool) {
		i := slices.Index(old, id)
		if i < 0 {
			return old, len(old) == 0
		}
		next := slices.Delete(slices.Clone(old), i, i+1)
		return next, len(next) == 0
	})
}

// bind records a new mapping in all maps
func (r *Registry) bind(id uuid.UUID, nid int32) {
	r.addUUID(nid, id)
	r.dirty.Store(id, nid)
}

// NidFor returns the nid of the component named by uuids, allocating one if
// none of them is known yet.
//
// With several uuids the result is one nid for all of them: unknown uuids are
// mapped to the nid of the known ones. If the known uuids already map to
// different nids, ErrIdentityConflict is returned and nothing is bound.
//
// Thread-safety: lookups of known uuids are lock-free. Every new binding is
// decided and installed under bindMu, so no uuid is bound before the target
// nid of its whole set is known.
func (r *Registry) NidFor(uuids ...uuid.UUID) (int32, error) {
	if err := r.await(); err != nil {
		return entity.InvalidNid, err
	}
	if len(uuids) == 0 {
		return entity.InvalidNid, ErrNoIdentity
	}
	if nid, ok := r.lookup(uuids); ok {
		return nid, nil
	}

	r.bindMu.Lock()
	defer r.bindMu.Unlock()

	distinct := r.mappedNids(uuids)
	if len(distinct) > 1 {
		return entity.InvalidNid, conflict(uuids, distinct)
	}

	var target int32
	if len(distinct) == 1 {
		target = distinct[0]
	} else {
		nid, err := r.allocate()
		if err != nil {
			return entity.InvalidNid, err
		}
		target = nid
	}

	for _, id := range uuids {
		if _, ok := r.uuidToNid.Load(id); !ok {
			r.uuidToNid.Store(id, target)
			r.bind(id, target)
		}
	}
	return target, nil
}

// lookup returns the nid of uuids if all of them are mapped to the same nid
func (r *Registry) lookup(uuids []uuid.UUID) (int32, bool) {
	target := entity.InvalidNid
	for _, id := range uuids {
		nid, ok := r.uuidToNid.Load(id)
		if !ok || (target != entity.InvalidNid && nid != target) {
			return entity.InvalidNid, false
		}
		target = nid
	}
	return target, true
}

// mappedNids returns the distinct nids the uuids are mapped to, in order of
// first appearance
func (r *Registry) mappedNids(uuids []uuid.UUID) []int32 {
	var mapped []int32
	for _, id := range uuids {
		if nid, ok := r.uuidToNid.Load(id); ok && !slices.Contains(mapped, nid) {
			mapped = append(mapped, nid)
		}
	}
	return mapped
}

func conflict(uuids []uuid.UUID, nids []int32) error {
	return errors.Wrapf(ErrIdentityConflict, "uuids %v map to nids %v", uuids, nids)
}

// NidForExisting returns the nid of id without allocating
func (r *Registry) NidForExisting(id uuid.UUID) (int32, bool, error) {
	if err := r.await(); err != nil {
		return entity.InvalidNid, false, err
	}
	nid, ok := r.uuidToNid.Load(id)
	return nid, ok, nil
}

// UUIDsFor returns the uuids mapped to nid
func (r *Registry) UUIDsFor(nid int32) ([]uuid.UUID, error) {
	if err := r.await(); err != nil {
		return nil, err
	}
	ids, _ := r.nidToUUIDs.Load(nid)
	return slices.Clone(ids), nil
}

// Count returns the number of mapped uuids
func (r *Registry) Count() int {
	return r.uuidToNid.Size()
}

// NextNid returns the nid the next allocation will hand out
func (r *Registry) NextNid() int64 {
	return r.next.Load()
}

// --------------------------------------------------------------------------
// Administrative repair
// --------------------------------------------------------------------------

// Consolidate maps all uuids to one canonical nid: the numerically smallest nid
// any of them is mapped to, or a fresh nid if none is mapped. It returns the
// canonical nid and the other nids that lost their uuids to it.
//
// Unlike NidFor it never fails on conflicting aliases; it is meant for repair.
func (r *Registry) Consolidate(uuids ...uuid.UUID) (int32, []int32, error) {
	if err := r.await(); err != nil {
		return entity.InvalidNid, nil, err
	}
	if len(uuids) == 0 {
		return entity.InvalidNid, nil, ErrNoIdentity
	}

	r.bindMu.Lock()
	mapped := r.mappedNids(uuids)
	if len(mapped) == 0 {
		r.bindMu.Unlock()
		nid, err := r.NidFor(uuids...)
		return nid, nil, err
	}
	defer r.bindMu.Unlock()

	slices.Sort(mapped)
	canonical := mapped[0]
	for _, id := range uuids {
		r.moveUUID(id, canonical)
	}

	Logger.Infof("consolidated %v onto nid %d, replaced %v", uuids, canonical, mapped[1:])
	return canonical, mapped[1:], nil
}

// Remap moves every uuid of nid from to nid to
func (r *Registry) Remap(from, to int32) error {
	if err := r.await(); err != nil {
		return err
	}
	r.bindMu.Lock()
	defer r.bindMu.Unlock()

	ids, _ := r.nidToUUIDs.Load(from)
	for _, id := range ids {
		r.moveUUID(id, to)
	}
	Logger.Infof("remapped %d uuids from nid %d to %d", len(ids), from, to)
	return nil
}

// moveUUID rebinds id to nid to. The caller holds bindMu.
func (r *Registry) moveUUID(id uuid.UUID, to int32) {
	old, loaded := r.uuidToNid.Load(id)
	if loaded && old == to {
		return
	}
	r.uuidToNid.Store(id, to)
	if loaded {
		r.removeUUID(old, id)
	}
	r.bind(id, to)
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Save writes the allocation counter and all new mappings to disk. The counter
// is written first, so a crash never leaves a mapped nid above it.
func (r *Registry) Save() error {
	if err := r.await(); err != nil {
		return err
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if next := r.next.Load(); next != r.savedNext.Load() {
		if err := writeNextNid(filepath.Join(r.dir, NextNidFileName), next); err != nil {
			return err
		}
		r.savedNext.Store(next)
	}

	written := make(map[uuid.UUID]int32)
	err := r.boltDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var putErr error
		r.dirty.Range(func(id uuid.UUID, nid int32) bool {
			v := binary.BigEndian.AppendUint32(nil, uint32(nid))
			if putErr = b.Put(id[:], v); putErr != nil {
				return false
			}
			written[id] = nid
			return true
		})
		return putErr
	})
	if err != nil {
		return errors.Wrapf(err, "writing %s", MapFileName)
	}

	// mappings changed during the save stay dirty
	for id, nid := range written {
		r.dirty.Compute(id, func(current int32, loaded bool) (int32, bool) {
			return current, !loaded || current == nid
		})
	}
	Logger.Debugf("saved %d identities", len(written))
	return nil
}

// Close saves the registry and closes its files. Calling Close more than once
// is a no-op.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	<-r.ready

	var err error
	if r.preloadErr == nil {
		err = r.Save()
	}
	if closeErr := r.boltDB.Close(); err == nil {
		err = closeErr
	}
	return err
}

func readNextNid(path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return int64(entity.FirstNid), nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s", path)
	}
	next, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || next < int64(entity.FirstNid) || next > math.MaxInt32+1 {
		return 0, fmt.Errorf("invalid next nid %q in %s", strings.TrimSpace(string(raw)), path)
	}
	return next, nil
}

func writeNextNid(path string, next int64) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(next, 10)+"\n"), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "installing %s", path)
}
