package lstore

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/tks/lib/common"
	"github.com/ValentinKolb/tks/lib/coordinate"
	"github.com/ValentinKolb/tks/lib/db"
	"github.com/ValentinKolb/tks/lib/db/engines/spine"
	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/ValentinKolb/tks/lib/identity"
	"github.com/ValentinKolb/tks/lib/journal"
	"github.com/ValentinKolb/tks/lib/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func testConfig(dir string) common.StoreConfig {
	cfg := common.DefaultStoreConfig(dir)
	cfg.SpineSize = 64
	cfg.Workers = 4
	return cfg
}

func openStore(t *testing.T, cfg common.StoreConfig, opts ...Option) store.IStore {
	t.Helper()
	st, err := Open(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// committedStamp writes a committed stamp and returns its nid
func committedStamp(t *testing.T, st store.IStore, time int64, module, path int32) int32 {
	t.Helper()
	id := uuid.New()
	nid, err := st.NidFor(id)
	require.NoError(t, err)
	s := entity.Stamp{Status: entity.StatusActive, Time: time, Author: module, Module: module, Path: path}
	require.NoError(t, st.WriteChronology(entity.NewChronology(entity.NewStampHeader(nid, id), entity.NewStampVersion(s)), entity.ActivityLocalEdit))
	return nid
}

// concept allocates the nid of a new concept
func concept(t *testing.T, st store.IStore) entity.Header {
	t.Helper()
	id := uuid.New()
	nid, err := st.NidFor(id)
	require.NoError(t, err)
	return entity.NewConceptHeader(nid, id)
}

func stampNids(c entity.Chronology) []int32 {
	nids := make([]int32, 0, len(c.Versions))
	for _, v := range c.Versions {
		nids = append(nids, v.StampNid)
	}
	return nids
}

// recorder is a journal writer and search indexer keeping everything it receives
type recorder struct {
	mu         sync.Mutex
	nids       []int32
	activities []entity.ActivityKind
	indexed    int
}

func (r *recorder) Write(c entity.Chronology, activity entity.ActivityKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nids = append(r.nids, c.Nid())
	r.activities = append(r.activities, activity)
	return nil
}

func (r *recorder) Index(entity.Chronology) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed++
	return nil
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestConcurrentWritesResolveByTime(t *testing.T) {
	st := openStore(t, testConfig(t.TempDir()))

	path, module := entity.FirstNid+1000, entity.FirstNid+1001
	s1 := committedStamp(t, st, 100, module, path)
	s2 := committedStamp(t, st, 200, module, path)
	h := concept(t, st)

	v1 := entity.NewConceptVersion(s1, entity.Stamp{Status: entity.StatusActive, Author: module, Module: module, Path: path})
	v2 := entity.NewConceptVersion(s2, entity.Stamp{Status: entity.StatusActive, Author: module, Module: module, Path: path})

	var wg sync.WaitGroup
	for _, v := range []entity.Version{v1, v2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, st.WriteChronology(entity.NewChronology(h, v), entity.ActivityLocalEdit))
		}()
	}
	wg.Wait()

	c, ok, err := st.Chronology(h.Nid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h.UUIDs, c.Header.UUIDs)
	assert.ElementsMatch(t, []int32{s1, s2}, stampNids(c))

	latest, found, err := st.Latest(h.Nid, coordinate.New(entity.StampPosition{Time: 150, PathNid: path}))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s1, latest.StampNid)
	assert.Equal(t, int64(100), latest.Time)

	latest, found, err = st.Latest(h.Nid, coordinate.New(entity.StampPosition{Time: 250, PathNid: path}))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s2, latest.StampNid)

	_, found, err = st.Latest(h.Nid, coordinate.New(entity.StampPosition{Time: 50, PathNid: path}))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManyWritersSameNid(t *testing.T) {
	st := openStore(t, testConfig(t.TempDir()))

	const writers = 32
	path := entity.FirstNid + 1000
	h := concept(t, st)
	stamps := make([]int32, writers)
	for i := range stamps {
		stamps[i] = committedStamp(t, st, int64(100+i), path, path)
	}

	var wg sync.WaitGroup
	for _, s := range stamps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := entity.NewConceptVersion(s, entity.Stamp{Status: entity.StatusActive, Path: path, Module: path})
			assert.NoError(t, st.WriteChronology(entity.NewChronology(h, v), entity.ActivityLocalEdit))
		}()
	}
	wg.Wait()

	c, _, err := st.Chronology(h.Nid)
	require.NoError(t, err)
	assert.ElementsMatch(t, stamps, stampNids(c), "no write is lost")
}

// Writers moving one semantic between two referenced components concurrently
// must leave exactly one citation, under the component the stored header names.
func TestConcurrentRetargetKeepsCitation(t *testing.T) {
	st := openStore(t, testConfig(t.TempDir()))

	const writers = 32
	path := entity.FirstNid + 1000
	patternNid := entity.FirstNid + 2000
	a, b := concept(t, st), concept(t, st)
	semanticID := uuid.New()
	semanticNid, err := st.NidFor(semanticID)
	require.NoError(t, err)

	stamps := make([]int32, writers)
	for i := range stamps {
		stamps[i] = committedStamp(t, st, int64(100+i), path, path)
	}

	var wg sync.WaitGroup
	for i, s := range stamps {
		referenced := a.Nid
		if i%2 == 1 {
			referenced = b.Nid
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := entity.NewSemanticHeader(semanticNid, patternNid, referenced, semanticID)
			v := entity.NewSemanticVersion(s, entity.Stamp{Status: entity.StatusActive, Path: path, Module: path})
			assert.NoError(t, st.WriteChronology(entity.NewChronology(h, v), entity.ActivityLocalEdit))
		}()
	}
	wg.Wait()

	c, _, err := st.Chronology(semanticNid)
	require.NoError(t, err)
	stored, other := a.Nid, b.Nid
	if c.Header.ReferencedNid == b.Nid {
		stored, other = b.Nid, a.Nid
	}

	citing, err := st.CitingNids(stored)
	require.NoError(t, err)
	assert.Equal(t, []int32{semanticNid}, citing)
	citing, err = st.CitingNids(other)
	require.NoError(t, err)
	assert.Empty(t, citing)
}

func TestTransactions(t *testing.T) {
	st := openStore(t, testConfig(t.TempDir()))
	path, module := entity.FirstNid+1000, entity.FirstNid+1001
	h := concept(t, st)

	// committed transaction
	tx := st.Begin("edit")
	s1, err := tx.NewStamp(entity.StatusActive, module, module, path)
	require.NoError(t, err)
	require.NoError(t, st.WriteChronology(entity.NewChronology(h, entity.NewConceptVersion(s1, entity.Stamp{Status: entity.StatusActive, Module: module, Path: path})), entity.ActivityLocalEdit))

	_, found, err := st.Latest(h.Nid, coordinate.New(entity.StampPosition{Time: 1000, PathNid: path}))
	require.NoError(t, err)
	assert.False(t, found, "uncommitted versions have no time yet")

	require.NoError(t, tx.Commit(300))
	stamp, ok, err := st.StampFor(s1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(300), stamp.Time)

	latest, found, err := st.Latest(h.Nid, coordinate.New(entity.StampPosition{Time: 1000, PathNid: path}))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s1, latest.StampNid)

	// canceled transaction, its version is collected by the next merge
	tx = st.Begin("abandoned")
	s2, err := tx.NewStamp(entity.StatusActive, module, module, path)
	require.NoError(t, err)
	require.NoError(t, st.WriteChronology(entity.NewChronology(h, entity.NewConceptVersion(s2, entity.Stamp{Status: entity.StatusActive, Module: module, Path: path})), entity.ActivityLocalEdit))
	require.NoError(t, tx.Cancel())
	assert.True(t, st.IsCanceled(s2))

	s3 := committedStamp(t, st, 400, module, path)
	require.NoError(t, st.WriteChronology(entity.NewChronology(h, entity.NewConceptVersion(s3, entity.Stamp{Status: entity.StatusActive, Module: module, Path: path})), entity.ActivityLocalEdit))

	c, _, err := st.Chronology(h.Nid)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{s1, s3}, stampNids(c))
	assert.Equal(t, uint64(1), st.GetInfo().Merge.Collected)
}

func TestRecoveryOnReopen(t *testing.T) {
	dir := t.TempDir()
	path := entity.FirstNid + 1000

	st, err := Open(testConfig(dir))
	require.NoError(t, err)
	h := concept(t, st)
	tx := st.Begin("crashed")
	stampNid, err := tx.NewStamp(entity.StatusActive, path, path, path)
	require.NoError(t, err)
	require.NoError(t, st.WriteChronology(entity.NewChronology(h, entity.NewConceptVersion(stampNid, entity.Stamp{Status: entity.StatusActive, Path: path})), entity.ActivityLocalEdit))

	// the transaction still claims the stamp, so closing leaves it alone
	require.NoError(t, st.Close())

	st = openStore(t, testConfig(dir))
	assert.True(t, st.IsCanceled(stampNid))
	stamp, ok, err := st.StampFor(stampNid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entity.StatusCanceled, stamp.Status)
	assert.Equal(t, entity.TimeCanceled, stamp.Time)

	_, found, err := st.Latest(h.Nid, coordinate.Latest(path))
	require.NoError(t, err)
	assert.False(t, found)

	report, err := st.Recover()
	require.NoError(t, err)
	assert.Equal(t, 0, report.Canceled, "recovery is idempotent")
	assert.Equal(t, 1, report.Total)
}

func TestCancelUncommittedKeepsCommit(t *testing.T) {
	st := openStore(t, testConfig(t.TempDir()))
	impl := st.(*storeImpl)
	path := entity.FirstNid + 1000

	tx := st.Begin("committed")
	committed, err := tx.NewStamp(entity.StatusActive, path, path, path)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(500))

	stamp, changed, err := impl.CancelUncommitted(committed)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(500), stamp.Time)
	assert.False(t, st.IsCanceled(committed))

	tx = st.Begin("pending")
	pending, err := tx.NewStamp(entity.StatusActive, path, path, path)
	require.NoError(t, err)
	stamp, changed, err = impl.CancelUncommitted(pending)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, entity.StatusCanceled, stamp.Status)
	assert.True(t, st.IsCanceled(pending))

	_, _, err = impl.CancelUncommitted(entity.FirstNid + 5000)
	assert.Error(t, err)
}

func TestIndexes(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(testConfig(dir))
	require.NoError(t, err)

	path := entity.FirstNid + 1000
	s := committedStamp(t, st, 100, path, path)
	stamp := entity.Stamp{Status: entity.StatusActive, Path: path, Module: path}

	patternID := uuid.New()
	patternNid, err := st.NidFor(patternID)
	require.NoError(t, err)
	require.NoError(t, st.WriteChronology(entity.NewChronology(entity.NewPatternHeader(patternNid, patternID),
		entity.NewPatternVersion(s, stamp, entity.PatternDefinition{})), entity.ActivityLocalEdit))

	h := concept(t, st)
	require.NoError(t, st.WriteChronology(entity.NewChronology(h, entity.NewConceptVersion(s, stamp)), entity.ActivityLocalEdit))

	semanticID := uuid.New()
	semanticNid, err := st.NidFor(semanticID)
	require.NoError(t, err)
	require.NoError(t, st.WriteChronology(entity.NewChronology(entity.NewSemanticHeader(semanticNid, patternNid, h.Nid, semanticID),
		entity.NewSemanticVersion(s, stamp, entity.StringField("description"))), entity.ActivityLocalEdit))

	check := func(st store.IStore) {
		citing, err := st.CitingNids(h.Nid)
		require.NoError(t, err)
		assert.Equal(t, []int32{semanticNid}, citing)
		assert.Equal(t, []int32{semanticNid}, st.SemanticNidsOfPattern(patternNid))
		assert.Equal(t, []int32{h.Nid}, st.NidsOfType(entity.ConceptChronologyToken))
		assert.Equal(t, []int32{patternNid}, st.NidsOfType(entity.PatternChronologyToken))
		assert.Equal(t, []int32{s}, st.NidsOfType(entity.StampChronologyToken))
	}
	check(st)
	require.NoError(t, st.Close())

	check(openStore(t, testConfig(dir)))
}

// A record lost underneath the index (e.g. a crash between the saves of the
// record map and the index maps) must not leave its citation behind.
func TestReopenRebuildsCitations(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	st, err := Open(cfg)
	require.NoError(t, err)

	path := entity.FirstNid + 1000
	s := committedStamp(t, st, 100, path, path)
	stamp := entity.Stamp{Status: entity.StatusActive, Path: path, Module: path}
	h := concept(t, st)
	require.NoError(t, st.WriteChronology(entity.NewChronology(h, entity.NewConceptVersion(s, stamp)), entity.ActivityLocalEdit))

	semanticID := uuid.New()
	semanticNid, err := st.NidFor(semanticID)
	require.NoError(t, err)
	require.NoError(t, st.WriteChronology(entity.NewChronology(entity.NewSemanticHeader(semanticNid, entity.FirstNid+2000, h.Nid, semanticID),
		entity.NewSemanticVersion(s, stamp)), entity.ActivityLocalEdit))
	require.NoError(t, st.Close())

	records, err := spine.NewSpinedDB[[]byte](spine.Options{Dir: filepath.Join(dir, RecordsDir), SpineSize: cfg.SpineSize}, db.BytesCodec{})
	require.NoError(t, err)
	removed, err := records.Remove(semanticNid)
	require.NoError(t, err)
	require.True(t, removed)
	require.NoError(t, records.Close())

	st = openStore(t, cfg)
	_, ok, err := st.Get(semanticNid)
	require.NoError(t, err)
	require.False(t, ok)

	citing, err := st.CitingNids(h.Nid)
	require.NoError(t, err)
	assert.Empty(t, citing)
	assert.Empty(t, st.SemanticNidsOfPattern(entity.FirstNid+2000))
}

func TestEraseAndMergeThenErase(t *testing.T) {
	st := openStore(t, testConfig(t.TempDir()))
	path := entity.FirstNid + 1000
	s1 := committedStamp(t, st, 100, path, path)
	s2 := committedStamp(t, st, 200, path, path)
	stamp := entity.Stamp{Status: entity.StatusActive, Path: path, Module: path}

	a := concept(t, st)
	b := concept(t, st)
	require.NoError(t, st.WriteChronology(entity.NewChronology(a, entity.NewConceptVersion(s1, stamp)), entity.ActivityLocalEdit))
	require.NoError(t, st.WriteChronology(entity.NewChronology(b, entity.NewConceptVersion(s2, stamp)), entity.ActivityLocalEdit))

	semanticID := uuid.New()
	semanticNid, err := st.NidFor(semanticID)
	require.NoError(t, err)
	patternNid := entity.FirstNid + 2000
	require.NoError(t, st.WriteChronology(entity.NewChronology(entity.NewSemanticHeader(semanticNid, patternNid, b.Nid, semanticID),
		entity.NewSemanticVersion(s1, stamp)), entity.ActivityLocalEdit))

	require.NoError(t, st.MergeThenErase(b.Nid, a.Nid))

	c, ok, err := st.Chronology(a.Nid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []int32{s1, s2}, stampNids(c))
	assert.ElementsMatch(t, append(a.UUIDs, b.UUIDs...), c.Header.UUIDs)
	assert.Equal(t, a.UUIDs[0], c.Header.PrimaryUUID())

	_, ok, err = st.Get(b.Nid)
	require.NoError(t, err)
	assert.False(t, ok)

	citing, err := st.CitingNids(a.Nid)
	require.NoError(t, err)
	assert.Equal(t, []int32{semanticNid}, citing)
	citing, err = st.CitingNids(b.Nid)
	require.NoError(t, err)
	assert.Empty(t, citing)

	semantic, _, err := st.Chronology(semanticNid)
	require.NoError(t, err)
	assert.Equal(t, a.Nid, semantic.Header.ReferencedNid)

	nid, err := st.NidFor(b.UUIDs[0])
	require.NoError(t, err)
	assert.Equal(t, a.Nid, nid)

	// erasing the semantic severs its own citation
	require.NoError(t, st.Erase(semanticNid))
	citing, err = st.CitingNids(a.Nid)
	require.NoError(t, err)
	assert.Empty(t, citing)
	assert.Empty(t, st.SemanticNidsOfPattern(patternNid))

	var se *store.Error
	require.ErrorAs(t, st.MergeThenErase(semanticNid, a.Nid), &se)
	assert.Equal(t, store.RetCNotFound, se.Code)
}

func TestPutRaw(t *testing.T) {
	st := openStore(t, testConfig(t.TempDir()))
	path := entity.FirstNid + 1000
	s1 := committedStamp(t, st, 100, path, path)
	s2 := committedStamp(t, st, 200, path, path)
	stamp := entity.Stamp{Status: entity.StatusActive, Path: path, Module: path}
	h := concept(t, st)

	require.NoError(t, st.WriteChronology(entity.NewChronology(h, entity.NewConceptVersion(s1, stamp)), entity.ActivityLocalEdit))
	replacement := entity.NewChronology(h, entity.NewConceptVersion(s2, stamp)).Bytes()
	require.NoError(t, st.PutRaw(h.Nid, replacement))

	record, ok, err := st.Get(h.Nid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, bytes.Equal(replacement, record), "put replaces instead of merging")

	var se *store.Error
	require.ErrorAs(t, st.PutRaw(h.Nid+1, replacement), &se)
	assert.Equal(t, store.RetCConsistency, se.Code)
}

func TestErrors(t *testing.T) {
	st := openStore(t, testConfig(t.TempDir()))

	err := st.Write([]byte{0, 0, 0, 1}, entity.ActivityLocalEdit)
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, store.RetCConsistency, se.Code)
	assert.ErrorIs(t, err, entity.ErrMalformedRecord)

	a, b := uuid.New(), uuid.New()
	_, err = st.NidFor(a)
	require.NoError(t, err)
	_, err = st.NidFor(b)
	require.NoError(t, err)
	_, err = st.NidFor(a, b)
	assert.ErrorIs(t, err, identity.ErrIdentityConflict)

	_, ok, err := st.Chronology(entity.FirstNid + 5000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotifications(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.JournalFile = filepath.Join(dir, "changes.journal")

	rec := &recorder{}
	st, err := Open(cfg, WithJournal(rec), WithSearchIndexer(rec))
	require.NoError(t, err)

	path := entity.FirstNid + 1000
	s := committedStamp(t, st, 100, path, path)
	h := concept(t, st)
	require.NoError(t, st.WriteChronology(entity.NewChronology(h, entity.NewConceptVersion(s, entity.Stamp{Status: entity.StatusActive, Path: path})), entity.ActivityLoadingChangeSet))
	require.NoError(t, st.Erase(h.Nid))
	require.NoError(t, st.Sync())

	rec.mu.Lock()
	assert.Equal(t, []int32{s, h.Nid}, rec.nids, "repair is not journaled")
	assert.Equal(t, []entity.ActivityKind{entity.ActivityLocalEdit, entity.ActivityLoadingChangeSet}, rec.activities)
	assert.Equal(t, 2, rec.indexed)
	rec.mu.Unlock()
	assert.Equal(t, uint64(2), st.GetInfo().Notified)

	require.NoError(t, st.Close())

	n, err := journal.Replay(cfg.JournalFile, func(e journal.Entry) error {
		_, err := e.Chronology()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPathOrigins(t *testing.T) {
	cfg := testConfig(t.TempDir())
	// the first nid of a fresh store is the origin pattern below
	cfg.PathOriginPatternNid = entity.FirstNid
	st := openStore(t, cfg)

	patternID := uuid.New()
	patternNid, err := st.NidFor(patternID)
	require.NoError(t, err)
	require.Equal(t, cfg.PathOriginPatternNid, patternNid)

	trunk, branch := entity.FirstNid+1000, entity.FirstNid+1001
	s1 := committedStamp(t, st, 100, trunk, trunk)
	s2 := committedStamp(t, st, 200, trunk, trunk)
	sOrigin := committedStamp(t, st, 50, trunk, trunk)

	// branch forks from trunk at time 150
	originID := uuid.New()
	originNid, err := st.NidFor(originID)
	require.NoError(t, err)
	require.NoError(t, st.WriteChronology(entity.NewChronology(
		entity.NewSemanticHeader(originNid, patternNid, branch, originID),
		entity.NewSemanticVersion(sOrigin, entity.Stamp{Status: entity.StatusActive, Path: trunk},
			entity.PositionField(entity.StampPosition{Time: 150, PathNid: trunk}))), entity.ActivityLocalEdit))

	h := concept(t, st)
	for _, s := range []int32{s1, s2} {
		require.NoError(t, st.WriteChronology(entity.NewChronology(h, entity.NewConceptVersion(s, entity.Stamp{Status: entity.StatusActive, Path: trunk})), entity.ActivityLocalEdit))
	}

	latest, found, err := st.Latest(h.Nid, coordinate.Latest(branch))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s1, latest.StampNid, "versions on trunk after the fork are not visible on the branch")

	latest, found, err = st.Latest(h.Nid, coordinate.Latest(trunk))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s2, latest.StampNid)
}

func TestInfoAndMetrics(t *testing.T) {
	st := openStore(t, testConfig(t.TempDir()))
	path := entity.FirstNid + 1000
	committedStamp(t, st, 100, path, path)

	info := st.GetInfo()
	assert.Equal(t, 1, info.Stamps)
	assert.Equal(t, 1, info.Identities)
	assert.Empty(t, info.StartupErr)
	assert.Equal(t, 1, info.Records.Entries)

	var buf bytes.Buffer
	st.WriteMetrics(&buf)
	assert.Contains(t, buf.String(), "tks_writes_total 1")
	assert.Contains(t, buf.String(), "tks_merge_total")
}

func TestCloseStopsGoroutines(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.FlushInterval = 10 * time.Millisecond

	before := goleak.IgnoreCurrent()
	st, err := Open(cfg, WithJournal(&recorder{}))
	require.NoError(t, err)
	path := entity.FirstNid + 1000
	committedStamp(t, st, 100, path, path)
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	goleak.VerifyNone(t, before)

	err = st.Write(entity.NewChronology(entity.NewConceptHeader(entity.FirstNid+1, uuid.New())).Bytes(), entity.ActivityLocalEdit)
	var se *store.Error
	assert.True(t, errors.As(err, &se))
}
