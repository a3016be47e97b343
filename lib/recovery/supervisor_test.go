package recovery

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStamps struct {
	mu        sync.Mutex
	stamps    map[int32]entity.Stamp
	rewrites  int
	failWrite bool
}

func (m *memStamps) StampNids() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	nids := make([]int32, 0, len(m.stamps))
	for nid := range m.stamps {
		nids = append(nids, nid)
	}
	sort.Slice(nids, func(i, j int) bool { return nids[i] < nids[j] })
	return nids
}

func (m *memStamps) StampFor(nid int32) (entity.Stamp, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stamps[nid]
	return s, ok, nil
}

func (m *memStamps) CancelUncommitted(nid int32) (entity.Stamp, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stamps[nid]
	if !ok || !s.IsUncommitted() {
		return s, false, nil
	}
	if m.failWrite {
		return s, false, fmt.Errorf("read-only")
	}
	s = s.Canceled()
	m.stamps[nid] = s
	m.rewrites++
	return s, true, nil
}

func (m *memStamps) commit(nid int32, time int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stamps[nid]
	s.Time = time
	m.stamps[nid] = s
}

type claimSet map[int32]bool

func (c claimSet) Claims(nid int32) bool { return c[nid] }

// committingClaims commits a claimed stamp and releases the claim while the
// supervisor asks for it, the way a transaction finishing concurrently does
type committingClaims struct {
	stamps *memStamps
	time   int64
}

func (c committingClaims) Claims(nid int32) bool {
	c.stamps.commit(nid, c.time)
	return false
}

const first = entity.FirstNid

func testStamps() *memStamps {
	active := entity.Stamp{Status: entity.StatusActive, Time: 100, Author: 1, Module: 2, Path: 3}
	pending := active
	pending.Time = entity.TimeUncommitted
	return &memStamps{stamps: map[int32]entity.Stamp{
		first:     active,
		first + 1: pending,
		first + 2: pending,
		first + 3: active.Canceled(),
	}}
}

func TestRun(t *testing.T) {
	stamps := testStamps()
	canceled := NewCanceledSet()
	s := NewSupervisor(stamps, claimSet{first + 2: true}, canceled, 2)

	report, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 1, report.Canceled)
	assert.Equal(t, 1, report.Claimed)
	assert.Equal(t, 2, report.Total)

	got, _, _ := stamps.StampFor(first + 1)
	assert.Equal(t, entity.StatusCanceled, got.Status)
	assert.Equal(t, entity.TimeCanceled, got.Time)
	assert.Equal(t, int32(2), got.Module, "other fields are kept")

	got, _, _ = stamps.StampFor(first + 2)
	assert.True(t, got.IsUncommitted(), "claimed stamps are left alone")

	assert.Equal(t, []int32{first + 1, first + 3}, canceled.Nids())
	assert.True(t, canceled.IsCanceled(first+3))
	assert.False(t, canceled.IsCanceled(first))
}

func TestRunIdempotent(t *testing.T) {
	stamps := testStamps()
	canceled := NewCanceledSet()
	s := NewSupervisor(stamps, nil, canceled, 0)

	initial, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, initial.Canceled)

	again, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, again.Canceled)
	assert.Equal(t, initial.Total, again.Total)
	assert.Equal(t, 2, stamps.rewrites)
}

func TestRunKeepsConcurrentCommit(t *testing.T) {
	stamps := testStamps()
	canceled := NewCanceledSet()
	s := NewSupervisor(stamps, committingClaims{stamps: stamps, time: 500}, canceled, 2)

	report, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, report.Canceled)
	assert.Equal(t, 0, stamps.rewrites)

	for _, nid := range []int32{first + 1, first + 2} {
		got, _, _ := stamps.StampFor(nid)
		assert.Equal(t, entity.StatusActive, got.Status)
		assert.Equal(t, int64(500), got.Time)
		assert.False(t, canceled.IsCanceled(nid))
	}
	assert.Equal(t, []int32{first + 3}, canceled.Nids())
}

func TestRunWriteError(t *testing.T) {
	stamps := testStamps()
	stamps.failWrite = true
	_, err := NewSupervisor(stamps, nil, NewCanceledSet(), 1).Run()
	assert.Error(t, err)
}
