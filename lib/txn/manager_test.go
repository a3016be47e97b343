package txn

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStamps is an in-memory StampStore
type memStamps struct {
	mu     sync.Mutex
	next   int32
	stamps map[int32]entity.Stamp
	fail   bool
}

func newMemStamps() *memStamps {
	return &memStamps{next: entity.FirstNid, stamps: map[int32]entity.Stamp{}}
}

func (m *memStamps) StampNid(uuid.UUID) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nid := m.next
	m.next++
	return nid, nil
}

func (m *memStamps) WriteStamp(nid int32, _ uuid.UUID, s entity.Stamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("disk full")
	}
	m.stamps[nid] = s
	return nil
}

func (m *memStamps) RewriteStamp(nid int32, s entity.Stamp) error {
	return m.WriteStamp(nid, uuid.Nil, s)
}

func (m *memStamps) get(nid int32) entity.Stamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stamps[nid]
}

func TestCommit(t *testing.T) {
	stamps := newMemStamps()
	m := NewManager(stamps)

	tx := m.Begin("edit")
	s1, err := tx.NewStamp(entity.StatusActive, 1, 2, 3)
	require.NoError(t, err)
	s2, err := tx.NewStamp(entity.StatusInactive, 1, 2, 3)
	require.NoError(t, err)

	assert.True(t, stamps.get(s1).IsUncommitted())
	assert.True(t, m.Claims(s1))
	assert.True(t, m.Claims(s2))
	assert.Len(t, m.Active(), 1)

	require.NoError(t, tx.Commit(1000))

	assert.Equal(t, entity.Stamp{Status: entity.StatusActive, Time: 1000, Author: 1, Module: 2, Path: 3}, stamps.get(s1))
	assert.Equal(t, entity.StatusInactive, stamps.get(s2).Status)
	assert.Equal(t, int64(1000), stamps.get(s2).Time)
	assert.False(t, m.Claims(s1))
	assert.Empty(t, m.Active())

	assert.ErrorIs(t, tx.Commit(2000), ErrTransactionDone)
	_, err = tx.NewStamp(entity.StatusActive, 1, 2, 3)
	assert.ErrorIs(t, err, ErrTransactionDone)
}

func TestCancel(t *testing.T) {
	stamps := newMemStamps()
	m := NewManager(stamps)

	tx := m.Begin("")
	s, err := tx.NewStamp(entity.StatusActive, 1, 2, 3)
	require.NoError(t, err)
	require.NoError(t, tx.Cancel())

	assert.True(t, stamps.get(s).IsCanceled())
	assert.Equal(t, entity.TimeCanceled, stamps.get(s).Time)
	assert.False(t, m.Claims(s))
	assert.Equal(t, []int32{s}, tx.Stamps())
}

func TestInvalidCommitTime(t *testing.T) {
	m := NewManager(newMemStamps())
	tx := m.Begin("")
	assert.Error(t, tx.Commit(entity.TimeUncommitted))
	// the transaction is still open
	require.NoError(t, tx.Commit(5))
}

func TestFailedWriteReleasesClaim(t *testing.T) {
	stamps := newMemStamps()
	stamps.fail = true
	m := NewManager(stamps)

	tx := m.Begin("")
	_, err := tx.NewStamp(entity.StatusActive, 1, 2, 3)
	require.Error(t, err)
	assert.False(t, m.Claims(entity.FirstNid))
	assert.Empty(t, tx.Stamps())
}

func TestCancelAll(t *testing.T) {
	stamps := newMemStamps()
	m := NewManager(stamps)

	var nids []int32
	for i := 0; i < 3; i++ {
		tx := m.Begin(fmt.Sprintf("t%d", i))
		nid, err := tx.NewStamp(entity.StatusActive, 1, 2, 3)
		require.NoError(t, err)
		nids = append(nids, nid)
	}
	require.NoError(t, m.CancelAll())

	for _, nid := range nids {
		assert.True(t, stamps.get(nid).IsCanceled())
		assert.False(t, m.Claims(nid))
	}
	assert.Empty(t, m.Active())
}
