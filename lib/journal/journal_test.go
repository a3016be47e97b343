package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChronology(nid int32) entity.Chronology {
	stamp := entity.Stamp{Status: entity.StatusActive, Time: 100, Author: 1, Module: 2, Path: 3}
	return entity.NewChronology(entity.NewConceptHeader(nid, uuid.New()), entity.NewConceptVersion(entity.FirstNid, stamp))
}

func TestWriteAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.journal")
	w, err := OpenFileWriter(path)
	require.NoError(t, err)

	written := []entity.Chronology{testChronology(entity.FirstNid + 1), testChronology(entity.FirstNid + 2)}
	require.NoError(t, w.Write(written[0], entity.ActivityLocalEdit))
	require.NoError(t, w.Write(written[1], entity.ActivityDataRepair))
	assert.Equal(t, uint64(2), w.Entries())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(written[0], entity.ActivityLocalEdit), os.ErrClosed)

	var entries []Entry
	n, err := Replay(path, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, entries, 2)

	assert.Equal(t, entity.ActivityLocalEdit, entries[0].Activity)
	assert.Equal(t, entity.ActivityDataRepair, entries[1].Activity)
	for i, e := range entries {
		assert.Equal(t, written[i].Nid(), e.Nid)
		assert.Equal(t, written[i].Bytes(), e.Record)
		c, err := e.Chronology()
		require.NoError(t, err)
		assert.Equal(t, written[i].Header.UUIDs, c.Header.UUIDs)
	}
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.journal")
	for i := int32(0); i < 2; i++ {
		w, err := OpenFileWriter(path)
		require.NoError(t, err)
		require.NoError(t, w.Write(testChronology(entity.FirstNid+i), entity.ActivityLocalEdit))
		require.NoError(t, w.Flush())
		require.NoError(t, w.Close())
	}

	n, err := Replay(path, func(Entry) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReplayTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.journal")
	w, err := OpenFileWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(testChronology(entity.FirstNid), entity.ActivityLocalEdit))
	require.NoError(t, w.Write(testChronology(entity.FirstNid+1), entity.ActivityLocalEdit))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-5], 0o644))

	n, err := Replay(path, func(Entry) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplayMissing(t *testing.T) {
	_, err := Replay(filepath.Join(t.TempDir(), "missing"), func(Entry) error { return nil })
	assert.Error(t, err)
}
