package identity

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T, dir string) *Registry {
	t.Helper()
	r, err := Open(dir)
	require.NoError(t, err)
	<-r.Ready()
	return r
}

func TestNidForSingle(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	defer r.Close()

	a, b := uuid.New(), uuid.New()

	nidA, err := r.NidFor(a)
	require.NoError(t, err)
	assert.Equal(t, entity.FirstNid, nidA)

	again, err := r.NidFor(a)
	require.NoError(t, err)
	assert.Equal(t, nidA, again)

	nidB, err := r.NidFor(b)
	require.NoError(t, err)
	assert.Equal(t, entity.FirstNid+1, nidB)

	ids, err := r.UUIDsFor(nidA)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, ids)

	_, err = r.NidFor()
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestNidForConcurrent(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	defer r.Close()

	id := uuid.New()
	const workers = 32

	nids := make([]int32, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nid, err := r.NidFor(id)
			assert.NoError(t, err)
			nids[i] = nid
		}(i)
	}
	wg.Wait()

	for _, nid := range nids {
		assert.Equal(t, nids[0], nid)
	}
	assert.Equal(t, 1, r.Count())
}

// Two uuids registered separately stay separate; a later write presenting one
// known uuid together with an unknown alias maps the alias to the known nid.
func TestNidForAliases(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	defer r.Close()

	a, alias, b := uuid.New(), uuid.New(), uuid.New()

	nidA, err := r.NidFor(a)
	require.NoError(t, err)
	nidB, err := r.NidFor(b)
	require.NoError(t, err)
	require.NotEqual(t, nidA, nidB)

	nid, err := r.NidFor(alias, a)
	require.NoError(t, err)
	assert.Equal(t, nidA, nid)

	nid, ok, err := r.NidForExisting(alias)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, nidA, nid)

	ids, err := r.UUIDsFor(nidA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, alias}, ids)

	// a fresh multi uuid set gets one nid
	c, d := uuid.New(), uuid.New()
	nidCD, err := r.NidFor(c, d)
	require.NoError(t, err)
	nidD, _, _ := r.NidForExisting(d)
	assert.Equal(t, nidCD, nidD)
}

// Writers presenting the same fresh uuid set in different orders, or only a
// part of it, must all end up with one nid.
func TestNidForConcurrentAliases(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	defer r.Close()

	for round := 0; round < 200; round++ {
		a, b := uuid.New(), uuid.New()
		sets := [][]uuid.UUID{{a, b}, {b, a}, {b}, {a, b}, {b, a}, {b}}

		nids := make([]int32, len(sets))
		var wg sync.WaitGroup
		for i, set := range sets {
			wg.Add(1)
			go func(i int, set []uuid.UUID) {
				defer wg.Done()
				nid, err := r.NidFor(set...)
				assert.NoError(t, err)
				nids[i] = nid
			}(i, set)
		}
		wg.Wait()

		for i := range nids {
			require.Equal(t, nids[0], nids[i], "round %d: set %d got another nid", round, i)
		}
		nid, err := r.NidFor(a, b)
		require.NoError(t, err)
		assert.Equal(t, nids[0], nid)
	}
}

func TestNidForConflict(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	defer r.Close()

	a, b := uuid.New(), uuid.New()
	_, err := r.NidFor(a)
	require.NoError(t, err)
	_, err = r.NidFor(b)
	require.NoError(t, err)

	_, err = r.NidFor(a, b, uuid.New())
	assert.True(t, errors.Is(err, ErrIdentityConflict), "expected ErrIdentityConflict, got %v", err)
}

func TestConsolidateAndRemap(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	defer r.Close()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	nidA, _ := r.NidFor(a)
	nidB, _ := r.NidFor(b)

	canonical, replaced, err := r.Consolidate(b, a, c)
	require.NoError(t, err)
	assert.Equal(t, nidA, canonical, "the smallest nid is canonical")
	assert.Equal(t, []int32{nidB}, replaced)

	for _, id := range []uuid.UUID{a, b, c} {
		nid, ok, _ := r.NidForExisting(id)
		assert.True(t, ok)
		assert.Equal(t, nidA, nid)
	}
	ids, _ := r.UUIDsFor(nidB)
	assert.Empty(t, ids)

	// after consolidation the aliases no longer conflict
	nid, err := r.NidFor(a, b)
	require.NoError(t, err)
	assert.Equal(t, nidA, nid)

	d := uuid.New()
	nidD, _ := r.NidFor(d)
	require.NoError(t, r.Remap(nidD, nidA))
	nid, _, _ = r.NidForExisting(d)
	assert.Equal(t, nidA, nid)
	ids, _ = r.UUIDsFor(nidA)
	assert.ElementsMatch(t, []uuid.UUID{a, b, c, d}, ids)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	r := openTestRegistry(t, dir)

	a, alias, b := uuid.New(), uuid.New(), uuid.New()
	nidA, err := r.NidFor(a, alias)
	require.NoError(t, err)
	nidB, err := r.NidFor(b)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	raw, err := os.ReadFile(filepath.Join(dir, NextNidFileName))
	require.NoError(t, err)
	assert.Equal(t, "-2147483645\n", string(raw))

	reopened := openTestRegistry(t, dir)
	defer reopened.Close()

	nid, ok, err := reopened.NidForExisting(alias)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, nidA, nid)
	nid, _, _ = reopened.NidForExisting(b)
	assert.Equal(t, nidB, nid)

	// allocation continues after the persisted counter
	fresh, err := reopened.NidFor(uuid.New())
	require.NoError(t, err)
	assert.Equal(t, nidB+1, fresh)
}

func TestCounterBehindMap(t *testing.T) {
	dir := t.TempDir()
	r := openTestRegistry(t, dir)
	for i := 0; i < 5; i++ {
		_, err := r.NidFor(uuid.New())
		require.NoError(t, err)
	}
	require.NoError(t, r.Close())

	// simulate a counter file that lags behind the map
	require.NoError(t, os.WriteFile(filepath.Join(dir, NextNidFileName), []byte("-2147483647\n"), 0o644))

	reopened := openTestRegistry(t, dir)
	defer reopened.Close()
	nid, err := reopened.NidFor(uuid.New())
	require.NoError(t, err)
	assert.Equal(t, entity.FirstNid+5, nid)
}

func TestInvalidCounterFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, NextNidFileName), []byte("not a number"), 0o644))
	_, err := Open(dir)
	assert.Error(t, err)
}
