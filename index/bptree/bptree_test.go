package bptree

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"daemondb/storage/buffer"
	"daemondb/storage/disk"
	"daemondb/storage/page"
)

func newTestTree(t *testing.T, poolSize int) *Tree {
	dm, err := disk.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	pool := buffer.New(poolSize, dm)
	tree, _, err := Create(pool)
	require.NoError(t, err)
	return tree
}

func kv(i int) ([]byte, page.RID) {
	return []byte(fmt.Sprintf("key-%05d", i)), page.RID{PageID: page.ID(i), Slot: uint32(i)}
}

func TestInsertAndSearchSingleKey(t *testing.T) {
	tr := newTestTree(t, 16)
	k, rid := kv(1)

	inserted, err := tr.Insert(k, rid)
	require.NoError(t, err)
	require.True(t, inserted)

	got, ok, err := tr.Search(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rid, got)
}

func TestInsertDuplicateRejected(t *testing.T) {
	tr := newTestTree(t, 16)
	k, rid := kv(1)

	ok, err := tr.Insert(k, rid)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.Insert(k, rid)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSearchMissingKey(t *testing.T) {
	tr := newTestTree(t, 16)
	k, _ := kv(1)

	_, ok, err := tr.Search(k)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestManyInsertsForceSplits inserts enough keys to force leaf and
// internal splits, then verifies every key is still findable and an
// ordered scan covers all of them in ascending order.
func TestManyInsertsForceSplits(t *testing.T) {
	tr := newTestTree(t, 64)
	const n = 1000

	for i := 0; i < n; i++ {
		k, rid := kv(i)
		ok, err := tr.Insert(k, rid)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := 0; i < n; i++ {
		k, rid := kv(i)
		got, ok, err := tr.Search(k)
		require.NoError(t, err)
		require.True(t, ok, "key %d missing after inserts", i)
		require.Equal(t, rid, got)
	}

	it, err := tr.SeekGE([]byte(""))
	require.NoError(t, err)
	defer it.Close()

	count := 0
	var prev []byte
	for it.Valid() {
		if prev != nil {
			require.Less(t, string(prev), string(it.Key()))
		}
		prev = append([]byte{}, it.Key()...)
		count++
		if !it.Next() {
			break
		}
	}
	require.Equal(t, n, count)
}

// TestDeleteForcesMergesAndCollapsesRoot drives enough deletions to
// trigger borrows and merges, eventually emptying the tree back down to
// a single leaf root.
func TestDeleteForcesMergesAndCollapsesRoot(t *testing.T) {
	tr := newTestTree(t, 64)
	const n = 300

	for i := 0; i < n; i++ {
		k, rid := kv(i)
		_, err := tr.Insert(k, rid)
		require.NoError(t, err)
	}

	for i := 0; i < n; i++ {
		k, _ := kv(i)
		deleted, err := tr.Delete(k, nil)
		require.NoError(t, err)
		require.True(t, deleted, "key %d should have existed", i)
	}

	for i := 0; i < n; i++ {
		k, _ := kv(i)
		_, ok, err := tr.Search(k)
		require.NoError(t, err)
		require.False(t, ok)
	}

	it, err := tr.SeekGE([]byte(""))
	require.NoError(t, err)
	require.False(t, it.Valid())
	it.Close()
}

func TestDeleteMissingKeyReturnsFalse(t *testing.T) {
	tr := newTestTree(t, 16)
	k, _ := kv(1)
	deleted, err := tr.Delete(k, nil)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestReopenPreservesTree(t *testing.T) {
	dir := t.TempDir()
	dm, err := disk.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)

	pool := buffer.New(32, dm)
	tree, headerID, err := Create(pool)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		k, rid := kv(i)
		_, err := tree.Insert(k, rid)
		require.NoError(t, err)
	}
	tree.Close()
	require.NoError(t, dm.Close())

	dm2, err := disk.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dm2.Close() })
	pool2 := buffer.New(32, dm2)

	reopened, err := Open(pool2, headerID)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		k, rid := kv(i)
		got, ok, err := reopened.Search(k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, rid, got)
	}
}

func TestBeginStartsAtLeftmostKey(t *testing.T) {
	tr := newTestTree(t, 16)
	for i := 0; i < 100; i++ {
		k, rid := kv(i)
		_, err := tr.Insert(k, rid)
		require.NoError(t, err)
	}

	it, err := tr.Begin()
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Valid())
	wantKey, _ := kv(0)
	require.Equal(t, wantKey, it.Key())
}

func TestDebugStringOnEmptyTree(t *testing.T) {
	tr := newTestTree(t, 16)
	require.Equal(t, "leaf#", tr.DebugString()[:5])
}

func TestDebugStringReflectsInsertedKeys(t *testing.T) {
	tr := newTestTree(t, 16)
	for i := 0; i < 200; i++ {
		k, rid := kv(i)
		_, err := tr.Insert(k, rid)
		require.NoError(t, err)
	}

	out := tr.DebugString()
	require.Contains(t, out, "internal#")
	require.Contains(t, out, "leaf#")
	require.Contains(t, out, "key-00000")
	require.Contains(t, out, "key-00199")
}
