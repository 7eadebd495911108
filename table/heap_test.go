package table

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"daemondb/storage/buffer"
	"daemondb/storage/disk"
)

func newTestHeap(t *testing.T, poolSize int) *Heap {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "heap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	pool := buffer.New(poolSize, dm)
	h, _, err := Create(pool)
	require.NoError(t, err)
	return h
}

func TestInsertAndGetTuple(t *testing.T) {
	h := newTestHeap(t, 8)

	rid, err := h.InsertTuple([]byte("hello"), nil)
	require.NoError(t, err)

	got, err := h.GetTuple(rid, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestUpdateTupleInPlace(t *testing.T) {
	h := newTestHeap(t, 8)

	rid, err := h.InsertTuple([]byte("aaaa"), nil)
	require.NoError(t, err)

	inPlace, err := h.UpdateTuple(rid, []byte("bb"), nil)
	require.NoError(t, err)
	require.True(t, inPlace)

	got, err := h.GetTuple(rid, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("bb"), got)
}

func TestUpdateTupleTooBigTombstones(t *testing.T) {
	h := newTestHeap(t, 8)

	rid, err := h.InsertTuple([]byte("a"), nil)
	require.NoError(t, err)

	grown := make([]byte, 64)
	for i := range grown {
		grown[i] = 'x'
	}
	inPlace, err := h.UpdateTuple(rid, grown, nil)
	require.NoError(t, err)
	require.False(t, inPlace)

	_, err = h.GetTuple(rid, nil)
	require.Error(t, err)
}

func TestMarkDeleteThenGetFails(t *testing.T) {
	h := newTestHeap(t, 8)

	rid, err := h.InsertTuple([]byte("gone"), nil)
	require.NoError(t, err)

	require.NoError(t, h.MarkDelete(rid, nil))

	_, err = h.GetTuple(rid, nil)
	require.Error(t, err)
}

func TestManyInsertsSpanPagesAndIterate(t *testing.T) {
	h := newTestHeap(t, 16)

	const n = 2000
	rids := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		data := []byte(fmt.Sprintf("row-%05d-padding-to-force-page-splits", i))
		rid, err := h.InsertTuple(data, nil)
		require.NoError(t, err)
		rids[rid.String()] = false
	}

	it, err := h.Begin(nil)
	require.NoError(t, err)

	count := 0
	for it.Valid() {
		_, err := it.Tuple()
		require.NoError(t, err)
		_, seen := rids[it.RID().String()]
		require.True(t, seen)
		count++
		_, err = it.Next()
		require.NoError(t, err)
	}
	require.Equal(t, n, count)
}

func TestIteratorSkipsDeletedTuples(t *testing.T) {
	h := newTestHeap(t, 8)

	var kept []string
	for i := 0; i < 20; i++ {
		rid, err := h.InsertTuple([]byte(fmt.Sprintf("v%02d", i)), nil)
		require.NoError(t, err)
		if i%2 == 0 {
			require.NoError(t, h.MarkDelete(rid, nil))
		} else {
			kept = append(kept, rid.String())
		}
	}

	it, err := h.Begin(nil)
	require.NoError(t, err)

	var seen []string
	for it.Valid() {
		seen = append(seen, it.RID().String())
		_, err := it.Next()
		require.NoError(t, err)
	}
	require.ElementsMatch(t, kept, seen)
}

func TestReopenHeapPreservesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	dm, err := disk.Open(path)
	require.NoError(t, err)
	pool := buffer.New(16, dm)
	h, firstPageID, err := Create(pool)
	require.NoError(t, err)

	const n = 500
	for i := 0; i < n; i++ {
		_, err := h.InsertTuple([]byte(fmt.Sprintf("row-%05d-padding", i)), nil)
		require.NoError(t, err)
	}
	pool.FlushAllPages()
	require.NoError(t, dm.Close())

	dm2, err := disk.Open(path)
	require.NoError(t, err)
	defer dm2.Close()
	pool2 := buffer.New(16, dm2)
	h2, err := Open(pool2, firstPageID)
	require.NoError(t, err)

	it, err := h2.Begin(nil)
	require.NoError(t, err)
	count := 0
	for it.Valid() {
		count++
		_, err := it.Next()
		require.NoError(t, err)
	}
	require.Equal(t, n, count)
}
