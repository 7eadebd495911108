package catalog

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"daemondb/storage/buffer"
	"daemondb/storage/disk"
)

func newTestCatalog(t *testing.T, poolSize int) *Catalog {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return New(buffer.New(poolSize, dm))
}

func TestCreateAndGetTable(t *testing.T) {
	c := newTestCatalog(t, 8)

	info, err := c.CreateTable("widgets")
	require.NoError(t, err)
	require.Equal(t, "widgets", info.Name)
	require.True(t, c.TableExists("widgets"))

	got, err := c.GetTable("widgets")
	require.NoError(t, err)
	require.Same(t, info, got)
}

func TestCreateTableDuplicateFails(t *testing.T) {
	c := newTestCatalog(t, 8)
	_, err := c.CreateTable("widgets")
	require.NoError(t, err)

	_, err = c.CreateTable("widgets")
	require.Error(t, err)
}

func TestGetTableMissingFails(t *testing.T) {
	c := newTestCatalog(t, 8)
	_, err := c.GetTable("nope")
	require.Error(t, err)
}

func firstThreeBytes(tuple []byte) []byte {
	if len(tuple) < 3 {
		return tuple
	}
	return tuple[:3]
}

func TestCreateIndexBackfillsExistingRows(t *testing.T) {
	c := newTestCatalog(t, 16)

	info, err := c.CreateTable("widgets")
	require.NoError(t, err)

	var rids []string
	for i := 0; i < 50; i++ {
		rid, err := info.Heap.InsertTuple([]byte(fmt.Sprintf("%03dpadding", i)), nil)
		require.NoError(t, err)
		rids = append(rids, rid.String())
	}

	idx, err := c.CreateIndex(nil, "by_key", "widgets", firstThreeBytes)
	require.NoError(t, err)
	require.Equal(t, "widgets", idx.TableName)

	for i := 0; i < 50; i++ {
		key := firstThreeBytes([]byte(fmt.Sprintf("%03dpadding", i)))
		rid, found, err := idx.Tree.Search(key)
		require.NoError(t, err)
		require.True(t, found)
		require.Contains(t, rids, rid.String())
	}
}

func TestGetTableIndexesReturnsAll(t *testing.T) {
	c := newTestCatalog(t, 16)
	_, err := c.CreateTable("widgets")
	require.NoError(t, err)

	_, err = c.CreateIndex(nil, "idx_a", "widgets", firstThreeBytes)
	require.NoError(t, err)
	_, err = c.CreateIndex(nil, "idx_b", "widgets", firstThreeBytes)
	require.NoError(t, err)

	indexes := c.GetTableIndexes("widgets")
	require.Len(t, indexes, 2)

	byA, err := c.GetIndex("widgets", "idx_a")
	require.NoError(t, err)
	require.Equal(t, "idx_a", byA.Name)
}

func TestCreateIndexDuplicateFails(t *testing.T) {
	c := newTestCatalog(t, 16)
	_, err := c.CreateTable("widgets")
	require.NoError(t, err)

	_, err = c.CreateIndex(nil, "idx_a", "widgets", firstThreeBytes)
	require.NoError(t, err)

	_, err = c.CreateIndex(nil, "idx_a", "widgets", firstThreeBytes)
	require.Error(t, err)
}

func TestCreateIndexMissingTableFails(t *testing.T) {
	c := newTestCatalog(t, 16)
	_, err := c.CreateIndex(nil, "idx_a", "nope", firstThreeBytes)
	require.Error(t, err)
}
