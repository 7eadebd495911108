package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"daemondb/storage/page"
)

// fakeDisk is an in-memory stand-in for storage/disk.Manager, enough to
// exercise the pool's eviction and I/O paths without touching a real file.
type fakeDisk struct {
	mu     sync.Mutex
	pages  map[page.ID][page.Size]byte
	nextID page.ID
	writes map[page.ID]int
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{
		pages:  make(map[page.ID][page.Size]byte),
		writes: make(map[page.ID]int),
	}
}

func (f *fakeDisk) ReadPage(id page.ID, buf *[page.Size]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := f.pages[id]
	*buf = data
	return nil
}

func (f *fakeDisk) WritePage(id page.ID, buf *[page.Size]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[id] = *buf
	f.writes[id]++
	return nil
}

func (f *fakeDisk) AllocatePage() (page.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.pages[id] = [page.Size]byte{}
	return id, nil
}

func (f *fakeDisk) DeallocatePage(id page.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, id)
	return nil
}

func TestNewPageAndFetchPage(t *testing.T) {
	disk := newFakeDisk()
	p := New(3, disk)

	pg, err := p.NewPage()
	require.NoError(t, err)
	require.NotNil(t, pg)
	pg.Data[0] = 0xAB
	require.True(t, p.UnpinPage(pg.ID, true))

	fetched, err := p.FetchPage(pg.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Equal(t, byte(0xAB), fetched.Data[0])
}

func TestFetchPageHitBumpsPinCount(t *testing.T) {
	disk := newFakeDisk()
	p := New(2, disk)

	pg, err := p.NewPage()
	require.NoError(t, err)

	again, err := p.FetchPage(pg.ID)
	require.NoError(t, err)
	require.Equal(t, 2, again.PinCount)

	require.True(t, p.UnpinPage(pg.ID, false))
	require.True(t, p.UnpinPage(pg.ID, false))
}

func TestPoolExhaustionReturnsNil(t *testing.T) {
	disk := newFakeDisk()
	p := New(1, disk)

	pg, err := p.NewPage()
	require.NoError(t, err)
	require.NotNil(t, pg)

	// Sole frame is still pinned: no frame available for a second page.
	second, err := p.NewPage()
	require.NoError(t, err)
	require.Nil(t, second)
}

func TestUnpinPageUnknownPageFails(t *testing.T) {
	disk := newFakeDisk()
	p := New(2, disk)
	require.False(t, p.UnpinPage(99, false))
}

func TestFlushPageWritesWithoutClearingDirtyBit(t *testing.T) {
	disk := newFakeDisk()
	p := New(2, disk)

	pg, err := p.NewPage()
	require.NoError(t, err)
	pg.Data[1] = 7
	require.True(t, p.UnpinPage(pg.ID, true))

	require.True(t, p.FlushPage(pg.ID))
	require.Equal(t, 1, disk.writes[pg.ID])

	frameID := p.pageTable[pg.ID]
	require.True(t, p.frames[frameID].IsDirty)
}

func TestDeletePageRejectsPinned(t *testing.T) {
	disk := newFakeDisk()
	p := New(2, disk)

	pg, err := p.NewPage()
	require.NoError(t, err)
	require.False(t, p.DeletePage(pg.ID))

	require.True(t, p.UnpinPage(pg.ID, false))
	require.True(t, p.DeletePage(pg.ID))
	require.True(t, p.DeletePage(pg.ID)) // idempotent
}

// TestEvictionWritesBackDirtyVictim reproduces the pool-of-two scenario:
// NewPage(A), NewPage(B), unpin A dirty, fetch C evicts A via LRU and
// writes it back; later re-fetching A reads the flushed bytes from disk.
func TestEvictionWritesBackDirtyVictim(t *testing.T) {
	disk := newFakeDisk()
	p := New(2, disk)

	a, err := p.NewPage()
	require.NoError(t, err)
	aID := a.ID
	a.Data[0] = 0x11
	require.True(t, p.UnpinPage(aID, true))

	b, err := p.NewPage()
	require.NoError(t, err)
	bID := b.ID
	require.True(t, p.UnpinPage(bID, false))

	// Both frames are unpinned and evictable; LRU order is A then B since
	// A was unpinned first. Fetching a brand new page C requires a victim.
	c, err := p.NewPage()
	require.NoError(t, err)
	require.NotNil(t, c)
	require.True(t, p.UnpinPage(c.ID, false))

	require.Equal(t, 1, disk.writes[aID], "dirty victim A must be flushed on eviction")

	refetched, err := p.FetchPage(aID)
	require.NoError(t, err)
	require.NotNil(t, refetched)
	require.Equal(t, byte(0x11), refetched.Data[0])
}
