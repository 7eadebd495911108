// Package buffer implements the Buffer Pool Manager: the page cache that
// mediates all disk I/O for the rest of the storage core.
package buffer

import (
	"fmt"
	"sync"

	"daemondb/storage/page"
	"daemondb/storage/replacer"
)

// DiskManager is the external disk I/O dependency (spec §6), satisfied by
// storage/disk.Manager.
type DiskManager interface {
	ReadPage(id page.ID, buf *[page.Size]byte) error
	WritePage(id page.ID, buf *[page.Size]byte) error
	AllocatePage() (page.ID, error)
	DeallocatePage(id page.ID) error
}

// Pool owns a fixed number of pre-allocated page frames, a free list of
// unused frame ids, a page table mapping resident page ids to frames, and
// an LRU replacer for eviction among unpinned frames. All operations take
// one pool-wide lock (spec §4.2/§5): buffer pool operations are meant to
// be serialized, including the disk I/O they sometimes trigger.
type Pool struct {
	mu sync.Mutex

	frames    []page.Page
	freeList  []int
	pageTable map[page.ID]int
	replacer  *replacer.LRU
	disk      DiskManager
}

// New constructs a pool of poolSize frames backed by disk.
func New(poolSize int, disk DiskManager) *Pool {
	p := &Pool{
		frames:    make([]page.Page, poolSize),
		freeList:  make([]int, poolSize),
		pageTable: make(map[page.ID]int, poolSize),
		replacer:  replacer.NewLRU(poolSize),
		disk:      disk,
	}
	for i := range p.frames {
		p.frames[i].ID = page.InvalidID
		p.freeList[i] = i
	}
	return p
}

// pickVictimFrame returns a frame to (re)use: free list first, then the
// replacer's LRU victim. ok is false when the pool is exhausted (every
// frame pinned).
func (p *Pool) pickVictimFrame() (frameID int, ok bool) {
	if n := len(p.freeList); n > 0 {
		frameID = p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return frameID, true
	}
	return p.replacer.Victim()
}

// evictFrame writes frameID back to disk if dirty and removes its page
// table entry, preparing it to be reused for a different page id.
func (p *Pool) evictFrame(frameID int) error {
	fr := &p.frames[frameID]
	if fr.ID == page.InvalidID {
		return nil
	}
	if fr.IsDirty {
		if err := p.disk.WritePage(fr.ID, &fr.Data); err != nil {
			return fmt.Errorf("buffer: flush frame %d (page %d) during eviction: %w", frameID, fr.ID, err)
		}
	}
	delete(p.pageTable, fr.ID)
	return nil
}

// FetchPage returns the page for id, pinning it. If the page is already
// resident its pin count is simply bumped; otherwise a frame is obtained
// (free list, then LRU victim), the incumbent is flushed if dirty, and id
// is read in from disk. Returns nil if the pool is exhausted.
func (p *Pool) FetchPage(id page.ID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frameID, ok := p.pageTable[id]; ok {
		fr := &p.frames[frameID]
		fr.PinCount++
		p.replacer.Pin(frameID)
		return fr, nil
	}

	frameID, ok := p.pickVictimFrame()
	if !ok {
		return nil, nil
	}
	if err := p.evictFrame(frameID); err != nil {
		return nil, err
	}

	fr := &p.frames[frameID]
	fr.Reset()
	if err := p.disk.ReadPage(id, &fr.Data); err != nil {
		return nil, fmt.Errorf("buffer: read page %d: %w", id, err)
	}
	fr.ID = id
	fr.PinCount = 1
	fr.IsDirty = false
	p.pageTable[id] = frameID
	p.replacer.Pin(frameID)

	fmt.Printf("[BufferPool] MISS page=%d frame=%d\n", id, frameID)
	return fr, nil
}

// NewPage allocates a fresh page id from disk, installs it in an empty or
// victim frame, pins it, and returns it. Returns nil iff every frame is
// currently pinned (pool exhaustion, spec §4.2 failure semantics).
func (p *Pool) NewPage() (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pickVictimFrame()
	if !ok {
		return nil, nil
	}
	if err := p.evictFrame(frameID); err != nil {
		return nil, err
	}

	id, err := p.disk.AllocatePage()
	if err != nil {
		return nil, fmt.Errorf("buffer: allocate page: %w", err)
	}

	fr := &p.frames[frameID]
	fr.Reset()
	fr.ID = id
	fr.PinCount = 1
	fr.IsDirty = false
	p.pageTable[id] = frameID
	p.replacer.Pin(frameID)

	fmt.Printf("[BufferPool] NEW page=%d frame=%d\n", id, frameID)
	return fr, nil
}

// UnpinPage decrements id's pin count, OR-accumulating isDirty into the
// frame's dirty bit. Once the count reaches zero the frame becomes
// evictable. Returns false if id is not resident or already unpinned.
func (p *Pool) UnpinPage(id page.ID, isDirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable[id]
	if !ok {
		return false
	}
	fr := &p.frames[frameID]
	if fr.PinCount == 0 {
		return false
	}
	if isDirty {
		fr.IsDirty = true
	}
	fr.PinCount--
	if fr.PinCount == 0 {
		p.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage unconditionally writes id's bytes to disk if resident. It
// does not clear the dirty bit — spec §9 preserves this asymmetry between
// "force current bytes to disk" and "mark clean" deliberately.
func (p *Pool) FlushPage(id page.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable[id]
	if !ok {
		return false
	}
	fr := &p.frames[frameID]
	if err := p.disk.WritePage(fr.ID, &fr.Data); err != nil {
		return false
	}
	return true
}

// FlushAllPages flushes every resident page.
func (p *Pool) FlushAllPages() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, frameID := range p.pageTable {
		fr := &p.frames[frameID]
		_ = p.disk.WritePage(id, &fr.Data)
	}
}

// DeletePage deallocates id at the disk manager and frees its frame.
// Succeeds idempotently if id is not resident. Fails if id is pinned.
func (p *Pool) DeletePage(id page.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable[id]
	if !ok {
		return true
	}
	fr := &p.frames[frameID]
	if fr.PinCount > 0 {
		return false
	}
	if fr.IsDirty {
		if err := p.disk.WritePage(fr.ID, &fr.Data); err != nil {
			return false
		}
	}
	if err := p.disk.DeallocatePage(id); err != nil {
		return false
	}

	delete(p.pageTable, id)
	fr.Reset()
	fr.ID = page.InvalidID
	p.replacer.Pin(frameID) // drop from evictable set, if present
	p.freeList = append(p.freeList, frameID)
	return true
}
