package table

import (
	"fmt"
	"sync"

	"daemondb/concurrency/txn"
	"daemondb/storage/buffer"
	"daemondb/storage/page"
)

// Heap is a singly-linked chain of slotted heap pages holding one table's
// tuples, backed by the shared buffer pool. Grounded on the teacher's
// HeapFileManager.CreateHeapfile/LoadHeapFile flow (allocate via the pool,
// stamp a fresh header, unpin dirty) and on BusTub's TableHeap, whose
// InsertTuple/GetTuple/MarkDelete/Begin/End shape insert_executor.cpp and
// seq_scan_executor.cpp consume.
type Heap struct {
	pool *buffer.Pool

	mu          sync.Mutex
	firstPageID page.ID
	lastPageID  page.ID
}

// fetch wraps Pool.FetchPage, turning pool exhaustion (nil, nil) into an
// error so every caller can treat FetchPage uniformly.
func fetch(pool *buffer.Pool, id page.ID) (*page.Page, error) {
	pg, err := pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	if pg == nil {
		return nil, fmt.Errorf("table: buffer pool exhausted fetching page %d", id)
	}
	return pg, nil
}

// newPage wraps Pool.NewPage the same way.
func newPage(pool *buffer.Pool) (*page.Page, error) {
	pg, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	if pg == nil {
		return nil, fmt.Errorf("table: buffer pool exhausted allocating a new page")
	}
	return pg, nil
}

// Create allocates a new, empty heap and returns it along with the id of
// its first page (the handle a catalog entry persists).
func Create(pool *buffer.Pool) (*Heap, page.ID, error) {
	pg, err := newPage(pool)
	if err != nil {
		return nil, page.InvalidID, fmt.Errorf("table: create heap: %w", err)
	}
	initHeapPage(pg)
	id := pg.ID
	pool.UnpinPage(id, true)

	return &Heap{pool: pool, firstPageID: id, lastPageID: id}, id, nil
}

// Open reattaches to an existing heap given the id of its first page,
// walking the page chain to find the current tail for appends.
func Open(pool *buffer.Pool, firstPageID page.ID) (*Heap, error) {
	h := &Heap{pool: pool, firstPageID: firstPageID, lastPageID: firstPageID}

	id := firstPageID
	for {
		pg, err := fetch(pool, id)
		if err != nil {
			return nil, fmt.Errorf("table: open heap: %w", err)
		}
		pg.Latch.RLock()
		next := getNextPageID(pg)
		pg.Latch.RUnlock()
		pool.UnpinPage(id, false)

		if next == page.InvalidID {
			h.lastPageID = id
			return h, nil
		}
		id = next
	}
}

// FirstPageID returns the id a catalog entry should persist to reopen
// this heap later.
func (h *Heap) FirstPageID() page.ID {
	return h.firstPageID
}

// InsertTuple appends data as a new tuple, allocating a fresh page onto
// the chain if the current tail has no room, and returns the RID the
// caller should store in any index entries for it.
func (h *Heap) InsertTuple(data []byte, _ *txn.Transaction) (page.RID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pg, err := fetch(h.pool, h.lastPageID)
	if err != nil {
		return page.RID{}, fmt.Errorf("table: insert: fetch tail: %w", err)
	}
	pg.Latch.Lock()

	if freeSpace(pg) < len(data) {
		pg.Latch.Unlock()
		h.pool.UnpinPage(pg.ID, false)

		newPg, err := newPage(h.pool)
		if err != nil {
			return page.RID{}, fmt.Errorf("table: insert: grow chain: %w", err)
		}
		initHeapPage(newPg)

		tailPg, err := fetch(h.pool, h.lastPageID)
		if err != nil {
			h.pool.UnpinPage(newPg.ID, true)
			return page.RID{}, fmt.Errorf("table: insert: relink tail: %w", err)
		}
		tailPg.Latch.Lock()
		setNextPageID(tailPg, newPg.ID)
		tailPg.Latch.Unlock()
		h.pool.UnpinPage(tailPg.ID, true)

		h.lastPageID = newPg.ID
		pg = newPg
		pg.Latch.Lock()
	}

	slot, err := insertRecord(pg, data)
	if err != nil {
		pg.Latch.Unlock()
		h.pool.UnpinPage(pg.ID, false)
		return page.RID{}, fmt.Errorf("table: insert: %w", err)
	}
	rid := page.RID{PageID: pg.ID, Slot: uint32(slot)}
	pg.Latch.Unlock()
	h.pool.UnpinPage(pg.ID, true)
	return rid, nil
}

// GetTuple returns a copy of the tuple at rid.
func (h *Heap) GetTuple(rid page.RID, _ *txn.Transaction) ([]byte, error) {
	pg, err := fetch(h.pool, rid.PageID)
	if err != nil {
		return nil, fmt.Errorf("table: get tuple %s: %w", rid, err)
	}
	pg.Latch.RLock()
	data, err := getRecord(pg, uint16(rid.Slot))
	pg.Latch.RUnlock()
	h.pool.UnpinPage(rid.PageID, false)
	if err != nil {
		return nil, fmt.Errorf("table: get tuple %s: %w", rid, err)
	}
	return data, nil
}

// UpdateTuple replaces the tuple at rid. It returns true when the update
// happened in place; false means the record was tombstoned because the
// new value no longer fits, and the caller must InsertTuple a fresh RID
// and update any indexes pointing at the old one.
func (h *Heap) UpdateTuple(rid page.RID, data []byte, _ *txn.Transaction) (bool, error) {
	pg, err := fetch(h.pool, rid.PageID)
	if err != nil {
		return false, fmt.Errorf("table: update tuple %s: %w", rid, err)
	}
	pg.Latch.Lock()
	inPlace, err := updateRecord(pg, uint16(rid.Slot), data)
	pg.Latch.Unlock()
	h.pool.UnpinPage(rid.PageID, true)
	if err != nil {
		return false, fmt.Errorf("table: update tuple %s: %w", rid, err)
	}
	return inPlace, nil
}

// MarkDelete tombstones the tuple at rid. Space is not reclaimed.
func (h *Heap) MarkDelete(rid page.RID, _ *txn.Transaction) error {
	pg, err := fetch(h.pool, rid.PageID)
	if err != nil {
		return fmt.Errorf("table: delete tuple %s: %w", rid, err)
	}
	pg.Latch.Lock()
	err = deleteRecord(pg, uint16(rid.Slot))
	pg.Latch.Unlock()
	h.pool.UnpinPage(rid.PageID, true)
	if err != nil {
		return fmt.Errorf("table: delete tuple %s: %w", rid, err)
	}
	return nil
}
