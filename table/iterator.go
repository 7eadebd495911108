package table

import (
	"fmt"

	"daemondb/concurrency/txn"
	"daemondb/storage/page"
)

// Iterator walks every live tuple in a Heap in page-chain order.
// Grounded on BusTub's TableIterator (Begin/End, ++, GetRid(), *)
// consumed by seq_scan_executor.cpp, expressed as a Go-style stateful
// cursor instead of operator overloads.
type Iterator struct {
	heap *Heap
	txn  *txn.Transaction

	pageID page.ID
	slot   uint16
	valid  bool
}

// Begin returns an iterator positioned at the first live tuple in the
// heap, or an invalid iterator if the heap is empty.
func (h *Heap) Begin(transaction *txn.Transaction) (*Iterator, error) {
	it := &Iterator{heap: h, txn: transaction, pageID: h.firstPageID, slot: 0}
	if err := it.advanceToLive(); err != nil {
		return nil, err
	}
	return it, nil
}

// End reports whether it has run past the last tuple.
func (it *Iterator) End() bool {
	return !it.valid
}

func (it *Iterator) Valid() bool {
	return it.valid
}

func (it *Iterator) RID() page.RID {
	return page.RID{PageID: it.pageID, Slot: uint32(it.slot)}
}

// Tuple returns a copy of the tuple the iterator currently points at.
func (it *Iterator) Tuple() ([]byte, error) {
	if !it.valid {
		return nil, fmt.Errorf("table: iterator: read past end")
	}
	return it.heap.GetTuple(it.RID(), it.txn)
}

// Next advances to the next live tuple, returning false once exhausted.
func (it *Iterator) Next() (bool, error) {
	if !it.valid {
		return false, nil
	}
	it.slot++
	if err := it.advanceToLive(); err != nil {
		return false, err
	}
	return it.valid, nil
}

// advanceToLive walks forward from the current (pageID, slot) to the
// next live slot, crossing page boundaries via NextPageID as needed.
func (it *Iterator) advanceToLive() error {
	for it.pageID != page.InvalidID {
		pg, err := fetch(it.heap.pool, it.pageID)
		if err != nil {
			return fmt.Errorf("table: iterator: fetch %d: %w", it.pageID, err)
		}
		pg.Latch.RLock()
		count := getSlotCount(pg)
		for it.slot < count {
			if isSlotLive(pg, it.slot) {
				pg.Latch.RUnlock()
				it.heap.pool.UnpinPage(it.pageID, false)
				it.valid = true
				return nil
			}
			it.slot++
		}
		next := getNextPageID(pg)
		pg.Latch.RUnlock()
		it.heap.pool.UnpinPage(it.pageID, false)

		it.pageID = next
		it.slot = 0
	}
	it.valid = false
	return nil
}
