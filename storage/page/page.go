// Package page defines the fixed-size page buffer shared by the disk
// manager, the buffer pool and the B+Tree node codec.
package page

import "sync"

const (
	// Size is the fixed on-disk and in-memory page size, in bytes.
	Size = 4096

	// InvalidID is the sentinel page id meaning "no page".
	InvalidID int32 = -1
)

// ID identifies a page on disk. -1 (InvalidID) means "no page".
type ID = int32

// Page is one frame's worth of buffer-pool-resident storage: a fixed byte
// array plus the metadata the buffer pool needs to manage it. Data is
// guarded by Latch; ID and PinCount are bookkeeping that only the buffer
// pool mutates, while holding its own pool-wide lock.
type Page struct {
	ID       ID
	Data     [Size]byte
	PinCount int
	IsDirty  bool

	// Latch is the reader/writer latch B+Tree crabbing acquires on this
	// page's contents, distinct from the buffer pool's pin-count
	// bookkeeping (spec §5: "every page carries a reader/writer latch
	// separate from its buffer-pool pin").
	Latch sync.RWMutex
}

// Reset clears page contents and metadata, leaving ID untouched so the
// buffer pool can assign it right after.
func (p *Page) Reset() {
	for i := range p.Data {
		p.Data[i] = 0
	}
	p.PinCount = 0
	p.IsDirty = false
}
