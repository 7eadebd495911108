// Package disk implements the Disk Manager external interface (spec §6):
// fixed-size page I/O and page-id allocation backed by a single
// memory-mapped file.
//
// The mapping and growth strategy follow 7thCode-BPTree's internal/pager
// package: pages are read and written as slices into one mmap'd region,
// grown geometrically as the file fills, with freed page ids recycled
// through a free list whose links are stored inside the freed pages
// themselves.
package disk

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"daemondb/storage/page"
)

const (
	initialFileSize = 1 << 20 // 1 MiB
	growthFactor    = 2

	// superblockSize reserves exactly one page-size slot at the start of
	// the file for allocator bookkeeping, so that page id 0 returned by
	// AllocatePage lands on the *second* page-size slot on disk. This
	// keeps page ids zero-based while still giving the allocator a
	// durable home for its free-list head and page count.
	superblockSize = page.Size
)

// Manager owns one OS file, memory-mapped in whole, and hands out/reclaims
// page ids against it. It implements the external Disk Manager described
// in spec §6: ReadPage, WritePage, AllocatePage, DeallocatePage.
type Manager struct {
	mu sync.Mutex

	file *os.File
	data []byte // mmap'd region, length == mappedSize
	size int64  // current mapped/file size

	pageCount    int32 // number of page ids ever allocated (next id if free list empty)
	freeListHead page.ID
}

// Open opens or creates path and memory-maps it for page I/O.
func Open(path string) (*Manager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}

	size := info.Size()
	if size < initialFileSize {
		if err := file.Truncate(initialFileSize); err != nil {
			file.Close()
			return nil, fmt.Errorf("disk: truncate %s: %w", path, err)
		}
		size = initialFileSize
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("disk: mmap %s: %w", path, err)
	}

	m := &Manager{
		file:         file,
		data:         data,
		size:         size,
		freeListHead: page.InvalidID,
	}
	m.loadSuperblock()
	return m, nil
}

type superblock struct {
	PageCount    int32
	FreeListHead int32
}

func (m *Manager) loadSuperblock() {
	pageCount := int32(binary.LittleEndian.Uint32(m.data[0:4]))
	freeListHead := int32(binary.LittleEndian.Uint32(m.data[4:8]))
	if pageCount == 0 && freeListHead == 0 {
		// Fresh file: no pages allocated yet, empty free list.
		m.freeListHead = page.InvalidID
		m.writeSuperblock()
		return
	}
	m.pageCount = pageCount
	m.freeListHead = freeListHead
}

func (m *Manager) writeSuperblock() {
	binary.LittleEndian.PutUint32(m.data[0:4], uint32(m.pageCount))
	binary.LittleEndian.PutUint32(m.data[4:8], uint32(m.freeListHead))
}

func (m *Manager) offsetOf(id page.ID) int64 {
	return int64(superblockSize) + int64(id)*page.Size
}

func (m *Manager) ensureCapacity(id page.ID) error {
	required := m.offsetOf(id) + page.Size
	if required <= m.size {
		return nil
	}
	newSize := m.size
	for newSize < required {
		newSize *= growthFactor
	}
	if err := m.file.Truncate(newSize); err != nil {
		return fmt.Errorf("disk: grow to %d: %w", newSize, err)
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("disk: unmap before grow: %w", err)
	}
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("disk: remap after grow: %w", err)
	}
	m.data = data
	m.size = newSize
	return nil
}

// ReadPage copies the on-disk bytes of id into buf.
func (m *Manager) ReadPage(id page.ID, buf *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureCapacity(id); err != nil {
		return err
	}
	off := m.offsetOf(id)
	copy(buf[:], m.data[off:off+page.Size])
	return nil
}

// WritePage copies buf into the mapped slot for id. It does not msync;
// the mapping is synced to the file by Sync and Close.
func (m *Manager) WritePage(id page.ID, buf *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureCapacity(id); err != nil {
		return err
	}
	off := m.offsetOf(id)
	copy(m.data[off:off+page.Size], buf[:])
	return nil
}

// AllocatePage reserves a fresh page id, preferring a recycled id from the
// free list (whose link is stored in the first 4 bytes of the freed page)
// before minting a new one.
func (m *Manager) AllocatePage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.freeListHead != page.InvalidID {
		id := m.freeListHead
		if err := m.ensureCapacity(id); err != nil {
			return page.InvalidID, err
		}
		off := m.offsetOf(id)
		next := int32(binary.LittleEndian.Uint32(m.data[off : off+4]))
		m.freeListHead = next
		m.writeSuperblock()

		// Clear the recycled page before handing it back out.
		for i := off; i < off+page.Size; i++ {
			m.data[i] = 0
		}
		return id, nil
	}

	id := page.ID(m.pageCount)
	m.pageCount++
	if err := m.ensureCapacity(id); err != nil {
		m.pageCount--
		return page.InvalidID, err
	}
	m.writeSuperblock()
	return id, nil
}

// DeallocatePage returns id to the free list by stashing the current free
// list head inside the freed page itself (mirrors 7thCode-BPTree's
// Pager.FreePage).
func (m *Manager) DeallocatePage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureCapacity(id); err != nil {
		return err
	}
	off := m.offsetOf(id)
	for i := off; i < off+page.Size; i++ {
		m.data[i] = 0
	}
	binary.LittleEndian.PutUint32(m.data[off:off+4], uint32(m.freeListHead))
	m.freeListHead = id
	m.writeSuperblock()
	return nil
}

// Sync flushes the mapping to disk.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Close unmaps and closes the backing file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("disk: sync on close: %w", err)
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("disk: munmap: %w", err)
	}
	m.data = nil
	return m.file.Close()
}
