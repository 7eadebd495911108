// Package bptree implements a disk-backed B+Tree index with latch
// crabbing, grounded on the original BusTub b_plus_tree.cpp algorithm and
// written in the style of DaemonDB's bplus package: short per-operation
// files, a Node value type deserialized out of a page's bytes on every
// fetch, and fmt.Errorf-wrapped errors naming the failing operation.
package bptree

import (
	"bytes"
	"fmt"
	"sync"

	"daemondb/storage/buffer"
	"daemondb/storage/page"
)

// NodeType distinguishes leaf pages (hold RIDs) from internal pages (hold
// child pointers).
type NodeType int8

const (
	NodeInternal NodeType = iota
	NodeLeaf
)

const (
	// MaxKeys bounds fan-out independent of the 4KB page size, mirroring
	// the teacher's bplus package: packing is not byte-tight, it is
	// bounded by a constant chosen comfortably under what one page can
	// hold for keys of MaxKeyLen.
	MaxKeys = 32
	MinKeys = MaxKeys / 2

	MaxKeyLen = 112 // bytes: a full leaf is 7 + 32*(2+112+8) = 3911 bytes
)

// Tree is a single B+Tree index backed by one buffer pool. The tree's
// root page id lives on a dedicated header page (headerID) so it survives
// restarts; mutations to the root id are serialized through rootLatch,
// which doubles as the "virtual ancestor" crabbing acquires before
// descending so that a root split is never observed half-finished.
type Tree struct {
	pool      *buffer.Pool
	headerID  page.ID
	rootLatch sync.Mutex
	rootID    page.ID
	cmp       func(a, b []byte) int
}

// Create allocates a fresh header page and an empty leaf root, returning
// the new tree and the header page id the caller must remember (e.g. in
// a catalog entry) to reopen the same tree later with Open.
func Create(pool *buffer.Pool) (*Tree, page.ID, error) {
	hp, err := pool.NewPage()
	if err != nil {
		return nil, page.InvalidID, fmt.Errorf("bptree: create: allocate header page: %w", err)
	}
	if hp == nil {
		return nil, page.InvalidID, fmt.Errorf("bptree: create: buffer pool exhausted allocating header page")
	}
	writeHeaderRoot(hp, page.InvalidID)
	headerID := hp.ID
	pool.UnpinPage(headerID, true)

	t := &Tree{pool: pool, headerID: headerID, cmp: bytes.Compare, rootID: page.InvalidID}

	root, err := t.newNode(NodeLeaf)
	if err != nil {
		return nil, page.InvalidID, fmt.Errorf("bptree: create: allocate root: %w", err)
	}
	t.rootID = root.pg.ID
	root.releaseWrite(t, true)

	if err := t.saveRoot(); err != nil {
		return nil, page.InvalidID, err
	}
	return t, headerID, nil
}

// Open reopens a tree previously returned by Create, reading its current
// root id back from the header page.
func Open(pool *buffer.Pool, headerID page.ID) (*Tree, error) {
	t := &Tree{pool: pool, headerID: headerID, cmp: bytes.Compare}

	hp, err := pool.FetchPage(headerID)
	if err != nil {
		return nil, fmt.Errorf("bptree: open: fetch header page %d: %w", headerID, err)
	}
	if hp == nil {
		return nil, fmt.Errorf("bptree: open: buffer pool exhausted fetching header page %d", headerID)
	}
	t.rootID = readHeaderRoot(hp)
	pool.UnpinPage(headerID, false)

	if t.rootID == page.InvalidID {
		return nil, fmt.Errorf("bptree: open: header page %d has no root", headerID)
	}
	return t, nil
}

func readHeaderRoot(hp *page.Page) page.ID {
	b := hp.Data[:4]
	v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24
	return v
}

func writeHeaderRoot(hp *page.Page, id page.ID) {
	v := uint32(id)
	hp.Data[0] = byte(v)
	hp.Data[1] = byte(v >> 8)
	hp.Data[2] = byte(v >> 16)
	hp.Data[3] = byte(v >> 24)
}

// saveRoot persists rootID to the header page. Callers hold rootLatch.
func (t *Tree) saveRoot() error {
	hp, err := t.pool.FetchPage(t.headerID)
	if err != nil {
		return fmt.Errorf("bptree: saveRoot: fetch header page: %w", err)
	}
	if hp == nil {
		return fmt.Errorf("bptree: saveRoot: buffer pool exhausted fetching header page")
	}
	writeHeaderRoot(hp, t.rootID)
	t.pool.UnpinPage(t.headerID, true)
	return nil
}

// Close flushes every dirty page belonging to the tree's pool.
func (t *Tree) Close() {
	t.pool.FlushAllPages()
}
