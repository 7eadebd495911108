package bptree

import (
	"encoding/binary"
	"fmt"

	"daemondb/storage/page"
)

// Node is the in-memory decoding of one B+Tree page. Internal nodes carry
// len(keys)+1 children; leaf nodes carry one RID per key and a next
// pointer threading all leaves left to right for range scans.
type Node struct {
	id       page.ID
	kind     NodeType
	keys     [][]byte
	children []page.ID // internal only
	rids     []page.RID
	next     page.ID // leaf only
}

// Layout: [0]=kind, [1:3]=numKeys uint16, [3:7]=next/unused int32,
// then numKeys * [2]uint16 keyLen + key bytes, then either
// (numKeys+1) * [4]int32 children, or numKeys * (PageID int32, Slot uint32).
const nodeHeaderSize = 7

func encodeNode(n *Node, data *[page.Size]byte) error {
	off := 0
	data[off] = byte(n.kind)
	off++
	binary.LittleEndian.PutUint16(data[off:], uint16(len(n.keys)))
	off += 2
	next := n.next
	if n.kind != NodeLeaf {
		next = page.InvalidID
	}
	binary.LittleEndian.PutUint32(data[off:], uint32(next))
	off += 4

	for _, k := range n.keys {
		if len(k) > MaxKeyLen {
			return fmt.Errorf("bptree: encodeNode: key of %d bytes exceeds MaxKeyLen %d", len(k), MaxKeyLen)
		}
		if off+2+len(k) > page.Size {
			return fmt.Errorf("bptree: encodeNode: page overflow writing key")
		}
		binary.LittleEndian.PutUint16(data[off:], uint16(len(k)))
		off += 2
		copy(data[off:], k)
		off += len(k)
	}

	if n.kind == NodeLeaf {
		for _, r := range n.rids {
			if off+8 > page.Size {
				return fmt.Errorf("bptree: encodeNode: page overflow writing rid")
			}
			binary.LittleEndian.PutUint32(data[off:], uint32(r.PageID))
			off += 4
			binary.LittleEndian.PutUint32(data[off:], r.Slot)
			off += 4
		}
	} else {
		for _, c := range n.children {
			if off+4 > page.Size {
				return fmt.Errorf("bptree: encodeNode: page overflow writing child")
			}
			binary.LittleEndian.PutUint32(data[off:], uint32(c))
			off += 4
		}
	}
	return nil
}

func decodeNode(id page.ID, data *[page.Size]byte) (*Node, error) {
	off := 0
	n := &Node{id: id, kind: NodeType(data[off])}
	off++
	numKeys := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	n.next = page.ID(binary.LittleEndian.Uint32(data[off:]))
	off += 4

	n.keys = make([][]byte, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		if off+2 > page.Size {
			return nil, fmt.Errorf("bptree: decodeNode: page overflow reading key %d length", i)
		}
		klen := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if off+klen > page.Size {
			return nil, fmt.Errorf("bptree: decodeNode: page overflow reading key %d", i)
		}
		k := make([]byte, klen)
		copy(k, data[off:off+klen])
		off += klen
		n.keys = append(n.keys, k)
	}

	if n.kind == NodeLeaf {
		n.rids = make([]page.RID, 0, numKeys)
		for i := 0; i < numKeys; i++ {
			pid := page.ID(binary.LittleEndian.Uint32(data[off:]))
			off += 4
			slot := binary.LittleEndian.Uint32(data[off:])
			off += 4
			n.rids = append(n.rids, page.RID{PageID: pid, Slot: slot})
		}
	} else {
		n.children = make([]page.ID, 0, numKeys+1)
		for i := 0; i <= numKeys; i++ {
			c := page.ID(binary.LittleEndian.Uint32(data[off:]))
			off += 4
			n.children = append(n.children, c)
		}
	}
	return n, nil
}

// nodeHandle pairs a decoded Node with the pinned, latched page.Page it
// was decoded from. Crabbing passes these up and down the call stack
// instead of bare page ids so that releasing a node always unlatches
// the exact lock that was taken to read or write it.
type nodeHandle struct {
	pg       *page.Page
	n        *Node
	writable bool
}

// fetchForRead pins id, takes its read latch, and decodes it.
func (t *Tree) fetchForRead(id page.ID) (*nodeHandle, error) {
	pg, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, fmt.Errorf("bptree: fetchForRead: fetch page %d: %w", id, err)
	}
	if pg == nil {
		return nil, fmt.Errorf("bptree: fetchForRead: buffer pool exhausted fetching page %d", id)
	}
	pg.Latch.RLock()
	n, err := decodeNode(id, &pg.Data)
	if err != nil {
		pg.Latch.RUnlock()
		t.pool.UnpinPage(id, false)
		return nil, err
	}
	return &nodeHandle{pg: pg, n: n, writable: false}, nil
}

// fetchForWrite pins id, takes its write latch, and decodes it.
func (t *Tree) fetchForWrite(id page.ID) (*nodeHandle, error) {
	pg, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, fmt.Errorf("bptree: fetchForWrite: fetch page %d: %w", id, err)
	}
	if pg == nil {
		return nil, fmt.Errorf("bptree: fetchForWrite: buffer pool exhausted fetching page %d", id)
	}
	pg.Latch.Lock()
	n, err := decodeNode(id, &pg.Data)
	if err != nil {
		pg.Latch.Unlock()
		t.pool.UnpinPage(id, false)
		return nil, err
	}
	return &nodeHandle{pg: pg, n: n, writable: true}, nil
}

// newNode allocates a brand new page, installs an empty node of kind, and
// returns it write-latched and pinned.
func (t *Tree) newNode(kind NodeType) (*nodeHandle, error) {
	pg, err := t.pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("bptree: newNode: allocate page: %w", err)
	}
	if pg == nil {
		return nil, fmt.Errorf("bptree: newNode: buffer pool exhausted")
	}
	pg.Latch.Lock()
	n := &Node{id: pg.ID, kind: kind, next: page.InvalidID}
	h := &nodeHandle{pg: pg, n: n, writable: true}
	if err := h.flush(); err != nil {
		pg.Latch.Unlock()
		t.pool.UnpinPage(pg.ID, false)
		return nil, err
	}
	return h, nil
}

// flush encodes the handle's current node state back into its page bytes.
func (h *nodeHandle) flush() error {
	return encodeNode(h.n, &h.pg.Data)
}

// releaseRead unlocks and unpins a read handle.
func (h *nodeHandle) releaseRead(t *Tree) {
	h.pg.Latch.RUnlock()
	t.pool.UnpinPage(h.n.id, false)
}

// releaseWrite encodes any pending changes (if dirty), unlocks, and
// unpins a write handle.
func (h *nodeHandle) releaseWrite(t *Tree, dirty bool) {
	if dirty {
		_ = h.flush()
	}
	h.pg.Latch.Unlock()
	t.pool.UnpinPage(h.n.id, dirty)
}
