package bptree

import "daemondb/storage/page"

// Iterator is a forward-only range scan over leaves. It holds a
// read-latched, pinned leaf at all times while valid; Close (or running
// off the end) releases it.
type Iterator struct {
	tree  *Tree
	leaf  *nodeHandle
	index int
	valid bool
}

// Begin positions an iterator at the tree's leftmost key.
func (t *Tree) Begin() (*Iterator, error) {
	return t.SeekGE(nil)
}

// SeekGE positions an iterator at the first key >= target.
func (t *Tree) SeekGE(target []byte) (*Iterator, error) {
	leaf, err := t.descendRead(target)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t}
	idx := lowerBoundInclusive(leaf.n.keys, target, t.cmp)
	it.leaf = leaf
	it.index = idx
	it.valid = idx < len(leaf.n.keys)
	if !it.valid {
		it.advanceToNextLeaf()
	}
	return it, nil
}

// lowerBoundInclusive returns the first index whose key is >= target.
func lowerBoundInclusive(keys [][]byte, target []byte, cmp func(a, b []byte) int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (it *Iterator) advanceToNextLeaf() {
	for {
		nextID := it.leaf.n.next
		it.leaf.releaseRead(it.tree)
		it.leaf = nil
		if nextID == page.InvalidID {
			it.valid = false
			return
		}
		next, err := it.tree.fetchForRead(nextID)
		if err != nil {
			it.valid = false
			return
		}
		it.leaf = next
		it.index = 0
		if len(next.n.keys) > 0 {
			it.valid = true
			return
		}
	}
}

// Next advances the iterator. Returns false once exhausted.
func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	it.index++
	if it.index < len(it.leaf.n.keys) {
		return true
	}
	it.advanceToNextLeaf()
	return it.valid
}

// Key returns the current key. Only valid while Valid() is true.
func (it *Iterator) Key() []byte {
	return it.leaf.n.keys[it.index]
}

// RID returns the current record id.
func (it *Iterator) RID() page.RID {
	return it.leaf.n.rids[it.index]
}

// Valid reports whether the iterator is positioned at a key.
func (it *Iterator) Valid() bool {
	return it.valid
}

// Close releases the iterator's pinned leaf, if any. Safe to call
// multiple times and after natural exhaustion.
func (it *Iterator) Close() {
	if it.leaf != nil {
		it.leaf.releaseRead(it.tree)
		it.leaf = nil
	}
	it.valid = false
}
