package bptree

import "fmt"

// isSafeForInsert reports whether n can absorb one more key without
// splitting, meaning a crabbing descent can release every ancestor above
// n once n has been reached.
func isSafeForInsert(n *Node, isRoot bool) bool {
	return len(n.keys) < MaxKeys
}

// isSafeForDelete reports whether n can lose one more key without
// underflowing. Used only as the descent-time predicate, before the key
// has actually been removed. The root is exempt from the minimum-size
// rule: a root leaf is always safe, and a root internal node is safe
// while it has more than two children, so a root that one merge could
// leave with a single child keeps the root latch held for the collapse.
func isSafeForDelete(n *Node, isRoot bool) bool {
	if isRoot {
		return n.kind == NodeLeaf || len(n.children) > 2
	}
	return len(n.keys) > MinKeys
}

// isUnderflow reports whether n, after a key has already been removed
// from it, has fallen below the minimum size and needs to borrow or
// merge. Unlike isSafeForDelete, this checks post-removal state, so a
// node sitting at exactly MinKeys is fine, not underflowing. The root is
// always exempt.
func isUnderflow(n *Node, isRoot bool) bool {
	if isRoot {
		return false
	}
	return len(n.keys) < MinKeys
}

// descend walks from the root to the leaf that would contain key,
// write-latching every page along the way. Once a node proves safe (per
// isSafe), every ancestor above it is released (top-down), so
// that on return ancestors holds only the chain that might still need to
// propagate a split or a merge/borrow back up to it. rootHeld reports
// whether the tree's root latch is still locked by this call: the caller
// must unlock it exactly once propagation finishes.
func (t *Tree) descend(key []byte, isSafe func(n *Node, isRoot bool) bool) (leaf *nodeHandle, ancestors []*nodeHandle, rootHeld bool, err error) {
	t.rootLatch.Lock()
	rootHeld = true

	curID := t.rootID
	first := true
	for {
		h, ferr := t.fetchForWrite(curID)
		if ferr != nil {
			for _, a := range ancestors {
				a.releaseWrite(t, false)
			}
			if rootHeld {
				t.rootLatch.Unlock()
			}
			return nil, nil, false, ferr
		}

		if isSafe(h.n, first) {
			for _, a := range ancestors {
				a.releaseWrite(t, false)
			}
			ancestors = ancestors[:0]
			if rootHeld {
				t.rootLatch.Unlock()
				rootHeld = false
			}
		}
		first = false

		if h.n.kind == NodeLeaf {
			return h, ancestors, rootHeld, nil
		}
		ancestors = append(ancestors, h)
		idx := childIndex(h.n, key, t.cmp)
		if idx >= len(h.n.children) {
			idx = len(h.n.children) - 1
		}
		curID = h.n.children[idx]
	}
}

// descendRead performs an immediate-release FIND traversal: each
// ancestor is read-latched only long enough to pick the next child,
// then released before descending, exactly as spec'd for read-only
// lookups (no propagation is possible on a pure read).
func (t *Tree) descendRead(key []byte) (*nodeHandle, error) {
	t.rootLatch.Lock()
	curID := t.rootID
	t.rootLatch.Unlock()

	for {
		h, err := t.fetchForRead(curID)
		if err != nil {
			return nil, fmt.Errorf("bptree: descendRead: %w", err)
		}
		if h.n.kind == NodeLeaf {
			return h, nil
		}
		idx := childIndex(h.n, key, t.cmp)
		if idx >= len(h.n.children) {
			idx = len(h.n.children) - 1
		}
		next := h.n.children[idx]
		h.releaseRead(t)
		curID = next
	}
}

// releaseAncestors releases every handle in ancestors (closest-to-leaf
// first, as built by descend) and, if rootHeld, the root latch.
func (t *Tree) releaseAncestors(ancestors []*nodeHandle, rootHeld bool, dirty bool) {
	for i := len(ancestors) - 1; i >= 0; i-- {
		ancestors[i].releaseWrite(t, dirty)
	}
	if rootHeld {
		t.rootLatch.Unlock()
	}
}
