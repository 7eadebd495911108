package bptree

import (
	"fmt"

	"daemondb/storage/page"
)

// Insert adds key/rid to the tree. It returns false without modifying
// anything if key is already present — this index enforces uniqueness,
// like every other B+Tree index in this package's ancestry.
func (t *Tree) Insert(key []byte, rid page.RID) (bool, error) {
	if len(key) > MaxKeyLen {
		return false, fmt.Errorf("bptree: insert: key of %d bytes exceeds MaxKeyLen %d", len(key), MaxKeyLen)
	}

	leaf, ancestors, rootHeld, err := t.descend(key, isSafeForInsert)
	if err != nil {
		return false, fmt.Errorf("bptree: insert: %w", err)
	}

	if idx := binarySearch(leaf.n.keys, key, t.cmp); idx != -1 {
		leaf.releaseWrite(t, false)
		t.releaseAncestors(ancestors, rootHeld, false)
		return false, nil
	}

	pos := lowerBound(leaf.n.keys, key, t.cmp)
	leaf.n.keys = insertAt(leaf.n.keys, pos, append([]byte{}, key...))
	leaf.n.rids = insertAt(leaf.n.rids, pos, rid)

	if len(leaf.n.keys) <= MaxKeys {
		leaf.releaseWrite(t, true)
		t.releaseAncestors(ancestors, rootHeld, false)
		return true, nil
	}

	if err := t.splitLeaf(leaf, ancestors, rootHeld); err != nil {
		return false, fmt.Errorf("bptree: insert: %w", err)
	}
	return true, nil
}

// splitLeaf divides an overflowing leaf in two and promotes the right
// half's first key into the parent, propagating further splits upward
// through ancestors as needed.
func (t *Tree) splitLeaf(leaf *nodeHandle, ancestors []*nodeHandle, rootHeld bool) error {
	mid := len(leaf.n.keys) / 2

	right, err := t.newNode(NodeLeaf)
	if err != nil {
		t.releaseAncestors(append(ancestors, leaf), rootHeld, false)
		return fmt.Errorf("splitLeaf: allocate right sibling: %w", err)
	}

	right.n.keys = append(right.n.keys, leaf.n.keys[mid:]...)
	right.n.rids = append(right.n.rids, leaf.n.rids[mid:]...)
	right.n.next = leaf.n.next

	leaf.n.keys = leaf.n.keys[:mid]
	leaf.n.rids = leaf.n.rids[:mid]
	leaf.n.next = right.n.id

	sepKey := right.n.keys[0]
	leftID, rightID := leaf.n.id, right.n.id

	leaf.releaseWrite(t, true)
	right.releaseWrite(t, true)

	return t.insertIntoParent(ancestors, rootHeld, leftID, sepKey, rightID)
}

// insertIntoParent installs sepKey/rightID as a new separator/child pair
// in the parent of leftID (the closest remaining ancestor), splitting
// that parent in turn if it overflows, or creating a new root if leftID
// had no parent left to insert into.
func (t *Tree) insertIntoParent(ancestors []*nodeHandle, rootHeld bool, leftID page.ID, sepKey []byte, rightID page.ID) error {
	if len(ancestors) == 0 {
		return t.createNewRoot(leftID, sepKey, rightID)
	}

	parent := ancestors[len(ancestors)-1]
	rest := ancestors[:len(ancestors)-1]

	idx := findChild(parent.n, leftID)
	if idx == -1 {
		t.releaseAncestors(append(rest, parent), rootHeld, false)
		return fmt.Errorf("insertIntoParent: child %d not found in parent %d", leftID, parent.n.id)
	}

	parent.n.keys = insertAt(parent.n.keys, idx, sepKey)
	parent.n.children = insertAt(parent.n.children, idx+1, rightID)

	if len(parent.n.keys) <= MaxKeys {
		parent.releaseWrite(t, true)
		t.releaseAncestors(rest, rootHeld, false)
		return nil
	}

	return t.splitInternal(parent, rest, rootHeld)
}

// splitInternal divides an overflowing internal node, promoting its
// middle key to the parent (or a new root) instead of copying it down,
// the way internal B+Tree splits differ from leaf splits.
func (t *Tree) splitInternal(node *nodeHandle, ancestors []*nodeHandle, rootHeld bool) error {
	mid := len(node.n.keys) / 2
	promote := node.n.keys[mid]

	right, err := t.newNode(NodeInternal)
	if err != nil {
		t.releaseAncestors(append(ancestors, node), rootHeld, false)
		return fmt.Errorf("splitInternal: allocate right sibling: %w", err)
	}

	right.n.keys = append(right.n.keys, node.n.keys[mid+1:]...)
	right.n.children = append(right.n.children, node.n.children[mid+1:]...)

	node.n.keys = node.n.keys[:mid]
	node.n.children = node.n.children[:mid+1]

	leftID, rightID := node.n.id, right.n.id

	node.releaseWrite(t, true)
	right.releaseWrite(t, true)

	return t.insertIntoParent(ancestors, rootHeld, leftID, promote, rightID)
}

// createNewRoot is reached only when the previous root overflowed with
// no ancestor to promote into, so the tree grows one level taller.
// Callers reach this holding the root latch.
func (t *Tree) createNewRoot(leftID page.ID, sepKey []byte, rightID page.ID) error {
	root, err := t.newNode(NodeInternal)
	if err != nil {
		t.rootLatch.Unlock()
		return fmt.Errorf("createNewRoot: allocate root: %w", err)
	}
	root.n.keys = append(root.n.keys, sepKey)
	root.n.children = append(root.n.children, leftID, rightID)

	t.rootID = root.n.id
	root.releaseWrite(t, true)

	if err := t.saveRoot(); err != nil {
		t.rootLatch.Unlock()
		return fmt.Errorf("createNewRoot: %w", err)
	}
	t.rootLatch.Unlock()
	return nil
}

func findChild(n *Node, childID page.ID) int {
	for i, c := range n.children {
		if c == childID {
			return i
		}
	}
	return -1
}
