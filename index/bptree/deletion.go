package bptree

import (
	"fmt"

	"daemondb/concurrency/txn"
	"daemondb/storage/page"
)

// Delete removes key from the tree. It returns false if key was not
// present. Underflow after removal is resolved by borrowing a key from a
// sibling, or failing that, merging with one — propagated upward through
// the ancestor chain exactly like an insert-time split propagates. Pages
// absorbed by a merge are not deallocated until the whole traversal has
// released every latch it holds: they are collected into transaction's
// deferred-deletion set and freed from the buffer pool only once Delete
// is about to return.
func (t *Tree) Delete(key []byte, transaction *txn.Transaction) (bool, error) {
	if transaction == nil {
		transaction = txn.New(0, txn.ReadCommitted)
	}

	leaf, ancestors, rootHeld, err := t.descend(key, isSafeForDelete)
	if err != nil {
		return false, fmt.Errorf("bptree: delete: %w", err)
	}

	idx := binarySearch(leaf.n.keys, key, t.cmp)
	if idx == -1 {
		leaf.releaseWrite(t, false)
		t.releaseAncestors(ancestors, rootHeld, false)
		return false, nil
	}

	leaf.n.keys = removeAt(leaf.n.keys, idx)
	leaf.n.rids = removeAt(leaf.n.rids, idx)

	isRoot := len(ancestors) == 0
	if !isUnderflow(leaf.n, isRoot) {
		leaf.releaseWrite(t, true)
		t.releaseAncestors(ancestors, rootHeld, false)
		return true, nil
	}

	if err := t.fixUnderflow(leaf, ancestors, rootHeld, transaction); err != nil {
		return false, fmt.Errorf("bptree: delete: %w", err)
	}

	for id := range transaction.GetDeletedPageSet() {
		t.pool.DeletePage(id)
	}
	transaction.ClearDeletedPageSet()
	return true, nil
}

// fixUnderflow resolves an underflowing node (leaf or internal) by
// borrowing from a sibling when the sibling and node combined hold
// enough keys to redistribute without either falling back under
// MinKeys, or merging the two into one otherwise. A merge shrinks the
// parent by one child, which may itself underflow and need to be fixed
// in turn — the recursion bottoms out when a parent absorbs the change
// without underflowing, or when the root itself shrinks to a single
// child and is collapsed.
func (t *Tree) fixUnderflow(node *nodeHandle, ancestors []*nodeHandle, rootHeld bool, transaction *txn.Transaction) error {
	if len(ancestors) == 0 {
		// node is the root, or the topmost node the descent kept latched
		// (one proven safe, whose own ancestors were already released).
		// Only an empty internal root needs work: its sole child becomes
		// the root. The descent keeps the root latch for any root that a
		// merge could empty, so the collapse always runs under it.
		if node.n.kind == NodeInternal && len(node.n.keys) == 0 {
			newRoot := node.n.children[0]
			t.rootID = newRoot
			oldRootID := node.n.id
			node.releaseWrite(t, true)
			transaction.AddIntoDeletedPageSet(oldRootID)
			if err := t.saveRoot(); err != nil {
				t.rootLatch.Unlock()
				return err
			}
			t.rootLatch.Unlock()
			return nil
		}
		node.releaseWrite(t, true)
		if rootHeld {
			t.rootLatch.Unlock()
		}
		return nil
	}

	parent := ancestors[len(ancestors)-1]
	rest := ancestors[:len(ancestors)-1]

	idx := findChild(parent.n, node.n.id)
	if idx == -1 {
		t.releaseAncestors(append(rest, parent, node), rootHeld, false)
		return fmt.Errorf("fixUnderflow: child %d not found in parent %d", node.n.id, parent.n.id)
	}

	var leftID, rightID page.ID = page.InvalidID, page.InvalidID
	if idx > 0 {
		leftID = parent.n.children[idx-1]
	}
	if idx < len(parent.n.children)-1 {
		rightID = parent.n.children[idx+1]
	}

	if leftID != page.InvalidID {
		left, err := t.fetchForWrite(leftID)
		if err != nil {
			t.releaseAncestors(append(rest, parent, node), rootHeld, false)
			return err
		}
		if len(left.n.keys)+len(node.n.keys) >= MaxKeys {
			t.borrowFromLeft(parent, idx, left, node)
			left.releaseWrite(t, true)
			node.releaseWrite(t, true)
			parent.releaseWrite(t, true)
			t.releaseAncestors(rest, rootHeld, false)
			return nil
		}
		left.releaseWrite(t, false)
	}

	if rightID != page.InvalidID {
		right, err := t.fetchForWrite(rightID)
		if err != nil {
			t.releaseAncestors(append(rest, parent, node), rootHeld, false)
			return err
		}
		if len(right.n.keys)+len(node.n.keys) >= MaxKeys {
			t.borrowFromRight(parent, idx, node, right)
			right.releaseWrite(t, true)
			node.releaseWrite(t, true)
			parent.releaseWrite(t, true)
			t.releaseAncestors(rest, rootHeld, false)
			return nil
		}
		right.releaseWrite(t, false)
	}

	// No sibling has a key to spare: merge. Prefer merging node into its
	// left sibling when one exists, otherwise merge the right sibling
	// into node.
	if leftID != page.InvalidID {
		left, err := t.fetchForWrite(leftID)
		if err != nil {
			t.releaseAncestors(append(rest, parent, node), rootHeld, false)
			return err
		}
		t.mergeInto(left, parent, idx, node)
		left.releaseWrite(t, true)
		absorbedID := node.n.id
		node.releaseWrite(t, false)
		transaction.AddIntoDeletedPageSet(absorbedID)
		parent.n.keys = removeAt(parent.n.keys, idx-1)
		parent.n.children = removeAt(parent.n.children, idx)
	} else {
		right, err := t.fetchForWrite(rightID)
		if err != nil {
			t.releaseAncestors(append(rest, parent, node), rootHeld, false)
			return err
		}
		t.mergeInto(node, parent, idx+1, right)
		node.releaseWrite(t, true)
		absorbedID := right.n.id
		right.releaseWrite(t, false)
		transaction.AddIntoDeletedPageSet(absorbedID)
		parent.n.keys = removeAt(parent.n.keys, idx)
		parent.n.children = removeAt(parent.n.children, idx+1)
	}

	// A parent with no ancestors left in the held chain is either the
	// root or the topmost node the descent kept latched. Either way it
	// goes through fixUnderflow's no-ancestors branch, which releases it
	// and, for a root the merge just reduced to a single child, performs
	// the root collapse.
	if len(rest) != 0 && !isUnderflow(parent.n, false) {
		parent.releaseWrite(t, true)
		t.releaseAncestors(rest, rootHeld, false)
		return nil
	}
	return t.fixUnderflow(parent, rest, rootHeld, transaction)
}

// borrowFromLeft moves left's last key/child to the front of node and
// updates the parent separator at index idx-1 to match.
func (t *Tree) borrowFromLeft(parent *nodeHandle, idx int, left, node *nodeHandle) {
	n := len(left.n.keys)
	if node.n.kind == NodeLeaf {
		borrowedKey := left.n.keys[n-1]
		borrowedRID := left.n.rids[n-1]
		left.n.keys = left.n.keys[:n-1]
		left.n.rids = left.n.rids[:n-1]
		node.n.keys = insertAt(node.n.keys, 0, borrowedKey)
		node.n.rids = insertAt(node.n.rids, 0, borrowedRID)
		parent.n.keys[idx-1] = node.n.keys[0]
		return
	}
	sep := parent.n.keys[idx-1]
	promoted := left.n.keys[n-1]
	borrowedChild := left.n.children[len(left.n.children)-1]
	left.n.keys = left.n.keys[:n-1]
	left.n.children = left.n.children[:len(left.n.children)-1]
	node.n.keys = insertAt(node.n.keys, 0, sep)
	node.n.children = insertAt(node.n.children, 0, borrowedChild)
	parent.n.keys[idx-1] = promoted
}

// borrowFromRight moves right's first key/child to the end of node and
// updates the parent separator at index idx to match.
func (t *Tree) borrowFromRight(parent *nodeHandle, idx int, node, right *nodeHandle) {
	if node.n.kind == NodeLeaf {
		borrowedKey := right.n.keys[0]
		borrowedRID := right.n.rids[0]
		right.n.keys = right.n.keys[1:]
		right.n.rids = right.n.rids[1:]
		node.n.keys = append(node.n.keys, borrowedKey)
		node.n.rids = append(node.n.rids, borrowedRID)
		parent.n.keys[idx] = right.n.keys[0]
		return
	}
	sep := parent.n.keys[idx]
	borrowedChild := right.n.children[0]
	right.n.keys = right.n.keys[1:]
	right.n.children = right.n.children[1:]
	node.n.keys = append(node.n.keys, sep)
	node.n.children = append(node.n.children, borrowedChild)
	parent.n.keys[idx] = right.n.keys[0]
}

// mergeInto merges right into left entirely. sepIdx is right's index in
// the parent's children slice before removal, used to pull down the
// separator key for internal merges (leaves have no separator to pull:
// their keys are already globally ordered).
func (t *Tree) mergeInto(left, parent *nodeHandle, sepIdx int, right *nodeHandle) {
	if left.n.kind == NodeLeaf {
		left.n.keys = append(left.n.keys, right.n.keys...)
		left.n.rids = append(left.n.rids, right.n.rids...)
		left.n.next = right.n.next
		return
	}
	sep := parent.n.keys[sepIdx-1]
	left.n.keys = append(left.n.keys, sep)
	left.n.keys = append(left.n.keys, right.n.keys...)
	left.n.children = append(left.n.children, right.n.children...)
}
