package bptree

import "daemondb/storage/page"

// Search returns the RID stored for key, and whether key was found.
func (t *Tree) Search(key []byte) (page.RID, bool, error) {
	leaf, err := t.descendRead(key)
	if err != nil {
		return page.RID{}, false, err
	}
	defer leaf.releaseRead(t)

	idx := binarySearch(leaf.n.keys, key, t.cmp)
	if idx == -1 {
		return page.RID{}, false, nil
	}
	return leaf.n.rids[idx], true, nil
}
