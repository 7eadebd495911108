package bptree

import (
	"fmt"
	"strings"

	"daemondb/storage/page"
)

// DebugString renders the tree as indented, human-readable text for test
// failure diagnostics, grounded on BusTub's ToString/ToGraph dumps in
// b_plus_tree.cpp but emitted as plain text rather than Graphviz: each
// line is one node, indented by depth, showing its keys and (for leaves)
// the next-leaf pointer that threads range scans.
func (t *Tree) DebugString() string {
	t.rootLatch.Lock()
	root := t.rootID
	t.rootLatch.Unlock()

	var b strings.Builder
	if root == page.InvalidID {
		b.WriteString("(empty tree)\n")
		return b.String()
	}
	if err := t.debugNode(&b, root, 0); err != nil {
		fmt.Fprintf(&b, "(error walking tree: %v)\n", err)
	}
	return b.String()
}

func (t *Tree) debugNode(b *strings.Builder, id page.ID, depth int) error {
	h, err := t.fetchForRead(id)
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)
	if h.n.kind == NodeLeaf {
		fmt.Fprintf(b, "%sleaf#%d keys=%v next=%d\n", indent, id, debugKeys(h.n.keys), h.n.next)
		h.releaseRead(t)
		return nil
	}

	fmt.Fprintf(b, "%sinternal#%d keys=%v\n", indent, id, debugKeys(h.n.keys))
	children := append([]page.ID(nil), h.n.children...)
	h.releaseRead(t)

	for _, child := range children {
		if err := t.debugNode(b, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func debugKeys(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
