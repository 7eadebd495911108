package bptree

// binarySearch returns the index of target in keys, or -1 if absent.
func binarySearch(keys [][]byte, target []byte, cmp func(a, b []byte) int) int {
	lo, hi := 0, len(keys)-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		switch c := cmp(keys[mid], target); {
		case c == 0:
			return mid
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}

// lowerBound returns the index of the first key > target, or len(keys)
// if none qualifies (for a target not already in keys, this is also the
// first key >= target, i.e. its insertion position). For an internal node this is the child index to
// descend into.
func lowerBound(keys [][]byte, target []byte, cmp func(a, b []byte) int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(keys[mid], target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func insertAt[T any](s []T, i int, v T) []T {
	s = append(s, v)
	copy(s[i+1:], s[i:len(s)-1])
	s[i] = v
	return s
}

func removeAt[T any](s []T, i int) []T {
	return append(s[:i], s[i+1:]...)
}

// childIndex returns which child of an internal node's children to
// descend into to find key, using the separator keys as lower bounds on
// the subtree rooted at children[i+1].
func childIndex(n *Node, key []byte, cmp func(a, b []byte) int) int {
	i := 0
	for i < len(n.keys) && cmp(key, n.keys[i]) >= 0 {
		i++
	}
	return i
}
