package page

import "fmt"

// RID (record identifier) locates a tuple inside a heap page. It is the
// value type stored in every B+Tree leaf.
type RID struct {
	PageID ID
	Slot   uint32
}

func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.PageID, r.Slot)
}

// Valid reports whether r refers to an actual page.
func (r RID) Valid() bool {
	return r.PageID != InvalidID
}
