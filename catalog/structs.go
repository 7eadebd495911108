package catalog

import (
	"daemondb/index/bptree"
	"daemondb/storage/page"
	"daemondb/table"
)

// TableInfo is the metadata the catalog keeps for one registered table:
// its heap storage plus the first page id needed to reopen it. Grounded
// on BusTub's TableMetadata (schema_/name_/table_/oid_), trimmed of the
// schema field since this module carries no SQL type system.
type TableInfo struct {
	Name        string
	OID         uint32
	Heap        *table.Heap
	FirstPageID page.ID
}

// IndexInfo is the metadata the catalog keeps for one registered index:
// the tree itself plus the key-extraction function CreateIndex was given
// to populate it from existing rows and callers use afterward to derive
// new keys. Grounded on BusTub's IndexInfo (key_schema_/name_/index_/
// index_oid_/table_name_), with KeyFunc standing in for key_schema_'s
// role of deriving a key from a tuple.
type IndexInfo struct {
	Name      string
	OID       uint32
	TableName string
	Tree      *bptree.Tree
	HeaderID  page.ID
	KeyFunc   func(tuple []byte) []byte
}
