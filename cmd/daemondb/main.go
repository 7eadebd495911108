// Command daemondb is a small driver exercising the storage and
// concurrency core end to end: it opens a disk-backed buffer pool,
// creates a table and a B+Tree index through the catalog, inserts a few
// rows, looks one up through the index, updates it under an exclusive
// lock from the lock manager, and prints what it found. Modeled on the teacher's cmd/seed driver, minus the SQL
// front end this module does not carry.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"time"

	"daemondb/catalog"
	"daemondb/concurrency/lock"
	"daemondb/concurrency/txn"
	"daemondb/storage/buffer"
	"daemondb/storage/disk"
)

func main() {
	dbPath := flag.String("db", "daemondb.data", "path to the database file")
	poolSize := flag.Int("pool-size", 64, "buffer pool frame count")
	flag.Parse()

	diskMgr, err := disk.Open(*dbPath)
	if err != nil {
		log.Fatalf("open disk: %v", err)
	}
	defer diskMgr.Close()

	pool := buffer.New(*poolSize, diskMgr)
	cat := catalog.New(pool)
	lockMgr := lock.NewManager(50 * time.Millisecond)
	defer lockMgr.Close()

	tableInfo, err := cat.CreateTable("accounts")
	if err != nil {
		log.Fatalf("create table: %v", err)
	}
	fmt.Printf("created table %q (oid=%d)\n", tableInfo.Name, tableInfo.OID)

	rows := []string{"alice:100", "bob:250", "carol:75"}
	for _, row := range rows {
		rid, err := tableInfo.Heap.InsertTuple([]byte(row), nil)
		if err != nil {
			log.Fatalf("insert %q: %v", row, err)
		}
		fmt.Printf("inserted %q at %s\n", row, rid)
	}

	idx, err := cat.CreateIndex(nil, "by_name", "accounts", keyUpToColon)
	if err != nil {
		log.Fatalf("create index: %v", err)
	}
	fmt.Printf("built index %q over %d existing rows\n", idx.Name, len(rows))

	rid, found, err := idx.Tree.Search([]byte("bob"))
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	if !found {
		log.Fatal("expected to find bob in the index")
	}
	tuple, err := tableInfo.Heap.GetTuple(rid, nil)
	if err != nil {
		log.Fatalf("get tuple: %v", err)
	}
	fmt.Printf("looked up %q via index -> %s\n", "bob", tuple)

	t1 := txn.New(1, txn.RepeatableRead)
	if ok, err := lockMgr.LockExclusive(t1, rid); err != nil || !ok {
		log.Fatalf("lock %s: %v", rid, err)
	}
	if _, err := tableInfo.Heap.UpdateTuple(rid, []byte("bob:300"), t1); err != nil {
		log.Fatalf("update tuple: %v", err)
	}
	if _, err := lockMgr.Unlock(t1, rid); err != nil {
		log.Fatalf("unlock %s: %v", rid, err)
	}
	t1.SetState(txn.Committed)

	updated, err := tableInfo.Heap.GetTuple(rid, nil)
	if err != nil {
		log.Fatalf("get tuple after update: %v", err)
	}
	fmt.Printf("after locked update -> %s\n", updated)

	pool.FlushAllPages()
	fmt.Println("done")
}

// keyUpToColon extracts the "name" portion of a "name:balance" tuple as
// the index key.
func keyUpToColon(tuple []byte) []byte {
	if i := bytes.IndexByte(tuple, ':'); i >= 0 {
		return tuple[:i]
	}
	return tuple
}
