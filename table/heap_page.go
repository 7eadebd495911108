// Package table implements a slotted-page heap file backing TableHeap:
// variable-length tuple storage over the frame-based buffer pool, with
// pages chained into a singly-linked list for sequential scans.
//
// Heap page binary layout (all values little-endian), grounded on the
// teacher's storage_engine/access/heapfile_manager slotted-page design:
//
//	Offset  Size  Field
//	───────────────────────────────────────────────
//	0       4     NextPageID int32  — InvalidID if last page
//	4       2     RecordEndPtr   uint16 — first free byte after last record
//	6       2     SlotRegionStart uint16 — first byte of slot directory
//	8       2     NumRows        uint16 — live records
//	10      2     NumRowsFree    uint16 — tombstone slots
//	12      2     SlotCount      uint16 — total slot entries (live + tombstone)
//	───────────────────────────────────────────────
//	14            heapHeaderSize
//
// Records grow forward from heapHeaderSize; the slot directory grows
// backward from page.Size. A slot entry is 4 bytes: offset uint16,
// length uint16 (length 0 marks a tombstone).
package table

import (
	"encoding/binary"
	"fmt"

	"daemondb/storage/page"
)

const (
	heapOffNextPageID      = 0
	heapOffRecordEndPtr    = 4
	heapOffSlotRegionStart = 6
	heapOffNumRows         = 8
	heapOffNumRowsFree     = 10
	heapOffSlotCount       = 12

	heapHeaderSize = 14
	slotSize       = 4
)

// initHeapPage stamps a fresh heap-page header into pg.Data.
func initHeapPage(pg *page.Page) {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	binary.LittleEndian.PutUint32(pg.Data[heapOffNextPageID:], uint32(page.InvalidID))
	binary.LittleEndian.PutUint16(pg.Data[heapOffRecordEndPtr:], heapHeaderSize)
	binary.LittleEndian.PutUint16(pg.Data[heapOffSlotRegionStart:], page.Size)
	pg.IsDirty = true
}

func getNextPageID(pg *page.Page) page.ID {
	return int32(binary.LittleEndian.Uint32(pg.Data[heapOffNextPageID:]))
}

func setNextPageID(pg *page.Page, id page.ID) {
	binary.LittleEndian.PutUint32(pg.Data[heapOffNextPageID:], uint32(id))
	pg.IsDirty = true
}

func getRecordEndPtr(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[heapOffRecordEndPtr:])
}

func setRecordEndPtr(pg *page.Page, v uint16) {
	binary.LittleEndian.PutUint16(pg.Data[heapOffRecordEndPtr:], v)
}

func getSlotRegionStart(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[heapOffSlotRegionStart:])
}

func setSlotRegionStart(pg *page.Page, v uint16) {
	binary.LittleEndian.PutUint16(pg.Data[heapOffSlotRegionStart:], v)
}

func getNumRows(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[heapOffNumRows:])
}

func setNumRows(pg *page.Page, n uint16) {
	binary.LittleEndian.PutUint16(pg.Data[heapOffNumRows:], n)
}

func getNumRowsFree(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[heapOffNumRowsFree:])
}

func setNumRowsFree(pg *page.Page, n uint16) {
	binary.LittleEndian.PutUint16(pg.Data[heapOffNumRowsFree:], n)
}

func getSlotCount(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[heapOffSlotCount:])
}

func setSlotCount(pg *page.Page, n uint16) {
	binary.LittleEndian.PutUint16(pg.Data[heapOffSlotCount:], n)
}

// freeSpace returns the bytes available for a new record, including the
// slot entry it would consume.
func freeSpace(pg *page.Page) int {
	available := int(getSlotRegionStart(pg)) - int(getRecordEndPtr(pg)) - slotSize
	if available < 0 {
		return 0
	}
	return available
}

func slotByteOffset(i uint16) int {
	return page.Size - (int(i)+1)*slotSize
}

func readSlot(pg *page.Page, i uint16) (offset, length uint16) {
	base := slotByteOffset(i)
	return binary.LittleEndian.Uint16(pg.Data[base:]), binary.LittleEndian.Uint16(pg.Data[base+2:])
}

func writeSlot(pg *page.Page, i uint16, offset, length uint16) {
	base := slotByteOffset(i)
	binary.LittleEndian.PutUint16(pg.Data[base:], offset)
	binary.LittleEndian.PutUint16(pg.Data[base+2:], length)
}

// insertRecord writes data into pg and returns the slot index it landed on.
func insertRecord(pg *page.Page, data []byte) (uint16, error) {
	recordLen := uint16(len(data))
	if recordLen == 0 {
		return 0, fmt.Errorf("table: insertRecord: data must not be empty")
	}
	if freeSpace(pg) < int(recordLen) {
		return 0, fmt.Errorf("table: insertRecord: need %d bytes, only %d available", recordLen, freeSpace(pg))
	}

	slotIdx := getSlotCount(pg)
	for i := uint16(0); i < getSlotCount(pg); i++ {
		if _, l := readSlot(pg, i); l == 0 {
			slotIdx = i
			break
		}
	}

	recordOffset := getRecordEndPtr(pg)
	copy(pg.Data[recordOffset:], data)
	setRecordEndPtr(pg, recordOffset+recordLen)
	writeSlot(pg, slotIdx, recordOffset, recordLen)

	if slotIdx == getSlotCount(pg) {
		setSlotRegionStart(pg, getSlotRegionStart(pg)-slotSize)
		setSlotCount(pg, getSlotCount(pg)+1)
	} else {
		setNumRowsFree(pg, getNumRowsFree(pg)-1)
	}
	setNumRows(pg, getNumRows(pg)+1)
	pg.IsDirty = true
	return slotIdx, nil
}

func getRecord(pg *page.Page, slotIdx uint16) ([]byte, error) {
	if slotIdx >= getSlotCount(pg) {
		return nil, fmt.Errorf("table: getRecord: slot %d out of range (count=%d)", slotIdx, getSlotCount(pg))
	}
	offset, length := readSlot(pg, slotIdx)
	if length == 0 {
		return nil, fmt.Errorf("table: getRecord: slot %d is deleted", slotIdx)
	}
	out := make([]byte, length)
	copy(out, pg.Data[offset:offset+length])
	return out, nil
}

func deleteRecord(pg *page.Page, slotIdx uint16) error {
	if slotIdx >= getSlotCount(pg) {
		return fmt.Errorf("table: deleteRecord: slot %d out of range (count=%d)", slotIdx, getSlotCount(pg))
	}
	if _, length := readSlot(pg, slotIdx); length == 0 {
		return fmt.Errorf("table: deleteRecord: slot %d already deleted", slotIdx)
	}
	writeSlot(pg, slotIdx, 0, 0)
	setNumRows(pg, getNumRows(pg)-1)
	setNumRowsFree(pg, getNumRowsFree(pg)+1)
	pg.IsDirty = true
	return nil
}

// updateRecord replaces the record at slotIdx in place when it fits, or
// tombstones it and reports false so the caller reinserts elsewhere.
func updateRecord(pg *page.Page, slotIdx uint16, newData []byte) (bool, error) {
	if slotIdx >= getSlotCount(pg) {
		return false, fmt.Errorf("table: updateRecord: slot %d out of range (count=%d)", slotIdx, getSlotCount(pg))
	}
	offset, length := readSlot(pg, slotIdx)
	if length == 0 {
		return false, fmt.Errorf("table: updateRecord: slot %d is deleted", slotIdx)
	}

	newLen := uint16(len(newData))
	if newLen <= length {
		copy(pg.Data[offset:], newData)
		writeSlot(pg, slotIdx, offset, newLen)
		pg.IsDirty = true
		return true, nil
	}

	if err := deleteRecord(pg, slotIdx); err != nil {
		return false, err
	}
	return false, nil
}

func isSlotLive(pg *page.Page, i uint16) bool {
	if i >= getSlotCount(pg) {
		return false
	}
	_, length := readSlot(pg, i)
	return length != 0
}
