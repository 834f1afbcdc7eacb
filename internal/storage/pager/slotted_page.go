package pager

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Slotted Page
// ───────────────────────────────────────────────────────────────────────────
//
// A slotted page stores variable-length records after some header region:
//
//   [0..headerOff)             Caller-owned header bytes (ignored here)
//   [headerOff..headerOff+4)   SlotCount  (uint16) + FreeSpaceEnd (uint16)
//   [..+4*SlotCount]           Slot directory (4 bytes per slot)
//   ... free space ...
//   [FreeSpaceEnd..PageSize]   Record data grows downward
//
// Each slot entry is 4 bytes:
//   [0:2]  Offset  (uint16) — offset of record from page start
//   [2:4]  Length  (uint16) — record length in bytes
//
// A slot with Offset==0 and Length==0 is a tombstone (deleted record).
//
// headerOff is configurable rather than fixed at PageHeaderSize: a caller
// that needs its own page-type metadata between the common PageHeader and
// the slot directory — BTreePage reserves 11 extra bytes there for
// IsLeaf/KeyCount/RightChild/sibling pointers — wraps the same buffer with
// a headerOff past that metadata instead of duplicating the slot-directory
// bookkeeping at a different fixed offset.
//
// Invariants:
//   - Records grow downward from the end of the page.
//   - Slots grow forward from just after the slot-count/free-space pair.
//   - FreeSpaceEnd tracks where the next record can be placed.

const (
	// slottedSlotCountSize is bytes for SlotCount + FreeSpaceEnd.
	slottedSlotCountSize = 4 // uint16 + uint16

	// slotEntrySize is bytes per slot entry (offset + length).
	slotEntrySize = 4
)

// SlottedPage wraps a raw page buffer and provides record-level operations,
// parameterized by where its own slot-count/free-space/slot-directory
// region begins within the buffer.
type SlottedPage struct {
	buf       []byte
	pageSize  int
	headerOff int
}

// SlotEntry describes one slot in the directory.
type SlotEntry struct {
	Offset uint16
	Length uint16
}

// WrapSlottedPageAt wraps an existing page buffer whose slot directory
// begins at headerOff.
func WrapSlottedPageAt(buf []byte, headerOff int) *SlottedPage {
	return &SlottedPage{buf: buf, pageSize: len(buf), headerOff: headerOff}
}

// WrapSlottedPage wraps an existing page buffer using the standard
// PageHeaderSize offset — for pages with no extra page-type metadata.
func WrapSlottedPage(buf []byte) *SlottedPage {
	return WrapSlottedPageAt(buf, PageHeaderSize)
}

// InitEmptyAt resets the slot directory region of buf to empty (SlotCount=0,
// FreeSpaceEnd=len(buf)) at headerOff, without touching any bytes before it
// — used by callers that have already written their own page-type header
// and only need the slot-directory region initialized.
func InitEmptyAt(buf []byte, headerOff int) *SlottedPage {
	sp := &SlottedPage{buf: buf, pageSize: len(buf), headerOff: headerOff}
	sp.setSlotCount(0)
	sp.setFreeSpaceEnd(len(buf))
	return sp
}

// InitSlottedPage initialises a page buffer as an empty slotted page with
// no additional page-type metadata, writing the common PageHeader itself.
func InitSlottedPage(buf []byte, pt PageType, id PageID) *SlottedPage {
	h := &PageHeader{Type: pt, ID: id}
	MarshalHeader(h, buf)
	return InitEmptyAt(buf, PageHeaderSize)
}

func (sp *SlottedPage) slotDirOff() int {
	return sp.headerOff + slottedSlotCountSize
}

// SlotCount returns the number of slots (including tombstones).
func (sp *SlottedPage) SlotCount() int {
	return int(binary.LittleEndian.Uint16(sp.buf[sp.headerOff:]))
}

func (sp *SlottedPage) setSlotCount(n int) {
	binary.LittleEndian.PutUint16(sp.buf[sp.headerOff:], uint16(n))
}

// FreeSpaceEnd is the byte offset where the next record will be written.
func (sp *SlottedPage) FreeSpaceEnd() int {
	return int(binary.LittleEndian.Uint16(sp.buf[sp.headerOff+2:]))
}

func (sp *SlottedPage) setFreeSpaceEnd(off int) {
	binary.LittleEndian.PutUint16(sp.buf[sp.headerOff+2:], uint16(off))
}

// slotDirEnd returns the byte offset just past the last slot entry.
func (sp *SlottedPage) slotDirEnd() int {
	return sp.slotDirOff() + sp.SlotCount()*slotEntrySize
}

// FreeSpace returns the number of bytes available for new records+slots.
func (sp *SlottedPage) FreeSpace() int {
	return sp.FreeSpaceEnd() - sp.slotDirEnd() - slotEntrySize // account for new slot
}

// GetSlot returns the slot entry at index i.
func (sp *SlottedPage) GetSlot(i int) SlotEntry {
	off := sp.slotDirOff() + i*slotEntrySize
	return SlotEntry{
		Offset: binary.LittleEndian.Uint16(sp.buf[off:]),
		Length: binary.LittleEndian.Uint16(sp.buf[off+2:]),
	}
}

func (sp *SlottedPage) setSlot(i int, e SlotEntry) {
	off := sp.slotDirOff() + i*slotEntrySize
	binary.LittleEndian.PutUint16(sp.buf[off:], e.Offset)
	binary.LittleEndian.PutUint16(sp.buf[off+2:], e.Length)
}

// IsDeleted returns true if slot i is a tombstone.
func (sp *SlottedPage) IsDeleted(i int) bool {
	e := sp.GetSlot(i)
	return e.Offset == 0 && e.Length == 0
}

// GetRecord returns the raw bytes of the record at slot i.
// Returns nil if the slot is a tombstone.
func (sp *SlottedPage) GetRecord(i int) []byte {
	e := sp.GetSlot(i)
	if e.Offset == 0 && e.Length == 0 {
		return nil
	}
	return sp.buf[e.Offset : e.Offset+e.Length]
}

// InsertRecord appends a new record to the page, reusing a tombstoned slot
// if one exists. Returns the slot index, or an error if there is
// insufficient space.
func (sp *SlottedPage) InsertRecord(data []byte) (int, error) {
	needed := len(data)
	if sp.FreeSpace() < needed {
		return -1, fmt.Errorf("page full: need %d bytes, have %d", needed, sp.FreeSpace())
	}

	newEnd := sp.FreeSpaceEnd() - needed
	copy(sp.buf[newEnd:], data)
	sp.setFreeSpaceEnd(newEnd)

	sc := sp.SlotCount()
	for i := 0; i < sc; i++ {
		if sp.IsDeleted(i) {
			sp.setSlot(i, SlotEntry{Offset: uint16(newEnd), Length: uint16(needed)})
			return i, nil
		}
	}

	sp.setSlot(sc, SlotEntry{Offset: uint16(newEnd), Length: uint16(needed)})
	sp.setSlotCount(sc + 1)
	return sc, nil
}

// InsertRecordAt inserts a record at sorted position pos, shifting slots
// [pos..SlotCount) right by one — used where slot order encodes key order
// (B+Tree internal/leaf pages), unlike InsertRecord's append-or-reuse-
// tombstone placement for unordered record pages.
func (sp *SlottedPage) InsertRecordAt(pos int, data []byte) error {
	needed := len(data)
	if sp.FreeSpace() < needed {
		return fmt.Errorf("page full: need %d bytes, have %d", needed, sp.FreeSpace())
	}
	newEnd := sp.FreeSpaceEnd() - needed
	copy(sp.buf[newEnd:], data)
	sp.setFreeSpaceEnd(newEnd)

	sc := sp.SlotCount()
	sp.setSlotCount(sc + 1)
	for i := sc; i > pos; i-- {
		sp.setSlot(i, sp.GetSlot(i-1))
	}
	sp.setSlot(pos, SlotEntry{Offset: uint16(newEnd), Length: uint16(needed)})
	return nil
}

// DeleteRecord marks slot i as deleted (tombstone), leaving a gap in the
// slot directory.
func (sp *SlottedPage) DeleteRecord(i int) error {
	if i < 0 || i >= sp.SlotCount() {
		return fmt.Errorf("slot %d out of range [0..%d)", i, sp.SlotCount())
	}
	sp.setSlot(i, SlotEntry{Offset: 0, Length: 0})
	return nil
}

// ShiftDeleteRecord removes slot i entirely, shifting later slots down by
// one and shrinking SlotCount — used where slot position encodes sort
// order and a tombstone gap would break binary search (B+Tree leaf/
// internal entries), unlike DeleteRecord's in-place tombstone.
func (sp *SlottedPage) ShiftDeleteRecord(i int) error {
	sc := sp.SlotCount()
	if i < 0 || i >= sc {
		return fmt.Errorf("slot %d out of range [0..%d)", i, sc)
	}
	for j := i; j < sc-1; j++ {
		sp.setSlot(j, sp.GetSlot(j+1))
	}
	sp.setSlot(sc-1, SlotEntry{})
	sp.setSlotCount(sc - 1)
	return nil
}

// UpdateRecord replaces the record at slot i. If the new data fits in the
// old slot's space, it is written in-place; otherwise the old slot is
// tombstoned and a new record is appended under the same slot index.
func (sp *SlottedPage) UpdateRecord(i int, data []byte) error {
	if i < 0 || i >= sp.SlotCount() {
		return fmt.Errorf("slot %d out of range [0..%d)", i, sp.SlotCount())
	}
	old := sp.GetSlot(i)
	if int(old.Length) >= len(data) {
		copy(sp.buf[old.Offset:], data)
		if len(data) < int(old.Length) {
			for j := int(old.Offset) + len(data); j < int(old.Offset+old.Length); j++ {
				sp.buf[j] = 0
			}
		}
		sp.setSlot(i, SlotEntry{Offset: old.Offset, Length: uint16(len(data))})
		return nil
	}
	// Does not fit — tombstone + new record at FreeSpaceEnd.
	sp.setSlot(i, SlotEntry{Offset: 0, Length: 0})
	needed := len(data)
	if sp.FreeSpace()+slotEntrySize < needed { // FreeSpace deducted a slot
		return fmt.Errorf("page full on update: need %d bytes", needed)
	}
	newEnd := sp.FreeSpaceEnd() - needed
	copy(sp.buf[newEnd:], data)
	sp.setFreeSpaceEnd(newEnd)
	sp.setSlot(i, SlotEntry{Offset: uint16(newEnd), Length: uint16(needed)})
	return nil
}

// Compact reorganises records to remove gaps left by deletions.
// Preserves slot order. This is needed before splitting pages.
func (sp *SlottedPage) Compact() {
	sc := sp.SlotCount()
	type rec struct {
		slot int
		data []byte
	}
	var live []rec
	for i := 0; i < sc; i++ {
		if !sp.IsDeleted(i) {
			live = append(live, rec{slot: i, data: append([]byte{}, sp.GetRecord(i)...)})
		}
	}
	// Reset free space to end of page.
	sp.setFreeSpaceEnd(sp.pageSize)
	// Rewrite records.
	for _, r := range live {
		newEnd := sp.FreeSpaceEnd() - len(r.data)
		copy(sp.buf[newEnd:], r.data)
		sp.setFreeSpaceEnd(newEnd)
		sp.setSlot(r.slot, SlotEntry{Offset: uint16(newEnd), Length: uint16(len(r.data))})
	}
}

// LiveRecords returns the count of non-deleted records.
func (sp *SlottedPage) LiveRecords() int {
	n := 0
	sc := sp.SlotCount()
	for i := 0; i < sc; i++ {
		if !sp.IsDeleted(i) {
			n++
		}
	}
	return n
}

// Bytes returns the underlying page buffer.
func (sp *SlottedPage) Bytes() []byte { return sp.buf }
