package pager

import (
	"bytes"
	"encoding/binary"
)

// ───────────────────────────────────────────────────────────────────────────
// B+Tree on-disk format
// ───────────────────────────────────────────────────────────────────────────
//
// Internal pages store sorted separator keys and child page pointers.
// Leaf pages store sorted key-value pairs with an optional overflow pointer.
// Both types use slotted-page records for variable-length data. Keys are
// always exactly 8 bytes (a big-endian u64), so no length prefix is
// needed for the key portion of a record — this mirrors every B+Tree key
// in the system (rowid, CRC-32C(name), CRC-32C(indexed value)).
//
// Internal record layout (per slot), fixed 12 bytes:
//   [0:4]  ChildPageID  (uint32 LE) — left child for this key
//   [4:12] Key          (8 bytes, big-endian u64)
//   The rightmost child pointer is stored in the page trailer (last 4 bytes
//   before FreeSpaceEnd, managed separately).
//
// Leaf record layout (per slot):
//   [0:8]   Key          (8 bytes, big-endian u64)
//   [8:10]  Flags        (uint16 LE) — bit 0: overflow flag
//   If overflow:
//     [10:14] OverflowPageID (uint32 LE)
//     [14:18] TotalSize      (uint32 LE) — full value size
//   Else:
//     [10:12] ValLen   (uint16 LE)
//     [12:12+V] Value  (V bytes)
//
// Duplicate keys are permitted in leaves (non-unique index postings):
// equal-key entries are ordered by insertion (FIFO), and a specific
// duplicate is removed with DeleteKeyValue by matching both key and
// value rather than key alone.
//
// Page-level metadata stored right after PageHeader:
//   [32:33]  IsLeaf       (uint8 — 1=leaf, 0=internal)
//   [33:35]  KeyCount     (uint16 LE) — managed by slotted page SlotCount
//   [35:39]  RightChild   (uint32 LE) — only for internal pages
//   [35:39]  NextLeaf     (uint32 LE) — only for leaf pages (sibling pointer,
//                                       shares RightChild's bytes)
//   [39:43]  PrevLeaf     (uint32 LE) — only for leaf pages (sibling pointer)
//
// The slot directory begins at btreeSlotHdrOff (43), past this 11-byte
// metadata block, rather than at the common PageHeaderSize offset — the
// record-level work (slot directory, free space, insert/delete/update) is
// delegated to a SlottedPage wrapped at that offset via bp.sp(), so the
// B+Tree layer only owns the metadata fields above it.

const (
	btreeMetaOff       = PageHeaderSize    // 32
	btreeIsLeafOff     = btreeMetaOff      // 32, 1 byte
	btreeKeyCountOff   = btreeMetaOff + 1  // 33, 2 bytes
	btreeRightChildOff = btreeMetaOff + 3  // 35, 4 bytes (internal)
	btreeNextLeafOff   = btreeMetaOff + 3  // 35, 4 bytes (leaf)
	btreePrevLeafOff   = btreeMetaOff + 7  // 39, 4 bytes (leaf)
	btreeSlotHdrOff    = btreeMetaOff + 11 // 43
)

// Leaf record flags.
const (
	leafFlagOverflow uint16 = 1 << 0
)

// btreeKeySize is the fixed width of every B+Tree key (a big-endian u64).
const btreeKeySize = 8

// ───────────────────────────────────────────────────────────────────────────
// BTreePage wraps a page buffer as a B+Tree node.
// ───────────────────────────────────────────────────────────────────────────

type BTreePage struct {
	buf      []byte
	pageSize int
}

// WrapBTreePage wraps an existing buffer.
func WrapBTreePage(buf []byte) *BTreePage {
	return &BTreePage{buf: buf, pageSize: len(buf)}
}

// InitBTreePage initialises a page as a B+Tree node.
func InitBTreePage(buf []byte, id PageID, leaf bool) *BTreePage {
	pt := PageTypeBTreeInternal
	if leaf {
		pt = PageTypeBTreeLeaf
	}
	h := &PageHeader{Type: pt, ID: id}
	MarshalHeader(h, buf)
	if leaf {
		buf[btreeIsLeafOff] = 1
	} else {
		buf[btreeIsLeafOff] = 0
	}
	binary.LittleEndian.PutUint16(buf[btreeKeyCountOff:], 0)
	binary.LittleEndian.PutUint32(buf[btreeRightChildOff:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint32(buf[btreePrevLeafOff:], uint32(InvalidPageID))
	InitEmptyAt(buf, btreeSlotHdrOff)
	return &BTreePage{buf: buf, pageSize: len(buf)}
}

// ── Accessors ──────────────────────────────────────────────────────────────

func (bp *BTreePage) IsLeaf() bool {
	return bp.buf[btreeIsLeafOff] == 1
}

func (bp *BTreePage) KeyCount() int {
	return int(binary.LittleEndian.Uint16(bp.buf[btreeKeyCountOff:]))
}

func (bp *BTreePage) setKeyCount(n int) {
	binary.LittleEndian.PutUint16(bp.buf[btreeKeyCountOff:], uint16(n))
}

func (bp *BTreePage) PageID() PageID {
	return PageID(binary.LittleEndian.Uint32(bp.buf[4:8]))
}

func (bp *BTreePage) RightChild() PageID {
	return PageID(binary.LittleEndian.Uint32(bp.buf[btreeRightChildOff:]))
}

func (bp *BTreePage) SetRightChild(pid PageID) {
	binary.LittleEndian.PutUint32(bp.buf[btreeRightChildOff:], uint32(pid))
}

func (bp *BTreePage) NextLeaf() PageID {
	return PageID(binary.LittleEndian.Uint32(bp.buf[btreeNextLeafOff:]))
}

func (bp *BTreePage) SetNextLeaf(pid PageID) {
	binary.LittleEndian.PutUint32(bp.buf[btreeNextLeafOff:], uint32(pid))
}

func (bp *BTreePage) PrevLeaf() PageID {
	return PageID(binary.LittleEndian.Uint32(bp.buf[btreePrevLeafOff:]))
}

func (bp *BTreePage) SetPrevLeaf(pid PageID) {
	binary.LittleEndian.PutUint32(bp.buf[btreePrevLeafOff:], uint32(pid))
}

func (bp *BTreePage) Bytes() []byte { return bp.buf }

// ── Slot-directory delegation ──────────────────────────────────────────────
//
// Record storage (slot directory, free space, insert/update/delete) is the
// same slotted-page mechanics used elsewhere in the pager, just anchored at
// btreeSlotHdrOff instead of PageHeaderSize — bp.sp() hands out a view onto
// bp.buf configured for that offset so the two implementations never drift.

func (bp *BTreePage) sp() *SlottedPage {
	return WrapSlottedPageAt(bp.buf, btreeSlotHdrOff)
}

func (bp *BTreePage) slotCount() int         { return bp.sp().SlotCount() }
func (bp *BTreePage) getRecord(i int) []byte { return bp.sp().GetRecord(i) }

// insertRecordAt inserts a record at position pos, shifting later slots.
func (bp *BTreePage) insertRecordAt(pos int, data []byte) error {
	return bp.sp().InsertRecordAt(pos, data)
}

// ───────────────────────────────────────────────────────────────────────────
// Internal page operations
// ───────────────────────────────────────────────────────────────────────────

// InternalEntry represents a key + left-child pointer for internal pages.
type InternalEntry struct {
	ChildID PageID
	Key     []byte
}

// marshalInternalRecord creates the wire format for an internal record.
// entry.Key must be exactly btreeKeySize bytes.
func marshalInternalRecord(entry InternalEntry) []byte {
	rec := make([]byte, 4+btreeKeySize)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(entry.ChildID))
	copy(rec[4:4+btreeKeySize], entry.Key)
	return rec
}

// unmarshalInternalRecord parses an internal record.
func unmarshalInternalRecord(rec []byte) InternalEntry {
	child := PageID(binary.LittleEndian.Uint32(rec[0:4]))
	key := make([]byte, btreeKeySize)
	copy(key, rec[4:4+btreeKeySize])
	return InternalEntry{ChildID: child, Key: key}
}

// GetInternalEntry returns the i-th separator key and its left child.
func (bp *BTreePage) GetInternalEntry(i int) InternalEntry {
	return unmarshalInternalRecord(bp.getRecord(i))
}

// InsertInternalEntry inserts a separator key at the correct sorted position.
func (bp *BTreePage) InsertInternalEntry(entry InternalEntry) error {
	rec := marshalInternalRecord(entry)
	pos := bp.searchInternal(entry.Key)
	if err := bp.insertRecordAt(pos, rec); err != nil {
		return err
	}
	bp.setKeyCount(bp.KeyCount() + 1)
	return nil
}

// searchInternal returns the sorted insertion position for key.
func (bp *BTreePage) searchInternal(key []byte) int {
	sc := bp.slotCount()
	lo, hi := 0, sc
	for lo < hi {
		mid := (lo + hi) / 2
		e := bp.GetInternalEntry(mid)
		if bytes.Compare(e.Key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// FindChild returns the child PageID for the given search key.
// For internal-page navigation: find the largest key <= searchKey.
func (bp *BTreePage) FindChild(key []byte) PageID {
	sc := bp.slotCount()
	for i := sc - 1; i >= 0; i-- {
		e := bp.GetInternalEntry(i)
		if bytes.Compare(key, e.Key) >= 0 {
			return e.ChildID
		}
	}
	// Key is smaller than all separators — follow leftmost child.
	if sc > 0 {
		return bp.GetInternalEntry(0).ChildID
	}
	return bp.RightChild()
}

// GetAllInternalEntries returns all separator entries in order.
func (bp *BTreePage) GetAllInternalEntries() []InternalEntry {
	sc := bp.slotCount()
	entries := make([]InternalEntry, sc)
	for i := 0; i < sc; i++ {
		entries[i] = bp.GetInternalEntry(i)
	}
	return entries
}

// ───────────────────────────────────────────────────────────────────────────
// Leaf page operations
// ───────────────────────────────────────────────────────────────────────────

// LeafEntry represents a key-value pair stored in a leaf page.
type LeafEntry struct {
	Key            []byte
	Value          []byte // inline value (empty when overflow)
	Overflow       bool
	OverflowPageID PageID
	TotalSize      uint32
}

// marshalLeafRecord creates the wire format for a leaf record. entry.Key
// must be exactly btreeKeySize bytes.
func marshalLeafRecord(entry LeafEntry) []byte {
	const kl = btreeKeySize
	if entry.Overflow {
		rec := make([]byte, kl+2+4+4)
		copy(rec[0:kl], entry.Key)
		off := kl
		binary.LittleEndian.PutUint16(rec[off:off+2], leafFlagOverflow)
		binary.LittleEndian.PutUint32(rec[off+2:off+6], uint32(entry.OverflowPageID))
		binary.LittleEndian.PutUint32(rec[off+6:off+10], entry.TotalSize)
		return rec
	}
	vl := len(entry.Value)
	rec := make([]byte, kl+2+2+vl)
	copy(rec[0:kl], entry.Key)
	off := kl
	binary.LittleEndian.PutUint16(rec[off:off+2], 0) // no flags
	binary.LittleEndian.PutUint16(rec[off+2:off+4], uint16(vl))
	copy(rec[off+4:], entry.Value)
	return rec
}

// unmarshalLeafRecord parses a leaf record.
func unmarshalLeafRecord(rec []byte) LeafEntry {
	const kl = btreeKeySize
	key := make([]byte, kl)
	copy(key, rec[0:kl])
	off := kl
	flags := binary.LittleEndian.Uint16(rec[off : off+2])
	if flags&leafFlagOverflow != 0 {
		opid := PageID(binary.LittleEndian.Uint32(rec[off+2 : off+6]))
		ts := binary.LittleEndian.Uint32(rec[off+6 : off+10])
		return LeafEntry{Key: key, Overflow: true, OverflowPageID: opid, TotalSize: ts}
	}
	vl := int(binary.LittleEndian.Uint16(rec[off+2 : off+4]))
	val := make([]byte, vl)
	copy(val, rec[off+4:off+4+vl])
	return LeafEntry{Key: key, Value: val}
}

// GetLeafEntry returns the i-th key-value pair.
func (bp *BTreePage) GetLeafEntry(i int) LeafEntry {
	return unmarshalLeafRecord(bp.getRecord(i))
}

// InsertLeafEntry inserts a key-value pair at the correct sorted position.
// Returns the slot index.
func (bp *BTreePage) InsertLeafEntry(entry LeafEntry) (int, error) {
	rec := marshalLeafRecord(entry)
	pos := bp.searchLeaf(entry.Key)
	if err := bp.insertRecordAt(pos, rec); err != nil {
		return -1, err
	}
	bp.setKeyCount(bp.KeyCount() + 1)
	return pos, nil
}

// UpdateLeafEntry replaces the value at the given sorted position.
func (bp *BTreePage) UpdateLeafEntry(pos int, entry LeafEntry) error {
	return bp.sp().UpdateRecord(pos, marshalLeafRecord(entry))
}

// DeleteLeafEntry removes the entry at position pos, shifting later slots
// left so sorted order (and binary search) is preserved.
func (bp *BTreePage) DeleteLeafEntry(pos int) error {
	if err := bp.sp().ShiftDeleteRecord(pos); err != nil {
		return err
	}
	bp.setKeyCount(bp.KeyCount() - 1)
	return nil
}

// searchLeaf returns the sorted insertion position for key in a leaf.
func (bp *BTreePage) searchLeaf(key []byte) int {
	sc := bp.slotCount()
	lo, hi := 0, sc
	for lo < hi {
		mid := (lo + hi) / 2
		e := bp.GetLeafEntry(mid)
		if bytes.Compare(e.Key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// FindLeafEntry searches for an exact key match. Returns (index, true) or (-1, false).
func (bp *BTreePage) FindLeafEntry(key []byte) (int, bool) {
	pos := bp.searchLeaf(key)
	if pos < bp.slotCount() {
		e := bp.GetLeafEntry(pos)
		if bytes.Equal(e.Key, key) {
			return pos, true
		}
	}
	return -1, false
}

// upperBoundLeaf returns the position just past the last entry equal to
// key, preserving FIFO order among duplicates appended with
// InsertLeafEntryDuplicate.
func (bp *BTreePage) upperBoundLeaf(key []byte) int {
	pos := bp.searchLeaf(key)
	sc := bp.slotCount()
	for pos < sc {
		e := bp.GetLeafEntry(pos)
		if !bytes.Equal(e.Key, key) {
			break
		}
		pos++
	}
	return pos
}

// InsertLeafEntryDuplicate appends entry after any existing entries with
// the same key, without checking for (and without overwriting) an
// existing match — used for non-unique index postings where multiple
// rowids share one key.
func (bp *BTreePage) InsertLeafEntryDuplicate(entry LeafEntry) (int, error) {
	rec := marshalLeafRecord(entry)
	pos := bp.upperBoundLeaf(entry.Key)
	if err := bp.insertRecordAt(pos, rec); err != nil {
		return -1, err
	}
	bp.setKeyCount(bp.KeyCount() + 1)
	return pos, nil
}

// FindLeafEntryByValue searches the run of entries matching key for one
// whose Value also matches val, returning its slot index. Used to locate
// a specific duplicate for deletion.
func (bp *BTreePage) FindLeafEntryByValue(key, val []byte) (int, bool) {
	pos := bp.searchLeaf(key)
	sc := bp.slotCount()
	for pos < sc {
		e := bp.GetLeafEntry(pos)
		if !bytes.Equal(e.Key, key) {
			break
		}
		if bytes.Equal(e.Value, val) {
			return pos, true
		}
		pos++
	}
	return -1, false
}

// GetAllLeafEntries returns all leaf entries in order.
func (bp *BTreePage) GetAllLeafEntries() []LeafEntry {
	sc := bp.slotCount()
	entries := make([]LeafEntry, sc)
	for i := 0; i < sc; i++ {
		entries[i] = bp.GetLeafEntry(i)
	}
	return entries
}

// ───────────────────────────────────────────────────────────────────────────
// Internal FindChild corrected — walks separators properly
// ───────────────────────────────────────────────────────────────────────────

// SearchInternal finds the child page for a given key in an internal node.
// Internal page layout: entries[0].child, entries[0].key, entries[1].child, ...
// Keys divide the key space: key < entry[0].key → entry[0].child,
// entry[i-1].key <= key < entry[i].key → entry[i].child,
// key >= entry[last].key → RightChild.
func (bp *BTreePage) SearchInternal(key []byte) PageID {
	sc := bp.slotCount()
	for i := 0; i < sc; i++ {
		e := bp.GetInternalEntry(i)
		if bytes.Compare(key, e.Key) < 0 {
			return e.ChildID
		}
	}
	return bp.RightChild()
}
