package pager

import (
	"encoding/binary"
)

// ───────────────────────────────────────────────────────────────────────────
// Free-list pages
// ───────────────────────────────────────────────────────────────────────────
//
// PageID 0 is reserved as InvalidPageID and PageID 1 is always the DB
// header (HeaderPageID) — every other content page that is currently
// unused is recorded as an entry in the free-list, a singly-linked chain
// of pages holding nothing but an array of those reclaimable PageIDs:
//
//  Offset        Size  Field
//  ──────        ────  ───────────────────
//  0             32    Common PageHeader (Type=FreeList)
//  32            4     next    (u32 PageID) — InvalidPageID terminates the chain
//  36            4     count   (u32) — number of entries below
//  40            4*count       entries (u32 PageID each)
//
// A page holds floor((PageSize-40)/4) entries; Checkpoint rewrites the
// whole chain from the in-memory set each time rather than patching it
// incrementally, so the on-disk chain never carries stale entries between
// checkpoints.

const (
	freeListNextOff  = PageHeaderSize       // 32
	freeListCountOff = freeListNextOff + 4  // 36
	freeListDataOff  = freeListCountOff + 4 // 40
	freeListEntryLen = 4                    // uint32 PageID
)

// FreeListCapacity reports how many PageID entries fit on one free-list
// page of the given size.
func FreeListCapacity(pageSize int) int {
	return (pageSize - freeListDataOff) / freeListEntryLen
}

// FreeListPage is one link of the on-disk free-list chain.
type FreeListPage struct {
	buf      []byte
	pageSize int
}

// WrapFreeListPage views an already-initialised buffer as a free-list link.
func WrapFreeListPage(buf []byte) *FreeListPage {
	return &FreeListPage{buf: buf, pageSize: len(buf)}
}

// InitFreeListPage formats buf as a fresh, empty free-list link with no
// successor and no entries.
func InitFreeListPage(buf []byte, id PageID) *FreeListPage {
	MarshalHeader(&PageHeader{Type: PageTypeFreeList, ID: id}, buf)
	binary.LittleEndian.PutUint32(buf[freeListNextOff:], uint32(InvalidPageID))
	binary.LittleEndian.PutUint32(buf[freeListCountOff:], 0)
	return &FreeListPage{buf: buf, pageSize: len(buf)}
}

// NextFreeList reports the successor link, or InvalidPageID at chain end.
func (fl *FreeListPage) NextFreeList() PageID {
	return PageID(binary.LittleEndian.Uint32(fl.buf[freeListNextOff:]))
}

// SetNextFreeList links fl to the next page in the chain.
func (fl *FreeListPage) SetNextFreeList(pid PageID) {
	binary.LittleEndian.PutUint32(fl.buf[freeListNextOff:], uint32(pid))
}

// EntryCount reports how many PageID entries this link holds.
func (fl *FreeListPage) EntryCount() int {
	return int(binary.LittleEndian.Uint32(fl.buf[freeListCountOff:]))
}

// GetEntry returns the i-th PageID entry.
func (fl *FreeListPage) GetEntry(i int) PageID {
	off := freeListDataOff + i*freeListEntryLen
	return PageID(binary.LittleEndian.Uint32(fl.buf[off:]))
}

// AddEntry appends a reclaimable PageID. Reports false if the link is
// already at capacity.
func (fl *FreeListPage) AddEntry(pid PageID) bool {
	n := fl.EntryCount()
	if n >= FreeListCapacity(fl.pageSize) {
		return false
	}
	off := freeListDataOff + n*freeListEntryLen
	binary.LittleEndian.PutUint32(fl.buf[off:], uint32(pid))
	binary.LittleEndian.PutUint32(fl.buf[freeListCountOff:], uint32(n+1))
	return true
}

// PopEntry removes and returns the last entry, or InvalidPageID if the
// link is empty.
func (fl *FreeListPage) PopEntry() PageID {
	n := fl.EntryCount()
	if n == 0 {
		return InvalidPageID
	}
	pid := fl.GetEntry(n - 1)
	binary.LittleEndian.PutUint32(fl.buf[freeListCountOff:], uint32(n-1))
	return pid
}

// AllEntries returns every PageID entry stored on this link.
func (fl *FreeListPage) AllEntries() []PageID {
	n := fl.EntryCount()
	ids := make([]PageID, n)
	for i := 0; i < n; i++ {
		ids[i] = fl.GetEntry(i)
	}
	return ids
}

// Bytes returns the underlying page buffer.
func (fl *FreeListPage) Bytes() []byte { return fl.buf }

// ───────────────────────────────────────────────────────────────────────────
// FreeManager — in-memory reclaimable-page set, persisted via free-list pages
// ───────────────────────────────────────────────────────────────────────────

// FreeManager tracks reclaimable PageIDs as an in-memory set and owns
// reading/writing that set from/to the on-disk free-list chain. The pager
// consults it on every AllocPage/FreePage and rewrites the chain wholesale
// at each Checkpoint.
type FreeManager struct {
	freeSet   map[PageID]struct{}
	chainHead PageID
}

// NewFreeManager returns an empty FreeManager; call LoadFromDisk to
// populate it from an existing free-list chain.
func NewFreeManager() *FreeManager {
	return &FreeManager{freeSet: map[PageID]struct{}{}, chainHead: InvalidPageID}
}

// LoadFromDisk walks the free-list chain starting at head, populating the
// in-memory set. readPage reads one page's raw bytes by PageID.
func (fm *FreeManager) LoadFromDisk(head PageID, readPage func(PageID) ([]byte, error)) error {
	fm.chainHead = head
	for pid := head; pid != InvalidPageID; {
		buf, err := readPage(pid)
		if err != nil {
			return err
		}
		fl := WrapFreeListPage(buf)
		for _, freeID := range fl.AllEntries() {
			fm.freeSet[freeID] = struct{}{}
		}
		pid = fl.NextFreeList()
	}
	return nil
}

// Alloc removes and returns an arbitrary reclaimable PageID, or
// InvalidPageID if the set is empty.
func (fm *FreeManager) Alloc() PageID {
	for pid := range fm.freeSet {
		delete(fm.freeSet, pid)
		return pid
	}
	return InvalidPageID
}

// Free marks pid as reclaimable.
func (fm *FreeManager) Free(pid PageID) {
	fm.freeSet[pid] = struct{}{}
}

// Count reports how many PageIDs are currently reclaimable.
func (fm *FreeManager) Count() int { return len(fm.freeSet) }

// AllFree returns every reclaimable PageID, in no particular order.
func (fm *FreeManager) AllFree() []PageID {
	ids := make([]PageID, 0, len(fm.freeSet))
	for pid := range fm.freeSet {
		ids = append(ids, pid)
	}
	return ids
}

// FlushToDisk rewrites the in-memory set as a new free-list chain,
// requesting fresh page buffers from allocPage as needed. Returns the new
// chain's head PageID (InvalidPageID if the set is empty) and the set of
// page buffers the caller must still persist.
func (fm *FreeManager) FlushToDisk(pageSize int, allocPage func() (PageID, []byte)) (PageID, [][]byte) {
	ids := fm.AllFree()
	if len(ids) == 0 {
		return InvalidPageID, nil
	}

	perPage := FreeListCapacity(pageSize)
	var pages [][]byte
	var head PageID
	var prev *FreeListPage

	for start := 0; start < len(ids); start += perPage {
		end := start + perPage
		if end > len(ids) {
			end = len(ids)
		}

		pid, buf := allocPage()
		fl := InitFreeListPage(buf, pid)
		for _, fid := range ids[start:end] {
			fl.AddEntry(fid)
		}
		SetPageCRC(buf)
		pages = append(pages, buf)

		if prev == nil {
			head = pid
		} else {
			prev.SetNextFreeList(pid)
			SetPageCRC(prev.Bytes())
		}
		prev = fl
	}

	fm.chainHead = head
	return head, pages
}
