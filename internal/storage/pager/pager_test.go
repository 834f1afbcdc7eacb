package pager

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
)

func TestPageHeader_MarshalRoundTrip(t *testing.T) {
	h := PageHeader{
		Type:  PageTypeBTreeLeaf,
		Flags: 0x42,
		ID:    PageID(99),
		LSN:   LSN(12345),
		CRC:   0xDEADBEEF,
	}
	buf := make([]byte, PageHeaderSize)
	MarshalHeader(&h, buf)
	h2 := UnmarshalHeader(buf)
	if h2.Type != h.Type || h2.Flags != h.Flags || h2.ID != h.ID || h2.LSN != h.LSN || h2.CRC != h.CRC {
		t.Fatalf("header roundtrip mismatch: %+v vs %+v", h, h2)
	}
}

func TestCRC_DetectsCorruption(t *testing.T) {
	buf := NewPage(DefaultPageSize, PageTypeBTreeLeaf, 1)
	SetPageCRC(buf)
	if err := VerifyPageCRC(buf); err != nil {
		t.Fatalf("valid CRC failed: %v", err)
	}
	buf[100] ^= 0xFF
	if err := VerifyPageCRC(buf); err == nil {
		t.Fatal("expected CRC error after corruption")
	}
}

func TestDbHeader_RoundTrip(t *testing.T) {
	h := NewDbHeader(DefaultPageSize)
	h.RootCatalog = PageID(5)
	h.FreelistHead = PageID(10)
	h.LastCheckpointLsn = LSN(999)
	h.SchemaCookie = 3

	buf := MarshalDbHeader(h, DefaultPageSize)
	h2, err := UnmarshalDbHeader(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h2.FormatVersion != h.FormatVersion || h2.PageSize != h.PageSize ||
		h2.RootCatalog != h.RootCatalog || h2.LastCheckpointLsn != h.LastCheckpointLsn ||
		h2.SchemaCookie != h.SchemaCookie {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", h, h2)
	}
}

func TestDbHeader_BadMagic(t *testing.T) {
	buf := MarshalDbHeader(NewDbHeader(DefaultPageSize), DefaultPageSize)
	buf[dbHdrMagicOff] = 'X'
	if _, err := UnmarshalDbHeader(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDbHeader_ChecksumMismatch(t *testing.T) {
	buf := MarshalDbHeader(NewDbHeader(DefaultPageSize), DefaultPageSize)
	buf[60] ^= 0xFF
	if _, err := UnmarshalDbHeader(buf); err == nil {
		t.Fatal("expected checksum error")
	}
}

func TestSlottedPage_InsertAndGet(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := InitSlottedPage(buf, PageTypeBTreeLeaf, 1)
	data := []byte("hello world")
	slot, err := sp.InsertRecord(data)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got := sp.GetRecord(slot)
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q want %q", got, data)
	}
}

func TestSlottedPage_DeleteAndReuse(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := InitSlottedPage(buf, PageTypeBTreeLeaf, 1)
	s0, _ := sp.InsertRecord([]byte("aaa"))
	s1, _ := sp.InsertRecord([]byte("bbb"))
	_ = sp.DeleteRecord(s0)
	if !sp.IsDeleted(s0) {
		t.Fatal("slot 0 should be deleted")
	}
	if sp.LiveRecords() != 1 {
		t.Fatalf("live records: got %d want 1", sp.LiveRecords())
	}
	s2, _ := sp.InsertRecord([]byte("ccc"))
	if s2 != s0 {
		t.Fatalf("expected reuse of slot %d, got %d", s0, s2)
	}
	_ = s1
}

func TestSlottedPage_UpdateInPlace(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := InitSlottedPage(buf, PageTypeBTreeLeaf, 1)
	slot, _ := sp.InsertRecord([]byte("long data here!!"))
	err := sp.UpdateRecord(slot, []byte("short"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got := sp.GetRecord(slot)
	if string(got) != "short" {
		t.Fatalf("got %q want %q", got, "short")
	}
}

func TestSlottedPage_Compact(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := InitSlottedPage(buf, PageTypeBTreeLeaf, 1)
	sp.InsertRecord([]byte("aaaa"))
	sp.InsertRecord([]byte("bbbb"))
	sp.InsertRecord([]byte("cccc"))
	sp.DeleteRecord(1)
	sp.Compact()
	if sp.LiveRecords() != 2 {
		t.Fatalf("after compact: live=%d want 2", sp.LiveRecords())
	}
}

func TestOverflowPage_ReadWrite(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	op := InitOverflowPage(buf, 5)
	data := make([]byte, OverflowCapacity(DefaultPageSize))
	rand.Read(data)
	if err := op.SetData(data); err != nil {
		t.Fatalf("setData: %v", err)
	}
	got := op.Data()
	if !bytes.Equal(got, data) {
		t.Fatal("data mismatch")
	}
}

func TestOverflowPage_ExceedsCapacity(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	op := InitOverflowPage(buf, 5)
	data := make([]byte, DefaultPageSize)
	if err := op.SetData(data); err == nil {
		t.Fatal("expected error for oversized data")
	}
}

func TestFreeListPage_AddAndPop(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	fl := InitFreeListPage(buf, 7)
	fl.AddEntry(PageID(10))
	fl.AddEntry(PageID(20))
	fl.AddEntry(PageID(30))
	if fl.EntryCount() != 3 {
		t.Fatalf("entry count: got %d", fl.EntryCount())
	}
	pid := fl.PopEntry()
	if pid != PageID(30) {
		t.Fatalf("pop: got %d want 30", pid)
	}
	if fl.EntryCount() != 2 {
		t.Fatalf("entry count after pop: got %d", fl.EntryCount())
	}
}

func TestFreeManager_AllocFree(t *testing.T) {
	fm := NewFreeManager()
	fm.Free(PageID(5))
	fm.Free(PageID(10))
	if fm.Count() != 2 {
		t.Fatalf("count: got %d", fm.Count())
	}
	pid := fm.Alloc()
	if pid == InvalidPageID {
		t.Fatal("expected a page from Alloc")
	}
	if fm.Count() != 1 {
		t.Fatalf("count after alloc: got %d", fm.Count())
	}
}

func TestWAL_WriteCommitIsVisibleToNewReaders(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "test.wal")
	wf, err := OpenWALFile(walPath, DefaultPageSize)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer wf.Close()

	pageData := make([]byte, DefaultPageSize)
	copy(pageData, []byte("page image data"))

	rtBefore := wf.BeginRead()
	w := wf.BeginWrite()
	if _, err := wf.WritePage(w, PageID(5), pageData); err != nil {
		t.Fatalf("write page: %v", err)
	}
	if _, err := wf.Commit(w); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, ok, _ := wf.GetPageAtOrBefore(PageID(5), rtBefore.SnapshotLSN); ok {
		t.Fatal("reader started before the write should not see it")
	}
	rtAfter := wf.BeginRead()
	got, ok, err := wf.GetPageAtOrBefore(PageID(5), rtAfter.SnapshotLSN)
	if err != nil || !ok {
		t.Fatalf("reader started after commit should see the page: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, pageData) {
		t.Fatal("page data mismatch")
	}
	wf.EndRead(rtBefore)
	wf.EndRead(rtAfter)
}

func TestWAL_RollbackDiscardsFrames(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "test.wal")
	wf, err := OpenWALFile(walPath, DefaultPageSize)
	if err != nil {
		t.Fatal(err)
	}
	defer wf.Close()

	w := wf.BeginWrite()
	if _, err := wf.WritePage(w, PageID(3), make([]byte, DefaultPageSize)); err != nil {
		t.Fatal(err)
	}
	if err := wf.Rollback(w); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	rt := wf.BeginRead()
	defer wf.EndRead(rt)
	if _, ok, _ := wf.GetPageAtOrBefore(PageID(3), rt.SnapshotLSN); ok {
		t.Fatal("rolled-back page should not be visible")
	}
}

func newTestPager(t *testing.T) *Pager {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	p, err := OpenPager(PagerConfig{
		DBPath:   dbPath,
		PageSize: DefaultPageSize,
	})
	if err != nil {
		t.Fatalf("OpenPager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPager_BasicTransactions(t *testing.T) {
	p := newTestPager(t)
	txID, err := p.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	pid, buf := p.AllocPage(txID)
	InitBTreePage(buf, pid, true)
	SetPageCRC(buf)
	if err := p.WritePage(txID, pid, buf); err != nil {
		t.Fatal(err)
	}
	if err := p.CommitTx(txID); err != nil {
		t.Fatal(err)
	}
	buf2, err := p.ReadPage(pid)
	if err != nil {
		t.Fatal(err)
	}
	bp := WrapBTreePage(buf2)
	if !bp.IsLeaf() {
		t.Fatal("expected leaf page")
	}
}

func TestPager_AbortDiscardsWrites(t *testing.T) {
	p := newTestPager(t)
	txID, _ := p.BeginTx()
	pid, buf := p.AllocPage(txID)
	InitBTreePage(buf, pid, true)
	SetPageCRC(buf)
	if err := p.WritePage(txID, pid, buf); err != nil {
		t.Fatal(err)
	}
	if err := p.AbortTx(txID); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if _, err := p.readPageRaw(pid); err == nil {
		t.Fatal("aborted page should not exist on the main file")
	}
}

func TestPager_Checkpoint(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	p, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatal(err)
	}
	txID, _ := p.BeginTx()
	pid, buf := p.AllocPage(txID)
	leaf := InitBTreePage(buf, pid, true)
	leaf.InsertLeafEntry(LeafEntry{Key: []byte("hello"), Value: []byte("world")})
	SetPageCRC(buf)
	p.WritePage(txID, pid, buf)
	p.CommitTx(txID)
	if err := p.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	p.Close()

	p2, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()
	buf2, err := p2.ReadPage(pid)
	if err != nil {
		t.Fatalf("read after reopen: %v", err)
	}
	bp := WrapBTreePage(buf2)
	if bp.KeyCount() != 1 {
		t.Fatalf("keyCount: got %d want 1", bp.KeyCount())
	}
}

// u64Key encodes n as the fixed 8-byte big-endian key every B+Tree in
// this package requires (rowid, CRC-32C(name), CRC-32C(indexed value)).
func u64Key(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}

func TestBTree_InsertAndGet(t *testing.T) {
	p := newTestPager(t)
	txID, _ := p.BeginTx()
	bt, err := CreateBTree(p, txID)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.Insert(txID, u64Key(1), []byte("value1")); err != nil {
		t.Fatal(err)
	}
	if err := bt.Insert(txID, u64Key(2), []byte("value2")); err != nil {
		t.Fatal(err)
	}
	p.CommitTx(txID)
	val, found, err := bt.Get(u64Key(1))
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "value1" {
		t.Fatalf("got %q/%v want value1/true", val, found)
	}
	_, found, err = bt.Get(u64Key(999))
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected not found")
	}
}

func TestBTree_Delete(t *testing.T) {
	p := newTestPager(t)
	txID, _ := p.BeginTx()
	bt, _ := CreateBTree(p, txID)
	bt.Insert(txID, u64Key(1), []byte("1"))
	bt.Insert(txID, u64Key(2), []byte("2"))
	bt.Insert(txID, u64Key(3), []byte("3"))
	p.CommitTx(txID)

	txID2, _ := p.BeginTx()
	deleted, err := bt.Delete(txID2, u64Key(2))
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}
	p.CommitTx(txID2)
	_, found, _ := bt.Get(u64Key(2))
	if found {
		t.Fatal("key 2 should be deleted")
	}
	count, _ := bt.Count()
	if count != 2 {
		t.Fatalf("count: got %d want 2", count)
	}
}

func TestBTree_UpdateExistingKey(t *testing.T) {
	p := newTestPager(t)
	txID, _ := p.BeginTx()
	bt, _ := CreateBTree(p, txID)
	bt.Insert(txID, u64Key(7), []byte("val1"))
	bt.Insert(txID, u64Key(7), []byte("val2"))
	p.CommitTx(txID)
	val, found, _ := bt.Get(u64Key(7))
	if !found || string(val) != "val2" {
		t.Fatalf("got %q want val2", val)
	}
	count, _ := bt.Count()
	if count != 1 {
		t.Fatalf("count: got %d want 1", count)
	}
}

func TestBTree_ScanRange(t *testing.T) {
	p := newTestPager(t)
	txID, _ := p.BeginTx()
	bt, _ := CreateBTree(p, txID)
	for i := uint64(0); i < 10; i++ {
		bt.Insert(txID, u64Key(i), []byte(fmt.Sprintf("val%02d", i)))
	}
	p.CommitTx(txID)
	var scanned []uint64
	bt.ScanRange(u64Key(3), u64Key(7), func(key, val []byte) bool {
		scanned = append(scanned, binary.BigEndian.Uint64(key))
		return true
	})
	expected := []uint64{3, 4, 5, 6, 7}
	if len(scanned) != len(expected) {
		t.Fatalf("scanned %d want %d: %v", len(scanned), len(expected), scanned)
	}
	for i, s := range scanned {
		if s != expected[i] {
			t.Errorf("scanned[%d]=%d want %d", i, s, expected[i])
		}
	}
}

func TestBTree_SplitLeaf(t *testing.T) {
	p := newTestPager(t)
	txID, _ := p.BeginTx()
	bt, _ := CreateBTree(p, txID)
	n := 200
	for i := 0; i < n; i++ {
		val := fmt.Sprintf("v%05d", i)
		if err := bt.Insert(txID, u64Key(uint64(i)), []byte(val)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	p.CommitTx(txID)
	count, err := bt.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != n {
		t.Fatalf("count: got %d want %d", count, n)
	}
	var keys []uint64
	bt.ScanRange(u64Key(0), nil, func(key, val []byte) bool {
		keys = append(keys, binary.BigEndian.Uint64(key))
		return true
	})
	if len(keys) != n {
		t.Fatalf("scan: got %d keys want %d", len(keys), n)
	}
	if !sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }) {
		t.Fatal("keys not sorted")
	}
	for _, i := range []int{0, 50, 99, 150, 199} {
		val, found, err := bt.Get(u64Key(uint64(i)))
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatalf("key %d not found", i)
		}
		expected := fmt.Sprintf("v%05d", i)
		if string(val) != expected {
			t.Fatalf("key %d: got %q want %q", i, val, expected)
		}
	}
}

func TestBTree_OverflowValues(t *testing.T) {
	p := newTestPager(t)
	txID, _ := p.BeginTx()
	bt, _ := CreateBTree(p, txID)
	key := u64Key(42)
	val := make([]byte, bt.overflowThresh+500)
	rand.Read(val)
	if err := bt.Insert(txID, key, val); err != nil {
		t.Fatalf("insert overflow: %v", err)
	}
	p.CommitTx(txID)
	got, found, err := bt.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("overflow key not found")
	}
	if !bytes.Equal(got, val) {
		t.Fatalf("overflow value mismatch: got %d bytes, want %d", len(got), len(val))
	}
}

func TestBTree_DuplicateKeyPostings(t *testing.T) {
	p := newTestPager(t)
	txID, _ := p.BeginTx()
	bt, _ := CreateBTree(p, txID)
	key := u64Key(123)
	if err := bt.InsertDuplicate(txID, key, u64Key(1)); err != nil {
		t.Fatal(err)
	}
	if err := bt.InsertDuplicate(txID, key, u64Key(2)); err != nil {
		t.Fatal(err)
	}
	if err := bt.InsertDuplicate(txID, key, u64Key(3)); err != nil {
		t.Fatal(err)
	}
	p.CommitTx(txID)

	var postings []uint64
	bt.ScanRange(key, key, func(k, v []byte) bool {
		postings = append(postings, binary.BigEndian.Uint64(v))
		return true
	})
	if len(postings) != 3 {
		t.Fatalf("postings: got %d want 3: %v", len(postings), postings)
	}
	if postings[0] != 1 || postings[1] != 2 || postings[2] != 3 {
		t.Fatalf("postings not in FIFO order: %v", postings)
	}

	txID2, _ := p.BeginTx()
	deleted, err := bt.DeleteKeyValue(txID2, key, u64Key(2))
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}
	p.CommitTx(txID2)

	postings = nil
	bt.ScanRange(key, key, func(k, v []byte) bool {
		postings = append(postings, binary.BigEndian.Uint64(v))
		return true
	})
	if len(postings) != 2 || postings[0] != 1 || postings[1] != 3 {
		t.Fatalf("postings after delete: %v", postings)
	}
}

func TestRecovery_CommittedTxApplied(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	p, _ := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	txID, _ := p.BeginTx()
	pid, buf := p.AllocPage(txID)
	leaf := InitBTreePage(buf, pid, true)
	leaf.InsertLeafEntry(LeafEntry{Key: u64Key(77), Value: []byte("yes")})
	SetPageCRC(buf)
	p.WritePage(txID, pid, buf)
	p.CommitTx(txID)
	p.wal.Close()
	p.file.Close()

	p2, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("reopen with recovery: %v", err)
	}
	defer p2.Close()
	buf2, err := p2.ReadPage(pid)
	if err != nil {
		t.Fatalf("read recovered page: %v", err)
	}
	bp := WrapBTreePage(buf2)
	if bp.KeyCount() != 1 {
		t.Fatalf("recovered keyCount: %d want 1", bp.KeyCount())
	}
	entry := bp.GetLeafEntry(0)
	if !bytes.Equal(entry.Key, u64Key(77)) || string(entry.Value) != "yes" {
		t.Fatalf("recovered entry: key=%x val=%q", entry.Key, entry.Value)
	}
}

func TestRecovery_UncommittedTxIgnored(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	walPath := dbPath + ".wal"
	p, _ := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	p.Checkpoint()
	p.wal.Close()
	p.file.Close()

	// Simulate a crash mid-writer-session: append a PAGE frame directly
	// without a COMMIT frame, and without advancing the header's
	// walEndOffset. Recovery must ignore it.
	wf, _ := OpenWALFile(walPath, DefaultPageSize)
	w := wf.BeginWrite()
	pageBuf := NewPage(DefaultPageSize, PageTypeBTreeLeaf, 2)
	bp := InitBTreePage(pageBuf, 2, true)
	bp.InsertLeafEntry(LeafEntry{Key: u64Key(88), Value: []byte("no")})
	SetPageCRC(pageBuf)
	wf.WritePage(w, PageID(2), pageBuf)
	wf.writerMu.Unlock() // leave the "writer" session open without committing
	wf.Close()

	p2, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()
	if _, err := p2.readPageRaw(PageID(2)); err == nil {
		t.Fatal("uncommitted page should not have been applied by recovery")
	}
}

func TestCatalog_PutGetDelete(t *testing.T) {
	p := newTestPager(t)
	txID, _ := p.BeginTx()
	cat, err := OpenCatalog(p, txID)
	if err != nil {
		t.Fatal(err)
	}
	entry := CatalogEntry{Name: "users", Kind: CatalogKindTable, RootPageID: PageID(2)}
	if err := cat.PutEntry(txID, entry); err != nil {
		t.Fatal(err)
	}
	p.CommitTx(txID)

	got, err := cat.GetEntry("users")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.RootPageID != PageID(2) {
		t.Fatalf("got %+v", got)
	}

	txID2, _ := p.BeginTx()
	if err := cat.DeleteEntry(txID2, "users"); err != nil {
		t.Fatal(err)
	}
	p.CommitTx(txID2)
	got2, err := cat.GetEntry("users")
	if err != nil {
		t.Fatal(err)
	}
	if got2 != nil {
		t.Fatal("expected entry to be deleted")
	}
}

func TestBTreePage_InternalEntry(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	bp := InitBTreePage(buf, 1, false)
	bp.InsertInternalEntry(InternalEntry{ChildID: 3, Key: u64Key(20)})
	bp.InsertInternalEntry(InternalEntry{ChildID: 2, Key: u64Key(10)})
	bp.InsertInternalEntry(InternalEntry{ChildID: 4, Key: u64Key(30)})
	bp.SetRightChild(5)
	if bp.KeyCount() != 3 {
		t.Fatalf("keyCount: %d", bp.KeyCount())
	}
	e0 := bp.GetInternalEntry(0)
	e1 := bp.GetInternalEntry(1)
	e2 := bp.GetInternalEntry(2)
	if !bytes.Equal(e0.Key, u64Key(10)) || !bytes.Equal(e1.Key, u64Key(20)) || !bytes.Equal(e2.Key, u64Key(30)) {
		t.Fatalf("order: %x %x %x", e0.Key, e1.Key, e2.Key)
	}
	child := bp.SearchInternal(u64Key(15))
	if child != 3 {
		t.Fatalf("search 15: got child %d want 3", child)
	}
	child = bp.SearchInternal(u64Key(999))
	if child != 5 {
		t.Fatalf("search 999: got child %d want 5", child)
	}
}

func TestBTreePage_LeafEntry(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	bp := InitBTreePage(buf, 1, true)
	bp.InsertLeafEntry(LeafEntry{Key: u64Key(3), Value: []byte("3")})
	bp.InsertLeafEntry(LeafEntry{Key: u64Key(1), Value: []byte("1")})
	bp.InsertLeafEntry(LeafEntry{Key: u64Key(2), Value: []byte("2")})
	if bp.KeyCount() != 3 {
		t.Fatalf("keyCount: %d", bp.KeyCount())
	}
	e := bp.GetLeafEntry(0)
	if !bytes.Equal(e.Key, u64Key(1)) || string(e.Value) != "1" {
		t.Fatalf("entry 0: %x=%q", e.Key, e.Value)
	}
	pos, found := bp.FindLeafEntry(u64Key(2))
	if !found || pos != 1 {
		t.Fatalf("find key 2: pos=%d found=%v", pos, found)
	}
}

func TestBTreePage_LeafOverflowEntry(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	bp := InitBTreePage(buf, 1, true)
	bp.InsertLeafEntry(LeafEntry{
		Key:            u64Key(9),
		Overflow:       true,
		OverflowPageID: 42,
		TotalSize:      100000,
	})
	e := bp.GetLeafEntry(0)
	if !e.Overflow || e.OverflowPageID != 42 || e.TotalSize != 100000 {
		t.Fatalf("overflow entry: %+v", e)
	}
}
