package pager

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
)

// ───────────────────────────────────────────────────────────────────────────
// Buffer Pool / Pager
// ───────────────────────────────────────────────────────────────────────────
//
// The Pager is the central I/O layer. It manages the database file, the WAL,
// the buffer pool (page cache), the free-list, and the DbHeader on page 1.
// Readers see a consistent snapshot of the file by resolving each page
// through the WAL's committed-frame index at their registered snapshot LSN
// before falling back to the main file; writers go through a single-writer
// WriteTxn that stages PAGE frames in the WAL and only becomes visible to
// new readers once Commit publishes a new walEnd.

// PageFrame is an in-memory cached page (most-recently-flushed image).
type PageFrame struct {
	id     PageID
	buf    []byte
	pinned int
	prev   *PageFrame
	next   *PageFrame
}

// PageBufferPool is an LRU page cache holding the latest durable image of
// each page (post-commit). It never holds uncommitted writer state — that
// lives in the WAL's pageIndex until Commit.
type PageBufferPool struct {
	mu       sync.Mutex
	maxPages int
	pages    map[PageID]*PageFrame
	head     *PageFrame
	tail     *PageFrame
}

func newPageBufferPool(maxPages int) *PageBufferPool {
	if maxPages <= 0 {
		maxPages = 1024
	}
	return &PageBufferPool{maxPages: maxPages, pages: make(map[PageID]*PageFrame, maxPages)}
}

func (bp *PageBufferPool) get(id PageID) (*PageFrame, bool) {
	f, ok := bp.pages[id]
	if ok {
		bp.moveToFront(f)
	}
	return f, ok
}

func (bp *PageBufferPool) put(f *PageFrame) {
	if existing, exists := bp.pages[f.id]; exists {
		existing.buf = f.buf
		bp.moveToFront(existing)
		return
	}
	for len(bp.pages) >= bp.maxPages {
		if !bp.evictOne() {
			break
		}
	}
	bp.pages[f.id] = f
	bp.pushFront(f)
}

func (bp *PageBufferPool) invalidate(id PageID) {
	if f, ok := bp.pages[id]; ok {
		bp.unlink(f)
		delete(bp.pages, id)
	}
}

func (bp *PageBufferPool) evictOne() bool {
	for f := bp.tail; f != nil; f = f.prev {
		if f.pinned == 0 {
			bp.unlink(f)
			delete(bp.pages, f.id)
			return true
		}
	}
	return false
}

func (bp *PageBufferPool) pushFront(f *PageFrame) {
	f.prev = nil
	f.next = bp.head
	if bp.head != nil {
		bp.head.prev = f
	}
	bp.head = f
	if bp.tail == nil {
		bp.tail = f
	}
}

func (bp *PageBufferPool) unlink(f *PageFrame) {
	if f.prev != nil {
		f.prev.next = f.next
	} else {
		bp.head = f.next
	}
	if f.next != nil {
		f.next.prev = f.prev
	} else {
		bp.tail = f.prev
	}
	f.prev = nil
	f.next = nil
}

func (bp *PageBufferPool) moveToFront(f *PageFrame) {
	bp.unlink(f)
	bp.pushFront(f)
}

// ───────────────────────────────────────────────────────────────────────────
// Pager
// ───────────────────────────────────────────────────────────────────────────

// PagerConfig configures a Pager.
type PagerConfig struct {
	DBPath        string
	WALPath       string
	PageSize      int
	MaxCachePages int
}

// writerSession tracks one in-flight WriteTxn's bookkeeping that the WAL
// itself does not need to know about: which pages it allocated (to free on
// rollback) and which pages it freed (to undo on rollback).
type writerSession struct {
	wtxn      *WriteTxn
	allocated []PageID
	freed     []PageID
}

// Pager manages page-level I/O, the WAL, the buffer pool, and the free-list.
type Pager struct {
	mu       sync.RWMutex
	file     *os.File
	wal      *WALFile
	pool     *PageBufferPool
	header   *DbHeader
	freeMgr  *FreeManager
	pageSize int
	path     string
	walPath  string
	closed   bool

	nextTxID        atomic.Uint64
	txMu            sync.Mutex
	txns            map[TxID]*writerSession
	nextContentPage PageID // next page ID to hand out when the free-list is empty
}

// OpenPager opens or creates a page-based database.
func OpenPager(cfg PagerConfig) (*Pager, error) {
	ps := cfg.PageSize
	if ps == 0 {
		ps = DefaultPageSize
	}
	if ps < MinPageSize || ps > MaxPageSize || ps&(ps-1) != 0 {
		return nil, dberr.Internal("invalid page size %d", ps)
	}

	isNew := false
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		isNew = true
	}

	f, err := os.OpenFile(cfg.DBPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberr.Io("open db file: %s", err)
	}

	p := &Pager{
		file:     f,
		pageSize: ps,
		path:     cfg.DBPath,
		pool:     newPageBufferPool(cfg.MaxCachePages),
		freeMgr:  NewFreeManager(),
		txns:     make(map[TxID]*writerSession),
	}

	if isNew {
		h := NewDbHeader(uint32(ps))
		buf := MarshalDbHeader(h, ps)
		if _, err := f.WriteAt(buf, 0); err != nil {
			f.Close()
			return nil, dberr.Io("write db header: %s", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, dberr.Io("sync new db file: %s", err)
		}
		p.header = h
	} else {
		h, err := p.readHeaderFromDisk()
		if err != nil {
			f.Close()
			return nil, err
		}
		p.header = h
		p.pageSize = int(h.PageSize)

		if h.FreelistHead != InvalidPageID {
			if err := p.freeMgr.LoadFromDisk(h.FreelistHead, p.readPageRaw); err != nil {
				f.Close()
				return nil, fmt.Errorf("load freelist: %w", err)
			}
		}
	}

	walPath := cfg.WALPath
	if walPath == "" {
		walPath = cfg.DBPath + ".wal"
	}
	p.walPath = walPath
	wf, err := OpenWALFile(walPath, p.pageSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open WAL file: %w", err)
	}
	p.wal = wf

	if !isNew {
		if err := p.Recover(); err != nil {
			wf.Close()
			f.Close()
			return nil, fmt.Errorf("WAL recovery: %w", err)
		}
	}

	stat, err := f.Stat()
	if err != nil {
		wf.Close()
		f.Close()
		return nil, dberr.Io("stat db file: %s", err)
	}
	p.nextContentPage = PageID(stat.Size()/int64(p.pageSize)) + 1
	if p.nextContentPage < HeaderPageID+1 {
		p.nextContentPage = HeaderPageID + 1
	}

	return p, nil
}

func (p *Pager) readHeaderFromDisk() (*DbHeader, error) {
	buf := make([]byte, p.pageSize)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return nil, dberr.Io("read db header: %s", err)
	}
	return UnmarshalDbHeader(buf)
}

// readPageRaw reads a page directly from the main file, bypassing the WAL
// and the cache, verifying its CRC-32C.
func (p *Pager) readPageRaw(id PageID) ([]byte, error) {
	buf := make([]byte, p.pageSize)
	off := int64(id-1) * int64(p.pageSize)
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return nil, dberr.Io("read page %d: %s", id, err)
	}
	if err := VerifyPageCRC(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writePageRaw writes a page directly to the main file (checkpoint and
// recovery paths only — ordinary writers go through the WAL).
func (p *Pager) writePageRaw(id PageID, buf []byte) error {
	SetPageCRC(buf)
	off := int64(id-1) * int64(p.pageSize)
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return dberr.Io("write page %d: %s", id, err)
	}
	return nil
}

// ── Reader snapshots ──────────────────────────────────────────────────────

// BeginRead registers a new reader snapshot at the current committed LSN.
func (p *Pager) BeginRead() *ReadTxn { return p.wal.BeginRead() }

// EndRead deregisters a reader snapshot.
func (p *Pager) EndRead(rt *ReadTxn) { p.wal.EndRead(rt) }

// AbortReadersOlderThan force-aborts every still-registered reader
// snapshot older than maxAge, returning how many were aborted. Used by
// the engine's reader-timeout sweep.
func (p *Pager) AbortReadersOlderThan(maxAge time.Duration) int {
	return p.wal.AbortReadersOlderThan(maxAge)
}

// ActiveReaderCount reports how many reader snapshots are currently
// registered.
func (p *Pager) ActiveReaderCount() int { return p.wal.ActiveReaderCount() }

// MinActiveReaderLSN reports the oldest snapshot LSN any active reader
// still holds, the floor below which checkpoint truncation must not
// reclaim WAL frames.
func (p *Pager) MinActiveReaderLSN() LSN { return p.wal.MinActiveReaderLSN() }

// WalEnd reports the WAL's current committed end offset.
func (p *Pager) WalEnd() LSN { return p.wal.WalEnd() }

// ReadPageAt resolves pageID as of the given reader snapshot: WAL overlay
// first (latest committed frame with endLSN <= snapshot), then the main
// file. This is the only page-read path that gives snapshot isolation;
// ReadPage below is a convenience for callers (tests, tools) that want
// read-committed-now semantics without managing a ReadTxn.
func (p *Pager) ReadPageAt(rt *ReadTxn, id PageID) ([]byte, error) {
	if buf, ok, err := p.wal.GetPageAtOrBefore(id, rt.SnapshotLSN); err != nil {
		return nil, err
	} else if ok {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		return cp, nil
	}
	return p.readCachedOrDisk(id)
}

// ReadPage reads pageID as of the latest committed WAL state, refreshing
// the buffer cache on miss. Prefer ReadPageAt with an explicit ReadTxn for
// transaction-scoped reads.
func (p *Pager) ReadPage(id PageID) ([]byte, error) {
	rt := p.BeginRead()
	defer p.EndRead(rt)
	return p.ReadPageAt(rt, id)
}

func (p *Pager) readCachedOrDisk(id PageID) ([]byte, error) {
	p.pool.mu.Lock()
	if f, ok := p.pool.get(id); ok {
		buf := make([]byte, len(f.buf))
		copy(buf, f.buf)
		p.pool.mu.Unlock()
		return buf, nil
	}
	p.pool.mu.Unlock()

	buf, err := p.readPageRaw(id)
	if err != nil {
		return nil, err
	}
	p.pool.mu.Lock()
	p.pool.put(&PageFrame{id: id, buf: buf})
	p.pool.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	return cp, nil
}

// ── Transaction management ────────────────────────────────────────────────

// BeginTx starts a new writer transaction, acquiring the WAL's
// single-writer lock. It blocks until any prior writer commits or rolls
// back.
func (p *Pager) BeginTx() (TxID, error) {
	txID := TxID(p.nextTxID.Add(1))
	wtxn := p.wal.BeginWrite()

	p.txMu.Lock()
	p.txns[txID] = &writerSession{wtxn: wtxn}
	p.txMu.Unlock()
	return txID, nil
}

func (p *Pager) session(txID TxID) (*writerSession, error) {
	p.txMu.Lock()
	defer p.txMu.Unlock()
	s, ok := p.txns[txID]
	if !ok {
		return nil, dberr.Transaction("unknown or already-finished transaction %d", txID)
	}
	return s, nil
}

// WritePage appends the page image to the WAL under txID's writer session
// and refreshes the buffer-pool frame eagerly (it will be the durable
// image once this writer commits; rollback evicts it again).
func (p *Pager) WritePage(txID TxID, id PageID, buf []byte) error {
	s, err := p.session(txID)
	if err != nil {
		return err
	}
	SetPageCRC(buf)
	if _, err := p.wal.WritePage(s.wtxn, id, buf); err != nil {
		return fmt.Errorf("WAL write page %d: %w", id, err)
	}
	p.pool.mu.Lock()
	p.pool.put(&PageFrame{id: id, buf: append([]byte{}, buf...)})
	p.pool.mu.Unlock()
	return nil
}

// FlushPage forces an immediate WAL append for a dirty page under cache
// pressure, ahead of the owning transaction's commit. Identical wire
// effect to WritePage; kept as a distinct name for call-site clarity.
func (p *Pager) FlushPage(txID TxID, id PageID, buf []byte) error {
	return p.WritePage(txID, id, buf)
}

// CommitTx publishes txID's writes: appends a COMMIT frame, fsyncs, and
// advances the WAL's published walEnd so new readers see the result.
func (p *Pager) CommitTx(txID TxID) error {
	s, err := p.session(txID)
	if err != nil {
		return err
	}
	if _, err := p.wal.Commit(s.wtxn); err != nil {
		return err
	}
	p.txMu.Lock()
	delete(p.txns, txID)
	p.txMu.Unlock()
	return nil
}

// AbortTx rolls back txID: truncates its WAL frames, evicts any
// buffer-pool frames it wrote, and restores free-list state for pages it
// allocated or freed.
func (p *Pager) AbortTx(txID TxID) error {
	s, err := p.session(txID)
	if err != nil {
		return err
	}
	if err := p.wal.Rollback(s.wtxn); err != nil {
		return err
	}

	p.mu.Lock()
	p.pool.mu.Lock()
	for pid := range s.wtxn.pending {
		p.pool.invalidate(pid)
	}
	p.pool.mu.Unlock()
	for _, pid := range s.allocated {
		p.freeMgr.Free(pid)
	}
	p.mu.Unlock()

	p.txMu.Lock()
	delete(p.txns, txID)
	p.txMu.Unlock()
	return nil
}

// ── Page allocation ───────────────────────────────────────────────────────

// AllocPage allocates a new page under txID's session (so rollback can
// return it to the free-list) and returns its ID with a zeroed buffer.
func (p *Pager) AllocPage(txID TxID) (PageID, []byte) {
	s, err := p.session(txID)
	if err != nil {
		// Callers are expected to hold a valid txID; a zero PageID signals
		// misuse without panicking in a storage-layer hot path.
		return InvalidPageID, nil
	}

	p.mu.Lock()
	pid := p.freeMgr.Alloc()
	if pid == InvalidPageID {
		pid = p.nextContentPage
		p.nextContentPage++
	}
	p.mu.Unlock()

	p.txMu.Lock()
	s.allocated = append(s.allocated, pid)
	p.txMu.Unlock()

	return pid, make([]byte, p.pageSize)
}

// FreePage marks pid as free for reuse under txID's session.
func (p *Pager) FreePage(txID TxID, pid PageID) {
	if s, err := p.session(txID); err == nil {
		p.txMu.Lock()
		s.freed = append(s.freed, pid)
		p.txMu.Unlock()
	}
	p.mu.Lock()
	p.freeMgr.Free(pid)
	p.mu.Unlock()
	p.pool.mu.Lock()
	p.pool.invalidate(pid)
	p.pool.mu.Unlock()
}

// ── Checkpoint ────────────────────────────────────────────────────────────

// Checkpoint implements the seven-step protocol: acquire the writer lock,
// flush every page the WAL currently pins to the main file, update and
// fsync the header's LastCheckpointLsn, append+fsync a CHECKPOINT frame,
// and — if no active reader still needs pre-checkpoint frames — truncate
// the WAL back to just its header.
func (p *Pager) Checkpoint() error {
	w := p.wal.BeginWrite() // reuses the single-writer lock as the checkpoint barrier
	defer p.wal.writerMu.Unlock()

	checkpointLSN := p.wal.WalEnd()

	dirty := p.wal.DirtyPageIDs()
	for _, pid := range dirty {
		buf, ok, err := p.wal.GetPageAtOrBefore(pid, checkpointLSN)
		if err != nil {
			return fmt.Errorf("checkpoint read page %d: %w", pid, err)
		}
		if !ok {
			continue
		}
		if err := p.writePageRaw(pid, buf); err != nil {
			return fmt.Errorf("checkpoint flush page %d: %w", pid, err)
		}
	}
	if err := p.file.Sync(); err != nil {
		return dberr.Io("checkpoint fsync db file: %s", err)
	}

	oldFLHead := p.header.FreelistHead
	if oldFLHead != InvalidPageID {
		p.freeOldFreeListChain(oldFLHead)
	}
	flHead, flPages := p.freeMgr.FlushToDisk(p.pageSize, func() (PageID, []byte) {
		p.mu.Lock()
		pid := p.nextContentPage
		p.nextContentPage++
		p.mu.Unlock()
		return pid, make([]byte, p.pageSize)
	})
	for _, fb := range flPages {
		h := UnmarshalHeader(fb)
		if err := p.writePageRaw(h.ID, fb); err != nil {
			return fmt.Errorf("checkpoint freelist page: %w", err)
		}
	}

	p.mu.Lock()
	p.header.FreelistHead = flHead
	p.header.LastCheckpointLsn = checkpointLSN
	hdrBuf := MarshalDbHeader(p.header, p.pageSize)
	p.mu.Unlock()
	// The DbHeader carries its own checksum at offset 24; a generic page
	// CRC would overwrite FormatVersion at bytes 16..20.
	if _, err := p.file.WriteAt(hdrBuf, 0); err != nil {
		return dberr.Io("checkpoint write header: %s", err)
	}
	if err := p.file.Sync(); err != nil {
		return dberr.Io("checkpoint fsync db file (header): %s", err)
	}

	if err := p.wal.AppendCheckpointFrame(checkpointLSN); err != nil {
		return err
	}

	// The writerMu taken by BeginWrite stays held until the deferred
	// unlock, so Truncate below is atomic with respect to new writers.
	// Rollback/Commit on w itself is never called — this checkpoint never
	// appended a COMMIT frame, so walEnd is untouched by w.
	_ = w

	if p.wal.MinActiveReaderLSN() >= checkpointLSN {
		if err := p.wal.Truncate(); err != nil {
			return fmt.Errorf("checkpoint truncate WAL: %w", err)
		}
	}
	return nil
}

// freeOldFreeListChain walks the old free-list chain and adds those pages
// to the FreeManager so they can be reused. Checkpoint calls it while
// holding the WAL writer lock; p.mu is not held.
func (p *Pager) freeOldFreeListChain(head PageID) {
	pid := head
	for pid != InvalidPageID {
		buf, err := p.readPageRaw(pid)
		if err != nil {
			break
		}
		fl := WrapFreeListPage(buf)
		next := fl.NextFreeList()
		p.freeMgr.Free(pid)
		pid = next
	}
}

// ── Header access ─────────────────────────────────────────────────────────

// Header returns a copy of the current in-memory DbHeader.
func (p *Pager) Header() DbHeader {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.header
}

// UpdateHeader mutates the in-memory header. It does not persist to disk —
// persistence happens at Checkpoint.
func (p *Pager) UpdateHeader(fn func(h *DbHeader)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.header)
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int { return p.pageSize }

// UnpinPage is a no-op retained for call-site compatibility with callers
// written against the pinned-buffer-pool era: ReadPage/ReadPageAt already
// return an owned copy, so there is nothing to unpin.
func (p *Pager) UnpinPage(PageID) {}

// ── Close ─────────────────────────────────────────────────────────────────

// Close commits any writer transaction still open, performs a final
// checkpoint, and closes all files.
func (p *Pager) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.txMu.Lock()
	var open []TxID
	for id := range p.txns {
		open = append(open, id)
	}
	p.txMu.Unlock()
	for _, id := range open {
		if err := p.CommitTx(id); err != nil {
			_ = p.wal.Close()
			_ = p.file.Close()
			return err
		}
	}

	if err := p.Checkpoint(); err != nil {
		_ = p.wal.Close()
		_ = p.file.Close()
		return err
	}
	if err := p.wal.Close(); err != nil {
		_ = p.file.Close()
		return err
	}
	return p.file.Close()
}

// Path returns the database file path.
func (p *Pager) Path() string { return p.path }

// WALPath returns the WAL file path.
func (p *Pager) WALPath() string { return p.walPath }
