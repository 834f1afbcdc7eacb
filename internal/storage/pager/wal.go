package pager

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
)

// ───────────────────────────────────────────────────────────────────────────
// WAL file format
// ───────────────────────────────────────────────────────────────────────────
//
// WAL header (first 32 bytes), bit-exact little-endian:
//   [0:8]   Magic       "DDBWAL01"
//   [8:12]  HeaderVersion uint32 LE (currently 1)
//   [12:16] PageSize    uint32 LE
//   [16:24] WalEndOffset uint64 LE — logical end offset of last committed frame
//   [24:32] Reserved    8 bytes, zero
//
// Frames are densely packed starting at offset 32. Frame header:
//   [0]    frameType (u8: 0=PAGE, 1=COMMIT, 2=CHECKPOINT)
//   [1:5]  pageId    (u32 LE, 0 for COMMIT/CHECKPOINT)
// Payload length is implied by frameType: PAGE -> pageSize bytes (the full
// page image, already CRC-32C protected by its own page header), COMMIT ->
// 0 bytes, CHECKPOINT -> 8 bytes (checkpoint LSN, u64 LE).
//
// A frame's LSN is its end-offset in the file. The header's WalEndOffset is
// authoritative: bytes beyond it belong to an in-progress or rolled-back
// writer and are ignored on recovery, even though they may still physically
// exist in the file (rollback / crash do not always truncate the file).

const (
	WALMagic       = "DDBWAL01"
	WALVersion     = uint32(1)
	WALFileHdrSize = 32
	walFrameHdrLen = 5 // frameType(1) + pageId(4)
)

// WALFrameType identifies the kind of WAL frame.
type WALFrameType uint8

const (
	WALFramePage       WALFrameType = 0
	WALFrameCommit     WALFrameType = 1
	WALFrameCheckpoint WALFrameType = 2
)

func (ft WALFrameType) String() string {
	switch ft {
	case WALFramePage:
		return "PAGE"
	case WALFrameCommit:
		return "COMMIT"
	case WALFrameCheckpoint:
		return "CHECKPOINT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(ft))
	}
}

// WALFrame is an in-memory representation of a decoded frame.
type WALFrame struct {
	Type   WALFrameType
	PageID PageID
	Data   []byte // full page image for PAGE, 8-byte checkpoint LSN for CHECKPOINT
	LSN    LSN    // end-offset of this frame in the file
}

// frameRef locates one committed PAGE frame inside the WAL file.
type frameRef struct {
	endLSN LSN
	offset int64 // start offset of the frame header
}

// ReadTxn is a registered reader snapshot.
type ReadTxn struct {
	SnapshotLSN LSN
	StartTime   time.Time
	aborted     atomic.Bool
}

// Aborted reports whether a checkpoint force-truncated the WAL out from
// under this reader.
func (rt *ReadTxn) Aborted() bool { return rt.aborted.Load() }

// ───────────────────────────────────────────────────────────────────────────
// WALFile
// ───────────────────────────────────────────────────────────────────────────

// WALFile manages the append-only WAL file, the writer lock, the
// in-memory page->frame index, and the registry of active readers.
type WALFile struct {
	writerMu sync.Mutex // single-writer lock (beginWrite)

	fileMu   sync.Mutex // guards f / writePos / header rewrite
	f        *os.File
	path     string
	pageSize int
	writePos int64 // physical append cursor

	walEnd atomic.Uint64 // published logical end offset (acquire/release)

	idxMu     sync.RWMutex
	pageIndex map[PageID][]frameRef

	readersMu sync.Mutex
	readers   map[*ReadTxn]struct{}
}

// OpenWALFile opens or creates a WAL file and, if it already existed,
// restores walEnd and the physical write cursor from its header.
func OpenWALFile(path string, pageSize int) (*WALFile, error) {
	exists := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		exists = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberr.Io("open WAL: %s", err)
	}

	wf := &WALFile{
		f:         f,
		path:      path,
		pageSize:  pageSize,
		pageIndex: make(map[PageID][]frameRef),
		readers:   make(map[*ReadTxn]struct{}),
	}

	if exists {
		endOff, err := wf.validateAndReadHeader()
		if err != nil {
			f.Close()
			return nil, err
		}
		wf.walEnd.Store(uint64(endOff))
	} else {
		if err := wf.writeHeader(0); err != nil {
			f.Close()
			return nil, err
		}
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberr.Io("stat WAL: %s", err)
	}
	wf.writePos = stat.Size()
	if wf.writePos < WALFileHdrSize {
		wf.writePos = WALFileHdrSize
	}

	return wf, nil
}

func (wf *WALFile) writeHeader(endOffset int64) error {
	var hdr [WALFileHdrSize]byte
	copy(hdr[0:8], WALMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], WALVersion)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(wf.pageSize))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(endOffset))
	if _, err := wf.f.WriteAt(hdr[:], 0); err != nil {
		return dberr.Io("write WAL header: %s", err)
	}
	return wf.f.Sync()
}

func (wf *WALFile) validateAndReadHeader() (int64, error) {
	var hdr [WALFileHdrSize]byte
	n, err := wf.f.ReadAt(hdr[:], 0)
	if err != nil && err != io.EOF {
		return 0, dberr.Io("read WAL header: %s", err)
	}
	if n < WALFileHdrSize {
		return 0, dberr.Corruption("WAL header too short: %d bytes", n)
	}
	if string(hdr[0:8]) != WALMagic {
		return 0, dberr.Corruption("bad WAL magic")
	}
	ver := binary.LittleEndian.Uint32(hdr[8:12])
	if ver != WALVersion {
		return 0, dberr.Corruption("unsupported WAL version %d", ver)
	}
	ps := binary.LittleEndian.Uint32(hdr[12:16])
	if int(ps) != wf.pageSize {
		return 0, dberr.Corruption("WAL page size %d != expected %d", ps, wf.pageSize)
	}
	endOff := int64(binary.LittleEndian.Uint64(hdr[16:24]))
	return endOff, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Writer protocol: beginWrite / writePage / flushPage / commit / rollback
// ───────────────────────────────────────────────────────────────────────────

// WriteTxn is a writer-scoped handle returned by BeginWrite.
type WriteTxn struct {
	preEndOffset int64
	pending      map[PageID]int64 // pageId -> frame header offset, most recent write wins
	order        []PageID         // insertion order for deterministic commit-time indexing
}

// BeginWrite acquires the single-writer lock and returns a writer handle.
// Blocking is bounded by busyTimeoutMs at the engine layer; this call
// itself blocks until the lock is free.
func (wf *WALFile) BeginWrite() *WriteTxn {
	wf.writerMu.Lock()
	return &WriteTxn{
		preEndOffset: int64(wf.walEnd.Load()),
		pending:      make(map[PageID]int64),
	}
}

// WritePage appends a PAGE frame. Not visible to readers until Commit.
func (wf *WALFile) WritePage(w *WriteTxn, pageID PageID, data []byte) (LSN, error) {
	return wf.appendPageFrame(w, pageID, data)
}

// FlushPage is the cache-pressure path: identical wire effect to WritePage,
// but called out separately because the pager must remember the returned
// offset so reads from this writer find the page via the flushed-page map.
func (wf *WALFile) FlushPage(w *WriteTxn, pageID PageID, data []byte) (LSN, error) {
	return wf.appendPageFrame(w, pageID, data)
}

func (wf *WALFile) appendPageFrame(w *WriteTxn, pageID PageID, data []byte) (LSN, error) {
	if len(data) != wf.pageSize {
		return 0, dberr.Internal("WAL page frame: payload %d bytes != page size %d", len(data), wf.pageSize)
	}
	wf.fileMu.Lock()
	defer wf.fileMu.Unlock()

	frameOff := wf.writePos
	buf := make([]byte, walFrameHdrLen+len(data))
	buf[0] = byte(WALFramePage)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(pageID))
	copy(buf[walFrameHdrLen:], data)

	n, err := wf.f.WriteAt(buf, frameOff)
	if err != nil {
		return 0, dberr.Io("WAL write page frame: %s", err)
	}
	wf.writePos += int64(n)

	if _, seen := w.pending[pageID]; !seen {
		w.order = append(w.order, pageID)
	}
	w.pending[pageID] = frameOff

	return LSN(wf.writePos), nil
}

// Commit appends a COMMIT frame, fsyncs, atomically publishes walEnd with
// release ordering, updates the in-memory page index, rewrites the WAL
// header's WalEndOffset, and fsyncs the header. Returns the commit LSN.
func (wf *WALFile) Commit(w *WriteTxn) (LSN, error) {
	defer wf.writerMu.Unlock()

	wf.fileMu.Lock()
	commitFrameOff := wf.writePos
	var hdr [walFrameHdrLen]byte
	hdr[0] = byte(WALFrameCommit)
	n, err := wf.f.WriteAt(hdr[:], commitFrameOff)
	if err != nil {
		wf.fileMu.Unlock()
		return 0, dberr.Io("WAL write commit frame: %s", err)
	}
	wf.writePos += int64(n)
	commitLSN := LSN(wf.writePos)

	if err := wf.f.Sync(); err != nil {
		wf.fileMu.Unlock()
		return 0, dberr.Io("WAL fsync on commit: %s", err)
	}
	wf.fileMu.Unlock()

	// Publish: readers beginning after this point see every page written
	// in this transaction. Store-release pairs with readers' load-acquire.
	wf.walEnd.Store(uint64(commitLSN))

	wf.idxMu.Lock()
	for _, pid := range w.order {
		off := w.pending[pid]
		wf.pageIndex[pid] = append(wf.pageIndex[pid], frameRef{endLSN: commitLSN, offset: off})
	}
	wf.idxMu.Unlock()

	wf.fileMu.Lock()
	err = wf.writeHeader(int64(commitLSN))
	wf.fileMu.Unlock()
	if err != nil {
		return 0, dberr.Io("WAL header rewrite on commit: %s", err)
	}

	return commitLSN, nil
}

// Rollback truncates the WAL back to the pre-BeginWrite end offset (never
// below the 32-byte header), discarding the writer's pending frames. No
// visibility change: walEnd was never advanced for this writer.
func (wf *WALFile) Rollback(w *WriteTxn) error {
	defer wf.writerMu.Unlock()

	wf.fileMu.Lock()
	defer wf.fileMu.Unlock()
	end := w.preEndOffset
	if end < WALFileHdrSize {
		end = WALFileHdrSize
	}
	if err := wf.f.Truncate(end); err != nil {
		return dberr.Io("WAL rollback truncate: %s", err)
	}
	wf.writePos = end
	return nil
}

// ───────────────────────────────────────────────────────────────────────────
// Reader snapshots
// ───────────────────────────────────────────────────────────────────────────

// BeginRead registers a new reader at the currently published walEnd.
func (wf *WALFile) BeginRead() *ReadTxn {
	rt := &ReadTxn{SnapshotLSN: LSN(wf.walEnd.Load()), StartTime: time.Now()}
	wf.readersMu.Lock()
	wf.readers[rt] = struct{}{}
	wf.readersMu.Unlock()
	return rt
}

// EndRead deregisters a reader.
func (wf *WALFile) EndRead(rt *ReadTxn) {
	wf.readersMu.Lock()
	delete(wf.readers, rt)
	wf.readersMu.Unlock()
}

// MinActiveReaderLSN returns the minimum snapshotLsn among non-aborted
// active readers, or the current walEnd if there are none.
func (wf *WALFile) MinActiveReaderLSN() LSN {
	wf.readersMu.Lock()
	defer wf.readersMu.Unlock()
	min := LSN(wf.walEnd.Load())
	found := false
	for rt := range wf.readers {
		if rt.Aborted() {
			continue
		}
		if !found || rt.SnapshotLSN < min {
			min = rt.SnapshotLSN
			found = true
		}
	}
	return min
}

// AbortReadersOlderThan marks every active reader older than maxAge as
// aborted (checkpoint reader-timeout path). Returns the number aborted.
func (wf *WALFile) AbortReadersOlderThan(maxAge time.Duration) int {
	wf.readersMu.Lock()
	defer wf.readersMu.Unlock()
	now := time.Now()
	n := 0
	for rt := range wf.readers {
		if now.Sub(rt.StartTime) > maxAge && !rt.Aborted() {
			rt.aborted.Store(true)
			n++
		}
	}
	return n
}

// ActiveReaderCount reports the number of currently registered readers.
func (wf *WALFile) ActiveReaderCount() int {
	wf.readersMu.Lock()
	defer wf.readersMu.Unlock()
	return len(wf.readers)
}

// WalEnd returns the currently published logical end offset (load-acquire).
func (wf *WALFile) WalEnd() LSN { return LSN(wf.walEnd.Load()) }

// ───────────────────────────────────────────────────────────────────────────
// Page lookup at a snapshot
// ───────────────────────────────────────────────────────────────────────────

// GetPageAtOrBefore returns the payload of the latest committed PAGE frame
// for pageID whose end-LSN <= snapshotLsn, or (nil, false) if none exists
// (caller should fall back to the main file).
func (wf *WALFile) GetPageAtOrBefore(pageID PageID, snapshotLsn LSN) ([]byte, bool, error) {
	wf.idxMu.RLock()
	refs := wf.pageIndex[pageID]
	wf.idxMu.RUnlock()
	if len(refs) == 0 {
		return nil, false, nil
	}

	// refs is append-ordered by increasing endLSN (commits only move
	// forward); binary search for the rightmost endLSN <= snapshotLsn.
	lo, hi := 0, len(refs)-1
	best := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if refs[mid].endLSN <= snapshotLsn {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best < 0 {
		return nil, false, nil
	}

	buf := make([]byte, wf.pageSize)
	wf.fileMu.Lock()
	_, err := wf.f.ReadAt(buf, refs[best].offset+walFrameHdrLen)
	wf.fileMu.Unlock()
	if err != nil {
		return nil, false, dberr.Io("WAL read page frame: %s", err)
	}
	return buf, true, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Checkpoint support
// ───────────────────────────────────────────────────────────────────────────

// DirtyPageIDs returns the set of page IDs with at least one committed
// frame at or before walEnd, i.e. everything the WAL currently pins.
func (wf *WALFile) DirtyPageIDs() []PageID {
	wf.idxMu.RLock()
	defer wf.idxMu.RUnlock()
	ids := make([]PageID, 0, len(wf.pageIndex))
	for pid := range wf.pageIndex {
		ids = append(ids, pid)
	}
	return ids
}

// AppendCheckpointFrame appends a CHECKPOINT frame (payload = checkpoint
// LSN) and fsyncs.
func (wf *WALFile) AppendCheckpointFrame(checkpointLSN LSN) error {
	wf.fileMu.Lock()
	defer wf.fileMu.Unlock()

	buf := make([]byte, walFrameHdrLen+8)
	buf[0] = byte(WALFrameCheckpoint)
	binary.LittleEndian.PutUint64(buf[walFrameHdrLen:], uint64(checkpointLSN))
	n, err := wf.f.WriteAt(buf, wf.writePos)
	if err != nil {
		return dberr.Io("WAL write checkpoint frame: %s", err)
	}
	wf.writePos += int64(n)
	return wf.f.Sync()
}

// Truncate resets the WAL file to just the header, clears the page index
// and resets walEnd to 0. Called once a checkpoint determines no reader
// still needs any pre-checkpoint frame.
func (wf *WALFile) Truncate() error {
	wf.fileMu.Lock()
	defer wf.fileMu.Unlock()
	if err := wf.f.Truncate(WALFileHdrSize); err != nil {
		return err
	}
	wf.writePos = WALFileHdrSize
	if err := wf.writeHeader(0); err != nil {
		return err
	}
	wf.walEnd.Store(0)

	wf.idxMu.Lock()
	wf.pageIndex = make(map[PageID][]frameRef)
	wf.idxMu.Unlock()
	return nil
}

// Sync fsyncs the WAL file.
func (wf *WALFile) Sync() error {
	wf.fileMu.Lock()
	defer wf.fileMu.Unlock()
	return wf.f.Sync()
}

// Close closes the WAL file.
func (wf *WALFile) Close() error {
	wf.fileMu.Lock()
	defer wf.fileMu.Unlock()
	return wf.f.Close()
}

// Path returns the WAL file path.
func (wf *WALFile) Path() string { return wf.path }

// ───────────────────────────────────────────────────────────────────────────
// Recovery: sequential decode from offset 32 to the header's WalEndOffset
// ───────────────────────────────────────────────────────────────────────────

// ReadCommittedFrames decodes every frame in [32, walEndOffset) from the
// WAL file at path and rebuilds the page index that OpenWALFile would have
// built had it not crashed. walEndOffset is authoritative: bytes past it
// belong to an uncommitted or rolled-back writer and are never decoded,
// even if they are still physically present.
func ReadCommittedFrames(path string, pageSize int, walEndOffset int64) ([]WALFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dberr.Io("open WAL for recovery: %s", err)
	}
	defer f.Close()

	var frames []WALFrame
	off := int64(WALFileHdrSize)
	for off < walEndOffset {
		var fh [walFrameHdrLen]byte
		if _, err := f.ReadAt(fh[:], off); err != nil {
			return nil, dberr.Corruption("read frame header at %d: %s", off, err)
		}
		ftype := WALFrameType(fh[0])
		pageID := PageID(binary.LittleEndian.Uint32(fh[1:5]))

		var payloadLen int
		switch ftype {
		case WALFramePage:
			payloadLen = pageSize
		case WALFrameCommit:
			payloadLen = 0
		case WALFrameCheckpoint:
			payloadLen = 8
		default:
			return nil, dberr.Corruption("unknown frame type 0x%02x at %d", fh[0], off)
		}
		if ftype == WALFramePage && pageID == InvalidPageID {
			return nil, dberr.Corruption("PAGE frame with pageId=0 at %d", off)
		}

		data := make([]byte, payloadLen)
		if payloadLen > 0 {
			if _, err := f.ReadAt(data, off+walFrameHdrLen); err != nil {
				return nil, dberr.Corruption("read frame payload at %d: %s", off, err)
			}
		}

		off += int64(walFrameHdrLen + payloadLen)
		frames = append(frames, WALFrame{Type: ftype, PageID: pageID, Data: data, LSN: LSN(off)})
	}
	if off != walEndOffset {
		return nil, dberr.Corruption("frame boundary %d does not land on walEndOffset %d", off, walEndOffset)
	}
	return frames, nil
}
