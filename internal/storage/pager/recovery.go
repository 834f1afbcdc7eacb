package pager

import (
	"fmt"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
)

// ───────────────────────────────────────────────────────────────────────────
// Crash Recovery
// ───────────────────────────────────────────────────────────────────────────
//
// The WAL header's WalEndOffset is the authority on what is committed: it
// is only ever rewritten, and fsynced, after every frame up to that offset
// is itself durable on disk. Recovery therefore does not need per-frame
// CRC checks or scan-until-corrupt logic — it decodes sequentially from
// offset 32 to WalEndOffset, replays every PAGE frame found there onto the
// main file, and trusts that anything beyond WalEndOffset belongs to an
// in-flight or rolled-back writer and is silently ignored, whether or not
// it is still physically present.
//
// Each PAGE frame's payload is a full page image carrying its own
// CRC-32C-protected PageHeader, so page-level corruption within the
// committed range is still caught by VerifyPageCRC when the page is next
// read.
//
// Algorithm:
//   1. Read the WAL header; take WalEndOffset as the replay boundary.
//   2. Decode every frame in [32, WalEndOffset).
//   3. Apply each PAGE frame directly to the main file.
//   4. Fsync the main file.
//   5. Rebuild the WAL's in-memory pageIndex from the same frames so
//      readers opened immediately after recovery still see WAL-resident
//      versions until the next checkpoint.

// Recover replays the WAL's committed frames onto the main file.
func (p *Pager) Recover() error {
	endOff, err := p.wal.validateAndReadHeader()
	if err != nil {
		return fmt.Errorf("recover read WAL header: %w", err)
	}
	if endOff <= 0 {
		return nil
	}

	frames, err := ReadCommittedFrames(p.wal.Path(), p.pageSize, endOff)
	if err != nil {
		return fmt.Errorf("recover decode WAL frames: %w", err)
	}
	if len(frames) == 0 {
		return nil
	}

	applied := 0
	for _, fr := range frames {
		if fr.Type != WALFramePage {
			continue
		}
		if err := p.writePageRaw(fr.PageID, fr.Data); err != nil {
			return fmt.Errorf("recover apply page %d: %w", fr.PageID, err)
		}
		applied++
	}
	if applied > 0 {
		if err := p.file.Sync(); err != nil {
			return dberr.Io("recover fsync db file: %s", err)
		}
	}

	p.wal.walEnd.Store(uint64(endOff))
	p.wal.writePos = endOff

	p.wal.idxMu.Lock()
	for _, fr := range frames {
		if fr.Type != WALFramePage {
			continue
		}
		off := int64(fr.LSN) - int64(walFrameHdrLen+len(fr.Data))
		p.wal.pageIndex[fr.PageID] = append(p.wal.pageIndex[fr.PageID], frameRef{endLSN: fr.LSN, offset: off})
	}
	p.wal.idxMu.Unlock()

	return nil
}
