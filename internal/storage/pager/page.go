// Package pager implements DecentDB's paged file, page cache, freelist,
// B+Tree and write-ahead log. Pages are 1-based: page 1 holds the fixed
// 128-byte DbHeader (see header.go); pages 2.. hold typed B+Tree, overflow
// and freelist content, each carrying its own 32-byte header and CRC-32C
// checksum. Crash recovery replays committed WAL transactions whose frames
// postdate the header's lastCheckpointLsn.
package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
)

// ───────────────────────────────────────────────────────────────────────────
// Constants
// ───────────────────────────────────────────────────────────────────────────

const (
	// DefaultPageSize is the default page size in bytes (4 KiB per spec).
	DefaultPageSize = 4096

	// MinPageSize is the minimum allowed page size.
	MinPageSize = 2048

	// MaxPageSize is the maximum allowed page size.
	MaxPageSize = 16384

	// PageHeaderSize is the size of the common page header in bytes.
	// Layout:
	//   [0]    PageType   (1 byte)
	//   [1]    Flags      (1 byte)
	//   [2:4]  Reserved   (2 bytes)
	//   [4:8]  PageID     (4 bytes, uint32 LE)
	//   [8:16] LSN        (8 bytes, uint64 LE)
	//   [16:20] CRC32     (4 bytes, uint32 LE)
	//   [20:32] Reserved  (12 bytes)
	PageHeaderSize = 32

	// InvalidPageID represents a null/invalid page pointer.
	InvalidPageID PageID = 0

	// HeaderPageID is the fixed page holding the DbHeader. Pages are
	// 1-based; ordinary content starts at page 2.
	HeaderPageID PageID = 1

	// OverflowThreshold is the max inline value size (bytes) before an
	// overflow page chain is used. Adjusted dynamically per page size,
	// this is the default for DefaultPageSize.
	OverflowThreshold = 1024
)

// ───────────────────────────────────────────────────────────────────────────
// Page types
// ───────────────────────────────────────────────────────────────────────────

// PageType identifies the kind of data stored in a page.
type PageType uint8

const (
	PageTypeBTreeInternal PageType = 0x02
	PageTypeBTreeLeaf     PageType = 0x03
	PageTypeOverflow      PageType = 0x04
	PageTypeFreeList      PageType = 0x05
)

// String returns a human-readable label for the page type.
func (pt PageType) String() string {
	switch pt {
	case PageTypeBTreeInternal:
		return "BTree-Internal"
	case PageTypeBTreeLeaf:
		return "BTree-Leaf"
	case PageTypeOverflow:
		return "Overflow"
	case PageTypeFreeList:
		return "FreeList"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(pt))
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Core types
// ───────────────────────────────────────────────────────────────────────────

// PageID is a 1-based page identifier. Page 1 is always the DbHeader.
type PageID uint32

// LSN is a monotonically increasing Log Sequence Number.
type LSN uint64

// TxID is a transaction identifier.
type TxID uint64

// ───────────────────────────────────────────────────────────────────────────
// Page header
// ───────────────────────────────────────────────────────────────────────────

// PageHeader is the 32-byte header present at the start of every page.
type PageHeader struct {
	Type     PageType // 1 byte
	Flags    uint8    // 1 byte
	Reserved uint16   // 2 bytes
	ID       PageID   // 4 bytes
	LSN      LSN      // 8 bytes
	CRC      uint32   // 4 bytes — CRC32 of the entire page (with CRC field zeroed)
	Pad      [12]byte // reserved for future use
}

// MarshalHeader writes a PageHeader into the first PageHeaderSize bytes of buf.
func MarshalHeader(h *PageHeader, buf []byte) {
	if len(buf) < PageHeaderSize {
		panic("buffer too small for PageHeader")
	}
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], h.Reserved)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.ID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.LSN))
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC)
	copy(buf[20:32], h.Pad[:])
}

// UnmarshalHeader reads a PageHeader from the first PageHeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) PageHeader {
	var h PageHeader
	h.Type = PageType(buf[0])
	h.Flags = buf[1]
	h.Reserved = binary.LittleEndian.Uint16(buf[2:4])
	h.ID = PageID(binary.LittleEndian.Uint32(buf[4:8]))
	h.LSN = LSN(binary.LittleEndian.Uint64(buf[8:16]))
	h.CRC = binary.LittleEndian.Uint32(buf[16:20])
	copy(h.Pad[:], buf[20:32])
	return h
}

// ───────────────────────────────────────────────────────────────────────────
// CRC helpers
// ───────────────────────────────────────────────────────────────────────────

// crcTable is the CRC32 (Castagnoli) table used throughout.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputePageCRC computes the CRC32-C of a full page, treating the CRC
// field (bytes 16..20) as zero during computation.
func ComputePageCRC(page []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(page[:16])          // header up to CRC field
	h.Write([]byte{0, 0, 0, 0}) // zeroed CRC placeholder
	h.Write(page[20:])          // rest of page
	return h.Sum32()
}

// SetPageCRC computes and writes the CRC into the page header.
func SetPageCRC(page []byte) {
	c := ComputePageCRC(page)
	binary.LittleEndian.PutUint32(page[16:20], c)
}

// VerifyPageCRC checks the CRC32 checksum of a page.
func VerifyPageCRC(page []byte) error {
	stored := binary.LittleEndian.Uint32(page[16:20])
	computed := ComputePageCRC(page)
	if stored != computed {
		pid := PageID(binary.LittleEndian.Uint32(page[4:8]))
		return dberr.Corruption("CRC mismatch on page %d: stored=%08x computed=%08x", pid, stored, computed)
	}
	return nil
}

// ───────────────────────────────────────────────────────────────────────────
// Page helper
// ───────────────────────────────────────────────────────────────────────────

// NewPage allocates a zeroed page buffer at the given size and writes its header.
func NewPage(pageSize int, pt PageType, id PageID) []byte {
	buf := make([]byte, pageSize)
	h := &PageHeader{Type: pt, ID: id}
	MarshalHeader(h, buf)
	return buf
}
