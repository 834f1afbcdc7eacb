package pager

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
)

// ───────────────────────────────────────────────────────────────────────────
// DbHeader — page 1
// ───────────────────────────────────────────────────────────────────────────
//
// Bit-exact, little-endian, 128 bytes, padded to a full page:
//
//  Offset  Size  Field
//  ──────  ────  ───────────────────
//  0       16    Magic "DECENTDB" + zero padding (bytes 8..15)
//  16      4     FormatVersion (u32)
//  20      4     PageSize      (u32)
//  24      4     HeaderChecksum (CRC-32C over bytes 0..127 with this field zeroed)
//  28      4     SchemaCookie  (u32)
//  32      4     RootCatalog   (u32 PageID)
//  36      4     RootFreelist  (u32 PageID)
//  40      4     FreelistHead  (u32 PageID)
//  44      4     FreelistCount (u32)
//  48      8     LastCheckpointLsn (u64)
//  56      72    Reserved (zero)
//
// This is a distinct on-disk layout from the generic 32-byte PageHeader
// used by B+Tree/overflow/freelist pages — the header carries its own
// checksum field at a fixed offset per spec, not the generic scheme.

const (
	DbHeaderSize = 128

	dbHeaderMagic = "DECENTDB"

	dbHdrMagicOff         = 0
	dbHdrFormatVersionOff = 16
	dbHdrPageSizeOff      = 20
	dbHdrChecksumOff      = 24
	dbHdrSchemaCookieOff  = 28
	dbHdrRootCatalogOff   = 32
	dbHdrRootFreelistOff  = 36
	dbHdrFreelistHeadOff  = 40
	dbHdrFreelistCountOff = 44
	dbHdrCheckpointLsnOff = 48

	// CurrentFormatVersion is the on-disk format version understood by
	// this build.
	CurrentFormatVersion uint32 = 1
)

// DbHeader holds the parsed contents of page 1.
type DbHeader struct {
	FormatVersion     uint32
	PageSize          uint32
	SchemaCookie      uint32
	RootCatalog       PageID
	RootFreelist      PageID
	FreelistHead      PageID
	FreelistCount     uint32
	LastCheckpointLsn LSN
}

// NewDbHeader builds the default header for a freshly created database.
func NewDbHeader(pageSize uint32) *DbHeader {
	return &DbHeader{
		FormatVersion: CurrentFormatVersion,
		PageSize:      pageSize,
		RootCatalog:   InvalidPageID,
		RootFreelist:  InvalidPageID,
		FreelistHead:  InvalidPageID,
	}
}

// MarshalDbHeader serializes h into a full page-sized buffer (page 1),
// computing and storing the CRC-32C checksum.
func MarshalDbHeader(h *DbHeader, pageSize int) []byte {
	buf := make([]byte, pageSize)
	copy(buf[dbHdrMagicOff:dbHdrMagicOff+8], dbHeaderMagic)
	binary.LittleEndian.PutUint32(buf[dbHdrFormatVersionOff:], h.FormatVersion)
	binary.LittleEndian.PutUint32(buf[dbHdrPageSizeOff:], h.PageSize)
	binary.LittleEndian.PutUint32(buf[dbHdrSchemaCookieOff:], h.SchemaCookie)
	binary.LittleEndian.PutUint32(buf[dbHdrRootCatalogOff:], uint32(h.RootCatalog))
	binary.LittleEndian.PutUint32(buf[dbHdrRootFreelistOff:], uint32(h.RootFreelist))
	binary.LittleEndian.PutUint32(buf[dbHdrFreelistHeadOff:], uint32(h.FreelistHead))
	binary.LittleEndian.PutUint32(buf[dbHdrFreelistCountOff:], h.FreelistCount)
	binary.LittleEndian.PutUint64(buf[dbHdrCheckpointLsnOff:], uint64(h.LastCheckpointLsn))
	setDbHeaderChecksum(buf)
	return buf
}

// UnmarshalDbHeader decodes page 1 from buf, validating magic, checksum,
// format version and page size.
func UnmarshalDbHeader(buf []byte) (*DbHeader, error) {
	if len(buf) < DbHeaderSize {
		return nil, dberr.Corruption("db header too small: %d bytes", len(buf))
	}
	if err := verifyDbHeaderChecksum(buf); err != nil {
		return nil, err
	}
	magic := string(buf[dbHdrMagicOff : dbHdrMagicOff+8])
	if magic != dbHeaderMagic {
		return nil, dberr.Corruption("bad magic %q, expected %q", magic, dbHeaderMagic)
	}
	h := &DbHeader{
		FormatVersion:     binary.LittleEndian.Uint32(buf[dbHdrFormatVersionOff:]),
		PageSize:          binary.LittleEndian.Uint32(buf[dbHdrPageSizeOff:]),
		SchemaCookie:      binary.LittleEndian.Uint32(buf[dbHdrSchemaCookieOff:]),
		RootCatalog:       PageID(binary.LittleEndian.Uint32(buf[dbHdrRootCatalogOff:])),
		RootFreelist:      PageID(binary.LittleEndian.Uint32(buf[dbHdrRootFreelistOff:])),
		FreelistHead:      PageID(binary.LittleEndian.Uint32(buf[dbHdrFreelistHeadOff:])),
		FreelistCount:     binary.LittleEndian.Uint32(buf[dbHdrFreelistCountOff:]),
		LastCheckpointLsn: LSN(binary.LittleEndian.Uint64(buf[dbHdrCheckpointLsnOff:])),
	}
	if h.FormatVersion != CurrentFormatVersion {
		return nil, dberr.Corruption("unsupported format version %d (this build supports %d)",
			h.FormatVersion, CurrentFormatVersion)
	}
	if h.PageSize < MinPageSize || h.PageSize > MaxPageSize {
		return nil, dberr.Corruption("page size %d out of range [%d..%d]", h.PageSize, MinPageSize, MaxPageSize)
	}
	if h.PageSize&(h.PageSize-1) != 0 {
		return nil, dberr.Corruption("page size %d is not a power of two", h.PageSize)
	}
	return h, nil
}

func setDbHeaderChecksum(buf []byte) {
	binary.LittleEndian.PutUint32(buf[dbHdrChecksumOff:], 0)
	c := crc32.Checksum(buf[0:DbHeaderSize], crcTable)
	binary.LittleEndian.PutUint32(buf[dbHdrChecksumOff:], c)
}

func verifyDbHeaderChecksum(buf []byte) error {
	stored := binary.LittleEndian.Uint32(buf[dbHdrChecksumOff:])
	tmp := make([]byte, DbHeaderSize)
	copy(tmp, buf[0:DbHeaderSize])
	binary.LittleEndian.PutUint32(tmp[dbHdrChecksumOff:], 0)
	computed := crc32.Checksum(tmp, crcTable)
	if stored != computed {
		return dberr.Corruption("db header checksum mismatch: stored=%08x computed=%08x", stored, computed)
	}
	return nil
}
