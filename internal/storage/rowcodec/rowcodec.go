// Package rowcodec implements DecentDB's row wire format: a variable-length
// stream of {tag, payload} cells per column, with per-value overflow
// promotion for TEXT/BLOB cells that would otherwise blow out a B+Tree leaf.
//
// The wire format uses a tag-byte + length-prefix style with an overflow
// chain format (next page id + payload): overflow promotion applies per
// individual TEXT/BLOB value rather than only to whole oversized records,
// and lengths are varint-encoded rather than fixed uint16.
package rowcodec

import (
	"encoding/binary"
	"math"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
)

// Cell kinds, packed into the low 5 bits of the tag byte.
const (
	kindNull byte = iota
	kindBool
	kindInt64
	kindFloat64
	kindText
	kindBlob
	kindTextOverflow
	kindBlobOverflow
)

const (
	kindMask      = 0x1F
	lenClassShift = 5
	lenClassWide  = 0x7 // all three length-class bits set: varint length follows
	lenClassMax   = 6   // longest length a text/blob tag can carry inline
)

// DefaultOverflowThreshold is the default per-value size above which a
// TEXT/BLOB cell is promoted to an overflow chain instead of being stored
// inline: roughly (pageSize - 128). Per-value promotion uses the same
// margin against page size so a handful of oversized columns in one row
// can each overflow independently.
func DefaultOverflowThreshold(pageSize int) int {
	t := pageSize - 128
	if t < 64 {
		t = 64
	}
	return t
}

// MarshalRow encodes row into the compact binary format, promoting any
// TEXT/BLOB value longer than overflowThreshold bytes to its own overflow
// chain via p. txID must be an active write transaction.
func MarshalRow(p *pager.Pager, txID pager.TxID, row []any, overflowThreshold int) ([]byte, error) {
	buf := make([]byte, 0, 2+len(row)*9)

	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(row)))
	buf = append(buf, hdr[:]...)

	for i, v := range row {
		enc, err := marshalCell(p, txID, v, overflowThreshold)
		if err != nil {
			return nil, dberr.Internal("rowcodec: marshal column %d: %s", i, err)
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

func marshalCell(p *pager.Pager, txID pager.TxID, v any, overflowThreshold int) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte{kindNull}, nil
	case bool:
		b := byte(0)
		if val {
			b = 1
		}
		return []byte{kindBool, b}, nil
	case int:
		return marshalInt64(int64(val)), nil
	case int64:
		return marshalInt64(val), nil
	case float64:
		var b [9]byte
		b[0] = kindFloat64
		binary.LittleEndian.PutUint64(b[1:], math.Float64bits(val))
		return b[:], nil
	case string:
		return marshalLengthPrefixed(p, txID, kindText, kindTextOverflow, []byte(val), overflowThreshold)
	case []byte:
		return marshalLengthPrefixed(p, txID, kindBlob, kindBlobOverflow, val, overflowThreshold)
	default:
		return nil, dberr.Internal("rowcodec: unsupported value type %T", v)
	}
}

func marshalInt64(n int64) []byte {
	var b [9]byte
	b[0] = kindInt64
	binary.LittleEndian.PutUint64(b[1:], uint64(n))
	return b[:]
}

func marshalLengthPrefixed(p *pager.Pager, txID pager.TxID, inlineKind, overflowKind byte, data []byte, overflowThreshold int) ([]byte, error) {
	if len(data) > overflowThreshold {
		headID, err := writeOverflowChain(p, txID, data)
		if err != nil {
			return nil, err
		}
		var out [1 + binary.MaxVarintLen64*2]byte
		out[0] = overflowKind
		n := 1
		n += binary.PutUvarint(out[n:], uint64(headID))
		n += binary.PutUvarint(out[n:], uint64(len(data)))
		return out[:n], nil
	}

	var tag byte
	var lenBuf []byte
	if len(data) <= lenClassMax {
		tag = inlineKind | byte(len(data))<<lenClassShift
	} else {
		tag = inlineKind | lenClassWide<<lenClassShift
		var vb [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(vb[:], uint64(len(data)))
		lenBuf = vb[:n]
	}
	out := make([]byte, 0, 1+len(lenBuf)+len(data))
	out = append(out, tag)
	out = append(out, lenBuf...)
	out = append(out, data...)
	return out, nil
}

// UnmarshalRow decodes a row previously produced by MarshalRow, following
// any overflow chains to reconstruct the original TEXT/BLOB values.
func UnmarshalRow(p *pager.Pager, data []byte) ([]any, error) {
	if len(data) < 2 {
		return nil, dberr.Corruption("rowcodec: row data too short (%d bytes)", len(data))
	}
	colCount := int(binary.LittleEndian.Uint16(data[:2]))
	off := 2
	row := make([]any, colCount)

	for i := 0; i < colCount; i++ {
		if off >= len(data) {
			return nil, dberr.Corruption("rowcodec: unexpected end of row at column %d", i)
		}
		tag := data[off]
		off++
		kind := tag & kindMask

		switch kind {
		case kindNull:
			row[i] = nil
		case kindBool:
			if off >= len(data) {
				return nil, dberr.Corruption("rowcodec: truncated bool at column %d", i)
			}
			row[i] = data[off] != 0
			off++
		case kindInt64:
			if off+8 > len(data) {
				return nil, dberr.Corruption("rowcodec: truncated int64 at column %d", i)
			}
			row[i] = int64(binary.LittleEndian.Uint64(data[off : off+8]))
			off += 8
		case kindFloat64:
			if off+8 > len(data) {
				return nil, dberr.Corruption("rowcodec: truncated float64 at column %d", i)
			}
			row[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
			off += 8
		case kindText, kindBlob:
			val, n, err := decodeInlineLengthPrefixed(data, off, tag)
			if err != nil {
				return nil, dberr.Corruption("rowcodec: column %d: %s", i, err)
			}
			if kind == kindText {
				row[i] = string(val)
			} else {
				row[i] = val
			}
			off = n
		case kindTextOverflow, kindBlobOverflow:
			headID, totalLen, n, err := decodeOverflowCell(data, off)
			if err != nil {
				return nil, dberr.Corruption("rowcodec: column %d: %s", i, err)
			}
			val, err := readOverflowChain(p, headID, totalLen)
			if err != nil {
				return nil, err
			}
			if kind == kindTextOverflow {
				row[i] = string(val)
			} else {
				row[i] = val
			}
			off = n
		default:
			return nil, dberr.Corruption("rowcodec: unknown tag 0x%02x at column %d", tag, i)
		}
	}
	return row, nil
}

func decodeInlineLengthPrefixed(data []byte, off int, tag byte) ([]byte, int, error) {
	lenClass := (tag >> lenClassShift) & 0x7
	var length int
	if lenClass == lenClassWide {
		l, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return nil, 0, errShortVarint
		}
		length = int(l)
		off += n
	} else {
		length = int(lenClass)
	}
	if off+length > len(data) {
		return nil, 0, errTruncatedData
	}
	val := make([]byte, length)
	copy(val, data[off:off+length])
	return val, off + length, nil
}

func decodeOverflowCell(data []byte, off int) (pager.PageID, uint32, int, error) {
	headID, n1 := binary.Uvarint(data[off:])
	if n1 <= 0 {
		return 0, 0, 0, errShortVarint
	}
	off += n1
	totalLen, n2 := binary.Uvarint(data[off:])
	if n2 <= 0 {
		return 0, 0, 0, errShortVarint
	}
	off += n2
	return pager.PageID(headID), uint32(totalLen), off, nil
}
