package rowcodec

import (
	"encoding/binary"
	"errors"

	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
)

var (
	errShortVarint   = errors.New("short varint")
	errTruncatedData = errors.New("truncated data")
)

// writeOverflowChain splits data across a linked list of Overflow pages,
// using the same chain format as pager.BTree's own value overflow path
// (pager/btree.go's writeOverflow), but run per-value at the row-codec
// layer instead of per whole B+Tree value.
func writeOverflowChain(p *pager.Pager, txID pager.TxID, data []byte) (pager.PageID, error) {
	cap := pager.OverflowCapacity(p.PageSize())
	var headID pager.PageID
	var prevBuf []byte
	var prevID pager.PageID

	for off := 0; off < len(data); off += cap {
		end := off + cap
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		pid, buf := p.AllocPage(txID)
		op := pager.InitOverflowPage(buf, pid)
		if err := op.SetData(chunk); err != nil {
			return 0, err
		}

		if prevBuf != nil {
			prevOP := pager.WrapOverflowPage(prevBuf)
			prevOP.SetNextOverflow(pid)
			pager.SetPageCRC(prevBuf)
			if err := p.WritePage(txID, prevID, prevBuf); err != nil {
				return 0, err
			}
			p.UnpinPage(prevID)
		} else {
			headID = pid
		}

		prevBuf = buf
		prevID = pid
	}

	if prevBuf != nil {
		pager.SetPageCRC(prevBuf)
		if err := p.WritePage(txID, prevID, prevBuf); err != nil {
			return 0, err
		}
		p.UnpinPage(prevID)
	}
	return headID, nil
}

func readOverflowChain(p *pager.Pager, headID pager.PageID, totalSize uint32) ([]byte, error) {
	result := make([]byte, 0, totalSize)
	pid := headID
	for pid != pager.InvalidPageID {
		buf, err := p.ReadPage(pid)
		if err != nil {
			return nil, err
		}
		op := pager.WrapOverflowPage(buf)
		result = append(result, op.Data()...)
		next := op.NextOverflow()
		p.UnpinPage(pid)
		pid = next
	}
	return result, nil
}

// FreeRowOverflows walks a marshaled row and frees every overflow chain it
// references, so callers can reclaim pages on row delete or update before
// discarding the old encoded row — otherwise those chains would dangle
// once the row itself is gone.
func FreeRowOverflows(p *pager.Pager, txID pager.TxID, data []byte) error {
	if len(data) < 2 {
		return nil
	}
	colCount := int(binary.LittleEndian.Uint16(data[:2]))
	off := 2
	for i := 0; i < colCount && off < len(data); i++ {
		tag := data[off]
		off++
		kind := tag & kindMask
		switch kind {
		case kindNull, kindBool:
			if kind == kindBool {
				off++
			}
		case kindInt64, kindFloat64:
			off += 8
		case kindText, kindBlob:
			_, n, err := decodeInlineLengthPrefixed(data, off, tag)
			if err != nil {
				return err
			}
			off = n
		case kindTextOverflow, kindBlobOverflow:
			headID, _, n, err := decodeOverflowCell(data, off)
			if err != nil {
				return err
			}
			freeOverflowChain(p, txID, headID)
			off = n
		default:
			return errTruncatedData
		}
	}
	return nil
}

func freeOverflowChain(p *pager.Pager, txID pager.TxID, headID pager.PageID) {
	pid := headID
	for pid != pager.InvalidPageID {
		buf, err := p.ReadPage(pid)
		if err != nil {
			break
		}
		op := pager.WrapOverflowPage(buf)
		next := op.NextOverflow()
		p.UnpinPage(pid)
		p.FreePage(txID, pid)
		pid = next
	}
}
