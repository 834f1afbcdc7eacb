package trigram

import (
	"encoding/binary"
	"sort"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
)

// EncodePostings encodes a sorted, deduplicated rowid list as a
// delta-encoded varint stream: each entry is the varint gap from the
// previous rowid (the first entry's gap is from 0).
func EncodePostings(rowids []uint64) []byte {
	buf := make([]byte, 0, len(rowids)*2)
	var prev uint64
	var tmp [binary.MaxVarintLen64]byte
	for _, id := range rowids {
		n := binary.PutUvarint(tmp[:], id-prev)
		buf = append(buf, tmp[:n]...)
		prev = id
	}
	return buf
}

// DecodePostings reverses EncodePostings.
func DecodePostings(data []byte) ([]uint64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out := make([]uint64, 0, len(data)/2)
	var prev uint64
	off := 0
	for off < len(data) {
		gap, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return nil, dberr.Corruption("trigram: malformed postings varint at byte %d", off)
		}
		off += n
		prev += gap
		out = append(out, prev)
	}
	return out, nil
}

// MergeAddsRemoves applies adds and removes to an existing sorted
// postings list: apply removes (sorted merge), then apply adds (sorted
// merge). removes and adds are expected sorted and deduplicated;
// existing is assumed sorted.
func MergeAddsRemoves(existing, removes, adds []uint64) []uint64 {
	removed := make(map[uint64]bool, len(removes))
	for _, id := range removes {
		removed[id] = true
	}
	merged := make([]uint64, 0, len(existing)+len(adds))
	for _, id := range existing {
		if !removed[id] {
			merged = append(merged, id)
		}
	}
	for _, id := range adds {
		if !removed[id] {
			merged = append(merged, id)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	merged = dedupeSorted(merged)
	return merged
}

func dedupeSorted(ids []uint64) []uint64 {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
