package trigram

import (
	"encoding/binary"

	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
)

// Index is a trigram substring index over one TEXT column, backed by a
// single pager.BTree whose key is a trigram's u32 token (zero-extended
// into the tree's fixed 8-byte u64 key space) and whose value is a
// delta-encoded varint list of sorted rowids.
type Index struct {
	tree  *pager.BTree
	delta *Delta
}

// OpenIndex wraps an existing postings B+Tree rooted at root.
func OpenIndex(p *pager.Pager, root pager.PageID) *Index {
	return &Index{tree: pager.NewBTree(p, root), delta: NewDelta()}
}

// CreateIndex allocates a new, empty postings B+Tree.
func CreateIndex(p *pager.Pager, txID pager.TxID) (*Index, error) {
	tree, err := pager.CreateBTree(p, txID)
	if err != nil {
		return nil, err
	}
	return &Index{tree: tree, delta: NewDelta()}, nil
}

// Root returns the postings B+Tree's root page, so callers can persist it
// back into the catalog's index metadata after a flush changes it.
func (idx *Index) Root() pager.PageID { return idx.tree.Root() }

// Delta returns the index's pending-change buffer.
func (idx *Index) Delta() *Delta { return idx.delta }

func trigramKey(tg uint32) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(tg))
	return buf[:]
}

// CommittedPostings returns the rowids currently stored for tg in the
// postings tree, ignoring any pending delta.
func (idx *Index) CommittedPostings(tg uint32) ([]uint64, error) {
	val, found, err := idx.tree.Get(trigramKey(tg))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return DecodePostings(val)
}

// EffectivePostingCount returns CommittedPostings(tg)'s length adjusted by
// the index's pending delta — a cheap estimate used for sorting candidate
// trigrams by selectivity without materializing the merged list.
func (idx *Index) EffectivePostingCount(tg uint32) (int, error) {
	committed, err := idx.CommittedPostings(tg)
	if err != nil {
		return 0, err
	}
	adds, removes := idx.delta.PendingCount(tg)
	return len(committed) + adds - removes, nil
}

// PostingsWithDeltas returns the sorted rowid list for tg as of the
// current transaction: committed postings merged with this index's
// pending adds/removes. This is what the external SQL layer's
// getTrigramPostingsWithDeltas calls per candidate trigram.
func (idx *Index) PostingsWithDeltas(tg uint32) ([]uint64, error) {
	committed, err := idx.CommittedPostings(tg)
	if err != nil {
		return nil, err
	}
	adds := sortedSet(idx.delta.adds, tg)
	removes := sortedSet(idx.delta.removes, tg)
	if len(adds) == 0 && len(removes) == 0 {
		return committed, nil
	}
	return MergeAddsRemoves(committed, removes, adds), nil
}

// Flush applies every buffered delta into the postings tree: for each
// buffered trigram, load existing postings, apply removes then adds
// (sorted merge), re-encode, store back or delete the key if the merged
// list is empty. Called at checkpoint time; idx.Delta() is cleared on
// success so a second Flush is a no-op.
func (idx *Index) Flush(txID pager.TxID) error {
	for _, tg := range idx.delta.trigrams() {
		committed, err := idx.CommittedPostings(tg)
		if err != nil {
			return err
		}
		adds := sortedSet(idx.delta.adds, tg)
		removes := sortedSet(idx.delta.removes, tg)
		merged := MergeAddsRemoves(committed, removes, adds)

		key := trigramKey(tg)
		if len(merged) == 0 {
			if _, err := idx.tree.Delete(txID, key); err != nil {
				return err
			}
			continue
		}
		if err := idx.tree.Insert(txID, key, EncodePostings(merged)); err != nil {
			return err
		}
	}
	idx.delta.Clear()
	return nil
}

// CandidateRowids evaluates a query over a set of trigrams already
// extracted from a search pattern: fetch each trigram's
// postings, sort ascending by posting count, intersect progressively,
// short-circuiting once the running candidate set is at or below
// postingsThreshold. Returns ok=false if even the rarest trigram's posting
// count exceeds postingsThreshold — the guardrail that refuses to drive
// the query from this index.
func (idx *Index) CandidateRowids(trigrams []uint32, postingsThreshold int) (rowids []uint64, ok bool, err error) {
	if len(trigrams) == 0 {
		return nil, false, nil
	}

	counts := make([]tgCount, 0, len(trigrams))
	for _, tg := range trigrams {
		c, err := idx.EffectivePostingCount(tg)
		if err != nil {
			return nil, false, err
		}
		counts = append(counts, tgCount{tg, c})
	}
	sortTgCounts(counts)

	if counts[0].count > postingsThreshold {
		return nil, false, nil
	}

	candidates, err := idx.PostingsWithDeltas(counts[0].tg)
	if err != nil {
		return nil, false, err
	}
	for _, tc := range counts[1:] {
		if len(candidates) <= postingsThreshold {
			break
		}
		next, err := idx.PostingsWithDeltas(tc.tg)
		if err != nil {
			return nil, false, err
		}
		candidates = intersectSorted(candidates, next)
	}
	return candidates, true, nil
}

type tgCount struct {
	tg    uint32
	count int
}

func sortTgCounts(counts []tgCount) {
	for i := 1; i < len(counts); i++ {
		for j := i; j > 0 && counts[j-1].count > counts[j].count; j-- {
			counts[j-1], counts[j] = counts[j], counts[j-1]
		}
	}
}

func intersectSorted(a, b []uint64) []uint64 {
	out := make([]uint64, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
