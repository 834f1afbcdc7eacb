package trigram

import (
	"sort"
	"sync"
)

// Delta buffers pending posting changes for one trigram index during a
// write transaction: (trigram, +rowid) and (trigram, -rowid) pairs are
// recorded here rather than written into the postings B+Tree immediately,
// and are flushed into the tree at the next checkpoint — an in-memory,
// commit-deferred map flushed by an explicit method.
type Delta struct {
	mu      sync.Mutex
	adds    map[uint32]map[uint64]bool
	removes map[uint32]map[uint64]bool
}

// NewDelta returns an empty delta buffer.
func NewDelta() *Delta {
	return &Delta{
		adds:    make(map[uint32]map[uint64]bool),
		removes: make(map[uint32]map[uint64]bool),
	}
}

// RecordAdd buffers a posting addition for trigram tg.
func (d *Delta) RecordAdd(tg uint32, rowid uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removes[tg] != nil {
		delete(d.removes[tg], rowid)
	}
	if d.adds[tg] == nil {
		d.adds[tg] = make(map[uint64]bool)
	}
	d.adds[tg][rowid] = true
}

// RecordRemove buffers a posting removal for trigram tg.
func (d *Delta) RecordRemove(tg uint32, rowid uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.adds[tg] != nil {
		delete(d.adds[tg], rowid)
	}
	if d.removes[tg] == nil {
		d.removes[tg] = make(map[uint64]bool)
	}
	d.removes[tg][rowid] = true
}

// IndexRow buffers every trigram of text as an add for rowid — the
// insert-time counterpart of RemoveRow.
func (d *Delta) IndexRow(text string, rowid uint64) {
	for _, tg := range UniqueTrigrams(text) {
		d.RecordAdd(tg, rowid)
	}
}

// RemoveRow buffers every trigram of text as a remove for rowid — called
// on row delete/update of an indexed column's old value.
func (d *Delta) RemoveRow(text string, rowid uint64) {
	for _, tg := range UniqueTrigrams(text) {
		d.RecordRemove(tg, rowid)
	}
}

// Clear discards all buffered deltas. Called on transaction rollback,
// where the pending adds/removes are simply dropped.
func (d *Delta) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adds = make(map[uint32]map[uint64]bool)
	d.removes = make(map[uint32]map[uint64]bool)
}

// trigrams returns the set of trigrams with any buffered change.
func (d *Delta) trigrams() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[uint32]bool, len(d.adds)+len(d.removes))
	for tg := range d.adds {
		seen[tg] = true
	}
	for tg := range d.removes {
		seen[tg] = true
	}
	out := make([]uint32, 0, len(seen))
	for tg := range seen {
		out = append(out, tg)
	}
	return out
}

// sortedSet returns the buffered rowids for tg from set as a sorted slice.
func sortedSet(set map[uint32]map[uint64]bool, tg uint32) []uint64 {
	m := set[tg]
	if len(m) == 0 {
		return nil
	}
	out := make([]uint64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PendingCount returns the numbers of adds and of removes buffered for
// tg — used by query planning (getTrigramPostingsWithDeltas) to estimate
// a trigram's effective posting count without flushing.
func (d *Delta) PendingCount(tg uint32) (adds, removes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.adds[tg]), len(d.removes[tg])
}
