package trigram

import (
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
)

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"Hello, World!": "HELLO_WORLD",
		"  foo   bar  ": "FOO_BAR",
		"abc123":        "ABC123",
		"":              "",
		"___":           "",
	}
	for in, want := range cases {
		if got := Canonicalize(in); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTrigrams_TooShortYieldsNone(t *testing.T) {
	if got := Trigrams("ab"); got != nil {
		t.Fatalf("expected nil trigrams for <3 canonical chars, got %v", got)
	}
}

func TestTrigrams_SlidingWindow(t *testing.T) {
	got := Trigrams("ABCD")
	want := []uint32{
		PackTrigram('A', 'B', 'C'),
		PackTrigram('B', 'C', 'D'),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestPostings_EncodeDecodeRoundTrip(t *testing.T) {
	ids := []uint64{3, 5, 100, 4096, 4097}
	enc := EncodePostings(ids)
	dec, err := DecodePostings(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dec, ids) {
		t.Fatalf("got %v want %v", dec, ids)
	}
}

func TestMergeAddsRemoves(t *testing.T) {
	existing := []uint64{1, 2, 5, 9}
	removes := []uint64{2, 9}
	adds := []uint64{3, 5, 7}
	got := MergeAddsRemoves(existing, removes, adds)
	want := []uint64{1, 3, 5, 7}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func newTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.OpenPager(pager.PagerConfig{
		DBPath:   filepath.Join(dir, "test.db"),
		PageSize: pager.DefaultPageSize,
	})
	if err != nil {
		t.Fatalf("open pager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestIndex_FlushAndQuery(t *testing.T) {
	p := newTestPager(t)
	txID, err := p.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	idx, err := CreateIndex(p, txID)
	if err != nil {
		t.Fatal(err)
	}

	idx.Delta().IndexRow("hello world", 1)
	idx.Delta().IndexRow("hello there", 2)
	idx.Delta().IndexRow("goodbye world", 3)

	if err := idx.Flush(txID); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := p.CommitTx(txID); err != nil {
		t.Fatal(err)
	}

	hel := Trigrams("hello")[0]
	postings, err := idx.CommittedPostings(hel)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(postings, func(i, j int) bool { return postings[i] < postings[j] })
	want := []uint64{1, 2}
	if !reflect.DeepEqual(postings, want) {
		t.Fatalf("postings for shared trigram: got %v want %v", postings, want)
	}
}

func TestIndex_CandidateRowidsIntersection(t *testing.T) {
	p := newTestPager(t)
	txID, err := p.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	idx, err := CreateIndex(p, txID)
	if err != nil {
		t.Fatal(err)
	}

	idx.Delta().IndexRow("quick brown fox", 10)
	idx.Delta().IndexRow("quick brown dog", 11)
	idx.Delta().IndexRow("slow brown fox", 12)
	if err := idx.Flush(txID); err != nil {
		t.Fatal(err)
	}
	if err := p.CommitTx(txID); err != nil {
		t.Fatal(err)
	}

	trigrams := UniqueTrigrams("quick fox")
	rowids, ok, err := idx.CandidateRowids(trigrams, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected ok=true under threshold")
	}
	// "QUICK_FOX" contains the trigram K_F, which no indexed row has
	// ("QUICK_BROWN_FOX" has K_B), so no row survives the intersection.
	sort.Slice(rowids, func(i, j int) bool { return rowids[i] < rowids[j] })
	if len(rowids) != 0 {
		t.Fatalf("got %v want no candidates", rowids)
	}
}

func TestIndex_CandidateRowidsRefusesOverThreshold(t *testing.T) {
	p := newTestPager(t)
	txID, err := p.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	idx, err := CreateIndex(p, txID)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 50; i++ {
		idx.Delta().IndexRow("common phrase", i)
	}
	if err := idx.Flush(txID); err != nil {
		t.Fatal(err)
	}
	if err := p.CommitTx(txID); err != nil {
		t.Fatal(err)
	}

	_, ok, err := idx.CandidateRowids(UniqueTrigrams("common"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected ok=false when rarest trigram exceeds threshold")
	}
}

func TestDelta_ClearDiscardsPending(t *testing.T) {
	d := NewDelta()
	d.RecordAdd(PackTrigram('a', 'b', 'c'), 1)
	d.Clear()
	adds, removes := d.PendingCount(PackTrigram('a', 'b', 'c'))
	if adds != 0 || removes != 0 {
		t.Fatalf("expected cleared deltas, got adds=%d removes=%d", adds, removes)
	}
}
