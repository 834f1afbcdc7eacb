package rowcodec

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
)

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

func TestRowCodec_RoundTripInline(t *testing.T) {
	p := newTestPager(t)
	txID, err := p.BeginTx()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}

	tests := []struct {
		name string
		row  []any
	}{
		{"nil-only", []any{nil, nil}},
		{"int-string-float", []any{int64(42), "hello", 3.14}},
		{"bool-values", []any{true, false}},
		{"empty-string", []any{""}},
		{"bytes", []any{[]byte{0xDE, 0xAD}}},
		{"negative-float", []any{-1.5}},
		{"mixed", []any{int64(1), "two", 3.0, nil, true, []byte("bin")}},
		{"empty-row", []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := MarshalRow(p, txID, tt.row, DefaultOverflowThreshold(p.PageSize()))
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			dec, err := UnmarshalRow(p, enc)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(dec) != len(tt.row) {
				t.Fatalf("length mismatch: got %d want %d", len(dec), len(tt.row))
			}
			for i := range tt.row {
				assertValueEqual(t, i, tt.row[i], dec[i])
			}
		})
	}
}

func assertValueEqual(t *testing.T, i int, want, got any) {
	t.Helper()
	switch w := want.(type) {
	case nil:
		if got != nil {
			t.Errorf("[%d] got %v, want nil", i, got)
		}
	case bool:
		if g, ok := got.(bool); !ok || g != w {
			t.Errorf("[%d] got %v, want %v", i, got, want)
		}
	case int64:
		if g, ok := got.(int64); !ok || g != w {
			t.Errorf("[%d] got %v, want %v", i, got, want)
		}
	case float64:
		if g, ok := got.(float64); !ok || g != w {
			t.Errorf("[%d] got %v, want %v", i, got, want)
		}
	case string:
		if g, ok := got.(string); !ok || g != w {
			t.Errorf("[%d] got %q, want %q", i, got, want)
		}
	case []byte:
		g, ok := got.([]byte)
		if !ok || !bytes.Equal(g, w) {
			t.Errorf("[%d] got %v, want %v", i, got, want)
		}
	}
}

func TestRowCodec_OverflowPromotionRoundTrip(t *testing.T) {
	p := newTestPager(t)
	txID, err := p.BeginTx()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}

	big := bytes.Repeat([]byte("decentdb-"), 2000) // far exceeds a single page
	row := []any{int64(1), string(big), big}

	enc, err := MarshalRow(p, txID, row, DefaultOverflowThreshold(p.PageSize()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	dec, err := UnmarshalRow(p, enc)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if dec[1].(string) != string(big) {
		t.Fatalf("overflowed text did not round-trip byte-for-byte")
	}
	if !bytes.Equal(dec[2].([]byte), big) {
		t.Fatalf("overflowed blob did not round-trip byte-for-byte")
	}
}

func TestRowCodec_FreeRowOverflowsReclaimsPages(t *testing.T) {
	p := newTestPager(t)
	txID, err := p.BeginTx()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}

	big := bytes.Repeat([]byte("x"), 50000)
	enc, err := MarshalRow(p, txID, []any{big}, DefaultOverflowThreshold(p.PageSize()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := FreeRowOverflows(p, txID, enc); err != nil {
		t.Fatalf("free overflows: %v", err)
	}
	if err := p.CommitTx(txID); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestRowCodec_ShortDataIsCorruption(t *testing.T) {
	p := newTestPager(t)
	if _, err := UnmarshalRow(p, []byte{0x01}); err == nil {
		t.Fatalf("expected error on short row data")
	}
}
