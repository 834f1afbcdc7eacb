package vfs

import (
	"bytes"
	"io"
	"testing"
)

func TestMemFile_WriteReadGrows(t *testing.T) {
	m := NewMemFile()
	data := []byte("hello world")
	if _, err := m.WriteAt(data, 100); err != nil {
		t.Fatal(err)
	}
	fi, err := m.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 100+int64(len(data)) {
		t.Fatalf("size: got %d want %d", fi.Size(), 100+len(data))
	}
	buf := make([]byte, len(data))
	if _, err := m.ReadAt(buf, 100); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data) {
		t.Fatalf("read back: got %q want %q", buf, data)
	}
}

func TestMemFile_ReadPastEOF(t *testing.T) {
	m := NewMemFile()
	m.WriteAt([]byte("abc"), 0)
	buf := make([]byte, 10)
	n, err := m.ReadAt(buf, 0)
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if n != 3 {
		t.Fatalf("n: got %d want 3", n)
	}
}

func TestMemFile_Truncate(t *testing.T) {
	m := NewMemFile()
	m.WriteAt([]byte("0123456789"), 0)
	if err := m.Truncate(5); err != nil {
		t.Fatal(err)
	}
	fi, _ := m.Stat()
	if fi.Size() != 5 {
		t.Fatalf("size after truncate: %d", fi.Size())
	}
	if err := m.Truncate(8); err != nil {
		t.Fatal(err)
	}
	fi, _ = m.Stat()
	if fi.Size() != 8 {
		t.Fatalf("size after grow-truncate: %d", fi.Size())
	}
}

func TestFaultFile_FailAfterBytes(t *testing.T) {
	ff := NewFaultFile(NewMemFile())
	ff.Arm(Fault{Label: "wal-append", Kind: FaultFailAfterBytes, AfterByte: 10})

	if _, err := ff.WriteAtLabeled("wal-append", make([]byte, 5), 0); err != nil {
		t.Fatalf("first write should succeed: %v", err)
	}
	if _, err := ff.WriteAtLabeled("wal-append", make([]byte, 10), 5); err != ErrInjectedFault {
		t.Fatalf("expected injected fault, got %v", err)
	}
}

func TestFaultFile_DropSync(t *testing.T) {
	ff := NewFaultFile(NewMemFile())
	ff.Arm(Fault{Label: "header-sync", Kind: FaultDropSync})
	if err := ff.SyncLabeled("header-sync"); err != nil {
		t.Fatalf("dropped sync should report success: %v", err)
	}
}

func TestFaultFile_Disarm(t *testing.T) {
	ff := NewFaultFile(NewMemFile())
	ff.Arm(Fault{Label: "x", Kind: FaultAlwaysFail})
	if _, err := ff.WriteAtLabeled("x", []byte("a"), 0); err != ErrInjectedFault {
		t.Fatalf("expected fault before disarm, got %v", err)
	}
	ff.Disarm("x")
	if _, err := ff.WriteAtLabeled("x", []byte("a"), 0); err != nil {
		t.Fatalf("expected success after disarm, got %v", err)
	}
}
