// Package vfs abstracts a byte-addressable file behind one interface, with
// a real-file, an in-memory and a fault-injecting implementation. The
// pager and WAL in internal/storage/pager do not use it: they read and
// write *os.File directly.
package vfs

import (
	"io"
	"os"
	"time"
)

// File is the positional-I/O surface the pager needs from a backing
// store: the main database file and the WAL file both implement it.
type File interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Sync() error
	Close() error
	Stat() (os.FileInfo, error)
}

// SyncMode controls how Sync honors durability versus throughput.
type SyncMode int

const (
	// SyncFull calls the platform's full file-data-and-metadata sync.
	SyncFull SyncMode = iota
	// SyncDataOnly syncs file data without forcing metadata (mtime,
	// size) to disk when the platform supports it — see
	// fdatasync_linux.go and fdatasync_other.go.
	SyncDataOnly
)

// OSFile is a File backed by a real os.File, used outside of tests.
type OSFile struct {
	f    *os.File
	mode SyncMode
}

// OpenOSFile opens path for read/write, creating it if absent.
func OpenOSFile(path string, mode SyncMode) (*OSFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &OSFile{f: f, mode: mode}, nil
}

func (o *OSFile) ReadAt(p []byte, off int64) (int, error)  { return o.f.ReadAt(p, off) }
func (o *OSFile) WriteAt(p []byte, off int64) (int, error) { return o.f.WriteAt(p, off) }
func (o *OSFile) Truncate(size int64) error                { return o.f.Truncate(size) }
func (o *OSFile) Close() error                             { return o.f.Close() }
func (o *OSFile) Stat() (os.FileInfo, error)                { return o.f.Stat() }

// Sync honors o.mode: SyncDataOnly tries a platform fdatasync first,
// falling back to a full Sync when unsupported.
func (o *OSFile) Sync() error {
	if o.mode == SyncDataOnly {
		if err := fdatasync(o.f); err == nil || err != errFdatasyncUnsupported {
			return err
		}
	}
	return o.f.Sync()
}

// MemFile is an in-memory File, grounded on novusdb's MemFile — used by
// this package's tests, alone and as the backing store under FaultFile.
type MemFile struct {
	data   []byte
	closed bool
}

// NewMemFile creates an empty in-memory file.
func NewMemFile() *MemFile { return &MemFile{} }

func (m *MemFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemFile) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	return copy(m.data[off:], p), nil
}

func (m *MemFile) Truncate(size int64) error {
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
	return nil
}

func (m *MemFile) Sync() error  { return nil }
func (m *MemFile) Close() error { m.closed = true; return nil }

func (m *MemFile) Stat() (os.FileInfo, error) {
	return &memFileInfo{size: int64(len(m.data))}, nil
}

type memFileInfo struct{ size int64 }

func (fi *memFileInfo) Name() string      { return "memfile" }
func (fi *memFileInfo) Size() int64       { return fi.size }
func (fi *memFileInfo) Mode() os.FileMode { return 0644 }
func (fi *memFileInfo) ModTime() time.Time { return time.Time{} }
func (fi *memFileInfo) IsDir() bool       { return false }
func (fi *memFileInfo) Sys() any          { return nil }
