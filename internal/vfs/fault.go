package vfs

import (
	"errors"
	"os"
	"sync"
)

// ErrInjectedFault is returned by a FaultFile call site that was told to
// fail by a test's fault plan.
var ErrInjectedFault = errors.New("vfs: injected fault")

// FaultKind selects how a labeled call site misbehaves.
type FaultKind int

const (
	// FaultFailAfterBytes fails a WriteAt once more than N bytes have
	// been written cumulatively through this label.
	FaultFailAfterBytes FaultKind = iota
	// FaultDropSync silently succeeds a Sync call without flushing —
	// simulates a write that never reached stable storage.
	FaultDropSync
	// FaultAlwaysFail fails every call through this label.
	FaultAlwaysFail
)

// Fault describes one planned misbehavior at a labeled call site.
type Fault struct {
	Label     string
	Kind      FaultKind
	AfterByte int64
}

// FaultFile wraps a File and applies a fixed fault plan, so crash-recovery
// tests can exercise "torn write", "fsync silently dropped", and similar
// scenarios without a real crash. Call sites opt in by passing their
// label to WriteAtLabeled/SyncLabeled; ReadAt/Truncate/Close/Stat pass
// through unmodified since fault injection here only targets writes and
// syncs.
type FaultFile struct {
	inner File

	mu      sync.Mutex
	plan    map[string]Fault
	written map[string]int64
}

// NewFaultFile wraps inner with an initially empty fault plan.
func NewFaultFile(inner File) *FaultFile {
	return &FaultFile{inner: inner, plan: make(map[string]Fault), written: make(map[string]int64)}
}

// Arm installs or replaces the fault for label.
func (ff *FaultFile) Arm(f Fault) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.plan[f.Label] = f
}

// Disarm removes any fault previously armed for label.
func (ff *FaultFile) Disarm(label string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.plan, label)
}

func (ff *FaultFile) ReadAt(p []byte, off int64) (int, error) { return ff.inner.ReadAt(p, off) }
func (ff *FaultFile) Truncate(size int64) error                { return ff.inner.Truncate(size) }
func (ff *FaultFile) Close() error                              { return ff.inner.Close() }
func (ff *FaultFile) Stat() (os.FileInfo, error)                { return ff.inner.Stat() }

// WriteAtLabeled performs a WriteAt attributed to label, applying any
// armed fault for that label.
func (ff *FaultFile) WriteAtLabeled(label string, p []byte, off int64) (int, error) {
	ff.mu.Lock()
	f, armed := ff.plan[label]
	if armed {
		switch f.Kind {
		case FaultAlwaysFail:
			ff.mu.Unlock()
			return 0, ErrInjectedFault
		case FaultFailAfterBytes:
			total := ff.written[label] + int64(len(p))
			if total > f.AfterByte {
				ff.written[label] = total
				ff.mu.Unlock()
				return 0, ErrInjectedFault
			}
			ff.written[label] = total
		}
	}
	ff.mu.Unlock()
	return ff.inner.WriteAt(p, off)
}

// WriteAt satisfies File using the "default" label.
func (ff *FaultFile) WriteAt(p []byte, off int64) (int, error) {
	return ff.WriteAtLabeled("default", p, off)
}

// SyncLabeled performs a Sync attributed to label; FaultDropSync makes
// it return success without calling through to the inner file.
func (ff *FaultFile) SyncLabeled(label string) error {
	ff.mu.Lock()
	f, armed := ff.plan[label]
	ff.mu.Unlock()
	if armed && f.Kind == FaultDropSync {
		return nil
	}
	return ff.inner.Sync()
}

// Sync satisfies File using the "default" label.
func (ff *FaultFile) Sync() error { return ff.SyncLabeled("default") }
