// Package dberr defines the sentinel error kinds that cross every DecentDB
// API boundary. Every returned error wraps exactly one of these sentinels
// with fmt.Errorf("%s: %w", msg, dberr.ErrX), so errors.Is classification
// survives any number of %w layers added by intermediate callers — a layer
// may add context but must never change the kind on pass-through.
package dberr

import "errors"

var (
	// ErrIo is raised by the VFS layer. Not recovered locally: mid-commit
	// it fails the commit and rolls back the writer; in Open it fails the
	// open.
	ErrIo = errors.New("io error")

	// ErrCorruption is fatal for the whole engine. On detection the engine
	// enters a read-only degraded mode and starts no further writer; the
	// caller decides whether to exit or attempt offline recovery.
	ErrCorruption = errors.New("corruption detected")

	// ErrConstraint covers NOT NULL, UNIQUE, FK, and restrict violations.
	// Recoverable at statement granularity: the current statement is
	// rolled back but the transaction stays open and may retry.
	ErrConstraint = errors.New("constraint violation")

	// ErrTransaction covers busy lock, timeout, aborted-reader, "no active
	// tx", and "tx already active". Busy/timeout are worth a backoff retry
	// locally; otherwise propagate to the caller.
	ErrTransaction = errors.New("transaction error")

	// ErrSql covers parse/bind/exec errors from the external SQL layer.
	// Surfaced verbatim, never reinterpreted.
	ErrSql = errors.New("sql error")

	// ErrInternal marks an invariant violation — e.g. an index missing
	// that should have been auto-created. Fatal for the transaction; the
	// engine itself remains usable.
	ErrInternal = errors.New("internal invariant violation")
)

// Is reports whether err's chain contains kind, via errors.Is.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
