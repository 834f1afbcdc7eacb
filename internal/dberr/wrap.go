package dberr

import "fmt"

// Wrap formats a message and attaches kind as the wrapped sentinel, using
// the usual fmt.Errorf("...: %w", err) idiom but with the sentinel as the
// wrapped error so errors.Is(result, kind) holds regardless of how many
// more times the result gets wrapped by callers up the stack.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// Io wraps kind ErrIo.
func Io(format string, args ...any) error { return Wrap(ErrIo, format, args...) }

// Corruption wraps kind ErrCorruption.
func Corruption(format string, args ...any) error { return Wrap(ErrCorruption, format, args...) }

// Constraint wraps kind ErrConstraint.
func Constraint(format string, args ...any) error { return Wrap(ErrConstraint, format, args...) }

// Transaction wraps kind ErrTransaction.
func Transaction(format string, args ...any) error { return Wrap(ErrTransaction, format, args...) }

// Sql wraps kind ErrSql.
func Sql(format string, args ...any) error { return Wrap(ErrSql, format, args...) }

// Internal wraps kind ErrInternal.
func Internal(format string, args ...any) error { return Wrap(ErrInternal, format, args...) }
