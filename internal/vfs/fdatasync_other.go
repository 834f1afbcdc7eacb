//go:build !linux

package vfs

import (
	"errors"
	"os"
)

var errFdatasyncUnsupported = errors.New("fdatasync unsupported")

func fdatasync(f *os.File) error {
	return errFdatasyncUnsupported
}
