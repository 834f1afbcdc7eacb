//go:build linux

package vfs

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var errFdatasyncUnsupported = errors.New("fdatasync unsupported")

func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
