//go:build !unix

// Package mmfile provides platform-specific helpers for memory-mapping regions of
// the capacity-tier arena file.
package mmfile

import (
	"errors"
	"os"
)

// Supported reports whether file-backed regions can be mapped on this platform.
const Supported = false

var errUnsupported = errors.New("mmfile: memory-mapped regions not supported on this platform")

// PageSize returns the assumed page size.
func PageSize() int { return 4096 }

// MapRegion is unavailable without mmap.
func MapRegion(_ *os.File, _ int64, _ int) ([]byte, error) {
	return nil, errUnsupported
}

// Unmap is a no-op without mmap.
func Unmap(_ []byte) error { return nil }

// Sync is a no-op without mmap.
func Sync(_ []byte) error { return nil }
