//go:build unix

// Package mmfile provides platform-specific helpers for memory-mapping regions of
// the capacity-tier arena file.
package mmfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Supported reports whether file-backed regions can be mapped on this platform.
const Supported = true

// PageSize returns the OS page size; region offsets must be multiples of it.
func PageSize() int { return unix.Getpagesize() }

// MapRegion maps n bytes of f starting at off read-write and shared, so stores reach
// the file. off must be page aligned.
func MapRegion(f *os.File, off int64, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("mmfile: invalid region length %d", n)
	}
	if off%int64(PageSize()) != 0 {
		return nil, fmt.Errorf("mmfile: region offset %d not page aligned", off)
	}
	data, err := unix.Mmap(int(f.Fd()), off, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmfile: mmap %d bytes at %d: %w", n, off, err)
	}
	return data, nil
}

// Unmap releases a mapping obtained from MapRegion.
func Unmap(data []byte) error {
	if data == nil {
		return nil
	}
	err := unix.Munmap(data)
	if errors.Is(err, unix.EINVAL) {
		// Treat double-unmap as no-op for callers.
		return nil
	}
	return err
}

// Sync flushes a mapped range to the backing file.
func Sync(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Msync(data, unix.MS_SYNC)
}
