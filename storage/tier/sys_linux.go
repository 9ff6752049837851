//go:build linux

package tier

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// reserve extends the arena to cover [off, off+n), allocating real blocks where the
// file system supports it so later stores into the mapping cannot hit ENOSPC.
func reserve(f *os.File, off, n int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, off, n)
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		return f.Truncate(off + n)
	}
	return err
}

// datasync flushes file data without forcing a metadata write.
func datasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

// isDAX reports whether the file is served directly from persistent memory.
func isDAX(f *os.File) (bool, error) {
	var stx unix.Statx_t
	if err := unix.Statx(int(f.Fd()), "", unix.AT_EMPTY_PATH, unix.STATX_BASIC_STATS, &stx); err != nil {
		return false, err
	}
	if stx.Attributes_mask&unix.STATX_ATTR_DAX == 0 {
		return false, nil
	}
	return stx.Attributes&unix.STATX_ATTR_DAX != 0, nil
}
