//go:build !linux

package tier

import "os"

func reserve(f *os.File, off, n int64) error {
	return f.Truncate(off + n)
}

func datasync(f *os.File) error {
	return f.Sync()
}

// isDAX always reports false: DAX detection relies on Linux statx attributes.
func isDAX(_ *os.File) (bool, error) {
	return false, nil
}
