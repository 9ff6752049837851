//go:build darwin

package dirty

import "golang.org/x/sys/unix"

// flushRanges flushes a mapped region.
//
// On macOS, msync() requires the address to match the original mmap() address.
// We cannot pass sub-slices because their base pointer differs from the mmap address,
// so the entire region is synced. The kernel only writes pages that are actually dirty.
func flushRanges(region []byte, ranges []Range) error {
	if len(ranges) == 0 {
		return nil
	}
	return unix.Msync(region, unix.MS_SYNC)
}
