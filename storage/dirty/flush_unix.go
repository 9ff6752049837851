//go:build unix && !darwin

package dirty

import "golang.org/x/sys/unix"

// flushRanges flushes individual coalesced ranges of a mapped region.
//
// On Linux and other Unix systems, msync() can handle sub-slices correctly as long
// as they start on a page boundary.
func flushRanges(region []byte, ranges []Range) error {
	for _, r := range ranges {
		if err := unix.Msync(region[r.Off:r.Off+r.Len], unix.MS_SYNC); err != nil {
			return err
		}
	}
	return nil
}
