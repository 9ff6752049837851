// Package buf contains overflow-safe size arithmetic shared by the storage packages.
package buf

import (
	"fmt"
	"math"
)

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// MulOverflowSafe multiplies two non-negative ints, returning ok = false when the
// result would overflow int or either operand is negative.
func MulOverflowSafe(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}

// CeilDiv returns ceil(n / d) for d > 0.
func CeilDiv(n, d uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n-1)/d + 1
}

// RegionSize computes header + count*elementSize, the byte size of a slab holding
// count elements behind a fixed header. It fails on negative input or overflow.
//
//	size, err := buf.RegionSize(bitmapLen, capacity, slotSize)
//	if err != nil {
//	    return nil, fmt.Errorf("block: %w", err)
//	}
func RegionSize(header, count, elementSize int) (int, error) {
	if header < 0 {
		return 0, fmt.Errorf("negative header: %d", header)
	}
	if count < 0 {
		return 0, fmt.Errorf("negative count: %d", count)
	}
	if elementSize < 0 {
		return 0, fmt.Errorf("negative element size: %d", elementSize)
	}

	body, ok := MulOverflowSafe(count, elementSize)
	if !ok {
		return 0, fmt.Errorf("overflow: count=%d * elemSize=%d", count, elementSize)
	}
	total, ok := AddOverflowSafe(header, body)
	if !ok {
		return 0, fmt.Errorf("overflow: header=%d + size=%d", header, body)
	}
	return total, nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > len(b) {
		return nil, false
	}
	return b[off:end:end], true
}
