package tier

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// fastTier hands out Go heap memory under an optional byte budget.
type fastTier struct {
	budget int64 // 0 = unlimited
	used   atomic.Int64
	allocs atomic.Int64
}

func (f *fastTier) reserve(size int) error {
	n := f.used.Add(int64(size))
	if f.budget > 0 && n > f.budget {
		f.used.Add(-int64(size))
		return fmt.Errorf("%w: fast tier budget %d exceeded by %d byte request", ErrNoSpace, f.budget, size)
	}
	return nil
}

func (f *fastTier) alloc(size int) (*Mem, error) {
	if err := f.reserve(size); err != nil {
		return nil, err
	}
	f.allocs.Add(1)
	// Backed by uint64 words so that callers may place atomic words at any
	// 8-byte aligned offset. The Go heap always returns zeroed memory.
	words := make([]uint64, (size+7)/8)
	data := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), size)
	return &Mem{data: data, region: data, tier: FastTier}, nil
}

func (f *fastTier) free(m *Mem) {
	f.used.Add(-int64(len(m.data)))
	f.allocs.Add(-1)
	m.data = nil
	m.region = nil
}
