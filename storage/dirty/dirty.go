package dirty

import (
	"context"
	"sort"
	"sync"

	"github.com/CacaoGatto/RedisGraph/internal/mmfile"
	"github.com/CacaoGatto/RedisGraph/storage/tier"
)

// defaultRangeCapacity is the pre-allocated capacity for a region's dirty ranges.
const defaultRangeCapacity = 16

// FlushMode controls durability guarantees of Flush.
type FlushMode int

const (
	// FlushDataOnly only msyncs dirty pages. The caller is responsible for
	// syncing the arena file later; use this when batching several flushes.
	FlushDataOnly FlushMode = iota

	// FlushFull msyncs dirty pages and then fdatasyncs the arena file.
	FlushFull
)

// Range represents a dirty byte range relative to the start of a region.
type Range struct {
	Off int64
	Len int64
}

// Tracker accumulates dirty ranges per capacity-tier region and flushes them.
type Tracker struct {
	a        *tier.Allocator
	pageSize int64

	mu     sync.Mutex
	ranges map[*tier.Mem][]Range
}

// NewTracker creates a dirty tracker for memory produced by a.
func NewTracker(a *tier.Allocator) *Tracker {
	return &Tracker{
		a:        a,
		pageSize: int64(mmfile.PageSize()),
		ranges:   make(map[*tier.Mem][]Range),
	}
}

// Add records a dirty range of m. Fast-tier memory is ignored.
//
// The range is page-aligned and coalesced with the region's other ranges at
// flush time; Add itself only appends.
func (t *Tracker) Add(m *tier.Mem, off, length int) {
	if m.Tier() != tier.CapacityTier || length <= 0 {
		return
	}
	t.mu.Lock()
	rs, ok := t.ranges[m]
	if !ok {
		rs = make([]Range, 0, defaultRangeCapacity)
	}
	t.ranges[m] = append(rs, Range{Off: int64(off), Len: int64(length)})
	t.mu.Unlock()
}

// Forget drops every pending range of m.
func (t *Tracker) Forget(m *tier.Mem) {
	t.mu.Lock()
	delete(t.ranges, m)
	t.mu.Unlock()
}

// Pending returns the number of regions with unflushed ranges.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ranges)
}

// Flush writes every dirty range to the arena file.
//
// This method:
//  1. Coalesces each region's ranges into page-aligned, non-overlapping ranges
//  2. Flushes each range with msync
//  3. Clears the flushed regions
//  4. With FlushFull, fdatasyncs the arena file
//
// The context is checked between regions. If cancelled, regions already flushed
// are cleared and the rest stay pending.
func (t *Tracker) Flush(ctx context.Context, mode FlushMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for m, rs := range t.ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		region := m.Region()
		if m.Released() || len(region) == 0 {
			delete(t.ranges, m)
			continue
		}
		if err := flushRanges(region, coalesce(rs, t.pageSize, int64(len(region)))); err != nil {
			return err
		}
		delete(t.ranges, m)
	}

	if mode == FlushDataOnly {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.a.Sync()
}

// Reset clears all tracked ranges.
//
// This is useful for testing or when dropping a batch of writes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	clear(t.ranges)
	t.mu.Unlock()
}

// DebugRanges returns the raw, uncoalesced ranges of m (for testing/debugging).
func (t *Tracker) DebugRanges(m *tier.Mem) []Range {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Return a copy to prevent external modification
	result := make([]Range, len(t.ranges[m]))
	copy(result, t.ranges[m])
	return result
}

// DebugCoalescedRanges returns the page-aligned ranges of m that Flush would write.
func (t *Tracker) DebugCoalescedRanges(m *tier.Mem) []Range {
	t.mu.Lock()
	defer t.mu.Unlock()
	return coalesce(t.ranges[m], t.pageSize, int64(len(m.Region())))
}

// coalesce page-aligns all ranges, clamps them to limit, sorts them, and merges
// overlapping/adjacent ranges.
func coalesce(ranges []Range, pageSize, limit int64) []Range {
	if len(ranges) == 0 {
		return nil
	}

	// Page-align all ranges
	aligned := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		// Round down start to page boundary
		start := (r.Off / pageSize) * pageSize

		// Round up end to page boundary
		end := r.Off + r.Len
		if end%pageSize != 0 {
			end = ((end / pageSize) + 1) * pageSize
		}
		if end > limit {
			end = limit
		}
		if start >= end {
			continue
		}

		aligned = append(aligned, Range{Off: start, Len: end - start})
	}
	if len(aligned) == 0 {
		return nil
	}

	// Sort by offset
	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].Off < aligned[j].Off
	})

	// Merge overlapping/adjacent ranges
	merged := make([]Range, 0, len(aligned))
	current := aligned[0]

	for _, next := range aligned[1:] {
		if next.Off <= current.Off+current.Len {
			end := max(current.Off+current.Len, next.Off+next.Len)
			current.Len = end - current.Off
		} else {
			merged = append(merged, current)
			current = next
		}
	}

	return append(merged, current)
}
