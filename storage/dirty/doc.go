// Package dirty tracks which bytes of capacity-tier blocks were modified and flushes
// them to the arena file.
//
// # Overview
//
// Capacity-tier memory is a shared mapping of the arena file, so stores reach the
// page cache immediately but not stable storage. Writers report modified ranges
// with Add; Flush coalesces them into page-aligned, non-overlapping ranges per
// region and msyncs each one:
//
//	dt := dirty.NewTracker(alloc)
//	db, err := datablock.New(1024, 64, nil, datablock.StorageConfig{
//	    Allocator: alloc,
//	    Dirty:     dt,
//	})
//	...
//	if err := db.Sync(ctx, dirty.FlushFull); err != nil {
//	    return err
//	}
//
// Fast-tier memory has no backing file; ranges reported for it are dropped.
//
// # Flush modes
//
//	FlushDataOnly  msync dirty pages only
//	FlushFull      msync dirty pages, then fdatasync the arena file
//
// # Platform notes
//
// On Linux and the BSDs each coalesced range is flushed on its own. On macOS msync
// must be given the start of the mapping, so the whole region is flushed; the
// kernel only writes pages that are actually dirty.
//
// # Thread Safety
//
// Add and Forget may be called concurrently (DataBlock deletions report ranges
// from several goroutines). Flush and Reset must not race with each other.
package dirty
