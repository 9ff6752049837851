// Package tier provides the two-tier memory backend used by the record storage.
//
// # Overview
//
// Every byte region backing a storage block comes from an Allocator. The allocator
// places each request in one of two tiers:
//
//   - FastTier: volatile Go heap memory, optionally capped by a byte budget.
//   - CapacityTier: large memory carved out of an arena file and memory-mapped
//     shared, typically living on a persistent-memory (DAX) file system.
//
// # Placement
//
// The placement policy is fixed at construction time:
//
//	PolicyFast      every allocation goes to the fast tier
//	PolicyCapacity  every allocation goes to the capacity tier
//	PolicyThreshold allocations below Config.Threshold go to the fast tier,
//	                the rest to the capacity tier
//
// Realloc keeps an allocation in its tier unless the threshold policy places the
// new size in the other tier, in which case the contents are copied across and the
// original is released.
//
// # Tagged allocations
//
// Alloc returns a *Mem rather than a raw slice. The Mem records the tier that
// produced it, so Free and Realloc never have to guess where memory came from:
//
//	a, err := tier.New(tier.Config{Policy: tier.PolicyThreshold, Threshold: 64 << 10,
//	    CapacityDir: "/mnt/pmem0"})
//	if err != nil {
//	    return err // wraps tier.ErrTierInit
//	}
//	defer a.Close()
//
//	m, err := a.AllocZeroed(16384, 72)
//	if err != nil {
//	    return err // wraps tier.ErrNoSpace
//	}
//	buf := m.Bytes()
//	...
//	_ = a.Free(m)
//
// # Failure model
//
// Running out of either tier is reported as an error wrapping ErrNoSpace and is
// never retried internally. A capacity tier that cannot be opened (missing
// directory, not DAX when DAX is required, no mmap support) makes New fail with
// ErrTierInit; the caller must not continue with that tier enabled.
//
// # Thread Safety
//
// Allocator methods are safe for concurrent use. A single Mem must not be freed or
// reallocated from more than one goroutine.
package tier
