package tier

import (
	"fmt"
	"sync/atomic"

	"github.com/CacaoGatto/RedisGraph/internal/buf"
	"github.com/CacaoGatto/RedisGraph/internal/logger"
)

// Allocator places allocations in the fast or capacity tier according to its Config.
type Allocator struct {
	cfg      Config
	fast     *fastTier
	capacity *capacityTier // nil when no capacity directory is configured

	migrations atomic.Int64
	closed     atomic.Bool
}

// New validates cfg and brings up the configured tiers. A capacity tier that cannot
// be opened is fatal: the returned error wraps ErrTierInit and no allocator is
// returned.
func New(cfg Config) (*Allocator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	a := &Allocator{
		cfg:  cfg,
		fast: &fastTier{budget: cfg.FastBudget},
	}
	if cfg.CapacityDir != "" {
		c, err := openCapacity(cfg.CapacityDir, cfg.CapacityMaxSize, cfg.RequireDAX)
		if err != nil {
			return nil, err
		}
		a.capacity = c
	}
	return a, nil
}

// Config returns the effective configuration.
func (a *Allocator) Config() Config { return a.cfg }

// HasCapacityTier reports whether the capacity tier is open.
func (a *Allocator) HasCapacityTier() bool { return a.capacity != nil }

// Place returns the tier a request of size bytes is placed in.
func (a *Allocator) Place(size int) Tier {
	switch a.cfg.Policy {
	case PolicyCapacity:
		return CapacityTier
	case PolicyThreshold:
		if size < a.cfg.Threshold {
			return FastTier
		}
		return CapacityTier
	default:
		return FastTier
	}
}

// Alloc allocates size bytes. Contents are unspecified when a released capacity
// region is reused; use AllocZeroed when zeroed memory is required.
func (a *Allocator) Alloc(size int) (*Mem, error) {
	return a.allocIn(a.Place(size), size, false)
}

// AllocZeroed allocates count*size zeroed bytes.
func (a *Allocator) AllocZeroed(count, size int) (*Mem, error) {
	n, ok := buf.MulOverflowSafe(count, size)
	if !ok {
		return nil, fmt.Errorf("%w: %d x %d", ErrBadSize, count, size)
	}
	return a.allocIn(a.Place(n), n, true)
}

func (a *Allocator) allocIn(t Tier, size int, zero bool) (*Mem, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	switch t {
	case CapacityTier:
		if a.capacity == nil {
			return nil, fmt.Errorf("%w: capacity tier not configured", ErrNoSpace)
		}
		return a.capacity.alloc(size, zero)
	default:
		return a.fast.alloc(size)
	}
}

// Realloc resizes m, returning the allocation to use from now on. The contents up
// to min(old, new) size are preserved and any growth is zeroed. The allocation
// stays in its tier unless the threshold policy places newSize in the other tier;
// then the data migrates and m is released. On error m is left untouched.
func (a *Allocator) Realloc(m *Mem, newSize int) (*Mem, error) {
	cur := a.DetectTier(m)
	if cur == TierUnknown || m.Released() {
		return nil, ErrBadMem
	}

	target := cur
	if a.cfg.Policy == PolicyThreshold {
		target = a.Place(newSize)
	}

	next, err := a.allocIn(target, newSize, true)
	if err != nil {
		return nil, err
	}
	copy(next.data, m.data)

	if target != cur {
		a.migrations.Add(1)
		logger.Debug("tier: migrated allocation", "from", cur, "to", target, "size", newSize)
	}
	if err := a.Free(m); err != nil {
		_ = a.Free(next)
		return nil, err
	}
	return next, nil
}

// Free releases m through the tier that produced it. Releasing twice returns ErrBadMem.
func (a *Allocator) Free(m *Mem) error {
	if m == nil || !m.freed.CompareAndSwap(false, true) {
		return ErrBadMem
	}
	switch m.tier {
	case FastTier:
		a.fast.free(m)
		return nil
	case CapacityTier:
		if a.capacity == nil {
			return ErrBadMem
		}
		if err := a.capacity.release(m); err != nil {
			m.freed.Store(false)
			return err
		}
		return nil
	default:
		return ErrBadMem
	}
}

// DetectTier reports which tier produced m.
func (a *Allocator) DetectTier(m *Mem) Tier {
	return m.Tier()
}

// Sync flushes the capacity arena file. It is a no-op without a capacity tier.
func (a *Allocator) Sync() error {
	if a.capacity == nil {
		return nil
	}
	return a.capacity.sync()
}

// Close releases the capacity tier. Allocations still live in it become unusable.
func (a *Allocator) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	if a.capacity == nil {
		return nil
	}
	return a.capacity.close()
}
