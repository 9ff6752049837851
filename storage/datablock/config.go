package datablock

import (
	"fmt"
	"sync"

	"github.com/CacaoGatto/RedisGraph/storage/dirty"
	"github.com/CacaoGatto/RedisGraph/storage/tier"
)

// DefaultBlockCapacity is the number of slots per block when none is configured.
const DefaultBlockCapacity = 1 << 14

// Tombstone selects where per-slot occupancy is kept.
type Tombstone uint8

const (
	// TombstoneInline keeps a header word in front of every payload.
	TombstoneInline Tombstone = iota
	// TombstoneBitmap keeps a bitmap at the head of every block.
	TombstoneBitmap
)

func (t Tombstone) String() string {
	switch t {
	case TombstoneInline:
		return "inline"
	case TombstoneBitmap:
		return "bitmap"
	default:
		return "invalid"
	}
}

// StorageConfig fixes a DataBlock's storage policy at construction time.
type StorageConfig struct {
	// BlockCapacity is the number of slots per block. Zero means DefaultBlockCapacity.
	BlockCapacity int

	// Tombstone selects the occupancy representation.
	Tombstone Tombstone

	// Labeled enables label partitioning: every block belongs to at most one
	// label and blocks of a label are chained for label-scoped scans.
	Labeled bool

	// Allocator supplies block memory. Nil means a shared fast-tier allocator.
	Allocator *tier.Allocator

	// Dirty, when set, receives the ranges touched by allocations and deletions
	// so Sync can flush capacity-tier blocks.
	Dirty dirty.DirtyTracker
}

// DefaultStorageConfig returns an unlabeled, inline-tombstone configuration on the
// shared fast-tier allocator.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{BlockCapacity: DefaultBlockCapacity}
}

var sharedAllocator = sync.OnceValue(func() *tier.Allocator {
	// A fast-only configuration opens no files and cannot fail.
	a, _ := tier.New(tier.Config{Policy: tier.PolicyFast})
	return a
})

func (c StorageConfig) withDefaults() StorageConfig {
	if c.BlockCapacity == 0 {
		c.BlockCapacity = DefaultBlockCapacity
	}
	if c.Allocator == nil {
		c.Allocator = sharedAllocator()
	}
	return c
}

func (c StorageConfig) validate() error {
	if c.BlockCapacity < 0 {
		return fmt.Errorf("%w: block capacity %d", ErrInvalidConfig, c.BlockCapacity)
	}
	if c.Tombstone != TombstoneInline && c.Tombstone != TombstoneBitmap {
		return fmt.Errorf("%w: tombstone mode %d", ErrInvalidConfig, c.Tombstone)
	}
	return nil
}
