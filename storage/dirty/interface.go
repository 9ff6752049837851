package dirty

import (
	"context"

	"github.com/CacaoGatto/RedisGraph/storage/tier"
)

// DirtyTracker is what a DataBlock needs from a dirty range tracker: reporting
// modified byte ranges of its blocks and flushing them on Sync.
type DirtyTracker interface {
	// Add marks length bytes at off within m.Bytes() as dirty.
	Add(m *tier.Mem, off, length int)

	// Forget drops pending ranges for m; call before releasing m.
	Forget(m *tier.Mem)

	// Flush writes every pending range back to the arena file.
	Flush(ctx context.Context, mode FlushMode) error
}

var _ DirtyTracker = (*Tracker)(nil)
