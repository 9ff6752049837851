package datablock

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/CacaoGatto/RedisGraph/storage/block"
	"github.com/CacaoGatto/RedisGraph/storage/dirty"
	"github.com/CacaoGatto/RedisGraph/storage/tier"
)

// Stats summarizes a data block's occupancy and memory placement.
type Stats struct {
	Items         uint64
	Capacity      uint64
	Deleted       uint64
	Blocks        int
	BlockCapacity int
	ItemSize      int
	SlotSize      int
	Tombstone     Tombstone

	Labeled          bool
	Labels           int
	UnassignedBlocks int

	FastBlocks     int
	CapacityBlocks int
	Bytes          int64
}

// Stats returns a point-in-time summary.
func (db *DataBlock) Stats() Stats {
	s := Stats{
		Items:         db.itemCount,
		Capacity:      db.itemCap,
		Deleted:       db.DeletedItemsCount(),
		Blocks:        len(db.blocks),
		BlockCapacity: int(db.blockCap),
		ItemSize:      db.layout.ItemSize,
		SlotSize:      db.layout.SlotSize(),
		Tombstone:     db.cfg.Tombstone,
		Labeled:       db.cfg.Labeled,
	}
	labels := make(map[int]struct{})
	for _, b := range db.blocks {
		switch b.Tier() {
		case tier.CapacityTier:
			s.CapacityBlocks++
		default:
			s.FastBlocks++
		}
		s.Bytes += int64(b.Mem().Len())
		if db.cfg.Labeled {
			if b.Label == block.Unassigned {
				s.UnassignedBlocks++
			} else {
				labels[b.Label] = struct{}{}
			}
		}
	}
	s.Labels = len(labels)
	return s
}

func (s Stats) String() string {
	out := fmt.Sprintf("items=%s/%s deleted=%s blocks=%d x %d slots of %s (%s tombstones) memory=%s",
		humanize.Comma(int64(s.Items)), humanize.Comma(int64(s.Capacity)), humanize.Comma(int64(s.Deleted)),
		s.Blocks, s.BlockCapacity, humanize.IBytes(uint64(s.SlotSize)), s.Tombstone,
		humanize.IBytes(uint64(s.Bytes)))
	if s.CapacityBlocks > 0 {
		out += fmt.Sprintf(" fast_blocks=%d capacity_blocks=%d", s.FastBlocks, s.CapacityBlocks)
	}
	if s.Labeled {
		out += fmt.Sprintf(" labels=%d unassigned=%d", s.Labels, s.UnassignedBlocks)
	}
	return out
}

// Sync flushes the ranges this data block's mutations recorded in the
// configured dirty tracker. Without a tracker it does nothing.
func (db *DataBlock) Sync(ctx context.Context, mode dirty.FlushMode) error {
	if db.cfg.Dirty == nil {
		return nil
	}
	return db.cfg.Dirty.Flush(ctx, mode)
}
