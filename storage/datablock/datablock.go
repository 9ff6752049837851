package datablock

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/CacaoGatto/RedisGraph/internal/buf"
	"github.com/CacaoGatto/RedisGraph/internal/logger"
	"github.com/CacaoGatto/RedisGraph/storage/block"
	"github.com/CacaoGatto/RedisGraph/storage/tier"
)

// Destructor is invoked on a record's payload when the record is deleted.
type Destructor func(item []byte)

// DataBlock is a growable, index-addressed store of fixed-size records.
//
// A single writer allocates, grows and re-labels. DeleteItem may run from many
// goroutines at once provided each targets a distinct index and no allocation
// runs concurrently. Scans and GetItem may overlap with those deletions.
type DataBlock struct {
	cfg        StorageConfig
	layout     block.Layout
	blockCap   uint64
	destructor Destructor

	blocks    []*block.Block
	itemCap   uint64
	itemCount uint64

	// high is one past the highest index ever handed out. Only allocation paths
	// move it, so validating an index against it does not race with deletion.
	high    uint64
	deleted []uint64
	queued  []uint64 // one bit per slot, set while the index sits in a free-list

	headers []blockHeader // label mode only, parallel to blocks

	mu sync.Mutex // guards deleted, queued, itemCount and headers[*].free/count
}

// New creates a data block able to hold at least itemCap records of itemSize
// bytes. The block count is rounded up so that at least one block exists.
func New(itemCap uint64, itemSize int, destructor Destructor, cfg StorageConfig) (*DataBlock, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if itemSize <= 0 {
		return nil, fmt.Errorf("%w: item size %d", ErrInvalidConfig, itemSize)
	}
	layout := block.Layout{
		ItemSize: itemSize,
		Capacity: cfg.BlockCapacity,
		Bitmap:   cfg.Tombstone == TombstoneBitmap,
	}
	if _, err := layout.Size(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	db := &DataBlock{
		cfg:        cfg,
		layout:     layout,
		blockCap:   uint64(cfg.BlockCapacity),
		destructor: destructor,
	}
	n := max(buf.CeilDiv(itemCap, db.blockCap), 1)
	if n > db.maxBlocks() {
		return nil, fmt.Errorf("%w: capacity %d exceeds the index space", ErrInvalidConfig, itemCap)
	}
	if err := db.addBlocks(int(n)); err != nil {
		_ = db.Free()
		return nil, err
	}
	return db, nil
}

// ItemCount returns the number of live records.
func (db *DataBlock) ItemCount() uint64 { return db.itemCount }

// ItemCap returns the number of slots across all blocks.
func (db *DataBlock) ItemCap() uint64 { return db.itemCap }

// BlockCount returns the number of blocks.
func (db *DataBlock) BlockCount() int { return len(db.blocks) }

// BlockCapacity returns the number of slots per block.
func (db *DataBlock) BlockCapacity() int { return int(db.blockCap) }

// ItemSize returns the payload size of one record.
func (db *DataBlock) ItemSize() int { return db.layout.ItemSize }

// Labeled reports whether the data block is label partitioned.
func (db *DataBlock) Labeled() bool { return db.cfg.Labeled }

// DeletedItemsCount returns the number of tombstoned slots awaiting reuse.
func (db *DataBlock) DeletedItemsCount() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.cfg.Labeled {
		return uint64(len(db.deleted))
	}
	var n uint64
	for i := range db.headers {
		n += uint64(len(db.headers[i].free))
	}
	return n
}

func (db *DataBlock) locate(idx uint64) (*block.Block, int) {
	return db.blocks[idx/db.blockCap], int(idx % db.blockCap)
}

func (db *DataBlock) addBlocks(n int) error {
	first := len(db.blocks)
	for range n {
		b, err := block.New(db.cfg.Allocator, db.layout)
		if err != nil {
			return fmt.Errorf("datablock: add block %d: %w", len(db.blocks), err)
		}
		if last := len(db.blocks) - 1; last >= 0 {
			db.blocks[last].Next = len(db.blocks)
		}
		db.blocks = append(db.blocks, b)
		if db.cfg.Labeled {
			db.headers = append(db.headers, blockHeader{})
		}
		db.itemCap += db.blockCap
	}
	for uint64(len(db.queued))*64 < db.itemCap {
		db.queued = append(db.queued, 0)
	}
	logger.Debug("datablock grown",
		"from", first, "blocks", len(db.blocks), "capacity", db.itemCap,
		"tier", db.blocks[len(db.blocks)-1].Tier().String())
	return nil
}

// maxBlocks bounds the block table so that the table length fits an int and
// every index, itemCap included, fits a uint64.
func (db *DataBlock) maxBlocks() uint64 {
	return min(uint64(math.MaxInt), math.MaxUint64/db.blockCap)
}

// grow appends need blocks. Growth past the index space is an invariant
// violation rather than an allocation failure.
func (db *DataBlock) grow(op string, need uint64) error {
	invariant(need <= db.maxBlocks()-uint64(len(db.blocks)), op,
		"growth by %d blocks exceeds the index space (%d blocks of %d)", need, len(db.blocks), db.blockCap)
	return db.addBlocks(int(need))
}

// Accommodate ensures at least k further AllocateItem calls succeed without
// growth. Label partitions reserve whole blocks instead, so a labeled data
// block returns ErrLabelMode; use AccommodateBlockLabel there.
func (db *DataBlock) Accommodate(k uint64) error {
	if db.cfg.Labeled {
		return fmt.Errorf("%w: Accommodate on a labeled data block, use AccommodateBlockLabel", ErrLabelMode)
	}
	free := db.itemCap - db.high + uint64(len(db.deleted))
	if free >= k {
		return nil
	}
	return db.grow("Accommodate", buf.CeilDiv(k-free, db.blockCap))
}

// AllocateItem claims a slot, reusing the most recently deleted index first,
// and returns its zeroed payload and index. When every slot is taken the data
// block grows to the block boundary at or above twice its item count.
func (db *DataBlock) AllocateItem() ([]byte, uint64, error) {
	if db.cfg.Labeled {
		return nil, 0, fmt.Errorf("%w: AllocateItem on a labeled data block", ErrLabelMode)
	}

	var idx uint64
	if n := len(db.deleted); n > 0 {
		idx = db.deleted[n-1]
		db.deleted = db.deleted[:n-1]
		db.setQueued(idx, false)
	} else {
		if db.high >= db.itemCap {
			target := max(db.itemCount*2, db.high+1)
			need := max(buf.CeilDiv(target, db.blockCap)-uint64(len(db.blocks)), 1)
			if err := db.grow("AllocateItem", need); err != nil {
				return nil, 0, err
			}
		}
		idx = db.high
		db.high++
	}

	item := db.occupy(idx)
	db.itemCount++
	return item, idx, nil
}

func (db *DataBlock) isQueued(idx uint64) bool {
	return db.queued[idx>>6]&(1<<(idx&63)) != 0
}

func (db *DataBlock) setQueued(idx uint64, v bool) {
	if v {
		db.queued[idx>>6] |= 1 << (idx & 63)
	} else {
		db.queued[idx>>6] &^= 1 << (idx & 63)
	}
}

// occupy marks idx live, clears its payload and reports the slot as dirty.
func (db *DataBlock) occupy(idx uint64) []byte {
	b, off := db.locate(idx)
	b.SetOccupied(off, true)
	item := b.Item(off)
	clear(item)
	db.markSlot(b, off)
	return item
}

func (db *DataBlock) markSlot(b *block.Block, off int) {
	if db.cfg.Dirty == nil {
		return
	}
	o, n := b.SlotRange(off)
	db.cfg.Dirty.Add(b.Mem(), o, n)
	if db.layout.Bitmap {
		o, n = b.HeaderRange(off)
		db.cfg.Dirty.Add(b.Mem(), o, n)
	}
}

func (db *DataBlock) markHeader(b *block.Block, off int) {
	if db.cfg.Dirty == nil {
		return
	}
	o, n := b.HeaderRange(off)
	db.cfg.Dirty.Add(b.Mem(), o, n)
}

// checkIndex panics unless idx lies within the range of indices ever handed out.
func (db *DataBlock) checkIndex(op string, idx uint64) {
	if !db.cfg.Labeled {
		invariant(idx < db.high, op, "index %d out of range [0, %d)", idx, db.high)
		return
	}
	bi := idx / db.blockCap
	invariant(bi < uint64(len(db.blocks)), op, "index %d beyond block %d", idx, len(db.blocks))
	invariant(db.blocks[bi].Label != block.Unassigned, op, "index %d in unassigned block %d", idx, bi)
	invariant(idx%db.blockCap < uint64(db.headers[bi].high), op,
		"index %d beyond block %d high-water %d", idx, bi, db.headers[bi].high)
}

// GetItem returns the payload at idx and whether it holds a live record. A
// tombstoned slot reports false. An index never handed out is an invariant
// violation.
func (db *DataBlock) GetItem(idx uint64) ([]byte, bool) {
	db.checkIndex("GetItem", idx)
	b, off := db.locate(idx)
	if !b.Occupied(off) {
		return nil, false
	}
	return b.Item(off), true
}

// IsDeleted reports whether idx is a tombstone.
func (db *DataBlock) IsDeleted(idx uint64) bool {
	db.checkIndex("IsDeleted", idx)
	b, off := db.locate(idx)
	return !b.Occupied(off)
}

// DeleteItem tombstones idx and queues it for reuse. Deleting a tombstone is a
// no-op. The destructor, if any, runs before the slot is marked.
//
// Concurrent calls on distinct indices are safe, also while scans are running.
func (db *DataBlock) DeleteItem(idx uint64) {
	db.checkIndex("DeleteItem", idx)
	b, off := db.locate(idx)
	if !b.Occupied(off) {
		return
	}
	if db.destructor != nil {
		db.destructor(b.Item(off))
	}
	if !b.ClearOccupied(off) {
		return
	}

	db.mu.Lock()
	if db.cfg.Labeled {
		h := &db.headers[idx/db.blockCap]
		h.free = append(h.free, idx)
		h.count--
	} else {
		db.deleted = append(db.deleted, idx)
	}
	db.setQueued(idx, true)
	db.itemCount--
	db.mu.Unlock()

	db.markHeader(b, off)
}

// Scan returns an iterator over every live record in index order.
func (db *DataBlock) Scan() *Iterator {
	end := db.high
	if db.cfg.Labeled {
		end = db.itemCap
	}
	return newIterator(db, 0, end, 1)
}

// Free releases every block. The data block must not be used afterwards.
func (db *DataBlock) Free() error {
	var errs []error
	for _, b := range db.blocks {
		if db.cfg.Dirty != nil && b.Mem() != nil {
			db.cfg.Dirty.Forget(b.Mem())
		}
		if err := b.Free(db.cfg.Allocator); err != nil {
			errs = append(errs, err)
		}
	}
	db.blocks, db.headers, db.deleted, db.queued = nil, nil, nil, nil
	db.itemCap, db.itemCount, db.high = 0, 0, 0
	return errors.Join(errs...)
}

// Allocator returns the allocator blocks are drawn from.
func (db *DataBlock) Allocator() *tier.Allocator { return db.cfg.Allocator }
