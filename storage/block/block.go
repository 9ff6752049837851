// Package block implements the fixed-capacity slab that backs a DataBlock.
//
// A Block is one contiguous tier allocation holding Capacity slots of a single
// record size. Each slot carries one bit of occupancy, stored either inline in a
// 4-byte header word in front of the payload or in a bitmap of 32-bit words at
// the head of the block:
//
//	inline:  [hdr|payload|pad][hdr|payload|pad] ... (slots padded to 4 bytes)
//	bitmap:  [bitmap: ceil(cap/32) words][payload][payload] ... [payload]
//
// Occupancy words are read and written atomically, so scans may run while
// other goroutines delete. Tier allocations are at least word aligned.
//
// Freshly allocated blocks are zeroed, so every slot starts out vacant.
//
// Blocks live in their DataBlock's arena and refer to each other by arena index;
// None marks the end of a chain.
package block

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/CacaoGatto/RedisGraph/internal/buf"
	"github.com/CacaoGatto/RedisGraph/storage/tier"
)

const (
	// None is the link value for "no following block".
	None = -1

	// Unassigned is the label of a block not yet claimed by any label partition.
	Unassigned = -2

	wordSize         = 4
	inlineHeaderSize = wordSize
	occupiedFlag     = 0x01
)

// ErrBadLayout indicates a zero or negative item size or capacity.
var ErrBadLayout = errors.New("block: invalid layout")

// Layout describes the slots of a block.
type Layout struct {
	ItemSize int  // payload bytes per slot
	Capacity int  // slots per block
	Bitmap   bool // keep occupancy in a leading bitmap instead of inline headers
}

// SlotSize is the number of bytes one slot occupies, header included.
func (l Layout) SlotSize() int {
	if l.Bitmap {
		return l.ItemSize
	}
	return (l.ItemSize + inlineHeaderSize + wordSize - 1) &^ (wordSize - 1)
}

func (l Layout) bitmapLen() int {
	if !l.Bitmap {
		return 0
	}
	return (l.Capacity + 31) / 32 * wordSize
}

// Size returns the total bytes a block with this layout allocates.
func (l Layout) Size() (int, error) {
	if l.ItemSize <= 0 || l.Capacity <= 0 {
		return 0, fmt.Errorf("%w: item size %d, capacity %d", ErrBadLayout, l.ItemSize, l.Capacity)
	}
	n, err := buf.RegionSize(l.bitmapLen(), l.Capacity, l.SlotSize())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadLayout, err)
	}
	return n, nil
}

// Block is a single slab of Capacity homogeneous slots.
type Block struct {
	layout Layout
	mem    *tier.Mem
	bitmap []atomic.Uint32
	slots  []byte

	// Next is the arena index of the following block, or None.
	Next int

	// Label is the owning label partition, or Unassigned.
	Label int

	// LabelNext is the arena index of the next block in the same label chain, or None.
	LabelNext int
}

// New allocates zeroed storage for a block through a. Allocation failures are
// returned unchanged and wrap tier.ErrNoSpace.
func New(a *tier.Allocator, l Layout) (*Block, error) {
	size, err := l.Size()
	if err != nil {
		return nil, err
	}
	mem, err := a.AllocZeroed(1, size)
	if err != nil {
		return nil, fmt.Errorf("block: allocate %d bytes: %w", size, err)
	}
	raw := mem.Bytes()
	bm := l.bitmapLen()
	var bitmap []atomic.Uint32
	if bm > 0 {
		bitmap = unsafe.Slice((*atomic.Uint32)(unsafe.Pointer(&raw[0])), bm/wordSize)
	}
	return &Block{
		layout:    l,
		mem:       mem,
		bitmap:    bitmap,
		slots:     raw[bm:],
		Next:      None,
		Label:     Unassigned,
		LabelNext: None,
	}, nil
}

// Free releases the block's storage through the tier that produced it.
func (b *Block) Free(a *tier.Allocator) error {
	if b.mem == nil {
		return nil
	}
	err := a.Free(b.mem)
	b.mem, b.bitmap, b.slots = nil, nil, nil
	return err
}

// Layout returns the block's slot layout.
func (b *Block) Layout() Layout { return b.layout }

// Capacity returns the number of slots.
func (b *Block) Capacity() int { return b.layout.Capacity }

// Mem returns the backing allocation.
func (b *Block) Mem() *tier.Mem { return b.mem }

// Tier reports where the block's storage lives.
func (b *Block) Tier() tier.Tier { return b.mem.Tier() }

// Item returns the payload of slot i regardless of its occupancy.
func (b *Block) Item(i int) []byte {
	off := i * b.layout.SlotSize()
	if !b.layout.Bitmap {
		off += inlineHeaderSize
	}
	end := off + b.layout.ItemSize
	return b.slots[off:end:end]
}

func (b *Block) header(i int) *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&b.slots[i*b.layout.SlotSize()]))
}

// Occupied reports whether slot i holds a live record. It is safe to call while
// other goroutines change the occupancy of any slot.
func (b *Block) Occupied(i int) bool {
	if b.layout.Bitmap {
		return b.bitmap[i>>5].Load()&(1<<(i&31)) != 0
	}
	return b.header(i).Load()&occupiedFlag != 0
}

// SetOccupied marks slot i live or tombstoned. Concurrent calls on distinct
// slots are safe in both layouts.
func (b *Block) SetOccupied(i int, v bool) {
	b.swapOccupied(i, v)
}

// ClearOccupied tombstones slot i and reports whether it was live. Of several
// goroutines clearing the same slot, exactly one sees true.
func (b *Block) ClearOccupied(i int) bool {
	return b.swapOccupied(i, false)
}

func (b *Block) swapOccupied(i int, v bool) (was bool) {
	if b.layout.Bitmap {
		w, mask := &b.bitmap[i>>5], uint32(1)<<(i&31)
		var old uint32
		if v {
			old = w.Or(mask)
		} else {
			old = w.And(^mask)
		}
		return old&mask != 0
	}
	h := b.header(i)
	var old uint32
	if v {
		old = h.Or(occupiedFlag)
	} else {
		old = h.And(^uint32(occupiedFlag))
	}
	return old&occupiedFlag != 0
}

// SlotRange returns the byte range of slot i within Mem().Bytes(), header included.
func (b *Block) SlotRange(i int) (off, n int) {
	base := b.layout.bitmapLen()
	return base + i*b.layout.SlotSize(), b.layout.SlotSize()
}

// HeaderRange returns the byte range within Mem().Bytes() holding slot i's
// occupancy bit.
func (b *Block) HeaderRange(i int) (off, n int) {
	if b.layout.Bitmap {
		return (i >> 5) * wordSize, wordSize
	}
	off, _ = b.SlotRange(i)
	return off, inlineHeaderSize
}
