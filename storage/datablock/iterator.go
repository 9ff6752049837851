package datablock

import (
	"math"

	"github.com/CacaoGatto/RedisGraph/storage/block"
)

// endOfChain is the end position of a label scan bounded only by its chain.
const endOfChain = math.MaxUint64

// Iterator walks a DataBlock's live records in index order, skipping
// tombstones. Plain iterators follow the arena's block order; label iterators
// follow a label chain.
//
// An iterator observes the data block as it changes. The caller must not move
// or free blocks while an iterator is in use.
type Iterator struct {
	db *DataBlock

	startBlock int
	startPos   uint64

	curBlock int
	blockOff uint64 // slot within curBlock
	curPos   uint64 // global index of the next candidate
	endPos   uint64
	step     uint64

	labeled bool
	label   int
}

func newIterator(db *DataBlock, start, end, step uint64) *Iterator {
	invariant(end >= start, "Iterator", "end %d before start %d", end, start)
	invariant(step >= 1, "Iterator", "step must be positive")

	it := &Iterator{db: db, endPos: end, step: step, label: block.Unassigned}
	it.seek(start)
	return it
}

func newLabelIterator(db *DataBlock, label int, start, end, step uint64) *Iterator {
	invariant(end >= start, "LabelIterator", "end %d before start %d", end, start)
	invariant(step >= 1, "LabelIterator", "step must be positive")

	it := &Iterator{db: db, endPos: end, step: step, labeled: true, label: label}
	it.seek(start)
	return it
}

// seek positions the iterator at pos and records it as the reset point.
func (it *Iterator) seek(pos uint64) {
	bc := it.db.blockCap
	it.curBlock = block.None
	it.curPos = pos
	if bc == 0 || pos/bc >= uint64(len(it.db.blocks)) {
		it.startBlock, it.startPos = it.curBlock, it.curPos
		return
	}
	it.curBlock = int(pos / bc)
	it.blockOff = pos % bc

	if it.labeled {
		// A label scan may begin inside another label's block; move forward to
		// the first block the label owns.
		for it.curBlock != block.None && it.db.blocks[it.curBlock].Label != it.label {
			it.curBlock = it.db.blocks[it.curBlock].Next
			it.blockOff = 0
		}
		if it.curBlock != block.None {
			it.curPos = uint64(it.curBlock)*bc + it.blockOff
		}
	}
	it.startBlock, it.startPos = it.curBlock, it.curPos
}

func (it *Iterator) nextBlock(bi int) int {
	b := it.db.blocks[bi]
	if it.labeled {
		return b.LabelNext
	}
	return b.Next
}

// Next returns the next live record and its index. ok is false once the range
// or the chain is exhausted.
func (it *Iterator) Next() (item []byte, idx uint64, ok bool) {
	for it.curBlock != block.None && it.curPos < it.endPos {
		b := it.db.blocks[it.curBlock]
		off := int(it.blockOff)
		pos := it.curPos
		it.advance(it.step)
		if b.Occupied(off) {
			return b.Item(off), pos, true
		}
	}
	return nil, 0, false
}

// Reset rewinds the iterator to its starting position.
func (it *Iterator) Reset() {
	it.curBlock = it.startBlock
	it.curPos = it.startPos
	if it.curBlock != block.None {
		it.blockOff = it.startPos % it.db.blockCap
	}
}

// Clone returns an independent iterator over the same range, rewound to the start.
func (it *Iterator) Clone() *Iterator {
	c := *it
	c.Reset()
	return &c
}

// Retarget repositions the iterator over [begin, end), reapplying the label
// block skip for label iterators.
func (it *Iterator) Retarget(begin, end uint64) {
	invariant(end >= begin, "Retarget", "end %d before start %d", end, begin)
	it.endPos = end
	it.seek(begin)
}

// Label returns the label the iterator is bound to, or block.Unassigned.
func (it *Iterator) Label() int { return it.label }

// Partition splits a full scan into n iterators with step n; iterator i
// yields indices congruent to i modulo n. Their union is exactly Scan's output.
func (db *DataBlock) Partition(n int) []*Iterator {
	invariant(n >= 1, "Partition", "need at least one partition, got %d", n)
	end := db.high
	if db.cfg.Labeled {
		end = db.itemCap
	}
	its := make([]*Iterator, n)
	for i := range its {
		start := min(uint64(i), end)
		its[i] = newIterator(db, start, end, uint64(n))
	}
	return its
}

// PartitionLabel splits a label scan into n stepped iterators. The step
// applies to positions within the chain's blocks.
func (db *DataBlock) PartitionLabel(label, n int) []*Iterator {
	invariant(n >= 1, "PartitionLabel", "need at least one partition, got %d", n)
	its := make([]*Iterator, n)
	head := db.labelHead(label)
	for i := range its {
		if head == block.None {
			its[i] = newLabelIterator(db, label, 0, 0, uint64(n))
			continue
		}
		it := newLabelIterator(db, label, uint64(head)*db.blockCap, endOfChain, uint64(n))
		it.advance(uint64(i))
		it.startBlock, it.startPos = it.curBlock, it.curPos
		its[i] = it
	}
	return its
}

// advance moves the cursor forward by k slots along the iterator's block order.
func (it *Iterator) advance(k uint64) {
	if it.curBlock == block.None {
		return
	}
	bc := it.db.blockCap
	it.blockOff += k
	it.curPos += k
	if it.blockOff < bc {
		return
	}
	for it.blockOff >= bc && it.curBlock != block.None {
		it.blockOff -= bc
		it.curBlock = it.nextBlock(it.curBlock)
	}
	if it.labeled && it.curBlock != block.None {
		// Chain successors are not adjacent; the offset within the block
		// carries over.
		it.curPos = uint64(it.curBlock)*bc + it.blockOff
	}
}
