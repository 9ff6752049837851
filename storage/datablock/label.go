package datablock

import (
	"fmt"
	"slices"

	"github.com/CacaoGatto/RedisGraph/internal/logger"
	"github.com/CacaoGatto/RedisGraph/storage/block"
)

// blockHeader is the label-mode bookkeeping of one block.
type blockHeader struct {
	count    int      // live records
	high     int      // local slots ever handed out
	chainPos int      // position within the label chain, head = 0
	free     []uint64 // tombstoned indices of this block, reused LIFO
}

func (db *DataBlock) checkLabeled(op string, label int) error {
	if !db.cfg.Labeled {
		return fmt.Errorf("%w: %s on an unlabeled data block", ErrLabelMode, op)
	}
	if label < 0 {
		return fmt.Errorf("%w: %d", ErrBadLabel, label)
	}
	return nil
}

func (db *DataBlock) claim(bi, label, chainPos int) {
	b := db.blocks[bi]
	b.Label = label
	b.LabelNext = block.None
	db.headers[bi] = blockHeader{chainPos: chainPos}
	logger.Debug("datablock block claimed", "block", bi, "label", label, "chain_pos", chainPos)
}

// labelHead returns the first block owned by label, or block.None.
func (db *DataBlock) labelHead(label int) int {
	for i, b := range db.blocks {
		if b.Label == label {
			return i
		}
	}
	return block.None
}

// FirstBlockByLabel returns the head block of label's chain. If the label owns
// no block yet, the first unassigned block is claimed, appending one if needed.
func (db *DataBlock) FirstBlockByLabel(label int) (int, error) {
	if err := db.checkLabeled("FirstBlockByLabel", label); err != nil {
		return block.None, err
	}
	for i, b := range db.blocks {
		if b.Label == label {
			return i, nil
		}
		if b.Label == block.Unassigned {
			db.claim(i, label, 0)
			return i, nil
		}
	}
	if err := db.addBlocks(1); err != nil {
		return block.None, err
	}
	bi := len(db.blocks) - 1
	db.claim(bi, label, 0)
	return bi, nil
}

// FirstAvailBlockByLabel returns the first block in label's chain with a vacant
// slot, appending and linking a new block when the whole chain is full.
func (db *DataBlock) FirstAvailBlockByLabel(label int) (int, error) {
	cur, err := db.FirstBlockByLabel(label)
	if err != nil {
		return block.None, err
	}
	for {
		if uint64(db.headers[cur].count) < db.blockCap {
			return cur, nil
		}
		next := db.blocks[cur].LabelNext
		if next == block.None {
			break
		}
		cur = next
	}

	if err := db.addBlocks(1); err != nil {
		return block.None, err
	}
	bi := len(db.blocks) - 1
	db.blocks[cur].LabelNext = bi
	db.claim(bi, label, db.headers[cur].chainPos+1)
	return bi, nil
}

// AllocateItemLabel claims a slot in label's partition, preferring the block's
// most recently deleted slot, and returns its zeroed payload and global index.
func (db *DataBlock) AllocateItemLabel(label int) ([]byte, uint64, error) {
	bi, err := db.FirstAvailBlockByLabel(label)
	if err != nil {
		return nil, 0, err
	}
	h := &db.headers[bi]
	var idx uint64
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
		db.setQueued(idx, false)
	} else {
		idx = uint64(bi)*db.blockCap + uint64(h.high)
		h.high++
	}
	item := db.occupy(idx)
	h.count++
	db.itemCount++
	return item, idx, nil
}

// AccommodateBlockLabel adds count blocks to the chain that fromBlock belongs to.
// Unassigned blocks after fromBlock are claimed before new blocks are appended,
// and the chain is relinked in ascending block order so that traversal order
// matches the order in which FirstAvailBlockByLabel fills blocks.
func (db *DataBlock) AccommodateBlockLabel(count, fromBlock, label int) error {
	if err := db.checkLabeled("AccommodateBlockLabel", label); err != nil {
		return err
	}
	if fromBlock < 0 || fromBlock >= len(db.blocks) || db.blocks[fromBlock].Label != label {
		return fmt.Errorf("%w: block %d is not in the chain of label %d", ErrBadLabel, fromBlock, label)
	}
	if count <= 0 {
		return nil
	}

	var added []int
	for i := fromBlock + 1; i < len(db.blocks) && len(added) < count; i++ {
		if db.blocks[i].Label == block.Unassigned {
			added = append(added, i)
		}
	}
	if missing := count - len(added); missing > 0 {
		first := len(db.blocks)
		if err := db.addBlocks(missing); err != nil {
			return err
		}
		for i := first; i < len(db.blocks); i++ {
			added = append(added, i)
		}
	}
	for _, bi := range added {
		db.claim(bi, label, 0)
	}

	chain := db.labelChain(label)
	slices.Sort(chain)
	for pos, bi := range chain {
		db.headers[bi].chainPos = pos
		if pos+1 < len(chain) {
			db.blocks[bi].LabelNext = chain[pos+1]
		} else {
			db.blocks[bi].LabelNext = block.None
		}
	}
	return nil
}

// labelChain collects every block owned by label in arena order.
func (db *DataBlock) labelChain(label int) []int {
	var chain []int
	for i, b := range db.blocks {
		if b.Label == label {
			chain = append(chain, i)
		}
	}
	return chain
}

// BlockLabel returns the label owning block bi, or block.Unassigned.
func (db *DataBlock) BlockLabel(bi int) int {
	invariant(bi >= 0 && bi < len(db.blocks), "BlockLabel", "block %d out of range [0, %d)", bi, len(db.blocks))
	return db.blocks[bi].Label
}

// LabelItemCount returns the number of live records owned by label.
func (db *DataBlock) LabelItemCount(label int) uint64 {
	if !db.cfg.Labeled {
		return 0
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	var n uint64
	for i, b := range db.blocks {
		if b.Label == label {
			n += uint64(db.headers[i].count)
		}
	}
	return n
}

// ScanLabel returns an iterator over label's records following its chain. A
// label that owns no block yields nothing.
func (db *DataBlock) ScanLabel(label int) *Iterator {
	head := db.labelHead(label)
	if head == block.None {
		return newLabelIterator(db, label, 0, 0, 1)
	}
	return newLabelIterator(db, label, uint64(head)*db.blockCap, endOfChain, 1)
}

// ScanLabelRange returns an iterator over label's records starting at index
// begin and stopping before end. If begin falls in a block owned by another
// label, iteration starts at the next block the label owns.
func (db *DataBlock) ScanLabelRange(label int, begin, end uint64) *Iterator {
	return newLabelIterator(db, label, begin, end, 1)
}
