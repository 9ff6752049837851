package datablock

import (
	"fmt"
	"math/bits"

	"github.com/CacaoGatto/RedisGraph/storage/block"
)

// ValidationError describes the first structural inconsistency Verify finds.
type ValidationError struct {
	Type    string // category: "capacity", "link", "count", "freelist", "label"
	Message string
	Block   int    // offending block, or -1
	Index   uint64 // offending index when relevant
}

func (e *ValidationError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf("datablock: %s: %s (block %d, index %d)", e.Type, e.Message, e.Block, e.Index)
	}
	return fmt.Sprintf("datablock: %s: %s", e.Type, e.Message)
}

func verr(typ string, bi int, idx uint64, format string, args ...any) *ValidationError {
	return &ValidationError{Type: typ, Message: fmt.Sprintf(format, args...), Block: bi, Index: idx}
}

// Verify checks the data block's bookkeeping against its slot occupancy. It is
// not safe to run concurrently with any mutation.
func (db *DataBlock) Verify() error {
	if db.itemCap != uint64(len(db.blocks))*db.blockCap {
		return verr("capacity", -1, 0, "item cap %d != %d blocks x %d", db.itemCap, len(db.blocks), db.blockCap)
	}
	for i, b := range db.blocks {
		want := i + 1
		if i == len(db.blocks)-1 {
			want = block.None
		}
		if b.Next != want {
			return verr("link", i, 0, "next is %d, want %d", b.Next, want)
		}
	}
	if db.cfg.Labeled {
		return db.verifyLabeled()
	}
	return db.verifyPlain()
}

func (db *DataBlock) verifyPlain() error {
	if db.high > db.itemCap {
		return verr("capacity", -1, db.high, "high-water beyond capacity %d", db.itemCap)
	}
	var live uint64
	for idx := range db.itemCap {
		b, off := db.locate(idx)
		if !b.Occupied(off) {
			continue
		}
		if idx >= db.high {
			return verr("count", int(idx/db.blockCap), idx, "live slot beyond high-water %d", db.high)
		}
		live++
	}
	if live != db.itemCount {
		return verr("count", -1, 0, "item count %d, found %d live slots", db.itemCount, live)
	}
	if err := db.verifyFreeList(db.deleted, 0, db.high); err != nil {
		return err
	}
	if live+uint64(len(db.deleted)) > db.high {
		return verr("count", -1, 0, "%d live + %d deleted exceeds high-water %d", live, len(db.deleted), db.high)
	}
	return db.verifyQueued(uint64(len(db.deleted)))
}

// verifyFreeList checks that every entry is unique, vacant and within [lo, hi).
func (db *DataBlock) verifyFreeList(free []uint64, lo, hi uint64) error {
	seen := make(map[uint64]struct{}, len(free))
	for _, idx := range free {
		bi := int(idx / db.blockCap)
		if idx < lo || idx >= hi {
			return verr("freelist", bi, idx, "entry outside [%d, %d)", lo, hi)
		}
		if _, dup := seen[idx]; dup {
			return verr("freelist", bi, idx, "duplicate entry")
		}
		seen[idx] = struct{}{}
		if b, off := db.locate(idx); b.Occupied(off) {
			return verr("freelist", bi, idx, "entry is live")
		}
		if !db.isQueued(idx) {
			return verr("freelist", bi, idx, "entry is not marked queued")
		}
	}
	return nil
}

// verifyQueued checks that exactly the free-list entries carry a queued bit.
func (db *DataBlock) verifyQueued(entries uint64) error {
	var marked uint64
	for _, w := range db.queued {
		marked += uint64(bits.OnesCount64(w))
	}
	if marked != entries {
		return verr("freelist", -1, 0, "%d slots marked queued, free-lists hold %d", marked, entries)
	}
	return nil
}

func (db *DataBlock) verifyLabeled() error {
	if len(db.headers) != len(db.blocks) {
		return verr("label", -1, 0, "%d headers for %d blocks", len(db.headers), len(db.blocks))
	}

	var total, free uint64
	labels := make(map[int]struct{})
	for bi, b := range db.blocks {
		h := db.headers[bi]
		base := uint64(bi) * db.blockCap
		live := 0
		for off := range db.blocks[bi].Capacity() {
			if !b.Occupied(off) {
				continue
			}
			if off >= h.high {
				return verr("count", bi, base+uint64(off), "live slot beyond block high-water %d", h.high)
			}
			live++
		}

		if b.Label == block.Unassigned {
			if live != 0 || h.count != 0 || h.high != 0 || len(h.free) != 0 {
				return verr("label", bi, base, "unassigned block holds records")
			}
			if b.LabelNext != block.None {
				return verr("label", bi, base, "unassigned block is chained to %d", b.LabelNext)
			}
			continue
		}
		labels[b.Label] = struct{}{}

		if live != h.count {
			return verr("count", bi, base, "header count %d, found %d live slots", h.count, live)
		}
		if h.count+len(h.free) != h.high {
			return verr("count", bi, base, "%d live + %d free != high-water %d", h.count, len(h.free), h.high)
		}
		if err := db.verifyFreeList(h.free, base, base+uint64(h.high)); err != nil {
			return err
		}
		total += uint64(h.count)
		free += uint64(len(h.free))
	}
	if total != db.itemCount {
		return verr("count", -1, 0, "item count %d, blocks hold %d", db.itemCount, total)
	}
	if err := db.verifyQueued(free); err != nil {
		return err
	}

	for label := range labels {
		if err := db.verifyChain(label); err != nil {
			return err
		}
	}
	return nil
}

// verifyChain checks that label's chain starts at its first block, ascends,
// stays within the label and reaches every block the label owns.
func (db *DataBlock) verifyChain(label int) error {
	owned := db.labelChain(label)
	pos := 0
	for cur := owned[0]; cur != block.None; cur = db.blocks[cur].LabelNext {
		base := uint64(cur) * db.blockCap
		if pos >= len(owned) {
			return verr("label", cur, base, "chain of label %d is longer than its %d blocks", label, len(owned))
		}
		if cur != owned[pos] {
			return verr("label", cur, base, "chain of label %d visits block %d, want %d", label, cur, owned[pos])
		}
		if db.headers[cur].chainPos != pos {
			return verr("label", cur, base, "chain position %d, want %d", db.headers[cur].chainPos, pos)
		}
		pos++
	}
	if pos != len(owned) {
		return verr("label", owned[pos], uint64(owned[pos])*db.blockCap,
			"block of label %d is not reachable from the chain head", label)
	}
	return nil
}
