package datablock

import "fmt"

// Out-of-order operations rebuild a data block from a snapshot in which record
// indices arrive in arbitrary order. They bypass the free-list; the loader is
// responsible for marking every gap with MarkDeletedOutOfOrder.

// reach grows the data block until idx is addressable.
func (db *DataBlock) reach(op string, idx uint64) error {
	if idx < db.itemCap {
		return nil
	}
	bi := idx / db.blockCap
	invariant(bi < db.maxBlocks(), op, "index %d beyond the index space", idx)
	return db.grow(op, bi+1-uint64(len(db.blocks)))
}

// AllocateItemOutOfOrder places a record at idx, growing the data block as
// needed, and returns the zeroed payload. An index already marked deleted is
// rejected with ErrOccupied.
func (db *DataBlock) AllocateItemOutOfOrder(idx uint64) ([]byte, error) {
	if db.cfg.Labeled {
		return nil, fmt.Errorf("%w: AllocateItemOutOfOrder on a labeled data block", ErrLabelMode)
	}
	if err := db.reach("AllocateItemOutOfOrder", idx); err != nil {
		return nil, err
	}
	if b, off := db.locate(idx); b.Occupied(off) {
		return nil, fmt.Errorf("%w: index %d", ErrOccupied, idx)
	}
	if db.isQueued(idx) {
		return nil, fmt.Errorf("%w: index %d is queued for reuse", ErrOccupied, idx)
	}
	item := db.occupy(idx)
	db.itemCount++
	db.high = max(db.high, idx+1)
	return item, nil
}

// MarkDeletedOutOfOrder records idx as a tombstone awaiting reuse. The slot must
// not hold a record. Marking an index that already awaits reuse is a no-op, so
// a replayed deletion never queues the same index twice.
func (db *DataBlock) MarkDeletedOutOfOrder(idx uint64) error {
	if db.cfg.Labeled {
		return fmt.Errorf("%w: MarkDeletedOutOfOrder on a labeled data block", ErrLabelMode)
	}
	if err := db.reach("MarkDeletedOutOfOrder", idx); err != nil {
		return err
	}
	b, off := db.locate(idx)
	if b.Occupied(off) {
		return fmt.Errorf("%w: index %d", ErrOccupied, idx)
	}
	if db.isQueued(idx) {
		return nil
	}
	db.deleted = append(db.deleted, idx)
	db.setQueued(idx, true)
	db.high = max(db.high, idx+1)
	db.markHeader(b, off)
	return nil
}

// AllocateItemOutOfOrderLabel replays one record of label. Label-mode indices
// are chosen by the allocator, so replay goes through AllocateItemLabel and the
// item count stays consistent with the per-block counts.
func (db *DataBlock) AllocateItemOutOfOrderLabel(label int) ([]byte, uint64, error) {
	return db.AllocateItemLabel(label)
}
