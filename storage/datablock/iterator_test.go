package datablock

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartitionUnionIsScan(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			db := newDataBlock(t, 4, 4, mode, nil)
			for i := range uint64(23) {
				put(t, db, i)
			}
			for _, idx := range []uint64{0, 5, 6, 13, 22} {
				db.DeleteItem(idx)
			}
			want := collect(db.Scan())

			for _, n := range []int{1, 2, 3, 5, 9, 40} {
				var union []uint64
				for i, it := range db.Partition(n) {
					for _, idx := range collect(it) {
						require.EqualValues(t, i, idx%uint64(n), "partition %d of %d", i, n)
						union = append(union, idx)
					}
				}
				slices.Sort(union)
				require.Equal(t, want, union, "n=%d", n)
			}
		})
	}
}

func TestPartitionStepLargerThanBlock(t *testing.T) {
	db := newDataBlock(t, 4, 4, TombstoneInline, nil)
	for i := range uint64(20) {
		put(t, db, i)
	}
	its := db.Partition(7)
	require.Equal(t, []uint64{0, 7, 14}, collect(its[0]))
	require.Equal(t, []uint64{6, 13}, collect(its[6]))
}

func TestIteratorResetAndClone(t *testing.T) {
	db := newDataBlock(t, 8, 4, TombstoneInline, nil)
	for i := range uint64(6) {
		put(t, db, i)
	}

	it := db.Scan()
	_, idx, ok := it.Next()
	require.True(t, ok)
	require.Zero(t, idx)
	_, _, _ = it.Next()

	c := it.Clone()
	require.Equal(t, []uint64{2, 3, 4, 5}, collect(it))
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, collect(c), "clones start over")

	it.Reset()
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, collect(it))
}

func TestIteratorRetarget(t *testing.T) {
	db := newDataBlock(t, 8, 4, TombstoneInline, nil)
	for i := range uint64(8) {
		put(t, db, i)
	}

	it := db.Scan()
	it.Retarget(3, 6)
	require.Equal(t, []uint64{3, 4, 5}, collect(it))
	it.Reset()
	require.Equal(t, []uint64{3, 4, 5}, collect(it))

	it.Retarget(100, 200)
	require.Empty(t, collect(it), "a range past the last block is empty")

	requireInvariant(t, func() { it.Retarget(5, 4) })
}

func TestIteratorSeesLaterDeletes(t *testing.T) {
	db := newDataBlock(t, 8, 4, TombstoneInline, nil)
	for i := range uint64(6) {
		put(t, db, i)
	}
	it := db.Scan()
	_, _, _ = it.Next()
	db.DeleteItem(3)
	require.Equal(t, []uint64{1, 2, 4, 5}, collect(it))
}

func TestIteratorInvalidArguments(t *testing.T) {
	db := newDataBlock(t, 4, 4, TombstoneInline, nil)
	requireInvariant(t, func() { newIterator(db, 3, 2, 1) })
	requireInvariant(t, func() { newIterator(db, 0, 2, 0) })
	requireInvariant(t, func() { db.Partition(0) })
	requireInvariant(t, func() { db.PartitionLabel(1, 0) })
}

func TestEmptyScan(t *testing.T) {
	db := newDataBlock(t, 0, 4, TombstoneBitmap, nil)
	it := db.Scan()
	_, _, ok := it.Next()
	require.False(t, ok)
	require.Equal(t, -2, it.Label())
}
