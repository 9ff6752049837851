package datablock

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutOfOrderReplay(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			db := newDataBlock(t, 0, 4, mode, nil)

			// snapshot: live {9, 2, 5}, deleted {0, 1, 3, 4, 6, 7, 8}
			for _, idx := range []uint64{9, 2, 5} {
				item, err := db.AllocateItemOutOfOrder(idx)
				require.NoError(t, err)
				item[0] = byte(idx)
			}
			for _, idx := range []uint64{8, 7, 6, 4, 3, 1, 0} {
				require.NoError(t, db.MarkDeletedOutOfOrder(idx))
			}

			require.EqualValues(t, 3, db.ItemCount())
			require.EqualValues(t, 12, db.ItemCap())
			require.EqualValues(t, 7, db.DeletedItemsCount())
			require.Equal(t, []uint64{2, 5, 9}, collect(db.Scan()))
			require.NoError(t, db.Verify())

			item, ok := db.GetItem(5)
			require.True(t, ok)
			require.EqualValues(t, 5, item[0])

			_, idx, err := db.AllocateItem()
			require.NoError(t, err)
			require.Zero(t, idx, "the last tombstone replayed is reused first")
		})
	}
}

func TestOutOfOrderRejectsOccupied(t *testing.T) {
	db := newDataBlock(t, 4, 4, TombstoneInline, nil)
	_, err := db.AllocateItemOutOfOrder(2)
	require.NoError(t, err)

	_, err = db.AllocateItemOutOfOrder(2)
	require.ErrorIs(t, err, ErrOccupied)
	require.ErrorIs(t, db.MarkDeletedOutOfOrder(2), ErrOccupied)
	require.EqualValues(t, 1, db.ItemCount())
}

func TestOutOfOrderGapsAreAbsent(t *testing.T) {
	db := newDataBlock(t, 4, 4, TombstoneInline, nil)
	_, err := db.AllocateItemOutOfOrder(6)
	require.NoError(t, err)

	_, ok := db.GetItem(3)
	require.False(t, ok, "a slot never replayed reads as absent")
	require.Equal(t, []uint64{6}, collect(db.Scan()))

	// allocation continues past the highest replayed index
	_, idx, err := db.AllocateItem()
	require.NoError(t, err)
	require.EqualValues(t, 7, idx)
}

func TestMarkDeletedTwiceQueuesOnce(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			db := newDataBlock(t, 4, 4, mode, nil)
			require.NoError(t, db.MarkDeletedOutOfOrder(3))
			require.NoError(t, db.MarkDeletedOutOfOrder(3))
			require.EqualValues(t, 1, db.DeletedItemsCount())

			_, first, err := db.AllocateItem()
			require.NoError(t, err)
			_, second, err := db.AllocateItem()
			require.NoError(t, err)
			require.EqualValues(t, 3, first)
			require.EqualValues(t, 4, second, "index 3 is handed out once")
			require.EqualValues(t, 2, db.ItemCount())
			require.NoError(t, db.Verify())
		})
	}
}

func TestMarkDeletedAfterDeleteIsNoop(t *testing.T) {
	db := newDataBlock(t, 4, 4, TombstoneInline, nil)
	put(t, db, 0)
	put(t, db, 1)
	db.DeleteItem(0)

	require.NoError(t, db.MarkDeletedOutOfOrder(0))
	require.EqualValues(t, 1, db.DeletedItemsCount())
	require.NoError(t, db.Verify())
}

func TestOutOfOrderRejectsQueuedIndex(t *testing.T) {
	db := newDataBlock(t, 4, 4, TombstoneInline, nil)
	require.NoError(t, db.MarkDeletedOutOfOrder(1))

	_, err := db.AllocateItemOutOfOrder(1)
	require.ErrorIs(t, err, ErrOccupied)
	require.Zero(t, db.ItemCount())
	require.NoError(t, db.Verify())
}

func TestOutOfOrderBeyondIndexSpacePanics(t *testing.T) {
	for _, blockCap := range []int{1, 4} {
		db := newDataBlock(t, 4, blockCap, TombstoneInline, nil)
		before := db.BlockCount()
		requireInvariant(t, func() { _, _ = db.AllocateItemOutOfOrder(math.MaxUint64) })
		requireInvariant(t, func() { _ = db.MarkDeletedOutOfOrder(math.MaxUint64) })
		require.Equal(t, before, db.BlockCount())
	}
}
