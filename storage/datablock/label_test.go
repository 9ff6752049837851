package datablock

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CacaoGatto/RedisGraph/storage/block"
)

func newLabeled(t *testing.T, itemCap uint64, mode Tombstone) *DataBlock {
	t.Helper()
	db, err := New(itemCap, 8, nil, StorageConfig{
		BlockCapacity: 4,
		Tombstone:     mode,
		Labeled:       true,
		Allocator:     newAllocator(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Free() })
	return db
}

func putLabel(t *testing.T, db *DataBlock, label int) uint64 {
	t.Helper()
	_, idx, err := db.AllocateItemLabel(label)
	require.NoError(t, err)
	return idx
}

func TestLabelModeGuards(t *testing.T) {
	labeled := newLabeled(t, 4, TombstoneInline)
	_, _, err := labeled.AllocateItem()
	require.ErrorIs(t, err, ErrLabelMode)
	_, err = labeled.AllocateItemOutOfOrder(3)
	require.ErrorIs(t, err, ErrLabelMode)
	require.ErrorIs(t, labeled.MarkDeletedOutOfOrder(3), ErrLabelMode)
	require.ErrorIs(t, labeled.Accommodate(1), ErrLabelMode)
	_, _, err = labeled.AllocateItemLabel(-1)
	require.ErrorIs(t, err, ErrBadLabel)

	plain := newDataBlock(t, 4, 4, TombstoneInline, nil)
	_, _, err = plain.AllocateItemLabel(1)
	require.ErrorIs(t, err, ErrLabelMode)
	_, err = plain.FirstBlockByLabel(1)
	require.ErrorIs(t, err, ErrLabelMode)
}

func TestLabelsOwnDisjointBlocks(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			db := newLabeled(t, 0, mode)

			var a, b []uint64
			for range 5 {
				a = append(a, putLabel(t, db, 1))
			}
			for range 3 {
				b = append(b, putLabel(t, db, 2))
			}
			for range 2 {
				a = append(a, putLabel(t, db, 1))
			}

			require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6}, a)
			require.Equal(t, []uint64{8, 9, 10}, b)
			require.Equal(t, 1, db.BlockLabel(0))
			require.Equal(t, 1, db.BlockLabel(1))
			require.Equal(t, 2, db.BlockLabel(2))
			require.EqualValues(t, 10, db.ItemCount())
			require.EqualValues(t, 7, db.LabelItemCount(1))

			require.Equal(t, a, collect(db.ScanLabel(1)))
			require.Equal(t, b, collect(db.ScanLabel(2)))

			blocks := db.BlockCount()
			require.Empty(t, collect(db.ScanLabel(3)))
			require.Equal(t, blocks, db.BlockCount(), "scanning an unknown label claims nothing")

			require.Equal(t, append(slices.Clone(a), b...), collect(db.Scan()))
			require.NoError(t, db.Verify())
		})
	}
}

func TestFirstBlockByLabelClaimsUnassigned(t *testing.T) {
	db := newLabeled(t, 12, TombstoneInline)
	require.Equal(t, 3, db.BlockCount())

	bi, err := db.FirstBlockByLabel(7)
	require.NoError(t, err)
	require.Zero(t, bi)

	bi, err = db.FirstBlockByLabel(9)
	require.NoError(t, err)
	require.Equal(t, 1, bi)

	bi, err = db.FirstBlockByLabel(7)
	require.NoError(t, err)
	require.Zero(t, bi, "existing owner is found again")

	require.Equal(t, block.Unassigned, db.BlockLabel(2))
	requireInvariant(t, func() { db.BlockLabel(3) })
}

func TestLabelDeleteReusesWithinBlock(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			db := newLabeled(t, 0, mode)
			for range 6 {
				putLabel(t, db, 1)
			}
			putLabel(t, db, 2)

			db.DeleteItem(2)
			db.DeleteItem(1)
			db.DeleteItem(8)
			_, ok := db.GetItem(1)
			require.False(t, ok)
			require.EqualValues(t, 3, db.DeletedItemsCount())
			require.EqualValues(t, 4, db.LabelItemCount(1))
			require.NoError(t, db.Verify())

			require.EqualValues(t, 1, putLabel(t, db, 1))
			require.EqualValues(t, 2, putLabel(t, db, 1))
			require.EqualValues(t, 6, putLabel(t, db, 1))
			require.EqualValues(t, 8, putLabel(t, db, 2))
			require.NoError(t, db.Verify())
		})
	}
}

func TestLabelIndexValidity(t *testing.T) {
	db := newLabeled(t, 8, TombstoneInline)
	putLabel(t, db, 1)

	_, ok := db.GetItem(0)
	require.True(t, ok)
	requireInvariant(t, func() { db.GetItem(1) })
	requireInvariant(t, func() { db.GetItem(4) })
	requireInvariant(t, func() { db.DeleteItem(40) })
}

func TestLabelScanCarriesBlockOffset(t *testing.T) {
	db := newLabeled(t, 0, TombstoneInline)
	for range 4 {
		putLabel(t, db, 1)
	}
	require.EqualValues(t, 4, putLabel(t, db, 2))
	require.EqualValues(t, 8, putLabel(t, db, 1))
	require.EqualValues(t, 9, putLabel(t, db, 1))

	require.Equal(t, []uint64{0, 1, 2, 3, 8, 9}, collect(db.ScanLabel(1)))
	require.Equal(t, []uint64{2, 3, 8, 9}, collect(db.ScanLabelRange(1, 2, endOfChain)))
	require.Equal(t, []uint64{8, 9}, collect(db.ScanLabelRange(1, 4, endOfChain)),
		"a start inside another label's block skips to the label's next block")
	require.Equal(t, []uint64{0, 1, 2, 3, 8}, collect(db.ScanLabelRange(1, 0, 9)))
	require.Equal(t, []uint64{4}, collect(db.ScanLabelRange(2, 0, endOfChain)))
	require.Empty(t, collect(db.ScanLabelRange(2, 8, endOfChain)))
}

func TestPartitionLabelCoversChain(t *testing.T) {
	db := newLabeled(t, 0, TombstoneInline)
	for range 4 {
		putLabel(t, db, 1)
	}
	putLabel(t, db, 2)
	putLabel(t, db, 1)
	putLabel(t, db, 1)

	its := db.PartitionLabel(1, 2)
	require.Equal(t, []uint64{0, 2, 8}, collect(its[0]))
	require.Equal(t, []uint64{1, 3, 9}, collect(its[1]))

	its[1].Reset()
	require.Equal(t, []uint64{1, 3, 9}, collect(its[1]))

	for _, it := range db.PartitionLabel(5, 3) {
		require.Empty(t, collect(it))
	}
}

func TestAccommodateBlockLabelClaimsAndRelinks(t *testing.T) {
	db := newLabeled(t, 8, TombstoneInline)
	for range 5 {
		putLabel(t, db, 1)
	}
	// block 1 stayed unassigned; the overflow block was appended
	require.Equal(t, block.Unassigned, db.BlockLabel(1))
	require.Equal(t, 1, db.BlockLabel(2))

	require.NoError(t, db.AccommodateBlockLabel(2, 0, 1))
	require.Equal(t, 1, db.BlockLabel(1))
	require.Equal(t, 1, db.BlockLabel(3))
	require.Equal(t, 4, db.BlockCount())
	require.NoError(t, db.Verify())

	// the chain now ascends 0 -> 1 -> 2 -> 3; block 1 fills before block 2
	for range 3 {
		putLabel(t, db, 1)
	}
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 8}, collect(db.ScanLabel(1)))
	require.NoError(t, db.Verify())

	require.ErrorIs(t, db.AccommodateBlockLabel(1, 0, 2), ErrBadLabel)
	require.ErrorIs(t, db.AccommodateBlockLabel(1, 9, 1), ErrBadLabel)
	require.NoError(t, db.AccommodateBlockLabel(0, 0, 1))
}

func TestLabelConcurrentDelete(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			db := newLabeled(t, 0, mode)
			var ids []uint64
			for i := range 400 {
				ids = append(ids, putLabel(t, db, i%3))
			}

			var wg sync.WaitGroup
			for w := range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := w; i < len(ids); i += 4 {
						if i%2 == 0 {
							db.DeleteItem(ids[i])
						}
					}
				}()
			}
			wg.Wait()

			require.EqualValues(t, 200, db.ItemCount())
			require.EqualValues(t, 200, db.DeletedItemsCount())
			require.NoError(t, db.Verify())

			var total int
			for label := range 3 {
				total += len(collect(db.ScanLabel(label)))
			}
			require.Equal(t, 200, total)
		})
	}
}

func TestVerifyDetectsBrokenChain(t *testing.T) {
	db := newLabeled(t, 0, TombstoneInline)
	for range 9 {
		putLabel(t, db, 1)
	}
	db.blocks[0].LabelNext = 2

	var verr *ValidationError
	require.ErrorAs(t, db.Verify(), &verr)
	require.Equal(t, "label", verr.Type)
}

func TestOutOfOrderLabelReplay(t *testing.T) {
	db := newLabeled(t, 0, TombstoneInline)
	for range 3 {
		_, _, err := db.AllocateItemOutOfOrderLabel(4)
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, db.ItemCount())
	require.EqualValues(t, 3, db.LabelItemCount(4))
	require.NoError(t, db.Verify())
}

func TestAccommodateBlockLabelAvoidsGrowth(t *testing.T) {
	db := newLabeled(t, 4, TombstoneInline)
	putLabel(t, db, 1)

	require.ErrorIs(t, db.Accommodate(8), ErrLabelMode)
	require.EqualValues(t, 4, db.ItemCap(), "a rejected accommodate adds nothing")

	head, err := db.FirstBlockByLabel(2)
	require.NoError(t, err)
	require.NoError(t, db.AccommodateBlockLabel(1, head, 2))
	capAfter := db.ItemCap()

	for range 8 {
		putLabel(t, db, 2)
	}
	require.Equal(t, capAfter, db.ItemCap(), "reserved chain blocks absorb the allocations")
	require.EqualValues(t, 8, db.LabelItemCount(2))
	require.NoError(t, db.Verify())
}
