// Package datablock provides the record store underneath the graph: a growable
// array of fixed-size records addressed by a stable 64-bit index.
//
// # Layout
//
// A DataBlock is an ordered set of blocks (see package block), each holding the
// same number of slots. Index i lives in block i / BlockCapacity at offset
// i % BlockCapacity, so an index never moves once handed out. Blocks are only
// ever appended; capacity never shrinks.
//
// # Deletion and Reuse
//
// DeleteItem tombstones a slot and pushes its index on a free-list. The next
// AllocateItem pops the most recently deleted index, so record ids stay dense.
// Scans skip tombstones; GetItem reports them as absent.
//
// # Label Partitioning
//
// With StorageConfig.Labeled set, every block belongs to at most one label.
// AllocateItemLabel places a record in a block owned by the label, and
// ScanLabel visits only that label's blocks by following a chain that ascends
// in block order:
//
//	blocks:  [A0][B0][A1][ - ][A2]
//	chain A: 0 -> 2 -> 4
//	chain B: 1
//
// Free-lists are kept per block in this mode.
//
// # Concurrency
//
// One writer performs allocation, growth and label bookkeeping. Concurrent
// DeleteItem calls on distinct indices are safe, and scans and GetItem may run
// alongside them: occupancy words are accessed atomically in both tombstone
// modes. Nothing may run alongside an allocation.
//
// # Storage Tiers
//
// Block memory comes from a tier.Allocator. Blocks placed in the capacity tier
// are file-backed; when a dirty.Tracker is configured, Sync flushes the pages
// touched since the previous flush.
//
// # Snapshot Replay
//
// AllocateItemOutOfOrder and MarkDeletedOutOfOrder rebuild a data block from a
// snapshot whose indices arrive in any order. An index is queued for reuse at
// most once, however often its deletion is replayed.
package datablock
