package main

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CacaoGatto/RedisGraph/storage/datablock"
	"github.com/CacaoGatto/RedisGraph/storage/dirty"
	"github.com/CacaoGatto/RedisGraph/storage/tier"
)

// storeOptions are the flags shared by every command that builds a data block.
type storeOptions struct {
	ItemSize    int
	BlockCap    int
	Tombstone   string
	Policy      string
	Threshold   string
	FastBudget  string
	CapacityDir string
	RequireDAX  bool
}

func bindStoreFlags(cmd *cobra.Command, o *storeOptions) {
	cmd.Flags().IntVar(&o.ItemSize, "item-size", 64, "Record payload size in bytes")
	cmd.Flags().IntVar(&o.BlockCap, "block-cap", datablock.DefaultBlockCapacity, "Slots per block")
	cmd.Flags().StringVar(&o.Tombstone, "tombstone", "inline", "Tombstone representation (inline, bitmap)")
	cmd.Flags().StringVar(&o.Policy, "policy", "fast", "Tier placement policy (fast, capacity, threshold)")
	cmd.Flags().StringVar(&o.Threshold, "threshold", "256KiB", "Threshold policy cut-over size")
	cmd.Flags().StringVar(&o.FastBudget, "fast-budget", "", "Fast tier byte budget (default unlimited)")
	cmd.Flags().StringVar(&o.CapacityDir, "capacity-dir", "", "Directory for the capacity tier arena")
	cmd.Flags().BoolVar(&o.RequireDAX, "require-dax", false, "Fail unless the capacity directory is DAX-enabled")
}

func defaultStoreOptions() storeOptions {
	return storeOptions{
		ItemSize:  64,
		BlockCap:  datablock.DefaultBlockCapacity,
		Tombstone: "inline",
		Policy:    "fast",
		Threshold: "256KiB",
	}
}

func (o storeOptions) tierConfig() (tier.Config, error) {
	policy, ok := tier.ParsePolicy(o.Policy)
	if !ok {
		return tier.Config{}, fmt.Errorf("unknown policy %q", o.Policy)
	}
	cfg := tier.Config{
		Policy:      policy,
		CapacityDir: o.CapacityDir,
		RequireDAX:  o.RequireDAX,
	}
	if o.Threshold != "" {
		n, err := humanize.ParseBytes(o.Threshold)
		if err != nil {
			return tier.Config{}, fmt.Errorf("invalid threshold: %w", err)
		}
		cfg.Threshold = int(n)
	}
	if o.FastBudget != "" {
		n, err := humanize.ParseBytes(o.FastBudget)
		if err != nil {
			return tier.Config{}, fmt.Errorf("invalid fast budget: %w", err)
		}
		cfg.FastBudget = int64(n)
	}
	return cfg, nil
}

func (o storeOptions) tombstone() (datablock.Tombstone, error) {
	switch o.Tombstone {
	case "inline":
		return datablock.TombstoneInline, nil
	case "bitmap":
		return datablock.TombstoneBitmap, nil
	default:
		return 0, fmt.Errorf("unknown tombstone mode %q", o.Tombstone)
	}
}

// store bundles a data block with the allocator and tracker it was built on.
type store struct {
	alloc   *tier.Allocator
	tracker *dirty.Tracker
	db      *datablock.DataBlock
}

func (o storeOptions) open(itemCap uint64, labeled bool) (*store, error) {
	tcfg, err := o.tierConfig()
	if err != nil {
		return nil, err
	}
	ts, err := o.tombstone()
	if err != nil {
		return nil, err
	}
	a, err := tier.New(tcfg)
	if err != nil {
		return nil, err
	}
	s := &store{alloc: a}
	cfg := datablock.StorageConfig{
		BlockCapacity: o.BlockCap,
		Tombstone:     ts,
		Labeled:       labeled,
		Allocator:     a,
	}
	if a.HasCapacityTier() {
		s.tracker = dirty.NewTracker(a)
		cfg.Dirty = s.tracker
	}
	s.db, err = datablock.New(itemCap, o.ItemSize, nil, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	printVerbose("Opened store: %d blocks of %d slots, %s tombstones, policy %s\n",
		s.db.BlockCount(), s.db.BlockCapacity(), ts, tcfg.Policy)
	return s, nil
}

func (s *store) Close() error {
	return errors.Join(s.db.Free(), s.alloc.Close())
}

// stamp writes a record's own index into its payload so scans can check it.
func stamp(item []byte, idx uint64) {
	if len(item) >= 8 {
		binary.LittleEndian.PutUint64(item, idx)
		return
	}
	item[0] = byte(idx)
}

func stamped(item []byte, idx uint64) bool {
	if len(item) >= 8 {
		return binary.LittleEndian.Uint64(item) == idx
	}
	return item[0] == byte(idx)
}
