package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CacaoGatto/RedisGraph/storage/datablock"
	"github.com/CacaoGatto/RedisGraph/storage/dirty"
	"github.com/CacaoGatto/RedisGraph/storage/tier"
)

type benchOptions struct {
	storeOptions
	Items       uint64
	DeleteEvery uint64
	Workers     int
	Sync        bool
}

var benchOpts = benchOptions{storeOptions: defaultStoreOptions()}

func init() {
	cmd := newBenchCmd()
	bindStoreFlags(cmd, &benchOpts.storeOptions)
	cmd.Flags().Uint64Var(&benchOpts.Items, "items", 1_000_000, "Records to allocate")
	cmd.Flags().Uint64Var(&benchOpts.DeleteEvery, "delete-every", 4, "Delete every Nth record (0 disables deletion)")
	cmd.Flags().IntVar(&benchOpts.Workers, "workers", 4, "Goroutines for parallel delete and scan")
	cmd.Flags().BoolVar(&benchOpts.Sync, "sync", false, "Flush capacity-tier blocks at the end")
	rootCmd.AddCommand(cmd)
}

func newBenchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Run an allocate, delete, scan and reuse workload",
		Long: `The bench command fills a data block with records, deletes a fraction
of them from several goroutines, scans the survivors with partitioned iterators,
re-allocates the freed slots and verifies the store's bookkeeping.

Example:
  slabctl bench --items 5000000 --delete-every 3
  slabctl bench --tombstone bitmap --workers 8
  slabctl bench --policy capacity --capacity-dir /mnt/pmem --sync`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.Context(), benchOpts)
		},
	}
}

type benchReport struct {
	Items    uint64 `json:"items"`
	Deleted  uint64 `json:"deleted"`
	Scanned  uint64 `json:"scanned"`
	Reused   uint64 `json:"reused"`
	Blocks   int    `json:"blocks"`
	Capacity uint64 `json:"capacity"`
	Grew     bool   `json:"grew_during_reuse"`

	AllocTime  time.Duration `json:"alloc_ns"`
	DeleteTime time.Duration `json:"delete_ns"`
	ScanTime   time.Duration `json:"scan_ns"`
	ReuseTime  time.Duration `json:"reuse_ns"`
	SyncTime   time.Duration `json:"sync_ns,omitempty"`

	Store datablock.Stats `json:"store"`
	Tier  tier.Stats      `json:"tier"`
}

func runBench(ctx context.Context, o benchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", o.Workers)
	}
	s, err := o.open(0, false)
	if err != nil {
		return err
	}
	defer s.Close()
	db := s.db
	var rep benchReport

	start := time.Now()
	for range o.Items {
		item, idx, err := db.AllocateItem()
		if err != nil {
			return fmt.Errorf("allocate record %d: %w", db.ItemCount(), err)
		}
		stamp(item, idx)
	}
	rep.AllocTime = time.Since(start)
	rep.Items = db.ItemCount()
	printVerbose("Allocated %s records in %s\n", counts.Sprint(rep.Items), rep.AllocTime)

	if o.DeleteEvery > 0 {
		start = time.Now()
		var wg sync.WaitGroup
		stride := o.DeleteEvery * uint64(o.Workers)
		for w := range o.Workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for idx := uint64(w) * o.DeleteEvery; idx < o.Items; idx += stride {
					db.DeleteItem(idx)
				}
			}()
		}
		wg.Wait()
		rep.DeleteTime = time.Since(start)
		rep.Deleted = db.DeletedItemsCount()
		printVerbose("Deleted %s records in %s\n", counts.Sprint(rep.Deleted), rep.DeleteTime)
	}

	start = time.Now()
	var scanned, corrupt atomic.Uint64
	var wg sync.WaitGroup
	for _, it := range db.Partition(o.Workers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, idx, ok := it.Next()
				if !ok {
					return
				}
				if !stamped(item, idx) {
					corrupt.Add(1)
				}
				scanned.Add(1)
			}
		}()
	}
	wg.Wait()
	rep.ScanTime = time.Since(start)
	rep.Scanned = scanned.Load()
	if n := corrupt.Load(); n > 0 {
		return fmt.Errorf("scan found %d records with foreign payloads", n)
	}
	if rep.Scanned != db.ItemCount() {
		return fmt.Errorf("scan yielded %d records, store holds %d", rep.Scanned, db.ItemCount())
	}

	capBefore := db.ItemCap()
	start = time.Now()
	for range rep.Deleted {
		item, idx, err := db.AllocateItem()
		if err != nil {
			return fmt.Errorf("reuse: %w", err)
		}
		stamp(item, idx)
		rep.Reused++
	}
	rep.ReuseTime = time.Since(start)
	rep.Grew = db.ItemCap() != capBefore

	if err := db.Verify(); err != nil {
		return err
	}
	if o.Sync && s.tracker != nil {
		start = time.Now()
		if err := db.Sync(ctx, dirty.FlushFull); err != nil {
			return err
		}
		rep.SyncTime = time.Since(start)
	}

	rep.Blocks = db.BlockCount()
	rep.Capacity = db.ItemCap()
	rep.Store = db.Stats()
	rep.Tier = s.alloc.Stats()

	if jsonOut {
		return printJSON(rep)
	}
	printBenchReport(rep)
	return nil
}

func rate(n uint64, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return counts.Sprintf("%.0f/s", float64(n)/d.Seconds())
}

func printBenchReport(r benchReport) {
	printHeader("Benchmark")
	printField("Records", "%s", counts.Sprint(r.Items))
	printField("Allocate", "%s (%s)", r.AllocTime.Round(time.Microsecond), rate(r.Items, r.AllocTime))
	if r.Deleted > 0 {
		printField("Delete", "%s records in %s (%s)", counts.Sprint(r.Deleted),
			r.DeleteTime.Round(time.Microsecond), rate(r.Deleted, r.DeleteTime))
	}
	printField("Scan", "%s records in %s (%s)", counts.Sprint(r.Scanned),
		r.ScanTime.Round(time.Microsecond), rate(r.Scanned, r.ScanTime))
	if r.Reused > 0 {
		growth := paint(okStyle, "no growth")
		if r.Grew {
			growth = paint(warnStyle, "grew")
		}
		printField("Reuse", "%s records in %s, %s", counts.Sprint(r.Reused),
			r.ReuseTime.Round(time.Microsecond), growth)
	}
	if r.SyncTime > 0 {
		printField("Sync", "%s", r.SyncTime.Round(time.Microsecond))
	}

	printHeader("Store")
	printField("Blocks", "%s x %s slots", counts.Sprint(r.Blocks), counts.Sprint(r.Store.BlockCapacity))
	printField("Capacity", "%s records", counts.Sprint(r.Capacity))
	printField("Memory", "%s", humanize.IBytes(uint64(r.Store.Bytes)))
	printField("Verify", "%s", paint(okStyle, "ok"))
	printVerbose("  %s\n  %s\n", r.Store, r.Tier)
}
