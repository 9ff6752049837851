package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/CacaoGatto/RedisGraph/storage/block"
	"github.com/CacaoGatto/RedisGraph/storage/datablock"
)

type scanOptions struct {
	storeOptions
	Items       uint64
	Labels      int
	DeleteEvery uint64
	Label       int
	Begin       uint64
	End         uint64
}

var scanOpts = scanOptions{storeOptions: defaultStoreOptions(), Label: -1, End: math.MaxUint64}

func init() {
	cmd := newScanCmd()
	bindStoreFlags(cmd, &scanOpts.storeOptions)
	cmd.Flags().Uint64Var(&scanOpts.Items, "items", 100_000, "Records to allocate across all labels")
	cmd.Flags().IntVar(&scanOpts.Labels, "labels", 4, "Number of labels records are spread over")
	cmd.Flags().Uint64Var(&scanOpts.DeleteEvery, "delete-every", 0, "Delete every Nth record (0 disables deletion)")
	cmd.Flags().IntVar(&scanOpts.Label, "label", -1, "Scan only this label")
	cmd.Flags().Uint64Var(&scanOpts.Begin, "begin", 0, "First record index of a --label range scan")
	cmd.Flags().Uint64Var(&scanOpts.End, "end", math.MaxUint64, "End (exclusive) of a --label range scan")
	rootCmd.AddCommand(cmd)
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run label-partitioned allocation and label scans",
		Long: `The scan command builds a label-partitioned data block, spreads records
round-robin over the labels and scans each label's block chain. With --label
only that label is scanned, optionally restricted to [--begin, --end).

Example:
  slabctl scan --items 1000000 --labels 8
  slabctl scan --labels 3 --label 1 --begin 16384 --end 65536
  slabctl scan --delete-every 5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(scanOpts)
		},
	}
}

type labelReport struct {
	Label   int    `json:"label"`
	Records uint64 `json:"records"`
	Scanned uint64 `json:"scanned"`
	Blocks  int    `json:"blocks"`
	First   uint64 `json:"first,omitempty"`
	Last    uint64 `json:"last,omitempty"`
}

type scanReport struct {
	Items    uint64          `json:"items"`
	Deleted  uint64          `json:"deleted"`
	Labels   []labelReport   `json:"labels"`
	ScanTime time.Duration   `json:"scan_ns"`
	Store    datablock.Stats `json:"store"`
}

func runScan(o scanOptions) error {
	if o.Labels < 1 {
		return fmt.Errorf("labels must be positive, got %d", o.Labels)
	}
	if o.Label >= o.Labels {
		return fmt.Errorf("label %d out of range [0, %d)", o.Label, o.Labels)
	}
	if o.End < o.Begin {
		return fmt.Errorf("range end %d before begin %d", o.End, o.Begin)
	}
	s, err := o.open(0, true)
	if err != nil {
		return err
	}
	defer s.Close()
	db := s.db

	ids := make([]uint64, 0, o.Items)
	for i := range o.Items {
		item, idx, err := db.AllocateItemLabel(int(i % uint64(o.Labels)))
		if err != nil {
			return fmt.Errorf("allocate record %d: %w", i, err)
		}
		stamp(item, idx)
		ids = append(ids, idx)
	}
	var rep scanReport
	if o.DeleteEvery > 0 {
		for i := uint64(0); i < uint64(len(ids)); i += o.DeleteEvery {
			db.DeleteItem(ids[i])
		}
		rep.Deleted = db.DeletedItemsCount()
	}
	rep.Items = db.ItemCount()

	blocks := make(map[int]int)
	for bi := range db.BlockCount() {
		if l := db.BlockLabel(bi); l != block.Unassigned {
			blocks[l]++
		}
	}

	start := time.Now()
	for label := range o.Labels {
		if o.Label >= 0 && label != o.Label {
			continue
		}
		var it *datablock.Iterator
		if o.Label >= 0 {
			it = db.ScanLabelRange(label, o.Begin, o.End)
		} else {
			it = db.ScanLabel(label)
		}
		lr := labelReport{Label: label, Records: db.LabelItemCount(label), Blocks: blocks[label]}
		for {
			item, idx, ok := it.Next()
			if !ok {
				break
			}
			if !stamped(item, idx) {
				return fmt.Errorf("label %d: record %d holds a foreign payload", label, idx)
			}
			if db.BlockLabel(int(idx/uint64(db.BlockCapacity()))) != label {
				return fmt.Errorf("label %d: scan reached record %d of another label", label, idx)
			}
			if lr.Scanned == 0 {
				lr.First = idx
			}
			lr.Last = idx
			lr.Scanned++
		}
		rep.Labels = append(rep.Labels, lr)
	}
	rep.ScanTime = time.Since(start)

	if err := db.Verify(); err != nil {
		return err
	}
	rep.Store = db.Stats()

	if jsonOut {
		return printJSON(rep)
	}
	printScanReport(rep)
	return nil
}

func printScanReport(r scanReport) {
	printHeader("Label Scan")
	printField("Records", "%s live, %s deleted", counts.Sprint(r.Items), counts.Sprint(r.Deleted))
	printField("Scan time", "%s", r.ScanTime.Round(time.Microsecond))
	for _, lr := range r.Labels {
		span := "-"
		if lr.Scanned > 0 {
			span = counts.Sprintf("%d..%d", lr.First, lr.Last)
		}
		printField(fmt.Sprintf("Label %d", lr.Label), "%s of %s records in %s blocks, ids %s",
			counts.Sprint(lr.Scanned), counts.Sprint(lr.Records), counts.Sprint(lr.Blocks), span)
	}
	printField("Unassigned blocks", "%d", r.Store.UnassignedBlocks)
	printField("Verify", "%s", paint(okStyle, "ok"))
}
