package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CacaoGatto/RedisGraph/internal/mmfile"
	"github.com/CacaoGatto/RedisGraph/storage/tier"
)

var (
	tierRequireDAX bool
	tierProbeSize  string
)

func init() {
	cmd := newTierCmd()
	cmd.Flags().BoolVar(&tierRequireDAX, "require-dax", false, "Fail unless the directory is DAX-enabled")
	cmd.Flags().StringVar(&tierProbeSize, "probe-size", "1MiB", "Size of the test allocation made in the capacity tier")
	rootCmd.AddCommand(cmd)
}

func newTierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tier [capacity-dir]",
		Short: "Report memory tiers and probe a capacity directory",
		Long: `The tier command reports system memory and the default fast tier
budget. Given a directory, it opens a capacity tier arena there, reports
whether the file system is DAX-enabled, and makes, grows, flushes and
releases a probe allocation.

Example:
  slabctl tier
  slabctl tier /mnt/pmem0 --require-dax`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runTier(dir, tierRequireDAX, tierProbeSize)
		},
	}
}

type tierReport struct {
	TotalMemory uint64 `json:"total_memory"`
	UsedMemory  uint64 `json:"used_memory"`
	FreeMemory  uint64 `json:"free_memory"`
	FastBudget  int64  `json:"default_fast_budget"`
	PageSize    int    `json:"page_size"`
	MmapSupport bool   `json:"mmap_supported"`

	CapacityDir string      `json:"capacity_dir,omitempty"`
	Probe       *tier.Stats `json:"probe,omitempty"`
}

func runTier(dir string, requireDAX bool, probeSize string) error {
	var rep tierReport
	total, used, free, err := tier.SystemMemory()
	if err != nil {
		printVerbose("system memory unavailable: %v\n", err)
	}
	rep.TotalMemory, rep.UsedMemory, rep.FreeMemory = total, used, free
	rep.FastBudget = tier.DefaultConfig().FastBudget
	rep.PageSize = mmfile.PageSize()
	rep.MmapSupport = mmfile.Supported

	if dir != "" {
		size, err := humanize.ParseBytes(probeSize)
		if err != nil {
			return fmt.Errorf("invalid probe size: %w", err)
		}
		st, err := probeCapacity(dir, requireDAX, int(size))
		if err != nil {
			return err
		}
		rep.CapacityDir = dir
		rep.Probe = &st
	}

	if jsonOut {
		return printJSON(rep)
	}

	printHeader("Memory")
	printField("Total", "%s", humanize.IBytes(rep.TotalMemory))
	printField("Used", "%s", humanize.IBytes(rep.UsedMemory))
	printField("Free", "%s", humanize.IBytes(rep.FreeMemory))
	budget := "unlimited"
	if rep.FastBudget > 0 {
		budget = humanize.IBytes(uint64(rep.FastBudget))
	}
	printField("Fast budget", "%s", budget)
	printField("Page size", "%s", humanize.IBytes(uint64(rep.PageSize)))

	if rep.Probe != nil {
		printHeader("Capacity Tier")
		printField("Directory", "%s", rep.CapacityDir)
		dax := paint(warnStyle, "no (page cache backed)")
		if rep.Probe.CapacityDAX {
			dax = paint(okStyle, "yes")
		}
		printField("DAX", "%s", dax)
		printField("Probe", "%s in %d region(s), arena %s",
			humanize.IBytes(uint64(rep.Probe.CapacityBytes)), rep.Probe.CapacityRegions,
			humanize.IBytes(uint64(rep.Probe.ArenaSize)))
		printField("Status", "%s", paint(okStyle, "ok"))
	}
	return nil
}

// probeCapacity opens a capacity tier in dir, writes half of an allocation,
// grows it in place of the original, and flushes it. It returns the allocator's
// stats taken before the arena is removed.
func probeCapacity(dir string, requireDAX bool, size int) (tier.Stats, error) {
	if !mmfile.Supported {
		return tier.Stats{}, fmt.Errorf("capacity tier needs mmap support on this platform")
	}
	a, err := tier.New(tier.Config{
		Policy:      tier.PolicyCapacity,
		CapacityDir: dir,
		RequireDAX:  requireDAX,
	})
	if err != nil {
		return tier.Stats{}, err
	}
	defer a.Close()

	half := max(size/2, 1)
	m, err := a.AllocZeroed(1, half)
	if err != nil {
		return tier.Stats{}, err
	}
	for i := range m.Bytes() {
		m.Bytes()[i] = byte(i)
	}
	m, err = a.Realloc(m, max(size, half))
	if err != nil {
		return tier.Stats{}, fmt.Errorf("grow probe: %w", err)
	}
	b := m.Bytes()
	for i := range b {
		if i < half && b[i] != byte(i) {
			_ = a.Free(m)
			return tier.Stats{}, fmt.Errorf("grow probe: byte %d lost across reallocation", i)
		}
		b[i] = byte(i)
	}
	if err := a.Sync(); err != nil {
		return tier.Stats{}, fmt.Errorf("flush probe: %w", err)
	}
	printVerbose("Probe of %s written to %s\n", humanize.IBytes(uint64(size)), a.Stats().ArenaPath)
	st := a.Stats()
	if err := a.Free(m); err != nil {
		return tier.Stats{}, err
	}
	return st, nil
}
