package tier

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats is a point-in-time view of allocator usage.
type Stats struct {
	Policy Policy

	FastAllocs int64 // live fast-tier allocations
	FastBytes  int64 // live fast-tier bytes
	FastBudget int64 // 0 = unlimited

	CapacityEnabled bool
	CapacityDAX     bool
	CapacityRegions int   // live capacity-tier regions
	CapacityBytes   int64 // live capacity-tier bytes (page-rounded)
	ArenaSize       int64 // bytes reserved in the arena file
	ArenaPath       string

	Migrations int64 // Realloc calls that crossed tiers
}

// Stats returns current usage counters.
func (a *Allocator) Stats() Stats {
	s := Stats{
		Policy:     a.cfg.Policy,
		FastAllocs: a.fast.allocs.Load(),
		FastBytes:  a.fast.used.Load(),
		FastBudget: a.fast.budget,
		Migrations: a.migrations.Load(),
	}
	if a.capacity != nil {
		s.CapacityEnabled = true
		s.CapacityDAX = a.capacity.dax
		s.ArenaPath = a.capacity.path
		s.CapacityRegions, s.CapacityBytes, s.ArenaSize = a.capacity.stats()
	}
	return s
}

func (s Stats) String() string {
	budget := "unlimited"
	if s.FastBudget > 0 {
		budget = humanize.IBytes(uint64(s.FastBudget))
	}
	out := fmt.Sprintf("policy=%s fast=%s in %d allocs (budget %s)",
		s.Policy, humanize.IBytes(uint64(s.FastBytes)), s.FastAllocs, budget)
	if s.CapacityEnabled {
		out += fmt.Sprintf(" capacity=%s in %d regions (arena %s, dax=%t)",
			humanize.IBytes(uint64(s.CapacityBytes)), s.CapacityRegions,
			humanize.IBytes(uint64(s.ArenaSize)), s.CapacityDAX)
	}
	if s.Migrations > 0 {
		out += fmt.Sprintf(" migrations=%d", s.Migrations)
	}
	return out
}
