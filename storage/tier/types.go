package tier

import "sync/atomic"

// Tier identifies the memory tier an allocation lives in.
type Tier uint8

const (
	// TierUnknown is reported for nil or foreign allocations.
	TierUnknown Tier = iota
	// FastTier is volatile heap memory.
	FastTier
	// CapacityTier is memory mapped from the arena file.
	CapacityTier
)

func (t Tier) String() string {
	switch t {
	case FastTier:
		return "fast"
	case CapacityTier:
		return "capacity"
	default:
		return "unknown"
	}
}

// Policy selects the tier for new allocations.
type Policy uint8

const (
	// PolicyFast places every allocation in the fast tier.
	PolicyFast Policy = iota
	// PolicyCapacity places every allocation in the capacity tier.
	PolicyCapacity
	// PolicyThreshold places allocations smaller than Config.Threshold in the
	// fast tier and everything else in the capacity tier.
	PolicyThreshold
)

func (p Policy) String() string {
	switch p {
	case PolicyFast:
		return "fast"
	case PolicyCapacity:
		return "capacity"
	case PolicyThreshold:
		return "threshold"
	default:
		return "invalid"
	}
}

// ParsePolicy maps a policy name back to its value.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "fast":
		return PolicyFast, true
	case "capacity":
		return PolicyCapacity, true
	case "threshold":
		return PolicyThreshold, true
	}
	return 0, false
}

// Mem is a tagged allocation: the bytes handed out plus the tier that owns them.
// A Mem must not be copied; pass the pointer.
type Mem struct {
	data   []byte // caller-visible bytes, len == requested size
	region []byte // full backing region (page-rounded mapping for the capacity tier)
	tier   Tier
	off    int64 // arena offset, capacity tier only
	freed  atomic.Bool
}

// Bytes returns the allocation's usable bytes.
func (m *Mem) Bytes() []byte { return m.data }

// Len returns the usable size in bytes.
func (m *Mem) Len() int { return len(m.data) }

// Tier reports the tier that produced the allocation.
func (m *Mem) Tier() Tier {
	if m == nil {
		return TierUnknown
	}
	return m.tier
}

// Region returns the whole backing region. For capacity-tier memory this is the
// page-aligned mapping that starts at the same address as Bytes.
func (m *Mem) Region() []byte { return m.region }

// Released reports whether Free (or a migrating Realloc) already released m.
func (m *Mem) Released() bool { return m.freed.Load() }
