package tier

import (
	"fmt"

	sigar "github.com/cloudfoundry/gosigar"
)

const (
	// DefaultThreshold is the PolicyThreshold cut-over: smaller requests stay fast.
	DefaultThreshold = 256 << 10

	// DefaultCapacityMaxSize bounds the arena file (64 GiB).
	DefaultCapacityMaxSize = int64(64) << 30
)

// Config selects placement and sizing for an Allocator.
type Config struct {
	// Policy decides which tier new allocations land in.
	Policy Policy

	// Threshold is the PolicyThreshold cut-over in bytes. Zero means DefaultThreshold.
	Threshold int

	// FastBudget caps fast-tier bytes in use. Zero means unlimited.
	FastBudget int64

	// CapacityDir is the directory holding the capacity-tier arena file. Required
	// for PolicyCapacity and PolicyThreshold; the capacity tier stays disabled when
	// empty.
	CapacityDir string

	// CapacityMaxSize bounds the arena file. Zero means DefaultCapacityMaxSize.
	CapacityMaxSize int64

	// RequireDAX makes New fail unless the arena file sits on a DAX-enabled
	// file system.
	RequireDAX bool
}

// DefaultConfig returns a fast-only configuration whose budget is half of the
// memory the system currently reports as free.
func DefaultConfig() Config {
	cfg := Config{
		Policy:          PolicyFast,
		Threshold:       DefaultThreshold,
		CapacityMaxSize: DefaultCapacityMaxSize,
	}
	if _, _, free, err := SystemMemory(); err == nil && free > 0 {
		cfg.FastBudget = int64(free / 2)
	}
	return cfg
}

func (c Config) withDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.CapacityMaxSize == 0 {
		c.CapacityMaxSize = DefaultCapacityMaxSize
	}
	return c
}

func (c Config) validate() error {
	switch c.Policy {
	case PolicyFast:
	case PolicyCapacity, PolicyThreshold:
		if c.CapacityDir == "" {
			return fmt.Errorf("%w: policy %s needs a capacity directory", ErrTierInit, c.Policy)
		}
	default:
		return fmt.Errorf("%w: unknown policy %d", ErrTierInit, c.Policy)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%w: negative threshold %d", ErrTierInit, c.Threshold)
	}
	if c.FastBudget < 0 {
		return fmt.Errorf("%w: negative fast budget %d", ErrTierInit, c.FastBudget)
	}
	if c.CapacityMaxSize < 0 {
		return fmt.Errorf("%w: negative capacity size %d", ErrTierInit, c.CapacityMaxSize)
	}
	return nil
}

// SystemMemory reports total, used and actually free system memory in bytes.
func SystemMemory() (total, used, free uint64, err error) {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil {
		return 0, 0, 0, err
	}
	return mem.Total, mem.Used, mem.ActualFree, nil
}
