package tier

import "errors"

var (
	// ErrNoSpace indicates that the selected tier could not satisfy an allocation.
	ErrNoSpace = errors.New("tier: out of memory")

	// ErrTierInit indicates that a memory tier could not be brought up.
	ErrTierInit = errors.New("tier: initialization failed")

	// ErrBadMem indicates a nil, foreign, or already released allocation.
	ErrBadMem = errors.New("tier: invalid or released allocation")

	// ErrBadSize indicates a non-positive or overflowing allocation size.
	ErrBadSize = errors.New("tier: invalid allocation size")

	// ErrClosed indicates use of an allocator after Close.
	ErrClosed = errors.New("tier: allocator closed")
)
