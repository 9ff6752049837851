package datablock

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates bad construction arguments (zero item size,
	// negative block capacity, unknown tombstone mode).
	ErrInvalidConfig = errors.New("datablock: invalid configuration")

	// ErrInvariant is wrapped by every InvariantError.
	ErrInvariant = errors.New("datablock: invariant violation")

	// ErrLabelMode indicates an operation that does not exist in the data block's
	// partitioning mode (label allocation on an unlabeled data block or the reverse).
	ErrLabelMode = errors.New("datablock: operation not supported in this label mode")

	// ErrBadLabel indicates a negative label or a block outside the label's chain.
	ErrBadLabel = errors.New("datablock: invalid label")

	// ErrOccupied indicates a replayed index that already holds a record or
	// awaits reuse.
	ErrOccupied = errors.New("datablock: slot already occupied")
)

// InvariantError reports a programming error: an index outside the valid range,
// an iterator range that ends before it starts, a zero step. Operations raise it
// with panic; it is never returned as a value.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("datablock: %s: %s", e.Op, e.Msg)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

func invariant(cond bool, op, format string, args ...any) {
	if !cond {
		panic(&InvariantError{Op: op, Msg: fmt.Sprintf(format, args...)})
	}
}
