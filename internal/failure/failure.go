// Package failure holds the internal-only error taxonomy used by the block
// layer. These are never returned across the public allocator
// surface: strategy and provider code maps each one to the single public
// allocators.ErrInternal (or allocators.ErrOutOfMemory for allocation
// failures), per the propagation policy in SPEC_FULL.md.
package failure

import "errors"

var (
	ErrHeaderIsNull     = errors.New("failure: header is null")
	ErrInvalidSize      = errors.New("failure: invalid size")
	ErrInvalidAlignment = errors.New("failure: invalid alignment")
	ErrBlockTooSmall    = errors.New("failure: block too small")
	ErrAllocationFailed = errors.New("failure: allocation failed")
	ErrReleaseFailed    = errors.New("failure: release failed")
)
