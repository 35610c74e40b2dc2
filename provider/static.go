package provider

import (
	"unsafe"

	"github.com/vblocks/allocators"
)

// Static is an allocators.Provider backed by a single reserved block of
// Go-managed memory instead of anything fetched from a PageSource. It's
// useful for running a Strategy over a caller-sized arena without touching
// the OS at all — tests, embedded-style fixed budgets, or arenas whose
// lifetime is scoped to a single call stack.
//
// Static only ever has one block: Provide hands it out once and fails with
// ErrNoFreeBlock until a matching Return checks it back in. There is no
// page size in play, so GetBlockSize reports the arena's configured size
// directly.
type Static struct {
	block  []byte
	base   uintptr
	issued bool
}

// NewStatic reserves a size-byte arena.
func NewStatic(size uint64) *Static {
	block := make([]byte, size)
	return &Static{
		block: block,
		base:  uintptr(unsafe.Pointer(&block[0])),
	}
}

// GetBlockSize returns the arena's fixed size.
func (s *Static) GetBlockSize() uint64 { return uint64(len(s.block)) }

// Provide returns the arena's base address. count must be exactly 1, and
// the arena must not already be checked out.
func (s *Static) Provide(count uint32) (uintptr, error) {
	if count != 1 {
		return 0, allocators.ErrInvalidInput
	}
	if s.issued {
		return 0, allocators.ErrNoFreeBlock
	}
	s.issued = true
	return s.base, nil
}

// Return accepts back the arena's base address; any other pointer is
// rejected.
func (s *Static) Return(ptr uintptr) error {
	if ptr != s.base {
		return allocators.ErrInvalidInput
	}
	s.issued = false
	return nil
}
