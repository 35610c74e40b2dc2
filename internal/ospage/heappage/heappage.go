// Package heappage is an allocators.PageSource backed by ordinary Go heap
// memory rather than an OS mapping, for tests and short-lived allocators
// where paying for a real mmap isn't worth it. Fetched ranges stay pinned
// (kept reachable in a map) until they are passed to Return, so the
// garbage collector never reclaims memory a caller still thinks it owns.
package heappage

import (
	"sync"
	"unsafe"

	"github.com/vblocks/allocators"
)

// Source hands out page-aligned slices of the Go heap.
type Source struct {
	pageSize uint64

	mu      sync.Mutex
	regions map[uintptr][]byte
}

// New constructs a Source using pageSize as its page granularity.
func New(pageSize uint64) *Source {
	return &Source{
		pageSize: pageSize,
		regions:  make(map[uintptr][]byte),
	}
}

// PageSize returns the page size this Source was configured with.
func (s *Source) PageSize() uint64 { return s.pageSize }

// Fetch allocates count pages worth of heap memory, padded so the returned
// base is aligned to pageSize.
func (s *Source) Fetch(count uint32) (allocators.VirtualAddressRange, error) {
	if count == 0 {
		return allocators.VirtualAddressRange{}, allocators.ErrInvalidInput
	}

	want := uint64(count) * s.pageSize
	buf := make([]byte, want+s.pageSize)
	raw := uintptr(unsafe.Pointer(&buf[0]))
	aligned := allocators.AlignUp(uint64(raw), s.pageSize)
	base := uintptr(aligned)

	s.mu.Lock()
	s.regions[base] = buf
	s.mu.Unlock()

	return allocators.NewVirtualAddressRange(base, count), nil
}

// Return releases a range previously returned by Fetch, unpinning its
// backing slice.
func (s *Source) Return(r allocators.VirtualAddressRange) error {
	if !r.IsSet() {
		return allocators.ErrInvalidInput
	}

	s.mu.Lock()
	_, ok := s.regions[r.Base]
	if ok {
		delete(s.regions, r.Base)
	}
	s.mu.Unlock()

	if !ok {
		return allocators.ErrInvalidInput
	}
	return nil
}
