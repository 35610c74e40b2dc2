// Package ospage is the default allocators.PageSource: it maps and unmaps
// anonymous, page-granular virtual memory ranges directly from the
// operating system, the same role the teacher package's mmap.Memory played
// for a single file-backed region, generalized here to many independently
// sized, independently returnable ranges.
package ospage

import (
	"sync"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	"github.com/lesismal/nbio/logging"
	"golang.org/x/sys/unix"

	"github.com/vblocks/allocators"
)

// Source fetches and returns page-aligned ranges backed by anonymous OS
// mappings. The zero value is not usable; construct with New.
type Source struct {
	pageSize uint64

	mu      sync.Mutex
	regions map[uintptr]mmap.MMap
}

// New constructs a Source using the platform's native page size.
func New() *Source {
	return &Source{
		pageSize: uint64(unix.Getpagesize()),
		regions:  make(map[uintptr]mmap.MMap),
	}
}

// PageSize returns the OS page size in bytes.
func (s *Source) PageSize() uint64 { return s.pageSize }

// Fetch maps count contiguous, zero-filled pages and returns the resulting
// range. The mapping is anonymous: it has no file backing and is not shared
// with any other process.
func (s *Source) Fetch(count uint32) (allocators.VirtualAddressRange, error) {
	if count == 0 {
		return allocators.VirtualAddressRange{}, allocators.ErrInvalidInput
	}

	length := int(uint64(count) * s.pageSize)
	region, err := mmap.MapRegion(nil, length, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return allocators.VirtualAddressRange{}, allocators.ErrOutOfMemory
	}

	base := uintptr(unsafe.Pointer(&region[0]))

	s.mu.Lock()
	s.regions[base] = region
	s.mu.Unlock()

	return allocators.NewVirtualAddressRange(base, count), nil
}

// Return unmaps a range previously returned by Fetch. Returning a range not
// currently outstanding, or a range already returned, fails with
// ErrInvalidInput.
func (s *Source) Return(r allocators.VirtualAddressRange) error {
	if !r.IsSet() {
		return allocators.ErrInvalidInput
	}

	s.mu.Lock()
	region, ok := s.regions[r.Base]
	if ok {
		delete(s.regions, r.Base)
	}
	s.mu.Unlock()

	if !ok {
		return allocators.ErrInvalidInput
	}
	if err := region.Unmap(); err != nil {
		logging.Error("ospage: unmap of range at %#x failed: %v", r.Base, err)
		return allocators.ErrInternal
	}
	return nil
}
