// Package shmpage is an alternate allocators.PageSource backed by named
// system shared memory rather than an anonymous mapping, for callers who
// need the resulting pages to be attachable from another process (or
// reattached across a restart of this one). Each Fetch creates one
// independently keyed segment; Return detaches and destroys it.
package shmpage

import (
	"fmt"
	"hash/crc32"
	"sync"
	"sync/atomic"

	"github.com/lesismal/nbio/logging"

	"github.com/vblocks/allocators"
)

// segment is the per-range bookkeeping a platform attach implementation
// fills in: id is the OS handle (SysV shmid, or a Windows mapping handle
// boxed into a uint64), base is the attached address.
type segment struct {
	id   uint64
	base uintptr
}

func shmKey(name string) uintptr {
	return uintptr(crc32.ChecksumIEEE([]byte(name)))
}

// Source issues and reclaims named shared-memory segments. KeyPrefix
// identifies this Source's segments in the OS shared-memory namespace;
// concurrent Sources sharing a prefix will collide. The zero value is not
// usable; construct with New.
type Source struct {
	KeyPrefix string
	pageSize  uint64
	counter   uint64

	mu       sync.Mutex
	segments map[uintptr]segment
}

// New constructs a Source whose segment names are derived from keyPrefix.
func New(keyPrefix string, pageSize uint64) *Source {
	return &Source{
		KeyPrefix: keyPrefix,
		pageSize:  pageSize,
		segments:  make(map[uintptr]segment),
	}
}

// PageSize returns the page size this Source was configured with.
func (s *Source) PageSize() uint64 { return s.pageSize }

// Fetch creates and attaches a new shared-memory segment large enough for
// count pages.
func (s *Source) Fetch(count uint32) (allocators.VirtualAddressRange, error) {
	if count == 0 {
		return allocators.VirtualAddressRange{}, allocators.ErrInvalidInput
	}

	name := fmt.Sprintf("%s-%d", s.KeyPrefix, atomic.AddUint64(&s.counter, 1))
	size := uint64(count) * s.pageSize

	id, base, err := attach(name, size)
	if err != nil {
		return allocators.VirtualAddressRange{}, allocators.ErrOutOfMemory
	}

	s.mu.Lock()
	s.segments[base] = segment{id: id, base: base}
	s.mu.Unlock()

	return allocators.NewVirtualAddressRange(base, count), nil
}

// Return detaches and destroys the segment backing r.
func (s *Source) Return(r allocators.VirtualAddressRange) error {
	if !r.IsSet() {
		return allocators.ErrInvalidInput
	}

	s.mu.Lock()
	seg, ok := s.segments[r.Base]
	if ok {
		delete(s.segments, r.Base)
	}
	s.mu.Unlock()

	if !ok {
		return allocators.ErrInvalidInput
	}
	if err := detach(seg); err != nil {
		logging.Error("shmpage: detach of segment %d at %#x failed: %v", seg.id, seg.base, err)
		return allocators.ErrInternal
	}
	return nil
}
