package provider

import (
	"github.com/lesismal/nbio/logging"

	"github.com/vblocks/allocators"
	"github.com/vblocks/allocators/internal/bitmap"
)

// Page is an allocators.Provider for single-threaded use: it tracks
// outstanding blocks in a linked list of embedded bitmap.Maps, one page
// each, rather than paying for the synchronization ConcurrentPage needs.
// Provide and Return are not safe to call concurrently.
type Page struct {
	source allocators.PageSource
	head   *bitmap.Map
}

// NewPage constructs a single-threaded page provider drawing pages from
// source.
func NewPage(source allocators.PageSource) *Page {
	return &Page{source: source}
}

// GetBlockSize returns the upstream page size.
func (p *Page) GetBlockSize() uint64 { return p.source.PageSize() }

// Provide fetches count pages from the upstream source and records the
// resulting range for later Return.
func (p *Page) Provide(count uint32) (uintptr, error) {
	if count == 0 {
		return 0, allocators.ErrInvalidInput
	}

	if p.head == nil || p.head.IsFull() {
		if err := p.growTrackingTable(); err != nil {
			return 0, err
		}
	}

	r, err := p.source.Fetch(count)
	if err != nil {
		return 0, allocators.ErrOutOfMemory
	}

	if !p.head.Insert(uint64(r.Base), r) {
		logging.Error("page: tracking table rejected fresh range at %#x", r.Base)
		_ = p.source.Return(r)
		return 0, allocators.ErrInternal
	}

	return r.Base, nil
}

// Return releases a range previously returned by Provide.
func (p *Page) Return(ptr uintptr) error {
	if ptr == 0 {
		return allocators.ErrInvalidInput
	}

	key := uint64(ptr)
	for itr := p.head; itr != nil; itr = itr.GetNext() {
		if r, ok := itr.Take(key); ok {
			if err := p.source.Return(r); err != nil {
				logging.Error("page: upstream return of %#x failed: %v", ptr, err)
				return allocators.ErrInternal
			}
			return nil
		}
	}

	return allocators.ErrInvalidInput
}

// growTrackingTable fetches one fresh page to host a new bitmap.Map and
// chains it ahead of the current head.
func (p *Page) growTrackingTable() error {
	r, err := p.source.Fetch(1)
	if err != nil {
		return allocators.ErrOutOfMemory
	}

	next := bitmap.New(r.Base, p.source.PageSize())
	next.SetNext(p.head)
	p.head = next
	return nil
}
