// Package provider implements allocators.Provider: the layer that supplies
// page-aligned blocks from an upstream allocators.PageSource and tracks
// which of them are currently outstanding.
package provider

import (
	"runtime"
	"sync/atomic"

	"github.com/vblocks/allocators"
)

// anchor statuses, packed into the low 2 bits of the Anchor word.
const (
	statusInitial uint64 = iota
	statusAllocating
	statusAllocated
	statusFailed
)

const (
	anchorStatusBits    = 2
	anchorHeadBits      = 18
	anchorAvailableBits = 18

	anchorHeadShift      = anchorStatusBits
	anchorAvailableShift = anchorHeadShift + anchorHeadBits

	// maxPageLimit is one past the largest index the 18-bit head field can
	// address.
	maxPageLimit = uint32(1) << anchorHeadBits
)

// anchor is the single CAS word driving the lock-free page provider: a
// status, the head of a LIFO free list threaded through descriptors.next,
// and a count of pages still available. Packed low to high: status(2),
// head(18), available(18), with the remaining high bits unused.
type anchor uint64

func packAnchor(status uint64, head, available uint32) anchor {
	return anchor(status | uint64(head)<<anchorHeadShift | uint64(available)<<anchorAvailableShift)
}

func (a anchor) status() uint64 { return uint64(a) & (1<<anchorStatusBits - 1) }
func (a anchor) head() uint32 {
	return uint32(uint64(a) >> anchorHeadShift & (1<<anchorHeadBits - 1))
}
func (a anchor) available() uint32 {
	return uint32(uint64(a) >> anchorAvailableShift & (1<<anchorAvailableBits - 1))
}

// descriptor is one entry in the free-list threaded through the page
// provider's fixed descriptor table.
type descriptor struct {
	next     uint32
	occupied bool
}

func defaultPageLimit(pageSize uint64) uint32 {
	limit := uint32((uint64(1) << 30) / pageSize)
	if limit == 0 {
		limit = 1
	}
	if limit >= maxPageLimit {
		limit = maxPageLimit - 1
	}
	return limit
}

// ConcurrentPage is a lock-free allocators.Provider: Provide and Return are
// safe to call concurrently from any number of goroutines without blocking,
// coordinated entirely through CAS updates to a single packed anchor word.
// It only ever hands out one page per Provide call.
//
// Unlike the descriptor table in the design this is grounded on, the
// descriptor array here lives in ordinary Go-managed memory rather than in
// a second self-fetched page range: Go's heap is already a managed region
// distinct from the PageSource's mapped pages, so there is nothing to gain
// by mapping a second page range just to hold it.
type ConcurrentPage struct {
	source allocators.PageSource
	limit  uint32

	anchor atomic.Uint64

	descriptors []descriptor
	superBlock  allocators.VirtualAddressRange
}

// NewConcurrentPage constructs a lock-free page provider drawing pages from
// source. limit caps the number of pages it will ever hand out; zero
// selects a default of roughly 1GiB worth of pages.
func NewConcurrentPage(source allocators.PageSource, limit uint32) *ConcurrentPage {
	if limit == 0 {
		limit = defaultPageLimit(source.PageSize())
	}
	if limit >= maxPageLimit {
		limit = maxPageLimit - 1
	}
	return &ConcurrentPage{source: source, limit: limit}
}

// GetBlockSize returns the upstream page size.
func (p *ConcurrentPage) GetBlockSize() uint64 { return p.source.PageSize() }

// Provide hands back one page. count must be exactly 1; this provider
// doesn't support multi-page requests.
func (p *ConcurrentPage) Provide(count uint32) (uintptr, error) {
	if count == 0 || count > p.limit {
		return 0, allocators.ErrInvalidInput
	}
	if count != 1 {
		return 0, allocators.ErrOperationNotSupported
	}

	for {
		old := anchor(p.anchor.Load())
		switch old.status() {
		case statusInitial:
			if err := p.initializeHeap(); err != nil {
				return 0, err
			}
			continue
		case statusAllocating:
			runtime.Gosched()
			continue
		case statusFailed:
			return 0, allocators.ErrOutOfMemory
		}

		if old.available() == 0 || old.head() == p.limit {
			return 0, allocators.ErrNoFreeBlock
		}

		next := p.descriptors[old.head()].next
		newAnchor := packAnchor(old.status(), next, old.available()-1)
		if p.anchor.CompareAndSwap(uint64(old), uint64(newAnchor)) {
			head := old.head()
			p.descriptors[head].occupied = true
			p.descriptors[head].next = 0
			addr := p.superBlock.Base + uintptr(head)*uintptr(p.source.PageSize())
			return addr, nil
		}
	}
}

// Return reclaims a page previously handed out by Provide.
func (p *ConcurrentPage) Return(ptr uintptr) error {
	if ptr == 0 || !p.superBlock.IsSet() {
		return allocators.ErrInvalidInput
	}

	distance := ptr - p.superBlock.Base
	index := uint32(distance / uintptr(p.source.PageSize()))
	if index >= p.limit || !p.descriptors[index].occupied {
		return allocators.ErrInvalidInput
	}
	p.descriptors[index].occupied = false

	for {
		old := anchor(p.anchor.Load())
		// Eagerly link the freed index ahead of the CAS so that if another
		// goroutine takes it immediately after, the descriptor is already
		// in a valid state.
		p.descriptors[index].next = old.head()
		newAnchor := packAnchor(old.status(), index, old.available()+1)
		if p.anchor.CompareAndSwap(uint64(old), uint64(newAnchor)) {
			return nil
		}
	}
}

func (p *ConcurrentPage) initializeHeap() error {
	old := anchor(p.anchor.Load())
	if old.status() != statusInitial {
		return nil
	}
	allocating := packAnchor(statusAllocating, old.head(), old.available())
	if !p.anchor.CompareAndSwap(uint64(old), uint64(allocating)) {
		return nil
	}

	superBlock, err := p.source.Fetch(p.limit)
	if err != nil {
		p.anchor.Store(uint64(packAnchor(statusFailed, 0, 0)))
		return allocators.ErrOutOfMemory
	}

	descriptors := make([]descriptor, p.limit)
	for i := range descriptors {
		descriptors[i] = descriptor{occupied: false, next: uint32(i + 1)}
	}
	p.descriptors = descriptors
	p.superBlock = superBlock

	p.anchor.Store(uint64(packAnchor(statusAllocated, 0, p.limit)))
	return nil
}
