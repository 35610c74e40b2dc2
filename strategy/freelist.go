package strategy

import (
	"sync"
	"unsafe"

	"github.com/lesismal/nbio/logging"

	"github.com/vblocks/allocators"
	"github.com/vblocks/allocators/internal/block"
)

// ownedBlock records one whole block fetched from the provider, so it can
// be located again (for Return's bounds check) and handed back once every
// byte of it has been coalesced back into a single free span. Unlike the
// design this is grounded on, this bookkeeping lives in an ordinary Go
// slice rather than a second header self-hosted in the block itself — Go's
// heap already gives FreeList a place to keep metadata that isn't the
// caller's memory.
type ownedBlock struct {
	base uintptr
	size uint64
}

// FreeList is an allocators.Strategy that carves caller-sized allocations
// out of one or more provider blocks, tracking freed spans in an intrusive
// singly-linked free list and coalescing adjacent spans back together on
// Return. Unlike Bump, it supports per-object Return; unlike a general
// heap allocator, all of its blocks come from the same fixed-size Provider
// and share one alignment.
//
// Find and Return share a single mutex: unlike the lock-free provider and
// bump strategy, splicing nodes into and out of a singly-linked free list
// under concurrent mutation isn't amenable to a lock-free CAS loop without
// hazard pointers or similar, so FreeList trades some throughput for a
// straightforward, obviously-correct implementation.
type FreeList struct {
	provider allocators.Provider

	alignment      uint64
	targetSize     uint64
	sizeLimitMode  allocators.SizeLimitMode
	growWhenFull   allocators.GrowPolicy
	searchStrategy allocators.SearchStrategy

	mu    sync.Mutex
	owned []ownedBlock
	free  *block.Header
}

// NewFreeList constructs a free-list strategy drawing blocks from provider,
// configured by opts (Alignment, Size, SizeLimitMode, GrowWhenFull, and
// Search are read; the remaining fields are ignored).
func NewFreeList(provider allocators.Provider, opts allocators.Options) *FreeList {
	alignment := opts.Alignment
	if alignment == 0 {
		alignment = uint64(allocators.MinimumAlignment)
	}
	return &FreeList{
		provider:       provider,
		alignment:      alignment,
		targetSize:     opts.Size,
		sizeLimitMode:  opts.SizeLimitMode,
		growWhenFull:   opts.GrowWhenFull,
		searchStrategy: opts.Search,
	}
}

// AcceptsAlignment reports that FreeList honors caller-specified alignment.
func (f *FreeList) AcceptsAlignment() bool { return true }

// AcceptsReturn reports that FreeList supports per-object Return.
func (f *FreeList) AcceptsReturn() bool { return true }

// FindSize is Find(allocators.NewLayout(size)).
func (f *FreeList) FindSize(size uint64) (uintptr, error) {
	return f.Find(allocators.NewLayout(size))
}

// logicalBlockSize reconciles the configured target Size against the raw
// bytes a single Provide(1) call actually returns: SizeLimitMode decides
// how Size interacts with header overhead, and the result is clamped to
// rawSize since the provider makes no promise of a larger contiguous span.
func (f *FreeList) logicalBlockSize(rawSize uint64) uint64 {
	var want uint64
	if f.sizeLimitMode == allocators.NoMoreThanSizeBytes {
		want = allocators.AlignDown(f.targetSize, f.alignment)
	} else {
		want = allocators.AlignUp(f.targetSize+block.HeaderSize, f.alignment)
	}
	if want == 0 || want > rawSize {
		want = rawSize
	}
	return want
}

// Find locates a free span at least layout.Size+header bytes, aligned to
// layout.Alignment, splits off the remainder if any is left, and returns
// the address of the usable payload.
func (f *FreeList) Find(layout allocators.Layout) (uintptr, error) {
	if !layout.IsValid() {
		return 0, allocators.ErrInvalidInput
	}

	requestSize := allocators.AlignUp(layout.Size+block.HeaderSize, layout.Alignment)
	if requestSize > f.provider.GetBlockSize() {
		return 0, allocators.ErrSizeRequestTooLarge
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		var pair *block.Pair
		if f.free != nil {
			var err error
			pair, err = f.search(f.free, requestSize)
			if err != nil {
				logging.Error("freelist: search(%d) on corrupt free list: %v", requestSize, err)
				return 0, allocators.ErrInternal
			}
		}

		if pair == nil {
			// The first block is always fetched; the grow policy only
			// governs whether further blocks are.
			if f.growWhenFull != allocators.GrowStorage && len(f.owned) > 0 {
				return 0, allocators.ErrReachedMemoryLimit
			}
			if err := f.growByOneBlock(); err != nil {
				return 0, err
			}
			continue
		}

		// Split leaves pair.Header.Next pointing at the newly split-off
		// remainder when a split occurred, and unchanged (still the free
		// list's original next pointer) when the block was too small to
		// split. Either way it's exactly the value that should replace
		// pair.Header in the free list.
		if _, err := block.Split(pair.Header, requestSize, layout.Alignment); err != nil {
			logging.Error("freelist: split(%d) failed: %v", requestSize, err)
			return 0, allocators.ErrInternal
		}

		next := pair.Header.Next
		if pair.Prev == nil {
			f.free = next
		} else {
			pair.Prev.Next = next
		}
		pair.Header.Next = nil

		return uintptr(block.GetPayload(pair.Header)), nil
	}
}

func (f *FreeList) search(head *block.Header, size uint64) (*block.Pair, error) {
	switch f.searchStrategy {
	case allocators.BestFit:
		return block.FindBestFit(head, size)
	case allocators.WorstFit:
		return block.FindWorstFit(head, size)
	default:
		return block.FindFirstFit(head, size)
	}
}

// growByOneBlock fetches one new provider block and prepends it to the
// free list as a single free span covering its whole usable size.
func (f *FreeList) growByOneBlock() error {
	base, err := f.provider.Provide(1)
	if err != nil {
		return allocators.ErrOutOfMemory
	}

	rawSize := f.provider.GetBlockSize()
	logical := f.logicalBlockSize(rawSize)

	f.owned = append(f.owned, ownedBlock{base: base, size: logical})

	fresh := block.Create(base, logical, f.free)
	f.free = fresh
	return nil
}

// Return releases a previously allocated pointer back to the free list,
// coalescing it with any adjacent free spans. If the resulting coalesced
// span exactly reconstitutes an owned block, that block is returned to the
// provider.
func (f *FreeList) Return(ptr uintptr) error {
	if ptr == 0 {
		return allocators.ErrInvalidInput
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.ownerOf(ptr); !ok {
		return allocators.ErrInvalidInput
	}

	h := block.GetHeader(unsafe.Pointer(ptr))

	if f.free == nil {
		h.Next = nil
		f.free = h
	} else {
		prior, err := block.FindPrior(f.free, h)
		if err != nil {
			logging.Error("freelist: findPrior during return of %#x: %v", ptr, err)
			return allocators.ErrInternal
		}
		if prior != nil {
			h.Next = prior.Next
			prior.Next = h
			if err := block.Coalesce(prior); err != nil {
				logging.Error("freelist: coalesce after return of %#x: %v", ptr, err)
				return allocators.ErrInternal
			}
		} else {
			h.Next = f.free
			f.free = h
			if err := block.Coalesce(f.free); err != nil {
				logging.Error("freelist: coalesce after return of %#x: %v", ptr, err)
				return allocators.ErrInternal
			}
		}
	}

	return f.reclaimFullyFreeBlocks()
}

// Reset returns every block acquired since construction, or the last
// Reset, back to the provider.
func (f *FreeList) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ob := range f.owned {
		if err := f.provider.Return(ob.base); err != nil {
			logging.Error("freelist: reset failed to return block %#x: %v", ob.base, err)
			return allocators.ErrInternal
		}
	}
	f.owned = nil
	f.free = nil
	return nil
}

// ownerOf returns the owned block whose payload range contains ptr.
func (f *FreeList) ownerOf(ptr uintptr) (ownedBlock, bool) {
	for _, ob := range f.owned {
		low := ob.base + uintptr(block.HeaderSize)
		high := ob.base + uintptr(ob.size)
		if ptr >= low && ptr < high {
			return ob, true
		}
	}
	return ownedBlock{}, false
}

func (f *FreeList) removeOwned(base uintptr) {
	for i, ob := range f.owned {
		if ob.base == base {
			f.owned = append(f.owned[:i], f.owned[i+1:]...)
			return
		}
	}
}

// reclaimFullyFreeBlocks returns every free span that exactly reconstitutes
// one owned block back to the provider. A provider.Return failure is a
// fatal defect (a leaked block the strategy can no longer account for) and
// is surfaced as ErrInternal rather than left for the block to silently
// remain in owned/free as if nothing happened.
func (f *FreeList) reclaimFullyFreeBlocks() error {
	var prev *block.Header
	node := f.free
	for node != nil {
		next := node.Next
		nodeBase := uintptr(block.AsBytePtr(node))

		ob, isWholeBlock := f.ownedBlockAt(nodeBase, node.Size)
		if !isWholeBlock {
			prev = node
			node = next
			continue
		}

		if err := f.provider.Return(ob.base); err != nil {
			logging.Error("freelist: reclaim failed to return block %#x: %v", ob.base, err)
			return allocators.ErrInternal
		}
		f.removeOwned(ob.base)
		if prev == nil {
			f.free = next
		} else {
			prev.Next = next
		}

		node = next
	}
	return nil
}

// ownedBlockAt reports the owned block starting exactly at base, if size
// matches its full extent — i.e. if a free span covering [base, base+size)
// is precisely one whole owned block rather than a sliver of one.
func (f *FreeList) ownedBlockAt(base uintptr, size uint64) (ownedBlock, bool) {
	for _, ob := range f.owned {
		if ob.base == base && ob.size == size {
			return ob, true
		}
	}
	return ownedBlock{}, false
}
