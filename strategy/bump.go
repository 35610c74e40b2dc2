// Package strategy implements allocators.Strategy: subdividing the blocks a
// Provider hands up into caller-sized allocations.
package strategy

import (
	"sync/atomic"

	"github.com/lesismal/nbio/logging"

	"github.com/vblocks/allocators"
)

const (
	bumpIndexBits  = 10
	bumpOffsetBits = 25
	bumpTableSize  = 1 << bumpIndexBits

	bumpIndexShift  = 1
	bumpOffsetShift = bumpIndexShift + bumpIndexBits
)

// bumpDescriptor is the single CAS word tracking the bump strategy's active
// block: whether a block has ever been provided, which slot in the block
// table is active, and how far into it allocations have advanced. Packed
// low to high: initialized(1), index(10), offset(25).
type bumpDescriptor uint64

func packBumpDescriptor(initialized bool, index uint32, offset uint64) bumpDescriptor {
	var bit uint64
	if initialized {
		bit = 1
	}
	return bumpDescriptor(bit | uint64(index)<<bumpIndexShift | offset<<bumpOffsetShift)
}

func (d bumpDescriptor) initialized() bool { return uint64(d)&1 != 0 }
func (d bumpDescriptor) index() uint32 {
	return uint32(uint64(d) >> bumpIndexShift & (1<<bumpIndexBits - 1))
}
func (d bumpDescriptor) offset() uint64 {
	return uint64(d) >> bumpOffsetShift & (1<<bumpOffsetBits - 1)
}

// Bump is a lock-free bump-pointer allocators.Strategy: each allocation
// simply advances an offset into the active block. It never supports
// per-object Return — only Reset, which releases every block acquired since
// construction (or the last Reset) back to the provider in one pass. This
// makes it a good fit for phase-based workloads that allocate a batch of
// objects and free them all at once, and a poor fit for anything needing
// individual frees.
//
// With growWhenFull true, a request that doesn't fit in the active block's
// remaining headroom triggers fetching a new block from the provider rather
// than failing; with it false, such a request fails with
// ErrReachedMemoryLimit even though a smaller request might still succeed
// against the same block.
type Bump struct {
	provider     allocators.Provider
	growWhenFull bool

	active     atomic.Uint64
	blockTable [bumpTableSize]atomic.Uintptr
}

// NewBump constructs a bump strategy drawing blocks from provider.
func NewBump(provider allocators.Provider, growWhenFull bool) *Bump {
	return &Bump{provider: provider, growWhenFull: growWhenFull}
}

// AcceptsAlignment reports that Bump honors caller-specified alignment.
func (b *Bump) AcceptsAlignment() bool { return true }

// AcceptsReturn reports that Bump never supports per-object Return.
func (b *Bump) AcceptsReturn() bool { return false }

// FindSize is Find(allocators.NewLayout(size)).
func (b *Bump) FindSize(size uint64) (uintptr, error) {
	return b.Find(allocators.NewLayout(size))
}

// Find advances the bump pointer by AlignUp(layout.Size, layout.Alignment)
// bytes and returns the address before the advance. The loop below usually
// runs once; it only spins when a concurrent allocation raced this one to
// the same active block, or when this call itself must first provision the
// active block.
func (b *Bump) Find(layout allocators.Layout) (uintptr, error) {
	if !layout.IsValid() {
		return 0, allocators.ErrInvalidInput
	}

	requestSize := allocators.AlignUp(layout.Size, layout.Alignment)
	blockSize := b.provider.GetBlockSize()
	if requestSize > blockSize {
		return 0, allocators.ErrSizeRequestTooLarge
	}

	for {
		old := bumpDescriptor(b.active.Load())
		if !old.initialized() {
			if err := b.allocateNewBlock(); err != nil {
				return 0, err
			}
			continue
		}

		headroom := blockSize - old.offset()
		if headroom < requestSize {
			if !b.growWhenFull {
				return 0, allocators.ErrReachedMemoryLimit
			}
			if err := b.allocateNewBlock(); err != nil {
				return 0, err
			}
			continue
		}

		newActive := packBumpDescriptor(true, old.index(), old.offset()+requestSize)
		if b.active.CompareAndSwap(uint64(old), uint64(newActive)) {
			return b.blockTable[old.index()].Load() + uintptr(old.offset()), nil
		}
	}
}

// Return always fails: the bump strategy has no notion of freeing a single
// allocation.
func (b *Bump) Return(ptr uintptr) error {
	return allocators.ErrOperationNotSupported
}

// Reset returns every block acquired since construction, or the last Reset,
// back to the provider, and rewinds the strategy to its unprovisioned
// state.
func (b *Bump) Reset() error {
	old := bumpDescriptor(b.active.Load())
	if !old.initialized() {
		return nil
	}

	for i := uint32(0); i <= old.index(); i++ {
		block := b.blockTable[i].Load()
		if err := b.provider.Return(block); err != nil {
			logging.Error("bump: reset failed to return block %#x: %v", block, err)
			return allocators.ErrInternal
		}
		b.blockTable[i].Store(0)
	}

	b.active.Store(0)
	return nil
}

// allocateNewBlock fetches one new block from the provider and installs it
// as the active block at the next table slot. The table write must
// happen-before the descriptor CAS that publishes it: once another
// goroutine observes the new descriptor via Find's atomic.Uint64.Load, it
// indexes straight into blockTable, and a write ordered after the CAS could
// let that read land on a zero or stale entry.
//
// Two goroutines racing off the same starting descriptor compute the same
// candidate index, so publishing the table entry can't simply happen
// unconditionally before the CAS: whichever one writes last would silently
// clobber the other's block, and the loser would then hand its own
// newly-written slot back to the provider out from under whichever
// descriptor ends up pointing at it. Instead the slot itself is claimed
// with a CAS from zero, so only one goroutine's block ever lands there; the
// loser returns its block and retries. Only the slot winner publishes this
// index: while it holds the slot, the descriptor can change only through
// concurrent Finds advancing the old block's offset, so the descriptor CAS
// is retried against the reloaded value for as long as the index is still
// the old one.
func (b *Bump) allocateNewBlock() error {
	old := bumpDescriptor(b.active.Load())
	index := old.index()
	if old.initialized() {
		index++
	}
	if index >= bumpTableSize {
		return allocators.ErrReachedMemoryLimit
	}

	newBlock, err := b.provider.Provide(1)
	if err != nil {
		return allocators.ErrOutOfMemory
	}

	if !b.blockTable[index].CompareAndSwap(0, newBlock) {
		// Lost the race for this slot to another goroutine that read the
		// same starting descriptor; give the block back and let the
		// caller's loop retry against fresh state.
		if err := b.provider.Return(newBlock); err != nil {
			logging.Error("bump: rollback failed to return block %#x: %v", newBlock, err)
			return allocators.ErrInternal
		}
		return nil
	}

	newActive := packBumpDescriptor(true, index, 0)
	for !b.active.CompareAndSwap(uint64(old), uint64(newActive)) {
		cur := bumpDescriptor(b.active.Load())
		if cur.initialized() != old.initialized() || cur.index() != old.index() {
			logging.Error("bump: descriptor publish for slot %d failed after claiming it", index)
			return allocators.ErrInternal
		}
		old = cur
	}

	return nil
}
