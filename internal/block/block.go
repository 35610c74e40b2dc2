// Package block implements the intrusive block-header list that backs the
// free-list strategy: creation, first/best/worst-fit search, prior-block
// lookup, splitting, and adjacency coalescing. Headers are written in place
// over bytes the caller owns; this package never allocates on its own.
package block

import (
	"unsafe"

	"github.com/vblocks/allocators"
	"github.com/vblocks/allocators/internal/failure"
)

// Header is the intrusive record embedded at offset 0 of every block. Size
// is the total byte length of the range, including the header itself; Next
// links to the following block in a singly-linked list, or nil.
type Header struct {
	Size uint64
	Next *Header
}

// HeaderSize is the fixed size of Header, a multiple of the platform word
// size by construction (two 8-byte fields).
var HeaderSize = uint64(unsafe.Sizeof(Header{}))

// Pair is the (prev, header) result of a list search. Prev is nil when
// header is the list head; otherwise prev.Next == header.
type Pair struct {
	Prev   *Header
	Header *Header
}

// AsBytePtr returns h's address as a byte pointer.
func AsBytePtr(h *Header) unsafe.Pointer { return unsafe.Pointer(h) }

// GetPayload returns the address of the usable payload following h.
func GetPayload(h *Header) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(h)) + uintptr(HeaderSize))
}

// GetHeader recovers the Header immediately preceding a payload pointer
// previously returned by GetPayload.
func GetHeader(payload unsafe.Pointer) *Header {
	return (*Header)(unsafe.Pointer(uintptr(payload) - uintptr(HeaderSize)))
}

// PayloadSize returns the usable byte count of the block h describes.
func PayloadSize(h *Header) uint64 {
	if h == nil {
		return 0
	}
	return h.Size - HeaderSize
}

// ZeroPayload zeroes the payload bytes of the block h describes.
func ZeroPayload(h *Header) {
	if h == nil {
		return
	}
	payload := unsafe.Slice((*byte)(GetPayload(h)), PayloadSize(h))
	for i := range payload {
		payload[i] = 0
	}
}

// Create interprets the first HeaderSize bytes at base as a Header, writes
// {Size: size, Next: next}, and returns it.
func Create(base uintptr, size uint64, next *Header) *Header {
	h := (*Header)(unsafe.Pointer(base))
	h.Size = size
	h.Next = next
	return h
}

// ReleaseList walks head -> Next -> ... stopping when it reaches sentinel
// (nil by default), invoking release for each node's raw bytes before
// advancing (the next pointer is saved first so release may reuse the
// memory). Fails with ErrHeaderIsNull if head is nil.
func ReleaseList(head *Header, release func(unsafe.Pointer, uint64) error, sentinel *Header) error {
	if head == nil {
		return failure.ErrHeaderIsNull
	}
	for itr := head; itr != sentinel && itr != nil; {
		next := itr.Next
		if err := release(AsBytePtr(itr), itr.Size); err != nil {
			return err
		}
		itr = next
	}
	return nil
}

// FindFirstFit returns the first header in head's list with Size >=
// minBytes, or (nil, nil) if nothing fits.
func FindFirstFit(head *Header, minBytes uint64) (*Pair, error) {
	if head == nil {
		return nil, failure.ErrHeaderIsNull
	}
	if minBytes == 0 {
		return nil, failure.ErrInvalidSize
	}
	var prev *Header
	for itr := head; itr != nil; prev, itr = itr, itr.Next {
		if itr.Size >= minBytes {
			return &Pair{Prev: prev, Header: itr}, nil
		}
	}
	return nil, nil
}

func findFit(head *Header, minBytes uint64, better func(candidate, best uint64) bool) (*Pair, error) {
	if head == nil {
		return nil, failure.ErrHeaderIsNull
	}
	if minBytes == 0 {
		return nil, failure.ErrInvalidSize
	}
	var target *Pair
	var prev *Header
	for itr := head; itr != nil; prev, itr = itr, itr.Next {
		if itr.Size < minBytes {
			continue
		}
		if target == nil || better(itr.Size, target.Header.Size) {
			target = &Pair{Prev: prev, Header: itr}
		}
	}
	return target, nil
}

// FindBestFit scans the whole list and returns the header minimizing Size,
// subject to Size >= minBytes, tie-breaking on earliest occurrence.
func FindBestFit(head *Header, minBytes uint64) (*Pair, error) {
	return findFit(head, minBytes, func(candidate, best uint64) bool { return candidate < best })
}

// FindWorstFit scans the whole list and returns the header maximizing Size,
// subject to Size >= minBytes, tie-breaking on earliest occurrence.
func FindWorstFit(head *Header, minBytes uint64) (*Pair, error) {
	return findFit(head, minBytes, func(candidate, best uint64) bool { return candidate > best })
}

// FindPrior returns the last header in head's address-ordered list that
// lies before block: the header whose Next equals block when block is in
// the list, or the one block would be inserted after otherwise. It returns
// nil if block is at or before head in address order.
func FindPrior(head *Header, block *Header) (*Header, error) {
	if head == nil || block == nil {
		return nil, failure.ErrHeaderIsNull
	}
	if uintptr(unsafe.Pointer(head)) >= uintptr(unsafe.Pointer(block)) {
		return nil, nil
	}
	itr := head
	for itr.Next != nil && uintptr(unsafe.Pointer(itr.Next)) < uintptr(unsafe.Pointer(block)) {
		itr = itr.Next
	}
	return itr, nil
}

// Split aligns bytesNeeded up to alignment ("take") and, if the remainder
// after take can still hold a header plus at least one payload byte at
// alignment, carves a new header at block+take covering the remainder.
// block is shrunk in place to {Size: take, Next: newHeader}. Returns (nil,
// nil) when the remainder is too small to split (not an error).
func Split(block *Header, bytesNeeded, alignment uint64) (*Header, error) {
	if block == nil {
		return nil, failure.ErrHeaderIsNull
	}
	if bytesNeeded == 0 {
		return nil, failure.ErrInvalidSize
	}
	if !allocators.IsValidAlignment(alignment) {
		return nil, failure.ErrInvalidAlignment
	}

	minimumBlockSize := allocators.AlignUp(HeaderSize+1, alignment)
	take := allocators.AlignUp(bytesNeeded, alignment)
	if take > block.Size {
		return nil, failure.ErrBlockTooSmall
	}
	remainder := block.Size - take
	if remainder < minimumBlockSize {
		return nil, nil
	}

	ZeroPayload(block)
	newBase := uintptr(unsafe.Pointer(block)) + uintptr(take)
	newHeader := Create(newBase, remainder, block.Next)

	block.Size = take
	block.Next = newHeader
	return newHeader, nil
}

// Coalesce absorbs every block that is exactly adjacent in memory to block
// (block.Next == block + block.Size), repeating until the next block isn't
// adjacent or there is none. It is idempotent: coalescing an already-fully
// merged block is a no-op beyond re-zeroing the payload.
func Coalesce(block *Header) error {
	if block == nil {
		return failure.ErrHeaderIsNull
	}
	for block.Next != nil && uintptr(unsafe.Pointer(block.Next)) == uintptr(unsafe.Pointer(block))+uintptr(block.Size) {
		next := block.Next
		block.Size += next.Size
		block.Next = next.Next
	}
	ZeroPayload(block)
	return nil
}
