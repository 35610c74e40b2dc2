// Package adapter is the Go analogue of std::allocator_traits: a thin shim
// that lets ordinary Go code lean on an allocators.Strategy for its backing
// storage, the way a C++ container parameterized on an allocator type would.
package adapter

import (
	"unsafe"

	"github.com/vblocks/allocators"
)

// Adapter wraps a Strategy behind byte-slice Alloc/Free, plus the generic
// Typed/FreeTyped helpers below for placing a single value.
type Adapter struct {
	strategy allocators.Strategy
}

// New wraps strategy in an Adapter.
func New(strategy allocators.Strategy) *Adapter {
	return &Adapter{strategy: strategy}
}

// Alloc returns an n-byte slice backed by memory from the underlying
// Strategy. The returned slice is not Go-heap memory: the garbage collector
// does not scan it and will not reclaim it. Callers must Free it
// explicitly.
func (a *Adapter) Alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, allocators.ErrInvalidInput
	}
	ptr, err := a.strategy.FindSize(uint64(n))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n), nil
}

// Free releases a slice previously returned by Alloc.
func (a *Adapter) Free(b []byte) error {
	if len(b) == 0 {
		return allocators.ErrInvalidInput
	}
	return a.strategy.Return(uintptr(unsafe.Pointer(&b[0])))
}

// Typed carves out space for one T from a's strategy and returns a pointer
// to its zero value. T must not embed any Go pointers that need GC
// tracking: the backing memory isn't Go-managed, so the collector never
// scans it, and a live Go pointer hidden inside could be reclaimed out from
// under it.
func Typed[T any](a *Adapter) (*T, error) {
	var zero T
	ptr, err := a.strategy.FindSize(uint64(unsafe.Sizeof(zero)))
	if err != nil {
		return nil, err
	}
	value := (*T)(unsafe.Pointer(ptr))
	*value = zero
	return value, nil
}

// FreeTyped releases a value previously returned by Typed.
func FreeTyped[T any](a *Adapter, value *T) error {
	if value == nil {
		return allocators.ErrInvalidInput
	}
	return a.strategy.Return(uintptr(unsafe.Pointer(value)))
}
