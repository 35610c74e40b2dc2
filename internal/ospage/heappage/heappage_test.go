package heappage

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/vblocks/allocators"
)

func TestFetchReturnsPageAlignedRange(t *testing.T) {
	s := New(4096)
	r, err := s.Fetch(2)
	assert.NoError(t, err)
	assert.Equal(t, uint32(2), r.Pages)
	assert.Equal(t, uintptr(0), r.Base%4096)

	assert.NoError(t, s.Return(r))
}

func TestFetchZeroCountIsInvalid(t *testing.T) {
	s := New(4096)
	_, err := s.Fetch(0)
	assert.ErrorIs(t, err, allocators.ErrInvalidInput)
}

func TestReturnUnknownRangeFails(t *testing.T) {
	s := New(4096)
	err := s.Return(allocators.NewVirtualAddressRange(0x1000, 1))
	assert.ErrorIs(t, err, allocators.ErrInvalidInput)
}

func TestFetchedMemoryIsWritable(t *testing.T) {
	s := New(4096)
	r, err := s.Fetch(1)
	assert.NoError(t, err)
	defer s.Return(r)

	ptr := (*byte)(unsafe.Pointer(r.Base))
	*ptr = 0x55
	assert.Equal(t, byte(0x55), *ptr)
}
