package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vblocks/allocators"
	"github.com/vblocks/allocators/internal/ospage"
	"github.com/vblocks/allocators/provider"
)

func TestBumpFindAdvancesOffset(t *testing.T) {
	p := provider.NewConcurrentPage(ospage.New(), 4)
	b := NewBump(p, true)

	a, err := b.FindSize(64)
	assert.NoError(t, err)

	c, err := b.FindSize(64)
	assert.NoError(t, err)

	assert.Equal(t, a+64, c)
}

func TestBumpGrowsWhenBlockFull(t *testing.T) {
	p := provider.NewConcurrentPage(ospage.New(), 4)
	b := NewBump(p, true)

	blockSize := p.GetBlockSize()
	first, err := b.FindSize(blockSize - 8)
	assert.NoError(t, err)
	assert.NotZero(t, first)

	second, err := b.FindSize(64)
	assert.NoError(t, err)
	assert.NotZero(t, second)
}

func TestBumpReturnNullWhenFull(t *testing.T) {
	p := provider.NewConcurrentPage(ospage.New(), 4)
	b := NewBump(p, false)

	blockSize := p.GetBlockSize()
	_, err := b.FindSize(blockSize - 8)
	assert.NoError(t, err)

	_, err = b.FindSize(64)
	assert.ErrorIs(t, err, allocators.ErrReachedMemoryLimit)
}

func TestBumpRejectsOversizedRequest(t *testing.T) {
	p := provider.NewConcurrentPage(ospage.New(), 4)
	b := NewBump(p, true)

	_, err := b.FindSize(p.GetBlockSize() + 1)
	assert.ErrorIs(t, err, allocators.ErrSizeRequestTooLarge)
}

func TestBumpReturnIsUnsupported(t *testing.T) {
	p := provider.NewConcurrentPage(ospage.New(), 4)
	b := NewBump(p, true)
	err := b.Return(0x1000)
	assert.ErrorIs(t, err, allocators.ErrOperationNotSupported)
}

func TestBumpResetReturnsAllBlocks(t *testing.T) {
	p := provider.NewConcurrentPage(ospage.New(), 4)
	b := NewBump(p, true)

	_, err := b.FindSize(64)
	assert.NoError(t, err)
	_, err = b.FindSize(p.GetBlockSize())
	assert.NoError(t, err)

	assert.NoError(t, b.Reset())

	_, err = b.FindSize(64)
	assert.NoError(t, err)
}

func TestBumpAcceptsFlags(t *testing.T) {
	b := NewBump(provider.NewConcurrentPage(ospage.New(), 4), true)
	assert.True(t, b.AcceptsAlignment())
	assert.False(t, b.AcceptsReturn())
}
