package provider

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vblocks/allocators"
	"github.com/vblocks/allocators/internal/ospage"
)

func TestConcurrentPageProvideAndReturn(t *testing.T) {
	src := ospage.New()
	p := NewConcurrentPage(src, 4)

	a, err := p.Provide(1)
	assert.NoError(t, err)
	assert.NotZero(t, a)

	b, err := p.Provide(1)
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)

	assert.NoError(t, p.Return(a))
	assert.NoError(t, p.Return(b))
}

func TestConcurrentPageRejectsMultiPageRequest(t *testing.T) {
	p := NewConcurrentPage(ospage.New(), 4)
	_, err := p.Provide(2)
	assert.ErrorIs(t, err, allocators.ErrOperationNotSupported)
}

func TestConcurrentPageRejectsZeroCount(t *testing.T) {
	p := NewConcurrentPage(ospage.New(), 4)
	_, err := p.Provide(0)
	assert.ErrorIs(t, err, allocators.ErrInvalidInput)
}

func TestConcurrentPageExhaustsLimit(t *testing.T) {
	p := NewConcurrentPage(ospage.New(), 2)

	_, err := p.Provide(1)
	assert.NoError(t, err)
	_, err = p.Provide(1)
	assert.NoError(t, err)

	_, err = p.Provide(1)
	assert.ErrorIs(t, err, allocators.ErrNoFreeBlock)
}

func TestConcurrentPageReturnRejectsUnknownPointer(t *testing.T) {
	p := NewConcurrentPage(ospage.New(), 2)
	_, err := p.Provide(1)
	assert.NoError(t, err)

	assert.ErrorIs(t, p.Return(0), allocators.ErrInvalidInput)
}

func TestConcurrentPageGetBlockSizeMatchesSource(t *testing.T) {
	src := ospage.New()
	p := NewConcurrentPage(src, 4)
	assert.Equal(t, src.PageSize(), p.GetBlockSize())
}

func TestConcurrentPageConcurrentProvideReturn(t *testing.T) {
	p := NewConcurrentPage(ospage.New(), 64)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ptr, err := p.Provide(1)
			if err != nil {
				return
			}
			_ = p.Return(ptr)
		}()
	}
	wg.Wait()

	ptr, err := p.Provide(1)
	assert.NoError(t, err)
	assert.NotZero(t, ptr)
}
