package block

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/vblocks/allocators/internal/failure"
)

// arena returns a zeroed, word-aligned backing buffer of n bytes and its
// base address, mimicking a page handed up by a provider.
func arena(n int) ([]byte, uintptr) {
	buf := make([]byte, n)
	return buf, uintptr(unsafe.Pointer(&buf[0]))
}

func TestCreate(t *testing.T) {
	_, base := arena(64)
	h := Create(base, 64, nil)
	assert.Equal(t, uint64(64), h.Size)
	assert.Nil(t, h.Next)
	assert.Equal(t, uint64(64-HeaderSize), PayloadSize(h))
}

func TestGetPayloadAndHeaderRoundTrip(t *testing.T) {
	_, base := arena(64)
	h := Create(base, 64, nil)
	payload := GetPayload(h)
	assert.Equal(t, h, GetHeader(payload))
}

func TestReleaseListWalksAndInvokesRelease(t *testing.T) {
	_, base := arena(192)
	third := Create(base+128, 64, nil)
	second := Create(base+64, 64, third)
	first := Create(base, 64, second)

	var released []uint64
	err := ReleaseList(first, func(_ unsafe.Pointer, size uint64) error {
		released = append(released, size)
		return nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, []uint64{64, 64, 64}, released)
}

func TestReleaseListNullHeader(t *testing.T) {
	err := ReleaseList(nil, func(unsafe.Pointer, uint64) error { return nil }, nil)
	assert.ErrorIs(t, err, failure.ErrHeaderIsNull)
}

func TestFindFirstFit(t *testing.T) {
	_, base := arena(192)
	small := Create(base+128, 32, nil)
	big := Create(base+64, 96, small)
	head := Create(base, 64, big)

	pair, err := FindFirstFit(head, 90)
	assert.NoError(t, err)
	assert.Same(t, big, pair.Header)
	assert.Same(t, head, pair.Prev)

	pair, err = FindFirstFit(head, 1000)
	assert.NoError(t, err)
	assert.Nil(t, pair)
}

func TestFindBestFit(t *testing.T) {
	_, base := arena(192)
	c := Create(base+128, 96, nil)
	b := Create(base+64, 48, c)
	a := Create(base, 64, b)

	pair, err := FindBestFit(a, 40)
	assert.NoError(t, err)
	assert.Same(t, b, pair.Header)
}

func TestFindWorstFit(t *testing.T) {
	_, base := arena(192)
	c := Create(base+128, 96, nil)
	b := Create(base+64, 48, c)
	a := Create(base, 64, b)

	pair, err := FindWorstFit(a, 40)
	assert.NoError(t, err)
	assert.Same(t, c, pair.Header)
}

func TestFindPrior(t *testing.T) {
	_, base := arena(192)
	c := Create(base+128, 64, nil)
	b := Create(base+64, 64, c)
	a := Create(base, 64, b)

	prior, err := FindPrior(a, c)
	assert.NoError(t, err)
	assert.Same(t, b, prior)

	prior, err = FindPrior(a, a)
	assert.NoError(t, err)
	assert.Nil(t, prior)
}

func TestSplitProducesRemainderBlock(t *testing.T) {
	_, base := arena(256)
	h := Create(base, 256, nil)

	remainder, err := Split(h, 32, 8)
	assert.NoError(t, err)
	assert.NotNil(t, remainder)
	assert.Equal(t, uint64(32), h.Size)
	assert.Same(t, remainder, h.Next)
	assert.Equal(t, uint64(256-32), remainder.Size)
}

func TestSplitTooSmallRemainderNoSplit(t *testing.T) {
	_, base := arena(int(HeaderSize) + 40)
	h := Create(base, HeaderSize+40, nil)

	remainder, err := Split(h, 40, 8)
	assert.NoError(t, err)
	assert.Nil(t, remainder)
	assert.Equal(t, HeaderSize+40, h.Size)
}

func TestSplitRequestLargerThanBlockFails(t *testing.T) {
	_, base := arena(64)
	h := Create(base, 64, nil)

	_, err := Split(h, 128, 8)
	assert.Error(t, err)
}

func TestCoalesceMergesAdjacentBlocks(t *testing.T) {
	_, base := arena(192)
	c := Create(base+128, 64, nil)
	b := Create(base+64, 64, c)
	a := Create(base, 64, b)

	err := Coalesce(a)
	assert.NoError(t, err)
	assert.Equal(t, uint64(192), a.Size)
	assert.Nil(t, a.Next)
}

func TestCoalesceStopsAtNonAdjacentBlock(t *testing.T) {
	buf, base := arena(320)
	_ = buf
	far := Create(base+256, 64, nil)
	near := Create(base, 64, far)

	err := Coalesce(near)
	assert.NoError(t, err)
	assert.Equal(t, uint64(64), near.Size)
	assert.Same(t, far, near.Next)
}
