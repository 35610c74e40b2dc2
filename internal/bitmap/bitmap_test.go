package bitmap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/vblocks/allocators"
)

func arena(n int) uintptr {
	buf := make([]byte, n)
	return uintptr(unsafe.Pointer(&buf[0]))
}

func TestNewEmptyMap(t *testing.T) {
	base := arena(4096)
	m := New(base, 4096)
	assert.True(t, m.IsEmpty())
	assert.False(t, m.IsFull())
	assert.False(t, m.HasNext())
	assert.Greater(t, m.GetCapacity(), uint64(0))
}

func TestInsertAndTake(t *testing.T) {
	base := arena(4096)
	m := New(base, 4096)

	rng := allocators.VirtualAddressRange{Base: 0x1000, Pages: 2}
	ok := m.Insert(0x1000, rng)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), m.GetSize())

	got, ok := m.Take(0x1000)
	assert.True(t, ok)
	assert.Equal(t, rng, got)
	assert.True(t, m.IsEmpty())
}

func TestTakeMissingKey(t *testing.T) {
	base := arena(4096)
	m := New(base, 4096)
	_, ok := m.Take(0xdead)
	assert.False(t, ok)
}

func TestInsertFillsToCapacityThenFails(t *testing.T) {
	base := arena(256)
	m := New(base, 256)
	capacity := m.GetCapacity()

	for i := uint64(0); i < capacity; i++ {
		ok := m.Insert(i, allocators.VirtualAddressRange{Base: uintptr(i + 1), Pages: 1})
		assert.True(t, ok, "insert %d should succeed", i)
	}
	assert.True(t, m.IsFull())

	ok := m.Insert(capacity, allocators.VirtualAddressRange{Base: 1, Pages: 1})
	assert.False(t, ok)
}

// TestLocateProbesPastVacatedSlot exercises the probe behavior for
// colliding keys: inserting several keys that hash to the same start index,
// then removing the first of them, must not hide the keys stored beyond the
// now-empty slot.
func TestLocateProbesPastVacatedSlot(t *testing.T) {
	base := arena(256)
	m := New(base, 256)
	capacity := m.GetCapacity()
	assert.GreaterOrEqual(t, capacity, uint64(3))

	// Three distinct keys that all hash to the same start index (identity
	// hash mod capacity), forced to probe forward in insertion order.
	k0 := uint64(7)
	k1 := k0 + capacity
	k2 := k0 + 2*capacity

	assert.True(t, m.Insert(k0, allocators.VirtualAddressRange{Base: 0x1000, Pages: 1}))
	assert.True(t, m.Insert(k1, allocators.VirtualAddressRange{Base: 0x2000, Pages: 1}))
	assert.True(t, m.Insert(k2, allocators.VirtualAddressRange{Base: 0x3000, Pages: 1}))

	_, ok := m.Take(k0)
	assert.True(t, ok)

	// k1 and k2 now sit past an empty slot (k0's) relative to the shared
	// start index; both must still be reachable.
	v1, ok := m.Take(k1)
	assert.True(t, ok)
	assert.Equal(t, uintptr(0x2000), v1.Base)

	v2, ok := m.Take(k2)
	assert.True(t, ok)
	assert.Equal(t, uintptr(0x3000), v2.Base)
}

func TestSetNextAndGetNext(t *testing.T) {
	base1 := arena(512)
	base2 := arena(512)
	m1 := New(base1, 512)
	m2 := New(base2, 512)

	assert.False(t, m1.HasNext())
	m1.SetNext(m2)
	assert.True(t, m1.HasNext())

	next := m1.GetNext()
	assert.NotNil(t, next)
	assert.Equal(t, m2.GetCapacity(), next.GetCapacity())
}

func TestOpenReattachesExistingData(t *testing.T) {
	base := arena(4096)
	m := New(base, 4096)
	rng := allocators.VirtualAddressRange{Base: 0x4000, Pages: 3}
	assert.True(t, m.Insert(0x4000, rng))

	reopened := Open(base)
	assert.Equal(t, uint64(1), reopened.GetSize())
	got, ok := reopened.Take(0x4000)
	assert.True(t, ok)
	assert.Equal(t, rng, got)
}

func TestRequiredSizeAccommodatesCapacity(t *testing.T) {
	size := RequiredSize(100)
	base := arena(int(size))
	m := New(base, size)
	assert.GreaterOrEqual(t, m.GetCapacity(), uint64(100))
}
