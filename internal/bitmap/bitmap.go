// Package bitmap implements the embedded, open-addressed hash table used by
// the single-threaded page provider to track outstanding blocks: header,
// occupied bitmap, and entry table are all written directly into
// caller-owned bytes (typically one page fetched from a PageSource), the
// same way internal/block writes its headers in place.
package bitmap

import (
	"unsafe"

	"github.com/vblocks/allocators"
)

type entry struct {
	Key   uint64
	Value allocators.VirtualAddressRange
}

var entrySize = uint64(unsafe.Sizeof(entry{}))

// header is the fixed-size prefix written at the base of every Map.
type header struct {
	next     uintptr
	capacity uint64
	count    uint64
}

var headerSize = uint64(unsafe.Sizeof(header{}))

// Map is a fixed-capacity hash table living entirely inside a byte range the
// caller owns. When one Map fills, callers chain another via SetNext,
// forming a linked list of Maps the way the source's block map does.
type Map struct {
	hdr      *header
	occupied []byte
	table    []entry
}

func occupiedBytes(capacity uint64) uint64 {
	return (capacity + 7) / 8
}

// computeCapacity returns the largest capacity that fits in avail bytes
// after the fixed header, accounting for both the bitmap and entry table.
func computeCapacity(avail uint64) uint64 {
	if avail < entrySize+1 {
		return 0
	}
	capacity := (avail * 8) / (8*entrySize + 1)
	for capacity > 0 && occupiedBytes(capacity)+capacity*entrySize > avail {
		capacity--
	}
	return capacity
}

// RequiredSize returns the total byte size a Map needs to embed capacity
// entries: header, occupied bitmap, and entry table.
func RequiredSize(capacity uint64) uint64 {
	return headerSize + occupiedBytes(capacity) + capacity*entrySize
}

func attach(base uintptr, capacity uint64) *Map {
	m := &Map{hdr: (*header)(unsafe.Pointer(base))}
	occBytes := occupiedBytes(capacity)
	occBase := base + uintptr(headerSize)
	if occBytes > 0 {
		m.occupied = unsafe.Slice((*byte)(unsafe.Pointer(occBase)), occBytes)
	}
	tableBase := occBase + uintptr(occBytes)
	if capacity > 0 {
		m.table = unsafe.Slice((*entry)(unsafe.Pointer(tableBase)), capacity)
	}
	return m
}

// New interprets size bytes at base as a fresh, empty Map, sized to hold as
// many entries as fit. The caller retains ownership of the backing bytes.
func New(base uintptr, size uint64) *Map {
	if size <= headerSize {
		capacity := uint64(0)
		m := attach(base, capacity)
		m.hdr.next = 0
		m.hdr.capacity = 0
		m.hdr.count = 0
		return m
	}
	capacity := computeCapacity(size - headerSize)
	m := attach(base, capacity)
	m.hdr.next = 0
	m.hdr.capacity = capacity
	m.hdr.count = 0
	for i := range m.occupied {
		m.occupied[i] = 0
	}
	return m
}

// Open reattaches to a Map previously built by New at base, preserving its
// existing contents and capacity.
func Open(base uintptr) *Map {
	hdr := (*header)(unsafe.Pointer(base))
	return attach(base, hdr.capacity)
}

// GetCapacity returns the maximum number of entries this Map can hold.
func (m *Map) GetCapacity() uint64 { return m.hdr.capacity }

// GetSize returns the number of entries currently stored.
func (m *Map) GetSize() uint64 { return m.hdr.count }

// IsEmpty reports whether the Map holds no entries.
func (m *Map) IsEmpty() bool { return m.hdr.count == 0 }

// IsFull reports whether the Map has no free slots.
func (m *Map) IsFull() bool { return m.hdr.count == m.hdr.capacity }

// HasNext reports whether SetNext has chained another Map after this one.
func (m *Map) HasNext() bool { return m.hdr.next != 0 }

// GetNext returns the chained Map set by SetNext, or nil.
func (m *Map) GetNext() *Map {
	if m.hdr.next == 0 {
		return nil
	}
	return Open(m.hdr.next)
}

// SetNext chains next after this Map, or clears the link when next is nil.
func (m *Map) SetNext(next *Map) {
	if next == nil {
		m.hdr.next = 0
		return
	}
	m.hdr.next = uintptr(unsafe.Pointer(next.hdr))
}

func (m *Map) bitSet(i uint64) bool { return m.occupied[i/8]&(1<<(i%8)) != 0 }
func (m *Map) setBit(i uint64)      { m.occupied[i/8] |= 1 << (i % 8) }
func (m *Map) clearBit(i uint64)    { m.occupied[i/8] &^= 1 << (i % 8) }

// index computes the starting probe slot for key. Keys are already
// addresses spread by the allocator's own page granularity, so this hashes
// with the identity function modulo capacity rather than mixing bits
// further.
func (m *Map) index(key uint64) uint64 { return key % m.hdr.capacity }

// Insert places value under key, linear-probing from index(key) to the
// first empty slot. Returns false if the table is full (probing wraps back
// to the start without finding room).
func (m *Map) Insert(key uint64, value allocators.VirtualAddressRange) bool {
	if m.hdr.capacity == 0 {
		return false
	}
	start := m.index(key)
	probe := start
	if m.bitSet(probe) {
		for {
			probe = (probe + 1) % m.hdr.capacity
			if probe == start {
				break
			}
			if !m.bitSet(probe) {
				break
			}
		}
		if probe == start {
			return false
		}
	}
	m.table[probe] = entry{Key: key, Value: value}
	m.setBit(probe)
	m.hdr.count++
	return true
}

// locate finds the slot holding key. The probe stops on a match and
// otherwise continues past both empty slots and occupied slots holding a
// different key until it loops back to the start. This intentionally
// differs from stopping at the first empty slot (or the first foreign key):
// after a Take() empties a slot along a probe chain of keys that all hashed
// to the same start index, stopping early would produce false negatives for
// the entries still stored past it.
func (m *Map) locate(key uint64) (uint64, bool) {
	if m.hdr.capacity == 0 {
		return 0, false
	}
	start := m.index(key)
	probe := start
	for {
		if m.bitSet(probe) && m.table[probe].Key == key {
			return probe, true
		}
		probe = (probe + 1) % m.hdr.capacity
		if probe == start {
			return 0, false
		}
	}
}

// Take removes and returns the entry stored under key, if present.
func (m *Map) Take(key uint64) (allocators.VirtualAddressRange, bool) {
	idx, ok := m.locate(key)
	if !ok {
		return allocators.VirtualAddressRange{}, false
	}
	value := m.table[idx].Value
	m.clearBit(idx)
	m.hdr.count--
	return value, true
}
