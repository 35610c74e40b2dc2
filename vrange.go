package allocators

// VirtualAddressRange is a page-aligned base address plus a page count. Its
// total byte size is derived by multiplying the page count by PageSize; it
// carries no independent size field.
//
// Invariant: if Pages > 0 then Base is page-aligned and non-zero. Pages == 0
// denotes "unset" and is the zero value.
type VirtualAddressRange struct {
	Base  uintptr
	Pages uint32
}

// NewVirtualAddressRange constructs a range from base and pages. It panics
// if pages is non-zero and base is zero, mirroring the source's debug
// assertion that a set range always has a non-null, page-aligned base.
func NewVirtualAddressRange(base uintptr, pages uint32) VirtualAddressRange {
	if pages != 0 && base == 0 {
		panic("allocators: VirtualAddressRange with non-zero pages needs a non-null base")
	}
	return VirtualAddressRange{Base: base, Pages: pages}
}

// IsSet reports whether the range denotes a real allocation.
func (r VirtualAddressRange) IsSet() bool { return r.Pages != 0 }

// Size returns the total byte size of the range.
func (r VirtualAddressRange) Size(pageSize uint64) uint64 {
	return uint64(r.Pages) * pageSize
}
