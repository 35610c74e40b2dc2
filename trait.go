package allocators

// Strategy subdivides blocks handed up by a Provider into caller-sized
// allocations. Find(size) is equivalent to Find(Layout{size, MinimumAlignment}).
// Reset returns every block the strategy holds to its provider; both the
// bump and the free-list strategy implement it.
type Strategy interface {
	Find(layout Layout) (uintptr, error)
	FindSize(size uint64) (uintptr, error)
	Return(ptr uintptr) error
	Reset() error
	AcceptsAlignment() bool
	AcceptsReturn() bool
}

// Provider supplies page-sized (or page-count-sized) blocks and reclaims
// them on Return. GetBlockSize must be constant for the lifetime of a given
// Provider value.
type Provider interface {
	Provide(count uint32) (uintptr, error)
	Return(ptr uintptr) error
	GetBlockSize() uint64
}

// PageSource is the upstream OS collaborator: it maps and unmaps
// page-granular virtual address ranges. Implementations live under
// internal/ospage.
type PageSource interface {
	Fetch(count uint32) (VirtualAddressRange, error)
	Return(r VirtualAddressRange) error
	PageSize() uint64
}
