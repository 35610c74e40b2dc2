package allocators

// SizeLimitMode controls how a strategy's configured Size is reconciled with
// block-header and alignment overhead.
type SizeLimitMode int

const (
	// HaveAtLeastSizeBytes rounds the block size up so at least Size bytes of
	// usable space remain after accounting for the block header.
	HaveAtLeastSizeBytes SizeLimitMode = iota
	// NoMoreThanSizeBytes rounds the block size down so the block, including
	// its header, never exceeds Size bytes.
	NoMoreThanSizeBytes
)

// GrowPolicy controls what a strategy does when its current block(s) can't
// satisfy a request.
type GrowPolicy int

const (
	// GrowStorage requests another block from the provider.
	GrowStorage GrowPolicy = iota
	// ReturnNull fails the request with ErrReachedMemoryLimit instead of
	// growing.
	ReturnNull
)

// SearchStrategy selects the free-list scan used by the free-list strategy.
type SearchStrategy int

const (
	// FirstFit returns the first free block with at least the requested size.
	FirstFit SearchStrategy = iota
	// BestFit scans the whole list and returns the smallest block that fits.
	BestFit
	// WorstFit scans the whole list and returns the largest block that fits.
	WorstFit
)

// Options holds the tunables every allocator carries, fixed at construction
// and never mutated afterward. Not every field applies to every allocator;
// each constructor documents which ones it reads.
type Options struct {
	// Alignment used for block starts and, by default, for allocations that
	// don't specify their own. Must be a power of two and at least
	// MinimumAlignment.
	Alignment uint64
	// Size is the strategy's target block size, before or after accounting
	// for headers depending on SizeLimitMode.
	Size uint64
	// SizeLimitMode governs how Size interacts with header overhead.
	SizeLimitMode SizeLimitMode
	// GrowWhenFull governs behavior when the current block(s) are full.
	GrowWhenFull GrowPolicy
	// Search selects the free-list strategy's scan (free-list strategy only).
	Search SearchStrategy
	// PageLimit caps outstanding pages for the concurrent page provider.
	PageLimit uint32
	// StaticSize is the fixed size reserved by the static provider.
	StaticSize uint64
}

// DefaultOptions mirrors the source's compile-time defaults: word-size
// alignment, a 4 KiB block, grow-on-full, first-fit search.
func DefaultOptions() Options {
	return Options{
		Alignment:     uint64(MinimumAlignment),
		Size:          4096,
		SizeLimitMode: HaveAtLeastSizeBytes,
		GrowWhenFull:  GrowStorage,
		Search:        FirstFit,
		PageLimit:     0,
		StaticSize:    0,
	}
}
