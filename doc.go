// Package allocators is a library of composable memory allocators for
// systems programming. Clients ask for a region of raw bytes satisfying a
// size and alignment; the library returns an address whose lifetime is
// managed by the client and whose backing storage is eventually released to
// an upstream source.
//
// The stack has two layers. A provider (package provider) supplies
// page-aligned blocks from an upstream page source and tracks which blocks
// are outstanding. A strategy (package strategy) subdivides blocks handed up
// by a provider into caller-sized allocations, either with a bump allocator
// (fast, monotonic, bulk-release) or a free-list allocator (reusable,
// per-allocation release, first/best/worst-fit search with coalescing).
//
// This package holds the data model and public surface shared by both
// layers: the Layout request type, the public Error taxonomy, the
// VirtualAddressRange value type, tunable Options, and the Strategy/Provider
// interfaces.
package allocators
