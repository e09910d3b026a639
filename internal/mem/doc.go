// Package mem provides memory allocation utilities.
//
// # Aligned Allocation
//
// Provides heap allocations aligned to an arbitrary power-of-two boundary,
// used for page-sized frames that are not drawn from an mmap-backed pool.
package mem
