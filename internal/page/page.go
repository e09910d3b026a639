package page

import (
	"fmt"
	"math/bits"
	"os"
)

// Addr is the base virtual address of a page.
type Addr uint64

var (
	// Size is the architecture page size in bytes.
	Size = os.Getpagesize()
	// Shift is log2(Size).
	Shift = bits.TrailingZeros(uint(Size))
)

// Trunc truncates a to the page boundary.
func Trunc(a Addr) Addr {
	return a &^ Addr(Size-1)
}

// Round rounds n up to a multiple of the page size.
func Round(n uint64) uint64 {
	mask := uint64(Size - 1)
	return (n + mask) &^ mask
}

// Count returns the number of pages covering n bytes.
func Count(n uint64) int {
	return int(Round(n) >> Shift)
}

// Aligned reports whether a lies on a page boundary.
func (a Addr) Aligned() bool {
	return a == Trunc(a)
}

// Add returns the address of the page n pages after a.
func (a Addr) Add(n int) Addr {
	return a + Addr(n)<<Shift
}

func (a Addr) String() string {
	return fmt.Sprintf("0x%08X", uint64(a))
}

// Kind selects the allocator pool a page is drawn from.
type Kind uint8

const (
	// Volatile pages are privately owned and writable.
	Volatile Kind = iota
	// Immutable pages back merge groups and are mapped read-only.
	Immutable
)

func (k Kind) String() string {
	switch k {
	case Volatile:
		return "volatile"
	case Immutable:
		return "immutable"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MergeMode describes the assumed merge state of the pages passed to a merge.
type MergeMode uint8

const (
	// MergeVolatile treats both pages as unmerged.
	MergeVolatile MergeMode = iota
	// MergeImmutable treats page1 as already merged and page2 as volatile.
	MergeImmutable
)

func (m MergeMode) String() string {
	switch m {
	case MergeVolatile:
		return "volatile"
	case MergeImmutable:
		return "immutable"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}
