package mem

import (
	"unsafe"
)

// DefaultAlignment is the byte alignment used when none is requested (one cache line).
const DefaultAlignment = 64

// AllocAligned allocates a zeroed byte slice of the given size whose first byte
// lies on an address divisible by alignment. alignment must be a power of two;
// values <= 0 select DefaultAlignment.
//
// Note: This function allocates slightly more memory than requested to ensure alignment.
// The underlying array is kept alive by the returned slice.
func AllocAligned(size, alignment int) []byte {
	if size <= 0 {
		return nil
	}
	if alignment <= 0 {
		alignment = DefaultAlignment
	}
	if alignment&(alignment-1) != 0 {
		return nil
	}

	// We need enough space to shift the start pointer up to alignment-1 bytes
	buf := make([]byte, size+alignment)

	ptr := unsafe.Pointer(&buf[0]) //nolint:gosec // unsafe is required for memory alignment
	addr := uintptr(ptr)
	mask := uintptr(alignment - 1)
	offset := (uintptr(alignment) - (addr & mask)) & mask

	// Cap the slice so appends cannot write into the padding.
	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// IsAligned reports whether b starts on an address divisible by alignment.
func IsAligned(b []byte, alignment int) bool {
	if len(b) == 0 || alignment <= 0 {
		return false
	}
	addr := uintptr(unsafe.Pointer(&b[0])) //nolint:gosec // unsafe is required for memory alignment
	return addr%uintptr(alignment) == 0
}
