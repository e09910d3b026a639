// Package mmap provides anonymous, off-heap memory mappings.
//
// # Overview
//
// Page pools keep their frames outside the Go heap so that the garbage
// collector never scans or moves them, and so that the physical backing of an
// individual page can be handed back to the operating system while the
// virtual range stays reserved.
//
// # Usage
//
//	m, err := mmap.MapAnon(64 * pageSize)
//	if err != nil { ... }
//	defer m.Close()
//
//	// Bounds-checked view of one page
//	r, _ := m.Region(3*pageSize, pageSize)
//
//	// Release the physical backing of that page
//	_ = r.Advise(mmap.AccessDontNeed)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, madvise(2)
//   - Windows: VirtualAlloc/VirtualFree (advice is a no-op)
//
// # Thread Safety
//
// Close is idempotent and protected by atomic operations. Callers must ensure
// no goroutine touches Bytes() after Close() returns.
package mmap
