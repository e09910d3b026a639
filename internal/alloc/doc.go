// Package alloc supplies the physical pages behind client regions and merge
// groups.
//
// Three sources exist:
//
//   - the immutable pool, a fixed anonymous mapping reserved at start-up with a
//     roaring free bitmap, from which merge-group backing pages are drawn;
//   - one volatile pool per region, an anonymous mapping sized to the region,
//     which initially backs every page of the region and takes back the private
//     storage of pages that get merged;
//   - the general pool, aligned heap pages for volatile allocations that cannot
//     be attributed to a live region.
//
// Freed pool slots are returned to the operating system with
// madvise(MADV_DONTNEED), which is where deduplication saves memory.
package alloc
