// Package memory implements the merge engine.
//
// The Engine owns the merge table, which maps every merged client page to the
// immutable frame it currently displays. Pages sharing one frame form a merge
// group. Structural changes happen only under the page locks of every page
// involved, taken in ascending address order:
//
//   - MergePages collapses two pages with identical content onto one frame,
//     either creating a group from two volatile pages or adding a volatile page
//     to an existing group.
//   - UnmergePage gives a merged page a private writable copy again and frees
//     the backing frame once its group is empty.
//   - MapHook is the fault entry point. Write and execute faults on merged
//     pages unmerge them before the client's rights are granted.
//
// Content is always re-verified byte for byte after client mappings have been
// revoked, so a concurrent writer can never be merged with stale content.
package memory
