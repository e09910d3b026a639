// Package worker implements the background scanner.
//
// The Worker pulls candidate pages from the queue in passes of a fixed size
// and sleeps between passes. Each scanned page is first compared against the
// representative of every known merge group, then filtered by checksum, and
// finally compared against the unmerged candidates seen earlier in the same
// pass. Pages whose checksum changed within a pass are skipped as unstable.
//
// Merge groups outlive passes. The Worker learns about every merge and unmerge
// through PageMergeNotification and PageUnmergeNotification, and reports when
// a group has become empty so the merge engine can free its backing page.
package worker
