// Package vm models the kernel primitives the merge service builds on.
//
// A Space is the service's own address space: a set of reserved ranges and a
// page table that maps page addresses to physical Frames with a protection.
// Clients never own page-table entries. They hold granted rights per page,
// which the service revokes with UnmapOthers and re-grants from its fault
// handler, mirroring how a pager hands out and flushes derived mappings.
//
// Every method is atomic with respect to every other method. Client accesses
// run under the space's read lock, so once UnmapOthers or Map returns no
// client access that relied on the revoked rights is still in flight.
package vm
