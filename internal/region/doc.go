// Package region implements the client-visible memory region.
//
// A Region is a contiguous, page-aligned range of the service's address space
// handed out for an allocation Request. Clients access it through ReadAt,
// WriteAt and Exec. An access whose rights were never granted or were revoked
// is turned into a fault delivered synchronously to the region's FaultHandler,
// after which the access is retried.
package region
