// Package page defines the vocabulary shared by every same-page merging component.
//
// # Pages
//
// A page is a fixed-size, page-aligned block identified by the address of its
// first byte (Addr). Addresses are always truncated to the page boundary before
// they are used as identifiers:
//
//	addr := page.Trunc(raw)
//	if !addr.Aligned() { ... }
//
// # Views
//
// Page contents are never accessed through address arithmetic. A View is a
// bounds-checked, fixed-length byte window bound to one page. Comparison and
// copy operate only on views:
//
//	if a.Equal(b) {
//	    dst.CopyFrom(a)
//	}
//
// # Checksums
//
// Checksum functions are cheap, collision-prone content summaries. They filter
// scan candidates and must never authorize a merge on their own.
package page
