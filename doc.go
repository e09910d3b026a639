// Package samepage provides user-space same-page merging for Go.
//
// A Manager hands out memory regions to clients. A background scanner walks
// their pages and collapses pages with identical content onto one shared,
// read-only backing page. A client write to a merged page transparently
// gives that page a private copy again. Clients never observe merging except
// through the statistics feed or timing.
//
// # Quick Start
//
//	ctx := context.Background()
//	m, _ := samepage.New(samepage.WithPagesToScan(256))
//	defer m.Close()
//
//	r, _ := m.Allocate(ctx, samepage.Request{Type: samepage.TypeRegion, Size: 1 << 20, Flags: samepage.ProtRW})
//	_ = m.Start(ctx)
//
//	_, _ = r.WriteAt(ctx, data, 0) // unmerges the touched page if needed
//
// # Statistics
//
// Counters are available through Snapshot and are periodically handed to
// the configured sinks:
//
//	s := m.Snapshot()
//	fmt.Println(s.Sharing, s.Shared, s.Saved())
//
// pages_sharing counts client pages displaying a shared page, pages_shared
// counts the shared pages themselves, and their difference is the number of
// pages saved.
//
// # Failure Model
//
// Failed merges are missed opportunities and are never surfaced to clients.
// A failing map or unmap primitive means the address-space bookkeeping can no
// longer be trusted; it is logged and handed to the fatal handler, which
// panics unless replaced with WithFatalHandler.
package samepage
