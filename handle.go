package samepage

import (
	"context"
	"log/slog"

	"github.com/hupe1980/samepage/internal/alloc"
	"github.com/hupe1980/samepage/internal/lock"
	"github.com/hupe1980/samepage/internal/memory"
	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/queue"
	"github.com/hupe1980/samepage/internal/region"
	"github.com/hupe1980/samepage/internal/vm"
	"github.com/hupe1980/samepage/internal/worker"
)

// handle is the view one component has of the Manager. Every method forwards
// to the owning component; caller is recorded for diagnostics only.
type handle struct {
	m      *Manager
	caller page.Component
}

var (
	_ alloc.Collaborator  = (*handle)(nil)
	_ memory.Collaborator = (*handle)(nil)
	_ worker.Collaborator = (*handle)(nil)
	_ queue.Counter       = (*handle)(nil)
	_ region.FaultHandler = (*handle)(nil)
)

func (h *handle) trace(ctx context.Context, op string, attrs ...slog.Attr) {
	l := h.m.logger
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	l.LogAttrs(ctx, slog.LevelDebug, op, append(attrs, slog.String("caller", h.caller.String()))...)
}

func addrAttr(key string, a page.Addr) slog.Attr {
	return slog.String(key, a.String())
}

// Lock

func (h *handle) LockPage(ctx context.Context, addr page.Addr) {
	h.trace(ctx, "lock_page", addrAttr("page", addr))
	h.m.locks.LockPage(ctx, addr)
}

func (h *handle) UnlockPage(ctx context.Context, addr page.Addr) {
	h.trace(ctx, "unlock_page", addrAttr("page", addr))
	h.m.locks.UnlockPage(ctx, addr)
}

// Queue

func (h *handle) RegisterPage(ctx context.Context, addr page.Addr) {
	h.trace(ctx, "register_page", addrAttr("page", addr))
	h.m.queue.RegisterPage(addr)
}

func (h *handle) UnregisterPage(ctx context.Context, addr page.Addr) {
	h.trace(ctx, "unregister_page", addrAttr("page", addr))
	h.m.queue.UnregisterPage(addr)
}

func (h *handle) NextPage(ctx context.Context) (page.Addr, bool) {
	addr, ok := h.m.queue.NextPage()
	h.trace(ctx, "next_page", addrAttr("page", addr), slog.Bool("ok", ok))
	return addr, ok
}

// Statistics

func (h *handle) IncPagesUnshared() { h.count("inc_pages_unshared"); h.m.stats.IncPagesUnshared() }
func (h *handle) DecPagesUnshared() { h.count("dec_pages_unshared"); h.m.stats.DecPagesUnshared() }
func (h *handle) IncPagesSharing()  { h.count("inc_pages_sharing"); h.m.stats.IncPagesSharing() }
func (h *handle) DecPagesSharing()  { h.count("dec_pages_sharing"); h.m.stats.DecPagesSharing() }
func (h *handle) IncPagesShared()   { h.count("inc_pages_shared"); h.m.stats.IncPagesShared() }
func (h *handle) DecPagesShared()   { h.count("dec_pages_shared"); h.m.stats.DecPagesShared() }
func (h *handle) IncFullScans()     { h.count("inc_full_scans"); h.m.stats.IncFullScans() }

func (h *handle) count(op string) {
	h.trace(context.Background(), op)
}

// Allocator

func (h *handle) AllocatePage(ctx context.Context, kind page.Kind, hint page.Addr) (*vm.Frame, error) {
	h.trace(ctx, "allocate_page", slog.String("kind", kind.String()), addrAttr("hint", hint))
	return h.m.alloc.AllocatePage(ctx, kind, hint)
}

func (h *handle) FreePage(ctx context.Context, kind page.Kind, f *vm.Frame) error {
	h.trace(ctx, "free_page", slog.String("kind", kind.String()), slog.String("frame", f.String()))
	return h.m.alloc.FreePage(ctx, kind, f)
}

// Memory

func (h *handle) IsMergedPage(ctx context.Context, addr page.Addr) bool {
	h.trace(ctx, "is_merged_page", addrAttr("page", addr))
	return h.m.memory.IsMergedPage(addr)
}

func (h *handle) ReadPage(ctx context.Context, addr page.Addr, dst []byte) error {
	h.trace(ctx, "read_page", addrAttr("page", addr))
	return h.m.memory.ReadPage(addr, dst)
}

func (h *handle) MergePages(ctx context.Context, page1, page2 page.Addr, mode page.MergeMode) error {
	h.trace(ctx, "merge_pages", addrAttr("page1", page1), addrAttr("page2", page2), slog.String("mode", mode.String()))
	err := h.m.memory.MergePages(ctx, page1, page2, mode)
	if h.caller == page.ComponentExternal {
		h.m.logger.LogMerge(ctx, page1, page2, mode, err)
	}
	return h.m.check(ctx, "merge_pages", err)
}

func (h *handle) RetirePage(ctx context.Context, addr page.Addr) (*vm.Frame, error) {
	h.trace(ctx, "retire_page", addrAttr("page", addr))
	f, err := h.m.memory.RetirePage(ctx, addr)
	return f, h.m.check(ctx, "retire_page", err)
}

// MapHook resolves a client fault. Client goroutines carry no lock owner, so
// one is attached here.
func (h *handle) MapHook(ctx context.Context, r *region.Region, offset uint64, want vm.Prot) error {
	ctx = lock.WithOwner(ctx)
	h.trace(ctx, "map_hook", addrAttr("region", r.Base()), slog.Uint64("offset", offset), slog.String("want", want.String()))
	err := h.m.memory.MapHook(ctx, r.Base(), offset, want)
	return h.m.check(ctx, "map_hook", err)
}

// Worker

func (h *handle) PageMergeNotification(ctx context.Context, page1, page2 page.Addr, mode page.MergeMode) {
	h.trace(ctx, "page_merge_notification", addrAttr("page1", page1), addrAttr("page2", page2), slog.String("mode", mode.String()))
	h.m.worker.PageMergeNotification(ctx, page1, page2, mode)
}

func (h *handle) PageUnmergeNotification(ctx context.Context, addr page.Addr) bool {
	h.trace(ctx, "page_unmerge_notification", addrAttr("page", addr))
	return h.m.worker.PageUnmergeNotification(ctx, addr)
}
