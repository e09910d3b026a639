package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/samepage/internal/lock"
	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/vm"
)

// Collaborator is what the engine needs from the rest of the service.
type Collaborator interface {
	lock.Locker

	AllocatePage(ctx context.Context, kind page.Kind, hint page.Addr) (*vm.Frame, error)
	FreePage(ctx context.Context, kind page.Kind, f *vm.Frame) error

	IncPagesSharing()
	DecPagesSharing()

	// PageMergeNotification records that page2 joined page1's merge group.
	PageMergeNotification(ctx context.Context, page1, page2 page.Addr, mode page.MergeMode)
	// PageUnmergeNotification removes addr from its merge group and reports
	// whether the group is now empty.
	PageUnmergeNotification(ctx context.Context, addr page.Addr) bool
}

// Metrics receives merge engine timings.
type Metrics interface {
	RecordMerge(mode page.MergeMode, d time.Duration, err error)
	RecordUnmerge(d time.Duration, err error)
}

// Config configures an Engine.
type Config struct {
	Space        *vm.Space
	Collaborator Collaborator
	Metrics      Metrics
	Logger       *slog.Logger
}

// Engine is the merge engine.
type Engine struct {
	space   *vm.Space
	c       Collaborator
	metrics Metrics
	logger  *slog.Logger

	mu    sync.RWMutex
	table map[page.Addr]*vm.Frame
}

// New creates an Engine with an empty merge table.
func New(cfg Config) *Engine {
	return &Engine{
		space:   cfg.Space,
		c:       cfg.Collaborator,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		table:   make(map[page.Addr]*vm.Frame),
	}
}

// IsMergedPage reports whether addr is in the merge table.
func (e *Engine) IsMergedPage(addr page.Addr) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.table[addr]
	return ok
}

// Merged returns the number of merged pages.
func (e *Engine) Merged() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.table)
}

// Backing returns the frame addr currently displays if it is merged.
func (e *Engine) Backing(addr page.Addr) (*vm.Frame, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.table[addr]
	return f, ok
}

// ReadPage copies the current content of addr into dst, which must be at
// least one page long.
func (e *Engine) ReadPage(addr page.Addr, dst []byte) error {
	if len(dst) < page.Size {
		return fmt.Errorf("%w: buffer of %d bytes", page.ErrInvalidArgument, len(dst))
	}
	if err := e.space.Read(addr, func(v page.View) { copy(dst, v.Bytes()) }); err != nil {
		return fmt.Errorf("%w: %v", page.ErrInvalidArgument, err)
	}
	return nil
}

// MergePages merges page2 into page1. In MergeVolatile mode neither page may
// be merged yet; in MergeImmutable mode page1 must be merged and page2 must
// not. The call either merges the pages or leaves every piece of state as it
// was, except that client rights on the pages may have been revoked.
func (e *Engine) MergePages(ctx context.Context, page1, page2 page.Addr, mode page.MergeMode) (err error) {
	if e.metrics != nil {
		start := time.Now()
		defer func() { e.metrics.RecordMerge(mode, time.Since(start), err) }()
	}

	if page1 == page2 {
		return fmt.Errorf("%w: merge of %s with itself", page.ErrInvalidArgument, page1)
	}
	if !page1.Aligned() || !page2.Aligned() {
		return fmt.Errorf("%w: merge of misaligned pages %s, %s", page.ErrInvalidArgument, page1, page2)
	}
	if mode != page.MergeVolatile && mode != page.MergeImmutable {
		return fmt.Errorf("%w: merge mode %s", page.ErrInvalidArgument, mode)
	}

	unlock := lock.Pages(ctx, e.c, page1, page2)
	defer unlock()

	f1, _, err := e.space.Lookup(page1)
	if err != nil {
		return fmt.Errorf("%w: %v", page.ErrInvalidArgument, err)
	}
	f2, _, err := e.space.Lookup(page2)
	if err != nil {
		return fmt.Errorf("%w: %v", page.ErrInvalidArgument, err)
	}

	e.mu.RLock()
	imm, merged1 := e.table[page1]
	_, merged2 := e.table[page2]
	e.mu.RUnlock()

	if merged2 || merged1 != (mode == page.MergeImmutable) {
		return fmt.Errorf("%w: %s merge of %s (merged=%t) and %s (merged=%t)",
			page.ErrInconsistentState, mode, page1, merged1, page2, merged2)
	}

	if mode == page.MergeVolatile {
		if err := e.revoke(page1); err != nil {
			return err
		}
	}
	if err := e.revoke(page2); err != nil {
		return err
	}

	if !f1.View().Equal(f2.View()) {
		return fmt.Errorf("%w: %s and %s", page.ErrContentMismatch, page1, page2)
	}

	if mode == page.MergeVolatile {
		imm, err = e.c.AllocatePage(ctx, page.Immutable, 0)
		if err != nil {
			return err
		}
		if err := imm.View().CopyFrom(f1.View()); err != nil {
			return err
		}
		if err := e.mapImmutable(ctx, page1, f1, imm); err != nil {
			return err
		}
	}
	if err := e.mapImmutable(ctx, page2, f2, imm); err != nil {
		return err
	}

	e.c.PageMergeNotification(ctx, page1, page2, mode)

	if e.logger != nil {
		e.logger.DebugContext(ctx, "merged pages",
			slog.String("page1", page1.String()),
			slog.String("page2", page2.String()),
			slog.String("mode", mode.String()),
			slog.String("backing", imm.String()),
		)
	}
	return nil
}

func (e *Engine) revoke(addr page.Addr) error {
	if err := e.space.UnmapOthers(addr); err != nil {
		return fmt.Errorf("%w: revoke %s: %v", page.ErrMappingFailed, addr, err)
	}
	return nil
}

// mapImmutable installs imm read-only at addr and gives old back to the
// allocator. The caller holds the page lock of addr.
func (e *Engine) mapImmutable(ctx context.Context, addr page.Addr, old, imm *vm.Frame) error {
	if err := e.space.Map(addr, imm, vm.ProtRO); err != nil {
		return fmt.Errorf("%w: map %s at %s: %v", page.ErrMappingFailed, imm, addr, err)
	}
	if err := e.c.FreePage(ctx, page.Volatile, old); err != nil {
		return fmt.Errorf("%w: free %s: %v", page.ErrMappingFailed, old, err)
	}

	e.mu.Lock()
	e.table[addr] = imm
	e.mu.Unlock()

	e.c.IncPagesSharing()
	return nil
}

// UnmergePage gives addr a private writable copy of its content.
// It returns page.ErrNotMerged if addr is not merged.
func (e *Engine) UnmergePage(ctx context.Context, addr page.Addr) error {
	if !addr.Aligned() {
		return fmt.Errorf("%w: unmerge of misaligned page %s", page.ErrInvalidArgument, addr)
	}

	unlock := lock.Pages(ctx, e.c, addr)
	defer unlock()

	return e.unmergeLocked(ctx, addr)
}

func (e *Engine) unmergeLocked(ctx context.Context, addr page.Addr) (err error) {
	e.mu.RLock()
	imm, ok := e.table[addr]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", page.ErrNotMerged, addr)
	}

	if e.metrics != nil {
		start := time.Now()
		defer func() { e.metrics.RecordUnmerge(time.Since(start), err) }()
	}

	f, err := e.c.AllocatePage(ctx, page.Volatile, addr)
	if err != nil {
		return err
	}
	if err := f.View().CopyFrom(imm.View()); err != nil {
		return err
	}
	if err := e.space.Map(addr, f, vm.ProtRWX); err != nil {
		return fmt.Errorf("%w: map %s at %s: %v", page.ErrMappingFailed, f, addr, err)
	}

	e.mu.Lock()
	delete(e.table, addr)
	e.mu.Unlock()

	e.c.DecPagesSharing()

	freed := false
	if e.c.PageUnmergeNotification(ctx, addr) {
		if err := e.c.FreePage(ctx, page.Immutable, imm); err != nil {
			return fmt.Errorf("%w: free %s: %v", page.ErrMappingFailed, imm, err)
		}
		freed = true
	}

	if e.logger != nil {
		e.logger.DebugContext(ctx, "unmerged page",
			slog.String("page", addr.String()),
			slog.String("backing", imm.String()),
			slog.Bool("freed", freed),
		)
	}
	return nil
}

// MapHook resolves a client fault at offset of the region starting at base.
// Write and execute faults on a merged page unmerge it first. The rights are
// granted before the page lock is released, so no merge can slip in between.
func (e *Engine) MapHook(ctx context.Context, base page.Addr, offset uint64, want vm.Prot) error {
	addr := page.Trunc(base + page.Addr(offset))

	unlock := lock.Pages(ctx, e.c, addr)
	defer unlock()

	if want&(vm.ProtWrite|vm.ProtExec) != 0 && e.IsMergedPage(addr) {
		if err := e.unmergeLocked(ctx, addr); err != nil {
			return err
		}
	}

	if _, err := e.space.Grant(addr, want|vm.ProtRead); err != nil {
		return fmt.Errorf("%w: %v", page.ErrInvalidArgument, err)
	}
	return nil
}

// RetirePage unmerges addr if it is merged, removes its mapping and returns
// the volatile frame that backed it.
func (e *Engine) RetirePage(ctx context.Context, addr page.Addr) (*vm.Frame, error) {
	unlock := lock.Pages(ctx, e.c, addr)
	defer unlock()

	if e.IsMergedPage(addr) {
		if err := e.unmergeLocked(ctx, addr); err != nil {
			return nil, err
		}
	}

	f, _, err := e.space.Lookup(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", page.ErrInvalidArgument, err)
	}
	if err := e.space.Unmap(addr); err != nil {
		return nil, fmt.Errorf("%w: unmap %s: %v", page.ErrMappingFailed, addr, err)
	}
	return f, nil
}
