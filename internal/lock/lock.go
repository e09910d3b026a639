package lock

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/samepage/internal/page"
)

// Locker grants page-scoped critical sections, reentrant per Owner.
type Locker interface {
	LockPage(ctx context.Context, addr page.Addr)
	UnlockPage(ctx context.Context, addr page.Addr)
}

// Pages locks every distinct page in addrs in ascending address order and
// returns the function that releases them in reverse order.
func Pages(ctx context.Context, l Locker, addrs ...page.Addr) func() {
	sorted := slices.Clone(addrs)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, a := range sorted {
		l.LockPage(ctx, a)
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			l.UnlockPage(ctx, sorted[i])
		}
	}
}

// Global serializes all page locks behind one reentrant mutex.
type Global struct {
	m *reentrant
}

// NewGlobal creates a Global lock.
func NewGlobal() *Global {
	return &Global{m: newReentrant()}
}

// LockPage implements Locker.
func (g *Global) LockPage(ctx context.Context, _ page.Addr) {
	g.m.lock(mustOwner(ctx))
}

// UnlockPage implements Locker.
func (g *Global) UnlockPage(ctx context.Context, _ page.Addr) {
	g.m.unlock(mustOwner(ctx))
}

// PageTable keeps one reentrant mutex per page that is locked or awaited.
type PageTable struct {
	mu    sync.Mutex
	pages map[page.Addr]*tableEntry
}

type tableEntry struct {
	m    *reentrant
	refs int
}

// NewPageTable creates an empty PageTable.
func NewPageTable() *PageTable {
	return &PageTable{pages: make(map[page.Addr]*tableEntry)}
}

// LockPage implements Locker.
func (t *PageTable) LockPage(ctx context.Context, addr page.Addr) {
	o := mustOwner(ctx)

	t.mu.Lock()
	e, ok := t.pages[addr]
	if !ok {
		e = &tableEntry{m: newReentrant()}
		t.pages[addr] = e
	}
	e.refs++
	t.mu.Unlock()

	e.m.lock(o)
}

// UnlockPage implements Locker.
func (t *PageTable) UnlockPage(ctx context.Context, addr page.Addr) {
	o := mustOwner(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pages[addr]
	if !ok {
		panic("lock: unlock of unknown page")
	}
	e.m.unlock(o)
	e.refs--
	if e.refs == 0 {
		delete(t.pages, addr)
	}
}

// Len returns the number of pages currently locked or awaited.
func (t *PageTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pages)
}
