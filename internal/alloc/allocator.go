package alloc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/region"
	"github.com/hupe1980/samepage/internal/resource"
	"github.com/hupe1980/samepage/internal/vm"
)

const (
	immutablePoolID uint32 = 0
	firstRegionID   uint32 = 2

	// DefaultImmutablePages is the default size of the immutable pool.
	DefaultImmutablePages = 4096
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("alloc: allocator closed")

// Collaborator is what the allocator needs from the rest of the service.
type Collaborator interface {
	RegisterPage(ctx context.Context, addr page.Addr)
	UnregisterPage(ctx context.Context, addr page.Addr)
	IncPagesUnshared()
	DecPagesUnshared()
	IncPagesShared()
	DecPagesShared()
	// RetirePage unmerges addr if necessary, unmaps it and returns the volatile
	// frame that backed it.
	RetirePage(ctx context.Context, addr page.Addr) (*vm.Frame, error)
}

// Config configures an Allocator.
type Config struct {
	Space        *vm.Space
	Collaborator Collaborator
	// Faults is installed as the fault handler of every region.
	Faults region.FaultHandler
	// Resources charges region, pool and general-page memory. Nil means
	// unlimited.
	Resources *resource.Controller
	// ImmutablePages is the capacity of the immutable pool.
	ImmutablePages int
	Logger         *slog.Logger
}

type regionEntry struct {
	r    *region.Region
	pool *pool
}

// Allocator owns every physical page of the service.
type Allocator struct {
	space  *vm.Space
	c      Collaborator
	faults region.FaultHandler
	res    *resource.Controller
	logger *slog.Logger

	imm     *pool
	general generalPool

	mu      sync.RWMutex
	regions map[page.Addr]*regionEntry
	pools   map[uint32]*pool
	nextID  uint32
	closed  bool
}

// New creates an Allocator and reserves the immutable pool.
func New(cfg Config) (*Allocator, error) {
	if cfg.Space == nil || cfg.Collaborator == nil || cfg.Faults == nil {
		return nil, fmt.Errorf("%w: allocator requires space, collaborator and fault handler", page.ErrInvalidArgument)
	}
	n := cfg.ImmutablePages
	if n <= 0 {
		n = DefaultImmutablePages
	}

	if err := cfg.Resources.AcquireMemory(int64(n * page.Size)); err != nil {
		return nil, fmt.Errorf("%w: immutable pool: %v", page.ErrOutOfMemory, err)
	}
	imm, err := newPool(immutablePoolID, page.Immutable, n, true)
	if err != nil {
		cfg.Resources.ReleaseMemory(int64(n * page.Size))
		return nil, err
	}

	return &Allocator{
		space:   cfg.Space,
		c:       cfg.Collaborator,
		faults:  cfg.Faults,
		res:     cfg.Resources,
		logger:  cfg.Logger,
		imm:     imm,
		general: generalPool{res: cfg.Resources},
		regions: make(map[page.Addr]*regionEntry),
		pools:   make(map[uint32]*pool),
		nextID:  firstRegionID,
	}, nil
}

// AllocatePage hands out one page of kind. For volatile pages hint names the
// client page the storage is meant for; storage is taken from that page's
// region when possible.
func (a *Allocator) AllocatePage(ctx context.Context, kind page.Kind, hint page.Addr) (*vm.Frame, error) {
	switch kind {
	case page.Immutable:
		f, err := a.imm.get(-1)
		if err != nil {
			return nil, err
		}
		a.c.IncPagesShared()
		return f, nil

	case page.Volatile:
		hint = page.Trunc(hint)

		a.mu.RLock()
		e := a.regionOfLocked(hint)
		a.mu.RUnlock()

		var (
			f   *vm.Frame
			err error
		)
		if e != nil {
			f, err = e.pool.get(int((hint - e.r.Base()) >> page.Shift))
		}
		if e == nil || err != nil {
			f, err = a.general.get()
			if err != nil {
				return nil, err
			}
		}
		a.c.IncPagesUnshared()
		if e != nil {
			a.c.RegisterPage(ctx, hint)
		}
		return f, nil

	default:
		return nil, fmt.Errorf("%w: page kind %s", page.ErrInvalidArgument, kind)
	}
}

// FreePage returns f to the pool it was drawn from.
func (a *Allocator) FreePage(_ context.Context, kind page.Kind, f *vm.Frame) error {
	if f == nil || f.Kind() != kind {
		return fmt.Errorf("%w: free %s page %v", page.ErrInvalidArgument, kind, f)
	}

	switch kind {
	case page.Immutable:
		if err := a.imm.put(f); err != nil {
			return err
		}
		a.c.DecPagesShared()
		return nil

	case page.Volatile:
		if err := a.release(f); err != nil {
			return err
		}
		a.c.DecPagesUnshared()
		return nil

	default:
		return fmt.Errorf("%w: page kind %s", page.ErrInvalidArgument, kind)
	}
}

func (a *Allocator) release(f *vm.Frame) error {
	if f.Pool() == generalPoolID {
		return a.general.put(f)
	}

	a.mu.RLock()
	p, ok := a.pools[f.Pool()]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: frame %s of unknown pool", page.ErrInvalidArgument, f)
	}
	return p.put(f)
}

// CreateRegion serves an allocation request: it reserves address space, backs
// every page with zero-filled private storage mapped read-write-execute into
// the service's space, and registers every page as an unshared candidate.
func (a *Allocator) CreateRegion(ctx context.Context, req region.Request) (*region.Region, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	size := uint64(req.Size)
	pages := int(size >> page.Shift)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	id := a.nextID
	a.nextID++
	a.mu.Unlock()

	if err := a.res.AcquireMemory(req.Size); err != nil {
		return nil, fmt.Errorf("%w: region of %d bytes: %v", page.ErrOutOfMemory, size, err)
	}

	p, err := newPool(id, page.Volatile, pages, false)
	if err != nil {
		a.res.ReleaseMemory(req.Size)
		return nil, err
	}

	base, err := a.space.Reserve(size, req.Align)
	if err != nil {
		_ = p.close()
		a.res.ReleaseMemory(req.Size)
		return nil, fmt.Errorf("%w: %v", page.ErrInvalidArgument, err)
	}

	r := region.New(a.space, base, size, req.Flags, a.faults)
	for i := 0; i < pages; i++ {
		if err := a.space.Map(r.Page(i), p.frame(i), vm.ProtRWX); err != nil {
			_ = a.space.Free(base)
			_ = p.close()
			a.res.ReleaseMemory(req.Size)
			return nil, fmt.Errorf("%w: %v", page.ErrMappingFailed, err)
		}
	}

	a.mu.Lock()
	a.regions[base] = &regionEntry{r: r, pool: p}
	a.pools[id] = p
	a.mu.Unlock()

	for i := 0; i < pages; i++ {
		a.c.RegisterPage(ctx, r.Page(i))
		a.c.IncPagesUnshared()
	}

	if a.logger != nil {
		a.logger.InfoContext(ctx, "handing out region",
			slog.String("base", base.String()),
			slog.Uint64("size", size),
			slog.String("flags", req.Flags.String()),
		)
	}
	return r, nil
}

// ReleaseRegion retires every page of r and returns its storage.
func (a *Allocator) ReleaseRegion(ctx context.Context, r *region.Region) error {
	a.mu.RLock()
	e, ok := a.regions[r.Base()]
	a.mu.RUnlock()
	if !ok || e.r != r {
		return fmt.Errorf("%w: unknown region %s", page.ErrInvalidArgument, r)
	}

	for i := 0; i < r.Pages(); i++ {
		addr := r.Page(i)
		f, err := a.c.RetirePage(ctx, addr)
		if err != nil {
			return err
		}
		if f.Pool() != e.pool.id {
			if err := a.release(f); err != nil {
				return err
			}
		}
		a.c.UnregisterPage(ctx, addr)
		a.c.DecPagesUnshared()
	}

	a.mu.Lock()
	delete(a.regions, r.Base())
	delete(a.pools, e.pool.id)
	a.mu.Unlock()

	if err := a.space.Free(r.Base()); err != nil {
		return fmt.Errorf("%w: %v", page.ErrMappingFailed, err)
	}
	a.res.ReleaseMemory(int64(r.Size()))

	if a.logger != nil {
		a.logger.InfoContext(ctx, "released region", slog.String("base", r.Base().String()), slog.Uint64("size", r.Size()))
	}
	return e.pool.close()
}

// Regions returns the live regions.
func (a *Allocator) Regions() []*region.Region {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*region.Region, 0, len(a.regions))
	for _, e := range a.regions {
		out = append(out, e.r)
	}
	return out
}

// RegionOf returns the live region containing addr.
func (a *Allocator) RegionOf(addr page.Addr) (*region.Region, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if e := a.regionOfLocked(addr); e != nil {
		return e.r, true
	}
	return nil, false
}

func (a *Allocator) regionOfLocked(addr page.Addr) *regionEntry {
	if addr == 0 {
		return nil
	}
	for _, e := range a.regions {
		if e.r.Contains(addr) {
			return e
		}
	}
	return nil
}

// ImmutableAvailable returns the number of free immutable pages.
func (a *Allocator) ImmutableAvailable() int {
	return a.imm.available()
}

// GeneralInUse returns the number of pages handed out by the general pool.
func (a *Allocator) GeneralInUse() int {
	return int(a.general.inUse.Load())
}

// Close releases the immutable pool. Regions must have been released.
func (a *Allocator) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	if n := len(a.regions); n > 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: %d regions still live", page.ErrInvalidArgument, n)
	}
	a.closed = true
	a.mu.Unlock()

	a.res.ReleaseMemory(int64(a.imm.size() * page.Size))
	return a.imm.close()
}
