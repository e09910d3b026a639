package samepage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/samepage/internal/alloc"
	"github.com/hupe1980/samepage/internal/lock"
	"github.com/hupe1980/samepage/internal/memory"
	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/queue"
	"github.com/hupe1980/samepage/internal/resource"
	"github.com/hupe1980/samepage/internal/stats"
	"github.com/hupe1980/samepage/internal/vm"
	"github.com/hupe1980/samepage/internal/worker"
)

// Manager wires the deduplication components together. Components never
// reference each other; every cross-component call goes through a handle
// tagged with the calling component.
type Manager struct {
	opts   options
	logger *Logger

	space    *vm.Space
	res      *resource.Controller
	locks    lock.Locker
	queue    *queue.Queue
	stats    *stats.Statistics
	alloc    *alloc.Allocator
	memory   *memory.Engine
	worker   *worker.Worker
	reporter *stats.Reporter

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New creates a Manager. Background loops do not run until Start.
func New(optFns ...Option) (*Manager, error) {
	o := applyOptions(optFns)

	m := &Manager{
		opts:   o,
		logger: o.logger,
		space:  vm.NewSpace(0),
		res: resource.NewController(resource.Config{
			MemoryLimitBytes: o.memoryLimit,
			ScanPagesPerSec:  o.scanRate,
		}),
		stats: stats.New(),
	}

	switch o.lockStrategy {
	case LockGlobal:
		m.locks = lock.NewGlobal()
	default:
		m.locks = lock.NewPageTable()
	}

	m.queue = queue.New(m.handle(page.ComponentQueue))

	m.memory = memory.New(memory.Config{
		Space:        m.space,
		Collaborator: m.handle(page.ComponentMemory),
		Metrics:      o.metricsCollector,
		Logger:       o.logger.WithComponent("memory").Logger,
	})

	a, err := alloc.New(alloc.Config{
		Space:          m.space,
		Collaborator:   m.handle(page.ComponentAllocator),
		Faults:         m.handle(page.ComponentExternal),
		Resources:      m.res,
		ImmutablePages: o.immutablePages,
		Logger:         o.logger.WithComponent("allocator").Logger,
	})
	if err != nil {
		return nil, translateError(err)
	}
	m.alloc = a

	m.worker = worker.New(worker.Config{
		Collaborator: m.handle(page.ComponentWorker),
		PagesToScan:  o.pagesToScan,
		Interval:     o.scanInterval,
		Delay:        o.scanDelay,
		Checksum:     o.checksum,
		Resources:    m.res,
		Metrics:      o.metricsCollector,
		Logger:       o.logger.WithComponent("worker").Logger,
	})

	m.reporter = stats.NewReporter(m.stats, o.reportInterval,
		o.logger.WithComponent("statistics").Logger, o.sinks...)

	return m, nil
}

func (m *Manager) handle(caller page.Component) *handle {
	return &handle{m: m, caller: caller}
}

// Start launches the scanner and the statistics reporter. They run until
// ctx is canceled or Close is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := m.worker.Run(lock.WithOwner(gctx))
		if err != nil {
			m.logger.ErrorContext(gctx, "scanner stopped", slog.String("error", err.Error()))
		}
		return err
	})
	g.Go(func() error {
		return m.reporter.Run(gctx)
	})
	m.group = g

	m.logger.InfoContext(ctx, "manager started",
		slog.Int("pages_to_scan", m.opts.pagesToScan),
		slog.Duration("scan_interval", m.opts.scanInterval),
		slog.String("lock_strategy", m.opts.lockStrategy.String()),
	)
	return nil
}

// Close stops the background loops, releases every live region and returns
// the immutable pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	cancel, g := m.cancel, m.group
	m.mu.Unlock()

	var errs []error
	if started {
		cancel()
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	} else if err := m.reporter.Close(); err != nil {
		errs = append(errs, err)
	}

	ctx := lock.WithOwner(context.Background())
	for _, r := range m.alloc.Regions() {
		if err := m.alloc.ReleaseRegion(ctx, r); err != nil {
			errs = append(errs, m.check(ctx, "release", err))
		}
	}
	if err := m.alloc.Close(); err != nil {
		errs = append(errs, translateError(err))
	}

	m.logger.Info("manager closed")
	return errors.Join(errs...)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Allocate serves an allocation request with a new zero-filled region whose
// pages become merge candidates.
func (m *Manager) Allocate(ctx context.Context, req Request) (*Region, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	ctx = lock.WithOwner(ctx)

	r, err := m.alloc.CreateRegion(ctx, req)
	if err != nil {
		m.logger.LogRegion(ctx, "allocate", 0, uint64(max(req.Size, 0)), err)
		return nil, translateError(m.check(ctx, "allocate", err))
	}
	return r, nil
}

// Release retires every page of r and returns its storage. Merged pages are
// unmerged first.
func (m *Manager) Release(ctx context.Context, r *Region) error {
	if r == nil {
		return fmt.Errorf("%w: nil region", ErrInvalidArgument)
	}
	ctx = lock.WithOwner(ctx)

	err := m.alloc.ReleaseRegion(ctx, r)
	m.logger.LogRegion(ctx, "release", r.Base(), r.Size(), err)
	return translateError(m.check(ctx, "release", err))
}

// MergePages merges page2 into page1. In MergeVolatile mode both pages must
// be unmerged; in MergeImmutable mode page1 must already be merged.
func (m *Manager) MergePages(ctx context.Context, page1, page2 Addr, mode MergeMode) error {
	ctx = lock.WithOwner(ctx)
	return translateError(m.handle(page.ComponentExternal).MergePages(ctx, page1, page2, mode))
}

// UnmergePage gives a merged page a private writable copy of its content.
func (m *Manager) UnmergePage(ctx context.Context, addr Addr) error {
	ctx = lock.WithOwner(ctx)

	err := m.memory.UnmergePage(ctx, addr)
	m.logger.LogUnmerge(ctx, addr, err)
	return translateError(m.check(ctx, "unmerge_page", err))
}

// IsMergedPage reports whether addr is currently backed by a shared page.
func (m *Manager) IsMergedPage(addr Addr) bool {
	return m.memory.IsMergedPage(addr)
}

// ScanPass runs one scanner pass synchronously. It is meant for callers that
// drive the scanner themselves instead of calling Start.
func (m *Manager) ScanPass(ctx context.Context) (PassResult, error) {
	ctx = lock.WithOwner(ctx)

	start := time.Now()
	res, err := m.worker.ScanPass(ctx)
	m.logger.LogScanPass(ctx, res, time.Since(start), err)
	return res, translateError(err)
}

// ResetPass forgets the candidates and checksums of the current pass.
func (m *Manager) ResetPass() {
	m.worker.ResetPass()
}

// Snapshot returns the current deduplication counters.
func (m *Manager) Snapshot() Snapshot {
	return m.stats.Snapshot()
}

// WorkerState returns the scanner state.
func (m *Manager) WorkerState() WorkerState {
	return m.worker.State()
}

// MergeGroups returns the size of every live merge group.
func (m *Manager) MergeGroups() []int {
	return m.worker.GroupSizes()
}

// Regions returns the live regions.
func (m *Manager) Regions() []*Region {
	return m.alloc.Regions()
}

// ImmutableAvailable returns the number of free pages in the immutable pool.
func (m *Manager) ImmutableAvailable() int {
	return m.alloc.ImmutableAvailable()
}

// check escalates mapping failures to the fatal handler and passes every
// error through.
func (m *Manager) check(ctx context.Context, op string, err error) error {
	if err != nil && errors.Is(err, page.ErrMappingFailed) {
		m.logger.ErrorContext(ctx, "mapping primitive failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		m.opts.fatal(err)
	}
	return err
}
