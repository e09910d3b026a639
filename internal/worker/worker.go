package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/resource"
)

const (
	// DefaultPagesToScan is the default number of pages per pass.
	DefaultPagesToScan = 100
	// DefaultScanInterval is the default sleep between passes.
	DefaultScanInterval = 200 * time.Millisecond
)

// State is the scanner state.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateSleeping:
		return "sleeping"
	default:
		return "idle"
	}
}

// Collaborator is what the worker needs from the rest of the service.
type Collaborator interface {
	NextPage(ctx context.Context) (page.Addr, bool)
	IsMergedPage(ctx context.Context, addr page.Addr) bool
	ReadPage(ctx context.Context, addr page.Addr, dst []byte) error
	MergePages(ctx context.Context, page1, page2 page.Addr, mode page.MergeMode) error
}

// Metrics receives per-pass scan results.
type Metrics interface {
	RecordScanPass(scanned, merged int, d time.Duration)
}

// Config configures a Worker.
type Config struct {
	Collaborator Collaborator
	// PagesToScan is the number of pages per pass.
	PagesToScan int
	// Interval is the sleep between passes.
	Interval time.Duration
	// Delay postpones the first pass.
	Delay time.Duration
	// Checksum filters unstable pages. Nil selects page.WordSum.
	Checksum page.ChecksumFunc
	// Resources paces the scan. Nil means unpaced.
	Resources *resource.Controller
	Metrics   Metrics
	Logger    *slog.Logger
}

// PassResult summarizes one scan pass.
type PassResult struct {
	Scanned  int
	Merged   int
	Unstable int
	Missed   int
}

type candidate struct {
	addr page.Addr
	sum  uint64
}

// Worker is the background scanner.
type Worker struct {
	c        Collaborator
	pages    int
	interval time.Duration
	delay    time.Duration
	checksum page.ChecksumFunc
	res      *resource.Controller
	metrics  Metrics
	logger   *slog.Logger

	state atomic.Int32

	// Merge groups, shared with the notification handlers.
	mu       sync.Mutex
	groups   map[*group]struct{}
	memberOf map[page.Addr]*group

	// Pass-local state, owned by the scanning goroutine.
	scan       sync.Mutex
	candidates []candidate
	sums       map[page.Addr]uint64
	cur        []byte
	other      []byte
}

// New creates an idle Worker.
func New(cfg Config) *Worker {
	w := &Worker{
		c:        cfg.Collaborator,
		pages:    cfg.PagesToScan,
		interval: cfg.Interval,
		delay:    cfg.Delay,
		checksum: cfg.Checksum,
		res:      cfg.Resources,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		groups:   make(map[*group]struct{}),
		memberOf: make(map[page.Addr]*group),
		sums:     make(map[page.Addr]uint64),
		cur:      make([]byte, page.Size),
		other:    make([]byte, page.Size),
	}
	if w.pages <= 0 {
		w.pages = DefaultPagesToScan
	}
	if w.interval <= 0 {
		w.interval = DefaultScanInterval
	}
	if w.checksum == nil {
		w.checksum = page.WordSum
	}
	return w
}

// State returns the current scanner state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Run scans until ctx is canceled. It returns nil on cancellation and the
// first fatal error otherwise.
func (w *Worker) Run(ctx context.Context) error {
	defer w.state.Store(int32(StateIdle))

	if w.delay > 0 && !sleep(ctx, w.delay) {
		return nil
	}

	for {
		w.state.Store(int32(StateScanning))
		if _, err := w.ScanPass(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		w.state.Store(int32(StateSleeping))
		if !sleep(ctx, w.interval) {
			return nil
		}
		w.ResetPass()
	}
}

// ResetPass discards the pass-local candidates and checksums.
func (w *Worker) ResetPass() {
	w.scan.Lock()
	defer w.scan.Unlock()

	w.candidates = w.candidates[:0]
	clear(w.sums)
}

// ScanPass scans up to PagesToScan pages. Only fatal errors are returned;
// failed merges are missed opportunities.
func (w *Worker) ScanPass(ctx context.Context) (PassResult, error) {
	w.scan.Lock()
	defer w.scan.Unlock()

	start := time.Now()
	var res PassResult

	for res.Scanned < w.pages {
		if err := w.res.AcquireScan(ctx, 1); err != nil {
			return res, err
		}
		addr, ok := w.c.NextPage(ctx)
		if !ok {
			break
		}
		res.Scanned++

		if err := w.scanPage(ctx, addr, &res); err != nil {
			return res, err
		}
	}

	if w.metrics != nil {
		w.metrics.RecordScanPass(res.Scanned, res.Merged, time.Since(start))
	}
	if w.logger != nil {
		w.logger.DebugContext(ctx, "scan pass",
			slog.Int("scanned", res.Scanned),
			slog.Int("merged", res.Merged),
			slog.Int("unstable", res.Unstable),
			slog.Int("missed", res.Missed),
			slog.Int("candidates", len(w.candidates)),
		)
	}
	return res, nil
}

func (w *Worker) scanPage(ctx context.Context, addr page.Addr, res *PassResult) error {
	if w.c.IsMergedPage(ctx, addr) {
		return nil
	}
	w.removeCandidate(addr)

	if err := w.c.ReadPage(ctx, addr, w.cur); err != nil {
		// Retired between the queue and the read.
		return nil
	}

	merged, err := w.tryGroups(ctx, addr, res)
	if merged || err != nil {
		return err
	}

	view, err := page.NewView(w.cur)
	if err != nil {
		return err
	}
	sum := w.checksum(view)
	if prev, seen := w.sums[addr]; seen && prev != sum {
		w.sums[addr] = sum
		res.Unstable++
		return nil
	}
	w.sums[addr] = sum

	merged, err = w.tryCandidates(ctx, addr, sum, res)
	if merged || err != nil {
		return err
	}
	w.candidates = append(w.candidates, candidate{addr: addr, sum: sum})
	return nil
}

// tryGroups merges addr into the first group whose representative has the
// same content.
func (w *Worker) tryGroups(ctx context.Context, addr page.Addr, res *PassResult) (bool, error) {
	for _, rep := range w.representatives() {
		if !w.sameContent(ctx, rep) {
			continue
		}
		err := w.c.MergePages(ctx, rep, addr, page.MergeImmutable)
		return w.outcome(ctx, rep, addr, err, res)
	}
	return false, nil
}

// tryCandidates merges addr with the first pass-local candidate that has the
// same checksum and content.
func (w *Worker) tryCandidates(ctx context.Context, addr page.Addr, sum uint64, res *PassResult) (bool, error) {
	for i, c := range w.candidates {
		if c.sum != sum || !w.sameContent(ctx, c.addr) {
			continue
		}
		err := w.c.MergePages(ctx, c.addr, addr, page.MergeVolatile)
		if err == nil {
			w.candidates = slices.Delete(w.candidates, i, i+1)
		}
		return w.outcome(ctx, c.addr, addr, err, res)
	}
	return false, nil
}

func (w *Worker) outcome(ctx context.Context, page1, page2 page.Addr, err error, res *PassResult) (bool, error) {
	if err == nil {
		res.Merged++
		return true, nil
	}
	if errors.Is(err, page.ErrMappingFailed) {
		return false, err
	}
	res.Missed++
	if w.logger != nil {
		w.logger.DebugContext(ctx, "missed merge",
			slog.String("page1", page1.String()),
			slog.String("page2", page2.String()),
			slog.String("error", err.Error()),
		)
	}
	return false, nil
}

// sameContent compares other against the page held in w.cur.
func (w *Worker) sameContent(ctx context.Context, other page.Addr) bool {
	if err := w.c.ReadPage(ctx, other, w.other); err != nil {
		return false
	}
	return bytes.Equal(w.cur, w.other)
}

func (w *Worker) removeCandidate(addr page.Addr) {
	w.candidates = slices.DeleteFunc(w.candidates, func(c candidate) bool { return c.addr == addr })
}

func (w *Worker) String() string {
	return fmt.Sprintf("worker[%s pages=%d interval=%s]", w.State(), w.pages, w.interval)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
