package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/samepage/internal/lock"
	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/vm"
)

type fakeCollaborator struct {
	*lock.PageTable

	mu        sync.Mutex
	immFree   int
	allocErr  error
	shared    int
	sharing   int
	unshared  int
	nextGroup int
	memberOf  map[page.Addr]int
	groupSize map[int]int
	freedImm  []*vm.Frame
}

func newFakeCollaborator(immPages int) *fakeCollaborator {
	return &fakeCollaborator{
		PageTable: lock.NewPageTable(),
		immFree:   immPages,
		memberOf:  make(map[page.Addr]int),
		groupSize: make(map[int]int),
	}
}

func (c *fakeCollaborator) AllocatePage(_ context.Context, kind page.Kind, _ page.Addr) (*vm.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocErr != nil {
		return nil, c.allocErr
	}
	if kind == page.Immutable {
		if c.immFree == 0 {
			return nil, page.ErrOutOfMemory
		}
		c.immFree--
		c.shared++
	} else {
		c.unshared++
	}
	return vm.NewFrame(make([]byte, page.Size), kind, 9, 0)
}

func (c *fakeCollaborator) FreePage(_ context.Context, kind page.Kind, f *vm.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == page.Immutable {
		c.immFree++
		c.shared--
		c.freedImm = append(c.freedImm, f)
	} else {
		c.unshared--
	}
	return nil
}

func (c *fakeCollaborator) IncPagesSharing() { c.mu.Lock(); c.sharing++; c.mu.Unlock() }
func (c *fakeCollaborator) DecPagesSharing() { c.mu.Lock(); c.sharing--; c.mu.Unlock() }

func (c *fakeCollaborator) PageMergeNotification(_ context.Context, page1, page2 page.Addr, mode page.MergeMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.memberOf[page1]
	if mode == page.MergeVolatile || !ok {
		c.nextGroup++
		g = c.nextGroup
		c.memberOf[page1] = g
		c.groupSize[g]++
	}
	c.memberOf[page2] = g
	c.groupSize[g]++
}

func (c *fakeCollaborator) PageUnmergeNotification(_ context.Context, addr page.Addr) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.memberOf[addr]
	if !ok {
		return false
	}
	delete(c.memberOf, addr)
	c.groupSize[g]--
	if c.groupSize[g] == 0 {
		delete(c.groupSize, g)
		return true
	}
	return false
}

type fixture struct {
	e     *Engine
	c     *fakeCollaborator
	space *vm.Space
	base  page.Addr
	ctx   context.Context
}

// newFixture maps one volatile page per fill byte.
func newFixture(t *testing.T, immPages int, fills ...byte) *fixture {
	t.Helper()
	space := vm.NewSpace(0)
	base, err := space.Reserve(uint64(len(fills)*page.Size), 0)
	require.NoError(t, err)

	c := newFakeCollaborator(immPages)
	for i, b := range fills {
		f, err := vm.NewFrame(make([]byte, page.Size), page.Volatile, 2, uint32(i))
		require.NoError(t, err)
		f.View().Fill(b)
		require.NoError(t, space.Map(base.Add(i), f, vm.ProtRWX))
		c.unshared++
	}
	return &fixture{
		e:     New(Config{Space: space, Collaborator: c}),
		c:     c,
		space: space,
		base:  base,
		ctx:   lock.WithOwner(t.Context()),
	}
}

func (f *fixture) page(i int) page.Addr { return f.base.Add(i) }

func (f *fixture) content(t *testing.T, i int) []byte {
	t.Helper()
	buf := make([]byte, page.Size)
	require.NoError(t, f.e.ReadPage(f.page(i), buf))
	return buf
}

func TestMergePages_VolatileThenImmutable(t *testing.T) {
	f := newFixture(t, 4, 7, 7, 7)

	require.NoError(t, f.e.MergePages(f.ctx, f.page(0), f.page(1), page.MergeVolatile))
	assert.True(t, f.e.IsMergedPage(f.page(0)))
	assert.True(t, f.e.IsMergedPage(f.page(1)))
	assert.Equal(t, 1, f.c.shared)
	assert.Equal(t, 2, f.c.sharing)
	assert.Equal(t, 1, f.c.unshared)

	b0, _ := f.e.Backing(f.page(0))
	b1, _ := f.e.Backing(f.page(1))
	assert.Same(t, b0, b1)
	_, prot, err := f.space.Lookup(f.page(0))
	require.NoError(t, err)
	assert.Equal(t, vm.ProtRO, prot)

	require.NoError(t, f.e.MergePages(f.ctx, f.page(0), f.page(2), page.MergeImmutable))
	assert.Equal(t, 1, f.c.shared)
	assert.Equal(t, 3, f.c.sharing)
	assert.Equal(t, 0, f.c.unshared)
	assert.Equal(t, 3, f.e.Merged())
}

func TestMergePages_RejectsInvalidArguments(t *testing.T) {
	f := newFixture(t, 4, 1, 1)

	err := f.e.MergePages(f.ctx, f.page(0), f.page(0), page.MergeVolatile)
	assert.ErrorIs(t, err, page.ErrInvalidArgument)

	err = f.e.MergePages(f.ctx, f.page(0)+1, f.page(1), page.MergeVolatile)
	assert.ErrorIs(t, err, page.ErrInvalidArgument)

	err = f.e.MergePages(f.ctx, f.page(0), f.page(5), page.MergeVolatile)
	assert.ErrorIs(t, err, page.ErrInvalidArgument)

	assert.Equal(t, 0, f.e.Merged())
}

func TestMergePages_InconsistentMode(t *testing.T) {
	f := newFixture(t, 4, 1, 1, 1)

	err := f.e.MergePages(f.ctx, f.page(0), f.page(1), page.MergeImmutable)
	assert.ErrorIs(t, err, page.ErrInconsistentState)

	require.NoError(t, f.e.MergePages(f.ctx, f.page(0), f.page(1), page.MergeVolatile))

	err = f.e.MergePages(f.ctx, f.page(0), f.page(2), page.MergeVolatile)
	assert.ErrorIs(t, err, page.ErrInconsistentState)
	err = f.e.MergePages(f.ctx, f.page(2), f.page(1), page.MergeImmutable)
	assert.ErrorIs(t, err, page.ErrInconsistentState)

	assert.Equal(t, 2, f.c.sharing)
	assert.False(t, page.Recoverable(page.ErrInvalidArgument))
}

func TestMergePages_NoFalseMerge(t *testing.T) {
	f := newFixture(t, 4, 0, 0)

	// Equal word sums, different content.
	_, err := f.space.Grant(f.page(0), vm.ProtRW)
	require.NoError(t, err)
	_, err = f.space.Grant(f.page(1), vm.ProtRW)
	require.NoError(t, err)
	_, _ = f.space.Access(f.page(0), vm.ProtWrite, func(v page.View) { v.WriteAt([]byte{1, 0, 0, 0, 0, 0, 0, 0, 2}, 0) })
	_, _ = f.space.Access(f.page(1), vm.ProtWrite, func(v page.View) { v.WriteAt([]byte{2, 0, 0, 0, 0, 0, 0, 0, 1}, 0) })

	before0, before1 := f.content(t, 0), f.content(t, 1)
	v0, _ := page.NewView(before0)
	v1, _ := page.NewView(before1)
	require.Equal(t, page.WordSum(v0), page.WordSum(v1))

	err = f.e.MergePages(f.ctx, f.page(0), f.page(1), page.MergeVolatile)
	require.ErrorIs(t, err, page.ErrContentMismatch)
	assert.True(t, page.Recoverable(err))

	assert.False(t, f.e.IsMergedPage(f.page(0)))
	assert.False(t, f.e.IsMergedPage(f.page(1)))
	assert.Equal(t, before0, f.content(t, 0))
	assert.Equal(t, before1, f.content(t, 1))
	assert.Equal(t, 0, f.c.shared)
	assert.Equal(t, 0, f.c.sharing)
	assert.Equal(t, 2, f.c.unshared)
}

func TestMergePages_OutOfMemoryLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, 0, 3, 3)

	err := f.e.MergePages(f.ctx, f.page(0), f.page(1), page.MergeVolatile)
	require.ErrorIs(t, err, page.ErrOutOfMemory)
	assert.Equal(t, 0, f.e.Merged())
	assert.Equal(t, 2, f.c.unshared)
}

func TestUnmergePage_RoundTrip(t *testing.T) {
	f := newFixture(t, 4, 9, 9, 9)
	want := f.content(t, 0)

	require.NoError(t, f.e.MergePages(f.ctx, f.page(0), f.page(1), page.MergeVolatile))
	require.NoError(t, f.e.MergePages(f.ctx, f.page(0), f.page(2), page.MergeImmutable))

	require.NoError(t, f.e.UnmergePage(f.ctx, f.page(0)))
	assert.False(t, f.e.IsMergedPage(f.page(0)))
	assert.True(t, f.e.IsMergedPage(f.page(1)))
	assert.True(t, f.e.IsMergedPage(f.page(2)))
	assert.Equal(t, want, f.content(t, 0))
	assert.Equal(t, 1, f.c.shared)
	assert.Equal(t, 2, f.c.sharing)
	assert.Empty(t, f.c.freedImm)

	_, prot, _ := f.space.Lookup(f.page(0))
	assert.Equal(t, vm.ProtRWX, prot)

	require.NoError(t, f.e.UnmergePage(f.ctx, f.page(1)))
	assert.Empty(t, f.c.freedImm)
	require.NoError(t, f.e.UnmergePage(f.ctx, f.page(2)))
	assert.Len(t, f.c.freedImm, 1, "backing freed once the group is empty")
	assert.Equal(t, 0, f.c.shared)
	assert.Equal(t, 0, f.c.sharing)
	assert.Equal(t, 3, f.c.unshared)

	for i := 0; i < 3; i++ {
		assert.Equal(t, want, f.content(t, i))
	}
}

func TestUnmergePage_NotMerged(t *testing.T) {
	f := newFixture(t, 4, 1)

	err := f.e.UnmergePage(f.ctx, f.page(0))
	require.ErrorIs(t, err, page.ErrNotMerged)
	assert.ErrorIs(t, err, page.ErrContentMismatch)
	assert.Equal(t, 1, f.c.unshared)
	assert.ErrorIs(t, f.e.UnmergePage(f.ctx, f.page(0)+3), page.ErrInvalidArgument)
}

func TestMapHook(t *testing.T) {
	f := newFixture(t, 4, 5, 5)
	require.NoError(t, f.e.MergePages(f.ctx, f.page(0), f.page(1), page.MergeVolatile))

	// Read faults keep the page merged.
	require.NoError(t, f.e.MapHook(f.ctx, f.base, 10, vm.ProtRead))
	assert.True(t, f.e.IsMergedPage(f.page(0)))
	ok, err := f.space.Access(f.page(0), vm.ProtRead, func(page.View) {})
	require.NoError(t, err)
	assert.True(t, ok)

	// A write fault on page 0 unmerges it and grants write.
	require.NoError(t, f.e.MapHook(f.ctx, f.base, 10, vm.ProtWrite))
	assert.False(t, f.e.IsMergedPage(f.page(0)))
	assert.True(t, f.e.IsMergedPage(f.page(1)))
	assert.Equal(t, 1, f.c.shared)
	assert.Equal(t, 1, f.c.sharing)

	ok, err = f.space.Access(f.page(0), vm.ProtWrite, func(v page.View) { v.Fill(6) })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, byte(5), f.content(t, 1)[0], "sibling unaffected by the write")

	// An exec fault at an offset inside page 1 unmerges page 1.
	require.NoError(t, f.e.MapHook(f.ctx, f.base, uint64(page.Size)+1, vm.ProtExec))
	assert.False(t, f.e.IsMergedPage(f.page(1)))
	assert.Equal(t, 0, f.c.shared)
}

func TestRetirePage(t *testing.T) {
	f := newFixture(t, 4, 5, 5)
	require.NoError(t, f.e.MergePages(f.ctx, f.page(0), f.page(1), page.MergeVolatile))

	fr, err := f.e.RetirePage(f.ctx, f.page(0))
	require.NoError(t, err)
	assert.Equal(t, page.Volatile, fr.Kind())
	assert.False(t, f.e.IsMergedPage(f.page(0)))

	_, _, err = f.space.Lookup(f.page(0))
	assert.ErrorIs(t, err, vm.ErrNotMapped)

	_, err = f.e.RetirePage(f.ctx, f.page(0))
	assert.ErrorIs(t, err, page.ErrInvalidArgument)
}

func TestMergePages_ConcurrentWithFaults(t *testing.T) {
	const n = 8
	fills := make([]byte, n)
	f := newFixture(t, n, fills...)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx := lock.WithOwner(context.Background())
		for round := 0; round < 50; round++ {
			for i := 0; i+1 < n; i += 2 {
				_ = f.e.MergePages(ctx, f.page(i+1), f.page(i), page.MergeVolatile)
			}
		}
	}()
	go func() {
		defer wg.Done()
		ctx := lock.WithOwner(context.Background())
		for round := 0; round < 50; round++ {
			for i := 0; i < n; i++ {
				if err := f.e.MapHook(ctx, f.base, uint64(i*page.Size), vm.ProtWrite); err != nil {
					t.Error(err)
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()
	wg.Wait()

	// Conservation at the quiescent point.
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	total := 0
	for _, size := range f.c.groupSize {
		total += size
	}
	assert.Equal(t, total, f.c.sharing)
	assert.Equal(t, len(f.c.groupSize), f.c.shared)
	assert.Equal(t, f.e.Merged(), f.c.sharing)
	assert.Equal(t, n, f.c.sharing+f.c.unshared)
}

func TestMergePages_MetricsRecorded(t *testing.T) {
	f := newFixture(t, 4, 1, 2)
	m := &recordingMetrics{}
	f.e.metrics = m

	err := f.e.MergePages(f.ctx, f.page(0), f.page(1), page.MergeVolatile)
	require.Error(t, err)
	require.Len(t, m.merges, 1)
	assert.True(t, errors.Is(m.merges[0], page.ErrContentMismatch))
}

type recordingMetrics struct {
	merges   []error
	unmerges []error
}

func (m *recordingMetrics) RecordMerge(_ page.MergeMode, _ time.Duration, err error) {
	m.merges = append(m.merges, err)
}

func (m *recordingMetrics) RecordUnmerge(_ time.Duration, err error) {
	m.unmerges = append(m.unmerges, err)
}
