package alloc

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/region"
	"github.com/hupe1980/samepage/internal/resource"
	"github.com/hupe1980/samepage/internal/vm"
)

type fakeCollaborator struct {
	space *vm.Space

	mu         sync.Mutex
	registered map[page.Addr]bool
	unshared   int
	shared     int
}

func newFakeCollaborator(space *vm.Space) *fakeCollaborator {
	return &fakeCollaborator{space: space, registered: make(map[page.Addr]bool)}
}

func (c *fakeCollaborator) RegisterPage(_ context.Context, addr page.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered[addr] = true
}

func (c *fakeCollaborator) UnregisterPage(_ context.Context, addr page.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.registered, addr)
}

func (c *fakeCollaborator) IncPagesUnshared() { c.mu.Lock(); c.unshared++; c.mu.Unlock() }
func (c *fakeCollaborator) DecPagesUnshared() { c.mu.Lock(); c.unshared--; c.mu.Unlock() }
func (c *fakeCollaborator) IncPagesShared()   { c.mu.Lock(); c.shared++; c.mu.Unlock() }
func (c *fakeCollaborator) DecPagesShared()   { c.mu.Lock(); c.shared--; c.mu.Unlock() }

func (c *fakeCollaborator) RetirePage(_ context.Context, addr page.Addr) (*vm.Frame, error) {
	f, _, err := c.space.Lookup(addr)
	if err != nil {
		return nil, err
	}
	return f, c.space.Unmap(addr)
}

type grantAll struct{ space *vm.Space }

func (g grantAll) MapHook(_ context.Context, r *region.Region, off uint64, want vm.Prot) error {
	_, err := g.space.Grant(page.Trunc(r.Base()+page.Addr(off)), want|vm.ProtRead)
	return err
}

func newAllocator(t *testing.T, immPages int, res *resource.Controller) (*Allocator, *fakeCollaborator, *vm.Space) {
	t.Helper()
	space := vm.NewSpace(0)
	c := newFakeCollaborator(space)
	a, err := New(Config{
		Space:          space,
		Collaborator:   c,
		Faults:         grantAll{space: space},
		Resources:      res,
		ImmutablePages: immPages,
	})
	require.NoError(t, err)
	return a, c, space
}

func TestAllocator_CreateRegion(t *testing.T) {
	a, c, space := newAllocator(t, 4, nil)
	ctx := t.Context()

	r, err := a.CreateRegion(ctx, region.Request{Type: region.TypeRegion, Size: int64(3*page.Size - 1), Flags: vm.ProtRW})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Pages())
	assert.Equal(t, 3, c.unshared)
	assert.Len(t, c.registered, 3)
	assert.Equal(t, 3, space.Mapped())

	got := make([]byte, r.Size())
	_, err = r.ReadAt(ctx, got, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, r.Size()), got, "regions start zero-filled")

	found, ok := a.RegionOf(r.Page(2))
	require.True(t, ok)
	assert.Same(t, r, found)

	require.NoError(t, a.ReleaseRegion(ctx, r))
	assert.Equal(t, 0, c.unshared)
	assert.Empty(t, c.registered)
	assert.Equal(t, 0, space.Mapped())
	assert.Empty(t, a.Regions())

	require.Error(t, a.ReleaseRegion(ctx, r))
	require.NoError(t, a.Close())
}

func TestAllocator_CreateRegionRejects(t *testing.T) {
	a, _, _ := newAllocator(t, 1, nil)
	ctx := t.Context()

	_, err := a.CreateRegion(ctx, region.Request{Size: 1})
	assert.ErrorIs(t, err, page.ErrUnsupportedType)

	_, err = a.CreateRegion(ctx, region.Request{Type: region.TypeRegion})
	assert.ErrorIs(t, err, page.ErrInvalidArgument)
}

func TestAllocator_MemoryLimit(t *testing.T) {
	res := resource.NewController(resource.Config{MemoryLimitBytes: int64(3 * page.Size)})
	a, _, _ := newAllocator(t, 1, res)
	ctx := t.Context()

	_, err := a.CreateRegion(ctx, region.Request{Type: region.TypeRegion, Size: int64(3 * page.Size)})
	assert.ErrorIs(t, err, page.ErrOutOfMemory)

	r, err := a.CreateRegion(ctx, region.Request{Type: region.TypeRegion, Size: int64(2 * page.Size)})
	require.NoError(t, err)
	assert.Equal(t, int64(3*page.Size), res.MemoryUsage())

	require.NoError(t, a.ReleaseRegion(ctx, r))
	require.NoError(t, a.Close())
	assert.Equal(t, int64(0), res.MemoryUsage())
}

func TestAllocator_ImmutablePool(t *testing.T) {
	a, c, _ := newAllocator(t, 2, nil)
	ctx := t.Context()

	f1, err := a.AllocatePage(ctx, page.Immutable, 0)
	require.NoError(t, err)
	f2, err := a.AllocatePage(ctx, page.Immutable, 0)
	require.NoError(t, err)
	assert.NotSame(t, f1, f2)
	assert.Equal(t, 2, c.shared)

	_, err = a.AllocatePage(ctx, page.Immutable, 0)
	require.ErrorIs(t, err, page.ErrOutOfMemory)
	assert.Equal(t, 0, a.ImmutableAvailable())

	require.NoError(t, a.FreePage(ctx, page.Immutable, f1))
	require.ErrorIs(t, a.FreePage(ctx, page.Immutable, f1), page.ErrInvalidArgument, "double free")
	assert.Equal(t, 1, c.shared)

	require.ErrorIs(t, a.FreePage(ctx, page.Volatile, f2), page.ErrInvalidArgument, "kind mismatch")

	f3, err := a.AllocatePage(ctx, page.Immutable, 0)
	require.NoError(t, err)
	assert.Same(t, f1, f3, "lowest free slot first")
}

func TestAllocator_VolatileHint(t *testing.T) {
	a, c, space := newAllocator(t, 1, nil)
	ctx := t.Context()

	r, err := a.CreateRegion(ctx, region.Request{Type: region.TypeRegion, Size: int64(2 * page.Size)})
	require.NoError(t, err)

	// Give page 1's storage back, as a merge would.
	old, _, err := space.Lookup(r.Page(1))
	require.NoError(t, err)
	require.NoError(t, a.FreePage(ctx, page.Volatile, old))
	assert.Equal(t, 1, c.unshared)

	f, err := a.AllocatePage(ctx, page.Volatile, r.Page(1)+5)
	require.NoError(t, err)
	assert.Same(t, old, f, "hint selects the page's own slot")
	assert.Equal(t, 2, c.unshared)
	assert.True(t, c.registered[r.Page(1)])

	// Unattributable hints fall back to the general pool.
	g, err := a.AllocatePage(ctx, page.Volatile, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, a.GeneralInUse())
	require.NoError(t, a.FreePage(ctx, page.Volatile, g))
	assert.Equal(t, 0, a.GeneralInUse())
	assert.Equal(t, 2, c.unshared)
}
