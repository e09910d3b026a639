package alloc

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/samepage/internal/mem"
	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/resource"
	"github.com/hupe1980/samepage/internal/vm"
)

// generalPoolID identifies frames of the general pool.
const generalPoolID uint32 = 1

// generalPool hands out aligned heap pages charged against the memory quota.
type generalPool struct {
	res   *resource.Controller
	inUse atomic.Int64
}

func (g *generalPool) get() (*vm.Frame, error) {
	if err := g.res.AcquireMemory(int64(page.Size)); err != nil {
		return nil, fmt.Errorf("%w: %v", page.ErrOutOfMemory, err)
	}
	f, err := vm.NewFrame(mem.AllocAligned(page.Size, page.Size), page.Volatile, generalPoolID, 0)
	if err != nil {
		g.res.ReleaseMemory(int64(page.Size))
		return nil, err
	}
	g.inUse.Add(1)
	return f, nil
}

func (g *generalPool) put(f *vm.Frame) error {
	if f.Pool() != generalPoolID {
		return fmt.Errorf("%w: frame %s not owned by the general pool", page.ErrInvalidArgument, f)
	}
	g.res.ReleaseMemory(int64(page.Size))
	g.inUse.Add(-1)
	return nil
}
