package alloc

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/samepage/internal/mmap"
	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/vm"
)

// pool is a fixed set of page frames carved out of one anonymous mapping.
type pool struct {
	id   uint32
	kind page.Kind

	mu     sync.Mutex
	m      *mmap.Mapping
	frames []*vm.Frame
	free   *roaring.Bitmap
}

func newPool(id uint32, kind page.Kind, pages int, allFree bool) (*pool, error) {
	m, err := mmap.MapAnon(pages * page.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: map %d pages: %v", page.ErrOutOfMemory, pages, err)
	}

	p := &pool{
		id:     id,
		kind:   kind,
		m:      m,
		frames: make([]*vm.Frame, pages),
		free:   roaring.New(),
	}

	b := m.Bytes()
	for i := range p.frames {
		off := i * page.Size
		f, err := vm.NewFrame(b[off:off+page.Size:off+page.Size], kind, id, uint32(i))
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		p.frames[i] = f
	}
	if allFree {
		p.free.AddRange(0, uint64(pages))
	}
	return p, nil
}

// get takes the slot prefer if it is free, else the lowest free slot.
func (p *pool) get(prefer int) (*vm.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free.IsEmpty() {
		return nil, fmt.Errorf("%w: %s pool %d exhausted", page.ErrOutOfMemory, p.kind, p.id)
	}
	slot := p.free.Minimum()
	if prefer >= 0 && p.free.Contains(uint32(prefer)) {
		slot = uint32(prefer)
	}
	p.free.Remove(slot)
	return p.frames[slot], nil
}

// put returns f to the pool and releases its physical backing.
func (p *pool) put(f *vm.Frame) error {
	slot := f.Slot()
	if f.Pool() != p.id || int(slot) >= len(p.frames) || p.frames[slot] != f {
		return fmt.Errorf("%w: frame %s not owned by pool %d", page.ErrInvalidArgument, f, p.id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free.Contains(slot) {
		return fmt.Errorf("%w: double free of %s", page.ErrInvalidArgument, f)
	}
	off := int(slot) * page.Size
	if r, err := p.m.Region(off, page.Size); err == nil {
		// Advice is best effort; the slot is reusable either way.
		_ = r.Advise(mmap.AccessDontNeed)
	}
	p.free.Add(slot)
	return nil
}

func (p *pool) frame(slot int) *vm.Frame {
	return p.frames[slot]
}

func (p *pool) available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.free.GetCardinality())
}

func (p *pool) size() int {
	return len(p.frames)
}

func (p *pool) close() error {
	return p.m.Close()
}
