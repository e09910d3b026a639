package region

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/vm"
)

var (
	// ErrAccessDenied is returned for accesses the region's flags forbid.
	ErrAccessDenied = errors.New("region: access denied")
	// ErrOutOfRange is returned for accesses beyond the end of the region.
	ErrOutOfRange = errors.New("region: access out of range")
)

// FaultHandler resolves client faults. It is called with the faulting offset
// relative to the region's base and must return only once want is granted on
// the page, or with an error.
type FaultHandler interface {
	MapHook(ctx context.Context, r *Region, offset uint64, want vm.Prot) error
}

// Region is a contiguous range of client-visible pages.
type Region struct {
	base   page.Addr
	size   uint64
	flags  vm.Prot
	space  *vm.Space
	faults FaultHandler
}

// New binds a region of size bytes at base in space.
func New(space *vm.Space, base page.Addr, size uint64, flags vm.Prot, faults FaultHandler) *Region {
	return &Region{
		base:   base,
		size:   size,
		flags:  flags,
		space:  space,
		faults: faults,
	}
}

// Base returns the address of the first page.
func (r *Region) Base() page.Addr { return r.base }

// Size returns the size in bytes.
func (r *Region) Size() uint64 { return r.size }

// Flags returns the rights clients may obtain.
func (r *Region) Flags() vm.Prot { return r.flags }

// Pages returns the number of pages.
func (r *Region) Pages() int { return int(r.size >> page.Shift) }

// Page returns the address of the i-th page.
func (r *Region) Page(i int) page.Addr { return r.base.Add(i) }

// Contains reports whether addr lies inside the region.
func (r *Region) Contains(addr page.Addr) bool {
	return addr >= r.base && uint64(addr-r.base) < r.size
}

// ReadAt reads len(p) bytes starting at off.
func (r *Region) ReadAt(ctx context.Context, p []byte, off uint64) (int, error) {
	return r.access(ctx, off, len(p), vm.ProtRead, func(v page.View, pageOff, done int) int {
		return v.ReadAt(p[done:], pageOff)
	})
}

// WriteAt writes p starting at off.
func (r *Region) WriteAt(ctx context.Context, p []byte, off uint64) (int, error) {
	return r.access(ctx, off, len(p), vm.ProtWrite, func(v page.View, pageOff, done int) int {
		return v.WriteAt(p[done:], pageOff)
	})
}

// Exec faults in execute rights on the page containing off.
func (r *Region) Exec(ctx context.Context, off uint64) error {
	_, err := r.access(ctx, off, 1, vm.ProtExec, func(page.View, int, int) int { return 1 })
	return err
}

func (r *Region) access(ctx context.Context, off uint64, n int, want vm.Prot, fn func(v page.View, pageOff, done int) int) (int, error) {
	if !r.flags.Has(want) {
		return 0, fmt.Errorf("%w: %s on %s region", ErrAccessDenied, want, r.flags)
	}
	if off > r.size || uint64(n) > r.size-off {
		return 0, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, off, off+uint64(n), r.size)
	}

	done := 0
	for done < n {
		cur := off + uint64(done)
		addr := page.Trunc(r.base + page.Addr(cur))
		pageOff := int(cur - uint64(addr-r.base))

		ok, err := r.space.Access(addr, want, func(v page.View) {
			done += fn(v, pageOff, done)
		})
		if err != nil {
			return done, err
		}
		if ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := r.faults.MapHook(ctx, r, cur, want); err != nil {
			return done, err
		}
	}
	return done, nil
}

func (r *Region) String() string {
	return fmt.Sprintf("region[%s+%d %s]", r.base, r.size, r.flags)
}
