package region

import (
	"fmt"

	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/vm"
)

// Type identifies the protocol an allocation request targets.
type Type uint8

const (
	// TypeUnknown is the zero Type and is always rejected.
	TypeUnknown Type = iota
	// TypeRegion requests a memory region.
	TypeRegion
)

func (t Type) String() string {
	if t == TypeRegion {
		return "region"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Request describes an allocation request.
type Request struct {
	Type Type
	// Size in bytes, rounded up to the page size.
	Size int64
	// Flags are the rights clients may obtain. Zero means read-only.
	Flags vm.Prot
	// Align is the alignment of the region's base address. Zero means page
	// alignment; otherwise it must be a power of two not below the page size.
	Align uint64
}

// Normalize validates r and returns it with the size rounded and defaults
// applied.
func (r Request) Normalize() (Request, error) {
	if r.Type != TypeRegion {
		return Request{}, fmt.Errorf("%w: %s", page.ErrUnsupportedType, r.Type)
	}
	if r.Size <= 0 {
		return Request{}, fmt.Errorf("%w: size %d", page.ErrInvalidArgument, r.Size)
	}
	if r.Flags&^vm.ProtRWX != 0 {
		return Request{}, fmt.Errorf("%w: flags %#x", page.ErrInvalidArgument, uint8(r.Flags))
	}
	if r.Align != 0 && (r.Align&(r.Align-1) != 0 || r.Align < uint64(page.Size)) {
		return Request{}, fmt.Errorf("%w: alignment %d", page.ErrInvalidArgument, r.Align)
	}

	out := r
	out.Size = int64(page.Round(uint64(r.Size)))
	if out.Flags == vm.ProtNone {
		out.Flags = vm.ProtRO
	}
	return out, nil
}
