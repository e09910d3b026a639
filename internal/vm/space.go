package vm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/samepage/internal/page"
)

var (
	// ErrNotReserved is returned when mapping outside every reserved range.
	ErrNotReserved = errors.New("vm: address not reserved")
	// ErrNotMapped is returned for addresses without a page-table entry.
	ErrNotMapped = errors.New("vm: address not mapped")
	// ErrMisaligned is returned for addresses or sizes not on a page boundary.
	ErrMisaligned = errors.New("vm: misaligned address")
)

// DefaultBase is the lowest address handed out by Reserve.
const DefaultBase page.Addr = 0x10000000

type pte struct {
	mu      sync.RWMutex
	frame   *Frame
	prot    Prot
	granted Prot
}

type reservation struct {
	start page.Addr
	size  uint64
}

func (r reservation) contains(a page.Addr) bool {
	return a >= r.start && uint64(a-r.start) < r.size
}

// Space is the service's address space.
type Space struct {
	mu       sync.RWMutex
	next     page.Addr
	reserved []reservation
	ptes     map[page.Addr]*pte
}

// NewSpace creates an empty address space that reserves from base upwards.
// base is truncated to the page boundary; zero selects DefaultBase.
func NewSpace(base page.Addr) *Space {
	if base == 0 {
		base = DefaultBase
	}
	return &Space{
		next: page.Trunc(base),
		ptes: make(map[page.Addr]*pte),
	}
}

// Reserve reserves size bytes of address space aligned to align (a power of
// two not below the page size; zero means page alignment). size must be a
// page multiple. Reservations are separated by an unmapped guard page.
func (s *Space) Reserve(size, align uint64) (page.Addr, error) {
	if size == 0 || page.Round(size) != size {
		return 0, fmt.Errorf("%w: size %d", ErrMisaligned, size)
	}
	if align < uint64(page.Size) {
		align = uint64(page.Size)
	}
	if align&(align-1) != 0 {
		return 0, fmt.Errorf("%w: alignment %d", ErrMisaligned, align)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := page.Addr((uint64(s.next) + align - 1) &^ (align - 1))
	s.reserved = append(s.reserved, reservation{start: start, size: size})
	s.next = start + page.Addr(size) + page.Addr(page.Size)
	return start, nil
}

// Free drops the reservation starting at start together with every mapping
// inside it.
func (s *Space) Free(start page.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.reserved {
		if r.start != start {
			continue
		}
		for a := r.start; uint64(a-r.start) < r.size; a = a.Add(1) {
			delete(s.ptes, a)
		}
		s.reserved = append(s.reserved[:i], s.reserved[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotReserved, start)
}

func (s *Space) reservedLocked(a page.Addr) bool {
	for _, r := range s.reserved {
		if r.contains(a) {
			return true
		}
	}
	return false
}

// Map installs f at addr with prot, replacing any previous mapping and
// revoking every right clients held on addr.
func (s *Space) Map(addr page.Addr, f *Frame, prot Prot) error {
	if !addr.Aligned() {
		return fmt.Errorf("%w: %s", ErrMisaligned, addr)
	}
	if f == nil {
		return fmt.Errorf("vm: map %s: nil frame", addr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reservedLocked(addr) {
		return fmt.Errorf("%w: %s", ErrNotReserved, addr)
	}
	s.ptes[addr] = &pte{frame: f, prot: prot}
	return nil
}

// Unmap removes the mapping at addr.
func (s *Space) Unmap(addr page.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ptes[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrNotMapped, addr)
	}
	delete(s.ptes, addr)
	return nil
}

// UnmapOthers revokes every right clients hold on addr. The service's own
// mapping is left intact.
func (s *Space) UnmapOthers(addr page.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.ptes[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMapped, addr)
	}
	e.granted = ProtNone
	return nil
}

// Lookup returns the frame and protection mapped at addr.
func (s *Space) Lookup(addr page.Addr) (*Frame, Prot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.ptes[addr]
	if !ok {
		return nil, ProtNone, fmt.Errorf("%w: %s", ErrNotMapped, addr)
	}
	return e.frame, e.prot, nil
}

// Grant hands clients the rights in want that the mapping at addr permits
// and returns what was granted.
func (s *Space) Grant(addr page.Addr, want Prot) (Prot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.ptes[addr]
	if !ok {
		return ProtNone, fmt.Errorf("%w: %s", ErrNotMapped, addr)
	}
	e.granted |= want & e.prot
	return e.granted, nil
}

// Access runs fn on the page at addr if clients currently hold want on it.
// It reports false, without calling fn, when the rights are missing and the
// client has to fault. Write accesses to one page are serialized against
// every other access to it.
func (s *Space) Access(addr page.Addr, want Prot, fn func(page.View)) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.ptes[addr]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotMapped, addr)
	}
	if !e.granted.Has(want) {
		return false, nil
	}
	if want.Has(ProtWrite) {
		e.mu.Lock()
		defer e.mu.Unlock()
	} else {
		e.mu.RLock()
		defer e.mu.RUnlock()
	}
	fn(e.frame.view)
	return true, nil
}

// Read runs fn on the page at addr on behalf of the service, regardless of
// the rights clients hold. fn must not modify the page.
func (s *Space) Read(addr page.Addr, fn func(page.View)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.ptes[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMapped, addr)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.frame.view)
	return nil
}

// Mapped returns the number of pages with a page-table entry.
func (s *Space) Mapped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ptes)
}
