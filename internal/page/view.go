package page

import (
	"bytes"
	"fmt"
)

// View is a bounds-checked window onto exactly one page of memory.
// The zero View is invalid.
type View struct {
	b []byte
}

// NewView binds b to a view. b must be exactly one page long.
func NewView(b []byte) (View, error) {
	if len(b) != Size {
		return View{}, fmt.Errorf("%w: view of %d bytes, want %d", ErrInvalidArgument, len(b), Size)
	}
	return View{b: b[:Size:Size]}, nil
}

// Valid reports whether v is bound to a page.
func (v View) Valid() bool {
	return len(v.b) == Size
}

// Equal reports whether v and o hold identical bytes.
func (v View) Equal(o View) bool {
	return v.Valid() && o.Valid() && bytes.Equal(v.b, o.b)
}

// CopyFrom copies the contents of src into v.
func (v View) CopyFrom(src View) error {
	if !v.Valid() || !src.Valid() {
		return fmt.Errorf("%w: copy between invalid views", ErrInvalidArgument)
	}
	copy(v.b, src.b)
	return nil
}

// ReadAt copies bytes starting at off into p and returns the count copied.
func (v View) ReadAt(p []byte, off int) int {
	if off < 0 || off >= len(v.b) {
		return 0
	}
	return copy(p, v.b[off:])
}

// WriteAt copies p into the page starting at off and returns the count copied.
func (v View) WriteAt(p []byte, off int) int {
	if off < 0 || off >= len(v.b) {
		return 0
	}
	return copy(v.b[off:], p)
}

// Fill sets every byte of the page to c.
func (v View) Fill(c byte) {
	for i := range v.b {
		v.b[i] = c
	}
}

// Bytes exposes the underlying page. Callers must not retain it beyond the
// critical section that produced the view.
func (v View) Bytes() []byte {
	return v.b
}
