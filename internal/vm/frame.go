package vm

import (
	"fmt"

	"github.com/hupe1980/samepage/internal/page"
)

// Frame is the physical storage behind one page.
type Frame struct {
	view page.View
	kind page.Kind
	pool uint32
	slot uint32
}

// NewFrame binds b, which must be exactly one page, to a frame owned by
// slot of pool.
func NewFrame(b []byte, kind page.Kind, pool, slot uint32) (*Frame, error) {
	v, err := page.NewView(b)
	if err != nil {
		return nil, err
	}
	return &Frame{view: v, kind: kind, pool: pool, slot: slot}, nil
}

// View returns the bounds-checked contents of the frame.
func (f *Frame) View() page.View { return f.view }

// Kind reports the pool kind the frame was drawn from.
func (f *Frame) Kind() page.Kind { return f.kind }

// Pool identifies the owning pool.
func (f *Frame) Pool() uint32 { return f.pool }

// Slot is the index of the frame inside its pool.
func (f *Frame) Slot() uint32 { return f.slot }

func (f *Frame) String() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s:%d/%d", f.kind, f.pool, f.slot)
}
