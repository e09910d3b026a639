package page

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for identical, misaligned or unknown pages
	// and malformed allocation requests.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInconsistentState is returned when the assumed merge mode does not match
	// the actual merge state of a page.
	ErrInconsistentState = errors.New("inconsistent merge state")

	// ErrContentMismatch is returned when page contents differ after the pages
	// were locked.
	ErrContentMismatch = errors.New("page content mismatch")

	// ErrNotMerged is returned when unmerging a page that is not merged.
	ErrNotMerged = fmt.Errorf("page not merged: %w", ErrContentMismatch)

	// ErrOutOfMemory is returned when a pool or quota is exhausted.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrUnsupportedType is returned for allocation requests of an unknown type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrMappingFailed is returned when an underlying map/unmap primitive fails.
	// It indicates a bookkeeping bug in a lower layer and is fatal.
	ErrMappingFailed = errors.New("mapping primitive failed")
)

// Recoverable reports whether err only means "operation not applicable now".
func Recoverable(err error) bool {
	return errors.Is(err, ErrInconsistentState) ||
		errors.Is(err, ErrContentMismatch) ||
		errors.Is(err, ErrOutOfMemory)
}
