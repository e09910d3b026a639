package samepage

import (
	"errors"
	"fmt"

	"github.com/hupe1980/samepage/internal/alloc"
	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/region"
	"github.com/hupe1980/samepage/internal/resource"
	"github.com/hupe1980/samepage/internal/vm"
)

var (
	// ErrInvalidArgument is returned for identical, misaligned or unknown
	// pages and malformed allocation requests.
	ErrInvalidArgument = page.ErrInvalidArgument

	// ErrInconsistentState is returned when the assumed merge mode does not
	// match the merge state of a page.
	ErrInconsistentState = page.ErrInconsistentState

	// ErrContentMismatch is returned when page contents differ after locking.
	ErrContentMismatch = page.ErrContentMismatch

	// ErrNotMerged is returned when unmerging a page that is not merged.
	// It wraps ErrContentMismatch.
	ErrNotMerged = page.ErrNotMerged

	// ErrOutOfMemory is returned when the immutable pool or the memory limit
	// is exhausted.
	ErrOutOfMemory = page.ErrOutOfMemory

	// ErrUnsupportedType is returned for allocation requests of an unknown type.
	ErrUnsupportedType = page.ErrUnsupportedType

	// ErrMappingFailed reports a failed map or unmap primitive. It is fatal.
	ErrMappingFailed = page.ErrMappingFailed

	// ErrAccessDenied is returned for region accesses the region's flags forbid.
	ErrAccessDenied = region.ErrAccessDenied

	// ErrOutOfRange is returned for accesses beyond the end of a region.
	ErrOutOfRange = region.ErrOutOfRange

	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("samepage: manager closed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("samepage: manager already started")
)

// IsRecoverable reports whether err only means "operation not applicable now".
func IsRecoverable(err error) bool {
	return page.Recoverable(err)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, alloc.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, resource.ErrMemoryLimitExceeded) && !errors.Is(err, ErrOutOfMemory) {
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	// Address-space errors mean the caller named a page we do not know.
	if (errors.Is(err, vm.ErrNotMapped) || errors.Is(err, vm.ErrNotReserved) || errors.Is(err, vm.ErrMisaligned)) &&
		!errors.Is(err, ErrInvalidArgument) && !errors.Is(err, ErrMappingFailed) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return err
}
