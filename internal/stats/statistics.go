package stats

import (
	"sync"
	"time"
)

// Statistics holds the deduplication counters.
type Statistics struct {
	mu        sync.Mutex
	unshared  int64
	sharing   int64
	shared    int64
	fullScans int64

	now func() time.Time
}

// New returns zeroed counters.
func New() *Statistics {
	return &Statistics{now: time.Now}
}

func (s *Statistics) add(c *int64, d int64) {
	s.mu.Lock()
	*c += d
	s.mu.Unlock()
}

func (s *Statistics) IncPagesUnshared() { s.add(&s.unshared, 1) }
func (s *Statistics) DecPagesUnshared() { s.add(&s.unshared, -1) }
func (s *Statistics) IncPagesSharing()  { s.add(&s.sharing, 1) }
func (s *Statistics) DecPagesSharing()  { s.add(&s.sharing, -1) }
func (s *Statistics) IncPagesShared()   { s.add(&s.shared, 1) }
func (s *Statistics) DecPagesShared()   { s.add(&s.shared, -1) }
func (s *Statistics) IncFullScans()     { s.add(&s.fullScans, 1) }

// Snapshot returns a consistent, timestamped copy of the counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Time:      s.now(),
		Unshared:  s.unshared,
		Sharing:   s.sharing,
		Shared:    s.shared,
		FullScans: s.fullScans,
	}
}
