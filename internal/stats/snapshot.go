package stats

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// CSVHeader is the header line of the statistics feed.
const CSVHeader = "time, pages_unshared, pages_saved, pages_shared, full_scans"

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Time      time.Time
	Unshared  int64
	Sharing   int64
	Shared    int64
	FullScans int64
}

// Saved returns the number of pages deduplication saved.
func (s Snapshot) Saved() int64 {
	return s.Sharing - s.Shared
}

// Total returns the number of client pages, merged or not.
func (s Snapshot) Total() int64 {
	return s.Unshared + s.Sharing
}

// CSV renders s as one feed line without the trailing newline.
func (s Snapshot) CSV() string {
	return fmt.Sprintf("%d, %d, %d, %d, %d", s.Time.UnixMilli(), s.Unshared, s.Saved(), s.Shared, s.FullScans)
}

// ParseCSV parses a line produced by CSV. The millisecond timestamp is
// restored in UTC; pages_sharing is recomputed from pages_saved.
func ParseCSV(line string) (Snapshot, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 5 {
		return Snapshot{}, fmt.Errorf("stats: want 5 fields, got %d in %q", len(fields), line)
	}
	var v [5]int64
	for i, f := range fields {
		n, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("stats: field %d of %q: %w", i, line, err)
		}
		v[i] = n
	}
	return Snapshot{
		Time:      time.UnixMilli(v[0]).UTC(),
		Unshared:  v[1],
		Sharing:   v[2] + v[3],
		Shared:    v[3],
		FullScans: v[4],
	}, nil
}

// Format writes the verbose multi-line dump of s.
func (s Snapshot) Format(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"statistics:\n"+
			"time:\t\t\t%s\n"+
			"pages_total:\t\t%d\n"+
			"pages_unshared:\t\t%d\n"+
			"pages_sharing:\t\t%d\n"+
			"pages_shared:\t\t%d\n"+
			"pages_saved:\t\t%d\n"+
			"full_scans:\t\t%d\n\n",
		s.Time.Format(time.RFC3339), s.Total(), s.Unshared, s.Sharing, s.Shared, s.Saved(), s.FullScans)
	return err
}
