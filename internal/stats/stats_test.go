package stats

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/samepage/blobstore"
	"github.com/hupe1980/samepage/internal/compress"
)

func fixedStats(t time.Time) *Statistics {
	s := New()
	s.now = func() time.Time { return t }
	return s
}

func TestStatistics_Counters(t *testing.T) {
	ts := time.UnixMilli(1700000000123).UTC()
	s := fixedStats(ts)

	s.IncPagesUnshared()
	s.IncPagesUnshared()
	s.IncPagesUnshared()
	s.DecPagesUnshared()
	s.DecPagesUnshared()
	s.IncPagesSharing()
	s.IncPagesSharing()
	s.IncPagesShared()
	s.IncFullScans()

	snap := s.Snapshot()
	assert.Equal(t, ts, snap.Time)
	assert.Equal(t, int64(1), snap.Unshared)
	assert.Equal(t, int64(2), snap.Sharing)
	assert.Equal(t, int64(1), snap.Shared)
	assert.Equal(t, int64(1), snap.Saved())
	assert.Equal(t, int64(3), snap.Total())
	assert.Equal(t, int64(1), snap.FullScans)

	s.DecPagesSharing()
	s.DecPagesShared()
	snap = s.Snapshot()
	assert.Equal(t, int64(1), snap.Sharing)
	assert.Equal(t, int64(0), snap.Shared)
}

func TestStatistics_Concurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				s.IncPagesSharing()
				s.DecPagesSharing()
				s.IncPagesUnshared()
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(0), snap.Sharing)
	assert.Equal(t, int64(8000), snap.Unshared)
}

func TestSnapshot_CSV(t *testing.T) {
	snap := Snapshot{
		Time:      time.UnixMilli(1700000000123).UTC(),
		Unshared:  4,
		Sharing:   6,
		Shared:    2,
		FullScans: 9,
	}
	line := snap.CSV()
	assert.Equal(t, "1700000000123, 4, 4, 2, 9", line)

	got, err := ParseCSV(line)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	_, err = ParseCSV("1, 2, 3")
	assert.Error(t, err)
	_, err = ParseCSV("1, 2, x, 3, 4")
	assert.Error(t, err)
}

func TestSnapshot_Format(t *testing.T) {
	snap := Snapshot{Time: time.Unix(0, 0).UTC(), Unshared: 1, Sharing: 2, Shared: 1}
	var buf bytes.Buffer
	require.NoError(t, snap.Format(&buf))
	out := buf.String()
	assert.Contains(t, out, "pages_total:\t\t3\n")
	assert.Contains(t, out, "pages_saved:\t\t1\n")
	assert.True(t, strings.HasPrefix(out, "statistics:\n"))
}

func TestWriterSink_HeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	ctx := t.Context()

	require.NoError(t, sink.Emit(ctx, Snapshot{Time: time.UnixMilli(1)}))
	require.NoError(t, sink.Emit(ctx, Snapshot{Time: time.UnixMilli(2), Unshared: 1}))
	require.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, CSVHeader, lines[0])
	assert.Equal(t, "1, 0, 0, 0, 0", lines[1])
	assert.Equal(t, "2, 1, 0, 0, 0", lines[2])
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := NewLogSink(logger, slog.LevelInfo)

	require.NoError(t, sink.Emit(t.Context(), Snapshot{Sharing: 3, Shared: 1}))
	assert.Contains(t, buf.String(), "pages_saved=2")
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w, "host-a")

	snap := Snapshot{Time: time.UnixMilli(42), Unshared: 1, Sharing: 2, Shared: 1}
	require.NoError(t, sink.Emit(t.Context(), snap))
	require.NoError(t, sink.Close())

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("host-a"), w.msgs[0].Key)
	assert.Equal(t, snap.CSV(), string(w.msgs[0].Value))
	assert.True(t, w.closed)
}

func TestArchiveSink_RoundTrip(t *testing.T) {
	for _, codec := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		t.Run(codec.String(), func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			sink := NewArchiveSink(store, codec, 2)
			ctx := t.Context()

			var want []Snapshot
			for i := range 5 {
				snap := Snapshot{Time: time.UnixMilli(int64(1000 + i)).UTC(), Unshared: int64(i), FullScans: 1}
				want = append(want, snap)
				require.NoError(t, sink.Emit(ctx, snap))
			}
			// two full batches, one pending
			assert.Equal(t, 2, store.Len())

			require.NoError(t, sink.Close())
			assert.Equal(t, 3, store.Len())

			got, err := ReadArchive(ctx, store)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

type failStore struct{ blobstore.Store }

func (failStore) Put(context.Context, string, []byte) error { return errors.New("boom") }

func TestArchiveSink_PutFailureKeepsBatch(t *testing.T) {
	sink := NewArchiveSink(failStore{blobstore.NewMemoryStore()}, compress.None, 1)
	err := sink.Emit(t.Context(), Snapshot{Time: time.UnixMilli(1)})
	require.Error(t, err)
	assert.Equal(t, 1, sink.n)
}

type countingSink struct {
	mu     sync.Mutex
	n      int
	closed bool
	err    error
}

func (s *countingSink) Emit(context.Context, Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.err
}

func (s *countingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestReporter_RunEmitsAndCloses(t *testing.T) {
	good := &countingSink{}
	bad := &countingSink{err: errors.New("unreachable")}
	r := NewReporter(New(), 5*time.Millisecond, slog.New(slog.DiscardHandler), good, bad)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	good.mu.Lock()
	defer good.mu.Unlock()
	assert.GreaterOrEqual(t, good.n, 2)
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestReporter_DefaultInterval(t *testing.T) {
	r := NewReporter(New(), 0, nil)
	assert.Equal(t, DefaultReportInterval, r.interval)
}

func TestCollector(t *testing.T) {
	s := New()
	s.IncPagesSharing()
	s.IncPagesSharing()
	s.IncPagesShared()
	s.IncFullScans()

	c := NewCollector(s, "samepage")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	assert.Equal(t, 5, testutil.CollectAndCount(c))

	expected := `
# HELP samepage_pages_shared Live shared backing pages.
# TYPE samepage_pages_shared gauge
samepage_pages_shared 1
# HELP samepage_pages_saved Pages saved by deduplication.
# TYPE samepage_pages_saved gauge
samepage_pages_saved 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "samepage_pages_shared", "samepage_pages_saved"))
}
