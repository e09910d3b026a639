package stats

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/samepage/blobstore"
	"github.com/hupe1980/samepage/internal/compress"
)

const (
	// DefaultArchiveBatch is the default number of snapshots per archive object.
	DefaultArchiveBatch = 120

	archivePrefix = "stats/"
)

// ArchiveSink batches snapshots and stores every batch as one compressed CSV
// object named after the time of its first snapshot.
type ArchiveSink struct {
	store blobstore.Store
	codec compress.Type
	batch int

	mu    sync.Mutex
	buf   bytes.Buffer
	n     int
	first int64
}

// NewArchiveSink creates an ArchiveSink. A non-positive batch selects
// DefaultArchiveBatch.
func NewArchiveSink(store blobstore.Store, codec compress.Type, batch int) *ArchiveSink {
	if batch <= 0 {
		batch = DefaultArchiveBatch
	}
	return &ArchiveSink{store: store, codec: codec, batch: batch}
}

// Emit implements Sink.
func (s *ArchiveSink) Emit(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.n == 0 {
		s.first = snap.Time.UnixMilli()
		s.buf.WriteString(CSVHeader)
		s.buf.WriteByte('\n')
	}
	s.buf.WriteString(snap.CSV())
	s.buf.WriteByte('\n')
	s.n++

	if s.n < s.batch {
		return nil
	}
	return s.flushLocked(ctx)
}

// Flush stores the pending batch, if any.
func (s *ArchiveSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *ArchiveSink) flushLocked(ctx context.Context) error {
	if s.n == 0 {
		return nil
	}
	block, err := compress.Encode(s.buf.Bytes(), s.codec)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s%013d.csv%s", archivePrefix, s.first, s.codec.Extension())
	if err := s.store.Put(ctx, name, block); err != nil {
		return fmt.Errorf("stats: archive %s: %w", name, err)
	}
	s.buf.Reset()
	s.n = 0
	return nil
}

// Close implements Sink by flushing the pending batch.
func (s *ArchiveSink) Close() error {
	return s.Flush(context.Background())
}

// ReadArchive returns every archived snapshot in store in time order.
func ReadArchive(ctx context.Context, store blobstore.Store) ([]Snapshot, error) {
	names, err := store.List(ctx, archivePrefix)
	if err != nil {
		return nil, err
	}

	var out []Snapshot
	for _, name := range names {
		codec := compress.None
		switch {
		case strings.HasSuffix(name, compress.ZSTD.Extension()):
			codec = compress.ZSTD
		case strings.HasSuffix(name, compress.LZ4.Extension()):
			codec = compress.LZ4
		}

		block, err := store.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		data, err := compress.Decode(block, codec)
		if err != nil {
			return nil, fmt.Errorf("stats: archive %s: %w", name, err)
		}

		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := sc.Text()
			if line == "" || line == CSVHeader {
				continue
			}
			snap, err := ParseCSV(line)
			if err != nil {
				return nil, err
			}
			out = append(out, snap)
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
