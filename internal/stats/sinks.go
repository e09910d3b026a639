package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// WriterSink writes the CSV feed to an io.Writer, preceded by CSVHeader.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	header bool
}

// NewWriterSink creates a WriterSink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Emit implements Sink.
func (s *WriterSink) Emit(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.header {
		if _, err := fmt.Fprintln(s.w, CSVHeader); err != nil {
			return err
		}
		s.header = true
	}
	_, err := fmt.Fprintln(s.w, snap.CSV())
	return err
}

// Close implements Sink. The writer is owned by the caller.
func (s *WriterSink) Close() error { return nil }

// LogSink logs every snapshot as a structured record.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink creates a LogSink logging at level.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	return &LogSink{logger: logger, level: level}
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, snap Snapshot) error {
	s.logger.LogAttrs(ctx, s.level, "statistics",
		slog.Int64("pages_unshared", snap.Unshared),
		slog.Int64("pages_sharing", snap.Sharing),
		slog.Int64("pages_shared", snap.Shared),
		slog.Int64("pages_saved", snap.Saved()),
		slog.Int64("full_scans", snap.FullScans),
	)
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }
