package samepage

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with samepage-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// WithRegion adds the base address of a region to the logger.
func (l *Logger) WithRegion(r *Region) *Logger {
	return &Logger{
		Logger: l.Logger.With("region", r.Base().String()),
	}
}

// LogMerge logs a merge operation.
func (l *Logger) LogMerge(ctx context.Context, page1, page2 Addr, mode MergeMode, err error) {
	if err != nil {
		l.DebugContext(ctx, "merge failed",
			"page1", page1.String(),
			"page2", page2.String(),
			"mode", mode.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "merge completed",
			"page1", page1.String(),
			"page2", page2.String(),
			"mode", mode.String(),
		)
	}
}

// LogUnmerge logs an unmerge operation.
func (l *Logger) LogUnmerge(ctx context.Context, addr Addr, err error) {
	if err != nil {
		l.DebugContext(ctx, "unmerge failed",
			"page", addr.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "unmerge completed",
			"page", addr.String(),
		)
	}
}

// LogRegion logs a region allocation or release.
func (l *Logger) LogRegion(ctx context.Context, op string, base Addr, size uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"base", base.String(),
			"size", size,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, op+" completed",
			"base", base.String(),
			"size", size,
		)
	}
}

// LogScanPass logs one scan pass.
func (l *Logger) LogScanPass(ctx context.Context, res PassResult, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "scan pass failed",
			"scanned", res.Scanned,
			"merged", res.Merged,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "scan pass completed",
			"scanned", res.Scanned,
			"merged", res.Merged,
			"unstable", res.Unstable,
			"missed", res.Missed,
			"duration", duration,
		)
	}
}
