package stats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultReportInterval is the default time between two reports.
const DefaultReportInterval = 5 * time.Second

// Sink receives periodic snapshots.
type Sink interface {
	Emit(ctx context.Context, s Snapshot) error
	Close() error
}

// Source provides snapshots.
type Source interface {
	Snapshot() Snapshot
}

// Reporter periodically hands snapshots to its sinks.
type Reporter struct {
	src      Source
	interval time.Duration
	sinks    []Sink
	logger   *slog.Logger
}

// NewReporter creates a reporter. A non-positive interval selects
// DefaultReportInterval.
func NewReporter(src Source, interval time.Duration, logger *slog.Logger, sinks ...Sink) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Reporter{src: src, interval: interval, sinks: sinks, logger: logger}
}

// Run reports until ctx is canceled, then closes every sink.
func (r *Reporter) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.Report(ctx)
	for {
		select {
		case <-ctx.Done():
			// Flush what the sinks buffered with a context that is still live.
			r.Report(context.WithoutCancel(ctx))
			return r.Close()
		case <-t.C:
			r.Report(ctx)
		}
	}
}

// Report emits one snapshot to every sink concurrently. Sink failures are
// logged and do not stop reporting.
func (r *Reporter) Report(ctx context.Context) {
	s := r.src.Snapshot()

	var g errgroup.Group
	for _, sink := range r.sinks {
		g.Go(func() error {
			if err := sink.Emit(ctx, s); err != nil && r.logger != nil {
				r.logger.WarnContext(ctx, "statistics sink failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Close closes every sink.
func (r *Reporter) Close() error {
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
