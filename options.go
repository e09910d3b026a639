package samepage

import (
	"log/slog"
	"time"

	"github.com/hupe1980/samepage/internal/alloc"
	"github.com/hupe1980/samepage/internal/stats"
	"github.com/hupe1980/samepage/internal/worker"
)

// LockStrategy selects how page locks are implemented.
type LockStrategy int

const (
	// LockPerPage uses one reentrant lock per page. Independent pages are
	// merged and unmerged concurrently.
	LockPerPage LockStrategy = iota
	// LockGlobal serializes every merge, unmerge and fault behind one
	// reentrant lock.
	LockGlobal
)

func (s LockStrategy) String() string {
	if s == LockGlobal {
		return "global"
	}
	return "per-page"
}

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	immutablePages   int
	memoryLimit      int64
	pagesToScan      int
	scanInterval     time.Duration
	scanDelay        time.Duration
	scanRate         int64
	checksum         ChecksumFunc
	lockStrategy     LockStrategy
	reportInterval   time.Duration
	sinks            []StatisticsSink
	fatal            func(error)
}

// Option configures a Manager.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := samepage.NewJSONLogger(slog.LevelInfo)
//	m, _ := samepage.New(samepage.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &samepage.BasicMetricsCollector{}
//	m, _ := samepage.New(samepage.WithMetricsCollector(metrics))
//	// ... run workload ...
//	stats := metrics.GetStats()
//	fmt.Printf("Merges: %d, Avg latency: %dns\n", stats.MergeCount, stats.MergeAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithImmutablePoolPages sets the capacity of the pool backing merged pages.
// It bounds the number of live merge groups.
func WithImmutablePoolPages(n int) Option {
	return func(o *options) {
		o.immutablePages = n
	}
}

// WithMemoryLimit caps the memory held by regions, pools and private copies.
// Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithPagesToScan sets the number of pages the scanner inspects per pass.
func WithPagesToScan(n int) Option {
	return func(o *options) {
		o.pagesToScan = n
	}
}

// WithScanInterval sets the sleep between scan passes.
func WithScanInterval(d time.Duration) Option {
	return func(o *options) {
		o.scanInterval = d
	}
}

// WithScanDelay postpones the first scan pass after Start.
func WithScanDelay(d time.Duration) Option {
	return func(o *options) {
		o.scanDelay = d
	}
}

// WithScanRate caps the number of pages inspected per second.
// Zero means unlimited.
func WithScanRate(pagesPerSec int64) Option {
	return func(o *options) {
		o.scanRate = pagesPerSec
	}
}

// WithChecksum selects the checksum used to detect unstable pages.
// If nil is passed, WordSum is used.
func WithChecksum(fn ChecksumFunc) Option {
	return func(o *options) {
		if fn == nil {
			fn = WordSum
		}
		o.checksum = fn
	}
}

// WithLockStrategy selects the page lock implementation.
func WithLockStrategy(s LockStrategy) Option {
	return func(o *options) {
		o.lockStrategy = s
	}
}

// WithReportInterval sets the time between two statistics reports.
func WithReportInterval(d time.Duration) Option {
	return func(o *options) {
		o.reportInterval = d
	}
}

// WithStatisticsSinks adds sinks that receive every statistics report.
// Sinks are closed when the Manager stops.
func WithStatisticsSinks(sinks ...StatisticsSink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithFatalHandler replaces the handler invoked when a mapping primitive
// fails. The default panics.
func WithFatalHandler(fn func(error)) Option {
	return func(o *options) {
		o.fatal = fn
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		immutablePages:   alloc.DefaultImmutablePages,
		pagesToScan:      worker.DefaultPagesToScan,
		scanInterval:     worker.DefaultScanInterval,
		checksum:         WordSum,
		lockStrategy:     LockPerPage,
		reportInterval:   stats.DefaultReportInterval,
		fatal:            func(err error) { panic(err) },
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.fatal == nil {
		o.fatal = func(err error) { panic(err) }
	}
	return o
}
