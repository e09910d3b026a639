package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hupe1980/samepage"
	"github.com/hupe1980/samepage/internal/compress"
	"github.com/hupe1980/samepage/internal/stats"
)

// serviceFlags configure the Manager and its reporting endpoints.
type serviceFlags struct {
	immutablePages int
	memoryLimit    int64
	pagesToScan    int
	scanInterval   time.Duration
	scanDelay      time.Duration
	scanRate       int64
	checksum       string
	lockStrategy   string
	reportInterval time.Duration

	csv          bool
	metricsAddr  string
	healthAddr   string
	kafkaBrokers []string
	kafkaTopic   string
	archiveCodec string
	archiveBatch int
	store        storeFlags
}

func (f *serviceFlags) register(fs *pflag.FlagSet, csv bool) {
	fs.IntVar(&f.immutablePages, "immutable-pages", 4096, "Capacity of the shared page pool")
	fs.Int64Var(&f.memoryLimit, "memory-limit", 0, "Memory limit in bytes (0 = unlimited)")
	fs.IntVar(&f.pagesToScan, "pages-to-scan", 100, "Pages inspected per scan pass")
	fs.DurationVar(&f.scanInterval, "scan-interval", 200*time.Millisecond, "Sleep between scan passes")
	fs.DurationVar(&f.scanDelay, "scan-delay", 0, "Delay before the first scan pass")
	fs.Int64Var(&f.scanRate, "scan-rate", 0, "Maximum pages inspected per second (0 = unlimited)")
	fs.StringVar(&f.checksum, "checksum", "wordsum", "Page checksum (wordsum, xxhash)")
	fs.StringVar(&f.lockStrategy, "lock", "per-page", "Lock strategy (per-page, global)")
	fs.DurationVar(&f.reportInterval, "report-interval", 5*time.Second, "Time between statistics reports")

	fs.BoolVar(&f.csv, "csv", csv, "Write the statistics feed to stdout")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :2112)")
	fs.StringVar(&f.healthAddr, "health-addr", "", "Serve gRPC health checks on this address (e.g. :50051)")
	fs.StringSliceVar(&f.kafkaBrokers, "kafka-brokers", nil, "Kafka brokers for the statistics feed")
	fs.StringVar(&f.kafkaTopic, "kafka-topic", "samepage-stats", "Kafka topic for the statistics feed")
	fs.StringVar(&f.archiveCodec, "archive-codec", "zstd", "Archive compression (none, lz4, zstd)")
	fs.IntVar(&f.archiveBatch, "archive-batch", stats.DefaultArchiveBatch, "Snapshots per archive object")
	f.store.register(fs)
}

func (f *serviceFlags) options(ctx context.Context, logger *samepage.Logger, stdout io.Writer, reg prometheus.Registerer) ([]samepage.Option, error) {
	opts := []samepage.Option{
		samepage.WithLogger(logger),
		samepage.WithImmutablePoolPages(f.immutablePages),
		samepage.WithMemoryLimit(f.memoryLimit),
		samepage.WithPagesToScan(f.pagesToScan),
		samepage.WithScanInterval(f.scanInterval),
		samepage.WithScanDelay(f.scanDelay),
		samepage.WithScanRate(f.scanRate),
		samepage.WithReportInterval(f.reportInterval),
		samepage.WithFatalHandler(func(err error) {
			logger.Error("aborting on mapping failure", slog.String("error", err.Error()))
			os.Exit(2)
		}),
	}

	switch f.checksum {
	case "wordsum":
		opts = append(opts, samepage.WithChecksum(samepage.WordSum))
	case "xxhash":
		opts = append(opts, samepage.WithChecksum(samepage.XXHash))
	default:
		return nil, fmt.Errorf("invalid checksum %q", f.checksum)
	}

	switch f.lockStrategy {
	case "per-page":
		opts = append(opts, samepage.WithLockStrategy(samepage.LockPerPage))
	case "global":
		opts = append(opts, samepage.WithLockStrategy(samepage.LockGlobal))
	default:
		return nil, fmt.Errorf("invalid lock strategy %q", f.lockStrategy)
	}

	if reg != nil {
		opts = append(opts, samepage.WithMetricsCollector(newPrometheusMetrics(reg)))
	}

	sinks := []samepage.StatisticsSink{stats.NewLogSink(logger.Logger, slog.LevelDebug)}
	if f.csv {
		sinks = append(sinks, stats.NewWriterSink(stdout))
	}
	if len(f.kafkaBrokers) > 0 {
		host, _ := os.Hostname()
		sinks = append(sinks, stats.NewKafkaSink(stats.NewKafkaWriter(f.kafkaBrokers, f.kafkaTopic), host))
	}
	store, err := f.store.open(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		codec, err := compress.ParseType(f.archiveCodec)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, stats.NewArchiveSink(store, codec, f.archiveBatch))
	}
	opts = append(opts, samepage.WithStatisticsSinks(sinks...))

	return opts, nil
}

// workload runs against a started Manager until ctx is canceled.
type workload func(ctx context.Context, m *samepage.Manager) error

// serve starts a Manager with its endpoints, runs w and stops everything on
// interrupt.
func serve(ctx context.Context, f *serviceFlags, stdout io.Writer, w workload) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg *prometheus.Registry
	if f.metricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	opts, err := f.options(ctx, logger, stdout, registerer)
	if err != nil {
		return err
	}

	m, err := samepage.New(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Error("close failed", slog.String("error", err.Error()))
		}
	}()

	if reg != nil {
		reg.MustRegister(stats.NewCollector(m, "samepage"))
	}

	g, gctx := errgroup.WithContext(ctx)

	if f.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: f.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("serving metrics", slog.String("addr", f.metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var hs *health.Server
	if f.healthAddr != "" {
		lis, err := net.Listen("tcp", f.healthAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", f.healthAddr, err)
		}
		srv := grpc.NewServer()
		hs = health.NewServer()
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		healthpb.RegisterHealthServer(srv, hs)
		g.Go(func() error {
			logger.Info("serving health checks", slog.String("addr", f.healthAddr))
			return srv.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.Shutdown()
			srv.GracefulStop()
			return nil
		})
	}

	if err := m.Start(gctx); err != nil {
		return err
	}
	if hs != nil {
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	if w != nil {
		g.Go(func() error {
			return w(gctx, m)
		})
	}

	<-gctx.Done()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
