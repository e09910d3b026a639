package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/samepage"
	"github.com/hupe1980/samepage/blobstore"
	"github.com/hupe1980/samepage/internal/compress"
	"github.com/hupe1980/samepage/internal/stats"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "samepaged dev")
}

func TestArchiveCat(t *testing.T) {
	dir := t.TempDir()
	sink := stats.NewArchiveSink(blobstore.NewLocalStore(dir), compress.ZSTD, 2)
	for i := range 3 {
		snap := stats.Snapshot{Time: time.UnixMilli(int64(1000 + i)), Unshared: int64(i), Sharing: 2, Shared: 1}
		require.NoError(t, sink.Emit(t.Context(), snap))
	}
	require.NoError(t, sink.Close())

	out, err := runCmd(t, "archive", "cat", "--archive-dir", dir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, stats.CSVHeader, lines[0])
	assert.Equal(t, "1000, 0, 1, 1, 0", lines[1])
	assert.Equal(t, "1002, 2, 1, 1, 0", lines[3])
}

func TestArchiveCat_NoStore(t *testing.T) {
	_, err := runCmd(t, "archive", "cat")
	assert.Error(t, err)
}

func TestStoreFlags_Exclusive(t *testing.T) {
	f := storeFlags{dir: t.TempDir(), s3Bucket: "bucket"}
	_, err := f.open(t.Context())
	assert.Error(t, err)

	f = storeFlags{minioEndpoint: "localhost:9000"}
	_, err = f.open(t.Context())
	assert.Error(t, err)

	f = storeFlags{}
	s, err := f.open(t.Context())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestDemo(t *testing.T) {
	out, err := runCmd(t, "demo",
		"--pages", "8",
		"--duration", "500ms",
		"--print-interval", "100ms",
		"--pages-to-scan", "8",
		"--scan-interval", "5ms",
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "pages_sharing:\t\t8\n")
	assert.Contains(t, out, "pages_shared:\t\t1\n")
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newPrometheusMetrics(reg)

	m.RecordMerge(samepage.MergeVolatile, time.Millisecond, nil)
	m.RecordMerge(samepage.MergeImmutable, time.Millisecond, samepage.ErrContentMismatch)
	m.RecordUnmerge(time.Millisecond, errors.New("boom"))
	m.RecordScanPass(10, 3, time.Millisecond)

	assert.Equal(t, 3, testutil.CollectAndCount(m.opLatency))
	assert.InDelta(t, 10, testutil.ToFloat64(m.scannedPages), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.mergedPages), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.scanPasses), 0)

	assert.Equal(t, "success", status(nil))
	assert.Equal(t, "missed", status(samepage.ErrContentMismatch))
	assert.Equal(t, "error", status(samepage.ErrMappingFailed))
}
