// Package resource implements the Controller for global limits.
//
// The Controller governs two resources:
//
//   - Memory: Track and limit bytes handed out to regions and page pools (non-blocking, fail-fast)
//   - Scan: Pace the background scanner in pages per second (token bucket)
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for hard limits and atomic counters
// for usage tracking. AcquireMemory is non-blocking and returns immediately
// with ErrMemoryLimitExceeded if the limit would be exceeded:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	if err := rc.AcquireMemory(size); err != nil {
//	    // ErrMemoryLimitExceeded - caller decides how to surface it
//	}
//	defer rc.ReleaseMemory(size)
//
// # Scan Pacing
//
// A token bucket bounds how many pages per second the scanner may inspect,
// trading merge latency for CPU time:
//
//	rc := resource.NewController(resource.Config{
//	    ScanPagesPerSec: 10000,
//	})
//
//	if err := rc.AcquireScan(ctx, 1); err != nil {
//	    return err // context cancelled
//	}
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
package resource
