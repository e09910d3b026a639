// Package stats keeps the deduplication counters and reports them.
//
// Statistics holds four counters under its own mutex:
//
//   - pages_unshared: registered pages not currently merged
//   - pages_sharing:  merged pages, the sum of all merge group sizes
//   - pages_shared:   live backing pages, one per merge group
//   - full_scans:     completed traversals of the candidate queue
//
// pages_sharing - pages_shared is the number of pages deduplication saved.
//
// A Reporter takes a Snapshot on a fixed interval and hands it to every
// configured Sink. Sinks exist for CSV lines on an io.Writer, structured log
// records, Kafka messages and compressed batches in a blobstore.Store. The
// Collector exposes the same counters to Prometheus.
package stats
