package vecsearch

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    queryCounter   prometheus.Counter
//	    queryHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordQuery(k, results int, duration time.Duration, err error) {
//	    p.queryCounter.Inc()
//	    p.queryHistogram.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordUpsertBatch is called after each batch upsert.
	// count is the number of records submitted, failed the number rejected,
	// err is non-nil when the batch was aborted.
	RecordUpsertBatch(count, failed int, duration time.Duration, err error)

	// RecordQuery is called after each query.
	// k is the number of neighbors requested, results the number returned.
	RecordQuery(k, results int, duration time.Duration, err error)

	// RecordDelete is called after each delete.
	RecordDelete(count int, duration time.Duration, err error)

	// RecordWiden is called each time a filtered query re-fetches with a
	// larger candidate count.
	RecordWiden(k, fetch int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpsertBatch(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordQuery(int, int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordWiden(int, int)                             {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	UpsertBatchCount  atomic.Int64
	UpsertBatchErrors atomic.Int64
	UpsertItems       atomic.Int64
	UpsertFailed      atomic.Int64
	QueryCount        atomic.Int64
	QueryErrors       atomic.Int64
	QueryResults      atomic.Int64
	QueryTotalNanos   atomic.Int64
	WidenCount        atomic.Int64
	DeleteCount       atomic.Int64
	DeleteItems       atomic.Int64
	DeleteErrors      atomic.Int64
}

// RecordUpsertBatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsertBatch(count, failed int, _ time.Duration, err error) {
	b.UpsertBatchCount.Add(1)
	b.UpsertItems.Add(int64(count))
	b.UpsertFailed.Add(int64(failed))
	if err != nil {
		b.UpsertBatchErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_, results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryResults.Add(int64(results))
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(count int, _ time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.DeleteItems.Add(int64(count))
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordWiden implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWiden(int, int) {
	b.WidenCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UpsertBatchCount:  b.UpsertBatchCount.Load(),
		UpsertBatchErrors: b.UpsertBatchErrors.Load(),
		UpsertItems:       b.UpsertItems.Load(),
		UpsertFailed:      b.UpsertFailed.Load(),
		QueryCount:        b.QueryCount.Load(),
		QueryErrors:       b.QueryErrors.Load(),
		QueryResults:      b.QueryResults.Load(),
		QueryAvgNanos:     b.getAvgQueryNanos(),
		WidenCount:        b.WidenCount.Load(),
		DeleteCount:       b.DeleteCount.Load(),
		DeleteItems:       b.DeleteItems.Load(),
		DeleteErrors:      b.DeleteErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UpsertBatchCount  int64
	UpsertBatchErrors int64
	UpsertItems       int64
	UpsertFailed      int64
	QueryCount        int64
	QueryErrors       int64
	QueryResults      int64
	QueryAvgNanos     int64
	WidenCount        int64
	DeleteCount       int64
	DeleteItems       int64
	DeleteErrors      int64
}
