package vecsearch

import (
	"log/slog"
)

const (
	// DefaultFetchMultiplier is the over-fetch factor applied to k when a
	// filter has to be evaluated by the service.
	DefaultFetchMultiplier = 4
	// DefaultMaxFetch bounds the candidates requested from a backend by a
	// single filtered query.
	DefaultMaxFetch = 10000
	// DefaultBatchSize is the number of records forwarded per backend call.
	DefaultBatchSize = 100
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	fetchMultiplier  int
	maxFetch         int
	filterPushdown   bool
	batchSize        int
}

// Option configures a Service.
type Option func(*options)

// WithMetricsCollector sets the collector notified after each operation.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel logs human-readable text to stderr at the given level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithFetchMultiplier sets the over-fetch factor used for filtered queries the
// backend cannot evaluate itself. The first fetch requests k*m candidates and
// every widening multiplies the fetch by m again.
func WithFetchMultiplier(m int) Option {
	return func(o *options) {
		o.fetchMultiplier = m
	}
}

// WithMaxFetch caps the number of candidates requested by a filtered query.
func WithMaxFetch(n int) Option {
	return func(o *options) {
		o.maxFetch = n
	}
}

// WithFilterPushdown controls whether filters are handed to backends that
// implement backend.FilteredQuerier. Enabled by default.
func WithFilterPushdown(enabled bool) Option {
	return func(o *options) {
		o.filterPushdown = enabled
	}
}

// WithBatchSize sets how many records UpsertBatch forwards per backend call.
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		fetchMultiplier:  DefaultFetchMultiplier,
		maxFetch:         DefaultMaxFetch,
		filterPushdown:   true,
		batchSize:        DefaultBatchSize,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
