package hnswtag

import (
	"log/slog"

	"github.com/hupe1980/hnswtag/internal/hnsw"
	"github.com/hupe1980/hnswtag/persistence"
)

const (
	// DefaultM is the default number of bidirectional links per element.
	DefaultM = hnsw.DefaultM
	// DefaultEFConstruction is the default construction candidate list size.
	DefaultEFConstruction = hnsw.DefaultEFConstruction
	// DefaultEF is the default query candidate list size.
	DefaultEF = 10
	// DefaultSeed seeds level assignment when WithSeed is not given.
	DefaultSeed = 100
	// DefaultTaggedM is the M of sub-graphs built without an explicit m.
	DefaultTaggedM = hnsw.MinimumM
	// DefaultMaxSubgraphs bounds how many sub-graphs are kept in memory.
	DefaultMaxSubgraphs = 64
)

type options struct {
	m                int
	efConstruction   int
	ef               int
	seed             int64
	numThreads       int
	taggedM          int
	maxSubgraphs     int
	lazySubgraphs    bool
	compression      persistence.Compression
	capacity         int
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures New and Load.
type Option func(*options)

// WithM sets the number of bidirectional links per element above layer 0.
// Layer 0 keeps up to 2*M links.
func WithM(m int) Option {
	return func(o *options) {
		o.m = m
	}
}

// WithEFConstruction sets the candidate list size used while inserting.
func WithEFConstruction(ef int) Option {
	return func(o *options) {
		o.efConstruction = ef
	}
}

// WithEF sets the initial query candidate list size. See Index.SetEF.
func WithEF(ef int) Option {
	return func(o *options) {
		o.ef = ef
	}
}

// WithSeed seeds the level generator so that builds are reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithNumThreads sets the worker pool size. Zero uses GOMAXPROCS.
func WithNumThreads(n int) Option {
	return func(o *options) {
		o.numThreads = n
	}
}

// WithTaggedM sets the M used by IndexTagged and IndexCrossTagged when no m
// is passed, and by lazily materialized sub-graphs.
func WithTaggedM(m int) Option {
	return func(o *options) {
		o.taggedM = m
	}
}

// WithMaxSubgraphs bounds the number of materialized sub-graphs kept in
// memory. The least recently used one is dropped first.
func WithMaxSubgraphs(n int) Option {
	return func(o *options) {
		o.maxSubgraphs = n
	}
}

// WithLazySubgraphs controls whether searching a tag set that has no
// sub-graph builds one on the fly. Enabled by default, which is how
// sub-graphs come back after Load.
func WithLazySubgraphs(enabled bool) Option {
	return func(o *options) {
		o.lazySubgraphs = enabled
	}
}

// WithCompression selects the body compression used by Save.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCapacity raises the capacity of a loaded index above the stored one.
// It is ignored by New.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &hnswtag.BasicMetricsCollector{}
//	idx, _ := hnswtag.New(distance.SpaceL2, 128, 10_000, hnswtag.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := hnswtag.NewJSONLogger(slog.LevelInfo)
//	idx, _ := hnswtag.New(distance.SpaceCosine, 384, 1_000_000, hnswtag.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
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

func applyOptions(optFns []Option) options {
	o := options{
		m:                DefaultM,
		efConstruction:   DefaultEFConstruction,
		ef:               DefaultEF,
		seed:             DefaultSeed,
		taggedM:          DefaultTaggedM,
		maxSubgraphs:     DefaultMaxSubgraphs,
		lazySubgraphs:    true,
		compression:      persistence.CompressionNone,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
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
