package bowgo

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/hupe1980/bowgo/distance"
	"github.com/hupe1980/bowgo/persistence"
	"github.com/hupe1980/bowgo/resource"
)

// Defaults for the retrieval and matching parameters.
const (
	DefaultThreshold   = 0.01
	DefaultLevel       = 2
	DefaultMatchRatio  = 0.7
	DefaultMaxDistance = 100
)

type options struct {
	threshold        float64
	level            int
	metric           distance.BoWMetric
	matchRatio       float32
	matchMaxDistance float32
	uniqueMatches    bool
	compression      persistence.Compression
	metricsCollector MetricsCollector
	logger           *Logger
	resources        *resource.Controller
}

// Option configures a Retriever.
type Option func(*options)

// WithThreshold sets the minimum similarity, exclusive, a keyframe must
// score to be retrieved.
func WithThreshold(t float64) Option {
	return func(o *options) {
		o.threshold = t
	}
}

// WithLevel sets the vocabulary tree level used for the inverted index and
// for matching. Level 1 is the coarsest; levels beyond the tree depth
// resolve to leaves. A snapshot loaded later replaces this value with the
// level it was built at.
func WithLevel(level int) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithMetric selects the similarity metric. Unknown metrics fall back to
// L2 with a logged warning.
func WithMetric(m distance.BoWMetric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithMatchRatio sets the nearest/second-nearest ratio of the matcher.
func WithMatchRatio(r float32) Option {
	return func(o *options) {
		o.matchRatio = r
	}
}

// WithMatchMaxDistance sets the maximum L2 distance of an accepted match.
// Pass math.MaxFloat32 to disable the bound.
func WithMatchMaxDistance(d float32) Option {
	return func(o *options) {
		o.matchMaxDistance = d
	}
}

// WithUniqueMatches controls whether a keyframe descriptor may be matched by
// more than one query descriptor. Enabled by default.
func WithUniqueMatches(unique bool) Option {
	return func(o *options) {
		o.uniqueMatches = unique
	}
}

// WithCompression sets the body compression used when saving snapshots.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &bowgo.BasicMetricsCollector{}
//	r, _ := bowgo.New(voc, bowgo.WithMetricsCollector(metrics))
//	// ... use r ...
//	stats := metrics.GetStats()
//	fmt.Printf("Retrievals: %d, avg latency: %dns\n", stats.RetrieveCount, stats.RetrieveAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
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

// WithResourceController bounds batch workers, snapshot memory and snapshot
// IO bandwidth. A nil controller imposes no limits.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		threshold:        DefaultThreshold,
		level:            DefaultLevel,
		metric:           distance.DefaultBoWMetric,
		matchRatio:       DefaultMatchRatio,
		matchMaxDistance: DefaultMaxDistance,
		uniqueMatches:    true,
		compression:      persistence.CompressionZstd,
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

func (o *options) validate() error {
	switch {
	case o.level < 1:
		return fmt.Errorf("%w: level must be >= 1, got %d", ErrInvalidConfiguration, o.level)
	case !(o.matchRatio > 0):
		return fmt.Errorf("%w: match ratio must be positive, got %v", ErrInvalidConfiguration, o.matchRatio)
	case !(o.matchMaxDistance > 0) || math.IsInf(float64(o.matchMaxDistance), 0):
		return fmt.Errorf("%w: match max distance must be positive and finite, got %v", ErrInvalidConfiguration, o.matchMaxDistance)
	case math.IsNaN(o.threshold):
		return fmt.Errorf("%w: threshold is NaN", ErrInvalidConfiguration)
	}
	return nil
}
