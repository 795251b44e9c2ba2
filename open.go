package bowgo

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hupe1980/bowgo/config"
	"github.com/hupe1980/bowgo/distance"
	"github.com/hupe1980/bowgo/persistence"
	"github.com/hupe1980/bowgo/resource"
	"github.com/hupe1980/bowgo/vocabulary"
)

// Open loads the vocabulary named by cfg and creates a Retriever configured
// from cfg. Options in optFns are applied after those derived from cfg.
func Open(cfg *config.Config, optFns ...Option) (*Retriever, error) {
	base, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	voc, err := vocabulary.Load(cfg.Vocabulary.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: vocabulary %q: %w", ErrInvalidConfiguration, cfg.Vocabulary.Path, err)
	}

	return New(voc, append(base, optFns...)...)
}

// OptionsFromConfig maps cfg onto Retriever options. The logger writes to
// stderr in the configured format.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	compression, err := persistence.ParseCompression(cfg.Snapshot.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	var logger *Logger
	switch cfg.Logging.Format {
	case "json":
		logger = NewJSONLogger(level)
	default:
		logger = NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	return []Option{
		WithThreshold(cfg.Retrieval.Threshold),
		WithLevel(cfg.Retrieval.Level),
		WithMetric(distance.BoWMetric(cfg.Retrieval.Metric)),
		WithMatchRatio(cfg.Matching.Ratio),
		WithMatchMaxDistance(cfg.Matching.MaxDistance),
		WithUniqueMatches(cfg.Matching.Unique),
		WithCompression(compression),
		WithLogger(logger),
		WithResourceController(resource.NewController(resource.Config{
			MaxWorkers:         cfg.Resources.MaxWorkers,
			MemoryLimitBytes:   cfg.Resources.MemoryLimitBytes,
			IOLimitBytesPerSec: cfg.Resources.IOLimitBytesPerSec,
		})),
	}, nil
}
