// Package config loads and validates bowgo configuration from YAML files with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the top-level configuration.
type Config struct {
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Matching   MatchingConfig   `yaml:"matching"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Storage    StorageConfig    `yaml:"storage"`
	Resources  ResourceConfig   `yaml:"resources"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// VocabularyConfig locates the vocabulary file.
type VocabularyConfig struct {
	Path string `yaml:"path"`
}

// RetrievalConfig controls candidate generation and scoring.
type RetrievalConfig struct {
	// Threshold is the exclusive minimum score.
	Threshold float64 `yaml:"threshold"`
	// Level is the vocabulary level used for the inverted index.
	Level int `yaml:"level"`
	// Metric is the similarity metric id (0=L1 1=L2 2=ChiSquare 3=KL
	// 4=Bhattacharyya 5=DotProduct). Other ids fall back to L2.
	Metric int `yaml:"metric"`
}

// MatchingConfig controls descriptor matching.
type MatchingConfig struct {
	Ratio       float32 `yaml:"ratio"`
	MaxDistance float32 `yaml:"maxDistance"`
	Unique      bool    `yaml:"unique"`
}

// SnapshotConfig controls local snapshot files.
type SnapshotConfig struct {
	Path string `yaml:"path"`
	// Compression is one of none, lz4, zstd.
	Compression string `yaml:"compression"`
}

// StorageConfig selects the object store snapshots are published to.
type StorageConfig struct {
	// Backend is one of local, s3, minio.
	Backend string      `yaml:"backend"`
	Local   LocalConfig `yaml:"local"`
	S3      S3Config    `yaml:"s3"`
	MinIO   MinIOConfig `yaml:"minio"`
}

// LocalConfig configures the local directory backend.
type LocalConfig struct {
	Dir string `yaml:"dir"`
}

// S3Config configures the S3 backend. Credentials come from the default
// AWS chain.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	// DynamoDBTable enables the DynamoDB latest pointer when set.
	DynamoDBTable string `yaml:"dynamoDBTable"`
}

// MinIOConfig configures the MinIO backend.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

// ResourceConfig bounds concurrency, memory and IO.
type ResourceConfig struct {
	MaxWorkers         int64 `yaml:"maxWorkers"`
	MemoryLimitBytes   int64 `yaml:"memoryLimitBytes"`
	IOLimitBytesPerSec int64 `yaml:"ioLimitBytesPerSec"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: logging.level %q", ErrInvalid, l.Level)
	}
	return lvl, nil
}

// MetricsConfig controls Prometheus metrics export.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`
	// TextFile, when set, receives the metrics in text exposition format
	// after each command.
	TextFile string `yaml:"textFile"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Retrieval: RetrievalConfig{
			Threshold: 0.01,
			Level:     2,
			Metric:    1,
		},
		Matching: MatchingConfig{
			Ratio:       0.7,
			MaxDistance: 100,
			Unique:      true,
		},
		Snapshot: SnapshotConfig{
			Compression: "zstd",
		},
		Storage: StorageConfig{
			Backend: "local",
			Local:   LocalConfig{Dir: "./snapshots"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "bowgo",
		},
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Vocabulary.Path == "" {
		bad("vocabulary.path is required")
	}
	if c.Retrieval.Level < 1 {
		bad("retrieval.level must be >= 1, got %d", c.Retrieval.Level)
	}
	if c.Matching.Ratio <= 0 || c.Matching.Ratio > 1 {
		bad("matching.ratio must be in (0, 1], got %g", c.Matching.Ratio)
	}
	if c.Matching.MaxDistance <= 0 {
		bad("matching.maxDistance must be positive, got %g", c.Matching.MaxDistance)
	}
	switch c.Snapshot.Compression {
	case "none", "lz4", "zstd":
	default:
		bad("snapshot.compression must be none, lz4 or zstd, got %q", c.Snapshot.Compression)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Local.Dir == "" {
			bad("storage.local.dir is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			bad("storage.s3.bucket is required")
		}
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			bad("storage.minio.endpoint and storage.minio.bucket are required")
		}
	default:
		bad("storage.backend must be local, s3 or minio, got %q", c.Storage.Backend)
	}
	if c.Resources.MaxWorkers < 0 || c.Resources.MemoryLimitBytes < 0 || c.Resources.IOLimitBytesPerSec < 0 {
		bad("resources must not be negative")
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		bad("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads BOWGO_* environment variables and overrides the
// corresponding config fields. Unparsable numbers are errors.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	parse := func(key string, set func(string) error) {
		if v := os.Getenv(key); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q: %w", ErrInvalid, key, v, err))
			}
		}
	}
	float32Var := func(dst *float32) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 32)
			*dst = float32(f)
			return err
		}
	}
	int64Var := func(dst *int64) func(string) error {
		return func(v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			*dst = n
			return err
		}
	}
	boolVar := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			*dst = b
			return err
		}
	}

	str("BOWGO_VOCABULARY_PATH", &cfg.Vocabulary.Path)
	parse("BOWGO_RETRIEVAL_THRESHOLD", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		cfg.Retrieval.Threshold = f
		return err
	})
	parse("BOWGO_RETRIEVAL_LEVEL", func(v string) error {
		n, err := strconv.Atoi(v)
		cfg.Retrieval.Level = n
		return err
	})
	parse("BOWGO_RETRIEVAL_METRIC", func(v string) error {
		n, err := strconv.Atoi(v)
		cfg.Retrieval.Metric = n
		return err
	})
	parse("BOWGO_MATCHING_RATIO", float32Var(&cfg.Matching.Ratio))
	parse("BOWGO_MATCHING_MAX_DISTANCE", float32Var(&cfg.Matching.MaxDistance))
	parse("BOWGO_MATCHING_UNIQUE", boolVar(&cfg.Matching.Unique))
	str("BOWGO_SNAPSHOT_PATH", &cfg.Snapshot.Path)
	str("BOWGO_SNAPSHOT_COMPRESSION", &cfg.Snapshot.Compression)
	if v := os.Getenv("BOWGO_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	str("BOWGO_STORAGE_LOCAL_DIR", &cfg.Storage.Local.Dir)
	str("BOWGO_S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("BOWGO_S3_PREFIX", &cfg.Storage.S3.Prefix)
	str("BOWGO_S3_REGION", &cfg.Storage.S3.Region)
	str("BOWGO_S3_DYNAMODB_TABLE", &cfg.Storage.S3.DynamoDBTable)
	str("BOWGO_MINIO_ENDPOINT", &cfg.Storage.MinIO.Endpoint)
	str("BOWGO_MINIO_ACCESS_KEY", &cfg.Storage.MinIO.AccessKey)
	str("BOWGO_MINIO_SECRET_KEY", &cfg.Storage.MinIO.SecretKey)
	str("BOWGO_MINIO_BUCKET", &cfg.Storage.MinIO.Bucket)
	str("BOWGO_MINIO_PREFIX", &cfg.Storage.MinIO.Prefix)
	parse("BOWGO_MINIO_SECURE", boolVar(&cfg.Storage.MinIO.Secure))
	parse("BOWGO_RESOURCES_MAX_WORKERS", int64Var(&cfg.Resources.MaxWorkers))
	parse("BOWGO_RESOURCES_MEMORY_LIMIT_BYTES", int64Var(&cfg.Resources.MemoryLimitBytes))
	parse("BOWGO_RESOURCES_IO_LIMIT_BYTES_PER_SEC", int64Var(&cfg.Resources.IOLimitBytesPerSec))
	str("BOWGO_LOGGING_LEVEL", &cfg.Logging.Level)
	str("BOWGO_LOGGING_FORMAT", &cfg.Logging.Format)
	parse("BOWGO_METRICS_ENABLED", boolVar(&cfg.Metrics.Enabled))
	str("BOWGO_METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	str("BOWGO_METRICS_TEXT_FILE", &cfg.Metrics.TextFile)

	return errors.Join(errs...)
}
