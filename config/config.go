// Package config loads process configuration from the environment.
//
// Values are read from COVERDEX_* environment variables. A .env file in the
// working directory, or any file passed to Load, is read first; variables
// already set in the environment win over values from files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/blob"
	"github.com/poiesic/coverdex/retry"
)

// Prefix is prepended to every variable name.
const Prefix = "COVERDEX"

// Blob backends.
const (
	BlobLocal = "local"
	BlobMinIO = "minio"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

type Config struct {
	// Storage
	DBPath      string `envconfig:"DB_PATH" default:"data/coverdex.db"`
	BlobBackend string `envconfig:"BLOB_BACKEND" default:"local"`
	BlobDir     string `envconfig:"BLOB_DIR" default:"data/blobs"`

	MinIOEndpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	MinIOAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinIOBucket    string `envconfig:"MINIO_BUCKET" default:"coverdex"`
	MinIOUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// Model services
	EmbeddingHost         string        `envconfig:"EMBEDDING_HOST" default:"http://localhost:8090"`
	EmbeddingModel        string        `envconfig:"EMBEDDING_MODEL" default:"facebook/dinov2-small"`
	EmbeddingModelVersion string        `envconfig:"EMBEDDING_MODEL_VERSION"`
	EmbeddingDimension    int           `envconfig:"EMBEDDING_DIMENSION" default:"384"`
	EmbeddingToken        string        `envconfig:"EMBEDDING_TOKEN"`
	OCRHost               string        `envconfig:"OCR_HOST"`
	OCRModel              string        `envconfig:"OCR_MODEL" default:"qwen2.5vl:3b"`
	OCRToken              string        `envconfig:"OCR_TOKEN"`
	OCRMinConfidence      float64       `envconfig:"OCR_MIN_CONFIDENCE" default:"0.5"`
	RequestTimeout        time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// Catalog source
	DiscogsToken   string   `envconfig:"DISCOGS_TOKEN"`
	DiscogsPerPage int      `envconfig:"DISCOGS_PER_PAGE" default:"50"`
	Styles         []string `envconfig:"STYLES" default:"Jazz"`

	// Ingestion
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND" default:"1"`
	Burst             int           `envconfig:"BURST" default:"1"`
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryBaseDelay    time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay     time.Duration `envconfig:"RETRY_MAX_DELAY" default:"10s"`
	ItemTimeout       time.Duration `envconfig:"ITEM_TIMEOUT" default:"2m"`
	ScopeConcurrency  int           `envconfig:"SCOPE_CONCURRENCY" default:"2"`
	PoolSize          int           `envconfig:"POOL_SIZE" default:"4"`
	MaxItemsPerScope  int           `envconfig:"MAX_ITEMS_PER_SCOPE" default:"0"`

	// Queries
	TopK          int           `envconfig:"TOP_K" default:"5"`
	QueryTimeout  time.Duration `envconfig:"QUERY_TIMEOUT" default:"30s"`
	OCRTimeout    time.Duration `envconfig:"OCR_TIMEOUT" default:"10s"`
	MinScore      float32       `envconfig:"MIN_SCORE" default:"0"`
	MaxImageBytes int           `envconfig:"MAX_IMAGE_BYTES" default:"10485760"` // 10MB
}

// Load reads the given env files (or .env when none are given) and then the
// environment. Missing files are ignored. The result is validated.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// Ignore errors, as env vars might be set in the shell
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	c.BlobBackend = strings.ToLower(strings.TrimSpace(c.BlobBackend))

	if c.DBPath == "" {
		return fmt.Errorf("%w: %s_DB_PATH", ErrMissingRequired, Prefix)
	}
	switch c.BlobBackend {
	case BlobLocal:
		if c.BlobDir == "" {
			return fmt.Errorf("%w: %s_BLOB_DIR", ErrMissingRequired, Prefix)
		}
	case BlobMinIO:
		if c.MinIOEndpoint == "" {
			return fmt.Errorf("%w: %s_MINIO_ENDPOINT", ErrMissingRequired, Prefix)
		}
		if c.MinIOBucket == "" {
			return fmt.Errorf("%w: %s_MINIO_BUCKET", ErrMissingRequired, Prefix)
		}
	default:
		return fmt.Errorf("%w: blob backend %q must be %s or %s", ErrInvalid, c.BlobBackend, BlobLocal, BlobMinIO)
	}

	if c.RequestsPerSecond < 0 || c.Burst < 0 {
		return fmt.Errorf("%w: rate limit cannot be negative", ErrInvalid)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: %s_TOP_K must be positive", ErrInvalid, Prefix)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("%w: %s_MIN_SCORE must be between 0 and 1", ErrInvalid, Prefix)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return c.AIConfig().Validate()
}

// AIConfig returns the model service settings.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.EmbeddingHost),
		ai.WithEmbeddingModel(c.EmbeddingModel),
		ai.WithEmbeddingModelVersion(c.EmbeddingModelVersion),
		ai.WithEmbeddingDimension(c.EmbeddingDimension),
		ai.WithEmbeddingToken(c.EmbeddingToken),
		ai.WithOCRHost(c.OCRHost),
		ai.WithOCRModel(c.OCRModel),
		ai.WithOCRToken(c.OCRToken),
		ai.WithMinConfidence(c.OCRMinConfidence),
		ai.WithRequestTimeout(c.RequestTimeout),
	)
}

// RetryPolicy returns the policy for external calls.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.RetryBaseDelay,
		MaxDelay:   c.RetryMaxDelay,
	}
}

// MinIOConfig returns the S3-compatible blob store settings.
func (c *Config) MinIOConfig() blob.MinIOConfig {
	return blob.MinIOConfig{
		Endpoint:  c.MinIOEndpoint,
		AccessKey: c.MinIOAccessKey,
		SecretKey: c.MinIOSecretKey,
		Bucket:    c.MinIOBucket,
		UseSSL:    c.MinIOUseSSL,
	}
}
