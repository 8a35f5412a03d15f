// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for model service providers.
type Config struct {
	// EmbeddingHost is the base URL of the image embedding service.
	// Example: "http://localhost:8090"
	EmbeddingHost string

	// EmbeddingModel is the model identifier sent to the embedding service.
	// Example: "facebook/dinov2-small"
	EmbeddingModel string

	// EmbeddingModelVersion tags stored vectors. Defaults to EmbeddingModel.
	// Bump it whenever the served weights or preprocessing change.
	EmbeddingModelVersion string

	// EmbeddingDimension is the expected vector length.
	// Default: 384 (DINOv2-small)
	EmbeddingDimension int

	// EmbeddingToken is an optional bearer token for the embedding service.
	EmbeddingToken string

	// OCRHost is the base URL of an OpenAI-compatible vision chat API.
	// Empty disables OCR.
	// Example: "http://localhost:11434/v1"
	OCRHost string

	// OCRModel is the vision model used for text extraction.
	// Example: "qwen2.5vl:3b"
	OCRModel string

	// OCRToken is the API key for the OCR host. Local servers accept any value.
	OCRToken string

	// MinConfidence drops OCR lines whose confidence is not above it.
	// Default: 0.5
	MinConfidence float64

	// RequestTimeout bounds a single call to either service.
	// Default: 30s
	RequestTimeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingModelVersion sets the version tag recorded with vectors.
func WithEmbeddingModelVersion(version string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModelVersion = version
	}
}

// WithEmbeddingDimension sets the expected vector length.
func WithEmbeddingDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingDimension = dim
	}
}

// WithEmbeddingToken sets the embedding service bearer token.
func WithEmbeddingToken(token string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingToken = token
	}
}

// WithOCRHost sets the OCR service URL. An empty host disables OCR.
func WithOCRHost(host string) ConfigOption {
	return func(c *Config) {
		c.OCRHost = host
	}
}

// WithOCRModel sets the OCR vision model.
func WithOCRModel(model string) ConfigOption {
	return func(c *Config) {
		c.OCRModel = model
	}
}

// WithOCRToken sets the OCR API key.
func WithOCRToken(token string) ConfigOption {
	return func(c *Config) {
		c.OCRToken = token
	}
}

// WithMinConfidence sets the OCR line confidence threshold.
func WithMinConfidence(min float64) ConfigOption {
	return func(c *Config) {
		c.MinConfidence = min
	}
}

// WithRequestTimeout bounds each model service call.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// DefaultConfig returns a Config with defaults for locally hosted services.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:      "http://localhost:8090",
		EmbeddingModel:     "facebook/dinov2-small",
		EmbeddingDimension: 384,
		OCRHost:            "http://localhost:11434/v1",
		OCRModel:           "qwen2.5vl:3b",
		MinConfidence:      0.5,
		RequestTimeout:     30 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://embedder:8090"),
//	    WithOCRHost(""), // no OCR
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// OCREnabled reports whether an OCR host is configured.
func (c *Config) OCREnabled() bool {
	return c.OCRHost != ""
}

// ModelVersion returns the version tag for vectors, defaulting to the model name.
func (c *Config) ModelVersion() string {
	if c.EmbeddingModelVersion != "" {
		return c.EmbeddingModelVersion
	}
	return c.EmbeddingModel
}

// Normalize ensures the configuration is in a canonical form.
// The OCR host gets the /v1 suffix OpenAI-compatible servers expect
// (Ollama, LocalAI, vLLM); the embedding host loses any trailing slash.
func (c *Config) Normalize() {
	c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
	if c.OCRHost != "" && !strings.HasSuffix(c.OCRHost, "/v1") {
		c.OCRHost = strings.TrimSuffix(c.OCRHost, "/") + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.EmbeddingDimension <= 0 {
		return errors.New("ai config: EmbeddingDimension must be positive")
	}
	if c.OCREnabled() && c.OCRModel == "" {
		return errors.New("ai config: OCRModel is required when OCRHost is set")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return errors.New("ai config: MinConfidence must be between 0 and 1")
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout cannot be negative")
	}
	return nil
}
