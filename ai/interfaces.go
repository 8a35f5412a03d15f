package ai

import "context"

// ImageEmbedder generates visual fingerprints from image bytes.
// Implementations must be thread-safe for concurrent use.
type ImageEmbedder interface {
	// EmbedImage returns the embedding of an encoded image (JPEG, PNG, ...).
	// The vector is not required to be normalized.
	// Failures are *core.ProviderError with Transient set when a retry may help.
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)

	// Dimension is the length of every vector this embedder returns.
	Dimension() int

	// ModelVersion tags vectors produced by this embedder. Vectors with
	// different tags are not comparable.
	ModelVersion() string
}

// TextExtractor reads printed text from images.
// Implementations must be thread-safe for concurrent use.
type TextExtractor interface {
	// ExtractText returns the text lines found in image. An image without
	// text yields an empty result, not an error; errors mean the extraction
	// itself failed.
	ExtractText(ctx context.Context, image []byte) (*ExtractedText, error)
}

// Provider aggregates model services for convenient initialization and lifecycle management.
type Provider interface {
	// Embedder returns the image embedding service.
	Embedder() ImageEmbedder

	// TextExtractor returns the OCR service, or nil when OCR is not configured.
	TextExtractor() TextExtractor

	// Close releases resources held by the provider and its services.
	Close() error
}
