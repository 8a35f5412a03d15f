package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/poiesic/coverdex/ai"
	"github.com/poiesic/coverdex/core"
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

// Embedder implements ai.ImageEmbedder against an HTTP embedding service.
type Embedder struct {
	client    *http.Client
	endpoint  string
	model     string
	version   string
	dimension int
	token     string
	logger    *slog.Logger
}

var _ ai.ImageEmbedder = (*Embedder)(nil)

type embedRequest struct {
	Model string `json:"model"`
	Image string `json:"image"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model,omitempty"`
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config, client *http.Client) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: config.RequestTimeout}
	}

	return &Embedder{
		client:    client,
		endpoint:  config.EmbeddingHost + "/embed",
		model:     config.EmbeddingModel,
		version:   config.ModelVersion(),
		dimension: config.EmbeddingDimension,
		token:     config.EmbeddingToken,
		logger:    slog.Default().With("component", "remote-embedder"),
	}, nil
}

// NewEmbedder creates an image embedder using the provided configuration.
//
// Returns ai.ImageEmbedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.ImageEmbedder, error) {
	return newEmbedder(config, nil)
}

// Dimension returns the configured vector length.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// ModelVersion returns the version tag for produced vectors.
func (e *Embedder) ModelVersion() string {
	return e.version
}

// EmbedImage posts image to the embedding service.
func (e *Embedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model: e.model,
		Image: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, core.NewPermanentError("embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewPermanentError("embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Debug("embedding request failed", "err", err)
		return nil, classifyTransportError("embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("embed", resp)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.NewPermanentError("embed", fmt.Errorf("decode response: %w", err))
	}
	if len(out.Embedding) != e.dimension {
		return nil, core.NewPermanentError("embed", fmt.Errorf("%w: service returned %d dimensions, expected %d",
			core.ErrDimensionMismatch, len(out.Embedding), e.dimension))
	}
	if out.Model != "" && out.Model != e.model {
		e.logger.Warn("embedding service answered with a different model", "want", e.model, "got", out.Model)
	}

	e.logger.Debug("generated image embedding", "bytes", len(image), "dimension", len(out.Embedding))
	return out.Embedding, nil
}

// statusError converts a non-200 response into a ProviderError.
func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg))
	return &core.ProviderError{
		Op:         op,
		Transient:  IsTransientStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Err:        err,
	}
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// classifyTransportError wraps a failed round trip. Requests never reach
// the transport when malformed, so every failure here is a deadline, a
// network error or a dropped connection, all transient. A canceled context
// is the caller giving up and is not retried.
func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return core.NewPermanentError(op, err)
	}
	return core.NewTransientError(op, err)
}
