package mock

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/poiesic/coverdex/ai"
)

// DefaultModelVersion is the version tag reported by mocks unless overridden.
const DefaultModelVersion = "mock-v1"

// MockImageEmbedder is a test double for ai.ImageEmbedder.
// It allows custom behavior injection via function fields.
type MockImageEmbedder struct {
	// EmbedImageFunc is called by EmbedImage if set.
	// If nil, uses registered or deterministic vectors.
	EmbedImageFunc func(ctx context.Context, image []byte) ([]float32, error)

	// Version is reported by ModelVersion.
	Version string

	dim       int
	mu        sync.RWMutex
	vectors   map[string][]float32
	callCount atomic.Int64
}

var _ ai.ImageEmbedder = (*MockImageEmbedder)(nil)

// NewMockImageEmbedder creates a mock embedder producing vectors of length dim.
// Note: Returns concrete type to allow test assertions.
func NewMockImageEmbedder(dim int) *MockImageEmbedder {
	return &MockImageEmbedder{
		Version: DefaultModelVersion,
		dim:     dim,
		vectors: make(map[string][]float32),
	}
}

// SetVector makes EmbedImage return vec for exactly these image bytes.
func (m *MockImageEmbedder) SetVector(image []byte, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[string(image)] = vec
}

// EmbedImage returns the registered vector for image, or a deterministic one.
func (m *MockImageEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	m.callCount.Add(1)

	if m.EmbedImageFunc != nil {
		return m.EmbedImageFunc(ctx, image)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	vec, ok := m.vectors[string(image)]
	m.mu.RUnlock()
	if ok {
		return append([]float32(nil), vec...), nil
	}
	return DeterministicVector(image, m.dim), nil
}

// Dimension returns the configured vector length.
func (m *MockImageEmbedder) Dimension() int {
	return m.dim
}

// ModelVersion returns Version.
func (m *MockImageEmbedder) ModelVersion() string {
	return m.Version
}

// CallCount returns the number of times EmbedImage was called.
func (m *MockImageEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockImageEmbedder) Reset() {
	m.callCount.Store(0)
	m.EmbedImageFunc = nil
	m.mu.Lock()
	m.vectors = make(map[string][]float32)
	m.mu.Unlock()
}

// DeterministicVector creates an embedding from data using an FNV-seeded LCG.
// The same data always produces the same vector. The vector is deliberately
// not normalized, as real model output isn't either.
func DeterministicVector(data []byte, dim int) []float32 {
	h := fnv.New32a()
	h.Write(data)
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := range vector {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 + 0.001
	}
	return vector
}
