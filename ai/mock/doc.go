// Package mock provides test doubles for the ai interfaces.
//
// Mocks allow custom behavior injection via function fields:
//
//	embedder := mock.NewMockImageEmbedder(2)
//	embedder.EmbedImageFunc = func(ctx context.Context, image []byte) ([]float32, error) {
//	    return nil, core.NewTransientError("embed", errors.New("503"))
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockImageEmbedder: deterministic vectors derived from the image bytes,
//     or fixed vectors registered with SetVector
//   - MockTextExtractor: returns no text
//   - MockProvider: aggregates a mock embedder and extractor
//
// Mocks are safe for concurrent use.
package mock
