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


package mock

import "github.com/poiesic/coverdex/ai"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	embedder  *MockImageEmbedder
	extractor *MockTextExtractor
	closed    bool
}

var _ ai.Provider = (*MockProvider)(nil)

// NewMockProvider creates a provider with a mock embedder of dimension dim and
// a mock extractor that finds no text.
func NewMockProvider(dim int) *MockProvider {
	return &MockProvider{
		embedder:  NewMockImageEmbedder(dim),
		extractor: NewMockTextExtractor(),
	}
}

// NewMockProviderWithServices creates a provider from existing mocks.
// A nil extractor yields a provider without OCR.
func NewMockProviderWithServices(embedder *MockImageEmbedder, extractor *MockTextExtractor) *MockProvider {
	return &MockProvider{
		embedder:  embedder,
		extractor: extractor,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.ImageEmbedder {
	return p.embedder
}

// TextExtractor returns the mock extractor, or nil if none was given.
func (p *MockProvider) TextExtractor() ai.TextExtractor {
	if p.extractor == nil {
		return nil
	}
	return p.extractor
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockEmbedder returns the concrete embedder for assertions.
func (p *MockProvider) GetMockEmbedder() *MockImageEmbedder {
	return p.embedder
}

// GetMockExtractor returns the concrete extractor for assertions.
func (p *MockProvider) GetMockExtractor() *MockTextExtractor {
	return p.extractor
}
