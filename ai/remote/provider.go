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


package remote

import (
	"log/slog"

	"github.com/poiesic/coverdex/ai"
)

// Provider implements ai.Provider using remote services.
// It manages embedder and text extractor instances.
type Provider struct {
	config    *ai.Config
	embedder  *Embedder
	extractor *TextExtractor
	logger    *slog.Logger
}

// NewProvider creates a new provider. The config is validated and normalized
// before use. When config has no OCR host the provider has no text extractor.
//
// Returns ai.Provider interface (not *Provider) to enforce abstraction.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config, nil)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config:   config,
		embedder: embedder,
		logger:   slog.Default().With("component", "remote-provider"),
	}

	if config.OCREnabled() {
		if p.extractor, err = newTextExtractor(config); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Embedder returns the image embedding service.
func (p *Provider) Embedder() ai.ImageEmbedder {
	return p.embedder
}

// TextExtractor returns the OCR service, or nil when OCR is disabled.
func (p *Provider) TextExtractor() ai.TextExtractor {
	if p.extractor == nil {
		return nil
	}
	return p.extractor
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying HTTP clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing remote provider")
	return nil
}
