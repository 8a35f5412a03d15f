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


// Package ai provides abstractions for the model services coverdex consumes.
//
// Models are treated as black boxes behind narrow interfaces:
//
//   - ImageEmbedder: turns image bytes into a fixed-dimension vector and
//     reports the model version that produced it
//   - TextExtractor: reads printed text off an image (OCR)
//   - Provider: aggregates both for convenient initialization
//
// Vectors produced by different model versions are never compared against
// each other. Entries carry the version that embedded them, and queries only
// rank entries of the query embedder's version.
//
// # Implementation Packages
//
//   - ai/remote: HTTP embedding service plus an OpenAI-compatible vision model for OCR
//   - ai/mock: test doubles for unit testing without external services
//
// Public constructors in ai/remote return interfaces. Mock constructors return
// concrete types so tests can inject behavior and inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithEmbeddingHost("http://embedder:8090"))
//	provider, err := remote.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedImage(ctx, jpegBytes)
package ai
