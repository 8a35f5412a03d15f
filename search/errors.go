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


package search

import "errors"

// Errors returned by NewSearcher for missing collaborators.
var (
	ErrCatalogRequired    = errors.New("search: catalog repository required")
	ErrAIProviderRequired = errors.New("search: model provider required")
	ErrEmbedderRequired   = errors.New("search: provider has no image embedder")
)

// ErrZeroEmbedding is wrapped in a permanent *core.ProviderError when the
// embedder returns a vector with zero or non-finite magnitude.
var ErrZeroEmbedding = errors.New("search: embedding has zero magnitude")
