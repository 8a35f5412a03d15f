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


// Package remote implements the ai interfaces against network services.
//
// Image embeddings come from an HTTP service that wraps a vision backbone such
// as DINOv2:
//
//	POST {EmbeddingHost}/embed
//	{"model": "facebook/dinov2-small", "image": "<base64>"}
//
//	200 OK
//	{"embedding": [0.12, ...], "model": "facebook/dinov2-small"}
//
// Text extraction prompts an OpenAI-compatible vision chat model through
// langchaingo and asks for JSON lines with confidences.
//
// Failures are reported as *core.ProviderError. Timeouts, 429 and 5xx
// responses, and connection errors are transient; other failures are
// permanent.
package remote
