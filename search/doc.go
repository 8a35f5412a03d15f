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


// Package search turns a photographed cover into a ranked list of catalog
// matches.
//
// A query runs in stages:
//   - The image is validated (non-empty, size bound, supported format)
//   - The embedding (required) and OCR text (best effort, own timeout) are
//     computed concurrently and joined
//   - The normalized embedding is matched against the catalog, restricted to
//     entries embedded by the same model version
//   - A Scorer assigns final scores; matches are re-sorted and ranked
//
// Ranking is visual by default: VisualScorer keeps the cosine score and OCR
// text is returned alongside the matches without affecting them. An OCR
// failure is reported in the Result, never as an error. Any failure of the
// embedding or the catalog query fails the whole query, and nothing is
// archived for a failed query.
package search
