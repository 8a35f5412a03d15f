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


// Package storage provides the storage abstraction layer for coverdex.
//
// This package defines repository interfaces that decouple the catalog,
// checkpoint and snapshot stores from the pipelines that use them.
//
// # Architecture
//
//   - CatalogRepository: catalog entries keyed by SourceID, plus exact
//     nearest-neighbor search over their embeddings
//   - CheckpointRepository: ingestion cursors keyed by source scope
//   - SnapshotRepository: append-only log of query snapshots
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	catalog, err := badger.NewCatalogRepository(backend)
//
// Tests use an in-memory backend:
//
//	repos, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe. Each operation runs in
// its own short transaction; readers never observe a partially written entry.
//
// # Errors
//
// Operational failures are reported as *core.StoreError, which matches
// core.ErrStore. A closed or unreachable backend sets StoreError.Unavailable.
package storage
