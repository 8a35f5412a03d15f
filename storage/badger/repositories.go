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


package badger

import "errors"

// Repositories bundles the repositories that share one Backend.
type Repositories struct {
	Backend     *Backend
	Catalog     *CatalogRepository
	Checkpoints *CheckpointRepository
	Snapshots   *SnapshotRepository
}

// OpenRepositories opens a backend at path and creates every repository on it.
// Callers must call Close when done.
func OpenRepositories(path string, inMemory bool) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	catalog, err := NewCatalogRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	snapshots, err := NewSnapshotRepository(backend)
	if err != nil {
		catalog.Close()
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend:     backend,
		Catalog:     catalog,
		Checkpoints: NewCheckpointRepository(backend),
		Snapshots:   snapshots,
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
func NewMemoryRepositories() (*Repositories, error) {
	return OpenRepositories("", true)
}

// Close releases the repositories and closes the backend.
func (r *Repositories) Close() error {
	return errors.Join(
		r.Catalog.Close(),
		r.Snapshots.Close(),
		r.Backend.Close(),
	)
}
