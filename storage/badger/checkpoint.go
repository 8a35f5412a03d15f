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

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/storage"
)

// CheckpointRepository implements storage.CheckpointRepository for BadgerDB.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{
		backend: backend,
	}
}

// Save persists the checkpoint for checkpoint.Scope.
func (r *CheckpointRepository) Save(ctx context.Context, checkpoint *core.Checkpoint) error {
	checkpoint.UpdatedAt = time.Now().UTC()
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeCheckpointKey(checkpoint.Scope), storage.MarshalCheckpoint(checkpoint))
	})
	return r.backend.wrapErr("save checkpoint", err)
}

// Load retrieves the checkpoint for scope.
// Returns nil, nil if no checkpoint exists.
func (r *CheckpointRepository) Load(ctx context.Context, scope string) (*core.Checkpoint, error) {
	var checkpoint *core.Checkpoint
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeCheckpointKey(scope))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			checkpoint, unmarshalErr = storage.UnmarshalCheckpoint(val)
			return unmarshalErr
		})
	})
	if err != nil {
		return nil, r.backend.wrapErr("load checkpoint", err)
	}
	return checkpoint, nil
}

// Reset removes the checkpoint for scope. Resetting a missing checkpoint is not an error.
func (r *CheckpointRepository) Reset(ctx context.Context, scope string) error {
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeCheckpointKey(scope))
	})
	return r.backend.wrapErr("reset checkpoint", err)
}
