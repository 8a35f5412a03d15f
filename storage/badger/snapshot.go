package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/storage"
)

// SnapshotRepository implements storage.SnapshotRepository for BadgerDB.
// Records are keyed by big-endian ID so reverse iteration lists newest first.
type SnapshotRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.SnapshotRepository = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(backend *Backend) (*SnapshotRepository, error) {
	idSeq, err := backend.GetSequence(snapshotIDSeq)
	if err != nil {
		return nil, backend.wrapErr("open snapshots", err)
	}
	return &SnapshotRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *SnapshotRepository) Close() error {
	return r.idSeq.Release()
}

// Append assigns record an ID and stores it.
func (r *SnapshotRepository) Append(ctx context.Context, record *core.SnapshotRecord) error {
	if record.ID != 0 {
		return fmt.Errorf("%w: snapshot %d already stored", core.ErrValidation, record.ID)
	}
	if record.CapturedAt.IsZero() {
		record.CapturedAt = time.Now().UTC()
	}

	id, err := nextID(r.idSeq)
	if err != nil {
		return r.backend.wrapErr("append snapshot", err)
	}
	stored := *record
	stored.ID = id

	// Snapshot keys are never rewritten, so this cannot conflict
	err = r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeSnapshotKey(id), storage.MarshalSnapshotRecord(&stored))
	})
	if err != nil {
		return r.backend.wrapErr("append snapshot", err)
	}
	record.ID = id
	return nil
}

// Get retrieves a snapshot by ID.
func (r *SnapshotRepository) Get(ctx context.Context, id core.ID) (*core.SnapshotRecord, error) {
	var record *core.SnapshotRecord
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeSnapshotKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			record, err = storage.UnmarshalSnapshotRecord(val)
			return err
		})
	})
	if err != nil {
		return nil, r.backend.wrapErr("get snapshot", err)
	}
	return record, nil
}

// ListBefore returns up to limit snapshots older than beforeID, newest first.
func (r *SnapshotRepository) ListBefore(ctx context.Context, beforeID core.ID, limit int) ([]*core.SnapshotRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %w: limit must be positive, got %d", core.ErrValidation, storage.ErrInvalidQuery, limit)
	}

	var records []*core.SnapshotRecord
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(snapshotPrefix)
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(snapshotSeekKey(beforeID)); iter.Valid() && len(records) < limit; iter.Next() {
			item := iter.Item()
			if beforeID != 0 && snapshotIDFromKey(item.Key()) >= beforeID {
				continue
			}
			err := item.Value(func(val []byte) error {
				record, err := storage.UnmarshalSnapshotRecord(val)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, r.backend.wrapErr("list snapshots", err)
	}
	return records, nil
}
