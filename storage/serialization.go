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


package storage

import (
	"fmt"

	"github.com/poiesic/coverdex/core"
)

// serializer is the subset of a MUS serializer that record encoding needs.
type serializer[T any] interface {
	Marshal(v T, bs []byte) (n int)
	Unmarshal(bs []byte) (v T, n int, err error)
	Size(v T) (size int)
}

func encode[T any](s serializer[T], v T) []byte {
	buf := make([]byte, s.Size(v))
	s.Marshal(v, buf)
	return buf
}

// decode rejects values with trailing bytes. A stored value is always
// exactly one encoded record.
func decode[T any](s serializer[T], data []byte) (*T, error) {
	v, n, err := s.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptRecord, len(data)-n)
	}
	return &v, nil
}

func MarshalCatalogEntry(entry *core.CatalogEntry) []byte {
	return encode(core.CatalogEntryMUS, *entry)
}

func UnmarshalCatalogEntry(data []byte) (*core.CatalogEntry, error) {
	return decode[core.CatalogEntry](core.CatalogEntryMUS, data)
}

func MarshalSnapshotRecord(record *core.SnapshotRecord) []byte {
	return encode(core.SnapshotRecordMUS, *record)
}

func UnmarshalSnapshotRecord(data []byte) (*core.SnapshotRecord, error) {
	return decode[core.SnapshotRecord](core.SnapshotRecordMUS, data)
}

func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	return encode(core.CheckpointMUS, *checkpoint)
}

func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	return decode[core.Checkpoint](core.CheckpointMUS, data)
}
