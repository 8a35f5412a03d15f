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

import "errors"

// Lookup and argument errors. Callers usually match these with errors.Is.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidQuery = errors.New("invalid query parameters")
)

// Backend errors.
var (
	// ErrStorageClosed is returned by every operation after Close.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrConflictRetriesExhausted means a write lost every optimistic
	// transaction retry to concurrent writers of the same key.
	ErrConflictRetriesExhausted = errors.New("transaction conflict retries exhausted")

	// ErrCorruptRecord means a stored value could not be decoded as the
	// record type its key implies.
	ErrCorruptRecord = errors.New("corrupt stored record")
)
