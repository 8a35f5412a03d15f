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


package core

import (
	"errors"
	"fmt"
)

// Error categories. Every error surfaced by coverdex matches exactly one of
// these with errors.Is.
var (
	// ErrValidation indicates malformed input such as an empty or oversized image.
	ErrValidation = errors.New("validation failed")

	// ErrProvider indicates a failure in an external capability
	// (embedding, OCR, metadata listing, image fetch).
	ErrProvider = errors.New("provider failed")

	// ErrStore indicates a storage connectivity or constraint failure.
	ErrStore = errors.New("store failed")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("deadline exceeded")

	// ErrDimensionMismatch indicates a vector whose shape does not match the catalog.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Validation details, wrapped together with ErrValidation.
var (
	ErrEmptyImage          = errors.New("image is empty")
	ErrImageTooLarge       = errors.New("image exceeds size limit")
	ErrUnsupportedFormat   = errors.New("unsupported image format")
	ErrEmptySourceID       = errors.New("source id cannot be empty")
	ErrEmptyEmbedding      = errors.New("embedding cannot be empty")
	ErrNotNormalized       = errors.New("embedding is not L2-normalized")
	ErrMissingModelVersion = errors.New("embedding model version is required")
)

// ProviderError reports a failed call to an external capability.
// Transient errors (timeouts, 5xx, 429, connection failures) may be retried;
// permanent ones may not.
type ProviderError struct {
	Op         string // e.g. "embed", "ocr", "metadata", "fetch"
	Transient  bool
	StatusCode int // HTTP status when known
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %v", e.Op, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes every ProviderError match ErrProvider.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// NewTransientError wraps err as a retryable provider failure.
func NewTransientError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Transient: true, Err: err}
}

// NewPermanentError wraps err as a non-retryable provider failure.
func NewPermanentError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Err: err}
}

// StoreError reports a failed storage operation. Unavailable marks systemic
// conditions (closed or unreachable store) as opposed to per-row failures.
type StoreError struct {
	Op          string
	Unavailable bool
	Err         error
}

func (e *StoreError) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("store %s: unavailable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrStore.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}

// IsStoreUnavailable reports whether err indicates the store itself is gone.
func IsStoreUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Unavailable
}

// TimeoutError wraps a context error so it matches ErrTimeout.
func TimeoutError(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTimeout, cause)
}
