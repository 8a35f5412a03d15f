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
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImageBytes bounds query images when no explicit limit is configured.
const DefaultMaxImageBytes = 10 << 20

// ImageInfo describes a validated image.
type ImageInfo struct {
	Format string // "jpeg", "png", "gif", "bmp" or "webp"
	Width  int
	Height int
}

// ContentType returns the MIME type for the image format.
func (i ImageInfo) ContentType() string {
	return "image/" + i.Format
}

// Extension returns the conventional file extension for the image format.
func (i ImageInfo) Extension() string {
	if i.Format == "jpeg" {
		return ".jpg"
	}
	return "." + i.Format
}

// ValidateImage checks that data is a non-empty image of a supported format
// no larger than maxBytes. A maxBytes of zero or less applies DefaultMaxImageBytes.
//
// Only the image header is decoded; pixel data is left to the providers.
func ValidateImage(data []byte, maxBytes int) (ImageInfo, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if len(data) == 0 {
		return ImageInfo{}, fmt.Errorf("%w: %w", ErrValidation, ErrEmptyImage)
	}
	if len(data) > maxBytes {
		return ImageInfo{}, fmt.Errorf("%w: %w: %d > %d bytes", ErrValidation, ErrImageTooLarge, len(data), maxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %w: %v", ErrValidation, ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("%w: %w: zero-sized image", ErrValidation, ErrUnsupportedFormat)
	}

	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// ValidateCatalogEntry validates an entry before it is written to the catalog.
//
// Validation rules:
//   - SourceID must not be empty
//   - Embedding must be present and L2-normalized
//   - EmbeddingModelVersion must be set
//
// Dimension is checked by the store, which owns the catalog dimension.
func ValidateCatalogEntry(entry *CatalogEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrValidation)
	}
	if entry.SourceID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptySourceID)
	}
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyEmbedding)
	}
	if !IsNormalized(entry.Embedding) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrNotNormalized)
	}
	if entry.EmbeddingModelVersion == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrMissingModelVersion)
	}
	return nil
}
