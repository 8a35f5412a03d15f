package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Catalog entries and snapshots draw IDs from database sequences.
type ID uint64

// ContentKey returns a hex encoded 128-bit BLAKE2b digest of data.
// Used to address stored images by their content.
func ContentKey(data []byte) string {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CatalogEntry is one indexed album cover: release metadata plus the
// visual fingerprint of its cover image.
type CatalogEntry struct {
	ID                    ID
	SourceID              string    // External catalog identifier, unique per catalog
	Title                 string
	Artist                string
	Year                  int
	Style                 string
	CoverURL              string    // Where the cover image was fetched from
	SourceURL             string    // Release page at the metadata source
	Embedding             []float32 // L2-normalized, dimension fixed per catalog
	EmbeddingModelVersion string
	ExtractedText         string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SameContent reports whether two entries carry identical metadata and
// embeddings. Store-managed fields (ID and timestamps) are ignored.
func (e *CatalogEntry) SameContent(other *CatalogEntry) bool {
	if e == nil || other == nil {
		return e == other
	}
	if !e.SameMetadata(other) ||
		e.EmbeddingModelVersion != other.EmbeddingModelVersion ||
		e.ExtractedText != other.ExtractedText ||
		len(e.Embedding) != len(other.Embedding) {
		return false
	}
	for i := range e.Embedding {
		if e.Embedding[i] != other.Embedding[i] {
			return false
		}
	}
	return true
}

// SameMetadata reports whether two entries describe the same release the
// same way, ignoring embeddings.
func (e *CatalogEntry) SameMetadata(other *CatalogEntry) bool {
	return e.SourceID == other.SourceID &&
		e.Title == other.Title &&
		e.Artist == other.Artist &&
		e.Year == other.Year &&
		e.Style == other.Style &&
		e.CoverURL == other.CoverURL &&
		e.SourceURL == other.SourceURL
}

// Match is a ranked candidate returned by a nearest-neighbor query.
type Match struct {
	Entry      *CatalogEntry
	Similarity float32 // Raw cosine similarity in [-1, 1]
	Score      float32 // Similarity clamped to [0, 1]
	Rank       int     // 1-based, dense
}

// ClampScore maps a cosine similarity onto the [0, 1] score range.
func ClampScore(similarity float32) float32 {
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}

// SnapshotMatch is the archived form of a Match. It keeps enough metadata to
// render a gallery even if the catalog entry is later removed.
type SnapshotMatch struct {
	EntryID  ID
	SourceID string
	Title    string
	Artist   string
	Year     int
	Score    float32
	Rank     int
}

// SnapshotRecord captures one query: the input image and the matches it produced.
// Records are immutable once written.
type SnapshotRecord struct {
	ID            ID
	ImageRef      string // Blob store key of the captured image
	ContentType   string
	CapturedAt    time.Time
	Matches       []SnapshotMatch
	ExtractedText string
	OCRFailed     bool
}

// Checkpoint is the persisted ingestion cursor for one source scope.
type Checkpoint struct {
	Scope     string
	NextPage  int  // First page not yet fully processed
	ItemsSeen int  // Items consumed from the scope so far
	Completed bool // Set once the last page has been processed
	UpdatedAt time.Time
}
