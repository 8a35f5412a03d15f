package storage

import (
	"testing"
	"time"

	"github.com/poiesic/coverdex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDEncoding(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"sequence ID", core.ID(1 << 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encode[core.ID](core.IDMUS, tt.id)
			require.NotEmpty(t, data)

			decoded, err := decode[core.ID](core.IDMUS, data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, *decoded)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	_, err := decode[core.ID](core.IDMUS, []byte{})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestDecode_TrailingBytes(t *testing.T) {
	data := append(MarshalCheckpoint(&core.Checkpoint{Scope: "Jazz"}), 0x01, 0x02)
	_, err := UnmarshalCheckpoint(data)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestCatalogEntryEncoding(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	entry := &core.CatalogEntry{
		ID:                    7,
		SourceID:              "discogs:249504",
		Title:                 "Blue Train",
		Artist:                "John Coltrane",
		Year:                  1957,
		Style:                 "Hard Bop",
		CoverURL:              "https://img.example/249504.jpg",
		SourceURL:             "https://www.discogs.com/release/249504",
		Embedding:             []float32{0.6, -0.8, 0},
		EmbeddingModelVersion: "dinov2-small@1",
		ExtractedText:         "JOHN COLTRANE, BLUE TRAIN",
		CreatedAt:             now,
		UpdatedAt:             now.Add(time.Minute),
	}

	decoded, err := UnmarshalCatalogEntry(MarshalCatalogEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)
}

func TestCatalogEntryEncoding_ZeroValues(t *testing.T) {
	entry := &core.CatalogEntry{SourceID: "r1"}

	decoded, err := UnmarshalCatalogEntry(MarshalCatalogEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, "r1", decoded.SourceID)
	assert.Nil(t, decoded.Embedding)
	assert.True(t, decoded.CreatedAt.IsZero())
}

func TestUnmarshalCatalogEntry_Truncated(t *testing.T) {
	data := MarshalCatalogEntry(&core.CatalogEntry{SourceID: "r1", Title: "A long enough title"})
	_, err := UnmarshalCatalogEntry(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestSnapshotRecordEncoding(t *testing.T) {
	record := &core.SnapshotRecord{
		ID:          3,
		ImageRef:    "snapshots/abc.jpg",
		ContentType: "image/jpeg",
		CapturedAt:  time.Now().UTC().Truncate(time.Microsecond),
		Matches: []core.SnapshotMatch{
			{EntryID: 1, SourceID: "r1", Title: "One", Artist: "A", Year: 1970, Score: 0.93, Rank: 1},
			{EntryID: 2, SourceID: "r2", Title: "Two", Artist: "B", Score: 0.41, Rank: 2},
		},
		ExtractedText: "ONE",
		OCRFailed:     true,
	}

	decoded, err := UnmarshalSnapshotRecord(MarshalSnapshotRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestCheckpointEncoding(t *testing.T) {
	checkpoint := &core.Checkpoint{
		Scope:     "Jazz",
		NextPage:  4,
		ItemsSeen: 150,
		Completed: true,
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalCheckpoint(MarshalCheckpoint(checkpoint))
	require.NoError(t, err)
	assert.Equal(t, checkpoint, decoded)
}
