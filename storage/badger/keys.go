package badger

import (
	"encoding/binary"
	"math"

	"github.com/poiesic/coverdex/core"
)

// Key prefixes for different data types
const (
	catalogEntryPrefix = "catent:"
	catalogIDSeq       = "catseq"
	catalogDimKey      = "catmeta:dim"
	checkpointPrefix   = "chkpt:"
	snapshotPrefix     = "snaprec:"
	snapshotIDSeq      = "snapseq"
)

// makeCatalogEntryKey generates a key for a catalog entry by SourceID.
// Entries are keyed by SourceID so that prefix iteration yields them in
// ascending SourceID order, which is the ranking tie-break order.
func makeCatalogEntryKey(sourceID string) []byte {
	buf := make([]byte, len(catalogEntryPrefix)+len(sourceID))
	offset := copy(buf, catalogEntryPrefix)
	copy(buf[offset:], sourceID)
	return buf
}

// sourceIDFromKey extracts the SourceID from a catalog entry key.
func sourceIDFromKey(key []byte) string {
	return string(key[len(catalogEntryPrefix):])
}

// makeCheckpointKey generates a key for a scope's ingestion checkpoint.
func makeCheckpointKey(scope string) []byte {
	return []byte(checkpointPrefix + scope)
}

// makeSnapshotKey generates a key for a snapshot record.
// Format: prefix + 8 byte big-endian ID
func makeSnapshotKey(id core.ID) []byte {
	buf := make([]byte, len(snapshotPrefix)+8)
	offset := copy(buf, snapshotPrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// snapshotSeekKey returns the key a reverse iteration should seek to in order
// to list snapshots older than beforeID. Zero means newest.
func snapshotSeekKey(beforeID core.ID) []byte {
	if beforeID == 0 {
		return makeSnapshotKey(core.ID(math.MaxUint64))
	}
	return makeSnapshotKey(beforeID)
}

// snapshotIDFromKey extracts the ID from a snapshot key.
func snapshotIDFromKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(snapshotPrefix):]))
}
