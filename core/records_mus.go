package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for persisted records. Field order is part of the on-disk
// format: append new fields at the end and never reorder existing ones.

var (
	IDMUS             = idMUS{}
	CatalogEntryMUS   = catalogEntryMUS{}
	SnapshotRecordMUS = snapshotRecordMUS{}
	CheckpointMUS     = checkpointMUS{}

	intMUS             = intSer{}
	timeMUS            = timeSer{}
	float32SliceMUS    = float32SliceSer{}
	snapshotMatchMUS   = snapshotMatchSer{}
	snapshotMatchesMUS = snapshotMatchSliceSer{}
)

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

type intSer struct{}

func (intSer) Marshal(v int, bs []byte) (n int) {
	return varint.Int64.Marshal(int64(v), bs)
}

func (intSer) Unmarshal(bs []byte) (v int, n int, err error) {
	i, n, err := varint.Int64.Unmarshal(bs)
	return int(i), n, err
}

func (intSer) Size(v int) (size int) {
	return varint.Int64.Size(int64(v))
}

// timeSer stores timestamps as Unix microseconds. The zero time is stored as 0.
type timeSer struct{}

func (timeSer) micros(v time.Time) int64 {
	if v.IsZero() {
		return 0
	}
	return v.UnixMicro()
}

func (s timeSer) Marshal(v time.Time, bs []byte) (n int) {
	return varint.Int64.Marshal(s.micros(v), bs)
}

func (timeSer) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || us == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func (s timeSer) Size(v time.Time) (size int) {
	return varint.Int64.Size(s.micros(v))
}

type float32SliceSer struct{}

func (float32SliceSer) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (float32SliceSer) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]float32, length)
	var n1 int
	for i := range v {
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func (float32SliceSer) Size(v []float32) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

type catalogEntryMUS struct{}

func (catalogEntryMUS) Marshal(v CatalogEntry, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.SourceID, bs[n:])
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.Artist, bs[n:])
	n += intMUS.Marshal(v.Year, bs[n:])
	n += ord.String.Marshal(v.Style, bs[n:])
	n += ord.String.Marshal(v.CoverURL, bs[n:])
	n += ord.String.Marshal(v.SourceURL, bs[n:])
	n += float32SliceMUS.Marshal(v.Embedding, bs[n:])
	n += ord.String.Marshal(v.EmbeddingModelVersion, bs[n:])
	n += ord.String.Marshal(v.ExtractedText, bs[n:])
	n += timeMUS.Marshal(v.CreatedAt, bs[n:])
	n += timeMUS.Marshal(v.UpdatedAt, bs[n:])
	return n
}

func (catalogEntryMUS) Unmarshal(bs []byte) (v CatalogEntry, n int, err error) {
	v.ID, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	strs := []*string{&v.SourceID, &v.Title, &v.Artist}
	for _, s := range strs {
		*s, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.Year, n1, err = intMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	strs = []*string{&v.Style, &v.CoverURL, &v.SourceURL}
	for _, s := range strs {
		*s, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.Embedding, n1, err = float32SliceMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	strs = []*string{&v.EmbeddingModelVersion, &v.ExtractedText}
	for _, s := range strs {
		*s, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.CreatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (catalogEntryMUS) Size(v CatalogEntry) (size int) {
	size = IDMUS.Size(v.ID)
	size += ord.String.Size(v.SourceID)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.Artist)
	size += intMUS.Size(v.Year)
	size += ord.String.Size(v.Style)
	size += ord.String.Size(v.CoverURL)
	size += ord.String.Size(v.SourceURL)
	size += float32SliceMUS.Size(v.Embedding)
	size += ord.String.Size(v.EmbeddingModelVersion)
	size += ord.String.Size(v.ExtractedText)
	size += timeMUS.Size(v.CreatedAt)
	size += timeMUS.Size(v.UpdatedAt)
	return size
}

type snapshotMatchSer struct{}

func (snapshotMatchSer) Marshal(v SnapshotMatch, bs []byte) (n int) {
	n = IDMUS.Marshal(v.EntryID, bs)
	n += ord.String.Marshal(v.SourceID, bs[n:])
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.Artist, bs[n:])
	n += intMUS.Marshal(v.Year, bs[n:])
	n += raw.Float32.Marshal(v.Score, bs[n:])
	n += intMUS.Marshal(v.Rank, bs[n:])
	return n
}

func (snapshotMatchSer) Unmarshal(bs []byte) (v SnapshotMatch, n int, err error) {
	v.EntryID, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	for _, s := range []*string{&v.SourceID, &v.Title, &v.Artist} {
		*s, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.Year, n1, err = intMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Score, n1, err = raw.Float32.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Rank, n1, err = intMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (snapshotMatchSer) Size(v SnapshotMatch) (size int) {
	size = IDMUS.Size(v.EntryID)
	size += ord.String.Size(v.SourceID)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.Artist)
	size += intMUS.Size(v.Year)
	size += raw.Float32.Size(v.Score)
	size += intMUS.Size(v.Rank)
	return size
}

type snapshotMatchSliceSer struct{}

func (snapshotMatchSliceSer) Marshal(v []SnapshotMatch, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, m := range v {
		n += snapshotMatchMUS.Marshal(m, bs[n:])
	}
	return n
}

func (snapshotMatchSliceSer) Unmarshal(bs []byte) (v []SnapshotMatch, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil || length == 0 {
		return nil, n, err
	}
	v = make([]SnapshotMatch, length)
	var n1 int
	for i := range v {
		v[i], n1, err = snapshotMatchMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func (snapshotMatchSliceSer) Size(v []SnapshotMatch) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for _, m := range v {
		size += snapshotMatchMUS.Size(m)
	}
	return size
}

type snapshotRecordMUS struct{}

func (snapshotRecordMUS) Marshal(v SnapshotRecord, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.ImageRef, bs[n:])
	n += ord.String.Marshal(v.ContentType, bs[n:])
	n += timeMUS.Marshal(v.CapturedAt, bs[n:])
	n += snapshotMatchesMUS.Marshal(v.Matches, bs[n:])
	n += ord.String.Marshal(v.ExtractedText, bs[n:])
	n += ord.Bool.Marshal(v.OCRFailed, bs[n:])
	return n
}

func (snapshotRecordMUS) Unmarshal(bs []byte) (v SnapshotRecord, n int, err error) {
	v.ID, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.ImageRef, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ContentType, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CapturedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Matches, n1, err = snapshotMatchesMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ExtractedText, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.OCRFailed, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	return
}

func (snapshotRecordMUS) Size(v SnapshotRecord) (size int) {
	size = IDMUS.Size(v.ID)
	size += ord.String.Size(v.ImageRef)
	size += ord.String.Size(v.ContentType)
	size += timeMUS.Size(v.CapturedAt)
	size += snapshotMatchesMUS.Size(v.Matches)
	size += ord.String.Size(v.ExtractedText)
	size += ord.Bool.Size(v.OCRFailed)
	return size
}

type checkpointMUS struct{}

func (checkpointMUS) Marshal(v Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(v.Scope, bs)
	n += intMUS.Marshal(v.NextPage, bs[n:])
	n += intMUS.Marshal(v.ItemsSeen, bs[n:])
	n += ord.Bool.Marshal(v.Completed, bs[n:])
	n += timeMUS.Marshal(v.UpdatedAt, bs[n:])
	return n
}

func (checkpointMUS) Unmarshal(bs []byte) (v Checkpoint, n int, err error) {
	v.Scope, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.NextPage, n1, err = intMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ItemsSeen, n1, err = intMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Completed, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (checkpointMUS) Size(v Checkpoint) (size int) {
	size = ord.String.Size(v.Scope)
	size += intMUS.Size(v.NextPage)
	size += intMUS.Size(v.ItemsSeen)
	size += ord.Bool.Size(v.Completed)
	size += timeMUS.Size(v.UpdatedAt)
	return size
}
