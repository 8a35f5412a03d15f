// Package manifest serves catalog records from a local JSON manifest.
//
// A manifest is a JSON array of records:
//
//	[
//	  {"source_id": "101", "title": "Blue Train", "artist": "John Coltrane",
//	   "year": 1957, "style": "Jazz", "cover_url": "covers/101.jpg"}
//	]
//
// Scopes match the record style case-insensitively; the scope "*" lists
// every record. Relative cover paths resolve against the manifest directory.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/coverdex/source"
)

// DefaultPageSize is the number of records per page.
const DefaultPageSize = 50

// AllScopes lists every record regardless of style.
const AllScopes = "*"

// Source is a source.MetadataSource over an in-memory record list.
type Source struct {
	records  []source.Record
	pageSize int
}

var _ source.MetadataSource = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithPageSize sets the number of records per page.
func WithPageSize(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New creates a source over records.
func New(records []source.Record, opts ...Option) *Source {
	s := &Source{
		records:  records,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads a manifest file. Relative cover paths are rewritten to
// absolute paths under the manifest's directory.
func Load(path string, opts ...Option) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var records []source.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve manifest dir: %w", err)
	}
	for i := range records {
		records[i].CoverURL = resolveCover(dir, records[i].CoverURL)
	}
	return New(records, opts...), nil
}

func resolveCover(dir, cover string) string {
	if cover == "" || strings.Contains(cover, "://") || filepath.IsAbs(cover) {
		return cover
	}
	return filepath.Join(dir, cover)
}

// Scopes returns the distinct styles in the manifest, in first-seen order.
func (s *Source) Scopes() []string {
	seen := make(map[string]bool)
	var scopes []string
	for _, r := range s.records {
		key := strings.ToLower(r.Style)
		if r.Style == "" || seen[key] {
			continue
		}
		seen[key] = true
		scopes = append(scopes, r.Style)
	}
	return scopes
}

// FetchPage returns page of the records in scope.
func (s *Source) FetchPage(ctx context.Context, scope string, page int) (*source.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: %d", source.ErrInvalidPage, page)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var matching []source.Record
	for _, r := range s.records {
		if scope == AllScopes || strings.EqualFold(r.Style, scope) {
			matching = append(matching, r)
		}
	}

	start := (page - 1) * s.pageSize
	if start >= len(matching) {
		return &source.Page{Number: page}, nil
	}
	end := min(start+s.pageSize, len(matching))
	return &source.Page{
		Number:  page,
		Records: matching[start:end],
		HasMore: end < len(matching),
	}, nil
}
