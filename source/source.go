package source

import (
	"context"
	"errors"
)

// ErrInvalidPage indicates a page number below 1.
var ErrInvalidPage = errors.New("page numbers start at 1")

// Record is one release as listed by a metadata source.
type Record struct {
	SourceID  string `json:"source_id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Year      int    `json:"year,omitempty"`
	Style     string `json:"style,omitempty"`
	CoverURL  string `json:"cover_url"`
	SourceURL string `json:"source_url,omitempty"`
}

// Page is one page of a scope listing.
type Page struct {
	Number  int // 1-based
	Records []Record
	HasMore bool // Whether a later page exists
}

// MetadataSource lists catalog records for a scope (a style or category key)
// one page at a time. Pages are numbered from 1.
type MetadataSource interface {
	FetchPage(ctx context.Context, scope string, page int) (*Page, error)
}

// ImageFetcher downloads a cover image.
// Failures are *core.ProviderError values whose Transient flag tells
// retryable conditions apart from permanent ones.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
