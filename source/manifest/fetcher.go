package manifest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/source"
)

// Fetcher reads covers from the local filesystem and delegates http(s) URLs
// to a remote fetcher.
type Fetcher struct {
	remote source.ImageFetcher
}

var _ source.ImageFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher. A nil remote uses source.NewHTTPFetcher().
func NewFetcher(remote source.ImageFetcher) *Fetcher {
	if remote == nil {
		remote = source.NewHTTPFetcher()
	}
	return &Fetcher{remote: remote}
}

// Fetch returns the image at url, which is a file path, a file:// URL or an
// http(s) URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return f.remote.Fetch(ctx, url)
	}
	if err := ctx.Err(); err != nil {
		return nil, core.NewPermanentError("fetch", err)
	}

	data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return nil, core.NewPermanentError("fetch", err)
	case err != nil:
		return nil, core.NewTransientError("fetch", err)
	case len(data) == 0:
		return nil, core.NewPermanentError("fetch", core.ErrEmptyImage)
	}
	return data, nil
}
