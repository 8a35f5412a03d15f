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


package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/poiesic/coverdex/core"
)

const (
	// DefaultUserAgent identifies coverdex to image hosts and APIs.
	DefaultUserAgent = "coverdex/1.0"

	// DefaultMaxImageBytes bounds downloaded cover images.
	DefaultMaxImageBytes = 20 << 20

	defaultFetchTimeout = 30 * time.Second
)

// ErrResponseTooLarge indicates a response body over the configured limit.
var ErrResponseTooLarge = errors.New("response exceeds size limit")

// HTTPFetcher fetches images over HTTP(S).
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

var _ ImageFetcher = (*HTTPFetcher)(nil)

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithMaxBytes bounds the size of a fetched image.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxBytes = n
	}
}

// NewHTTPFetcher creates an image fetcher.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: defaultFetchTimeout},
		userAgent: DefaultUserAgent,
		maxBytes:  DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url and returns the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.NewPermanentError("fetch", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ClassifyTransportError("fetch", err)
	}
	defer resp.Body.Close()

	if err := CheckStatus("fetch", resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, ClassifyTransportError("fetch", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, core.NewPermanentError("fetch", ErrResponseTooLarge)
	}
	if len(data) == 0 {
		return nil, core.NewPermanentError("fetch", core.ErrEmptyImage)
	}
	return data, nil
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= 500
}

// CheckStatus converts a non-2xx response into a *core.ProviderError.
// The body is drained into the error message, up to a small limit.
func CheckStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &core.ProviderError{
		Op:         op,
		Transient:  IsTransientStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("%s %s: %s", resp.Request.Method, resp.Status, body),
	}
}

// ClassifyTransportError wraps a failed request. Cancellation is permanent;
// timeouts and connection failures are transient.
func ClassifyTransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return core.NewPermanentError(op, err)
	}
	return core.NewTransientError(op, err)
}
