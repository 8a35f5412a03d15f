// Package discogs lists releases from the Discogs database search API.
//
// Each scope is a Discogs style ("Jazz", "Ambient", ...). Pages hold at most
// 50 releases. Requests are authenticated with a personal access token.
package discogs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/coverdex/core"
	"github.com/poiesic/coverdex/source"
)

const (
	// DefaultBaseURL is the Discogs API root.
	DefaultBaseURL = "https://api.discogs.com"

	// MaxPerPage is the largest page size requested from Discogs.
	MaxPerPage = 50

	webURL = "https://www.discogs.com"
)

// Client is a source.MetadataSource backed by Discogs.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	perPage    int
	httpClient *http.Client
	logger     *slog.Logger
}

var _ source.MetadataSource = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithPerPage sets the page size, clamped to [1, MaxPerPage].
func WithPerPage(n int) Option {
	return func(c *Client) {
		c.perPage = min(max(n, 1), MaxPerPage)
	}
}

// WithUserAgent sets the User-Agent header. Discogs rejects requests without one.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Discogs client. token may be empty for unauthenticated
// access, which Discogs rate limits more aggressively.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		userAgent:  source.DefaultUserAgent,
		perPage:    MaxPerPage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "discogs")
	return c
}

// FetchPage lists one page of releases tagged with style scope.
func (c *Client) FetchPage(ctx context.Context, scope string, page int) (*source.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: %d", source.ErrInvalidPage, page)
	}

	q := url.Values{}
	q.Set("style", scope)
	q.Set("type", "release")
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/database/search?"+q.Encode(), nil)
	if err != nil {
		return nil, core.NewPermanentError("metadata", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Discogs token="+c.token)
	}

	c.logger.Debug("fetching page", "style", scope, "page", page)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, source.ClassifyTransportError("metadata", err)
	}
	defer resp.Body.Close()

	if err := source.CheckStatus("metadata", resp); err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, core.NewPermanentError("metadata", fmt.Errorf("decode page %d: %w", page, err))
	}

	records := make([]source.Record, 0, len(sr.Results))
	for _, r := range sr.Results {
		records = append(records, convertResult(r, scope))
	}

	c.logger.Debug("fetched page", "style", scope, "page", page, "pages", sr.Pagination.Pages, "results", len(records))
	return &source.Page{
		Number:  page,
		Records: records,
		HasMore: page < sr.Pagination.Pages && len(records) > 0,
	}, nil
}

func convertResult(r searchResult, scope string) source.Record {
	rec := source.Record{
		SourceID: strconv.FormatInt(r.ID, 10),
		Title:    r.Title,
		Year:     parseYear(r.Year),
		Style:    scope,
		CoverURL: r.CoverImage,
	}
	if rec.CoverURL == "" {
		rec.CoverURL = r.Thumb
	}
	if r.URI != "" {
		rec.SourceURL = webURL + r.URI
	}

	// Search results title releases as "Artist - Title"
	switch {
	case len(r.Artists) > 0 && r.Artists[0].Name != "":
		rec.Artist = r.Artists[0].Name
		if prefix, title, ok := strings.Cut(r.Title, " - "); ok && prefix == rec.Artist {
			rec.Title = title
		}
	default:
		if artist, title, ok := strings.Cut(r.Title, " - "); ok {
			rec.Artist = artist
			rec.Title = title
		} else {
			rec.Artist = "Unknown"
		}
	}
	return rec
}

// parseYear accepts Discogs years, which arrive as strings or numbers.
func parseYear(raw json.RawMessage) int {
	s := strings.Trim(string(raw), `"`)
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return year
}
