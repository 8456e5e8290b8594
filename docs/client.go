package docs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultDocsBaseURL serves rendered crate documentation.
	DefaultDocsBaseURL = "https://docs.rs"

	// DefaultRegistryBaseURL serves the crate registry API.
	DefaultRegistryBaseURL = "https://crates.io"

	// DefaultSearchLimit is used when a search names no limit.
	DefaultSearchLimit = 10

	// MaxSearchLimit caps the number of search results.
	MaxSearchLimit = 100

	// DefaultMaxPageSize bounds a fetched page.
	DefaultMaxPageSize = 8 << 20
)

// ErrUpstream is returned when a documentation source cannot be reached or
// answers with a non-success status.
var ErrUpstream = errors.New("upstream request failed")

// Client fetches crate documentation and search results, caching pages.
type Client struct {
	http         *http.Client
	docsBase     string
	registryBase string
	userAgent    string
	cache        Cache
	maxPage      int64
	log          *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for upstream requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithDocsBaseURL overrides the documentation host.
func WithDocsBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.docsBase = strings.TrimSuffix(u, "/")
	}
}

// WithRegistryBaseURL overrides the registry host.
func WithRegistryBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.registryBase = strings.TrimSuffix(u, "/")
	}
}

// WithUserAgent sets the User-Agent sent upstream. The registry rejects
// requests without one.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxPageSize bounds the size of a fetched page. Larger pages fail
// with ErrUpstream and are not cached.
func WithMaxPageSize(n int64) ClientOption {
	return func(c *Client) {
		c.maxPage = n
	}
}

// WithCache sets the page cache. Defaults to a fresh MemoryCache.
func WithCache(cache Cache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithClientLogger sets the logger. If not provided, logs are discarded.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates a documentation client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:         &http.Client{Timeout: 15 * time.Second},
		docsBase:     DefaultDocsBaseURL,
		registryBase: DefaultRegistryBaseURL,
		userAgent:    "mcp-bridge",
		maxPage:      DefaultMaxPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewMemoryCache()
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	return c
}

// CrateKey is the cache key of a crate's documentation page.
func CrateKey(crate, version string) string {
	if version == "" {
		return crate
	}
	return crate + ":" + version
}

// ItemKey is the cache key of an item's documentation page.
func ItemKey(crate, itemPath, version string) string {
	return CrateKey(crate, version) + ":" + itemPath
}

// LookupCrate returns the documentation page of crate, at version if given.
func (c *Client) LookupCrate(ctx context.Context, crate, version string) (string, error) {
	u := c.docsBase + "/crate/" + url.PathEscape(crate) + "/"
	if version != "" {
		u += url.PathEscape(version) + "/"
	}
	return c.cached(ctx, CrateKey(crate, version), u)
}

// LookupItem returns the documentation page of an item such as
// "tokio::sync::mpsc" in crate, at version if given.
func (c *Client) LookupItem(ctx context.Context, crate, itemPath, version string) (string, error) {
	ver := version
	if ver == "" {
		ver = "latest"
	}
	segments := strings.Split(itemPath, "::")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := c.docsBase + "/" + url.PathEscape(crate) + "/" + url.PathEscape(ver) + "/" + strings.Join(segments, "/") + "/"
	return c.cached(ctx, ItemKey(crate, itemPath, version), u)
}

// SearchCrates queries the registry and returns its raw JSON answer. Limits
// outside 1..MaxSearchLimit are clamped. Search results are not cached.
func (c *Client) SearchCrates(ctx context.Context, query string, limit int) (string, error) {
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("per_page", strconv.Itoa(limit))
	return c.fetch(ctx, c.registryBase+"/api/v1/crates?"+q.Encode())
}

func (c *Client) cached(ctx context.Context, key, u string) (string, error) {
	if doc, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.WarnContext(ctx, "docs.cache.get.fail", slog.String("key", key), slog.String("err", err.Error()))
	} else if ok {
		c.log.DebugContext(ctx, "docs.cache.hit", slog.String("key", key))
		return doc, nil
	}

	doc, err := c.fetch(ctx, u)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, doc); err != nil {
		c.log.WarnContext(ctx, "docs.cache.set.fail", slog.String("key", key), slog.String("err", err.Error()))
	}
	return doc, nil
}

func (c *Client) fetch(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	c.log.DebugContext(ctx, "docs.fetch",
		slog.String("url", u),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s returned status %d", ErrUpstream, u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPage+1))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	if int64(len(body)) > c.maxPage {
		return "", fmt.Errorf("%w: %s: page too large (over %d bytes)", ErrUpstream, u, c.maxPage)
	}
	return string(body), nil
}
