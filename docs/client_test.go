package docs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type upstream struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*http.Request
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests = append(u.requests, r.Clone(context.Background()))
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) hits() []*http.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*http.Request(nil), u.requests...)
}

func echoPath(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("doc for " + r.URL.Path))
}

func TestClient_LookupCrate(t *testing.T) {
	tests := []struct {
		name     string
		crate    string
		version  string
		wantPath string
		wantKey  string
	}{
		{name: "latest", crate: "serde", wantPath: "/crate/serde/", wantKey: "serde"},
		{name: "pinned version", crate: "serde", version: "1.0.200", wantPath: "/crate/serde/1.0.200/", wantKey: "serde:1.0.200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, echoPath)
			cache := NewMemoryCache()
			c := NewClient(WithDocsBaseURL(up.URL+"/"), WithCache(cache), WithUserAgent("bridge-test"))

			doc, err := c.LookupCrate(context.Background(), tt.crate, tt.version)
			if err != nil {
				t.Fatalf("LookupCrate: %v", err)
			}
			if doc != "doc for "+tt.wantPath {
				t.Errorf("doc = %q", doc)
			}
			hits := up.hits()
			if len(hits) != 1 {
				t.Fatalf("upstream hits = %d", len(hits))
			}
			if ua := hits[0].Header.Get("User-Agent"); ua != "bridge-test" {
				t.Errorf("User-Agent = %q", ua)
			}
			if _, ok, _ := cache.Get(context.Background(), tt.wantKey); !ok {
				t.Errorf("cache key %q not stored", tt.wantKey)
			}
		})
	}
}

func TestClient_CacheHit(t *testing.T) {
	up := newUpstream(t, echoPath)
	c := NewClient(WithDocsBaseURL(up.URL))
	ctx := context.Background()

	first, err := c.LookupItem(ctx, "tokio", "tokio::sync::mpsc", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.LookupItem(ctx, "tokio", "tokio::sync::mpsc", "")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("cached doc differs: %q vs %q", first, second)
	}
	if n := len(up.hits()); n != 1 {
		t.Errorf("upstream hits = %d, want 1", n)
	}
}

func TestClient_LookupItem(t *testing.T) {
	up := newUpstream(t, echoPath)
	cache := NewMemoryCache()
	c := NewClient(WithDocsBaseURL(up.URL), WithCache(cache))
	ctx := context.Background()

	doc, err := c.LookupItem(ctx, "std", "std::vec::Vec", "")
	if err != nil {
		t.Fatal(err)
	}
	if doc != "doc for /std/latest/std/vec/Vec/" {
		t.Errorf("doc = %q", doc)
	}

	if _, err := c.LookupItem(ctx, "serde", "serde::Serialize", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"std:std::vec::Vec", "serde:1.0.0:serde::Serialize"} {
		if _, ok, _ := cache.Get(ctx, key); !ok {
			t.Errorf("cache key %q not stored", key)
		}
	}
}

func TestClient_SearchCrates(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		perPage string
	}{
		{name: "default", limit: 0, perPage: "10"},
		{name: "explicit", limit: 25, perPage: "25"},
		{name: "clamped", limit: 500, perPage: "100"},
		{name: "negative", limit: -3, perPage: "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"crates":[]}`))
			})
			c := NewClient(WithRegistryBaseURL(up.URL))

			body, err := c.SearchCrates(context.Background(), "async runtime", tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if body != `{"crates":[]}` {
				t.Errorf("body = %q", body)
			}
			hits := up.hits()
			if len(hits) != 1 {
				t.Fatalf("upstream hits = %d", len(hits))
			}
			q := hits[0].URL.Query()
			if hits[0].URL.Path != "/api/v1/crates" || q.Get("q") != "async runtime" || q.Get("per_page") != tt.perPage {
				t.Errorf("request = %s", hits[0].URL)
			}
		})
	}

	t.Run("not cached", func(t *testing.T) {
		up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
		cache := NewMemoryCache()
		c := NewClient(WithRegistryBaseURL(up.URL), WithCache(cache))
		for range 2 {
			if _, err := c.SearchCrates(context.Background(), "x", 1); err != nil {
				t.Fatal(err)
			}
		}
		if n := len(up.hits()); n != 2 {
			t.Errorf("upstream hits = %d, want 2", n)
		}
		if cache.Len() != 0 {
			t.Errorf("cache Len = %d", cache.Len())
		}
	})
}

func TestClient_UpstreamStatus(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	cache := NewMemoryCache()
	c := NewClient(WithDocsBaseURL(up.URL), WithCache(cache))

	_, err := c.LookupCrate(context.Background(), "no-such-crate", "")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if cache.Len() != 0 {
		t.Error("failed fetch was cached")
	}
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, string) error {
	return errors.New("cache down")
}

func TestClient_CacheErrorsDoNotFailLookups(t *testing.T) {
	up := newUpstream(t, echoPath)
	c := NewClient(WithDocsBaseURL(up.URL), WithCache(failingCache{}))

	doc, err := c.LookupCrate(context.Background(), "rand", "")
	if err != nil {
		t.Fatalf("LookupCrate: %v", err)
	}
	if doc != "doc for /crate/rand/" {
		t.Errorf("doc = %q", doc)
	}
}

func TestClient_PageTooLarge(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 65)))
	})
	cache := NewMemoryCache()
	c := NewClient(WithDocsBaseURL(up.URL), WithCache(cache), WithMaxPageSize(64))

	_, err := c.LookupCrate(context.Background(), "huge", "")
	if !errors.Is(err, ErrUpstream) || !strings.Contains(err.Error(), "page too large") {
		t.Fatalf("err = %v, want page too large", err)
	}
	if cache.Len() != 0 {
		t.Error("oversized page was cached")
	}

	exact := NewClient(WithDocsBaseURL(newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}).URL), WithMaxPageSize(64))
	if doc, err := exact.LookupCrate(context.Background(), "fits", ""); err != nil || len(doc) != 64 {
		t.Errorf("page at the limit = %d bytes, %v", len(doc), err)
	}
}
