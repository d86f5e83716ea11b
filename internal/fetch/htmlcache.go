package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nao1215/dataroma/internal/store"
)

// Getter is the part of Client the HTML cache needs.
type Getter interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) Result
}

// HTMLCache stores raw pages on disk under caller-chosen logical keys such
// as "managers/BRK/activity_page2.html", with file mtime as the TTL clock.
type HTMLCache struct {
	getter Getter
	root   string
	ttl    time.Duration
	logger *slog.Logger

	// now is replaced in tests.
	now func() time.Time

	hits atomic.Int64
}

// CacheOption configures an HTMLCache.
type CacheOption func(*HTMLCache)

// WithCacheLogger sets the logger for cache diagnostics.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *HTMLCache) {
		c.logger = l
	}
}

// NewHTMLCache creates a cache rooted at root in front of getter.
func NewHTMLCache(getter Getter, root string, ttl time.Duration, opts ...CacheOption) *HTMLCache {
	c := &HTMLCache{
		getter: getter,
		root:   root,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Root returns the cache directory.
func (c *HTMLCache) Root() string {
	return c.root
}

// Hits returns the number of requests served from disk.
func (c *HTMLCache) Hits() int {
	return int(c.hits.Load())
}

// Get returns the page for rawURL using the default TTL.
func (c *HTMLCache) Get(ctx context.Context, rawURL, key string, useCache bool) Result {
	return c.GetWithTTL(ctx, rawURL, key, useCache, c.ttl)
}

// GetWithTTL returns the cached page at key when useCache is set and the
// entry is younger than ttl. A ttl of zero or less never serves from disk. Otherwise it fetches rawURL and, on success,
// overwrites the entry before returning. An empty key is derived from the URL.
// A cache write failure is logged; the fetched body is still returned.
func (c *HTMLCache) GetWithTTL(ctx context.Context, rawURL, key string, useCache bool, ttl time.Duration) Result {
	if key == "" {
		key = KeyForURL(rawURL)
	}
	path, err := c.Path(key)
	if err != nil {
		return Result{Failure: FailureUnexpected, Err: err}
	}

	if useCache {
		if body, ok := c.read(path, ttl); ok {
			c.hits.Add(1)
			c.logger.Debug("html cache hit", "cache_key", key)
			return Result{Body: body, StatusCode: 200, FromCache: true}
		}
	}

	res := c.getter.Get(ctx, rawURL, nil)
	if !res.OK() {
		return res
	}

	if err := store.WriteFileAtomic(path, []byte(res.Body)); err != nil {
		c.logger.Warn("html cache write failed", "cache_key", key, "error", err)
	}
	return res
}

// Path maps a logical key to a file under the root.
// Keys must be relative and may not climb out of the root.
func (c *HTMLCache) Path(key string) (string, error) {
	clean := filepath.FromSlash(key)
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCacheKey, key)
	}
	return filepath.Join(c.root, clean), nil
}

// Invalidate removes the entry at key. A missing entry is not an error.
func (c *HTMLCache) Invalidate(key string) error {
	path, err := c.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// read returns the entry body if it exists and is fresh.
func (c *HTMLCache) read(path string, ttl time.Duration) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	if ttl <= 0 || c.now().Sub(info.ModTime()) >= ttl {
		return "", false
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is confined to the cache root
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// KeyForURL turns a URL into a flat file name, for callers that have no
// logical key of their own.
func KeyForURL(rawURL string) string {
	r := strings.NewReplacer("://", "_", "/", "_", ":", "", "?", "_", "&", "_", "=", "-")
	return filepath.Join("urls", r.Replace(rawURL)+".html")
}
