package feed

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cap-alert-ingest/internal/cache"
)

// DocumentTTL is how long downloaded per-entry documents stay cached.
const DocumentTTL = 24 * time.Hour

// DocumentCache stores downloaded per-entry documents keyed by URL.
type DocumentCache interface {
	Get(ctx context.Context, url string) ([]byte, bool)
	Set(ctx context.Context, url string, data []byte, ttl time.Duration)
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (NopCache) Set(context.Context, string, []byte, time.Duration) {}

// MemoryCache is a process-local DocumentCache backed by an LRU.
type MemoryCache struct {
	entries *cache.LRU[memoryEntry]
	clock   clockwork.Clock
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// NewMemoryCache creates a cache holding at most maxEntries documents.
func NewMemoryCache(maxEntries int, clock clockwork.Clock) *MemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCache{entries: cache.NewLRU[memoryEntry](maxEntries), clock: clock}
}

// Get returns an unexpired document.
func (c *MemoryCache) Get(_ context.Context, url string) ([]byte, bool) {
	e, ok := c.entries.Get(url)
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		c.entries.Delete(url)
		return nil, false
	}
	return e.data, true
}

// Set stores data for ttl.
func (c *MemoryCache) Set(_ context.Context, url string, data []byte, ttl time.Duration) {
	c.entries.Put(url, memoryEntry{data: data, expires: c.clock.Now().Add(ttl)})
}

// fetchDocument returns a cached secondary document or downloads and caches it.
func fetchDocument(ctx context.Context, client *Client, docs DocumentCache, url string) ([]byte, error) {
	if data, ok := docs.Get(ctx, url); ok {
		return data, nil
	}
	data, err := client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	docs.Set(ctx, url, data, DocumentTTL)
	return data, nil
}
