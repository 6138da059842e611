// Package engage caches remote engagement responses keyed by request
// fingerprint, for reuse and offline fallback.
//
// The cache is write-through on network success only; a cached value is
// never evicted except by a full clear, so the host can fall back to the
// last known response when the collector is unreachable.
package engage

import (
	"context"
	"sync"

	"github.com/okian/funnel/pkg/logger"
	"github.com/okian/funnel/pkg/metrics"
)

// Store is the slice of the storage layer the cache persists through.
// Nil keeps the cache memory-only.
type Store interface {
	PutEngagement(ctx context.Context, fingerprint string, response []byte) error
	LoadEngagements(ctx context.Context) (map[string][]byte, error)
	ClearEngagements(ctx context.Context) error
}

// Cache is the in-memory engagement cache with persisted write-through.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]byte

	store    Store
	degraded bool

	logger logger.Logger
}

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithStore attaches a persistence backend.
func WithStore(store Store) Option {
	return func(c *Cache) {
		if store != nil {
			c.store = store
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates the cache and restores persisted entries when a store is
// configured. Storage failures degrade the cache to memory-only with a
// one-time warning.
func New(ctx context.Context, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string][]byte),
		logger:  logger.Get().Named("engage"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store != nil {
		entries, err := c.store.LoadEngagements(ctx)
		if err != nil {
			c.degrade(ctx, err)
		} else if len(entries) > 0 {
			c.entries = entries
			c.logger.Info(ctx, "restored engagement cache",
				logger.Int("entries", len(entries)))
		}
	}
	return c
}

func (c *Cache) degrade(ctx context.Context, err error) {
	if c.degraded {
		return
	}
	c.degraded = true
	c.store = nil
	metrics.RecordErrorByComponent("engage", "storage")
	c.logger.Warn(ctx, "engagement storage unavailable, cache degraded to memory-only",
		logger.Error(err))
}

// Lookup returns the cached response for a fingerprint. A miss is reported
// as ok=false, never as an error.
func (c *Cache) Lookup(fingerprint string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	response, ok := c.entries[fingerprint]
	if ok {
		metrics.RecordEngageCacheHit()
	} else {
		metrics.RecordEngageCacheMiss()
	}
	return response, ok
}

// Store writes a response through to memory and storage. Called only after a
// successful network engagement; overwrites any prior entry unconditionally.
func (c *Cache) Store(ctx context.Context, fingerprint string, response []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = response
	if c.store != nil {
		if err := c.store.PutEngagement(ctx, fingerprint, response); err != nil {
			c.degrade(ctx, err)
		}
	}
}

// Save persists the whole cache. Called at checkpoints (backgrounding).
// Write-through already keeps storage current, so this only re-writes
// entries that may have been stored while degraded was being detected.
func (c *Cache) Save(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return
	}
	for fp, response := range c.entries {
		if err := c.store.PutEngagement(ctx, fp, response); err != nil {
			c.degrade(ctx, err)
			return
		}
	}
}

// Clear wipes the cache in memory and storage. Used on full data reset.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string][]byte)
	if c.store != nil {
		if err := c.store.ClearEngagements(ctx); err != nil {
			c.degrade(ctx, err)
		}
	}
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
