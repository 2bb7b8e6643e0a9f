// Package cache holds the persistent description → category cache shared by
// every categorization run.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-importer/internal/logger"
	"github.com/dvloznov/finance-importer/internal/normalize"
)

const (
	// DefaultTTL is how long an entry is served after it was written.
	DefaultTTL = 30 * 24 * time.Hour
	// DefaultCapacity bounds the number of entries kept.
	DefaultCapacity = 1000
	// HitConfidence is reported for every cache hit regardless of the stored value.
	HitConfidence = 0.9
)

// CategorizationCache applies expiry and capacity rules on top of a Store.
type CategorizationCache struct {
	store    Store
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// Option configures a CategorizationCache.
type Option func(*CategorizationCache)

// WithTTL overrides the retention window.
func WithTTL(ttl time.Duration) Option {
	return func(c *CategorizationCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCapacity overrides the entry limit.
func WithCapacity(n int) Option {
	return func(c *CategorizationCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *CategorizationCache) {
		c.now = now
	}
}

// New creates a cache over store.
func New(store Store, opts ...Option) *CategorizationCache {
	c := &CategorizationCache{
		store:    store,
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the cached category for a description. Expired entries are
// deleted and reported as misses. Store failures are logged and treated as misses.
func (c *CategorizationCache) Lookup(ctx context.Context, description string) (Entry, bool) {
	key := normalize.Key(description)
	if key == "" {
		return Entry{}, false
	}

	log := logger.FromContext(ctx)

	e, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("Cache lookup failed")
		}
		return Entry{}, false
	}

	if c.now().Sub(e.Timestamp) > c.ttl {
		if err := c.store.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to evict expired cache entry")
		}
		return Entry{}, false
	}

	e.Confidence = HitConfidence
	return e, true
}

// Put records a categorization and evicts the oldest entries beyond capacity.
func (c *CategorizationCache) Put(ctx context.Context, description, category string, confidence float64) error {
	key := normalize.Key(description)
	if key == "" {
		return nil
	}

	err := c.store.Put(ctx, Entry{
		Key:        key,
		Category:   category,
		Confidence: confidence,
		Timestamp:  c.now(),
	})
	if err != nil {
		return fmt.Errorf("CategorizationCache.Put: %w", err)
	}

	return c.enforceCapacity(ctx)
}

func (c *CategorizationCache) enforceCapacity(ctx context.Context) error {
	n, err := c.store.Len(ctx)
	if err != nil {
		return fmt.Errorf("enforceCapacity: counting entries: %w", err)
	}
	if n <= c.capacity {
		return nil
	}

	keys, err := c.store.Oldest(ctx, n-c.capacity)
	if err != nil {
		return fmt.Errorf("enforceCapacity: listing oldest entries: %w", err)
	}
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("enforceCapacity: deleting %q: %w", k, err)
		}
	}
	return nil
}

// Prune removes every expired entry.
func (c *CategorizationCache) Prune(ctx context.Context) (int, error) {
	n, err := c.store.DeleteBefore(ctx, c.now().Add(-c.ttl))
	if err != nil {
		return 0, fmt.Errorf("CategorizationCache.Prune: %w", err)
	}
	return n, nil
}

// Len reports the number of stored entries, expired ones included.
func (c *CategorizationCache) Len(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}
