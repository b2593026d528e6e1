// Package cachemanager keeps short-lived in-memory copies of values that are
// slow to produce: decoded cache namespaces and compiled validation rules.
package cachemanager

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/activesave/internal/log"
)

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 10 * time.Minute

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits   int64
	Misses int64
}

type options struct {
	sliding bool
	cleanup time.Duration
}

// Option configures a Cache.
type Option func(*options)

// WithSliding restarts an entry's ttl on every hit, so entries in steady use
// never expire.
func WithSliding() Option {
	return func(o *options) { o.sliding = true }
}

// WithCleanupInterval sets how often expired entries are purged. The default
// is three times the ttl.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanup = d }
}

// Cache is a typed, named TTL cache backed by go-cache.
type Cache[K ~string, V any] struct {
	name    string
	ttl     time.Duration
	sliding bool
	items   *gocache.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache. name only appears in logs.
func New[K ~string, V any](name string, ttl time.Duration, opts ...Option) *Cache[K, V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := options{cleanup: 3 * ttl}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		name:    name,
		ttl:     ttl,
		sliding: o.sliding,
		items:   gocache.New(ttl, o.cleanup),
	}
}

// Lookup returns the cached value for key.
func (c *Cache[K, V]) Lookup(key K) (V, bool) {
	var zero V
	raw, found := c.items.Get(string(key))
	if !found {
		c.misses.Add(1)
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		log.Error(log.CatCache, "cached value has unexpected type", "cache", c.name, "key", key)
		c.items.Delete(string(key))
		c.misses.Add(1)
		return zero, false
	}
	if c.sliding {
		c.items.SetDefault(string(key), v)
	}
	c.hits.Add(1)
	return v, true
}

// Store caches v under key for the cache's ttl.
func (c *Cache[K, V]) Store(key K, v V) {
	c.items.SetDefault(string(key), v)
}

// Fetch returns the cached value for key, or calls load and caches its result.
// Errors from load are returned and not cached.
func (c *Cache[K, V]) Fetch(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Lookup(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Store(key, v)
	log.Debug(log.CatCache, "cache filled", "cache", c.name, "key", key)
	return v, nil
}

// Forget drops keys so the next Fetch reloads them.
func (c *Cache[K, V]) Forget(keys ...K) {
	for _, key := range keys {
		c.items.Delete(string(key))
	}
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.items.Flush()
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *Cache[K, V]) Len() int {
	return c.items.ItemCount()
}

// Stats reports hits and misses so far.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
