package store

import (
	"context"
	"time"

	"github.com/zjrosen/activesave/internal/cachemanager"
)

// entry is what the hot cache holds per key, including known misses.
type entry struct {
	data  []byte
	found bool
}

// Cached fronts a Backend with an in-memory read-through cache. Writes go
// through to the backend before the cache is updated.
type Cached struct {
	backend Backend
	reads   *cachemanager.Cache[string, entry]
}

// NewCached wraps backend. Entries stay hot while in use; a namespace left
// alone for ttl is reloaded from the backend. A zero ttl uses
// cachemanager.DefaultTTL.
func NewCached(backend Backend, ttl time.Duration) *Cached {
	return &Cached{
		backend: backend,
		reads:   cachemanager.New[string, entry]("namespaces", ttl, cachemanager.WithSliding()),
	}
}

var _ Backend = (*Cached)(nil)

func (c *Cached) load(ctx context.Context, key string) (entry, error) {
	data, ok, err := c.backend.Load(ctx, key)
	if err != nil {
		return entry{}, err
	}
	return entry{data: data, found: ok}, nil
}

func (c *Cached) Load(ctx context.Context, key string) ([]byte, bool, error) {
	e, err := c.reads.Fetch(ctx, key, func(ctx context.Context) (entry, error) {
		return c.load(ctx, key)
	})
	if err != nil {
		return nil, false, err
	}
	return append([]byte(nil), e.data...), e.found, nil
}

func (c *Cached) Save(ctx context.Context, key string, data []byte) error {
	if err := c.backend.Save(ctx, key, data); err != nil {
		c.reads.Forget(key)
		return err
	}
	c.reads.Store(key, entry{data: append([]byte(nil), data...), found: true})
	return nil
}

func (c *Cached) Delete(ctx context.Context, key string) error {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.reads.Forget(key)
		return err
	}
	c.reads.Store(key, entry{})
	return nil
}

func (c *Cached) Keys(ctx context.Context) ([]string, error) {
	return c.backend.Keys(ctx)
}
