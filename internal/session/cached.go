package session

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedEntry struct {
	data      []byte
	expiresAt time.Time
}

// CachedStore fronts another Store with an in-process LRU. Writes go through
// to the backing store before the cache is updated. Misses fill the cache
// when the backing store is an ExpiringStore.
type CachedStore struct {
	next  Store
	cache *lru.Cache[string, cachedEntry]
	now   func() time.Time
}

func NewCachedStore(next Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, cachedEntry](size)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache, now: time.Now}, nil
}

func (c *CachedStore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	if e, ok := c.cache.Get(token); ok {
		if e.expiresAt.After(c.now()) {
			return e.data, true, nil
		}
		c.cache.Remove(token)
		return nil, false, nil
	}
	es, ok := c.next.(ExpiringStore)
	if !ok {
		return c.next.Get(ctx, token)
	}
	data, expiresAt, found, err := es.GetWithExpiry(ctx, token)
	if err != nil || !found {
		return nil, false, err
	}
	c.cache.Add(token, cachedEntry{data: data, expiresAt: expiresAt})
	return data, true, nil
}

func (c *CachedStore) Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	if err := c.next.Set(ctx, token, data, expiresAt); err != nil {
		c.cache.Remove(token)
		return err
	}
	c.cache.Add(token, cachedEntry{data: data, expiresAt: expiresAt})
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, token string) error {
	c.cache.Remove(token)
	return c.next.Delete(ctx, token)
}

func (c *CachedStore) Len() int { return c.cache.Len() }
