package inspect

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheSize = 512

// Cache memoizes Inspect results of the wrapped Inspector. Any mutation through
// the cache evicts the mutated path, so reads after writes see the new state.
// Mutations made behind the cache's back are not observed.
type Cache struct {
	inner  Inspector
	lru    *lru.Cache
	flight singleflight.Group
}

func NewCache(inner Inspector, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner, lru: c}, nil
}

func (c *Cache) Inspect(ctx context.Context, path string) (*Binary, error) {
	if v, ok := c.lru.Get(path); ok {
		return v.(*Binary), nil
	}

	v, err, _ := c.flight.Do(path, func() (any, error) {
		bin, err := c.inner.Inspect(ctx, path)
		if err != nil {
			return nil, err
		}
		c.lru.Add(path, bin)
		return bin, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Binary), nil
}

func (c *Cache) ChangeReference(ctx context.Context, path, old, new string) error {
	defer c.lru.Remove(path)
	return c.inner.ChangeReference(ctx, path, old, new)
}

func (c *Cache) ChangeID(ctx context.Context, path, id string) error {
	defer c.lru.Remove(path)
	return c.inner.ChangeID(ctx, path, id)
}

func (c *Cache) AddRPath(ctx context.Context, path, dir string) error {
	defer c.lru.Remove(path)
	return c.inner.AddRPath(ctx, path, dir)
}

func (c *Cache) DeleteRPath(ctx context.Context, path, dir string) error {
	defer c.lru.Remove(path)
	return c.inner.DeleteRPath(ctx, path, dir)
}

// Invalidate drops any cached metadata for path.
func (c *Cache) Invalidate(path string) {
	c.lru.Remove(path)
}
