package optimistic

import (
	"context"
	"time"

	"tallyo/internal/cache"
	"tallyo/internal/core"
)

// Fallback metadata shown while a category's real name and color are still
// being resolved.
const (
	PendingName  = "Loading..."
	PendingColor = "#ee7662"
)

// CategoryLoader fetches category display metadata from the server.
type CategoryLoader func(ctx context.Context, id string) (*core.CategoryRef, error)

// CategoryCache is a read-through cache of category display metadata keyed
// by category id. Misses and stale entries go through the loader; a loader
// failure on a miss yields pending placeholder metadata so a preview never
// blocks on the category lookup.
type CategoryCache struct {
	refs   *cache.LRUCache[core.CategoryRef]
	loader CategoryLoader
}

func NewCategoryCache(loader CategoryLoader, maxSize int, ttl time.Duration) *CategoryCache {
	return &CategoryCache{
		refs:   cache.NewLRUCache[core.CategoryRef](maxSize, ttl),
		loader: loader,
	}
}

// Ref resolves display metadata for a category id. Stale entries are served
// when a refresh fails.
func (c *CategoryCache) Ref(ctx context.Context, id string) core.CategoryRef {
	cached, present, fresh := c.refs.GetStale(id)
	if present && fresh {
		return cached
	}

	loaded, err := c.load(ctx, id)
	if err == nil {
		c.refs.Set(id, loaded)
		return loaded
	}
	if present {
		return cached
	}
	return core.CategoryRef{ID: id, Name: PendingName, Color: PendingColor}
}

// Put stores metadata directly, as after a category create or update.
func (c *CategoryCache) Put(ref core.CategoryRef) {
	c.refs.Set(ref.ID, ref)
}

// Invalidate drops a single category's cached metadata.
func (c *CategoryCache) Invalidate(id string) {
	c.refs.Delete(id)
}

// Clear drops the whole cache.
func (c *CategoryCache) Clear() {
	c.refs.Clear()
}

// CleanExpired sweeps expired entries, satisfying cache.Cleaner.
func (c *CategoryCache) CleanExpired() int {
	return c.refs.CleanExpired()
}

func (c *CategoryCache) load(ctx context.Context, id string) (core.CategoryRef, error) {
	if c.loader == nil {
		return core.CategoryRef{}, core.ErrNotFound
	}
	ref, err := c.loader(ctx, id)
	if err != nil {
		return core.CategoryRef{}, err
	}
	if ref == nil {
		return core.CategoryRef{}, core.ErrNotFound
	}
	return *ref, nil
}
