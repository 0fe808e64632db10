package kv

import (
	"context"
	"errors"
	"time"

	"github.com/mastodon-ml/relay/internal/store"
)

// dbCache backs the cache table (§3 CacheRow) directly through the store.
// Get returns any stored row together with its age, leaving the TTL check
// to the caller (Fresh); a periodic sweep (started by the supervisor)
// deletes expired rows outright so the table doesn't grow unbounded.
type dbCache struct {
	store *store.Store
}

func NewDBCache(s *store.Store) Cache {
	return &dbCache{store: s}
}

func (c *dbCache) Get(ctx context.Context, namespace, key string) (Value, bool, error) {
	row, err := c.store.CacheGet(ctx, namespace, key)
	if errors.Is(err, store.ErrNotFound) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, err
	}
	return Value{Raw: row.Value, Typ: ValueType(row.Type), Age: time.Since(row.Updated)}, true, nil
}

func (c *dbCache) Set(ctx context.Context, namespace, key string, typ ValueType, raw string) error {
	return c.store.CacheSet(ctx, store.CacheRow{
		Namespace: namespace,
		Key:       key,
		Value:     raw,
		Type:      store.ValueType(typ),
		Updated:   time.Now().UTC(),
	})
}

func (c *dbCache) Del(ctx context.Context, namespace, key string) error {
	return c.store.CacheDelete(ctx, namespace, key)
}

func (c *dbCache) DelNamespace(ctx context.Context, namespace string) error {
	return c.store.CacheDeleteNamespace(ctx, namespace)
}

func (c *dbCache) Clear(ctx context.Context) error {
	return c.store.CacheClear(ctx)
}

func (c *dbCache) Close() error { return nil }

// Sweep deletes namespace rows older than maxAge. The supervisor runs this
// periodically per namespace alongside the lazy eviction in Get (§3
// invariant 5).
func (c *dbCache) Sweep(ctx context.Context, namespace string, maxAge time.Duration) (int64, error) {
	return c.store.CacheSweep(ctx, namespace, time.Now().UTC().Add(-maxAge))
}
