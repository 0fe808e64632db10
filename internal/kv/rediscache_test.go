package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, "test")
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestRedisCache(t)

	require.NoError(t, SetString(ctx, c, NamespaceNodeinfo, "a.example", "mastodon"))

	v, ok, err := c.Get(ctx, NamespaceNodeinfo, "a.example")
	require.NoError(t, err)
	require.True(t, ok)
	s, err := v.String()
	require.NoError(t, err)
	require.Equal(t, "mastodon", s)
	require.Less(t, v.Age, time.Second)
}

func TestRedisCacheMiss(t *testing.T) {
	ctx := context.Background()
	c := newTestRedisCache(t)

	_, ok, err := c.Get(ctx, NamespaceNodeinfo, "missing.example")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCacheDelNamespace(t *testing.T) {
	ctx := context.Background()
	c := newTestRedisCache(t)

	require.NoError(t, SetString(ctx, c, NamespaceActor, "a.example", "one"))
	require.NoError(t, SetString(ctx, c, NamespaceActor, "b.example", "two"))
	require.NoError(t, SetString(ctx, c, NamespaceNodeinfo, "a.example", "three"))

	require.NoError(t, c.DelNamespace(ctx, NamespaceActor))

	_, ok, _ := c.Get(ctx, NamespaceActor, "a.example")
	require.False(t, ok)
	_, ok, _ = c.Get(ctx, NamespaceNodeinfo, "a.example")
	require.True(t, ok)
}
