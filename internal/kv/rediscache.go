package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache stores each entry as three keys so Get can recover the age
// without relying on Redis's own TTL clock: "{prefix}:{ns}:{key}" holds the
// value, "{prefix}:{ns}:{key}:type" holds the type tag, and
// "{prefix}:{ns}:{key}:written" holds the write time as Unix seconds, from
// which Get computes the age. All three carry the same absolute expiry,
// sized generously past any namespace's max age.
type redisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wires prefix (forbidden to contain ':', per config
// validation) and a generous absolute expiry so stale rows do not linger
// forever even if a namespace is never swept.
func NewRedisCache(client *redis.Client, prefix string) Cache {
	if prefix == "" {
		prefix = "activityrelay"
	}
	return &redisCache{client: client, prefix: prefix, ttl: 30 * 24 * time.Hour}
}

func (c *redisCache) valueKey(ns, key string) string { return c.prefix + ":" + ns + ":" + key }
func (c *redisCache) typeKey(ns, key string) string  { return c.prefix + ":" + ns + ":" + key + ":type" }
func (c *redisCache) writeKey(ns, key string) string {
	return c.prefix + ":" + ns + ":" + key + ":written"
}

func (c *redisCache) Get(ctx context.Context, namespace, key string) (Value, bool, error) {
	pipe := c.client.Pipeline()
	valCmd := pipe.Get(ctx, c.valueKey(namespace, key))
	typCmd := pipe.Get(ctx, c.typeKey(namespace, key))
	wroteCmd := pipe.Get(ctx, c.writeKey(namespace, key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Value{}, false, err
	}

	raw, err := valCmd.Result()
	if errors.Is(err, redis.Nil) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, err
	}
	typ, err := typCmd.Result()
	if err != nil {
		typ = string(TypeString)
	}
	var age time.Duration
	if wroteUnix, err := wroteCmd.Int64(); err == nil {
		age = time.Since(time.Unix(wroteUnix, 0))
	}

	return Value{Raw: raw, Typ: ValueType(typ), Age: age}, true, nil
}

func (c *redisCache) Set(ctx context.Context, namespace, key string, typ ValueType, raw string) error {
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.valueKey(namespace, key), raw, c.ttl)
	pipe.Set(ctx, c.typeKey(namespace, key), string(typ), c.ttl)
	pipe.Set(ctx, c.writeKey(namespace, key), time.Now().Unix(), c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisCache) Del(ctx context.Context, namespace, key string) error {
	return c.client.Del(ctx, c.valueKey(namespace, key), c.typeKey(namespace, key), c.writeKey(namespace, key)).Err()
}

// DelNamespace scans for keys under the namespace prefix and deletes them in
// batches; Redis has no "delete by prefix" primitive.
func (c *redisCache) DelNamespace(ctx context.Context, namespace string) error {
	return c.delPattern(ctx, c.prefix+":"+namespace+":*")
}

func (c *redisCache) Clear(ctx context.Context) error {
	return c.delPattern(ctx, c.prefix+":*")
}

func (c *redisCache) delPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (c *redisCache) Close() error { return c.client.Close() }
