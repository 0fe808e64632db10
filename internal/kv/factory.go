package kv

import (
	"fmt"

	"github.com/mastodon-ml/relay/internal/config"
	"github.com/mastodon-ml/relay/internal/store"
	"github.com/redis/go-redis/v9"
)

// New selects the backend named by cfg.CacheType (§6: "database"|"redis").
func New(cfg *config.Config, st *store.Store) (Cache, error) {
	switch cfg.CacheType {
	case "database":
		return NewDBCache(st), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Username: cfg.Redis.User,
			Password: cfg.Redis.Pass,
			DB:       cfg.Redis.Database,
		})
		return NewRedisCache(client, cfg.Redis.Prefix), nil
	default:
		return nil, fmt.Errorf("kv: unknown cache_type %q", cfg.CacheType)
	}
}
