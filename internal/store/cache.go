package store

import (
	"context"
	"database/sql"
	"time"
)

// CacheRow operations back the kv package's dbCache. They are intentionally
// thin: TTL interpretation lives in internal/kv, not here (§4.B — the
// caller compares age against a namespace-specific max age).

func (s *Store) CacheGet(ctx context.Context, namespace, key string) (CacheRow, error) {
	row, err := s.queryRow(ctx, "cache_get", namespace, key)
	if err != nil {
		return CacheRow{}, err
	}
	var value, typ string
	var updated any
	if err := row.Scan(&value, &typ, &updated); err != nil {
		if err == sql.ErrNoRows {
			return CacheRow{}, ErrNotFound
		}
		return CacheRow{}, err
	}
	t, err := s.dialect.ParseTime(updated)
	if err != nil {
		return CacheRow{}, err
	}
	return CacheRow{Namespace: namespace, Key: key, Value: value, Type: ValueType(typ), Updated: t}, nil
}

func (s *Store) CacheSet(ctx context.Context, row CacheRow) error {
	if row.Updated.IsZero() {
		row.Updated = time.Now().UTC()
	}
	_, err := s.exec(ctx, "cache_set", row.Namespace, row.Key, row.Value, string(row.Type), s.now(row.Updated))
	return err
}

func (s *Store) CacheDelete(ctx context.Context, namespace, key string) error {
	_, err := s.exec(ctx, "cache_delete", namespace, key)
	return err
}

func (s *Store) CacheDeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.exec(ctx, "cache_delete_ns", namespace)
	return err
}

func (s *Store) CacheClear(ctx context.Context) error {
	_, err := s.exec(ctx, "cache_clear")
	return err
}

// CacheSweep deletes namespace rows older than cutoff — the periodic sweep
// half of §3 invariant 5's lazy-plus-periodic eviction.
func (s *Store) CacheSweep(ctx context.Context, namespace string, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, "cache_sweep", namespace, s.now(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
