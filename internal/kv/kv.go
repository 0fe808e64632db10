// Package kv is the namespaced TTL cache used for nodeinfo and actor-key
// lookups (§4.B). Two backends share one interface: a DB-backed cache over
// internal/store.CacheRow, and a Redis-backed cache for deployments that
// already run one. TTL is enforced by the caller comparing the returned age
// against a namespace-specific max age — the backend only tracks "when was
// this last written".
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ValueType tags a cached value so callers can decode without a per-call
// schema (§9 design note: "do not rely on dynamic evaluation").
type ValueType string

const (
	TypeString ValueType = "str"
	TypeInt    ValueType = "int"
	TypeBool   ValueType = "bool"
	TypeJSON   ValueType = "json"
)

// Value is a cache entry as returned by Get: the raw wire value, its type
// tag, and the age since it was written.
type Value struct {
	Raw string
	Typ ValueType
	Age time.Duration
}

func (v Value) String() (string, error) {
	if v.Typ != TypeString {
		return "", fmt.Errorf("kv: value is %s, not str", v.Typ)
	}
	return v.Raw, nil
}

func (v Value) Int() (int64, error) {
	if v.Typ != TypeInt {
		return 0, fmt.Errorf("kv: value is %s, not int", v.Typ)
	}
	var n int64
	_, err := fmt.Sscanf(v.Raw, "%d", &n)
	return n, err
}

func (v Value) Bool() (bool, error) {
	if v.Typ != TypeBool {
		return false, fmt.Errorf("kv: value is %s, not bool", v.Typ)
	}
	return v.Raw == "true", nil
}

func (v Value) JSON(out any) error {
	if v.Typ != TypeJSON {
		return fmt.Errorf("kv: value is %s, not json", v.Typ)
	}
	return json.Unmarshal([]byte(v.Raw), out)
}

// Cache is the namespaced TTL store both backends implement.
type Cache interface {
	Get(ctx context.Context, namespace, key string) (Value, bool, error)
	Set(ctx context.Context, namespace, key string, typ ValueType, raw string) error
	Del(ctx context.Context, namespace, key string) error
	DelNamespace(ctx context.Context, namespace string) error
	Clear(ctx context.Context) error
	Close() error
}

// SetString, SetInt, SetBool and SetJSON are convenience encoders matching
// the typed accessors on Value.
func SetString(ctx context.Context, c Cache, ns, key, v string) error {
	return c.Set(ctx, ns, key, TypeString, v)
}

func SetInt(ctx context.Context, c Cache, ns, key string, v int64) error {
	return c.Set(ctx, ns, key, TypeInt, fmt.Sprintf("%d", v))
}

func SetBool(ctx context.Context, c Cache, ns, key string, v bool) error {
	raw := "false"
	if v {
		raw = "true"
	}
	return c.Set(ctx, ns, key, TypeBool, raw)
}

func SetJSON(ctx context.Context, c Cache, ns, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: marshal %s/%s: %w", ns, key, err)
	}
	return c.Set(ctx, ns, key, TypeJSON, string(b))
}

// Sweeper is implemented by backends that need a periodic eviction pass in
// addition to lazy eviction at read time (§3 invariant 5). The Redis
// backend doesn't need one — Set always carries a native TTL via EXPIRE.
type Sweeper interface {
	Sweep(ctx context.Context, namespace string, maxAge time.Duration) (int64, error)
}

// Namespace TTLs named in §4.B.
const (
	NamespaceNodeinfo = "nodeinfo"
	NamespaceActor    = "actor"

	TTLNodeinfo = time.Hour
	TTLActor    = 6 * time.Hour
)

// Fresh reports whether a Value looked up in ns is still inside its TTL.
func Fresh(ns string, v Value) bool {
	switch ns {
	case NamespaceNodeinfo:
		return v.Age < TTLNodeinfo
	case NamespaceActor:
		return v.Age < TTLActor
	default:
		return true
	}
}
