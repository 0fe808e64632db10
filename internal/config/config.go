// Package config loads the relay's file-based configuration (domain,
// listen address, database and cache backend selection — the knobs that
// cannot live in the database because they describe how to reach it).
// Everything an admin can change at runtime instead lives in the store's
// config table; see the Config* key constants in internal/store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML keys enumerated in spec.md §6.
type Config struct {
	Domain  string `yaml:"domain"`
	Listen  string `yaml:"listen"`
	Port    int    `yaml:"port"`
	Workers int    `yaml:"workers"`

	DatabaseType string         `yaml:"database_type"` // "sqlite" | "postgres"
	SQLitePath   string         `yaml:"sqlite_path"`
	Postgres     PostgresConfig `yaml:"pg"`

	CacheType string      `yaml:"cache_type"` // "database" | "redis"
	Redis     RedisConfig `yaml:"redis"`

	// dir is the directory the config file was loaded from; relative paths
	// (sqlite_path) resolve against it.
	dir string
}

type PostgresConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
	Database int    `yaml:"database"`
	Prefix   string `yaml:"prefix"`
}

// Load reads and validates a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{
		Listen:       "0.0.0.0",
		Port:         8080,
		DatabaseType: "sqlite",
		SQLitePath:   "relay.db",
		CacheType:    "database",
		dir:          filepath.Dir(path),
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Domain == "" {
		return nil, fmt.Errorf("config: domain is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	switch cfg.DatabaseType {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("config: unknown database_type %q", cfg.DatabaseType)
	}
	switch cfg.CacheType {
	case "database", "redis":
	default:
		return nil, fmt.Errorf("config: unknown cache_type %q", cfg.CacheType)
	}
	if cfg.Redis.Prefix != "" && containsColon(cfg.Redis.Prefix) {
		return nil, fmt.Errorf("config: redis.prefix must not contain ':'")
	}

	return cfg, nil
}

// ResolvedSQLitePath returns the sqlite file path resolved against the
// config file's directory, unless it is already absolute.
func (c *Config) ResolvedSQLitePath() string {
	if filepath.IsAbs(c.SQLitePath) {
		return c.SQLitePath
	}
	return filepath.Join(c.dir, c.SQLitePath)
}

// DatabaseURL builds the DSN/URL the store package expects.
func (c *Config) DatabaseURL() string {
	if c.DatabaseType == "postgres" {
		p := c.Postgres
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			p.User, p.Pass, p.Host, p.Port, p.Name)
	}
	return "sqlite://" + c.ResolvedSQLitePath()
}

// ListenAddr is the address the HTTP listener binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen, c.Port)
}

func containsColon(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return true
		}
	}
	return false
}
