package store

import (
	"context"
	"database/sql"
)

func (s *Store) GetConfig(ctx context.Context, key string) (ConfigEntry, error) {
	row, err := s.queryRow(ctx, "config_get", key)
	if err != nil {
		return ConfigEntry{}, err
	}
	var value, typ string
	if err := row.Scan(&value, &typ); err != nil {
		if err == sql.ErrNoRows {
			return ConfigEntry{}, ErrNotFound
		}
		return ConfigEntry{}, err
	}
	return ConfigEntry{Key: key, Value: value, Type: ValueType(typ)}, nil
}

func (s *Store) SetConfig(ctx context.Context, e ConfigEntry) error {
	_, err := s.exec(ctx, "config_set", e.Key, e.Value, string(e.Type))
	return err
}

func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.exec(ctx, "config_delete", key)
	return err
}

// AllConfig returns the full DB-stored admin config (§6), served by
// GET /api/v1/config.
func (s *Store) AllConfig(ctx context.Context) ([]ConfigEntry, error) {
	rows, err := s.query(ctx, "config_all")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConfigEntry
	for rows.Next() {
		var e ConfigEntry
		var typ string
		if err := rows.Scan(&e.Key, &e.Value, &typ); err != nil {
			return nil, err
		}
		e.Type = ValueType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
