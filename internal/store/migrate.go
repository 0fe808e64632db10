package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// Migrate applies every migration file under migrations/<dialect> whose
// number exceeds the schema-version recorded in config, in order, one
// transaction per file, per §4.A ("migrations are idempotent, ordered,
// forward-only").
func (s *Store) Migrate(ctx context.Context) error {
	dir := "migrations/" + s.dialect.Name()
	var fsys migrationFS
	switch s.dialect.Name() {
	case "sqlite":
		fsys = sqliteMigrations
	case "postgres":
		fsys = postgresMigrations
	default:
		return fmt.Errorf("store: unknown dialect %q", s.dialect.Name())
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("store: list migrations: %w", err)
	}

	type migration struct {
		version int
		path    string
	}
	var migrations []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		numPart := strings.SplitN(e.Name(), "_", 2)[0]
		v, err := strconv.Atoi(numPart)
		if err != nil {
			return fmt.Errorf("store: migration %s has non-numeric prefix: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{version: v, path: dir + "/" + e.Name()})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })

	current, err := s.currentSchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		body, err := fs.ReadFile(fsys, m.path)
		if err != nil {
			return fmt.Errorf("store: read migration %s: %w", m.path, err)
		}
		if err := s.applyMigration(ctx, m.version, string(body)); err != nil {
			return fmt.Errorf("store: apply migration %d: %w", m.version, err)
		}
	}
	return nil
}

// currentSchemaVersion returns 0 when the config table does not exist yet
// (first run, before migration 0001 has created it).
func (s *Store) currentSchemaVersion(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = 'schema-version'`)
	var v string
	switch err := row.Scan(&v); {
	case err == sql.ErrNoRows:
		return 0, nil
	case err != nil:
		// Table almost certainly doesn't exist on a fresh database.
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("schema-version %q is not numeric: %w", v, err)
	}
	return n, nil
}

func (s *Store) applyMigration(ctx context.Context, version int, body string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range splitStatements(body) {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec statement: %w", err)
			}
		}
		set, err := s.stmt("config_set")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, set, "schema-version", strconv.Itoa(version), string(ValueInt))
		return err
	})
}

// splitStatements splits a migration file on every ";". Migration
// files never embed a semicolon inside a string literal, so this is safe
// for the DDL the relay ships.
func splitStatements(body string) []string {
	parts := strings.Split(body, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p)
	}
	return out
}

// migrationFS narrows embed.FS to the subset Migrate needs, so this file
// doesn't care which embed.FS variable it was handed.
type migrationFS = interface {
	fs.ReadDirFS
	fs.ReadFileFS
}
