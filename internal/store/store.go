// Package store is the typed row layer over the relay's two supported SQL
// dialects (sqlite, postgres). Every statement is loaded from its own
// template file under sql/<dialect>/ (see sql.go); Go code never builds SQL
// by string concatenation. Dialect divergence is confined to Dialect
// (time conversion), the placeholder syntax of the sql/<dialect> files, and
// the migrations/<dialect> DDL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var errUnsupportedTimeValue = errors.New("store: unsupported time column value")

// ErrNotFound is returned by single-row getters when no row matches.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open parses a DSN of the form "sqlite://path" or "postgres://..." and
// opens a connection pool sized for the fan-out worker count, per §5
// ("min 1, max = 2x worker count").
func Open(ctx context.Context, dsn string, workers int) (*Store, error) {
	var driverName string
	var dialect Dialect
	var dataSource string

	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		driverName = "sqlite"
		dialect = sqliteDialect{}
		dataSource = strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driverName = "postgres"
		dialect = postgresDialect{}
		dataSource = dsn
	default:
		return nil, fmt.Errorf("store: unrecognized database URL %q", dsn)
	}

	if driverName == "sqlite" {
		pragmas := "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
		if strings.Contains(dataSource, "?") {
			dataSource += "&" + pragmas
		} else {
			dataSource += "?" + pragmas
		}
	}

	db, err := sql.Open(driverName, dataSource)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driverName, err)
	}

	if workers <= 0 {
		workers = 1
	}
	db.SetMaxOpenConns(2 * workers)
	db.SetMaxIdleConns(workers)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driverName, err)
	}

	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Dialect exposes the active dialect, so callers can format times
// consistently with how the store persists them.
func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) now(t time.Time) any { return s.dialect.FormatTime(t) }

func (s *Store) stmt(name string) (string, error) {
	return statement(s.dialect.Name(), name)
}

func (s *Store) exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	q, err := s.stmt(name)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: exec %s: %w", name, err)
	}
	return res, nil
}

func (s *Store) queryRow(ctx context.Context, name string, args ...any) (*sql.Row, error) {
	q, err := s.stmt(name)
	if err != nil {
		return nil, err
	}
	return s.db.QueryRowContext(ctx, q, args...), nil
}

func (s *Store) query(ctx context.Context, name string, args ...any) (*sql.Rows, error) {
	q, err := s.stmt(name)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", name, err)
	}
	return rows, nil
}

// withTx runs fn inside one transaction, used for multi-row invariants such
// as the ban cascade (§5: "multi-row invariants ... performed in a single
// transaction").
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) execTx(ctx context.Context, tx *sql.Tx, name string, args ...any) error {
	q, err := s.stmt(name)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store: exec %s (tx): %w", name, err)
	}
	return nil
}
