package store

import (
	"context"
	"database/sql"
	"time"
)

func (s *Store) GetWhitelistEntry(ctx context.Context, domain string) (WhitelistEntry, error) {
	row, err := s.queryRow(ctx, "whitelist_get", domain)
	if err != nil {
		return WhitelistEntry{}, err
	}
	var w WhitelistEntry
	var created any
	if err := row.Scan(&w.Domain, &created); err != nil {
		if err == sql.ErrNoRows {
			return WhitelistEntry{}, ErrNotFound
		}
		return WhitelistEntry{}, err
	}
	w.Created, err = s.dialect.ParseTime(created)
	return w, err
}

// PutWhitelistEntry inserts the row even if domain is already banned (and
// is a no-op if the domain is already whitelisted) — §9's resolved open
// question ("ban wins") is enforced at the policy layer, so admins may
// whitelist a banned domain (admin policy per §3 invariant 2) and the ban,
// not the whitelist, is what the policy engine consults first.
func (s *Store) PutWhitelistEntry(ctx context.Context, domain string) error {
	_, err := s.exec(ctx, "whitelist_upsert", domain, s.now(time.Now().UTC()))
	return err
}

func (s *Store) DeleteWhitelistEntry(ctx context.Context, domain string) error {
	_, err := s.exec(ctx, "whitelist_delete", domain)
	return err
}

func (s *Store) ListWhitelist(ctx context.Context) ([]WhitelistEntry, error) {
	rows, err := s.query(ctx, "whitelist_list")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WhitelistEntry
	for rows.Next() {
		var w WhitelistEntry
		var created any
		if err := rows.Scan(&w.Domain, &created); err != nil {
			return nil, err
		}
		if w.Created, err = s.dialect.ParseTime(created); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
