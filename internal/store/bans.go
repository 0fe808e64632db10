package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// wellKnownRelaySoftware is the expansion of the "RELAYS" magic token for
// software bans (§3 SoftwareBan).
var wellKnownRelaySoftware = []string{"activityrelay", "aoderelay", "relay"}

const softwareBanMagicToken = "RELAYS"

func (s *Store) GetDomainBan(ctx context.Context, domain string) (DomainBan, error) {
	row, err := s.queryRow(ctx, "domain_ban_get", domain)
	if err != nil {
		return DomainBan{}, err
	}
	var b DomainBan
	var created any
	if err := row.Scan(&b.Domain, &b.Reason, &b.Note, &created); err != nil {
		if err == sql.ErrNoRows {
			return DomainBan{}, ErrNotFound
		}
		return DomainBan{}, err
	}
	b.Created, err = s.dialect.ParseTime(created)
	return b, err
}

// PutDomainBan creates or updates a ban and, in the same transaction,
// removes every inbox row sharing the domain and any whitelist entry for
// it — §3 invariant 2 and testable property 4 ("ban cascade").
func (s *Store) PutDomainBan(ctx context.Context, b DomainBan) error {
	if b.Created.IsZero() {
		b.Created = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.execTx(ctx, tx, "domain_ban_upsert", b.Domain, b.Reason, b.Note, s.now(b.Created)); err != nil {
			return err
		}
		if err := s.execTx(ctx, tx, "inbox_delete_by_domain", b.Domain); err != nil {
			return err
		}
		return s.execTx(ctx, tx, "whitelist_delete", b.Domain)
	})
}

func (s *Store) DeleteDomainBan(ctx context.Context, domain string) error {
	_, err := s.exec(ctx, "domain_ban_delete", domain)
	return err
}

func (s *Store) ListDomainBans(ctx context.Context) ([]DomainBan, error) {
	rows, err := s.query(ctx, "domain_ban_list")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DomainBan
	for rows.Next() {
		var b DomainBan
		var created any
		if err := rows.Scan(&b.Domain, &b.Reason, &b.Note, &created); err != nil {
			return nil, err
		}
		if b.Created, err = s.dialect.ParseTime(created); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetSoftwareBan(ctx context.Context, name string) (SoftwareBan, error) {
	row, err := s.queryRow(ctx, "software_ban_get", strings.ToLower(name))
	if err != nil {
		return SoftwareBan{}, err
	}
	var b SoftwareBan
	var created any
	if err := row.Scan(&b.Name, &b.Reason, &b.Note, &created); err != nil {
		if err == sql.ErrNoRows {
			return SoftwareBan{}, ErrNotFound
		}
		return SoftwareBan{}, err
	}
	b.Created, err = s.dialect.ParseTime(created)
	return b, err
}

// PutSoftwareBan stores name. names = software name or the magic token
// "RELAYS" expanding to wellKnownRelaySoftware; each expanded name gets its
// own row, sharing reason/note.
func (s *Store) PutSoftwareBan(ctx context.Context, b SoftwareBan) error {
	if b.Created.IsZero() {
		b.Created = time.Now().UTC()
	}
	names := []string{strings.ToLower(b.Name)}
	if strings.EqualFold(b.Name, softwareBanMagicToken) {
		names = wellKnownRelaySoftware
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, name := range names {
			if err := s.execTx(ctx, tx, "software_ban_upsert", name, b.Reason, b.Note, s.now(b.Created)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DeleteSoftwareBan(ctx context.Context, name string) error {
	_, err := s.exec(ctx, "software_ban_delete", strings.ToLower(name))
	return err
}

func (s *Store) ListSoftwareBans(ctx context.Context) ([]SoftwareBan, error) {
	rows, err := s.query(ctx, "software_ban_list")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SoftwareBan
	for rows.Next() {
		var b SoftwareBan
		var created any
		if err := rows.Scan(&b.Name, &b.Reason, &b.Note, &created); err != nil {
			return nil, err
		}
		if b.Created, err = s.dialect.ParseTime(created); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
