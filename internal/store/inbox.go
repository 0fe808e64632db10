package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) scanInbox(row interface{ Scan(...any) error }) (Inbox, error) {
	var inb Inbox
	var state string
	var software sql.NullString
	var firstFailure sql.NullString
	var created any
	if err := row.Scan(&inb.Domain, &inb.Actor, &inb.InboxURL, &inb.FollowID, &software, &state, &inb.FailCount, &firstFailure, &created); err != nil {
		return Inbox{}, err
	}
	inb.State = InboxState(state)
	inb.Software = software.String
	if firstFailure.Valid {
		t, err := s.dialect.ParseTime(firstFailure.String)
		if err != nil {
			return Inbox{}, fmt.Errorf("store: parse first_failure: %w", err)
		}
		inb.FirstFailure = &t
	}
	t, err := s.dialect.ParseTime(created)
	if err != nil {
		return Inbox{}, fmt.Errorf("store: parse created: %w", err)
	}
	inb.Created = t
	return inb, nil
}

// GetInboxByDomain implements the exact-domain form of get_inbox(needle).
func (s *Store) GetInboxByDomain(ctx context.Context, domain string) (Inbox, error) {
	row, err := s.queryRow(ctx, "inbox_get_by_domain", domain)
	if err != nil {
		return Inbox{}, err
	}
	inb, err := s.scanInbox(row)
	if err == sql.ErrNoRows {
		return Inbox{}, ErrNotFound
	}
	return inb, err
}

// GetInbox implements get_inbox(needle): needle matches domain, actor, or
// inbox IRI (§4.A).
func (s *Store) GetInbox(ctx context.Context, needle string) (Inbox, error) {
	row, err := s.queryRow(ctx, "inbox_get_by_needle", needle, needle, needle)
	if err != nil {
		return Inbox{}, err
	}
	inb, err := s.scanInbox(row)
	if err == sql.ErrNoRows {
		return Inbox{}, ErrNotFound
	}
	return inb, err
}

// PutInbox upserts by domain (§3 invariant 1: at most one row per domain).
// A re-Follow updates actor/inbox/followid/software in place.
func (s *Store) PutInbox(ctx context.Context, inb Inbox) error {
	if inb.InboxURL == "" {
		return fmt.Errorf("store: inbox IRI required (§3 invariant 3)")
	}
	state := inb.State
	if state == "" {
		state = InboxSubscribed
	}
	created := inb.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var software any
	if inb.Software != "" {
		software = inb.Software
	}
	_, err := s.exec(ctx, "inbox_upsert",
		inb.Domain, inb.Actor, inb.InboxURL, inb.FollowID, software, string(state), s.now(created))
	return err
}

func (s *Store) DeleteInboxByDomain(ctx context.Context, domain string) error {
	_, err := s.exec(ctx, "inbox_delete_by_domain", domain)
	return err
}

// DeleteInboxByFollowID implements Undo->Follow: delete the row whose
// followid matches the Undo's object id (§4.F).
func (s *Store) DeleteInboxByFollowID(ctx context.Context, followID string) error {
	_, err := s.exec(ctx, "inbox_delete_by_followid", followID)
	return err
}

func (s *Store) ListSubscribedInboxes(ctx context.Context) ([]Inbox, error) {
	return s.listInboxes(ctx, "inbox_list_subscribed")
}

func (s *Store) ListAllInboxes(ctx context.Context) ([]Inbox, error) {
	return s.listInboxes(ctx, "inbox_list_all")
}

func (s *Store) listInboxes(ctx context.Context, stmtName string) ([]Inbox, error) {
	rows, err := s.query(ctx, stmtName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Inbox
	for rows.Next() {
		inb, err := s.scanInbox(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan inbox: %w", err)
		}
		out = append(out, inb)
	}
	return out, rows.Err()
}

// RecordDeliveryFailure increments the failure strike counter for domain.
// terminal is true on 410 Gone or the third consecutive 404 (§4.G), moving
// the row to InboxFailed so the fan-out engine stops selecting it.
func (s *Store) RecordDeliveryFailure(ctx context.Context, domain string, terminal bool) error {
	_, err := s.exec(ctx, "inbox_record_failure", s.now(time.Now().UTC()), terminal, domain)
	return err
}

func (s *Store) RecordDeliverySuccess(ctx context.Context, domain string) error {
	_, err := s.exec(ctx, "inbox_record_success", domain)
	return err
}

// PruneStaleFailedInboxes removes InboxFailed rows whose current run of
// failures began (first_failure) more than olderThan ago (§4.G: "after >7 days continuous failure, auto-
// remove the inbox row").
func (s *Store) PruneStaleFailedInboxes(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.exec(ctx, "inbox_delete_stale_failed", s.now(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
