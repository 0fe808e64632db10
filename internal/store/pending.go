package store

import (
	"context"
	"database/sql"
	"time"
)

func (s *Store) GetPendingRequest(ctx context.Context, domain string) (PendingRequest, error) {
	row, err := s.queryRow(ctx, "pending_get", domain)
	if err != nil {
		return PendingRequest{}, err
	}
	var p PendingRequest
	var created any
	if err := row.Scan(&p.Domain, &p.Actor, &p.InboxURL, &p.FollowID, &created); err != nil {
		if err == sql.ErrNoRows {
			return PendingRequest{}, ErrNotFound
		}
		return PendingRequest{}, err
	}
	p.Created, err = s.dialect.ParseTime(created)
	return p, err
}

func (s *Store) PutPendingRequest(ctx context.Context, p PendingRequest) error {
	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}
	_, err := s.exec(ctx, "pending_upsert", p.Domain, p.Actor, p.InboxURL, p.FollowID, s.now(p.Created))
	return err
}

func (s *Store) DeletePendingRequest(ctx context.Context, domain string) error {
	_, err := s.exec(ctx, "pending_delete", domain)
	return err
}

func (s *Store) ListPendingRequests(ctx context.Context) ([]PendingRequest, error) {
	rows, err := s.query(ctx, "pending_list")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		var p PendingRequest
		var created any
		if err := rows.Scan(&p.Domain, &p.Actor, &p.InboxURL, &p.FollowID, &created); err != nil {
			return nil, err
		}
		if p.Created, err = s.dialect.ParseTime(created); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AcceptPendingRequest promotes a pending request to a subscribed Inbox row
// in one transaction (§4.E: "admin accept -> Subscribed").
func (s *Store) AcceptPendingRequest(ctx context.Context, domain string) (Inbox, error) {
	p, err := s.GetPendingRequest(ctx, domain)
	if err != nil {
		return Inbox{}, err
	}
	inb := Inbox{
		Domain:   p.Domain,
		Actor:    p.Actor,
		InboxURL: p.InboxURL,
		FollowID: p.FollowID,
		State:    InboxSubscribed,
		Created:  time.Now().UTC(),
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.execTx(ctx, tx, "inbox_upsert",
			inb.Domain, inb.Actor, inb.InboxURL, inb.FollowID, any(nil), string(inb.State), s.now(inb.Created)); err != nil {
			return err
		}
		return s.execTx(ctx, tx, "pending_delete", domain)
	})
	return inb, err
}
