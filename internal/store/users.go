package store

import (
	"context"
	"database/sql"
	"time"
)

func (s *Store) GetUser(ctx context.Context, username string) (User, error) {
	row, err := s.queryRow(ctx, "user_get", username)
	if err != nil {
		return User{}, err
	}
	var u User
	var created any
	if err := row.Scan(&u.Username, &u.Hash, &u.Handle, &created); err != nil {
		if err == sql.ErrNoRows {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Created, err = s.dialect.ParseTime(created)
	return u, err
}

func (s *Store) PutUser(ctx context.Context, u User) error {
	if u.Created.IsZero() {
		u.Created = time.Now().UTC()
	}
	_, err := s.exec(ctx, "user_upsert", u.Username, u.Hash, u.Handle, s.now(u.Created))
	return err
}

// DeleteUser removes the user; tokens cascade via the FK (§3 invariant 4).
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	_, err := s.exec(ctx, "user_delete", username)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.query(ctx, "user_list")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var created any
		if err := rows.Scan(&u.Username, &u.Hash, &u.Handle, &created); err != nil {
			return nil, err
		}
		if u.Created, err = s.dialect.ParseTime(created); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetToken(ctx context.Context, token string) (Token, error) {
	row, err := s.queryRow(ctx, "token_get", token)
	if err != nil {
		return Token{}, err
	}
	var t Token
	var created any
	if err := row.Scan(&t.Token, &t.Username, &created); err != nil {
		if err == sql.ErrNoRows {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	t.Created, err = s.dialect.ParseTime(created)
	return t, err
}

func (s *Store) PutToken(ctx context.Context, t Token) error {
	if t.Created.IsZero() {
		t.Created = time.Now().UTC()
	}
	_, err := s.exec(ctx, "token_insert", t.Token, t.Username, s.now(t.Created))
	return err
}

func (s *Store) DeleteToken(ctx context.Context, token string) error {
	_, err := s.exec(ctx, "token_delete", token)
	return err
}

func (s *Store) DeleteTokensByUser(ctx context.Context, username string) error {
	_, err := s.exec(ctx, "token_delete_by_user", username)
	return err
}
