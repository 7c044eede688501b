package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/caejd/jobdiary/app/diary"
)

// ErrInvalidTag returned for tags not matching the tag pattern
var ErrInvalidTag = errors.New("invalid tag")

// EnsureUser returns the stored user with the given username, creating it from u if missing.
// An existing user wins over differing email or names.
func (s *Store) EnsureUser(ctx context.Context, u diary.User) (diary.User, error) {
	var res diary.User
	err := s.transact(ctx, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		q := tx.Rebind(`SELECT username, email, first_name, last_name FROM users WHERE username = ?`)
		row := tx.QueryRowxContext(ctx, q, u.Username)
		if err := row.Scan(&res.Username, &res.Email, &res.FirstName, &res.LastName); err != nil {
			return fmt.Errorf("failed to load user %s: %w", u.Username, err)
		}
		return nil
	})
	if err != nil {
		return diary.User{}, err
	}
	return res, nil
}

// GetUser returns a stored user
func (s *Store) GetUser(ctx context.Context, username string) (diary.User, error) {
	var res diary.User
	q := s.db.Rebind(`SELECT username, email, first_name, last_name FROM users WHERE username = ?`)
	err := s.db.QueryRowxContext(ctx, q, username).Scan(&res.Username, &res.Email, &res.FirstName, &res.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return diary.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return diary.User{}, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return res, nil
}

func insertUser(ctx context.Context, tx *sqlx.Tx, u diary.User) error {
	if u.Username == "" {
		return errors.New("empty username")
	}
	q := tx.Rebind(`INSERT INTO users (username, email, first_name, last_name) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`)
	if _, err := tx.ExecContext(ctx, q, u.Username, u.Email, u.FirstName, u.LastName); err != nil {
		return fmt.Errorf("failed to create user %s: %w", u.Username, err)
	}
	return nil
}

// Usernames returns sorted usernames of all users
func (s *Store) Usernames(ctx context.Context) ([]string, error) {
	res := []string{}
	if err := s.db.SelectContext(ctx, &res, `SELECT username FROM users ORDER BY username`); err != nil {
		return nil, fmt.Errorf("failed to load usernames: %w", err)
	}
	return res, nil
}

// Projects returns sorted distinct non-empty projects of stored jobs
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	res := []string{}
	if err := s.db.SelectContext(ctx, &res, `SELECT DISTINCT project FROM jobs WHERE project <> '' ORDER BY project`); err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	return res, nil
}

// CreateTag adds a tag, no-op if it exists
func (s *Store) CreateTag(ctx context.Context, tag string) error {
	if !diary.ValidateTag(tag) {
		return fmt.Errorf("%q: %w", tag, ErrInvalidTag)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO tags (tag) VALUES (?) ON CONFLICT DO NOTHING`), tag); err != nil {
		return fmt.Errorf("failed to create tag %q: %w", tag, err)
	}
	return nil
}

// FindTags returns up to limit tags starting with prefix, case insensitive. Empty prefix matches all.
func (s *Store) FindTags(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	res := []string{}
	q := s.db.Rebind(`SELECT tag FROM tags WHERE LOWER(tag) LIKE ? ESCAPE '\' ORDER BY tag LIMIT ?`)
	if err := s.db.SelectContext(ctx, &res, q, likePrefix(prefix), limit); err != nil {
		return nil, fmt.Errorf("failed to find tags %q: %w", prefix, err)
	}
	return res, nil
}

// likePrefix makes a lower-cased LIKE pattern matching strings starting with s
func likePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.ToLower(s)) + "%"
}
