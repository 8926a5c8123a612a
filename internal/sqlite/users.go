package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/hnews/internal/hn"
)

// Makes sure a row exists for the author so items can reference it.
func ensureUser(ctx context.Context, tx *sqlx.Tx, id string) error {
	const q = `INSERT INTO users (id) VALUES (?) ON CONFLICT (id) DO NOTHING;`

	if _, err := tx.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("error ensuring user %q: %w", id, err)
	}

	return nil
}

func (r Repo) User(ctx context.Context, id string) (hn.User, error) {
	const q = `SELECT * FROM users WHERE id = ?;`

	var usr hn.User
	err := r.db.GetContext(ctx, &usr, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return hn.User{}, hn.ErrNotFound
	}
	if err != nil {
		return hn.User{}, fmt.Errorf("error fetching user: %s", err)
	}

	return usr, nil
}

// UsersWithoutProfile narrows ids down to the users still holding only a stub.
func (r Repo) UsersWithoutProfile(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	query, args, err := sq.Select("id").From("users").
		Where(sq.Eq{"id": ids}).
		Where(sq.Eq{"fetched_at": nil}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	missing := []string{}
	if err := r.db.SelectContext(ctx, &missing, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting users without profile: %s", err)
	}

	return missing, nil
}

// UpdateProfile fills a user stub in. A user whose profile was already filled is left alone.
func (r Repo) UpdateProfile(ctx context.Context, p hn.Profile) error {
	submitted := "[]"
	if len(p.Submitted) > 0 {
		byts, err := json.Marshal(p.Submitted)
		if err != nil {
			return fmt.Errorf("error encoding submitted: %s", err)
		}
		submitted = string(byts)
	}

	query, args, err := sq.Update("users").
		Set("created", p.Created).
		Set("karma", p.Karma).
		Set("about", p.About).
		Set("submitted", submitted).
		Set("delay", p.Delay).
		Set("fetched_at", time.Now().UTC()).
		Where(sq.Eq{"id": p.ID}).
		Where(sq.Eq{"fetched_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error updating user profile: %s", err)
	}

	return nil
}
