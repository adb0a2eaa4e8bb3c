package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Authus/internal/auth"
	"github.com/NordCoder/Authus/internal/domain/session"
	"github.com/jackc/pgx/v5"
)

var (
	_ session.Store   = (*RefreshTokenRepo)(nil)
	_ session.Sweeper = (*RefreshTokenRepo)(nil)
)

type RefreshTokenRepo struct{ db *DB }

func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const (
	qRTInsert = `
INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at)
VALUES ($1, $2, $3, $4);`

	qRTFind = `
SELECT user_id, created_at, expires_at
FROM refresh_tokens
WHERE token_hash = $1;`

	qRTRotate = `
UPDATE refresh_tokens
SET token_hash = $2,
    expires_at = $3,
    rotated_at = NOW()
WHERE token_hash = $1;`

	qRTDelete = `
DELETE FROM refresh_tokens WHERE token_hash = $1;`

	qRTDeleteOwned = `
DELETE FROM refresh_tokens WHERE user_id = $1 AND token_hash = $2;`

	qRTDeleteExpired = `
DELETE FROM refresh_tokens
WHERE id IN (
   SELECT id
   FROM refresh_tokens
   WHERE expires_at <= $1
   ORDER BY expires_at
   LIMIT $2
   FOR UPDATE SKIP LOCKED
);`
)

func (r *RefreshTokenRepo) Insert(ctx context.Context, t *session.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qRTInsert, auth.HashToken(t.Token), t.OwnerID, t.CreatedAt, t.ExpiresAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return session.ErrDuplicateToken
	case isForeignKeyViolation(err):
		return fmt.Errorf("refresh insert: %w", ErrConstraint)
	default:
		return fmt.Errorf("refresh insert: %w", err)
	}
}

func (r *RefreshTokenRepo) FindByToken(ctx context.Context, token string) (*session.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	t := session.RefreshToken{Token: token}
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qRTFind, auth.HashToken(token)).
		Scan(&t.OwnerID, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrTokenNotFound
		}
		return nil, fmt.Errorf("find refresh: %w", err)
	}
	return &t, nil
}

// UpdateToken rotates a record in place. Zero affected rows means the old value
// was replaced or deleted concurrently and is reported as ErrTokenGone.
func (r *RefreshTokenRepo) UpdateToken(ctx context.Context, oldToken, newToken string, newExpiry time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTRotate, auth.HashToken(oldToken), auth.HashToken(newToken), newExpiry)
	if err != nil {
		if isUniqueViolation(err) {
			return session.ErrDuplicateToken
		}
		return fmt.Errorf("rotate refresh: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrTokenGone
	}
	return nil
}

func (r *RefreshTokenRepo) DeleteByToken(ctx context.Context, token string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTDelete, auth.HashToken(token))
	if err != nil {
		return false, fmt.Errorf("delete refresh: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RefreshTokenRepo) DeleteByOwnerAndValue(ctx context.Context, ownerID int64, token string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTDeleteOwned, ownerID, auth.HashToken(token))
	if err != nil {
		return false, fmt.Errorf("delete owned refresh: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, errors.New("limit must be > 0")
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTDeleteExpired, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh: %w", err)
	}
	return tag.RowsAffected(), nil
}
