package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Authus/internal/domain/user"
	"github.com/jackc/pgx/v5"
)

var _ user.Directory = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

var userConstraints = map[string]string{
	"users_email_key": "email",
}

const (
	qUserInsert = `
INSERT INTO users (email, name, password_hash)
VALUES ($1, $2, $3)
RETURNING id, email, name, password_hash, created_at, updated_at;`

	qUserByID = `
SELECT id, email, name, password_hash, created_at, updated_at
FROM users
WHERE id = $1;`

	qUserByEmail = `
SELECT id, email, name, password_hash, created_at, updated_at
FROM users
WHERE email = $1;`

	qUserUpdate = `
UPDATE users
SET email         = $2,
    name          = $3,
    password_hash = $4,
    updated_at    = NOW()
WHERE id = $1
RETURNING id, email, name, password_hash, created_at, updated_at;`
)

func (r *UserRepo) Insert(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserInsert, u.Email, u.Name, u.PasswordHash)
	if err := scanUser(row, u); err != nil {
		return mapWriteErr("user insert", u, err)
	}
	return nil
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByID, id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByEmail, user.NormalizeEmail(email)), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Update(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qUserUpdate, u.ID, u.Email, u.Name, u.PasswordHash)
	if err := scanUser(row, u); err != nil {
		return mapWriteErr("user update", u, err)
	}
	return nil
}

func mapWriteErr(op string, u *user.User, err error) error {
	if errors.Is(err, user.ErrNotFound) {
		return err
	}
	if isUniqueViolation(err) {
		field, value := conflictKey(err, userConstraints)
		if field == "" {
			field = "email"
		}
		if value == "" && field == "email" {
			value = u.Email
		}
		return &user.ConflictError{Field: field, Value: value}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanUser(row pgx.Row, out *user.User) error {
	if err := row.Scan(&out.ID, &out.Email, &out.Name, &out.PasswordHash, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.ErrNotFound
		}
		return fmt.Errorf("scan user: %w", err)
	}
	return nil
}
