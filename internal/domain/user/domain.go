package user

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("user not found")

// ConflictError reports a unique-key collision on a directory write.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("user %s %q already exists", e.Field, e.Value)
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
