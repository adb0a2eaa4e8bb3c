package auth

import (
	"errors"
	"time"
)

type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

func (t TokenType) valid() bool { return t == TypeAccess || t == TypeRefresh }

var (
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrTypeMismatch     = errors.New("token type mismatch")
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
)

// Identity is what a token says about its holder.
type Identity struct {
	SubjectID   int64
	Email       string
	DisplayName string
}

// Claims is the decoded claim set of one token. Type is always one of
// TypeAccess or TypeRefresh; the codec rejects anything else as malformed.
type Claims struct {
	Identity
	Type      TokenType
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type ExpiryStatus struct {
	Expired      bool
	ExpiringSoon bool
	Remaining    time.Duration
}

// NeedsRotation reports whether a refresh token should be replaced.
func (s ExpiryStatus) NeedsRotation() bool { return s.Expired || s.ExpiringSoon }
