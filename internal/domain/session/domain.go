package session

import (
	"errors"
	"time"
)

// RefreshToken is the durable record of one issued refresh token. Token is the
// unique key; rotation replaces Token and ExpiresAt in place.
type RefreshToken struct {
	Token     string
	OwnerID   int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

var (
	ErrDuplicateToken = errors.New("refresh token already exists")
	ErrTokenNotFound  = errors.New("refresh token not found")
	// ErrTokenGone is returned by a rotation that matched no row: the old value
	// was already rotated or revoked by a concurrent call.
	ErrTokenGone = errors.New("refresh token no longer current")
	ErrCacheMiss = errors.New("cache miss")
	// ErrUnitTimeout is reported by a Unit of Work that ran past its deadline.
	ErrUnitTimeout = errors.New("unit of work timed out")
)

type EventType string

const (
	EventIssued  EventType = "session.issued"
	EventRotated EventType = "session.rotated"
	EventRevoked EventType = "session.revoked"
)

// Event is published for every durable session change. It never carries a
// token value, only fingerprints.
type Event struct {
	Type        EventType `json:"type"`
	OwnerID     int64     `json:"owner_id"`
	Reason      string    `json:"reason"`
	Fingerprint string    `json:"fingerprint"`
	Previous    string    `json:"previous_fingerprint,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	At          time.Time `json:"at"`
}
