package session

import (
	"context"
	"time"

	"github.com/NordCoder/Authus/internal/domain/outbox"
)

// Store mutations join the Unit of Work carried by ctx when there is one; the
// store never opens a transaction itself.
type Store interface {
	Insert(ctx context.Context, t *RefreshToken) error
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	UpdateToken(ctx context.Context, oldToken, newToken string, newExpiry time.Time) error
	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteByOwnerAndValue(ctx context.Context, ownerID int64, token string) (bool, error)
}

type Sweeper interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error)
}

// Cache is best-effort. Get returns ErrCacheMiss for absent keys.
type Cache interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Outbox interface {
	Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error
}
