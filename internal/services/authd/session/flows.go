package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Authus/internal/apperr"
	"github.com/NordCoder/Authus/internal/auth"
	"github.com/NordCoder/Authus/internal/domain/outbox"
	domain "github.com/NordCoder/Authus/internal/domain/session"
	"github.com/NordCoder/Authus/internal/domain/user"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// issue mints a token pair for u and stores the refresh token in a fresh unit
// of work. prepare, when set, runs first inside the same unit. A colliding
// token value aborts the unit and the whole attempt is repeated.
func (m *Manager) issue(ctx context.Context, u *user.User, flow string, prepare func(ctx context.Context) error) (Result, error) {
	var (
		res Result
		err error
	)
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		res, err = m.issueOnce(ctx, u, prepare)
		if !errors.Is(err, domain.ErrDuplicateToken) {
			break
		}
		m.logger(ctx).Warn("refresh token collision, retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		return Result{}, m.internal(ctx, flow, err)
	}

	m.cacheSet(ctx, res.RefreshToken, res.RefreshExpiresAt)
	return res, nil
}

func (m *Manager) issueOnce(ctx context.Context, u *user.User, prepare func(ctx context.Context) error) (Result, error) {
	var res Result
	err := m.uow.WithTx(ctx, func(ctx context.Context) error {
		if prepare != nil {
			if err := prepare(ctx); err != nil {
				return err
			}
		}

		id := identityOf(u)
		access, _, err := m.codec.Mint(id, auth.TypeAccess)
		if err != nil {
			return err
		}
		refresh, rc, err := m.codec.Mint(id, auth.TypeRefresh)
		if err != nil {
			return err
		}

		if err := m.store.Insert(ctx, &domain.RefreshToken{
			Token:     refresh,
			OwnerID:   u.ID,
			CreatedAt: rc.IssuedAt,
			ExpiresAt: rc.ExpiresAt,
		}); err != nil {
			return fmt.Errorf("insert refresh token: %w", err)
		}

		res = Result{
			User:             u,
			Identity:         id,
			AccessToken:      access,
			RefreshToken:     refresh,
			RefreshExpiresAt: rc.ExpiresAt,
		}
		return m.emit(ctx, domain.Event{
			Type:        domain.EventIssued,
			OwnerID:     u.ID,
			Reason:      "issue",
			Fingerprint: auth.Fingerprint(refresh),
			ExpiresAt:   rc.ExpiresAt,
		})
	})
	return res, err
}

// rotate replaces old with a freshly minted refresh token in place. The old
// value stops working as soon as the update commits. An update that matches
// no row lost a race with another rotation or a logout.
func (m *Manager) rotate(ctx context.Context, old string, id auth.Identity, st auth.ExpiryStatus) (Result, error) {
	var res Result
	var err error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		res, err = m.rotateOnce(ctx, old, id)
		if !errors.Is(err, domain.ErrDuplicateToken) {
			break
		}
	}
	switch {
	case errors.Is(err, domain.ErrTokenGone):
		m.logger(ctx).Warn("rotation matched no row", zap.String("refresh", auth.Fingerprint(old)))
		return Result{}, invalidRefresh(err)
	case err != nil:
		return Result{}, m.internal(ctx, "refresh", err)
	}

	rotationsTotal.Inc()
	m.cacheDelete(ctx, old)
	m.cacheSet(ctx, res.RefreshToken, res.RefreshExpiresAt)

	m.logger(ctx).Info("session.refresh.rotated",
		zap.Int64("user_id", id.SubjectID),
		zap.Bool("expired", st.Expired),
		zap.String("old", auth.Fingerprint(old)),
		zap.String("new", auth.Fingerprint(res.RefreshToken)),
	)
	return res, nil
}

func (m *Manager) rotateOnce(ctx context.Context, old string, id auth.Identity) (Result, error) {
	var res Result
	err := m.uow.WithTx(ctx, func(ctx context.Context) error {
		access, _, err := m.codec.Mint(id, auth.TypeAccess)
		if err != nil {
			return err
		}
		refresh, rc, err := m.codec.Mint(id, auth.TypeRefresh)
		if err != nil {
			return err
		}
		if err := m.store.UpdateToken(ctx, old, refresh, rc.ExpiresAt); err != nil {
			return fmt.Errorf("rotate refresh token: %w", err)
		}

		res = Result{
			Identity:         id,
			AccessToken:      access,
			RefreshToken:     refresh,
			RefreshExpiresAt: rc.ExpiresAt,
			Rotated:          true,
		}
		return m.emit(ctx, domain.Event{
			Type:        domain.EventRotated,
			OwnerID:     id.SubjectID,
			Reason:      "rotate",
			Fingerprint: auth.Fingerprint(refresh),
			Previous:    auth.Fingerprint(old),
			ExpiresAt:   rc.ExpiresAt,
		})
	})
	return res, err
}

// known reports whether raw is a live refresh token: the cache first, then the
// store. A store hit repopulates the cache and returns the record; a cache hit
// returns nil. An unreachable cache counts as a miss.
func (m *Manager) known(ctx context.Context, raw string) (*domain.RefreshToken, error) {
	_, err := m.cache.Get(ctx, raw)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		m.logger(ctx).Warn("token cache read failed", zap.String("refresh", auth.Fingerprint(raw)), zap.Error(err))
	}

	rec, err := m.store.FindByToken(ctx, raw)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return nil, invalidRefresh(err)
	}
	if err != nil {
		return nil, m.internal(ctx, "refresh", err)
	}

	m.cacheSet(ctx, raw, rec.ExpiresAt)
	return rec, nil
}

// cacheSet mirrors a committed token into the cache with its remaining
// lifetime. Failures are logged only.
func (m *Manager) cacheSet(ctx context.Context, raw string, expiresAt time.Time) {
	ttl := expiresAt.Sub(m.now())
	if ttl <= 0 {
		return
	}
	if err := m.cache.SetWithTTL(ctx, raw, raw, ttl); err != nil {
		m.logger(ctx).Warn("token cache write failed", zap.String("refresh", auth.Fingerprint(raw)), zap.Error(err))
	}
}

// invalidate drops raw from the cache ahead of a revocation. Dropping early
// only causes misses. A revocation must not commit while a cache hit could
// still vouch for the token, so a failed delete aborts the flow.
func (m *Manager) invalidate(ctx context.Context, raw string) error {
	if err := m.cache.Delete(ctx, raw); err != nil {
		m.logger(ctx).Error("token cache invalidation failed", zap.String("refresh", auth.Fingerprint(raw)), zap.Error(err))
		return apperr.Retryable(fmt.Errorf("invalidate cached token: %w", err))
	}
	return nil
}

func (m *Manager) cacheDelete(ctx context.Context, raw string) {
	if err := m.cache.Delete(ctx, raw); err != nil {
		m.logger(ctx).Warn("token cache delete failed", zap.String("refresh", auth.Fingerprint(raw)), zap.Error(err))
	}
}

var eventKinds = map[domain.EventType]outbox.Kind{
	domain.EventIssued:  outbox.KindSessionIssued,
	domain.EventRotated: outbox.KindSessionRotated,
	domain.EventRevoked: outbox.KindSessionRevoked,
}

// emit records ev in the outbox inside the caller's unit of work.
func (m *Manager) emit(ctx context.Context, ev domain.Event) error {
	if m.outbox == nil {
		return nil
	}
	ev.At = m.now()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if err := m.outbox.Enqueue(ctx, uuid.NewString(), eventKinds[ev.Type], data); err != nil {
		return fmt.Errorf("enqueue %s event: %w", ev.Type, err)
	}
	return nil
}

func identityOf(u *user.User) auth.Identity {
	return auth.Identity{SubjectID: u.ID, Email: u.Email, DisplayName: u.Name}
}
