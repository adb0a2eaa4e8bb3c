package session

import (
	"context"
	"errors"
	"time"

	"github.com/NordCoder/Authus/internal/apperr"
	"github.com/NordCoder/Authus/internal/auth"
	domain "github.com/NordCoder/Authus/internal/domain/session"
	"github.com/NordCoder/Authus/internal/domain/user"
	"github.com/NordCoder/Authus/internal/obs"
	"github.com/NordCoder/Authus/internal/services/authd/identity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxIssueAttempts = 3

var (
	flowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_flow_total",
		Help: "Session lifecycle flows by flow and outcome.",
	}, []string{"flow", "outcome"})
	rotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_rotations_total",
		Help: "Refresh tokens rotated.",
	})
)

type Hasher interface {
	Hash(plain string) (string, error)
	Compare(plain, hashed string) bool
}

type IdentityVerifier interface {
	VerifyAssertion(ctx context.Context, credential string) (identity.Assertion, error)
}

type Deps struct {
	Log      *zap.Logger
	Codec    *auth.Codec
	Store    domain.Store
	Cache    domain.Cache
	UoW      domain.UnitOfWork
	Users    user.Directory
	Hasher   Hasher
	Identity IdentityVerifier
	// Outbox is optional; without it no session events are recorded.
	Outbox domain.Outbox
	Now    func() time.Time
}

// Manager runs the login, registration, federated login, logout and refresh
// flows. The store is authoritative; the cache is only written after the unit
// of work that changed the store has committed.
type Manager struct {
	log      *zap.Logger
	codec    *auth.Codec
	store    domain.Store
	cache    domain.Cache
	uow      domain.UnitOfWork
	users    user.Directory
	hasher   Hasher
	identity IdentityVerifier
	outbox   domain.Outbox
	now      func() time.Time
	tr       trace.Tracer
}

func NewManager(d Deps) *Manager {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		log:      d.Log,
		codec:    d.Codec,
		store:    d.Store,
		cache:    d.Cache,
		uow:      d.UoW,
		users:    d.Users,
		hasher:   d.Hasher,
		identity: d.Identity,
		outbox:   d.Outbox,
		now:      d.Now,
		tr:       otel.Tracer("authd.session"),
	}
}

// Result is what a successful flow hands back to the transport.
type Result struct {
	User             *user.User
	Identity         auth.Identity
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	Rotated          bool
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

var errInvalidCredentials = apperr.Unauthorized(apperr.CodeInvalidCredentials, "Email or Password is wrong")

func (m *Manager) Login(ctx context.Context, email, password string) (res Result, err error) {
	ctx, end := m.start(ctx, "login")
	defer func() { end(err) }()

	u, err := m.users.FindByEmail(ctx, user.NormalizeEmail(email))
	if errors.Is(err, user.ErrNotFound) {
		return Result{}, errInvalidCredentials
	}
	if err != nil {
		return Result{}, m.internal(ctx, "login", err)
	}
	if !m.hasher.Compare(password, u.PasswordHash) {
		return Result{}, errInvalidCredentials
	}

	res, err = m.issue(ctx, u, "login", nil)
	if err != nil {
		return Result{}, err
	}
	m.logger(ctx).Info("session.login", zap.Int64("user_id", u.ID), zap.String("refresh", auth.Fingerprint(res.RefreshToken)))
	return res, nil
}

// Register creates the owner and its first refresh token in one unit of work;
// if issuance fails the owner is rolled back with it.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (res Result, err error) {
	ctx, end := m.start(ctx, "register")
	defer func() { end(err) }()

	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return Result{}, m.internal(ctx, "register", err)
	}
	u := &user.User{
		Email:        user.NormalizeEmail(in.Email),
		Name:         in.Name,
		PasswordHash: hash,
	}

	res, err = m.issue(ctx, u, "register", func(ctx context.Context) error {
		now := m.now()
		u.ID, u.CreatedAt, u.UpdatedAt = 0, now, now
		if err := m.users.Insert(ctx, u); err != nil {
			var ce *user.ConflictError
			if errors.As(err, &ce) {
				return apperr.Conflict(ce.Field, ce.Value).WithCause(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	m.logger(ctx).Info("session.register", zap.Int64("user_id", u.ID))
	return res, nil
}

// LoginFederated accepts an ID token from the external identity provider. The
// account must already exist locally; it is never created here.
func (m *Manager) LoginFederated(ctx context.Context, credential string) (res Result, err error) {
	ctx, end := m.start(ctx, "login_federated")
	defer func() { end(err) }()

	a, err := m.identity.VerifyAssertion(ctx, credential)
	if err != nil {
		m.logger(ctx).Warn("federated assertion rejected", zap.Error(err))
		return Result{}, apperr.Unauthorized(apperr.CodeInvalidAssertion, "Invalid credential").WithCause(err)
	}
	if !a.EmailVerified {
		return Result{}, apperr.Unauthorized(apperr.CodeEmailNotVerified, "Email not verified")
	}

	u, err := m.users.FindByEmail(ctx, user.NormalizeEmail(a.Email))
	if errors.Is(err, user.ErrNotFound) {
		return Result{}, apperr.NotFound("User does not exist")
	}
	if err != nil {
		return Result{}, m.internal(ctx, "login_federated", err)
	}

	res, err = m.issue(ctx, u, "login_federated", nil)
	if err != nil {
		return Result{}, err
	}
	m.logger(ctx).Info("session.login_federated", zap.Int64("user_id", u.ID))
	return res, nil
}

// Logout deletes the record holding raw. A token that is already gone is not
// an error. The cached entry is dropped before the store is touched; if that
// fails nothing is revoked and the caller gets a retryable error.
func (m *Manager) Logout(ctx context.Context, raw string) (err error) {
	ctx, end := m.start(ctx, "logout")
	defer func() { end(err) }()

	if raw == "" {
		return apperr.Unauthorized(apperr.CodeMissingToken, "Refresh token is required")
	}
	log := m.logger(ctx).With(zap.String("refresh", auth.Fingerprint(raw)))
	if hint, derr := m.codec.DecodeUnsafe(raw); derr == nil {
		log = log.With(zap.Int64("user_id", hint.SubjectID))
	}

	if err = m.invalidate(ctx, raw); err != nil {
		return err
	}

	var removed bool
	err = m.uow.WithTx(ctx, func(ctx context.Context) error {
		var err error
		removed, err = m.store.DeleteByToken(ctx, raw)
		if err != nil || !removed {
			return err
		}
		return m.emit(ctx, domain.Event{
			Type:        domain.EventRevoked,
			OwnerID:     hintOwner(m.codec, raw),
			Reason:      "logout",
			Fingerprint: auth.Fingerprint(raw),
		})
	})
	if err != nil {
		return m.internal(ctx, "logout", err)
	}

	// a concurrent refresh may have cached it again before the commit
	m.cacheDelete(ctx, raw)
	log.Info("session.logout", zap.Bool("removed", removed))
	return nil
}

// RevokeSession ends one session of ownerID. Tokens owned by someone else are
// left alone and reported as not removed.
func (m *Manager) RevokeSession(ctx context.Context, ownerID int64, raw string) (removed bool, err error) {
	ctx, end := m.start(ctx, "revoke")
	defer func() { end(err) }()

	if raw == "" {
		return false, apperr.Unauthorized(apperr.CodeMissingToken, "Refresh token is required")
	}

	if err = m.invalidate(ctx, raw); err != nil {
		return false, err
	}

	err = m.uow.WithTx(ctx, func(ctx context.Context) error {
		var err error
		removed, err = m.store.DeleteByOwnerAndValue(ctx, ownerID, raw)
		if err != nil || !removed {
			return err
		}
		return m.emit(ctx, domain.Event{
			Type:        domain.EventRevoked,
			OwnerID:     ownerID,
			Reason:      "revoke",
			Fingerprint: auth.Fingerprint(raw),
		})
	})
	if err != nil {
		return false, m.internal(ctx, "revoke", err)
	}
	if removed {
		m.cacheDelete(ctx, raw)
	}
	m.logger(ctx).Info("session.revoke", zap.Int64("user_id", ownerID), zap.Bool("removed", removed))
	return removed, nil
}

// Refresh exchanges a refresh token for a new access token. Tokens that are
// expired or inside the rotation window are rotated; any other token is
// returned unchanged and nothing is written.
func (m *Manager) Refresh(ctx context.Context, raw string) (res Result, err error) {
	ctx, end := m.start(ctx, "refresh")
	defer func() { end(err) }()

	if raw == "" {
		return Result{}, apperr.Unauthorized(apperr.CodeMissingToken, "Refresh token is required")
	}

	rec, err := m.known(ctx, raw)
	if err != nil {
		return Result{}, err
	}

	cl, err := m.codec.DecodeUnsafe(raw)
	if err != nil {
		return Result{}, invalidRefresh(err)
	}
	if cl.Type != auth.TypeRefresh {
		return Result{}, apperr.Unauthorized(apperr.CodeTypeMismatch, "Invalid refresh token")
	}
	if rec != nil && rec.OwnerID != cl.SubjectID {
		return Result{}, invalidRefresh(errors.New("owner mismatch"))
	}
	st, err := m.codec.ExpiryStatus(raw)
	if err != nil {
		return Result{}, invalidRefresh(err)
	}

	if st.NeedsRotation() {
		return m.rotate(ctx, raw, cl.Identity, st)
	}

	access, _, err := m.codec.Mint(cl.Identity, auth.TypeAccess)
	if err != nil {
		return Result{}, m.internal(ctx, "refresh", err)
	}
	m.logger(ctx).Info("session.refresh", zap.Int64("user_id", cl.SubjectID), zap.Duration("remaining", st.Remaining))
	return Result{
		Identity:         cl.Identity,
		AccessToken:      access,
		RefreshToken:     raw,
		RefreshExpiresAt: cl.ExpiresAt,
	}, nil
}

// Authenticate verifies an access token for a guarded call.
func (m *Manager) Authenticate(_ context.Context, access string) (auth.Identity, error) {
	if access == "" {
		return auth.Identity{}, apperr.Unauthorized(apperr.CodeMissingToken, "Unauthorized: No token provided")
	}
	cl, err := m.codec.Verify(access, auth.EnforceType(auth.TypeAccess))
	switch {
	case errors.Is(err, auth.ErrTypeMismatch):
		return auth.Identity{}, apperr.Unauthorized(apperr.CodeTypeMismatch, "Unauthorized: Invalid token").WithCause(err)
	case err != nil:
		return auth.Identity{}, apperr.Unauthorized(apperr.CodeInvalidAccessToken, "Unauthorized: Invalid token").WithCause(err)
	}
	return cl.Identity, nil
}

func (m *Manager) CurrentUser(ctx context.Context, id int64) (*user.User, error) {
	u, err := m.users.FindByID(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		return nil, apperr.NotFound("User does not exist")
	}
	if err != nil {
		return nil, m.internal(ctx, "me", err)
	}
	return u, nil
}

func (m *Manager) start(ctx context.Context, flow string) (context.Context, func(error)) {
	ctx, span := m.tr.Start(ctx, "session."+flow)
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(apperr.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("session.outcome", outcome))
		flowTotal.WithLabelValues(flow, outcome).Inc()
		span.End()
	}
}

func (m *Manager) logger(ctx context.Context) *zap.Logger { return obs.WithTrace(ctx, m.log) }

// internal passes classified errors through and turns the rest into an
// InternalError. A unit of work that ran out of time may be retried.
func (m *Manager) internal(ctx context.Context, flow string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	m.logger(ctx).Error("session flow failed", zap.String("flow", flow), zap.Error(err))
	if errors.Is(err, domain.ErrUnitTimeout) {
		return apperr.Retryable(err)
	}
	return apperr.Internal(err)
}

func invalidRefresh(cause error) error {
	return apperr.Unauthorized(apperr.CodeInvalidRefreshToken, "Invalid refresh token").WithCause(cause)
}

func hintOwner(c *auth.Codec, raw string) int64 {
	if hint, err := c.DecodeUnsafe(raw); err == nil {
		return hint.SubjectID
	}
	return 0
}
