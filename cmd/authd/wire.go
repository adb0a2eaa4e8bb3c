package main

import (
	"fmt"

	"github.com/NordCoder/Authus/internal/auth"
	config "github.com/NordCoder/Authus/internal/config/authd"
	pg "github.com/NordCoder/Authus/internal/repository/postgres"
	"github.com/NordCoder/Authus/internal/repository/redis"
	"github.com/NordCoder/Authus/internal/services/authd/httpapi"
	"github.com/NordCoder/Authus/internal/services/authd/identity"
	"github.com/NordCoder/Authus/internal/services/authd/session"
	"go.uber.org/zap"
)

// buildHandler wires the lifecycle manager to postgres, redis and the
// federated verifier. Federated login is rejected when no client id is set.
func buildHandler(cfg *config.Config, logger *zap.Logger, db *pg.DB, cache *redis.TokenCache) (*httpapi.Handler, error) {
	codec, err := auth.NewCodec(auth.Config{
		Secret:         []byte(cfg.Auth.JWTSecret),
		AccessTTL:      cfg.Auth.AccessTTL,
		RefreshTTL:     cfg.Auth.RefreshTTL,
		RotationWindow: cfg.Auth.RotationWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	var verifier session.IdentityVerifier = identity.Disabled{}
	if cfg.Google.ClientID != "" {
		gv, err := identity.NewGoogleVerifier(cfg.Google, logger)
		if err != nil {
			return nil, fmt.Errorf("google verifier: %w", err)
		}
		verifier = gv
	} else {
		logger.Warn("google.client_id is empty, federated login is disabled")
	}

	mgr := session.NewManager(session.Deps{
		Log:      logger.Named("session"),
		Codec:    codec,
		Store:    pg.NewRefreshTokenRepo(db),
		Cache:    cache,
		UoW:      pg.NewTransactor(db, logger, cfg.Auth.TxTimeout),
		Users:    pg.NewUserRepo(db),
		Hasher:   auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Identity: verifier,
		Outbox:   pg.NewOutboxRepo(db),
	})
	return httpapi.NewHandler(logger.Named("http"), mgr, cfg.Auth.Cookie), nil
}
