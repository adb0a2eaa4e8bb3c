package main

import (
	"context"
	"fmt"

	config "github.com/NordCoder/Authus/internal/config/authd"
	pg "github.com/NordCoder/Authus/internal/repository/postgres"
	"github.com/NordCoder/Authus/internal/repository/redis"
	"go.uber.org/zap"
)

func initDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pg.DB, error) {
	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	logger.Info("connected to postgres", zap.Int32("max_conns", cfg.DB.MaxConns))
	return db, nil
}

func initCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.TokenCache, error) {
	return redis.New(ctx, cfg.Redis, logger)
}
