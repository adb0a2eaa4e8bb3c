package main

import (
	"context"

	config "github.com/NordCoder/Authus/internal/config/authd"
	"github.com/NordCoder/Authus/internal/obs"
	"go.uber.org/zap"
)

func initOTel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (func(context.Context) error, error) {
	o, err := obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enable {
		logger.Info("tracing enabled", zap.String("endpoint", cfg.OTEL.OTLPEndpoint), zap.Float64("ratio", cfg.OTEL.SampleRatio))
	}
	return o.Shutdown, nil
}
