package main

import (
	config "github.com/NordCoder/Authus/internal/config/authd"
	"github.com/NordCoder/Authus/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}
