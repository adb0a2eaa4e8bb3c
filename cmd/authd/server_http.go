package main

import (
	"context"
	"net/http"
	"time"

	config "github.com/NordCoder/Authus/internal/config/authd"
	"github.com/NordCoder/Authus/internal/obs"
	"github.com/NordCoder/Authus/internal/services/authd/httpapi"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, h *httpapi.Handler, checks map[string]obs.HealthCheck) *http.Server {
	if !cfg.Log.Pretty {
		gin.SetMode(gin.ReleaseMode)
	}
	r := httpapi.NewRouter(logger.Named("http"), h)
	r.GET("/metrics", gin.WrapH(obs.MetricsHandler()))
	r.GET("/healthz", gin.WrapH(obs.HealthHandler(checks)))

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(r, "authd.http"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func serveHTTP(srv *http.Server, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}

func shutdownHTTP(ctx context.Context, srv *http.Server, logger *zap.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}
