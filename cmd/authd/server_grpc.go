package main

import (
	"context"
	"net"
	"time"

	config "github.com/NordCoder/Authus/internal/config/authd"
	"github.com/NordCoder/Authus/internal/obs"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthService = "authus.authd"

// buildGRPCServer serves grpc.health.v1 for orchestrators. The status follows
// the same dependency checks as /healthz.
func buildGRPCServer(cfg *config.Config) (*grpc.Server, *health.Server, net.Listener, error) {
	grpcMetrics := grpcprometheus.NewServerMetrics()
	grpcMetrics.EnableHandlingTimeHistogram()

	srv := grpc.NewServer(obs.GRPCServerOpts(grpcMetrics)...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	grpcMetrics.InitializeMetrics(srv)

	ln, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	return srv, hs, ln, nil
}

func serveGRPC(s *grpc.Server, ln net.Listener, logger *zap.Logger) error {
	logger.Info("grpc listening", zap.String("addr", ln.Addr().String()))
	return s.Serve(ln)
}

// watchHealth flips the serving status whenever a dependency check changes
// outcome, until ctx is done.
func watchHealth(ctx context.Context, hs *health.Server, checks map[string]obs.HealthCheck, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		cctx, cancel := context.WithTimeout(ctx, every/2)
		failed := obs.CheckAll(cctx, checks)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if len(failed) > 0 {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status != last {
			logger.Info("health status changed", zap.Stringer("status", status), zap.Any("failed", failed))
			hs.SetServingStatus("", status)
			hs.SetServingStatus(healthService, status)
			last = status
		}

		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
