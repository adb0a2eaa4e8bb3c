package obs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck pings one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// CheckAll runs every check and returns the failures keyed by name.
func CheckAll(ctx context.Context, checks map[string]HealthCheck) map[string]string {
	failed := map[string]string{}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

// HealthHandler answers 200 when every check passes and 503 with the failing
// dependencies otherwise.
func HealthHandler(checks map[string]HealthCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		failed := CheckAll(ctx, checks)
		names := make([]string, 0, len(checks))
		for n := range checks {
			names = append(names, n)
		}
		sort.Strings(names)

		w.Header().Set("Content-Type", "application/json")
		status, body := http.StatusOK, map[string]any{"status": "ok", "checks": names}
		if len(failed) > 0 {
			status, body = http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "failed": failed}
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

func BootstrapMetricsServer(addr string, checks map[string]HealthCheck, l *zap.Logger) *http.Server {
	ms := createMetricsServer(addr, checks)

	go func() {
		l.Info("metrics listening", zap.String("addr", addr))
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server error", zap.Error(err))
		}
	}()

	return ms
}

func createMetricsServer(addr string, checks map[string]HealthCheck) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	mux.Handle("/healthz", HealthHandler(checks))
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}
