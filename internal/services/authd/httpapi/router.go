package httpapi

import (
	"time"

	"github.com/NordCoder/Authus/internal/obs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the engine serving the auth API under /auth.
func NewRouter(log *zap.Logger, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(log))
	r.NoRoute(notFound)

	h.Mount(r.Group("/auth"))
	return r
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
		}
		l := obs.WithTrace(c.Request.Context(), log)
		if c.Writer.Status() >= 500 {
			l.Error("http request", fields...)
			return
		}
		l.Info("http request", fields...)
	}
}
