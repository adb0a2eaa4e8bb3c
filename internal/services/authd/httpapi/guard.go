package httpapi

import (
	"github.com/NordCoder/Authus/internal/auth"
	"github.com/NordCoder/Authus/internal/obs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "authus.identity"

// guard admits requests carrying a valid access token and stores its
// identity on the gin context.
func (h *Handler) guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := h.sessions.Authenticate(c.Request.Context(), bearer(c))
		if err != nil {
			obs.WithTrace(c.Request.Context(), h.log).Warn("unauthorized access attempt",
				zap.String("path", c.FullPath()), zap.Error(err))
			fail(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) auth.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(auth.Identity)
	return id
}
