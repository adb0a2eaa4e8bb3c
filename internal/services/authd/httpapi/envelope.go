package httpapi

import (
	"net/http"

	"github.com/NordCoder/Authus/internal/apperr"
	"github.com/gin-gonic/gin"
)

// Envelope is the body of every response.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	Error      any    `json:"error,omitempty"`
	Success    bool   `json:"success"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{StatusCode: status, Message: message, Data: data, Success: true})
}

// fail renders err. Only classified details reach the client; causes stay in
// the logs.
func fail(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal(err)
	}
	status := e.HTTPStatus()
	if e.Retryable {
		c.Header("Retry-After", "1")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, Envelope{
		StatusCode: status,
		Message:    e.Message,
		Error:      e.Details,
		Success:    false,
	})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Envelope{StatusCode: http.StatusNotFound, Message: "Route not found"})
}
