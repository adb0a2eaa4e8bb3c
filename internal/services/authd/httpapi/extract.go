package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// extractor pulls a refresh token out of one part of the request.
type extractor func(c *gin.Context) string

// firstToken tries each extractor in order; the first non-empty value wins.
func firstToken(c *gin.Context, chain ...extractor) string {
	for _, ex := range chain {
		if v := strings.TrimSpace(ex(c)); v != "" {
			return v
		}
	}
	return ""
}

func fromCookie(name string) extractor {
	return func(c *gin.Context) string {
		v, err := c.Cookie(name)
		if err != nil {
			return ""
		}
		return v
	}
}

func fromBearer(c *gin.Context) string { return bearer(c) }

func fromBody(body *tokenBody) extractor {
	return func(*gin.Context) string {
		if body == nil {
			return ""
		}
		return body.RefreshToken
	}
}

func bearer(c *gin.Context) string {
	v := c.GetHeader("Authorization")
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}
