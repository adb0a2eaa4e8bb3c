package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/NordCoder/Authus/internal/apperr"
	"github.com/NordCoder/Authus/internal/auth"
	"github.com/NordCoder/Authus/internal/domain/user"
	sessionsvc "github.com/NordCoder/Authus/internal/services/authd/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Sessions interface {
	Login(ctx context.Context, email, password string) (sessionsvc.Result, error)
	Register(ctx context.Context, in sessionsvc.RegisterInput) (sessionsvc.Result, error)
	LoginFederated(ctx context.Context, credential string) (sessionsvc.Result, error)
	Logout(ctx context.Context, raw string) error
	Refresh(ctx context.Context, raw string) (sessionsvc.Result, error)
	RevokeSession(ctx context.Context, ownerID int64, raw string) (bool, error)
	Authenticate(ctx context.Context, access string) (auth.Identity, error)
	CurrentUser(ctx context.Context, id int64) (*user.User, error)
}

type Handler struct {
	log      *zap.Logger
	sessions Sessions
	cookie   CookieConfig
}

func NewHandler(log *zap.Logger, sessions Sessions, cookie CookieConfig) *Handler {
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	useJSONNames()
	return &Handler{log: log, sessions: sessions, cookie: cookie}
}

// Mount registers the auth routes on r.
func (h *Handler) Mount(r gin.IRouter) {
	r.POST("/login", h.login)
	r.POST("/register", h.register)
	r.POST("/login-with-google", h.loginWithGoogle)
	r.POST("/logout", h.logout)
	r.POST("/refresh", h.refresh)

	guarded := r.Group("", h.guard())
	guarded.GET("/me", h.me)
	guarded.DELETE("/sessions", h.revokeSession)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type googleRequest struct {
	Credential string `json:"credential" binding:"required,jwt"`
}

type tokenBody struct {
	RefreshToken string `json:"refreshToken"`
}

type revokeRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type authData struct {
	User         *user.User `json:"user,omitempty"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    time.Time  `json:"refreshExpiresAt"`
}

func toAuthData(res sessionsvc.Result) authData {
	return authData{
		User:         res.User,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.RefreshExpiresAt,
	}
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	res, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	h.setRefreshCookie(c, res.RefreshToken, res.RefreshExpiresAt)
	respond(c, http.StatusOK, "Login successful", toAuthData(res))
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	res, err := h.sessions.Register(c.Request.Context(), sessionsvc.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		fail(c, err)
		return
	}
	h.setRefreshCookie(c, res.RefreshToken, res.RefreshExpiresAt)
	respond(c, http.StatusCreated, "User registered successfully", toAuthData(res))
}

func (h *Handler) loginWithGoogle(c *gin.Context) {
	var req googleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	res, err := h.sessions.LoginFederated(c.Request.Context(), req.Credential)
	if err != nil {
		fail(c, err)
		return
	}
	h.setRefreshCookie(c, res.RefreshToken, res.RefreshExpiresAt)
	respond(c, http.StatusOK, "Login successful", toAuthData(res))
}

// logout prefers the body over the cookie.
func (h *Handler) logout(c *gin.Context) {
	body := readTokenBody(c)
	raw := firstToken(c, fromBody(body), fromCookie(h.cookie.Name))

	if err := h.sessions.Logout(c.Request.Context(), raw); err != nil {
		fail(c, err)
		return
	}
	h.clearRefreshCookie(c)
	respond(c, http.StatusOK, "Logout successful", nil)
}

// refresh prefers the cookie, then the bearer header, then the body.
func (h *Handler) refresh(c *gin.Context) {
	body := readTokenBody(c)
	raw := firstToken(c, fromCookie(h.cookie.Name), fromBearer, fromBody(body))

	res, err := h.sessions.Refresh(c.Request.Context(), raw)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			h.clearRefreshCookie(c)
		}
		fail(c, err)
		return
	}
	if res.Rotated {
		h.setRefreshCookie(c, res.RefreshToken, res.RefreshExpiresAt)
	}
	respond(c, http.StatusOK, "Token refreshed successfully", toAuthData(res))
}

func (h *Handler) me(c *gin.Context) {
	id := identityFrom(c)
	u, err := h.sessions.CurrentUser(c.Request.Context(), id.SubjectID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "User retrieved successfully", u)
}

func (h *Handler) revokeSession(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	id := identityFrom(c)
	removed, err := h.sessions.RevokeSession(c.Request.Context(), id.SubjectID, req.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Session revoked", gin.H{"removed": removed})
}

// readTokenBody reads an optional JSON body. A missing or unreadable body
// yields nil so the other extractors still get their turn.
func readTokenBody(c *gin.Context) *tokenBody {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	var b tokenBody
	if err := c.ShouldBindJSON(&b); err != nil {
		return nil
	}
	return &b
}
