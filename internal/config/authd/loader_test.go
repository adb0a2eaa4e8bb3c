package authd_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/authus")
	t.Setenv("AUTH_JWT_SECRET", secret)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 72*time.Hour, cfg.Auth.RotationWindow)
	assert.Equal(t, 5*time.Second, cfg.Auth.TxTimeout)
	assert.Equal(t, "refreshToken", cfg.Auth.Cookie.Name)
	assert.True(t, cfg.Auth.Cookie.Secure)
	assert.Equal(t, "strict", cfg.Auth.Cookie.SameSite)
	assert.Equal(t, "refresh:", cfg.Redis.Prefix)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)

	lc := cfg.AsLoggerConfig()
	assert.Equal(t, "authus/authd", lc.App)
	assert.Equal(t, "authd", cfg.AsOTELConfig().ServiceName)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  url: postgres://file/authus
auth:
  jwt_secret: `+secret+`
  cookie:
    same_site: lax
    secure: false
google:
  client_id: web-client
`), 0o600))
	t.Setenv("AUTH_ACCESS_TTL", "15m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/authus", cfg.DB.URL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, "lax", cfg.Auth.Cookie.SameSite)
	assert.False(t, cfg.Auth.Cookie.Secure)
	assert.Equal(t, "web-client", cfg.Google.ClientID)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no db", map[string]string{"AUTH_JWT_SECRET": secret}},
		{"no secret", map[string]string{"DB_URL": "postgres://x"}},
		{"short secret", map[string]string{"DB_URL": "postgres://x", "AUTH_JWT_SECRET": "short"}},
		{"window too wide", map[string]string{"DB_URL": "postgres://x", "AUTH_JWT_SECRET": secret, "AUTH_ROTATION_WINDOW": "800h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			var cerr ErrConfig
			assert.ErrorAs(t, err, &cerr)
		})
	}
}
