package authd_config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the optional YAML file at path, applies defaults and lets
// environment variables override any key (auth.jwt_secret -> AUTH_JWT_SECRET).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if _, err := os.Stat(path); err == nil {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	v.SetDefault("app.name", "authd")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")

	v.SetDefault("db.url", "")
	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "2s")

	v.SetDefault("redis.enable", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "refresh:")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.op_timeout", "300ms")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_ttl", "1h")
	v.SetDefault("auth.refresh_ttl", "720h")
	v.SetDefault("auth.rotation_window", "72h")
	v.SetDefault("auth.tx_timeout", "5s")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.cookie.name", "refreshToken")
	v.SetDefault("auth.cookie.domain", "")
	v.SetDefault("auth.cookie.path", "/")
	v.SetDefault("auth.cookie.secure", true)
	v.SetDefault("auth.cookie.same_site", "strict")

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.jwks_url", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("google.keys_ttl", "1h")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "authd")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DB.URL == "":
		return ErrConfig("db.url is required")
	case c.Auth.JWTSecret == "":
		return ErrConfig("auth.jwt_secret is required")
	case len(c.Auth.JWTSecret) < 32:
		return ErrConfig("auth.jwt_secret must be at least 32 bytes")
	case c.Auth.RotationWindow >= c.Auth.RefreshTTL:
		return ErrConfig("auth.rotation_window must be shorter than auth.refresh_ttl")
	case c.Auth.TxTimeout <= 0:
		return ErrConfig("auth.tx_timeout must be positive")
	}
	return nil
}
