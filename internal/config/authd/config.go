package authd_config

import (
	"time"

	"github.com/NordCoder/Authus/internal/obs"
	pg "github.com/NordCoder/Authus/internal/repository/postgres"
	"github.com/NordCoder/Authus/internal/repository/redis"
	"github.com/NordCoder/Authus/internal/services/authd/httpapi"
	"github.com/NordCoder/Authus/internal/services/authd/identity"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Auth struct {
	JWTSecret      string               `mapstructure:"jwt_secret"`
	AccessTTL      time.Duration        `mapstructure:"access_ttl"`
	RefreshTTL     time.Duration        `mapstructure:"refresh_ttl"`
	RotationWindow time.Duration        `mapstructure:"rotation_window"`
	TxTimeout      time.Duration        `mapstructure:"tx_timeout"`
	BcryptCost     int                  `mapstructure:"bcrypt_cost"`
	Cookie         httpapi.CookieConfig `mapstructure:"cookie"`
}

type Config struct {
	App    App             `mapstructure:"app"`
	Server Server          `mapstructure:"server"`
	DB     pg.Config       `mapstructure:"db"`
	Redis  redis.Config    `mapstructure:"redis"`
	Auth   Auth            `mapstructure:"auth"`
	Google identity.Config `mapstructure:"google"`
	OTEL   OTEL            `mapstructure:"otel"`
	Log    Log             `mapstructure:"log"`
}

func (c *Config) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:         c.OTEL.Enable,
		Endpoint:       c.OTEL.OTLPEndpoint,
		ServiceName:    c.OTEL.ServiceName,
		ServiceVersion: c.App.Version,
		Environment:    c.App.Env,
		SampleRatio:    c.OTEL.SampleRatio,
	}
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    "authus/" + c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
