package janitor_config

import (
	"github.com/NordCoder/Authus/internal/obs"
	"github.com/NordCoder/Authus/internal/outbox"
	pg "github.com/NordCoder/Authus/internal/repository/postgres"
	"github.com/NordCoder/Authus/internal/services/janitor"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type KafkaCfg struct {
	Enable            bool     `mapstructure:"enable"`
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	Partitions        int      `mapstructure:"partitions"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
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

type Config struct {
	App         App            `mapstructure:"app"`
	DB          pg.Config      `mapstructure:"db"`
	Kafka       KafkaCfg       `mapstructure:"kafka"`
	Outbox      outbox.Config  `mapstructure:"outbox"`
	Sweep       janitor.Config `mapstructure:"sweep"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
	OTEL        OTEL           `mapstructure:"otel"`
	Log         Log            `mapstructure:"log"`
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
