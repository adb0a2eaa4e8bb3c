package janitor_config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("app.name", "janitor")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")

	v.SetDefault("db.url", "")
	v.SetDefault("db.max_conns", 5)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "5s")

	v.SetDefault("kafka.enable", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka.topic", "authus.sessions.events")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("outbox.workers", 2)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.wait_time", "1s")
	v.SetDefault("outbox.in_progress_ttl", "1m")

	v.SetDefault("sweep.tick", "1m")
	v.SetDefault("sweep.grace", "0s")
	v.SetDefault("sweep.batch_limit", 500)
	v.SetDefault("sweep.max_batches", 20)
	v.SetDefault("sweep.outbox_retention", "168h")

	v.SetDefault("metrics_addr", ":8082")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "janitor")
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
	if cfg.DB.URL == "" {
		return nil, ErrConfig("db.url is required")
	}
	if cfg.Kafka.Enable && (len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "") {
		return nil, ErrConfig("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return &cfg, nil
}
