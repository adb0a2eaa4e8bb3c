package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Authus/internal/domain/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Enable      bool          `mapstructure:"enable"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
}

const DefaultPrefix = "refresh:"

var cacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "token_cache_ops_total",
	Help: "Token cache operations by op and result.",
}, []string{"op", "result"})

var _ session.Cache = (*TokenCache)(nil)

// TokenCache maps refresh token values to themselves with a TTL equal to the
// token's remaining lifetime. A disabled cache always misses.
type TokenCache struct {
	client    *goredis.Client
	prefix    string
	opTimeout time.Duration
}

func New(ctx context.Context, cfg Config, log *zap.Logger) (*TokenCache, error) {
	if !cfg.Enable {
		log.Warn("token cache disabled, every refresh goes to the store")
		return &TokenCache{prefix: cfg.Prefix}, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))

	return NewWithClient(client, cfg.Prefix, cfg.OpTimeout), nil
}

func NewWithClient(client *goredis.Client, prefix string, opTimeout time.Duration) *TokenCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &TokenCache{client: client, prefix: prefix, opTimeout: opTimeout}
}

func (c *TokenCache) key(k string) string { return c.prefix + k }

func (c *TokenCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *TokenCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}
	if ttl <= 0 {
		return fmt.Errorf("cache set: non-positive ttl %s", ttl)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		cacheOps.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("cache set: %w", err)
	}
	cacheOps.WithLabelValues("set", "ok").Inc()
	return nil
}

func (c *TokenCache) Get(ctx context.Context, key string) (string, error) {
	if c.client == nil {
		return "", session.ErrCacheMiss
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	val, err := c.client.Get(ctx, c.key(key)).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		cacheOps.WithLabelValues("get", "miss").Inc()
		return "", session.ErrCacheMiss
	case err != nil:
		cacheOps.WithLabelValues("get", "error").Inc()
		return "", fmt.Errorf("cache get: %w", err)
	}
	cacheOps.WithLabelValues("get", "hit").Inc()
	return val, nil
}

func (c *TokenCache) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		cacheOps.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("cache delete: %w", err)
	}
	cacheOps.WithLabelValues("delete", "ok").Inc()
	return nil
}

func (c *TokenCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *TokenCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
