package janitor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "janitor_swept_total", Help: "Expired refresh tokens removed",
	})
	mPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "janitor_outbox_purged_total", Help: "Delivered outbox rows removed",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "janitor_errors_total", Help: "Errors in janitor loop",
	})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "janitor_loop_duration_seconds", Help: "Janitor tick duration",
		Buckets: prometheus.DefBuckets,
	})
)

type Config struct {
	Tick       time.Duration `mapstructure:"tick"`
	Grace      time.Duration `mapstructure:"grace"`
	BatchLimit int           `mapstructure:"batch_limit"`
	MaxBatches int           `mapstructure:"max_batches"`

	// OutboxRetention keeps delivered outbox rows around for inspection.
	OutboxRetention time.Duration `mapstructure:"outbox_retention"`
}

type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg Config
}

func New(log *zap.Logger, uc *Usecase, cfg Config) *Runner {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	return &Runner{Log: log, UC: uc, Cfg: cfg}
}

func (r *Runner) tick(ctx context.Context) int64 {
	start := time.Now()
	defer func() { mLoopDur.Observe(time.Since(start).Seconds()) }()

	n, err := r.UC.Sweep(ctx, r.Cfg.Grace, r.Cfg.BatchLimit, r.Cfg.MaxBatches)
	if n > 0 {
		mSwept.Add(float64(n))
		r.Log.Info("swept expired refresh tokens", zap.Int64("removed", n))
	}
	if err != nil && ctx.Err() == nil {
		mErr.Inc()
		r.Log.Warn("sweep error", zap.Error(err))
	}

	purged, err := r.UC.PurgeOutbox(ctx, r.Cfg.OutboxRetention, r.Cfg.BatchLimit, r.Cfg.MaxBatches)
	if purged > 0 {
		mPurged.Add(float64(purged))
		r.Log.Debug("purged delivered outbox rows", zap.Int64("removed", purged))
	}
	if err != nil && ctx.Err() == nil {
		mErr.Inc()
		r.Log.Warn("outbox purge error", zap.Error(err))
	}
	return n
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
